package frontdoor

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/tjfontaine/voicebank-gateway/internal/domain"
	"github.com/tjfontaine/voicebank-gateway/internal/server"
)

// TurnRunner resolves one user turn against the full conversation history.
type TurnRunner interface {
	RunTurn(ctx context.Context, history []domain.Message) string
}

type Handler struct {
	loop TurnRunner
}

func NewHandler(loop TurnRunner) *Handler {
	return &Handler{loop: loop}
}

// chatRequest accepts either a full message history or, for older clients,
// a single bare message string.
type chatRequest struct {
	Messages []wireMessage `json:"messages"`
	Message  string        `json:"message"`
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Response string `json:"response"`
}

func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		server.AddError(r.Context(), err)
		writeJSON(w, http.StatusBadRequest, chatResponse{Response: "No message provided"})
		return
	}

	history := req.history()
	if len(history) == 0 {
		writeJSON(w, http.StatusBadRequest, chatResponse{Response: "No message provided"})
		return
	}

	server.AddLogField(r.Context(), "history_len", strconv.Itoa(len(history)))

	reply := h.loop.RunTurn(r.Context(), history)
	writeJSON(w, http.StatusOK, chatResponse{Response: reply})
}

// history normalizes the request into domain messages. Only user and
// assistant roles are accepted from the wire: the system message is owned
// by the prompt builder, and a caller-supplied "system" entry would sit
// right after the fixed policy with the same authority. Entries with any
// other role or blank content are dropped; the result must contain at
// least one user message to be worth a model trip.
func (req *chatRequest) history() []domain.Message {
	var history []domain.Message
	for _, m := range req.Messages {
		role := strings.ToLower(strings.TrimSpace(m.Role))
		switch role {
		case domain.RoleUser, domain.RoleAssistant:
		default:
			continue
		}
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		history = append(history, domain.Message{Role: role, Content: m.Content})
	}

	if len(history) == 0 && strings.TrimSpace(req.Message) != "" {
		history = append(history, domain.Message{Role: domain.RoleUser, Content: req.Message})
	}

	if !hasUserMessage(history) {
		return nil
	}
	return history
}

func hasUserMessage(history []domain.Message) bool {
	for _, m := range history {
		if m.Role == domain.RoleUser {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
