// Package conversation orchestrates one user turn end to end: prompt
// construction, model call, sanitization, extraction, validation,
// dispatch, and the bounded follow-up query that turns a backend outcome
// into user-facing text.
package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tjfontaine/voicebank-gateway/internal/domain"
	"github.com/tjfontaine/voicebank-gateway/internal/extract"
	"github.com/tjfontaine/voicebank-gateway/internal/intent"
	"github.com/tjfontaine/voicebank-gateway/internal/prompt"
	"github.com/tjfontaine/voicebank-gateway/internal/sanitize"
)

// maxDepth is the recursion ceiling: the number of model round trips
// permitted within a single turn. The model needs a second trip to phrase
// the result of a side effect it cannot observe; anything past that risks
// repeated dispatch or runaway cost. Dispatch itself is only ever allowed
// on the first trip.
const maxDepth = 2

// Fixed user-facing texts for the paths where no model output is usable.
const (
	FallbackReply    = "I wasn't able to complete that request. Please try again."
	UnreachableReply = "I couldn't reach the assistant service. Please check your connection and try again."
	UnreadableReply  = "I couldn't make sense of the assistant's reply. Please try rephrasing your request."
)

// Completer is the model collaborator.
type Completer interface {
	Complete(ctx context.Context, messages []domain.Message) (string, error)
}

// ActionDispatcher executes a validated intent.
type ActionDispatcher interface {
	Dispatch(ctx context.Context, in *domain.Intent) *domain.ActionResult
}

// TurnRecorder persists the audit record for a turn.
type TurnRecorder interface {
	SaveTurn(ctx context.Context, rec *domain.TurnRecord) error
}

// Loop runs the turn pipeline. It holds no per-turn state; everything a
// turn needs lives on its own stack, so concurrent turns never interfere.
type Loop struct {
	model       Completer
	prompts     *prompt.Builder
	dispatcher  ActionDispatcher
	recorder    TurnRecorder
	counter     TokenCounter
	logger      *slog.Logger
	maxTurns    int
	tokenBudget int
}

// Option configures the loop.
type Option func(*Loop)

// WithRecorder attaches a turn audit recorder.
func WithRecorder(r TurnRecorder) Option {
	return func(l *Loop) { l.recorder = r }
}

// WithTokenBudget enables the secondary token-budget trim.
func WithTokenBudget(budget int, counter TokenCounter) Option {
	return func(l *Loop) {
		l.tokenBudget = budget
		l.counter = counter
	}
}

// NewLoop creates a conversation loop.
func NewLoop(model Completer, prompts *prompt.Builder, dispatcher ActionDispatcher, maxTurns int, logger *slog.Logger, opts ...Option) *Loop {
	l := &Loop{
		model:      model,
		prompts:    prompts,
		dispatcher: dispatcher,
		logger:     logger,
		maxTurns:   maxTurns,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// RunTurn resolves one user turn to its final user-facing reply. Every
// failure mode resolves to well-formed text; nothing escapes as an error
// to the HTTP layer. The depth ceiling is enforced structurally by the
// loop bound, not by recursion.
func (l *Loop) RunTurn(ctx context.Context, history []domain.Message) string {
	start := time.Now()
	rec := &domain.TurnRecord{
		ID:        uuid.New().String(),
		Status:    domain.TurnStatusError,
		CreatedAt: start,
	}

	working := TrimHistory(history, l.maxTurns)
	working = TrimToTokenBudget(working, l.tokenBudget, l.counter)
	if reqJSON, err := json.Marshal(working); err == nil {
		rec.RequestJSON = string(reqJSON)
	}

	reply := FallbackReply
	var lastResult *domain.ActionResult

	for depth := 0; depth < maxDepth; depth++ {
		raw, err := l.model.Complete(ctx, l.prompts.Messages(working))
		rec.ModelCalls++
		if err != nil {
			l.logger.Warn("model call failed",
				slog.Int("depth", depth), slog.String("error", err.Error()))
			if lastResult != nil {
				// The action already ran; never swallow its outcome just
				// because the phrasing call failed.
				reply = summaryFallback(lastResult)
			} else {
				reply = UnreachableReply
			}
			break
		}

		clean := sanitize.Strip(raw)
		rec.RawOutput = raw

		in, err := extract.Intent(clean)
		if err != nil {
			// Fail open to showing something, never to empty.
			l.logger.Warn("no structured payload in model output", slog.Int("depth", depth))
			if rec.Status != domain.TurnStatusDispatched {
				rec.Status = domain.TurnStatusExtractionFailed
			}
			if clean != "" {
				reply = clean
			} else {
				reply = UnreadableReply
			}
			break
		}
		if intentJSON, jerr := json.Marshal(in); jerr == nil {
			rec.IntentJSON = string(intentJSON)
		}
		rec.Action = string(in.Action)

		if !in.Action.Dispatchable() {
			if rec.Status != domain.TurnStatusDispatched {
				rec.Status = domain.TurnStatusReplied
			}
			reply = firstNonEmpty(in.Response, clean, FallbackReply)
			break
		}

		if depth > 0 {
			// The follow-up trip asked for a summary and got another
			// actionable payload instead. No action is ever dispatched
			// past the first trip.
			l.logger.Warn("actionable payload at recursion ceiling, not dispatching",
				slog.String("action", string(in.Action)))
			if lastResult != nil {
				reply = summaryFallback(lastResult)
			} else {
				reply = FallbackReply
			}
			break
		}

		verdict := intent.Validate(in)
		if !verdict.OK() {
			rec.Status = domain.TurnStatusValidationFailed
			if intent.Solicits(in.Response, verdict.Missing) {
				reply = in.Response
			} else {
				reply = intent.MissingFieldsMessage(verdict.Missing)
			}
			break
		}

		result := l.dispatcher.Dispatch(ctx, in)
		lastResult = result
		rec.Status = domain.TurnStatusDispatched
		rec.ResultJSON = result.JSON()
		l.logger.Info("action dispatched",
			slog.String("action", string(in.Action)),
			slog.String("kind", string(result.Kind)))

		working = appendOutcome(working, in, result)
	}

	rec.Reply = reply
	rec.Duration = time.Since(start)
	l.record(ctx, rec)
	return reply
}

// appendOutcome threads the dispatch outcome back into the conversation as
// a synthetic exchange, so the follow-up trip can phrase it. History is
// never mutated in place.
func appendOutcome(history []domain.Message, in *domain.Intent, result *domain.ActionResult) []domain.Message {
	out := make([]domain.Message, 0, len(history)+2)
	out = append(out, history...)
	out = append(out,
		domain.Message{Role: domain.RoleAssistant, Content: in.Response},
		domain.Message{Role: domain.RoleUser, Content: fmt.Sprintf(
			"The user requested the action %q. The backend returned: %s. "+
				"Generate a clear, friendly message to the user summarizing this outcome. "+
				"If the outcome was partial or uncertain, say exactly what did and did not happen.",
			in.Action, result.JSON())},
	)
	return out
}

// summaryFallback phrases a dispatch outcome without the model, for when
// the follow-up trip fails.
func summaryFallback(r *domain.ActionResult) string {
	switch r.Kind {
	case domain.ResultCreated:
		return fmt.Sprintf("Your new account was created. Your account id is %s.", r.AccountID)
	case domain.ResultTransferred:
		return "Your transfer completed successfully."
	case domain.ResultPartial:
		return "Your user profile was created, but opening the bank account failed. The account step can be retried."
	case domain.ResultUncertain:
		return "The request timed out and may or may not have completed. Please verify your account before retrying."
	default:
		if r.Message != "" {
			return "The request could not be completed: " + r.Message
		}
		return FallbackReply
	}
}

func (l *Loop) record(ctx context.Context, rec *domain.TurnRecord) {
	if l.recorder == nil {
		return
	}
	if err := l.recorder.SaveTurn(ctx, rec); err != nil {
		l.logger.Warn("failed to record turn", slog.String("turn_id", rec.ID),
			slog.String("error", err.Error()))
	}
}

func firstNonEmpty(candidates ...string) string {
	for _, c := range candidates {
		if c != "" {
			return c
		}
	}
	return ""
}
