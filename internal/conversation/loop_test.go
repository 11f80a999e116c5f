package conversation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/tjfontaine/voicebank-gateway/internal/config"
	"github.com/tjfontaine/voicebank-gateway/internal/domain"
	"github.com/tjfontaine/voicebank-gateway/internal/prompt"
)

// scriptedModel returns canned outputs (or errors) in sequence.
type scriptedModel struct {
	outputs []string
	errs    []error
	calls   int
	prompts [][]domain.Message
}

func (m *scriptedModel) Complete(_ context.Context, msgs []domain.Message) (string, error) {
	i := m.calls
	m.calls++
	m.prompts = append(m.prompts, msgs)
	if i < len(m.errs) && m.errs[i] != nil {
		return "", m.errs[i]
	}
	if i < len(m.outputs) {
		return m.outputs[i], nil
	}
	return "", errors.New("script exhausted")
}

type scriptedDispatcher struct {
	result  *domain.ActionResult
	calls   int
	intents []*domain.Intent
}

func (d *scriptedDispatcher) Dispatch(_ context.Context, in *domain.Intent) *domain.ActionResult {
	d.calls++
	d.intents = append(d.intents, in)
	if d.result != nil {
		return d.result
	}
	return &domain.ActionResult{Action: in.Action, Kind: domain.ResultFailed}
}

type capturingRecorder struct {
	recs []*domain.TurnRecord
	err  error
}

func (r *capturingRecorder) SaveTurn(_ context.Context, rec *domain.TurnRecord) error {
	r.recs = append(r.recs, rec)
	return r.err
}

func testLoop(t *testing.T, model Completer, dispatcher ActionDispatcher, opts ...Option) *Loop {
	t.Helper()
	cfg := &config.Config{
		Banks: []string{"banka", "bankb", "bankc"},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewLoop(model, prompt.NewBuilder(cfg), dispatcher, 16, logger, opts...)
}

func userTurn(content string) []domain.Message {
	return []domain.Message{{Role: domain.RoleUser, Content: content}}
}

const completeTransfer = `{"action":"transfer","required":["from_bank","from_account_id","to_bank","to_account_id","amount"],` +
	`"parameters":{"from_bank":"banka","from_account_id":"a1","to_bank":"bankb","to_account_id":"b1","amount":50},` +
	`"response":"Transferring 50 dollars now."}`

func TestRunTurn_GreetingWithThinking(t *testing.T) {
	model := &scriptedModel{outputs: []string{
		"<think>The user said hi. This is a greeting, no action needed.</think>\n" +
			`{"action":"greeting","required":[],"parameters":{},"response":"Hello! How can I help you with your banking today?"}`,
	}}
	dispatcher := &scriptedDispatcher{}

	reply := testLoop(t, model, dispatcher).RunTurn(context.Background(), userTurn("hi"))

	if reply != "Hello! How can I help you with your banking today?" {
		t.Errorf("reply = %q", reply)
	}
	if model.calls != 1 {
		t.Errorf("model calls = %d, want 1", model.calls)
	}
	if dispatcher.calls != 0 {
		t.Errorf("dispatcher calls = %d, want 0", dispatcher.calls)
	}
	if strings.Contains(reply, "<think>") {
		t.Error("reasoning leaked into reply")
	}
}

func TestRunTurn_SystemMessageFirst(t *testing.T) {
	model := &scriptedModel{outputs: []string{`{"action":"greeting","response":"hi"}`}}

	testLoop(t, model, &scriptedDispatcher{}).RunTurn(context.Background(), userTurn("hello"))

	if len(model.prompts) == 0 || model.prompts[0][0].Role != domain.RoleSystem {
		t.Fatal("prompt did not lead with the system message")
	}
}

func TestRunTurn_DispatchAndSummary(t *testing.T) {
	model := &scriptedModel{outputs: []string{
		completeTransfer,
		`{"action":"other","required":[],"parameters":{},"response":"Done! I transferred 50 dollars to the bankb account."}`,
	}}
	dispatcher := &scriptedDispatcher{result: &domain.ActionResult{
		Action: domain.ActionTransfer,
		Kind:   domain.ResultTransferred,
		Status: "COMPLETED",
	}}
	recorder := &capturingRecorder{}

	reply := testLoop(t, model, dispatcher, WithRecorder(recorder)).
		RunTurn(context.Background(), userTurn("send 50 dollars"))

	if reply != "Done! I transferred 50 dollars to the bankb account." {
		t.Errorf("reply = %q", reply)
	}
	if dispatcher.calls != 1 {
		t.Errorf("dispatcher calls = %d, want 1", dispatcher.calls)
	}
	if model.calls != 2 {
		t.Errorf("model calls = %d, want 2", model.calls)
	}

	// The follow-up prompt must carry the backend outcome.
	followUp := model.prompts[1]
	last := followUp[len(followUp)-1]
	if last.Role != domain.RoleUser || !strings.Contains(last.Content, "COMPLETED") {
		t.Errorf("follow-up prompt missing outcome: %+v", last)
	}

	if len(recorder.recs) != 1 {
		t.Fatalf("recorded %d turns, want 1", len(recorder.recs))
	}
	rec := recorder.recs[0]
	if rec.Status != domain.TurnStatusDispatched {
		t.Errorf("record status = %v, want dispatched", rec.Status)
	}
	if rec.ModelCalls != 2 {
		t.Errorf("record model calls = %d, want 2", rec.ModelCalls)
	}
}

func TestRunTurn_NeverDispatchesTwice(t *testing.T) {
	// The follow-up trip returns another complete actionable payload.
	model := &scriptedModel{outputs: []string{completeTransfer, completeTransfer}}
	dispatcher := &scriptedDispatcher{result: &domain.ActionResult{
		Action: domain.ActionTransfer,
		Kind:   domain.ResultTransferred,
	}}

	reply := testLoop(t, model, dispatcher).RunTurn(context.Background(), userTurn("send 50 dollars"))

	if dispatcher.calls != 1 {
		t.Fatalf("dispatcher calls = %d, want exactly 1", dispatcher.calls)
	}
	if model.calls != 2 {
		t.Errorf("model calls = %d, want 2", model.calls)
	}
	// The transfer did happen; the reply must still say so.
	if !strings.Contains(reply, "transfer completed") {
		t.Errorf("reply = %q, want transfer outcome", reply)
	}
}

func TestRunTurn_MissingFields(t *testing.T) {
	model := &scriptedModel{outputs: []string{
		`{"action":"transfer","required":["from_bank","from_account_id","to_bank","to_account_id","amount"],` +
			`"parameters":{"from_bank":"banka","from_account_id":"a1","to_bank":"bankb","to_account_id":"b1","amount":null},` +
			`"response":"Sure, let me set that up."}`,
	}}
	dispatcher := &scriptedDispatcher{}

	reply := testLoop(t, model, dispatcher).RunTurn(context.Background(), userTurn("transfer money"))

	if dispatcher.calls != 0 {
		t.Errorf("dispatcher calls = %d, want 0", dispatcher.calls)
	}
	if !strings.Contains(reply, "amount") {
		t.Errorf("reply = %q, should ask for the amount", reply)
	}
	if model.calls != 1 {
		t.Errorf("model calls = %d, want 1", model.calls)
	}
}

func TestRunTurn_SolicitingResponsePreferred(t *testing.T) {
	model := &scriptedModel{outputs: []string{
		`{"action":"transfer","parameters":{"from_bank":"banka"},` +
			`"response":"Which from account id, to bank, to account id, and amount should I use?"}`,
	}}

	reply := testLoop(t, model, &scriptedDispatcher{}).RunTurn(context.Background(), userTurn("transfer"))

	if reply != "Which from account id, to bank, to account id, and amount should I use?" {
		t.Errorf("reply = %q, want the model's own solicitation", reply)
	}
}

func TestRunTurn_ModelError(t *testing.T) {
	model := &scriptedModel{errs: []error{errors.New("connect: refused")}}

	reply := testLoop(t, model, &scriptedDispatcher{}).RunTurn(context.Background(), userTurn("hi"))

	if reply != UnreachableReply {
		t.Errorf("reply = %q, want %q", reply, UnreachableReply)
	}
}

func TestRunTurn_ModelErrorAfterDispatch(t *testing.T) {
	model := &scriptedModel{
		outputs: []string{completeTransfer, ""},
		errs:    []error{nil, errors.New("timeout")},
	}
	dispatcher := &scriptedDispatcher{result: &domain.ActionResult{
		Action: domain.ActionTransfer,
		Kind:   domain.ResultTransferred,
	}}

	reply := testLoop(t, model, dispatcher).RunTurn(context.Background(), userTurn("send 50"))

	if !strings.Contains(reply, "transfer completed") {
		t.Errorf("reply = %q, want outcome summary despite follow-up failure", reply)
	}
}

func TestRunTurn_MalformedOutput(t *testing.T) {
	for _, raw := range []string{
		"I'd be happy to help with that!",
		"<think>hmm",
	} {
		model := &scriptedModel{outputs: []string{raw}}
		dispatcher := &scriptedDispatcher{}

		reply := testLoop(t, model, dispatcher).RunTurn(context.Background(), userTurn("hello"))

		if model.calls != 1 {
			t.Errorf("raw %q: model calls = %d, want 1 (no retry on malformed output)", raw, model.calls)
		}
		if dispatcher.calls != 0 {
			t.Errorf("raw %q: dispatcher calls = %d, want 0", raw, dispatcher.calls)
		}
		if reply == "" {
			t.Errorf("raw %q: empty reply", raw)
		}
	}
}

func TestRunTurn_MalformedProseShownToUser(t *testing.T) {
	model := &scriptedModel{outputs: []string{"I'd be happy to help with that!"}}

	reply := testLoop(t, model, &scriptedDispatcher{}).RunTurn(context.Background(), userTurn("hello"))

	if reply != "I'd be happy to help with that!" {
		t.Errorf("reply = %q, want the sanitized text itself", reply)
	}
}

func TestRunTurn_EmptyAfterSanitize(t *testing.T) {
	model := &scriptedModel{outputs: []string{"<think>never closed, nothing else"}}

	reply := testLoop(t, model, &scriptedDispatcher{}).RunTurn(context.Background(), userTurn("hello"))

	if reply != UnreadableReply {
		t.Errorf("reply = %q, want %q", reply, UnreadableReply)
	}
}

func TestRunTurn_RecorderFailureDoesNotAffectReply(t *testing.T) {
	model := &scriptedModel{outputs: []string{`{"action":"greeting","response":"Hi!"}`}}
	recorder := &capturingRecorder{err: errors.New("disk full")}

	reply := testLoop(t, model, &scriptedDispatcher{}, WithRecorder(recorder)).
		RunTurn(context.Background(), userTurn("hi"))

	if reply != "Hi!" {
		t.Errorf("reply = %q", reply)
	}
}
