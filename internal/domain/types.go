package domain

import "encoding/json"

// Role identifies who authored a message.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a chat message. History is append-only: the loop
// creates new slices rather than mutating messages in place.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Action is the closed set of intents the assistant may request.
type Action string

const (
	ActionCreate   Action = "create"
	ActionTransfer Action = "transfer"
	ActionGreeting Action = "greeting"
	ActionOther    Action = "other"
)

// ParseAction maps a raw action string onto the closed enum.
// Unknown values collapse to ActionOther so downstream code never
// dispatches on a label it does not understand.
func ParseAction(s string) Action {
	switch Action(s) {
	case ActionCreate, ActionTransfer, ActionGreeting:
		return Action(s)
	default:
		return ActionOther
	}
}

// Dispatchable reports whether the action has a backend side effect.
func (a Action) Dispatchable() bool {
	return a == ActionCreate || a == ActionTransfer
}

// Intent is the structured action request recovered from model text.
//
// Invariant: every name in Required must appear as a key in Parameters,
// possibly with a null value. A name missing from Parameters entirely is a
// contract violation and is reported by the validator the same way as an
// unfilled field. Response always carries the user-facing text for this
// turn, whether or not the action is complete.
type Intent struct {
	Action     Action         `json:"action"`
	Required   []string       `json:"required"`
	Parameters map[string]any `json:"parameters"`
	Response   string         `json:"response"`
}

// ResultKind classifies the outcome of a dispatched action.
type ResultKind string

const (
	// ResultCreated means the user and account were both created.
	ResultCreated ResultKind = "created"

	// ResultTransferred means the transfer completed synchronously.
	ResultTransferred ResultKind = "transferred"

	// ResultPartial means the first half of a two-step action succeeded
	// and the second failed: the sandbox user exists but has no account.
	ResultPartial ResultKind = "partial"

	// ResultFailed means the action was rejected or errored with no
	// side effect believed to have been applied.
	ResultFailed ResultKind = "failed"

	// ResultUncertain means the call timed out after the request may have
	// reached the backend; the side-effect state is unknown and the user
	// must be told to verify.
	ResultUncertain ResultKind = "uncertain"
)

// ActionResult is the outcome of one dispatch. It is never partially
// applied silently: a create that lost its second step reports
// ResultPartial with the surviving user id.
type ActionResult struct {
	Action    Action     `json:"action"`
	Kind      ResultKind `json:"kind"`
	UserID    string     `json:"user_id,omitempty"`
	AccountID string     `json:"account_id,omitempty"`
	Status    string     `json:"status,omitempty"`
	Message   string     `json:"message,omitempty"`
}

// Succeeded reports whether the action fully completed.
func (r *ActionResult) Succeeded() bool {
	return r.Kind == ResultCreated || r.Kind == ResultTransferred
}

// JSON renders the result for the synthetic follow-up message fed back to
// the model. Marshaling a flat struct of strings cannot fail.
func (r *ActionResult) JSON() string {
	b, _ := json.Marshal(r)
	return string(b)
}
