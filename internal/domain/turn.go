package domain

import "time"

// TurnStatus summarizes how a turn resolved, for the audit record.
type TurnStatus string

const (
	TurnStatusReplied          TurnStatus = "replied"
	TurnStatusDispatched       TurnStatus = "dispatched"
	TurnStatusExtractionFailed TurnStatus = "extraction_failed"
	TurnStatusValidationFailed TurnStatus = "validation_failed"
	TurnStatusError            TurnStatus = "error"
)

// TurnRecord is the audit trail for one user turn. It is written
// best-effort after the turn resolves; a failed write never fails the turn.
type TurnRecord struct {
	ID          string        `db:"id"`
	RequestJSON string        `db:"request_json"`
	RawOutput   string        `db:"raw_output"`
	IntentJSON  string        `db:"intent_json"`
	Action      string        `db:"action"`
	ResultJSON  string        `db:"result_json"`
	Reply       string        `db:"reply"`
	Status      TurnStatus    `db:"status"`
	ModelCalls  int           `db:"model_calls"`
	Duration    time.Duration `db:"duration_ns"`
	CreatedAt   time.Time     `db:"created_at"`
}
