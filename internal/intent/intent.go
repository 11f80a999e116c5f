// Package intent holds the single source of truth for per-action required
// fields and validates extracted intents against it. Earlier iterations of
// this system carried divergent required-field sets in different prompt
// variants; every consumer (prompt builder, validator, dispatcher) now
// reads the one table here.
package intent

import (
	"fmt"
	"strings"

	"github.com/tjfontaine/voicebank-gateway/internal/domain"
)

// requiredFields is the per-action required-field table, in the order
// missing fields are reported to the user.
var requiredFields = map[domain.Action][]string{
	domain.ActionCreate: {
		"first_name",
		"last_name",
		"email",
		"password",
		"bank",
	},
	domain.ActionTransfer: {
		"from_bank",
		"from_account_id",
		"to_bank",
		"to_account_id",
		"amount",
	},
	domain.ActionGreeting: {},
	domain.ActionOther:    {},
}

// RequiredFor returns the required-field list for an action. The returned
// slice must not be mutated.
func RequiredFor(action domain.Action) []string {
	return requiredFields[action]
}

// Verdict is the outcome of validating one intent.
type Verdict struct {
	// Missing lists required fields absent from Parameters or holding a
	// null/empty value, in required-table order.
	Missing []string
}

// OK reports whether the intent is complete enough to dispatch.
func (v Verdict) OK() bool {
	return len(v.Missing) == 0
}

// Validate checks an intent's parameters for completeness. It is total:
// malformed shapes (nil intent, nil parameters, junk values) come back as
// validation failures, never panics, and it performs no I/O.
//
// The authoritative required set is the table above; the model-supplied
// Required list is advisory only and cannot shrink what an action needs.
func Validate(in *domain.Intent) Verdict {
	if in == nil {
		return Verdict{Missing: []string{"action"}}
	}

	var missing []string
	for _, field := range requiredFields[in.Action] {
		if in.Parameters == nil {
			missing = append(missing, field)
			continue
		}
		val, present := in.Parameters[field]
		if !present || isEmpty(val) {
			missing = append(missing, field)
		}
	}
	return Verdict{Missing: missing}
}

// MissingFieldsMessage builds the user-facing request for missing fields.
// The model's own response text is preferred when it already solicits the
// missing fields; otherwise the caller uses this synthesized form.
func MissingFieldsMessage(missing []string) string {
	readable := make([]string, len(missing))
	for i, f := range missing {
		readable[i] = strings.ReplaceAll(f, "_", " ")
	}
	return fmt.Sprintf("I need a bit more information before I can do that. Please provide: %s.",
		strings.Join(readable, ", "))
}

// Solicits reports whether the model's response text already asks for all
// of the missing fields, in which case it is returned unmodified.
func Solicits(response string, missing []string) bool {
	if strings.TrimSpace(response) == "" {
		return false
	}
	lower := strings.ToLower(response)
	for _, f := range missing {
		readable := strings.ReplaceAll(f, "_", " ")
		if !strings.Contains(lower, f) && !strings.Contains(lower, readable) {
			return false
		}
	}
	return true
}

func isEmpty(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	default:
		return false
	}
}
