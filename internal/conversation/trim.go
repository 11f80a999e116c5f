package conversation

import "github.com/tjfontaine/voicebank-gateway/internal/domain"

// TokenCounter measures prompt size for the secondary budget trim.
type TokenCounter interface {
	CountMessages(msgs []domain.Message) int
}

// TrimHistory returns the most recent maxTurns user turns together with
// their assistant replies, oldest first. A turn starts at a user message
// and runs through the assistant messages that follow it, so a pair is
// never split across the trim boundary. Trimming an already-trimmed
// history with the same bound returns it unchanged.
func TrimHistory(history []domain.Message, maxTurns int) []domain.Message {
	if maxTurns <= 0 || len(history) == 0 {
		return history
	}

	userTurns := 0
	cut := 0
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == domain.RoleUser {
			userTurns++
			if userTurns == maxTurns {
				cut = i
				break
			}
		}
	}
	if userTurns < maxTurns {
		return history
	}
	return history[cut:]
}

// TrimToTokenBudget drops the oldest whole turns while the sequence
// exceeds budget. The newest turn is always kept, over budget or not, so
// the model never sees an empty conversation. A zero budget disables the
// trim.
func TrimToTokenBudget(history []domain.Message, budget int, counter TokenCounter) []domain.Message {
	if budget <= 0 || counter == nil || len(history) == 0 {
		return history
	}

	out := history
	for counter.CountMessages(out) > budget {
		next := dropOldestTurn(out)
		if len(next) == len(out) {
			break
		}
		out = next
	}
	return out
}

// dropOldestTurn removes the leading turn: everything up to, but not
// including, the second user message. The final turn is never dropped.
func dropOldestTurn(history []domain.Message) []domain.Message {
	seenUser := false
	for i, m := range history {
		if m.Role != domain.RoleUser {
			continue
		}
		if seenUser {
			return history[i:]
		}
		seenUser = true
	}
	return history
}
