// Package tokens provides token counting for prompt-size control. SEA-LION
// has no published tokenizer binding, so counts use the cl100k_base
// encoding as a close approximation, with a character-based estimator as
// fallback when the encoding cannot be loaded.
package tokens

import (
	"github.com/tiktoken-go/tokenizer"

	"github.com/tjfontaine/voicebank-gateway/internal/domain"
)

// perMessageOverhead approximates the chat-template framing tokens wrapped
// around each message.
const perMessageOverhead = 4

// charsPerToken is the estimator ratio used when no codec is available.
const charsPerToken = 4

// Counter counts tokens in messages.
type Counter struct {
	codec tokenizer.Codec
}

// NewCounter returns a counter backed by cl100k_base, or the estimator
// fallback if the encoding fails to load.
func NewCounter() *Counter {
	codec, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		return &Counter{}
	}
	return &Counter{codec: codec}
}

// Count returns the token count for a single text.
func (c *Counter) Count(text string) int {
	if c.codec == nil {
		return (len(text) + charsPerToken - 1) / charsPerToken
	}
	ids, _, err := c.codec.Encode(text)
	if err != nil {
		return (len(text) + charsPerToken - 1) / charsPerToken
	}
	return len(ids)
}

// CountMessages returns the approximate prompt size of a message sequence.
func (c *Counter) CountMessages(msgs []domain.Message) int {
	total := 0
	for _, m := range msgs {
		total += perMessageOverhead + c.Count(m.Content)
	}
	return total
}
