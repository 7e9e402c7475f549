// Package tokenizer counts tokens for usage accounting.
package tokenizer

import (
	"github.com/pkoukk/tiktoken-go"
)

// Tokenizer counts tokens using a tiktoken encoding.
type Tokenizer struct {
	enc *tiktoken.Tiktoken
}

// New creates a tokenizer for the given model or encoding name.
func New(name string) (*Tokenizer, error) {
	enc, err := tiktoken.EncodingForModel(name)
	if err != nil {
		// try by encoding name
		enc, err = tiktoken.GetEncoding(name)
		if err != nil {
			return nil, err
		}
	}
	return &Tokenizer{enc: enc}, nil
}

// Count returns the number of tokens in the text.
func (t *Tokenizer) Count(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}

// Counter is the narrow dependency the orchestrator takes; a nil-safe
// approximation is used when no encoding is available.
type Counter interface {
	Count(text string) int
}

// Approx estimates tokens without an encoding table. Used as fallback when
// tiktoken data cannot be loaded (offline deployments).
type Approx struct{}

// Count approximates four characters per token, minimum one for non-empty text.
func (Approx) Count(text string) int {
	if text == "" {
		return 0
	}
	n := len(text) / 4
	if n == 0 {
		n = 1
	}
	return n
}
