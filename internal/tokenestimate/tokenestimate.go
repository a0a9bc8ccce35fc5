// Package tokenestimate provides a fallback token-count estimator for
// non-streaming responses whose upstream body omits usage figures (some
// OpenAI-compatible providers skip "usage" on non-streaming completions).
// It is only ever a fallback: a genuine usage figure from the upstream
// response always takes precedence.
package tokenestimate

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	once sync.Once
	enc  *tiktoken.Tiktoken
	encErr error
)

func encoding() (*tiktoken.Tiktoken, error) {
	once.Do(func() {
		enc, encErr = tiktoken.GetEncoding("cl100k_base")
	})
	return enc, encErr
}

// Estimate returns the approximate token count of text. On any tokenizer
// initialization failure it falls back to a coarse character/4 heuristic
// rather than failing the request.
func Estimate(text string) int {
	e, err := encoding()
	if err != nil || e == nil {
		return len(text) / 4
	}
	return len(e.Encode(text, nil, nil))
}

// EstimateMessages sums Estimate over a set of role-agnostic text chunks,
// used when the canonical message content has already been flattened to
// plain text per block.
func EstimateMessages(chunks []string) int {
	total := 0
	for _, c := range chunks {
		total += Estimate(c)
	}
	return total
}
