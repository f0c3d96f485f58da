// Package assistant turns merchant messages into replies and ledger writes.
//
// A Model produces raw text for a prompt. The IntentDetector extracts a
// transaction intent from that text, the AutoRecorder decides whether the
// intent is safe to persist, and the Assistant ties both to chat quotas,
// history and logs.
package assistant

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned when no model API key is set.
var ErrNotConfigured = errors.New("model not configured")

// Model generates a text completion for a prompt.
type Model interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Language of replies and feedback. Anything but "en" is French.
type Language string

const (
	French  Language = "fr"
	English Language = "en"
)

func (l Language) english() bool { return l == English }

// pick returns fr or en depending on the language.
func (l Language) pick(fr, en string) string {
	if l.english() {
		return en
	}
	return fr
}
