// Package consultant implements the streaming client for the AI business
// consultant backend (Gemini with Google Search grounding).
package consultant

import (
	"context"
	"iter"

	"github.com/lemmaiot/sme-consultant/internal/domain"
)

// Fragment is one incremental unit of a consultant response: a text
// delta, a citation batch, or a terminal error. At most one of the
// fields is set.
type Fragment struct {
	Text    string
	Sources []domain.Source
	Err     string
}

// Streamer produces a finite, single-pass sequence of response fragments
// for one submission. Backend failures inside the stream surface as a
// single terminal Fragment with Err set; a non-nil error from the
// sequence itself means iteration broke before the backend could answer.
type Streamer interface {
	Stream(ctx context.Context, prompt string, history []domain.Message, location string) iter.Seq2[Fragment, error]
}

// User-facing copy for the two failure paths. BackendErrorText travels
// inside a terminal fragment; the connectivity text is written by the
// caller when iteration itself fails.
const (
	BackendErrorText = "I'm sorry, I encountered an error and couldn't process your request. Please try again later."
)
