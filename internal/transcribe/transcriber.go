// Package transcribe defines the speech-to-text contract and its backends.
// The model behind a backend is expensive to load, so one backend instance is
// constructed at process start and shared read-only across requests; the
// Guard bounds how many calls run at once.
package transcribe

import (
	"context"
	"fmt"
)

// Segment is one timed span of transcribed speech.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Result is a transcription of one piece of audio. Confidence is the model's
// overall estimate in [0,1], or negative when the backend exposes none.
type Result struct {
	Text       string
	Segments   []Segment
	Language   string
	Confidence float64
}

// Transcriber converts mono PCM samples into text. Implementations must be
// safe for concurrent use; each call is stateless.
type Transcriber interface {
	Transcribe(ctx context.Context, samples []float64, sampleRate int) (*Result, error)
}

// TranscriptionError marks a transcription failure. These are treated as
// transient by the pipeline and retried with backoff before giving up.
type TranscriptionError struct {
	Backend string
	Err     error
}

func (e *TranscriptionError) Error() string {
	return fmt.Sprintf("transcription failed (%s): %v", e.Backend, e.Err)
}

func (e *TranscriptionError) Unwrap() error { return e.Err }
