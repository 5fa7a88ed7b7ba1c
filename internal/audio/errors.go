package audio

import "errors"

// Preprocessing failures are deterministic properties of the input, so the
// pipeline treats both as terminal and never retries them.
var (
	// ErrUnsupportedFormat indicates the input container or codec could not
	// be decoded.
	ErrUnsupportedFormat = errors.New("unsupported audio format")

	// ErrEmptyOrSilentAudio indicates the decoded signal carries near-zero
	// energy throughout and transcription would be meaningless.
	ErrEmptyOrSilentAudio = errors.New("audio is empty or silent")
)
