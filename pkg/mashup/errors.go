package mashup

import "errors"

var (
	// ErrEmptyInput is returned when a request carries no tracks
	ErrEmptyInput = errors.New("no input tracks")

	// ErrInsufficientSegments means every track was skipped and nothing was mixed
	ErrInsufficientSegments = errors.New("nothing to mix")

	ErrInvalidIntensity  = errors.New("invalid intensity")
	ErrInvalidTransition = errors.New("invalid transition duration")
	ErrInvalidCue        = errors.New("invalid cue point")
)
