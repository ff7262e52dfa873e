package audio

import (
	"errors"
	"fmt"
)

// ErrDecode is matched by every DecodeError
var ErrDecode = errors.New("audio decode failed")

// DecodeError reports a track whose samples could not be interpreted as audio
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrDecode) match any DecodeError
func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}

