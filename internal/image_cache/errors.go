package image_cache

import (
	"errors"
	"fmt"
	"image"
)

type Kind int

const (
	// KindOpen covers unreadable, truncated and corrupt files.
	KindOpen Kind = iota
	// KindFormat means no registered decoder recognised the file.
	KindFormat
	// KindPanic means a decoder panicked on the file.
	KindPanic
)

func (k Kind) String() string {
	switch k {
	case KindFormat:
		return "unsupported format"
	case KindPanic:
		return "decoder panic"
	default:
		return "open or parse failure"
	}
}

// DecodeError is the failure result of one decode request.
type DecodeError struct {
	Lookup ImageLookup
	Path   string
	Kind   Kind
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode image %d (%s): %s: %v", e.Lookup.Index, e.Path, e.Kind, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func classify(err error) Kind {
	if errors.Is(err, image.ErrFormat) {
		return KindFormat
	}
	return KindOpen
}
