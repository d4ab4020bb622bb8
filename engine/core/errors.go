package core

import (
	"errors"
)

var (
	// ErrFontNotFound is returned when a font path resolves to no usable face.
	ErrFontNotFound = errors.New("font not found")
	// ErrUnsupportedFontFormat is returned for font paths with an unknown extension.
	ErrUnsupportedFontFormat = errors.New("unsupported font format")
	// ErrJobKindNotFound is reported when a submission references an
	// unregistered job kind. It is a programmer error.
	ErrJobKindNotFound = errors.New("job kind not found")
	// ErrGenerationFailed is the asynchronous failure of a render job.
	ErrGenerationFailed = errors.New("text generation failed")
	// ErrFontNotLoaded is reported by render jobs that ran before the font
	// reached the worker side registry.
	ErrFontNotLoaded = errors.New("font not loaded on the worker side")
	// ErrUnexpectedPayload is reported when a callback receives a job variant
	// it does not handle.
	ErrUnexpectedPayload = errors.New("unexpected job payload")
	// ErrJobPanicked wraps a panic recovered inside a job callback.
	ErrJobPanicked = errors.New("job panicked")
)
