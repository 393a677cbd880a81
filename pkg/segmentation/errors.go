package segmentation

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidDiagram is raised when the generator set cannot be turned into
	// a diagram. The engine recovers from it by jittering generators.
	ErrInvalidDiagram = errors.New("invalid diagram")

	// ErrUnrecoverable is returned when the jitter retry budget is exhausted.
	// The run ends without a mask.
	ErrUnrecoverable = errors.New("segmentation unrecoverable")

	// ErrRunFinished is returned when Run is called on an engine that already
	// reached a terminal state
	ErrRunFinished = errors.New("segmentation run already finished")

	// ErrNoInput is returned when an operation needs an input image and none was set
	ErrNoInput = errors.New("no input image")

	// ErrEmptyPrior is returned when a prior mask has no set pixel
	ErrEmptyPrior = errors.New("prior mask is empty")
)

// InvalidDiagramError ends a run whose diagram stayed invalid after every
// jittered retry. It matches ErrUnrecoverable, ErrInvalidDiagram and the
// builder's error with errors.Is.
type InvalidDiagramError struct {
	Retries int
	Err     error
}

func (e *InvalidDiagramError) Error() string {
	return fmt.Sprintf("%v: %v after %d jittered retries: %v", ErrUnrecoverable, ErrInvalidDiagram, e.Retries, e.Err)
}

func (e *InvalidDiagramError) Unwrap() []error {
	return []error{ErrUnrecoverable, ErrInvalidDiagram, e.Err}
}
