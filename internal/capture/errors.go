package capture

import (
	"errors"
	"fmt"
)

// ErrNotCancellable is returned by RequestCancel when the job has already
// reached a terminal state.
var ErrNotCancellable = errors.New("job is not cancellable")

// ErrJobNotFound is returned by job store reads for unknown IDs.
var ErrJobNotFound = errors.New("job not found")

// ErrNotCompleted is returned by the packager when the job has not finished.
var ErrNotCompleted = errors.New("job is not completed")

// ErrExpired is returned by the packager when the retention window passed.
var ErrExpired = errors.New("job has expired")

// RenderKind classifies render failures.
type RenderKind string

// Render failure kinds. All of them abort the whole job under the
// fail-fast policy; the kind only shapes the persisted error message.
const (
	RenderTimeout      RenderKind = "timeout"
	RenderEmptyCapture RenderKind = "empty_capture"
	RenderBrowser      RenderKind = "browser"
)

// RenderError describes a failed render of one (URL, device) unit.
type RenderError struct {
	Kind   RenderKind
	URL    string
	Device Device
	Err    error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render %s (%s): %s: %v", e.URL, e.Device, e.Kind, e.Err)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}
