package manager

import (
	"errors"

	"ovchat/internal/pipeline"
)

// tooBusyError signals that a generation or load is already in flight (429).
type tooBusyError struct{ what string }

func (e tooBusyError) Error() string { return "too busy: " + e.what + " in progress" }

// IsBusy reports whether err indicates the manager is occupied.
func IsBusy(err error) bool {
	var e tooBusyError
	return errors.As(err, &e)
}

// notLoadedError signals a chat request before any model was loaded.
type notLoadedError struct{}

func (notLoadedError) Error() string { return "no model loaded" }

// ErrNotLoaded is returned by Chat when no pipeline is open.
var ErrNotLoaded error = notLoadedError{}

// IsNotLoaded reports whether err indicates a missing pipeline.
func IsNotLoaded(err error) bool {
	var e notLoadedError
	return errors.As(err, &e)
}

// noDeviceError signals that no preferred device is available.
type noDeviceError struct{}

func (noDeviceError) Error() string { return "no usable inference device" }

// IsNoDevice reports whether err indicates an empty device selection.
func IsNoDevice(err error) bool {
	var e noDeviceError
	return errors.As(err, &e)
}

// invalidError wraps a rejected request or settings change (400).
type invalidError struct{ err error }

func (e invalidError) Error() string { return e.err.Error() }
func (e invalidError) Unwrap() error { return e.err }

// IsInvalid reports whether err indicates a rejected input.
func IsInvalid(err error) bool {
	var e invalidError
	return errors.As(err, &e)
}

// IsDependencyUnavailable reports whether err indicates a missing runtime
// (converter, inference server or build tag).
func IsDependencyUnavailable(err error) bool {
	return pipeline.IsDependencyUnavailable(err)
}

// ErrDependencyUnavailable constructs a dependency-unavailable error.
func ErrDependencyUnavailable(msg string) error { return pipeline.ErrDependencyUnavailable(msg) }
