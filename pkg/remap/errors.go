package remap

import (
	"errors"
	"fmt"
)

var (
	ErrInputNotFound = errors.New("input archive not found")
	ErrRemapFailed   = errors.New("failed to remap")
	ErrOutputMissing = errors.New("remapped output is missing")
)

// InputNotFoundError is returned when the archive to remap does not exist.
type InputNotFoundError struct {
	Input string
}

func (e *InputNotFoundError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s: %s", ErrInputNotFound, e.Input)
}

func (e *InputNotFoundError) Is(target error) bool {
	return target == ErrInputNotFound
}

// RemapFailedError wraps any failure raised while the engine was running or
// while the output was being written.
type RemapFailedError struct {
	Input  string
	Output string
	Err    error
}

func (e *RemapFailedError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s %s to %s: %v", ErrRemapFailed, e.Input, e.Output, e.Err)
}

func (e *RemapFailedError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *RemapFailedError) Is(target error) bool {
	return target == ErrRemapFailed
}

// OutputMissingError reports that the engine finished without producing the
// output archive.
type OutputMissingError struct {
	Input  string
	Output string
}

func (e *OutputMissingError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("failed to remap %s to %s: %s", e.Input, e.Output, ErrOutputMissing)
}

func (e *OutputMissingError) Is(target error) bool {
	return target == ErrOutputMissing
}
