package nested

import (
	"errors"
	"fmt"
)

var ErrArchivePatch = errors.New("failed to patch nested archive")

// ArchivePatchError reports an I/O failure while injecting a descriptor into
// a nested archive. The original archive is left as it was.
type ArchivePatchError struct {
	File string
	Op   string
	Err  error
}

func (e *ArchivePatchError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s %s (%s): %v", ErrArchivePatch, e.File, e.Op, e.Err)
}

func (e *ArchivePatchError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *ArchivePatchError) Is(target error) bool {
	return target == ErrArchivePatch
}

var ErrBundleNameConflict = errors.New("nested archives share a file name")

// BundleNameConflictError reports two distinct archives that would be stored
// under the same name inside the output.
type BundleNameConflictError struct {
	Name   string
	First  string
	Second string
}

func (e *BundleNameConflictError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s: %s and %s are both stored as %s", ErrBundleNameConflict, e.First, e.Second, e.Name)
}

func (e *BundleNameConflictError) Is(target error) bool {
	return target == ErrBundleNameConflict
}
