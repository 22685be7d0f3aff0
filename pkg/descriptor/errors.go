package descriptor

import "errors"

var ErrUnresolvedDependency = errors.New("could not find dependency matching file")

// UnresolvedDependencyError reports a file that no resolved artifact backs.
type UnresolvedDependencyError struct {
	File string
}

func (e *UnresolvedDependencyError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return ErrUnresolvedDependency.Error() + ": " + e.File
}

func (e *UnresolvedDependencyError) Is(target error) bool {
	return target == ErrUnresolvedDependency
}
