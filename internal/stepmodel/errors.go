package stepmodel

import "errors"

// fatalError marks a step handler error as run-stopping: the scheduler
// pauses intake and aborts the entire run rather than just failing the
// offending step.
type fatalError struct {
	err error
}

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }

// Fatal wraps err so that IsFatal reports true for it. Step handlers call
// this to signal a run-stopping condition (e.g. the remote service is gone).
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &fatalError{err: err}
}

// IsFatal reports whether err (or anything it wraps) was marked Fatal.
func IsFatal(err error) bool {
	var fe *fatalError
	return errors.As(err, &fe)
}
