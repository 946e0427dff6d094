package dbexec

import (
	"errors"
	"fmt"
)

// TransientError marks a failure that may succeed when retried, such as a reset connection.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Transient wraps err as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err or anything it wraps is retryable.
func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}
