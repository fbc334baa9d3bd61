package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound reports that no rule carries the requested id.
var ErrNotFound = errors.New("rule not found")

// ErrNotAbsolute reports a request URL without a scheme or hostname.
var ErrNotAbsolute = errors.New("url is not absolute")

// ValidationError is returned when user input cannot become a BlockRule.
// The rule list is never modified when it is returned.
type ValidationError struct {
	Input  string // raw input as supplied
	Reason string // human readable cause
	Err    error  // optional underlying parse error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid url %q: %s: %v", e.Input, e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid url %q: %s", e.Input, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// IsValidationError reports whether err is, or wraps, a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
