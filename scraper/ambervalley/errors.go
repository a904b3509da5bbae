package ambervalley

import (
	"errors"
	"fmt"
)

// ErrUnavailable is matched by every lookup or fetch failure. Callers do not
// need to tell a down server from one returning garbage.
var ErrUnavailable = errors.New("amber valley service unavailable")

// UpstreamError records which call failed and why.
type UpstreamError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("ambervalley %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("ambervalley %s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func (e *UpstreamError) Is(target error) bool { return target == ErrUnavailable }

func upstreamErr(op string, status int, err error) error {
	return &UpstreamError{Op: op, StatusCode: status, Err: err}
}
