package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/roach88/tempodb/internal/model"
)

// ErrStopped is returned by Submit once the engine has been stopped.
var ErrStopped = errors.New("engine stopped")

// errTimeout is the sentinel returned by watermark.wait; callers convert it
// into a TIMEOUT_EXCEEDED error naming what they waited for.
var errTimeout = errors.New("timeout")

// timeoutError builds the TIMEOUT_EXCEEDED error for a wait.
func timeoutError(timeout time.Duration, format string, args ...any) *model.Error {
	e := model.NewError(model.ErrCodeTimeoutExceeded, format, args...)
	e.Message = fmt.Sprintf("%s: not indexed within %s", e.Message, timeout)
	return e
}
