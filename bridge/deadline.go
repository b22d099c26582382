package bridge

import (
	"context"
	"time"

	"github.com/glimte/gdn-bridge/contracts"
)

// RunWithDeadline runs op on the calling goroutine under a deadline of d.
//
// op receives a context that is cancelled when the deadline fires and must
// return promptly once it is. The deadline timer is released on every return
// path. If the deadline fired, RunWithDeadline returns a *contracts.TimeoutError
// carrying message, whatever op returned. Cancellation of ctx itself is
// returned unchanged. A non-positive d fails immediately without calling op.
func RunWithDeadline[T any](ctx context.Context, d time.Duration, message string, op func(context.Context) (T, error)) (T, error) {
	var zero T
	timeoutErr := &contracts.TimeoutError{Message: message, Timeout: d}

	if d <= 0 {
		return zero, timeoutErr
	}

	deadlineCtx, cancel := context.WithTimeoutCause(ctx, d, timeoutErr)
	defer cancel()

	result, err := op(deadlineCtx)
	if deadlineCtx.Err() != nil && context.Cause(deadlineCtx) == error(timeoutErr) {
		return zero, timeoutErr
	}
	return result, err
}
