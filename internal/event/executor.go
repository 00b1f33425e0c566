package event

import (
	"context"
	"errors"
	"runtime/debug"
	"time"
)

// result describes one handler invocation.
type result struct {
	err      error
	panicked bool
	timedOut bool
	duration time.Duration
}

func (r result) success() bool {
	return r.err == nil
}

// execute runs a handler with panic recovery.
func execute(ctx context.Context, h Handler, msg Message) (res result) {
	start := time.Now()
	defer func() {
		res.duration = time.Since(start)
		if r := recover(); r != nil {
			res.panicked = true
			res.err = &PanicError{Value: r, Stack: string(debug.Stack())}
		}
	}()

	res.err = h.Handle(ctx, msg)
	return res
}

// executeWithTimeout runs a handler and races it against timeout.
// On expiry the handler's context is cancelled and the invocation counts as
// failed; a handler that ignores its context keeps running in the background.
func executeWithTimeout(ctx context.Context, h Handler, msg Message, timeout time.Duration) result {
	if timeout <= 0 {
		return execute(ctx, h, msg)
	}

	hctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	done := make(chan result, 1)
	go func() {
		done <- execute(hctx, h, msg)
	}()

	select {
	case res := <-done:
		return res
	case <-hctx.Done():
		res := result{err: hctx.Err(), duration: time.Since(start)}
		if errors.Is(hctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			res.err = ErrHandlerTimeout
			res.timedOut = true
		}
		return res
	}
}

// safeFilter evaluates a filter, reporting a panic as a non-match.
func safeFilter(f FilterFunc, msg Message) (ok bool, panicked bool) {
	if f == nil {
		return true, false
	}
	defer func() {
		if r := recover(); r != nil {
			ok = false
			panicked = true
		}
	}()
	return f(msg), false
}
