package httpclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// MaxTimeout is the largest whole-millisecond timeout a call accepts:
// 2^32-1 milliseconds. Anything below 2^32 milliseconds is accepted.
const MaxTimeout = (1<<32 - 1) * time.Millisecond

// timeoutLimit is the first rejected timeout.
const timeoutLimit = (1 << 32) * time.Millisecond

// Timer schedules a function after a delay.
type Timer interface {
	AfterFunc(d time.Duration, f func()) Stopper
}

// Stopper disarms a scheduled function. Stop reports whether the call
// prevented the function from running.
type Stopper interface {
	Stop() bool
}

// systemTimer schedules with time.AfterFunc.
type systemTimer struct{}

func (systemTimer) AfterFunc(d time.Duration, f func()) Stopper {
	return time.AfterFunc(d, f)
}

// validateTimeout rejects timeouts the timer cannot represent.
func validateTimeout(d time.Duration) error {
	if d >= timeoutLimit {
		return &ValidationError{
			Field:  "timeout",
			Value:  d,
			Reason: fmt.Sprintf("can't use %s as timeout, max value is %s", d, MaxTimeout),
		}
	}
	return nil
}

// cancelMode tells who owns cancellation of a request.
type cancelMode int

const (
	// cancelNone: only the parent context can cancel the request.
	cancelNone cancelMode = iota
	// cancelSignal: a caller-supplied signal, no timer.
	cancelSignal
	// cancelTimer: an internally owned timer and controller.
	cancelTimer
)

func (m cancelMode) String() string {
	switch m {
	case cancelSignal:
		return "signal"
	case cancelTimer:
		return "timer"
	default:
		return "none"
	}
}

// cancellation is the cancellation state of one call.
//
// disarm stops whatever can still fire (the timer, or the signal hook).
// release additionally frees the controller; after release the request
// context is done. Both are idempotent.
type cancellation struct {
	mode cancelMode
	ctx  context.Context

	cancel context.CancelCauseFunc
	timer  Stopper
	hook   func() bool

	once sync.Once
}

// armCancellation derives the request context for cfg from parent.
//
// An explicit signal always wins and no timer is created for it. Otherwise
// a positive timeout arms a timer that cancels with ErrTimeout.
func armCancellation(parent context.Context, cfg Config) *cancellation {
	if signal, ok := cfg.Signal(); ok {
		ctx, cancel := context.WithCancelCause(parent)
		c := &cancellation{mode: cancelSignal, ctx: ctx, cancel: cancel}
		if signal.Err() != nil {
			cancel(context.Cause(signal))
			return c
		}
		c.hook = context.AfterFunc(signal, func() {
			cancel(context.Cause(signal))
		})
		return c
	}

	if d := cfg.Timeout(); d > 0 {
		ctx, cancel := context.WithCancelCause(parent)
		c := &cancellation{mode: cancelTimer, ctx: ctx, cancel: cancel}
		c.timer = cfg.timerOrDefault().AfterFunc(d, func() {
			cancel(ErrTimeout)
		})
		return c
	}

	return &cancellation{mode: cancelNone, ctx: parent}
}

// disarmTimer stops the timeout timer. The signal hook, if any, stays in
// place so the caller can still cancel reading the response body.
func (c *cancellation) disarmTimer() {
	if c.timer != nil {
		c.timer.Stop()
	}
}

// release stops everything and frees the controller.
func (c *cancellation) release() {
	c.once.Do(func() {
		c.disarmTimer()
		if c.hook != nil {
			c.hook()
		}
		if c.cancel != nil {
			c.cancel(nil)
		}
	})
}

// cause rewrites a transport error caused by our own cancellation so that
// its chain carries the cancellation cause (e.g. ErrTimeout).
func (c *cancellation) cause(err error) error {
	if err == nil || c.ctx.Err() == nil {
		return err
	}
	cause := context.Cause(c.ctx)
	if cause == nil || errors.Is(err, cause) {
		return err
	}
	return fmt.Errorf("%w: %w", cause, err)
}
