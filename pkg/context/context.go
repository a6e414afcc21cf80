// Package context shortens the standard library context names used all over
// relaycore and adds the cancellable sleep used between send attempts.
package context

import (
	"context"
	"time"
)

type (
	T = context.Context
	F = context.CancelFunc
	C = context.CancelCauseFunc
)

var (
	Bg          = context.Background
	Cancel      = context.WithCancel
	Timeout     = context.WithTimeout
	Deadline    = context.WithDeadline
	TODO        = context.TODO
	Value       = context.WithValue
	CancelCause = context.WithCancelCause
	Cause       = context.Cause
	Canceled    = context.Canceled
	Exceeded    = context.DeadlineExceeded
)

// Sleep waits for d or until c is done, whichever comes first. It returns the
// context error when c ended the wait.
func Sleep(c T, d time.Duration) (err error) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return
	case <-c.Done():
		return c.Err()
	}
}
