package query

import (
	"errors"
	"fmt"
)

var (
	// ErrNoMessagesReceived means the query deadline passed without a
	// single frame for the correlation id.
	ErrNoMessagesReceived = errors.New("no messages received")
	// ErrAckTimeout means no OK arrived for a published event in time.
	ErrAckTimeout = errors.New("no OK received before timeout")
)

// NoticeError carries the reason of a NOTICE or CLOSED that ended a
// request.
type NoticeError struct {
	Reason string
}

func (e *NoticeError) Error() string { return fmt.Sprintf("relay notice: %s", e.Reason) }

// RejectedError is an OK frame with success false.
type RejectedError struct {
	EventID string
	Reason  string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("event %s rejected: %s", e.EventID, e.Reason)
}
