package pool

import (
	"errors"
	"fmt"

	"github.com/Hubmakerlabs/relaycore/pkg/nostr/frame"
)

// ErrNoRelays is the cause of a PublishError from an empty pool.
var ErrNoRelays = errors.New("no relays in pool")

// Outcome is how one relay answered a publish.
type Outcome struct {
	URL string
	OK  *frame.OK
	Err error
}

// PublishError means no relay accepted the event. Err combines every
// relay's cause so errors.Is and errors.As see through it.
type PublishError struct {
	EventID  string
	Outcomes []Outcome
	Err      error
}

func (e *PublishError) Error() string {
	if errors.Is(e.Err, ErrNoRelays) && len(e.Outcomes) == 0 {
		return fmt.Sprintf("publish %s: %v", e.EventID, e.Err)
	}
	return fmt.Sprintf("publish %s failed on all %d relays: %v",
		e.EventID, len(e.Outcomes), e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }
