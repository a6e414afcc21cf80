// Package frame is the JSON array codec for messages exchanged with relays
// and the Primal cache server.
//
// Outgoing:
//
//	["REQ", <correlation id>, <filter or cache request>]
//	["CLOSE", <correlation id>]
//	["EVENT", <signed event>]
//
// Incoming frames decode into one of the pointer types in this package, all
// of which implement T.
package frame

import (
	"github.com/nbd-wtf/go-nostr"
)

const (
	LabelReq    = "REQ"
	LabelClose  = "CLOSE"
	LabelEvent  = "EVENT"
	LabelEvents = "EVENTS"
	LabelEOSE   = "EOSE"
	LabelOK     = "OK"
	LabelNotice = "NOTICE"
	LabelClosed = "CLOSED"
	LabelAuth   = "AUTH"
	LabelCount  = "COUNT"
)

// PrimalKindBase is the lowest kind number the cache server uses for its own
// synthetic events. Anything below is a regular nostr event.
const PrimalKindBase = 10_000_000

// T is any decoded incoming frame.
type T interface {
	Label() string
}

// PrimalEvent is a cache-server event. These are not signed and carry
// aggregated data (profile stats, feed ranges and so on) in Content.
type PrimalEvent struct {
	ID        string     `json:"id,omitempty"`
	PubKey    string     `json:"pubkey,omitempty"`
	CreatedAt int64      `json:"created_at,omitempty"`
	Kind      int        `json:"kind"`
	Tags      [][]string `json:"tags,omitempty"`
	Content   string     `json:"content"`
}

// Event is a single event delivered for a subscription. Exactly one of Nostr
// and Primal is set.
type Event struct {
	SubscriptionID string
	Nostr          *nostr.Event
	Primal         *PrimalEvent
}

func (*Event) Label() string { return LabelEvent }

// Events is a batch of events delivered for a subscription in one frame.
type Events struct {
	SubscriptionID string
	Nostr          []*nostr.Event
	Primal         []*PrimalEvent
}

func (*Events) Label() string { return LabelEvents }

// EOSE marks the end of stored events for a subscription and terminates a
// query.
type EOSE struct {
	SubscriptionID string
}

func (*EOSE) Label() string { return LabelEOSE }

// OK is the relay's verdict on a published event. It is correlated by event
// id, not by a subscription id.
type OK struct {
	EventID string
	Success bool
	Message string
}

func (*OK) Label() string { return LabelOK }

// Notice is an uncorrelated human readable message from the relay.
type Notice struct {
	Message string
}

func (*Notice) Label() string { return LabelNotice }

// Closed is a relay refusing or ending a subscription.
type Closed struct {
	SubscriptionID string
	Message        string
}

func (*Closed) Label() string { return LabelClosed }

// Auth is a NIP-42 challenge. Authentication is not performed by this
// library, the frame is decoded so it can be logged and dropped.
type Auth struct {
	Challenge string
}

func (*Auth) Label() string { return LabelAuth }

// Count is a NIP-45 count result.
type Count struct {
	SubscriptionID string
	Count          int64
}

func (*Count) Label() string { return LabelCount }

// CorrelationID returns the id that scopes f, or "" when f is not tied to a
// request (NOTICE, AUTH) or is correlated by event id (OK).
func CorrelationID(f T) string {
	switch v := f.(type) {
	case *Event:
		return v.SubscriptionID
	case *Events:
		return v.SubscriptionID
	case *EOSE:
		return v.SubscriptionID
	case *Closed:
		return v.SubscriptionID
	case *Count:
		return v.SubscriptionID
	}
	return ""
}

// IsTerminal reports whether f ends a query's collection.
func IsTerminal(f T) bool {
	switch f.(type) {
	case *EOSE, *Closed, *Notice:
		return true
	}
	return false
}
