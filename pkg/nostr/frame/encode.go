package frame

import (
	"encoding/json"
	"errors"

	"github.com/nbd-wtf/go-nostr"
)

var ErrEmptyID = errors.New("frame: empty correlation id")

// Req encodes a REQ. The payload is marshalled as is, so it can be a
// nostr.Filter, a cache request object or json.RawMessage.
func Req(id string, payload any) (b []byte, err error) {
	if id == "" {
		return nil, ErrEmptyID
	}
	if payload == nil {
		payload = struct{}{}
	}
	return json.Marshal([]any{LabelReq, id, payload})
}

// Close encodes a CLOSE for the given correlation id.
func Close(id string) (b []byte, err error) {
	if id == "" {
		return nil, ErrEmptyID
	}
	return json.Marshal([]any{LabelClose, id})
}

// Publish encodes an EVENT carrying a signed event.
func Publish(ev *nostr.Event) (b []byte, err error) {
	if ev == nil || ev.ID == "" {
		return nil, errors.New("frame: cannot publish an event without id")
	}
	return json.Marshal([]any{LabelEvent, ev})
}
