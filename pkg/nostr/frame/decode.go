package frame

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/Hubmakerlabs/relaycore/pkg/slog"
	"github.com/nbd-wtf/go-nostr"
	"github.com/tidwall/gjson"
)

var log, chk = slog.New(os.Stderr)

var (
	ErrMalformed    = errors.New("frame: malformed message")
	ErrUnknownLabel = errors.New("frame: unknown label")
)

// Decode identifies the label of a relay message and unmarshals it into the
// matching frame type.
func Decode(b []byte) (f T, err error) {
	if !gjson.ValidBytes(b) {
		return nil, ErrMalformed
	}
	msg := gjson.ParseBytes(b)
	if !msg.IsArray() {
		return nil, ErrMalformed
	}
	a := msg.Array()
	if len(a) == 0 || a[0].Type != gjson.String {
		return nil, ErrMalformed
	}
	switch a[0].Str {
	case LabelEvent:
		if len(a) < 3 || a[1].Type != gjson.String || !a[2].IsObject() {
			return nil, fmt.Errorf("%w: %s", ErrMalformed, LabelEvent)
		}
		ev := &Event{SubscriptionID: a[1].Str}
		if ev.Nostr, ev.Primal, err = decodeEvent(a[2].Raw); err != nil {
			return
		}
		return ev, nil
	case LabelEvents:
		if len(a) < 3 || a[1].Type != gjson.String || !a[2].IsArray() {
			return nil, fmt.Errorf("%w: %s", ErrMalformed, LabelEvents)
		}
		evs := &Events{SubscriptionID: a[1].Str}
		for i, item := range a[2].Array() {
			n, p, e := decodeEvent(item.Raw)
			if chk.D(e) {
				log.D.F("skipping item %d of %s batch %s", i, LabelEvents, evs.SubscriptionID)
				continue
			}
			if n != nil {
				evs.Nostr = append(evs.Nostr, n)
			} else {
				evs.Primal = append(evs.Primal, p)
			}
		}
		return evs, nil
	case LabelEOSE:
		if len(a) < 2 || a[1].Type != gjson.String {
			return nil, fmt.Errorf("%w: %s", ErrMalformed, LabelEOSE)
		}
		return &EOSE{SubscriptionID: a[1].Str}, nil
	case LabelOK:
		if len(a) < 3 || a[1].Type != gjson.String || !a[2].IsBool() {
			return nil, fmt.Errorf("%w: %s", ErrMalformed, LabelOK)
		}
		ok := &OK{EventID: a[1].Str, Success: a[2].Bool()}
		if len(a) > 3 {
			ok.Message = a[3].String()
		}
		return ok, nil
	case LabelNotice:
		if len(a) < 2 {
			return nil, fmt.Errorf("%w: %s", ErrMalformed, LabelNotice)
		}
		return &Notice{Message: a[1].String()}, nil
	case LabelClosed:
		if len(a) < 2 || a[1].Type != gjson.String {
			return nil, fmt.Errorf("%w: %s", ErrMalformed, LabelClosed)
		}
		c := &Closed{SubscriptionID: a[1].Str}
		if len(a) > 2 {
			c.Message = a[2].String()
		}
		return c, nil
	case LabelAuth:
		if len(a) < 2 || a[1].Type != gjson.String {
			return nil, fmt.Errorf("%w: %s", ErrMalformed, LabelAuth)
		}
		return &Auth{Challenge: a[1].Str}, nil
	case LabelCount:
		if len(a) < 3 || a[1].Type != gjson.String {
			return nil, fmt.Errorf("%w: %s", ErrMalformed, LabelCount)
		}
		return &Count{SubscriptionID: a[1].Str, Count: a[2].Get("count").Int()}, nil
	}
	return nil, fmt.Errorf("%w: '%s'", ErrUnknownLabel, a[0].Str)
}

func decodeEvent(raw string) (n *nostr.Event, p *PrimalEvent, err error) {
	if gjson.Get(raw, "kind").Int() >= PrimalKindBase {
		p = &PrimalEvent{}
		if err = json.Unmarshal([]byte(raw), p); err != nil {
			return nil, nil, fmt.Errorf("%w: primal event: %v", ErrMalformed, err)
		}
		return
	}
	n = &nostr.Event{}
	if err = json.Unmarshal([]byte(raw), n); err != nil {
		return nil, nil, fmt.Errorf("%w: event: %v", ErrMalformed, err)
	}
	return
}
