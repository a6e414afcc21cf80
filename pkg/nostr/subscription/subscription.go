// Package subscription turns a query client's stream into a channel of
// decoded values that runs until it is unsubscribed or its relay fails.
package subscription

import (
	"errors"
	"os"
	"sync"
	"time"

	"github.com/Hubmakerlabs/relaycore/pkg/context"
	"github.com/Hubmakerlabs/relaycore/pkg/nostr/frame"
	"github.com/Hubmakerlabs/relaycore/pkg/nostr/query"
	"github.com/Hubmakerlabs/relaycore/pkg/slog"
	"github.com/nbd-wtf/go-nostr"
)

var log, chk = slog.New(os.Stderr)

// Buffer is the capacity of the Events channel.
const Buffer = 64

const closeTimeout = 2 * time.Second

// Decoder turns an EVENT or EVENTS frame into a value. Returning false drops
// the frame.
type Decoder[E any] func(f frame.T) (E, bool)

type T[E any] struct {
	cl     *query.Client
	mx     sync.Mutex
	id     string
	events chan E
	done   chan struct{}
	cancel context.F
	once   sync.Once
}

// New starts streaming payload under id on cl. Frames other than EVENT and
// EVENTS are not decoded; EOSE and NOTICE are logged and the stream goes on.
// A CLOSED or a transport failure ends the subscription.
func New[E any](cl *query.Client, id string, payload any, decode Decoder[E]) (s *T[E]) {
	c, cancel := context.Cancel(context.Bg())
	s = &T[E]{
		cl:     cl,
		id:     id,
		events: make(chan E, Buffer),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	go s.run(c, id, payload, decode)
	return
}

// ID is the correlation id, or "" after Unsubscribe.
func (s *T[E]) ID() string {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.id
}

// Events is closed when the subscription ends.
func (s *T[E]) Events() <-chan E { return s.events }

// Done is closed when the background goroutine has exited.
func (s *T[E]) Done() <-chan struct{} { return s.done }

// Unsubscribe stops the subscription and sends a single CLOSE. It may be
// called any number of times from any goroutine.
func (s *T[E]) Unsubscribe() {
	s.once.Do(func() {
		s.cancel()
		<-s.done
		s.mx.Lock()
		id := s.id
		s.id = ""
		s.mx.Unlock()
		c, cancel := context.Timeout(context.Bg(), closeTimeout)
		defer cancel()
		s.cl.CloseSubscription(c, id)
	})
}

func (s *T[E]) run(c context.T, id string, payload any, decode Decoder[E]) {
	defer close(s.done)
	defer close(s.events)
	st, err := s.cl.Stream(c, id, payload)
	if err != nil {
		if c.Err() == nil {
			log.E.F("{%s} subscription %s: %v", s.cl.URL(), id, err)
		}
		return
	}
	defer st.Release()
	for {
		var f frame.T
		if f, err = st.Next(c); err != nil {
			if !errors.Is(err, context.Canceled) {
				log.E.F("{%s} subscription %s ended: %v", s.cl.URL(), id, err)
			}
			return
		}
		switch v := f.(type) {
		case *frame.Event, *frame.Events:
			e, ok := decode(v)
			if !ok {
				log.T.F("{%s} subscription %s: dropped undecodable %s",
					s.cl.URL(), id, v.Label())
				continue
			}
			select {
			case s.events <- e:
			case <-c.Done():
				return
			}
		case *frame.EOSE:
			log.D.F("{%s} subscription %s: end of stored events", s.cl.URL(), id)
		case *frame.Notice:
			log.W.F("{%s} NOTICE during subscription %s: %s", s.cl.URL(), id, v.Message)
		}
	}
}

// NostrEvent decodes single EVENT frames carrying a nostr event.
func NostrEvent(f frame.T) (ev *nostr.Event, ok bool) {
	if e, isEvent := f.(*frame.Event); isEvent && e.Nostr != nil {
		return e.Nostr, true
	}
	return
}

// NostrEvents decodes EVENT and EVENTS frames into the nostr events they
// carry, skipping cache-server events.
func NostrEvents(f frame.T) (evs []*nostr.Event, ok bool) {
	switch v := f.(type) {
	case *frame.Event:
		if v.Nostr != nil {
			evs = append(evs, v.Nostr)
		}
	case *frame.Events:
		evs = v.Nostr
	}
	return evs, len(evs) > 0
}
