package router

import (
	"errors"
	"sync"

	"github.com/Hubmakerlabs/relaycore/pkg/context"
	"github.com/Hubmakerlabs/relaycore/pkg/nostr/socket"
)

// ErrReleased is returned by Next after the inbox was released.
var ErrReleased = errors.New("inbox released")

// Inbox is the queue of messages for one correlation id (or one event id for
// OK frames). Delivery never blocks the socket reader; messages come out in
// the order the socket received them.
type Inbox struct {
	key    string
	table  *table
	mx     sync.Mutex
	queue  []*socket.Message
	signal chan struct{}
	done   chan struct{}
	once   sync.Once
}

func newInbox(key string, t *table) *Inbox {
	return &Inbox{
		key:    key,
		table:  t,
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Key is the correlation id or event id the inbox was registered under.
func (in *Inbox) Key() string { return in.key }

func (in *Inbox) push(m *socket.Message) {
	in.mx.Lock()
	select {
	case <-in.done:
		in.mx.Unlock()
		return
	default:
	}
	in.queue = append(in.queue, m)
	in.mx.Unlock()
	select {
	case in.signal <- struct{}{}:
	default:
	}
}

// Next returns the oldest queued message, waiting for one if needed.
func (in *Inbox) Next(c context.T) (m *socket.Message, err error) {
	for {
		in.mx.Lock()
		if len(in.queue) > 0 {
			m = in.queue[0]
			in.queue[0] = nil
			in.queue = in.queue[1:]
			in.mx.Unlock()
			return
		}
		in.mx.Unlock()
		select {
		case <-in.signal:
		case <-in.done:
			return nil, ErrReleased
		case <-c.Done():
			return nil, c.Err()
		}
	}
}

// Release unregisters the inbox so its id can be used again. Further frames
// for the id are dropped.
func (in *Inbox) Release() {
	in.once.Do(func() {
		in.table.remove(in)
		in.mx.Lock()
		close(in.done)
		in.queue = nil
		in.mx.Unlock()
	})
}
