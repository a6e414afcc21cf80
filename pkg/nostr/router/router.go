// Package router demultiplexes one socket's incoming frames to the callers
// waiting on them. Subscription frames are keyed by correlation id, OK frames
// by event id; NOTICE and transport failures go to every waiting caller on
// the socket.
package router

import (
	"errors"
	"os"

	"github.com/Hubmakerlabs/relaycore/pkg/nostr/frame"
	"github.com/Hubmakerlabs/relaycore/pkg/nostr/socket"
	"github.com/Hubmakerlabs/relaycore/pkg/slog"
	"github.com/puzpuzpuz/xsync/v2"
)

var log, chk = slog.New(os.Stderr)

// ErrPending is returned when an id is registered while an earlier
// registration under the same id has not been released.
var ErrPending = errors.New("id already has a pending request")

type table struct {
	m *xsync.MapOf[string, *Inbox]
}

func (t *table) remove(in *Inbox) {
	t.m.Compute(in.key, func(old *Inbox, loaded bool) (*Inbox, bool) {
		// only drop the entry if it is still this inbox
		return old, !loaded || old == in
	})
}

func (t *table) register(key string) (in *Inbox, err error) {
	in = newInbox(key, t)
	if _, loaded := t.m.LoadOrStore(key, in); loaded {
		return nil, ErrPending
	}
	return
}

type T struct {
	sock *socket.T
	ln   *socket.Listener
	subs *table
	oks  *table
	done chan struct{}
}

// New starts routing the frames of s. The router listens from this point on,
// so it must exist before anything is sent on s.
func New(s *socket.T) (rt *T) {
	rt = &T{
		sock: s,
		ln:   s.Listen(),
		subs: &table{m: xsync.NewMapOf[*Inbox]()},
		oks:  &table{m: xsync.NewMapOf[*Inbox]()},
		done: make(chan struct{}),
	}
	go rt.pump()
	return
}

// Register opens the inbox for a correlation id. Call it before sending the
// REQ so that no response can arrive unobserved.
func (rt *T) Register(id string) (*Inbox, error) { return rt.subs.register(id) }

// AwaitOK opens the inbox for the OK answering the event with the given id.
func (rt *T) AwaitOK(eventID string) (*Inbox, error) { return rt.oks.register(eventID) }

// Pending reports how many inboxes are registered.
func (rt *T) Pending() int { return rt.subs.m.Size() + rt.oks.m.Size() }

// Close stops routing. Registered inboxes receive ErrConnectionClosed.
func (rt *T) Close() { rt.ln.Close() }

// Done is closed once the router has stopped.
func (rt *T) Done() <-chan struct{} { return rt.done }

func (rt *T) pump() {
	defer close(rt.done)
	for {
		select {
		case m := <-rt.ln.C():
			rt.dispatch(m)
		case <-rt.ln.Done():
			// deliver whatever was read before the close
			for {
				select {
				case m := <-rt.ln.C():
					rt.dispatch(m)
					continue
				default:
				}
				break
			}
			rt.all(&socket.Message{Err: socket.ErrConnectionClosed})
			return
		}
	}
}

func (rt *T) all(m *socket.Message) {
	for _, t := range []*table{rt.subs, rt.oks} {
		t.m.Range(func(_ string, in *Inbox) bool {
			in.push(m)
			return true
		})
	}
}

func (rt *T) dispatch(m *socket.Message) {
	if m.Err != nil {
		rt.all(m)
		return
	}
	switch f := m.Frame.(type) {
	case *frame.Notice:
		log.D.F("{%s} NOTICE: %s", rt.sock.URL, f.Message)
		rt.all(m)
	case *frame.OK:
		if in, ok := rt.oks.m.Load(f.EventID); ok {
			in.push(m)
			return
		}
		log.D.F("{%s} OK for unknown event %s", rt.sock.URL, f.EventID)
	case *frame.Auth:
		log.D.F("{%s} ignoring AUTH challenge", rt.sock.URL)
	default:
		id := frame.CorrelationID(f)
		if in, ok := rt.subs.m.Load(id); ok {
			in.push(m)
			return
		}
		log.D.F("{%s} no subscription with id '%s' for %s", rt.sock.URL, id, f.Label())
	}
}
