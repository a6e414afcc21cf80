// Package query runs correlated request/response exchanges on top of one
// socket: bounded queries collected until end of stored events, open-ended
// streams, and event publication answered by OK.
package query

import (
	"errors"
	"os"
	"time"

	"github.com/Hubmakerlabs/relaycore/pkg/context"
	"github.com/Hubmakerlabs/relaycore/pkg/nostr/frame"
	"github.com/Hubmakerlabs/relaycore/pkg/nostr/router"
	"github.com/Hubmakerlabs/relaycore/pkg/nostr/socket"
	"github.com/Hubmakerlabs/relaycore/pkg/slog"
	"github.com/nbd-wtf/go-nostr"
)

var log, chk = slog.New(os.Stderr)

const (
	// Timeout bounds a whole query, send attempts included.
	Timeout = 15 * time.Second
	// AckTimeout bounds the wait for the OK answering a published event.
	AckTimeout = 30 * time.Second
	// RetryDelay is the pause between send attempts.
	RetryDelay = 500 * time.Millisecond
	// MaxAttempts is the number of times a message is tried before the
	// last send error is returned.
	MaxAttempts = 3
	// closeTimeout bounds the courtesy CLOSE after a query has ended.
	closeTimeout = 2 * time.Second
)

// overridden by tests
var (
	queryTimeout = Timeout
	ackTimeout   = AckTimeout
	retryDelay   = RetryDelay
)

// Result is what a finished query collected. Termination is the frame that
// ended it, or the last frame received when the deadline did.
type Result struct {
	Termination frame.T
	Nostr       []*nostr.Event
	Primal      []*frame.PrimalEvent
}

// Len is the number of events collected.
func (r *Result) Len() int { return len(r.Nostr) + len(r.Primal) }

func (r *Result) add(f frame.T) {
	switch v := f.(type) {
	case *frame.Event:
		if v.Nostr != nil {
			r.Nostr = append(r.Nostr, v.Nostr)
		} else if v.Primal != nil {
			r.Primal = append(r.Primal, v.Primal)
		}
	case *frame.Events:
		r.Nostr = append(r.Nostr, v.Nostr...)
		r.Primal = append(r.Primal, v.Primal...)
	}
}

type Client struct {
	sock *socket.T
	rt   *router.T
}

// New attaches a client to s. One client per socket: the client owns the
// socket's router.
func New(s *socket.T) *Client { return &Client{sock: s, rt: router.New(s)} }

func (cl *Client) Socket() *socket.T { return cl.sock }

func (cl *Client) URL() string { return cl.sock.URL }

// Close stops routing and closes the socket.
func (cl *Client) Close() {
	cl.rt.Close()
	cl.sock.Close()
}

// send connects if needed and writes msg, trying up to MaxAttempts times
// with RetryDelay in between. It returns the generation of the websocket
// that took msg, or the last attempt's error.
func (cl *Client) send(c context.T, msg []byte) (gen uint64, err error) {
	for attempt := 1; ; attempt++ {
		if err = cl.sock.EnsureConnected(c); err == nil {
			if gen, err = cl.sock.SendGeneration(c, msg); err == nil {
				return
			}
		}
		log.D.F("{%s} send attempt %d/%d failed: %v",
			cl.sock.URL, attempt, MaxAttempts, err)
		if attempt >= MaxAttempts || c.Err() != nil {
			return
		}
		if context.Sleep(c, retryDelay) != nil {
			return
		}
	}
}

// Query sends a REQ under id and collects the answer until EOSE, CLOSED or
// NOTICE, or until Timeout passes. A deadline with frames collected is not
// an error; a deadline with none is ErrNoMessagesReceived.
func (cl *Client) Query(c context.T, id string, payload any) (res *Result, err error) {
	var msg []byte
	if msg, err = frame.Req(id, payload); chk.E(err) {
		return
	}
	c, cancel := context.Timeout(c, queryTimeout)
	defer cancel()
	var in *router.Inbox
	if in, err = cl.rt.Register(id); err != nil {
		return
	}
	defer in.Release()
	var gen uint64
	if gen, err = cl.send(c, msg); err != nil {
		return nil, err
	}
	return cl.collect(c, id, in, gen)
}

// stale reports whether err is the drop of a websocket older than gen. A
// failed attempt leaves such an error queued after a retry has succeeded.
func stale(err error, gen uint64) bool {
	var de *socket.DisconnectError
	return errors.As(err, &de) && de.Generation < gen
}

// collect reads the answer to the REQ sent under id on generation gen.
func (cl *Client) collect(c context.T, id string, in *router.Inbox,
	gen uint64) (res *Result, err error) {

	res = &Result{}
	var frames int
	for {
		var m *socket.Message
		if m, err = in.Next(c); err != nil {
			if !errors.Is(err, context.Exceeded) {
				return nil, err
			}
			cl.closeQuietly(id)
			if frames == 0 {
				log.D.F("{%s} query %s: nothing received in %v", cl.sock.URL, id, queryTimeout)
				return nil, ErrNoMessagesReceived
			}
			return res, nil
		}
		if stale(m.Err, gen) {
			log.D.F("{%s} query %s: ignoring %v", cl.sock.URL, id, m.Err)
			continue
		}
		if m.Err != nil {
			return nil, m.Err
		}
		frames++
		res.Termination = m.Frame
		switch f := m.Frame.(type) {
		case *frame.Event, *frame.Events:
			res.add(f)
		case *frame.EOSE:
			cl.closeQuietly(id)
			return res, nil
		case *frame.Closed:
			return nil, &NoticeError{Reason: f.Message}
		case *frame.Notice:
			cl.closeQuietly(id)
			return nil, &NoticeError{Reason: f.Message}
		}
	}
}

// CloseSubscription sends CLOSE for id. Failures are logged and reported as
// false, never returned.
func (cl *Client) CloseSubscription(c context.T, id string) bool {
	msg, err := frame.Close(id)
	if chk.E(err) {
		return false
	}
	if err = cl.sock.Send(c, msg); chk.D(err) {
		return false
	}
	return true
}

func (cl *Client) closeQuietly(id string) {
	c, cancel := context.Timeout(context.Bg(), closeTimeout)
	defer cancel()
	cl.CloseSubscription(c, id)
}

// Stream is an open REQ whose frames are delivered one by one until the
// caller closes it.
type Stream struct {
	id  string
	gen uint64
	in  *router.Inbox
	cl  *Client
}

// Stream sends a REQ under id and returns without waiting for any answer.
// The send is retried like a query's but bounded only by c.
func (cl *Client) Stream(c context.T, id string, payload any) (s *Stream, err error) {
	var msg []byte
	if msg, err = frame.Req(id, payload); chk.E(err) {
		return
	}
	var in *router.Inbox
	if in, err = cl.rt.Register(id); err != nil {
		return
	}
	var gen uint64
	if gen, err = cl.send(c, msg); err != nil {
		in.Release()
		return
	}
	return &Stream{id: id, gen: gen, in: in, cl: cl}, nil
}

func (s *Stream) ID() string { return s.id }

// Next returns the next frame. A CLOSED becomes a NoticeError and a
// transport failure its error; NOTICE frames are returned as frames.
func (s *Stream) Next(c context.T) (f frame.T, err error) {
	var m *socket.Message
	for {
		if m, err = s.in.Next(c); err != nil {
			return
		}
		if !stale(m.Err, s.gen) {
			break
		}
	}
	if m.Err != nil {
		return nil, m.Err
	}
	if cf, ok := m.Frame.(*frame.Closed); ok {
		return nil, &NoticeError{Reason: cf.Message}
	}
	return m.Frame, nil
}

// Release frees the id without telling the relay.
func (s *Stream) Release() { s.in.Release() }

// Close releases the id and sends CLOSE.
func (s *Stream) Close(c context.T) bool {
	s.in.Release()
	return s.cl.CloseSubscription(c, s.id)
}

// Publish sends ev and waits up to AckTimeout for the relay's OK. An OK with
// success false is returned together with a RejectedError.
func (cl *Client) Publish(c context.T, ev *nostr.Event) (ok *frame.OK, err error) {
	var msg []byte
	if msg, err = frame.Publish(ev); chk.E(err) {
		return
	}
	c, cancel := context.Timeout(c, ackTimeout)
	defer cancel()
	var in *router.Inbox
	if in, err = cl.rt.AwaitOK(ev.ID); err != nil {
		return
	}
	defer in.Release()
	if err = cl.sock.EnsureConnected(c); err != nil {
		return
	}
	var gen uint64
	if gen, err = cl.sock.SendGeneration(c, msg); err != nil {
		return
	}
	for {
		var m *socket.Message
		if m, err = in.Next(c); err != nil {
			if errors.Is(err, context.Exceeded) {
				return nil, ErrAckTimeout
			}
			return
		}
		if stale(m.Err, gen) {
			continue
		}
		if m.Err != nil {
			return nil, m.Err
		}
		switch f := m.Frame.(type) {
		case *frame.OK:
			if !f.Success {
				return f, &RejectedError{EventID: f.EventID, Reason: f.Message}
			}
			return f, nil
		case *frame.Notice:
			return nil, &NoticeError{Reason: f.Message}
		}
	}
}
