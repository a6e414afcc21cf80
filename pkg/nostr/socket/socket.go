// Package socket owns the websocket to one relay. It decodes incoming
// messages into frames and broadcasts them to every listener, and funnels
// outgoing messages through a single writer goroutine.
//
// A socket does not reconnect by itself. After a transport failure the next
// EnsureConnected dials again; after Close it stays closed.
package socket

import (
	"bytes"
	"net/http"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Hubmakerlabs/relaycore/pkg/context"
	"github.com/Hubmakerlabs/relaycore/pkg/nostr/frame"
	"github.com/Hubmakerlabs/relaycore/pkg/slog"
	"github.com/puzpuzpuz/xsync/v2"
	"golang.org/x/sync/singleflight"
)

var log, chk = slog.New(os.Stderr)

const (
	// DialTimeout bounds one connection attempt, so that three attempts and
	// their backoff fit inside a query's deadline.
	DialTimeout  = 4 * time.Second
	PingInterval = 29 * time.Second
)

type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	}
	return "unknown"
}

// StatusHandler is called with true after a websocket opens and with false
// after it drops or is closed.
type StatusHandler func(url string, connected bool)

type Option func(*T)

// WithStatusHandler registers h for open and close transitions.
func WithStatusHandler(h StatusHandler) Option { return func(s *T) { s.onStatus = h } }

// WithRequestHeader sets headers sent with the websocket handshake, e.g.
// Origin or User-Agent.
func WithRequestHeader(h http.Header) Option { return func(s *T) { s.header = h } }

// WithDialTimeout overrides DialTimeout.
func WithDialTimeout(d time.Duration) Option { return func(s *T) { s.dialTimeout = d } }

type writeRequest struct {
	msg    []byte
	answer chan error
}

// link is the state of one physical connection.
type link struct {
	gen        uint64
	conn       *conn
	ctx        context.T
	cancel     context.F
	writeQueue chan writeRequest
}

type T struct {
	URL         string
	header      http.Header
	dialTimeout time.Duration
	onStatus    StatusHandler
	state       atomic.Int32
	connecting  singleflight.Group
	listeners   *xsync.MapOf[string, *Listener]
	listenerSeq atomic.Uint64
	gens        atomic.Uint64
	mx          sync.Mutex
	link        *link
	closed      bool
	done        chan struct{}
}

// New returns a disconnected socket for url. Nothing is dialled until
// EnsureConnected.
func New(url string, opts ...Option) (s *T) {
	s = &T{
		URL:         url,
		dialTimeout: DialTimeout,
		listeners:   xsync.NewMapOf[*Listener](),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return
}

func (s *T) String() string { return s.URL }

// State reports the current connection state.
func (s *T) State() State { return State(s.state.Load()) }

// IsConnected reports whether a websocket is open.
func (s *T) IsConnected() bool { return s.State() == Connected }

// Done is closed once Close has been called.
func (s *T) Done() <-chan struct{} { return s.done }

// EnsureConnected returns once a websocket is open. Concurrent callers share
// a single dial; the dial itself is bounded by the dial timeout, while c only
// bounds how long this caller waits for it.
func (s *T) EnsureConnected(c context.T) (err error) {
	if s.IsConnected() {
		return
	}
	ch := s.connecting.DoChan("connect", func() (any, error) {
		return nil, s.connect()
	})
	select {
	case r := <-ch:
		return r.Err
	case <-c.Done():
		return &ConnectError{URL: s.URL, Err: c.Err()}
	}
}

func (s *T) connect() (err error) {
	s.mx.Lock()
	if s.closed {
		s.mx.Unlock()
		return &ConnectError{URL: s.URL, Err: ErrConnectionClosed}
	}
	if s.link != nil {
		s.mx.Unlock()
		return
	}
	s.state.Store(int32(Connecting))
	s.mx.Unlock()
	c, cancel := context.Timeout(context.Bg(), s.dialTimeout)
	defer cancel()
	log.D.F("{%s} connecting", s.URL)
	var cn *conn
	if cn, err = dial(c, s.URL, s.header); chk.D(err) {
		s.state.Store(int32(Disconnected))
		return &ConnectError{URL: s.URL, Err: err}
	}
	lc, lcancel := context.Cancel(context.Bg())
	l := &link{
		gen:        s.gens.Add(1),
		conn:       cn,
		ctx:        lc,
		cancel:     lcancel,
		writeQueue: make(chan writeRequest),
	}
	s.mx.Lock()
	if s.closed {
		s.mx.Unlock()
		lcancel()
		chk.D(cn.Close())
		s.state.Store(int32(Disconnected))
		return &ConnectError{URL: s.URL, Err: ErrConnectionClosed}
	}
	s.link = l
	s.state.Store(int32(Connected))
	s.mx.Unlock()
	log.D.F("{%s} connected", s.URL)
	if s.onStatus != nil {
		s.onStatus(s.URL, true)
	}
	go s.writeLoop(l)
	go s.readLoop(l)
	return
}

// Send queues msg for the writer goroutine and waits until it has been
// written. It fails with a SendError when no websocket is open and never
// retries.
func (s *T) Send(c context.T, msg []byte) (err error) {
	_, err = s.SendGeneration(c, msg)
	return
}

// SendGeneration is Send that also returns the generation of the websocket
// msg was written to. Each successful dial starts a new generation, and a
// DisconnectError carries the generation that dropped.
func (s *T) SendGeneration(c context.T, msg []byte) (gen uint64, err error) {
	s.mx.Lock()
	l, closed := s.link, s.closed
	s.mx.Unlock()
	if closed {
		return 0, &SendError{URL: s.URL, Err: ErrConnectionClosed}
	}
	if l == nil {
		return 0, &SendError{URL: s.URL, Err: ErrNotConnected}
	}
	req := writeRequest{msg: msg, answer: make(chan error, 1)}
	select {
	case l.writeQueue <- req:
	case <-l.ctx.Done():
		return 0, &SendError{URL: s.URL, Err: ErrNotConnected}
	case <-c.Done():
		return 0, &SendError{URL: s.URL, Err: c.Err()}
	}
	log.T.F("{%s} sent %s", s.URL, msg)
	select {
	case err = <-req.answer:
		if err != nil {
			return 0, &SendError{URL: s.URL, Err: err}
		}
		return l.gen, nil
	case <-c.Done():
		return 0, &SendError{URL: s.URL, Err: c.Err()}
	}
}

// writeLoop is the only writer on the websocket.
func (s *T) writeLoop(l *link) {
	ticker := time.NewTicker(PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := l.conn.Ping(); chk.D(err) {
				log.E.F("{%s} error writing ping: %v; closing websocket", s.URL, err)
				s.drop(l, err)
				return
			}
		case req := <-l.writeQueue:
			err := l.conn.WriteMessage(req.msg)
			req.answer <- err
			if err != nil {
				s.drop(l, err)
				return
			}
		case <-l.ctx.Done():
			return
		}
	}
}

func (s *T) readLoop(l *link) {
	buf := new(bytes.Buffer)
	for {
		buf.Reset()
		if err := l.conn.ReadMessage(buf); err != nil {
			s.drop(l, err)
			return
		}
		log.T.F("{%s} received %s", s.URL, buf.Bytes())
		f, err := frame.Decode(buf.Bytes())
		if chk.D(err) {
			continue
		}
		s.broadcast(&Message{Frame: f})
	}
}

// drop tears down l if it is still the current link and tells listeners.
func (s *T) drop(l *link, cause error) {
	s.mx.Lock()
	if s.link != l {
		s.mx.Unlock()
		return
	}
	s.link = nil
	closed := s.closed
	s.state.Store(int32(Disconnected))
	s.mx.Unlock()
	l.cancel()
	chk.D(l.conn.Close())
	var err error = ErrConnectionClosed
	if !closed {
		log.D.F("{%s} dropped: %v", s.URL, cause)
		err = &DisconnectError{URL: s.URL, Generation: l.gen, Err: cause}
	}
	s.broadcast(&Message{Err: err})
	if s.onStatus != nil {
		s.onStatus(s.URL, false)
	}
}

// Close releases the websocket. It is safe to call more than once.
func (s *T) Close() {
	s.mx.Lock()
	if s.closed {
		s.mx.Unlock()
		return
	}
	s.closed = true
	l := s.link
	close(s.done)
	s.mx.Unlock()
	if l != nil {
		s.drop(l, ErrConnectionClosed)
	}
	s.listeners.Range(func(id string, ln *Listener) bool {
		ln.Close()
		return true
	})
}

// Listen registers a listener that receives every frame decoded from now on.
// Frames that arrived before the call are not replayed, so register before
// sending the message that triggers a response.
func (s *T) Listen() (ln *Listener) {
	ln = &Listener{
		id:   strconv.FormatUint(s.listenerSeq.Add(1), 10),
		c:    make(chan *Message, ListenerBuffer),
		done: make(chan struct{}),
		s:    s,
	}
	s.listeners.Store(ln.id, ln)
	return
}

func (s *T) broadcast(m *Message) {
	s.listeners.Range(func(_ string, ln *Listener) bool {
		ln.deliver(m)
		return true
	})
}
