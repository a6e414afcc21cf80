// Package relaytest runs scriptable in-process relays for tests. Each relay
// records every message it receives and answers through the handlers it was
// created with; a nil handler means the relay stays silent.
package relaytest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"

	"github.com/Hubmakerlabs/relaycore/pkg/slog"
	"github.com/fasthttp/websocket"
	"github.com/nbd-wtf/go-nostr"
	"github.com/tidwall/gjson"
)

var log, chk = slog.New(os.Stderr)

// Handlers script the relay's answers. They run on the connection's read
// goroutine.
type Handlers struct {
	OnReq   func(c *Conn, id string, filters []json.RawMessage)
	OnClose func(c *Conn, id string)
	OnEvent func(c *Conn, ev *nostr.Event)
}

type Relay struct {
	URL      string
	srv      *httptest.Server
	upgrader websocket.Upgrader
	h        Handlers
	mx       sync.Mutex
	conns    map[*Conn]struct{}
	accepted int
	received [][]byte
}

// New starts a relay listening on a loopback port.
func New(h Handlers) (r *Relay) {
	r = &Relay{
		h:     h,
		conns: make(map[*Conn]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	r.srv = httptest.NewServer(http.HandlerFunc(r.serve))
	r.URL = "ws" + strings.TrimPrefix(r.srv.URL, "http")
	return
}

func (r *Relay) serve(w http.ResponseWriter, req *http.Request) {
	ws, err := r.upgrader.Upgrade(w, req, nil)
	if chk.E(err) {
		return
	}
	c := &Conn{ws: ws, r: r}
	r.mx.Lock()
	r.conns[c] = struct{}{}
	r.accepted++
	r.mx.Unlock()
	go c.read()
}

// Close drops every connection and stops the listener.
func (r *Relay) Close() {
	r.Drop()
	r.srv.Close()
}

// Drop closes every open connection while the relay keeps accepting new
// ones.
func (r *Relay) Drop() {
	r.mx.Lock()
	conns := make([]*Conn, 0, len(r.conns))
	for c := range r.conns {
		conns = append(conns, c)
	}
	r.mx.Unlock()
	for _, c := range conns {
		chk.D(c.Close())
	}
}

// Broadcast sends the message to every open connection.
func (r *Relay) Broadcast(v ...any) {
	r.mx.Lock()
	defer r.mx.Unlock()
	for c := range r.conns {
		chk.D(c.Send(v...))
	}
}

// Accepted is the number of websocket handshakes completed so far.
func (r *Relay) Accepted() int {
	r.mx.Lock()
	defer r.mx.Unlock()
	return r.accepted
}

// Open is the number of connections currently open.
func (r *Relay) Open() int {
	r.mx.Lock()
	defer r.mx.Unlock()
	return len(r.conns)
}

// Received returns a copy of every message read so far, in order.
func (r *Relay) Received() (msgs []string) {
	r.mx.Lock()
	defer r.mx.Unlock()
	for _, b := range r.received {
		msgs = append(msgs, string(b))
	}
	return
}

// Count returns how many received messages carry the given label.
func (r *Relay) Count(label string) (n int) {
	r.mx.Lock()
	defer r.mx.Unlock()
	for _, b := range r.received {
		if gjson.GetBytes(b, "0").Str == label {
			n++
		}
	}
	return
}

// Conn is the relay side of one client connection.
type Conn struct {
	ws *websocket.Conn
	r  *Relay
	mx sync.Mutex
}

// Send writes the values as one JSON array message.
func (c *Conn) Send(v ...any) (err error) {
	var b []byte
	if b, err = json.Marshal(v); chk.E(err) {
		return
	}
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, b)
}

func (c *Conn) Event(id string, ev any) error { return c.Send("EVENT", id, ev) }

func (c *Conn) Events(id string, evs ...any) error { return c.Send("EVENTS", id, evs) }

func (c *Conn) EOSE(id string) error { return c.Send("EOSE", id) }

func (c *Conn) OK(eventID string, ok bool, msg string) error {
	return c.Send("OK", eventID, ok, msg)
}

func (c *Conn) Notice(msg string) error { return c.Send("NOTICE", msg) }

func (c *Conn) Closed(id, msg string) error { return c.Send("CLOSED", id, msg) }

// Close drops the connection without a closing handshake.
func (c *Conn) Close() error { return c.ws.Close() }

func (c *Conn) read() {
	defer func() {
		c.r.mx.Lock()
		delete(c.r.conns, c)
		c.r.mx.Unlock()
		chk.D(c.ws.Close())
	}()
	for {
		_, b, err := c.ws.ReadMessage()
		if err != nil {
			log.T.F("relaytest: read: %v", err)
			return
		}
		c.r.mx.Lock()
		c.r.received = append(c.r.received, b)
		c.r.mx.Unlock()
		c.dispatch(b)
	}
}

func (c *Conn) dispatch(b []byte) {
	a := gjson.ParseBytes(b).Array()
	if len(a) < 2 {
		return
	}
	h := c.r.h
	switch a[0].Str {
	case "REQ":
		if h.OnReq == nil {
			return
		}
		var filters []json.RawMessage
		for _, f := range a[2:] {
			filters = append(filters, json.RawMessage(f.Raw))
		}
		h.OnReq(c, a[1].Str, filters)
	case "CLOSE":
		if h.OnClose != nil {
			h.OnClose(c, a[1].Str)
		}
	case "EVENT":
		if h.OnEvent == nil {
			return
		}
		ev := &nostr.Event{}
		if err := json.Unmarshal([]byte(a[1].Raw), ev); chk.E(err) {
			return
		}
		h.OnEvent(c, ev)
	}
}

// Reply answers every REQ with the given events followed by EOSE.
func Reply(evs ...*nostr.Event) func(c *Conn, id string, _ []json.RawMessage) {
	return func(c *Conn, id string, _ []json.RawMessage) {
		for _, ev := range evs {
			chk.D(c.Event(id, ev))
		}
		chk.D(c.EOSE(id))
	}
}

// Accept answers every EVENT with a successful OK.
func Accept(c *Conn, ev *nostr.Event) { chk.D(c.OK(ev.ID, true, "")) }

// Reject answers every EVENT with a failed OK carrying reason.
func Reject(reason string) func(c *Conn, ev *nostr.Event) {
	return func(c *Conn, ev *nostr.Event) { chk.D(c.OK(ev.ID, false, reason)) }
}

// TextNote builds a signed kind 1 event from a fresh key.
func TextNote(content string) (ev *nostr.Event) {
	ev = &nostr.Event{
		Kind:      nostr.KindTextNote,
		Content:   content,
		CreatedAt: nostr.Now(),
		Tags:      nostr.Tags{},
	}
	if err := ev.Sign(nostr.GeneratePrivateKey()); chk.E(err) {
		panic(err)
	}
	return
}
