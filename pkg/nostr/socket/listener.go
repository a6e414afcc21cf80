package socket

import (
	"sync"

	"github.com/Hubmakerlabs/relaycore/pkg/nostr/frame"
)

// ListenerBuffer is how many messages a listener holds before the reader
// waits on it.
const ListenerBuffer = 256

// Message is one item of a socket's incoming stream: either a frame or, when
// the websocket drops, the error that ended it.
type Message struct {
	Frame frame.T
	Err   error
}

// Listener receives a socket's incoming stream. Listeners stay registered
// across reconnects until Close.
type Listener struct {
	id   string
	c    chan *Message
	done chan struct{}
	once sync.Once
	s    *T
}

// C is the stream of messages. It is never closed; select on Done as well.
func (ln *Listener) C() <-chan *Message { return ln.c }

// Done is closed when the listener or its socket is closed.
func (ln *Listener) Done() <-chan struct{} { return ln.done }

// Close unregisters the listener.
func (ln *Listener) Close() {
	ln.once.Do(func() {
		ln.s.listeners.Delete(ln.id)
		close(ln.done)
	})
}

func (ln *Listener) deliver(m *Message) {
	select {
	case ln.c <- m:
	case <-ln.done:
	}
}
