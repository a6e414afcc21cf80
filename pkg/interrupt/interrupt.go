// Package interrupt turns termination signals into context cancellation and
// runs shutdown handlers in reverse order of registration.
package interrupt

import (
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/Hubmakerlabs/relaycore/pkg/context"
	"github.com/Hubmakerlabs/relaycore/pkg/slog"
)

var log, chk = slog.New(os.Stderr)

type handler struct {
	source string
	fn     func()
}

type T struct {
	c         context.T
	cancel    context.F
	mx        sync.Mutex
	handlers  []handler
	requested atomic.Bool
	sigs      chan os.Signal
	done      chan struct{}
}

// New listens for the given signals, os.Interrupt when none are given. The
// returned T's context is cancelled on the first signal, on Request, or
// when parent is done.
func New(parent context.T, signals ...os.Signal) (t *T) {
	if len(signals) == 0 {
		signals = []os.Signal{os.Interrupt}
	}
	t = &T{
		sigs: make(chan os.Signal, 1),
		done: make(chan struct{}),
	}
	t.c, t.cancel = context.Cancel(parent)
	signal.Notify(t.sigs, signals...)
	go t.listen()
	return
}

func (t *T) listen() {
	select {
	case sig := <-t.sigs:
		log.D.Ln("received interrupt signal", sig)
	case <-t.c.Done():
		log.D.Ln("shutdown requested")
	}
	signal.Stop(t.sigs)
	t.requested.Store(true)
	t.cancel()
	t.mx.Lock()
	handlers := t.handlers
	t.handlers = nil
	t.mx.Unlock()
	// last registered runs first
	for i := len(handlers) - 1; i >= 0; i-- {
		log.D.Ln("running shutdown handler", i, handlers[i].source)
		handlers[i].fn()
	}
	log.D.Ln("shutdown handlers finished")
	close(t.done)
}

// Context is cancelled when shutdown starts.
func (t *T) Context() context.T { return t.c }

// AddHandler registers fn to run at shutdown. Handlers added after shutdown
// started are not run.
func (t *T) AddHandler(fn func()) {
	_, file, line, _ := runtime.Caller(1)
	src := file + ":" + strconv.Itoa(line)
	log.T.Ln("shutdown handler added by", src)
	t.mx.Lock()
	defer t.mx.Unlock()
	t.handlers = append(t.handlers, handler{source: src, fn: fn})
}

// Request starts shutdown as if a signal had arrived.
func (t *T) Request() {
	if t.requested.Swap(true) {
		return
	}
	t.cancel()
}

// Requested reports whether shutdown has started.
func (t *T) Requested() bool { return t.requested.Load() }

// Done is closed after every handler has returned.
func (t *T) Done() <-chan struct{} { return t.done }
