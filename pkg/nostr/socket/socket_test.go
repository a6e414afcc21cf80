package socket

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Hubmakerlabs/relaycore/pkg/context"
	"github.com/Hubmakerlabs/relaycore/pkg/nostr/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"
)

func newWebsocketServer(handler func(*websocket.Conn)) *httptest.Server {
	return httptest.NewServer(&websocket.Server{
		Handshake: anyOriginHandshake,
		Handler:   handler,
	})
}

// anyOriginHandshake is an alternative to default in golang.org/x/net/websocket
// which checks for origin. nostr clients send no origin.
var anyOriginHandshake = func(conf *websocket.Config, r *http.Request) error {
	return nil
}

func wsURL(s *httptest.Server) string { return "ws" + strings.TrimPrefix(s.URL, "http") }

// echoNotice answers every message with a NOTICE carrying the message.
func echoNotice(conn *websocket.Conn) {
	for {
		var msg string
		if err := websocket.Message.Receive(conn, &msg); err != nil {
			return
		}
		if err := websocket.JSON.Send(conn, []any{"NOTICE", msg}); err != nil {
			return
		}
	}
}

func next(t *testing.T, ln *Listener) *Message {
	t.Helper()
	select {
	case m := <-ln.C():
		return m
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for a message")
	}
	return nil
}

func TestSendAndListen(t *testing.T) {
	ws := newWebsocketServer(echoNotice)
	defer ws.Close()
	s := New(wsURL(ws))
	defer s.Close()
	ln := s.Listen()
	defer ln.Close()
	c, cancel := context.Timeout(context.Bg(), 3*time.Second)
	defer cancel()
	require.NoError(t, s.EnsureConnected(c))
	assert.Equal(t, Connected, s.State())
	require.NoError(t, s.Send(c, []byte(`["CLOSE","x"]`)))
	m := next(t, ln)
	require.NoError(t, m.Err)
	assert.Equal(t, &frame.Notice{Message: `["CLOSE","x"]`}, m.Frame)
}

func TestEnsureConnectedSharesOneDial(t *testing.T) {
	var conns atomic.Int32
	ws := newWebsocketServer(func(conn *websocket.Conn) {
		conns.Add(1)
		echoNotice(conn)
	})
	defer ws.Close()
	s := New(wsURL(ws))
	defer s.Close()
	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.EnsureConnected(context.Bg())
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
	// give the server a moment to count a stray second dial, if any
	time.Sleep(50 * time.Millisecond)
	assert.EqualValues(t, 1, conns.Load())
}

func TestSendWithoutConnection(t *testing.T) {
	s := New("ws://127.0.0.1:1")
	err := s.Send(context.Bg(), []byte("[]"))
	var se *SendError
	require.True(t, errors.As(err, &se), "got %v", err)
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestConnectRefused(t *testing.T) {
	var changes atomic.Int32
	s := New("ws://127.0.0.1:1", WithStatusHandler(func(string, bool) { changes.Add(1) }))
	err := s.EnsureConnected(context.Bg())
	var ce *ConnectError
	require.True(t, errors.As(err, &ce), "got %v", err)
	assert.Equal(t, Disconnected, s.State())
	assert.Zero(t, changes.Load(), "no status change without an open socket")
}

func TestDropIsDeliveredAndReconnects(t *testing.T) {
	var conns atomic.Int32
	ws := newWebsocketServer(func(conn *websocket.Conn) {
		if conns.Add(1) == 1 {
			// first connection: read one message then hang up
			var msg string
			websocket.Message.Receive(conn, &msg)
			return
		}
		echoNotice(conn)
	})
	defer ws.Close()
	statuses := make(chan bool, 4)
	s := New(wsURL(ws), WithStatusHandler(func(_ string, up bool) { statuses <- up }))
	defer s.Close()
	ln := s.Listen()
	require.NoError(t, s.EnsureConnected(context.Bg()))
	assert.True(t, <-statuses)
	gen, err := s.SendGeneration(context.Bg(), []byte(`"bye"`))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), gen)
	m := next(t, ln)
	var de *DisconnectError
	require.True(t, errors.As(m.Err, &de), "got %v", m.Err)
	assert.Equal(t, gen, de.Generation)
	assert.False(t, <-statuses)
	assert.Equal(t, Disconnected, s.State())
	// the listener survives and the next EnsureConnected dials again
	require.NoError(t, s.EnsureConnected(context.Bg()))
	assert.True(t, <-statuses)
	gen, err = s.SendGeneration(context.Bg(), []byte(`"again"`))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), gen, "a new websocket starts a new generation")
	m = next(t, ln)
	require.NoError(t, m.Err)
	assert.Equal(t, &frame.Notice{Message: `"again"`}, m.Frame)
}

func TestCloseIsFinalAndIdempotent(t *testing.T) {
	ws := newWebsocketServer(echoNotice)
	defer ws.Close()
	s := New(wsURL(ws))
	ln := s.Listen()
	require.NoError(t, s.EnsureConnected(context.Bg()))
	s.Close()
	s.Close()
	m := next(t, ln)
	assert.ErrorIs(t, m.Err, ErrConnectionClosed)
	select {
	case <-ln.Done():
	case <-time.After(time.Second):
		t.Fatal("listener not closed with socket")
	}
	assert.ErrorIs(t, s.EnsureConnected(context.Bg()), ErrConnectionClosed)
	assert.ErrorIs(t, s.Send(context.Bg(), []byte("[]")), ErrConnectionClosed)
	select {
	case <-s.Done():
	default:
		t.Error("Done not closed")
	}
}

func TestEnsureConnectedHonoursCallerContext(t *testing.T) {
	c, cancel := context.Cancel(context.Bg())
	cancel()
	s := New("ws://127.0.0.1:1")
	err := s.EnsureConnected(c)
	assert.Error(t, err)
}
