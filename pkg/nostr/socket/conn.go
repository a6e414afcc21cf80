package socket

import (
	"bufio"
	"bytes"
	"compress/flate"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"

	"github.com/Hubmakerlabs/relaycore/pkg/context"
	"github.com/gobwas/httphead"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsflate"
	"github.com/gobwas/ws/wsutil"
)

// MaxMessageSize bounds the write buffer of a connection.
const MaxMessageSize = 4 << 20

// lockedWriter serialises writes from the write loop and from the control
// frame handler, which answers pings from the read loop.
type lockedWriter struct {
	mx sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (n int, err error) {
	l.mx.Lock()
	defer l.mx.Unlock()
	return l.w.Write(p)
}

// conn is one physical websocket, with permessage-deflate when the relay
// accepts it.
type conn struct {
	net               net.Conn
	out               *lockedWriter
	enableCompression bool
	controlHandler    wsutil.FrameHandlerFunc
	flateReader       *wsflate.Reader
	reader            *wsutil.Reader
	flateWriter       *wsflate.Writer
	writer            *wsutil.Writer
	msgStateR         wsflate.MessageState
	msgStateW         wsflate.MessageState
	flateErr          error
}

func dial(c context.T, url string, header http.Header) (cn *conn, err error) {
	dialer := ws.Dialer{
		Header: ws.HandshakeHeaderHTTP(header),
		Extensions: []httphead.Option{
			wsflate.DefaultParameters.Option(),
		},
	}
	cn = &conn{}
	var hs ws.Handshake
	var nc net.Conn
	var buffered *bufio.Reader
	if nc, buffered, hs, err = dialer.Dial(c, url); err != nil {
		return nil, fmt.Errorf("failed to dial: %w", err)
	}
	cn.net = nc
	cn.out = &lockedWriter{w: nc}
	// frames the relay sent together with the handshake response sit in
	// the handshake reader and must be consumed first.
	var br io.Reader = nc
	if buffered != nil && buffered.Buffered() > 0 {
		br = io.MultiReader(buffered, nc)
	}
	state := ws.StateClientSide
	for _, extension := range hs.Extensions {
		if string(extension.Name) == wsflate.ExtensionName {
			cn.enableCompression = true
			state |= ws.StateExtended
			break
		}
	}
	if cn.enableCompression {
		cn.msgStateR.SetCompressed(true)
		cn.flateReader = wsflate.NewReader(nil,
			func(r io.Reader) wsflate.Decompressor {
				return flate.NewReader(r)
			},
		)
	}
	cn.controlHandler = wsutil.ControlFrameHandler(cn.out, ws.StateClientSide)
	cn.reader = &wsutil.Reader{
		Source:         br,
		State:          state,
		OnIntermediate: cn.controlHandler,
		CheckUTF8:      false,
		Extensions: []wsutil.RecvExtension{
			&cn.msgStateR,
		},
	}
	if cn.enableCompression {
		cn.msgStateW.SetCompressed(true)
		cn.flateWriter = wsflate.NewWriter(nil,
			func(w io.Writer) wsflate.Compressor {
				fw, ferr := flate.NewWriter(w, 4)
				if ferr != nil {
					cn.flateErr = fmt.Errorf("failed to create flate writer: %w", ferr)
				}
				return fw
			},
		)
	}
	cn.writer = wsutil.NewWriterSize(cn.out, state, ws.OpText, MaxMessageSize)
	cn.writer.SetExtensions(&cn.msgStateW)
	return
}

// WriteMessage sends data as one text message. Only the write loop calls it.
func (cn *conn) WriteMessage(data []byte) (err error) {
	if cn.enableCompression && cn.msgStateW.IsCompressed() {
		cn.flateWriter.Reset(cn.writer)
		if _, err = io.Copy(cn.flateWriter, bytes.NewReader(data)); err != nil {
			return fmt.Errorf("failed to write message: %w", err)
		}
		if err = cn.flateWriter.Close(); err != nil {
			return fmt.Errorf("failed to close flate writer: %w", err)
		}
		if cn.flateErr != nil {
			return cn.flateErr
		}
	} else if _, err = io.Copy(cn.writer, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err = cn.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush writer: %w", err)
	}
	return
}

// Ping writes a masked ping control frame.
func (cn *conn) Ping() (err error) {
	return wsutil.WriteClientMessage(cn.out, ws.OpPing, nil)
}

// ReadMessage copies the next text or binary message into buf, answering
// control frames on the way. Only the read loop calls it.
func (cn *conn) ReadMessage(buf io.Writer) (err error) {
	for {
		var h ws.Header
		if h, err = cn.reader.NextFrame(); err != nil {
			return fmt.Errorf("failed to advance frame: %w", err)
		}
		if h.OpCode.IsControl() {
			if err = cn.controlHandler(h, cn.reader); err != nil {
				return fmt.Errorf("failed to handle control frame: %w", err)
			}
			continue
		}
		if h.OpCode == ws.OpBinary || h.OpCode == ws.OpText {
			break
		}
		if err = cn.reader.Discard(); err != nil {
			return fmt.Errorf("failed to discard: %w", err)
		}
	}
	if cn.enableCompression && cn.msgStateR.IsCompressed() {
		cn.flateReader.Reset(cn.reader)
		if _, err = io.Copy(buf, cn.flateReader); err != nil {
			return fmt.Errorf("failed to read message: %w", err)
		}
	} else if _, err = io.Copy(buf, cn.reader); err != nil {
		return fmt.Errorf("failed to read message: %w", err)
	}
	return
}

func (cn *conn) Close() error { return cn.net.Close() }
