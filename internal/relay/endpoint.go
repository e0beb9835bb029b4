package relay

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"net"
	"syscall"

	"github.com/coder/websocket"
)

const (
	// ConnBufSize is the read buffer for binary stream endpoints. Each TCP
	// read is forwarded as one message to minimize latency.
	ConnBufSize = 64 * 1024
	// StreamBufSize is the read buffer for text stream endpoints (shell
	// output).
	StreamBufSize = 4 * 1024
)

// SocketEndpoint adapts a websocket connection. Incoming frames are passed
// through verbatim; outgoing writes use the configured message type.
type SocketEndpoint struct {
	conn *websocket.Conn
	mode websocket.MessageType
}

func NewSocketEndpoint(conn *websocket.Conn, mode websocket.MessageType) *SocketEndpoint {
	return &SocketEndpoint{conn: conn, mode: mode}
}

func (e *SocketEndpoint) Read(ctx context.Context) ([]byte, error) {
	_, data, err := e.conn.Read(ctx)
	return data, err
}

func (e *SocketEndpoint) Write(ctx context.Context, p []byte) error {
	return e.conn.Write(ctx, e.mode, p)
}

func (e *SocketEndpoint) Close() error {
	return e.conn.CloseNow()
}

// ConnEndpoint adapts a net.Conn (e.g. the VNC TCP socket).
type ConnEndpoint struct {
	conn net.Conn
	buf  []byte
}

func NewConnEndpoint(conn net.Conn) *ConnEndpoint {
	return &ConnEndpoint{conn: conn, buf: make([]byte, ConnBufSize)}
}

func (e *ConnEndpoint) Read(ctx context.Context) ([]byte, error) {
	n, err := e.conn.Read(e.buf)
	if n == 0 {
		return nil, err
	}
	data := make([]byte, n)
	copy(data, e.buf[:n])
	return data, err
}

// Write writes the chunk to the socket. net.Conn writes are unbuffered, so
// input events reach the target without flush latency.
func (e *ConnEndpoint) Write(ctx context.Context, p []byte) error {
	_, err := e.conn.Write(p)
	return err
}

func (e *ConnEndpoint) Close() error {
	return e.conn.Close()
}

// StreamEndpoint adapts an io.ReadWriteCloser (e.g. a pty master).
type StreamEndpoint struct {
	rwc io.ReadWriteCloser
	buf []byte
}

func NewStreamEndpoint(rwc io.ReadWriteCloser, bufSize int) *StreamEndpoint {
	return &StreamEndpoint{rwc: rwc, buf: make([]byte, bufSize)}
}

func (e *StreamEndpoint) Read(ctx context.Context) ([]byte, error) {
	n, err := e.rwc.Read(e.buf)
	if n == 0 {
		return nil, err
	}
	data := make([]byte, n)
	copy(data, e.buf[:n])
	return data, err
}

func (e *StreamEndpoint) Write(ctx context.Context, p []byte) error {
	_, err := e.rwc.Write(p)
	return err
}

func (e *StreamEndpoint) Close() error {
	return e.rwc.Close()
}

// Classify maps a pump error to a termination reason. Peer closes and
// shutdown races are normal termination; the returned error is non-nil only
// for genuinely unexpected failures.
func Classify(err error) (Reason, error) {
	switch {
	case err == nil, errors.Is(err, io.EOF):
		return ReasonPeerClosed, nil
	case errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, net.ErrClosed),
		errors.Is(err, fs.ErrClosed),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, syscall.EIO):
		return ReasonStreamUnavailable, nil
	case websocket.CloseStatus(err) != -1:
		// Any close frame from the browser, normal or not, ends the
		// relay; the status code is not an agent failure.
		return ReasonPeerClosed, nil
	default:
		return ReasonUnexpected, err
	}
}
