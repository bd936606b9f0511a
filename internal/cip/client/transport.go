package client

// Transport abstraction over the TCP stream to a target

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/tturner/cipengine/internal/enip"
)

// Transport carries whole encapsulation frames to and from one target.
type Transport interface {
	Connect(ctx context.Context, addr string) error
	Disconnect() error
	Send(ctx context.Context, data []byte) error
	// Receive returns exactly one encapsulation frame, header included.
	Receive(ctx context.Context, timeout time.Duration) ([]byte, error)
	IsConnected() bool
}

// TCPTransport implements Transport over a net.Conn, normally TCP 44818.
type TCPTransport struct {
	conn        net.Conn
	addr        string
	dialTimeout time.Duration
	connMu      sync.RWMutex
}

var _ Transport = (*TCPTransport)(nil)

// NewTCPTransport creates a new TCP transport
func NewTCPTransport() *TCPTransport {
	return &TCPTransport{dialTimeout: DefaultTimeout}
}

// NewConnTransport wraps an already established connection.
func NewConnTransport(conn net.Conn) *TCPTransport {
	addr := ""
	if conn != nil && conn.RemoteAddr() != nil {
		addr = conn.RemoteAddr().String()
	}
	return &TCPTransport{conn: conn, addr: addr, dialTimeout: DefaultTimeout}
}

// SetDialTimeout changes the timeout used by Connect.
func (t *TCPTransport) SetDialTimeout(d time.Duration) {
	t.connMu.Lock()
	defer t.connMu.Unlock()
	if d > 0 {
		t.dialTimeout = d
	}
}

// Addr returns the remote address, if known.
func (t *TCPTransport) Addr() string {
	t.connMu.RLock()
	defer t.connMu.RUnlock()
	return t.addr
}

// Endpoints returns the local and remote addresses, or nils when not
// connected.
func (t *TCPTransport) Endpoints() (local, remote net.Addr) {
	t.connMu.RLock()
	defer t.connMu.RUnlock()
	if t.conn == nil {
		return nil, nil
	}
	return t.conn.LocalAddr(), t.conn.RemoteAddr()
}

// Connect establishes a TCP connection. A missing port defaults to 44818.
func (t *TCPTransport) Connect(ctx context.Context, addr string) error {
	t.connMu.Lock()
	defer t.connMu.Unlock()

	if t.conn != nil {
		return fmt.Errorf("already connected")
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, fmt.Sprint(DefaultPort))
	}

	dialer := net.Dialer{
		Timeout:   t.dialTimeout,
		KeepAlive: 30 * time.Second,
	}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return &TransportError{Op: "dial", Err: err}
	}

	t.conn = conn
	t.addr = addr
	return nil
}

// Disconnect closes the connection
func (t *TCPTransport) Disconnect() error {
	t.connMu.Lock()
	defer t.connMu.Unlock()

	if t.conn == nil {
		return nil
	}

	err := t.conn.Close()
	t.conn = nil
	return err
}

// Send writes one frame.
func (t *TCPTransport) Send(ctx context.Context, data []byte) error {
	t.connMu.RLock()
	defer t.connMu.RUnlock()

	if t.conn == nil {
		return &TransportError{Op: "write", Err: net.ErrClosed}
	}

	deadline := time.Time{}
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	if err := t.conn.SetWriteDeadline(deadline); err != nil {
		return &TransportError{Op: "set write deadline", Err: err}
	}

	if _, err := t.conn.Write(data); err != nil {
		return classify("write", err)
	}
	return nil
}

// Receive reads one frame, waiting at most timeout or until ctx is done.
func (t *TCPTransport) Receive(ctx context.Context, timeout time.Duration) ([]byte, error) {
	t.connMu.RLock()
	defer t.connMu.RUnlock()

	if t.conn == nil {
		return nil, &TransportError{Op: "read", Err: net.ErrClosed}
	}

	deadline := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := t.conn.SetReadDeadline(deadline); err != nil {
		return nil, &TransportError{Op: "set read deadline", Err: err}
	}

	// Unblock the read if ctx is cancelled before the deadline.
	conn := t.conn
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	defer stop()

	frame, err := enip.ReadFrame(conn)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(ctxErr, context.DeadlineExceeded) {
			return nil, ctxErr
		}
		return nil, classify("read", err)
	}
	return frame, nil
}

// IsConnected returns whether the transport is connected
func (t *TCPTransport) IsConnected() bool {
	t.connMu.RLock()
	defer t.connMu.RUnlock()
	return t.conn != nil
}

func classify(op string, err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%s: %w", op, ErrResponseTimeout)
	}
	return &TransportError{Op: op, Err: err}
}
