// Package client drives an EtherNet/IP session: registration, Connection
// Manager ForwardOpen/ForwardClose, and connected or unconnected CIP
// messaging over one Transport.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/tturner/cipengine/internal/enip"
	"github.com/tturner/cipengine/internal/logging"
	"github.com/tturner/cipengine/internal/metrics"
)

// SessionState tracks registration progress.
type SessionState int

const (
	StateDisconnected SessionState = iota
	StateRegistering
	StateRegistered
	StateUnregistering
)

func (s SessionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateRegistering:
		return "registering"
	case StateRegistered:
		return "registered"
	case StateUnregistering:
		return "unregistering"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// FrameHook observes every frame written to or read from the transport.
type FrameHook func(outbound bool, frame []byte)

// Session is one registered encapsulation session. All exchanges are
// serialized; a Session may be shared between goroutines.
type Session struct {
	mu            sync.Mutex
	transport     Transport
	handle        uint32
	state         SessionState
	senderContext [8]byte
	timeout       time.Duration
	tuning        Tuning
	target        string
	logger        *logging.Logger
	metrics       *metrics.Sink
	frameHook     FrameHook
	conn          *Connection
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithTimeout bounds each exchange. Non-positive values are ignored.
func WithTimeout(d time.Duration) SessionOption {
	return func(s *Session) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithSenderContext replaces the default sender context.
func WithSenderContext(ctx [8]byte) SessionOption {
	return func(s *Session) { s.senderContext = ctx }
}

// WithTuning replaces the Connection Manager timing constants.
func WithTuning(t Tuning) SessionOption {
	return func(s *Session) { s.tuning = t }
}

// WithLogger attaches a logger. Exchanges log at Verbose, frames at Debug.
func WithLogger(l *logging.Logger) SessionOption {
	return func(s *Session) { s.logger = l }
}

// WithMetrics records one metric per exchange.
func WithMetrics(sink *metrics.Sink) SessionOption {
	return func(s *Session) { s.metrics = sink }
}

// WithFrameHook observes raw frames, for capture.
func WithFrameHook(h FrameHook) SessionOption {
	return func(s *Session) { s.frameHook = h }
}

// WithTarget sets the label used in logs and metrics.
func WithTarget(label string) SessionOption {
	return func(s *Session) { s.target = label }
}

// NewSession returns an unregistered session on transport. Most callers want
// OpenSession.
func NewSession(transport Transport, opts ...SessionOption) *Session {
	s := &Session{
		transport:     transport,
		senderContext: DefaultSenderContext,
		timeout:       DefaultTimeout,
		tuning:        DefaultTuning(),
	}
	if t, ok := transport.(*TCPTransport); ok {
		s.target = t.Addr()
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OpenSession registers a session on an already connected transport.
func OpenSession(ctx context.Context, transport Transport, opts ...SessionOption) (*Session, error) {
	s := NewSession(transport, opts...)
	if err := s.Register(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Register sends RegisterSession and stores the handle the target assigns.
func (s *Session) Register(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateRegistered {
		return nil
	}
	if s.transport == nil || !s.transport.IsConnected() {
		return &TransportError{Op: "register", Err: errors.New("transport not connected")}
	}

	start := time.Now()
	s.state = StateRegistering
	frame := enip.BuildRegisterSession(s.senderContext, s.tuning.ProtocolVersion)
	reply, err := s.roundTrip(ctx, enip.CommandRegisterSession, frame)
	if err == nil && len(reply.Data) < 4 {
		err = fmt.Errorf("register session reply body of %d bytes: %w", len(reply.Data), enip.ErrShortFrame)
	}
	if err == nil && reply.SessionHandle == 0 {
		err = errors.New("target assigned session handle 0")
	}
	if err != nil {
		s.state = StateDisconnected
		err = registrationError(err)
		s.observe(metrics.OperationRegisterSession, "", start, 0, err)
		return err
	}

	s.handle = reply.SessionHandle
	s.state = StateRegistered
	s.observe(metrics.OperationRegisterSession, "", start, 0, nil)
	s.logger.Verbose("Registered session 0x%08X with %s", s.handle, s.target)
	return nil
}

func registrationError(err error) error {
	var statusErr *enip.StatusError
	if errors.As(err, &statusErr) {
		return &RegistrationError{Status: statusErr.Status, Err: err}
	}
	// A reply cut off after its header is a truncated response, not a dead
	// stream.
	if errors.Is(err, enip.ErrShortFrame) || errors.Is(err, io.ErrUnexpectedEOF) || !isTransportFailure(err) {
		return &RegistrationError{Err: err}
	}
	return err
}

func isTransportFailure(err error) bool {
	var te *TransportError
	return errors.As(err, &te) || errors.Is(err, ErrResponseTimeout) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Handle returns the session handle, 0 when unregistered.
func (s *Session) Handle() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

// State returns the registration state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SenderContext returns the context echoed on every reply.
func (s *Session) SenderContext() [8]byte {
	return s.senderContext
}

// Target returns the log label of the remote end.
func (s *Session) Target() string {
	return s.target
}

// Close closes any open connection, unregisters the session and closes the
// transport. The handle is cleared even when the target never answers.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	if s.conn != nil {
		if s.conn.Connected() {
			if err := s.forwardClose(ctx, s.conn); err != nil {
				errs = append(errs, fmt.Errorf("close connection: %w", err))
			}
		}
		// The connection does not outlive the transport, answered or not.
		s.conn.connected.Store(false)
		s.conn = nil
	}

	if s.handle != 0 && s.transport != nil && s.transport.IsConnected() {
		start := time.Now()
		s.state = StateUnregistering
		err := s.send(ctx, enip.BuildUnregisterSession(s.handle, s.senderContext))
		s.observe(metrics.OperationUnregisterSession, "", start, 0, err)
		if err != nil {
			errs = append(errs, fmt.Errorf("unregister session: %w", err))
		} else {
			s.logger.Verbose("Unregistered session 0x%08X", s.handle)
		}
	}
	s.handle = 0
	s.state = StateDisconnected

	if s.transport != nil {
		if err := s.transport.Disconnect(); err != nil {
			errs = append(errs, &TransportError{Op: "close", Err: err})
		}
	}
	return errors.Join(errs...)
}

// IdentityReply is the answer to ListIdentity.
type IdentityReply struct {
	Items      []enip.Item
	Identities []enip.Identity
}

// ListIdentity asks the target to describe itself. It works with or without
// a registered session; the request always carries handle 0.
func (s *Session) ListIdentity(ctx context.Context) (*IdentityReply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	reply, err := s.roundTrip(ctx, enip.CommandListIdentity, enip.BuildListIdentity(s.senderContext))
	if err != nil {
		s.observe(metrics.OperationListIdentity, "", start, 0, err)
		return nil, err
	}
	out := &IdentityReply{}
	if len(reply.Data) > 0 {
		out.Items, err = enip.ParseItems(reply.Data)
		if err != nil {
			s.observe(metrics.OperationListIdentity, "", start, 0, err)
			return nil, fmt.Errorf("list identity items: %w", err)
		}
		for _, item := range out.Items {
			if item.TypeID != enip.ItemListIdentity {
				continue
			}
			id, err := enip.ParseIdentity(item.Data)
			if err != nil {
				s.logger.Debug("Skipping malformed identity item: %v", err)
				continue
			}
			out.Identities = append(out.Identities, id)
		}
	}
	s.observe(metrics.OperationListIdentity, "", start, 0, nil)
	return out, nil
}

// ListServices returns the target's encapsulation service items.
func (s *Session) ListServices(ctx context.Context) ([]enip.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	frame := enip.BuildHeader(enip.CommandListServices, 0, 0, s.senderContext, 0)
	reply, err := s.roundTrip(ctx, enip.CommandListServices, frame)
	var items []enip.Item
	if err == nil && len(reply.Data) > 0 {
		items, err = enip.ParseItems(reply.Data)
	}
	s.observe(metrics.OperationListServices, "", start, 0, err)
	if err != nil {
		return nil, err
	}
	return items, nil
}

// NOP sends an encapsulation NOP. The target never replies; it only keeps an
// idle TCP connection alive.
func (s *Session) NOP(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.send(ctx, enip.BuildNOP(s.senderContext, nil))
}

func (s *Session) send(ctx context.Context, frame []byte) error {
	if s.transport == nil {
		return &TransportError{Op: "write", Err: errors.New("no transport")}
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	s.logger.LogHex("send", frame)
	if s.frameHook != nil {
		s.frameHook(true, frame)
	}
	return s.transport.Send(ctx, frame)
}

// roundTrip writes one frame and reads one reply, then checks the reply
// answers the same command and echoes our sender context. Callers hold s.mu.
func (s *Session) roundTrip(ctx context.Context, command uint16, frame []byte) (enip.Encapsulation, error) {
	if err := s.send(ctx, frame); err != nil {
		return enip.Encapsulation{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	raw, err := s.transport.Receive(ctx, s.timeout)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%s: %w", enip.CommandName(command), ErrResponseTimeout)
		}
		return enip.Encapsulation{}, err
	}
	s.logger.LogHex("recv", raw)
	if s.frameHook != nil {
		s.frameHook(false, raw)
	}

	reply, err := enip.Decode(raw)
	if err != nil {
		return enip.Encapsulation{}, err
	}
	if err := reply.Expect(command); err != nil {
		return reply, err
	}
	if !bytes.Equal(reply.SenderContext[:], s.senderContext[:]) {
		return reply, fmt.Errorf("%s: got %q: %w", enip.CommandName(command), reply.SenderContext[:], ErrContextMismatch)
	}
	return reply, nil
}

func (s *Session) observe(op metrics.OperationType, service string, start time.Time, status uint8, err error) {
	rtt := float64(time.Since(start).Microseconds()) / 1000
	s.logger.LogOperation(string(op), s.target, service, err == nil, rtt, status, err)
	if s.metrics == nil {
		return
	}
	m := metrics.Metric{
		Timestamp: start,
		Target:    s.target,
		Operation: op,
		Service:   service,
		Success:   err == nil,
		RTTMs:     rtt,
		Status:    status,
	}
	if err != nil {
		m.Error = err.Error()
	}
	s.metrics.Record(m)
}
