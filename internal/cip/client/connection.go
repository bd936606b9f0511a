package client

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/tturner/cipengine/internal/cip/codec"
	"github.com/tturner/cipengine/internal/cip/epath"
	"github.com/tturner/cipengine/internal/cip/protocol"
	"github.com/tturner/cipengine/internal/logging"
	"github.com/tturner/cipengine/internal/metrics"
)

// ConnectionOptions describes a connection to open. Zero values select the
// defaults; a nil OriginatorCID is randomly generated.
type ConnectionOptions struct {
	Extended         bool
	OriginatorCID    []byte
	SerialNumber     uint16
	VendorID         uint16
	OriginatorSerial uint32
	// Route is prepended to the Message Router path, for example a
	// backplane slot.
	Route         epath.Path
	SequenceStart uint16
	SequenceStop  uint16
}

// Connection is a Class 3 connection opened by ForwardOpen.
type Connection struct {
	OriginatorCID    [4]byte
	TargetCID        [4]byte
	SerialNumber     uint16
	VendorID         uint16
	OriginatorSerial uint32
	Extended         bool
	Route            epath.Path
	Sequence         *SequenceCounter

	seqStart  uint16
	seqStop   uint16
	connected atomic.Bool
}

// NewConnection applies defaults to opts. The connection is not opened.
func NewConnection(opts ConnectionOptions) (*Connection, error) {
	c := &Connection{
		SerialNumber:     opts.SerialNumber,
		VendorID:         opts.VendorID,
		OriginatorSerial: opts.OriginatorSerial,
		Extended:         opts.Extended,
		Route:            opts.Route,
		seqStart:         opts.SequenceStart,
		seqStop:          opts.SequenceStop,
	}
	if c.SerialNumber == 0 {
		c.SerialNumber = DefaultSerialNumber
	}
	if c.VendorID == 0 {
		c.VendorID = DefaultVendorID
	}
	if c.seqStart == 0 && c.seqStop == 0 {
		c.seqStart, c.seqStop = 1, 0xFFFF
	}
	switch len(opts.OriginatorCID) {
	case 0:
		if _, err := rand.Read(c.OriginatorCID[:]); err != nil {
			return nil, fmt.Errorf("generate originator connection id: %w", err)
		}
	case 4:
		copy(c.OriginatorCID[:], opts.OriginatorCID)
	default:
		return nil, fmt.Errorf("originator connection id must be 4 bytes, got %d", len(opts.OriginatorCID))
	}
	return c, nil
}

// Connected reports whether ForwardOpen succeeded and no ForwardClose has
// completed since.
func (c *Connection) Connected() bool {
	return c != nil && c.connected.Load()
}

// ConnectionSize is the requested connection size in bytes.
func (c *Connection) ConnectionSize() int {
	if c.Extended {
		return extendedConnectionSize
	}
	return standardConnectionSize
}

// NetworkParams returns the network connection parameters field: 16 bits for
// a standard ForwardOpen, 32 bits for a large one.
func (c *Connection) NetworkParams() []byte {
	size := c.ConnectionSize()
	if c.Extended {
		return codec.AppendUint32(nil, uint32(size&0xFFFF)|uint32(netParamsReserved)<<16)
	}
	return codec.AppendUint16(nil, uint16(size&0x01FF)|netParamsReserved)
}

// ForwardOpenService is 0x5B for an extended connection and 0x54 otherwise.
func (c *Connection) ForwardOpenService() protocol.ServiceCode {
	if c.Extended {
		return protocol.ServiceLargeForwardOpen
	}
	return protocol.ServiceForwardOpen
}

func (c *Connection) pathSegments() []epath.Segment {
	segments := make([]epath.Segment, 0, len(c.Route)+2)
	segments = append(segments, c.Route...)
	return append(segments, epath.ClassID(protocol.ClassMessageRouter), epath.InstanceID(1))
}

// forwardOpenData builds the ForwardOpen request data.
func (c *Connection) forwardOpenData(t Tuning) ([]byte, error) {
	path, err := epath.Encode(c.pathSegments(), true, false)
	if err != nil {
		return nil, fmt.Errorf("connection path: %w", err)
	}
	params := c.NetworkParams()

	data := make([]byte, 0, 36+2*len(params)+len(path))
	data = append(data, t.Priority, t.TimeoutTicks)
	data = append(data, 0x00, 0x00, 0x00, 0x00) // O->T connection id, assigned by the target
	data = append(data, c.OriginatorCID[:]...)
	data = codec.AppendUint16(data, c.SerialNumber)
	data = codec.AppendUint16(data, c.VendorID)
	data = codec.AppendUint32(data, c.OriginatorSerial)
	data = append(data, t.TimeoutMultiplier, 0x00, 0x00, 0x00)
	data = codec.AppendUint32(data, t.RPI)
	data = append(data, params...)
	data = codec.AppendUint32(data, t.RPI)
	data = append(data, params...)
	data = append(data, t.TransportTrigger)
	return append(data, path...), nil
}

// forwardCloseData builds the ForwardClose request data.
func (c *Connection) forwardCloseData(t Tuning) ([]byte, error) {
	path, err := epath.Encode(c.pathSegments(), true, true)
	if err != nil {
		return nil, fmt.Errorf("connection path: %w", err)
	}
	data := make([]byte, 0, 10+len(path))
	data = append(data, t.Priority, t.TimeoutTicks)
	data = codec.AppendUint16(data, c.SerialNumber)
	data = codec.AppendUint16(data, c.VendorID)
	data = codec.AppendUint32(data, c.OriginatorSerial)
	return append(data, path...), nil
}

// OpenConnection creates a connection from opts and opens it.
func (s *Session) OpenConnection(ctx context.Context, opts ConnectionOptions) (*Connection, error) {
	c, err := NewConnection(opts)
	if err != nil {
		return nil, err
	}
	if err := s.ForwardOpen(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// ForwardOpen opens c through the Connection Manager. It sends nothing when c
// is already connected.
func (s *Session) ForwardOpen(ctx context.Context, c *Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.Connected() {
		return nil
	}
	if s.conn != nil && s.conn != c && s.conn.Connected() {
		return ErrConnectionActive
	}

	start := time.Now()
	service := c.ForwardOpenService()
	data, err := c.forwardOpenData(s.tuning)
	if err != nil {
		return err
	}
	req, err := protocol.NewRequest(service, protocol.ClassConnectionManager, 1)
	if err != nil {
		return err
	}
	req.Data = data

	reply, err := s.sendRRData(ctx, req, service)
	status := replyStatus(reply)
	if err != nil {
		var svcErr *protocol.ServiceError
		if errors.As(err, &svcErr) {
			err = &ForwardOpenError{Status: svcErr.GeneralStatus, ExtendedStatus: svcErr.ExtendedStatus(), Err: svcErr}
		}
		s.observe(metrics.OperationForwardOpen, service.String(), start, status, err)
		return err
	}
	if len(reply.Data) < 4 {
		err = fmt.Errorf("forward open reply data of %d bytes: %w", len(reply.Data), ErrShortReply)
		s.observe(metrics.OperationForwardOpen, service.String(), start, status, err)
		return err
	}

	copy(c.TargetCID[:], reply.Data[:4])
	c.Sequence = NewSequenceCounter(c.seqStart, c.seqStop)
	c.connected.Store(true)
	s.conn = c
	s.observe(metrics.OperationForwardOpen, service.String(), start, status, nil)
	s.logger.WithFields(logging.LogLevelVerbose, logging.Fields{
		"target_cid":     fmt.Sprintf("% X", c.TargetCID[:]),
		"originator_cid": fmt.Sprintf("% X", c.OriginatorCID[:]),
		"csn":            fmt.Sprintf("0x%04X", c.SerialNumber),
		"size":           c.ConnectionSize(),
		"route":          c.Route.String(),
	}, "Opened connection with %s", service)
	return nil
}

// ForwardClose closes c. The connection is marked closed once the target has
// answered, even if it answered with an error.
func (s *Session) ForwardClose(ctx context.Context, c *Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.forwardClose(ctx, c)
}

// CloseConnection closes c and detaches it from the session.
func (s *Session) CloseConnection(ctx context.Context, c *Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.forwardClose(ctx, c)
	if s.conn == c {
		s.conn = nil
	}
	return err
}

func (s *Session) forwardClose(ctx context.Context, c *Connection) error {
	if !c.Connected() {
		return nil
	}

	start := time.Now()
	data, err := c.forwardCloseData(s.tuning)
	if err != nil {
		return err
	}
	req, err := protocol.NewRequest(protocol.ServiceForwardClose, protocol.ClassConnectionManager, 1)
	if err != nil {
		return err
	}
	req.Data = data

	reply, err := s.sendRRData(ctx, req, protocol.ServiceForwardClose)
	if reply != nil {
		c.connected.Store(false)
	}
	s.observe(metrics.OperationForwardClose, protocol.ServiceForwardClose.String(), start, replyStatus(reply), err)
	if err != nil {
		return err
	}
	s.logger.Verbose("Closed connection target CID % X", c.TargetCID[:])
	return nil
}

func replyStatus(reply *protocol.Reply) uint8 {
	if reply == nil {
		return 0
	}
	return reply.GeneralStatus
}
