package client

import (
	"errors"
	"fmt"

	"github.com/tturner/cipengine/internal/cip/protocol"
)

var (
	// ErrResponseTimeout means no reply arrived within the session timeout.
	// The transport should be treated as unusable afterwards.
	ErrResponseTimeout = errors.New("response timeout")
	// ErrNotConnected is returned for connected sends before ForwardOpen succeeded.
	ErrNotConnected = errors.New("connection not open")
	// ErrNotRegistered is returned for exchanges that need a session handle.
	ErrNotRegistered = errors.New("session not registered")
	// ErrConnectionActive means the session already owns a different open connection.
	ErrConnectionActive = errors.New("another connection is already open on this session")
	// ErrShortReply means reply data is shorter than the service defines.
	ErrShortReply = errors.New("reply data too short")
	// ErrContextMismatch means the reply did not echo our sender context.
	ErrContextMismatch = errors.New("reply sender context mismatch")
)

// TransportError wraps an I/O failure on the underlying stream.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RegistrationError reports a failed RegisterSession exchange.
type RegistrationError struct {
	Status uint32
	Err    error
}

func (e *RegistrationError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("register session failed: status 0x%08X: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("register session failed: %v", e.Err)
}

func (e *RegistrationError) Unwrap() error { return e.Err }

// ForwardOpenError reports a ForwardOpen rejected by the target. The
// connection stays closed and the open may be retried.
type ForwardOpenError struct {
	Status         uint8
	ExtendedStatus uint16
	Err            *protocol.ServiceError
}

func (e *ForwardOpenError) Error() string {
	return fmt.Sprintf("forward open rejected: status 0x%02X (%s), extended status 0x%04X",
		e.Status, protocol.StatusName(e.Status), e.ExtendedStatus)
}

func (e *ForwardOpenError) Unwrap() error {
	if e.Err == nil {
		return nil
	}
	return e.Err
}
