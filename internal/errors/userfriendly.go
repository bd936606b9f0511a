package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"syscall"

	"github.com/tturner/cipengine/internal/cip/client"
	"github.com/tturner/cipengine/internal/cip/protocol"
	"github.com/tturner/cipengine/internal/enip"
)

// UserFriendlyError provides user-friendly error messages with context and hints
type UserFriendlyError struct {
	Message string
	Reason  string
	Hint    string
	Try     string
	Err     error
}

func (e UserFriendlyError) Error() string {
	var buf strings.Builder
	buf.WriteString(e.Message)
	if e.Reason != "" {
		buf.WriteString("\n  Reason: " + e.Reason)
	}
	if e.Hint != "" {
		buf.WriteString("\n  Hint: " + e.Hint)
	}
	if e.Try != "" {
		buf.WriteString("\n  Try: " + e.Try)
	}
	if e.Err != nil {
		buf.WriteString("\n  Details: " + e.Err.Error())
	}
	return buf.String()
}

func (e UserFriendlyError) Unwrap() error {
	return e.Err
}

// WrapNetworkError wraps transport and session errors with user-friendly context
func WrapNetworkError(err error, target string) error {
	if err == nil {
		return nil
	}

	return UserFriendlyError{
		Message: fmt.Sprintf("Failed to communicate with device at %s", target),
		Reason:  extractNetworkReason(err),
		Hint:    "Device may not be an EtherNet/IP device, or there may be a network connectivity issue",
		Try:     fmt.Sprintf("cipengine identity --ip %s", target),
		Err:     err,
	}
}

// WrapCIPError wraps CIP protocol errors with user-friendly context
func WrapCIPError(err error, operation string) error {
	if err == nil {
		return nil
	}

	return UserFriendlyError{
		Message: fmt.Sprintf("CIP operation failed: %s", operation),
		Reason:  extractCIPReason(err),
		Hint:    cipHint(err),
		Try:     "Check the class/instance/attribute values and the --route option",
		Err:     err,
	}
}

// WrapConfigError wraps configuration errors with user-friendly context
func WrapConfigError(err error, configPath string) error {
	if err == nil {
		return nil
	}

	return UserFriendlyError{
		Message: fmt.Sprintf("Configuration error in %s", configPath),
		Reason:  err.Error(),
		Hint:    "Generate a commented default with 'cipengine config init'",
		Try:     fmt.Sprintf("cipengine config show --config %s", configPath),
		Err:     err,
	}
}

func extractNetworkReason(err error) string {
	var regErr *client.RegistrationError
	var statusErr *enip.StatusError

	switch {
	case stderrors.Is(err, client.ErrResponseTimeout):
		return "Response timeout - device may be offline or unreachable"
	case stderrors.Is(err, syscall.ECONNREFUSED):
		return "Connection refused - device may not be listening on this port"
	case stderrors.Is(err, syscall.EHOSTUNREACH), stderrors.Is(err, syscall.ENETUNREACH):
		return "No route to host - network routing issue or device unreachable"
	case stderrors.Is(err, syscall.ECONNRESET):
		return "Connection reset - device closed the connection unexpectedly"
	case stderrors.As(err, &regErr):
		return "Device refused session registration"
	case stderrors.As(err, &statusErr):
		return fmt.Sprintf("Device returned encapsulation status 0x%04X (%s)", statusErr.Status, enip.StatusText(statusErr.Status))
	case stderrors.Is(err, client.ErrContextMismatch):
		return "Reply did not match the request sender context"
	}
	return "Network communication failed"
}

func extractCIPReason(err error) string {
	var foErr *client.ForwardOpenError
	var svcErr *protocol.ServiceError

	switch {
	case stderrors.As(err, &foErr):
		return fmt.Sprintf("Connection Manager rejected the connection (status 0x%02X, extended 0x%04X)", foErr.Status, foErr.ExtendedStatus)
	case stderrors.As(err, &svcErr):
		return fmt.Sprintf("Device returned CIP status 0x%02X (%s)", svcErr.GeneralStatus, protocol.StatusName(svcErr.GeneralStatus))
	case stderrors.Is(err, protocol.ErrReplyTooShort), stderrors.Is(err, client.ErrShortReply), stderrors.Is(err, enip.ErrShortFrame):
		return "Received invalid or malformed response from device"
	case stderrors.Is(err, client.ErrResponseTimeout):
		return "Device did not respond within timeout period"
	case stderrors.Is(err, client.ErrNotConnected):
		return "No open connection for connected messaging"
	}
	return "CIP protocol error occurred"
}

func cipHint(err error) string {
	var svcErr *protocol.ServiceError
	if stderrors.As(err, &svcErr) {
		switch svcErr.GeneralStatus {
		case protocol.StatusNotSupported:
			return "The object does not implement this service"
		case protocol.StatusPathSegmentError, protocol.StatusPathUnknown:
			return "The class or instance does not exist on this device"
		case protocol.StatusAttributeNotSupported:
			return "The attribute does not exist on this object"
		}
	}
	return "The device may not support this operation, or the CIP path may be incorrect"
}
