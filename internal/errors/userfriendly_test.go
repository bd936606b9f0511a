package errors

import (
	"errors"
	"fmt"
	"strings"
	"syscall"
	"testing"

	"github.com/tturner/cipengine/internal/cip/client"
	"github.com/tturner/cipengine/internal/cip/protocol"
	"github.com/tturner/cipengine/internal/enip"
)

func TestUserFriendlyError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      UserFriendlyError
		contains []string
	}{
		{
			name:     "message only",
			err:      UserFriendlyError{Message: "something broke"},
			contains: []string{"something broke"},
		},
		{
			name: "all fields",
			err: UserFriendlyError{
				Message: "connection failed",
				Reason:  "timeout",
				Hint:    "check network",
				Try:     "ping host",
				Err:     fmt.Errorf("dial tcp: timeout"),
			},
			contains: []string{"connection failed", "Reason: timeout", "Hint: check network", "Try: ping host", "Details: dial tcp: timeout"},
		},
		{
			name: "no reason",
			err: UserFriendlyError{
				Message: "failed",
				Hint:    "hint here",
			},
			contains: []string{"failed", "Hint: hint here"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("Error() = %q, want to contain %q", msg, s)
				}
			}
		})
	}
}

func TestUserFriendlyError_ErrorOmitsEmptyFields(t *testing.T) {
	err := UserFriendlyError{Message: "msg"}
	msg := err.Error()
	if strings.Contains(msg, "Reason:") || strings.Contains(msg, "Hint:") || strings.Contains(msg, "Try:") || strings.Contains(msg, "Details:") {
		t.Errorf("Error() = %q, should not contain empty fields", msg)
	}
}

func TestUserFriendlyError_Unwrap(t *testing.T) {
	inner := fmt.Errorf("root cause")
	err := UserFriendlyError{Message: "wrapper", Err: inner}

	if !errors.Is(err, inner) {
		t.Error("Unwrap should return the inner error")
	}

	var nilErr UserFriendlyError
	if nilErr.Unwrap() != nil {
		t.Error("Unwrap on nil Err should return nil")
	}
}

func TestWrapNetworkError(t *testing.T) {
	if WrapNetworkError(nil, "10.0.0.1:44818") != nil {
		t.Error("nil error should return nil")
	}

	tests := []struct {
		name   string
		err    error
		reason string
	}{
		{"timeout", fmt.Errorf("read: %w", client.ErrResponseTimeout), "timeout"},
		{"refused", &client.TransportError{Op: "dial", Err: syscall.ECONNREFUSED}, "refused"},
		{"no route", &client.TransportError{Op: "dial", Err: syscall.EHOSTUNREACH}, "route"},
		{"reset", &client.TransportError{Op: "read", Err: syscall.ECONNRESET}, "reset"},
		{"registration", &client.RegistrationError{Status: 0x69, Err: &enip.StatusError{Command: enip.CommandRegisterSession, Status: 0x69}}, "registration"},
		{"encapsulation status", &enip.StatusError{Command: enip.CommandListIdentity, Status: 0x01}, "0x0001"},
		{"sender context", client.ErrContextMismatch, "sender context"},
		{"generic", fmt.Errorf("something else"), "Network communication failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := WrapNetworkError(tt.err, "10.0.0.1:44818")
			var ufe UserFriendlyError
			if !errors.As(err, &ufe) {
				t.Fatalf("expected UserFriendlyError, got %T", err)
			}
			if !strings.Contains(ufe.Message, "10.0.0.1:44818") {
				t.Errorf("message should contain target, got %q", ufe.Message)
			}
			if !strings.Contains(ufe.Reason, tt.reason) {
				t.Errorf("Reason = %q, want to contain %q", ufe.Reason, tt.reason)
			}
			if !errors.Is(err, tt.err) {
				t.Error("wrapped error should still match the original")
			}
		})
	}
}

func TestWrapCIPError(t *testing.T) {
	if WrapCIPError(nil, "read") != nil {
		t.Error("nil error should return nil")
	}

	tests := []struct {
		name   string
		err    error
		reason string
		hint   string
	}{
		{
			name:   "forward open rejected",
			err:    &client.ForwardOpenError{Status: 0x01, ExtendedStatus: 0x0100},
			reason: "extended 0x0100",
		},
		{
			name:   "service error",
			err:    &protocol.ServiceError{Service: protocol.ServiceGetAttributeSingle, GeneralStatus: protocol.StatusAttributeNotSupported},
			reason: "Attribute not supported",
			hint:   "attribute does not exist",
		},
		{
			name:   "unknown path",
			err:    &protocol.ServiceError{Service: protocol.ServiceGetAttributeSingle, GeneralStatus: protocol.StatusPathUnknown},
			reason: "0x05",
			hint:   "class or instance",
		},
		{"short reply", fmt.Errorf("reply: %w", protocol.ErrReplyTooShort), "malformed", ""},
		{"short frame", enip.ErrShortFrame, "malformed", ""},
		{"timeout", client.ErrResponseTimeout, "timeout", ""},
		{"not connected", client.ErrNotConnected, "No open connection", ""},
		{"generic", fmt.Errorf("something"), "CIP protocol error occurred", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := WrapCIPError(tt.err, "Get_Attribute_Single")
			ufe := err.(UserFriendlyError)
			if !strings.Contains(ufe.Message, "Get_Attribute_Single") {
				t.Errorf("message should contain operation, got %q", ufe.Message)
			}
			if !strings.Contains(ufe.Reason, tt.reason) {
				t.Errorf("Reason = %q, want to contain %q", ufe.Reason, tt.reason)
			}
			if tt.hint != "" && !strings.Contains(ufe.Hint, tt.hint) {
				t.Errorf("Hint = %q, want to contain %q", ufe.Hint, tt.hint)
			}
		})
	}
}

func TestWrapConfigError(t *testing.T) {
	if WrapConfigError(nil, "cipengine.yaml") != nil {
		t.Error("nil error should return nil")
	}

	err := WrapConfigError(fmt.Errorf("invalid yaml"), "cipengine.yaml")
	ufe := err.(UserFriendlyError)
	if !strings.Contains(ufe.Message, "cipengine.yaml") {
		t.Errorf("message should contain config path, got %q", ufe.Message)
	}
	if ufe.Reason != "invalid yaml" {
		t.Errorf("reason should be inner error message, got %q", ufe.Reason)
	}
	if !strings.Contains(ufe.Hint, "config init") {
		t.Errorf("hint should point at config init, got %q", ufe.Hint)
	}
}
