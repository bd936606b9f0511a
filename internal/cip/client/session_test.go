package client

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/tturner/cipengine/internal/enip"
	"github.com/tturner/cipengine/internal/metrics"
)

func TestRegisterAndUnregisterSession(t *testing.T) {
	ft, s := openTestSession(t, standardTarget(t))

	if s.Handle() != 0x42 {
		t.Fatalf("Handle() = 0x%X, want 0x42", s.Handle())
	}
	if s.State() != StateRegistered {
		t.Fatalf("State() = %s", s.State())
	}

	if err := s.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	unreg := ft.next(t)
	if unreg.Command != enip.CommandUnregisterSession {
		t.Errorf("command = %s", enip.CommandName(unreg.Command))
	}
	if unreg.SessionHandle != 0x00000042 {
		t.Errorf("unregister session handle = 0x%08X, want 0x00000042", unreg.SessionHandle)
	}
	if unreg.Length != 0 {
		t.Errorf("unregister body length = %d", unreg.Length)
	}
	if s.Handle() != 0 || s.State() != StateDisconnected {
		t.Errorf("after close: handle 0x%X state %s", s.Handle(), s.State())
	}
}

func TestRegisterSessionRequest(t *testing.T) {
	ft, transport := newFakeTarget(t, standardTarget(t))
	s := NewSession(transport, WithTimeout(time.Second))
	if err := s.Register(context.Background()); err != nil {
		t.Fatalf("Register: %v", err)
	}
	req := ft.next(t)
	if req.Command != enip.CommandRegisterSession || req.SessionHandle != 0 {
		t.Errorf("register header = %+v", req.Header)
	}
	if !bytes.Equal(req.Data, []byte{0x01, 0x00, 0x00, 0x00}) {
		t.Errorf("register body = % X", req.Data)
	}
	if req.SenderContext != DefaultSenderContext {
		t.Errorf("sender context = %q", req.SenderContext[:])
	}
}

func TestRegisterSessionRejected(t *testing.T) {
	_, transport := newFakeTarget(t, func(ft *fakeTarget, req enip.Encapsulation) []byte {
		return ft.replyWithStatus(req, 0x0069)
	})
	_, err := OpenSession(context.Background(), transport, WithTimeout(time.Second))

	var regErr *RegistrationError
	if !errors.As(err, &regErr) {
		t.Fatalf("expected *RegistrationError, got %v", err)
	}
	if regErr.Status != 0x0069 {
		t.Errorf("status = 0x%X", regErr.Status)
	}
	var statusErr *enip.StatusError
	if !errors.As(err, &statusErr) {
		t.Error("registration error should wrap the encapsulation status error")
	}
}

func TestRegisterSessionTruncatedReply(t *testing.T) {
	_, transport := newFakeTarget(t, func(ft *fakeTarget, req enip.Encapsulation) []byte {
		return ft.reply(req, []byte{0x01})
	})
	_, err := OpenSession(context.Background(), transport, WithTimeout(time.Second))

	var regErr *RegistrationError
	if !errors.As(err, &regErr) {
		t.Fatalf("expected *RegistrationError, got %v", err)
	}
	if !errors.Is(err, enip.ErrShortFrame) {
		t.Errorf("expected ErrShortFrame inside, got %v", err)
	}
}

func TestRegisterSessionReplyCutMidBody(t *testing.T) {
	clientSide, targetSide := net.Pipe()
	t.Cleanup(func() {
		clientSide.Close()
		targetSide.Close()
	})
	go func() {
		raw, err := enip.ReadFrame(targetSide)
		if err != nil {
			return
		}
		req, _ := enip.Decode(raw)
		frame, _ := enip.Encapsulation{
			Header: enip.Header{Command: req.Command, SessionHandle: 0x42, SenderContext: req.SenderContext},
			Data:   []byte{0x01, 0x00, 0x00, 0x00},
		}.Encode()
		// Header announces 4 body bytes; only 2 arrive.
		_, _ = targetSide.Write(frame[:len(frame)-2])
		targetSide.Close()
	}()

	_, err := OpenSession(context.Background(), NewConnTransport(clientSide), WithTimeout(time.Second))
	var regErr *RegistrationError
	if !errors.As(err, &regErr) {
		t.Fatalf("expected *RegistrationError, got %v", err)
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("expected io.ErrUnexpectedEOF inside, got %v", err)
	}
}

func TestRegisterSessionTimeout(t *testing.T) {
	_, transport := newFakeTarget(t, func(ft *fakeTarget, req enip.Encapsulation) []byte {
		return nil
	})
	start := time.Now()
	_, err := OpenSession(context.Background(), transport, WithTimeout(50*time.Millisecond))
	if !errors.Is(err, ErrResponseTimeout) {
		t.Fatalf("expected ErrResponseTimeout, got %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Errorf("timeout took %s", time.Since(start))
	}
}

func TestSenderContextMismatch(t *testing.T) {
	_, transport := newFakeTarget(t, func(ft *fakeTarget, req enip.Encapsulation) []byte {
		req.SenderContext = [8]byte{'o', 't', 'h', 'e', 'r'}
		return ft.reply(req, []byte{0x01, 0x00, 0x00, 0x00})
	})
	_, err := OpenSession(context.Background(), transport, WithTimeout(time.Second))
	if !errors.Is(err, ErrContextMismatch) {
		t.Fatalf("expected ErrContextMismatch, got %v", err)
	}
}

func TestReplyCommandMismatch(t *testing.T) {
	_, transport := newFakeTarget(t, func(ft *fakeTarget, req enip.Encapsulation) []byte {
		req.Command = enip.CommandListIdentity
		return ft.reply(req, []byte{0x01, 0x00, 0x00, 0x00})
	})
	_, err := OpenSession(context.Background(), transport, WithTimeout(time.Second))
	var regErr *RegistrationError
	if !errors.As(err, &regErr) {
		t.Fatalf("expected *RegistrationError for command mismatch, got %v", err)
	}
}

func TestOpenSessionTransportNotConnected(t *testing.T) {
	_, err := OpenSession(context.Background(), NewTCPTransport())
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected *TransportError, got %v", err)
	}
}

func identityItemData() []byte {
	return []byte{
		0x01, 0x00,
		0x00, 0x02, 0xAF, 0x12, 10, 0, 0, 5, 0, 0, 0, 0, 0, 0, 0, 0,
		0x01, 0x00, 0x0C, 0x00, 0x41, 0x00, 3, 2, 0x30, 0x00,
		0x01, 0x02, 0x03, 0x04,
		0x04, 'E', 'N', 'B', 'T',
		0x03,
	}
}

func TestListIdentity(t *testing.T) {
	ft, transport := newFakeTarget(t, func(ft *fakeTarget, req enip.Encapsulation) []byte {
		item := identityItemData()
		body := []byte{0x01, 0x00, 0x0C, 0x00, byte(len(item)), 0x00}
		ft.handle = 0
		return ft.reply(req, append(body, item...))
	})
	s := NewSession(transport, WithTimeout(time.Second))

	reply, err := s.ListIdentity(context.Background())
	if err != nil {
		t.Fatalf("ListIdentity: %v", err)
	}
	if len(reply.Items) != 1 || len(reply.Identities) != 1 {
		t.Fatalf("reply = %+v", reply)
	}
	id := reply.Identities[0]
	if id.ProductName != "ENBT" || id.ProductCode != 0x41 || id.Revision() != "3.2" {
		t.Errorf("identity = %+v", id)
	}
	req := ft.next(t)
	if req.Command != enip.CommandListIdentity || req.SessionHandle != 0 || req.Length != 0 {
		t.Errorf("request header = %+v", req.Header)
	}
}

func TestListServices(t *testing.T) {
	_, transport := newFakeTarget(t, func(ft *fakeTarget, req enip.Encapsulation) []byte {
		item := []byte{0x01, 0x00, 0x20, 0x01, 'C', 'o', 'm', 'm', 'u', 'n', 'i', 'c', 'a', 't', 'i', 'o', 'n', 's', 0x00, 0x00}
		body := []byte{0x01, 0x00, 0x00, 0x01, byte(len(item)), 0x00}
		return ft.reply(req, append(body, item...))
	})
	s := NewSession(transport, WithTimeout(time.Second))

	items, err := s.ListServices(context.Background())
	if err != nil {
		t.Fatalf("ListServices: %v", err)
	}
	if len(items) != 1 || items[0].TypeID != enip.ItemListServices {
		t.Errorf("items = %+v", items)
	}
}

func TestNOPSendsNoReplyExpected(t *testing.T) {
	ft, s := openTestSession(t, standardTarget(t))
	if err := s.NOP(context.Background()); err != nil {
		t.Fatalf("NOP: %v", err)
	}
	req := ft.next(t)
	if req.Command != enip.CommandNOP {
		t.Errorf("command = %s", enip.CommandName(req.Command))
	}
}

func TestSessionMetricsAndFrameHook(t *testing.T) {
	sink := metrics.NewSink()
	var frames [][]byte
	var outbound int
	hook := func(out bool, frame []byte) {
		if out {
			outbound++
		}
		frames = append(frames, frame)
	}
	_, s := openTestSession(t, standardTarget(t), WithMetrics(sink), WithFrameHook(hook), WithTarget("plc"))

	if len(frames) != 2 || outbound != 1 {
		t.Fatalf("hook saw %d frames (%d outbound), want 2 (1)", len(frames), outbound)
	}
	got := sink.GetMetrics()
	if len(got) != 1 || got[0].Operation != metrics.OperationRegisterSession || !got[0].Success || got[0].Target != "plc" {
		t.Errorf("metrics = %+v", got)
	}
	_ = s.Close(context.Background())
}

func TestSessionStateString(t *testing.T) {
	if StateRegistering.String() != "registering" || SessionState(9).String() != "state(9)" {
		t.Error("unexpected state names")
	}
}
