package enip

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

var testContext = [8]byte{'_', 's', 'o', 'n', 'a', 'r', '_', '_'}

func TestBuildHeader(t *testing.T) {
	header := BuildHeader(CommandSendRRData, 0x0010, 0x12345678, testContext, 0)
	if len(header) != HeaderSize {
		t.Fatalf("header length: got %d, want %d", len(header), HeaderSize)
	}
	want := []byte{
		0x6F, 0x00, // command
		0x10, 0x00, // length
		0x78, 0x56, 0x34, 0x12, // session
		0x00, 0x00, 0x00, 0x00, // status
		'_', 's', 'o', 'n', 'a', 'r', '_', '_',
		0x00, 0x00, 0x00, 0x00, // options
	}
	if !bytes.Equal(header, want) {
		t.Errorf("header = % X\nwant     % X", header, want)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	encap := Encapsulation{
		Header: Header{
			Command:       CommandRegisterSession,
			SessionHandle: 0x42,
			SenderContext: testContext,
		},
		Data: []byte{0x01, 0x00, 0x00, 0x00},
	}
	packet, err := encap.Encode()
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	if len(packet) != 28 {
		t.Fatalf("packet length: got %d, want 28", len(packet))
	}

	decoded, err := Decode(packet)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if decoded.Command != CommandRegisterSession || decoded.Length != 4 || decoded.SessionHandle != 0x42 {
		t.Errorf("decoded header = %+v", decoded.Header)
	}
	if decoded.SenderContext != testContext {
		t.Errorf("sender context = %q", decoded.SenderContext[:])
	}
	if !bytes.Equal(decoded.Data, encap.Data) {
		t.Errorf("data = % X", decoded.Data)
	}
}

func TestDecodeShort(t *testing.T) {
	if _, err := Decode(make([]byte, 10)); !errors.Is(err, ErrShortFrame) {
		t.Errorf("short header: expected ErrShortFrame, got %v", err)
	}
	header := BuildHeader(CommandSendRRData, 20, 1, testContext, 0)
	if _, err := Decode(append(header, 0x00, 0x01)); !errors.Is(err, ErrShortFrame) {
		t.Errorf("short body: expected ErrShortFrame, got %v", err)
	}
}

func TestExpect(t *testing.T) {
	ok := Encapsulation{Header: Header{Command: CommandSendRRData}}
	if err := ok.Expect(CommandSendRRData); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ok.Expect(CommandSendUnitData); err == nil {
		t.Error("expected command mismatch error")
	}

	failed := Encapsulation{Header: Header{Command: CommandRegisterSession, Status: 0x0069}}
	err := failed.Expect(CommandRegisterSession)
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected *StatusError, got %v", err)
	}
	if statusErr.Status != 0x0069 {
		t.Errorf("status = 0x%X", statusErr.Status)
	}
}

func TestBuildRegisterSession(t *testing.T) {
	packet := BuildRegisterSession(testContext, 1)
	if len(packet) != 28 {
		t.Fatalf("length = %d", len(packet))
	}
	if packet[0] != 0x65 || packet[2] != 0x04 {
		t.Errorf("header = % X", packet[:4])
	}
	if !bytes.Equal(packet[24:], []byte{0x01, 0x00, 0x00, 0x00}) {
		t.Errorf("body = % X", packet[24:])
	}
}

func TestBuildUnregisterAndListIdentity(t *testing.T) {
	unreg := BuildUnregisterSession(0x42, testContext)
	h, err := DecodeHeader(unreg)
	if err != nil {
		t.Fatal(err)
	}
	if h.Command != CommandUnregisterSession || h.SessionHandle != 0x42 || h.Length != 0 {
		t.Errorf("unregister header = %+v", h)
	}

	list := BuildListIdentity(testContext)
	h, err = DecodeHeader(list)
	if err != nil {
		t.Fatal(err)
	}
	if h.Command != CommandListIdentity || h.SessionHandle != 0 {
		t.Errorf("list identity header = %+v", h)
	}
}

func TestReadFrame(t *testing.T) {
	first, _ := Encapsulation{Header: Header{Command: CommandSendRRData}, Data: []byte{1, 2, 3}}.Encode()
	second := BuildUnregisterSession(7, testContext)
	stream := bytes.NewReader(append(append([]byte{}, first...), second...))

	got, err := ReadFrame(stream)
	if err != nil {
		t.Fatalf("ReadFrame() error: %v", err)
	}
	if !bytes.Equal(got, first) {
		t.Errorf("first frame = % X", got)
	}
	got, err = ReadFrame(stream)
	if err != nil {
		t.Fatalf("ReadFrame() error: %v", err)
	}
	if !bytes.Equal(got, second) {
		t.Errorf("second frame = % X", got)
	}
	if _, err := ReadFrame(stream); !errors.Is(err, io.EOF) {
		t.Errorf("expected EOF, got %v", err)
	}
}

func TestReadFrameTruncatedBody(t *testing.T) {
	frame, _ := Encapsulation{Header: Header{Command: CommandSendRRData}, Data: make([]byte, 10)}.Encode()
	_, err := ReadFrame(bytes.NewReader(frame[:30]))
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("expected ErrUnexpectedEOF, got %v", err)
	}
}
