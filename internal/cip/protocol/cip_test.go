package protocol

import (
	"bytes"
	"errors"
	"testing"

	"github.com/tturner/cipengine/internal/cip/epath"
)

func TestRequestEncode(t *testing.T) {
	req, err := NewRequest(ServiceGetAttributeSingle, ClassIdentity, 1, 7)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	want := []byte{0x0E, 0x03, 0x20, 0x01, 0x24, 0x01, 0x30, 0x07}
	if got := req.Encode(); !bytes.Equal(got, want) {
		t.Errorf("Encode() = % X, want % X", got, want)
	}

	req.Data = []byte{0xAA}
	if got := req.Encode(); got[len(got)-1] != 0xAA || len(got) != len(want)+1 {
		t.Errorf("Encode() with data = % X", got)
	}
}

func TestDecodeReply(t *testing.T) {
	tests := []struct {
		name       string
		data       []byte
		wantStatus uint8
		wantAdd    []uint16
		wantData   []byte
	}{
		{
			name:     "success with data",
			data:     []byte{0x8E, 0x00, 0x00, 0x00, 0x01, 0x02},
			wantData: []byte{0x01, 0x02},
		},
		{
			name:       "error with additional status",
			data:       []byte{0xD4, 0x00, 0x01, 0x01, 0x00, 0x01},
			wantStatus: 0x01,
			wantAdd:    []uint16{0x0100},
		},
		{
			name: "envelope only",
			data: []byte{0xCE, 0x00, 0x00, 0x00},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply, err := DecodeReply(tt.data)
			if err != nil {
				t.Fatalf("DecodeReply: %v", err)
			}
			if reply.GeneralStatus != tt.wantStatus {
				t.Errorf("status = 0x%02X, want 0x%02X", reply.GeneralStatus, tt.wantStatus)
			}
			if len(reply.AdditionalStatus) != len(tt.wantAdd) {
				t.Fatalf("additional = %v, want %v", reply.AdditionalStatus, tt.wantAdd)
			}
			for i := range tt.wantAdd {
				if reply.AdditionalStatus[i] != tt.wantAdd[i] {
					t.Errorf("additional[%d] = 0x%04X", i, reply.AdditionalStatus[i])
				}
			}
			if !bytes.Equal(reply.Data, tt.wantData) {
				t.Errorf("data = % X, want % X", reply.Data, tt.wantData)
			}
		})
	}
}

func TestDecodeReplyTooShort(t *testing.T) {
	cases := [][]byte{
		nil,
		{0x8E},
		{0x8E, 0x00, 0x00},
		{0x8E, 0x00, 0x01, 0x02, 0x00, 0x01, 0x00},
	}
	for _, data := range cases {
		if _, err := DecodeReply(data); !errors.Is(err, ErrReplyTooShort) {
			t.Errorf("DecodeReply(% X): expected ErrReplyTooShort, got %v", data, err)
		}
	}
}

func TestParseReplyServiceError(t *testing.T) {
	reply, err := ParseReply([]byte{0x8E, 0x00, 0x01, 0x00}, ServiceGetAttributeSingle)
	var svcErr *ServiceError
	if !errors.As(err, &svcErr) {
		t.Fatalf("expected *ServiceError, got %v", err)
	}
	if svcErr.GeneralStatus != 0x01 {
		t.Errorf("general status = 0x%02X", svcErr.GeneralStatus)
	}
	if reply == nil || reply.GeneralStatus != 0x01 {
		t.Errorf("reply should be returned alongside the error: %+v", reply)
	}
}

func TestParseReplyServiceMismatch(t *testing.T) {
	_, err := ParseReply([]byte{0x90, 0x00, 0x00, 0x00}, ServiceGetAttributeSingle)
	if !errors.Is(err, ErrServiceMismatch) {
		t.Errorf("expected ErrServiceMismatch, got %v", err)
	}
}

func TestServiceErrorMessage(t *testing.T) {
	err := &ServiceError{Service: 0xD4, GeneralStatus: 0x01, AdditionalStatus: []uint16{0x0100}}
	want := "Forward_Open failed: general status 0x01 (Connection failure), additional status [0x0100]"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if err.ExtendedStatus() != 0x0100 {
		t.Errorf("ExtendedStatus() = 0x%04X", err.ExtendedStatus())
	}
}

func TestServiceCodeNames(t *testing.T) {
	if got := ServiceForwardOpen.String(); got != "Forward_Open" {
		t.Errorf("String() = %s", got)
	}
	if got := ServiceGetAttributeSingle.Reply().String(); got != "Get_Attribute_Single_Reply" {
		t.Errorf("reply String() = %s", got)
	}
	if got := ServiceCode(0x7E).String(); got != "Unknown(0x7E)" {
		t.Errorf("unknown String() = %s", got)
	}
	if StatusName(0x04) != "Path segment error" || StatusName(0xFE) != "Unknown(0xFE)" {
		t.Error("StatusName table mismatch")
	}
}

func TestParseServiceCode(t *testing.T) {
	tests := []struct {
		in   string
		want ServiceCode
	}{
		{"Get_Attribute_Single", 0x0E},
		{"0x01", 0x01},
		{"16", 0x10},
	}
	for _, tt := range tests {
		got, err := ParseServiceCode(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseServiceCode(%q) = 0x%02X, %v", tt.in, got, err)
		}
	}
	for _, bad := range []string{"bogus", "0x8E"} {
		if _, err := ParseServiceCode(bad); err == nil {
			t.Errorf("ParseServiceCode(%q) expected error", bad)
		}
	}
}

func TestWrapUnconnectedSend(t *testing.T) {
	embedded, _ := NewRequest(ServiceGetAttributeSingle, ClassIdentity, 1, 7)
	route := epath.Path{epath.Port(1, 0)}

	req, err := WrapUnconnectedSend(embedded, route, 0x0A, 0x05)
	if err != nil {
		t.Fatalf("WrapUnconnectedSend: %v", err)
	}
	if req.Service != ServiceUnconnectedSend {
		t.Errorf("service = %s", req.Service)
	}
	if !bytes.Equal(req.Path, []byte{0x02, 0x20, 0x06, 0x24, 0x01}) {
		t.Errorf("path = % X", req.Path)
	}
	want := []byte{
		0x0A, 0x05, // priority, ticks
		0x08, 0x00, // embedded length
		0x0E, 0x03, 0x20, 0x01, 0x24, 0x01, 0x30, 0x07,
		0x01, 0x00, // route words, reserved
		0x01, 0x00, // port 1, link 0
	}
	if !bytes.Equal(req.Data, want) {
		t.Errorf("data = % X\nwant   % X", req.Data, want)
	}

	msg, gotRoute, err := ParseUnconnectedSend(req.Data)
	if err != nil {
		t.Fatalf("ParseUnconnectedSend: %v", err)
	}
	if !bytes.Equal(msg, embedded.Encode()) || !bytes.Equal(gotRoute, []byte{0x01, 0x00}) {
		t.Errorf("parsed msg % X route % X", msg, gotRoute)
	}
}

func TestWrapUnconnectedSendOddEmbedded(t *testing.T) {
	embedded := Request{Service: ServiceGetAttributeAll, Path: []byte{0x02, 0x20, 0x01, 0x24, 0x01}, Data: []byte{0xFF}}
	req, err := WrapUnconnectedSend(embedded, epath.Path{epath.Port(1, 2)}, 0x0A, 0x05)
	if err != nil {
		t.Fatalf("WrapUnconnectedSend: %v", err)
	}
	// 7-byte embedded message is followed by one pad byte.
	if req.Data[2] != 0x07 || req.Data[4+7] != 0x00 || req.Data[4+8] != 0x01 {
		t.Errorf("data = % X", req.Data)
	}
	msg, route, err := ParseUnconnectedSend(req.Data)
	if err != nil {
		t.Fatalf("ParseUnconnectedSend: %v", err)
	}
	if len(msg) != 7 || !bytes.Equal(route, []byte{0x01, 0x02}) {
		t.Errorf("msg % X route % X", msg, route)
	}
}

func TestUnwrapUnconnectedSend(t *testing.T) {
	reply, err := UnwrapUnconnectedSend([]byte{0x8E, 0x00, 0x00, 0x00, 0x2A}, ServiceGetAttributeSingle)
	if err != nil {
		t.Fatalf("embedded reply: %v", err)
	}
	if !bytes.Equal(reply.Data, []byte{0x2A}) {
		t.Errorf("data = % X", reply.Data)
	}

	_, err = UnwrapUnconnectedSend([]byte{0xD2, 0x00, 0x01, 0x01, 0x04, 0x02}, ServiceGetAttributeSingle)
	var svcErr *ServiceError
	if !errors.As(err, &svcErr) || svcErr.Service != ServiceUnconnectedSend.Reply() {
		t.Errorf("expected routing *ServiceError, got %v", err)
	}
}
