// Package enip implements EtherNet/IP encapsulation framing: the 24-byte
// header, the Common Packet Format body and whole-frame reads from a stream.
package enip

import (
	"errors"
	"fmt"

	"github.com/tturner/cipengine/internal/cip/codec"
)

// Encapsulation command codes.
const (
	CommandNOP               uint16 = 0x0000
	CommandListServices      uint16 = 0x0004
	CommandListIdentity      uint16 = 0x0063
	CommandListInterfaces    uint16 = 0x0064
	CommandRegisterSession   uint16 = 0x0065
	CommandUnregisterSession uint16 = 0x0066
	CommandSendRRData        uint16 = 0x006F
	CommandSendUnitData      uint16 = 0x0070
)

// HeaderSize is the fixed encapsulation header length.
const HeaderSize = 24

// StatusSuccess is the only header status a client sends.
const StatusSuccess uint32 = 0x00000000

// ErrShortFrame is returned when a buffer is too short for what it claims to hold.
var ErrShortFrame = errors.New("short encapsulation frame")

// StatusError reports a nonzero encapsulation header status.
type StatusError struct {
	Command uint16
	Status  uint32
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: encapsulation status 0x%08X (%s)", CommandName(e.Command), e.Status, StatusText(e.Status))
}

// StatusText describes an encapsulation status code.
func StatusText(status uint32) string {
	switch status {
	case 0x0000:
		return "success"
	case 0x0001:
		return "invalid or unsupported command"
	case 0x0002:
		return "insufficient memory"
	case 0x0003:
		return "incorrect data"
	case 0x0064:
		return "invalid session handle"
	case 0x0065:
		return "invalid length"
	case 0x0069:
		return "unsupported protocol revision"
	default:
		return "unknown"
	}
}

// CommandName returns a short label for an encapsulation command.
func CommandName(command uint16) string {
	switch command {
	case CommandNOP:
		return "NOP"
	case CommandListServices:
		return "ListServices"
	case CommandListIdentity:
		return "ListIdentity"
	case CommandListInterfaces:
		return "ListInterfaces"
	case CommandRegisterSession:
		return "RegisterSession"
	case CommandUnregisterSession:
		return "UnregisterSession"
	case CommandSendRRData:
		return "SendRRData"
	case CommandSendUnitData:
		return "SendUnitData"
	default:
		return fmt.Sprintf("Command(0x%04X)", command)
	}
}

// Header is the EtherNet/IP encapsulation header.
type Header struct {
	Command       uint16
	Length        uint16
	SessionHandle uint32
	Status        uint32
	SenderContext [8]byte
	Options       uint32
}

// Encapsulation is a header together with its body.
type Encapsulation struct {
	Header
	Data []byte
}

// BuildHeader returns the 24-byte header for an outgoing frame. Status is always 0.
func BuildHeader(command uint16, length uint16, sessionHandle uint32, context [8]byte, options uint32) []byte {
	header := make([]byte, 0, HeaderSize)
	header = codec.AppendUint16(header, command)
	header = codec.AppendUint16(header, length)
	header = codec.AppendUint32(header, sessionHandle)
	header = codec.AppendUint32(header, StatusSuccess)
	header = append(header, context[:]...)
	header = codec.AppendUint32(header, options)
	return header
}

// Encode serializes the frame. Length is taken from Data, not from the header.
func (e Encapsulation) Encode() ([]byte, error) {
	if len(e.Data) > 0xFFFF {
		return nil, fmt.Errorf("%s body of %d bytes exceeds 65535", CommandName(e.Command), len(e.Data))
	}
	header := BuildHeader(e.Command, uint16(len(e.Data)), e.SessionHandle, e.SenderContext, e.Options)
	return append(header, e.Data...), nil
}

// DecodeHeader parses the first 24 bytes of data.
func DecodeHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, fmt.Errorf("header of %d bytes (minimum %d): %w", len(data), HeaderSize, ErrShortFrame)
	}
	var h Header
	h.Command = uint16(data[0]) | uint16(data[1])<<8
	h.Length = uint16(data[2]) | uint16(data[3])<<8
	h.SessionHandle, _ = codec.DecodeUint(data[4:8])
	h.Status, _ = codec.DecodeUint(data[8:12])
	copy(h.SenderContext[:], data[12:20])
	h.Options, _ = codec.DecodeUint(data[20:24])
	return h, nil
}

// Decode parses a whole frame and checks the body length against the header.
func Decode(data []byte) (Encapsulation, error) {
	h, err := DecodeHeader(data)
	if err != nil {
		return Encapsulation{}, err
	}
	body := data[HeaderSize:]
	if len(body) < int(h.Length) {
		return Encapsulation{Header: h}, fmt.Errorf("%s body has %d bytes, header says %d: %w",
			CommandName(h.Command), len(body), h.Length, ErrShortFrame)
	}
	return Encapsulation{Header: h, Data: body[:h.Length]}, nil
}

// Expect validates that a decoded reply answers the given command and carries
// a success status.
func (e Encapsulation) Expect(command uint16) error {
	if e.Command != command {
		return fmt.Errorf("reply command %s does not match request %s", CommandName(e.Command), CommandName(command))
	}
	if e.Status != StatusSuccess {
		return &StatusError{Command: e.Command, Status: e.Status}
	}
	return nil
}

// BuildRegisterSession returns a RegisterSession frame for protocol version 1.
func BuildRegisterSession(context [8]byte, protocolVersion uint16) []byte {
	body := codec.AppendUint16(nil, protocolVersion)
	body = codec.AppendUint16(body, 0)
	frame, _ := Encapsulation{
		Header: Header{Command: CommandRegisterSession, SenderContext: context},
		Data:   body,
	}.Encode()
	return frame
}

// BuildUnregisterSession returns an UnregisterSession frame for the handle.
func BuildUnregisterSession(sessionHandle uint32, context [8]byte) []byte {
	return BuildHeader(CommandUnregisterSession, 0, sessionHandle, context, 0)
}

// BuildListIdentity returns a ListIdentity frame. The session handle is always 0.
func BuildListIdentity(context [8]byte) []byte {
	return BuildHeader(CommandListIdentity, 0, 0, context, 0)
}

// BuildNOP returns a NOP frame carrying optional filler data.
func BuildNOP(context [8]byte, data []byte) []byte {
	frame, _ := Encapsulation{
		Header: Header{Command: CommandNOP, SenderContext: context},
		Data:   data,
	}.Encode()
	return frame
}
