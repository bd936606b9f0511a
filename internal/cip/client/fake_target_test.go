package client

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/tturner/cipengine/internal/cip/codec"
	"github.com/tturner/cipengine/internal/cip/protocol"
	"github.com/tturner/cipengine/internal/enip"
)

// fakeTarget answers frames on one side of a net.Pipe. respond returns the
// reply frame, or nil to stay silent.
type fakeTarget struct {
	conn     net.Conn
	handle   uint32
	requests chan enip.Encapsulation
	respond  func(req enip.Encapsulation) []byte
}

func newFakeTarget(t *testing.T, respond func(ft *fakeTarget, req enip.Encapsulation) []byte) (*fakeTarget, *TCPTransport) {
	t.Helper()
	clientSide, targetSide := net.Pipe()
	ft := &fakeTarget{
		conn:     targetSide,
		handle:   0x42,
		requests: make(chan enip.Encapsulation, 32),
	}
	ft.respond = func(req enip.Encapsulation) []byte { return respond(ft, req) }
	go ft.serve()
	t.Cleanup(func() {
		clientSide.Close()
		targetSide.Close()
	})
	return ft, NewConnTransport(clientSide)
}

func (ft *fakeTarget) serve() {
	for {
		raw, err := enip.ReadFrame(ft.conn)
		if err != nil {
			return
		}
		req, err := enip.Decode(raw)
		if err != nil {
			return
		}
		ft.requests <- req
		if reply := ft.respond(req); reply != nil {
			if _, err := ft.conn.Write(reply); err != nil {
				return
			}
		}
	}
}

// drain returns every request recorded so far.
func (ft *fakeTarget) drain() []enip.Encapsulation {
	var out []enip.Encapsulation
	for {
		select {
		case req := <-ft.requests:
			out = append(out, req)
		default:
			return out
		}
	}
}

// next waits for the next recorded request.
func (ft *fakeTarget) next(t *testing.T) enip.Encapsulation {
	t.Helper()
	select {
	case req := <-ft.requests:
		return req
	case <-time.After(2 * time.Second):
		t.Fatal("target received no request")
		return enip.Encapsulation{}
	}
}

func (ft *fakeTarget) reply(req enip.Encapsulation, body []byte) []byte {
	frame, _ := enip.Encapsulation{
		Header: enip.Header{
			Command:       req.Command,
			SessionHandle: ft.handle,
			SenderContext: req.SenderContext,
		},
		Data: body,
	}.Encode()
	return frame
}

func (ft *fakeTarget) replyWithStatus(req enip.Encapsulation, status uint32) []byte {
	frame := ft.reply(req, nil)
	codec.PutUint32(frame[8:12], status)
	return frame
}

func rrDataReply(cip []byte) []byte {
	body, _ := enip.CPF{
		AddressType: enip.ItemNullAddress,
		DataType:    enip.ItemUnconnectedData,
		Message:     cip,
	}.Build()
	return body
}

func unitDataReply(cid []byte, seq uint16, cip []byte) []byte {
	body, _ := enip.CPF{
		AddressType: enip.ItemConnectionAddress,
		AddressData: cid,
		DataType:    enip.ItemConnectedData,
		Message:     append(codec.AppendUint16(nil, seq), cip...),
	}.Build()
	return body
}

// cipRequest extracts the CIP request carried by a SendRRData or
// SendUnitData frame. For connected frames the sequence number is returned
// separately.
func cipRequest(t *testing.T, req enip.Encapsulation) (data []byte, seq uint16) {
	t.Helper()
	cpf, err := enip.ParseCommandData(req.Data)
	if err != nil {
		t.Fatalf("target could not parse CPF: %v", err)
	}
	item, err := cpf.DataItem()
	if err != nil {
		t.Fatalf("target found no data item: %v", err)
	}
	if item.TypeID == enip.ItemConnectedData {
		return item.Data[2:], uint16(item.Data[0]) | uint16(item.Data[1])<<8
	}
	return item.Data, 0
}

// standardTarget registers sessions, accepts ForwardOpen/ForwardClose with
// target CID AA BB CC DD, and answers any other service with data 0x2A 0x00.
func standardTarget(t *testing.T) func(ft *fakeTarget, req enip.Encapsulation) []byte {
	return func(ft *fakeTarget, req enip.Encapsulation) []byte {
		switch req.Command {
		case enip.CommandRegisterSession:
			return ft.reply(req, []byte{0x01, 0x00, 0x00, 0x00})
		case enip.CommandSendRRData:
			cip, _ := cipRequest(t, req)
			service := protocol.ServiceCode(cip[0])
			switch service {
			case protocol.ServiceForwardOpen, protocol.ServiceLargeForwardOpen:
				return ft.reply(req, rrDataReply([]byte{
					uint8(service.Reply()), 0x00, 0x00, 0x00,
					0xAA, 0xBB, 0xCC, 0xDD, // O->T connection id
					0x11, 0x22, 0x33, 0x44, // T->O connection id
				}))
			case protocol.ServiceForwardClose:
				return ft.reply(req, rrDataReply([]byte{uint8(service.Reply()), 0x00, 0x00, 0x00}))
			default:
				return ft.reply(req, rrDataReply([]byte{uint8(service.Reply()), 0x00, 0x00, 0x00, 0x2A, 0x00}))
			}
		case enip.CommandSendUnitData:
			cip, seq := cipRequest(t, req)
			return ft.reply(req, unitDataReply([]byte{0x11, 0x22, 0x33, 0x44}, seq,
				[]byte{cip[0] | 0x80, 0x00, 0x00, 0x00, 0x2A, 0x00}))
		default:
			return nil
		}
	}
}

func openTestSession(t *testing.T, respond func(ft *fakeTarget, req enip.Encapsulation) []byte, opts ...SessionOption) (*fakeTarget, *Session) {
	t.Helper()
	ft, transport := newFakeTarget(t, respond)
	opts = append([]SessionOption{WithTimeout(2 * time.Second)}, opts...)
	s, err := OpenSession(context.Background(), transport, opts...)
	if err != nil {
		t.Fatalf("OpenSession: %v", err)
	}
	ft.drain()
	return ft, s
}
