package client

import (
	"context"
	"fmt"
	"time"

	"github.com/tturner/cipengine/internal/cip/codec"
	"github.com/tturner/cipengine/internal/cip/epath"
	"github.com/tturner/cipengine/internal/cip/protocol"
	"github.com/tturner/cipengine/internal/enip"
	"github.com/tturner/cipengine/internal/metrics"
)

// Message is a generic CIP request addressed by class, instance and an
// optional attribute.
type Message struct {
	Service   protocol.ServiceCode
	Class     uint32
	Instance  uint32
	Attribute *uint32
	Data      []byte
}

// Attribute returns a pointer for Message.Attribute.
func Attribute(id uint32) *uint32 {
	return &id
}

// Request builds the Message Router request.
func (m Message) Request() (protocol.Request, error) {
	var (
		req protocol.Request
		err error
	)
	if m.Attribute != nil {
		req, err = protocol.NewRequest(m.Service, m.Class, m.Instance, *m.Attribute)
	} else {
		req, err = protocol.NewRequest(m.Service, m.Class, m.Instance)
	}
	if err != nil {
		return protocol.Request{}, err
	}
	req.Data = m.Data
	return req, nil
}

func (m Message) String() string {
	if m.Attribute != nil {
		return fmt.Sprintf("%s class 0x%X instance %d attribute %d", m.Service, m.Class, m.Instance, *m.Attribute)
	}
	return fmt.Sprintf("%s class 0x%X instance %d", m.Service, m.Class, m.Instance)
}

// SendConnected sends msg over an open connection with SendUnitData.
func (s *Session) SendConnected(ctx context.Context, c *Connection, msg Message) (*protocol.Reply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !c.Connected() {
		return nil, ErrNotConnected
	}
	if s.state != StateRegistered {
		return nil, ErrNotRegistered
	}
	start := time.Now()
	req, err := msg.Request()
	if err != nil {
		return nil, err
	}

	// The sequence number is drawn under s.mu so it is ordered with the write.
	seq := c.Sequence.Next()
	payload := codec.AppendUint16(make([]byte, 0, 2+len(req.Path)+len(req.Data)+1), seq)
	payload = append(payload, req.Encode()...)

	body, err := enip.CPF{
		AddressType: enip.ItemConnectionAddress,
		AddressData: c.TargetCID[:],
		DataType:    enip.ItemConnectedData,
		Message:     payload,
	}.Build()
	if err != nil {
		return nil, err
	}

	data, err := s.exchange(ctx, enip.CommandSendUnitData, body)
	if err == nil && len(data) < 2 {
		err = fmt.Errorf("connected reply missing sequence number: %w", protocol.ErrReplyTooShort)
	}
	if err != nil {
		s.observe(metrics.OperationSendConnected, msg.Service.String(), start, 0, err)
		return nil, err
	}
	if echoed := uint16(data[0]) | uint16(data[1])<<8; echoed != seq {
		s.logger.Debug("Connected reply sequence %d, sent %d", echoed, seq)
	}

	reply, err := protocol.ParseReply(data[2:], msg.Service)
	s.observe(metrics.OperationSendConnected, msg.Service.String(), start, replyStatus(reply), err)
	return reply, err
}

// SendUnconnected sends msg with SendRRData. A non-empty route wraps it in an
// Unconnected Send so the Connection Manager forwards it.
func (s *Session) SendUnconnected(ctx context.Context, msg Message, route epath.Path) (*protocol.Reply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	req, err := msg.Request()
	if err != nil {
		return nil, err
	}

	var reply *protocol.Reply
	if len(route) > 0 {
		wrapped, werr := protocol.WrapUnconnectedSend(req, route, s.tuning.Priority, s.tuning.TimeoutTicks)
		if werr != nil {
			return nil, werr
		}
		var data []byte
		data, err = s.sendRRDataRaw(ctx, wrapped)
		if err == nil {
			reply, err = protocol.UnwrapUnconnectedSend(data, msg.Service)
		}
	} else {
		reply, err = s.sendRRData(ctx, req, msg.Service)
	}
	s.observe(metrics.OperationSendUnconnected, msg.Service.String(), start, replyStatus(reply), err)
	return reply, err
}

// sendRRData sends req unconnected and parses the reply to service.
func (s *Session) sendRRData(ctx context.Context, req protocol.Request, service protocol.ServiceCode) (*protocol.Reply, error) {
	data, err := s.sendRRDataRaw(ctx, req)
	if err != nil {
		return nil, err
	}
	return protocol.ParseReply(data, service)
}

func (s *Session) sendRRDataRaw(ctx context.Context, req protocol.Request) ([]byte, error) {
	if s.state != StateRegistered {
		return nil, ErrNotRegistered
	}
	body, err := enip.CPF{
		Timeout:     uint16(s.timeout / time.Second),
		AddressType: enip.ItemNullAddress,
		DataType:    enip.ItemUnconnectedData,
		Message:     req.Encode(),
	}.Build()
	if err != nil {
		return nil, err
	}
	return s.exchange(ctx, enip.CommandSendRRData, body)
}

// exchange sends a SendRRData or SendUnitData body on the session and
// returns the payload of the reply's data item.
func (s *Session) exchange(ctx context.Context, command uint16, body []byte) ([]byte, error) {
	frame, err := enip.Encapsulation{
		Header: enip.Header{
			Command:       command,
			SessionHandle: s.handle,
			SenderContext: s.senderContext,
		},
		Data: body,
	}.Encode()
	if err != nil {
		return nil, err
	}
	reply, err := s.roundTrip(ctx, command, frame)
	if err != nil {
		return nil, err
	}
	cpf, err := enip.ParseCommandData(reply.Data)
	if err != nil {
		return nil, fmt.Errorf("%s reply: %w", enip.CommandName(command), err)
	}
	item, err := cpf.DataItem()
	if err != nil {
		return nil, fmt.Errorf("%s reply: %w", enip.CommandName(command), err)
	}
	return item.Data, nil
}
