package protocol

import (
	"fmt"

	"github.com/tturner/cipengine/internal/cip/codec"
	"github.com/tturner/cipengine/internal/cip/epath"
)

// WrapUnconnectedSend embeds a request in an Unconnected Send addressed to
// the Connection Manager, routed through route.
func WrapUnconnectedSend(embedded Request, route epath.Path, priority, timeoutTicks uint8) (Request, error) {
	msg := embedded.Encode()
	if len(msg) > 0xFFFF {
		return Request{}, fmt.Errorf("embedded request of %d bytes exceeds 65535", len(msg))
	}
	routeBytes, err := route.Encode(true)
	if err != nil {
		return Request{}, fmt.Errorf("unconnected send route: %w", err)
	}
	if len(routeBytes)%2 != 0 {
		routeBytes = append(routeBytes, 0x00)
	}

	data := make([]byte, 0, 6+len(msg)+len(routeBytes)+1)
	data = append(data, priority, timeoutTicks)
	data = codec.AppendUint16(data, uint16(len(msg)))
	data = append(data, msg...)
	if len(msg)%2 != 0 {
		data = append(data, 0x00)
	}
	data = append(data, uint8(len(routeBytes)/2), 0x00)
	data = append(data, routeBytes...)

	req, err := NewRequest(ServiceUnconnectedSend, ClassConnectionManager, 1)
	if err != nil {
		return Request{}, err
	}
	req.Data = data
	return req, nil
}

// ParseUnconnectedSend splits Unconnected Send request data into the embedded
// request and the encoded route.
func ParseUnconnectedSend(data []byte) (embedded []byte, route []byte, err error) {
	if len(data) < 4 {
		return nil, nil, fmt.Errorf("unconnected send data of %d bytes: %w", len(data), ErrReplyTooShort)
	}
	size, _ := codec.DecodeUint(data[2:4])
	offset := 4
	if len(data) < offset+int(size) {
		return nil, nil, fmt.Errorf("embedded request of %d bytes truncated: %w", size, ErrReplyTooShort)
	}
	embedded = data[offset : offset+int(size)]
	offset += int(size)
	if size%2 != 0 {
		offset++
	}
	if len(data) < offset+2 {
		return embedded, nil, fmt.Errorf("route size missing: %w", ErrReplyTooShort)
	}
	words := int(data[offset])
	offset += 2
	if len(data) < offset+words*2 {
		return embedded, nil, fmt.Errorf("route of %d words truncated: %w", words, ErrReplyTooShort)
	}
	return embedded, data[offset : offset+words*2], nil
}

// UnwrapUnconnectedSend interprets a reply to an Unconnected Send carrying
// the embedded service. Routing failures come back as a reply to the wrapper
// itself and are returned as its *ServiceError; otherwise the reply is the
// embedded service's reply.
func UnwrapUnconnectedSend(data []byte, embedded ServiceCode) (*Reply, error) {
	reply, err := DecodeReply(data)
	if err != nil {
		return nil, err
	}
	if reply.Service == ServiceUnconnectedSend.Reply() && embedded != ServiceUnconnectedSend {
		if err := reply.Err(); err != nil {
			return reply, err
		}
		return reply, fmt.Errorf("unconnected send answered without embedded reply: %w", ErrServiceMismatch)
	}
	return ParseReply(data, embedded)
}
