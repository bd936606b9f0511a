// Package protocol encodes CIP Message Router requests and decodes their
// replies.
package protocol

import (
	"errors"
	"fmt"

	"github.com/tturner/cipengine/internal/cip/codec"
	"github.com/tturner/cipengine/internal/cip/epath"
)

var (
	// ErrReplyTooShort means the reply ended before its envelope did.
	ErrReplyTooShort = errors.New("cip reply too short")
	// ErrServiceMismatch means the reply service does not answer the request.
	ErrServiceMismatch = errors.New("cip reply service does not match request")
)

// Request is a Message Router request. Path holds the length-prefixed EPATH.
type Request struct {
	Service ServiceCode
	Path    []byte
	Data    []byte
}

// NewRequest builds a request addressed to class/instance and, when given,
// one attribute.
func NewRequest(service ServiceCode, class, instance uint32, attribute ...uint32) (Request, error) {
	path, err := epath.BuildRequestPath(class, instance, attribute...)
	if err != nil {
		return Request{}, fmt.Errorf("%s request path: %w", service, err)
	}
	return Request{Service: service, Path: path}, nil
}

// Encode returns service, path and data back to back.
func (r Request) Encode() []byte {
	out := make([]byte, 0, 1+len(r.Path)+len(r.Data))
	out = append(out, uint8(r.Service))
	out = append(out, r.Path...)
	return append(out, r.Data...)
}

// Reply is a decoded Message Router reply.
type Reply struct {
	Service          ServiceCode
	GeneralStatus    uint8
	AdditionalStatus []uint16
	Data             []byte
}

// OK reports a success general status.
func (r *Reply) OK() bool {
	return r.GeneralStatus == StatusSuccess
}

// Err returns a *ServiceError for a failed reply and nil otherwise.
func (r *Reply) Err() error {
	if r.OK() {
		return nil
	}
	return &ServiceError{
		Service:          r.Service,
		GeneralStatus:    r.GeneralStatus,
		AdditionalStatus: r.AdditionalStatus,
	}
}

// DecodeReply parses the reply envelope: service, reserved, general status,
// additional status size in words, the additional status words, then data.
// The general status is not interpreted.
func DecodeReply(data []byte) (*Reply, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("%d bytes (minimum 4: service + reserved + status + size): %w", len(data), ErrReplyTooShort)
	}
	reply := &Reply{
		Service:       ServiceCode(data[0]),
		GeneralStatus: data[2],
	}
	words := int(data[3])
	offset := 4
	if len(data) < offset+words*2 {
		return nil, fmt.Errorf("additional status of %d words truncated at %d bytes: %w", words, len(data)-offset, ErrReplyTooShort)
	}
	if words > 0 {
		reply.AdditionalStatus = make([]uint16, words)
		for i := range reply.AdditionalStatus {
			w, _ := codec.DecodeUint(data[offset : offset+2])
			reply.AdditionalStatus[i] = uint16(w)
			offset += 2
		}
	}
	if len(data) > offset {
		reply.Data = data[offset:]
	}
	return reply, nil
}

// ParseReply decodes a reply to the given request service. A failed general
// status yields the reply together with a *ServiceError.
func ParseReply(data []byte, request ServiceCode) (*Reply, error) {
	reply, err := DecodeReply(data)
	if err != nil {
		return nil, err
	}
	if reply.Service != request.Reply() {
		return reply, fmt.Errorf("got %s for %s: %w", reply.Service, request, ErrServiceMismatch)
	}
	return reply, reply.Err()
}
