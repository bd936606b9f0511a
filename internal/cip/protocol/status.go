package protocol

import (
	"fmt"
	"strings"
)

// General status codes that callers commonly branch on.
const (
	StatusSuccess               uint8 = 0x00
	StatusConnectionFailed      uint8 = 0x01
	StatusPathSegmentError      uint8 = 0x04
	StatusPathUnknown           uint8 = 0x05
	StatusPartialTransfer       uint8 = 0x06
	StatusNotSupported          uint8 = 0x08
	StatusAttributeNotSupported uint8 = 0x14
	StatusEmbeddedService       uint8 = 0x1E
)

var statusNames = map[uint8]string{
	0x00: "Success",
	0x01: "Connection failure",
	0x02: "Resource unavailable",
	0x03: "Invalid parameter value",
	0x04: "Path segment error",
	0x05: "Path destination unknown",
	0x06: "Partial transfer",
	0x07: "Connection lost",
	0x08: "Service not supported",
	0x09: "Invalid attribute value",
	0x0A: "Attribute list error",
	0x0B: "Already in requested mode/state",
	0x0C: "Object state conflict",
	0x0D: "Object already exists",
	0x0E: "Attribute not settable",
	0x0F: "Privilege violation",
	0x10: "Device state conflict",
	0x11: "Reply data too large",
	0x13: "Not enough data",
	0x14: "Attribute not supported",
	0x15: "Too much data",
	0x16: "Object does not exist",
	0x1E: "Embedded service error",
	0x1F: "Vendor specific error",
	0x20: "Invalid parameter",
	0x26: "Path size invalid",
}

// StatusName returns the display name of a CIP general status.
func StatusName(status uint8) string {
	if name, ok := statusNames[status]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(0x%02X)", status)
}

// ServiceError is a reply whose general status is not success.
type ServiceError struct {
	Service          ServiceCode
	GeneralStatus    uint8
	AdditionalStatus []uint16
}

func (e *ServiceError) Error() string {
	msg := fmt.Sprintf("%s failed: general status 0x%02X (%s)",
		e.Service.Request(), e.GeneralStatus, StatusName(e.GeneralStatus))
	if len(e.AdditionalStatus) > 0 {
		words := make([]string, len(e.AdditionalStatus))
		for i, w := range e.AdditionalStatus {
			words[i] = fmt.Sprintf("0x%04X", w)
		}
		msg += ", additional status [" + strings.Join(words, " ") + "]"
	}
	return msg
}

// ExtendedStatus returns the first additional status word, or 0.
func (e *ServiceError) ExtendedStatus() uint16 {
	if len(e.AdditionalStatus) == 0 {
		return 0
	}
	return e.AdditionalStatus[0]
}
