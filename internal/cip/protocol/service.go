package protocol

import (
	"fmt"
	"strings"
)

// ServiceCode is a CIP service code. Replies carry the request code with the
// high bit set.
type ServiceCode uint8

// CIP service codes used by the client.
const (
	ServiceGetAttributeAll    ServiceCode = 0x01
	ServiceSetAttributeAll    ServiceCode = 0x02
	ServiceGetAttributeList   ServiceCode = 0x03
	ServiceSetAttributeList   ServiceCode = 0x04
	ServiceReset              ServiceCode = 0x05
	ServiceStart              ServiceCode = 0x06
	ServiceStop               ServiceCode = 0x07
	ServiceCreate             ServiceCode = 0x08
	ServiceDelete             ServiceCode = 0x09
	ServiceMultipleService    ServiceCode = 0x0A
	ServiceGetAttributeSingle ServiceCode = 0x0E
	ServiceSetAttributeSingle ServiceCode = 0x10
	ServiceNoOp               ServiceCode = 0x17
	ServiceReadTag            ServiceCode = 0x4C
	ServiceWriteTag           ServiceCode = 0x4D
	ServiceForwardClose       ServiceCode = 0x4E
	ServiceUnconnectedSend    ServiceCode = 0x52
	ServiceForwardOpen        ServiceCode = 0x54
	ServiceLargeForwardOpen   ServiceCode = 0x5B
)

// ReplyFlag is set on the service byte of every reply.
const ReplyFlag = 0x80

// Well-known object classes.
const (
	ClassIdentity          uint32 = 0x01
	ClassMessageRouter     uint32 = 0x02
	ClassConnectionManager uint32 = 0x06
)

var serviceNames = map[ServiceCode]string{
	0x01: "Get_Attribute_All",
	0x02: "Set_Attribute_All",
	0x03: "Get_Attribute_List",
	0x04: "Set_Attribute_List",
	0x05: "Reset",
	0x06: "Start",
	0x07: "Stop",
	0x08: "Create",
	0x09: "Delete",
	0x0A: "Multiple_Service_Packet",
	0x0D: "Apply_Attributes",
	0x0E: "Get_Attribute_Single",
	0x10: "Set_Attribute_Single",
	0x11: "Find_Next_Object_Instance",
	0x15: "Restore",
	0x16: "Save",
	0x17: "No_Op",
	0x18: "Get_Member",
	0x19: "Set_Member",
	0x4C: "Read_Tag",
	0x4D: "Write_Tag",
	0x4E: "Forward_Close",
	0x52: "Unconnected_Send",
	0x54: "Forward_Open",
	0x5A: "Get_Connection_Owner",
	0x5B: "Large_Forward_Open",
}

// Reply returns the service code a target answers with.
func (s ServiceCode) Reply() ServiceCode {
	return s | ReplyFlag
}

// IsReply reports whether the reply flag is set.
func (s ServiceCode) IsReply() bool {
	return s&ReplyFlag != 0
}

// Request strips the reply flag.
func (s ServiceCode) Request() ServiceCode {
	return s &^ ReplyFlag
}

func (s ServiceCode) String() string {
	name, ok := serviceNames[s.Request()]
	if !ok {
		name = fmt.Sprintf("Unknown(0x%02X)", uint8(s.Request()))
	}
	if s.IsReply() {
		return name + "_Reply"
	}
	return name
}

// ParseServiceCode accepts a service name ("Get_Attribute_Single", matched
// case-insensitively) or a numeric code ("0x0E", "14").
func ParseServiceCode(s string) (ServiceCode, error) {
	for code, name := range serviceNames {
		if strings.EqualFold(name, s) {
			return code, nil
		}
	}
	var v uint
	if _, err := fmt.Sscanf(s, "0x%x", &v); err != nil {
		if _, err := fmt.Sscanf(s, "%d", &v); err != nil {
			return 0, fmt.Errorf("unknown service %q", s)
		}
	}
	if v > 0x7F {
		return 0, fmt.Errorf("service 0x%X out of request range", v)
	}
	return ServiceCode(v), nil
}
