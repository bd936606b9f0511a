package client

import "time"

// DefaultPort is the EtherNet/IP explicit messaging TCP port.
const DefaultPort = 44818

// DefaultTimeout bounds every request/reply exchange.
const DefaultTimeout = 5 * time.Second

// DefaultSenderContext is echoed by the target on every reply.
var DefaultSenderContext = [8]byte{'_', 's', 'o', 'n', 'a', 'r', '_', '_'}

// Connection defaults.
const (
	DefaultSerialNumber     uint16 = 0x0427
	DefaultVendorID         uint16 = 0x1009
	DefaultOriginatorSerial uint32 = 0

	standardConnectionSize = 500
	extendedConnectionSize = 4000
	// Point-to-point, low priority, variable size.
	netParamsReserved uint16 = 0x4200
)

// Tuning holds the protocol timing constants sent in Connection Manager
// requests.
type Tuning struct {
	Priority          uint8  // priority/time_tick
	TimeoutTicks      uint8  // timeout ticks
	TimeoutMultiplier uint8  // connection timeout multiplier
	RPI               uint32 // requested packet interval, microseconds, both directions
	TransportTrigger  uint8  // transport class and trigger
	ProtocolVersion   uint16 // RegisterSession protocol version
}

// DefaultTuning returns the tuning used when none is configured.
func DefaultTuning() Tuning {
	return Tuning{
		Priority:          0x0A,
		TimeoutTicks:      0x05,
		TimeoutMultiplier: 0x07,
		RPI:               0x00204001,
		TransportTrigger:  0xA3,
		ProtocolVersion:   1,
	}
}
