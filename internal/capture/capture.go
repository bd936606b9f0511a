// Package capture records the frames of a session into a pcap file as
// synthetic Ethernet/IPv4/TCP packets on port 44818, and reads them back.
package capture

import (
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// ENIPPort is the TCP port written into synthesized packets.
const ENIPPort = 44818

// Frame is one encapsulation frame recovered from a capture.
type Frame struct {
	Timestamp time.Time
	Outbound  bool
	Data      []byte
}

// Recorder writes every encapsulation frame a session exchanges to a pcap
// file as Ethernet/IPv4/TCP packets. Record matches client.FrameHook.
type Recorder struct {
	mu        sync.Mutex
	writer    *pcapgo.Writer
	closer    io.Closer
	localIP   net.IP
	remoteIP  net.IP
	localPort uint16
	clientSeq uint32
	serverSeq uint32
	packets   int
	err       error
	now       func() time.Time
}

// Create opens path and writes the pcap file header.
func Create(path string) (*Recorder, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create pcap file: %w", err)
	}
	r, err := NewRecorder(file)
	if err != nil {
		file.Close()
		return nil, err
	}
	r.closer = file
	return r, nil
}

// NewRecorder writes the pcap file header to w. Addresses default to
// 192.168.100.10 (client) and 192.168.100.20 (target).
func NewRecorder(w io.Writer) (*Recorder, error) {
	writer := pcapgo.NewWriter(w)
	if err := writer.WriteFileHeader(65535, layers.LinkTypeEthernet); err != nil {
		return nil, fmt.Errorf("write pcap header: %w", err)
	}
	return &Recorder{
		writer:    writer,
		localIP:   net.IPv4(192, 168, 100, 10).To4(),
		remoteIP:  net.IPv4(192, 168, 100, 20).To4(),
		localPort: 50000,
		clientSeq: 1,
		serverSeq: 1,
		now:       time.Now,
	}, nil
}

// SetEndpoints replaces the synthesized addresses, typically with the real
// ones from the TCP connection. Non-IPv4 addresses are ignored.
func (r *Recorder) SetEndpoints(local, remote net.Addr) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if tcp, ok := local.(*net.TCPAddr); ok && tcp.IP.To4() != nil {
		r.localIP = tcp.IP.To4()
		r.localPort = uint16(tcp.Port)
	}
	if tcp, ok := remote.(*net.TCPAddr); ok && tcp.IP.To4() != nil {
		r.remoteIP = tcp.IP.To4()
	}
}

// Record appends one frame. Write failures are kept and returned by Close.
func (r *Recorder) Record(outbound bool, frame []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return
	}
	r.err = r.writePacket(outbound, frame)
}

func (r *Recorder) writePacket(outbound bool, payload []byte) error {
	srcIP, dstIP := r.localIP, r.remoteIP
	srcPort, dstPort := r.localPort, uint16(ENIPPort)
	seq, ack := r.clientSeq, r.serverSeq
	if !outbound {
		srcIP, dstIP = dstIP, srcIP
		srcPort, dstPort = dstPort, srcPort
		seq, ack = r.serverSeq, r.clientSeq
	}

	ethernet := &layers.Ethernet{
		SrcMAC:       []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x01},
		DstMAC:       []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x02},
		EthernetType: layers.EthernetTypeIPv4,
	}
	if !outbound {
		ethernet.SrcMAC, ethernet.DstMAC = ethernet.DstMAC, ethernet.SrcMAC
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    srcIP,
		DstIP:    dstIP,
	}
	tcp := &layers.TCP{
		SrcPort: layers.TCPPort(srcPort),
		DstPort: layers.TCPPort(dstPort),
		ACK:     true,
		PSH:     true,
		Seq:     seq,
		Ack:     ack,
		Window:  65535,
	}
	_ = tcp.SetNetworkLayerForChecksum(ip)

	buffer := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{
		FixLengths:       true,
		ComputeChecksums: true,
	}
	if err := gopacket.SerializeLayers(buffer, opts, ethernet, ip, tcp, gopacket.Payload(payload)); err != nil {
		return fmt.Errorf("serialize packet: %w", err)
	}
	data := buffer.Bytes()
	if err := r.writer.WritePacket(gopacket.CaptureInfo{
		Timestamp:     r.now(),
		CaptureLength: len(data),
		Length:        len(data),
	}, data); err != nil {
		return fmt.Errorf("write packet: %w", err)
	}

	if outbound {
		r.clientSeq += uint32(len(payload))
	} else {
		r.serverSeq += uint32(len(payload))
	}
	r.packets++
	return nil
}

// Packets returns the number of packets written.
func (r *Recorder) Packets() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.packets
}

// Close closes the underlying file, if any, and reports the first write error.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	err := r.err
	if r.closer != nil {
		if cerr := r.closer.Close(); err == nil {
			err = cerr
		}
		r.closer = nil
	}
	return err
}

// ReadFrames returns the TCP payloads to or from port 44818 in a pcap
// stream. Packets without such a payload are skipped.
func ReadFrames(rd io.Reader) ([]Frame, error) {
	reader, err := pcapgo.NewReader(rd)
	if err != nil {
		return nil, fmt.Errorf("open pcap: %w", err)
	}

	var frames []Frame
	for {
		data, ci, err := reader.ReadPacketData()
		if err == io.EOF {
			return frames, nil
		}
		if err != nil {
			return frames, fmt.Errorf("read packet %d: %w", len(frames)+1, err)
		}
		packet := gopacket.NewPacket(data, reader.LinkType(), gopacket.NoCopy)
		tcpLayer, ok := packet.Layer(layers.LayerTypeTCP).(*layers.TCP)
		if !ok || len(tcpLayer.Payload) == 0 {
			continue
		}
		outbound := tcpLayer.DstPort == ENIPPort
		if !outbound && tcpLayer.SrcPort != ENIPPort {
			continue
		}
		frames = append(frames, Frame{
			Timestamp: ci.Timestamp,
			Outbound:  outbound,
			Data:      append([]byte(nil), tcpLayer.Payload...),
		})
	}
}

// ReadFile is ReadFrames on a file.
func ReadFile(path string) ([]Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pcap file: %w", err)
	}
	defer file.Close()
	return ReadFrames(file)
}
