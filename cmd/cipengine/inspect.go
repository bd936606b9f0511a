package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tturner/cipengine/internal/capture"
	"github.com/tturner/cipengine/internal/cip/epath"
	"github.com/tturner/cipengine/internal/cip/protocol"
	"github.com/tturner/cipengine/internal/enip"
)

func newInspectCmd() *cobra.Command {
	var showHex bool
	cmd := &cobra.Command{
		Use:   "inspect <file.pcap>",
		Short: "Decode the EtherNet/IP frames in a capture",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			frames, err := capture.ReadFile(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for i, frame := range frames {
				fmt.Fprintf(out, "%4d %s %s\n", i+1, direction(frame.Outbound), describeFrame(frame.Data, frame.Outbound))
				if showHex {
					fmt.Fprintf(out, "     % X\n", frame.Data)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showHex, "hex", false, "Also print each frame as hex")
	return cmd
}

func direction(outbound bool) string {
	if outbound {
		return ">>"
	}
	return "<<"
}

// describeFrame summarizes one encapsulation frame and, for SendRRData and
// SendUnitData, the CIP message it carries.
func describeFrame(data []byte, outbound bool) string {
	encap, err := enip.Decode(data)
	if err != nil {
		return fmt.Sprintf("undecodable: %v", err)
	}
	parts := []string{
		enip.CommandName(encap.Command),
		fmt.Sprintf("session=0x%08X", encap.SessionHandle),
	}
	if encap.Status != enip.StatusSuccess {
		parts = append(parts, fmt.Sprintf("status=0x%04X (%s)", encap.Status, enip.StatusText(encap.Status)))
	}

	switch encap.Command {
	case enip.CommandSendRRData, enip.CommandSendUnitData:
		parts = append(parts, describeCIP(encap, outbound))
	case enip.CommandListIdentity:
		if !outbound {
			if ids, err := enip.ParseListIdentity(encap.Data); err == nil {
				for _, id := range ids {
					parts = append(parts, fmt.Sprintf("%q rev %s", id.ProductName, id.Revision()))
				}
			}
		}
	}
	return strings.Join(parts, " ")
}

func describeCIP(encap enip.Encapsulation, outbound bool) string {
	cpf, err := enip.ParseCommandData(encap.Data)
	if err != nil {
		return fmt.Sprintf("cpf error: %v", err)
	}
	item, err := cpf.DataItem()
	if err != nil {
		return fmt.Sprintf("cpf error: %v", err)
	}
	msg := item.Data
	prefix := ""
	if item.TypeID == enip.ItemConnectedData {
		if len(msg) < 2 {
			return "connected item without sequence"
		}
		prefix = fmt.Sprintf("seq=%d ", uint16(msg[0])|uint16(msg[1])<<8)
		msg = msg[2:]
	}
	if len(msg) == 0 {
		return prefix + "empty CIP message"
	}
	if outbound {
		return prefix + describeRequest(msg)
	}
	reply, err := protocol.DecodeReply(msg)
	if err != nil {
		return prefix + err.Error()
	}
	return fmt.Sprintf("%s%s status=0x%02X (%s) data=%d bytes", prefix, reply.Service,
		reply.GeneralStatus, protocol.StatusName(reply.GeneralStatus), len(reply.Data))
}

// describeRequest decodes a Message Router request: service, padded request
// path and data. Unconnected Send requests show their route and the embedded
// request.
func describeRequest(msg []byte) string {
	service := protocol.ServiceCode(msg[0])
	if len(msg) < 2 || len(msg) < 2+int(msg[1])*2 {
		return fmt.Sprintf("%s truncated request (%d bytes)", service, len(msg))
	}
	pathEnd := 2 + int(msg[1])*2
	desc := service.String()
	if path, err := epath.Decode(msg[2:pathEnd], true); err == nil {
		desc += fmt.Sprintf(" path=[%s]", path)
	} else {
		desc += fmt.Sprintf(" path=% X (%v)", msg[2:pathEnd], err)
	}
	data := msg[pathEnd:]

	if service != protocol.ServiceUnconnectedSend {
		return fmt.Sprintf("%s data=%d bytes", desc, len(data))
	}
	embedded, route, err := protocol.ParseUnconnectedSend(data)
	if err != nil {
		return fmt.Sprintf("%s %v", desc, err)
	}
	if len(embedded) == 0 {
		return desc + " empty embedded request"
	}
	routePath, err := epath.Decode(route, true)
	if err != nil {
		return fmt.Sprintf("%s route=% X (%v)", desc, route, err)
	}
	return fmt.Sprintf("%s route=[%s] embedded: %s", desc, routePath, describeRequest(embedded))
}
