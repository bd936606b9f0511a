package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/tturner/cipengine/internal/cip/protocol"
	"github.com/tturner/cipengine/internal/enip"
	"github.com/tturner/cipengine/internal/metrics"
)

// labelWidth aligns "key: value" rows.
const labelWidth = 14

func row(label, value string) string {
	return headerStyle.Render(fmt.Sprintf("%-*s", labelWidth, label)) + value
}

// RenderReply formats a CIP reply for the terminal.
func RenderReply(title string, reply *protocol.Reply) string {
	lines := []string{titleStyle.Render(title), ""}
	if reply == nil {
		lines = append(lines, dimStyle.Render("(no reply)"))
		return borderStyle.Render(strings.Join(lines, "\n"))
	}

	status := fmt.Sprintf("0x%02X %s", reply.GeneralStatus, protocol.StatusName(reply.GeneralStatus))
	if reply.OK() {
		status = successStyle.Render(status)
	} else {
		status = errorStyle.Render(status)
	}
	lines = append(lines,
		row("Service", reply.Service.String()),
		row("Status", status),
	)
	if len(reply.AdditionalStatus) > 0 {
		words := make([]string, len(reply.AdditionalStatus))
		for i, w := range reply.AdditionalStatus {
			words[i] = fmt.Sprintf("0x%04X", w)
		}
		lines = append(lines, row("Additional", warningStyle.Render(strings.Join(words, " "))))
	}
	lines = append(lines, row("Data", fmt.Sprintf("%d bytes", len(reply.Data))))
	if len(reply.Data) > 0 {
		lines = append(lines, "", HexDump(reply.Data))
	}
	return borderStyle.Render(strings.Join(lines, "\n"))
}

// RenderIdentity formats ListIdentity results, one box per device.
func RenderIdentity(identities []enip.Identity) string {
	if len(identities) == 0 {
		return dimStyle.Render("No identity items in reply")
	}
	boxes := make([]string, 0, len(identities))
	for _, id := range identities {
		lines := []string{
			titleStyle.Render(id.ProductName),
			"",
			row("Address", fmt.Sprintf("%s:%d", id.IP, id.Port)),
			row("Vendor", fmt.Sprintf("0x%04X", id.VendorID)),
			row("Device type", fmt.Sprintf("0x%04X", id.DeviceType)),
			row("Product code", fmt.Sprintf("0x%04X", id.ProductCode)),
			row("Revision", id.Revision()),
			row("Serial", fmt.Sprintf("0x%08X", id.SerialNumber)),
			row("Status", fmt.Sprintf("0x%04X", id.Status)),
			row("State", fmt.Sprintf("0x%02X", id.State)),
		}
		boxes = append(boxes, borderStyle.Render(strings.Join(lines, "\n")))
	}
	return lipgloss.JoinVertical(lipgloss.Left, boxes...)
}

// RenderSummary formats a metrics summary.
func RenderSummary(summary *metrics.Summary) string {
	if summary == nil || summary.TotalOperations == 0 {
		return dimStyle.Render("No operations recorded")
	}
	failed := fmt.Sprintf("%d", summary.FailedOps)
	if summary.FailedOps > 0 {
		failed = errorStyle.Render(failed)
	}
	lines := []string{
		titleStyle.Render("Session summary"),
		"",
		row("Operations", fmt.Sprintf("%d", summary.TotalOperations)),
		row("Succeeded", successStyle.Render(fmt.Sprintf("%d", summary.SuccessfulOps))),
		row("Failed", failed),
		row("RTT", fmt.Sprintf("min %.3fms avg %.3fms max %.3fms", summary.MinRTT, summary.AvgRTT, summary.MaxRTT)),
	}
	return borderStyle.Render(strings.Join(lines, "\n"))
}

// HexDump renders data 16 bytes per line with an offset column.
func HexDump(data []byte) string {
	var b strings.Builder
	for off := 0; off < len(data); off += 16 {
		end := off + 16
		if end > len(data) {
			end = len(data)
		}
		if off > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(dimStyle.Render(fmt.Sprintf("%04x", off)))
		b.WriteString("  ")
		b.WriteString(fmt.Sprintf("% x", data[off:end]))
	}
	return b.String()
}
