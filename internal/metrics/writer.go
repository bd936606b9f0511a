package metrics

// Metrics output (CSV) and summary formatting

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"
)

// Writer appends metrics to a CSV file.
type Writer struct {
	file      *os.File
	csvWriter *csv.Writer
}

var csvHeader = []string{
	"timestamp",
	"target",
	"operation",
	"service",
	"success",
	"rtt_ms",
	"jitter_ms",
	"status",
	"error",
}

// NewWriter creates a CSV writer at path.
func NewWriter(path string) (*Writer, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create CSV file: %w", err)
	}
	w := &Writer{file: file, csvWriter: csv.NewWriter(file)}
	if err := w.csvWriter.Write(csvHeader); err != nil {
		file.Close()
		return nil, fmt.Errorf("write CSV header: %w", err)
	}
	w.csvWriter.Flush()
	return w, nil
}

// WriteMetric writes a single metric
func (w *Writer) WriteMetric(m Metric) error {
	record := []string{
		m.Timestamp.Format(time.RFC3339Nano),
		m.Target,
		string(m.Operation),
		m.Service,
		fmt.Sprintf("%t", m.Success),
		formatRTT(m.RTTMs),
		formatRTT(m.JitterMs),
		fmt.Sprintf("%d", m.Status),
		m.Error,
	}
	if err := w.csvWriter.Write(record); err != nil {
		return fmt.Errorf("write CSV record: %w", err)
	}
	w.csvWriter.Flush()
	return w.csvWriter.Error()
}

// WriteAll writes every metric recorded by the sink.
func (w *Writer) WriteAll(s *Sink) error {
	for _, m := range s.GetMetrics() {
		if err := w.WriteMetric(m); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes and closes the file.
func (w *Writer) Close() error {
	w.csvWriter.Flush()
	if err := w.csvWriter.Error(); err != nil {
		w.file.Close()
		return fmt.Errorf("flush CSV: %w", err)
	}
	return w.file.Close()
}

// formatRTT formats RTT value for CSV (empty string if 0)
func formatRTT(rtt float64) string {
	if rtt == 0 {
		return ""
	}
	return fmt.Sprintf("%.3f", rtt)
}

// FormatSummary formats a summary for human-readable output
func FormatSummary(summary *Summary) string {
	var b strings.Builder
	WriteSummary(&b, summary)
	return b.String()
}

// WriteSummary writes the human-readable summary to w.
func WriteSummary(w io.Writer, summary *Summary) {
	if summary.TotalOperations == 0 {
		fmt.Fprintln(w, "Total Operations: 0")
		return
	}
	total := float64(summary.TotalOperations)
	fmt.Fprintf(w, "Total Operations: %d\n", summary.TotalOperations)
	fmt.Fprintf(w, "Successful: %d (%.1f%%)\n", summary.SuccessfulOps, float64(summary.SuccessfulOps)/total*100)
	fmt.Fprintf(w, "Failed: %d (%.1f%%)\n", summary.FailedOps, float64(summary.FailedOps)/total*100)
	if summary.TimeoutCount > 0 {
		fmt.Fprintf(w, "Timeouts: %d\n", summary.TimeoutCount)
	}
	if summary.ConnectionFailures > 0 {
		fmt.Fprintf(w, "Connection Failures: %d\n", summary.ConnectionFailures)
	}

	if summary.SuccessfulOps > 0 {
		fmt.Fprintf(w, "\nRTT Statistics (all operations):\n")
		fmt.Fprintf(w, "  Min: %.3f ms\n", summary.MinRTT)
		fmt.Fprintf(w, "  Max: %.3f ms\n", summary.MaxRTT)
		fmt.Fprintf(w, "  Avg: %.3f ms\n", summary.AvgRTT)
		fmt.Fprintf(w, "  P50: %.3f ms  P90: %.3f ms  P99: %.3f ms\n", summary.P50RTT, summary.P90RTT, summary.P99RTT)
	}
	if summary.AvgJitter > 0 {
		fmt.Fprintf(w, "  Jitter: avg=%.3f ms max=%.3f ms\n", summary.AvgJitter, summary.MaxJitter)
	}

	if len(summary.RTTByOperation) > 0 {
		ops := make([]string, 0, len(summary.RTTByOperation))
		for op := range summary.RTTByOperation {
			ops = append(ops, string(op))
		}
		sort.Strings(ops)
		fmt.Fprintf(w, "\nPer-Operation Statistics:\n")
		for _, op := range ops {
			stats := summary.RTTByOperation[OperationType(op)]
			fmt.Fprintf(w, "  %s: %d ops (%d success, %d failed)", op, stats.Count, stats.Success, stats.Failed)
			if stats.Success > 0 {
				fmt.Fprintf(w, " - RTT: min=%.3fms, max=%.3fms, avg=%.3fms", stats.MinRTT, stats.MaxRTT, stats.AvgRTT)
			}
			fmt.Fprintln(w)
		}
	}
}
