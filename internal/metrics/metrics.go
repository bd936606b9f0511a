package metrics

// Metrics collection for encapsulation and CIP exchanges

import (
	"math"
	"sort"
	"strings"
	"sync"
	"time"
)

// OperationType represents the type of exchange
type OperationType string

const (
	OperationRegisterSession   OperationType = "REGISTER_SESSION"
	OperationUnregisterSession OperationType = "UNREGISTER_SESSION"
	OperationListIdentity      OperationType = "LIST_IDENTITY"
	OperationListServices      OperationType = "LIST_SERVICES"
	OperationForwardOpen       OperationType = "FORWARD_OPEN"
	OperationForwardClose      OperationType = "FORWARD_CLOSE"
	OperationSendConnected     OperationType = "SEND_CONNECTED"
	OperationSendUnconnected   OperationType = "SEND_UNCONNECTED"
)

// Metric represents a single exchange
type Metric struct {
	Timestamp time.Time     `json:"timestamp"`
	Target    string        `json:"target"`
	Operation OperationType `json:"operation"`
	Service   string        `json:"service,omitempty"`
	Success   bool          `json:"success"`
	RTTMs     float64       `json:"rtt_ms"`
	JitterMs  float64       `json:"jitter_ms,omitempty"`
	Status    uint8         `json:"status"`
	Error     string        `json:"error,omitempty"`
}

// Sink collects and aggregates metrics
type Sink struct {
	mu      sync.RWMutex
	metrics []Metric
	summary *Summary
	lastRTT map[OperationType]float64
}

// Summary contains aggregated statistics
type Summary struct {
	TotalOperations    int
	SuccessfulOps      int
	FailedOps          int
	TimeoutCount       int
	ConnectionFailures int
	MinRTT             float64
	MaxRTT             float64
	AvgRTT             float64
	P50RTT             float64
	P90RTT             float64
	P95RTT             float64
	P99RTT             float64
	MaxJitter          float64
	AvgJitter          float64
	jitterCount        int
	RTTBuckets         map[string]int
	RTTByOperation     map[OperationType]*OperationStats
}

// OperationStats contains statistics for a specific operation type
type OperationStats struct {
	Count   int
	Success int
	Failed  int
	MinRTT  float64
	MaxRTT  float64
	AvgRTT  float64
	SumRTT  float64
}

func newSummary() *Summary {
	return &Summary{
		RTTBuckets:     make(map[string]int),
		RTTByOperation: make(map[OperationType]*OperationStats),
	}
}

// NewSink creates a new metrics sink
func NewSink() *Sink {
	return &Sink{
		metrics: make([]Metric, 0),
		summary: newSummary(),
		lastRTT: make(map[OperationType]float64),
	}
}

// Record records a new metric. Jitter is derived from the previous
// successful RTT of the same operation when the caller leaves it unset.
func (s *Sink) Record(m Metric) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.Success && m.RTTMs > 0 {
		if prev, ok := s.lastRTT[m.Operation]; ok && m.JitterMs == 0 {
			m.JitterMs = math.Abs(m.RTTMs - prev)
		}
		s.lastRTT[m.Operation] = m.RTTMs
	}

	s.metrics = append(s.metrics, m)
	s.updateSummary(m)
}

// GetMetrics returns a copy of all recorded metrics
func (s *Sink) GetMetrics() []Metric {
	s.mu.RLock()
	defer s.mu.RUnlock()

	metrics := make([]Metric, len(s.metrics))
	copy(metrics, s.metrics)
	return metrics
}

// GetSummary returns the aggregated summary
func (s *Sink) GetSummary() *Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary := &Summary{
		TotalOperations:    s.summary.TotalOperations,
		SuccessfulOps:      s.summary.SuccessfulOps,
		FailedOps:          s.summary.FailedOps,
		TimeoutCount:       s.summary.TimeoutCount,
		ConnectionFailures: s.summary.ConnectionFailures,
		MinRTT:             s.summary.MinRTT,
		MaxRTT:             s.summary.MaxRTT,
		AvgRTT:             s.summary.AvgRTT,
		MaxJitter:          s.summary.MaxJitter,
		AvgJitter:          s.summary.AvgJitter,
		RTTBuckets:         make(map[string]int),
		RTTByOperation:     make(map[OperationType]*OperationStats),
	}
	for op, stats := range s.summary.RTTByOperation {
		copied := *stats
		summary.RTTByOperation[op] = &copied
	}

	rtts := make([]float64, 0, len(s.metrics))
	for _, m := range s.metrics {
		if m.Success && m.RTTMs > 0 {
			rtts = append(rtts, m.RTTMs)
			incrementBucket(summary.RTTBuckets, m.RTTMs)
		}
	}
	p := computePercentiles(rtts)
	summary.P50RTT, summary.P90RTT, summary.P95RTT, summary.P99RTT = p[0], p[1], p[2], p[3]

	return summary
}

// updateSummary updates the summary statistics with a new metric
func (s *Sink) updateSummary(m Metric) {
	s.summary.TotalOperations++

	if m.Success {
		s.summary.SuccessfulOps++
	} else {
		s.summary.FailedOps++
		if m.Error != "" {
			if strings.Contains(m.Error, "timeout") {
				s.summary.TimeoutCount++
			}
			if strings.Contains(m.Error, "transport") || strings.Contains(m.Error, "connect") {
				s.summary.ConnectionFailures++
			}
		}
	}

	if m.JitterMs > 0 {
		if m.JitterMs > s.summary.MaxJitter {
			s.summary.MaxJitter = m.JitterMs
		}
		s.summary.jitterCount++
		total := s.summary.AvgJitter * float64(s.summary.jitterCount-1)
		s.summary.AvgJitter = (total + m.JitterMs) / float64(s.summary.jitterCount)
	}

	if m.Success && m.RTTMs > 0 {
		if s.summary.MinRTT == 0 || m.RTTMs < s.summary.MinRTT {
			s.summary.MinRTT = m.RTTMs
		}
		if m.RTTMs > s.summary.MaxRTT {
			s.summary.MaxRTT = m.RTTMs
		}
		totalRTT := s.summary.AvgRTT * float64(s.summary.SuccessfulOps-1)
		totalRTT += m.RTTMs
		s.summary.AvgRTT = totalRTT / float64(s.summary.SuccessfulOps)
	}

	opStats, exists := s.summary.RTTByOperation[m.Operation]
	if !exists {
		opStats = &OperationStats{}
		s.summary.RTTByOperation[m.Operation] = opStats
	}
	opStats.Count++
	if !m.Success {
		opStats.Failed++
		return
	}
	opStats.Success++
	if m.RTTMs > 0 {
		if opStats.MinRTT == 0 || m.RTTMs < opStats.MinRTT {
			opStats.MinRTT = m.RTTMs
		}
		if m.RTTMs > opStats.MaxRTT {
			opStats.MaxRTT = m.RTTMs
		}
		opStats.SumRTT += m.RTTMs
		opStats.AvgRTT = opStats.SumRTT / float64(opStats.Success)
	}
}

func incrementBucket(buckets map[string]int, value float64) {
	switch {
	case value < 1:
		buckets["lt_1ms"]++
	case value < 5:
		buckets["1_5ms"]++
	case value < 10:
		buckets["5_10ms"]++
	case value < 50:
		buckets["10_50ms"]++
	case value < 100:
		buckets["50_100ms"]++
	case value < 500:
		buckets["100_500ms"]++
	default:
		buckets["gt_500ms"]++
	}
}

func computePercentiles(values []float64) [4]float64 {
	var result [4]float64
	if len(values) == 0 {
		return result
	}
	sort.Float64s(values)
	result[0] = percentile(values, 0.50)
	result[1] = percentile(values, 0.90)
	result[2] = percentile(values, 0.95)
	result[3] = percentile(values, 0.99)
	return result
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(p*float64(len(sorted)))) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	return sorted[rank]
}
