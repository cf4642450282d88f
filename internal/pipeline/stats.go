package pipeline

import (
	"math"
	"sort"
	"sync"
	"time"
)

// voiceRatioAlpha is the smoothing factor for the long-term
// voice-activity moving average.
const voiceRatioAlpha = 0.1

// Stats collects per-chunk processing samples for dashboard display. It
// maintains a bounded ring buffer of recent latency observations from
// which percentiles are computed on demand, plus running counters and an
// exponentially smoothed voice-activity ratio.
//
// Thread-safe for concurrent use.
type Stats struct {
	mu sync.Mutex

	latency latencyBuffer

	totalChunks     int64
	voiceChunks     int64
	errors          int64
	totalProcessing time.Duration
	voiceRatio      float64
}

// NewStats creates a Stats with the given window size (maximum number of
// latency samples retained).
func NewStats(windowSize int) *Stats {
	if windowSize <= 0 {
		windowSize = 100
	}
	return &Stats{
		latency: newLatencyBuffer(windowSize),
	}
}

// Record adds one processed chunk: its wall-clock duration and whether
// the gate classified it as voice. The voice-activity ratio moves toward
// 1 on voice chunks and toward 0 on silent ones.
func (s *Stats) Record(d time.Duration, voice bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.totalChunks++
	s.totalProcessing += d
	s.latency.add(d)

	sample := 0.0
	if voice {
		s.voiceChunks++
		sample = 1.0
	}
	s.voiceRatio = voiceRatioAlpha*sample + (1-voiceRatioAlpha)*s.voiceRatio
}

// IncrErrors increments the processing-error counter.
func (s *Stats) IncrErrors() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors++
}

// LatencyPercentiles holds p50 and p95 values for chunk processing.
type LatencyPercentiles struct {
	P50 time.Duration
	P95 time.Duration
}

// StatsSnapshot captures a point-in-time view of all pipeline statistics.
type StatsSnapshot struct {
	TotalChunks     int64
	VoiceChunks     int64
	Errors          int64
	TotalProcessing time.Duration
	MeanProcessing  time.Duration
	VoiceRatio      float64
	Latency         LatencyPercentiles
}

// Snapshot returns a point-in-time view of all pipeline statistics.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := StatsSnapshot{
		TotalChunks:     s.totalChunks,
		VoiceChunks:     s.voiceChunks,
		Errors:          s.errors,
		TotalProcessing: s.totalProcessing,
		VoiceRatio:      s.voiceRatio,
		Latency:         s.latency.percentiles(),
	}
	if s.totalChunks > 0 {
		snap.MeanProcessing = s.totalProcessing / time.Duration(s.totalChunks)
	}
	return snap
}

// latencyBuffer is a bounded ring buffer of duration samples.
type latencyBuffer struct {
	data []time.Duration
	size int
	pos  int
	full bool
}

func newLatencyBuffer(size int) latencyBuffer {
	return latencyBuffer{
		data: make([]time.Duration, size),
		size: size,
	}
}

func (lb *latencyBuffer) add(d time.Duration) {
	lb.data[lb.pos] = d
	lb.pos++
	if lb.pos >= lb.size {
		lb.pos = 0
		lb.full = true
	}
}

func (lb *latencyBuffer) percentiles() LatencyPercentiles {
	n := lb.pos
	if lb.full {
		n = lb.size
	}
	if n == 0 {
		return LatencyPercentiles{}
	}

	sorted := make([]time.Duration, n)
	if lb.full {
		copy(sorted, lb.data)
	} else {
		copy(sorted, lb.data[:n])
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	return LatencyPercentiles{
		P50: percentile(sorted, 0.50),
		P95: percentile(sorted, 0.95),
	}
}

// percentile returns the value at the given percentile (0.0-1.0) from a
// sorted slice of durations using nearest-rank.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
