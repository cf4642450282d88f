package hub

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/prometheus/procfs"
)

// System status values derived from CPU and memory utilization.
const (
	StatusActive  = "active"
	StatusWarning = "warning"
	StatusError   = "error"
)

// Utilization percentage above which the status degrades.
const (
	warningThreshold = 90
	errorThreshold   = 95
)

// MetricsSource supplies CPU and memory utilization percentages for the
// telemetry task. Implementations must be safe for concurrent use.
type MetricsSource interface {
	Sample() (cpu, mem float64)
}

// Sampler reads CPU and memory utilization from procfs. CPU percentages
// are computed from the delta between consecutive samples, so the first
// call reports 0.
type Sampler struct {
	fs procfs.FS

	mu        sync.Mutex
	prevBusy  float64
	prevTotal float64
	primed    bool
}

var _ MetricsSource = (*Sampler)(nil)

// NewSampler opens the default procfs mount.
func NewSampler() (*Sampler, error) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return nil, fmt.Errorf("hub: open procfs: %w", err)
	}
	return &Sampler{fs: fs}, nil
}

// Sample returns current CPU and memory utilization, each rounded to one
// decimal. Read failures degrade to 0 rather than erroring; telemetry is
// advisory.
func (s *Sampler) Sample() (cpu, mem float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if stat, err := s.fs.Stat(); err == nil {
		c := stat.CPUTotal
		idle := c.Idle + c.Iowait
		busy := c.User + c.Nice + c.System + c.IRQ + c.SoftIRQ + c.Steal
		total := idle + busy
		if s.primed && total > s.prevTotal {
			cpu = (busy - s.prevBusy) / (total - s.prevTotal) * 100
		}
		s.prevBusy = busy
		s.prevTotal = total
		s.primed = true
	}

	if mi, err := s.fs.Meminfo(); err == nil &&
		mi.MemTotal != nil && mi.MemAvailable != nil && *mi.MemTotal > 0 {
		mem = (1 - float64(*mi.MemAvailable)/float64(*mi.MemTotal)) * 100
	}

	return round1(cpu), round1(mem)
}

func round1(x float64) float64 {
	return math.Round(x*10) / 10
}

// statusFor maps utilization percentages to a dashboard status. Both
// comparisons are strict: exactly 90 is still active, exactly 95 is
// still warning.
func statusFor(cpu, mem float64) string {
	switch {
	case cpu > errorThreshold || mem > errorThreshold:
		return StatusError
	case cpu > warningThreshold || mem > warningThreshold:
		return StatusWarning
	default:
		return StatusActive
	}
}

// formatUptime renders a duration as "2d 3h 4m", omitting leading zero
// units down to a bare minute count.
func formatUptime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}
