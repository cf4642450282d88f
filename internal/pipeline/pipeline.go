package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/MrWong99/voxprint/internal/recognize"
	"github.com/MrWong99/voxprint/pkg/audio"
	"github.com/MrWong99/voxprint/pkg/audio/feature"
	"github.com/MrWong99/voxprint/pkg/provider/embedder"
)

// Default orchestrator parameters. 1024 samples is 64 ms at 16 kHz, the
// smallest chunk worth gating; two concurrent chunks keep a small board
// busy without starving the session loops.
const (
	defaultMinChunkSamples = 1024
	defaultMaxConcurrent   = 2
	defaultStatsWindow     = 100
)

// Config holds orchestrator configuration.
type Config struct {
	// MinChunkSamples is the minimum decoded sample count for a chunk to
	// be processed; shorter chunks are dropped so callers can batch more
	// data. Zero selects 1024.
	MinChunkSamples int `yaml:"min_chunk_samples"`

	// MaxConcurrent bounds how many chunks may be in the CPU-bound
	// extraction/inference section at once. Zero selects 2.
	MaxConcurrent int `yaml:"max_concurrent"`

	// StatsWindow is the latency ring buffer size. Zero selects 100.
	StatsWindow int `yaml:"stats_window"`
}

// Outcome is the result of processing one chunk. A nil Outcome from
// Process means the chunk produced nothing to report.
type Outcome struct {
	// Voice reports whether the gate classified the chunk as speech.
	// When false, Result is zero: no extraction or inference ran.
	Voice bool

	// Decision carries the gate's supporting ratio.
	Decision VoiceDecision

	// Result is the speaker classification for a voice chunk.
	Result recognize.Result

	// Duration is the wall-clock processing time for this chunk.
	Duration time.Duration

	// Timestamp is when processing finished, in UTC.
	Timestamp time.Time

	// Err is set when classification failed; the outcome still reports
	// an unknown speaker and the pipeline carries on.
	Err error
}

// FeatureExtractor is the slice of [feature.Extractor] the orchestrator
// needs.
type FeatureExtractor interface {
	Comprehensive(samples []float32) ([][]float32, error)
}

// Classifier is the slice of [recognize.Recognizer] the orchestrator
// needs.
type Classifier interface {
	Classify(ctx context.Context, features [][]float32) (recognize.Result, error)
	Mode() embedder.Mode
	Enrolled() int
}

// Interface satisfaction of the concrete pipeline components.
var (
	_ FeatureExtractor = (*feature.Extractor)(nil)
	_ Classifier       = (*recognize.Recognizer)(nil)
)

// Status is a point-in-time view of the orchestrator for dashboards and
// health checks.
type Status struct {
	Active        bool
	GateAvailable bool
	Mode          embedder.Mode
	Enrolled      int
	Stats         StatsSnapshot
}

// Orchestrator owns the gate → features → inference sequence for every
// ingest chunk. All methods are safe for concurrent use.
type Orchestrator struct {
	gate       *Gate
	extractor  FeatureExtractor
	recognizer Classifier
	stats      *Stats
	sem        *semaphore.Weighted
	minSamples int
	active     atomic.Bool
}

// New creates an Orchestrator. The gate, extractor and recognizer must
// be non-nil; recognition starts active.
func New(gate *Gate, extractor FeatureExtractor, recognizer Classifier, cfg Config) (*Orchestrator, error) {
	if gate == nil {
		return nil, errors.New("pipeline: gate must not be nil")
	}
	if extractor == nil {
		return nil, errors.New("pipeline: extractor must not be nil")
	}
	if recognizer == nil {
		return nil, errors.New("pipeline: recognizer must not be nil")
	}

	minSamples := cfg.MinChunkSamples
	if minSamples == 0 {
		minSamples = defaultMinChunkSamples
	}
	if minSamples < 0 {
		return nil, fmt.Errorf("pipeline: min chunk samples %d must be positive", minSamples)
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent == 0 {
		maxConcurrent = defaultMaxConcurrent
	}
	if maxConcurrent < 0 {
		return nil, fmt.Errorf("pipeline: max concurrent %d must be positive", maxConcurrent)
	}
	statsWindow := cfg.StatsWindow
	if statsWindow == 0 {
		statsWindow = defaultStatsWindow
	}

	o := &Orchestrator{
		gate:       gate,
		extractor:  extractor,
		recognizer: recognizer,
		stats:      NewStats(statsWindow),
		sem:        semaphore.NewWeighted(int64(maxConcurrent)),
		minSamples: minSamples,
	}
	o.active.Store(true)
	return o, nil
}

// Process runs one chunk through the pipeline. It returns nil when the
// chunk produced nothing to report: recognition is paused, the chunk is
// below the minimum size, or feature extraction yielded nothing. The
// returned error is non-nil only when ctx was cancelled while waiting
// for a processing slot.
func (o *Orchestrator) Process(ctx context.Context, chunk audio.Chunk) (*Outcome, error) {
	if !o.active.Load() {
		return nil, nil
	}

	start := time.Now()
	samples := audio.Float32(chunk.Data)
	if len(samples) < o.minSamples {
		return nil, nil
	}

	decision := o.gate.Detect(chunk.Data)
	if !decision.Voice {
		d := time.Since(start)
		o.stats.Record(d, false)
		return &Outcome{
			Decision:  decision,
			Duration:  d,
			Timestamp: time.Now().UTC(),
		}, nil
	}

	// Extraction and inference are CPU-bound; the semaphore keeps them
	// from crowding out the session loops on small hardware.
	if err := o.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("pipeline: acquire processing slot: %w", err)
	}
	features, err := o.extractor.Comprehensive(samples)
	if err != nil || len(features) == 0 {
		o.sem.Release(1)
		slog.Warn("feature extraction produced nothing", "samples", len(samples), "err", err)
		return nil, nil
	}
	result, cerr := o.recognizer.Classify(ctx, features)
	o.sem.Release(1)

	d := time.Since(start)
	o.stats.Record(d, true)

	out := &Outcome{
		Voice:     true,
		Decision:  decision,
		Result:    result,
		Duration:  d,
		Timestamp: time.Now().UTC(),
	}
	if cerr != nil {
		o.stats.IncrErrors()
		out.Err = cerr
		slog.Warn("speaker classification failed", "err", cerr)
	}
	return out, nil
}

// SetActive pauses or resumes recognition. While paused, Process drops
// every chunk without gating or statistics.
func (o *Orchestrator) SetActive(active bool) {
	o.active.Store(active)
	slog.Info("recognition toggled", "active", active)
}

// Active reports whether recognition is running.
func (o *Orchestrator) Active() bool {
	return o.active.Load()
}

// Stats returns the rolling statistics collector.
func (o *Orchestrator) Stats() *Stats {
	return o.stats
}

// Status reports the orchestrator's current state.
func (o *Orchestrator) Status() Status {
	return Status{
		Active:        o.active.Load(),
		GateAvailable: o.gate.Available(),
		Mode:          o.recognizer.Mode(),
		Enrolled:      o.recognizer.Enrolled(),
		Stats:         o.stats.Snapshot(),
	}
}

// Close releases the gate's classifier session.
func (o *Orchestrator) Close() error {
	return o.gate.Close()
}
