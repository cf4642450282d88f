// Package pipeline drives raw audio chunks through voice gating, feature
// extraction and speaker classification, and keeps rolling statistics
// about the work done.
package pipeline

import (
	"fmt"
	"log/slog"

	"github.com/MrWong99/voxprint/pkg/provider/vad"
)

// Default gating parameters: 20 ms sub-frames and a 30% speech-frame
// quorum, matching common VAD frame sizes at 16 kHz.
const (
	defaultFrameMs        = 20
	defaultRatioThreshold = 0.3
)

// VoiceDecision is the outcome of gating one chunk.
type VoiceDecision struct {
	// Voice reports whether the chunk should be treated as speech.
	Voice bool

	// Ratio is the fraction of classified sub-frames that contained
	// speech. 1.0 when the gate is failing open.
	Ratio float64
}

// GateConfig holds voice gate configuration.
type GateConfig struct {
	// SampleRate of the incoming PCM data in Hz.
	SampleRate int `yaml:"sample_rate"`

	// FrameMs is the sub-frame duration in milliseconds. Zero selects 20.
	FrameMs int `yaml:"frame_ms"`

	// RatioThreshold is the speech-frame fraction above which a chunk
	// counts as voice. Zero selects 0.3.
	RatioThreshold float64 `yaml:"ratio_threshold"`

	// EnergyThreshold is forwarded to the classifier session.
	EnergyThreshold float64 `yaml:"energy_threshold"`
}

// Gate splits chunks into fixed-duration sub-frames and asks a
// speech/non-speech classifier about each one. When the classifier is
// unavailable the gate fails open: dropping audio silently is worse than
// spending feature extraction on noise.
type Gate struct {
	session    vad.SessionHandle
	frameBytes int
	threshold  float64
}

// NewGate creates a Gate over the given classifier engine. A nil engine
// or a session that cannot be created yields a fail-open gate rather
// than an error.
func NewGate(engine vad.Engine, cfg GateConfig) (*Gate, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("pipeline: gate sample rate %d must be positive", cfg.SampleRate)
	}
	frameMs := cfg.FrameMs
	if frameMs == 0 {
		frameMs = defaultFrameMs
	}
	if frameMs < 0 {
		return nil, fmt.Errorf("pipeline: gate frame duration %d ms must be positive", frameMs)
	}
	threshold := cfg.RatioThreshold
	if threshold == 0 {
		threshold = defaultRatioThreshold
	}
	if threshold < 0 || threshold >= 1 {
		return nil, fmt.Errorf("pipeline: gate ratio threshold %v out of range [0, 1)", threshold)
	}

	vcfg := vad.Config{
		SampleRate:      cfg.SampleRate,
		FrameSizeMs:     frameMs,
		EnergyThreshold: cfg.EnergyThreshold,
	}
	g := &Gate{
		frameBytes: vcfg.FrameBytes(),
		threshold:  threshold,
	}
	if engine == nil {
		slog.Warn("voice gate has no classifier, failing open")
		return g, nil
	}
	session, err := engine.NewSession(vcfg)
	if err != nil {
		slog.Warn("voice gate classifier unavailable, failing open", "err", err)
		return g, nil
	}
	g.session = session
	return g, nil
}

// Detect classifies one chunk of little-endian PCM16 bytes. Sub-frames
// that the classifier rejects with an error are left out of the ratio;
// if every sub-frame errors the gate fails open for this chunk.
func (g *Gate) Detect(chunk []byte) VoiceDecision {
	if g.session == nil {
		return VoiceDecision{Voice: true, Ratio: 1}
	}

	n := len(chunk) / g.frameBytes
	if n == 0 {
		return VoiceDecision{}
	}

	var speech, counted int
	for i := 0; i < n; i++ {
		frame := chunk[i*g.frameBytes : (i+1)*g.frameBytes]
		ok, err := g.session.Classify(frame)
		if err != nil {
			continue
		}
		counted++
		if ok {
			speech++
		}
	}
	if counted == 0 {
		return VoiceDecision{Voice: true, Ratio: 1}
	}

	ratio := float64(speech) / float64(counted)
	return VoiceDecision{Voice: ratio > g.threshold, Ratio: ratio}
}

// Available reports whether a real classifier is serving this gate.
func (g *Gate) Available() bool {
	return g.session != nil
}

// Close releases the classifier session.
func (g *Gate) Close() error {
	if g.session == nil {
		return nil
	}
	return g.session.Close()
}
