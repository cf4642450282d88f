package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/bits"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"vad":      {"energy", "mock"},
	"embedder": {"onnx", "fallback", "mock"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r on top of [Default] and
// validates the result. Useful in tests where configs are constructed
// from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d is out of range [1, 65535]", cfg.Server.Port))
	}
	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if !cfg.Server.LogFormat.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_format %q is invalid; valid values: text, json", cfg.Server.LogFormat))
	}
	if cfg.Server.MaxIngest < 1 {
		errs = append(errs, fmt.Errorf("server.max_ingest %d must be at least 1", cfg.Server.MaxIngest))
	}
	if cfg.Server.MinEnrollSamples < 1 {
		errs = append(errs, fmt.Errorf("server.min_enroll_samples %d must be at least 1", cfg.Server.MinEnrollSamples))
	}

	// Audio
	if cfg.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must be positive", cfg.Audio.SampleRate))
	}
	if cfg.Audio.MinChunkSamples <= 0 {
		errs = append(errs, fmt.Errorf("audio.min_chunk_samples %d must be positive", cfg.Audio.MinChunkSamples))
	}
	if !cfg.Audio.Codec.IsValid() {
		errs = append(errs, fmt.Errorf("audio.codec %q is invalid; valid values: pcm16, opus", cfg.Audio.Codec))
	}

	// VAD
	if cfg.VAD.FrameMs <= 0 {
		errs = append(errs, fmt.Errorf("vad.frame_ms %d must be positive", cfg.VAD.FrameMs))
	}
	if cfg.VAD.VoiceRatio < 0 || cfg.VAD.VoiceRatio >= 1 {
		errs = append(errs, fmt.Errorf("vad.voice_ratio %.2f is out of range [0, 1)", cfg.VAD.VoiceRatio))
	}
	if cfg.VAD.EnergyThreshold < 0 {
		errs = append(errs, fmt.Errorf("vad.energy_threshold %.1f must not be negative", cfg.VAD.EnergyThreshold))
	}

	// Features
	if cfg.Features.Coefficients < 1 {
		errs = append(errs, fmt.Errorf("features.coefficients %d must be at least 1", cfg.Features.Coefficients))
	}
	if cfg.Features.FFTSize < 2 || bits.OnesCount(uint(cfg.Features.FFTSize)) != 1 {
		errs = append(errs, fmt.Errorf("features.fft_size %d must be a power of two", cfg.Features.FFTSize))
	}
	if cfg.Features.Hop < 1 {
		errs = append(errs, fmt.Errorf("features.hop %d must be at least 1", cfg.Features.Hop))
	}
	if cfg.Features.MelFilters < cfg.Features.Coefficients {
		errs = append(errs, fmt.Errorf("features.mel_filters %d must be at least features.coefficients (%d)", cfg.Features.MelFilters, cfg.Features.Coefficients))
	}
	if cfg.Features.DeltaWidth < 3 || cfg.Features.DeltaWidth%2 == 0 {
		errs = append(errs, fmt.Errorf("features.delta_width %d must be odd and at least 3", cfg.Features.DeltaWidth))
	}
	if cfg.Features.PreEmphasis < 0 || cfg.Features.PreEmphasis >= 1 {
		errs = append(errs, fmt.Errorf("features.pre_emphasis %.2f is out of range [0, 1)", cfg.Features.PreEmphasis))
	}

	// Model
	if cfg.Model.InputTime < 1 {
		errs = append(errs, fmt.Errorf("model.input_time %d must be at least 1", cfg.Model.InputTime))
	}
	if cfg.Model.InputCoefficients < 1 {
		errs = append(errs, fmt.Errorf("model.input_coefficients %d must be at least 1", cfg.Model.InputCoefficients))
	}
	if cfg.Model.EmbeddingDim < 1 {
		errs = append(errs, fmt.Errorf("model.embedding_dim %d must be at least 1", cfg.Model.EmbeddingDim))
	}

	// Recognition
	if cfg.Recognition.Threshold <= 0 || cfg.Recognition.Threshold > 1 {
		errs = append(errs, fmt.Errorf("recognition.threshold %.2f is out of range (0, 1]", cfg.Recognition.Threshold))
	}

	// Telemetry
	if cfg.Telemetry.Interval <= 0 {
		errs = append(errs, fmt.Errorf("telemetry.interval %s must be positive", cfg.Telemetry.Interval))
	}

	// Provider name validation: warn for unknown provider names.
	validateProviderName("vad", cfg.VAD.Engine)
	validateProviderName("embedder", cfg.Model.Provider)

	// The extractor emits cepstra plus two delta orders per frame, so the
	// widest row it can produce is three times features.coefficients.
	if cfg.Model.InputCoefficients > 3*cfg.Features.Coefficients {
		slog.Warn("model.input_coefficients exceeds the widest extractor frame; input rows will be zero-padded",
			"input_coefficients", cfg.Model.InputCoefficients,
			"extractor_width", 3*cfg.Features.Coefficients,
		)
	}

	// Model availability
	if cfg.Model.Provider == "onnx" && cfg.Model.Path == "" {
		slog.Warn("model.path is empty; the deterministic fallback embedder will be used")
	}

	// Store availability
	if cfg.Database.URL == "" {
		slog.Warn("database.url is empty; speaker profiles are kept in memory and lost on restart")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
