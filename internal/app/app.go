// Package app wires the voxprint subsystems into a running server.
//
// The App struct owns the full lifecycle: New builds the profile store,
// embedding provider, feature extractor, voice gate, recognizer,
// processing orchestrator, session hub and HTTP surface from one Config;
// Run serves until the context is cancelled; Shutdown tears everything
// down in reverse construction order.
//
// For testing, inject doubles via functional options (WithStore,
// WithEmbedder, etc.). When an option is not provided, New creates the
// real implementation from the config.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/voxprint/internal/config"
	"github.com/MrWong99/voxprint/internal/health"
	"github.com/MrWong99/voxprint/internal/hub"
	"github.com/MrWong99/voxprint/internal/observe"
	"github.com/MrWong99/voxprint/internal/pipeline"
	"github.com/MrWong99/voxprint/internal/recognize"
	"github.com/MrWong99/voxprint/internal/resilience"
	"github.com/MrWong99/voxprint/internal/web"
	"github.com/MrWong99/voxprint/pkg/audio/feature"
	"github.com/MrWong99/voxprint/pkg/provider/embedder"
	"github.com/MrWong99/voxprint/pkg/provider/vad"
	"github.com/MrWong99/voxprint/pkg/speaker"
	"github.com/MrWong99/voxprint/pkg/speaker/postgres"
)

// App owns all subsystem lifetimes of one voxprint server.
type App struct {
	cfg      *config.Config
	registry *config.Registry

	store      speaker.Store
	embedder   embedder.Provider
	vadEngine  vad.Engine
	extractor  *feature.Extractor
	recognizer *recognize.Recognizer
	orch       *pipeline.Orchestrator
	hub        *hub.Hub
	web        *web.Server

	inst      *observe.Metrics
	logLevel  *slog.LevelVar
	watchPath string

	// closers run in reverse registration order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a profile store instead of building one from the
// database config.
func WithStore(s speaker.Store) Option {
	return func(a *App) { a.store = s }
}

// WithEmbedder injects an embedding provider instead of creating one
// through the registry.
func WithEmbedder(p embedder.Provider) Option {
	return func(a *App) { a.embedder = p }
}

// WithVADEngine injects a speech classifier instead of creating one
// through the registry.
func WithVADEngine(e vad.Engine) Option {
	return func(a *App) { a.vadEngine = e }
}

// WithInstruments attaches OTel instruments to the hub and the HTTP
// surface. Without it the server runs uninstrumented.
func WithInstruments(m *observe.Metrics) Option {
	return func(a *App) { a.inst = m }
}

// WithLogLevel hands the root handler's level var to the app so config
// reloads can adjust verbosity at runtime.
func WithLogLevel(v *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = v }
}

// WithConfigWatch enables hot reloading of the given config file during
// Run. The reloadable fields are the recognition threshold, the
// telemetry interval and the log level; everything else needs a restart.
func WithConfigWatch(path string) Option {
	return func(a *App) { a.watchPath = path }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The registry
// supplies the pluggable pieces (speech classifier, embedding model) by
// the names configured under vad.engine and model.provider; main
// registers the built-in implementations.
//
// New performs all initialisation synchronously: store connection, model
// loading, cache seeding and route assembly. The returned App is ready
// for Run.
func New(ctx context.Context, cfg *config.Config, registry *config.Registry, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("app: config must not be nil")
	}
	if registry == nil {
		registry = config.NewRegistry()
	}
	a := &App{cfg: cfg, registry: registry}
	for _, o := range opts {
		o(a)
	}

	// ── 1. Profile store ─────────────────────────────────────────────────
	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}

	// ── 2. Embedding provider ────────────────────────────────────────────
	a.initEmbedder()

	// ── 3. Feature extractor ─────────────────────────────────────────────
	if err := a.initExtractor(); err != nil {
		return nil, fmt.Errorf("app: init features: %w", err)
	}

	// ── 4. Recognizer ────────────────────────────────────────────────────
	if err := a.initRecognizer(ctx); err != nil {
		return nil, fmt.Errorf("app: init recognizer: %w", err)
	}

	// ── 5. Gate + orchestrator ───────────────────────────────────────────
	if err := a.initPipeline(); err != nil {
		return nil, fmt.Errorf("app: init pipeline: %w", err)
	}

	// ── 6. Session hub ───────────────────────────────────────────────────
	if err := a.initHub(); err != nil {
		return nil, fmt.Errorf("app: init hub: %w", err)
	}

	// ── 7. HTTP surface ──────────────────────────────────────────────────
	if err := a.initWeb(); err != nil {
		return nil, fmt.Errorf("app: init web: %w", err)
	}

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initStore connects the profile store: postgres behind a circuit
// breaker when a database URL is configured, the in-memory store
// otherwise.
func (a *App) initStore(ctx context.Context) error {
	if a.store != nil {
		return nil // injected
	}

	if url := a.cfg.Database.URL; url != "" {
		pg, err := postgres.NewStore(ctx, url, a.cfg.Model.EmbeddingDim)
		if err != nil {
			return err
		}
		guarded := resilience.NewGuardedStore(pg, resilience.CircuitBreakerConfig{})
		a.store = guarded
		a.closers = append(a.closers, func() error {
			guarded.Close()
			return nil
		})
		slog.Info("speaker store connected", "backend", "postgres")
		return nil
	}

	slog.Info("no database configured, speaker profiles are in-memory only")
	a.store = speaker.NewMemStore()
	return nil
}

// initEmbedder creates the embedding provider through the registry. A
// provider that cannot be built degrades to the fallback embedder
// instead of failing the boot; the readiness probe reports the mode.
func (a *App) initEmbedder() {
	if a.embedder != nil {
		return // injected
	}

	p, err := a.registry.CreateEmbedder(a.cfg.Model)
	if err != nil {
		slog.Warn("embedding provider unavailable, degrading to fallback",
			"provider", a.cfg.Model.Provider, "err", err)
		p = embedder.NewFallback(
			embedder.WithFallbackDim(a.cfg.Model.EmbeddingDim),
			embedder.WithFallbackInputShape(a.cfg.Model.InputTime, a.cfg.Model.InputCoefficients),
		)
	}
	a.embedder = p
	a.closers = append(a.closers, p.Close)
}

// initExtractor builds the cepstral feature extractor from the features
// section.
func (a *App) initExtractor() error {
	f := a.cfg.Features
	ex, err := feature.New(
		feature.WithSampleRate(a.cfg.Audio.SampleRate),
		feature.WithCoefficients(f.Coefficients),
		feature.WithFFTSize(f.FFTSize),
		feature.WithHop(f.Hop),
		feature.WithMelFilters(f.MelFilters),
		feature.WithDeltaWidth(f.DeltaWidth),
		feature.WithPreEmphasis(f.PreEmphasis),
	)
	if err != nil {
		return err
	}
	a.extractor = ex
	return nil
}

// initRecognizer builds the classifier and seeds its cache from the
// store so previously enrolled speakers are recognized immediately.
func (a *App) initRecognizer(ctx context.Context) error {
	rec, err := recognize.New(a.embedder, a.store, recognize.Config{
		Threshold: a.cfg.Recognition.Threshold,
	})
	if err != nil {
		return err
	}
	if err := rec.Seed(ctx); err != nil {
		return err
	}
	slog.Info("speaker cache seeded", "enrolled", rec.Enrolled(), "mode", rec.Mode())
	a.recognizer = rec
	return nil
}

// initPipeline assembles the voice gate and the orchestrator. A
// classifier engine that cannot be built yields a fail-open gate.
func (a *App) initPipeline() error {
	engine := a.vadEngine
	if engine == nil {
		e, err := a.registry.CreateVAD(a.cfg.VAD)
		if err != nil {
			slog.Warn("speech classifier unavailable, gate will fail open",
				"engine", a.cfg.VAD.Engine, "err", err)
		} else {
			engine = e
		}
	}

	gate, err := pipeline.NewGate(engine, pipeline.GateConfig{
		SampleRate:      a.cfg.Audio.SampleRate,
		FrameMs:         a.cfg.VAD.FrameMs,
		RatioThreshold:  a.cfg.VAD.VoiceRatio,
		EnergyThreshold: a.cfg.VAD.EnergyThreshold,
	})
	if err != nil {
		return err
	}
	a.closers = append(a.closers, gate.Close)

	orch, err := pipeline.New(gate, a.extractor, a.recognizer, pipeline.Config{
		MinChunkSamples: a.cfg.Audio.MinChunkSamples,
		MaxConcurrent:   runtime.GOMAXPROCS(0),
	})
	if err != nil {
		return err
	}
	a.orch = orch
	return nil
}

// initHub creates the session hub with the system telemetry sampler.
func (a *App) initHub() error {
	var metrics hub.MetricsSource
	if sampler, err := hub.NewSampler(); err != nil {
		slog.Warn("system telemetry unavailable", "err", err)
	} else {
		metrics = sampler
	}

	var opts []hub.Option
	if a.inst != nil {
		opts = append(opts, hub.WithInstruments(a.inst))
	}
	h, err := hub.New(a.orch, metrics, hub.Config{
		TelemetryInterval: a.cfg.Telemetry.Interval,
		SampleRate:        a.cfg.Audio.SampleRate,
		MaxIngest:         a.cfg.Server.MaxIngest,
	}, opts...)
	if err != nil {
		return err
	}
	a.hub = h
	a.closers = append(a.closers, h.Close)
	return nil
}

// initWeb assembles the HTTP surface with health probes wired to the
// store and the embedding mode.
func (a *App) initWeb() error {
	checks := health.New(
		health.StoreChecker(a.store),
		health.ModelChecker(a.recognizer.Mode),
	)

	srv, err := web.New(web.Config{
		Addr:             a.cfg.Server.Addr(),
		Codec:            string(a.cfg.Audio.Codec),
		MinEnrollSamples: a.cfg.Server.MinEnrollSamples,
	}, web.Deps{
		Hub:       a.hub,
		Speakers:  a.recognizer,
		Store:     a.store,
		Extractor: a.extractor,
		Health:    checks,
		Metrics:   a.inst,
	})
	if err != nil {
		return err
	}
	a.web = srv
	return nil
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP and, when enabled, watches the config file for hot
// reloads. It blocks until ctx is cancelled, returning context.Canceled
// after a clean shutdown or the first subsystem error.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.web.Start(ctx)
	})

	if a.watchPath != "" {
		watcher, err := config.NewWatcher(a.watchPath, a.applyReload)
		if err != nil {
			slog.Warn("config hot reload disabled", "path", a.watchPath, "err", err)
		} else {
			g.Go(func() error {
				<-ctx.Done()
				watcher.Stop()
				return nil
			})
			slog.Info("watching config for changes", "path", a.watchPath)
		}
	}

	slog.Info("voxprint running",
		"addr", a.cfg.Server.Addr(),
		"enrolled", a.recognizer.Enrolled(),
		"mode", a.recognizer.Mode())

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// applyReload applies the hot-reloadable subset of a config change.
func (a *App) applyReload(prev, next *config.Config) {
	d := config.Diff(prev, next)
	if !d.Any() {
		return
	}

	if d.LogLevelChanged {
		if a.logLevel != nil {
			a.logLevel.Set(d.NewLogLevel.Level())
		}
		slog.Info("log level updated", "level", d.NewLogLevel)
	}
	if d.ThresholdChanged {
		if err := a.recognizer.SetThreshold(d.NewThreshold); err != nil {
			slog.Warn("threshold update rejected", "value", d.NewThreshold, "err", err)
		} else {
			slog.Info("recognition threshold updated", "threshold", d.NewThreshold)
		}
	}
	if d.TelemetryIntervalChanged {
		if err := a.hub.SetTelemetryInterval(d.NewTelemetryInterval); err != nil {
			slog.Warn("telemetry interval update rejected", "value", d.NewTelemetryInterval, "err", err)
		} else {
			slog.Info("telemetry interval updated", "interval", d.NewTelemetryInterval)
		}
	}
}

// Handler returns the assembled HTTP surface, routes and middleware
// included. Useful for embedding the server or testing without a
// listener.
func (a *App) Handler() http.Handler {
	return a.web.Handler()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears subsystems down in reverse construction order: hub
// sessions close before the model and the store do. It respects the
// context deadline; once ctx expires the remaining closers are skipped
// and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
