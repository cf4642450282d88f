// Package web serves the HTTP surface of voxprint: the websocket ingest
// and dashboard endpoints, the speaker enrollment API, dashboard REST
// reads, health probes, and Prometheus metrics.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/voxprint/internal/health"
	"github.com/MrWong99/voxprint/internal/hub"
	"github.com/MrWong99/voxprint/internal/observe"
	"github.com/MrWong99/voxprint/internal/recognize"
	"github.com/MrWong99/voxprint/pkg/audio/feature"
	"github.com/MrWong99/voxprint/pkg/speaker"
)

// Codec names a device may negotiate on ingest via the ?codec= query
// parameter.
const (
	CodecPCM16 = "pcm16"
	CodecOpus  = "opus"
)

const (
	defaultAddr             = ":8080"
	defaultMinEnrollSamples = 3
	defaultShutdownTimeout  = 10 * time.Second
)

// Config holds HTTP server settings.
type Config struct {
	// Addr is the listen address. Default ":8080".
	Addr string

	// Codec is the ingest codec assumed when a device negotiates none.
	// Default "pcm16".
	Codec string

	// MinEnrollSamples is the minimum number of audio samples required
	// for initial enrollment. Default 3.
	MinEnrollSamples int

	// ShutdownTimeout bounds graceful drain on Start's way out. Default 10s.
	ShutdownTimeout time.Duration
}

// SpeakerService is the slice of [recognize.Recognizer] the speaker API
// needs.
type SpeakerService interface {
	Enroll(ctx context.Context, id, label string, samples [][][]float32) (speaker.Profile, error)
	Retrain(ctx context.Context, id string, samples [][][]float32) (speaker.Profile, error)
	Remove(ctx context.Context, id string) error
}

// Featurer turns raw PCM samples into the feature matrix fed to the
// embedding model. Enrollment runs audio through the same extraction as
// live recognition so both live in one feature space.
type Featurer interface {
	Comprehensive(samples []float32) ([][]float32, error)
}

// Interface satisfaction of the concrete collaborators.
var (
	_ SpeakerService = (*recognize.Recognizer)(nil)
	_ Featurer       = (*feature.Extractor)(nil)
)

// Deps bundles the collaborators behind the HTTP surface. Hub,
// Speakers, Store and Extractor are required; Health and Metrics are
// optional and their routes/middleware are skipped when nil.
type Deps struct {
	Hub       *hub.Hub
	Speakers  SpeakerService
	Store     speaker.Store
	Extractor Featurer
	Health    *health.Handler
	Metrics   *observe.Metrics
}

// Server ties the route table to an [http.Server].
type Server struct {
	cfg  Config
	deps Deps
	srv  *http.Server
	log  *slog.Logger
}

// New validates configuration and dependencies and assembles the
// server with its routes and middleware.
func New(cfg Config, deps Deps) (*Server, error) {
	var errs []error
	if deps.Hub == nil {
		errs = append(errs, errors.New("hub is required"))
	}
	if deps.Speakers == nil {
		errs = append(errs, errors.New("speaker service is required"))
	}
	if deps.Store == nil {
		errs = append(errs, errors.New("speaker store is required"))
	}
	if deps.Extractor == nil {
		errs = append(errs, errors.New("feature extractor is required"))
	}

	if cfg.Addr == "" {
		cfg.Addr = defaultAddr
	}
	switch cfg.Codec {
	case "":
		cfg.Codec = CodecPCM16
	case CodecPCM16, CodecOpus:
	default:
		errs = append(errs, fmt.Errorf("unknown default codec %q", cfg.Codec))
	}
	if cfg.MinEnrollSamples == 0 {
		cfg.MinEnrollSamples = defaultMinEnrollSamples
	} else if cfg.MinEnrollSamples < 0 {
		errs = append(errs, fmt.Errorf("min enroll samples must be positive, got %d", cfg.MinEnrollSamples))
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	} else if cfg.ShutdownTimeout < 0 {
		errs = append(errs, fmt.Errorf("shutdown timeout must be positive, got %v", cfg.ShutdownTimeout))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("web: %w", err)
	}

	s := &Server{
		cfg:  cfg,
		deps: deps,
		log:  slog.Default().With("component", "web"),
	}
	s.srv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// routes assembles the mux and wraps it in the observability middleware.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /ws/ingest", s.handleIngest)
	mux.HandleFunc("GET /ws/dashboard", s.handleDashboard)

	mux.HandleFunc("GET /api/speakers", s.handleListSpeakers)
	mux.HandleFunc("POST /api/speakers", s.handleEnroll)
	mux.HandleFunc("POST /api/speakers/{id}/retrain", s.handleRetrain)
	mux.HandleFunc("DELETE /api/speakers/{id}", s.handleRemoveSpeaker)

	mux.HandleFunc("GET /api/dashboard/stats", s.handleStats)
	mux.HandleFunc("GET /api/dashboard/connections", s.handleConnections)

	if s.deps.Health != nil {
		s.deps.Health.Register(mux)
	}
	mux.Handle("GET /metrics", promhttp.Handler())

	var h http.Handler = mux
	if s.deps.Metrics != nil {
		h = observe.Middleware(s.deps.Metrics)(h)
	}
	return h
}

// Handler returns the assembled route table, middleware included.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Start listens and serves until the context is cancelled, then drains
// in-flight requests within the configured shutdown timeout. Websocket
// sessions are not part of the drain; closing the hub tears those down.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", "addr", s.cfg.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("web: serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("web: shutdown: %w", err)
	}
	s.log.Info("http server stopped")
	return nil
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
