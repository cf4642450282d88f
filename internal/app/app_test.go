package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MrWong99/voxprint/internal/config"
	"github.com/MrWong99/voxprint/pkg/provider/embedder"
	"github.com/MrWong99/voxprint/pkg/provider/vad"
	"github.com/MrWong99/voxprint/pkg/provider/vad/energy"
	"github.com/MrWong99/voxprint/pkg/speaker"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Model.Provider = "fallback"
	return &cfg
}

// testRegistry mirrors the built-in registrations from main, with the
// embedder pinned to the deterministic fallback.
func testRegistry() *config.Registry {
	r := config.NewRegistry()
	r.RegisterVAD("energy", func(config.VADConfig) (vad.Engine, error) {
		return energy.New(), nil
	})
	r.RegisterEmbedder("fallback", func(mc config.ModelConfig) (embedder.Provider, error) {
		return embedder.NewFallback(
			embedder.WithFallbackDim(mc.EmbeddingDim),
			embedder.WithFallbackInputShape(mc.InputTime, mc.InputCoefficients),
			embedder.WithFallbackSeed(1),
		), nil
	})
	return r
}

func newTestApp(t *testing.T, opts ...Option) *App {
	t.Helper()
	a, err := New(context.Background(), testConfig(), testRegistry(), opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.Shutdown(ctx)
	})
	return a
}

func TestNew_NilConfig(t *testing.T) {
	t.Parallel()

	if _, err := New(context.Background(), nil, nil); err == nil {
		t.Fatal("expected error for nil config")
	}
}

func TestNew_ServesHealthProbes(t *testing.T) {
	t.Parallel()

	a := newTestApp(t)
	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s: status = %d, want %d", path, resp.StatusCode, http.StatusOK)
		}
	}
}

// An empty registry must not fail the boot: the embedder degrades to
// the fallback and the gate fails open, leaving the server reachable.
func TestNew_EmptyRegistryDegrades(t *testing.T) {
	t.Parallel()

	a, err := New(context.Background(), testConfig(), config.NewRegistry())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })

	if got := a.recognizer.Mode(); got != embedder.ModeFallback {
		t.Errorf("Mode() = %v, want %v", got, embedder.ModeFallback)
	}

	srv := httptest.NewServer(a.Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("degraded readiness status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
}

func TestNew_SeedsFromStore(t *testing.T) {
	t.Parallel()

	store := speaker.NewMemStore()
	for i := 0; i < 2; i++ {
		emb := make([]float32, 192)
		emb[i] = 1
		_, err := store.Add(context.Background(), speaker.Profile{
			ID:        fmt.Sprintf("spk-%d", i),
			Label:     fmt.Sprintf("Speaker %d", i),
			Embedding: emb,
			Samples:   3,
		})
		if err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	a := newTestApp(t, WithStore(store))

	if got := a.recognizer.Enrolled(); got != 2 {
		t.Errorf("Enrolled() = %d, want 2", got)
	}
}

func TestApplyReload(t *testing.T) {
	t.Parallel()

	lv := new(slog.LevelVar)
	a := newTestApp(t, WithLogLevel(lv))

	prev := testConfig()
	next := testConfig()
	next.Server.LogLevel = config.LogDebug
	next.Recognition.Threshold = 0.9
	next.Telemetry.Interval = 2 * time.Second

	a.applyReload(prev, next)

	if got := a.recognizer.Threshold(); got != 0.9 {
		t.Errorf("Threshold() = %v, want 0.9", got)
	}
	if got := lv.Level(); got != slog.LevelDebug {
		t.Errorf("log level = %v, want %v", got, slog.LevelDebug)
	}
}

func TestApplyReload_RejectsInvalidThreshold(t *testing.T) {
	t.Parallel()

	a := newTestApp(t)
	want := a.recognizer.Threshold()

	prev := testConfig()
	next := testConfig()
	next.Recognition.Threshold = 1.5

	a.applyReload(prev, next)

	if got := a.recognizer.Threshold(); got != want {
		t.Errorf("Threshold() = %v, want unchanged %v", got, want)
	}
}

func TestShutdown_Idempotent(t *testing.T) {
	t.Parallel()

	a := newTestApp(t)

	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("first Shutdown: %v", err)
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	t.Parallel()

	a := newTestApp(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
