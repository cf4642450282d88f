// Command voxprint is the main entry point for the VoxPrint speaker
// recognition server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrWong99/voxprint/internal/app"
	"github.com/MrWong99/voxprint/internal/config"
	"github.com/MrWong99/voxprint/internal/observe"
	"github.com/MrWong99/voxprint/pkg/provider/embedder"
	"github.com/MrWong99/voxprint/pkg/provider/embedder/onnx"
	"github.com/MrWong99/voxprint/pkg/provider/vad"
	"github.com/MrWong99/voxprint/pkg/provider/vad/energy"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voxprint: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voxprint: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger, logLevel := newLogger(cfg.Server)
	slog.SetDefault(logger)

	slog.Info("voxprint starting",
		"config", *configPath,
		"listen_addr", cfg.Server.Addr(),
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry providers ───────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "voxprint",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	metrics := observe.DefaultMetrics()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, reg,
		app.WithInstruments(metrics),
		app.WithLogLevel(logLevel),
		app.WithConfigWatch(*configPath),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	if err := otelShutdown(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// builtinProviders maps provider category names to the implementations that
// ship with VoxPrint. Used for startup logging.
var builtinProviders = map[string][]string{
	"vad":      {"energy"},
	"embedder": {"onnx", "fallback"},
}

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives its config section and constructs the provider from
// the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── VAD ───────────────────────────────────────────────────────────────────

	reg.RegisterVAD("energy", func(config.VADConfig) (vad.Engine, error) {
		return energy.New(), nil
	})

	// ── Embedder ──────────────────────────────────────────────────────────────

	reg.RegisterEmbedder("onnx", func(mc config.ModelConfig) (embedder.Provider, error) {
		opts := []onnx.Option{
			onnx.WithInputShape(mc.InputTime, mc.InputCoefficients),
			onnx.WithEmbeddingDim(mc.EmbeddingDim),
		}
		if mc.SharedLibrary != "" {
			opts = append(opts, onnx.WithSharedLibrary(mc.SharedLibrary))
		}
		return onnx.New(mc.Path, opts...)
	})

	// fallback produces synthesized embeddings; it keeps the pipeline
	// exercisable without model files.
	reg.RegisterEmbedder("fallback", func(mc config.ModelConfig) (embedder.Provider, error) {
		return embedder.NewFallback(
			embedder.WithFallbackDim(mc.EmbeddingDim),
			embedder.WithFallbackInputShape(mc.InputTime, mc.InputCoefficients),
		), nil
	})

	// Debug log of all registered providers.
	for kind, names := range builtinProviders {
		for _, name := range names {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	database := "(in-memory)"
	if cfg.Database.URL != "" {
		database = "postgres"
	}

	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         VoxPrint — startup summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printField("Listen addr", cfg.Server.Addr())
	printField("Codec", string(cfg.Audio.Codec))
	printField("VAD engine", cfg.VAD.Engine)
	printField("Model", providerSummary(cfg.Model))
	printField("Threshold", fmt.Sprintf("%.2f", cfg.Recognition.Threshold))
	printField("Database", database)
	printField("Telemetry", "every "+cfg.Telemetry.Interval.String())
	fmt.Println("╚═══════════════════════════════════════╝")
}

// providerSummary condenses the model section into "provider / path".
func providerSummary(mc config.ModelConfig) string {
	if mc.Path == "" {
		return mc.Provider
	}
	return mc.Provider + " / " + mc.Path
}

func printField(name, value string) {
	if value == "" {
		value = "(not configured)"
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", name, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

// newLogger builds the root logger from the server config. The returned
// level var is handed to the app so config reloads can adjust verbosity.
func newLogger(sc config.ServerConfig) (*slog.Logger, *slog.LevelVar) {
	lvl := new(slog.LevelVar)
	lvl.Set(sc.LogLevel.Level())

	opts := &slog.HandlerOptions{Level: lvl}
	var h slog.Handler
	if sc.LogFormat == config.FormatJSON {
		h = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(h), lvl
}
