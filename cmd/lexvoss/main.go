// Command lexvoss is the vocabulary training server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lexvoss/internal/audio"
	"lexvoss/internal/buffer"
	"lexvoss/internal/config"
	"lexvoss/internal/health"
	"lexvoss/internal/importer"
	"lexvoss/internal/observe"
	"lexvoss/internal/question"
	"lexvoss/internal/resilience"
	"lexvoss/internal/server"
	"lexvoss/internal/session"
	"lexvoss/internal/srs"
	"lexvoss/internal/store/postgres"
	"lexvoss/pkg/provider/llm"
	"lexvoss/pkg/provider/llm/anyllm"
	openaillm "lexvoss/pkg/provider/llm/openai"
	"lexvoss/pkg/provider/tts"
	"lexvoss/pkg/provider/tts/elevenlabs"
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
			fmt.Fprintf(os.Stderr, "lexvoss: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "lexvoss: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := &slog.LevelVar{}
	level.Set(slogLevel(cfg.Server.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("lexvoss starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	obsShutdown, err := observe.InitProvider(context.Background(), observe.ProviderConfig{
		ServiceName: "lexvoss",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	metrics := observe.DefaultMetrics()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	genProvider, err := reg.CreateGeneration(cfg.Providers.Generation)
	if err != nil {
		slog.Error("failed to create generation provider", "name", cfg.Providers.Generation.Name, "err", err)
		return 1
	}
	slog.Info("provider created", "kind", "generation", "name", genProvider.Name())

	if len(cfg.Providers.GenerationFallbacks) > 0 {
		fb := resilience.NewLLMFallback(genProvider, cfg.Providers.Generation.Name, resilience.FallbackConfig{
			Log: logger,
		})
		for _, entry := range cfg.Providers.GenerationFallbacks {
			p, err := reg.CreateGeneration(entry)
			if err != nil {
				slog.Error("failed to create fallback generation provider", "name", entry.Name, "err", err)
				return 1
			}
			fb.AddFallback(entry.Name, p)
			slog.Info("provider created", "kind", "generation-fallback", "name", p.Name())
		}
		genProvider = fb
	}

	var ttsProvider tts.Provider
	if name := cfg.Providers.TTS.Name; name != "" {
		p, err := reg.CreateTTS(cfg.Providers.TTS)
		if err != nil {
			slog.Error("failed to create tts provider", "name", name, "err", err)
			return 1
		}
		ttsProvider = p
		slog.Info("provider created", "kind", "tts", "name", p.Name())
	}

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Store ─────────────────────────────────────────────────────────────────
	st, err := postgres.NewStore(ctx, cfg.Storage.PostgresDSN)
	if err != nil {
		slog.Error("failed to open store", "err", err)
		return 1
	}

	// ── Vocabulary import ─────────────────────────────────────────────────────
	imp := importer.New(st, cfg.Import.VocabFiles, logger)
	if os.Getenv("LEXVOSS_NO_AUTO_IMPORT") == "" {
		if err := imp.SyncChanged(ctx); err != nil {
			slog.Error("startup vocabulary sync failed", "err", err)
			st.Close()
			return 1
		}
	}

	// ── Training engine ───────────────────────────────────────────────────────
	builder := question.NewBuilder(st, genProvider, logger)
	eng := srs.NewEngine(st, cfg.Training.ArchiveIntervalDays, logger)
	buf := buffer.NewController(st, builder, cfg.Training.MinReadyQuestions, nil, logger)
	comp := session.NewComposer(st, eng, buf, cfg.Training.SessionSize, logger)
	buf.SetShortfall(comp.Shortfall)
	narrator := audio.NewNarrator(st, ttsProvider, cfg.Storage.AudioCacheDir, logger)

	srv := server.New(server.Options{
		Store:     st,
		Composer:  comp,
		Buffer:    buf,
		SRS:       eng,
		Generator: builder,
		Chat:      genProvider,
		Narrator:  narrator,
		Importer:  imp,
		Metrics:   metrics,
		Training:  cfg.Training,
		Log:       logger,
	})

	// ── HTTP server ───────────────────────────────────────────────────────────
	mux := http.NewServeMux()
	srv.Register(mux)
	health.New(health.Checker{Name: "database", Check: st.Ping}).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	httpSrv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           observe.Middleware(metrics)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		d := config.Diff(old, new)
		if d.LogLevelChanged {
			level.Set(slogLevel(d.NewLogLevel))
			slog.Info("log level changed", "level", d.NewLogLevel)
		}
		if d.TrainingChanged {
			srv.ApplyTraining(d.NewTraining)
		}
		if d.TTSVoiceChanged {
			if el, ok := ttsProvider.(*elevenlabs.Provider); ok {
				el.SetVoice(d.NewTTSVoice)
				slog.Info("tts voice changed", "voice", d.NewTTSVoice)
			}
		}
	})
	if err != nil {
		slog.Warn("config watcher unavailable, runtime reload disabled", "err", err)
	}

	// Fill the question bank up to target before the first session asks.
	if err := buf.Check(ctx); err != nil {
		slog.Warn("initial buffer check failed", "err", err)
	}

	printStartupSummary(cfg)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server ready — press Ctrl+C to shut down", "addr", cfg.Server.ListenAddr)
		errCh <- httpSrv.ListenAndServe()
	}()

	exit := 0
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "err", err)
			exit = 1
		}
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if watcher != nil {
		watcher.Stop()
	}
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown error", "err", err)
	}
	buf.Shutdown()
	comp.Shutdown()
	st.Close()
	if err := obsShutdown(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return exit
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── Generation ────────────────────────────────────────────────────────────
	// openai uses the official SDK; anthropic, gemini, deepseek, mistral,
	// groq, llamacpp, and llamafile share the any-llm pattern of an
	// optional APIKey plus an optional BaseURL.
	reg.RegisterGeneration("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []openaillm.Option
		if entry.BaseURL != "" {
			opts = append(opts, openaillm.WithBaseURL(entry.BaseURL))
		}
		return openaillm.New(entry.APIKey, entry.Model, opts...)
	})

	for _, providerName := range []string{
		"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterGeneration(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterGeneration("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.NewOllama(entry.Model, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────
	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if entry.Voice != "" {
			opts = append(opts, elevenlabs.WithVoice(entry.Voice))
		}
		if entry.BaseURL != "" {
			opts = append(opts, elevenlabs.WithBaseURL(entry.BaseURL))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         Lexvoss — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("Generation", cfg.Providers.Generation.Name, cfg.Providers.Generation.Model)
	printProvider("TTS", cfg.Providers.TTS.Name, cfg.Providers.TTS.Model)
	fmt.Printf("║  Vocab files     : %-19d ║\n", len(cfg.Import.VocabFiles))
	fmt.Printf("║  Session size    : %-19d ║\n", cfg.Training.SessionSize)
	fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
