package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/amanullahtanweer/interview-rehearsal/internal/analysis"
	"github.com/amanullahtanweer/interview-rehearsal/internal/api"
	"github.com/amanullahtanweer/interview-rehearsal/internal/config"
	"github.com/amanullahtanweer/interview-rehearsal/internal/handoff"
	"github.com/amanullahtanweer/interview-rehearsal/internal/questions"
	"github.com/amanullahtanweer/interview-rehearsal/internal/server"
	"github.com/amanullahtanweer/interview-rehearsal/internal/session"
	"github.com/amanullahtanweer/interview-rehearsal/internal/speech"
	"github.com/charmbracelet/log"
	redis "github.com/redis/go-redis/v9"
)

func main() {
	var configFile string
	var debug bool
	flag.StringVar(&configFile, "config", "config.yaml", "Configuration file path")
	flag.BoolVar(&debug, "debug", false, "Enable debug logging")
	flag.Parse()

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Level:           log.InfoLevel,
	})
	if debug {
		logger.SetLevel(log.DebugLevel)
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		logger.Fatal("failed to load config", "err", err)
	}

	analyzer := analysis.NewHTTPAnalyzer(cfg.Analyzer.BaseURL, cfg.Analyzer.RequestTimeout)
	generator := questions.NewGenerator(cfg.OpenAIKey,
		questions.WithModel(cfg.Questions.Model),
		questions.WithLogger(logger.WithPrefix("questions")),
	)

	store, closeStore := newHandoffStore(cfg, logger)
	defer closeStore()

	registry := session.NewRegistry(generator, store, session.Deps{
		Analyzer:  analyzer,
		Speech:    newSpeechCapability(cfg, logger),
		Evaluator: generator,
		Logger:    logger.WithPrefix("session"),
	}, session.Config{
		Interval:          cfg.Analyzer.Interval,
		RequestTimeout:    cfg.Analyzer.RequestTimeout,
		SkipIfPending:     cfg.Analyzer.SkipIfPending,
		MaxFrameDimension: cfg.Analyzer.MaxFrameDimension,
		Language:          cfg.Speech.Language,
		SampleRate:        cfg.Speech.SampleRate,
		OutputDir:         cfg.Output.Dir,
		SaveTranscripts:   cfg.Output.SaveTranscripts,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}, cfg.Questions.Count)

	httpServer := &http.Server{
		Addr: cfg.HTTPAddr(),
		Handler: api.NewRouter(&api.App{
			Registry: registry,
			Analyzer: analyzer,
			Logger:   logger.WithPrefix("http"),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("HTTP API listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server error", "err", err)
		}
	}()

	audioServer := server.New(server.Config{
		Host: cfg.Server.AudioSocketHost,
		Port: cfg.Server.AudioSocketPort,
	}, func(ctx context.Context, id string) (server.AudioFeeder, error) {
		c, err := registry.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		return c, nil
	}, logger.WithPrefix("audiosocket"))
	go func() {
		if err := audioServer.Start(); err != nil {
			logger.Fatal("AudioSocket server error", "err", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Warn("HTTP shutdown", "err", err)
	}
	audioServer.Stop()
	registry.Shutdown(ctx)
}

func newSpeechCapability(cfg *config.Config, logger *log.Logger) speech.Capability {
	switch cfg.Speech.Provider {
	case config.ProviderVosk:
		logger.Info("speech provider", "provider", "vosk", "url", cfg.Speech.VoskURL)
		return speech.NewVoskCapability(cfg.Speech.VoskURL)
	case config.ProviderAssemblyAI:
		if cfg.AssemblyAIKey == "" {
			logger.Warn("ASSEMBLYAI_API_KEY not set, speech recognition disabled")
			return nil
		}
		logger.Info("speech provider", "provider", "assemblyai")
		return speech.NewAssemblyAICapability(cfg.AssemblyAIKey)
	default:
		logger.Warn("speech recognition disabled")
		return nil
	}
}

// newHandoffStore uses Redis when an address is configured and reachable,
// and process memory otherwise.
func newHandoffStore(cfg *config.Config, logger *log.Logger) (handoff.Store, func()) {
	if cfg.Handoff.RedisAddr == "" {
		logger.Info("handoff store", "backend", "memory")
		return handoff.NewMemoryStore(), func() {}
	}

	client := redis.NewClient(&redis.Options{
		Addr: cfg.Handoff.RedisAddr,
		DB:   cfg.Handoff.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unreachable, using memory handoff store", "addr", cfg.Handoff.RedisAddr, "err", err)
		client.Close()
		return handoff.NewMemoryStore(), func() {}
	}

	logger.Info("handoff store", "backend", "redis", "addr", cfg.Handoff.RedisAddr)
	return handoff.NewRedisStore(client, cfg.Handoff.Prefix, cfg.Handoff.TTL), func() { client.Close() }
}
