package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/persona-echo/backend/internal/analysis/transcript"
	"github.com/zhouzirui/persona-echo/backend/internal/config"
	"github.com/zhouzirui/persona-echo/backend/internal/events"
	"github.com/zhouzirui/persona-echo/backend/internal/handler"
	settingsModel "github.com/zhouzirui/persona-echo/backend/internal/model/settings"
	"github.com/zhouzirui/persona-echo/backend/internal/service/ai"
	"github.com/zhouzirui/persona-echo/backend/internal/service/chat"
	"github.com/zhouzirui/persona-echo/backend/internal/service/session"
	"github.com/zhouzirui/persona-echo/backend/internal/service/settings"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx)
	stop()
	if err != nil {
		slog.Error("persona echo exited", "error", err)
		os.Exit(1)
	}
}

// run wires every component and serves until ctx ends. Deferred cleanup runs
// on every return path.
func run(ctx context.Context) error {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file loaded, using process environment", "reason", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	setupLogging(cfg.LogLevel)
	logger := slog.Default()

	// Settings record, persisted locally
	settingsStore, err := settings.OpenSQLite(cfg.Storage.SettingsPath)
	if err != nil {
		return fmt.Errorf("open settings store %s: %w", cfg.Storage.SettingsPath, err)
	}
	defer settingsStore.Close()

	settingsMgr, err := settings.NewManager(ctx, settingsStore, settingsModel.Settings{
		OllamaHost: cfg.AI.OllamaHost,
		LLMModel:   cfg.AI.Model,
	}, logger)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	// Completion backend
	factory, err := ai.NewModelFactory(ai.ProviderConfig{
		Provider:    cfg.AI.Provider,
		APIKey:      cfg.AI.APIKey,
		ArkAPIKey:   cfg.AI.ArkAPIKey,
		ArkBaseURL:  cfg.AI.ArkBaseURL,
		ArkRegion:   cfg.AI.ArkRegion,
		Temperature: cfg.AI.Temperature,
		MaxTokens:   cfg.AI.MaxTokens,
		Timeout:     cfg.AI.Timeout,
	})
	if err != nil {
		return fmt.Errorf("configure completion backend: %w", err)
	}
	aiService := ai.NewService(factory, settingsMgr, logger)
	logger.Info("completion backend configured", "provider", cfg.AI.Provider)

	// Optional event publishing
	var publisher events.Publisher = events.Nop{}
	if cfg.Events.Enabled() {
		client, err := events.NewClient(ctx, cfg.Events.NatsURL, cfg.Events.NatsToken, logger)
		if err != nil {
			logger.Warn("nats unavailable, events disabled", "error", err)
		} else {
			publisher = client
		}
	}
	defer publisher.Close()
	emitter := events.NewEmitter(publisher, cfg.Events.SubjectPrefix, logger)

	// Sessions and expiry sweep
	store := session.NewStore(session.SystemClock{})
	sweeper := session.NewSweeper(store, cfg.Session.SweepInterval, cfg.Session.IdleTimeout, emitter, logger)
	if err := sweeper.Start(); err != nil {
		return fmt.Errorf("start session sweeper: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		sweeper.Stop(stopCtx)
	}()

	chatService := chat.NewService(store, aiService, chat.Options{
		TokenBudget: cfg.AI.ContextTokenBudget,
		Observer:    emitter,
		Logger:      logger,
		Parser:      transcript.NewParser(transcript.MarkerRules(cfg.Parser.NoiseMarkers)...),
	})

	router := handler.NewRouter(handler.Dependencies{
		Chat:           chatService,
		Settings:       settingsMgr,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		StaticDir:      cfg.Server.StaticDir,
		Logger:         logger,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("persona echo backend listening", "addr", srv.Addr)
	if err := runServer(ctx, srv); err != nil {
		return fmt.Errorf("serve http: %w", err)
	}
	logger.Info("persona echo stopped")
	return nil
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(logHandler))
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
