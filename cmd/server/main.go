package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/avelasko/taskpilot/internal/agent"
	"github.com/avelasko/taskpilot/internal/api"
	"github.com/avelasko/taskpilot/internal/auth"
	"github.com/avelasko/taskpilot/internal/bot"
	"github.com/avelasko/taskpilot/internal/events"
	"github.com/avelasko/taskpilot/internal/reminder"
	"github.com/avelasko/taskpilot/internal/storage"
	"github.com/avelasko/taskpilot/internal/task"
	"github.com/avelasko/taskpilot/pkg/config"
	"go.uber.org/zap"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := config.LoadConfig("config.yaml")
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err), zap.String("path", "config.yaml"))
	}

	// Initialize storage
	var store storage.Storage
	if cfg.Database.UseInMemory {
		logger.Info("Using in-memory storage")
		store = storage.NewMemoryStorage()
	} else {
		logger.Info("Using PostgreSQL storage")
		store, err = storage.NewPostgresStorage(cfg.Database, logger)
		if err != nil {
			logger.Fatal("Failed to initialize storage", zap.Error(err))
		}
	}
	defer store.Close()

	validator := auth.NewValidator(store, logger)

	// Outbound notifications are best-effort; the log publisher stands in
	// for an external broker and the bot (when enabled) joins the fanout.
	publishers := events.Fanout{events.NewLogPublisher(logger)}

	taskSvc := task.NewService(store, &publishers, logger)

	parser := agent.NewGPTParser(
		cfg.OpenAI.APIKey,
		cfg.OpenAI.Model,
		cfg.OpenAI.MaxTokens,
		cfg.OpenAI.Temperature,
		cfg.Agent.ParseTimeout,
		logger,
	)
	agt := agent.New(parser, taskSvc, cfg.Agent.MaxContextTurns, logger)

	if cfg.Telegram.Token != "" {
		b, err := bot.New(cfg.Telegram.Token, validator, agt, logger)
		if err != nil {
			logger.Fatal("Failed to create bot", zap.Error(err))
		}
		publishers = append(publishers, b)
		go func() {
			if err := b.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Bot stopped", zap.Error(err))
			}
		}()
	}

	if cfg.Reminders.Enabled {
		reminders := reminder.NewService(store, &publishers, cfg.Reminders.Interval, logger)
		if err := reminders.Start(); err != nil {
			logger.Fatal("Failed to start reminder scheduler", zap.Error(err))
		}
		defer reminders.Stop()
	}

	server := api.NewServer(validator, taskSvc, agt, store, logger)
	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: server.Handler(),
	}

	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.Server.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}
	logger.Info("Shutdown complete")
}
