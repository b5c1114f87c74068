package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/dharsanguruparan/DocScrub/internal/app"
	"github.com/dharsanguruparan/DocScrub/internal/config"
	"github.com/dharsanguruparan/DocScrub/internal/logger"
	"github.com/dharsanguruparan/DocScrub/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := config.LoadDotEnv(); err != nil {
		slog.Error("load .env", "error", err)
		os.Exit(1)
	}
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	log := logger.New(os.Stderr, cfg.LogLevel)
	slog.SetDefault(log)
	if cfg.RedisAddr == "" {
		log.Error("DOCSCRUB_REDIS_ADDR is required for the worker")
		os.Exit(1)
	}

	backends, err := app.Open(ctx, cfg, log)
	if err != nil {
		log.Error("open backends", "error", err)
		os.Exit(1)
	}
	defer backends.Close()

	concurrency := cfg.Workers
	if concurrency < 1 {
		concurrency = 1
	}
	server := asynq.NewServer(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, asynq.Config{
		Concurrency: concurrency,
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			log.Warn("task error", "type", task.Type(), "error", err)
		}),
	})
	processor := worker.NewProcessor(backends.Manager())

	go func() {
		<-ctx.Done()
		server.Shutdown()
	}()

	log.Info("worker started", "redis", cfg.RedisAddr, "concurrency", concurrency)
	if err := server.Run(processor.Handler()); err != nil {
		log.Error("worker stopped", "error", err)
		os.Exit(1)
	}
}
