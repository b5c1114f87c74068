// Package main is the entry point for the DocScrub HTTP server. Without
// DOCSCRUB_REDIS_ADDR it also runs redaction jobs in-process.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/dharsanguruparan/DocScrub/internal/api"
	"github.com/dharsanguruparan/DocScrub/internal/app"
	"github.com/dharsanguruparan/DocScrub/internal/config"
	"github.com/dharsanguruparan/DocScrub/internal/logger"
	"github.com/dharsanguruparan/DocScrub/internal/processing"
	"github.com/dharsanguruparan/DocScrub/internal/queue"
	"github.com/dharsanguruparan/DocScrub/internal/signing"
)

func main() {
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logger.NewContext(ctx, log)

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	backends, err := app.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer backends.Close()
	manager := backends.Manager()

	g, ctx := errgroup.WithContext(ctx)

	if cfg.RedisAddr != "" {
		client := asynq.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer client.Close()
		manager.SetScheduler(queue.NewScheduler(client))
		log.Info("scheduling jobs on redis", "addr", cfg.RedisAddr)
	} else {
		pool := processing.New(manager, cfg.Workers, cfg.QueueDepth)
		pool.Start(ctx)
		manager.SetScheduler(pool)
		g.Go(func() error {
			<-ctx.Done()
			pool.Wait()
			return nil
		})
		log.Info("running jobs in-process", "workers", cfg.Workers, "queue_depth", cfg.QueueDepth)
	}

	srv := api.New(cfg, manager, signing.NewSigner(cfg.SigningSecret))
	if backends.Presigner != nil {
		srv.SetPresigner(backends.Presigner)
	}
	g.Go(func() error {
		return srv.Run(ctx)
	})
	return g.Wait()
}
