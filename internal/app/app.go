// Package app selects the job store and artifact backend from configuration.
// The server and the worker open the same backends so that a job enqueued by
// one is visible to the other.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dharsanguruparan/DocScrub/internal/api"
	"github.com/dharsanguruparan/DocScrub/internal/artifact"
	"github.com/dharsanguruparan/DocScrub/internal/config"
	"github.com/dharsanguruparan/DocScrub/internal/database"
	"github.com/dharsanguruparan/DocScrub/internal/redact"
	"github.com/dharsanguruparan/DocScrub/internal/repository"
	"github.com/dharsanguruparan/DocScrub/internal/s3storage"
	"github.com/dharsanguruparan/DocScrub/internal/storage"
	"github.com/dharsanguruparan/DocScrub/internal/submission"
)

// Backends holds the opened store and artifact backend.
type Backends struct {
	Store     submission.Store
	Artifacts submission.Artifacts
	// Presigner is set when the artifact backend can hand out direct URLs.
	Presigner api.Presigner

	closers []func()
}

// Close releases connections held by the backends.
func (b *Backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

// Open connects to Postgres and MinIO when configured and falls back to the
// in-memory store and the local data directories otherwise.
func Open(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Backends, error) {
	b := &Backends{}

	if cfg.DatabaseURL != "" {
		pool, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		b.closers = append(b.closers, pool.Close)
		if err := database.EnsureSchema(ctx, pool); err != nil {
			b.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		b.Store = repository.NewSubmissionRepository(pool)
		log.Info("job store ready", "backend", "postgres")
	} else {
		b.Store = storage.NewMemoryStore()
		log.Info("job store ready", "backend", "memory")
	}

	if cfg.S3Endpoint != "" {
		s3, err := s3storage.New(cfg)
		if err != nil {
			b.Close()
			return nil, err
		}
		if err := s3.EnsureBuckets(ctx); err != nil {
			b.Close()
			return nil, fmt.Errorf("ensure buckets: %w", err)
		}
		b.Artifacts = s3
		b.Presigner = s3
		log.Info("artifact store ready", "backend", "s3", "endpoint", cfg.S3Endpoint)
	} else {
		files, err := artifact.NewFileStore(cfg.UploadsDir, cfg.OutputsDir)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.Artifacts = files
		log.Info("artifact store ready", "backend", "files", "uploads", cfg.UploadsDir, "outputs", cfg.OutputsDir)
	}
	return b, nil
}

// Manager builds a submission manager over the backends. The caller attaches
// a scheduler.
func (b *Backends) Manager() *submission.Manager {
	return submission.NewManager(b.Store, b.Artifacts, redact.New())
}
