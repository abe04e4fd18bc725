// Package sweeper reclaims expired jobs: artifacts first, then the job row.
package sweeper

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pagesnap/pagesnap/internal/capture"
)

// Config controls the sweep cadence.
type Config struct {
	// Interval is the time between sweeps (default 1h).
	Interval time.Duration
}

const defaultInterval = time.Hour

// Sweeper periodically deletes expired jobs and their stored artifacts.
type Sweeper struct {
	store    capture.JobStore
	blobs    capture.BlobStore
	clock    capture.Clock
	interval time.Duration
	logger   *zap.Logger
}

// New constructs a Sweeper.
func New(cfg Config, store capture.JobStore, blobs capture.BlobStore, clock capture.Clock, logger *zap.Logger) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		store:    store,
		blobs:    blobs,
		clock:    clock,
		interval: cfg.Interval,
		logger:   logger,
	}
}

// Run sweeps on a ticker until the context ends. The first sweep happens
// immediately so restarts do not postpone overdue cleanup.
func (s *Sweeper) Run(ctx context.Context) {
	if _, err := s.SweepOnce(ctx); err != nil {
		s.logger.Warn("sweep failed", zap.Error(err))
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.logger.Warn("sweep failed", zap.Error(err))
			}
		}
	}
}

// SweepOnce removes every expired job and returns how many were reclaimed.
// Blob deletion precedes row deletion so a crash between the two leaves a
// visible expired job for the next sweep rather than orphaned objects.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	expired, err := s.store.ListExpired(ctx, s.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("listing expired jobs: %w", err)
	}

	swept := 0
	for _, job := range expired {
		if err := ctx.Err(); err != nil {
			return swept, err
		}
		if err := s.blobs.DeletePrefix(ctx, job.StoragePrefix()+"/"); err != nil {
			s.logger.Warn("deleting artifacts",
				zap.String("job_id", job.ID),
				zap.Error(err))
			continue
		}
		if err := s.store.Delete(ctx, job.ID); err != nil {
			s.logger.Warn("deleting job record",
				zap.String("job_id", job.ID),
				zap.Error(err))
			continue
		}
		swept++
		s.logger.Info("reclaimed expired job",
			zap.String("job_id", job.ID),
			zap.Time("expired_at", job.ExpiresAt))
	}
	return swept, nil
}
