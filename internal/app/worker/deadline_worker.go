package worker

import (
	"context"
	"errors"
	"time"

	"clusterizer/internal/platform/lock"
	"clusterizer/internal/platform/metrics"

	"go.uber.org/zap"
)

// Expirer is the work the reaper performs on every tick.
type Expirer interface {
	ExpireOverdue(ctx context.Context) (int64, error)
}

// DeadlineWorker periodically expires overdue assignments. With a shared
// Locker only one coordinator replica reaps at a time.
type DeadlineWorker struct {
	expirer  Expirer
	locker   lock.Locker
	lockKey  string
	interval time.Duration
	metrics  *metrics.Collector
	logger   *zap.Logger
}

func NewDeadlineWorker(expirer Expirer, locker lock.Locker, lockKey string, interval time.Duration, collector *metrics.Collector, logger *zap.Logger) *DeadlineWorker {
	return &DeadlineWorker{
		expirer:  expirer,
		locker:   locker,
		lockKey:  lockKey,
		interval: interval,
		metrics:  collector,
		logger:   logger.Named("reaper"),
	}
}

// Start runs one pass immediately and then one per interval until ctx is done.
func (w *DeadlineWorker) Start(ctx context.Context) {
	w.logger.Info("deadline reaper started", zap.Duration("interval", w.interval))
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		w.RunOnce(ctx)
		select {
		case <-ctx.Done():
			w.logger.Info("deadline reaper stopping")
			return
		case <-ticker.C:
		}
	}
}

// RunOnce performs a single reaper pass under the lock.
func (w *DeadlineWorker) RunOnce(ctx context.Context) {
	// A lease outliving the interval would let the next tick overlap.
	release, err := w.locker.Acquire(ctx, w.lockKey, w.interval)
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			w.logger.Debug("reaper lock held elsewhere, skipping pass")
			return
		}
		w.logger.Error("acquiring reaper lock", zap.Error(err))
		w.metrics.RecordReaperRun(metrics.OutcomeError, 0)
		return
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			w.logger.Warn("releasing reaper lock", zap.Error(err))
		}
	}()

	expired, err := w.expirer.ExpireOverdue(ctx)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Error("expiring assignments", zap.Error(err))
		}
		w.metrics.RecordReaperRun(metrics.OutcomeError, 0)
		return
	}
	w.metrics.RecordReaperRun(metrics.OutcomeOK, expired)
	w.logger.Info("expired assignments", zap.Int64("count", expired))
}
