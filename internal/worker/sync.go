package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/KingofLakemoor/chainlink/internal/config"
)

// Rebuilder repopulates the leaderboard index from the primary store
type Rebuilder interface {
	Rebuild(ctx context.Context) (int, error)
}

// SyncWorker keeps the leaderboard index converged with the primary store. It
// rebuilds once on start and then on every interval tick.
type SyncWorker struct {
	rebuilder Rebuilder
	config    *config.SyncConfig
	logger    *slog.Logger
	stopCh    chan struct{}
	doneCh    chan struct{}
	mu        sync.Mutex
	running   bool
	lastRun   time.Time
	lastErr   error
}

// NewSyncWorker creates a new sync worker
func NewSyncWorker(rebuilder Rebuilder, cfg *config.SyncConfig, logger *slog.Logger) *SyncWorker {
	return &SyncWorker{
		rebuilder: rebuilder,
		config:    cfg,
		logger:    logger,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start begins the background sync process
func (w *SyncWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info("sync worker started", "interval", w.config.Interval)

	go w.run(ctx)
	return nil
}

// Stop stops the background sync process
func (w *SyncWorker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("sync worker stopped")
	return nil
}

// run is the main worker loop
func (w *SyncWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	w.RunOnce(ctx)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce runs a single rebuild cycle and reports the number of squads indexed.
func (w *SyncWorker) RunOnce(ctx context.Context) (int, error) {
	startTime := time.Now()

	count, err := w.rebuilder.Rebuild(ctx)

	w.mu.Lock()
	w.lastRun = startTime
	w.lastErr = err
	w.mu.Unlock()

	if err != nil {
		w.logger.Error("leaderboard index rebuild failed", "error", err)
		return 0, err
	}

	w.logger.Info("leaderboard index rebuilt",
		"duration", time.Since(startTime),
		"squads", count,
	)
	return count, nil
}

// IsRunning returns whether the worker is currently running
func (w *SyncWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// LastRun returns when the last cycle started and how it ended
func (w *SyncWorker) LastRun() (time.Time, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastRun, w.lastErr
}
