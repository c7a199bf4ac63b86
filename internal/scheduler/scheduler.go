// Package scheduler runs periodic maintenance over the alumni directory.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Reindexer recomputes derived alumni fields.
type Reindexer interface {
	Reindex(ctx context.Context) (int, error)
}

// Scheduler wraps robfig/cron and owns the reindex loop.
type Scheduler struct {
	cron      *cron.Cron
	reindexer Reindexer
	spec      string
	timeout   time.Duration
	logger    *zap.Logger

	mu      sync.Mutex
	running bool
}

// New creates a Scheduler firing on spec, e.g. "@every 6h".
func New(reindexer Reindexer, spec string, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cron:      cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger))),
		reindexer: reindexer,
		spec:      spec,
		timeout:   5 * time.Minute,
		logger:    logger,
	}
}

// Start registers the reindex job and starts the cron loop. An empty spec
// disables scheduling.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.spec == "" {
		s.logger.Info("alumni reindex schedule disabled")
		return nil
	}
	if _, err := s.cron.AddFunc(s.spec, func() { s.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("schedule alumni reindex %q: %w", s.spec, err)
	}
	s.cron.Start()
	s.logger.Info("alumni reindex scheduled", zap.String("spec", s.spec))
	return nil
}

// Stop waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// RunOnce performs a single reindex pass. Overlapping runs are skipped.
func (s *Scheduler) RunOnce(ctx context.Context) (int, bool) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Warn("alumni reindex still running, skipping tick")
		return 0, false
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	started := time.Now()
	updated, err := s.reindexer.Reindex(runCtx)
	if err != nil {
		s.logger.Error("alumni reindex failed", zap.Error(err))
		return 0, false
	}
	s.logger.Info("alumni reindex complete", zap.Int("updated", updated), zap.Duration("took", time.Since(started)))
	return updated, true
}
