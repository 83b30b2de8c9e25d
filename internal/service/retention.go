package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/llmrelay/llmrelay/internal/config"
	"github.com/llmrelay/llmrelay/internal/repository"
)

// RetentionSweeper deletes call logs older than the retention window on a
// cron schedule. An empty schedule disables it.
type RetentionSweeper struct {
	callLogs repository.CallLogRepository
	cfg      config.RetentionConfig
	cron     *cron.Cron
	logger   *zap.Logger

	mu      sync.Mutex
	running bool
}

func NewRetentionSweeper(callLogs repository.CallLogRepository, cfg config.RetentionConfig, logger *zap.Logger) *RetentionSweeper {
	return &RetentionSweeper{
		callLogs: callLogs,
		cfg:      cfg,
		cron:     cron.New(),
		logger:   logger,
	}
}

// Start registers the sweep job and starts the scheduler. The scheduler
// stops itself when ctx is canceled.
func (s *RetentionSweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.Schedule == "" {
		s.logger.Info("log retention schedule not configured, sweeper disabled")
		return nil
	}
	if _, err := cron.ParseStandard(s.cfg.Schedule); err != nil {
		return fmt.Errorf("invalid retention schedule %q: %w", s.cfg.Schedule, err)
	}
	if _, err := s.cron.AddFunc(s.cfg.Schedule, func() { s.sweep(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule retention sweep: %w", err)
	}

	s.cron.Start()
	s.running = true
	s.logger.Info("log retention sweeper started",
		zap.String("schedule", s.cfg.Schedule),
		zap.Int("retention_days", s.cfg.Days))

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// sweep runs one pruning cycle.
func (s *RetentionSweeper) sweep(ctx context.Context) {
	cutoff := time.Now().UTC().AddDate(0, 0, -s.cfg.Days)
	deleted, err := s.callLogs.PruneBefore(ctx, cutoff)
	if err != nil {
		s.logger.Error("retention sweep failed", zap.Error(err))
		return
	}
	if deleted > 0 {
		s.logger.Info("retention sweep completed",
			zap.Int64("deleted", deleted), zap.Time("cutoff", cutoff))
	}
}

// Stop halts the scheduler and waits for a running sweep to finish.
func (s *RetentionSweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		<-s.cron.Stop().Done()
		s.running = false
		s.logger.Info("log retention sweeper stopped")
	}
}
