// Package scheduler runs the periodic housekeeping of the API server:
// pruning stale pending registrations and evicting idle web sessions.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/jobboard/apiserver/config"
	"github.com/jobboard/apiserver/internal/auth"
	"github.com/jobboard/apiserver/internal/backend"
	"github.com/jobboard/apiserver/internal/store"
)

// PendingPruner deletes pending registrations staged before a cutoff.
type PendingPruner interface {
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// SessionEvictor drops sessions idle for longer than a duration.
type SessionEvictor interface {
	Evict(idle time.Duration) int
}

// Scheduler wraps robfig/cron and owns the housekeeping jobs.
type Scheduler struct {
	cron     *cron.Cron
	source   auth.ClientSource
	sessions SessionEvictor
	cfg      config.SchedulerConfig
	logger   *zap.Logger

	pruner func(c *backend.Client) PendingPruner
	now    func() time.Time
}

// New creates a Scheduler. sessions may be nil when no web sessions are kept.
func New(source auth.ClientSource, sessions SessionEvictor, cfg config.SchedulerConfig, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cron:     cron.New(cron.WithLogger(cronLogger{logger.Sugar()})),
		source:   source,
		sessions: sessions,
		cfg:      cfg,
		logger:   logger,
		pruner: func(c *backend.Client) PendingPruner {
			return store.NewPendingRegistrationRepository(c.DB)
		},
		now: time.Now,
	}
}

// Start registers the jobs and starts the cron loop. A job with an empty
// schedule is not registered.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.cfg.PruneSchedule != "" && s.cfg.PendingTTL > 0 {
		if _, err := s.cron.AddFunc(s.cfg.PruneSchedule, func() {
			if _, err := s.PrunePending(ctx); err != nil {
				s.logger.Error("prune pending registrations", zap.Error(err))
			}
		}); err != nil {
			return fmt.Errorf("schedule prune %q: %w", s.cfg.PruneSchedule, err)
		}
	}
	if s.cfg.EvictionSchedule != "" && s.sessions != nil && s.cfg.SessionIdleTTL > 0 {
		if _, err := s.cron.AddFunc(s.cfg.EvictionSchedule, func() {
			s.EvictSessions()
		}); err != nil {
			return fmt.Errorf("schedule eviction %q: %w", s.cfg.EvictionSchedule, err)
		}
	}

	s.cron.Start()
	s.logger.Info("scheduler started",
		zap.String("prune", s.cfg.PruneSchedule),
		zap.String("eviction", s.cfg.EvictionSchedule),
	)
	return nil
}

// Stop halts the cron loop and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// PrunePending deletes pending registrations older than the configured TTL.
// Nothing happens while the backend is unavailable.
func (s *Scheduler) PrunePending(ctx context.Context) (int64, error) {
	client := s.source.Client(ctx)
	if client == nil || client.DB == nil {
		return 0, nil
	}
	cutoff := s.now().Add(-s.cfg.PendingTTL)
	n, err := s.pruner(client).PruneOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("pruned pending registrations", zap.Int64("count", n), zap.Time("cutoff", cutoff))
	}
	return n, nil
}

// EvictSessions drops web sessions idle for longer than the configured TTL.
func (s *Scheduler) EvictSessions() int {
	if s.sessions == nil {
		return 0
	}
	n := s.sessions.Evict(s.cfg.SessionIdleTTL)
	if n > 0 {
		s.logger.Debug("evicted idle sessions", zap.Int("count", n))
	}
	return n
}

type cronLogger struct {
	l *zap.SugaredLogger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Errorw(msg, append(keysAndValues, "error", err)...)
}
