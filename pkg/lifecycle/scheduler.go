package lifecycle

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/redis"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// ErrSchedulerAlreadyRunning is returned when starting a running scheduler
var ErrSchedulerAlreadyRunning = errors.New("scheduler already running")

const (
	// DefaultJobInterval is the default spacing between job runs
	DefaultJobInterval = 24 * time.Hour

	// DefaultLockTTL bounds how long a crashed instance can block the next run
	DefaultLockTTL = 10 * time.Minute

	flagLockKey  = "sla:flag"
	closeLockKey = "sla:close"
)

// SchedulerConfig holds the scheduler's tick and lock settings
type SchedulerConfig struct {
	FlagInterval  time.Duration
	CloseInterval time.Duration
	LockTTL       time.Duration
	SLAWindowDays int
}

// Scheduler runs the SLA jobs on independent periodic schedules. A Redis
// run-lock per job keeps overlapping runs from executing concurrently across
// instances; at most one execution of each job is in flight at a time.
type Scheduler struct {
	service *Service
	locker  *redis.Locker
	config  SchedulerConfig
	logger  ectologger.Logger

	stopCh   chan struct{}
	stoppedC chan struct{}
	running  bool
	mu       sync.RWMutex
}

// NewScheduler creates a new SLA job scheduler
func NewScheduler(service *Service, locker *redis.Locker, config SchedulerConfig, logger ectologger.Logger) *Scheduler {
	if config.FlagInterval <= 0 {
		config.FlagInterval = DefaultJobInterval
	}
	if config.CloseInterval <= 0 {
		config.CloseInterval = DefaultJobInterval
	}
	if config.LockTTL <= 0 {
		config.LockTTL = DefaultLockTTL
	}
	if config.SLAWindowDays <= 0 {
		config.SLAWindowDays = DefaultSLAWindowDays
	}

	return &Scheduler{
		service:  service,
		locker:   locker,
		config:   config,
		logger:   logger,
		stopCh:   make(chan struct{}),
		stoppedC: make(chan struct{}),
	}
}

// Start starts the scheduler
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrSchedulerAlreadyRunning
	}
	s.running = true
	s.mu.Unlock()

	s.logger.WithContext(ctx).Infof("Starting SLA scheduler: flag_interval=%s close_interval=%s window=%dd",
		s.config.FlagInterval, s.config.CloseInterval, s.config.SLAWindowDays)

	go s.loop(ctx)

	return nil
}

// Stop stops the scheduler gracefully
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)

	select {
	case <-s.stoppedC:
		s.logger.WithContext(ctx).Info("SLA scheduler stopped")
	case <-ctx.Done():
		s.logger.WithContext(ctx).Warn("SLA scheduler shutdown timed out")
		return ctx.Err()
	}

	return nil
}

// IsRunning returns whether the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.stoppedC)

	flagTicker := time.NewTicker(s.config.FlagInterval)
	defer flagTicker.Stop()
	closeTicker := time.NewTicker(s.config.CloseInterval)
	defer closeTicker.Stop()

	// Run both once on start
	s.runFlag(ctx)
	s.runClose(ctx)

	for {
		select {
		case <-s.stopCh:
			return
		case <-flagTicker.C:
			s.runFlag(ctx)
		case <-closeTicker.C:
			s.runClose(ctx)
		}
	}
}

func (s *Scheduler) runFlag(ctx context.Context) {
	ctx, span := tracing.StartSpan(ctx, "Scheduler.runFlag")
	defer span.End()

	err := s.locker.WithLock(ctx, flagLockKey, s.config.LockTTL, func() error {
		result, err := s.service.FlagUnmatched(ctx, s.config.SLAWindowDays)
		if err != nil {
			return err
		}
		if !result.NoOp {
			s.logger.WithContext(ctx).Infof("Flag job flagged %d requests", result.Count)
		}
		return nil
	})
	if errors.Is(err, redis.ErrLockNotAcquired) {
		s.logger.WithContext(ctx).Debug("Flag job already running elsewhere")
		return
	}
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Flag job failed")
	}
}

func (s *Scheduler) runClose(ctx context.Context) {
	ctx, span := tracing.StartSpan(ctx, "Scheduler.runClose")
	defer span.End()

	err := s.locker.WithLock(ctx, closeLockKey, s.config.LockTTL, func() error {
		result, err := s.service.CloseUnmatched(ctx, s.config.SLAWindowDays)
		if err != nil {
			return err
		}
		if !result.NoOp {
			s.logger.WithContext(ctx).Infof("Close job closed %d requests", result.Count)
		}
		return nil
	})
	if errors.Is(err, redis.ErrLockNotAcquired) {
		s.logger.WithContext(ctx).Debug("Close job already running elsewhere")
		return
	}
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Close job failed")
	}
}
