package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ArsPalazzz/memora-api-sub000/internal/core/domain"
	"github.com/ArsPalazzz/memora-api-sub000/internal/core/port"
	"github.com/ArsPalazzz/memora-api-sub000/internal/infra/telemetry"
)

const (
	taskDueScan       = "due_scan"
	taskSessionReaper = "session_reaper"
	taskDailyReminder = "daily_reminder"
)

// DueNotifier announces due cards to one user.
type DueNotifier interface {
	NotifyUser(ctx context.Context, userSub string, dueCount int) (*domain.NotifyResult, error)
}

// StaleSessionReaper aborts abandoned sessions.
type StaleSessionReaper interface {
	ReapStaleSessions(ctx context.Context) (int, error)
}

// SchedulerConfig holds the timing of every periodic task.
type SchedulerConfig struct {
	ScanInterval  time.Duration
	TaskTimeout   time.Duration
	MinDueCards   int
	ReapInterval  time.Duration
	ReminderTimes []string
	Location      *time.Location
}

// DefaultSchedulerConfig returns the production timings.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		ScanInterval:  15 * time.Minute,
		TaskTimeout:   5 * time.Minute,
		MinDueCards:   3,
		ReapInterval:  time.Hour,
		ReminderTimes: []string{"09:00", "19:00"},
		Location:      time.UTC,
	}
}

// Scheduler runs the due card scan, the session reaper and the daily reminders on independent timers.
type Scheduler struct {
	cards    port.CardRepository
	notifier DueNotifier
	reaper   StaleSessionReaper
	metrics  *telemetry.SchedulerMetrics
	logger   *zap.Logger
	cfg      SchedulerConfig
	now      func() time.Time

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	wg        sync.WaitGroup
}

// NewScheduler constructs a Scheduler. A nil reaper disables session reaping.
func NewScheduler(cards port.CardRepository, notifier DueNotifier, reaper StaleSessionReaper, cfg SchedulerConfig, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := DefaultSchedulerConfig()
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = defaults.ScanInterval
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = defaults.TaskTimeout
	}
	if cfg.MinDueCards <= 0 {
		cfg.MinDueCards = defaults.MinDueCards
	}
	if cfg.ReapInterval <= 0 {
		cfg.ReapInterval = defaults.ReapInterval
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Scheduler{
		cards:    cards,
		notifier: notifier,
		reaper:   reaper,
		logger:   logger,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
		stop:     make(chan struct{}),
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (s *Scheduler) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// WithMetrics attaches Prometheus collectors.
func (s *Scheduler) WithMetrics(metrics *telemetry.SchedulerMetrics) *Scheduler {
	s.metrics = metrics
	return s
}

// Start launches every task in its own goroutine. Malformed reminder times are rejected before anything starts.
func (s *Scheduler) Start(ctx context.Context) error {
	type clock struct{ hour, minute int }
	reminders := make([]clock, 0, len(s.cfg.ReminderTimes))
	for _, raw := range s.cfg.ReminderTimes {
		hour, minute, err := ParseTimeOfDay(raw)
		if err != nil {
			return err
		}
		reminders = append(reminders, clock{hour: hour, minute: minute})
	}

	s.startOnce.Do(func() {
		s.spawn(func() { s.runEvery(ctx, taskDueScan, s.cfg.ScanInterval, s.ScanDueCards) })
		if s.reaper != nil {
			s.spawn(func() { s.runEvery(ctx, taskSessionReaper, s.cfg.ReapInterval, s.reapSessions) })
		}
		for _, r := range reminders {
			s.spawn(func() { s.runDaily(ctx, taskDailyReminder, r.hour, r.minute, s.dailyReminder) })
		}
		s.logger.Info("scheduler started",
			zap.Duration("scan_interval", s.cfg.ScanInterval),
			zap.Int("min_due_cards", s.cfg.MinDueCards),
			zap.Strings("reminder_times", s.cfg.ReminderTimes),
		)
	})
	return nil
}

// Stop prevents future firings. A tick already running completes.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// Wait blocks until every task goroutine, including in-flight ticks, has returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// ScanDueCards hands every user with enough due cards to the notifier. Per-user failures are logged and skipped.
func (s *Scheduler) ScanDueCards(ctx context.Context) error {
	users, err := s.cards.GetUsersWithDueCards(ctx, s.cfg.MinDueCards, s.now())
	if err != nil {
		return fmt.Errorf("get users with due cards: %w", err)
	}

	for _, user := range users {
		result, err := s.notifier.NotifyUser(ctx, user.UserSub, user.DueCount)
		s.metrics.UserProcessed(err)
		if err != nil {
			s.logger.Error("review notification failed",
				zap.String("user_sub", user.UserSub),
				zap.Int("due_count", user.DueCount),
				zap.Error(err),
			)
			continue
		}
		if result != nil && !result.Skipped {
			s.logger.Info("review batch processed",
				zap.String("user_sub", user.UserSub),
				zap.String("batch_sub", result.BatchSub),
				zap.Int("attached", result.Attached),
				zap.Int("sent", result.Sent),
				zap.Int("failed", result.Failed),
			)
		}
	}
	return nil
}

func (s *Scheduler) reapSessions(ctx context.Context) error {
	_, err := s.reaper.ReapStaleSessions(ctx)
	return err
}

func (s *Scheduler) dailyReminder(ctx context.Context) error {
	s.logger.Info("daily reminder tick", zap.Time("at", s.now()))
	return nil
}

func (s *Scheduler) spawn(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

func (s *Scheduler) runEvery(ctx context.Context, name string, interval time.Duration, task func(context.Context) error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			s.runTask(ctx, name, task)
		}
	}
}

func (s *Scheduler) runDaily(ctx context.Context, name string, hour, minute int, task func(context.Context) error) {
	for {
		wait := nextDailyRun(s.now(), hour, minute, s.cfg.Location).Sub(s.now())
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-s.stop:
			timer.Stop()
			return
		case <-timer.C:
			s.runTask(ctx, name, task)
		}
	}
}

func (s *Scheduler) runTask(ctx context.Context, name string, task func(context.Context) error) {
	select {
	case <-s.stop:
		return
	default:
	}

	tickCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.TaskTimeout)
	defer cancel()

	started := time.Now()
	err := task(tickCtx)
	s.metrics.TaskRun(name, err)
	if err != nil {
		s.logger.Error("scheduled task failed", zap.String("task", name), zap.Error(err))
		return
	}
	s.logger.Debug("scheduled task completed", zap.String("task", name), zap.Duration("duration", time.Since(started)))
}

// ParseTimeOfDay parses an HH:MM wall clock time.
func ParseTimeOfDay(raw string) (int, int, error) {
	t, err := time.Parse("15:04", raw)
	if err != nil {
		return 0, 0, fmt.Errorf("parse time of day %q: %w", raw, err)
	}
	return t.Hour(), t.Minute(), nil
}

// nextDailyRun returns the first instant strictly after now at hour:minute in loc.
func nextDailyRun(now time.Time, hour, minute int, loc *time.Location) time.Time {
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, hour, minute, 0, 0, loc)
	}
	return next
}
