// Package reminder periodically notifies the roster of matches that are
// about to start.
package reminder

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"pickup-push-backend/config"
	"pickup-push-backend/internal/logger"
	"pickup-push-backend/internal/model"
)

// MatchSource lists upcoming matches.
type MatchSource interface {
	ListMatchesStartingBetween(ctx context.Context, from, to time.Time) ([]model.Match, error)
}

// Notifier notifies every real participant of a match.
type Notifier interface {
	NotifyMatch(ctx context.Context, matchID, message string) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, matchID, message string) error

// NotifyMatch calls f.
func (f NotifierFunc) NotifyMatch(ctx context.Context, matchID, message string) error {
	return f(ctx, matchID, message)
}

// Service runs the reminder sweep on a cron schedule.
type Service struct {
	cfg      config.ReminderConfig
	matches  MatchSource
	notifier Notifier
	cron     *cron.Cron
	loc      *time.Location
	lead     time.Duration
	reminded *gocache.Cache
	now      func() time.Time
	log      *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides time.Now, primarily for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithCron injects a preconfigured cron instance.
func WithCron(c *cron.Cron) Option {
	return func(s *Service) { s.cron = c }
}

// NewService creates a reminder service.
func NewService(cfg config.ReminderConfig, matches MatchSource, notifier Notifier, opts ...Option) *Service {
	s := &Service{
		cfg:      cfg,
		matches:  matches,
		notifier: notifier,
		lead:     time.Duration(cfg.LeadMinutes) * time.Minute,
		now:      time.Now,
		log:      logger.WithModule("reminder"),
	}
	if s.lead <= 0 {
		s.lead = 2 * time.Hour
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		s.log.Warn("invalid reminder timezone; using UTC", zap.String("timezone", cfg.Timezone), zap.Error(err))
		loc = time.UTC
	}
	s.loc = loc

	// A match is reminded once per process; entries outlive the lead window.
	s.reminded = gocache.New(s.lead+time.Hour, 10*time.Minute)

	for _, opt := range opts {
		opt(s)
	}
	if s.cron == nil {
		s.cron = cron.New(cron.WithLocation(loc), cron.WithLogger(cron.DiscardLogger))
	}
	return s
}

// Start registers the sweep and starts the scheduler. It is a no-op when
// reminders are disabled.
func (s *Service) Start(ctx context.Context) error {
	if !s.cfg.Enabled {
		s.log.Info("reminders are disabled; not starting")
		return nil
	}
	if _, err := s.cron.AddFunc(s.cfg.Schedule, func() {
		if _, err := s.SweepOnce(ctx); err != nil {
			s.log.Warn("reminder sweep failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("schedule reminders %q: %w", s.cfg.Schedule, err)
	}
	s.log.Info("starting reminder service", zap.String("schedule", s.cfg.Schedule), zap.Duration("lead", s.lead))
	s.cron.Start()
	return nil
}

// Stop halts the scheduler, waiting for a running sweep to finish.
func (s *Service) Stop() context.Context {
	return s.cron.Stop()
}

// SweepOnce notifies every match starting within the lead window that has
// not been reminded yet and returns how many were notified.
func (s *Service) SweepOnce(ctx context.Context) (int, error) {
	now := s.now()
	upcoming, err := s.matches.ListMatchesStartingBetween(ctx, now, now.Add(s.lead))
	if err != nil {
		return 0, fmt.Errorf("list upcoming matches: %w", err)
	}

	var errs error
	sent := 0
	for _, m := range upcoming {
		if _, done := s.reminded.Get(m.ID); done {
			continue
		}
		if err := s.notifier.NotifyMatch(ctx, m.ID, Message(m, s.loc)); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("match %s: %w", m.ID, err))
			continue
		}
		s.reminded.SetDefault(m.ID, struct{}{})
		sent++
	}
	s.log.Debug("reminder sweep finished", zap.Int("upcoming", len(upcoming)), zap.Int("notified", sent))
	return sent, errs
}

// Message renders the reminder text for m.
func Message(m model.Match, loc *time.Location) string {
	msg := fmt.Sprintf("Reminder: %s starts at %s", m.Title, m.StartsAt.In(loc).Format("15:04"))
	if m.Location != "" {
		msg += " at " + m.Location
	}
	return msg
}
