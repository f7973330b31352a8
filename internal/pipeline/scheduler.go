package pipeline

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/TobiSchelling/DailyDigest/internal/model"
)

// Runner runs one user's digest.
type Runner interface {
	Run(ctx context.Context, userID string) (*RunResult, error)
}

// Users lists registered users and their settings.
type Users interface {
	ListUsers(ctx context.Context) ([]string, error)
	GetSettings(ctx context.Context, userID string) (*model.Settings, error)
}

// ShouldRun reports whether now, in the user's timezone, is the configured
// push hour on a configured push day. No push days means every day.
func ShouldRun(s *model.Settings, now time.Time) bool {
	if s == nil {
		return false
	}
	loc, err := s.Location()
	if err != nil {
		return false
	}
	local := now.In(loc)
	if local.Hour() != s.PushHour {
		return false
	}
	return len(s.PushDays) == 0 || slices.Contains(s.PushDays, int(local.Weekday()))
}

// Scheduler checks every user on each tick and feeds due users to a single
// worker through a bounded queue.
type Scheduler struct {
	runner   Runner
	users    Users
	interval time.Duration
	queue    chan string
	now      func() time.Time
	log      zerolog.Logger
}

// NewScheduler creates a Scheduler.
func NewScheduler(runner Runner, users Users, interval time.Duration, queueSize int, logger zerolog.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Scheduler{
		runner:   runner,
		users:    users,
		interval: interval,
		queue:    make(chan string, queueSize),
		now:      time.Now,
		log:      logger,
	}
}

// SetClock overrides the time used to decide which users are due.
func (s *Scheduler) SetClock(now func() time.Time) {
	s.now = now
}

// Due returns the users whose push slot matches the current time.
func (s *Scheduler) Due(ctx context.Context) ([]string, error) {
	ids, err := s.users.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	var due []string
	for _, id := range ids {
		settings, err := s.users.GetSettings(ctx, id)
		if err != nil {
			s.log.Warn().Err(err).Str("user_id", id).Msg("skipping user with unreadable settings")
			continue
		}
		if ShouldRun(settings, now) {
			due = append(due, id)
		}
	}
	return due, nil
}

// Tick enqueues every due user and returns how many were queued. Users that
// do not fit in the queue are dropped with a warning.
func (s *Scheduler) Tick(ctx context.Context) (int, error) {
	due, err := s.Due(ctx)
	if err != nil {
		return 0, err
	}
	queued := 0
	for _, id := range due {
		select {
		case s.queue <- id:
			queued++
		default:
			s.log.Warn().Str("user_id", id).Msg("run queue full, dropping scheduled run")
		}
	}
	if len(due) > 0 {
		s.log.Info().Int("due", len(due)).Int("queued", queued).Msg("scheduler tick")
	}
	return queued, nil
}

// RunOnce runs every due user inline and returns their results.
func (s *Scheduler) RunOnce(ctx context.Context) ([]*RunResult, error) {
	due, err := s.Due(ctx)
	if err != nil {
		return nil, err
	}
	var results []*RunResult
	for _, id := range due {
		res, err := s.runner.Run(ctx, id)
		if err != nil {
			s.log.Error().Err(err).Str("user_id", id).Msg("scheduled run failed")
			continue
		}
		results = append(results, res)
	}
	return results, nil
}

// Start ticks immediately and then every interval until ctx is done. It
// returns after the worker has finished its current run.
func (s *Scheduler) Start(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.work(ctx)
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if _, err := s.Tick(ctx); err != nil {
		s.log.Error().Err(err).Msg("scheduler tick failed")
	}
}

func (s *Scheduler) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-s.queue:
			if _, err := s.runner.Run(ctx, id); err != nil {
				s.log.Error().Err(err).Str("user_id", id).Msg("scheduled run failed")
			}
		}
	}
}
