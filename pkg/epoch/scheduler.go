// Package epoch advances blackboard epochs on a cron schedule for
// long-running processes that have no orchestrator driving them.
package epoch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/papercomputeco/blackboard/pkg/logger"
)

// DefaultSchedule advances every thirty seconds.
const DefaultSchedule = "@every 30s"

// Advancer is anything whose epoch can be advanced. Every storage.Store and
// blackboard.Registry satisfies it.
type Advancer interface {
	AdvanceEpoch(ctx context.Context) (uint64, error)
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule checks a five-field cron expression or an @descriptor such
// as "@every 1m".
func ParseSchedule(schedule string) error {
	if _, err := parser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid epoch schedule %q: %w", schedule, err)
	}
	return nil
}

type job struct {
	name   string
	target Advancer
	lock   sync.Mutex
}

// run advances the target unless the previous tick is still running.
func (j *job) run(ctx context.Context, log *slog.Logger) {
	if !j.lock.TryLock() {
		log.Warn("epoch advance still running, skipping tick", "store", j.name)
		return
	}
	defer j.lock.Unlock()

	epoch, err := j.target.AdvanceEpoch(ctx)
	if err != nil {
		log.Error("scheduled epoch advance failed", "store", j.name, "epoch", epoch, "error", err)
		return
	}
	log.Debug("scheduled epoch sealed", "store", j.name, "epoch", epoch)
}

// Scheduler advances registered targets on one schedule. Targets must be
// added before Start.
type Scheduler struct {
	mu       sync.Mutex
	schedule string
	logger   *slog.Logger
	jobs     []*job
	names    map[string]struct{}
	cron     *cron.Cron
	cancel   context.CancelFunc
}

// NewScheduler validates schedule and returns an idle scheduler.
func NewScheduler(schedule string, log *slog.Logger) (*Scheduler, error) {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if err := ParseSchedule(schedule); err != nil {
		return nil, err
	}

	return &Scheduler{
		schedule: schedule,
		logger:   logger.OrNop(log),
		names:    make(map[string]struct{}),
	}, nil
}

// Add registers a target under a unique name.
func (s *Scheduler) Add(name string, target Advancer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return errors.New("epoch scheduler already started")
	}
	if _, ok := s.names[name]; ok {
		return fmt.Errorf("duplicate epoch target %q", name)
	}

	s.names[name] = struct{}{}
	s.jobs = append(s.jobs, &job{name: name, target: target})
	return nil
}

// Start begins ticking. Cancelling ctx cancels in-flight advances.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return errors.New("epoch scheduler already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	c := cron.New(cron.WithParser(parser))
	for _, j := range s.jobs {
		if _, err := c.AddFunc(s.schedule, func() { j.run(ctx, s.logger) }); err != nil {
			cancel()
			return fmt.Errorf("scheduling %s: %w", j.name, err)
		}
	}

	s.cron, s.cancel = c, cancel
	c.Start()
	s.logger.Info("epoch scheduler started", "schedule", s.schedule, "stores", len(s.jobs))
	return nil
}

// Stop halts the schedule and waits for running advances to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.cancel()
	s.logger.Info("epoch scheduler stopped")
}
