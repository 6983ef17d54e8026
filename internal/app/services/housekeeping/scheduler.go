// Package housekeeping runs periodic maintenance jobs on a cron schedule.
package housekeeping

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/R3E-Network/factory_os/internal/app/system"
	"github.com/R3E-Network/factory_os/internal/logging"
)

var _ system.Service = (*Scheduler)(nil)

// Job is one unit of periodic work.
type Job func(ctx context.Context)

// Scheduler is a lifecycle-managed cron runner. Overlapping runs of the
// same job are skipped and panics are recovered.
type Scheduler struct {
	log  *logging.Logger
	cron *cron.Cron

	mu      sync.Mutex
	jobs    map[string]cron.EntryID
	cancel  context.CancelFunc
	ctx     context.Context
	running bool
}

// NewScheduler creates an idle scheduler.
func NewScheduler(log *logging.Logger) *Scheduler {
	if log == nil {
		log = logging.NewDefault("housekeeping")
	}
	cl := cronLogger{log: log}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		log: log,
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		jobs:   make(map[string]cron.EntryID),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Add schedules job under name. spec accepts standard five-field cron
// expressions and descriptors such as "@every 1m".
func (s *Scheduler) Add(name, spec string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s already scheduled", name)
	}
	id, err := s.cron.AddFunc(spec, func() {
		job(s.jobContext())
	})
	if err != nil {
		return fmt.Errorf("schedule %s (%q): %w", name, spec, err)
	}
	s.jobs[name] = id
	s.log.WithFields(logrus.Fields{"job": name, "schedule": spec}).Debug("housekeeping job scheduled")
	return nil
}

// Jobs returns the scheduled job names.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	return names
}

// RunNow executes the named job synchronously, outside the schedule.
func (s *Scheduler) RunNow(name string) error {
	s.mu.Lock()
	id, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown job %s", name)
	}
	s.cron.Entry(id).WrappedJob.Run()
	return nil
}

// jobContext is cancelled by Stop and renewed by the next Start.
func (s *Scheduler) jobContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

func (s *Scheduler) Name() string { return "housekeeping" }

func (s *Scheduler) Start(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	if s.ctx.Err() != nil {
		s.ctx, s.cancel = context.WithCancel(context.Background())
	}
	s.cron.Start()
	s.running = true
	s.log.WithField("jobs", len(s.jobs)).Info("housekeeping scheduler started")
	return nil
}

func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	s.log.Info("housekeeping scheduler stopped")
	return nil
}

// cronLogger adapts the service logger to cron.Logger.
type cronLogger struct {
	log *logging.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.WithFields(kvFields(keysAndValues)).Debug("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.WithError(err).WithFields(kvFields(keysAndValues)).Error("cron: " + msg)
}

func kvFields(kv []interface{}) logrus.Fields {
	fields := logrus.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		fields[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return fields
}
