// Package schedule runs periodic maintenance jobs on a cron schedule.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"
)

// FlushJob is the name of the periodic snapshot refresh.
const FlushJob = "snapshot_flush"

type Service struct {
	cron      *cron.Cron
	parser    cron.Parser
	triggerer Triggerer
	logger    *slog.Logger
	mu        sync.Mutex
	jobs      map[string]cron.EntryID
}

func NewService(log *slog.Logger, triggerer Triggerer) *Service {
	if log == nil {
		log = slog.Default()
	}
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	return &Service{
		cron:      cron.New(cron.WithParser(parser)),
		parser:    parser,
		triggerer: triggerer,
		logger:    log.With(slog.String("service", "schedule")),
		jobs:      map[string]cron.EntryID{},
	}
}

// Add registers a job. An empty pattern disables the job. Adding a name twice replaces it.
func (s *Service) Add(name, pattern string) error {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		s.remove(name)
		s.logger.Info("job disabled", slog.String("job", name))
		return nil
	}
	if _, err := s.parser.Parse(pattern); err != nil {
		return fmt.Errorf("invalid cron pattern %q: %w", pattern, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.jobs[name]; ok {
		s.cron.Remove(id)
	}
	id, err := s.cron.AddFunc(pattern, func() {
		if err := s.Trigger(context.Background(), name); err != nil {
			s.logger.Error("job failed", slog.String("job", name), slog.Any("error", err))
		}
	})
	if err != nil {
		return err
	}
	s.jobs[name] = id
	s.logger.Info("job scheduled", slog.String("job", name), slog.String("pattern", pattern))
	return nil
}

func (s *Service) remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.jobs[name]; ok {
		s.cron.Remove(id)
		delete(s.jobs, name)
	}
}

func (s *Service) jobNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	return names
}

// Trigger runs a job immediately.
func (s *Service) Trigger(ctx context.Context, name string) error {
	if s.triggerer == nil {
		return fmt.Errorf("schedule triggerer not configured")
	}
	return s.triggerer.TriggerSchedule(ctx, name)
}

func (s *Service) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", slog.Any("jobs", s.jobNames()))
}

// Stop halts the scheduler and waits for running jobs until ctx is done.
func (s *Service) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
