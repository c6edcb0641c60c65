package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Scheduler runs audit rotations on a cron schedule.
type Scheduler struct {
	cron    *cron.Cron
	rotator *Rotator
}

// NewScheduler creates a scheduler for rotator. Cron expressions use the
// standard 5-field format (e.g. "0 * * * *" for hourly).
func NewScheduler(rotator *Rotator) *Scheduler {
	return &Scheduler{cron: cron.New(), rotator: rotator}
}

// Register adds a rotation entry for spec. An empty spec registers nothing.
func (s *Scheduler) Register(spec string) error {
	if spec == "" {
		return nil
	}
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		log.Info().Str("schedule", spec).Msg("audit_rotation_fired")
		if _, err := s.rotator.Rotate(ctx); err != nil {
			log.Error().Err(err).Msg("audit_rotation_failed")
		}
	})
	if err != nil {
		return fmt.Errorf("registering rotation schedule %q: %w", spec, err)
	}
	return nil
}

// Start begins executing registered entries.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler and waits for a running rotation to complete.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// Entries returns the number of registered entries.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}
