package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Freeeeeet/tutorbook/internal/model"
	"github.com/Freeeeeet/tutorbook/internal/service"
	"go.uber.org/zap"
)

// Scheduler drives the time-based transitions the scheduling core leaves to
// an outside caller. It only uses public operations, as the system actor.
type Scheduler struct {
	scheduling   *service.SchedulingService
	interval     time.Duration
	autoComplete bool
	logger       *zap.Logger
	stopChan     chan struct{}
	stopOnce     sync.Once
}

func NewScheduler(scheduling *service.SchedulingService, interval time.Duration, autoComplete bool, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		scheduling:   scheduling,
		interval:     interval,
		autoComplete: autoComplete,
		logger:       logger,
		stopChan:     make(chan struct{}),
	}
}

// Run sweeps once immediately and then on every tick until ctx is done or
// Stop is called.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("Starting background scheduler", zap.Duration("interval", s.interval))

	s.Sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Sweep(ctx)
		case <-s.stopChan:
			s.logger.Info("Scheduler stopped")
			return
		case <-ctx.Done():
			s.logger.Info("Scheduler cancelled")
			return
		}
	}
}

func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
}

// SweepResult counts the transitions applied by one sweep.
type SweepResult struct {
	ClassesStarted    int
	BookingsCompleted int
	ClassesCompleted  int
}

// Sweep applies every transition that is due now. Failures on one entity are
// logged and do not stop the sweep.
func (s *Scheduler) Sweep(ctx context.Context) SweepResult {
	var res SweepResult

	res.ClassesStarted = s.startDueClasses(ctx)
	if s.autoComplete {
		res.BookingsCompleted = s.completeEndedBookings(ctx)
	}
	res.ClassesCompleted = s.completeEndedClasses(ctx)

	if res != (SweepResult{}) {
		s.logger.Info("Scheduler sweep completed",
			zap.Int("classes_started", res.ClassesStarted),
			zap.Int("bookings_completed", res.BookingsCompleted),
			zap.Int("classes_completed", res.ClassesCompleted),
		)
	}
	return res
}

func (s *Scheduler) startDueClasses(ctx context.Context) int {
	due, err := s.scheduling.Classes.ClassesToStart(ctx)
	if err != nil {
		s.logger.Error("Failed to list classes to start", zap.Error(err))
		return 0
	}

	started := 0
	for _, c := range due {
		if _, err := s.scheduling.StartClass(ctx, model.SystemActor, c.ID); err != nil {
			s.logger.Warn("Failed to start class", zap.String("class_id", c.ID.String()), zap.Error(err))
			continue
		}
		started++
	}
	return started
}

func (s *Scheduler) completeEndedBookings(ctx context.Context) int {
	due, err := s.scheduling.Bookings.BookingsToComplete(ctx)
	if err != nil {
		s.logger.Error("Failed to list bookings to complete", zap.Error(err))
		return 0
	}

	completed := 0
	for _, b := range due {
		if _, err := s.scheduling.CompleteBooking(ctx, model.SystemActor, b.ID); err != nil {
			s.logger.Warn("Failed to complete booking", zap.String("booking_id", b.ID.String()), zap.Error(err))
			continue
		}
		completed++
	}
	return completed
}

func (s *Scheduler) completeEndedClasses(ctx context.Context) int {
	due, err := s.scheduling.Classes.ClassesToComplete(ctx)
	if err != nil {
		s.logger.Error("Failed to list classes to complete", zap.Error(err))
		return 0
	}

	completed := 0
	for _, c := range due {
		_, err := s.scheduling.CompleteClass(ctx, model.SystemActor, c.ID)
		switch {
		case err == nil:
			completed++
		case errors.Is(err, service.ErrClassHasOpenBookings):
			s.logger.Debug("Class still has open bookings", zap.String("class_id", c.ID.String()))
		default:
			s.logger.Warn("Failed to complete class", zap.String("class_id", c.ID.String()), zap.Error(err))
		}
	}
	return completed
}
