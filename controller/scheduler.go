package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"canvasdatasync/dispatch"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// ScheduledEvent the event of a pass started by the cron schedule.
type ScheduledEvent struct {
	Source string    `json:"source"`
	Time   time.Time `json:"time"`
}

// Scheduler runs passes of one controller in a long-running process. Passes are started by a cron
// schedule or by Trigger, and at most one runs at a time. A pass that runs out of its budget is
// continued by an immediate re-entry instead of a new function invocation.
type Scheduler struct {
	cron       *cron.Cron
	controller *Controller
	budget     time.Duration
	trigger    chan json.RawMessage

	// OnPass is called after every pass, successful or not
	OnPass func(summary Summary, err error)

	// newDeadline is replaced in tests
	newDeadline func(ctx context.Context) Deadline
}

// NewScheduler creates a scheduler for the controller and makes itself the controller's Reinvoker.
// Each pass gets budget of wall-clock time.
func NewScheduler(controller *Controller, schedule string, budget time.Duration) (*Scheduler, error) {
	s := &Scheduler{
		cron:        cron.New(),
		controller:  controller,
		budget:      budget,
		trigger:     make(chan json.RawMessage, 1),
		newDeadline: ContextDeadline,
	}
	if _, err := s.cron.AddFunc(schedule, s.scheduled); err != nil {
		return nil, fmt.Errorf("invalid schedule '%s': %w", schedule, err)
	}
	controller.Reinvoker = s
	return s, nil
}

// Trigger queues a pass with the given event. It does nothing when a pass is already queued.
func (s *Scheduler) Trigger(event json.RawMessage) bool {
	select {
	case s.trigger <- event:
		return true
	default:
		return false
	}
}

// Reinvoke queues the continuation of the running pass.
func (s *Scheduler) Reinvoke(_ context.Context, event json.RawMessage) error {
	if !s.Trigger(event) {
		log.Debug("A pass is already queued, not queueing the continuation")
	}
	return nil
}

// Run starts the schedule and executes queued passes until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.cron.Start()
	log.Info("Scheduler started", zap.Int("entries", len(s.cron.Entries())))
	defer func() {
		<-s.cron.Stop().Done()
		log.Info("Scheduler stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event := <-s.trigger:
			s.runPass(ctx, event)
		}
	}
}

func (s *Scheduler) runPass(ctx context.Context, event json.RawMessage) {
	passCtx, cancel := context.WithTimeout(ctx, s.budget)
	defer cancel()

	summary, err := s.controller.Run(passCtx, event, s.newDeadline(passCtx))
	if err != nil {
		log.Error("Sync pass failed", zap.Error(err))
	}
	if s.OnPass != nil {
		s.OnPass(summary, err)
	}
}

func (s *Scheduler) scheduled() {
	event, err := json.Marshal(ScheduledEvent{Source: "canvasdata.schedule", Time: time.Now().UTC()})
	if err != nil {
		log.Error("Failed to encode the scheduled event", zap.Error(err))
		return
	}
	if !s.Trigger(event) {
		log.Warn("Skipping the scheduled pass, another one is still queued")
	}
}

var _ dispatch.Reinvoker = (*Scheduler)(nil)
