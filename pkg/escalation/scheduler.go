package escalation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/staffly/approvalflow/pkg/eventbus"
	"github.com/staffly/approvalflow/pkg/events"
	"github.com/staffly/approvalflow/pkg/models"
	"github.com/staffly/approvalflow/pkg/otelhelper"
	"github.com/staffly/approvalflow/pkg/persistence"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DefaultSweepSchedule runs the sweep every 5 minutes.
const DefaultSweepSchedule = "*/5 * * * *"

const tracerName = "approvalflow/escalation"

// Scheduler periodically sweeps non-terminal instances and publishes
// EscalationTriggered events for overdue steps. The sweep is purely
// advisory: it never mutates instance or step state.
type Scheduler struct {
	instances persistence.InstanceRepository
	publisher eventbus.EventPublisher
	tracker   Tracker
	logger    *slog.Logger
	tracer    trace.Tracer
	schedule  string
	cron      *cron.Cron
	now       func() time.Time
}

// NewScheduler creates an escalation scheduler. An empty schedule uses
// DefaultSweepSchedule.
func NewScheduler(instances persistence.InstanceRepository, publisher eventbus.EventPublisher, tracker Tracker, logger *slog.Logger, schedule string) *Scheduler {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}

	return &Scheduler{
		instances: instances,
		publisher: publisher,
		tracker:   tracker,
		logger:    logger.With("module", "escalation"),
		tracer:    otel.Tracer(tracerName),
		schedule:  schedule,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Start validates the schedule and begins sweeping until Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid sweep schedule '%s': %w", s.schedule, err)
	}

	s.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	_, err := s.cron.AddFunc(s.schedule, func() {
		if err := s.Sweep(ctx); err != nil {
			s.logger.ErrorContext(ctx, "Escalation sweep failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to register sweep job: %w", err)
	}

	s.cron.Start()
	s.logger.InfoContext(ctx, "Escalation scheduler started", "schedule", s.schedule)

	return nil
}

// Stop halts the sweep loop.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.cron != nil {
		s.cron.Stop()
	}

	s.logger.InfoContext(ctx, "Escalation scheduler stopped")

	return nil
}

// Sweep runs one pass over all in-progress instances.
func (s *Scheduler) Sweep(ctx context.Context) error {
	instances, err := s.instances.ListByStatus(ctx, models.InstanceStatusInProgress)
	if err != nil {
		return fmt.Errorf("failed to list in-progress instances: %w", err)
	}

	for _, instance := range instances {
		err := s.sweepInstance(ctx, instance.ID)
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to sweep instance", "instance_id", instance.ID, "error", err)
		}
	}

	return nil
}

// sweepInstance re-reads the instance by ID before examining it: between the
// listing and the emit a vote may have advanced or terminated it, and a stale
// view must not escalate a step that is no longer waiting.
func (s *Scheduler) sweepInstance(ctx context.Context, instanceID string) (err error) {
	ctx, span := otelhelper.StartSpan(ctx, s.tracer, "escalation.SweepInstance",
		attribute.String(otelhelper.InstanceIDKey, instanceID),
	)
	defer func() {
		if err != nil {
			otelhelper.SetError(span, err)
		}

		span.End()
	}()

	instance, err := s.instances.GetByID(ctx, instanceID)
	if err != nil {
		return fmt.Errorf("failed to reload instance: %w", err)
	}

	if instance == nil || instance.IsTerminal() {
		return nil
	}

	step := instance.CurrentStep()
	if step == nil || step.Status != models.StepStatusPending || step.ActivatedAt == nil {
		return nil
	}

	hoursActive := s.now().Sub(*step.ActivatedAt).Hours()

	span.SetAttributes(
		attribute.String(otelhelper.StepIDKey, step.ID),
		attribute.String(otelhelper.StepNameKey, step.Name),
		attribute.Float64(otelhelper.HoursActiveKey, hoursActive),
	)

	for ruleIndex, rule := range step.EscalationRules {
		if hoursActive < float64(rule.HoursUntilEscalation) {
			continue
		}

		first, err := s.tracker.MarkFired(ctx, instance.ID, step.ID, ruleIndex)
		if err != nil {
			return fmt.Errorf("failed to check escalation marker: %w", err)
		}

		if !first {
			continue
		}

		span.SetAttributes(attribute.String(otelhelper.EscalateToKey, rule.EscalateTo))

		event := events.EscalationTriggered{
			BaseEvent:              events.NewBaseEvent(events.EscalationTriggeredEvent, instance.ID),
			StepID:                 step.ID,
			ApproverRole:           step.ApproverRole,
			EscalateTo:             rule.EscalateTo,
			NotifyOriginalApprover: rule.NotifyOriginalApprover,
			ActivatedAt:            *step.ActivatedAt,
			HoursActive:            hoursActive,
		}

		err = s.publisher.Publish(ctx, instance.ID, event)
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to publish escalation event",
				"instance_id", instance.ID,
				"step_id", step.ID,
				"escalate_to", rule.EscalateTo,
				"error", err,
			)

			continue
		}

		s.logger.InfoContext(ctx, "Escalation triggered",
			"instance_id", instance.ID,
			"step_id", step.ID,
			"escalate_to", rule.EscalateTo,
			"hours_active", hoursActive,
		)
	}

	return nil
}
