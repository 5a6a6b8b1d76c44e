package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/staffly/approvalflow/pkg/conditions"
	"github.com/staffly/approvalflow/pkg/eventbus"
	"github.com/staffly/approvalflow/pkg/events"
	"github.com/staffly/approvalflow/pkg/models"
	"github.com/staffly/approvalflow/pkg/otelhelper"
	"github.com/staffly/approvalflow/pkg/persistence"
	"github.com/staffly/approvalflow/pkg/quorum"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "approvalflow/engine"

// Engine is the workflow state machine. It advances steps, applies votes,
// consults the condition evaluator for skip/auto-approval, consults the
// quorum calculator for parallel steps, and emits terminal outcomes.
//
// All mutating operations on one instance are applied under a single-writer
// discipline: a per-instance mutex guards the load-mutate-save cycle, so
// concurrent votes on the same parallel step cannot race past the
// duplicate-vote check.
type Engine struct {
	instances persistence.InstanceRepository
	publisher eventbus.EventPublisher
	logger    *slog.Logger
	tracer    trace.Tracer

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a workflow engine backed by the given instance store and event
// publisher.
func New(instances persistence.InstanceRepository, publisher eventbus.EventPublisher, logger *slog.Logger) *Engine {
	return &Engine{
		instances: instances,
		publisher: publisher,
		logger:    logger.With("module", "engine"),
		tracer:    otel.Tracer(tracerName),
		locks:     make(map[string]*sync.Mutex),
	}
}

// lockFor returns the mutex serializing all mutation of one instance.
func (e *Engine) lockFor(instanceID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()

	lock, ok := e.locks[instanceID]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[instanceID] = lock
	}

	return lock
}

// Advance evaluates the current step of the instance: skip and auto-approval
// conditions are applied against the entity snapshot, cascading until a step
// remains pending awaiting votes or the instance completes.
func (e *Engine) Advance(ctx context.Context, instanceID string, entity models.EntitySnapshot) (instance *models.WorkflowInstance, err error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.Advance",
		attribute.String(otelhelper.InstanceIDKey, instanceID),
	)
	defer func() {
		if err != nil {
			otelhelper.SetError(span, err)
		}

		span.End()
	}()

	lock := e.lockFor(instanceID)
	lock.Lock()
	defer lock.Unlock()

	instance, err = e.load(ctx, "Advance", instanceID)
	if err != nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.String(otelhelper.TemplateIDKey, instance.TemplateID),
		attribute.String(otelhelper.EntityTypeKey, string(instance.EntityType)),
		attribute.String(otelhelper.EntityIDKey, instance.EntityID),
	)

	if instance.IsTerminal() {
		return nil, newError("Advance", instanceID, "", ErrTerminalInstance)
	}

	emitted := e.advanceLocked(instance, entity)

	err = e.saveAndPublish(ctx, instance, emitted)
	if err != nil {
		return nil, err
	}

	return instance, nil
}

// ApproveStep records an approval vote on the current step. For parallel
// steps the vote is recorded against the approver's roster entry and the
// quorum calculator decides whether the step completes; a not-yet-quorate
// step returns immediately with the step still pending.
func (e *Engine) ApproveStep(ctx context.Context, instanceID, stepID, approverID, comments string, entity models.EntitySnapshot) (instance *models.WorkflowInstance, err error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.ApproveStep",
		attribute.String(otelhelper.InstanceIDKey, instanceID),
		attribute.String(otelhelper.StepIDKey, stepID),
		attribute.String(otelhelper.ApproverIDKey, approverID),
	)
	defer func() {
		if err != nil {
			otelhelper.SetError(span, err)
		}

		span.End()
	}()

	lock := e.lockFor(instanceID)
	lock.Lock()
	defer lock.Unlock()

	instance, err = e.load(ctx, "ApproveStep", instanceID)
	if err != nil {
		return nil, err
	}

	step, err := e.currentStepFor(instance, "ApproveStep", stepID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	e.markStarted(instance, step, now)

	var emitted []eventbus.Event

	if step.IsParallel {
		emitted, err = e.applyParallelApproval(instance, step, approverID, comments, entity, now)
		if err != nil {
			return nil, err
		}
	} else {
		if step.RequiresComments && comments == "" {
			return nil, newError("ApproveStep", instanceID, stepID, ErrMissingComments)
		}

		step.Status = models.StepStatusApproved
		step.ApproverID = approverID
		step.Comments = comments
		step.ApprovedDate = &now

		approvedEvent := events.StepApproved{
			BaseEvent:  events.NewBaseEvent(events.StepApprovedEvent, instance.ID),
			StepID:     step.ID,
			ApproverID: approverID,
			Comments:   comments,
		}
		instance.CurrentStepIndex++
		emitted = append([]eventbus.Event{approvedEvent}, e.advanceLocked(instance, entity)...)
	}

	err = e.saveAndPublish(ctx, instance, emitted)
	if err != nil {
		return nil, err
	}

	return instance, nil
}

// RejectStep records a rejection. Any single rejection, parallel or not,
// immediately terminates the instance: approval requires consensus per the
// step's mode, rejection requires only one dissenting vote.
func (e *Engine) RejectStep(ctx context.Context, instanceID, stepID, approverID, comments string) (instance *models.WorkflowInstance, err error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.RejectStep",
		attribute.String(otelhelper.InstanceIDKey, instanceID),
		attribute.String(otelhelper.StepIDKey, stepID),
		attribute.String(otelhelper.ApproverIDKey, approverID),
	)
	defer func() {
		if err != nil {
			otelhelper.SetError(span, err)
		}

		span.End()
	}()

	lock := e.lockFor(instanceID)
	lock.Lock()
	defer lock.Unlock()

	instance, err = e.load(ctx, "RejectStep", instanceID)
	if err != nil {
		return nil, err
	}

	step, err := e.currentStepFor(instance, "RejectStep", stepID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	e.markStarted(instance, step, now)

	if step.IsParallel {
		approval := step.ApprovalFor(approverID)
		if approval == nil {
			return nil, newError("RejectStep", instanceID, stepID, ErrUnknownApprover)
		}

		if approval.Status != models.ApprovalStatusPending {
			return nil, newError("RejectStep", instanceID, stepID, ErrDuplicateVote)
		}

		approval.Status = models.ApprovalStatusRejected
		approval.RejectedDate = &now
		approval.Comments = comments
	}

	step.Status = models.StepStatusRejected
	step.ApproverID = approverID
	step.Comments = comments
	step.RejectedDate = &now

	instance.Status = models.InstanceStatusRejected
	instance.CompletedDate = &now
	instance.CurrentStepIndex = len(instance.Steps)

	emitted := []eventbus.Event{
		events.StepRejected{
			BaseEvent:  events.NewBaseEvent(events.StepRejectedEvent, instance.ID),
			StepID:     step.ID,
			ApproverID: approverID,
			Comments:   comments,
		},
		events.InstanceRejected{
			BaseEvent:     events.NewBaseEvent(events.InstanceRejectedEvent, instance.ID),
			EntityType:    instance.EntityType,
			EntityID:      instance.EntityID,
			StepID:        step.ID,
			ApproverID:    approverID,
			Comments:      comments,
			CompletedDate: now,
		},
	}

	err = e.saveAndPublish(ctx, instance, emitted)
	if err != nil {
		return nil, err
	}

	return instance, nil
}

// applyParallelApproval records one approver's vote and completes the step
// when quorum is reached.
func (e *Engine) applyParallelApproval(instance *models.WorkflowInstance, step *models.ApprovalStep, approverID, comments string, entity models.EntitySnapshot, now time.Time) ([]eventbus.Event, error) {
	approval := step.ApprovalFor(approverID)
	if approval == nil {
		return nil, newError("ApproveStep", instance.ID, step.ID, ErrUnknownApprover)
	}

	if approval.Status != models.ApprovalStatusPending {
		return nil, newError("ApproveStep", instance.ID, step.ID, ErrDuplicateVote)
	}

	if step.RequiresComments && comments == "" {
		return nil, newError("ApproveStep", instance.ID, step.ID, ErrMissingComments)
	}

	approval.Status = models.ApprovalStatusApproved
	approval.ApprovedDate = &now
	approval.Comments = comments

	if !quorum.IsStepSatisfied(step) {
		// Not yet quorate: the step stays pending, callers poll or subscribe
		// for the terminal transition
		return nil, nil
	}

	step.Status = models.StepStatusApproved
	step.ApprovedDate = &now

	approvedEvent := events.StepApproved{
		BaseEvent:     events.NewBaseEvent(events.StepApprovedEvent, instance.ID),
		StepID:        step.ID,
		ApproverID:    approverID,
		Comments:      comments,
		QuorumReached: true,
	}

	instance.CurrentStepIndex++

	return append([]eventbus.Event{approvedEvent}, e.advanceLocked(instance, entity)...), nil
}

// advanceLocked walks forward from the current step, applying skip and
// auto-approval rules, until a step is left pending or the instance
// completes. Must be called with the instance lock held.
func (e *Engine) advanceLocked(instance *models.WorkflowInstance, entity models.EntitySnapshot) []eventbus.Event {
	var emitted []eventbus.Event

	for instance.CurrentStepIndex < len(instance.Steps) {
		step := instance.Steps[instance.CurrentStepIndex]
		now := time.Now().UTC()

		newlyActivated := step.ActivatedAt == nil
		e.markStarted(instance, step, now)

		// A step with no skip conditions is never auto-skipped: skip has to
		// be modeled explicitly on the template.
		if step.CanSkip && len(step.SkipConditions) > 0 && conditions.Evaluate(step.SkipConditions, entity) {
			step.Status = models.StepStatusSkipped
			emitted = append(emitted, events.StepSkipped{
				BaseEvent: events.NewBaseEvent(events.StepSkippedEvent, instance.ID),
				StepID:    step.ID,
			})
			instance.CurrentStepIndex++

			continue
		}

		if len(step.AutoApprovalConditions) > 0 && conditions.Evaluate(step.AutoApprovalConditions, entity) {
			step.Status = models.StepStatusApproved
			step.ApproverID = models.SystemApproverID
			step.ApprovedDate = &now
			emitted = append(emitted, events.StepApproved{
				BaseEvent:  events.NewBaseEvent(events.StepApprovedEvent, instance.ID),
				StepID:     step.ID,
				ApproverID: models.SystemApproverID,
			})
			instance.CurrentStepIndex++

			continue
		}

		// Step remains pending awaiting votes
		if newlyActivated {
			emitted = append(emitted, events.StepActivated{
				BaseEvent:    events.NewBaseEvent(events.StepActivatedEvent, instance.ID),
				StepID:       step.ID,
				StepOrder:    step.Order,
				ApproverRole: step.ApproverRole,
				EntityType:   instance.EntityType,
				EntityID:     instance.EntityID,
			})
		}

		return emitted
	}

	if !instance.IsTerminal() {
		now := time.Now().UTC()
		instance.Status = models.InstanceStatusApproved
		instance.CompletedDate = &now
		emitted = append(emitted, events.InstanceApproved{
			BaseEvent:     events.NewBaseEvent(events.InstanceApprovedEvent, instance.ID),
			EntityType:    instance.EntityType,
			EntityID:      instance.EntityID,
			CompletedDate: now,
		})
	}

	return emitted
}

// markStarted stamps activatedAt the first time a step is examined and moves
// a pending instance to in-progress.
func (e *Engine) markStarted(instance *models.WorkflowInstance, step *models.ApprovalStep, now time.Time) {
	if step.ActivatedAt == nil {
		activated := now
		step.ActivatedAt = &activated
	}

	if instance.Status == models.InstanceStatusPending {
		instance.Status = models.InstanceStatusInProgress
	}
}

// currentStepFor validates that the target step exists, is the current step
// and still pending.
func (e *Engine) currentStepFor(instance *models.WorkflowInstance, op, stepID string) (*models.ApprovalStep, error) {
	if instance.IsTerminal() {
		return nil, newError(op, instance.ID, stepID, ErrTerminalInstance)
	}

	step := instance.CurrentStep()
	if step == nil || step.ID != stepID || step.Status != models.StepStatusPending {
		return nil, newError(op, instance.ID, stepID, ErrStepNotCurrent)
	}

	return step, nil
}

func (e *Engine) load(ctx context.Context, op, instanceID string) (*models.WorkflowInstance, error) {
	instance, err := e.instances.GetByID(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load instance %s: %w", instanceID, err)
	}

	if instance == nil {
		return nil, newError(op, instanceID, "", ErrInstanceNotFound)
	}

	return instance, nil
}

// saveAndPublish persists the instance first, then publishes events. Event
// delivery failures never roll back the state transition that triggered
// them.
func (e *Engine) saveAndPublish(ctx context.Context, instance *models.WorkflowInstance, emitted []eventbus.Event) error {
	err := e.instances.Save(ctx, instance)
	if err != nil {
		return fmt.Errorf("failed to save instance %s: %w", instance.ID, err)
	}

	if e.publisher == nil {
		return nil
	}

	for _, event := range emitted {
		err := e.publisher.Publish(ctx, instance.ID, event)
		if err != nil {
			e.logger.WarnContext(ctx, "Failed to publish event",
				"instance_id", instance.ID,
				"event_type", event.GetType(),
				"error", err,
			)
		}
	}

	return nil
}
