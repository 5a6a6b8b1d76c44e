// Package events defines event types and structures for approval workflow lifecycle notifications.
package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/staffly/approvalflow/pkg/models"
)

type EventType string

// Kafka topics.
const Topic = "approvalflow.events"                // Workflow instance lifecycle events
const EscalationTopic = "approvalflow.escalations" // Escalation advisory events

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Step lifecycle events.
	StepActivatedEvent EventType = "step.activated"
	StepApprovedEvent  EventType = "step.approved"
	StepRejectedEvent  EventType = "step.rejected"
	StepSkippedEvent   EventType = "step.skipped"

	// Instance terminal events.
	InstanceApprovedEvent EventType = "instance.approved"
	InstanceRejectedEvent EventType = "instance.rejected"

	// Escalation advisory events.
	EscalationTriggeredEvent EventType = "escalation.triggered"
)

// BaseEvent carries the fields every downstream audit or notification
// consumer needs to act without re-deriving state.
type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	InstanceID string         `json:"instance_id"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

type StepActivated struct {
	BaseEvent

	StepID       string           `json:"step_id"`
	StepOrder    int              `json:"step_order"`
	ApproverRole string           `json:"approver_role"`
	EntityType   models.BatchType `json:"entity_type"`
	EntityID     string           `json:"entity_id"`
}

func (e StepActivated) GetType() EventType {
	return StepActivatedEvent
}

type StepApproved struct {
	BaseEvent

	StepID     string `json:"step_id"`
	ApproverID string `json:"approver_id"`
	Comments   string `json:"comments,omitempty"`
	// QuorumReached is true when a parallel step completed through its
	// approval mode rather than a single approver.
	QuorumReached bool `json:"quorum_reached"`
}

func (e StepApproved) GetType() EventType {
	return StepApprovedEvent
}

type StepRejected struct {
	BaseEvent

	StepID     string `json:"step_id"`
	ApproverID string `json:"approver_id"`
	Comments   string `json:"comments,omitempty"`
}

func (e StepRejected) GetType() EventType {
	return StepRejectedEvent
}

type StepSkipped struct {
	BaseEvent

	StepID string `json:"step_id"`
}

func (e StepSkipped) GetType() EventType {
	return StepSkippedEvent
}

type InstanceApproved struct {
	BaseEvent

	EntityType    models.BatchType `json:"entity_type"`
	EntityID      string           `json:"entity_id"`
	CompletedDate time.Time        `json:"completed_date"`
}

func (e InstanceApproved) GetType() EventType {
	return InstanceApprovedEvent
}

type InstanceRejected struct {
	BaseEvent

	EntityType    models.BatchType `json:"entity_type"`
	EntityID      string           `json:"entity_id"`
	StepID        string           `json:"step_id"`
	ApproverID    string           `json:"approver_id"`
	Comments      string           `json:"comments,omitempty"`
	CompletedDate time.Time        `json:"completed_date"`
}

func (e InstanceRejected) GetType() EventType {
	return InstanceRejectedEvent
}

// EscalationTriggered is advisory output: the consuming system decides how to
// reassign or notify. Emission never changes instance or step status.
type EscalationTriggered struct {
	BaseEvent

	StepID                 string    `json:"step_id"`
	ApproverRole           string    `json:"approver_role"`
	EscalateTo             string    `json:"escalate_to"`
	NotifyOriginalApprover bool      `json:"notify_original_approver"`
	ActivatedAt            time.Time `json:"activated_at"`
	HoursActive            float64   `json:"hours_active"`
}

func (e EscalationTriggered) GetType() EventType {
	return EscalationTriggeredEvent
}

func NewBaseEvent(eventType EventType, instanceID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		InstanceID: instanceID,
		Metadata:   make(map[string]any),
	}
}
