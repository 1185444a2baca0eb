// Package events defines the notifications published when the mirror changes
// or a workflow is dispatched.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Topic carries every flowmirror event.
const Topic = "flowmirror.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	WorkflowSyncedEvent            EventType = "workflow.synced"
	SyncCompletedEvent             EventType = "sync.completed"
	WorkflowActivationChangedEvent EventType = "workflow.activation_changed"
	WorkflowDispatchedEvent        EventType = "workflow.dispatched"
)

type BaseEvent struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	WorkflowID string    `json:"workflow_id,omitempty"`
}

func NewBaseEvent(eventType EventType, workflowID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
	}
}

// WorkflowSynced is published for each workflow a sync run wrote successfully.
type WorkflowSynced struct {
	BaseEvent

	Name      string   `json:"name"`
	File      string   `json:"file"`
	Rotated   bool     `json:"rotated"`
	Unchanged bool     `json:"unchanged"`
	Tags      []string `json:"tags"`
}

func (WorkflowSynced) GetType() EventType {
	return WorkflowSyncedEvent
}

// SyncCompleted is published once per sync run.
type SyncCompleted struct {
	BaseEvent

	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration"`
}

func (SyncCompleted) GetType() EventType {
	return SyncCompletedEvent
}

type WorkflowActivationChanged struct {
	BaseEvent

	Active bool `json:"active"`
}

func (WorkflowActivationChanged) GetType() EventType {
	return WorkflowActivationChangedEvent
}

// WorkflowDispatched records an execution handed to the engine. It carries no
// payload data.
type WorkflowDispatched struct {
	BaseEvent

	TriggerPath string `json:"trigger_path"`
	CallerID    string `json:"caller_id"`
	StatusCode  int    `json:"status_code"`
	HasFile     bool   `json:"has_file"`
}

func (WorkflowDispatched) GetType() EventType {
	return WorkflowDispatchedEvent
}
