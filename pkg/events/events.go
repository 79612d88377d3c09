// Package events defines the execution lifecycle events exchanged over the event bus.
package events

import (
	"time"

	"github.com/dukex/dagstudio/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Topic carries every dagstudio event.
const Topic = "dagstudio.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	ExecutionRequestedEvent     EventType = "execution.requested"
	ExecutionStatusChangedEvent EventType = "execution.status_changed"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	WorkflowID string         `json:"workflow_id"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// ExecutionRequested is published by the API when a run is accepted. The
// executor picks it up and drives the execution to a terminal status.
type ExecutionRequested struct {
	BaseEvent

	ExecutionID     string `json:"execution_id"`
	WorkflowVersion int    `json:"workflow_version"`
}

func (e ExecutionRequested) GetType() EventType {
	return ExecutionRequestedEvent
}

// ExecutionStatusChanged reports an observed status transition of an execution.
type ExecutionStatusChanged struct {
	BaseEvent

	ExecutionID string                 `json:"execution_id"`
	Previous    models.ExecutionStatus `json:"previous,omitempty"`
	Status      models.ExecutionStatus `json:"status"`
	Error       string                 `json:"error,omitempty"`
}

func (e ExecutionStatusChanged) GetType() EventType {
	return ExecutionStatusChangedEvent
}

func NewBaseEvent(eventType EventType, workflowID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
		Metadata:   make(map[string]any),
	}
}
