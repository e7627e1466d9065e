package domain

import (
	"context"
	"encoding/json"
	"time"
)

// EventType identifies the kind of event being published.
type EventType string

const (
	EventQueryStarted        EventType = "query.started"
	EventQueryCompleted      EventType = "query.completed"
	EventAgentRouted         EventType = "agent.routed"
	EventSpecialistStarted   EventType = "specialist.started"
	EventSpecialistConcluded EventType = "specialist.concluded"
	EventToolCallStarted     EventType = "tool.call.started"
	EventToolCallCompleted   EventType = "tool.call.completed"
	EventLLMCallStarted      EventType = "llm.call.started"
	EventLLMCallCompleted    EventType = "llm.call.completed"
	EventBudgetExceeded      EventType = "budget.exceeded"
	EventSummaryStarted      EventType = "summary.started"
)

// Event is the envelope published on the event bus.
type Event struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	QueryID   string          `json:"query_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// ProgressPayload is the payload carried by workflow events.
type ProgressPayload struct {
	Specialist string `json:"specialist,omitempty"`
	Tool       string `json:"tool,omitempty"`
	Detail     string `json:"detail,omitempty"`
	Success    *bool  `json:"success,omitempty"`
}

// EventHandler processes a published event.
type EventHandler func(ctx context.Context, event Event)

// EventBus is an in-process publish/subscribe channel for workflow events.
type EventBus interface {
	Publish(ctx context.Context, event Event)
	Subscribe(eventType EventType, handler EventHandler) (unsubscribe func())
	SubscribeAll(handler EventHandler) (unsubscribe func())
	Close()
}

// PublishProgress marshals payload and publishes it on bus. A nil bus is a no-op.
func PublishProgress(ctx context.Context, bus EventBus, eventType EventType, queryID string, payload ProgressPayload) {
	if bus == nil {
		return
	}
	data, _ := json.Marshal(payload)
	bus.Publish(ctx, Event{
		Type:      eventType,
		Timestamp: time.Now(),
		QueryID:   queryID,
		Payload:   data,
	})
}
