package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Package events publishes document-lifecycle notifications for downstream
// consumers (audit, search indexing). Publishing is best-effort: a failed
// publish is logged by the caller and never fails the user action.

type EventType string

const (
	DocumentCreated      EventType = "document.created"
	DocumentDeleted      EventType = "document.deleted"
	DocumentReanalyzed   EventType = "document.reanalyzed"
	GmailImportCompleted EventType = "gmail.import.completed"
)

// Event is the wire envelope for one lifecycle notification.
type Event struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Source    string         `json:"source"`
	Data      map[string]any `json:"data"`
}

// New builds an event with a fresh ID and the current timestamp.
func New(eventType EventType, source string, data map[string]any) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Source:    source,
		Data:      data,
	}
}

// Publisher emits lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, e *Event) error
	Close() error
}

// NopPublisher discards all events. Used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, *Event) error { return nil }
func (NopPublisher) Close() error                          { return nil }
