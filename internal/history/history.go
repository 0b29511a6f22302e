package history

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventType defines the kind of resource write.
type EventType string

const (
	EventPut   EventType = "put"
	EventClear EventType = "clear"
)

// Event records one completed resource write, successful or not.
type Event struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Resource   string    `json:"resource"`
	File       string    `json:"file"`
	Bytes      int       `json:"bytes"`
	Error      string    `json:"error,omitempty"`
}

// NewEvent stamps an event with a fresh ID and the current UTC time.
func NewEvent(t EventType, resource, file string, size int, err error) Event {
	e := Event{
		ID:         uuid.NewString(),
		Type:       t,
		OccurredAt: time.Now().UTC(),
		Resource:   resource,
		File:       file,
		Bytes:      size,
	}
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// OK reports whether the write succeeded.
func (e Event) OK() bool { return e.Error == "" }

// Sink is a destination for write audit events.
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}
