package eventlogger

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	TypeTripStarted = "trip.started"
	TypeTripEnded   = "trip.ended"
)

type Event struct {
	ID        uuid.UUID         `json:"id,omitempty"`
	TripID    uuid.UUID         `json:"trip_id,omitzero"`
	Type      string            `json:"event_type,omitempty"`
	Data      any               `json:"event_data,omitempty"`
	Metadata  map[string]string `json:"event_metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

type EventOption func(*Event)

func WithType(eventType string) EventOption {
	return func(e *Event) {
		e.Type = eventType
	}
}

// WithTrip scopes the event to a trip. Events without a trip are service-wide.
func WithTrip(tripID uuid.UUID) EventOption {
	return func(e *Event) {
		e.TripID = tripID
	}
}

func WithData(data any) EventOption {
	return func(e *Event) {
		e.Data = data
	}
}

func WithMetadata(metadata map[string]string) EventOption {
	return func(e *Event) {
		for k, v := range metadata {
			e.Metadata[k] = v
		}
	}
}

func NewEvent(opts ...EventOption) Event {
	e := Event{
		ID:        uuid.New(),
		CreatedAt: time.Now().UTC(),
		Metadata:  make(map[string]string),
	}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

type EventLogger interface {
	Save(ctx context.Context, e Event) error
	// ListByTrip returns the trip's events oldest first. An empty eventType
	// matches every type.
	ListByTrip(ctx context.Context, tripID uuid.UUID, eventType string) ([]Event, error)
}

type metadataKey struct{}

// ContextWithMetadata attaches request details to ctx. Events built with
// WithContextMetadata carry them.
func ContextWithMetadata(ctx context.Context, metadata map[string]string) context.Context {
	merged := make(map[string]string, len(metadata))
	for k, v := range MetadataFromContext(ctx) {
		merged[k] = v
	}
	for k, v := range metadata {
		merged[k] = v
	}
	return context.WithValue(ctx, metadataKey{}, merged)
}

func MetadataFromContext(ctx context.Context) map[string]string {
	metadata, _ := ctx.Value(metadataKey{}).(map[string]string)
	return metadata
}

func WithContextMetadata(ctx context.Context) EventOption {
	return WithMetadata(MetadataFromContext(ctx))
}
