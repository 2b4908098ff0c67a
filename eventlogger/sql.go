package eventlogger

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"
)

type sqlEventLogger struct {
	db *sql.DB
}

func NewSqlEventLogger(db *sql.DB) *sqlEventLogger {
	return &sqlEventLogger{
		db: db,
	}
}

func (el *sqlEventLogger) Save(ctx context.Context, e Event) error {
	jsonData, err := json.Marshal(e.Data)
	if err != nil {
		return err
	}
	jsonMetadata, err := json.Marshal(e.Metadata)
	if err != nil {
		return err
	}
	tripID := uuid.NullUUID{UUID: e.TripID, Valid: e.TripID != uuid.Nil}

	statement := `INSERT INTO events (id, trip_id, event_type, event_data, event_metadata, created_at) VALUES ($1, $2, $3, $4, $5, $6)`
	_, err = el.db.ExecContext(ctx, statement, e.ID, tripID, e.Type, jsonData, jsonMetadata, e.CreatedAt)
	return err
}

func (el *sqlEventLogger) ListByTrip(ctx context.Context, tripID uuid.UUID, eventType string) ([]Event, error) {
	query := `SELECT id, trip_id, event_type, event_data, event_metadata, created_at
              FROM events
              WHERE trip_id = $1 AND ($2::text = '' OR event_type = $2)
              ORDER BY created_at ASC`
	return el.query(ctx, query, tripID, eventType)
}

func (el *sqlEventLogger) query(ctx context.Context, query string, args ...any) ([]Event, error) {
	result, err := el.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer result.Close()

	events := make([]Event, 0)
	for result.Next() {
		var event Event
		var tripID uuid.NullUUID
		var jsonData, jsonMetadata []byte
		if err := result.Scan(&event.ID, &tripID, &event.Type, &jsonData, &jsonMetadata, &event.CreatedAt); err != nil {
			return events, err
		}
		event.TripID = tripID.UUID
		if len(jsonData) > 0 {
			event.Data = json.RawMessage(jsonData)
		}
		if len(jsonMetadata) > 0 {
			if err := json.Unmarshal(jsonMetadata, &event.Metadata); err != nil {
				return events, err
			}
		}

		events = append(events, event)
	}

	return events, result.Err()
}
