package trip

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *repository {
	return &repository{db: db}
}

func (r *repository) CreateNew(ctx context.Context, trip Trip) (string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	var lastId string
	if err != nil {
		return lastId, err
	}
	defer tx.Rollback()

	insertTrip := `INSERT INTO trips (id, name, destination, trip_type, currency, start_date, end_date, created_at)
                   VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`
	err = tx.QueryRowContext(
		ctx,
		insertTrip,
		trip.ID,
		trip.Name,
		trip.Destination,
		trip.Type,
		trip.Currency,
		nullTime(trip.StartDate),
		nullTime(trip.EndDate),
		trip.CreatedAt,
	).Scan(&lastId)
	if err != nil {
		return lastId, err
	}

	insertCompanion := `INSERT INTO trip_companions (trip_id, participant_id, name, position) VALUES ($1, $2, $3, $4)`
	for i, c := range trip.Companions {
		_, err = tx.ExecContext(ctx, insertCompanion, trip.ID, c.ID, c.Name, i)
		if err != nil {
			return lastId, err
		}
	}

	return lastId, tx.Commit()
}

func (r *repository) GetByID(ctx context.Context, tripID uuid.UUID) (*Trip, error) {
	query := `SELECT id, name, destination, trip_type, currency, start_date, end_date, created_at FROM trips WHERE id = $1`

	var trip Trip
	var start, end sql.NullTime
	err := r.db.QueryRowContext(ctx, query, tripID).Scan(
		&trip.ID,
		&trip.Name,
		&trip.Destination,
		&trip.Type,
		&trip.Currency,
		&start,
		&end,
		&trip.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	trip.StartDate = start.Time
	trip.EndDate = end.Time

	companions, err := r.getCompanions(ctx, tripID)
	if err != nil {
		return nil, err
	}
	trip.Companions = companions

	return &trip, nil
}

func (r *repository) getCompanions(ctx context.Context, tripID uuid.UUID) ([]Participant, error) {
	query := `SELECT participant_id, name FROM trip_companions WHERE trip_id = $1 ORDER BY position ASC`

	rows, err := r.db.QueryContext(ctx, query, tripID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	companions := make([]Participant, 0)
	for rows.Next() {
		var p Participant
		if err := rows.Scan(&p.ID, &p.Name); err != nil {
			return nil, err
		}
		companions = append(companions, p)
	}

	return companions, rows.Err()
}

// Delete removes the trip. Companions, expenses and sessions go with it (ON DELETE CASCADE).
func (r *repository) Delete(ctx context.Context, tripID uuid.UUID) error {
	query := `DELETE FROM trips WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, tripID)
	return err
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
