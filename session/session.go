package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidSession = errors.New("invalid session")
	ErrExpiredSession = errors.New("session expired")
)

const (
	DefaultDuration = 7 * 24 * time.Hour
	CookieName      = "trip_session"
)

// Session binds a browser cookie to the trip it is currently planning.
type Session struct {
	ID        uuid.UUID
	TripID    uuid.UUID
	Token     string
	ExpiresAt time.Time
	CreatedAt time.Time
}

type Repository interface {
	Create(ctx context.Context, tripID uuid.UUID) (*Session, error)
	GetByToken(ctx context.Context, token string) (*Session, error)
	Delete(ctx context.Context, token string) error
	DeleteByTripID(ctx context.Context, tripID uuid.UUID) error
}

func newSession(tripID uuid.UUID, duration time.Duration) (*Session, error) {
	token, err := generateSecureToken()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &Session{
		ID:        uuid.New(),
		TripID:    tripID,
		Token:     token,
		ExpiresAt: now.Add(duration),
		CreatedAt: now,
	}, nil
}
