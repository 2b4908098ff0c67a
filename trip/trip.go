package trip

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// OwnerID identifies the person using the app. The owner takes part in every trip.
const (
	OwnerID   = "you"
	OwnerName = "You"
)

const DefaultCurrency = "USD"

type Type string

const (
	TypeSolo     Type = "solo"
	TypeCouple   Type = "couple"
	TypeFamily   Type = "family"
	TypeFriends  Type = "friends"
	TypeBusiness Type = "business"
)

type Participant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Trip struct {
	ID          uuid.UUID     `json:"id"`
	Name        string        `json:"name"`
	Destination string        `json:"destination,omitempty"`
	Type        Type          `json:"type"`
	Currency    string        `json:"currency"`
	Companions  []Participant `json:"companions"`
	StartDate   time.Time     `json:"start_date,omitzero"`
	EndDate     time.Time     `json:"end_date,omitzero"`
	CreatedAt   time.Time     `json:"created_at"`
}

type NewTripInput struct {
	Name        string
	Destination string
	Type        Type
	Currency    string
	Companions  []Participant
	StartDate   time.Time
	EndDate     time.Time
}

var (
	ErrEmptyName          = errors.New("name can't be empty")
	ErrInvalidType        = errors.New("unknown trip type")
	ErrSoloWithCompanions = errors.New("solo trips can't have companions")
	ErrEmptyCompanionName = errors.New("companion name can't be empty")
	ErrDuplicateCompanion = errors.New("companion id is already taken")
	ErrInvalidDates       = errors.New("trip can't end before it starts")
)

func New(in NewTripInput) (Trip, error) {
	if in.Name == "" {
		return Trip{}, ErrEmptyName
	}

	if in.Type == "" {
		in.Type = TypeSolo
		if len(in.Companions) > 0 {
			in.Type = TypeFriends
		}
	}
	if !in.Type.valid() {
		return Trip{}, ErrInvalidType
	}

	if in.Type == TypeSolo && len(in.Companions) > 0 {
		return Trip{}, ErrSoloWithCompanions
	}

	if !in.StartDate.IsZero() && !in.EndDate.IsZero() && in.EndDate.Before(in.StartDate) {
		return Trip{}, ErrInvalidDates
	}

	seen := map[string]bool{OwnerID: true}
	companions := make([]Participant, 0, len(in.Companions))
	for _, c := range in.Companions {
		if c.Name == "" {
			return Trip{}, ErrEmptyCompanionName
		}
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		if seen[c.ID] {
			return Trip{}, ErrDuplicateCompanion
		}
		seen[c.ID] = true
		companions = append(companions, c)
	}

	currency := in.Currency
	if currency == "" {
		currency = DefaultCurrency
	}

	return Trip{
		ID:          uuid.New(),
		Name:        in.Name,
		Destination: in.Destination,
		Type:        in.Type,
		Currency:    currency,
		Companions:  companions,
		StartDate:   in.StartDate,
		EndDate:     in.EndDate,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// Owner is the implicit first participant of every trip.
func Owner() Participant {
	return Participant{ID: OwnerID, Name: OwnerName}
}

// AllTravelers returns the owner followed by the configured companions.
func (t Trip) AllTravelers() []Participant {
	travelers := make([]Participant, 0, len(t.Companions)+1)
	travelers = append(travelers, Owner())
	return append(travelers, t.Companions...)
}

func (t Trip) IsSolo() bool {
	return t.Type == TypeSolo
}

func (t Type) valid() bool {
	switch t {
	case TypeSolo, TypeCouple, TypeFamily, TypeFriends, TypeBusiness:
		return true
	}
	return false
}
