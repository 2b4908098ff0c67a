// Package planner keeps the trips being planned in memory, one roster and one
// expense ledger per trip, and writes every change through to storage.
package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/billbatista/acasinha-trips/eventlogger"
	"github.com/billbatista/acasinha-trips/ledger"
	"github.com/billbatista/acasinha-trips/settlement"
	"github.com/billbatista/acasinha-trips/trip"
	"github.com/google/uuid"
)

var (
	ErrTripNotFound    = errors.New("trip not found")
	ErrExpenseNotFound = errors.New("expense not found")
)

type TripStore interface {
	CreateNew(ctx context.Context, t trip.Trip) (string, error)
	GetByID(ctx context.Context, tripID uuid.UUID) (*trip.Trip, error)
	Delete(ctx context.Context, tripID uuid.UUID) error
}

type ExpenseStore interface {
	SaveExpense(ctx context.Context, tripID uuid.UUID, expense ledger.Expense) error
	DeleteExpense(ctx context.Context, tripID, expenseID uuid.UUID) error
	ListExpenses(ctx context.Context, tripID uuid.UUID) ([]ledger.Expense, error)
}

type EventSink interface {
	Log(event eventlogger.Event)
}

type Summary struct {
	Currency        string             `json:"currency"`
	TotalSpent      float64            `json:"total_spent"`
	SpentByCategory map[string]float64 `json:"spent_by_category"`
}

type book struct {
	trip   trip.Trip
	ledger *ledger.Ledger
}

// Service is safe for concurrent use. Every trip's ledger has a single
// writer: calls are serialized by one mutex.
type Service struct {
	trips    TripStore
	expenses ExpenseStore
	events   EventSink
	engine   *settlement.Engine
	logger   *slog.Logger

	mu    sync.Mutex
	books map[uuid.UUID]*book
}

func NewService(trips TripStore, expenses ExpenseStore, events EventSink, engine *settlement.Engine, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if engine == nil {
		engine = settlement.NewEngine(logger, nil)
	}
	return &Service{
		trips:    trips,
		expenses: expenses,
		events:   events,
		engine:   engine,
		logger:   logger,
		books:    make(map[uuid.UUID]*book),
	}
}

func (s *Service) StartTrip(ctx context.Context, in trip.NewTripInput) (trip.Trip, error) {
	t, err := trip.New(in)
	if err != nil {
		return trip.Trip{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.trips.CreateNew(ctx, t); err != nil {
		return trip.Trip{}, fmt.Errorf("saving trip: %w", err)
	}
	s.books[t.ID] = &book{trip: t, ledger: ledger.New(trip.OwnerID, s.logger)}

	s.events.Log(eventlogger.NewEvent(
		eventlogger.WithType(eventlogger.TypeTripStarted),
		eventlogger.WithTrip(t.ID),
		eventlogger.WithContextMetadata(ctx),
		eventlogger.WithData(map[string]any{
			"name":       t.Name,
			"type":       t.Type,
			"currency":   t.Currency,
			"travelers":  len(t.Companions) + 1,
			"companions": t.Companions,
		}),
	))
	s.logger.Info("trip started", "trip_id", t.ID, "type", t.Type, "companions", len(t.Companions))

	return t, nil
}

// EndTrip clears the ledger and forgets the trip, in memory and in storage.
// Deleting the trip deletes its expenses with it. When storage fails the
// cached book is dropped so the next call reloads whatever storage kept.
func (s *Service) EndTrip(ctx context.Context, tripID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.load(ctx, tripID)
	if err != nil {
		return err
	}

	if err := s.trips.Delete(ctx, tripID); err != nil {
		delete(s.books, tripID)
		return fmt.Errorf("deleting trip: %w", err)
	}

	spent := b.ledger.TotalSpent()
	count := b.ledger.Len()
	b.ledger.Clear()
	delete(s.books, tripID)

	s.events.Log(eventlogger.NewEvent(
		eventlogger.WithType(eventlogger.TypeTripEnded),
		eventlogger.WithTrip(tripID),
		eventlogger.WithContextMetadata(ctx),
		eventlogger.WithData(map[string]any{
			"expenses":    count,
			"total_spent": spent,
		}),
	))
	s.logger.Info("trip ended", "trip_id", tripID, "expenses", count)

	return nil
}

func (s *Service) Trip(ctx context.Context, tripID uuid.UUID) (trip.Trip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.load(ctx, tripID)
	if err != nil {
		return trip.Trip{}, err
	}
	return b.trip, nil
}

func (s *Service) Travelers(ctx context.Context, tripID uuid.UUID) ([]trip.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.load(ctx, tripID)
	if err != nil {
		return nil, err
	}
	return b.trip.AllTravelers(), nil
}

func (s *Service) AddExpense(ctx context.Context, tripID uuid.UUID, in ledger.ExpenseInput) (ledger.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.load(ctx, tripID)
	if err != nil {
		return ledger.Expense{}, err
	}

	expense := b.ledger.Add(in)
	if err := s.expenses.SaveExpense(ctx, tripID, expense); err != nil {
		b.ledger.Remove(expense.ID)
		return ledger.Expense{}, fmt.Errorf("saving expense: %w", err)
	}

	s.events.Log(eventlogger.NewEvent(
		eventlogger.WithType(ledger.EventExpenseAdded),
		eventlogger.WithTrip(tripID),
		eventlogger.WithContextMetadata(ctx),
		eventlogger.WithData(ledger.NewExpenseAddedEvent(expense)),
	))

	return expense, nil
}

// RemoveExpense deletes the expense. Unknown ids are not an error.
func (s *Service) RemoveExpense(ctx context.Context, tripID, expenseID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.load(ctx, tripID)
	if err != nil {
		return err
	}

	if err := s.expenses.DeleteExpense(ctx, tripID, expenseID); err != nil {
		return fmt.Errorf("deleting expense: %w", err)
	}
	found := b.ledger.Remove(expenseID)
	if !found {
		s.logger.Debug("removing unknown expense", "trip_id", tripID, "expense_id", expenseID)
	}

	s.events.Log(eventlogger.NewEvent(
		eventlogger.WithType(ledger.EventExpenseRemoved),
		eventlogger.WithTrip(tripID),
		eventlogger.WithContextMetadata(ctx),
		eventlogger.WithData(ledger.ExpenseRemovedEvent{ExpenseID: expenseID.String(), Found: found}),
	))

	return nil
}

func (s *Service) Expenses(ctx context.Context, tripID uuid.UUID) ([]ledger.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.load(ctx, tripID)
	if err != nil {
		return nil, err
	}
	return b.ledger.Expenses(), nil
}

func (s *Service) Expense(ctx context.Context, tripID, expenseID uuid.UUID) (ledger.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.load(ctx, tripID)
	if err != nil {
		return ledger.Expense{}, err
	}
	expense, ok := b.ledger.Get(expenseID)
	if !ok {
		return ledger.Expense{}, ErrExpenseNotFound
	}
	return expense, nil
}

func (s *Service) Summary(ctx context.Context, tripID uuid.UUID) (Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.load(ctx, tripID)
	if err != nil {
		return Summary{}, err
	}
	return Summary{
		Currency:        b.trip.Currency,
		TotalSpent:      b.ledger.TotalSpent(),
		SpentByCategory: b.ledger.SpentByCategory(),
	}, nil
}

func (s *Service) Balances(ctx context.Context, tripID uuid.UUID) (settlement.Balances, error) {
	t, expenses, err := s.snapshot(ctx, tripID)
	if err != nil {
		return nil, err
	}
	return s.engine.Balances(t, expenses), nil
}

func (s *Service) Settlements(ctx context.Context, tripID uuid.UUID) ([]settlement.Settlement, error) {
	t, expenses, err := s.snapshot(ctx, tripID)
	if err != nil {
		return nil, err
	}
	return s.engine.Settlements(t, expenses), nil
}

// snapshot copies the roster and the ledger so the engine can run without the lock.
func (s *Service) snapshot(ctx context.Context, tripID uuid.UUID) (trip.Trip, []ledger.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.load(ctx, tripID)
	if err != nil {
		return trip.Trip{}, nil, err
	}
	return b.trip, b.ledger.Expenses(), nil
}

// load returns the trip's book, reading it from storage on first use. Callers hold s.mu.
func (s *Service) load(ctx context.Context, tripID uuid.UUID) (*book, error) {
	if b, ok := s.books[tripID]; ok {
		return b, nil
	}

	t, err := s.trips.GetByID(ctx, tripID)
	if err != nil {
		return nil, fmt.Errorf("loading trip: %w", err)
	}
	if t == nil {
		return nil, ErrTripNotFound
	}

	expenses, err := s.expenses.ListExpenses(ctx, tripID)
	if err != nil {
		return nil, fmt.Errorf("loading expenses: %w", err)
	}

	l := ledger.New(trip.OwnerID, s.logger)
	for _, e := range expenses {
		l.Append(e)
	}

	b := &book{trip: *t, ledger: l}
	s.books[tripID] = b
	s.logger.Debug("trip loaded", "trip_id", tripID, "expenses", len(expenses))

	return b, nil
}
