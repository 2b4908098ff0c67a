package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/billbatista/acasinha-trips/eventlogger"
	"github.com/billbatista/acasinha-trips/ledger"
	"github.com/billbatista/acasinha-trips/metrics"
	"github.com/billbatista/acasinha-trips/middleware"
	"github.com/billbatista/acasinha-trips/planner"
	"github.com/billbatista/acasinha-trips/session"
	"github.com/billbatista/acasinha-trips/settlement"
	"github.com/billbatista/acasinha-trips/trip"
	chimiddleware "github.com/go-chi/chi/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// EventHistory reads back the events recorded for a trip.
type EventHistory interface {
	ListByTrip(ctx context.Context, tripID uuid.UUID, eventType string) ([]eventlogger.Event, error)
}

type handler struct {
	planner  *planner.Service
	sessions session.Repository
	events   EventHistory
	metrics  *metrics.Registry
	logger   *slog.Logger
}

func NewRouter(svc *planner.Service, sessions session.Repository, events EventHistory, registry *metrics.Registry, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &handler{planner: svc, sessions: sessions, events: events, metrics: registry, logger: logger}

	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.Logger)
	router.Use(chimiddleware.Recoverer)
	router.Use(requestMetadata)
	router.Use(middleware.TripSession(sessions))

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	router.Get("/categories", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, ledger.Categories())
	})
	router.Get("/stats", h.stats)
	router.Post("/trips", h.startTrip)

	router.Route("/trip", func(r chi.Router) {
		r.Use(middleware.RequireTrip)

		r.Get("/", h.getTrip)
		r.Delete("/", h.endTrip)
		r.Post("/leave", h.leaveTrip)
		r.Get("/travelers", h.travelers)
		r.Get("/expenses", h.listExpenses)
		r.Post("/expenses", h.addExpense)
		r.Get("/expenses/summary", h.summary)
		r.Get("/expenses/{id}", h.getExpense)
		r.Delete("/expenses/{id}", h.removeExpense)
		r.Get("/balances", h.balances)
		r.Get("/settlements", h.settlements)
		r.Get("/events", h.listEvents)
	})

	return router
}

type startTripRequest struct {
	Name        string             `json:"name"`
	Destination string             `json:"destination"`
	Type        trip.Type          `json:"type"`
	Currency    string             `json:"currency"`
	Companions  []trip.Participant `json:"companions"`
	StartDate   time.Time          `json:"start_date"`
	EndDate     time.Time          `json:"end_date"`
}

type tripResponse struct {
	trip.Trip
	Travelers []trip.Participant `json:"travelers"`
}

func (h *handler) startTrip(w http.ResponseWriter, r *http.Request) {
	var req startTripRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid trip", http.StatusBadRequest)
		return
	}

	t, err := h.planner.StartTrip(r.Context(), trip.NewTripInput{
		Name:        req.Name,
		Destination: req.Destination,
		Type:        req.Type,
		Currency:    req.Currency,
		Companions:  req.Companions,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
	})
	if err != nil {
		switch {
		case errors.Is(err, trip.ErrEmptyName),
			errors.Is(err, trip.ErrInvalidType),
			errors.Is(err, trip.ErrSoloWithCompanions),
			errors.Is(err, trip.ErrEmptyCompanionName),
			errors.Is(err, trip.ErrDuplicateCompanion),
			errors.Is(err, trip.ErrInvalidDates):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			h.logger.Error("failed to start trip", "error", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	sess, err := h.sessions.Create(r.Context(), t.ID)
	if err != nil {
		h.logger.Error("failed to create session", "error", err, "trip_id", t.ID)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	middleware.SetSessionCookie(w, sess)

	writeJSON(w, http.StatusCreated, tripResponse{Trip: t, Travelers: t.AllTravelers()})
}

func (h *handler) getTrip(w http.ResponseWriter, r *http.Request) {
	tripID, _ := middleware.GetTripID(r.Context())

	t, err := h.planner.Trip(r.Context(), tripID)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tripResponse{Trip: t, Travelers: t.AllTravelers()})
}

func (h *handler) endTrip(w http.ResponseWriter, r *http.Request) {
	tripID, _ := middleware.GetTripID(r.Context())

	if err := h.planner.EndTrip(r.Context(), tripID); err != nil {
		h.fail(w, err)
		return
	}
	if err := h.sessions.DeleteByTripID(r.Context(), tripID); err != nil {
		h.logger.Error("failed to delete trip sessions", "error", err, "trip_id", tripID)
	}
	middleware.ClearSessionCookie(w)

	w.WriteHeader(http.StatusNoContent)
}

// leaveTrip signs this browser out of the trip. The trip and the other
// sessions planning it are kept.
func (h *handler) leaveTrip(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(session.CookieName); err == nil {
		if err := h.sessions.Delete(r.Context(), cookie.Value); err != nil {
			h.logger.Error("failed to delete session", "error", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
	}
	middleware.ClearSessionCookie(w)

	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) travelers(w http.ResponseWriter, r *http.Request) {
	tripID, _ := middleware.GetTripID(r.Context())

	travelers, err := h.planner.Travelers(r.Context(), tripID)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, travelers)
}

type addExpenseRequest struct {
	Description   string            `json:"description"`
	Amount        Amount            `json:"amount"`
	Category      string            `json:"category"`
	PaidBy        string            `json:"paid_by"`
	SplitType     ledger.SplitType  `json:"split_type"`
	SplitAmounts  map[string]Amount `json:"split_amounts"`
	Beneficiaries []string          `json:"beneficiaries"`
}

type expenseResponse struct {
	ID            uuid.UUID           `json:"id"`
	Description   string              `json:"description,omitempty"`
	Amount        *float64            `json:"amount"`
	Category      string              `json:"category"`
	PaidBy        string              `json:"paid_by"`
	SplitType     ledger.SplitType    `json:"split_type"`
	SplitAmounts  map[string]*float64 `json:"split_amounts"`
	Beneficiaries []string            `json:"beneficiaries"`
	CreatedAt     time.Time           `json:"created_at"`
}

func newExpenseResponse(e ledger.Expense) expenseResponse {
	splits := make(map[string]*float64, len(e.SplitAmounts))
	for id, v := range e.SplitAmounts {
		splits[id] = jsonAmount(v)
	}
	beneficiaries := e.Beneficiaries
	if beneficiaries == nil {
		beneficiaries = []string{}
	}
	return expenseResponse{
		ID:            e.ID,
		Description:   e.Description,
		Amount:        jsonAmount(e.Amount),
		Category:      e.Category,
		PaidBy:        e.PaidBy,
		SplitType:     e.SplitType,
		SplitAmounts:  splits,
		Beneficiaries: beneficiaries,
		CreatedAt:     e.CreatedAt,
	}
}

func (h *handler) addExpense(w http.ResponseWriter, r *http.Request) {
	tripID, _ := middleware.GetTripID(r.Context())

	var req addExpenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid expense", http.StatusBadRequest)
		return
	}
	if !req.Amount.Valid {
		if math.IsNaN(req.Amount.Value) {
			h.logger.Debug("non-numeric amount accepted", "trip_id", tripID)
		} else {
			h.logger.Debug("amount missing, recorded as zero", "trip_id", tripID)
		}
	}

	var splits map[string]float64
	if req.SplitAmounts != nil {
		splits = make(map[string]float64, len(req.SplitAmounts))
		for id, a := range req.SplitAmounts {
			splits[id] = a.Value
		}
	}

	expense, err := h.planner.AddExpense(r.Context(), tripID, ledger.ExpenseInput{
		Description:   req.Description,
		Amount:        req.Amount.Value,
		Category:      req.Category,
		PaidBy:        req.PaidBy,
		SplitType:     req.SplitType,
		SplitAmounts:  splits,
		Beneficiaries: req.Beneficiaries,
	})
	if err != nil {
		h.fail(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, newExpenseResponse(expense))
}

func (h *handler) removeExpense(w http.ResponseWriter, r *http.Request) {
	tripID, _ := middleware.GetTripID(r.Context())

	expenseID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid expense id", http.StatusBadRequest)
		return
	}

	if err := h.planner.RemoveExpense(r.Context(), tripID, expenseID); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) getExpense(w http.ResponseWriter, r *http.Request) {
	tripID, _ := middleware.GetTripID(r.Context())

	expenseID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid expense id", http.StatusBadRequest)
		return
	}

	expense, err := h.planner.Expense(r.Context(), tripID, expenseID)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newExpenseResponse(expense))
}

func (h *handler) listExpenses(w http.ResponseWriter, r *http.Request) {
	tripID, _ := middleware.GetTripID(r.Context())

	expenses, err := h.planner.Expenses(r.Context(), tripID)
	if err != nil {
		h.fail(w, err)
		return
	}

	out := make([]expenseResponse, 0, len(expenses))
	for _, e := range expenses {
		out = append(out, newExpenseResponse(e))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) summary(w http.ResponseWriter, r *http.Request) {
	tripID, _ := middleware.GetTripID(r.Context())

	summary, err := h.planner.Summary(r.Context(), tripID)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *handler) balances(w http.ResponseWriter, r *http.Request) {
	tripID, _ := middleware.GetTripID(r.Context())

	balances, err := h.planner.Balances(r.Context(), tripID)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balances.Map())
}

func (h *handler) settlements(w http.ResponseWriter, r *http.Request) {
	tripID, _ := middleware.GetTripID(r.Context())

	settlements, err := h.planner.Settlements(r.Context(), tripID)
	if err != nil {
		h.fail(w, err)
		return
	}
	if settlements == nil {
		settlements = []settlement.Settlement{}
	}
	writeJSON(w, http.StatusOK, settlements)
}

func (h *handler) listEvents(w http.ResponseWriter, r *http.Request) {
	tripID, _ := middleware.GetTripID(r.Context())

	if _, err := h.planner.Trip(r.Context(), tripID); err != nil {
		h.fail(w, err)
		return
	}

	events, err := h.events.ListByTrip(r.Context(), tripID, r.URL.Query().Get("type"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *handler) stats(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.metrics.Snapshot(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

// requestMetadata records where a request came from on its context, for the
// events it triggers.
func requestMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		metadata := map[string]string{"remote_addr": r.RemoteAddr}
		if id := chimiddleware.GetReqID(r.Context()); id != "" {
			metadata["request_id"] = id
		}
		ctx := eventlogger.ContextWithMetadata(r.Context(), metadata)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *handler) fail(w http.ResponseWriter, err error) {
	if errors.Is(err, planner.ErrTripNotFound) || errors.Is(err, planner.ErrExpenseNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	h.logger.Error("request failed", "error", err)
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}
