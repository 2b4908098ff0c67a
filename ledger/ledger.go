package ledger

import (
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
)

type SplitType string

const (
	SplitTypeEqual  SplitType = "equal"
	SplitTypeCustom SplitType = "custom"
	// SplitTypeFull puts the whole amount on the first beneficiary.
	SplitTypeFull SplitType = "full"
)

type Expense struct {
	ID            uuid.UUID          `json:"id"`
	Description   string             `json:"description,omitempty"`
	Amount        float64            `json:"amount"`
	Category      string             `json:"category"`
	PaidBy        string             `json:"paid_by"`
	SplitType     SplitType          `json:"split_type"`
	SplitAmounts  map[string]float64 `json:"split_amounts"`
	Beneficiaries []string           `json:"beneficiaries"`
	CreatedAt     time.Time          `json:"created_at"`
}

// ExpenseInput is what callers submit to Add. Zero values mean the field was
// not provided:
//
//   - PaidBy "" becomes the ledger owner
//   - SplitType "" becomes SplitTypeEqual
//   - SplitAmounts nil becomes an empty map
//   - Beneficiaries nil becomes an empty list, i.e. everybody on the trip
//
// Amount and SplitAmounts are stored as given.
type ExpenseInput struct {
	Description   string
	Amount        float64
	Category      string
	PaidBy        string
	SplitType     SplitType
	SplitAmounts  map[string]float64
	Beneficiaries []string
}

// Ledger holds the expenses of one trip in insertion order. It is not safe
// for concurrent use.
type Ledger struct {
	ownerID  string
	expenses []Expense
	logger   *slog.Logger
}

func New(ownerID string, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		ownerID:  ownerID,
		expenses: make([]Expense, 0),
		logger:   logger,
	}
}

func (l *Ledger) Add(in ExpenseInput) Expense {
	expense := Expense{
		ID:            uuid.New(),
		Description:   in.Description,
		Amount:        in.Amount,
		Category:      in.Category,
		PaidBy:        in.PaidBy,
		SplitType:     in.SplitType,
		SplitAmounts:  make(map[string]float64, len(in.SplitAmounts)),
		Beneficiaries: make([]string, len(in.Beneficiaries)),
		CreatedAt:     time.Now().UTC(),
	}
	if expense.PaidBy == "" {
		expense.PaidBy = l.ownerID
	}
	if expense.SplitType == "" {
		expense.SplitType = SplitTypeEqual
	}
	for id, amount := range in.SplitAmounts {
		expense.SplitAmounts[id] = amount
	}
	copy(expense.Beneficiaries, in.Beneficiaries)

	if _, ok := LookupCategory(expense.Category); !ok {
		l.logger.Debug("expense in unregistered category", "expense_id", expense.ID, "category", expense.Category)
	}

	l.expenses = append(l.expenses, expense)
	return expense
}

// Append puts an already created expense back at the end of the ledger.
func (l *Ledger) Append(e Expense) {
	l.expenses = append(l.expenses, e)
}

// Remove deletes the expense with the given id and reports whether it was there.
func (l *Ledger) Remove(id uuid.UUID) bool {
	for i, e := range l.expenses {
		if e.ID == id {
			l.expenses = append(l.expenses[:i], l.expenses[i+1:]...)
			return true
		}
	}
	return false
}

func (l *Ledger) Get(id uuid.UUID) (Expense, bool) {
	for _, e := range l.expenses {
		if e.ID == id {
			return e, true
		}
	}
	return Expense{}, false
}

// Expenses returns a copy of the ledger in insertion order.
func (l *Ledger) Expenses() []Expense {
	out := make([]Expense, len(l.expenses))
	copy(out, l.expenses)
	return out
}

func (l *Ledger) Len() int {
	return len(l.expenses)
}

func (l *Ledger) Clear() {
	l.expenses = l.expenses[:0]
}

func (l *Ledger) TotalSpent() float64 {
	var total float64
	for _, e := range l.expenses {
		total += l.amountOf(e)
	}
	return total
}

func (l *Ledger) SpentByCategory() map[string]float64 {
	byCategory := make(map[string]float64)
	for _, e := range l.expenses {
		byCategory[e.Category] += l.amountOf(e)
	}
	return byCategory
}

func (l *Ledger) amountOf(e Expense) float64 {
	amount, ok := Amount(e.Amount)
	if !ok {
		l.logger.Debug("non-numeric expense amount counted as zero", "expense_id", e.ID, "amount", e.Amount)
	}
	return amount
}

// Amount returns v, or 0 when v is NaN or infinite. The boolean is false when
// the value had to be replaced.
func Amount(v float64) (float64, bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
