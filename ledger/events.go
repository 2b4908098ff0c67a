package ledger

import "time"

const (
	EventExpenseAdded   = "expense.added"
	EventExpenseRemoved = "expense.removed"
)

type ExpenseAddedEvent struct {
	ExpenseID     string             `json:"expense_id"`
	PaidBy        string             `json:"paid_by"`
	Amount        float64            `json:"amount"`
	Description   string             `json:"description,omitempty"`
	Category      string             `json:"category"`
	SplitType     SplitType          `json:"split_type"`
	SplitAmounts  map[string]float64 `json:"split_amounts,omitempty"`
	Beneficiaries []string           `json:"beneficiaries,omitempty"`
	Date          time.Time          `json:"date"`
}

type ExpenseRemovedEvent struct {
	ExpenseID string `json:"expense_id"`
	Found     bool   `json:"found"`
}

func NewExpenseAddedEvent(e Expense) ExpenseAddedEvent {
	amount, _ := Amount(e.Amount)
	splits := make(map[string]float64, len(e.SplitAmounts))
	for id, v := range e.SplitAmounts {
		splits[id], _ = Amount(v)
	}
	return ExpenseAddedEvent{
		ExpenseID:     e.ID.String(),
		PaidBy:        e.PaidBy,
		Amount:        amount,
		Description:   e.Description,
		Category:      e.Category,
		SplitType:     e.SplitType,
		SplitAmounts:  splits,
		Beneficiaries: e.Beneficiaries,
		Date:          e.CreatedAt,
	}
}
