// Package settlement turns a trip's expenses into per-traveler balances and
// a list of payments that squares everybody up.
//
// Everything is recomputed from the full ledger on each call. Bad input never
// produces an error: unknown participants are skipped and non-numeric amounts
// count as zero, in both cases with a log line and a CoercionsMetric increment.
package settlement

import (
	"log/slog"
	"math"
	"sort"

	"github.com/billbatista/acasinha-trips/ledger"
	"github.com/billbatista/acasinha-trips/trip"
	"go.opentelemetry.io/otel/metric"
)

// Epsilon is the amount under which a balance counts as settled.
const Epsilon = 0.01

// Roster is the trip information the engine needs.
type Roster interface {
	IsSolo() bool
	AllTravelers() []trip.Participant
}

type Balance struct {
	ParticipantID string  `json:"participant_id"`
	Name          string  `json:"name"`
	Paid          float64 `json:"paid"`
	Owes          float64 `json:"owes"`
	Balance       float64 `json:"balance"` // Positive = owed money, Negative = owes money
}

// Balances is ordered like the trip roster, owner first.
type Balances []Balance

func (b Balances) Lookup(participantID string) (Balance, bool) {
	for _, bal := range b {
		if bal.ParticipantID == participantID {
			return bal, true
		}
	}
	return Balance{}, false
}

// Map keys the balances by participant id.
func (b Balances) Map() map[string]Balance {
	m := make(map[string]Balance, len(b))
	for _, bal := range b {
		m[bal.ParticipantID] = bal
	}
	return m
}

type Settlement struct {
	From   string  `json:"from"`
	To     string  `json:"to"`
	Amount float64 `json:"amount"`
}

type Engine struct {
	logger    *slog.Logger
	coercions metric.Int64Counter
}

// NewEngine records coercions on meter. A nil meter discards them.
func NewEngine(logger *slog.Logger, meter metric.Meter) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		logger:    logger,
		coercions: newCoercionCounter(meter, logger),
	}
}

// Balances computes what everybody paid and owes. Solo trips have no balances.
func (e *Engine) Balances(roster Roster, expenses []ledger.Expense) Balances {
	if roster.IsSolo() {
		return Balances{}
	}

	travelers := roster.AllTravelers()
	balances := make(Balances, len(travelers))
	index := make(map[string]int, len(travelers))
	everybody := make([]string, len(travelers))
	for i, t := range travelers {
		balances[i] = Balance{ParticipantID: t.ID, Name: t.Name}
		index[t.ID] = i
		everybody[i] = t.ID
	}

	owe := func(expense ledger.Expense, participantID string, amount float64) {
		i, ok := index[participantID]
		if !ok {
			e.coerced(ReasonUnknownBeneficiary)
			e.logger.Debug("share owed by unknown participant dropped",
				"expense_id", expense.ID, "participant_id", participantID, "amount", amount)
			return
		}
		balances[i].Owes += amount
	}

	for _, expense := range expenses {
		amount, ok := ledger.Amount(expense.Amount)
		if !ok {
			e.coerced(ReasonNonNumericAmount)
			e.logger.Debug("non-numeric expense amount counted as zero", "expense_id", expense.ID, "amount", expense.Amount)
		}

		beneficiaries := expense.Beneficiaries
		if len(beneficiaries) == 0 {
			beneficiaries = everybody
		}

		payer, ok := index[expense.PaidBy]
		if !ok {
			payer = index[trip.OwnerID]
			if expense.PaidBy != "" {
				e.coerced(ReasonUnknownPayer)
				e.logger.Debug("expense paid by unknown participant credited to owner",
					"expense_id", expense.ID, "paid_by", expense.PaidBy)
			}
		}
		balances[payer].Paid += amount

		switch expense.SplitType {
		case ledger.SplitTypeEqual:
			share := amount / float64(len(beneficiaries))
			for _, id := range beneficiaries {
				owe(expense, id, share)
			}
		case ledger.SplitTypeCustom:
			var allocated float64
			for id, v := range expense.SplitAmounts {
				share, ok := ledger.Amount(v)
				if !ok {
					e.coerced(ReasonNonNumericAmount)
				}
				allocated += share
				if _, known := index[id]; !known {
					e.coerced(ReasonUnknownSplitEntry)
					e.logger.Debug("custom split entry for unknown participant ignored",
						"expense_id", expense.ID, "participant_id", id, "amount", share)
					continue
				}
				owe(expense, id, share)
			}
			if math.Abs(allocated-amount) > Epsilon {
				e.coerced(ReasonCustomMismatch)
				e.logger.Warn("custom split does not add up to the expense amount",
					"expense_id", expense.ID, "amount", amount, "allocated", allocated)
			}
		case ledger.SplitTypeFull:
			owe(expense, beneficiaries[0], amount)
		default:
			e.coerced(ReasonUnknownSplitType)
			e.logger.Warn("expense with unknown split type is not shared", "expense_id", expense.ID, "split_type", expense.SplitType)
		}
	}

	for i := range balances {
		balances[i].Balance = balances[i].Paid - balances[i].Owes
	}

	return balances
}

// Settlements computes the balances and the payments that clear them.
func (e *Engine) Settlements(roster Roster, expenses []ledger.Expense) []Settlement {
	return Settle(e.Balances(roster, expenses))
}

type party struct {
	id        string
	remaining float64
}

// Settle matches the largest debtor with the largest creditor until one side
// runs out. It yields at most debtors+creditors-1 payments, which is not
// always the fewest possible.
func Settle(balances Balances) []Settlement {
	var debtors, creditors []party
	for _, b := range balances {
		switch {
		case b.Balance < -Epsilon:
			debtors = append(debtors, party{id: b.ParticipantID, remaining: -b.Balance})
		case b.Balance > Epsilon:
			creditors = append(creditors, party{id: b.ParticipantID, remaining: b.Balance})
		}
	}

	sort.SliceStable(debtors, func(i, j int) bool { return debtors[i].remaining > debtors[j].remaining })
	sort.SliceStable(creditors, func(i, j int) bool { return creditors[i].remaining > creditors[j].remaining })

	settlements := make([]Settlement, 0)
	i, j := 0, 0
	for i < len(debtors) && j < len(creditors) {
		debtor, creditor := &debtors[i], &creditors[j]

		amount := min(debtor.remaining, creditor.remaining)
		if amount > Epsilon {
			settlements = append(settlements, Settlement{
				From:   debtor.id,
				To:     creditor.id,
				Amount: amount,
			})
		}

		debtor.remaining -= amount
		creditor.remaining -= amount

		if debtor.remaining < Epsilon {
			i++
		}
		if creditor.remaining < Epsilon {
			j++
		}
	}

	return settlements
}
