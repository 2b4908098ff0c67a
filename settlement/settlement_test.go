package settlement

import (
	"context"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/billbatista/acasinha-trips/ledger"
	"github.com/billbatista/acasinha-trips/metrics"
	"github.com/billbatista/acasinha-trips/trip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
)

func newEngine() *Engine {
	return NewEngine(nil, noop.NewMeterProvider().Meter("test"))
}

// newMeteredEngine returns an engine recording into a fresh registry and a
// function reading that registry's coercion counts.
func newMeteredEngine(t *testing.T) (*Engine, func(reason string) int64) {
	t.Helper()
	registry := metrics.NewRegistry()
	t.Cleanup(func() { registry.Shutdown(context.Background()) })

	engine := NewEngine(nil, registry.Meter("settlement"))
	return engine, func(reason string) int64 {
		t.Helper()
		snapshot, err := registry.Snapshot(context.Background())
		require.NoError(t, err)
		return snapshot.Count(CoercionsMetric, reason)
	}
}

func groupTrip() trip.Trip {
	return trip.Trip{
		Type: trip.TypeFriends,
		Companions: []trip.Participant{
			{ID: "alice", Name: "Alice"},
			{ID: "bob", Name: "Bob"},
		},
	}
}

func expenses(inputs ...ledger.ExpenseInput) []ledger.Expense {
	l := ledger.New(trip.OwnerID, nil)
	for _, in := range inputs {
		l.Add(in)
	}
	return l.Expenses()
}

func TestBalances_EqualSplitAcrossEverybody(t *testing.T) {
	engine := newEngine()

	balances := engine.Balances(groupTrip(), expenses(ledger.ExpenseInput{Amount: 90, PaidBy: trip.OwnerID}))

	assert.Equal(t, Balances{
		{ParticipantID: "you", Name: "You", Paid: 90, Owes: 30, Balance: 60},
		{ParticipantID: "alice", Name: "Alice", Paid: 0, Owes: 30, Balance: -30},
		{ParticipantID: "bob", Name: "Bob", Paid: 0, Owes: 30, Balance: -30},
	}, balances)

	assert.Equal(t, []Settlement{
		{From: "alice", To: "you", Amount: 30},
		{From: "bob", To: "you", Amount: 30},
	}, engine.Settlements(groupTrip(), expenses(ledger.ExpenseInput{Amount: 90})))
}

func TestBalances_FullSplitChargesFirstBeneficiary(t *testing.T) {
	engine := newEngine()
	ledgerExpenses := expenses(ledger.ExpenseInput{
		Amount:        100,
		PaidBy:        "alice",
		SplitType:     ledger.SplitTypeFull,
		Beneficiaries: []string{"bob", "you"},
	})

	balances := engine.Balances(groupTrip(), ledgerExpenses)

	bob, _ := balances.Lookup("bob")
	you, _ := balances.Lookup("you")
	alice, _ := balances.Lookup("alice")
	assert.Equal(t, 100.0, bob.Owes)
	assert.Zero(t, you.Owes)
	assert.Equal(t, 100.0, alice.Paid)
	assert.Equal(t, 100.0, alice.Balance)

	assert.Equal(t, []Settlement{{From: "bob", To: "alice", Amount: 100}}, engine.Settlements(groupTrip(), ledgerExpenses))
}

func TestBalances_FullSplitWithoutBeneficiariesChargesOwner(t *testing.T) {
	balances := newEngine().Balances(groupTrip(), expenses(ledger.ExpenseInput{
		Amount:    50,
		PaidBy:    "alice",
		SplitType: ledger.SplitTypeFull,
	}))

	you, _ := balances.Lookup("you")
	assert.Equal(t, 50.0, you.Owes)
}

func TestBalances_EqualSplitAmongBeneficiaries(t *testing.T) {
	balances := newEngine().Balances(groupTrip(), expenses(ledger.ExpenseInput{
		Amount:        10,
		Beneficiaries: []string{"alice", "bob"},
	}))

	alice, _ := balances.Lookup("alice")
	bob, _ := balances.Lookup("bob")
	you, _ := balances.Lookup("you")
	assert.Equal(t, 5.0, alice.Owes)
	assert.Equal(t, 5.0, bob.Owes)
	assert.Zero(t, you.Owes)
	assert.Equal(t, 10.0, you.Balance)
}

func TestBalances_DuplicateBeneficiaryTakesTwoShares(t *testing.T) {
	balances := newEngine().Balances(groupTrip(), expenses(ledger.ExpenseInput{
		Amount:        30,
		Beneficiaries: []string{"alice", "alice", "bob"},
	}))

	alice, _ := balances.Lookup("alice")
	bob, _ := balances.Lookup("bob")
	assert.Equal(t, 20.0, alice.Owes)
	assert.Equal(t, 10.0, bob.Owes)
}

func TestBalances_CustomSplit(t *testing.T) {
	engine, coercions := newMeteredEngine(t)

	balances := engine.Balances(groupTrip(), expenses(ledger.ExpenseInput{
		Amount:       60,
		PaidBy:       "bob",
		SplitType:    ledger.SplitTypeCustom,
		SplitAmounts: map[string]float64{"you": 10, "alice": 20, "bob": 30, "carol": 5},
	}))

	assert.Equal(t, map[string]Balance{
		"you":   {ParticipantID: "you", Name: "You", Owes: 10, Balance: -10},
		"alice": {ParticipantID: "alice", Name: "Alice", Owes: 20, Balance: -20},
		"bob":   {ParticipantID: "bob", Name: "Bob", Paid: 60, Owes: 30, Balance: 30},
	}, balances.Map())
	assert.Equal(t, int64(1), coercions(ReasonUnknownSplitEntry))
	// 65 allocated against 60
	assert.Equal(t, int64(1), coercions(ReasonCustomMismatch))
}

func TestBalances_CustomMismatchIsKept(t *testing.T) {
	engine, coercions := newMeteredEngine(t)

	balances := engine.Balances(groupTrip(), expenses(ledger.ExpenseInput{
		Amount:       100,
		SplitType:    ledger.SplitTypeCustom,
		SplitAmounts: map[string]float64{"alice": 40},
	}))

	var sum float64
	for _, b := range balances {
		sum += b.Balance
	}
	assert.InDelta(t, 60, sum, 1e-9)
	assert.Equal(t, int64(1), coercions(ReasonCustomMismatch))
}

func TestBalances_SoloTripIsEmpty(t *testing.T) {
	solo := trip.Trip{Type: trip.TypeSolo}
	engine := newEngine()

	balances := engine.Balances(solo, expenses(
		ledger.ExpenseInput{Amount: 90},
		ledger.ExpenseInput{Amount: 10, PaidBy: "ghost"},
	))

	assert.Empty(t, balances)
	assert.Empty(t, engine.Settlements(solo, nil))
}

func TestBalances_UnknownParticipants(t *testing.T) {
	engine, coercions := newMeteredEngine(t)

	balances := engine.Balances(groupTrip(), expenses(
		ledger.ExpenseInput{Amount: 30, PaidBy: "carol"},
		ledger.ExpenseInput{Amount: 20, Beneficiaries: []string{"alice", "dave"}},
	))

	you, _ := balances.Lookup("you")
	alice, _ := balances.Lookup("alice")
	assert.Equal(t, 50.0, you.Paid, "unknown payer is credited to the owner")
	assert.Equal(t, 10.0, you.Owes)
	assert.Equal(t, 20.0, alice.Owes)
	_, ok := balances.Lookup("dave")
	assert.False(t, ok)

	assert.Equal(t, int64(1), coercions(ReasonUnknownPayer))
	assert.Equal(t, int64(1), coercions(ReasonUnknownBeneficiary))
}

func TestBalances_NonNumericAmountsCountAsZero(t *testing.T) {
	engine, coercions := newMeteredEngine(t)

	balances := engine.Balances(groupTrip(), expenses(
		ledger.ExpenseInput{Amount: math.NaN()},
		ledger.ExpenseInput{Amount: math.Inf(1), SplitType: ledger.SplitTypeFull},
		ledger.ExpenseInput{Amount: 9},
	))

	you, _ := balances.Lookup("you")
	assert.Equal(t, 9.0, you.Paid)
	assert.Equal(t, 3.0, you.Owes)
	assert.Equal(t, int64(2), coercions(ReasonNonNumericAmount))
}

func TestBalances_UnknownSplitTypeSharesNothing(t *testing.T) {
	engine, coercions := newMeteredEngine(t)

	balances := engine.Balances(groupTrip(), expenses(ledger.ExpenseInput{Amount: 30, SplitType: "percentage"}))

	you, _ := balances.Lookup("you")
	assert.Equal(t, 30.0, you.Paid)
	assert.Zero(t, you.Owes)
	assert.Equal(t, int64(1), coercions(ReasonUnknownSplitType))
}

func TestBalances_Idempotent(t *testing.T) {
	engine := newEngine()
	ledgerExpenses := randomExpenses(rand.New(rand.NewPCG(1, 2)), 40)

	first := engine.Balances(groupTrip(), ledgerExpenses)
	second := engine.Balances(groupTrip(), ledgerExpenses)

	assert.Equal(t, first, second)
	assert.Equal(t, engine.Settlements(groupTrip(), ledgerExpenses), engine.Settlements(groupTrip(), ledgerExpenses))
}

func TestBalances_DoesNotMutateExpenses(t *testing.T) {
	ledgerExpenses := expenses(ledger.ExpenseInput{Amount: 10})
	before := ledgerExpenses[0]

	newEngine().Balances(groupTrip(), ledgerExpenses)

	assert.Equal(t, before, ledgerExpenses[0])
	assert.Empty(t, ledgerExpenses[0].Beneficiaries)
}

func TestSettle_LargestFirst(t *testing.T) {
	settlements := Settle(Balances{
		{ParticipantID: "a", Balance: -10},
		{ParticipantID: "b", Balance: -50},
		{ParticipantID: "c", Balance: 35},
		{ParticipantID: "d", Balance: 25},
		{ParticipantID: "e", Balance: 0.005},
	})

	assert.Equal(t, []Settlement{
		{From: "b", To: "c", Amount: 35},
		{From: "b", To: "d", Amount: 15},
		{From: "a", To: "d", Amount: 10},
	}, settlements)
}

func TestSettle_TiesKeepRosterOrder(t *testing.T) {
	settlements := Settle(Balances{
		{ParticipantID: "you", Balance: 20},
		{ParticipantID: "alice", Balance: -10},
		{ParticipantID: "bob", Balance: -10},
	})

	assert.Equal(t, []Settlement{
		{From: "alice", To: "you", Amount: 10},
		{From: "bob", To: "you", Amount: 10},
	}, settlements)
}

func TestSettle_IgnoresNoise(t *testing.T) {
	assert.Empty(t, Settle(Balances{
		{ParticipantID: "a", Balance: 0.009},
		{ParticipantID: "b", Balance: -0.009},
	}))
	assert.Empty(t, Settle(nil))
}

func TestProperties_RandomLedgers(t *testing.T) {
	r := rand.New(rand.NewPCG(42, 7))
	roster := trip.Trip{
		Type: trip.TypeFriends,
		Companions: []trip.Participant{
			{ID: "alice", Name: "Alice"},
			{ID: "bob", Name: "Bob"},
			{ID: "carol", Name: "Carol"},
			{ID: "dave", Name: "Dave"},
		},
	}

	for range 200 {
		ledgerExpenses := randomExpenses(r, 1+r.IntN(25))
		engine := newEngine()
		balances := engine.Balances(roster, ledgerExpenses)
		require.Len(t, balances, 5)

		var totalAmount, totalPaid, totalBalance float64
		for _, e := range ledgerExpenses {
			totalAmount += e.Amount
		}
		debtors, creditors := 0, 0
		for _, b := range balances {
			totalPaid += b.Paid
			totalBalance += b.Balance
			switch {
			case b.Balance < -Epsilon:
				debtors++
			case b.Balance > Epsilon:
				creditors++
			}
		}
		assert.InDelta(t, totalAmount, totalPaid, 1e-6)
		assert.InDelta(t, 0, totalBalance, 1e-6)

		settlements := Settle(balances)
		if debtors+creditors > 0 {
			assert.LessOrEqual(t, len(settlements), debtors+creditors-1)
		} else {
			assert.Empty(t, settlements)
		}

		remaining := balances.Map()
		for _, s := range settlements {
			assert.Greater(t, s.Amount, Epsilon)
			from := remaining[s.From]
			from.Balance += s.Amount
			remaining[s.From] = from
			to := remaining[s.To]
			to.Balance -= s.Amount
			remaining[s.To] = to
		}
		for id, b := range remaining {
			assert.InDelta(t, 0, b.Balance, Epsilon, "participant %s", id)
		}
	}
}

func TestProperties_EqualShare(t *testing.T) {
	for n := 1; n <= 3; n++ {
		beneficiaries := []string{"you", "alice", "bob"}[:n]
		balances := newEngine().Balances(groupTrip(), expenses(ledger.ExpenseInput{
			Amount:        100,
			Beneficiaries: beneficiaries,
		}))
		for _, id := range beneficiaries {
			b, _ := balances.Lookup(id)
			assert.Equal(t, 100/float64(n), b.Owes)
		}
	}
}

// randomExpenses only produces well-formed expenses: custom splits add up and
// every id is on the roster. Amounts are multiples of 10 so every share is a
// whole number and balances are exact.
func randomExpenses(r *rand.Rand, n int) []ledger.Expense {
	ids := []string{"you", "alice", "bob", "carol", "dave"}
	pick := func() string { return ids[r.IntN(len(ids))] }

	l := ledger.New(trip.OwnerID, nil)
	for range n {
		amount := float64(10 * (1 + r.IntN(50)))
		in := ledger.ExpenseInput{Amount: amount, PaidBy: pick()}

		switch r.IntN(3) {
		case 0:
			in.SplitType = ledger.SplitTypeEqual
			if r.IntN(2) == 0 {
				in.Beneficiaries = []string{pick(), pick()}
			}
		case 1:
			in.SplitType = ledger.SplitTypeFull
			in.Beneficiaries = []string{pick()}
		case 2:
			in.SplitType = ledger.SplitTypeCustom
			first, second := ids[0], ids[1+r.IntN(len(ids)-1)]
			part := float64(r.IntN(int(amount) + 1))
			in.SplitAmounts = map[string]float64{first: part, second: amount - part}
		}
		l.Add(in)
	}
	return l.Expenses()
}
