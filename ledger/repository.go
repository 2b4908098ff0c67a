package ledger

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
)

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *repository {
	return &repository{db: db}
}

func (r *repository) SaveExpense(ctx context.Context, tripID uuid.UUID, expense Expense) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `INSERT INTO expenses (id, trip_id, description, amount, category, paid_by, split_type, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err = tx.ExecContext(
		ctx,
		query,
		expense.ID,
		tripID,
		expense.Description,
		expense.Amount,
		expense.Category,
		expense.PaidBy,
		expense.SplitType,
		expense.CreatedAt,
	)
	if err != nil {
		return err
	}

	for participantID, amount := range expense.SplitAmounts {
		query = `INSERT INTO expense_split_amounts (expense_id, participant_id, amount) VALUES ($1, $2, $3)`
		_, err = tx.ExecContext(ctx, query, expense.ID, participantID, amount)
		if err != nil {
			return err
		}
	}

	for i, participantID := range expense.Beneficiaries {
		query = `INSERT INTO expense_beneficiaries (expense_id, position, participant_id) VALUES ($1, $2, $3)`
		_, err = tx.ExecContext(ctx, query, expense.ID, i, participantID)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// DeleteExpense is a no-op when the expense does not exist.
func (r *repository) DeleteExpense(ctx context.Context, tripID, expenseID uuid.UUID) error {
	query := `DELETE FROM expenses WHERE trip_id = $1 AND id = $2`
	_, err := r.db.ExecContext(ctx, query, tripID, expenseID)
	return err
}

// ListExpenses returns the trip's expenses in the order they were recorded.
func (r *repository) ListExpenses(ctx context.Context, tripID uuid.UUID) ([]Expense, error) {
	query := `SELECT id, description, amount, category, paid_by, split_type, created_at
              FROM expenses
              WHERE trip_id = $1
              ORDER BY seq ASC`

	rows, err := r.db.QueryContext(ctx, query, tripID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	expenses := make([]Expense, 0)
	index := make(map[uuid.UUID]int)
	for rows.Next() {
		var expense Expense
		err := rows.Scan(
			&expense.ID,
			&expense.Description,
			&expense.Amount,
			&expense.Category,
			&expense.PaidBy,
			&expense.SplitType,
			&expense.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		expense.SplitAmounts = make(map[string]float64)
		expense.Beneficiaries = make([]string, 0)
		index[expense.ID] = len(expenses)
		expenses = append(expenses, expense)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := r.loadSplitAmounts(ctx, tripID, expenses, index); err != nil {
		return nil, err
	}
	if err := r.loadBeneficiaries(ctx, tripID, expenses, index); err != nil {
		return nil, err
	}

	return expenses, nil
}

func (r *repository) loadSplitAmounts(ctx context.Context, tripID uuid.UUID, expenses []Expense, index map[uuid.UUID]int) error {
	query := `SELECT sa.expense_id, sa.participant_id, sa.amount
              FROM expense_split_amounts sa
              INNER JOIN expenses e ON sa.expense_id = e.id
              WHERE e.trip_id = $1`

	rows, err := r.db.QueryContext(ctx, query, tripID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var expenseID uuid.UUID
		var participantID string
		var amount float64
		if err := rows.Scan(&expenseID, &participantID, &amount); err != nil {
			return err
		}
		if i, ok := index[expenseID]; ok {
			expenses[i].SplitAmounts[participantID] = amount
		}
	}

	return rows.Err()
}

func (r *repository) loadBeneficiaries(ctx context.Context, tripID uuid.UUID, expenses []Expense, index map[uuid.UUID]int) error {
	query := `SELECT b.expense_id, b.participant_id
              FROM expense_beneficiaries b
              INNER JOIN expenses e ON b.expense_id = e.id
              WHERE e.trip_id = $1
              ORDER BY b.expense_id, b.position ASC`

	rows, err := r.db.QueryContext(ctx, query, tripID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var expenseID uuid.UUID
		var participantID string
		if err := rows.Scan(&expenseID, &participantID); err != nil {
			return err
		}
		if i, ok := index[expenseID]; ok {
			expenses[i].Beneficiaries = append(expenses[i].Beneficiaries, participantID)
		}
	}

	return rows.Err()
}
