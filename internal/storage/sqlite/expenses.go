package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/hisaab/internal/models"
	"github.com/mmynk/hisaab/internal/storage"
)

const expenseColumns = `id, group_id, paid_by, amount, description, category, split_type, created_at, updated_at`

func scanExpense(row rowScanner) (*models.Expense, error) {
	expense := &models.Expense{}
	var category string
	if err := row.Scan(
		&expense.ID,
		&expense.GroupID,
		&expense.PaidBy,
		&expense.Amount,
		&expense.Description,
		&category,
		&expense.SplitType,
		&expense.CreatedAt,
		&expense.UpdatedAt,
	); err != nil {
		return nil, err
	}
	expense.Category = models.ExpenseCategory(category)
	return expense, nil
}

// CreateExpense persists a new expense with its split details.
func (s *SQLiteStore) CreateExpense(ctx context.Context, expense *models.Expense) error {
	if expense.ID == "" {
		expense.ID = uuid.New().String()
	}
	if expense.CreatedAt == 0 {
		expense.CreatedAt = time.Now().Unix()
	}
	if expense.UpdatedAt == 0 {
		expense.UpdatedAt = expense.CreatedAt
	}
	if expense.Category == "" {
		expense.Category = models.CategoryOther
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO expenses (`+expenseColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		expense.ID, expense.GroupID, expense.PaidBy, expense.Amount, expense.Description,
		string(expense.Category), expense.SplitType, expense.CreatedAt, expense.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert expense: %w", err)
	}

	if err := insertSplits(ctx, tx, expense); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetExpense retrieves an expense by ID, including split details.
func (s *SQLiteStore) GetExpense(ctx context.Context, expenseID string) (*models.Expense, error) {
	expense, err := scanExpense(s.db.QueryRowContext(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE id = ?`,
		expenseID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("expense %s: %w", expenseID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get expense: %w", err)
	}

	if err := s.loadSplits(ctx, []*models.Expense{expense}); err != nil {
		return nil, err
	}

	return expense, nil
}

// UpdateExpense replaces an expense's fields and split details.
func (s *SQLiteStore) UpdateExpense(ctx context.Context, expense *models.Expense) error {
	expense.UpdatedAt = time.Now().Unix()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE expenses
		 SET paid_by = ?, amount = ?, description = ?, category = ?, split_type = ?, updated_at = ?
		 WHERE id = ?`,
		expense.PaidBy, expense.Amount, expense.Description, string(expense.Category),
		expense.SplitType, expense.UpdatedAt, expense.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update expense: %w", err)
	}
	if err := checkAffected(res, "expense", expense.ID); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM expense_splits WHERE expense_id = ?", expense.ID); err != nil {
		return fmt.Errorf("failed to delete old splits: %w", err)
	}

	if err := insertSplits(ctx, tx, expense); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// DeleteExpense removes an expense by ID. Split details cascade.
func (s *SQLiteStore) DeleteExpense(ctx context.Context, expenseID string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM expenses WHERE id = ?", expenseID)
	if err != nil {
		return fmt.Errorf("failed to delete expense: %w", err)
	}

	return checkAffected(res, "expense", expenseID)
}

// ListExpensesByGroup retrieves all expenses for a group, newest first.
func (s *SQLiteStore) ListExpensesByGroup(ctx context.Context, groupID string) ([]*models.Expense, error) {
	return s.queryExpenses(ctx,
		`SELECT `+expenseColumns+` FROM expenses
		 WHERE group_id = ?
		 ORDER BY created_at DESC, rowid DESC`,
		groupID,
	)
}

// ListExpensesByGroupBetween retrieves a group's expenses created in
// [from, to), oldest first.
func (s *SQLiteStore) ListExpensesByGroupBetween(ctx context.Context, groupID string, from, to int64) ([]*models.Expense, error) {
	return s.queryExpenses(ctx,
		`SELECT `+expenseColumns+` FROM expenses
		 WHERE group_id = ? AND created_at >= ? AND created_at < ?
		 ORDER BY created_at, rowid`,
		groupID, from, to,
	)
}

func (s *SQLiteStore) queryExpenses(ctx context.Context, query string, args ...any) ([]*models.Expense, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}

	expenses := []*models.Expense{}
	for rows.Next() {
		expense, err := scanExpense(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}
		expenses = append(expenses, expense)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate expenses: %w", err)
	}

	if err := s.loadSplits(ctx, expenses); err != nil {
		return nil, err
	}

	return expenses, nil
}

func insertSplits(ctx context.Context, tx *sql.Tx, expense *models.Expense) error {
	for i, d := range expense.SplitDetails {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO expense_splits (expense_id, position, user_id, amount, percentage)
			 VALUES (?, ?, ?, ?, ?)`,
			expense.ID, i, d.UserID, d.Amount, d.Percentage,
		)
		if err != nil {
			return fmt.Errorf("failed to insert split detail: %w", err)
		}
	}
	return nil
}

// loadSplits fills SplitDetails for each expense in input order.
func (s *SQLiteStore) loadSplits(ctx context.Context, expenses []*models.Expense) error {
	if len(expenses) == 0 {
		return nil
	}

	byID := make(map[string]*models.Expense, len(expenses))
	ids := make([]string, len(expenses))
	for i, e := range expenses {
		byID[e.ID] = e
		ids[i] = e.ID
		e.SplitDetails = []models.SplitDetail{}
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT expense_id, user_id, amount, percentage FROM expense_splits
		 WHERE expense_id IN (`+placeholders(len(ids))+`)
		 ORDER BY expense_id, position`,
		stringArgs(ids)...,
	)
	if err != nil {
		return fmt.Errorf("failed to get split details: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var expenseID string
		var d models.SplitDetail
		if err := rows.Scan(&expenseID, &d.UserID, &d.Amount, &d.Percentage); err != nil {
			return fmt.Errorf("failed to scan split detail: %w", err)
		}
		if e, ok := byID[expenseID]; ok {
			e.SplitDetails = append(e.SplitDetails, d)
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate split details: %w", err)
	}

	return nil
}
