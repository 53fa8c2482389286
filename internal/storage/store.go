// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"
	"errors"

	"github.com/mmynk/hisaab/internal/models"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// UserStore persists user accounts.
type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error

	// GetUserByEmail and GetUserByID return ErrNotFound for unknown users.
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)

	// GetUsersByIDs returns the users that exist, keyed by ID.
	GetUsersByIDs(ctx context.Context, ids []string) (map[string]*models.User, error)

	// UpdateMonthlyBudget sets the user's monthly budget.
	UpdateMonthlyBudget(ctx context.Context, userID string, budget decimal.Decimal) error
}

// GroupStore persists groups and their membership.
type GroupStore interface {
	// CreateGroup assigns ID and CreatedAt when unset.
	CreateGroup(ctx context.Context, group *models.Group) error
	GetGroup(ctx context.Context, groupID string) (*models.Group, error)

	// ListGroupsForUser returns the groups userID created or belongs to,
	// newest first.
	ListGroupsForUser(ctx context.Context, userID string) ([]*models.Group, error)

	// UpdateGroup saves the group's name, description and category.
	UpdateGroup(ctx context.Context, group *models.Group) error

	AddGroupMember(ctx context.Context, groupID, userID string) error
	RemoveGroupMember(ctx context.Context, groupID, userID string) error

	// DeleteGroup removes the group together with its expenses.
	DeleteGroup(ctx context.Context, groupID string) error
}

// ExpenseStore persists expenses and their split details.
type ExpenseStore interface {
	// CreateExpense assigns ID and timestamps when unset.
	CreateExpense(ctx context.Context, expense *models.Expense) error
	GetExpense(ctx context.Context, expenseID string) (*models.Expense, error)

	// UpdateExpense replaces the expense and its split details.
	UpdateExpense(ctx context.Context, expense *models.Expense) error
	DeleteExpense(ctx context.Context, expenseID string) error

	// ListExpensesByGroup returns a group's expenses, newest first.
	ListExpensesByGroup(ctx context.Context, groupID string) ([]*models.Expense, error)

	// ListExpensesByGroupBetween returns a group's expenses created in
	// [from, to), oldest first.
	ListExpensesByGroupBetween(ctx context.Context, groupID string, from, to int64) ([]*models.Expense, error)
}

// Store combines every persistence concern behind one backend.
// This abstraction allows swapping storage backends (SQLite, PostgreSQL, etc.)
// without changing the service layer.
type Store interface {
	UserStore
	GroupStore
	ExpenseStore

	// Close releases any resources held by the store.
	Close() error
}
