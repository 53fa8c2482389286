package models

import (
	"slices"

	"github.com/shopspring/decimal"
)

// ExpenseCategory classifies an expense for analytics.
type ExpenseCategory string

const (
	CategoryFood          ExpenseCategory = "Food"
	CategoryTransport     ExpenseCategory = "Transport"
	CategoryAccommodation ExpenseCategory = "Accommodation"
	CategoryEntertainment ExpenseCategory = "Entertainment"
	CategoryShopping      ExpenseCategory = "Shopping"
	CategoryOther         ExpenseCategory = "Other"
)

// ExpenseCategories lists the accepted expense categories.
var ExpenseCategories = []ExpenseCategory{
	CategoryFood,
	CategoryTransport,
	CategoryAccommodation,
	CategoryEntertainment,
	CategoryShopping,
	CategoryOther,
}

// Valid reports whether c is one of ExpenseCategories.
func (c ExpenseCategory) Valid() bool {
	return slices.Contains(ExpenseCategories, c)
}

// Expense is an amount paid by one group member and owed across several.
type Expense struct {
	// ID is the unique identifier for the expense (UUID format).
	ID string

	GroupID string

	// PaidBy is the user ID of the payer.
	PaidBy string

	// Amount is the total paid. Always positive.
	Amount decimal.Decimal

	Description string
	Category    ExpenseCategory

	// SplitType is one of "equal", "custom" or "percentage".
	SplitType string

	// SplitDetails is the per-member share, in input order. The amounts sum
	// to Amount within 0.01 for custom splits and within n × 0.005 for
	// equal and percentage splits.
	SplitDetails []SplitDetail

	CreatedAt int64
	UpdatedAt int64
}

// SplitDetail is one member's share of an expense.
type SplitDetail struct {
	UserID string
	Amount decimal.Decimal

	// Percentage is set only for percentage splits.
	Percentage decimal.NullDecimal
}

// ShareOf returns userID's share of the expense, and false when the user is
// not part of the split.
func (e *Expense) ShareOf(userID string) (decimal.Decimal, bool) {
	for _, d := range e.SplitDetails {
		if d.UserID == userID {
			return d.Amount, true
		}
	}
	return decimal.Zero, false
}
