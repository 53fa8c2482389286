// Package reports aggregates a member's expense shares and renders them as
// CSV or PDF.
package reports

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Line is one expense seen from a single member: the full amount and the
// member's share of it.
type Line struct {
	ExpenseID   string
	Date        time.Time
	Group       string
	Description string
	Category    string
	Total       decimal.Decimal
	Share       decimal.Decimal
	PaidBy      string
}

// Total is an amount accumulated under a label (a category, group or month).
type Total struct {
	Label  string
	Amount decimal.Decimal
}

// Percent returns t as a percentage of whole, rounded to one place. Zero when
// whole is zero.
func (t Total) Percent(whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return t.Amount.Div(whole).Mul(decimal.NewFromInt(100)).Round(1)
}

// SortLines orders lines by date, then expense ID.
func SortLines(lines []Line) {
	sort.SliceStable(lines, func(i, j int) bool {
		if !lines[i].Date.Equal(lines[j].Date) {
			return lines[i].Date.Before(lines[j].Date)
		}
		return lines[i].ExpenseID < lines[j].ExpenseID
	})
}

// TotalShare sums the member's share over lines, rounded to cents.
func TotalShare(lines []Line) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Share)
	}
	return total.Round(2)
}

// ByCategory totals shares per category, in order of first appearance.
func ByCategory(lines []Line) []Total {
	return groupBy(lines, func(l Line) string { return l.Category })
}

// ByGroup totals shares per group name, in order of first appearance.
func ByGroup(lines []Line) []Total {
	return groupBy(lines, func(l Line) string { return l.Group })
}

// ByMonth totals shares for each of the twelve months, labelled Jan to Dec.
// Lines are bucketed by the month of their date in loc.
func ByMonth(lines []Line, loc *time.Location) []Total {
	months := make([]Total, 12)
	for i := range months {
		months[i] = Total{Label: time.Month(i + 1).String()[:3], Amount: decimal.Zero}
	}
	for _, l := range lines {
		m := l.Date.In(loc).Month()
		months[m-1].Amount = months[m-1].Amount.Add(l.Share)
	}
	for i := range months {
		months[i].Amount = months[i].Amount.Round(2)
	}
	return months
}

func groupBy(lines []Line, key func(Line) string) []Total {
	var totals []Total
	index := make(map[string]int)
	for _, l := range lines {
		k := key(l)
		i, ok := index[k]
		if !ok {
			i = len(totals)
			index[k] = i
			totals = append(totals, Total{Label: k, Amount: decimal.Zero})
		}
		totals[i].Amount = totals[i].Amount.Add(l.Share)
	}
	for i := range totals {
		totals[i].Amount = totals[i].Amount.Round(2)
	}
	return totals
}

// Report is a member's view of one calendar month.
type Report struct {
	Year  int
	Month time.Month

	UserName    string
	UserEmail   string
	GeneratedAt time.Time

	// ExpenseCount counts every expense in the member's groups during the
	// period, including ones the member has no share in.
	ExpenseCount int
	Lines        []Line
}

// Period renders the report month, e.g. "March 2025".
func (r *Report) Period() string {
	return fmt.Sprintf("%s %d", r.Month, r.Year)
}

// Filename returns the download name for the given extension.
func (r *Report) Filename(ext string) string {
	return fmt.Sprintf("expenses_%d_%d.%s", r.Year, int(r.Month), ext)
}

// Average is the total share divided by ExpenseCount, zero without expenses.
func (r *Report) Average() decimal.Decimal {
	if r.ExpenseCount == 0 {
		return decimal.Zero
	}
	return TotalShare(r.Lines).Div(decimal.NewFromInt(int64(r.ExpenseCount))).Round(2)
}
