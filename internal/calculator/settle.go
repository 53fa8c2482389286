package calculator

import (
	"slices"

	"github.com/shopspring/decimal"
)

// Settlement is a directed payment instruction from a debtor to a creditor.
type Settlement struct {
	From   Member // Member who owes
	To     Member // Member who is owed
	Amount decimal.Decimal
}

// Result is the derived settlement view of one group.
type Result struct {
	Settlements []Settlement

	// Balances are the aggregated balances before matching.
	Balances []Balance

	// Residual are the balances after applying Settlements.
	// They are near zero except for the known rounding gap.
	Residual []Balance

	TotalExpense decimal.Decimal
}

// Unsettled returns the residual balances left outside the dead band once
// one side of the matching ran out.
func (r Result) Unsettled() []Balance {
	var out []Balance
	for _, b := range r.Residual {
		if b.Balance.Abs().GreaterThan(Tolerance) {
			out = append(out, b)
		}
	}
	return out
}

// Settle aggregates the expenses of a group and matches creditors with
// debtors.
func Settle(members []Member, expenses []Expense) Result {
	total := decimal.Zero
	for _, e := range expenses {
		total = total.Add(e.Amount)
	}

	balances := AggregateBalances(members, expenses)
	settlements, residual := MatchSettlements(balances)

	return Result{
		Settlements:  settlements,
		Balances:     balances,
		Residual:     residual,
		TotalExpense: total.Round(2),
	}
}

// MatchSettlements converts balances into payment instructions using greedy
// matching of the largest creditor with the largest debtor. It does not
// modify balances; the second return value holds the balances after the
// emitted settlements are applied.
//
// Balances inside the dead band [-0.01, 0.01] count as settled. Ties keep
// the input order. The number of settlements is not guaranteed minimal.
func MatchSettlements(balances []Balance) ([]Settlement, []Balance) {
	residual := slices.Clone(balances)
	lowest := Tolerance.Neg()

	var creditors, debtors []int
	for i, b := range residual {
		switch {
		case b.Balance.GreaterThan(Tolerance):
			creditors = append(creditors, i)
		case b.Balance.LessThan(lowest):
			debtors = append(debtors, i)
		}
	}

	// Creditors descending, debtors ascending (largest debt first).
	slices.SortStableFunc(creditors, func(a, b int) int {
		return residual[b].Balance.Cmp(residual[a].Balance)
	})
	slices.SortStableFunc(debtors, func(a, b int) int {
		return residual[a].Balance.Cmp(residual[b].Balance)
	})

	settlements := make([]Settlement, 0, len(debtors))
	i, j := 0, 0
	for i < len(creditors) && j < len(debtors) {
		creditor := &residual[creditors[i]]
		debtor := &residual[debtors[j]]

		amount := decimal.Min(creditor.Balance, debtor.Balance.Neg())
		settlements = append(settlements, Settlement{
			From:   debtor.Member,
			To:     creditor.Member,
			Amount: amount.Round(2),
		})

		creditor.Balance = creditor.Balance.Sub(amount)
		debtor.Balance = debtor.Balance.Add(amount)

		if creditor.Balance.LessThan(Tolerance) {
			i++
		}
		if debtor.Balance.GreaterThan(lowest) {
			j++
		}
	}

	return settlements, residual
}
