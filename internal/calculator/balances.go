package calculator

import "github.com/shopspring/decimal"

// Member is a participant identity as seen by the settlement engine.
type Member struct {
	ID    MemberID
	Name  string
	Email string
}

// Expense is the part of an expense record the aggregator reads:
// who paid, how much, and the already-validated split details.
type Expense struct {
	PaidBy MemberID
	Amount decimal.Decimal
	Shares []Share
}

// Balance is one member's net position within a group.
type Balance struct {
	Member Member
	Paid   decimal.Decimal // Total amount paid across all expenses
	Owes   decimal.Decimal // Sum of this member's shares
	// Balance is round(Paid - Owes, 2).
	// Positive = owed money, negative = owes money.
	Balance decimal.Decimal
}

// AggregateBalances folds a group's expenses into one Balance per member.
// The result follows the order of members; duplicate ids keep their first
// position.
//
// Algorithm:
//   - Every member starts at paid = owes = 0, including members that appear
//     in no expense
//   - For each expense: the payer's paid grows by the amount, and each split
//     entry grows that member's owes
//   - Payers and split entries whose id is not a member are skipped
//   - net balance = round(paid - owes, 2)
func AggregateBalances(members []Member, expenses []Expense) []Balance {
	balances := make([]Balance, 0, len(members))
	index := make(map[MemberID]int, len(members))
	for _, m := range members {
		if _, seen := index[m.ID]; seen {
			continue
		}
		index[m.ID] = len(balances)
		balances = append(balances, Balance{Member: m})
	}

	for _, e := range expenses {
		if i, ok := index[e.PaidBy]; ok {
			balances[i].Paid = balances[i].Paid.Add(e.Amount)
		}

		for _, share := range e.Shares {
			i, ok := index[share.MemberID]
			if !ok {
				continue
			}
			balances[i].Owes = balances[i].Owes.Add(share.Amount)
		}
	}

	for i := range balances {
		balances[i].Balance = balances[i].Paid.Sub(balances[i].Owes).Round(2)
	}

	return balances
}
