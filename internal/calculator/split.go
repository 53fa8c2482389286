package calculator

import (
	"github.com/shopspring/decimal"
)

// SplitType is the rule governing how one expense's amount is distributed.
type SplitType string

const (
	SplitEqual      SplitType = "equal"
	SplitCustom     SplitType = "custom"
	SplitPercentage SplitType = "percentage"
)

// Valid reports whether t is one of the supported split types.
func (t SplitType) Valid() bool {
	switch t {
	case SplitEqual, SplitCustom, SplitPercentage:
		return true
	}
	return false
}

// MemberID identifies a group member. It is the key of every balance map.
type MemberID string

var (
	// Tolerance absorbs rounding noise in sums and balances (one cent).
	Tolerance = decimal.New(1, -2)

	hundred = decimal.NewFromInt(100)
)

// ShareInput is one entry of custom or percentage split input.
// Value is an amount for custom splits and a percentage for percentage splits.
type ShareInput struct {
	MemberID MemberID
	Value    decimal.Decimal
}

// Share is one member's materialized portion of an expense.
type Share struct {
	MemberID MemberID
	Amount   decimal.Decimal

	// Percentage is set only for percentage splits.
	Percentage decimal.NullDecimal
}

// SplitRequest is the distribution intent of one expense.
type SplitRequest struct {
	Amount decimal.Decimal
	Type   SplitType

	// Members is the group's member list. Equal splits divide the amount
	// across it. Custom and percentage splits, when it is non-empty, drop
	// input entries for ids outside it before validating.
	Members []MemberID

	// Shares is the explicit input for custom and percentage splits.
	Shares []ShareInput
}

// CalculateSplit converts an expense's split type and raw input into the
// per-member share list. Output order follows the input order.
//
// Equal shares are round(amount/n, 2) each; the rounding remainder is not
// redistributed, so the shares may differ from amount by up to n × 0.005.
func CalculateSplit(req SplitRequest) ([]Share, error) {
	if !req.Amount.IsPositive() {
		return nil, newValidationError(MsgInvalidAmount)
	}

	switch req.Type {
	case SplitEqual:
		if len(req.Members) == 0 {
			return nil, newValidationError(MsgInvalidSplit)
		}
		return equalSplit(req.Amount, req.Members), nil

	case SplitCustom:
		input := knownShares(req.Shares, req.Members)
		if len(input) == 0 {
			return nil, newValidationError(MsgInvalidSplit)
		}
		return customSplit(req.Amount, input)

	case SplitPercentage:
		input := knownShares(req.Shares, req.Members)
		if len(input) == 0 {
			return nil, newValidationError(MsgInvalidSplit)
		}
		return percentageSplit(req.Amount, input)
	}

	return nil, newValidationError(MsgInvalidSplit)
}

func equalSplit(amount decimal.Decimal, members []MemberID) []Share {
	each := amount.Div(decimal.NewFromInt(int64(len(members)))).Round(2)

	shares := make([]Share, len(members))
	for i, id := range members {
		shares[i] = Share{MemberID: id, Amount: each}
	}
	return shares
}

func customSplit(amount decimal.Decimal, input []ShareInput) ([]Share, error) {
	sum := decimal.Zero
	for _, in := range input {
		if in.Value.IsNegative() {
			return nil, newValidationError(MsgNegativeShare)
		}
		sum = sum.Add(in.Value)
	}
	if sum.Sub(amount).Abs().GreaterThan(Tolerance) {
		return nil, newValidationError(MsgCustomMismatch)
	}

	shares := make([]Share, len(input))
	for i, in := range input {
		shares[i] = Share{MemberID: in.MemberID, Amount: in.Value}
	}
	return shares, nil
}

func percentageSplit(amount decimal.Decimal, input []ShareInput) ([]Share, error) {
	sum := decimal.Zero
	for _, in := range input {
		if in.Value.IsNegative() {
			return nil, newValidationError(MsgNegativeShare)
		}
		sum = sum.Add(in.Value)
	}
	if sum.Sub(hundred).Abs().GreaterThan(Tolerance) {
		return nil, newValidationError(MsgPercentageMismatch)
	}

	shares := make([]Share, len(input))
	for i, in := range input {
		shares[i] = Share{
			MemberID:   in.MemberID,
			Amount:     amount.Mul(in.Value).Div(hundred).Round(2),
			Percentage: decimal.NullDecimal{Decimal: in.Value, Valid: true},
		}
	}
	return shares, nil
}

// knownShares drops entries whose member is not in members.
// An empty members list means no authoritative list was supplied.
func knownShares(input []ShareInput, members []MemberID) []ShareInput {
	if len(members) == 0 {
		return input
	}

	known := make(map[MemberID]struct{}, len(members))
	for _, id := range members {
		known[id] = struct{}{}
	}

	kept := make([]ShareInput, 0, len(input))
	for _, in := range input {
		if _, ok := known[in.MemberID]; !ok {
			continue
		}
		kept = append(kept, in)
	}
	return kept
}
