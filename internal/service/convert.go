package service

import (
	"context"
	"errors"

	"connectrpc.com/connect"
	"github.com/shopspring/decimal"

	"github.com/mmynk/hisaab/internal/calculator"
	"github.com/mmynk/hisaab/internal/middleware"
	"github.com/mmynk/hisaab/internal/models"
	"github.com/mmynk/hisaab/internal/storage"
	"github.com/mmynk/hisaab/pkg/api"
)

var (
	errNotMember     = errors.New("not a member of this group")
	errUnknownMember = errors.New("unknown member")
	errFormerMembers = errors.New("split includes members who left the group")
)

// toFloat rounds d to cents for the wire.
func toFloat(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

func fromFloat(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// callerID returns the authenticated user, or Unauthenticated.
func callerID(ctx context.Context) (string, error) {
	userID := middleware.GetUserID(ctx)
	if userID == "" {
		return "", connect.NewError(connect.CodeUnauthenticated, errors.New("authentication required"))
	}
	return userID, nil
}

// storeError maps storage errors onto Connect codes.
func storeError(err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return connect.NewError(connect.CodeNotFound, err)
	}
	return connect.NewError(connect.CodeInternal, err)
}

// splitError maps calculator validation failures to InvalidArgument.
func splitError(err error) error {
	var verr *calculator.ValidationError
	if errors.As(err, &verr) {
		return connect.NewError(connect.CodeInvalidArgument, verr)
	}
	return connect.NewError(connect.CodeInternal, err)
}

// memberGroup loads a group and checks that userID belongs to it.
func memberGroup(ctx context.Context, store storage.GroupStore, groupID, userID string) (*models.Group, error) {
	if groupID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("group_id required"))
	}
	group, err := store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, storeError(err)
	}
	if !group.HasMember(userID) {
		return nil, connect.NewError(connect.CodePermissionDenied, errNotMember)
	}
	return group, nil
}

func userToAPI(u *models.User) *api.User {
	out := &api.User{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		CreatedAt:   u.CreatedAt,
	}
	if u.MonthlyBudget.Valid {
		budget := toFloat(u.MonthlyBudget.Decimal)
		out.MonthlyBudget = &budget
	}
	return out
}

// memberOf resolves id against users. Unknown users keep their id as name.
func memberOf(id string, users map[string]*models.User) *api.Member {
	if u, ok := users[id]; ok {
		return &api.Member{ID: u.ID, Name: u.DisplayName, Email: u.Email}
	}
	return &api.Member{ID: id, Name: id}
}

func groupToAPI(g *models.Group, users map[string]*models.User) *api.Group {
	ids := g.MemberIDs()
	members := make([]*api.Member, len(ids))
	for i, id := range ids {
		members[i] = memberOf(id, users)
	}
	return &api.Group{
		ID:          g.ID,
		Name:        g.Name,
		Description: g.Description,
		Category:    string(g.Category),
		CreatorID:   g.CreatorID,
		Members:     members,
		CreatedAt:   g.CreatedAt,
	}
}

func splitDetailsToAPI(details []models.SplitDetail) []*api.SplitDetail {
	out := make([]*api.SplitDetail, len(details))
	for i, d := range details {
		out[i] = &api.SplitDetail{UserID: d.UserID, Amount: toFloat(d.Amount)}
		if d.Percentage.Valid {
			pct := d.Percentage.Decimal.InexactFloat64()
			out[i].Percentage = &pct
		}
	}
	return out
}

func expenseToAPI(e *models.Expense) *api.Expense {
	return &api.Expense{
		ID:           e.ID,
		GroupID:      e.GroupID,
		PaidBy:       e.PaidBy,
		Amount:       toFloat(e.Amount),
		Description:  e.Description,
		Category:     string(e.Category),
		SplitType:    e.SplitType,
		SplitDetails: splitDetailsToAPI(e.SplitDetails),
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
	}
}

func sharesFromAPI(shares []*api.ShareInput) []calculator.ShareInput {
	out := make([]calculator.ShareInput, 0, len(shares))
	for _, s := range shares {
		if s == nil {
			continue
		}
		out = append(out, calculator.ShareInput{
			MemberID: calculator.MemberID(s.UserID),
			Value:    fromFloat(s.Value),
		})
	}
	return out
}

func memberIDs(ids []string) []calculator.MemberID {
	out := make([]calculator.MemberID, len(ids))
	for i, id := range ids {
		out[i] = calculator.MemberID(id)
	}
	return out
}

func sharesToDetails(shares []calculator.Share) []models.SplitDetail {
	out := make([]models.SplitDetail, len(shares))
	for i, s := range shares {
		out[i] = models.SplitDetail{
			UserID:     string(s.MemberID),
			Amount:     s.Amount,
			Percentage: s.Percentage,
		}
	}
	return out
}

func sharesToAPI(shares []calculator.Share) []*api.SplitDetail {
	return splitDetailsToAPI(sharesToDetails(shares))
}

// calculatorExpenses converts stored expenses for the balance aggregator.
func calculatorExpenses(expenses []*models.Expense) []calculator.Expense {
	out := make([]calculator.Expense, len(expenses))
	for i, e := range expenses {
		shares := make([]calculator.Share, len(e.SplitDetails))
		for j, d := range e.SplitDetails {
			shares[j] = calculator.Share{MemberID: calculator.MemberID(d.UserID), Amount: d.Amount}
		}
		out[i] = calculator.Expense{
			PaidBy: calculator.MemberID(e.PaidBy),
			Amount: e.Amount,
			Shares: shares,
		}
	}
	return out
}

func calculatorMembers(ids []string, users map[string]*models.User) []calculator.Member {
	out := make([]calculator.Member, len(ids))
	for i, id := range ids {
		m := memberOf(id, users)
		out[i] = calculator.Member{ID: calculator.MemberID(m.ID), Name: m.Name, Email: m.Email}
	}
	return out
}

func calculatorMemberToAPI(m calculator.Member) *api.Member {
	return &api.Member{ID: string(m.ID), Name: m.Name, Email: m.Email}
}

// SettlementResponse renders a settlement result for the wire. The summary
// is keyed by member ID.
func SettlementResponse(result calculator.Result) *api.GetSettlementsResponse {
	settlements := make([]*api.Settlement, len(result.Settlements))
	for i, s := range result.Settlements {
		settlements[i] = &api.Settlement{
			From:   calculatorMemberToAPI(s.From),
			To:     calculatorMemberToAPI(s.To),
			Amount: toFloat(s.Amount),
		}
	}

	residual := make(map[calculator.MemberID]decimal.Decimal, len(result.Residual))
	for _, b := range result.Residual {
		residual[b.Member.ID] = b.Balance
	}

	summary := make(map[string]*api.MemberSummary, len(result.Balances))
	for _, b := range result.Balances {
		summary[string(b.Member.ID)] = &api.MemberSummary{
			Name:       b.Member.Name,
			Email:      b.Member.Email,
			Paid:       toFloat(b.Paid),
			Owes:       toFloat(b.Owes),
			Balance:    toFloat(residual[b.Member.ID]),
			NetBalance: toFloat(b.Balance),
		}
	}

	return &api.GetSettlementsResponse{
		Settlements:  settlements,
		Summary:      summary,
		TotalExpense: toFloat(result.TotalExpense),
	}
}

// SettleInput runs the settlement engine over an offline input document.
func SettleInput(in *api.SettleInput) *api.GetSettlementsResponse {
	members := make([]calculator.Member, 0, len(in.GroupMembers))
	for _, m := range in.GroupMembers {
		if m == nil {
			continue
		}
		members = append(members, calculator.Member{ID: calculator.MemberID(m.ID), Name: m.Name, Email: m.Email})
	}

	expenses := make([]calculator.Expense, 0, len(in.Expenses))
	for _, e := range in.Expenses {
		if e == nil {
			continue
		}
		shares := make([]calculator.Share, 0, len(e.SplitDetails))
		for _, d := range e.SplitDetails {
			if d == nil {
				continue
			}
			shares = append(shares, calculator.Share{MemberID: calculator.MemberID(d.UserID), Amount: fromFloat(d.Amount)})
		}
		expenses = append(expenses, calculator.Expense{
			PaidBy: calculator.MemberID(e.PaidBy),
			Amount: fromFloat(e.Amount),
			Shares: shares,
		})
	}

	return SettlementResponse(calculator.Settle(members, expenses))
}
