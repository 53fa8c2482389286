package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"connectrpc.com/connect"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/mmynk/hisaab/internal/models"
	"github.com/mmynk/hisaab/internal/reports"
	"github.com/mmynk/hisaab/internal/storage"
	"github.com/mmynk/hisaab/pkg/api"
	"github.com/mmynk/hisaab/pkg/api/apiconnect"
)

// Budget alert levels.
const (
	AlertSafe    = "safe"
	AlertWarning = "warning"
	AlertDanger  = "danger"
)

// NoBudgetMessage is returned by GetBudgetStatus when no budget is set.
const NoBudgetMessage = "No budget set"

// groupFanOut bounds concurrent per-group expense queries.
const groupFanOut = 4

var (
	warningThreshold = decimal.NewFromInt(80)
	dangerThreshold  = decimal.NewFromInt(100)
)

// AnalyticsService reports a user's own spending: the user's share of every
// expense across all groups they belong to.
type AnalyticsService struct {
	apiconnect.UnimplementedAnalyticsServiceHandler
	store  storage.Store
	logger *slog.Logger

	now func() time.Time
	loc *time.Location
}

// NewAnalyticsService creates an AnalyticsService. Calendar months are
// evaluated in UTC.
func NewAnalyticsService(store storage.Store, logger *slog.Logger) *AnalyticsService {
	return &AnalyticsService{store: store, logger: logger, now: time.Now, loc: time.UTC}
}

// spending is a user's view of the expenses in a period.
type spending struct {
	// lines holds the expenses the user has a share in.
	lines []reports.Line
	// count is every expense in the user's groups during the period.
	count int
}

// monthRange returns [first of month, first of next month) in loc.
func monthRange(year int, month time.Month, loc *time.Location) (time.Time, time.Time) {
	start := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 1, 0)
}

// resolvePeriod fills in the current year and month for zero values.
func (s *AnalyticsService) resolvePeriod(year, month int) (int, time.Month, error) {
	now := s.now().In(s.loc)
	if year == 0 {
		year = now.Year()
	}
	if month == 0 {
		month = int(now.Month())
	}
	if month < 1 || month > 12 {
		return 0, 0, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("invalid month %d: must be between 1 and 12", month))
	}
	if year < 1970 || year > 9999 {
		return 0, 0, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("invalid year %d", year))
	}
	return year, time.Month(month), nil
}

// spendingBetween collects userID's shares of expenses created in
// [from, to) across all of the user's groups. Groups are queried
// concurrently.
func (s *AnalyticsService) spendingBetween(ctx context.Context, userID string, from, to time.Time) (*spending, error) {
	groups, err := s.store.ListGroupsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}

	perGroup := make([][]*models.Expense, len(groups))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(groupFanOut)
	for i, group := range groups {
		g.Go(func() error {
			expenses, err := s.store.ListExpensesByGroupBetween(gctx, group.ID, from.Unix(), to.Unix())
			if err != nil {
				return fmt.Errorf("list expenses of group %s: %w", group.ID, err)
			}
			perGroup[i] = expenses
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var payers []string
	for _, expenses := range perGroup {
		for _, e := range expenses {
			payers = append(payers, e.PaidBy)
		}
	}
	users, err := s.store.GetUsersByIDs(ctx, payers)
	if err != nil {
		return nil, fmt.Errorf("resolve payers: %w", err)
	}

	out := &spending{}
	for i, expenses := range perGroup {
		out.count += len(expenses)
		for _, e := range expenses {
			share, ok := e.ShareOf(userID)
			if !ok {
				continue
			}
			out.lines = append(out.lines, reports.Line{
				ExpenseID:   e.ID,
				Date:        time.Unix(e.CreatedAt, 0).In(s.loc),
				Group:       groups[i].Name,
				Description: e.Description,
				Category:    string(e.Category),
				Total:       e.Amount,
				Share:       share,
				PaidBy:      memberOf(e.PaidBy, users).Name,
			})
		}
	}
	reports.SortLines(out.lines)
	return out, nil
}

func categoryAmounts(totals []reports.Total) []*api.CategoryAmount {
	out := make([]*api.CategoryAmount, len(totals))
	for i, t := range totals {
		out[i] = &api.CategoryAmount{Category: t.Label, Amount: toFloat(t.Amount)}
	}
	return out
}

// SetMonthlyBudget stores the caller's monthly budget. Zero clears it.
func (s *AnalyticsService) SetMonthlyBudget(ctx context.Context, req *connect.Request[api.SetMonthlyBudgetRequest]) (*connect.Response[api.SetMonthlyBudgetResponse], error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}

	if req.Msg.Amount < 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("budget cannot be negative"))
	}

	budget := fromFloat(req.Msg.Amount).Round(2)
	if err := s.store.UpdateMonthlyBudget(ctx, userID, budget); err != nil {
		s.logger.Error("SetMonthlyBudget failed", "user_id", userID, "error", err)
		return nil, storeError(err)
	}

	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, storeError(err)
	}

	s.logger.Info("Monthly budget set", "user_id", userID, "budget", budget.String())
	return connect.NewResponse(&api.SetMonthlyBudgetResponse{User: userToAPI(user)}), nil
}

// budgetAlert classifies spending against the budget.
func budgetAlert(spent, budget, percentage decimal.Decimal) (string, string) {
	switch {
	case percentage.GreaterThanOrEqual(dangerThreshold):
		return AlertDanger, fmt.Sprintf("Budget exceeded! You've spent ₹%s out of ₹%s", spent.StringFixed(2), budget.StringFixed(2))
	case percentage.GreaterThanOrEqual(warningThreshold):
		return AlertWarning, fmt.Sprintf("Budget warning! You've used %s%% of your monthly budget", percentage.StringFixed(1))
	default:
		return AlertSafe, fmt.Sprintf("You're on track! %s%% of budget used", percentage.StringFixed(1))
	}
}

// GetBudgetStatus compares the caller's spending this month with their budget.
func (s *AnalyticsService) GetBudgetStatus(ctx context.Context, req *connect.Request[api.GetBudgetStatusRequest]) (*connect.Response[api.GetBudgetStatusResponse], error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}

	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, storeError(err)
	}

	if !user.MonthlyBudget.Valid || !user.MonthlyBudget.Decimal.IsPositive() {
		return connect.NewResponse(&api.GetBudgetStatusResponse{HasBudget: false, Message: NoBudgetMessage}), nil
	}
	budget := user.MonthlyBudget.Decimal

	now := s.now().In(s.loc)
	from, to := monthRange(now.Year(), now.Month(), s.loc)
	spent, err := s.spendingBetween(ctx, userID, from, to)
	if err != nil {
		s.logger.Error("GetBudgetStatus failed", "user_id", userID, "error", err)
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	total := reports.TotalShare(spent.lines)
	percentage := total.Div(budget).Mul(decimal.NewFromInt(100)).Round(2)
	level, message := budgetAlert(total, budget, percentage)

	return connect.NewResponse(&api.GetBudgetStatusResponse{
		HasBudget:      true,
		MonthlyBudget:  toFloat(budget),
		TotalSpent:     toFloat(total),
		Remaining:      toFloat(budget.Sub(total)),
		PercentageUsed: percentage.InexactFloat64(),
		AlertLevel:     level,
		AlertMessage:   message,
	}), nil
}

// GetMonthlySummary totals the caller's shares in one month by category and
// by group.
func (s *AnalyticsService) GetMonthlySummary(ctx context.Context, req *connect.Request[api.GetMonthlySummaryRequest]) (*connect.Response[api.GetMonthlySummaryResponse], error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}

	year, month, err := s.resolvePeriod(req.Msg.Year, req.Msg.Month)
	if err != nil {
		return nil, err
	}

	from, to := monthRange(year, month, s.loc)
	spent, err := s.spendingBetween(ctx, userID, from, to)
	if err != nil {
		s.logger.Error("GetMonthlySummary failed", "user_id", userID, "error", err)
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	groupTotals := reports.ByGroup(spent.lines)
	groups := make([]*api.GroupAmount, len(groupTotals))
	for i, t := range groupTotals {
		groups[i] = &api.GroupAmount{Group: t.Label, Amount: toFloat(t.Amount)}
	}

	return connect.NewResponse(&api.GetMonthlySummaryResponse{
		Period: api.Period{
			Month:     int(month),
			Year:      year,
			MonthName: month.String(),
		},
		TotalSpent:        toFloat(reports.TotalShare(spent.lines)),
		ExpenseCount:      spent.count,
		CategoryBreakdown: categoryAmounts(reports.ByCategory(spent.lines)),
		GroupBreakdown:    groups,
	}), nil
}

// GetYearlySummary totals the caller's shares in one year by month and by
// category.
func (s *AnalyticsService) GetYearlySummary(ctx context.Context, req *connect.Request[api.GetYearlySummaryRequest]) (*connect.Response[api.GetYearlySummaryResponse], error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}

	year, _, err := s.resolvePeriod(req.Msg.Year, 1)
	if err != nil {
		return nil, err
	}

	from := time.Date(year, time.January, 1, 0, 0, 0, 0, s.loc)
	spent, err := s.spendingBetween(ctx, userID, from, from.AddDate(1, 0, 0))
	if err != nil {
		s.logger.Error("GetYearlySummary failed", "user_id", userID, "error", err)
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	monthTotals := reports.ByMonth(spent.lines, s.loc)
	months := make([]*api.MonthAmount, len(monthTotals))
	for i, t := range monthTotals {
		months[i] = &api.MonthAmount{Month: t.Label, Amount: toFloat(t.Amount)}
	}

	return connect.NewResponse(&api.GetYearlySummaryResponse{
		Year:              year,
		TotalSpent:        toFloat(reports.TotalShare(spent.lines)),
		ExpenseCount:      spent.count,
		MonthlyBreakdown:  months,
		CategoryBreakdown: categoryAmounts(reports.ByCategory(spent.lines)),
	}), nil
}

// MonthlyReport builds the export report of one month for userID. Zero year
// or month mean the current one.
func (s *AnalyticsService) MonthlyReport(ctx context.Context, userID string, year, month int) (*reports.Report, error) {
	y, m, err := s.resolvePeriod(year, month)
	if err != nil {
		return nil, err
	}

	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, storeError(err)
	}

	from, to := monthRange(y, m, s.loc)
	spent, err := s.spendingBetween(ctx, userID, from, to)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	return &reports.Report{
		Year:         y,
		Month:        m,
		UserName:     user.DisplayName,
		UserEmail:    user.Email,
		GeneratedAt:  s.now().In(s.loc),
		ExpenseCount: spent.count,
		Lines:        spent.lines,
	}, nil
}
