package service

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/hisaab/internal/middleware"
	"github.com/mmynk/hisaab/internal/models"
	"github.com/mmynk/hisaab/internal/reports"
	"github.com/mmynk/hisaab/pkg/api"
)

type analyticsFixture struct {
	env        *testEnv
	svc        *AnalyticsService
	alice, bob *testUser
	ctx        context.Context
}

func detail(userID string, amount int64) models.SplitDetail {
	return models.SplitDetail{UserID: userID, Amount: decimal.NewFromInt(amount)}
}

// newAnalyticsFixture seeds expenses around March 2025 and returns a service
// whose clock is fixed at 15 March 2025.
func newAnalyticsFixture(t *testing.T) *analyticsFixture {
	env := setupTestServer(t)
	alice := env.register(t, "Alice", "alice@example.com")
	bob := env.register(t, "Bob", "bob@example.com")
	charlie := env.register(t, "Charlie", "charlie@example.com")

	trip := env.createGroup(t, alice, "Trip", bob, charlie)
	flat := env.createGroup(t, bob, "Flat", alice)

	at := func(month time.Month, day int) int64 {
		return time.Date(2025, month, day, 12, 0, 0, 0, time.UTC).Unix()
	}
	seed := []*models.Expense{
		{GroupID: trip.ID, PaidBy: alice.ID, Amount: decimal.NewFromInt(90), Description: "Dinner", Category: models.CategoryFood, SplitType: "equal",
			SplitDetails: []models.SplitDetail{detail(alice.ID, 30), detail(bob.ID, 30), detail(charlie.ID, 30)}, CreatedAt: at(time.March, 2)},
		{GroupID: flat.ID, PaidBy: bob.ID, Amount: decimal.NewFromInt(40), Description: "Movie night", Category: models.CategoryEntertainment, SplitType: "equal",
			SplitDetails: []models.SplitDetail{detail(bob.ID, 20), detail(alice.ID, 20)}, CreatedAt: at(time.March, 10)},
		{GroupID: trip.ID, PaidBy: bob.ID, Amount: decimal.NewFromInt(50), Description: "Bob's taxi", Category: models.CategoryTransport, SplitType: "custom",
			SplitDetails: []models.SplitDetail{detail(bob.ID, 50)}, CreatedAt: at(time.March, 12)},
		{GroupID: trip.ID, PaidBy: alice.ID, Amount: decimal.NewFromInt(100), Description: "Lunch", Category: models.CategoryFood, SplitType: "equal",
			SplitDetails: []models.SplitDetail{detail(alice.ID, 50), detail(bob.ID, 50)}, CreatedAt: at(time.January, 20)},
		{GroupID: trip.ID, PaidBy: alice.ID, Amount: decimal.NewFromInt(70), Description: "New year", Category: models.CategoryShopping, SplitType: "custom",
			SplitDetails: []models.SplitDetail{detail(alice.ID, 70)}, CreatedAt: time.Date(2024, time.December, 31, 23, 0, 0, 0, time.UTC).Unix()},
	}
	for _, e := range seed {
		require.NoError(t, env.store.CreateExpense(context.Background(), e))
	}

	svc := NewAnalyticsService(env.store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.now = func() time.Time { return time.Date(2025, time.March, 15, 9, 0, 0, 0, time.UTC) }

	return &analyticsFixture{
		env:   env,
		svc:   svc,
		alice: alice,
		bob:   bob,
		ctx:   middleware.WithUser(context.Background(), alice.ID, alice.Email),
	}
}

func TestGetMonthlySummary(t *testing.T) {
	f := newAnalyticsFixture(t)

	resp, err := f.svc.GetMonthlySummary(f.ctx, connect.NewRequest(&api.GetMonthlySummaryRequest{}))
	require.NoError(t, err)

	got := resp.Msg
	assert.Equal(t, api.Period{Month: 3, Year: 2025, MonthName: "March"}, got.Period)
	assert.Equal(t, 50.0, got.TotalSpent)
	// Bob's taxi counts as an expense in Alice's groups though she has no share.
	assert.Equal(t, 3, got.ExpenseCount)
	assert.Equal(t, []*api.CategoryAmount{
		{Category: "Food", Amount: 30},
		{Category: "Entertainment", Amount: 20},
	}, got.CategoryBreakdown)
	assert.Equal(t, []*api.GroupAmount{
		{Group: "Trip", Amount: 30},
		{Group: "Flat", Amount: 20},
	}, got.GroupBreakdown)

	t.Run("explicit month", func(t *testing.T) {
		resp, err := f.svc.GetMonthlySummary(f.ctx, connect.NewRequest(&api.GetMonthlySummaryRequest{Year: 2025, Month: 1}))
		require.NoError(t, err)
		assert.Equal(t, 50.0, resp.Msg.TotalSpent)
		assert.Equal(t, 1, resp.Msg.ExpenseCount)
		assert.Equal(t, "January", resp.Msg.Period.MonthName)
	})

	t.Run("empty month", func(t *testing.T) {
		resp, err := f.svc.GetMonthlySummary(f.ctx, connect.NewRequest(&api.GetMonthlySummaryRequest{Year: 2025, Month: 6}))
		require.NoError(t, err)
		assert.Zero(t, resp.Msg.TotalSpent)
		assert.Zero(t, resp.Msg.ExpenseCount)
		assert.Empty(t, resp.Msg.CategoryBreakdown)
	})

	t.Run("invalid period", func(t *testing.T) {
		_, err := f.svc.GetMonthlySummary(f.ctx, connect.NewRequest(&api.GetMonthlySummaryRequest{Year: 2025, Month: 13}))
		requireCode(t, err, connect.CodeInvalidArgument)

		_, err = f.svc.GetMonthlySummary(f.ctx, connect.NewRequest(&api.GetMonthlySummaryRequest{Year: 1900, Month: 1}))
		requireCode(t, err, connect.CodeInvalidArgument)
	})

	t.Run("other user", func(t *testing.T) {
		ctx := middleware.WithUser(context.Background(), f.bob.ID, f.bob.Email)
		resp, err := f.svc.GetMonthlySummary(ctx, connect.NewRequest(&api.GetMonthlySummaryRequest{}))
		require.NoError(t, err)
		assert.Equal(t, 100.0, resp.Msg.TotalSpent)
	})
}

func TestGetYearlySummary(t *testing.T) {
	f := newAnalyticsFixture(t)

	resp, err := f.svc.GetYearlySummary(f.ctx, connect.NewRequest(&api.GetYearlySummaryRequest{}))
	require.NoError(t, err)

	got := resp.Msg
	assert.Equal(t, 2025, got.Year)
	assert.Equal(t, 100.0, got.TotalSpent)
	assert.Equal(t, 4, got.ExpenseCount)

	require.Len(t, got.MonthlyBreakdown, 12)
	assert.Equal(t, &api.MonthAmount{Month: "Jan", Amount: 50}, got.MonthlyBreakdown[0])
	assert.Equal(t, &api.MonthAmount{Month: "Feb", Amount: 0}, got.MonthlyBreakdown[1])
	assert.Equal(t, &api.MonthAmount{Month: "Mar", Amount: 50}, got.MonthlyBreakdown[2])
	assert.Equal(t, "Dec", got.MonthlyBreakdown[11].Month)

	assert.Equal(t, []*api.CategoryAmount{
		{Category: "Food", Amount: 80},
		{Category: "Entertainment", Amount: 20},
	}, got.CategoryBreakdown)

	t.Run("previous year", func(t *testing.T) {
		resp, err := f.svc.GetYearlySummary(f.ctx, connect.NewRequest(&api.GetYearlySummaryRequest{Year: 2024}))
		require.NoError(t, err)
		assert.Equal(t, 70.0, resp.Msg.TotalSpent)
		assert.Equal(t, 70.0, resp.Msg.MonthlyBreakdown[11].Amount)
	})
}

func TestGetBudgetStatus(t *testing.T) {
	f := newAnalyticsFixture(t)

	resp, err := f.svc.GetBudgetStatus(f.ctx, connect.NewRequest(&api.GetBudgetStatusRequest{}))
	require.NoError(t, err)
	assert.False(t, resp.Msg.HasBudget)
	assert.Equal(t, NoBudgetMessage, resp.Msg.Message)

	// Alice has spent 50 in March 2025.
	tests := []struct {
		name      string
		budget    int64
		level     string
		message   string
		remaining float64
		percent   float64
	}{
		{"safe", 1000, AlertSafe, "You're on track! 5.0% of budget used", 950, 5},
		{"warning", 60, AlertWarning, "Budget warning! You've used 83.3% of your monthly budget", 10, 83.33},
		{"exactly at budget", 50, AlertDanger, "Budget exceeded! You've spent ₹50.00 out of ₹50.00", 0, 100},
		{"over budget", 40, AlertDanger, "Budget exceeded! You've spent ₹50.00 out of ₹40.00", -10, 125},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, f.env.store.UpdateMonthlyBudget(context.Background(), f.alice.ID, decimal.NewFromInt(tt.budget)))

			resp, err := f.svc.GetBudgetStatus(f.ctx, connect.NewRequest(&api.GetBudgetStatusRequest{}))
			require.NoError(t, err)

			got := resp.Msg
			assert.True(t, got.HasBudget)
			assert.Equal(t, float64(tt.budget), got.MonthlyBudget)
			assert.Equal(t, 50.0, got.TotalSpent)
			assert.Equal(t, tt.remaining, got.Remaining)
			assert.Equal(t, tt.percent, got.PercentageUsed)
			assert.Equal(t, tt.level, got.AlertLevel)
			assert.Equal(t, tt.message, got.AlertMessage)
		})
	}
}

func TestSetMonthlyBudget(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()
	alice := env.register(t, "Alice", "alice@example.com")

	resp, err := env.analytics.SetMonthlyBudget(ctx, withToken(alice.Token, &api.SetMonthlyBudgetRequest{Amount: 500}))
	require.NoError(t, err)
	require.NotNil(t, resp.Msg.User.MonthlyBudget)
	assert.Equal(t, 500.0, *resp.Msg.User.MonthlyBudget)

	status, err := env.analytics.GetBudgetStatus(ctx, withToken(alice.Token, &api.GetBudgetStatusRequest{}))
	require.NoError(t, err)
	assert.True(t, status.Msg.HasBudget)
	assert.Equal(t, AlertSafe, status.Msg.AlertLevel)
	assert.Equal(t, 500.0, status.Msg.Remaining)

	t.Run("zero clears", func(t *testing.T) {
		_, err := env.analytics.SetMonthlyBudget(ctx, withToken(alice.Token, &api.SetMonthlyBudgetRequest{Amount: 0}))
		require.NoError(t, err)

		status, err := env.analytics.GetBudgetStatus(ctx, withToken(alice.Token, &api.GetBudgetStatusRequest{}))
		require.NoError(t, err)
		assert.False(t, status.Msg.HasBudget)
	})

	t.Run("negative", func(t *testing.T) {
		_, err := env.analytics.SetMonthlyBudget(ctx, withToken(alice.Token, &api.SetMonthlyBudgetRequest{Amount: -1}))
		requireCode(t, err, connect.CodeInvalidArgument)
	})

	t.Run("unauthenticated", func(t *testing.T) {
		_, err := env.analytics.SetMonthlyBudget(ctx, connect.NewRequest(&api.SetMonthlyBudgetRequest{Amount: 10}))
		requireCode(t, err, connect.CodeUnauthenticated)
	})
}

func TestMonthlyReport(t *testing.T) {
	f := newAnalyticsFixture(t)

	report, err := f.svc.MonthlyReport(context.Background(), f.alice.ID, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 2025, report.Year)
	assert.Equal(t, time.March, report.Month)
	assert.Equal(t, "Alice", report.UserName)
	assert.Equal(t, 3, report.ExpenseCount)
	require.Len(t, report.Lines, 2)
	assert.Equal(t, "Dinner", report.Lines[0].Description)
	assert.Equal(t, "Alice", report.Lines[0].PaidBy)
	assert.Equal(t, "Movie night", report.Lines[1].Description)
	assert.Equal(t, "Bob", report.Lines[1].PaidBy)
	assert.Equal(t, "Flat", report.Lines[1].Group)
	assert.Equal(t, "expenses_2025_3.csv", report.Filename("csv"))

	_, err = f.svc.MonthlyReport(context.Background(), "missing", 2025, 3)
	requireCode(t, err, connect.CodeNotFound)
}

func TestExport(t *testing.T) {
	env := setupTestServer(t)
	alice := env.register(t, "Alice", "alice@example.com")
	bob := env.register(t, "Bob", "bob@example.com")
	group := env.createGroup(t, alice, "Flat", bob)
	env.createExpense(t, alice, &api.CreateExpenseRequest{
		GroupID: group.ID, Amount: 30, Description: "Rent, utilities", Category: "Other", SplitType: "equal",
	})

	get := func(t *testing.T, path, token string) *http.Response {
		t.Helper()
		req, err := http.NewRequest(http.MethodGet, env.server.URL+path, nil)
		require.NoError(t, err)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	t.Run("csv", func(t *testing.T) {
		resp := get(t, ExportCSVPath, bob.Token)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "text/csv", resp.Header.Get("Content-Type"))

		now := time.Now().UTC()
		assert.Contains(t, resp.Header.Get("Content-Disposition"), (&reports.Report{Year: now.Year(), Month: now.Month()}).Filename("csv"))

		scanner := bufio.NewScanner(resp.Body)
		var lines []string
		for scanner.Scan() {
			lines = append(lines, scanner.Text())
		}
		require.Len(t, lines, 2)
		assert.Equal(t, "Date,Group,Description,Category,Total Amount,Your Share,Paid By", lines[0])
		assert.True(t, strings.HasSuffix(lines[1], `,Flat,"Rent, utilities",Other,30.00,15.00,Alice`), lines[1])
	})

	t.Run("pdf", func(t *testing.T) {
		resp := get(t, ExportPDFPath, alice.Token)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(string(body), "%PDF-"))
	})

	t.Run("errors", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, get(t, ExportCSVPath, "").StatusCode)
		assert.Equal(t, http.StatusUnauthorized, get(t, ExportPDFPath, "garbage").StatusCode)
		assert.Equal(t, http.StatusBadRequest, get(t, ExportCSVPath+"?month=13", alice.Token).StatusCode)
		assert.Equal(t, http.StatusBadRequest, get(t, ExportCSVPath+"?year=abc", alice.Token).StatusCode)
	})

	t.Run("method not allowed", func(t *testing.T) {
		resp, err := http.Post(env.server.URL+ExportCSVPath, "text/plain", nil)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	})
}

func TestExportHidesInternalErrors(t *testing.T) {
	env := setupTestServer(t)
	alice := env.register(t, "Alice", "alice@example.com")
	require.NoError(t, env.store.Close())

	req, err := http.NewRequest(http.MethodGet, env.server.URL+ExportCSVPath, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+alice.Token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "internal server error\n", string(body))
}
