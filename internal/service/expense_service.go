package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"connectrpc.com/connect"
	"github.com/shopspring/decimal"

	"github.com/mmynk/hisaab/internal/calculator"
	"github.com/mmynk/hisaab/internal/events"
	"github.com/mmynk/hisaab/internal/metrics"
	"github.com/mmynk/hisaab/internal/models"
	"github.com/mmynk/hisaab/internal/storage"
	"github.com/mmynk/hisaab/pkg/api"
	"github.com/mmynk/hisaab/pkg/api/apiconnect"
)

// ExpenseService implements the Connect ExpenseService.
type ExpenseService struct {
	apiconnect.UnimplementedExpenseServiceHandler
	store     storage.Store
	publisher events.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewExpenseService creates an ExpenseService. publisher and m may be nil.
func NewExpenseService(store storage.Store, publisher events.Publisher, m *metrics.Metrics, logger *slog.Logger) *ExpenseService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &ExpenseService{store: store, publisher: publisher, metrics: m, logger: logger}
}

// validatePayerID checks that the payer belongs to the group.
func validatePayerID(payerID string, group *models.Group) error {
	if !group.HasMember(payerID) {
		return fmt.Errorf("payer '%s' must be a member of the group", payerID)
	}
	return nil
}

func parseCategory(category string) (models.ExpenseCategory, error) {
	if category == "" {
		return models.CategoryOther, nil
	}
	c := models.ExpenseCategory(category)
	if !c.Valid() {
		return "", fmt.Errorf("invalid expense category %q", category)
	}
	return c, nil
}

// split runs the split calculator against the group's current members.
func split(group *models.Group, amount decimal.Decimal, splitType string, shares []calculator.ShareInput) ([]calculator.Share, error) {
	return calculator.CalculateSplit(calculator.SplitRequest{
		Amount:  amount,
		Type:    calculator.SplitType(splitType),
		Members: memberIDs(group.MemberIDs()),
		Shares:  shares,
	})
}

// storedShares recovers custom amounts or percentages from saved split
// details, so an update that leaves the shares alone can recompute them.
func storedShares(e *models.Expense) []calculator.ShareInput {
	out := make([]calculator.ShareInput, 0, len(e.SplitDetails))
	for _, d := range e.SplitDetails {
		value := d.Amount
		if calculator.SplitType(e.SplitType) == calculator.SplitPercentage && d.Percentage.Valid {
			value = d.Percentage.Decimal
		}
		out = append(out, calculator.ShareInput{MemberID: calculator.MemberID(d.UserID), Value: value})
	}
	return out
}

// formerMembers lists share holders who are no longer in the group.
func formerMembers(shares []calculator.ShareInput, group *models.Group) []string {
	var gone []string
	for _, sh := range shares {
		if !group.HasMember(string(sh.MemberID)) {
			gone = append(gone, string(sh.MemberID))
		}
	}
	return gone
}

func (s *ExpenseService) publish(ctx context.Context, eventType events.Type, expense *models.Expense, actorID string) {
	err := s.publisher.Publish(ctx, events.NewExpenseEvent(eventType, expense, actorID))
	s.metrics.EventPublished(string(eventType), err)
	if err != nil {
		s.logger.Warn("Failed to publish expense event",
			"type", eventType,
			"expense_id", expense.ID,
			"error", err,
		)
	}
}

// expenseForMember loads an expense and the group it belongs to, checking
// that userID is a member.
func (s *ExpenseService) expenseForMember(ctx context.Context, expenseID, userID string) (*models.Expense, *models.Group, error) {
	if expenseID == "" {
		return nil, nil, connect.NewError(connect.CodeInvalidArgument, errors.New("expense_id required"))
	}
	expense, err := s.store.GetExpense(ctx, expenseID)
	if err != nil {
		return nil, nil, storeError(err)
	}
	group, err := memberGroup(ctx, s.store, expense.GroupID, userID)
	if err != nil {
		return nil, nil, err
	}
	return expense, group, nil
}

// CalculateSplit previews the split of an amount without saving anything.
func (s *ExpenseService) CalculateSplit(ctx context.Context, req *connect.Request[api.CalculateSplitRequest]) (*connect.Response[api.CalculateSplitResponse], error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}

	group, err := memberGroup(ctx, s.store, req.Msg.GroupID, userID)
	if err != nil {
		return nil, err
	}

	shares, err := split(group, fromFloat(req.Msg.Amount), req.Msg.SplitType, sharesFromAPI(req.Msg.Shares))
	if err != nil {
		s.logger.Warn("CalculateSplit rejected", "group_id", group.ID, "split_type", req.Msg.SplitType, "error", err)
		return nil, splitError(err)
	}

	total := decimal.Zero
	for _, sh := range shares {
		total = total.Add(sh.Amount)
	}

	return connect.NewResponse(&api.CalculateSplitResponse{
		SplitDetails: sharesToAPI(shares),
		Total:        toFloat(total),
	}), nil
}

// CreateExpense validates and stores an expense. The payer defaults to the
// caller and must belong to the group.
func (s *ExpenseService) CreateExpense(ctx context.Context, req *connect.Request[api.CreateExpenseRequest]) (*connect.Response[api.CreateExpenseResponse], error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}

	s.logger.Info("CreateExpense request received",
		"group_id", req.Msg.GroupID,
		"amount", req.Msg.Amount,
		"split_type", req.Msg.SplitType,
	)

	group, err := memberGroup(ctx, s.store, req.Msg.GroupID, userID)
	if err != nil {
		return nil, err
	}

	description := strings.TrimSpace(req.Msg.Description)
	if description == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("description required"))
	}

	category, err := parseCategory(req.Msg.Category)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	paidBy := req.Msg.PaidBy
	if paidBy == "" {
		paidBy = userID
	}
	if err := validatePayerID(paidBy, group); err != nil {
		s.logger.Warn("CreateExpense payer validation failed", "error", err)
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	amount := fromFloat(req.Msg.Amount)
	shares, err := split(group, amount, req.Msg.SplitType, sharesFromAPI(req.Msg.Shares))
	if err != nil {
		s.logger.Warn("CreateExpense split rejected", "group_id", group.ID, "error", err)
		return nil, splitError(err)
	}

	expense := &models.Expense{
		GroupID:      group.ID,
		PaidBy:       paidBy,
		Amount:       amount,
		Description:  description,
		Category:     category,
		SplitType:    req.Msg.SplitType,
		SplitDetails: sharesToDetails(shares),
	}

	// Save to storage (generates ID and timestamps)
	if err := s.store.CreateExpense(ctx, expense); err != nil {
		s.logger.Error("CreateExpense failed", "error", err)
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	s.metrics.ExpenseWritten("created")
	s.publish(ctx, events.ExpenseCreated, expense, userID)

	s.logger.Info("Expense created", "expense_id", expense.ID, "group_id", group.ID)
	return connect.NewResponse(&api.CreateExpenseResponse{Expense: expenseToAPI(expense)}), nil
}

// GetExpense retrieves an expense from one of the caller's groups.
func (s *ExpenseService) GetExpense(ctx context.Context, req *connect.Request[api.GetExpenseRequest]) (*connect.Response[api.GetExpenseResponse], error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}

	expense, _, err := s.expenseForMember(ctx, req.Msg.ExpenseID, userID)
	if err != nil {
		s.logger.Warn("GetExpense failed", "expense_id", req.Msg.ExpenseID, "error", err)
		return nil, err
	}

	return connect.NewResponse(&api.GetExpenseResponse{Expense: expenseToAPI(expense)}), nil
}

// ListExpenses returns a group's expenses, newest first.
func (s *ExpenseService) ListExpenses(ctx context.Context, req *connect.Request[api.ListExpensesRequest]) (*connect.Response[api.ListExpensesResponse], error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}

	group, err := memberGroup(ctx, s.store, req.Msg.GroupID, userID)
	if err != nil {
		return nil, err
	}

	expenses, err := s.store.ListExpensesByGroup(ctx, group.ID)
	if err != nil {
		s.logger.Error("ListExpenses failed", "group_id", group.ID, "error", err)
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	out := make([]*api.Expense, len(expenses))
	for i, e := range expenses {
		out[i] = expenseToAPI(e)
	}

	s.logger.Info("ListExpenses successful", "group_id", group.ID, "count", len(out))
	return connect.NewResponse(&api.ListExpensesResponse{Expenses: out}), nil
}

// UpdateExpense applies the set fields. Split details are recomputed when
// the amount, category, split type or shares change; without new shares a
// custom or percentage split reuses the stored ones.
func (s *ExpenseService) UpdateExpense(ctx context.Context, req *connect.Request[api.UpdateExpenseRequest]) (*connect.Response[api.UpdateExpenseResponse], error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}

	s.logger.Info("UpdateExpense request received", "expense_id", req.Msg.ExpenseID)

	expense, group, err := s.expenseForMember(ctx, req.Msg.ExpenseID, userID)
	if err != nil {
		return nil, err
	}

	msg := req.Msg
	resplit := len(msg.Shares) > 0

	if msg.Description != nil {
		description := strings.TrimSpace(*msg.Description)
		if description == "" {
			return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("description required"))
		}
		expense.Description = description
	}
	if msg.PaidBy != nil && *msg.PaidBy != expense.PaidBy {
		if err := validatePayerID(*msg.PaidBy, group); err != nil {
			return nil, connect.NewError(connect.CodeInvalidArgument, err)
		}
		expense.PaidBy = *msg.PaidBy
	}
	if msg.Category != nil {
		category, err := parseCategory(*msg.Category)
		if err != nil {
			return nil, connect.NewError(connect.CodeInvalidArgument, err)
		}
		resplit = resplit || category != expense.Category
		expense.Category = category
	}
	if msg.Amount != nil {
		amount := fromFloat(*msg.Amount)
		resplit = resplit || !amount.Equal(expense.Amount)
		expense.Amount = amount
	}

	shares := sharesFromAPI(msg.Shares)
	reused := false
	if msg.SplitType != nil && *msg.SplitType != expense.SplitType {
		resplit = true
		expense.SplitType = *msg.SplitType
	} else if len(shares) == 0 {
		shares = storedShares(expense)
		reused = calculator.SplitType(expense.SplitType) != calculator.SplitEqual
	}

	if resplit {
		if gone := formerMembers(shares, group); reused && len(gone) > 0 {
			s.logger.Warn("UpdateExpense needs new shares", "expense_id", expense.ID, "former_members", gone)
			return nil, connect.NewError(connect.CodeFailedPrecondition, fmt.Errorf(
				"%w: %s; send new shares", errFormerMembers, strings.Join(gone, ", ")))
		}

		computed, err := split(group, expense.Amount, expense.SplitType, shares)
		if err != nil {
			s.logger.Warn("UpdateExpense split rejected", "expense_id", expense.ID, "error", err)
			return nil, splitError(err)
		}
		expense.SplitDetails = sharesToDetails(computed)
	}

	if err := s.store.UpdateExpense(ctx, expense); err != nil {
		s.logger.Error("UpdateExpense failed", "expense_id", expense.ID, "error", err)
		return nil, storeError(err)
	}

	s.metrics.ExpenseWritten("updated")
	s.publish(ctx, events.ExpenseUpdated, expense, userID)

	s.logger.Info("Expense updated", "expense_id", expense.ID, "resplit", resplit)
	return connect.NewResponse(&api.UpdateExpenseResponse{Expense: expenseToAPI(expense)}), nil
}

// DeleteExpense removes an expense from one of the caller's groups.
func (s *ExpenseService) DeleteExpense(ctx context.Context, req *connect.Request[api.DeleteExpenseRequest]) (*connect.Response[api.DeleteExpenseResponse], error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}

	expense, _, err := s.expenseForMember(ctx, req.Msg.ExpenseID, userID)
	if err != nil {
		return nil, err
	}

	if err := s.store.DeleteExpense(ctx, expense.ID); err != nil {
		s.logger.Error("DeleteExpense failed", "expense_id", expense.ID, "error", err)
		return nil, storeError(err)
	}

	s.metrics.ExpenseWritten("deleted")
	s.publish(ctx, events.ExpenseDeleted, expense, userID)

	s.logger.Info("Expense deleted", "expense_id", expense.ID)
	return connect.NewResponse(&api.DeleteExpenseResponse{}), nil
}
