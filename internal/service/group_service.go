package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"connectrpc.com/connect"

	"github.com/mmynk/hisaab/internal/auth"
	"github.com/mmynk/hisaab/internal/calculator"
	"github.com/mmynk/hisaab/internal/metrics"
	"github.com/mmynk/hisaab/internal/models"
	"github.com/mmynk/hisaab/internal/storage"
	"github.com/mmynk/hisaab/pkg/api"
	"github.com/mmynk/hisaab/pkg/api/apiconnect"
)

// AllSettledMessage is returned by GetSettlements for a group without expenses.
const AllSettledMessage = "All settled up"

// GroupService implements the Connect GroupService
type GroupService struct {
	apiconnect.UnimplementedGroupServiceHandler
	store   storage.Store
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewGroupService creates a new GroupService with the given storage backend.
// m may be nil.
func NewGroupService(store storage.Store, m *metrics.Metrics, logger *slog.Logger) *GroupService {
	return &GroupService{store: store, metrics: m, logger: logger}
}

// resolveUsers loads the users behind the given IDs.
func (s *GroupService) resolveUsers(ctx context.Context, ids []string) (map[string]*models.User, error) {
	users, err := s.store.GetUsersByIDs(ctx, ids)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return users, nil
}

func (s *GroupService) groupResponse(ctx context.Context, group *models.Group) (*api.Group, error) {
	users, err := s.resolveUsers(ctx, group.MemberIDs())
	if err != nil {
		return nil, err
	}
	return groupToAPI(group, users), nil
}

// CreateGroup creates a new group with the caller as creator.
func (s *GroupService) CreateGroup(ctx context.Context, req *connect.Request[api.CreateGroupRequest]) (*connect.Response[api.CreateGroupResponse], error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}

	s.logger.Info("CreateGroup request received",
		"name", req.Msg.Name,
		"members_count", len(req.Msg.MemberIDs),
	)

	name := strings.TrimSpace(req.Msg.Name)
	if name == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("group name required"))
	}

	category := models.GroupOther
	if req.Msg.Category != "" {
		category = models.GroupCategory(req.Msg.Category)
		if !category.Valid() {
			return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("invalid group category %q", req.Msg.Category))
		}
	}

	members := []string{userID}
	for _, id := range req.Msg.MemberIDs {
		if id != "" && !slices.Contains(members, id) {
			members = append(members, id)
		}
	}
	users, err := s.resolveUsers(ctx, members)
	if err != nil {
		return nil, err
	}
	for _, id := range members[1:] {
		if _, ok := users[id]; !ok {
			return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("%w: %s", errUnknownMember, id))
		}
	}

	group := &models.Group{
		Name:        name,
		Description: strings.TrimSpace(req.Msg.Description),
		Category:    category,
		CreatorID:   userID,
		Members:     members,
	}

	// Save to storage (generates ID and CreatedAt)
	if err := s.store.CreateGroup(ctx, group); err != nil {
		s.logger.Error("CreateGroup failed", "error", err)
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	s.logger.Info("Group created", "group_id", group.ID, "creator_id", userID)

	return connect.NewResponse(&api.CreateGroupResponse{Group: groupToAPI(group, users)}), nil
}

// GetGroup retrieves a group the caller belongs to.
func (s *GroupService) GetGroup(ctx context.Context, req *connect.Request[api.GetGroupRequest]) (*connect.Response[api.GetGroupResponse], error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}

	group, err := memberGroup(ctx, s.store, req.Msg.GroupID, userID)
	if err != nil {
		s.logger.Warn("GetGroup failed", "group_id", req.Msg.GroupID, "error", err)
		return nil, err
	}

	out, err := s.groupResponse(ctx, group)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&api.GetGroupResponse{Group: out}), nil
}

// ListGroups retrieves the groups the caller belongs to, newest first.
func (s *GroupService) ListGroups(ctx context.Context, req *connect.Request[api.ListGroupsRequest]) (*connect.Response[api.ListGroupsResponse], error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}

	groups, err := s.store.ListGroupsForUser(ctx, userID)
	if err != nil {
		s.logger.Error("ListGroups failed", "error", err)
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	var ids []string
	for _, g := range groups {
		ids = append(ids, g.MemberIDs()...)
	}
	users, err := s.resolveUsers(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]*api.Group, len(groups))
	for i, g := range groups {
		out[i] = groupToAPI(g, users)
	}

	s.logger.Info("ListGroups successful", "user_id", userID, "count", len(groups))
	return connect.NewResponse(&api.ListGroupsResponse{Groups: out}), nil
}

// AddMember adds a registered user, found by email, to the group.
func (s *GroupService) AddMember(ctx context.Context, req *connect.Request[api.AddMemberRequest]) (*connect.Response[api.AddMemberResponse], error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}

	group, err := memberGroup(ctx, s.store, req.Msg.GroupID, userID)
	if err != nil {
		return nil, err
	}

	email := auth.NormalizeEmail(req.Msg.Email)
	if email == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("email required"))
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("no user registered with email %s", email))
		}
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	if group.HasMember(user.ID) {
		return nil, connect.NewError(connect.CodeAlreadyExists, errors.New("user is already a member"))
	}

	if err := s.store.AddGroupMember(ctx, group.ID, user.ID); err != nil {
		s.logger.Error("AddMember failed", "group_id", group.ID, "error", err)
		return nil, storeError(err)
	}
	group.Members = append(group.Members, user.ID)

	s.logger.Info("Member added", "group_id", group.ID, "user_id", user.ID, "added_by", userID)

	out, err := s.groupResponse(ctx, group)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&api.AddMemberResponse{Group: out}), nil
}

// RemoveMember removes a member. The creator may remove anyone but
// themselves; other members may only remove themselves. Existing expenses
// are kept, and the removed member drops out of future settlements.
func (s *GroupService) RemoveMember(ctx context.Context, req *connect.Request[api.RemoveMemberRequest]) (*connect.Response[api.RemoveMemberResponse], error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}

	group, err := memberGroup(ctx, s.store, req.Msg.GroupID, userID)
	if err != nil {
		return nil, err
	}

	target := req.Msg.UserID
	switch {
	case target == "":
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("user_id required"))
	case target == group.CreatorID:
		return nil, connect.NewError(connect.CodeFailedPrecondition, errors.New("the group creator cannot be removed"))
	case userID != group.CreatorID && userID != target:
		return nil, connect.NewError(connect.CodePermissionDenied, errors.New("only the group creator can remove other members"))
	case !group.HasMember(target):
		return nil, connect.NewError(connect.CodeNotFound, errors.New("user is not a member"))
	}

	if err := s.store.RemoveGroupMember(ctx, group.ID, target); err != nil {
		s.logger.Error("RemoveMember failed", "group_id", group.ID, "error", err)
		return nil, storeError(err)
	}
	group.Members = slices.DeleteFunc(group.Members, func(id string) bool { return id == target })

	s.logger.Info("Member removed", "group_id", group.ID, "user_id", target, "removed_by", userID)

	out, err := s.groupResponse(ctx, group)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&api.RemoveMemberResponse{Group: out}), nil
}

// UpdateGroup renames a group or changes its description or category. Any
// member may edit these.
func (s *GroupService) UpdateGroup(ctx context.Context, req *connect.Request[api.UpdateGroupRequest]) (*connect.Response[api.UpdateGroupResponse], error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}

	s.logger.Info("UpdateGroup request received", "group_id", req.Msg.GroupID)

	group, err := memberGroup(ctx, s.store, req.Msg.GroupID, userID)
	if err != nil {
		return nil, err
	}

	msg := req.Msg
	if msg.Name != nil {
		name := strings.TrimSpace(*msg.Name)
		if name == "" {
			return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("group name required"))
		}
		group.Name = name
	}
	if msg.Description != nil {
		group.Description = strings.TrimSpace(*msg.Description)
	}
	if msg.Category != nil {
		category := models.GroupCategory(*msg.Category)
		if !category.Valid() {
			return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("invalid group category %q", *msg.Category))
		}
		group.Category = category
	}

	if err := s.store.UpdateGroup(ctx, group); err != nil {
		s.logger.Error("UpdateGroup failed", "group_id", group.ID, "error", err)
		return nil, storeError(err)
	}

	out, err := s.groupResponse(ctx, group)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Group updated", "group_id", group.ID)
	return connect.NewResponse(&api.UpdateGroupResponse{Group: out}), nil
}

// DeleteGroup removes a group and its expenses. Only the creator may do so.
func (s *GroupService) DeleteGroup(ctx context.Context, req *connect.Request[api.DeleteGroupRequest]) (*connect.Response[api.DeleteGroupResponse], error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}

	s.logger.Info("DeleteGroup request received", "group_id", req.Msg.GroupID)

	group, err := memberGroup(ctx, s.store, req.Msg.GroupID, userID)
	if err != nil {
		return nil, err
	}
	if group.CreatorID != userID {
		return nil, connect.NewError(connect.CodePermissionDenied, errors.New("only the group creator can delete the group"))
	}

	if err := s.store.DeleteGroup(ctx, group.ID); err != nil {
		s.logger.Error("DeleteGroup failed", "error", err)
		return nil, storeError(err)
	}

	s.logger.Info("Group deleted", "group_id", group.ID)
	return connect.NewResponse(&api.DeleteGroupResponse{}), nil
}

// GetSettlements derives who owes whom from the group's current members and
// expenses. Nothing is persisted.
func (s *GroupService) GetSettlements(ctx context.Context, req *connect.Request[api.GetSettlementsRequest]) (*connect.Response[api.GetSettlementsResponse], error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}

	groupID := req.Msg.GroupID
	s.logger.Info("GetSettlements request received", "group_id", groupID)

	group, err := memberGroup(ctx, s.store, groupID, userID)
	if err != nil {
		s.logger.Warn("GetSettlements failed", "group_id", groupID, "error", err)
		return nil, err
	}

	expenses, err := s.store.ListExpensesByGroup(ctx, group.ID)
	if err != nil {
		s.logger.Error("GetSettlements failed - could not list expenses", "group_id", groupID, "error", err)
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	if len(expenses) == 0 {
		return connect.NewResponse(&api.GetSettlementsResponse{
			AllSettled:  true,
			Message:     AllSettledMessage,
			Settlements: []*api.Settlement{},
			Summary:     map[string]*api.MemberSummary{},
		}), nil
	}

	ids := group.MemberIDs()
	users, err := s.resolveUsers(ctx, ids)
	if err != nil {
		return nil, err
	}

	result := calculator.Settle(calculatorMembers(ids, users), calculatorExpenses(expenses))
	unsettled := result.Unsettled()
	s.metrics.ObserveSettlement(len(result.Settlements), len(unsettled))

	if len(unsettled) > 0 {
		s.logger.Warn("Residual balances after matching",
			"group_id", groupID,
			"unsettled_count", len(unsettled),
		)
	}

	s.logger.Info("GetSettlements successful",
		"group_id", groupID,
		"expenses_count", len(expenses),
		"members_count", len(ids),
		"settlements_count", len(result.Settlements),
	)

	return connect.NewResponse(SettlementResponse(result)), nil
}
