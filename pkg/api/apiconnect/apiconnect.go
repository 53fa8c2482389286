// Package apiconnect wires the Hisaab services to Connect handlers and
// clients. Every handler and client speaks api.JSONCodec.
package apiconnect

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"connectrpc.com/connect"

	"github.com/mmynk/hisaab/pkg/api"
)

const (
	AuthServiceName      = "hisaab.v1.AuthService"
	GroupServiceName     = "hisaab.v1.GroupService"
	ExpenseServiceName   = "hisaab.v1.ExpenseService"
	AnalyticsServiceName = "hisaab.v1.AnalyticsService"
)

// Procedure paths, as mounted on the HTTP mux.
const (
	AuthServiceRegisterProcedure       = "/" + AuthServiceName + "/Register"
	AuthServiceLoginProcedure          = "/" + AuthServiceName + "/Login"
	AuthServiceGetCurrentUserProcedure = "/" + AuthServiceName + "/GetCurrentUser"

	GroupServiceCreateGroupProcedure    = "/" + GroupServiceName + "/CreateGroup"
	GroupServiceGetGroupProcedure       = "/" + GroupServiceName + "/GetGroup"
	GroupServiceListGroupsProcedure     = "/" + GroupServiceName + "/ListGroups"
	GroupServiceUpdateGroupProcedure    = "/" + GroupServiceName + "/UpdateGroup"
	GroupServiceAddMemberProcedure      = "/" + GroupServiceName + "/AddMember"
	GroupServiceRemoveMemberProcedure   = "/" + GroupServiceName + "/RemoveMember"
	GroupServiceDeleteGroupProcedure    = "/" + GroupServiceName + "/DeleteGroup"
	GroupServiceGetSettlementsProcedure = "/" + GroupServiceName + "/GetSettlements"

	ExpenseServiceCalculateSplitProcedure = "/" + ExpenseServiceName + "/CalculateSplit"
	ExpenseServiceCreateExpenseProcedure  = "/" + ExpenseServiceName + "/CreateExpense"
	ExpenseServiceGetExpenseProcedure     = "/" + ExpenseServiceName + "/GetExpense"
	ExpenseServiceListExpensesProcedure   = "/" + ExpenseServiceName + "/ListExpenses"
	ExpenseServiceUpdateExpenseProcedure  = "/" + ExpenseServiceName + "/UpdateExpense"
	ExpenseServiceDeleteExpenseProcedure  = "/" + ExpenseServiceName + "/DeleteExpense"

	AnalyticsServiceSetMonthlyBudgetProcedure  = "/" + AnalyticsServiceName + "/SetMonthlyBudget"
	AnalyticsServiceGetBudgetStatusProcedure   = "/" + AnalyticsServiceName + "/GetBudgetStatus"
	AnalyticsServiceGetMonthlySummaryProcedure = "/" + AnalyticsServiceName + "/GetMonthlySummary"
	AnalyticsServiceGetYearlySummaryProcedure  = "/" + AnalyticsServiceName + "/GetYearlySummary"
)

// PublicProcedures need no bearer token.
var PublicProcedures = []string{
	AuthServiceRegisterProcedure,
	AuthServiceLoginProcedure,
}

// IsAPIPath reports whether path belongs to one of the RPC services.
func IsAPIPath(path string) bool {
	return strings.HasPrefix(path, "/hisaab.v1.")
}

// router dispatches on the exact procedure path.
type router map[string]http.Handler

func (r router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if h, ok := r[req.URL.Path]; ok {
		h.ServeHTTP(w, req)
		return
	}
	http.NotFound(w, req)
}

func handlerOptions(opts []connect.HandlerOption) []connect.HandlerOption {
	return append([]connect.HandlerOption{connect.WithCodec(api.JSONCodec{})}, opts...)
}

func clientOptions(opts []connect.ClientOption) []connect.ClientOption {
	return append([]connect.ClientOption{connect.WithCodec(api.JSONCodec{})}, opts...)
}

func unimplemented(procedure string) error {
	return connect.NewError(connect.CodeUnimplemented, fmt.Errorf("%s is not implemented", strings.TrimPrefix(procedure, "/")))
}

// AuthService

type AuthServiceHandler interface {
	Register(context.Context, *connect.Request[api.RegisterRequest]) (*connect.Response[api.RegisterResponse], error)
	Login(context.Context, *connect.Request[api.LoginRequest]) (*connect.Response[api.LoginResponse], error)
	GetCurrentUser(context.Context, *connect.Request[api.GetCurrentUserRequest]) (*connect.Response[api.GetCurrentUserResponse], error)
}

func NewAuthServiceHandler(svc AuthServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = handlerOptions(opts)
	return "/" + AuthServiceName + "/", router{
		AuthServiceRegisterProcedure:       connect.NewUnaryHandler(AuthServiceRegisterProcedure, svc.Register, opts...),
		AuthServiceLoginProcedure:          connect.NewUnaryHandler(AuthServiceLoginProcedure, svc.Login, opts...),
		AuthServiceGetCurrentUserProcedure: connect.NewUnaryHandler(AuthServiceGetCurrentUserProcedure, svc.GetCurrentUser, opts...),
	}
}

type UnimplementedAuthServiceHandler struct{}

func (UnimplementedAuthServiceHandler) Register(context.Context, *connect.Request[api.RegisterRequest]) (*connect.Response[api.RegisterResponse], error) {
	return nil, unimplemented(AuthServiceRegisterProcedure)
}

func (UnimplementedAuthServiceHandler) Login(context.Context, *connect.Request[api.LoginRequest]) (*connect.Response[api.LoginResponse], error) {
	return nil, unimplemented(AuthServiceLoginProcedure)
}

func (UnimplementedAuthServiceHandler) GetCurrentUser(context.Context, *connect.Request[api.GetCurrentUserRequest]) (*connect.Response[api.GetCurrentUserResponse], error) {
	return nil, unimplemented(AuthServiceGetCurrentUserProcedure)
}

type AuthServiceClient struct {
	register       *connect.Client[api.RegisterRequest, api.RegisterResponse]
	login          *connect.Client[api.LoginRequest, api.LoginResponse]
	getCurrentUser *connect.Client[api.GetCurrentUserRequest, api.GetCurrentUserResponse]
}

func NewAuthServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *AuthServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = clientOptions(opts)
	return &AuthServiceClient{
		register:       connect.NewClient[api.RegisterRequest, api.RegisterResponse](httpClient, baseURL+AuthServiceRegisterProcedure, opts...),
		login:          connect.NewClient[api.LoginRequest, api.LoginResponse](httpClient, baseURL+AuthServiceLoginProcedure, opts...),
		getCurrentUser: connect.NewClient[api.GetCurrentUserRequest, api.GetCurrentUserResponse](httpClient, baseURL+AuthServiceGetCurrentUserProcedure, opts...),
	}
}

func (c *AuthServiceClient) Register(ctx context.Context, req *connect.Request[api.RegisterRequest]) (*connect.Response[api.RegisterResponse], error) {
	return c.register.CallUnary(ctx, req)
}

func (c *AuthServiceClient) Login(ctx context.Context, req *connect.Request[api.LoginRequest]) (*connect.Response[api.LoginResponse], error) {
	return c.login.CallUnary(ctx, req)
}

func (c *AuthServiceClient) GetCurrentUser(ctx context.Context, req *connect.Request[api.GetCurrentUserRequest]) (*connect.Response[api.GetCurrentUserResponse], error) {
	return c.getCurrentUser.CallUnary(ctx, req)
}

// GroupService

type GroupServiceHandler interface {
	CreateGroup(context.Context, *connect.Request[api.CreateGroupRequest]) (*connect.Response[api.CreateGroupResponse], error)
	GetGroup(context.Context, *connect.Request[api.GetGroupRequest]) (*connect.Response[api.GetGroupResponse], error)
	ListGroups(context.Context, *connect.Request[api.ListGroupsRequest]) (*connect.Response[api.ListGroupsResponse], error)
	UpdateGroup(context.Context, *connect.Request[api.UpdateGroupRequest]) (*connect.Response[api.UpdateGroupResponse], error)
	AddMember(context.Context, *connect.Request[api.AddMemberRequest]) (*connect.Response[api.AddMemberResponse], error)
	RemoveMember(context.Context, *connect.Request[api.RemoveMemberRequest]) (*connect.Response[api.RemoveMemberResponse], error)
	DeleteGroup(context.Context, *connect.Request[api.DeleteGroupRequest]) (*connect.Response[api.DeleteGroupResponse], error)
	GetSettlements(context.Context, *connect.Request[api.GetSettlementsRequest]) (*connect.Response[api.GetSettlementsResponse], error)
}

func NewGroupServiceHandler(svc GroupServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = handlerOptions(opts)
	return "/" + GroupServiceName + "/", router{
		GroupServiceCreateGroupProcedure:    connect.NewUnaryHandler(GroupServiceCreateGroupProcedure, svc.CreateGroup, opts...),
		GroupServiceGetGroupProcedure:       connect.NewUnaryHandler(GroupServiceGetGroupProcedure, svc.GetGroup, opts...),
		GroupServiceListGroupsProcedure:     connect.NewUnaryHandler(GroupServiceListGroupsProcedure, svc.ListGroups, opts...),
		GroupServiceUpdateGroupProcedure:    connect.NewUnaryHandler(GroupServiceUpdateGroupProcedure, svc.UpdateGroup, opts...),
		GroupServiceAddMemberProcedure:      connect.NewUnaryHandler(GroupServiceAddMemberProcedure, svc.AddMember, opts...),
		GroupServiceRemoveMemberProcedure:   connect.NewUnaryHandler(GroupServiceRemoveMemberProcedure, svc.RemoveMember, opts...),
		GroupServiceDeleteGroupProcedure:    connect.NewUnaryHandler(GroupServiceDeleteGroupProcedure, svc.DeleteGroup, opts...),
		GroupServiceGetSettlementsProcedure: connect.NewUnaryHandler(GroupServiceGetSettlementsProcedure, svc.GetSettlements, opts...),
	}
}

type UnimplementedGroupServiceHandler struct{}

func (UnimplementedGroupServiceHandler) CreateGroup(context.Context, *connect.Request[api.CreateGroupRequest]) (*connect.Response[api.CreateGroupResponse], error) {
	return nil, unimplemented(GroupServiceCreateGroupProcedure)
}

func (UnimplementedGroupServiceHandler) GetGroup(context.Context, *connect.Request[api.GetGroupRequest]) (*connect.Response[api.GetGroupResponse], error) {
	return nil, unimplemented(GroupServiceGetGroupProcedure)
}

func (UnimplementedGroupServiceHandler) ListGroups(context.Context, *connect.Request[api.ListGroupsRequest]) (*connect.Response[api.ListGroupsResponse], error) {
	return nil, unimplemented(GroupServiceListGroupsProcedure)
}

func (UnimplementedGroupServiceHandler) UpdateGroup(context.Context, *connect.Request[api.UpdateGroupRequest]) (*connect.Response[api.UpdateGroupResponse], error) {
	return nil, unimplemented(GroupServiceUpdateGroupProcedure)
}

func (UnimplementedGroupServiceHandler) AddMember(context.Context, *connect.Request[api.AddMemberRequest]) (*connect.Response[api.AddMemberResponse], error) {
	return nil, unimplemented(GroupServiceAddMemberProcedure)
}

func (UnimplementedGroupServiceHandler) RemoveMember(context.Context, *connect.Request[api.RemoveMemberRequest]) (*connect.Response[api.RemoveMemberResponse], error) {
	return nil, unimplemented(GroupServiceRemoveMemberProcedure)
}

func (UnimplementedGroupServiceHandler) DeleteGroup(context.Context, *connect.Request[api.DeleteGroupRequest]) (*connect.Response[api.DeleteGroupResponse], error) {
	return nil, unimplemented(GroupServiceDeleteGroupProcedure)
}

func (UnimplementedGroupServiceHandler) GetSettlements(context.Context, *connect.Request[api.GetSettlementsRequest]) (*connect.Response[api.GetSettlementsResponse], error) {
	return nil, unimplemented(GroupServiceGetSettlementsProcedure)
}

type GroupServiceClient struct {
	createGroup    *connect.Client[api.CreateGroupRequest, api.CreateGroupResponse]
	getGroup       *connect.Client[api.GetGroupRequest, api.GetGroupResponse]
	listGroups     *connect.Client[api.ListGroupsRequest, api.ListGroupsResponse]
	updateGroup    *connect.Client[api.UpdateGroupRequest, api.UpdateGroupResponse]
	addMember      *connect.Client[api.AddMemberRequest, api.AddMemberResponse]
	removeMember   *connect.Client[api.RemoveMemberRequest, api.RemoveMemberResponse]
	deleteGroup    *connect.Client[api.DeleteGroupRequest, api.DeleteGroupResponse]
	getSettlements *connect.Client[api.GetSettlementsRequest, api.GetSettlementsResponse]
}

func NewGroupServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *GroupServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = clientOptions(opts)
	return &GroupServiceClient{
		createGroup:    connect.NewClient[api.CreateGroupRequest, api.CreateGroupResponse](httpClient, baseURL+GroupServiceCreateGroupProcedure, opts...),
		getGroup:       connect.NewClient[api.GetGroupRequest, api.GetGroupResponse](httpClient, baseURL+GroupServiceGetGroupProcedure, opts...),
		listGroups:     connect.NewClient[api.ListGroupsRequest, api.ListGroupsResponse](httpClient, baseURL+GroupServiceListGroupsProcedure, opts...),
		updateGroup:    connect.NewClient[api.UpdateGroupRequest, api.UpdateGroupResponse](httpClient, baseURL+GroupServiceUpdateGroupProcedure, opts...),
		addMember:      connect.NewClient[api.AddMemberRequest, api.AddMemberResponse](httpClient, baseURL+GroupServiceAddMemberProcedure, opts...),
		removeMember:   connect.NewClient[api.RemoveMemberRequest, api.RemoveMemberResponse](httpClient, baseURL+GroupServiceRemoveMemberProcedure, opts...),
		deleteGroup:    connect.NewClient[api.DeleteGroupRequest, api.DeleteGroupResponse](httpClient, baseURL+GroupServiceDeleteGroupProcedure, opts...),
		getSettlements: connect.NewClient[api.GetSettlementsRequest, api.GetSettlementsResponse](httpClient, baseURL+GroupServiceGetSettlementsProcedure, opts...),
	}
}

func (c *GroupServiceClient) CreateGroup(ctx context.Context, req *connect.Request[api.CreateGroupRequest]) (*connect.Response[api.CreateGroupResponse], error) {
	return c.createGroup.CallUnary(ctx, req)
}

func (c *GroupServiceClient) GetGroup(ctx context.Context, req *connect.Request[api.GetGroupRequest]) (*connect.Response[api.GetGroupResponse], error) {
	return c.getGroup.CallUnary(ctx, req)
}

func (c *GroupServiceClient) ListGroups(ctx context.Context, req *connect.Request[api.ListGroupsRequest]) (*connect.Response[api.ListGroupsResponse], error) {
	return c.listGroups.CallUnary(ctx, req)
}

func (c *GroupServiceClient) UpdateGroup(ctx context.Context, req *connect.Request[api.UpdateGroupRequest]) (*connect.Response[api.UpdateGroupResponse], error) {
	return c.updateGroup.CallUnary(ctx, req)
}

func (c *GroupServiceClient) AddMember(ctx context.Context, req *connect.Request[api.AddMemberRequest]) (*connect.Response[api.AddMemberResponse], error) {
	return c.addMember.CallUnary(ctx, req)
}

func (c *GroupServiceClient) RemoveMember(ctx context.Context, req *connect.Request[api.RemoveMemberRequest]) (*connect.Response[api.RemoveMemberResponse], error) {
	return c.removeMember.CallUnary(ctx, req)
}

func (c *GroupServiceClient) DeleteGroup(ctx context.Context, req *connect.Request[api.DeleteGroupRequest]) (*connect.Response[api.DeleteGroupResponse], error) {
	return c.deleteGroup.CallUnary(ctx, req)
}

func (c *GroupServiceClient) GetSettlements(ctx context.Context, req *connect.Request[api.GetSettlementsRequest]) (*connect.Response[api.GetSettlementsResponse], error) {
	return c.getSettlements.CallUnary(ctx, req)
}

// ExpenseService

type ExpenseServiceHandler interface {
	CalculateSplit(context.Context, *connect.Request[api.CalculateSplitRequest]) (*connect.Response[api.CalculateSplitResponse], error)
	CreateExpense(context.Context, *connect.Request[api.CreateExpenseRequest]) (*connect.Response[api.CreateExpenseResponse], error)
	GetExpense(context.Context, *connect.Request[api.GetExpenseRequest]) (*connect.Response[api.GetExpenseResponse], error)
	ListExpenses(context.Context, *connect.Request[api.ListExpensesRequest]) (*connect.Response[api.ListExpensesResponse], error)
	UpdateExpense(context.Context, *connect.Request[api.UpdateExpenseRequest]) (*connect.Response[api.UpdateExpenseResponse], error)
	DeleteExpense(context.Context, *connect.Request[api.DeleteExpenseRequest]) (*connect.Response[api.DeleteExpenseResponse], error)
}

func NewExpenseServiceHandler(svc ExpenseServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = handlerOptions(opts)
	return "/" + ExpenseServiceName + "/", router{
		ExpenseServiceCalculateSplitProcedure: connect.NewUnaryHandler(ExpenseServiceCalculateSplitProcedure, svc.CalculateSplit, opts...),
		ExpenseServiceCreateExpenseProcedure:  connect.NewUnaryHandler(ExpenseServiceCreateExpenseProcedure, svc.CreateExpense, opts...),
		ExpenseServiceGetExpenseProcedure:     connect.NewUnaryHandler(ExpenseServiceGetExpenseProcedure, svc.GetExpense, opts...),
		ExpenseServiceListExpensesProcedure:   connect.NewUnaryHandler(ExpenseServiceListExpensesProcedure, svc.ListExpenses, opts...),
		ExpenseServiceUpdateExpenseProcedure:  connect.NewUnaryHandler(ExpenseServiceUpdateExpenseProcedure, svc.UpdateExpense, opts...),
		ExpenseServiceDeleteExpenseProcedure:  connect.NewUnaryHandler(ExpenseServiceDeleteExpenseProcedure, svc.DeleteExpense, opts...),
	}
}

type UnimplementedExpenseServiceHandler struct{}

func (UnimplementedExpenseServiceHandler) CalculateSplit(context.Context, *connect.Request[api.CalculateSplitRequest]) (*connect.Response[api.CalculateSplitResponse], error) {
	return nil, unimplemented(ExpenseServiceCalculateSplitProcedure)
}

func (UnimplementedExpenseServiceHandler) CreateExpense(context.Context, *connect.Request[api.CreateExpenseRequest]) (*connect.Response[api.CreateExpenseResponse], error) {
	return nil, unimplemented(ExpenseServiceCreateExpenseProcedure)
}

func (UnimplementedExpenseServiceHandler) GetExpense(context.Context, *connect.Request[api.GetExpenseRequest]) (*connect.Response[api.GetExpenseResponse], error) {
	return nil, unimplemented(ExpenseServiceGetExpenseProcedure)
}

func (UnimplementedExpenseServiceHandler) ListExpenses(context.Context, *connect.Request[api.ListExpensesRequest]) (*connect.Response[api.ListExpensesResponse], error) {
	return nil, unimplemented(ExpenseServiceListExpensesProcedure)
}

func (UnimplementedExpenseServiceHandler) UpdateExpense(context.Context, *connect.Request[api.UpdateExpenseRequest]) (*connect.Response[api.UpdateExpenseResponse], error) {
	return nil, unimplemented(ExpenseServiceUpdateExpenseProcedure)
}

func (UnimplementedExpenseServiceHandler) DeleteExpense(context.Context, *connect.Request[api.DeleteExpenseRequest]) (*connect.Response[api.DeleteExpenseResponse], error) {
	return nil, unimplemented(ExpenseServiceDeleteExpenseProcedure)
}

type ExpenseServiceClient struct {
	calculateSplit *connect.Client[api.CalculateSplitRequest, api.CalculateSplitResponse]
	createExpense  *connect.Client[api.CreateExpenseRequest, api.CreateExpenseResponse]
	getExpense     *connect.Client[api.GetExpenseRequest, api.GetExpenseResponse]
	listExpenses   *connect.Client[api.ListExpensesRequest, api.ListExpensesResponse]
	updateExpense  *connect.Client[api.UpdateExpenseRequest, api.UpdateExpenseResponse]
	deleteExpense  *connect.Client[api.DeleteExpenseRequest, api.DeleteExpenseResponse]
}

func NewExpenseServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *ExpenseServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = clientOptions(opts)
	return &ExpenseServiceClient{
		calculateSplit: connect.NewClient[api.CalculateSplitRequest, api.CalculateSplitResponse](httpClient, baseURL+ExpenseServiceCalculateSplitProcedure, opts...),
		createExpense:  connect.NewClient[api.CreateExpenseRequest, api.CreateExpenseResponse](httpClient, baseURL+ExpenseServiceCreateExpenseProcedure, opts...),
		getExpense:     connect.NewClient[api.GetExpenseRequest, api.GetExpenseResponse](httpClient, baseURL+ExpenseServiceGetExpenseProcedure, opts...),
		listExpenses:   connect.NewClient[api.ListExpensesRequest, api.ListExpensesResponse](httpClient, baseURL+ExpenseServiceListExpensesProcedure, opts...),
		updateExpense:  connect.NewClient[api.UpdateExpenseRequest, api.UpdateExpenseResponse](httpClient, baseURL+ExpenseServiceUpdateExpenseProcedure, opts...),
		deleteExpense:  connect.NewClient[api.DeleteExpenseRequest, api.DeleteExpenseResponse](httpClient, baseURL+ExpenseServiceDeleteExpenseProcedure, opts...),
	}
}

func (c *ExpenseServiceClient) CalculateSplit(ctx context.Context, req *connect.Request[api.CalculateSplitRequest]) (*connect.Response[api.CalculateSplitResponse], error) {
	return c.calculateSplit.CallUnary(ctx, req)
}

func (c *ExpenseServiceClient) CreateExpense(ctx context.Context, req *connect.Request[api.CreateExpenseRequest]) (*connect.Response[api.CreateExpenseResponse], error) {
	return c.createExpense.CallUnary(ctx, req)
}

func (c *ExpenseServiceClient) GetExpense(ctx context.Context, req *connect.Request[api.GetExpenseRequest]) (*connect.Response[api.GetExpenseResponse], error) {
	return c.getExpense.CallUnary(ctx, req)
}

func (c *ExpenseServiceClient) ListExpenses(ctx context.Context, req *connect.Request[api.ListExpensesRequest]) (*connect.Response[api.ListExpensesResponse], error) {
	return c.listExpenses.CallUnary(ctx, req)
}

func (c *ExpenseServiceClient) UpdateExpense(ctx context.Context, req *connect.Request[api.UpdateExpenseRequest]) (*connect.Response[api.UpdateExpenseResponse], error) {
	return c.updateExpense.CallUnary(ctx, req)
}

func (c *ExpenseServiceClient) DeleteExpense(ctx context.Context, req *connect.Request[api.DeleteExpenseRequest]) (*connect.Response[api.DeleteExpenseResponse], error) {
	return c.deleteExpense.CallUnary(ctx, req)
}

// AnalyticsService

type AnalyticsServiceHandler interface {
	SetMonthlyBudget(context.Context, *connect.Request[api.SetMonthlyBudgetRequest]) (*connect.Response[api.SetMonthlyBudgetResponse], error)
	GetBudgetStatus(context.Context, *connect.Request[api.GetBudgetStatusRequest]) (*connect.Response[api.GetBudgetStatusResponse], error)
	GetMonthlySummary(context.Context, *connect.Request[api.GetMonthlySummaryRequest]) (*connect.Response[api.GetMonthlySummaryResponse], error)
	GetYearlySummary(context.Context, *connect.Request[api.GetYearlySummaryRequest]) (*connect.Response[api.GetYearlySummaryResponse], error)
}

func NewAnalyticsServiceHandler(svc AnalyticsServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = handlerOptions(opts)
	return "/" + AnalyticsServiceName + "/", router{
		AnalyticsServiceSetMonthlyBudgetProcedure:  connect.NewUnaryHandler(AnalyticsServiceSetMonthlyBudgetProcedure, svc.SetMonthlyBudget, opts...),
		AnalyticsServiceGetBudgetStatusProcedure:   connect.NewUnaryHandler(AnalyticsServiceGetBudgetStatusProcedure, svc.GetBudgetStatus, opts...),
		AnalyticsServiceGetMonthlySummaryProcedure: connect.NewUnaryHandler(AnalyticsServiceGetMonthlySummaryProcedure, svc.GetMonthlySummary, opts...),
		AnalyticsServiceGetYearlySummaryProcedure:  connect.NewUnaryHandler(AnalyticsServiceGetYearlySummaryProcedure, svc.GetYearlySummary, opts...),
	}
}

type UnimplementedAnalyticsServiceHandler struct{}

func (UnimplementedAnalyticsServiceHandler) SetMonthlyBudget(context.Context, *connect.Request[api.SetMonthlyBudgetRequest]) (*connect.Response[api.SetMonthlyBudgetResponse], error) {
	return nil, unimplemented(AnalyticsServiceSetMonthlyBudgetProcedure)
}

func (UnimplementedAnalyticsServiceHandler) GetBudgetStatus(context.Context, *connect.Request[api.GetBudgetStatusRequest]) (*connect.Response[api.GetBudgetStatusResponse], error) {
	return nil, unimplemented(AnalyticsServiceGetBudgetStatusProcedure)
}

func (UnimplementedAnalyticsServiceHandler) GetMonthlySummary(context.Context, *connect.Request[api.GetMonthlySummaryRequest]) (*connect.Response[api.GetMonthlySummaryResponse], error) {
	return nil, unimplemented(AnalyticsServiceGetMonthlySummaryProcedure)
}

func (UnimplementedAnalyticsServiceHandler) GetYearlySummary(context.Context, *connect.Request[api.GetYearlySummaryRequest]) (*connect.Response[api.GetYearlySummaryResponse], error) {
	return nil, unimplemented(AnalyticsServiceGetYearlySummaryProcedure)
}

type AnalyticsServiceClient struct {
	setMonthlyBudget  *connect.Client[api.SetMonthlyBudgetRequest, api.SetMonthlyBudgetResponse]
	getBudgetStatus   *connect.Client[api.GetBudgetStatusRequest, api.GetBudgetStatusResponse]
	getMonthlySummary *connect.Client[api.GetMonthlySummaryRequest, api.GetMonthlySummaryResponse]
	getYearlySummary  *connect.Client[api.GetYearlySummaryRequest, api.GetYearlySummaryResponse]
}

func NewAnalyticsServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *AnalyticsServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = clientOptions(opts)
	return &AnalyticsServiceClient{
		setMonthlyBudget:  connect.NewClient[api.SetMonthlyBudgetRequest, api.SetMonthlyBudgetResponse](httpClient, baseURL+AnalyticsServiceSetMonthlyBudgetProcedure, opts...),
		getBudgetStatus:   connect.NewClient[api.GetBudgetStatusRequest, api.GetBudgetStatusResponse](httpClient, baseURL+AnalyticsServiceGetBudgetStatusProcedure, opts...),
		getMonthlySummary: connect.NewClient[api.GetMonthlySummaryRequest, api.GetMonthlySummaryResponse](httpClient, baseURL+AnalyticsServiceGetMonthlySummaryProcedure, opts...),
		getYearlySummary:  connect.NewClient[api.GetYearlySummaryRequest, api.GetYearlySummaryResponse](httpClient, baseURL+AnalyticsServiceGetYearlySummaryProcedure, opts...),
	}
}

func (c *AnalyticsServiceClient) SetMonthlyBudget(ctx context.Context, req *connect.Request[api.SetMonthlyBudgetRequest]) (*connect.Response[api.SetMonthlyBudgetResponse], error) {
	return c.setMonthlyBudget.CallUnary(ctx, req)
}

func (c *AnalyticsServiceClient) GetBudgetStatus(ctx context.Context, req *connect.Request[api.GetBudgetStatusRequest]) (*connect.Response[api.GetBudgetStatusResponse], error) {
	return c.getBudgetStatus.CallUnary(ctx, req)
}

func (c *AnalyticsServiceClient) GetMonthlySummary(ctx context.Context, req *connect.Request[api.GetMonthlySummaryRequest]) (*connect.Response[api.GetMonthlySummaryResponse], error) {
	return c.getMonthlySummary.CallUnary(ctx, req)
}

func (c *AnalyticsServiceClient) GetYearlySummary(ctx context.Context, req *connect.Request[api.GetYearlySummaryRequest]) (*connect.Response[api.GetYearlySummaryResponse], error) {
	return c.getYearlySummary.CallUnary(ctx, req)
}
