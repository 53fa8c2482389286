package api

// Amounts are float64 on the wire and rounded to two decimal places by the
// server. Timestamps are Unix seconds.

type User struct {
	ID            string   `json:"id"`
	Email         string   `json:"email"`
	DisplayName   string   `json:"displayName"`
	MonthlyBudget *float64 `json:"monthlyBudget,omitempty"`
	CreatedAt     int64    `json:"createdAt,omitempty"`
}

// Member is a participant as shown inside groups and settlements.
type Member struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Auth

type RegisterRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	Password    string `json:"password"`
}

type RegisterResponse struct {
	User  *User  `json:"user"`
	Token string `json:"token"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	User  *User  `json:"user"`
	Token string `json:"token"`
}

type GetCurrentUserRequest struct{}

type GetCurrentUserResponse struct {
	User *User `json:"user"`
}

// Groups

type Group struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Category    string    `json:"category"`
	CreatorID   string    `json:"creatorId"`
	Members     []*Member `json:"members"`
	CreatedAt   int64     `json:"createdAt"`
}

type CreateGroupRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Category    string   `json:"category,omitempty"`
	MemberIDs   []string `json:"memberIds,omitempty"`
}

type CreateGroupResponse struct {
	Group *Group `json:"group"`
}

type GetGroupRequest struct {
	GroupID string `json:"groupId"`
}

type GetGroupResponse struct {
	Group *Group `json:"group"`
}

type ListGroupsRequest struct{}

type ListGroupsResponse struct {
	Groups []*Group `json:"groups"`
}

// UpdateGroupRequest changes only the fields that are set.
type UpdateGroupRequest struct {
	GroupID     string  `json:"groupId"`
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Category    *string `json:"category,omitempty"`
}

type UpdateGroupResponse struct {
	Group *Group `json:"group"`
}

type AddMemberRequest struct {
	GroupID string `json:"groupId"`
	Email   string `json:"email"`
}

type AddMemberResponse struct {
	Group *Group `json:"group"`
}

type RemoveMemberRequest struct {
	GroupID string `json:"groupId"`
	UserID  string `json:"userId"`
}

type RemoveMemberResponse struct {
	Group *Group `json:"group"`
}

type DeleteGroupRequest struct {
	GroupID string `json:"groupId"`
}

type DeleteGroupResponse struct{}

// Settlements

type GetSettlementsRequest struct {
	GroupID string `json:"groupId"`
}

type Settlement struct {
	From   *Member `json:"from"`
	To     *Member `json:"to"`
	Amount float64 `json:"amount"`
}

// MemberSummary is one member's position in a group. Balance is what is left
// after the listed settlements are paid; NetBalance is paid minus owes.
type MemberSummary struct {
	Name       string  `json:"name"`
	Email      string  `json:"email"`
	Paid       float64 `json:"paid"`
	Owes       float64 `json:"owes"`
	Balance    float64 `json:"balance"`
	NetBalance float64 `json:"netBalance"`
}

type GetSettlementsResponse struct {
	AllSettled   bool                      `json:"allSettled,omitempty"`
	Message      string                    `json:"message,omitempty"`
	Settlements  []*Settlement             `json:"settlements"`
	Summary      map[string]*MemberSummary `json:"summary"`
	TotalExpense float64                   `json:"totalExpense"`
}

// SettleInput is the offline settlement input read by the CLI.
type SettleInput struct {
	GroupMembers []*Member      `json:"groupMembers"`
	Expenses     []*SettleEntry `json:"expenses"`
}

type SettleEntry struct {
	PaidBy       string         `json:"paidBy"`
	Amount       float64        `json:"amount"`
	SplitDetails []*SplitDetail `json:"splitDetails"`
}

// Expenses

type SplitDetail struct {
	UserID     string   `json:"userId"`
	Amount     float64  `json:"amount"`
	Percentage *float64 `json:"percentage,omitempty"`
}

// ShareInput is a custom amount or a percentage, depending on split type.
type ShareInput struct {
	UserID string  `json:"userId"`
	Value  float64 `json:"value"`
}

type Expense struct {
	ID           string         `json:"id"`
	GroupID      string         `json:"groupId"`
	PaidBy       string         `json:"paidBy"`
	Amount       float64        `json:"amount"`
	Description  string         `json:"description"`
	Category     string         `json:"category"`
	SplitType    string         `json:"splitType"`
	SplitDetails []*SplitDetail `json:"splitDetails"`
	CreatedAt    int64          `json:"createdAt"`
	UpdatedAt    int64          `json:"updatedAt"`
}

type CalculateSplitRequest struct {
	GroupID   string        `json:"groupId"`
	Amount    float64       `json:"amount"`
	SplitType string        `json:"splitType"`
	Shares    []*ShareInput `json:"shares,omitempty"`
}

type CalculateSplitResponse struct {
	SplitDetails []*SplitDetail `json:"splitDetails"`
	Total        float64        `json:"total"`
}

type CreateExpenseRequest struct {
	GroupID     string        `json:"groupId"`
	PaidBy      string        `json:"paidBy,omitempty"`
	Amount      float64       `json:"amount"`
	Description string        `json:"description"`
	Category    string        `json:"category,omitempty"`
	SplitType   string        `json:"splitType"`
	Shares      []*ShareInput `json:"shares,omitempty"`
}

type CreateExpenseResponse struct {
	Expense *Expense `json:"expense"`
}

type GetExpenseRequest struct {
	ExpenseID string `json:"expenseId"`
}

type GetExpenseResponse struct {
	Expense *Expense `json:"expense"`
}

type ListExpensesRequest struct {
	GroupID string `json:"groupId"`
}

type ListExpensesResponse struct {
	Expenses []*Expense `json:"expenses"`
}

// UpdateExpenseRequest changes only the fields that are set. The split is
// recomputed whenever amount, split type, category or shares change.
type UpdateExpenseRequest struct {
	ExpenseID   string        `json:"expenseId"`
	PaidBy      *string       `json:"paidBy,omitempty"`
	Amount      *float64      `json:"amount,omitempty"`
	Description *string       `json:"description,omitempty"`
	Category    *string       `json:"category,omitempty"`
	SplitType   *string       `json:"splitType,omitempty"`
	Shares      []*ShareInput `json:"shares,omitempty"`
}

type UpdateExpenseResponse struct {
	Expense *Expense `json:"expense"`
}

type DeleteExpenseRequest struct {
	ExpenseID string `json:"expenseId"`
}

type DeleteExpenseResponse struct{}

// Analytics

type SetMonthlyBudgetRequest struct {
	Amount float64 `json:"amount"`
}

type SetMonthlyBudgetResponse struct {
	User *User `json:"user"`
}

type GetBudgetStatusRequest struct{}

type GetBudgetStatusResponse struct {
	HasBudget      bool    `json:"hasBudget"`
	Message        string  `json:"message,omitempty"`
	MonthlyBudget  float64 `json:"monthlyBudget,omitempty"`
	TotalSpent     float64 `json:"totalSpent"`
	Remaining      float64 `json:"remaining"`
	PercentageUsed float64 `json:"percentageUsed"`
	AlertLevel     string  `json:"alertLevel,omitempty"`
	AlertMessage   string  `json:"alertMessage,omitempty"`
}

type Period struct {
	Month     int    `json:"month"`
	Year      int    `json:"year"`
	MonthName string `json:"monthName"`
}

type CategoryAmount struct {
	Category string  `json:"category"`
	Amount   float64 `json:"amount"`
}

type GroupAmount struct {
	Group  string  `json:"group"`
	Amount float64 `json:"amount"`
}

type MonthAmount struct {
	Month  string  `json:"month"`
	Amount float64 `json:"amount"`
}

// GetMonthlySummaryRequest selects a calendar month. Zero values mean the
// current year or month.
type GetMonthlySummaryRequest struct {
	Year  int `json:"year,omitempty"`
	Month int `json:"month,omitempty"`
}

type GetMonthlySummaryResponse struct {
	Period            Period            `json:"period"`
	TotalSpent        float64           `json:"totalSpent"`
	ExpenseCount      int               `json:"expenseCount"`
	CategoryBreakdown []*CategoryAmount `json:"categoryBreakdown"`
	GroupBreakdown    []*GroupAmount    `json:"groupBreakdown"`
}

type GetYearlySummaryRequest struct {
	Year int `json:"year,omitempty"`
}

type GetYearlySummaryResponse struct {
	Year              int               `json:"year"`
	TotalSpent        float64           `json:"totalSpent"`
	ExpenseCount      int               `json:"expenseCount"`
	MonthlyBreakdown  []*MonthAmount    `json:"monthlyBreakdown"`
	CategoryBreakdown []*CategoryAmount `json:"categoryBreakdown"`
}
