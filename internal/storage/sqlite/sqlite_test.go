package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/hisaab/internal/models"
	"github.com/mmynk/hisaab/internal/storage"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err, "failed to create store")
	t.Cleanup(func() { store.Close() })

	return store
}

func createUser(t *testing.T, store *SQLiteStore, email, name string) *models.User {
	t.Helper()
	user := models.NewUser(email, name, "hash")
	require.NoError(t, store.CreateUser(context.Background(), user))
	return user
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestUsers(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	alice := createUser(t, store, "alice@example.com", "Alice")
	bob := createUser(t, store, "bob@example.com", "Bob")

	t.Run("GetUserByEmail", func(t *testing.T) {
		got, err := store.GetUserByEmail(ctx, "alice@example.com")
		require.NoError(t, err)
		assert.Equal(t, alice.ID, got.ID)
		assert.Equal(t, "Alice", got.DisplayName)
		assert.False(t, got.MonthlyBudget.Valid)
	})

	t.Run("GetUserByID unknown", func(t *testing.T) {
		_, err := store.GetUserByID(ctx, "nonexistent-id")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("duplicate email rejected", func(t *testing.T) {
		err := store.CreateUser(ctx, models.NewUser("alice@example.com", "Alice 2", "hash"))
		assert.Error(t, err)
	})

	t.Run("GetUsersByIDs omits unknown", func(t *testing.T) {
		users, err := store.GetUsersByIDs(ctx, []string{alice.ID, bob.ID, "ghost"})
		require.NoError(t, err)
		assert.Len(t, users, 2)
		assert.Equal(t, "Bob", users[bob.ID].DisplayName)
	})

	t.Run("GetUsersByIDs empty", func(t *testing.T) {
		users, err := store.GetUsersByIDs(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, users)
	})

	t.Run("UpdateMonthlyBudget", func(t *testing.T) {
		require.NoError(t, store.UpdateMonthlyBudget(ctx, alice.ID, dec("15000.50")))

		got, err := store.GetUserByID(ctx, alice.ID)
		require.NoError(t, err)
		require.True(t, got.MonthlyBudget.Valid)
		assert.True(t, dec("15000.50").Equal(got.MonthlyBudget.Decimal))

		err = store.UpdateMonthlyBudget(ctx, "ghost", dec("1"))
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}

func TestGroups(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	t.Run("CreateGroup puts creator first and dedupes", func(t *testing.T) {
		group := &models.Group{
			Name:      "Goa",
			Category:  models.GroupTrip,
			CreatorID: "alice",
			Members:   []string{"bob", "alice", "charlie", "bob"},
		}
		require.NoError(t, store.CreateGroup(ctx, group))
		assert.NotEmpty(t, group.ID)
		assert.NotZero(t, group.CreatedAt)

		got, err := store.GetGroup(ctx, group.ID)
		require.NoError(t, err)
		assert.Equal(t, "Goa", got.Name)
		assert.Equal(t, models.GroupTrip, got.Category)
		assert.Equal(t, []string{"alice", "bob", "charlie"}, got.Members)
	})

	t.Run("default category", func(t *testing.T) {
		group := &models.Group{Name: "Misc", CreatorID: "alice"}
		require.NoError(t, store.CreateGroup(ctx, group))
		assert.Equal(t, models.GroupOther, group.Category)
	})

	t.Run("GetGroup unknown", func(t *testing.T) {
		_, err := store.GetGroup(ctx, "nonexistent-id")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("membership changes", func(t *testing.T) {
		group := &models.Group{Name: "Flat", CreatorID: "dave", Members: []string{"erin"}}
		require.NoError(t, store.CreateGroup(ctx, group))

		require.NoError(t, store.AddGroupMember(ctx, group.ID, "frank"))
		require.NoError(t, store.AddGroupMember(ctx, group.ID, "frank"))
		require.NoError(t, store.RemoveGroupMember(ctx, group.ID, "erin"))

		got, err := store.GetGroup(ctx, group.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"dave", "frank"}, got.Members)

		assert.ErrorIs(t, store.RemoveGroupMember(ctx, group.ID, "erin"), storage.ErrNotFound)
		assert.ErrorIs(t, store.AddGroupMember(ctx, "ghost", "erin"), storage.ErrNotFound)
	})

	t.Run("UpdateGroup", func(t *testing.T) {
		group := &models.Group{Name: "Old name", CreatorID: "judy", Members: []string{"ken"}}
		require.NoError(t, store.CreateGroup(ctx, group))

		group.Name = "New name"
		group.Description = "Weekend away"
		group.Category = models.GroupFriends
		require.NoError(t, store.UpdateGroup(ctx, group))

		got, err := store.GetGroup(ctx, group.ID)
		require.NoError(t, err)
		assert.Equal(t, "New name", got.Name)
		assert.Equal(t, "Weekend away", got.Description)
		assert.Equal(t, models.GroupFriends, got.Category)
		assert.Equal(t, []string{"judy", "ken"}, got.Members)

		// Saving unchanged values still finds the row.
		require.NoError(t, store.UpdateGroup(ctx, got))

		assert.ErrorIs(t, store.UpdateGroup(ctx, &models.Group{ID: "ghost", Name: "x"}), storage.ErrNotFound)
	})

	t.Run("ListGroupsForUser", func(t *testing.T) {
		mine := &models.Group{Name: "Mine", CreatorID: "grace"}
		shared := &models.Group{Name: "Shared", CreatorID: "heidi", Members: []string{"grace"}}
		other := &models.Group{Name: "Other", CreatorID: "heidi"}
		for _, g := range []*models.Group{mine, shared, other} {
			require.NoError(t, store.CreateGroup(ctx, g))
		}

		groups, err := store.ListGroupsForUser(ctx, "grace")
		require.NoError(t, err)
		require.Len(t, groups, 2)
		// Newest first.
		assert.Equal(t, "Shared", groups[0].Name)
		assert.Equal(t, "Mine", groups[1].Name)
		assert.Equal(t, []string{"heidi", "grace"}, groups[0].Members)

		none, err := store.ListGroupsForUser(ctx, "nobody")
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("DeleteGroup cascades expenses", func(t *testing.T) {
		group := &models.Group{Name: "Temp", CreatorID: "ivan"}
		require.NoError(t, store.CreateGroup(ctx, group))

		expense := &models.Expense{
			GroupID:   group.ID,
			PaidBy:    "ivan",
			Amount:    dec("10"),
			SplitType: "equal",
			SplitDetails: []models.SplitDetail{
				{UserID: "ivan", Amount: dec("10")},
			},
		}
		require.NoError(t, store.CreateExpense(ctx, expense))

		require.NoError(t, store.DeleteGroup(ctx, group.ID))

		_, err := store.GetGroup(ctx, group.ID)
		assert.ErrorIs(t, err, storage.ErrNotFound)
		_, err = store.GetExpense(ctx, expense.ID)
		assert.ErrorIs(t, err, storage.ErrNotFound)

		assert.ErrorIs(t, store.DeleteGroup(ctx, group.ID), storage.ErrNotFound)
	})
}

func TestExpenses(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	group := &models.Group{Name: "Trip", CreatorID: "alice", Members: []string{"bob", "charlie"}}
	require.NoError(t, store.CreateGroup(ctx, group))

	t.Run("round trip keeps decimals and order", func(t *testing.T) {
		expense := &models.Expense{
			GroupID:     group.ID,
			PaidBy:      "alice",
			Amount:      dec("200"),
			Description: "Hotel",
			Category:    models.CategoryAccommodation,
			SplitType:   "percentage",
			SplitDetails: []models.SplitDetail{
				{UserID: "charlie", Amount: dec("50.00"), Percentage: decimal.NewNullDecimal(dec("25"))},
				{UserID: "alice", Amount: dec("150.00"), Percentage: decimal.NewNullDecimal(dec("75"))},
			},
		}
		require.NoError(t, store.CreateExpense(ctx, expense))
		assert.NotEmpty(t, expense.ID)

		got, err := store.GetExpense(ctx, expense.ID)
		require.NoError(t, err)
		assert.True(t, dec("200").Equal(got.Amount))
		assert.Equal(t, models.CategoryAccommodation, got.Category)
		require.Len(t, got.SplitDetails, 2)
		assert.Equal(t, "charlie", got.SplitDetails[0].UserID)
		assert.True(t, dec("50").Equal(got.SplitDetails[0].Amount))
		require.True(t, got.SplitDetails[0].Percentage.Valid)
		assert.True(t, dec("25").Equal(got.SplitDetails[0].Percentage.Decimal))
	})

	t.Run("default category and no percentage", func(t *testing.T) {
		expense := &models.Expense{
			GroupID:   group.ID,
			PaidBy:    "bob",
			Amount:    dec("33.33"),
			SplitType: "custom",
			SplitDetails: []models.SplitDetail{
				{UserID: "bob", Amount: dec("33.33")},
			},
		}
		require.NoError(t, store.CreateExpense(ctx, expense))

		got, err := store.GetExpense(ctx, expense.ID)
		require.NoError(t, err)
		assert.Equal(t, models.CategoryOther, got.Category)
		assert.False(t, got.SplitDetails[0].Percentage.Valid)
	})

	t.Run("UpdateExpense replaces split details", func(t *testing.T) {
		expense := &models.Expense{
			GroupID:   group.ID,
			PaidBy:    "alice",
			Amount:    dec("30"),
			SplitType: "equal",
			SplitDetails: []models.SplitDetail{
				{UserID: "alice", Amount: dec("10")},
				{UserID: "bob", Amount: dec("10")},
				{UserID: "charlie", Amount: dec("10")},
			},
		}
		require.NoError(t, store.CreateExpense(ctx, expense))

		expense.Amount = dec("40")
		expense.Description = "Dinner"
		expense.SplitDetails = []models.SplitDetail{
			{UserID: "alice", Amount: dec("20")},
			{UserID: "bob", Amount: dec("20")},
		}
		require.NoError(t, store.UpdateExpense(ctx, expense))

		got, err := store.GetExpense(ctx, expense.ID)
		require.NoError(t, err)
		assert.True(t, dec("40").Equal(got.Amount))
		assert.Equal(t, "Dinner", got.Description)
		require.Len(t, got.SplitDetails, 2)
		assert.Equal(t, "bob", got.SplitDetails[1].UserID)

		ghost := &models.Expense{ID: "ghost", Amount: dec("1")}
		assert.ErrorIs(t, store.UpdateExpense(ctx, ghost), storage.ErrNotFound)
	})

	t.Run("DeleteExpense", func(t *testing.T) {
		expense := &models.Expense{GroupID: group.ID, PaidBy: "alice", Amount: dec("5"), SplitType: "equal"}
		require.NoError(t, store.CreateExpense(ctx, expense))

		require.NoError(t, store.DeleteExpense(ctx, expense.ID))
		_, err := store.GetExpense(ctx, expense.ID)
		assert.ErrorIs(t, err, storage.ErrNotFound)
		assert.ErrorIs(t, store.DeleteExpense(ctx, expense.ID), storage.ErrNotFound)
	})

	t.Run("ListExpensesByGroup", func(t *testing.T) {
		expenses, err := store.ListExpensesByGroup(ctx, group.ID)
		require.NoError(t, err)
		require.Len(t, expenses, 3)
		// Newest first; every expense carries its split.
		assert.True(t, dec("40").Equal(expenses[0].Amount))
		for _, e := range expenses {
			assert.NotEmpty(t, e.SplitDetails)
		}

		empty, err := store.ListExpensesByGroup(ctx, "no-such-group")
		require.NoError(t, err)
		assert.NotNil(t, empty)
		assert.Empty(t, empty)
	})
}

func TestListExpensesByGroupBetween(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	group := &models.Group{Name: "Range", CreatorID: "alice"}
	require.NoError(t, store.CreateGroup(ctx, group))

	for _, at := range []int64{100, 200, 300} {
		require.NoError(t, store.CreateExpense(ctx, &models.Expense{
			GroupID:   group.ID,
			PaidBy:    "alice",
			Amount:    decimal.NewFromInt(at),
			SplitType: "equal",
			CreatedAt: at,
		}))
	}

	expenses, err := store.ListExpensesByGroupBetween(ctx, group.ID, 100, 300)
	require.NoError(t, err)
	require.Len(t, expenses, 2)
	assert.Equal(t, int64(100), expenses[0].CreatedAt)
	assert.Equal(t, int64(200), expenses[1].CreatedAt)
}

func TestMigrations(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "migrate.db")

	version, _, err := MigrationVersion(dbPath)
	require.NoError(t, err)
	assert.Zero(t, version)

	require.NoError(t, RunMigrations(dbPath))
	// Re-running is a no-op.
	require.NoError(t, RunMigrations(dbPath))

	version, dirty, err := MigrationVersion(dbPath)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)

	require.NoError(t, RollbackMigrations(dbPath, 1))
	version, _, err = MigrationVersion(dbPath)
	require.NoError(t, err)
	assert.Zero(t, version)
}
