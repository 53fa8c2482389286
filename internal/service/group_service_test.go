package service

import (
	"context"
	"testing"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/hisaab/pkg/api"
)

func memberIDsOf(g *api.Group) []string {
	ids := make([]string, len(g.Members))
	for i, m := range g.Members {
		ids[i] = m.ID
	}
	return ids
}

func TestCreateGroup(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()
	alice := env.register(t, "Alice", "alice@example.com")
	bob := env.register(t, "Bob", "bob@example.com")

	t.Run("creator becomes member", func(t *testing.T) {
		resp, err := env.groups.CreateGroup(ctx, withToken(alice.Token, &api.CreateGroupRequest{
			Name:      "  Goa Trip ",
			Category:  "Trip",
			MemberIDs: []string{bob.ID, alice.ID, bob.ID},
		}))
		require.NoError(t, err)

		g := resp.Msg.Group
		assert.NotEmpty(t, g.ID)
		assert.Equal(t, "Goa Trip", g.Name)
		assert.Equal(t, "Trip", g.Category)
		assert.Equal(t, alice.ID, g.CreatorID)
		assert.Equal(t, []string{alice.ID, bob.ID}, memberIDsOf(g))
		assert.Equal(t, "Bob", g.Members[1].Name)
		assert.NotZero(t, g.CreatedAt)
	})

	t.Run("category defaults to Other", func(t *testing.T) {
		g := env.createGroup(t, alice, "Misc")
		assert.Equal(t, "Other", g.Category)
		assert.Equal(t, []string{alice.ID}, memberIDsOf(g))
	})

	tests := []struct {
		name string
		req  *api.CreateGroupRequest
	}{
		{"missing name", &api.CreateGroupRequest{Name: "   "}},
		{"invalid category", &api.CreateGroupRequest{Name: "X", Category: "Holiday"}},
		{"unknown member", &api.CreateGroupRequest{Name: "X", MemberIDs: []string{"no-such-user"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.groups.CreateGroup(ctx, withToken(alice.Token, tt.req))
			requireCode(t, err, connect.CodeInvalidArgument)
		})
	}

	t.Run("requires token", func(t *testing.T) {
		_, err := env.groups.CreateGroup(ctx, connect.NewRequest(&api.CreateGroupRequest{Name: "X"}))
		requireCode(t, err, connect.CodeUnauthenticated)
	})
}

func TestGetAndListGroups(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()
	alice := env.register(t, "Alice", "alice@example.com")
	bob := env.register(t, "Bob", "bob@example.com")
	charlie := env.register(t, "Charlie", "charlie@example.com")

	trip := env.createGroup(t, alice, "Trip", bob)
	flat := env.createGroup(t, bob, "Flat")

	t.Run("member can get", func(t *testing.T) {
		resp, err := env.groups.GetGroup(ctx, withToken(bob.Token, &api.GetGroupRequest{GroupID: trip.ID}))
		require.NoError(t, err)
		assert.Equal(t, "Trip", resp.Msg.Group.Name)
		assert.Equal(t, "alice@example.com", resp.Msg.Group.Members[0].Email)
	})

	t.Run("non-member denied", func(t *testing.T) {
		_, err := env.groups.GetGroup(ctx, withToken(charlie.Token, &api.GetGroupRequest{GroupID: trip.ID}))
		requireCode(t, err, connect.CodePermissionDenied)
	})

	t.Run("unknown group", func(t *testing.T) {
		_, err := env.groups.GetGroup(ctx, withToken(alice.Token, &api.GetGroupRequest{GroupID: "missing"}))
		requireCode(t, err, connect.CodeNotFound)
	})

	t.Run("list", func(t *testing.T) {
		resp, err := env.groups.ListGroups(ctx, withToken(bob.Token, &api.ListGroupsRequest{}))
		require.NoError(t, err)
		require.Len(t, resp.Msg.Groups, 2)
		// Newest first.
		assert.Equal(t, flat.ID, resp.Msg.Groups[0].ID)
		assert.Equal(t, trip.ID, resp.Msg.Groups[1].ID)

		resp, err = env.groups.ListGroups(ctx, withToken(charlie.Token, &api.ListGroupsRequest{}))
		require.NoError(t, err)
		assert.Empty(t, resp.Msg.Groups)
	})
}

func TestMembership(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()
	alice := env.register(t, "Alice", "alice@example.com")
	bob := env.register(t, "Bob", "bob@example.com")
	charlie := env.register(t, "Charlie", "charlie@example.com")

	g := env.createGroup(t, alice, "Flat", bob)

	t.Run("add by email", func(t *testing.T) {
		resp, err := env.groups.AddMember(ctx, withToken(bob.Token, &api.AddMemberRequest{
			GroupID: g.ID,
			Email:   " Charlie@Example.com ",
		}))
		require.NoError(t, err)
		assert.Equal(t, []string{alice.ID, bob.ID, charlie.ID}, memberIDsOf(resp.Msg.Group))
	})

	t.Run("add existing member", func(t *testing.T) {
		_, err := env.groups.AddMember(ctx, withToken(alice.Token, &api.AddMemberRequest{GroupID: g.ID, Email: "bob@example.com"}))
		requireCode(t, err, connect.CodeAlreadyExists)
	})

	t.Run("add unknown email", func(t *testing.T) {
		_, err := env.groups.AddMember(ctx, withToken(alice.Token, &api.AddMemberRequest{GroupID: g.ID, Email: "dave@example.com"}))
		requireCode(t, err, connect.CodeNotFound)
	})

	t.Run("member cannot remove others", func(t *testing.T) {
		_, err := env.groups.RemoveMember(ctx, withToken(bob.Token, &api.RemoveMemberRequest{GroupID: g.ID, UserID: charlie.ID}))
		requireCode(t, err, connect.CodePermissionDenied)
	})

	t.Run("creator cannot be removed", func(t *testing.T) {
		_, err := env.groups.RemoveMember(ctx, withToken(alice.Token, &api.RemoveMemberRequest{GroupID: g.ID, UserID: alice.ID}))
		requireCode(t, err, connect.CodeFailedPrecondition)
	})

	t.Run("creator removes member", func(t *testing.T) {
		resp, err := env.groups.RemoveMember(ctx, withToken(alice.Token, &api.RemoveMemberRequest{GroupID: g.ID, UserID: charlie.ID}))
		require.NoError(t, err)
		assert.Equal(t, []string{alice.ID, bob.ID}, memberIDsOf(resp.Msg.Group))

		_, err = env.groups.GetGroup(ctx, withToken(charlie.Token, &api.GetGroupRequest{GroupID: g.ID}))
		requireCode(t, err, connect.CodePermissionDenied)
	})

	t.Run("member leaves", func(t *testing.T) {
		resp, err := env.groups.RemoveMember(ctx, withToken(bob.Token, &api.RemoveMemberRequest{GroupID: g.ID, UserID: bob.ID}))
		require.NoError(t, err)
		assert.Equal(t, []string{alice.ID}, memberIDsOf(resp.Msg.Group))
	})
}

func TestUpdateGroup(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()
	alice := env.register(t, "Alice", "alice@example.com")
	bob := env.register(t, "Bob", "bob@example.com")
	olga := env.register(t, "Olga", "olga@example.com")
	group := env.createGroup(t, alice, "Goa", bob)

	t.Run("member renames", func(t *testing.T) {
		resp, err := env.groups.UpdateGroup(ctx, withToken(bob.Token, &api.UpdateGroupRequest{
			GroupID:     group.ID,
			Name:        ptr(" Goa 2025 "),
			Description: ptr("Beach week"),
		}))
		require.NoError(t, err)

		g := resp.Msg.Group
		assert.Equal(t, "Goa 2025", g.Name)
		assert.Equal(t, "Beach week", g.Description)
		assert.Equal(t, "Other", g.Category)
		assert.Equal(t, []string{alice.ID, bob.ID}, memberIDsOf(g))
	})

	t.Run("unset fields are kept", func(t *testing.T) {
		_, err := env.groups.UpdateGroup(ctx, withToken(alice.Token, &api.UpdateGroupRequest{
			GroupID:  group.ID,
			Category: ptr("Trip"),
		}))
		require.NoError(t, err)

		resp, err := env.groups.GetGroup(ctx, withToken(alice.Token, &api.GetGroupRequest{GroupID: group.ID}))
		require.NoError(t, err)
		assert.Equal(t, "Goa 2025", resp.Msg.Group.Name)
		assert.Equal(t, "Beach week", resp.Msg.Group.Description)
		assert.Equal(t, "Trip", resp.Msg.Group.Category)
	})

	tests := []struct {
		name  string
		token string
		req   *api.UpdateGroupRequest
		code  connect.Code
	}{
		{"blank name", alice.Token, &api.UpdateGroupRequest{GroupID: group.ID, Name: ptr("  ")}, connect.CodeInvalidArgument},
		{"invalid category", alice.Token, &api.UpdateGroupRequest{GroupID: group.ID, Category: ptr("Holiday")}, connect.CodeInvalidArgument},
		{"non-member", olga.Token, &api.UpdateGroupRequest{GroupID: group.ID, Name: ptr("Mine")}, connect.CodePermissionDenied},
		{"unknown group", alice.Token, &api.UpdateGroupRequest{GroupID: "missing", Name: ptr("x")}, connect.CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.groups.UpdateGroup(ctx, withToken(tt.token, tt.req))
			requireCode(t, err, tt.code)
		})
	}
}

func TestDeleteGroup(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()
	alice := env.register(t, "Alice", "alice@example.com")
	bob := env.register(t, "Bob", "bob@example.com")

	g := env.createGroup(t, alice, "Trip", bob)
	env.createExpense(t, alice, &api.CreateExpenseRequest{
		GroupID: g.ID, Amount: 10, Description: "Tea", SplitType: "equal",
	})

	_, err := env.groups.DeleteGroup(ctx, withToken(bob.Token, &api.DeleteGroupRequest{GroupID: g.ID}))
	requireCode(t, err, connect.CodePermissionDenied)

	_, err = env.groups.DeleteGroup(ctx, withToken(alice.Token, &api.DeleteGroupRequest{GroupID: g.ID}))
	require.NoError(t, err)

	_, err = env.groups.GetGroup(ctx, withToken(alice.Token, &api.GetGroupRequest{GroupID: g.ID}))
	requireCode(t, err, connect.CodeNotFound)
}

func TestGetSettlements(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()
	alice := env.register(t, "Alice", "alice@example.com")
	bob := env.register(t, "Bob", "bob@example.com")
	charlie := env.register(t, "Charlie", "charlie@example.com")
	outsider := env.register(t, "Olga", "olga@example.com")

	g := env.createGroup(t, alice, "Trip", bob, charlie)

	t.Run("no expenses", func(t *testing.T) {
		resp, err := env.groups.GetSettlements(ctx, withToken(bob.Token, &api.GetSettlementsRequest{GroupID: g.ID}))
		require.NoError(t, err)
		assert.True(t, resp.Msg.AllSettled)
		assert.Equal(t, AllSettledMessage, resp.Msg.Message)
		assert.Empty(t, resp.Msg.Settlements)
		assert.Zero(t, resp.Msg.TotalExpense)
	})

	// Alice +30, Bob -10, Charlie -20.
	env.createExpense(t, alice, &api.CreateExpenseRequest{
		GroupID:     g.ID,
		Amount:      60,
		Description: "Dinner",
		SplitType:   "custom",
		Shares: []*api.ShareInput{
			{UserID: alice.ID, Value: 30},
			{UserID: bob.ID, Value: 10},
			{UserID: charlie.ID, Value: 20},
		},
	})

	t.Run("largest debtor first", func(t *testing.T) {
		resp, err := env.groups.GetSettlements(ctx, withToken(bob.Token, &api.GetSettlementsRequest{GroupID: g.ID}))
		require.NoError(t, err)
		msg := resp.Msg

		assert.False(t, msg.AllSettled)
		assert.Equal(t, 60.0, msg.TotalExpense)
		require.Len(t, msg.Settlements, 2)

		assert.Equal(t, charlie.ID, msg.Settlements[0].From.ID)
		assert.Equal(t, alice.ID, msg.Settlements[0].To.ID)
		assert.Equal(t, 20.0, msg.Settlements[0].Amount)

		assert.Equal(t, bob.ID, msg.Settlements[1].From.ID)
		assert.Equal(t, "Bob", msg.Settlements[1].From.Name)
		assert.Equal(t, alice.ID, msg.Settlements[1].To.ID)
		assert.Equal(t, 10.0, msg.Settlements[1].Amount)

		require.Len(t, msg.Summary, 3)
		a := msg.Summary[alice.ID]
		assert.Equal(t, "Alice", a.Name)
		assert.Equal(t, 60.0, a.Paid)
		assert.Equal(t, 30.0, a.Owes)
		assert.Equal(t, 30.0, a.NetBalance)
		assert.Zero(t, a.Balance)
		assert.Equal(t, -20.0, msg.Summary[charlie.ID].NetBalance)
	})

	t.Run("non-member denied", func(t *testing.T) {
		_, err := env.groups.GetSettlements(ctx, withToken(outsider.Token, &api.GetSettlementsRequest{GroupID: g.ID}))
		requireCode(t, err, connect.CodePermissionDenied)
	})

	t.Run("missing group id", func(t *testing.T) {
		_, err := env.groups.GetSettlements(ctx, withToken(alice.Token, &api.GetSettlementsRequest{}))
		requireCode(t, err, connect.CodeInvalidArgument)
	})

	assert.Equal(t, 1.0, counterValue(t, env.metrics.Registry(), "hisaab_settlements_computed_total"))
}

func TestSettlementsAfterMemberRemoval(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()
	alice := env.register(t, "Alice", "alice@example.com")
	bob := env.register(t, "Bob", "bob@example.com")
	charlie := env.register(t, "Charlie", "charlie@example.com")

	g := env.createGroup(t, alice, "Trip", bob, charlie)
	env.createExpense(t, alice, &api.CreateExpenseRequest{
		GroupID: g.ID, Amount: 90, Description: "Cab", SplitType: "equal",
	})

	_, err := env.groups.RemoveMember(ctx, withToken(alice.Token, &api.RemoveMemberRequest{GroupID: g.ID, UserID: charlie.ID}))
	require.NoError(t, err)

	// Charlie's share is ignored; only Bob is left owing Alice.
	resp, err := env.groups.GetSettlements(ctx, withToken(alice.Token, &api.GetSettlementsRequest{GroupID: g.ID}))
	require.NoError(t, err)
	require.Len(t, resp.Msg.Settlements, 1)
	assert.Equal(t, bob.ID, resp.Msg.Settlements[0].From.ID)
	assert.Equal(t, 30.0, resp.Msg.Settlements[0].Amount)
	assert.NotContains(t, resp.Msg.Summary, charlie.ID)

	// Alice is still owed 30 that nobody left in the group can pay.
	assert.Equal(t, 30.0, resp.Msg.Summary[alice.ID].Balance)
	assert.Equal(t, 60.0, resp.Msg.Summary[alice.ID].NetBalance)
}
