package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/hisaab/internal/models"
	"github.com/mmynk/hisaab/internal/storage"
)

const groupColumns = `id, name, description, category, creator_id, created_at`

func scanGroup(row rowScanner) (*models.Group, error) {
	group := &models.Group{}
	var category string
	if err := row.Scan(
		&group.ID,
		&group.Name,
		&group.Description,
		&category,
		&group.CreatorID,
		&group.CreatedAt,
	); err != nil {
		return nil, err
	}
	group.Category = models.GroupCategory(category)
	return group, nil
}

// CreateGroup persists a new group and its members. The creator is stored
// as the first member.
func (s *SQLiteStore) CreateGroup(ctx context.Context, group *models.Group) error {
	if group.ID == "" {
		group.ID = uuid.New().String()
	}
	if group.CreatedAt == 0 {
		group.CreatedAt = time.Now().Unix()
	}
	if group.Category == "" {
		group.Category = models.GroupOther
	}
	group.Members = group.MemberIDs()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO groups (`+groupColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		group.ID, group.Name, group.Description, string(group.Category), group.CreatorID, group.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert group: %w", err)
	}

	for _, userID := range group.Members {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO group_members (group_id, user_id, joined_at) VALUES (?, ?, ?)",
			group.ID, userID, group.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert group member: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetGroup retrieves a group by ID, including its members.
func (s *SQLiteStore) GetGroup(ctx context.Context, groupID string) (*models.Group, error) {
	group, err := scanGroup(s.db.QueryRowContext(ctx,
		`SELECT `+groupColumns+` FROM groups WHERE id = ?`,
		groupID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("group %s: %w", groupID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group: %w", err)
	}

	if err := s.loadMembers(ctx, []*models.Group{group}); err != nil {
		return nil, err
	}

	return group, nil
}

// ListGroupsForUser returns every group the user created or belongs to.
func (s *SQLiteStore) ListGroupsForUser(ctx context.Context, userID string) ([]*models.Group, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+groupColumns+` FROM groups g
		 WHERE g.creator_id = ?
		    OR EXISTS (SELECT 1 FROM group_members m WHERE m.group_id = g.id AND m.user_id = ?)
		 ORDER BY g.created_at DESC, g.rowid DESC`,
		userID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}

	var groups []*models.Group
	for rows.Next() {
		group, err := scanGroup(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		groups = append(groups, group)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate groups: %w", err)
	}

	if err := s.loadMembers(ctx, groups); err != nil {
		return nil, err
	}

	return groups, nil
}

// UpdateGroup saves the group's name, description and category. Membership
// is changed through AddGroupMember and RemoveGroupMember.
func (s *SQLiteStore) UpdateGroup(ctx context.Context, group *models.Group) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE groups SET name = ?, description = ?, category = ? WHERE id = ?",
		group.Name, group.Description, string(group.Category), group.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update group: %w", err)
	}

	return checkAffected(res, "group", group.ID)
}

// AddGroupMember adds a user to a group. Adding an existing member is a no-op.
func (s *SQLiteStore) AddGroupMember(ctx context.Context, groupID, userID string) error {
	var exists int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM groups WHERE id = ?", groupID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("group %s: %w", groupID, storage.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to check group existence: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO group_members (group_id, user_id, joined_at) VALUES (?, ?, ?)",
		groupID, userID, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to add group member: %w", err)
	}

	return nil
}

// RemoveGroupMember removes a user from a group. Expenses the user paid or
// shared stay in place.
func (s *SQLiteStore) RemoveGroupMember(ctx context.Context, groupID, userID string) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM group_members WHERE group_id = ? AND user_id = ?",
		groupID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to remove group member: %w", err)
	}

	return checkAffected(res, "group member", userID)
}

// DeleteGroup removes a group. Members and expenses cascade.
func (s *SQLiteStore) DeleteGroup(ctx context.Context, groupID string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM groups WHERE id = ?", groupID)
	if err != nil {
		return fmt.Errorf("failed to delete group: %w", err)
	}

	return checkAffected(res, "group", groupID)
}

// loadMembers fills Members for each group in join order.
func (s *SQLiteStore) loadMembers(ctx context.Context, groups []*models.Group) error {
	if len(groups) == 0 {
		return nil
	}

	byID := make(map[string]*models.Group, len(groups))
	ids := make([]string, len(groups))
	for i, g := range groups {
		byID[g.ID] = g
		ids[i] = g.ID
		g.Members = []string{}
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT group_id, user_id FROM group_members
		 WHERE group_id IN (`+placeholders(len(ids))+`)
		 ORDER BY rowid`,
		stringArgs(ids)...,
	)
	if err != nil {
		return fmt.Errorf("failed to get group members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var groupID, userID string
		if err := rows.Scan(&groupID, &userID); err != nil {
			return fmt.Errorf("failed to scan group member: %w", err)
		}
		if g, ok := byID[groupID]; ok {
			g.Members = append(g.Members, userID)
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate group members: %w", err)
	}

	return nil
}
