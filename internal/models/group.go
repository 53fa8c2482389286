package models

import "slices"

// GroupCategory classifies a group.
type GroupCategory string

const (
	GroupTrip    GroupCategory = "Trip"
	GroupFlat    GroupCategory = "Flat"
	GroupFriends GroupCategory = "Friends"
	GroupOffice  GroupCategory = "Office"
	GroupOther   GroupCategory = "Other"
)

// GroupCategories lists the accepted group categories.
var GroupCategories = []GroupCategory{GroupTrip, GroupFlat, GroupFriends, GroupOffice, GroupOther}

// Valid reports whether c is one of GroupCategories.
func (c GroupCategory) Valid() bool {
	return slices.Contains(GroupCategories, c)
}

// Group is a set of users who share expenses.
type Group struct {
	// ID is the unique identifier for the group (UUID format).
	ID string

	// Name is the display name of the group (e.g., "Goa 2024", "Flat 3B").
	Name string

	Description string
	Category    GroupCategory

	// CreatorID is the user who created the group. Only the creator may
	// delete it, and the creator cannot be removed.
	CreatorID string

	// Members are user IDs in join order. Includes the creator.
	Members []string

	CreatedAt int64
}

// HasMember reports whether userID belongs to the group.
// The creator always counts as a member.
func (g *Group) HasMember(userID string) bool {
	return userID == g.CreatorID || slices.Contains(g.Members, userID)
}

// MemberIDs returns the creator followed by the other members, without
// duplicates.
func (g *Group) MemberIDs() []string {
	ids := make([]string, 0, len(g.Members)+1)
	if g.CreatorID != "" {
		ids = append(ids, g.CreatorID)
	}
	for _, id := range g.Members {
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	return ids
}
