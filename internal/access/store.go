package access

import (
	"context"
	"errors"
)

// ErrNotFound indicates that the requested record does not exist.
var ErrNotFound = errors.New("access: not found")

// UserStore loads users by id. Missing users return ErrNotFound.
type UserStore interface {
	GetUser(ctx context.Context, id int64) (User, error)
}

// GroupStore reads group rows and membership edges.
type GroupStore interface {
	// ActiveGroupsForUser returns the active groups the user belongs to, system groups first.
	ActiveGroupsForUser(ctx context.Context, userID int64) ([]Group, error)
	// GroupMemberIDs returns the ids of every user assigned to the group.
	GroupMemberIDs(ctx context.Context, groupID int64) ([]int64, error)
}

// DocumentStore places documents on the restriction axes. Missing documents return
// ErrNotFound.
type DocumentStore interface {
	GetResourceLocation(ctx context.Context, documentID int64) (ResourceLocation, error)
}
