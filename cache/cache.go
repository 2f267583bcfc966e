// Package cache holds the advisory friendship-state cache. Values are hints
// for reads only; every mutation invalidates instead of writing through.
package cache

import (
	"context"
	"time"

	"campusline/models"
)

const DefaultTTL = 5 * time.Minute

// FriendshipCache maps an (owner, counterpart) key to a cached state.
type FriendshipCache interface {
	Get(ctx context.Context, key string) (models.FriendshipState, bool)
	Set(ctx context.Context, key string, state models.FriendshipState)
	Invalidate(ctx context.Context, keys ...string)
}

// Key scopes a counterpart id to the user who owns the view.
func Key(owner, counterpart string) string {
	return owner + ":" + counterpart
}

// PairKeys returns the keys of both sides of a pair.
func PairKeys(a, b string) []string {
	return []string{Key(a, b), Key(b, a)}
}
