// rocketshoes-cartservice/cartstore/cartstore.go

package cartstore

import (
	"context"
)

// ICartStore is an interface for per-user key-value slots holding cart
// snapshots.
type ICartStore interface {
	Initialize(ctx context.Context) error

	Get(ctx context.Context, userID, key string) (string, bool, error)
	Set(ctx context.Context, userID, key, value string) error

	Ping(ctx context.Context) bool
}

// UserSlot binds an ICartStore to one user so it can back a single cart.
type UserSlot struct {
	store  ICartStore
	userID string
}

// ForUser returns the slot of userID in store.
func ForUser(store ICartStore, userID string) *UserSlot {
	return &UserSlot{store: store, userID: userID}
}

// Get reads key from the user's slot.
func (u *UserSlot) Get(ctx context.Context, key string) (string, bool, error) {
	return u.store.Get(ctx, u.userID, key)
}

// Set writes key in the user's slot.
func (u *UserSlot) Set(ctx context.Context, key, value string) error {
	return u.store.Set(ctx, u.userID, key, value)
}
