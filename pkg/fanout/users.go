package fanout

import (
	"context"
	"sync"
)

// User is the slice of the host's user record the engine cares about: the
// push opt-in flag.
type User struct {
	ID          string
	PushEnabled bool
}

// UserResolver loads the owning user of a notification. Implemented by the
// host application against its own user storage.
type UserResolver interface {
	Resolve(ctx context.Context, userID string) (*User, error)
}

// StaticUserResolver is an in-memory UserResolver for development and tests.
type StaticUserResolver struct {
	users map[string]User
	mu    sync.RWMutex
}

// NewStaticUserResolver creates a resolver over a fixed set of users.
func NewStaticUserResolver(users ...User) *StaticUserResolver {
	r := &StaticUserResolver{users: make(map[string]User, len(users))}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

// Set adds or replaces a user.
func (r *StaticUserResolver) Set(u User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u.ID] = u
}

func (r *StaticUserResolver) Resolve(ctx context.Context, userID string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}
