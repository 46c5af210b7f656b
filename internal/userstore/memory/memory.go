// Package memory is an in-process [authflow.UserStore] for development and
// tests. State is lost on restart.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/balancebuddy/authflow"
	"github.com/google/uuid"
)

type Store struct {
	mu sync.Mutex

	users      map[string]authflow.User
	byIdentity map[string]string

	now func() time.Time
}

func NewStore() *Store {
	return &Store{
		users:      make(map[string]authflow.User),
		byIdentity: make(map[string]string),
		now:        time.Now,
	}
}

// WithClock overrides the timestamp source used for CreatedAt and UpdatedAt.
func (s *Store) WithClock(now func() time.Time) *Store {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *Store) FindByIdentity(_ context.Context, identity string) (authflow.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byIdentity[identity]
	if !ok {
		return authflow.User{}, authflow.ErrUserNotFound
	}
	return s.users[id], nil
}

func (s *Store) FindByID(_ context.Context, id string) (authflow.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return authflow.User{}, authflow.ErrUserNotFound
	}
	return u, nil
}

// Create inserts a user. The identity index plays the role of a unique
// constraint.
func (s *Store) Create(_ context.Context, in authflow.NewUser) (authflow.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byIdentity[in.Identity]; exists {
		return authflow.User{}, authflow.ErrAccountExists
	}

	now := s.now().UTC()
	u := authflow.User{
		ID:           uuid.NewString(),
		Identity:     in.Identity,
		DisplayName:  in.DisplayName,
		PasswordHash: in.PasswordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.users[u.ID] = u
	s.byIdentity[u.Identity] = u.ID
	return u, nil
}

func (s *Store) SetResetToken(_ context.Context, userID, tokenHash string, expiresAt time.Time) error {
	return s.update(userID, func(u *authflow.User) {
		u.ResetTokenHash = tokenHash
		u.ResetExpiresAt = expiresAt
	})
}

func (s *Store) FindByResetToken(_ context.Context, tokenHash string, now time.Time) (authflow.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u, ok := s.liveResetLocked(tokenHash, now); ok {
		return u, nil
	}
	return authflow.User{}, authflow.ErrUserNotFound
}

// ConsumeResetToken swaps the password hash and clears the reset fields under
// the store lock, so only one caller can win a given token.
func (s *Store) ConsumeResetToken(_ context.Context, tokenHash, passwordHash string, now time.Time) (authflow.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.liveResetLocked(tokenHash, now)
	if !ok {
		return authflow.User{}, authflow.ErrUserNotFound
	}
	u.PasswordHash = passwordHash
	u.ResetTokenHash = ""
	u.ResetExpiresAt = time.Time{}
	u.UpdatedAt = s.now().UTC()
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) UpdatePasswordHash(_ context.Context, userID, passwordHash string) error {
	return s.update(userID, func(u *authflow.User) {
		u.PasswordHash = passwordHash
	})
}

func (s *Store) PurgeExpiredResetTokens(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, u := range s.users {
		if u.ResetTokenHash == "" || u.ResetExpiresAt.After(before) {
			continue
		}
		u.ResetTokenHash = ""
		u.ResetExpiresAt = time.Time{}
		s.users[id] = u
		n++
	}
	return n, nil
}

func (s *Store) update(userID string, fn func(*authflow.User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return authflow.ErrUserNotFound
	}
	fn(&u)
	u.UpdatedAt = s.now().UTC()
	s.users[userID] = u
	return nil
}

func (s *Store) liveResetLocked(tokenHash string, now time.Time) (authflow.User, bool) {
	if tokenHash == "" {
		return authflow.User{}, false
	}
	for _, u := range s.users {
		if u.ResetTokenHash == tokenHash && u.ResetExpiresAt.After(now) {
			return u, true
		}
	}
	return authflow.User{}, false
}
