package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dfortune/fortuna/core"
	"github.com/dfortune/fortuna/ports"
)

// MemoryStore is an in-memory implementation of the UserStore interface,
// used in tests and single-node development.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]*core.User
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() ports.UserStore {
	return &MemoryStore{
		users: make(map[string]*core.User),
	}
}

// SetChallenge upserts the record for address and overwrites its challenge
// slot. The whole operation runs under one lock, so concurrent issuance for
// the same address degenerates to last-write-wins.
func (s *MemoryStore) SetChallenge(ctx context.Context, address, nonce string, issuedAt time.Time, isAdmin bool) (*core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[address]
	if !ok {
		u = &core.User{
			ID:        uuid.New().String(),
			Address:   address,
			Name:      address,
			Email:     address + "@wallet.local",
			LastLogin: issuedAt,
		}
		s.users[address] = u
	}

	u.Nonce = nonce
	u.NonceIssuedAt = issuedAt
	u.IsAdmin = isAdmin

	cp := *u
	return &cp, nil
}

// GetUser returns a copy of the record for address.
func (s *MemoryStore) GetUser(ctx context.Context, address string) (*core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[address]
	if !ok {
		return nil, core.ErrUserNotFound
	}

	cp := *u
	return &cp, nil
}

// ClearChallenge empties the challenge slot regardless of prior state.
func (s *MemoryStore) ClearChallenge(ctx context.Context, address string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[address]
	if !ok {
		return core.ErrUserNotFound
	}

	u.Nonce = ""
	u.NonceIssuedAt = at
	return nil
}

// TouchLogin updates the last-login marker.
func (s *MemoryStore) TouchLogin(ctx context.Context, address string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[address]
	if !ok {
		return core.ErrUserNotFound
	}

	u.LastLogin = at
	return nil
}

// UpsertOnLogin creates the record or touches last-login on an existing one.
// The admin flag on an existing record is left untouched: it is authoritative
// from challenge issuance.
func (s *MemoryStore) UpsertOnLogin(ctx context.Context, address, name string, isAdmin bool, at time.Time) (*core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[address]
	if !ok {
		u = &core.User{
			ID:        uuid.New().String(),
			Address:   address,
			Name:      name,
			IsAdmin:   isAdmin,
			LastLogin: at,
		}
		s.users[address] = u
	} else {
		u.LastLogin = at
	}

	cp := *u
	return &cp, nil
}
