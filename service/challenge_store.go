package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dfortune/fortuna/core"
	"github.com/dfortune/fortuna/ports"
)

// ChallengeStore issues, stores, validates and invalidates single-use
// authentication challenges, keyed by account address. At most one challenge
// is live per address; a new issuance overwrites the prior one. Expiry is
// checked lazily at read time, never swept.
type ChallengeStore struct {
	store           ports.UserStore
	log             *zap.Logger
	operatorAddress string
	ttl             time.Duration
	now             func() time.Time
}

// ChallengeOption configures a ChallengeStore.
type ChallengeOption func(*ChallengeStore)

// WithChallengeTTL overrides the challenge validity window.
func WithChallengeTTL(ttl time.Duration) ChallengeOption {
	return func(s *ChallengeStore) { s.ttl = ttl }
}

// WithChallengeClock overrides the time source, for tests.
func WithChallengeClock(now func() time.Time) ChallengeOption {
	return func(s *ChallengeStore) { s.now = now }
}

// NewChallengeStore creates a new challenge store. operatorAddress is the
// deployer address whose account gets the privileged-role flag.
func NewChallengeStore(store ports.UserStore, operatorAddress string, log *zap.Logger, opts ...ChallengeOption) *ChallengeStore {
	s := &ChallengeStore{
		store:           store,
		log:             log,
		operatorAddress: operatorAddress,
		ttl:             core.ChallengeTTL,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue generates a fresh nonce for address and stores it on the (created or
// existing) account record, recomputing the privileged-role flag. Returns the
// raw nonce value.
func (s *ChallengeStore) Issue(ctx context.Context, address string) (string, error) {
	addr := core.NormalizeAddress(address)
	if addr == "" {
		return "", core.ErrInvalidAddress
	}

	nonceBytes := make([]byte, core.NonceByteLen)
	if _, err := rand.Read(nonceBytes); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	nonce := hex.EncodeToString(nonceBytes)

	isAdmin := core.IsOperator(addr, s.operatorAddress)
	if _, err := s.store.SetChallenge(ctx, addr, nonce, s.now(), isAdmin); err != nil {
		return "", fmt.Errorf("failed to store challenge: %w", err)
	}

	return nonce, nil
}

// Get returns the live challenge for address, or ok=false when none exists or
// the validity window has elapsed. Read-only: a stale read mutates nothing.
func (s *ChallengeStore) Get(ctx context.Context, address string) (string, bool, error) {
	u, err := s.store.GetUser(ctx, core.NormalizeAddress(address))
	if err != nil {
		if errors.Is(err, core.ErrUserNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to load challenge: %w", err)
	}

	if u.Nonce == "" || s.now().Sub(u.NonceIssuedAt) >= s.ttl {
		return "", false, nil
	}
	return u.Nonce, true, nil
}

// Verify checks candidate against the stored challenge. All three conditions
// (present, fresh, exact match) are evaluated the same way on every call; a
// failed check returns false without mutating anything. A successful check
// stamps the account's last-seen marker.
func (s *ChallengeStore) Verify(ctx context.Context, address, candidate string) (bool, error) {
	addr := core.NormalizeAddress(address)

	u, err := s.store.GetUser(ctx, addr)
	if err != nil {
		if errors.Is(err, core.ErrUserNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to load challenge: %w", err)
	}

	present := u.Nonce != ""
	fresh := s.now().Sub(u.NonceIssuedAt) < s.ttl
	match := candidate != "" && u.Nonce == candidate

	if !(present && fresh && match) {
		return false, nil
	}

	if err := s.store.TouchLogin(ctx, addr, s.now()); err != nil {
		s.log.Warn("failed to stamp last login", zap.String("address", addr), zap.Error(err))
	}
	return true, nil
}

// Invalidate clears the stored challenge regardless of its state. A missing
// account record is logged and swallowed: invalidating a non-existent
// identity is not an error for callers.
func (s *ChallengeStore) Invalidate(ctx context.Context, address string) error {
	addr := core.NormalizeAddress(address)

	err := s.store.ClearChallenge(ctx, addr, s.now())
	if err != nil {
		if errors.Is(err, core.ErrUserNotFound) {
			s.log.Debug("invalidate for unknown address", zap.String("address", addr))
			return nil
		}
		return fmt.Errorf("failed to invalidate challenge: %w", err)
	}
	return nil
}
