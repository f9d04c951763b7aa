package ports

import (
	"context"
	"time"

	"github.com/dfortune/fortuna/core"
)

// UserStore is the account-record store. Addresses passed in are already
// canonical (lower-case); implementations are never handed mixed-case input.
//
// The challenge slot lives on the user record but is driven exclusively
// through SetChallenge/ClearChallenge so its single-use and expiry invariants
// stay independently testable.
type UserStore interface {
	// SetChallenge atomically upserts the record for address: creates it with
	// default display fields when absent, then stores the nonce, its issuance
	// time and the recomputed admin flag. Last writer wins.
	SetChallenge(ctx context.Context, address, nonce string, issuedAt time.Time, isAdmin bool) (*core.User, error)

	// GetUser returns the record for address or core.ErrUserNotFound.
	GetUser(ctx context.Context, address string) (*core.User, error)

	// ClearChallenge empties the nonce slot and stamps the issuance time with
	// at, regardless of prior state. Returns core.ErrUserNotFound when no
	// record exists.
	ClearChallenge(ctx context.Context, address string, at time.Time) error

	// TouchLogin updates the last-login marker.
	TouchLogin(ctx context.Context, address string, at time.Time) error

	// UpsertOnLogin creates the record with the given display name and admin
	// flag, or, when it already exists, only touches the last-login marker.
	UpsertOnLogin(ctx context.Context, address, name string, isAdmin bool, at time.Time) (*core.User, error)
}
