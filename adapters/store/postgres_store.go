package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dfortune/fortuna/core"
	"github.com/dfortune/fortuna/ports"
)

// PostgresStore is a pgx implementation of the UserStore interface.
//
// Expected schema:
//
//	CREATE TABLE users (
//	    id              uuid PRIMARY KEY DEFAULT gen_random_uuid(),
//	    address         text NOT NULL UNIQUE,
//	    name            text NOT NULL,
//	    email           text NOT NULL DEFAULT '',
//	    is_admin        boolean NOT NULL DEFAULT false,
//	    last_login      timestamptz NOT NULL DEFAULT now(),
//	    nonce           text NOT NULL DEFAULT '',
//	    nonce_issued_at timestamptz NOT NULL DEFAULT now()
//	);
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new Postgres-backed store.
func NewPostgresStore(pool *pgxpool.Pool) ports.UserStore {
	return &PostgresStore{pool: pool}
}

const userColumns = `id, address, name, email, is_admin, last_login, nonce, nonce_issued_at`

func scanUser(row pgx.Row) (*core.User, error) {
	var u core.User
	err := row.Scan(&u.ID, &u.Address, &u.Name, &u.Email, &u.IsAdmin, &u.LastLogin, &u.Nonce, &u.NonceIssuedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: %v", core.ErrStoreFailure, err)
	}
	return &u, nil
}

// SetChallenge upserts the record for address with the new challenge. The
// single INSERT ... ON CONFLICT statement makes concurrent issuance for the
// same address last-write-wins without explicit locking.
func (s *PostgresStore) SetChallenge(ctx context.Context, address, nonce string, issuedAt time.Time, isAdmin bool) (*core.User, error) {
	return scanUser(s.pool.QueryRow(ctx, `
		INSERT INTO users (address, name, email, is_admin, last_login, nonce, nonce_issued_at)
		VALUES ($1, $1, $1 || '@wallet.local', $2, $3, $4, $3)
		ON CONFLICT (address) DO UPDATE SET
			is_admin = EXCLUDED.is_admin,
			nonce = EXCLUDED.nonce,
			nonce_issued_at = EXCLUDED.nonce_issued_at
		RETURNING `+userColumns,
		address, isAdmin, issuedAt, nonce))
}

// GetUser returns the record for address.
func (s *PostgresStore) GetUser(ctx context.Context, address string) (*core.User, error) {
	return scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE address = $1`, address))
}

// ClearChallenge empties the challenge slot.
func (s *PostgresStore) ClearChallenge(ctx context.Context, address string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET nonce = '', nonce_issued_at = $1 WHERE address = $2`, at, address)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrStoreFailure, err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrUserNotFound
	}
	return nil
}

// TouchLogin updates the last-login marker.
func (s *PostgresStore) TouchLogin(ctx context.Context, address string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET last_login = $1 WHERE address = $2`, at, address)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrStoreFailure, err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrUserNotFound
	}
	return nil
}

// UpsertOnLogin creates the record or touches last-login on an existing one.
// An existing record keeps its admin flag: it is authoritative from challenge
// issuance.
func (s *PostgresStore) UpsertOnLogin(ctx context.Context, address, name string, isAdmin bool, at time.Time) (*core.User, error) {
	return scanUser(s.pool.QueryRow(ctx, `
		INSERT INTO users (address, name, is_admin, last_login)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (address) DO UPDATE SET
			last_login = EXCLUDED.last_login
		RETURNING `+userColumns,
		address, name, isAdmin, at))
}
