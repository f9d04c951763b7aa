package ports

import (
	"time"

	"github.com/dfortune/fortuna/core"
)

// Tokenizer converts between session identities and signed tokens.
type Tokenizer interface {
	// MintSession signs a token embedding exactly the identity's three fields
	// and returns it with its expiry.
	MintSession(identity core.Identity) (token string, expiresAt time.Time, err error)

	// VerifySession parses and validates a token. Expired or tampered tokens
	// return core.ErrTokenExpired / core.ErrInvalidToken.
	VerifySession(token string) (*core.Session, error)
}
