package core

import (
	"fmt"
	"strings"
	"time"
)

// ChallengeTTL is the window during which an issued challenge can be verified.
const ChallengeTTL = 5 * time.Minute

// NonceByteLen is the number of random bytes in a challenge nonce. 16 bytes
// encode to 32 hex characters, which is the wire format signing clients expect.
const NonceByteLen = 16

// User is the account record keyed by wallet address. The challenge fields are
// colocated with the profile for storage but are owned by the challenge store;
// nothing else reads or writes them.
type User struct {
	ID      string // internal identifier
	Address string // canonical (lower-case) wallet address
	Name    string
	Email   string
	IsAdmin bool

	LastLogin time.Time

	// Challenge slot. Empty Nonce means no live challenge.
	Nonce         string
	NonceIssuedAt time.Time
}

// Identity is the subject of a minted session: exactly the three fields that
// end up in session claims, nothing else.
type Identity struct {
	ID      string `json:"id"`
	Address string `json:"address"`
	IsAdmin bool   `json:"isAdmin"`
}

// Session holds the decoded claims of a session token.
type Session struct {
	Identity
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// NormalizeAddress lowercases a wallet address so the same key pair can never
// map to two account records.
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// IsOperator reports whether address is the configured operator (deployer)
// address. This is the single place the privileged-role flag is derived from;
// it is recomputed on every challenge issuance and every authentication and is
// never accepted from a client.
func IsOperator(address, operatorAddress string) bool {
	if operatorAddress == "" {
		return false
	}
	return NormalizeAddress(address) == NormalizeAddress(operatorAddress)
}

// DefaultName derives the display name for a freshly created account.
func DefaultName(address string) string {
	addr := NormalizeAddress(address)
	if len(addr) >= 8 && strings.HasPrefix(addr, "0x") {
		return fmt.Sprintf("User-%s", addr[2:8])
	}
	return addr
}
