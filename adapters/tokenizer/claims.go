package tokenizer

import "github.com/golang-jwt/jwt/v5"

// SessionClaims is the single schema for session tokens, shared by minting
// and verification. The only identity fields a session ever carries are the
// subject address, the user id and the admin flag; there is no dynamic
// extension.
type SessionClaims struct {
	jwt.RegisteredClaims
	UserID  string `json:"uid"`
	IsAdmin bool   `json:"adm"`
}
