package core

import "errors"

var (
	ErrInvalidAddress   = errors.New("invalid wallet address")
	ErrInvalidNonce     = errors.New("invalid nonce")
	ErrNonceExpired     = errors.New("nonce has expired")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrInvalidToken     = errors.New("invalid token")
	ErrTokenExpired     = errors.New("token has expired")
	ErrUserNotFound     = errors.New("user not found")
	ErrStoreFailure     = errors.New("store operation failed")
)
