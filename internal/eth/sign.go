package eth

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/dfortune/fortuna/core"
)

// AuthMessage builds the canonical challenge message. The template is part of
// the wire contract: the signing client and this server must agree on it
// byte-for-byte.
func AuthMessage(appName, nonce string) string {
	return fmt.Sprintf("%s Authentication: %s", appName, nonce)
}

// RecoverAddress recovers the address that produced signature over message
// using EIP-191 personal-message signing (prefix hash, then secp256k1 public
// key recovery). It performs no comparison against a claimed address; that
// decision belongs to the caller.
func RecoverAddress(message string, signature []byte) (common.Address, error) {
	if len(signature) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes: %w", crypto.SignatureLength, core.ErrInvalidSignature)
	}

	// Wallets produce V as 27/28; crypto.SigToPub expects 0/1.
	sig := make([]byte, crypto.SignatureLength)
	copy(sig, signature)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	if sig[crypto.RecoveryIDOffset] > 1 {
		return common.Address{}, fmt.Errorf("invalid recovery id: %w", core.ErrInvalidSignature)
	}

	hash := accounts.TextHash([]byte(message))
	pub, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover public key: %w", core.ErrInvalidSignature)
	}

	return crypto.PubkeyToAddress(*pub), nil
}

// RecoverAddressHex is RecoverAddress for a 0x-prefixed hex signature, the
// form signatures arrive in over HTTP.
func RecoverAddressHex(message, signatureHex string) (common.Address, error) {
	sig, err := hexutil.Decode(signatureHex)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to decode signature: %w", core.ErrInvalidSignature)
	}
	return RecoverAddress(message, sig)
}

// SignMessage signs message with key in the personal-message scheme, returning
// a 65-byte signature with V in {27, 28} as wallets emit. Used by tests and
// local tooling.
func SignMessage(message string, key *ecdsa.PrivateKey) ([]byte, error) {
	hash := accounts.TextHash([]byte(message))
	sig, err := crypto.Sign(hash, key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign message: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}
