package eth

import (
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dfortune/fortuna/core"
)

func TestAuthMessage(t *testing.T) {
	msg := AuthMessage("dFortune", "deadbeefdeadbeefdeadbeefdeadbeef")
	assert.Equal(t, "dFortune Authentication: deadbeefdeadbeefdeadbeefdeadbeef", msg)
}

func TestSignAndRecover(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	want := crypto.PubkeyToAddress(key.PublicKey)

	msg := AuthMessage("dFortune", "0123456789abcdef0123456789abcdef")
	sig, err := SignMessage(msg, key)
	require.NoError(t, err)
	require.Len(t, sig, 65)
	assert.GreaterOrEqual(t, sig[64], byte(27))

	got, err := RecoverAddress(msg, sig)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestRecoverAddressHex(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	want := crypto.PubkeyToAddress(key.PublicKey)

	msg := AuthMessage("dFortune", "0123456789abcdef0123456789abcdef")
	sig, err := SignMessage(msg, key)
	require.NoError(t, err)

	got, err := RecoverAddressHex(msg, hexutil.Encode(sig))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestRecoverAddress_WrongMessage(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := crypto.PubkeyToAddress(key.PublicKey)

	sig, err := SignMessage(AuthMessage("dFortune", "nonce-one"), key)
	require.NoError(t, err)

	// Recovery over a different message yields some other address, never an
	// error; the mismatch is what the orchestrator rejects.
	got, err := RecoverAddress(AuthMessage("dFortune", "nonce-two"), sig)
	require.NoError(t, err)
	assert.NotEqual(t, signer, got)
}

func TestRecoverAddress_Malformed(t *testing.T) {
	_, err := RecoverAddress("message", []byte("too short"))
	assert.ErrorIs(t, err, core.ErrInvalidSignature)

	bad := make([]byte, 65)
	bad[64] = 9 // invalid recovery id
	_, err = RecoverAddress("message", bad)
	assert.ErrorIs(t, err, core.ErrInvalidSignature)

	_, err = RecoverAddressHex("message", "not-hex")
	assert.ErrorIs(t, err, core.ErrInvalidSignature)
}
