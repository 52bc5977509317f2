package walletsig_test

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/story-bet-platform/pkg/walletsig"
)

func TestSignAndVerify(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(key.PublicKey).Hex()

	sig, err := walletsig.Sign(key, "Sign in with nonce 123")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sig, "0x"))
	assert.Len(t, sig, 2+65*2)

	require.NoError(t, walletsig.Verify(addr, "Sign in with nonce 123", sig))
	require.NoError(t, walletsig.Verify(strings.ToLower(addr), "Sign in with nonce 123", sig))

	got, err := walletsig.Recover("Sign in with nonce 123", sig)
	require.NoError(t, err)
	assert.Equal(t, addr, got.Hex())
}

func TestVerify_Rejects(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	other, err := crypto.GenerateKey()
	require.NoError(t, err)
	sig, err := walletsig.Sign(key, "hello")
	require.NoError(t, err)

	otherAddr := crypto.PubkeyToAddress(other.PublicKey).Hex()
	assert.ErrorIs(t, walletsig.Verify(otherAddr, "hello", sig), walletsig.ErrBadSignature)

	addr := crypto.PubkeyToAddress(key.PublicKey).Hex()
	assert.ErrorIs(t, walletsig.Verify(addr, "tampered", sig), walletsig.ErrBadSignature)
	assert.ErrorIs(t, walletsig.Verify(addr, "hello", "0x1234"), walletsig.ErrBadSignature)
	assert.Error(t, walletsig.Verify("not-an-address", "hello", sig))
}

func TestAddress(t *testing.T) {
	a, ok := walletsig.Address("0xAbCdEf0000000000000000000000000000000001")
	assert.True(t, ok)
	assert.Equal(t, "0xabcdef0000000000000000000000000000000001", a)

	_, ok = walletsig.Address("0x12")
	assert.False(t, ok)
}
