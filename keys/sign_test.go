package keys

import (
	"crypto/ed25519"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func testSeed(b byte) []byte {
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = b + byte(i)
	}
	return seed
}

func TestEd25519Signer_Verifies(t *testing.T) {
	s, err := NewEd25519Signer(testSeed(0))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(s.KeyID(), "ed25519:"))

	msg := []byte(`{"seq":1,"kind":"mint"}`)
	sig, err := s.Sign(msg)
	require.NoError(t, err)
	require.NoError(t, Verify(s.KeyID(), msg, sig))
	require.ErrorIs(t, Verify(s.KeyID(), []byte("tampered"), sig), ErrBadSignature)
}

func TestDilithium3Signer_Verifies(t *testing.T) {
	s, err := NewDilithium3Signer(testSeed(7))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(s.KeyID(), "dilithium3:"))

	msg := []byte("hello")
	sig, err := s.Sign(msg)
	require.NoError(t, err)
	require.NoError(t, Verify(s.KeyID(), msg, sig))
	require.ErrorIs(t, Verify(s.KeyID(), []byte("hellO"), sig), ErrBadSignature)

	again, err := NewDilithium3Signer(testSeed(7))
	require.NoError(t, err)
	require.Equal(t, s.KeyID(), again.KeyID(), "keys are deterministic in the seed")
}

func TestVerify_WrongKey(t *testing.T) {
	a, err := NewEd25519Signer(testSeed(1))
	require.NoError(t, err)
	b, err := NewEd25519Signer(testSeed(2))
	require.NoError(t, err)

	sig, err := a.Sign([]byte("m"))
	require.NoError(t, err)
	require.ErrorIs(t, Verify(b.KeyID(), []byte("m"), sig), ErrBadSignature)
}

func TestVerify_RejectsMalformedPrincipals(t *testing.T) {
	for _, p := range []string{"alice", "rsa:AAAA", "ed25519:not-base64!", "ed25519:AAAA"} {
		require.Error(t, Verify(p, []byte("m"), ""), p)
	}
}

func TestNewSigner(t *testing.T) {
	s, err := NewSigner("", testSeed(3))
	require.NoError(t, err)
	require.IsType(t, &Ed25519Signer{}, s)

	_, err = NewSigner("rsa", testSeed(3))
	require.Error(t, err)
	_, err = NewSigner(AlgEd25519, []byte("short"))
	require.Error(t, err)
}
