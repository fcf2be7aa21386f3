package keys

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/cloudflare/circl/sign/dilithium/mode3"
	"golang.org/x/crypto/sha3"
)

// ErrBadSignature is returned by Verify when a signature does not match.
var ErrBadSignature = errors.New("keys: signature does not verify")

// Signer signs change records. Signatures are base64 strings; KeyID is the
// signer's principal.
type Signer interface {
	KeyID() string
	Sign(message []byte) (string, error)
}

// Ed25519Signer signs sha256(message).
type Ed25519Signer struct {
	priv ed25519.PrivateKey
	id   string
}

func NewEd25519Signer(seed []byte) (*Ed25519Signer, error) {
	id, err := PrincipalFromSeed(seed)
	if err != nil {
		return nil, err
	}
	return &Ed25519Signer{priv: ed25519.NewKeyFromSeed(seed), id: id}, nil
}

func (s *Ed25519Signer) KeyID() string { return s.id }

func (s *Ed25519Signer) Sign(message []byte) (string, error) {
	digest := sha256.Sum256(message)
	return base64.StdEncoding.EncodeToString(ed25519.Sign(s.priv, digest[:])), nil
}

// Dilithium3Signer signs sha3-256(message) with a post-quantum key.
type Dilithium3Signer struct {
	priv *mode3.PrivateKey
	id   string
}

func NewDilithium3Signer(seed []byte) (*Dilithium3Signer, error) {
	if len(seed) != mode3.SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", mode3.SeedSize, len(seed))
	}
	var s [mode3.SeedSize]byte
	copy(s[:], seed)
	pub, priv := mode3.NewKeyFromSeed(&s)
	id, err := PrincipalFromDilithium3(pub)
	if err != nil {
		return nil, err
	}
	return &Dilithium3Signer{priv: priv, id: id}, nil
}

func (s *Dilithium3Signer) KeyID() string { return s.id }

func (s *Dilithium3Signer) Sign(message []byte) (string, error) {
	digest := sha3.Sum256(message)
	sig := make([]byte, mode3.SignatureSize)
	mode3.SignTo(s.priv, digest[:], sig)
	return base64.StdEncoding.EncodeToString(sig), nil
}

// NewSigner builds a signer for alg from a seed.
func NewSigner(alg string, seed []byte) (Signer, error) {
	switch alg {
	case AlgEd25519, "":
		return NewEd25519Signer(seed)
	case AlgDilithium3:
		return NewDilithium3Signer(seed)
	default:
		return nil, fmt.Errorf("unsupported signer algorithm %q", alg)
	}
}

// Verify checks sig against message for the self-certifying principal keyID.
func Verify(keyID string, message []byte, sig string) error {
	alg, pub, err := SplitPrincipal(keyID)
	if err != nil {
		return err
	}
	raw, err := base64.StdEncoding.DecodeString(sig)
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}
	switch alg {
	case AlgEd25519:
		digest := sha256.Sum256(message)
		if !ed25519.Verify(ed25519.PublicKey(pub), digest[:], raw) {
			return ErrBadSignature
		}
	case AlgDilithium3:
		var pk mode3.PublicKey
		if err := pk.UnmarshalBinary(pub); err != nil {
			return err
		}
		digest := sha3.Sum256(message)
		if !mode3.Verify(&pk, digest[:], raw) {
			return ErrBadSignature
		}
	}
	return nil
}
