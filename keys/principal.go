package keys

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudflare/circl/sign/dilithium/mode3"
)

const (
	AlgEd25519    = "ed25519"
	AlgDilithium3 = "dilithium3"
)

// PrincipalFromSeed returns the ed25519 principal for a seed.
func PrincipalFromSeed(seed []byte) (string, error) {
	if len(seed) != ed25519.SeedSize {
		return "", fmt.Errorf("seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return PrincipalFromPublicKey(priv.Public().(ed25519.PublicKey))
}

// PrincipalFromPublicKey encodes an ed25519 public key as a principal.
func PrincipalFromPublicKey(pub ed25519.PublicKey) (string, error) {
	if l := len(pub); l != ed25519.PublicKeySize {
		return "", fmt.Errorf("ed25519 public key must be %d bytes, got %d", ed25519.PublicKeySize, l)
	}
	return AlgEd25519 + ":" + base64.StdEncoding.EncodeToString(pub), nil
}

// PrincipalFromDilithium3 encodes a dilithium3 public key as a principal.
func PrincipalFromDilithium3(pub *mode3.PublicKey) (string, error) {
	if pub == nil {
		return "", errors.New("missing public key")
	}
	return AlgDilithium3 + ":" + base64.StdEncoding.EncodeToString(pub.Bytes()), nil
}

// SplitPrincipal returns the algorithm and raw public key of a self-certifying
// principal.
func SplitPrincipal(p string) (alg string, pub []byte, err error) {
	alg, enc, ok := strings.Cut(p, ":")
	if !ok {
		return "", nil, fmt.Errorf("principal %q has no algorithm prefix", p)
	}
	pub, err = base64.StdEncoding.DecodeString(enc)
	if err != nil {
		return "", nil, fmt.Errorf("principal %q: %w", p, err)
	}
	switch alg {
	case AlgEd25519:
		if len(pub) != ed25519.PublicKeySize {
			return "", nil, fmt.Errorf("ed25519 public key must be %d bytes, got %d", ed25519.PublicKeySize, len(pub))
		}
	case AlgDilithium3:
		if len(pub) != mode3.PublicKeySize {
			return "", nil, fmt.Errorf("dilithium3 public key must be %d bytes, got %d", mode3.PublicKeySize, len(pub))
		}
	default:
		return "", nil, fmt.Errorf("unsupported algorithm %q", alg)
	}
	return alg, pub, nil
}

// DeriveSeed deterministically derives a purpose-specific seed from a root seed.
func DeriveSeed(root []byte, purpose string) ([]byte, error) {
	if len(root) != ed25519.SeedSize {
		return nil, fmt.Errorf("root seed must be %d bytes", ed25519.SeedSize)
	}
	if err := CheckName(purpose); err != nil {
		return nil, err
	}
	h := sha256.New()
	_, _ = h.Write(root)
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte("oeuvre-keys-v1"))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(purpose))
	return h.Sum(nil)[:ed25519.SeedSize], nil
}
