package keys

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// KeyStore keeps named root seeds on the local filesystem as
// <Directory>/<name>.seed, hex-encoded, mode 0600.
type KeyStore struct {
	Directory string
}

// DefaultDirectory is ~/.oeuvre/keys.
func DefaultDirectory() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".oeuvre", "keys"), nil
}

// OpenKeyStore returns a store at directory, or at DefaultDirectory when empty.
func OpenKeyStore(directory string) (*KeyStore, error) {
	if directory == "" {
		var err error
		if directory, err = DefaultDirectory(); err != nil {
			return nil, err
		}
	}
	return &KeyStore{Directory: directory}, nil
}

// CheckName accepts [A-Za-z0-9_-]+.
func CheckName(name string) error {
	if name == "" {
		return errors.New("name cannot be empty")
	}
	for _, c := range name {
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '-' || c == '_' {
			continue
		}
		return fmt.Errorf("invalid character %q in name", c)
	}
	return nil
}

func ParseSeedHex(seedHex string) ([]byte, error) {
	seedHex = strings.TrimSpace(seedHex)
	seedHex = strings.TrimPrefix(seedHex, "0x")
	data, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, err
	}
	if len(data) != ed25519.SeedSize {
		return nil, fmt.Errorf("expected seed length of %d bytes, got %d", ed25519.SeedSize, len(data))
	}
	return data, nil
}

// LoadSeedFile reads a hex seed file.
func LoadSeedFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseSeedHex(string(data))
}

// WriteSeedFile writes seed hex-encoded to path. Unless overwrite is set an
// existing file is an error.
func WriteSeedFile(path string, seed []byte, overwrite bool) error {
	if len(seed) != ed25519.SeedSize {
		return fmt.Errorf("expected seed length of %d bytes", ed25519.SeedSize)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	flags := os.O_WRONLY | os.O_CREATE
	if overwrite {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(hex.EncodeToString(seed) + "\n"); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Path returns the seed file for name.
func (ks *KeyStore) Path(name string) string {
	return filepath.Join(ks.Directory, name+".seed")
}

// Init stores a root seed under name and returns its ed25519 principal. A nil
// seed generates a fresh one.
func (ks *KeyStore) Init(name string, seed []byte, overwrite bool) (principal, path string, err error) {
	if err := CheckName(name); err != nil {
		return "", "", err
	}
	if seed == nil {
		seed = make([]byte, ed25519.SeedSize)
		if _, err := rand.Read(seed); err != nil {
			return "", "", err
		}
	}
	path = ks.Path(name)
	if err := WriteSeedFile(path, seed, overwrite); err != nil {
		return "", "", err
	}
	principal, err = PrincipalFromSeed(seed)
	return principal, path, err
}

// Seed loads the root seed stored under name.
func (ks *KeyStore) Seed(name string) ([]byte, error) {
	if err := CheckName(name); err != nil {
		return nil, err
	}
	return LoadSeedFile(ks.Path(name))
}

// Signer returns a signer for alg keyed by the seed derived from name's root
// seed for purpose.
func (ks *KeyStore) Signer(name, purpose, alg string) (Signer, error) {
	root, err := ks.Seed(name)
	if err != nil {
		return nil, err
	}
	seed, err := DeriveSeed(root, purpose)
	if err != nil {
		return nil, err
	}
	return NewSigner(alg, seed)
}

// Names lists stored key names, sorted.
func (ks *KeyStore) Names() ([]string, error) {
	entries, err := os.ReadDir(ks.Directory)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".seed") {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".seed"))
	}
	sort.Strings(names)
	return names, nil
}
