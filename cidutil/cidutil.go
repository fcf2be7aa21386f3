// Package cidutil derives the content commitments and fingerprints used by the registry.
//
// A commitment is a CIDv1 with the "raw" multicodec and a sha2-256 multihash, so it is
// interchangeable with the CID an IPFS node or any storage.CAS assigns to the same bytes.
package cidutil

import (
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// CIDv1RawSHA256 returns a CIDv1 string using the "raw" multicodec
// and a sha2-256 multihash.
func CIDv1RawSHA256(data []byte) string {
	id, err := CIDv1RawSHA256CID(data)
	if err != nil {
		// multihash.Sum only errors for invalid inputs; with SHA2_256 and -1 length,
		// this should be unreachable.
		return ""
	}
	return id.String()
}

// CIDv1RawSHA256CID returns a CIDv1 (raw + sha2-256) derived from data.
func CIDv1RawSHA256CID(data []byte) (cid.Cid, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}

// Commit returns the content commitment for a finalized metadata payload.
func Commit(payload string) (cid.Cid, error) {
	return CIDv1RawSHA256CID([]byte(payload))
}

// ParseCommitment decodes s and checks that it uses the commitment encoding.
func ParseCommitment(s string) (cid.Cid, error) {
	id, err := cid.Decode(s)
	if err != nil {
		return cid.Undef, err
	}
	if id.Version() != 1 || id.Type() != cid.Raw {
		return cid.Undef, fmt.Errorf("cidutil: %s is not a CIDv1 raw commitment", s)
	}
	dec, err := multihash.Decode(id.Hash())
	if err != nil {
		return cid.Undef, err
	}
	if dec.Code != multihash.SHA2_256 {
		return cid.Undef, fmt.Errorf("cidutil: %s does not use sha2-256", s)
	}
	return id, nil
}

// Matches reports whether payload hashes to commitment.
func Matches(commitment cid.Cid, payload string) bool {
	if !commitment.Defined() {
		return false
	}
	got, err := Commit(payload)
	if err != nil {
		return false
	}
	return got.Equals(commitment)
}

// Fingerprint returns the hex-encoded sha3-256 multihash of a metadata pointer.
// Change records carry it so indexers can compare pointers without storing them.
func Fingerprint(pointer string) string {
	sum, err := multihash.Sum([]byte(pointer), multihash.SHA3_256, -1)
	if err != nil {
		return ""
	}
	return sum.HexString()
}
