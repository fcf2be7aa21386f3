// Package storage defines the content-addressed store used for payload
// archives and journal archives.
//
// The registry never depends on a CAS: commitments are computed locally and a
// CAS only keeps the bytes a commitment refers to, for operators who want them.
package storage

import "github.com/ipfs/go-cid"

// CAS is a minimal content-addressable storage interface.
//
// Contract:
// - Put MUST be idempotent.
// - Stored objects MUST be immutable.
// - CIDs MUST be CIDv1 raw sha2-256 of the bytes written, so a stored payload's
//   CID equals the commitment minted for it.
// - Get MUST return ErrNotFound when the CID is absent.
type CAS interface {
	Put(bytes []byte) (cid.Cid, error)
	Get(id cid.Cid) ([]byte, error)
	Has(id cid.Cid) bool
}

// Archive stores payload in cas and checks that the returned CID equals
// commitment.
func Archive(cas CAS, commitment cid.Cid, payload []byte) error {
	if !commitment.Defined() {
		return ErrInvalidCID
	}
	got, err := cas.Put(payload)
	if err != nil {
		return err
	}
	if !got.Equals(commitment) {
		return ErrCIDMismatch
	}
	return nil
}
