package storage

import (
	"errors"
	"fmt"

	"github.com/ipfs/go-cid"

	"xdao.co/oeuvre/cidutil"
)

// Replica is a named member of a Mirror.
type Replica struct {
	Name string
	CAS  CAS
}

// Mirror writes every object to all replicas and reads from the first replica
// that has it, in slice order.
//
// Put succeeds only when every replica stored the object under the expected
// CID. A failing replica does not stop the others; the errors are joined.
type Mirror struct {
	Replicas []Replica
}

var _ CAS = Mirror{}

// PutAll writes b to every replica and returns the names of the replicas
// that now hold it.
func (m Mirror) PutAll(b []byte) (cid.Cid, []string, error) {
	want, err := cidutil.CIDv1RawSHA256CID(b)
	if err != nil {
		return cid.Undef, nil, err
	}
	if len(m.Replicas) == 0 {
		return cid.Undef, nil, errors.New("storage: mirror has no replicas")
	}
	var stored []string
	var errs []error
	for _, r := range m.Replicas {
		got, err := r.CAS.Put(b)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("replica %s: %w", r.Name, err))
		case !got.Equals(want):
			errs = append(errs, fmt.Errorf("replica %s: %w", r.Name, ErrCIDMismatch))
		default:
			stored = append(stored, r.Name)
		}
	}
	return want, stored, errors.Join(errs...)
}

func (m Mirror) Put(b []byte) (cid.Cid, error) {
	id, _, err := m.PutAll(b)
	if err != nil {
		return cid.Undef, err
	}
	return id, nil
}

func (m Mirror) Get(id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, ErrInvalidCID
	}
	for _, r := range m.Replicas {
		b, err := r.CAS.Get(id)
		if err == nil {
			return b, nil
		}
		if !IsNotFound(err) {
			return nil, fmt.Errorf("replica %s: %w", r.Name, err)
		}
	}
	return nil, ErrNotFound
}

func (m Mirror) Has(id cid.Cid) bool {
	for _, r := range m.Replicas {
		if r.CAS.Has(id) {
			return true
		}
	}
	return false
}
