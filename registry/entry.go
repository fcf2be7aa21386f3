package registry

import (
	"time"

	"github.com/ipfs/go-cid"
)

const (
	// MaxPayloadBytes bounds payloads and metadata pointers. Larger content
	// belongs off-registry, referenced by a pointer.
	MaxPayloadBytes = 2048
	// MaxRoyaltyBasisPoints is 100%.
	MaxRoyaltyBasisPoints = 10000
)

// Delegate is an optional external renderer designated by the entry's creator.
type Delegate struct {
	Ref     string
	Enabled bool
}

// Entry is one permanent record.
//
// ID, Creator, CreatedAt, CreatedAtSequence, Commitment and RoyaltyBasisPoints
// never change. MetadataPointer and Renderer change only inside the window.
type Entry struct {
	ID                 uint64
	Creator            string
	CreatedAt          time.Time
	CreatedAtSequence  uint64
	Commitment         cid.Cid
	MetadataPointer    string
	Renderer           Delegate
	RoyaltyBasisPoints uint16
}

// Resolution answers "where is this entry's metadata".
//
// When Delegated is true the caller should ask Delegate; Pointer still holds
// the stored pointer so a caller can fall back to it.
type Resolution struct {
	EntryID   uint64
	Pointer   string
	Delegated bool
	Delegate  string
}

// MintRequest describes a new entry. Owner defaults to Creator.
type MintRequest struct {
	Creator            string
	Owner              string
	Payload            string
	RoyaltyBasisPoints uint16
}
