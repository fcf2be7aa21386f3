package model

import "time"

// RecordKind names the operation a ChangeRecord describes.
type RecordKind string

const (
	KindMint     RecordKind = "mint"
	KindMetadata RecordKind = "metadata"
	KindRenderer RecordKind = "renderer"
	KindTransfer RecordKind = "transfer"
)

// WindowFlag places a change relative to the entry's mutation window.
type WindowFlag string

const (
	WindowCreated WindowFlag = "created"
	WindowOpen    WindowFlag = "open"
	WindowFrozen  WindowFlag = "frozen"
)

// ChangeRecord is emitted for every committed mutation. The ordered sequence of
// records is sufficient to rebuild the registry.
//
// MetadataPointer is the pointer as of the change. For mint records it is the
// finalized payload the commitment was computed from.
type ChangeRecord struct {
	Seq                uint64     `json:"seq"`
	EventID            string     `json:"eventId"`
	Kind               RecordKind `json:"kind"`
	EntryID            uint64     `json:"entryId"`
	Creator            string     `json:"creator"`
	Caller             string     `json:"actingCaller"`
	Owner              string     `json:"owner"`
	From               string     `json:"from,omitempty"`
	MetadataPointer    string     `json:"metadataPointer"`
	Commitment         string     `json:"contentCommitment"`
	Fingerprint        string     `json:"fingerprint"`
	Renderer           string     `json:"renderer,omitempty"`
	RendererEnabled    bool       `json:"rendererEnabled,omitempty"`
	RoyaltyBasisPoints uint16     `json:"royaltyBasisPoints,omitempty"`
	Window             WindowFlag `json:"window"`
	Timestamp          time.Time  `json:"timestamp"`
	SequencePoint      uint64     `json:"sequencePoint"`

	// Set by signing sinks; empty otherwise.
	SignerKey string `json:"signerKey,omitempty"`
	Signature string `json:"signature,omitempty"`
}

// Unsigned returns a copy of r without signature fields.
func (r ChangeRecord) Unsigned() ChangeRecord {
	r.SignerKey = ""
	r.Signature = ""
	return r
}

// EntryView is the JSON projection of a registry entry.
type EntryView struct {
	ID                 uint64    `json:"id"`
	Creator            string    `json:"creator"`
	Owner              string    `json:"owner"`
	CreatedAt          time.Time `json:"createdAt"`
	CreatedAtSequence  uint64    `json:"createdAtSequence"`
	Commitment         string    `json:"contentCommitment"`
	MetadataPointer    string    `json:"metadataPointer"`
	Renderer           string    `json:"renderer,omitempty"`
	RendererEnabled    bool      `json:"rendererEnabled"`
	RoyaltyBasisPoints uint16    `json:"royaltyBasisPoints"`
	Deadline           time.Time `json:"mutableUntil"`
	Frozen             bool      `json:"frozen"`
}

// ResolutionView is the JSON projection of a metadata resolution.
type ResolutionView struct {
	EntryID   uint64 `json:"entryId"`
	Pointer   string `json:"pointer"`
	Delegated bool   `json:"delegated"`
	Delegate  string `json:"delegate,omitempty"`
}
