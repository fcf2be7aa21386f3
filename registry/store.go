package registry

import (
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"xdao.co/oeuvre/cidutil"
	"xdao.co/oeuvre/sequencer"
)

// EntryStore holds entries by id. It is not safe for concurrent use; the
// Registry serializes access to it.
type EntryStore struct {
	seq     sequencer.Sequencer
	gate    Gate
	check   func(pointer string) error
	entries map[uint64]*Entry
}

// NewEntryStore returns an empty store. check, if non-nil, is an extra
// admission rule applied to payloads and pointer updates.
func NewEntryStore(seq sequencer.Sequencer, gate Gate, check func(string) error) *EntryStore {
	if seq == nil {
		seq = sequencer.NewCounter(0)
	}
	return &EntryStore{
		seq:     seq,
		gate:    gate,
		check:   check,
		entries: make(map[uint64]*Entry),
	}
}

type draft struct {
	creator   string
	payload   string
	royalty   uint16
	createdAt time.Time
	point     uint64
	admit     func(string) error // nil skips the admission rule
}

// Create stores a new entry whose pointer starts equal to payload and whose
// commitment is the CID of payload.
func (s *EntryStore) Create(creator, payload string, now time.Time, point uint64) (uint64, error) {
	return s.create(draft{creator: creator, payload: payload, createdAt: now, point: point, admit: s.check})
}

func (s *EntryStore) create(d draft) (uint64, error) {
	if d.creator == "" {
		return 0, newError(KindInvalidInput, "creator is required")
	}
	if d.royalty > MaxRoyaltyBasisPoints {
		return 0, newError(KindInvalidInput, fmt.Sprintf("royalty %d exceeds %d basis points", d.royalty, MaxRoyaltyBasisPoints))
	}
	if err := s.validate(d.payload, d.admit); err != nil {
		return 0, err
	}
	commitment, err := cidutil.Commit(d.payload)
	if err != nil {
		return 0, wrapError(KindInvalidInput, "commitment", err)
	}
	id, err := s.seq.Next()
	if err != nil {
		if errors.Is(err, sequencer.ErrExhausted) {
			return 0, wrapError(KindResourceExhausted, "cannot issue entry id", err)
		}
		return 0, wrapError(KindInvariantViolation, "sequencer failed", err)
	}
	if _, exists := s.entries[id]; exists {
		return 0, newError(KindInvariantViolation, fmt.Sprintf("sequencer reissued id %d", id))
	}
	s.entries[id] = &Entry{
		ID:                 id,
		Creator:            d.creator,
		CreatedAt:          d.createdAt,
		CreatedAtSequence:  d.point,
		Commitment:         commitment,
		MetadataPointer:    d.payload,
		RoyaltyBasisPoints: d.royalty,
	}
	return id, nil
}

// discard drops an entry whose creation could not be completed. The id stays burned.
func (s *EntryStore) discard(id uint64) { delete(s.entries, id) }

// Get returns a copy of the entry.
func (s *EntryStore) Get(id uint64) (Entry, error) {
	e, ok := s.entries[id]
	if !ok {
		return Entry{}, newError(KindNotFound, fmt.Sprintf("entry %d not found", id))
	}
	return *e, nil
}

// Len returns the number of stored entries.
func (s *EntryStore) Len() int { return len(s.entries) }

// UpdateMetadataPointer moves the pointer. The commitment is untouched.
func (s *EntryStore) UpdateMetadataPointer(id uint64, caller, pointer string, now time.Time) error {
	return s.updatePointer(id, caller, pointer, now, s.gate, s.check)
}

// updatePointer checks the edit against gate rather than the store's own, so
// replay can judge history by the rules it was written under.
func (s *EntryStore) updatePointer(id uint64, caller, pointer string, now time.Time, gate Gate, admit func(string) error) error {
	e, ok := s.entries[id]
	if !ok {
		return newError(KindNotFound, fmt.Sprintf("entry %d not found", id))
	}
	if err := gate.Check(*e, caller, now); err != nil {
		return err
	}
	if err := s.validate(pointer, admit); err != nil {
		return err
	}
	e.MetadataPointer = pointer
	return nil
}

// SetRendererDelegate sets or clears the renderer delegate.
// Enabling requires a non-empty ref.
func (s *EntryStore) SetRendererDelegate(id uint64, caller, ref string, enabled bool, now time.Time) error {
	return s.setRenderer(id, caller, ref, enabled, now, s.gate)
}

func (s *EntryStore) setRenderer(id uint64, caller, ref string, enabled bool, now time.Time, gate Gate) error {
	e, ok := s.entries[id]
	if !ok {
		return newError(KindNotFound, fmt.Sprintf("entry %d not found", id))
	}
	if err := gate.Check(*e, caller, now); err != nil {
		return err
	}
	if enabled && ref == "" {
		return newError(KindInvalidInput, "renderer delegate is required when enabling")
	}
	if len(ref) > MaxPayloadBytes {
		return newError(KindInvalidInput, fmt.Sprintf("renderer delegate exceeds %d bytes", MaxPayloadBytes))
	}
	e.Renderer = Delegate{Ref: ref, Enabled: enabled}
	return nil
}

// ResolveMetadata reports where e's metadata lives. It never mutates state.
//
// An enabled delegate is honoured only while the window is open; once frozen
// the stored pointer is authoritative.
func (s *EntryStore) ResolveMetadata(id uint64, now time.Time) (Resolution, error) {
	e, ok := s.entries[id]
	if !ok {
		return Resolution{}, newError(KindNotFound, fmt.Sprintf("entry %d not found", id))
	}
	res := Resolution{EntryID: id, Pointer: e.MetadataPointer}
	if e.Renderer.Enabled && e.Renderer.Ref != "" && s.gate.Open(*e, now) {
		res.Delegated = true
		res.Delegate = e.Renderer.Ref
	}
	return res, nil
}

func (s *EntryStore) validate(pointer string, admit func(string) error) error {
	if pointer == "" {
		return newError(KindInvalidInput, "payload is empty")
	}
	if len(pointer) > MaxPayloadBytes {
		return newError(KindInvalidInput, fmt.Sprintf("payload is %d bytes, limit is %d", len(pointer), MaxPayloadBytes))
	}
	if !utf8.ValidString(pointer) {
		return newError(KindInvalidInput, "payload is not valid UTF-8")
	}
	if admit == nil {
		return nil
	}
	if err := admit(pointer); err != nil {
		return wrapError(KindInvalidInput, "payload rejected", err)
	}
	return nil
}
