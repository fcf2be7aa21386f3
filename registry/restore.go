package registry

import (
	"fmt"

	"xdao.co/oeuvre/model"
)

// Restore replays a change log into an empty registry. Every record is
// re-applied through the same store and index paths as the original
// mutation, so a log that could not have been produced by this registry is
// rejected. Records are not re-sent to the sink.
//
// Admission rules installed with WithPointerCheck are not applied to replayed
// records, and edits are checked against creator and window only: tightening
// a rule or switching to an immutable Gate must not invalidate history.
//
// On failure the registry is faulted and must be discarded.
func (r *Registry) Restore(records []model.ChangeRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.faulted(); err != nil {
		return err
	}
	if len(r.log) != 0 || r.store.Len() != 0 {
		return newError(KindInvalidInput, "restore requires an empty registry")
	}
	for i, rec := range records {
		if want := uint64(i) + 1; rec.Seq != want {
			return r.setFault(newError(KindInvariantViolation, fmt.Sprintf("record %d has seq %d, want %d", i, rec.Seq, want)))
		}
		if err := r.apply(rec); err != nil {
			return r.setFault(wrapError(KindInvariantViolation, fmt.Sprintf("replay seq %d (%s entry %d)", rec.Seq, rec.Kind, rec.EntryID), err))
		}
		r.log = append(r.log, rec)
		r.observe(rec.Timestamp)
	}
	r.logger.Info("registry restored", "records", len(records), "entries", r.store.Len())
	return nil
}

func (r *Registry) apply(rec model.ChangeRecord) error {
	switch rec.Kind {
	case model.KindMint:
		id, err := r.store.create(draft{
			creator:   rec.Creator,
			payload:   rec.MetadataPointer,
			royalty:   rec.RoyaltyBasisPoints,
			createdAt: rec.Timestamp,
			point:     rec.SequencePoint,
		})
		if err != nil {
			return err
		}
		if id != rec.EntryID {
			r.store.discard(id)
			return fmt.Errorf("sequencer issued %d", id)
		}
		e, _ := r.store.Get(id)
		if e.Commitment.String() != rec.Commitment {
			r.store.discard(id)
			return fmt.Errorf("commitment %s does not match recorded %s", e.Commitment, rec.Commitment)
		}
		return r.index.Add(rec.Owner, id)
	case model.KindMetadata:
		return r.store.updatePointer(rec.EntryID, rec.Caller, rec.MetadataPointer, rec.Timestamp, Gate{}, nil)
	case model.KindRenderer:
		return r.store.setRenderer(rec.EntryID, rec.Caller, rec.Renderer, rec.RendererEnabled, rec.Timestamp, Gate{})
	case model.KindTransfer:
		if _, err := r.store.Get(rec.EntryID); err != nil {
			return err
		}
		if err := r.index.Remove(rec.From, rec.EntryID); err != nil {
			return err
		}
		return r.index.Add(rec.Owner, rec.EntryID)
	default:
		return fmt.Errorf("unknown record kind %q", rec.Kind)
	}
}
