package registry

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"xdao.co/oeuvre/cidutil"
	"xdao.co/oeuvre/model"
	"xdao.co/oeuvre/ownerindex"
	"xdao.co/oeuvre/sequencer"
)

// Clock supplies wall-clock time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// Sink receives every committed change record, in commit order.
type Sink interface {
	Append(rec model.ChangeRecord) error
}

// Stats is a point-in-time summary.
type Stats struct {
	Entries      int
	Owners       int
	Height       uint64
	SinkFailures uint64
	Faulted      bool
}

// Registry serializes every mutation through one lock. Readers get copies.
type Registry struct {
	mu    sync.RWMutex
	store *EntryStore
	index *ownerindex.Index
	log   []model.ChangeRecord
	fault error

	sinkFailures uint64

	clockMu sync.Mutex
	clock   Clock
	lastNow time.Time

	seq        sequencer.Sequencer
	gate       Gate
	check      func(string) error
	points     func() uint64
	sink       Sink
	logger     *slog.Logger
	newEventID func() string
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock sets the time source. Observed time never decreases: if the clock
// steps backwards the registry keeps using the latest instant it has seen.
func WithClock(c Clock) Option { return func(r *Registry) { r.clock = c } }

// WithSequencer sets the id sequencer.
func WithSequencer(s sequencer.Sequencer) Option { return func(r *Registry) { r.seq = s } }

// WithSequencePoints sets the source of ordering markers (e.g. a chain height).
// By default the marker is the log position of the change.
func WithSequencePoints(fn func() uint64) Option { return func(r *Registry) { r.points = fn } }

// WithGate sets the mutation policy.
func WithGate(g Gate) Option { return func(r *Registry) { r.gate = g } }

// WithPointerCheck installs an extra admission rule for payloads and pointers.
func WithPointerCheck(fn func(string) error) Option { return func(r *Registry) { r.check = fn } }

// WithSink sets the change-record sink.
func WithSink(s Sink) Option { return func(r *Registry) { r.sink = s } }

// WithLogger sets the structured logger. Defaults to discarding.
func WithLogger(l *slog.Logger) Option { return func(r *Registry) { r.logger = l } }

// WithNewEventID overrides event id generation (uuid by default).
func WithNewEventID(fn func() string) Option { return func(r *Registry) { r.newEventID = fn } }

// New constructs an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	if r.clock == nil {
		r.clock = ClockFunc(time.Now)
	}
	if r.seq == nil {
		r.seq = sequencer.NewCounter(0)
	}
	if r.logger == nil {
		r.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if r.newEventID == nil {
		r.newEventID = uuid.NewString
	}
	r.store = NewEntryStore(r.seq, r.gate, r.check)
	r.index = ownerindex.New()
	return r
}

// Gate returns the registry's mutation policy.
func (r *Registry) Gate() Gate { return r.gate }

// Mint creates an entry and indexes it under its owner.
func (r *Registry) Mint(req MintRequest) (Entry, error) {
	admit := r.rule(req.Payload)

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.faulted(); err != nil {
		return Entry{}, err
	}
	owner := req.Owner
	if owner == "" {
		owner = req.Creator
	}
	now := r.now()
	point := r.point()

	id, err := r.store.create(draft{
		creator:   req.Creator,
		payload:   req.Payload,
		royalty:   req.RoyaltyBasisPoints,
		createdAt: now,
		point:     point,
		admit:     admit,
	})
	if err != nil {
		if Fatal(err) {
			return Entry{}, r.setFault(err)
		}
		return Entry{}, err
	}
	if err := r.index.Add(owner, id); err != nil {
		r.store.discard(id)
		return Entry{}, r.setFault(wrapError(KindInvariantViolation, fmt.Sprintf("index new entry %d", id), err))
	}
	e, _ := r.store.Get(id)

	err = r.commit(model.ChangeRecord{
		Kind:               model.KindMint,
		EntryID:            id,
		Creator:            e.Creator,
		Caller:             e.Creator,
		Owner:              owner,
		MetadataPointer:    e.MetadataPointer,
		Commitment:         e.Commitment.String(),
		Fingerprint:        cidutil.Fingerprint(e.MetadataPointer),
		RoyaltyBasisPoints: e.RoyaltyBasisPoints,
		Window:             model.WindowCreated,
		Timestamp:          now,
		SequencePoint:      point,
	})
	if err != nil {
		return Entry{}, err
	}
	r.logger.Debug("entry minted", "id", id, "creator", e.Creator, "owner", owner, "commitment", e.Commitment.String())
	return e, nil
}

// Transfer moves id from its current owner (which must be from) to to.
// Whether caller may do so is decided before the call reaches the registry;
// caller is recorded.
func (r *Registry) Transfer(caller string, id uint64, from, to string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.faulted(); err != nil {
		return err
	}
	if to == "" {
		return newError(KindInvalidInput, "recipient is required")
	}
	e, err := r.store.Get(id)
	if err != nil {
		return err
	}
	owner, ok := r.index.OwnerOf(id)
	if !ok {
		return r.setFault(newError(KindInvariantViolation, fmt.Sprintf("entry %d exists but is not indexed", id)))
	}
	if owner != from {
		return newError(KindInvalidInput, fmt.Sprintf("entry %d is not owned by %q", id, from))
	}
	now := r.now()
	point := r.point()

	if err := r.index.Remove(from, id); err != nil {
		return r.setFault(wrapError(KindNotIndexed, fmt.Sprintf("remove entry %d from %q", id, from), err))
	}
	if err := r.index.Add(to, id); err != nil {
		if rerr := r.index.Add(from, id); rerr != nil {
			r.logger.Error("transfer rollback failed", "id", id, "from", from, "err", rerr)
		}
		return r.setFault(wrapError(KindInvariantViolation, fmt.Sprintf("index entry %d under %q", id, to), err))
	}

	err = r.commit(model.ChangeRecord{
		Kind:            model.KindTransfer,
		EntryID:         id,
		Creator:         e.Creator,
		Caller:          caller,
		Owner:           to,
		From:            from,
		MetadataPointer: e.MetadataPointer,
		Commitment:      e.Commitment.String(),
		Fingerprint:     cidutil.Fingerprint(e.MetadataPointer),
		Renderer:        e.Renderer.Ref,
		RendererEnabled: e.Renderer.Enabled,
		Window:          r.windowFlag(e, now),
		Timestamp:       now,
		SequencePoint:   point,
	})
	if err != nil {
		return err
	}
	r.logger.Debug("entry transferred", "id", id, "from", from, "to", to, "caller", caller)
	return nil
}

// UpdateMetadata moves the metadata pointer of id. Only the creator may do so,
// and only while the window is open.
func (r *Registry) UpdateMetadata(caller string, id uint64, pointer string) error {
	admit := r.rule(pointer)

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.faulted(); err != nil {
		return err
	}
	now := r.now()
	if err := r.store.updatePointer(id, caller, pointer, now, r.gate, admit); err != nil {
		r.logger.Debug("metadata update refused", "id", id, "caller", caller, "kind", KindOf(err))
		return err
	}
	return r.commitEdit(model.KindMetadata, caller, id, now)
}

// SetRenderer sets, replaces or disables the renderer delegate of id under the
// same rule as UpdateMetadata.
func (r *Registry) SetRenderer(caller string, id uint64, ref string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.faulted(); err != nil {
		return err
	}
	now := r.now()
	if err := r.store.SetRendererDelegate(id, caller, ref, enabled, now); err != nil {
		r.logger.Debug("renderer update refused", "id", id, "caller", caller, "kind", KindOf(err))
		return err
	}
	return r.commitEdit(model.KindRenderer, caller, id, now)
}

func (r *Registry) commitEdit(kind model.RecordKind, caller string, id uint64, now time.Time) error {
	e, _ := r.store.Get(id)
	owner, _ := r.index.OwnerOf(id)
	err := r.commit(model.ChangeRecord{
		Kind:            kind,
		EntryID:         id,
		Creator:         e.Creator,
		Caller:          caller,
		Owner:           owner,
		MetadataPointer: e.MetadataPointer,
		Commitment:      e.Commitment.String(),
		Fingerprint:     cidutil.Fingerprint(e.MetadataPointer),
		Renderer:        e.Renderer.Ref,
		RendererEnabled: e.Renderer.Enabled,
		Window:          model.WindowOpen,
		Timestamp:       now,
		SequencePoint:   r.point(),
	})
	if err != nil {
		return err
	}
	r.logger.Debug("entry edited", "id", id, "kind", kind, "caller", caller)
	return nil
}

// Get returns a copy of entry id.
func (r *Registry) Get(id uint64) (Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.store.Get(id)
}

// View returns the boundary projection of entry id.
func (r *Registry) View(id uint64) (model.EntryView, error) {
	now := r.now()
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, err := r.store.Get(id)
	if err != nil {
		return model.EntryView{}, err
	}
	owner, _ := r.index.OwnerOf(id)
	return model.EntryView{
		ID:                 e.ID,
		Creator:            e.Creator,
		Owner:              owner,
		CreatedAt:          e.CreatedAt,
		CreatedAtSequence:  e.CreatedAtSequence,
		Commitment:         e.Commitment.String(),
		MetadataPointer:    e.MetadataPointer,
		Renderer:           e.Renderer.Ref,
		RendererEnabled:    e.Renderer.Enabled,
		RoyaltyBasisPoints: e.RoyaltyBasisPoints,
		Deadline:           r.gate.Deadline(e),
		Frozen:             !r.gate.Open(e, now),
	}, nil
}

// List returns the ids currently owned by owner. Order is unspecified.
func (r *Registry) List(owner string) []uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.index.List(owner)
}

// OwnerOf returns the current owner of id.
func (r *Registry) OwnerOf(id uint64) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, err := r.store.Get(id); err != nil {
		return "", err
	}
	owner, ok := r.index.OwnerOf(id)
	if !ok {
		return "", newError(KindInvariantViolation, fmt.Sprintf("entry %d exists but is not indexed", id))
	}
	return owner, nil
}

// Resolve reports where id's metadata lives. See EntryStore.ResolveMetadata.
func (r *Registry) Resolve(id uint64) (Resolution, error) {
	now := r.now()
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.store.ResolveMetadata(id, now)
}

// Records returns the change records with Seq > after, in order.
func (r *Registry) Records(after uint64) []model.ChangeRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if after >= uint64(len(r.log)) {
		return nil
	}
	return append([]model.ChangeRecord(nil), r.log[after:]...)
}

// Height is the number of committed changes.
func (r *Registry) Height() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return uint64(len(r.log))
}

func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Stats{
		Entries:      r.store.Len(),
		Owners:       len(r.index.Owners()),
		Height:       uint64(len(r.log)),
		SinkFailures: r.sinkFailures,
		Faulted:      r.fault != nil,
	}
}

// Verify checks the owner index and that every stored entry is indexed exactly once.
func (r *Registry) Verify() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.fault != nil {
		return r.fault
	}
	if err := r.index.Check(); err != nil {
		return wrapError(KindInvariantViolation, "owner index", err)
	}
	if r.index.Len() != r.store.Len() {
		return newError(KindInvariantViolation, fmt.Sprintf("%d entries but %d indexed", r.store.Len(), r.index.Len()))
	}
	return nil
}

// commit appends rec to the log and hands it to the sink. A sink that refuses
// a record faults the registry: the sink would otherwise see a gap in Seq and
// could never be replayed.
func (r *Registry) commit(rec model.ChangeRecord) error {
	rec.Seq = uint64(len(r.log)) + 1
	rec.EventID = r.newEventID()
	r.log = append(r.log, rec)
	if r.sink == nil {
		return nil
	}
	if err := r.sink.Append(rec); err != nil {
		r.sinkFailures++
		r.logger.Error("change record not delivered", "seq", rec.Seq, "kind", rec.Kind, "entry", rec.EntryID, "err", err)
		return r.setFault(wrapError(KindInvariantViolation, fmt.Sprintf("sink refused seq %d", rec.Seq), err))
	}
	return nil
}

// rule evaluates the pointer check; callers run it before taking the lock.
// The store reports the verdict after the existence and window checks.
func (r *Registry) rule(pointer string) func(string) error {
	if r.check == nil || pointer == "" || len(pointer) > MaxPayloadBytes {
		return nil
	}
	verdict := r.check(pointer)
	return func(string) error { return verdict }
}

func (r *Registry) now() time.Time {
	t := r.clock.Now()
	r.clockMu.Lock()
	defer r.clockMu.Unlock()
	if t.Before(r.lastNow) {
		return r.lastNow
	}
	r.lastNow = t
	return t
}

func (r *Registry) observe(t time.Time) {
	r.clockMu.Lock()
	if t.After(r.lastNow) {
		r.lastNow = t
	}
	r.clockMu.Unlock()
}

func (r *Registry) point() uint64 {
	if r.points != nil {
		return r.points()
	}
	return uint64(len(r.log)) + 1
}

func (r *Registry) windowFlag(e Entry, now time.Time) model.WindowFlag {
	if r.gate.Open(e, now) {
		return model.WindowOpen
	}
	return model.WindowFrozen
}

func (r *Registry) faulted() error {
	if r.fault == nil {
		return nil
	}
	return wrapError(KindInvariantViolation, "registry is faulted", r.fault)
}

func (r *Registry) setFault(err error) error {
	if r.fault == nil {
		r.fault = err
		r.logger.Error("registry faulted; refusing further mutations", "err", err)
	}
	return err
}
