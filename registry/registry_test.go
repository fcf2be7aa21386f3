package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"xdao.co/oeuvre/cidutil"
	"xdao.co/oeuvre/model"
	"xdao.co/oeuvre/sequencer"
)

type memSink struct {
	mu   sync.Mutex
	recs []model.ChangeRecord
	err  error
}

func (s *memSink) Append(rec model.ChangeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.recs = append(s.recs, rec)
	return nil
}

func newTestRegistry(t *testing.T, opts ...Option) (*Registry, *fakeClock) {
	t.Helper()
	clock := newFakeClock(t0)
	var n int
	base := []Option{
		WithClock(clock),
		WithNewEventID(func() string { n++; return fmt.Sprintf("ev-%d", n) }),
	}
	return New(append(base, opts...)...), clock
}

func mustMint(t *testing.T, r *Registry, creator, payload string) Entry {
	t.Helper()
	e, err := r.Mint(MintRequest{Creator: creator, Payload: payload})
	require.NoError(t, err)
	return e
}

func TestRegistry_MetadataWindowScenario(t *testing.T) {
	r, clock := newTestRegistry(t)

	e1 := mustMint(t, r, "A", "ipfs://x")
	want, err := cidutil.Commit("ipfs://x")
	require.NoError(t, err)
	got, err := r.Get(e1.ID)
	require.NoError(t, err)
	require.True(t, got.Commitment.Equals(want))

	clock.Advance(time.Hour)
	require.NoError(t, r.UpdateMetadata("A", e1.ID, "ipfs://y"))
	got, err = r.Get(e1.ID)
	require.NoError(t, err)
	require.Equal(t, "ipfs://y", got.MetadataPointer)
	require.True(t, got.Commitment.Equals(want), "commitment stays bound to the minted payload")

	clock.Set(t0.Add(25 * time.Hour))
	err = r.UpdateMetadata("A", e1.ID, "ipfs://z")
	require.True(t, IsKind(err, KindWindowClosed))
	got, _ = r.Get(e1.ID)
	require.Equal(t, "ipfs://y", got.MetadataPointer)
}

func TestRegistry_DeadlineSecond(t *testing.T) {
	r, clock := newTestRegistry(t)
	e := mustMint(t, r, "A", "ipfs://x")

	clock.Set(t0.Add(Window))
	require.NoError(t, r.UpdateMetadata("A", e.ID, "ipfs://at-deadline"))

	clock.Set(t0.Add(Window + time.Second))
	require.True(t, IsKind(r.UpdateMetadata("A", e.ID, "ipfs://late"), KindWindowClosed))
}

func TestRegistry_NonCreatorUpdateLeavesStateUnchanged(t *testing.T) {
	r, _ := newTestRegistry(t)
	e := mustMint(t, r, "A", "ipfs://x")
	height := r.Height()

	err := r.UpdateMetadata("C", e.ID, "ipfs://evil")
	require.True(t, IsKind(err, KindUnauthorized))
	require.True(t, IsKind(r.SetRenderer("C", e.ID, "r", true), KindUnauthorized))

	got, _ := r.Get(e.ID)
	require.Equal(t, e, got)
	require.Equal(t, height, r.Height(), "refused edits are not logged")
}

func TestRegistry_ClockStepBackDoesNotReopenWindow(t *testing.T) {
	r, clock := newTestRegistry(t)
	e := mustMint(t, r, "A", "ipfs://x")

	clock.Set(t0.Add(30 * time.Hour))
	require.True(t, IsKind(r.UpdateMetadata("A", e.ID, "ipfs://y"), KindWindowClosed))

	clock.Set(t0.Add(time.Hour))
	require.True(t, IsKind(r.UpdateMetadata("A", e.ID, "ipfs://y"), KindWindowClosed))
}

func TestRegistry_TransferScenario(t *testing.T) {
	r, _ := newTestRegistry(t)
	e1 := mustMint(t, r, "A", "ipfs://1")
	e2 := mustMint(t, r, "A", "ipfs://2")
	e3 := mustMint(t, r, "A", "ipfs://3")

	require.NoError(t, r.Transfer("A", e1.ID, "A", "B"))

	a := r.List("A")
	sort.Slice(a, func(i, j int) bool { return a[i] < a[j] })
	require.Equal(t, []uint64{e2.ID, e3.ID}, a)
	require.Equal(t, []uint64{e1.ID}, r.List("B"))

	owner, err := r.OwnerOf(e3.ID)
	require.NoError(t, err)
	require.Equal(t, "A", owner)
	require.NoError(t, r.Transfer("A", e3.ID, "A", "C"), "the swapped entry must still be removable")
	require.Equal(t, []uint64{e2.ID}, r.List("A"))
	require.NoError(t, r.Verify())

	// The commitment and pointer are untouched by transfers.
	got, _ := r.Get(e1.ID)
	require.Equal(t, e1, got)
}

func TestRegistry_TransferPreconditions(t *testing.T) {
	r, _ := newTestRegistry(t)
	e := mustMint(t, r, "A", "ipfs://1")

	require.True(t, IsKind(r.Transfer("A", 99, "A", "B"), KindNotFound))
	require.True(t, IsKind(r.Transfer("A", e.ID, "B", "C"), KindInvalidInput))
	require.True(t, IsKind(r.Transfer("A", e.ID, "A", ""), KindInvalidInput))
	require.Equal(t, []uint64{e.ID}, r.List("A"))

	require.NoError(t, r.Transfer("A", e.ID, "A", "A"), "self transfer is a no-op move")
	require.Equal(t, []uint64{e.ID}, r.List("A"))
	require.NoError(t, r.Verify())
}

func TestRegistry_MintOwnerAndRoyalty(t *testing.T) {
	r, _ := newTestRegistry(t)
	e, err := r.Mint(MintRequest{Creator: "A", Owner: "gallery", Payload: "ipfs://x", RoyaltyBasisPoints: 750})
	require.NoError(t, err)
	require.Equal(t, uint16(750), e.RoyaltyBasisPoints)
	require.Equal(t, []uint64{e.ID}, r.List("gallery"))
	require.Nil(t, r.List("A"))

	_, err = r.Mint(MintRequest{Creator: "A", Payload: "ipfs://x", RoyaltyBasisPoints: MaxRoyaltyBasisPoints + 1})
	require.True(t, IsKind(err, KindInvalidInput))
}

func TestRegistry_ResolveRoundTrip(t *testing.T) {
	r, clock := newTestRegistry(t)
	e := mustMint(t, r, "A", "ipfs://x")

	res, err := r.Resolve(e.ID)
	require.NoError(t, err)
	require.Equal(t, "ipfs://x", res.Pointer)
	require.False(t, res.Delegated)

	require.NoError(t, r.SetRenderer("A", e.ID, "https://render.example", true))
	res, err = r.Resolve(e.ID)
	require.NoError(t, err)
	require.True(t, res.Delegated)
	require.Equal(t, "https://render.example", res.Delegate)

	clock.Advance(Window + time.Second)
	res, err = r.Resolve(e.ID)
	require.NoError(t, err)
	require.False(t, res.Delegated)
}

func TestRegistry_IDsStrictlyIncrease(t *testing.T) {
	r, _ := newTestRegistry(t)
	var prev uint64
	for i := 0; i < 50; i++ {
		e := mustMint(t, r, "A", fmt.Sprintf("ipfs://%d", i))
		require.Greater(t, e.ID, prev)
		prev = e.ID
	}
	require.Equal(t, uint64(1), r.Records(0)[0].EntryID)
}

func TestRegistry_ChangeRecords(t *testing.T) {
	sink := &memSink{}
	r, clock := newTestRegistry(t, WithSink(sink))

	e := mustMint(t, r, "A", "ipfs://x")
	clock.Advance(time.Minute)
	require.NoError(t, r.UpdateMetadata("A", e.ID, "ipfs://y"))
	require.NoError(t, r.SetRenderer("A", e.ID, "r1", true))
	clock.Advance(48 * time.Hour)
	require.NoError(t, r.Transfer("A", e.ID, "A", "B"))

	recs := r.Records(0)
	require.Len(t, recs, 4)
	require.Equal(t, recs, sink.recs)

	kinds := []model.RecordKind{model.KindMint, model.KindMetadata, model.KindRenderer, model.KindTransfer}
	windows := []model.WindowFlag{model.WindowCreated, model.WindowOpen, model.WindowOpen, model.WindowFrozen}
	for i, rec := range recs {
		require.Equal(t, uint64(i+1), rec.Seq)
		require.Equal(t, fmt.Sprintf("ev-%d", i+1), rec.EventID)
		require.Equal(t, kinds[i], rec.Kind)
		require.Equal(t, windows[i], rec.Window)
		require.Equal(t, e.ID, rec.EntryID)
		require.Equal(t, "A", rec.Creator)
		require.Equal(t, e.Commitment.String(), rec.Commitment)
		require.Equal(t, cidutil.Fingerprint(rec.MetadataPointer), rec.Fingerprint)
		require.Equal(t, rec.Seq, rec.SequencePoint)
	}
	require.Equal(t, "ipfs://x", recs[0].MetadataPointer)
	require.Equal(t, "ipfs://y", recs[1].MetadataPointer)
	require.Equal(t, "r1", recs[2].Renderer)
	require.True(t, recs[2].RendererEnabled)
	require.Equal(t, "A", recs[3].From)
	require.Equal(t, "B", recs[3].Owner)

	require.Len(t, r.Records(2), 2)
	require.Nil(t, r.Records(4))
}

func TestRegistry_SinkFailureFaults(t *testing.T) {
	sink := &memSink{}
	r, _ := newTestRegistry(t, WithSink(sink))
	e := mustMint(t, r, "A", "ipfs://x")

	sink.err = errors.New("disk full")
	_, err := r.Mint(MintRequest{Creator: "A", Payload: "ipfs://y"})
	require.True(t, IsKind(err, KindInvariantViolation))
	sink.err = nil

	_, err = r.Mint(MintRequest{Creator: "A", Payload: "ipfs://z"})
	require.True(t, IsKind(err, KindInvariantViolation))
	require.True(t, IsKind(r.UpdateMetadata("A", e.ID, "ipfs://w"), KindInvariantViolation))
	require.True(t, IsKind(r.Transfer("A", e.ID, "A", "B"), KindInvariantViolation))

	st := r.Stats()
	require.Equal(t, uint64(1), st.SinkFailures)
	require.True(t, st.Faulted)
	require.Len(t, sink.recs, 1)

	// What the sink did receive is gap-free and replays.
	fresh, _ := newTestRegistry(t)
	require.NoError(t, fresh.Restore(sink.recs))
	got, err := fresh.Get(e.ID)
	require.NoError(t, err)
	require.Equal(t, "ipfs://x", got.MetadataPointer)
	require.Equal(t, uint64(1), fresh.Stats().Height)
}

func TestRegistry_PointerRuleRunsOutsideLock(t *testing.T) {
	var r *Registry
	calls := 0
	rule := func(p string) error {
		calls++
		require.True(t, r.mu.TryLock(), "rule evaluated under the registry lock")
		r.mu.Unlock()
		if p == "ipfs://bad" {
			return errors.New("not on the allow list")
		}
		return nil
	}
	r, _ = newTestRegistry(t, WithPointerCheck(rule))

	e := mustMint(t, r, "A", "ipfs://x")
	require.NoError(t, r.UpdateMetadata("A", e.ID, "ipfs://y"))
	require.True(t, IsKind(r.UpdateMetadata("A", e.ID, "ipfs://bad"), KindInvalidInput))
	require.True(t, IsKind(r.UpdateMetadata("B", e.ID, "ipfs://bad"), KindUnauthorized))
	require.True(t, IsKind(r.UpdateMetadata("A", 99, "ipfs://bad"), KindNotFound))
	_, err := r.Mint(MintRequest{Creator: "A", Payload: "ipfs://bad"})
	require.True(t, IsKind(err, KindInvalidInput))
	require.Equal(t, 6, calls)

	got, err := r.Get(e.ID)
	require.NoError(t, err)
	require.Equal(t, "ipfs://y", got.MetadataPointer)
	require.Equal(t, uint64(2), r.Stats().Height)
}

func TestRegistry_SequencePoints(t *testing.T) {
	height := uint64(1000)
	r, _ := newTestRegistry(t, WithSequencePoints(func() uint64 { height++; return height }))
	e := mustMint(t, r, "A", "ipfs://x")
	require.Equal(t, uint64(1001), e.CreatedAtSequence)
}

func TestRegistry_ImmutableGate(t *testing.T) {
	r, _ := newTestRegistry(t, WithGate(Gate{Immutable: true}))
	e := mustMint(t, r, "A", "ipfs://x")
	require.True(t, IsKind(r.UpdateMetadata("A", e.ID, "ipfs://y"), KindWindowClosed))
	require.True(t, IsKind(r.SetRenderer("A", e.ID, "r", true), KindWindowClosed))

	v, err := r.View(e.ID)
	require.NoError(t, err)
	require.True(t, v.Frozen)
}

func TestRegistry_View(t *testing.T) {
	r, clock := newTestRegistry(t)
	e, err := r.Mint(MintRequest{Creator: "A", Owner: "B", Payload: "ipfs://x", RoyaltyBasisPoints: 500})
	require.NoError(t, err)

	v, err := r.View(e.ID)
	require.NoError(t, err)
	require.Equal(t, "B", v.Owner)
	require.Equal(t, e.Commitment.String(), v.Commitment)
	require.Equal(t, t0.Add(Window), v.Deadline)
	require.False(t, v.Frozen)

	clock.Advance(Window + time.Second)
	v, err = r.View(e.ID)
	require.NoError(t, err)
	require.True(t, v.Frozen)

	_, err = r.View(404)
	require.True(t, IsKind(err, KindNotFound))
}

type stuckSequencer struct{}

func (stuckSequencer) Next() (uint64, error) { return 1, nil }
func (stuckSequencer) Last() uint64          { return 1 }

func TestRegistry_FaultIsPermanent(t *testing.T) {
	r, _ := newTestRegistry(t, WithSequencer(stuckSequencer{}))
	e := mustMint(t, r, "A", "ipfs://x")

	_, err := r.Mint(MintRequest{Creator: "A", Payload: "ipfs://y"})
	require.True(t, IsKind(err, KindInvariantViolation))
	require.True(t, Fatal(err))

	_, err = r.Mint(MintRequest{Creator: "A", Payload: "ipfs://z"})
	require.True(t, IsKind(err, KindInvariantViolation))
	require.True(t, IsKind(r.UpdateMetadata("A", e.ID, "ipfs://w"), KindInvariantViolation))
	require.True(t, IsKind(r.Transfer("A", e.ID, "A", "B"), KindInvariantViolation))

	// Reads keep working.
	got, err := r.Get(e.ID)
	require.NoError(t, err)
	require.Equal(t, "ipfs://x", got.MetadataPointer)
	require.True(t, r.Stats().Faulted)
	require.Error(t, r.Verify())
}

func TestRegistry_ConcurrentMintsAndTransfers(t *testing.T) {
	r, _ := newTestRegistry(t)
	owners := []string{"A", "B", "C", "D"}

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				e, err := r.Mint(MintRequest{Creator: owners[w], Payload: fmt.Sprintf("ipfs://%d/%d", w, i)})
				if err != nil {
					t.Errorf("Mint: %v", err)
					return
				}
				to := owners[(w+i)%len(owners)]
				if err := r.Transfer(owners[w], e.ID, owners[w], to); err != nil {
					t.Errorf("Transfer: %v", err)
					return
				}
				_ = r.List(to)
				_, _ = r.Resolve(e.ID)
			}
		}(w)
	}
	wg.Wait()

	require.NoError(t, r.Verify())
	total := 0
	for _, o := range owners {
		total += len(r.List(o))
	}
	require.Equal(t, 200, total)
	require.Equal(t, uint64(400), r.Height())
}

func TestRegistry_Exhaustion(t *testing.T) {
	r, _ := newTestRegistry(t, WithSequencer(sequencer.NewCounter(^uint64(0))))
	_, err := r.Mint(MintRequest{Creator: "A", Payload: "ipfs://x"})
	require.True(t, IsKind(err, KindResourceExhausted))
	require.False(t, r.Stats().Faulted, "exhaustion is a resource error, not corruption")
}
