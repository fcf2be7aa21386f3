package registry

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"xdao.co/oeuvre/model"
)

func buildHistory(t *testing.T) (*Registry, []model.ChangeRecord) {
	t.Helper()
	r, clock := newTestRegistry(t)
	e1 := mustMint(t, r, "A", "ipfs://1")
	e2 := mustMint(t, r, "A", "ipfs://2")
	clock.Advance(time.Hour)
	require.NoError(t, r.UpdateMetadata("A", e1.ID, "ipfs://1b"))
	require.NoError(t, r.SetRenderer("A", e2.ID, "https://render", true))
	clock.Advance(30 * time.Hour)
	require.NoError(t, r.Transfer("A", e1.ID, "A", "B"))
	return r, r.Records(0)
}

func TestRestore_RoundTrip(t *testing.T) {
	orig, recs := buildHistory(t)

	r, clock := newTestRegistry(t)
	clock.Set(t0) // behind the last record; restore must carry time forward
	require.NoError(t, r.Restore(recs))
	require.NoError(t, r.Verify())
	require.Equal(t, recs, r.Records(0))

	for _, id := range []uint64{1, 2} {
		want, err := orig.Get(id)
		require.NoError(t, err)
		got, err := r.Get(id)
		require.NoError(t, err)
		require.Equal(t, want, got)

		wo, _ := orig.OwnerOf(id)
		gotOwner, _ := r.OwnerOf(id)
		require.Equal(t, wo, gotOwner)
	}

	// The restored window is closed even though the live clock says t0.
	require.True(t, IsKind(r.UpdateMetadata("A", 2, "ipfs://late"), KindWindowClosed))

	// Issuance resumes after the restored ids.
	e := mustMint(t, r, "C", "ipfs://3")
	require.Equal(t, uint64(3), e.ID)
}

func TestRestore_RejectsTamperedCommitment(t *testing.T) {
	_, recs := buildHistory(t)
	recs[0].Commitment = recs[1].Commitment

	r, _ := newTestRegistry(t)
	err := r.Restore(recs)
	require.True(t, IsKind(err, KindInvariantViolation))
	require.True(t, r.Stats().Faulted)
}

func TestRestore_RejectsGapInSeq(t *testing.T) {
	_, recs := buildHistory(t)
	recs = append(recs[:1], recs[2:]...)

	r, _ := newTestRegistry(t)
	require.True(t, IsKind(r.Restore(recs), KindInvariantViolation))
}

func TestRestore_RejectsImpossibleEdit(t *testing.T) {
	_, recs := buildHistory(t)
	// The metadata edit claims to come from someone other than the creator.
	recs[2].Caller = "mallory"

	r, _ := newTestRegistry(t)
	err := r.Restore(recs)
	require.True(t, IsKind(err, KindInvariantViolation))
	require.ErrorContains(t, err, "replay seq 3")
}

func TestRestore_RequiresEmptyRegistry(t *testing.T) {
	_, recs := buildHistory(t)
	r, _ := newTestRegistry(t)
	mustMint(t, r, "A", "ipfs://x")
	require.True(t, IsKind(r.Restore(recs), KindInvalidInput))
	require.False(t, r.Stats().Faulted)
}

func TestRestore_SkipsPointerCheck(t *testing.T) {
	_, recs := buildHistory(t)
	strict := WithPointerCheck(func(string) error { return fmt.Errorf("closed for submissions") })
	r, _ := newTestRegistry(t, strict)
	require.NoError(t, r.Restore(recs))
}

func TestRestore_ImmutableGateKeepsEditedHistory(t *testing.T) {
	src, clock := newTestRegistry(t)
	e := mustMint(t, src, "A", "ipfs://x")
	clock.Advance(time.Minute)
	require.NoError(t, src.UpdateMetadata("A", e.ID, "ipfs://y"))
	require.NoError(t, src.SetRenderer("A", e.ID, "https://render", true))

	r, _ := newTestRegistry(t, WithGate(Gate{Immutable: true}))
	require.NoError(t, r.Restore(src.Records(0)))
	got, err := r.Get(e.ID)
	require.NoError(t, err)
	require.Equal(t, "ipfs://y", got.MetadataPointer)
	require.Equal(t, Delegate{Ref: "https://render", Enabled: true}, got.Renderer)

	// Live edits follow the gate in force now.
	require.True(t, IsKind(r.UpdateMetadata("A", e.ID, "ipfs://z"), KindWindowClosed))
	require.True(t, IsKind(r.SetRenderer("A", e.ID, "", false), KindWindowClosed))
	require.NoError(t, src.UpdateMetadata("A", e.ID, "ipfs://z"))
}

func TestRestore_StillRejectsEditsOutsideWindow(t *testing.T) {
	_, recs := buildHistory(t)
	late := recs[2]
	late.Timestamp = recs[0].Timestamp.Add(Window + time.Second)
	recs[2] = late
	r, _ := newTestRegistry(t, WithGate(Gate{Immutable: true}))
	require.True(t, IsKind(r.Restore(recs), KindInvariantViolation))
}

// Random histories replay to an identical registry.
func TestRestore_RandomHistories(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		clock := newFakeClock(t0)
		r := New(WithClock(clock))
		owners := []string{"A", "B", "C"}
		var ids []uint64

		steps := rapid.IntRange(1, 40).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			clock.Advance(time.Duration(rapid.Int64Range(0, int64(6*time.Hour)).Draw(t, "dt")))
			switch op := rapid.IntRange(0, 2).Draw(t, "op"); {
			case op == 0 || len(ids) == 0:
				creator := rapid.SampledFrom(owners).Draw(t, "creator")
				e, err := r.Mint(MintRequest{Creator: creator, Payload: fmt.Sprintf("ipfs://%d", i)})
				if err != nil {
					t.Fatalf("Mint: %v", err)
				}
				ids = append(ids, e.ID)
			case op == 1:
				id := rapid.SampledFrom(ids).Draw(t, "id")
				e, _ := r.Get(id)
				err := r.UpdateMetadata(e.Creator, id, fmt.Sprintf("ipfs://%d/edit", i))
				if err != nil && !IsKind(err, KindWindowClosed) {
					t.Fatalf("UpdateMetadata: %v", err)
				}
			default:
				id := rapid.SampledFrom(ids).Draw(t, "id")
				from, err := r.OwnerOf(id)
				if err != nil {
					t.Fatalf("OwnerOf: %v", err)
				}
				to := rapid.SampledFrom(owners).Draw(t, "to")
				if err := r.Transfer(from, id, from, to); err != nil {
					t.Fatalf("Transfer: %v", err)
				}
			}
		}
		if err := r.Verify(); err != nil {
			t.Fatalf("Verify: %v", err)
		}

		replica := New(WithClock(newFakeClock(t0)))
		if err := replica.Restore(r.Records(0)); err != nil {
			t.Fatalf("Restore: %v", err)
		}
		for _, id := range ids {
			want, _ := r.Get(id)
			got, err := replica.Get(id)
			if err != nil || !want.Commitment.Equals(got.Commitment) || want.MetadataPointer != got.MetadataPointer {
				t.Fatalf("entry %d diverged: %+v vs %+v (%v)", id, want, got, err)
			}
			wo, _ := r.OwnerOf(id)
			ro, _ := replica.OwnerOf(id)
			if wo != ro {
				t.Fatalf("entry %d owner %q vs %q", id, wo, ro)
			}
		}
	})
}
