package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestGate_DeadlineBoundary(t *testing.T) {
	g := Gate{}
	e := Entry{ID: 1, Creator: "A", CreatedAt: t0}

	require.True(t, g.Allow(e, "A", t0))
	require.True(t, g.Allow(e, "A", t0.Add(Window)), "the deadline second itself is inside the window")
	require.False(t, g.Allow(e, "A", t0.Add(Window+time.Second)))

	require.NoError(t, g.Check(e, "A", t0.Add(Window)))
	require.True(t, IsKind(g.Check(e, "A", t0.Add(Window+time.Second)), KindWindowClosed))
}

func TestGate_UnauthorizedTakesPrecedence(t *testing.T) {
	g := Gate{}
	e := Entry{ID: 1, Creator: "A", CreatedAt: t0}

	require.True(t, IsKind(g.Check(e, "C", t0), KindUnauthorized))
	require.True(t, IsKind(g.Check(e, "C", t0.Add(48*time.Hour)), KindUnauthorized))
}

func TestGate_Immutable(t *testing.T) {
	g := Gate{Immutable: true}
	e := Entry{ID: 1, Creator: "A", CreatedAt: t0}

	require.False(t, g.Open(e, t0))
	require.False(t, g.Allow(e, "A", t0))
	require.True(t, IsKind(g.Check(e, "A", t0), KindWindowClosed))
	require.True(t, IsKind(g.Check(e, "B", t0), KindUnauthorized))
}

func TestProperty_GateAllowMatchesDefinition(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		creator := rapid.SampledFrom([]string{"A", "B"}).Draw(t, "creator")
		caller := rapid.SampledFrom([]string{"A", "B", "C"}).Draw(t, "caller")
		offset := time.Duration(rapid.Int64Range(-int64(time.Hour), int64(72*time.Hour)).Draw(t, "offset"))

		g := Gate{}
		e := Entry{Creator: creator, CreatedAt: t0}
		now := t0.Add(offset)

		want := caller == creator && offset <= Window
		if got := g.Allow(e, caller, now); got != want {
			t.Fatalf("Allow(creator=%s, caller=%s, offset=%s) = %v, want %v", creator, caller, offset, got, want)
		}
		if (g.Check(e, caller, now) == nil) != want {
			t.Fatalf("Check disagrees with Allow")
		}
	})
}
