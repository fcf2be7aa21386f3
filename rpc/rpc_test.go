package rpc

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"xdao.co/oeuvre/cidutil"
	"xdao.co/oeuvre/model"
	"xdao.co/oeuvre/registry"
	"xdao.co/oeuvre/renderer"
	"xdao.co/oeuvre/storage"
	"xdao.co/oeuvre/tracing"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	reg   *registry.Registry
	clock *clock
	lis   *bufconn.Listener
	spans *tracetest.InMemoryExporter
}

func start(t *testing.T, srv *Server) *fixture {
	t.Helper()
	f := &fixture{
		clock: &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		lis:   bufconn.Listen(1024 * 1024),
		spans: tracetest.NewInMemoryExporter(),
	}
	if srv.Registry == nil {
		srv.Registry = registry.New(registry.WithClock(f.clock))
	}
	f.reg = srv.Registry

	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(f.spans))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	gs := grpc.NewServer(grpc.UnaryInterceptor(tracing.UnaryServerInterceptor(tp.Tracer("test"), PrincipalHeader)))
	RegisterRegistryServer(gs, srv)
	go func() { _ = gs.Serve(f.lis) }()
	t.Cleanup(gs.Stop)
	return f
}

func (f *fixture) client(t *testing.T, as string) *Client {
	t.Helper()
	dialer := func(ctx context.Context, _ string) (net.Conn, error) { return f.lis.DialContext(ctx) }
	cc, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(dialer),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	c := NewClient(cc)
	c.As = as
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestMintGetList(t *testing.T) {
	f := start(t, &Server{})
	alice := f.client(t, "alice")
	ctx := context.Background()

	m, err := alice.Mint(ctx, "", "ipfs://bafy-one", 250)
	require.NoError(t, err)
	require.Equal(t, uint64(1), m.ID)
	require.Equal(t, "alice", m.Creator)
	require.Equal(t, "alice", m.Owner)
	require.Equal(t, uint16(250), m.RoyaltyBasisPoints)
	require.Nil(t, m.Archived)
	commitment, err := cidutil.Commit("ipfs://bafy-one")
	require.NoError(t, err)
	require.Equal(t, commitment.String(), m.Commitment)

	_, err = alice.Mint(ctx, "bob", "ipfs://bafy-two", 0)
	require.NoError(t, err)

	got, err := alice.Get(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, m.EntryView.MetadataPointer, got.MetadataPointer)
	require.False(t, got.Frozen)
	require.True(t, got.Deadline.Equal(f.clock.Now().Add(24*time.Hour)))

	ids, err := alice.List(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, []uint64{1}, ids)

	owner, err := alice.OwnerOf(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, "bob", owner)

	ids, err = alice.List(ctx, "carol")
	require.NoError(t, err)
	require.Empty(t, ids)
}

func TestErrorsMapToKinds(t *testing.T) {
	f := start(t, &Server{})
	alice := f.client(t, "alice")
	bob := f.client(t, "bob")
	ctx := context.Background()

	_, err := alice.Get(ctx, 42)
	require.True(t, registry.IsKind(err, registry.KindNotFound), "%v", err)

	_, err = alice.Mint(ctx, "", "ipfs://x", 10001)
	require.True(t, registry.IsKind(err, registry.KindInvalidInput), "%v", err)

	_, err = alice.Mint(ctx, "", "ipfs://x", 0)
	require.NoError(t, err)

	_, err = bob.UpdateMetadata(ctx, 1, "ipfs://y")
	require.True(t, registry.IsKind(err, registry.KindUnauthorized), "%v", err)

	f.clock.Advance(25 * time.Hour)
	_, err = alice.UpdateMetadata(ctx, 1, "ipfs://y")
	require.True(t, registry.IsKind(err, registry.KindWindowClosed), "%v", err)

	anon := f.client(t, "")
	_, err = anon.Mint(ctx, "", "ipfs://z", 0)
	require.True(t, registry.IsKind(err, registry.KindUnauthorized), "%v", err)
	require.Equal(t, uint64(1), f.reg.Height())
}

func TestUpdateAndResolve(t *testing.T) {
	f := start(t, &Server{})
	alice := f.client(t, "alice")
	ctx := context.Background()

	_, err := alice.Mint(ctx, "", "ipfs://v1", 0)
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	v, err := alice.UpdateMetadata(ctx, 1, "ipfs://v2")
	require.NoError(t, err)
	require.Equal(t, "ipfs://v2", v.MetadataPointer)

	v, err = alice.SetRenderer(ctx, 1, "https://render.example/", true)
	require.NoError(t, err)
	require.Equal(t, "https://render.example/", v.Renderer)
	require.True(t, v.RendererEnabled)

	res, err := alice.Resolve(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, registry.Resolution{EntryID: 1, Pointer: "ipfs://v2", Delegated: true, Delegate: "https://render.example/"}, res)

	f.clock.Advance(24 * time.Hour)
	res, err = alice.Resolve(ctx, 1)
	require.NoError(t, err)
	require.False(t, res.Delegated)
	require.Equal(t, "ipfs://v2", res.Pointer)
}

func TestTransferRequiresCallerAsFrom(t *testing.T) {
	f := start(t, &Server{})
	alice := f.client(t, "alice")
	bob := f.client(t, "bob")
	ctx := context.Background()

	_, err := alice.Mint(ctx, "", "ipfs://t", 0)
	require.NoError(t, err)

	_, err = bob.Transfer(ctx, 1, "bob")
	require.Error(t, err)
	require.Equal(t, uint64(1), f.reg.Height())

	v, err := alice.Transfer(ctx, 1, "bob")
	require.NoError(t, err)
	require.Equal(t, "bob", v.Owner)
	require.Equal(t, "alice", v.Creator)

	ids, err := bob.List(ctx, "bob")
	require.NoError(t, err)
	require.Equal(t, []uint64{1}, ids)

	// Raw call claiming another principal's entry.
	in, err := structpb.NewStruct(map[string]any{"id": 1.0, "from": "bob", "to": "alice"})
	require.NoError(t, err)
	err = alice.call(ctx, alice.raw.Transfer, in.AsMap(), nil)
	require.True(t, registry.IsKind(err, registry.KindUnauthorized), "%v", err)
}

func TestHistory(t *testing.T) {
	f := start(t, &Server{})
	alice := f.client(t, "alice")
	ctx := context.Background()

	_, err := alice.Mint(ctx, "", "ipfs://h", 0)
	require.NoError(t, err)
	_, err = alice.UpdateMetadata(ctx, 1, "ipfs://h2")
	require.NoError(t, err)
	_, err = alice.Transfer(ctx, 1, "bob")
	require.NoError(t, err)

	recs, height, err := alice.History(ctx, 0, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(3), height)
	require.Len(t, recs, 3)
	require.Equal(t, model.KindMint, recs[0].Kind)
	require.Equal(t, model.KindTransfer, recs[2].Kind)
	require.Equal(t, f.reg.Records(0), recs)

	recs, _, err = alice.History(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, uint64(2), recs[0].Seq)
}

func TestMintArchivesPayload(t *testing.T) {
	cas := storage.NewMemoryCAS()
	f := start(t, &Server{Archive: cas})
	alice := f.client(t, "alice")

	m, err := alice.Mint(context.Background(), "", "ipfs://archived", 0)
	require.NoError(t, err)
	require.NotNil(t, m.Archived)
	require.True(t, *m.Archived)

	commitment, err := cidutil.Commit("ipfs://archived")
	require.NoError(t, err)
	b, err := cas.Get(commitment)
	require.NoError(t, err)
	require.Equal(t, "ipfs://archived", string(b))
}

type failingCAS struct{ storage.CAS }

func (failingCAS) Put([]byte) (cid.Cid, error) { return cid.Undef, storage.ErrImmutable }

func TestMintStandsWhenArchiveFails(t *testing.T) {
	f := start(t, &Server{Archive: failingCAS{}})
	alice := f.client(t, "alice")

	m, err := alice.Mint(context.Background(), "", "ipfs://kept", 0)
	require.NoError(t, err)
	require.NotNil(t, m.Archived)
	require.False(t, *m.Archived)
	require.Equal(t, uint64(1), f.reg.Height())
}

func TestResolverOverRPC(t *testing.T) {
	f := start(t, &Server{})
	alice := f.client(t, "alice")
	ctx := context.Background()

	_, err := alice.Mint(ctx, "", "ipfs://meta", 0)
	require.NoError(t, err)
	_, err = alice.SetRenderer(ctx, 1, "render://local/", true)
	require.NoError(t, err)

	dir := renderer.NewDirectory()
	dir.Register("render://local/", renderer.Func(func(_ context.Context, ref string, id uint64) (string, error) {
		return "ipfs://rendered", nil
	}))
	res, err := renderer.NewResolver(alice, dir).Resolve(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "ipfs://rendered", res.Effective())
}

func TestInterceptorRecordsSpans(t *testing.T) {
	f := start(t, &Server{})
	alice := f.client(t, "alice")
	ctx := context.Background()

	_, err := alice.Mint(ctx, "", "ipfs://span", 0)
	require.NoError(t, err)
	_, err = alice.Get(ctx, 1)
	require.NoError(t, err)

	spans := f.spans.GetSpans()
	require.Len(t, spans, 2)
	require.Equal(t, "/"+ServiceName+"/Get", spans[1].Name)
	require.Contains(t, spans[1].Attributes, attribute.Int64(tracing.AttrEntryID, 1))
	require.Contains(t, spans[1].Attributes, attribute.String(tracing.AttrPrincipal, "alice"))
}

func TestUintFieldBounds(t *testing.T) {
	s, err := structpb.NewStruct(map[string]any{"a": 1.5, "b": -1.0, "c": "7", "d": 9.0})
	require.NoError(t, err)
	for _, k := range []string{"a", "b", "c"} {
		_, err := uintField(s, k, 100)
		require.Error(t, err, k)
	}
	_, err = uintField(s, "d", 8)
	require.Error(t, err)
	n, err := uintField(s, "d", 9)
	require.NoError(t, err)
	require.Equal(t, uint64(9), n)
	n, err = uintField(s, "missing", 9)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestStatusRoundTrip(t *testing.T) {
	err := toStatus(&registry.Error{Kind: registry.KindWindowClosed, Message: "closed"})
	require.Equal(t, codes.FailedPrecondition, status.Code(err))
	back := fromStatus(err)
	require.True(t, registry.IsKind(back, registry.KindWindowClosed))
	require.Equal(t, codes.Unavailable, status.Code(fromStatus(status.Error(codes.Unavailable, "down"))))
}
