package grpccas

import (
	"context"
	"time"

	"github.com/ipfs/go-cid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/oeuvre/cidutil"
	"xdao.co/oeuvre/storage"
)

// Client reads and writes payloads held by a remote archive, typically an
// oeuvre-archived process or the read-only export of an oeuvre server.
//
// The archive is not trusted: every payload it returns is hashed again and
// compared with the commitment it was asked for. A bad archive can fail a
// lookup but cannot change what a commitment resolves to.
//
// Archive refusals come back as storage sentinels: ErrReadOnly for a
// read-only export, ErrNotFound for an unknown commitment, ErrImmutable when
// the archive already holds different bytes under the same CID.
type Client struct {
	cc      *grpc.ClientConn
	archive ArchiveClient

	// Timeout bounds each call when non-zero.
	Timeout time.Duration
}

var _ storage.CAS = (*Client)(nil)

type DialOptions struct {
	// MaxMsgBytes raises the per-message limit both ways. Payloads are
	// capped well below the gRPC default, so this is rarely needed.
	MaxMsgBytes int
	// Extra is appended last, e.g. tracing handlers or credentials.
	Extra []grpc.DialOption
}

// Dial returns a client for the archive at target. No connection is made
// until the first call.
func Dial(target string, opts DialOptions) (*Client, error) {
	dialOpts := []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	if opts.MaxMsgBytes > 0 {
		dialOpts = append(dialOpts, grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(opts.MaxMsgBytes),
			grpc.MaxCallSendMsgSize(opts.MaxMsgBytes),
		))
	}
	cc, err := grpc.NewClient(target, append(dialOpts, opts.Extra...)...)
	if err != nil {
		return nil, err
	}
	return NewClient(cc), nil
}

// NewClient uses an existing connection; Close closes it.
func NewClient(cc *grpc.ClientConn) *Client {
	return &Client{cc: cc, archive: NewArchiveClient(cc)}
}

func (c *Client) Close() error {
	if c == nil || c.cc == nil {
		return nil
	}
	return c.cc.Close()
}

// Put archives payload and returns the CID the archive filed it under, which
// must equal the locally computed one.
func (c *Client) Put(payload []byte) (cid.Cid, error) {
	want, err := cidutil.CIDv1RawSHA256CID(payload)
	if err != nil {
		return cid.Undef, err
	}
	ctx, cancel := c.callContext()
	defer cancel()

	reply, err := c.archive.Put(ctx, wrapperspb.Bytes(payload))
	if err != nil {
		return cid.Undef, fromStatus(err)
	}
	filed, err := cid.Decode(reply.GetValue())
	if err != nil || !filed.Defined() {
		return cid.Undef, storage.ErrInvalidCID
	}
	if !filed.Equals(want) {
		return cid.Undef, storage.ErrCIDMismatch
	}
	return filed, nil
}

// Get fetches the payload committed to by id.
func (c *Client) Get(id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	ctx, cancel := c.callContext()
	defer cancel()

	reply, err := c.archive.Get(ctx, wrapperspb.String(id.String()))
	if err != nil {
		return nil, fromStatus(err)
	}
	payload := reply.GetValue()
	if !cidutil.Matches(id, string(payload)) {
		return nil, storage.ErrCIDMismatch
	}
	return payload, nil
}

// Has reports false when the archive cannot be reached.
func (c *Client) Has(id cid.Cid) bool {
	if !id.Defined() {
		return false
	}
	ctx, cancel := c.callContext()
	defer cancel()

	reply, err := c.archive.Has(ctx, wrapperspb.String(id.String()))
	return err == nil && reply.GetValue()
}

func (c *Client) callContext() (context.Context, context.CancelFunc) {
	if c.Timeout > 0 {
		return context.WithTimeout(context.Background(), c.Timeout)
	}
	return context.WithCancel(context.Background())
}
