package rpc

import (
	"context"
	"strconv"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	"xdao.co/oeuvre/model"
	"xdao.co/oeuvre/registry"
)

// Client calls a remote registry as principal As. Errors come back as
// *registry.Error where the status code maps onto a registry kind.
type Client struct {
	cc  *grpc.ClientConn
	raw RegistryClient

	As string
}

// Dial creates a client for target. The connection is established lazily.
func Dial(target, as string, extra ...grpc.DialOption) (*Client, error) {
	opts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}, extra...)
	cc, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, err
	}
	c := NewClient(cc)
	c.As = as
	return c, nil
}

// NewClient wraps an existing connection. Close closes it.
func NewClient(cc *grpc.ClientConn) *Client {
	return &Client{cc: cc, raw: NewRegistryClient(cc)}
}

func (c *Client) Close() error {
	if c == nil || c.cc == nil {
		return nil
	}
	return c.cc.Close()
}

func (c *Client) call(ctx context.Context, fn func(context.Context, *structpb.Struct, ...grpc.CallOption) (*structpb.Struct, error), req map[string]any, out any) error {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return err
	}
	if c.As != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, PrincipalHeader, c.As)
	}
	reply, err := fn(ctx, in)
	if err != nil {
		return fromStatus(err)
	}
	if out == nil {
		return nil
	}
	return decode(reply, out)
}

// MintReply is the server's answer to Mint. Archived is nil when the server
// keeps no payload archive.
type MintReply struct {
	model.EntryView
	Archived *bool `json:"archived,omitempty"`
}

func (c *Client) Mint(ctx context.Context, owner, payload string, royaltyBasisPoints uint16) (MintReply, error) {
	var out MintReply
	err := c.call(ctx, c.raw.Mint, map[string]any{
		"owner":              owner,
		"payload":            payload,
		"royaltyBasisPoints": float64(royaltyBasisPoints),
	}, &out)
	return out, err
}

func (c *Client) Get(ctx context.Context, id uint64) (model.EntryView, error) {
	var out model.EntryView
	err := c.call(ctx, c.raw.Get, idReq(id), &out)
	return out, err
}

func (c *Client) List(ctx context.Context, owner string) ([]uint64, error) {
	var out struct {
		IDs []uint64 `json:"ids"`
	}
	err := c.call(ctx, c.raw.List, map[string]any{"owner": owner}, &out)
	return out.IDs, err
}

func (c *Client) OwnerOf(ctx context.Context, id uint64) (string, error) {
	var out struct {
		Owner string `json:"owner"`
	}
	err := c.call(ctx, c.raw.OwnerOf, idReq(id), &out)
	return out.Owner, err
}

func (c *Client) UpdateMetadata(ctx context.Context, id uint64, pointer string) (model.EntryView, error) {
	req := idReq(id)
	req["pointer"] = pointer
	var out model.EntryView
	err := c.call(ctx, c.raw.UpdateMetadata, req, &out)
	return out, err
}

func (c *Client) SetRenderer(ctx context.Context, id uint64, ref string, enabled bool) (model.EntryView, error) {
	req := idReq(id)
	req["ref"] = ref
	req["enabled"] = enabled
	var out model.EntryView
	err := c.call(ctx, c.raw.SetRenderer, req, &out)
	return out, err
}

// Transfer moves id from c.As to to.
func (c *Client) Transfer(ctx context.Context, id uint64, to string) (model.EntryView, error) {
	req := idReq(id)
	req["from"] = c.As
	req["to"] = to
	var out model.EntryView
	err := c.call(ctx, c.raw.Transfer, req, &out)
	return out, err
}

// Resolve satisfies renderer.Source.
func (c *Client) Resolve(ctx context.Context, id uint64) (registry.Resolution, error) {
	var out model.ResolutionView
	if err := c.call(ctx, c.raw.Resolve, idReq(id), &out); err != nil {
		return registry.Resolution{}, err
	}
	return registry.Resolution{
		EntryID:   out.EntryID,
		Pointer:   out.Pointer,
		Delegated: out.Delegated,
		Delegate:  out.Delegate,
	}, nil
}

// History returns up to limit records after seq, and the server's height.
func (c *Client) History(ctx context.Context, after uint64, limit int) ([]model.ChangeRecord, uint64, error) {
	req := map[string]any{"after": float64(after)}
	if limit > 0 {
		req["limit"] = float64(limit)
	}
	var out struct {
		Height  uint64               `json:"height"`
		Records []model.ChangeRecord `json:"records"`
	}
	err := c.call(ctx, c.raw.History, req, &out)
	return out.Records, out.Height, err
}

func idReq(id uint64) map[string]any {
	return map[string]any{"id": float64(id)}
}

// ParseID parses a decimal entry id.
func ParseID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, &registry.Error{Kind: registry.KindInvalidInput, Message: "invalid entry id " + strconv.Quote(s)}
	}
	return id, nil
}
