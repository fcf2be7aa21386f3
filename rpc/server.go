package rpc

import (
	"context"
	"log/slog"
	"math"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"xdao.co/oeuvre/model"
	"xdao.co/oeuvre/registry"
	"xdao.co/oeuvre/storage"
)

// Server implements RegistryServer over a *registry.Registry.
type Server struct {
	UnimplementedRegistryServer

	Registry *registry.Registry
	// Archive, if set, receives every minted payload keyed by its commitment.
	// Archive failures are reported in the response; the mint stands.
	Archive storage.CAS
	Logger  *slog.Logger
}

func (s *Server) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.Logger
}

func principal(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if ok {
		if vals := md.Get(PrincipalHeader); len(vals) > 0 && vals[0] != "" {
			return vals[0], nil
		}
	}
	return "", status.Error(codes.Unauthenticated, "missing "+PrincipalHeader)
}

func invalid(err error) error { return status.Error(codes.InvalidArgument, err.Error()) }

type mintReply struct {
	model.EntryView
	Archived *bool `json:"archived,omitempty"`
}

func (s *Server) Mint(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	caller, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	royalty, err := uintField(in, "royaltyBasisPoints", math.MaxUint16)
	if err != nil {
		return nil, invalid(err)
	}
	payload := str(in, "payload")
	e, err := s.Registry.Mint(registry.MintRequest{
		Creator:            caller,
		Owner:              str(in, "owner"),
		Payload:            payload,
		RoyaltyBasisPoints: uint16(royalty),
	})
	if err != nil {
		return nil, toStatus(err)
	}
	view, err := s.Registry.View(e.ID)
	if err != nil {
		return nil, toStatus(err)
	}
	reply := mintReply{EntryView: view}
	if s.Archive != nil {
		ok := true
		if err := storage.Archive(s.Archive, e.Commitment, []byte(payload)); err != nil {
			ok = false
			s.logger().Warn("payload not archived", "id", e.ID, "commitment", view.Commitment, "err", err)
		}
		reply.Archived = &ok
	}
	return encode(reply)
}

func (s *Server) Get(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := entryID(in)
	if err != nil {
		return nil, invalid(err)
	}
	view, err := s.Registry.View(id)
	if err != nil {
		return nil, toStatus(err)
	}
	return encode(view)
}

func (s *Server) List(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	owner := str(in, "owner")
	if owner == "" {
		return nil, status.Error(codes.InvalidArgument, "owner is required")
	}
	ids := s.Registry.List(owner)
	if ids == nil {
		ids = []uint64{}
	}
	return encode(struct {
		Owner string   `json:"owner"`
		IDs   []uint64 `json:"ids"`
	}{owner, ids})
}

func (s *Server) OwnerOf(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := entryID(in)
	if err != nil {
		return nil, invalid(err)
	}
	owner, err := s.Registry.OwnerOf(id)
	if err != nil {
		return nil, toStatus(err)
	}
	return encode(struct {
		ID    uint64 `json:"id"`
		Owner string `json:"owner"`
	}{id, owner})
}

func (s *Server) UpdateMetadata(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	caller, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	id, err := entryID(in)
	if err != nil {
		return nil, invalid(err)
	}
	if err := s.Registry.UpdateMetadata(caller, id, str(in, "pointer")); err != nil {
		return nil, toStatus(err)
	}
	return s.Get(ctx, in)
}

func (s *Server) SetRenderer(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	caller, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	id, err := entryID(in)
	if err != nil {
		return nil, invalid(err)
	}
	if err := s.Registry.SetRenderer(caller, id, str(in, "ref"), boolean(in, "enabled")); err != nil {
		return nil, toStatus(err)
	}
	return s.Get(ctx, in)
}

// Transfer moves an entry on behalf of its current owner: the caller must be
// the "from" principal.
func (s *Server) Transfer(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	caller, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	id, err := entryID(in)
	if err != nil {
		return nil, invalid(err)
	}
	from := str(in, "from")
	if from == "" {
		from = caller
	}
	if from != caller {
		return nil, status.Errorf(codes.PermissionDenied, "%s may not transfer on behalf of %s", caller, from)
	}
	if err := s.Registry.Transfer(caller, id, from, str(in, "to")); err != nil {
		return nil, toStatus(err)
	}
	return s.Get(ctx, in)
}

func (s *Server) Resolve(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := entryID(in)
	if err != nil {
		return nil, invalid(err)
	}
	res, err := s.Registry.Resolve(id)
	if err != nil {
		return nil, toStatus(err)
	}
	return encode(model.ResolutionView{
		EntryID:   res.EntryID,
		Pointer:   res.Pointer,
		Delegated: res.Delegated,
		Delegate:  res.Delegate,
	})
}

// History returns change records after the given seq, at most limit of them
// (default and cap 1000).
func (s *Server) History(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	after, err := uintField(in, "after", math.MaxUint64)
	if err != nil {
		return nil, invalid(err)
	}
	limit, err := uintField(in, "limit", maxHistory)
	if err != nil {
		return nil, invalid(err)
	}
	if limit == 0 {
		limit = maxHistory
	}
	recs := s.Registry.Records(after)
	if uint64(len(recs)) > limit {
		recs = recs[:limit]
	}
	if recs == nil {
		recs = []model.ChangeRecord{}
	}
	return encode(struct {
		Height  uint64               `json:"height"`
		Records []model.ChangeRecord `json:"records"`
	}{s.Registry.Height(), recs})
}

const maxHistory = 1000
