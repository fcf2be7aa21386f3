package grpccas

import (
	"context"
	"errors"

	"github.com/ipfs/go-cid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/oeuvre/cidutil"
	"xdao.co/oeuvre/storage"
)

// Server exports a payload archive. Reads are always served; every payload
// is checked against its commitment before it leaves the process.
type Server struct {
	UnimplementedArchiveServer
	CAS storage.CAS

	// ReadOnly refuses Put with PermissionDenied. The registry server exports
	// its own archive this way: payloads enter it only through Mint.
	ReadOnly bool
}

var errNoArchive = status.Error(codes.FailedPrecondition, "archive not configured")

func (s *Server) Put(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.StringValue, error) {
	if s == nil || s.CAS == nil {
		return nil, errNoArchive
	}
	if s.ReadOnly {
		return nil, toStatus(storage.ErrReadOnly)
	}
	if err := ctx.Err(); err != nil {
		return nil, status.FromContextError(err).Err()
	}
	payload := in.GetValue()
	want, err := cidutil.CIDv1RawSHA256CID(payload)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "hash payload: %v", err)
	}
	filed, err := s.CAS.Put(payload)
	if err != nil {
		return nil, toStatus(err)
	}
	if !filed.Equals(want) {
		return nil, toStatus(storage.ErrCIDMismatch)
	}
	return wrapperspb.String(filed.String()), nil
}

func (s *Server) Get(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	id, err := s.lookup(in)
	if err != nil {
		return nil, err
	}
	payload, err := s.CAS.Get(id)
	if err != nil {
		return nil, toStatus(err)
	}
	if !cidutil.Matches(id, string(payload)) {
		return nil, toStatus(storage.ErrCIDMismatch)
	}
	return wrapperspb.Bytes(payload), nil
}

func (s *Server) Has(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	id, err := s.lookup(in)
	if err != nil {
		return nil, err
	}
	return wrapperspb.Bool(s.CAS.Has(id)), nil
}

// lookup parses the requested commitment.
func (s *Server) lookup(in *wrapperspb.StringValue) (cid.Cid, error) {
	if s == nil || s.CAS == nil {
		return cid.Undef, errNoArchive
	}
	id, err := cid.Decode(in.GetValue())
	if err != nil || !id.Defined() {
		return cid.Undef, toStatus(storage.ErrInvalidCID)
	}
	return id, nil
}

// toStatus is the inverse of fromStatus.
func toStatus(err error) error {
	code := codes.Internal
	switch {
	case errors.Is(err, storage.ErrNotFound):
		code = codes.NotFound
	case errors.Is(err, storage.ErrInvalidCID):
		code = codes.InvalidArgument
	case errors.Is(err, storage.ErrCIDMismatch):
		code = codes.DataLoss
	case errors.Is(err, storage.ErrImmutable):
		code = codes.AlreadyExists
	case errors.Is(err, storage.ErrReadOnly):
		code = codes.PermissionDenied
	}
	return status.Error(code, err.Error())
}
