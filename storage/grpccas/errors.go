package grpccas

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"xdao.co/oeuvre/storage"
)

var sentinels = map[codes.Code]error{
	codes.NotFound:         storage.ErrNotFound,
	codes.InvalidArgument:  storage.ErrInvalidCID,
	codes.DataLoss:         storage.ErrCIDMismatch,
	codes.AlreadyExists:    storage.ErrImmutable,
	codes.PermissionDenied: storage.ErrReadOnly,
}

// fromStatus turns an archive status back into the storage sentinel the
// server started from. Transport failures are returned unchanged.
func fromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	if s, ok := sentinels[st.Code()]; ok {
		return s
	}
	return err
}
