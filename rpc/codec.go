package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"xdao.co/oeuvre/registry"
)

// encode converts a JSON-object-shaped value into a Struct.
func encode(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(b, out); err != nil {
		return nil, err
	}
	return out, nil
}

// decode converts a Struct into v through its JSON form.
func decode(s *structpb.Struct, v any) error {
	b, err := protojson.Marshal(s)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

func str(s *structpb.Struct, key string) string {
	return s.GetFields()[key].GetStringValue()
}

func boolean(s *structpb.Struct, key string) bool {
	return s.GetFields()[key].GetBoolValue()
}

// uintField reads a non-negative integral number no larger than max.
func uintField(s *structpb.Struct, key string, max uint64) (uint64, error) {
	v, ok := s.GetFields()[key]
	if !ok {
		return 0, nil
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, fmt.Errorf("%s must be a number", key)
	}
	f := n.NumberValue
	if f < 0 || f != math.Trunc(f) || f > float64(max) || f > 1<<53 {
		return 0, fmt.Errorf("%s must be an integer in [0, %d]", key, max)
	}
	return uint64(f), nil
}

func entryID(s *structpb.Struct) (uint64, error) {
	id, err := uintField(s, "id", math.MaxUint64)
	if err != nil {
		return 0, err
	}
	if id == 0 {
		return 0, errors.New("id is required")
	}
	return id, nil
}

// toStatus maps registry errors onto gRPC status codes.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	var code codes.Code
	switch registry.KindOf(err) {
	case registry.KindInvalidInput:
		code = codes.InvalidArgument
	case registry.KindNotFound:
		code = codes.NotFound
	case registry.KindUnauthorized:
		code = codes.PermissionDenied
	case registry.KindWindowClosed:
		code = codes.FailedPrecondition
	case registry.KindResourceExhausted:
		code = codes.ResourceExhausted
	default:
		code = codes.Internal
	}
	return status.Error(code, err.Error())
}

// fromStatus maps a status back onto a *registry.Error so callers can use
// registry.IsKind on either side of the wire.
func fromStatus(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	var kind registry.Kind
	switch st.Code() {
	case codes.InvalidArgument:
		kind = registry.KindInvalidInput
	case codes.NotFound:
		kind = registry.KindNotFound
	case codes.PermissionDenied, codes.Unauthenticated:
		kind = registry.KindUnauthorized
	case codes.FailedPrecondition:
		kind = registry.KindWindowClosed
	case codes.ResourceExhausted:
		kind = registry.KindResourceExhausted
	case codes.Internal:
		kind = registry.KindInvariantViolation
	default:
		return err
	}
	return &registry.Error{Kind: kind, Message: st.Message(), Cause: err}
}
