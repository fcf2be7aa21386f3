package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	AttrMethod     = "rpc.method"
	AttrStatusCode = "rpc.grpc.status_code"
	AttrEntryID    = "oeuvre.entry_id"
	AttrPrincipal  = "oeuvre.principal"
)

// UnaryServerInterceptor opens a server span per call. Requests carrying an
// "id" field get the entry id attribute; the principal header, if present, is
// recorded as well.
func UnaryServerInterceptor(tracer trace.Tracer, principalHeader string) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if tracer == nil {
			return handler(ctx, req)
		}
		ctx, span := tracer.Start(ctx, info.FullMethod, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		span.SetAttributes(attribute.String(AttrMethod, info.FullMethod))
		if s, ok := req.(*structpb.Struct); ok {
			if v, ok := s.GetFields()["id"]; ok {
				span.SetAttributes(attribute.Int64(AttrEntryID, int64(v.GetNumberValue())))
			}
		}
		if md, ok := metadata.FromIncomingContext(ctx); ok && principalHeader != "" {
			if vals := md.Get(principalHeader); len(vals) > 0 {
				span.SetAttributes(attribute.String(AttrPrincipal, vals[0]))
			}
		}

		resp, err := handler(ctx, req)
		st, _ := status.FromError(err)
		span.SetAttributes(attribute.Int(AttrStatusCode, int(st.Code())))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, st.Message())
		} else {
			span.SetStatus(otelcodes.Ok, "")
		}
		return resp, err
	}
}
