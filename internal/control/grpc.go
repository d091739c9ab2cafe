package control

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"go.klb.dev/tkharness/internal/message"
)

const (
	serviceName = "tkharness.v1.Harness"

	// errorCodeKey is the trailer that carries the stable error code.
	errorCodeKey = "x-tkharness-error"
)

// jsonCodec lets the service exchange message.Request and message.Response
// directly, without generated protobuf types.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return "json" }

// methodName maps an op onto its RPC name: STATUS becomes Status.
func methodName(op message.Op) string {
	s := strings.ToLower(string(op))
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func fullMethod(op message.Op) string { return "/" + serviceName + "/" + methodName(op) }

var serviceDesc = func() grpc.ServiceDesc {
	desc := grpc.ServiceDesc{
		ServiceName: serviceName,
		HandlerType: (*Handler)(nil),
		Metadata:    "tkharness/v1/harness.proto",
	}
	for _, op := range message.Ops {
		desc.Methods = append(desc.Methods, grpc.MethodDesc{
			MethodName: methodName(op),
			Handler:    unaryHandler(op),
		})
	}
	return desc
}()

func unaryHandler(op message.Op) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		req := new(message.Request)
		if err := dec(req); err != nil {
			return nil, err
		}
		req.Op = op
		handler := func(ctx context.Context, r any) (any, error) {
			return callRPC(ctx, srv.(Handler), r.(*message.Request))
		}
		if interceptor == nil {
			return handler(ctx, req)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(op)}
		return interceptor(ctx, req, info, handler)
	}
}

// callRPC turns a failed response into a gRPC status, with the stable code in
// the trailer.
func callRPC(ctx context.Context, h Handler, req *message.Request) (*message.Response, error) {
	resp := h.Handle(ctx, req)
	if resp.Code == "" {
		return resp, nil
	}
	_ = grpc.SetTrailer(ctx, metadata.Pairs(errorCodeKey, resp.Code))
	return nil, status.Error(grpcCode(resp.Code), resp.Error)
}

func logUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	slog.Debug("grpc call",
		"method", info.FullMethod,
		"code", status.Code(err).String(),
		"duration", time.Since(start),
	)
	return resp, err
}

func newGRPCServer(h Handler) *grpc.Server {
	s := grpc.NewServer(
		grpc.ForceServerCodec(jsonCodec{}),
		grpc.UnaryInterceptor(logUnary),
	)
	s.RegisterService(&serviceDesc, h)
	return s
}
