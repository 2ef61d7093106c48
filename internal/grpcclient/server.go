package grpcclient

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/GriffinCanCode/olfactory-vision/internal/inference"
)

// Backend is what a process serving the inference service must provide.
type Backend interface {
	inference.Visual
	inference.Olfactory
}

// Register exposes backend on s under ServiceName, so any Backend (for example the
// OpenAI-compatible client) can be served to remote pipelines.
func Register(s *grpc.Server, backend Backend) {
	s.RegisterService(&serviceDesc, backend)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*Backend)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: methodNameVisual, Handler: visualHandler},
		{MethodName: methodNameOlfactory, Handler: olfactoryHandler},
	},
	Streams: []grpc.StreamDesc{},
}

func visualHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	call := func(ctx context.Context, req any) (any, error) {
		frames, directive, err := decodeVisualRequest(req.(*structpb.Struct))
		if err != nil {
			return nil, err
		}
		out, err := srv.(Backend).InferVisual(ctx, frames, directive)
		if err != nil {
			return nil, err
		}
		return wrapperspb.String(out), nil
	}
	if interceptor == nil {
		return call(ctx, in)
	}
	return interceptor(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodInferVisual}, call)
}

func olfactoryHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	call := func(ctx context.Context, req any) (any, error) {
		out, err := srv.(Backend).InferOlfactory(ctx, req.(*wrapperspb.BytesValue).GetValue())
		if err != nil {
			return nil, err
		}
		return wrapperspb.String(out), nil
	}
	if interceptor == nil {
		return call(ctx, in)
	}
	return interceptor(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodInferOlfactory}, call)
}
