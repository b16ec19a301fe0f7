package proto

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// 请求与响应都使用 google.protobuf.Struct，字段名与 HTTP 接口的 JSON 保持一致

const ServiceName = "facesync.DetectService"

const (
	methodSimulate         = "/" + ServiceName + "/Simulate"
	methodStartSession     = "/" + ServiceName + "/StartSession"
	methodStopSession      = "/" + ServiceName + "/StopSession"
	methodSetFilter        = "/" + ServiceName + "/SetFilter"
	methodCheckSession     = "/" + ServiceName + "/CheckSession"
	methodCheckAllSessions = "/" + ServiceName + "/CheckAllSessions"
	methodWatchSession     = "/" + ServiceName + "/WatchSession"
	methodShutdown         = "/" + ServiceName + "/Shutdown"
)

type DetectServiceServer interface {
	Simulate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	StartSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
	StopSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SetFilter(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CheckSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CheckAllSessions(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	WatchSession(*structpb.Struct, DetectService_WatchSessionServer) error
	Shutdown(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
}

type DetectService_WatchSessionServer interface {
	Send(*structpb.Struct) error
	grpc.ServerStream
}

type watchSessionServer struct {
	grpc.ServerStream
}

func (x *watchSessionServer) Send(m *structpb.Struct) error {
	return x.ServerStream.SendMsg(m)
}

type structMethod func(DetectServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func structHandler(fullMethod string, call structMethod) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(DetectServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(DetectServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func checkAllSessionsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DetectServiceServer).CheckAllSessions(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodCheckAllSessions}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DetectServiceServer).CheckAllSessions(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func shutdownHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DetectServiceServer).Shutdown(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodShutdown}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DetectServiceServer).Shutdown(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func watchSessionHandler(srv any, stream grpc.ServerStream) error {
	m := new(structpb.Struct)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(DetectServiceServer).WatchSession(m, &watchSessionServer{stream})
}

var DetectService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DetectServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Simulate", Handler: structHandler(methodSimulate, DetectServiceServer.Simulate)},
		{MethodName: "StartSession", Handler: structHandler(methodStartSession, DetectServiceServer.StartSession)},
		{MethodName: "StopSession", Handler: structHandler(methodStopSession, DetectServiceServer.StopSession)},
		{MethodName: "SetFilter", Handler: structHandler(methodSetFilter, DetectServiceServer.SetFilter)},
		{MethodName: "CheckSession", Handler: structHandler(methodCheckSession, DetectServiceServer.CheckSession)},
		{MethodName: "CheckAllSessions", Handler: checkAllSessionsHandler},
		{MethodName: "Shutdown", Handler: shutdownHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "WatchSession", Handler: watchSessionHandler, ServerStreams: true},
	},
	Metadata: "facesync/detect.proto",
}

func RegisterDetectServiceServer(s grpc.ServiceRegistrar, srv DetectServiceServer) {
	s.RegisterService(&DetectService_ServiceDesc, srv)
}

type DetectServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewDetectServiceClient(cc grpc.ClientConnInterface) *DetectServiceClient {
	return &DetectServiceClient{cc: cc}
}

func (c *DetectServiceClient) invoke(ctx context.Context, method string, in any, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *DetectServiceClient) Simulate(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodSimulate, in, opts...)
}

func (c *DetectServiceClient) StartSession(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodStartSession, in, opts...)
}

func (c *DetectServiceClient) StopSession(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodStopSession, in, opts...)
}

func (c *DetectServiceClient) SetFilter(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodSetFilter, in, opts...)
}

func (c *DetectServiceClient) CheckSession(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodCheckSession, in, opts...)
}

func (c *DetectServiceClient) CheckAllSessions(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodCheckAllSessions, in, opts...)
}

func (c *DetectServiceClient) Shutdown(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, methodShutdown, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

type DetectService_WatchSessionClient interface {
	Recv() (*structpb.Struct, error)
	grpc.ClientStream
}

type watchSessionClient struct {
	grpc.ClientStream
}

func (x *watchSessionClient) Recv() (*structpb.Struct, error) {
	m := new(structpb.Struct)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (c *DetectServiceClient) WatchSession(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (DetectService_WatchSessionClient, error) {
	stream, err := c.cc.NewStream(ctx, &DetectService_ServiceDesc.Streams[0], methodWatchSession, opts...)
	if err != nil {
		return nil, err
	}
	x := &watchSessionClient{stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}
