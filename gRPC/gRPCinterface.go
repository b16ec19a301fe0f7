package proto

import (
	"FaceSyncServer/engine"
	iface "FaceSyncServer/interface"
	"FaceSyncServer/logger"
	"FaceSyncServer/monitor"
	"FaceSyncServer/session"
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"net"
	"strconv"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type Server struct {
	manager   *session.Manager
	sim       iface.Simulator
	closeCh   chan struct{}
	closeOnce sync.Once
}

func NewServer(manager *session.Manager, sim iface.Simulator) *Server {
	return &Server{
		manager: manager,
		sim:     sim,
		closeCh: make(chan struct{}),
	}
}

// Done 在客户端调用 Shutdown 后关闭
func (s *Server) Done() <-chan struct{} {
	return s.closeCh
}

// toStruct 经 JSON 转成 Struct，字段名沿用 json tag
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

func mustStruct(v any) (*structpb.Struct, error) {
	out, err := toStruct(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}

func grpcError(err error) error {
	code := codes.Internal
	switch {
	case errors.Is(err, session.ErrNotFound):
		code = codes.NotFound
	case errors.Is(err, session.ErrNoCapacity):
		code = codes.ResourceExhausted
	case errors.Is(err, session.ErrAlreadyStreaming):
		code = codes.FailedPrecondition
	case errors.Is(err, session.ErrPermissionDenied), errors.Is(err, session.ErrUnsupportedDevice):
		code = codes.PermissionDenied
	case errors.Is(err, iface.ErrUnknownFilter):
		code = codes.InvalidArgument
	}
	return status.Error(code, err.Error())
}

func stringField(in *structpb.Struct, key string) string {
	return in.GetFields()[key].GetStringValue()
}

// seed 超过 2^53 时会丢精度，需要精确值的客户端请传字符串
func seedField(in *structpb.Struct) (uint64, bool, error) {
	v, ok := in.GetFields()["seed"]
	if !ok {
		return 0, false, nil
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		n := k.NumberValue
		if math.IsNaN(n) || n < 0 || n >= math.MaxUint64 || n != math.Trunc(n) {
			return 0, false, status.Errorf(codes.InvalidArgument, "invalid seed %v", n)
		}
		return uint64(n), true, nil
	case *structpb.Value_StringValue:
		seed, err := strconv.ParseUint(k.StringValue, 10, 64)
		if err != nil {
			return 0, false, status.Errorf(codes.InvalidArgument, "invalid seed %q", k.StringValue)
		}
		return seed, true, nil
	default:
		return 0, false, status.Error(codes.InvalidArgument, "seed must be a number or string")
	}
}

func (s *Server) Simulate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	tv, ok := req.GetFields()["time"]
	if !ok {
		return nil, status.Error(codes.InvalidArgument, "time is required")
	}
	ts := tv.GetNumberValue()
	filter := iface.Filter(stringField(req, "filter"))
	if filter == "" {
		filter = iface.FilterNormal
	}
	seed, ok, err := seedField(req)
	if err != nil {
		return nil, err
	}
	if !ok {
		seed = rand.Uint64()
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	boxes := s.sim.Tick(ts, filter, rng)
	return mustStruct(map[string]any{
		"detectionChance": engine.DetectionChance(ts),
		"filter":          filter,
		"seed":            strconv.FormatUint(seed, 10),
		"boxes":           boxes,
		"overlay":         engine.OverlayFor(filter),
	})
}

func (s *Server) StartSession(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	seed, _, err := seedField(req)
	if err != nil {
		return nil, err
	}
	sess, err := s.manager.Alloc(seed)
	if err != nil {
		return nil, grpcError(err)
	}
	if f := stringField(req, "filter"); f != "" {
		if _, err := sess.SetFilter(f); err != nil {
			_ = s.manager.Release(sess.ID)
			return nil, grpcError(err)
		}
	}
	perm := iface.Permission(stringField(req, "permission"))
	if perm == "" {
		perm = iface.PermissionGranted
	}
	if err := sess.Start(ctx, perm); err != nil {
		_ = s.manager.Release(sess.ID)
		return nil, grpcError(err)
	}
	logger.Log().Info("gRPC session started", zap.String("sessionID", sess.ID), zap.String("filter", string(sess.Filter())))
	return mustStruct(map[string]any{"sessionID": sess.ID, "session": sess.Snapshot()})
}

func (s *Server) lookup(req *structpb.Struct) (*session.Session, error) {
	id := stringField(req, "sessionID")
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "sessionID is required")
	}
	sess, err := s.manager.Get(id)
	if err != nil {
		return nil, grpcError(err)
	}
	return sess, nil
}

func (s *Server) StopSession(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	sess, err := s.lookup(req)
	if err != nil {
		return nil, err
	}
	sess.Stop()
	if req.GetFields()["release"].GetBoolValue() {
		if err := s.manager.Release(sess.ID); err != nil {
			return nil, grpcError(err)
		}
	}
	return mustStruct(map[string]any{"session": sess.Snapshot()})
}

func (s *Server) SetFilter(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	sess, err := s.lookup(req)
	if err != nil {
		return nil, err
	}
	f, err := sess.SetFilter(stringField(req, "filter"))
	if err != nil {
		return nil, grpcError(err)
	}
	return mustStruct(map[string]any{"filter": f})
}

func (s *Server) CheckSession(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	sess, err := s.lookup(req)
	if err != nil {
		return nil, err
	}
	sess.Touch()
	return mustStruct(map[string]any{"session": sess.Snapshot()})
}

func (s *Server) CheckAllSessions(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error) {
	return mustStruct(map[string]any{"sessions": s.manager.List()})
}

// WatchSession 推送会话事件直到客户端断开、会话释放或收到 maxFrames 帧
func (s *Server) WatchSession(req *structpb.Struct, stream DetectService_WatchSessionServer) error {
	sess, err := s.lookup(req)
	if err != nil {
		return err
	}
	maxFrames := int(req.GetFields()["maxFrames"].GetNumberValue())
	events, unsubscribe := sess.Subscribe()
	defer unsubscribe()

	frames := 0
	for {
		select {
		case <-stream.Context().Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			msg, err := mustStruct(ev)
			if err != nil {
				return err
			}
			if err := stream.Send(msg); err != nil {
				return err
			}
			if ev.Type == session.EventFrame {
				frames++
				if maxFrames > 0 && frames >= maxFrames {
					return nil
				}
			}
		}
	}
}

func (s *Server) Shutdown(ctx context.Context, req *emptypb.Empty) (*emptypb.Empty, error) {
	logger.Log().Warn("Shutdown requested over gRPC")
	s.closeOnce.Do(func() {
		close(s.closeCh)
	})
	return &emptypb.Empty{}, nil
}

func countingUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	monitor.GRPCTotal.Inc()
	resp, err := handler(ctx, req)
	if err != nil {
		logger.Log().Debug("gRPC call failed", zap.String("method", info.FullMethod), zap.Error(err))
	}
	return resp, err
}

func countingStream(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	monitor.GRPCTotal.Inc()
	return handler(srv, ss)
}

func NewGRPCServer(srv *Server) *grpc.Server {
	s := grpc.NewServer(
		grpc.ChainUnaryInterceptor(countingUnary),
		grpc.ChainStreamInterceptor(countingStream),
	)
	RegisterDetectServiceServer(s, srv)
	return s
}

func StartGRPCServer(port int, srv *Server) (*grpc.Server, error) {
	addr := fmt.Sprintf(":%d", port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	s := NewGRPCServer(srv)
	go func() {
		logger.Log().Info("gRPC server listening", zap.String("addr", addr))
		if err := s.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			logger.Log().Error("Failed to serve gRPC server", zap.Error(err))
		}
	}()
	return s, nil
}
