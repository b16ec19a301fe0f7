package proto

import (
	"FaceSyncServer/engine"
	"FaceSyncServer/session"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

func newTestClient(t *testing.T, maxSessions int) (*DetectServiceClient, *Server) {
	t.Helper()
	m := session.NewManager(session.ManagerConfig{
		MaxSessions: maxSessions,
		Options: session.Options{
			Simulator: engine.NewSimulator(nil),
			Interval:  5 * time.Millisecond,
		},
	})
	srv := NewServer(m, engine.NewSimulator(nil))
	lis := bufconn.Listen(1 << 20)
	gs := NewGRPCServer(srv)
	go gs.Serve(lis)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		conn.Close()
		gs.Stop()
		m.Close()
	})
	return NewDetectServiceClient(conn), srv
}

func mustNewStruct(t *testing.T, m map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	require.NoError(t, err)
	return s
}

func TestSimulate(t *testing.T) {
	client, _ := newTestClient(t, 1)
	ctx := context.Background()

	req := mustNewStruct(t, map[string]any{"time": 0.0, "filter": "cyberpunk", "seed": "42"})
	a, err := client.Simulate(ctx, req)
	require.NoError(t, err)
	b, err := client.Simulate(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, a.AsMap(), b.AsMap())
	assert.InDelta(t, 0.8, a.Fields["detectionChance"].GetNumberValue(), 1e-9)
	assert.Equal(t, "42", a.Fields["seed"].GetStringValue())
	for _, v := range a.Fields["boxes"].GetListValue().GetValues() {
		style := v.GetStructValue().Fields["style"].GetStructValue()
		assert.Equal(t, "#ff00ff", style.Fields["borderColor"].GetStringValue())
	}

	_, err = client.Simulate(ctx, mustNewStruct(t, map[string]any{"filter": "neon"}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	for _, seed := range []any{"abc", -1.0, 1.5, 1e20} {
		_, err = client.Simulate(ctx, mustNewStruct(t, map[string]any{"time": 1.0, "seed": seed}))
		assert.Equal(t, codes.InvalidArgument, status.Code(err), "seed %v", seed)
	}
	_, err = client.StartSession(ctx, mustNewStruct(t, map[string]any{"seed": -5.0}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	exact, err := client.Simulate(ctx, mustNewStruct(t, map[string]any{"time": 1.0, "seed": 7.0}))
	require.NoError(t, err)
	assert.Equal(t, "7", exact.Fields["seed"].GetStringValue())
}

func TestSessionLifecycle(t *testing.T) {
	client, _ := newTestClient(t, 1)
	ctx := context.Background()

	_, err := client.StartSession(ctx, mustNewStruct(t, map[string]any{"permission": "denied"}))
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	_, err = client.StartSession(ctx, mustNewStruct(t, map[string]any{"filter": "sepia"}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	resp, err := client.StartSession(ctx, mustNewStruct(t, map[string]any{"filter": "matrix", "seed": 9}))
	require.NoError(t, err)
	id := resp.Fields["sessionID"].GetStringValue()
	require.NotEmpty(t, id)
	assert.True(t, resp.Fields["session"].GetStructValue().Fields["streaming"].GetBoolValue())

	_, err = client.StartSession(ctx, mustNewStruct(t, map[string]any{}))
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))

	byID := mustNewStruct(t, map[string]any{"sessionID": id})
	assert.Eventually(t, func() bool {
		r, err := client.CheckSession(ctx, byID)
		return err == nil && r.Fields["session"].GetStructValue().Fields["ticks"].GetNumberValue() > 0
	}, 2*time.Second, 10*time.Millisecond)

	f, err := client.SetFilter(ctx, mustNewStruct(t, map[string]any{"sessionID": id, "filter": "neon"}))
	require.NoError(t, err)
	assert.Equal(t, "neon", f.Fields["filter"].GetStringValue())

	all, err := client.CheckAllSessions(ctx, &emptypb.Empty{})
	require.NoError(t, err)
	assert.Len(t, all.Fields["sessions"].GetListValue().GetValues(), 1)

	stopped, err := client.StopSession(ctx, mustNewStruct(t, map[string]any{"sessionID": id, "release": true}))
	require.NoError(t, err)
	assert.False(t, stopped.Fields["session"].GetStructValue().Fields["streaming"].GetBoolValue())

	_, err = client.CheckSession(ctx, byID)
	assert.Equal(t, codes.NotFound, status.Code(err))
	_, err = client.CheckSession(ctx, mustNewStruct(t, map[string]any{}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestWatchSession(t *testing.T) {
	client, _ := newTestClient(t, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := client.StartSession(ctx, mustNewStruct(t, map[string]any{}))
	require.NoError(t, err)
	id := resp.Fields["sessionID"].GetStringValue()

	stream, err := client.WatchSession(ctx, mustNewStruct(t, map[string]any{"sessionID": id, "maxFrames": 3}))
	require.NoError(t, err)
	frames := 0
	for {
		ev, err := stream.Recv()
		if err != nil {
			break
		}
		if ev.Fields["type"].GetStringValue() == string(session.EventFrame) {
			frames++
			frame := ev.Fields["frame"].GetStructValue()
			assert.Equal(t, "normal", frame.Fields["filter"].GetStringValue())
		}
	}
	assert.Equal(t, 3, frames)
}

func TestShutdown(t *testing.T) {
	client, srv := newTestClient(t, 1)
	_, err := client.Shutdown(context.Background(), &emptypb.Empty{})
	require.NoError(t, err)
	select {
	case <-srv.Done():
	case <-time.After(time.Second):
		t.Fatal("Done not closed")
	}
	_, err = client.Shutdown(context.Background(), &emptypb.Empty{})
	assert.NoError(t, err)
}
