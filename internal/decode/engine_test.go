package decode

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/reflection"

	"github.com/rbright/sigview/internal/acquisition"
)

type testBackend struct {
	endpoint string
	health   *health.Server

	mu        sync.Mutex
	logLevels []string
}

func (b *testBackend) recordedLevels() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.logLevels...)
}

func startTestBackend(t *testing.T, status healthpb.HealthCheckResponse_ServingStatus, decoders ...string) *testBackend {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	backend := &testBackend{endpoint: lis.Addr().String(), health: health.NewServer()}
	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			backend.mu.Lock()
			backend.logLevels = append(backend.logLevels, md.Get(logLevelHeader)...)
			backend.mu.Unlock()
		}
		return handler(ctx, req)
	}))

	healthpb.RegisterHealthServer(grpcServer, backend.health)
	backend.health.SetServingStatus(HealthService, status)
	reflection.Register(grpcServer)
	for _, name := range decoders {
		grpcServer.RegisterService(&grpc.ServiceDesc{
			ServiceName: name,
			HandlerType: (*any)(nil),
			Metadata:    "decoder.proto",
		}, struct{}{})
	}

	go func() {
		_ = grpcServer.Serve(lis)
	}()
	t.Cleanup(func() {
		grpcServer.Stop()
		_ = lis.Close()
	})

	return backend
}

func TestInitWithoutEndpoint(t *testing.T) {
	e := New(Options{Endpoint: "   "})
	require.NoError(t, e.Init(context.Background()))
	require.False(t, e.Connected())

	decoders, err := e.LoadAll(context.Background())
	require.NoError(t, err)
	require.Empty(t, decoders)
	require.NoError(t, e.Exit())
}

func TestInitLoadAllAgainstBackend(t *testing.T) {
	backend := startTestBackend(t, healthpb.HealthCheckResponse_SERVING,
		"sigview.decode.v1.Uart",
		"sigview.decode.v1.I2c",
		"other.Service",
	)

	e := New(Options{Endpoint: backend.endpoint, DialTimeout: 2 * time.Second})
	require.NoError(t, e.SetLogLevel(acquisition.LogDebug))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, e.Init(ctx))
	require.True(t, e.Connected())

	decoders, err := e.LoadAll(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"I2c", "Uart"}, decoders)
	require.Equal(t, decoders, e.Decoders())
	require.Contains(t, backend.recordedLevels(), "4")

	require.NoError(t, e.Exit())
	require.False(t, e.Connected())
	require.Empty(t, e.Decoders())
	require.NoError(t, e.Exit())
}

func TestInitNotServing(t *testing.T) {
	backend := startTestBackend(t, healthpb.HealthCheckResponse_NOT_SERVING)

	e := New(Options{Endpoint: backend.endpoint})
	err := e.Init(context.Background())
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrNotServing))
	require.False(t, e.Connected())
	require.NoError(t, e.Exit())
}

func TestInitAfterHealthShutdown(t *testing.T) {
	backend := startTestBackend(t, healthpb.HealthCheckResponse_SERVING)
	backend.health.Shutdown()

	e := New(Options{Endpoint: backend.endpoint})
	err := e.Init(context.Background())
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrNotServing))
}

func TestInitReadinessTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	e := New(Options{Endpoint: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond})
	err := e.Init(ctx)
	require.ErrorIs(t, err, ErrNotReady)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.False(t, e.Connected())
	require.NoError(t, e.Exit())
}

func TestInitLogsChannelStatesAtDebug(t *testing.T) {
	backend := startTestBackend(t, healthpb.HealthCheckResponse_SERVING)

	var logs bytes.Buffer
	e := New(Options{
		Endpoint:    backend.endpoint,
		DialTimeout: 2 * time.Second,
		Logger:      slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug})),
	})
	require.NoError(t, e.SetLogLevel(acquisition.LogDebug))
	require.NoError(t, e.Init(context.Background()))
	t.Cleanup(func() { _ = e.Exit() })

	require.Contains(t, logs.String(), "decoder channel state")
	require.Contains(t, logs.String(), "to=READY")
}

func TestInitTwiceAndAfterExit(t *testing.T) {
	e := New(Options{})
	require.NoError(t, e.Init(context.Background()))
	require.ErrorContains(t, e.Init(context.Background()), "already initialized")

	exited := New(Options{})
	require.NoError(t, exited.Exit())
	require.ErrorContains(t, exited.Init(context.Background()), "already exited")
}

func TestLoadAllBeforeInit(t *testing.T) {
	_, err := New(Options{}).LoadAll(context.Background())
	require.ErrorContains(t, err, "not initialized")
}

func TestSetLogLevel(t *testing.T) {
	e := New(Options{})
	require.Equal(t, acquisition.DefaultLogLevel, e.LogLevel())
	require.NoError(t, e.SetLogLevel(acquisition.LogSpew))
	require.Equal(t, acquisition.LogSpew, e.LogLevel())
	require.Error(t, e.SetLogLevel(acquisition.LogLevel(9)))
	require.Equal(t, acquisition.LogSpew, e.LogLevel())
}
