// Package decode manages the protocol decoder backend reached over gRPC.
package decode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	reflectionpb "google.golang.org/grpc/reflection/grpc_reflection_v1"

	"github.com/rbright/sigview/internal/acquisition"
)

const (
	// HealthService is the health-check key a backend reports SERVING on.
	HealthService = "sigview.decode.v1"
	// ServicePrefix marks decoder services in the backend's reflection list.
	ServicePrefix = HealthService + "."

	logLevelHeader     = "x-sigview-loglevel"
	defaultDialTimeout = 2 * time.Second
)

// ErrNotServing is returned by Init when the backend health check fails.
var ErrNotServing = errors.New("decoder backend is not serving")

// Options configure the engine.
type Options struct {
	// Endpoint is host:port of the backend; empty runs without decoders.
	Endpoint    string
	DialTimeout time.Duration
	Logger      *slog.Logger
}

// Engine is the process-wide decoder handle.
type Engine struct {
	endpoint    string
	dialTimeout time.Duration
	level       *slog.LevelVar
	logger      *slog.Logger

	mu       sync.Mutex
	logLevel acquisition.LogLevel
	conn     *grpc.ClientConn
	decoders []string
	inited   bool
	exited   bool
}

// New builds an engine; nothing is dialed until Init.
func New(opts Options) *Engine {
	base := opts.Logger
	if base == nil {
		base = slog.New(slog.DiscardHandler)
	}
	timeout := opts.DialTimeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}

	level := new(slog.LevelVar)
	level.Set(acquisition.DefaultLogLevel.Slog())
	return &Engine{
		endpoint:    strings.TrimSpace(opts.Endpoint),
		dialTimeout: timeout,
		level:       level,
		logLevel:    acquisition.DefaultLogLevel,
		logger:      slog.New(acquisition.LevelFilter(base.Handler(), level)).With("subsystem", "decode"),
	}
}

// Init connects to the backend and checks its health.
func (e *Engine) Init(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.exited {
		return errors.New("decoder engine already exited")
	}
	if e.inited {
		return errors.New("decoder engine already initialized")
	}
	if e.endpoint == "" {
		e.inited = true
		e.logger.Info("decoder backend disabled; no endpoint configured")
		return nil
	}

	conn, err := grpc.NewClient(
		e.endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return fmt.Errorf("dial decoder grpc %q: %w", e.endpoint, err)
	}

	readyCtx, cancel := context.WithTimeout(ctx, e.dialTimeout)
	defer cancel()
	if err := e.awaitBackend(readyCtx, conn); err != nil {
		_ = conn.Close()
		return fmt.Errorf("decoder backend %q: %w", e.endpoint, err)
	}

	resp, err := healthpb.NewHealthClient(conn).Check(e.outgoing(readyCtx), &healthpb.HealthCheckRequest{Service: HealthService})
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("decoder health check: %w", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		_ = conn.Close()
		return fmt.Errorf("%w: status %s", ErrNotServing, resp.GetStatus())
	}

	e.conn = conn
	e.inited = true
	e.logger.Info("decoder backend ready", "endpoint", e.endpoint)
	return nil
}

// LoadAll lists decoder services via server reflection and caches them.
func (e *Engine) LoadAll(ctx context.Context) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.inited {
		return nil, errors.New("decoder engine not initialized")
	}
	if e.conn == nil {
		e.decoders = nil
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, e.dialTimeout)
	defer cancel()

	services, err := listServices(e.outgoing(ctx), e.conn)
	if err != nil {
		return nil, fmt.Errorf("list decoder services: %w", err)
	}

	var decoders []string
	for _, name := range services {
		if id, ok := strings.CutPrefix(name, ServicePrefix); ok && id != "" {
			decoders = append(decoders, id)
		}
	}
	slices.Sort(decoders)
	e.decoders = decoders

	e.logger.Info("decoders loaded", "count", len(decoders))
	e.logger.Debug("decoder list", "decoders", decoders)
	return slices.Clone(decoders), nil
}

func listServices(ctx context.Context, conn *grpc.ClientConn) ([]string, error) {
	stream, err := reflectionpb.NewServerReflectionClient(conn).ServerReflectionInfo(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = stream.CloseSend() }()

	if err := stream.Send(&reflectionpb.ServerReflectionRequest{
		MessageRequest: &reflectionpb.ServerReflectionRequest_ListServices{ListServices: "*"},
	}); err != nil {
		return nil, err
	}
	resp, err := stream.Recv()
	if err != nil {
		return nil, err
	}
	if errResp := resp.GetErrorResponse(); errResp != nil {
		return nil, fmt.Errorf("reflection error %d: %s", errResp.GetErrorCode(), errResp.GetErrorMessage())
	}

	var names []string
	for _, svc := range resp.GetListServicesResponse().GetService() {
		names = append(names, svc.GetName())
	}
	return names, nil
}

// SetLogLevel changes decoder verbosity; the level is also forwarded to the
// backend as request metadata.
func (e *Engine) SetLogLevel(level acquisition.LogLevel) error {
	if !level.Valid() {
		return fmt.Errorf("invalid decoder log level %d", int(level))
	}
	e.mu.Lock()
	e.logLevel = level
	e.mu.Unlock()
	e.level.Set(level.Slog())
	return nil
}

func (e *Engine) LogLevel() acquisition.LogLevel {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.logLevel
}

// outgoing attaches the log level header. Callers hold e.mu.
func (e *Engine) outgoing(ctx context.Context) context.Context {
	return metadata.AppendToOutgoingContext(ctx, logLevelHeader, strconv.Itoa(int(e.logLevel)))
}

// Decoders returns the names cached by the last LoadAll.
func (e *Engine) Decoders() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.decoders)
}

// Connected reports whether a backend connection is open.
func (e *Engine) Connected() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conn != nil
}

// Exit releases the backend connection. It is safe to call repeatedly and
// after a failed or skipped Init.
func (e *Engine) Exit() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.exited {
		return nil
	}
	e.exited = true
	e.decoders = nil

	if e.conn == nil {
		return nil
	}
	err := e.conn.Close()
	e.conn = nil
	if err != nil {
		return fmt.Errorf("close decoder connection: %w", err)
	}
	e.logger.Info("decoder backend closed")
	return nil
}
