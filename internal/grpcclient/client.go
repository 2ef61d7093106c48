package grpcclient

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/protobuf/types/known/wrapperspb"

	apperr "github.com/GriffinCanCode/olfactory-vision/internal/errors"
	"github.com/GriffinCanCode/olfactory-vision/internal/inference"
	"github.com/GriffinCanCode/olfactory-vision/internal/model"
	"github.com/GriffinCanCode/olfactory-vision/internal/resilience"
	"github.com/GriffinCanCode/olfactory-vision/internal/trace"
)

// CircuitState aliases the breaker state for callers that only import this package.
type CircuitState = resilience.State

const (
	CircuitClosed   = resilience.Closed
	CircuitOpen     = resilience.Open
	CircuitHalfOpen = resilience.HalfOpen
)

// ErrCircuitOpen is returned without contacting the server while the breaker is open.
var ErrCircuitOpen = resilience.ErrOpen

// Config holds connection settings.
type Config struct {
	Addr                string
	KeepaliveTime       time.Duration
	KeepaliveTimeout    time.Duration
	HealthCheckInterval time.Duration // zero disables the background probe
	MaxMessageSize      int
	Breaker             resilience.Config
}

// DefaultConfig returns production defaults for addr.
func DefaultConfig() Config {
	return Config{
		KeepaliveTime:       DefaultKeepaliveTime,
		KeepaliveTimeout:    DefaultKeepaliveTimeout,
		HealthCheckInterval: DefaultHealthCheckInterval,
		MaxMessageSize:      DefaultMaxMessageSize,
		Breaker:             resilience.SlowConfig(),
	}
}

// Client calls a remote inference server. It implements both inference capabilities.
type Client struct {
	conn    *grpc.ClientConn
	health  healthpb.HealthClient
	breaker *resilience.Breaker
	healthy atomic.Bool
	stop    chan struct{}
	wg      sync.WaitGroup
}

var (
	_ inference.Visual    = (*Client)(nil)
	_ inference.Olfactory = (*Client)(nil)
)

// New creates a client. The connection is established lazily on first call.
func New(cfg Config, opts ...grpc.DialOption) (*Client, error) {
	if cfg.Addr == "" {
		return nil, apperr.New(apperr.CodeConfigInvalid, "inference address not set")
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = DefaultMaxMessageSize
	}
	if cfg.Breaker.Name == "" {
		cfg.Breaker.Name = "grpc:" + cfg.Addr
	}

	dial := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithChainUnaryInterceptor(trace.UnaryClientInterceptor()),
		grpc.WithChainStreamInterceptor(trace.StreamClientInterceptor()),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallSendMsgSize(cfg.MaxMessageSize),
			grpc.MaxCallRecvMsgSize(cfg.MaxMessageSize),
		),
	}
	if cfg.KeepaliveTime > 0 {
		dial = append(dial, grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                cfg.KeepaliveTime,
			Timeout:             cfg.KeepaliveTimeout,
			PermitWithoutStream: true,
		}))
	}
	dial = append(dial, opts...)

	conn, err := grpc.NewClient(cfg.Addr, dial...)
	if err != nil {
		return nil, apperr.Wrapf(err, apperr.CodeConfigInvalid, "dial %s", cfg.Addr)
	}

	c := &Client{
		conn:    conn,
		health:  healthpb.NewHealthClient(conn),
		breaker: resilience.New(cfg.Breaker),
		stop:    make(chan struct{}),
	}
	c.healthy.Store(true)

	if cfg.HealthCheckInterval > 0 {
		c.wg.Add(1)
		go c.watchHealth(cfg.HealthCheckInterval)
	}
	return c, nil
}

// Close stops the health probe and closes the gRPC connection
func (c *Client) Close() error {
	close(c.stop)
	c.wg.Wait()
	return c.conn.Close()
}

// CircuitState reports the breaker state.
func (c *Client) CircuitState() CircuitState { return c.breaker.State() }

// Breaker exposes the breaker so callers can attach hooks.
func (c *Client) Breaker() *resilience.Breaker { return c.breaker }

// Healthy reports the result of the last background health probe.
func (c *Client) Healthy() bool { return c.healthy.Load() }

// InferVisual sends the frame sequence and directive, returning the server's raw JSON.
func (c *Client) InferVisual(ctx context.Context, frames []model.Frame, directive string) (string, error) {
	req, err := encodeVisualRequest(frames, directive)
	if err != nil {
		return "", err
	}
	return c.invoke(ctx, MethodInferVisual, req)
}

// InferOlfactory sends the serialized visual timeline, returning the server's raw JSON.
func (c *Client) InferOlfactory(ctx context.Context, visualReport []byte) (string, error) {
	return c.invoke(ctx, MethodInferOlfactory, wrapperspb.Bytes(visualReport))
}

func (c *Client) invoke(ctx context.Context, method string, req any) (string, error) {
	reply := new(wrapperspb.StringValue)
	err := c.breaker.Execute(func() error {
		return c.conn.Invoke(ctx, method, req, reply)
	})
	if err != nil {
		if err == ErrCircuitOpen {
			return "", err
		}
		appErr := apperr.FromGRPCError(err)
		if appErr.Code == apperr.CodeTimeout {
			appErr.Code = apperr.CodeTransient
		}
		trace.Logger(ctx).Warn("inference rpc failed", "method", method, "code", appErr.Code, "error", err)
		return "", appErr.WithMetadata("method", method)
	}
	return reply.GetValue(), nil
}

// Check performs a single health probe against the inference service.
func (c *Client) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, HealthCheckTimeout)
	defer cancel()

	resp, err := c.health.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return apperr.FromGRPCError(err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return apperr.Newf(apperr.CodeUnavailable, "inference service %s", resp.GetStatus())
	}
	return nil
}

func (c *Client) watchHealth(every time.Duration) {
	defer c.wg.Done()
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			err := c.Check(context.Background())
			was := c.healthy.Swap(err == nil)
			switch {
			case err != nil && was:
				slog.Warn("inference server unhealthy", "error", err)
			case err == nil && !was:
				slog.Info("inference server healthy again")
			}
		}
	}
}
