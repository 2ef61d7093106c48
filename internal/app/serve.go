package app

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	apperr "github.com/GriffinCanCode/olfactory-vision/internal/errors"
	"github.com/GriffinCanCode/olfactory-vision/internal/grpcclient"
	"github.com/GriffinCanCode/olfactory-vision/internal/server"
	"github.com/GriffinCanCode/olfactory-vision/internal/trace"
)

// Serve runs the HTTP API, and the gRPC inference facade when configured, until ctx is done.
func (a *App) Serve(ctx context.Context) error {
	cfg := a.Config
	deps := server.Deps{
		Pipeline: a.Manager,
		Events:   a.Events,
		Metrics:  a.Metrics.Handler(),
		Health:   a.Health,
	}
	if a.History != nil {
		deps.History = a.History
	}
	srv, err := server.New(deps, server.Options{FPS: cfg.FPS, OutputDir: cfg.OutputDir})
	if err != nil {
		return err
	}
	defer srv.Close()

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 2)
	go func() {
		slog.Info("vos server starting", "http", cfg.HTTPAddr, "backend", cfg.Backend)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- apperr.Wrap(err, apperr.CodeUnavailable, "http server")
		}
	}()

	var gs *grpc.Server
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			_ = httpServer.Close()
			return apperr.Wrap(err, apperr.CodeUnavailable, "listen grpc").WithMetadata("addr", cfg.GRPCAddr)
		}
		gs = grpc.NewServer(grpc.ChainUnaryInterceptor(trace.UnaryServerInterceptor()))
		grpcclient.Register(gs, a.Backend)
		hs := health.NewServer()
		hs.SetServingStatus(grpcclient.ServiceName, healthpb.HealthCheckResponse_SERVING)
		healthpb.RegisterHealthServer(gs, hs)
		go func() {
			slog.Info("inference facade starting", "grpc", cfg.GRPCAddr)
			if err := gs.Serve(lis); err != nil {
				errCh <- apperr.Wrap(err, apperr.CodeUnavailable, "grpc server")
			}
		}()
	}

	select {
	case <-ctx.Done():
		err = nil
	case err = <-errCh:
		slog.Error("server error", "error", err)
	}

	slog.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), server.ShutdownTimeout)
	defer cancel()
	if serr := httpServer.Shutdown(shutdownCtx); serr != nil {
		slog.Error("http shutdown error", "error", serr)
	}
	if gs != nil {
		gs.GracefulStop()
	}
	return err
}
