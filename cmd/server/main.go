package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"agentauth/internal/platform/config"
	"agentauth/internal/platform/httpserver"
	"agentauth/internal/platform/logger"
	"agentauth/internal/platform/metrics"
	httptransport "agentauth/internal/transport/http"
)

const readinessInterval = 5 * time.Second

// main wires dependencies, serves HTTP and gRPC health, and supervises the
// background workers. Business logic lives in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server_exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	backends, err := openInfra(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer backends.close(log)

	svc, err := buildApp(ctx, cfg, backends, reg, log)
	if err != nil {
		return err
	}
	defer svc.closePublisher(log)

	router := httptransport.NewRouter(svc.handler, httptransport.RouterConfig{
		Idempotency: svc.guard,
		Metrics:     metrics.New(reg),
		Gatherer:    reg,
		Logger:      log,
	})
	srv := httpserver.New(cfg.Addr, router)

	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	// Background workers outlive the request context so in-flight requests
	// can still enqueue while the HTTP server drains.
	persistCtx, stopPersist := context.WithCancel(context.WithoutCancel(ctx))
	defer stopPersist()
	auditCtx, stopAudit := context.WithCancel(context.WithoutCancel(ctx))
	defer stopAudit()
	persistDone := make(chan struct{})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(persistDone)
		return svc.persister.Run(persistCtx)
	})
	g.Go(func() error {
		return svc.ledger.Run(auditCtx)
	})
	g.Go(func() error {
		log.InfoContext(gctx, "http_server_starting", "addr", cfg.Addr, "environment", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
		log.InfoContext(gctx, "grpc_health_starting", "addr", cfg.GRPCAddr)
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		watchReadiness(gctx, healthServer, backends.checks(), log)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown_started")
		healthServer.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("http_shutdown_failed", "error", err)
		}
		grpcServer.GracefulStop()

		// Persistence may record dropped-job audit entries while draining,
		// so the audit worker stops last.
		stopPersist()
		<-persistDone
		stopAudit()
		return nil
	})

	return g.Wait()
}

// watchReadiness reflects dependency health on the gRPC health service until
// ctx is cancelled.
func watchReadiness(ctx context.Context, hs *health.Server, checks map[string]httptransport.HealthCheck, log *slog.Logger) {
	update := func() {
		status := healthpb.HealthCheckResponse_SERVING
		for name, check := range checks {
			checkCtx, cancel := context.WithTimeout(ctx, time.Second)
			err := check(checkCtx)
			cancel()
			if err != nil {
				log.WarnContext(ctx, "readiness_check_failed", "check", name, "error", err)
				status = healthpb.HealthCheckResponse_NOT_SERVING
			}
		}
		hs.SetServingStatus("", status)
	}

	update()
	ticker := time.NewTicker(readinessInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			update()
		}
	}
}
