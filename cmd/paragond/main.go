package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/joseph-ayodele/pantry-receipts/internal/app"
	"github.com/joseph-ayodele/pantry-receipts/internal/common"
	"github.com/joseph-ayodele/pantry-receipts/internal/ingest"
	"github.com/joseph-ayodele/pantry-receipts/internal/server"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to a YAML config file (environment variables override it)")
		logLevel   = flag.String("log-level", "info", "debug, info, warn or error")
	)
	flag.Parse()

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := common.LoadConfig(*configPath)
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to start", "error", err)
		os.Exit(1)
	}
	_ = a.VerifyModel(ctx)

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		logger.Error("failed to listen on address", "addr", cfg.Server.GRPCAddr, "error", err)
		a.Close(context.Background())
		os.Exit(1)
	}
	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(server.UnaryLogging(logger)),
		grpc.ChainStreamInterceptor(server.StreamLogging(logger)),
		grpc.MaxRecvMsgSize(int(cfg.Storage.MaxUploadBytes)+1<<20),
	)
	server.Register(grpcServer, server.New(a.Receipts, a.Export, logger))

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(server.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	reflection.Register(grpcServer)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("paragond listening", "addr", lis.Addr().String())
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return err
		}
		return nil
	})
	if cfg.Storage.InboxDir != "" {
		g.Go(func() error { return watchInbox(gctx, a, cfg.Storage.InboxDir, logger) })
	}
	g.Go(func() error {
		<-gctx.Done()
		healthServer.Shutdown()
		grpcServer.GracefulStop()
		return nil
	})

	err = g.Wait()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	a.Close(shutdownCtx)
	if err != nil {
		logger.Error("paragond stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("paragond stopped")
}

// watchInbox imports receipt files dropped into dir and queues them for
// processing straight away. Imported files are removed from the inbox.
func watchInbox(ctx context.Context, a *app.App, dir string, logger *slog.Logger) error {
	paths, errs, err := ingest.StartWatcher(ctx, ingest.WatchConfig{
		Roots:       []string{dir},
		InitialScan: true,
		Debounce:    500 * time.Millisecond,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	logger.Info("watching inbox", "dir", dir)
	for {
		select {
		case p, ok := <-paths:
			if !ok {
				return nil
			}
			rec, err := a.Receipts.UploadFile(ctx, p)
			if err != nil {
				logger.Warn("inbox file skipped", "path", p, "error", err)
				continue
			}
			if err := os.Remove(p); err != nil {
				logger.Warn("inbox file not removed", "path", p, "error", err)
			}
			if err := a.Receipts.Submit(ctx, rec.ID); err != nil {
				logger.Warn("inbox receipt not queued", "receipt_id", rec.ID, "error", err)
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			logger.Warn("inbox watcher error", "error", err)
		}
	}
}
