// cmd/driver/hasher-server/main.go
// Hasher Server - exposes the local batch pipeline as a gRPC service
package main

import (
	"flag"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/reflection"

	"drillx/internal/config"
	"drillx/internal/driver/device"
	"drillx/internal/logging"
	pb "drillx/internal/proto/hasher/v1"
	"drillx/pkg/hashing/factory"
)

var (
	configPath = flag.String("config", "", "config file (default: drillx.yaml in the project root)")
	addr       = flag.String("addr", "", "gRPC listen address (overrides server.grpc_address)")
	enableTLS  = flag.Bool("tls", false, "enable TLS")
	certFile   = flag.String("cert", "", "TLS certificate file")
	keyFile    = flag.String("key", "", "TLS key file")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	if *addr != "" {
		cfg.Server.GRPCAddress = *addr
	}

	logger, err := logging.NewLogger(&cfg.Logging)
	if err != nil {
		logrus.Fatalf("Failed to create logger: %v", err)
	}

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.SentryDSN}); err != nil {
			logger.WithError(err).Warn("Sentry disabled")
		}
		defer sentry.Flush(2 * time.Second)
	}

	// Always compute in-process
	engineCfg := cfg.Engine
	engineCfg.PreferredOrder = []string{factory.BackendLocal}
	engineCfg.RemoteAddress = ""
	backends := factory.NewBackendFactory(&engineCfg,
		factory.WithLaunchConfig(cfg.Launch),
		factory.WithLogger(logger),
	)
	defer backends.ShutdownAll()

	backend, err := backends.Best()
	if err != nil {
		logger.Fatalf("Failed to create backend: %v", err)
	}
	caps := backend.Capabilities()
	logger.WithFields(logrus.Fields{
		"engine":    caps.Name,
		"heap_size": caps.HeapSize,
		"max_batch": caps.MaxBatchSize,
	}).Info("Backend ready")

	var opts []grpc.ServerOption
	if *enableTLS {
		if *certFile == "" || *keyFile == "" {
			logger.Fatal("TLS enabled but cert/key files not provided")
		}
		creds, err := credentials.NewServerTLSFromFile(*certFile, *keyFile)
		if err != nil {
			logger.Fatalf("Failed to load TLS credentials: %v", err)
		}
		opts = append(opts, grpc.Creds(creds))
	}

	grpcServer := grpc.NewServer(opts...)
	hasherServer := device.NewHasherServer(backend, logger)

	// Register service
	pb.RegisterHasherServer(grpcServer, hasherServer)

	// Enable reflection for debugging
	reflection.Register(grpcServer)

	listener, err := net.Listen("tcp", cfg.Server.GRPCAddress)
	if err != nil {
		logger.Fatalf("Failed to listen: %v", err)
	}

	logger.WithField("addr", listener.Addr().String()).Info("Hasher gRPC server starting")

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		stats := hasherServer.Stats()
		logger.WithFields(logrus.Fields{
			"requests": stats.TotalRequests,
			"lanes":    stats.TotalLanes,
			"errors":   stats.TotalErrors,
		}).Info("Shutting down server...")
		grpcServer.GracefulStop()
	}()

	// Start serving
	if err := grpcServer.Serve(listener); err != nil {
		logger.Fatalf("Failed to serve: %v", err)
	}
}
