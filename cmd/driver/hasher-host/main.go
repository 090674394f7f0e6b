// Drillx: batched two-stage proof-of-work hashing
// Copyright (C) 2026  Guillermo Perry
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"drillx/internal/api"
	"drillx/internal/config"
	"drillx/internal/discovery"
	"drillx/internal/logging"
	"drillx/pkg/hashing/factory"
)

var (
	configPath = flag.String("config", "", "config file (default: drillx.yaml in the project root)")
	addr       = flag.String("addr", "", "HTTP listen address (overrides server.http_address)")
	remoteAddr = flag.String("remote", "", "hasher-server gRPC address (overrides engine.remote_address)")
	mode       = flag.String("mode", "api", "operation mode: api, info")

	// Discovery flags
	discoverNetwork  = flag.Bool("discover", false, "scan the network for a hasher-server when no remote address is configured")
	discoverySubnet  = flag.String("subnet", "", "network subnet to scan (CIDR, empty = auto-detect)")
	discoveryPort    = flag.Int("discovery-port", 8888, "port to scan for hasher-server")
	discoveryTimeout = flag.Duration("discovery-timeout", 2*time.Second, "timeout for each server probe")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	if *addr != "" {
		cfg.Server.HTTPAddress = *addr
	}
	if *remoteAddr != "" {
		cfg.Engine.RemoteAddress = *remoteAddr
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

	if *discoverNetwork && cfg.Engine.RemoteAddress == "" {
		if address := discoverServer(logger); address != "" {
			cfg.Engine.RemoteAddress = address
		}
	}

	backends := factory.NewBackendFactory(&cfg.Engine,
		factory.WithLaunchConfig(cfg.Launch),
		factory.WithLogger(logger),
	)
	defer func() {
		if err := backends.ShutdownAll(); err != nil {
			logger.WithError(err).Warn("Backend shutdown failed")
		}
	}()

	switch *mode {
	case "info":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(backends.GetDetectionReport()); err != nil {
			logger.WithError(err).Error("Failed to write report")
		}
		return
	case "api":
	default:
		logger.Fatalf("Unknown mode %q", *mode)
	}

	backend, err := backends.Best()
	if err != nil {
		logger.Fatalf("No backend available: %v", err)
	}
	logger.WithField("backend", backend.Name()).Info("Backend selected")

	runAPIServer(cfg.Server.HTTPAddress, api.NewServer(backend, logger), logger)
}

// discoverServer returns the address of the best hasher-server on the
// network, or "" when none responds
func discoverServer(logger logrus.FieldLogger) string {
	dc := discovery.NewDiscoveryConfig()
	dc.Subnet = *discoverySubnet
	dc.Port = *discoveryPort
	dc.Timeout = *discoveryTimeout

	results, err := discovery.DiscoverServers(context.Background(), dc)
	if err != nil {
		logger.WithError(err).Warn("Network discovery failed")
		return ""
	}
	best := discovery.FindBestServer(results)
	if best == nil {
		logger.WithField("probed", len(results)).Info("No hasher-server found on network")
		return ""
	}
	logger.WithFields(logrus.Fields{
		"address":    best.Address,
		"engine":     best.Engine,
		"latency_ms": best.LatencyMs,
	}).Info("Discovered hasher-server")
	return best.Address
}

// runAPIServer serves the REST gateway until SIGINT or SIGTERM
func runAPIServer(listenAddr string, server *api.Server, logger logrus.FieldLogger) {
	gin.SetMode(gin.ReleaseMode)

	// Set up graceful shutdown
	srv := &http.Server{
		Addr:    listenAddr,
		Handler: server.Router(),
	}

	go func() {
		logger.WithField("addr", listenAddr).Info("API server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("API server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server shutdown error")
	}
}
