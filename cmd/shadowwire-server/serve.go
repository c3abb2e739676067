// SPDX-License-Identifier: LGPL-3.0-or-later

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mk-samoilov/shadowwire-server/config"
	"github.com/mk-samoilov/shadowwire-server/crypto/dhpool"
	"github.com/mk-samoilov/shadowwire-server/dispatch"
	"github.com/mk-samoilov/shadowwire-server/handlers"
	"github.com/mk-samoilov/shadowwire-server/health"
	"github.com/mk-samoilov/shadowwire-server/internal/logger"
	"github.com/mk-samoilov/shadowwire-server/internal/metrics"
	"github.com/mk-samoilov/shadowwire-server/internal/version"
	"github.com/mk-samoilov/shadowwire-server/storage"
	"github.com/mk-samoilov/shadowwire-server/transport"
)

// versionFileName and protocolVersionFileName are looked up relative
// to the config's storage dir, mirroring the original's DATA_DIR
// layout of version/crypt_tcp_protocol_version next to the data the
// service owns.
const (
	versionFileName         = "version"
	protocolVersionFileName = "crypt_tcp_protocol_version"
	storeName               = "shadowwire"
	metricsAddr             = ":9477"
)

func runServe(cmd *cobra.Command, args []string) error {
	if genConfFile {
		return runGenConfFile()
	}

	cfg, err := config.Load(config.LoaderOptions{Path: configPath})
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.NewLogger(os.Stdout, logLevelFromConfig(cfg.Logging.Level))
	log.Info("config loaded", logger.String("path", configPath))

	info, err := version.Load(
		filepath.Join(cfg.Paths.StorageDir, versionFileName),
		filepath.Join(cfg.Paths.StorageDir, protocolVersionFileName),
	)
	if err != nil {
		log.Warn("version files unavailable, continuing without them", logger.Error(err))
		info = version.Info{Version: "dev", ProtocolVersion: 0}
	}
	log.Info("shadowwire-server starting",
		logger.String("version", info.Version),
		logger.Int("protocol_version", info.ProtocolVersion))

	store, err := storage.Open(cfg.Paths.StorageDir, storeName)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	pool := dhpool.New(dhpool.DefaultKeySize, dhpool.DefaultPoolSize)

	dispatcher := dispatch.New()
	dispatcher.RegisterAll(handlers.Accounts())
	dispatcher.RegisterAll(handlers.Chats())
	dispatcher.RegisterAll(handlers.Messages())
	dispatcher.RegisterAll(handlers.Tokens())

	acceptor := transport.New(transport.Config{
		Address:        cfg.ClientTCPEndpoint.Address(),
		MaxConnections: cfg.ClientTCPEndpoint.MaxAvailableConnections,
	}, pool, dispatcher, store, log)

	checker := newHealthChecker(log, store, pool, acceptor, cfg.ClientTCPEndpoint.MaxAvailableConnections)

	go serveMetrics(log, checker)

	if err := acceptor.Start(); err != nil {
		return fmt.Errorf("start acceptor: %w", err)
	}
	log.Info("listening", logger.String("addr", acceptor.Addr().String()))

	waitForShutdown(log)

	return acceptor.Stop()
}

// newHealthChecker registers the standard set of liveness checks: the
// sealed store is readable, the DH parameter pool has initialized,
// and the acceptor is below its configured connection ceiling.
func newHealthChecker(log logger.Logger, store *storage.Store, pool *dhpool.Pool, acceptor *transport.Acceptor, maxConnections int) *health.HealthChecker {
	checker := health.NewHealthChecker(5 * time.Second)
	checker.SetLogger(log)

	checker.RegisterCheck("store", health.StoreHealthCheck(func() error {
		_, _, err := store.Load()
		return err
	}))
	checker.RegisterCheck("dhpool", health.DHPoolHealthCheck(func() error {
		_, err := pool.Parameters()
		return err
	}))
	checker.RegisterCheck("acceptor", health.AcceptorHealthCheck(acceptor.ConnectionCount, maxConnections))

	return checker
}

// serveMetrics runs the Prometheus and health-check HTTP endpoints in
// the background; a failure here is logged but never brings down the
// TCP server.
func serveMetrics(log logger.Logger, checker *health.HealthChecker) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		sys := checker.GetSystemHealth(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if sys.Status != health.StatusHealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(sys)
	})
	if err := http.ListenAndServe(metricsAddr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("metrics server exited", logger.Error(err))
	}
}

// waitForShutdown blocks until SIGINT or SIGTERM, mirroring the
// original's __setup_signal_handlers__.
func waitForShutdown(log logger.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("received signal, shutting down gracefully", logger.String("signal", sig.String()))
}

func logLevelFromConfig(level string) logger.Level {
	switch level {
	case "DEBUG":
		return logger.DebugLevel
	case "INFO":
		return logger.InfoLevel
	case "WARN":
		return logger.WarnLevel
	case "ERROR", "FATAL":
		return logger.ErrorLevel
	default:
		return logger.InfoLevel
	}
}

func runGenConfFile() error {
	if !genConfForce {
		if _, err := os.Stat(configPath); err == nil {
			return fmt.Errorf("%s already exists, pass --force to overwrite", configPath)
		}
	}
	if err := config.WriteDefault(configPath); err != nil {
		return fmt.Errorf("write default config: %w", err)
	}
	fmt.Printf("wrote default config to %s\n", configPath)
	return nil
}
