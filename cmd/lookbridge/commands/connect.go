package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/teranos/lookbridge/am"
	"github.com/teranos/lookbridge/errors"
	"github.com/teranos/lookbridge/logger"
	"github.com/teranos/lookbridge/metrics"
	"go.uber.org/zap"
)

// shutdownTimeout bounds the graceful stop after the first interrupt
const shutdownTimeout = 5 * time.Second

var (
	connectMetricsAddr string
	connectNoWatch     bool
)

// ConnectCmd runs the bridge until interrupted
var ConnectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Run the bridge until interrupted",
	Long: `Start the headless host and keep both companions connected.

Notifications are printed as they would appear in the viewer. Editing the
active am.toml reloads supervisor and handoff settings without reconnecting.

Examples:
  lookbridge connect                        # Bridge with the configured companions
  lookbridge connect --metrics-addr :9464   # Also serve Prometheus metrics`,
	RunE: runConnect,
}

func init() {
	ConnectCmd.Flags().StringVar(&connectMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (overrides metrics.addr)")
	ConnectCmd.Flags().BoolVar(&connectNoWatch, "no-watch", false, "Do not reload configuration when am.toml changes")
}

func runConnect(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}
	log := logger.ComponentLogger("bridge")
	verbosity, _ := cmd.Flags().GetCount("verbose")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := startRuntime(ctx, cfg, runtimeOptions{}, log)
	if err != nil {
		return err
	}
	printStartupBanner(verbosity, cfg, rt.registry.List())

	addr := cfg.Metrics.Addr
	if connectMetricsAddr != "" {
		addr = connectMetricsAddr
	}
	errChan := make(chan error, 1)
	var metricsServer *http.Server
	if addr != "" {
		metricsServer = serveMetrics(addr, cfg.Metrics.Path, metrics.Get(), errChan, log)
	}

	if !connectNoWatch {
		if watcher := watchConfig(ctx, rt, log); watcher != nil {
			defer watcher.Stop()
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		rt.shutdown(context.Background())
		return errors.Wrap(err, "metrics server failed")
	case <-sigChan:
		pterm.Info.Println("Shutting down gracefully (press Ctrl+C again to force)...")
	}

	shutdownDone := make(chan error, 1)
	go func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if metricsServer != nil {
			metricsServer.Shutdown(shutdownCtx)
		}
		shutdownDone <- rt.shutdown(shutdownCtx)
	}()

	select {
	case err := <-shutdownDone:
		if err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		pterm.Success.Println("Bridge stopped cleanly")
		return nil
	case <-sigChan:
		pterm.Warning.Println("Force shutdown - exiting immediately")
		os.Exit(1)
		return nil
	}
}

// serveMetrics exposes rec on addr. Serve errors land in errChan.
func serveMetrics(addr, path string, rec *metrics.Registry, errChan chan<- error, log *zap.SugaredLogger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(path, rec.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()
	log.Infow("Serving metrics", "addr", addr, "path", path)
	return srv
}

// watchConfig hot-reloads the writable am.toml. Returns nil when there is
// no file to watch.
func watchConfig(ctx context.Context, rt *runtime, log *zap.SugaredLogger) *am.ConfigWatcher {
	path := am.WritablePath()
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		log.Debugw("No config file to watch", "path", path)
		return nil
	}

	watcher, err := am.NewConfigWatcher(path)
	if err != nil {
		log.Warnw("Config reload disabled", "path", path, "error", err)
		return nil
	}
	watcher.OnReload(func(cfg *am.Config) error {
		return rt.reconfigure(ctx, cfg)
	})
	watcher.Start()
	am.SetGlobalWatcher(watcher)
	log.Infow("Watching configuration", "path", path)
	return watcher
}
