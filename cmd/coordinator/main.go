// cmd/coordinator/main.go
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/signalsfoundry/uav-coordinator/core"
	"github.com/signalsfoundry/uav-coordinator/internal/api"
	"github.com/signalsfoundry/uav-coordinator/internal/config"
	"github.com/signalsfoundry/uav-coordinator/internal/driver/simdrv"
	"github.com/signalsfoundry/uav-coordinator/internal/logging"
	"github.com/signalsfoundry/uav-coordinator/internal/observability"
	"github.com/signalsfoundry/uav-coordinator/internal/store"
	"github.com/signalsfoundry/uav-coordinator/internal/store/memstore"
	"github.com/signalsfoundry/uav-coordinator/internal/store/sqlstore"
	"github.com/signalsfoundry/uav-coordinator/internal/ws"
)

func main() {
	os.Exit(run())
}

// run builds and serves the coordinator, returning the process exit code:
// 0 clean shutdown, 1 startup failure, 2 configuration invalid.
func run() int {
	log := logging.NewFromEnv()
	ctx := context.Background()

	// Config layering follows config.LoadFile's documented order: a file
	// path named by COORDINATOR_CONFIG_PATH loads first (lowest
	// precedence), then COORDINATOR_* environment overrides, then CLI
	// flags (highest precedence), then validation.
	cfg := config.Default()
	if path := os.Getenv("COORDINATOR_CONFIG_PATH"); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			log.Error(ctx, "failed to load config file", logging.String("path", path), logging.String("error", err.Error()))
			return 2
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		log.Error(ctx, "failed to apply environment overrides", logging.String("error", err.Error()))
		return 2
	}
	cfg.RegisterFlags(nil)
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		log.Error(ctx, "invalid configuration", logging.String("error", err.Error()))
		return 2
	}

	collector, err := observability.NewAPICollector(nil)
	if err != nil {
		log.Error(ctx, "failed to initialise metrics collector", logging.String("error", err.Error()))
		return 1
	}

	schedMetrics, err := observability.NewDeconflictionCollector(nil)
	if err != nil {
		log.Error(ctx, "failed to initialise deconfliction metrics collector", logging.String("error", err.Error()))
		return 1
	}

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.String("error", err.Error()))
		return 1
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	st, closeStore, err := openStore(cfg, log)
	if err != nil {
		log.Error(ctx, "failed to open persistence store", logging.String("error", err.Error()))
		return 1
	}
	defer closeStore()

	fleetIDs := cfg.FleetIDs()
	drv := simdrv.New(fleetIDs...)

	alerts := core.NewPersistingAlertSink(st, log)
	c := core.NewCore(cfg.DeconflictionParams(), drv, st, alerts, collector, drv, log)
	c.SetDeconflictionMetrics(schedMetrics)
	c.Monitor.SetIntervals(cfg.BroadcastInterval(), cfg.ReminderInterval(), cfg.ClearGap())
	c.Broadcast.SetInterval(cfg.BroadcastInterval())
	c.Trajectory.SetRetention(cfg.TrajectoryRetention())
	c.Registry.SetCommandTimeout(cfg.DriverCommandTimeout())

	if err := c.Reconcile(ctx); err != nil {
		log.Error(ctx, "startup reconciliation failed", logging.String("error", err.Error()))
		return 1
	}

	log.Info(ctx, "fleet driver seeded", logging.Any("vehicle_ids", fleetIDs))

	runCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	go drv.Run(runCtx)
	go c.Run(runCtx)
	go c.IngestTelemetry(runCtx, drv, st)

	apiServer := api.NewServer(c, drv, st, collector, log, cfg.DriverCommandTimeout())
	hub := ws.NewHub(c, drv, st, log)

	go reportFleetGauges(runCtx, collector, c, drv, hub)
	go pruneTrajectories(runCtx, c)

	mux := http.NewServeMux()
	mux.Handle("/", apiServer.Handler())
	mux.HandleFunc("/ws", hub.ServeHTTP)

	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: mux}
	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: collector.Handler()}

	go func() {
		log.Info(ctx, "serving coordinator API", logging.String("addr", cfg.HTTPAddr))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(ctx, "HTTP server exited", logging.String("error", err.Error()))
		}
	}()
	go func() {
		log.Info(ctx, "serving Prometheus metrics", logging.String("addr", cfg.MetricsAddr))
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(ctx, "metrics server exited", logging.String("error", err.Error()))
		}
	}()

	<-runCtx.Done()
	log.Info(ctx, "shutting down coordinator")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownDeadline())
	defer shutdownCancel()
	c.Shutdown(shutdownCtx)
	_ = httpSrv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)

	return 0
}

// openStore constructs the configured persistence backend and returns a
// close function safe to defer unconditionally.
func openStore(cfg config.Config, log logging.Logger) (store.Store, func(), error) {
	switch cfg.StoreDriver {
	case "sqlite":
		st, err := sqlstore.Open(cfg.SQLitePath)
		if err != nil {
			return nil, func() {}, err
		}
		return st, func() {
			if err := st.Close(); err != nil {
				log.Warn(context.Background(), "sqlite store close failed", logging.String("error", err.Error()))
			}
		}, nil
	default:
		st := memstore.New()
		return st, func() {}, nil
	}
}

// reportFleetGauges periodically republishes fleet-size gauges, since the
// registry, driver, and WS hub track their counts internally but expose no
// push hook of their own.
func reportFleetGauges(ctx context.Context, collector *observability.APICollector, c *core.Core, drv *simdrv.Driver, hub *ws.Hub) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			collector.SetFleetCounts(len(drv.StatusAll()), len(c.Registry.ListActive()), hub.Count())
		}
	}
}

// pruneTrajectories periodically discards trajectory samples older than the
// store's configured retention window. The store itself has no ticking of
// its own; without a caller doing this, samples accumulate in memory
// forever regardless of the configured retention.
func pruneTrajectories(ctx context.Context, c *core.Core) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Trajectory.Prune(time.Now())
		}
	}
}
