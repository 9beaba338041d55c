// core/core.go
package core

import (
	"context"

	"github.com/signalsfoundry/uav-coordinator/internal/logging"
	"github.com/signalsfoundry/uav-coordinator/model"
)

// Store is the subset of the persistence interface startup reconciliation
// needs, beyond the registry's own Persister view.
type Store interface {
	Persister
	ListMissions(ctx context.Context) ([]model.Mission, error)
}

// Core is the explicit composition of the coordination service's owned
// components, assembled once at startup rather than reached for through
// package-level singletons. Handlers hold a *Core rather than reaching into
// globals, which makes per-test instantiation trivial.
type Core struct {
	Trajectory *TrajectoryStore
	Engine     *DeconflictionEngine
	Registry   *MissionRegistry
	Monitor    *LiveMonitor
	Broadcast  *Broadcaster

	store Store
	log   logging.Logger
}

// NewCore wires the coordination core's components together. driver, store,
// alerts, and metrics may be nil test doubles or real adapters; log may be
// nil, in which case logs are dropped.
func NewCore(params DeconflictionParams, driver Driver, store Store, alerts AlertSink, metrics RegistryMetrics, status StatusProvider, log logging.Logger) *Core {
	if log == nil {
		log = logging.Noop()
	}
	trio := NewTrajectoryStore(DefaultRetention, DefaultClockSlack)
	engine := NewDeconflictionEngine(params)
	reg := NewMissionRegistry(engine, trio, driver, store, alerts, metrics, log)
	monitor := NewLiveMonitor(trio, params, alerts)
	broadcast := NewBroadcaster(trio, reg, monitor, status)

	return &Core{
		Trajectory: trio,
		Engine:     engine,
		Registry:   reg,
		Monitor:    monitor,
		Broadcast:  broadcast,
		store:      store,
		log:        log,
	}
}

// SetDeconflictionMetrics wires a deconfliction/scheduler metrics collector
// into the engine, registry, and live monitor. Call before Run. m may be nil.
func (c *Core) SetDeconflictionMetrics(m DeconflictionMetrics) {
	c.Engine.SetMetrics(m)
	c.Registry.SetMetrics(m)
	c.Monitor.SetMetrics(m)
}

// Run starts the registry dispatcher and the broadcaster's fixed-rate tick
// loop; it blocks until ctx is cancelled. The live monitor itself has no
// independent tick loop here because the broadcaster already calls
// Monitor.Tick once per snapshot.
func (c *Core) Run(ctx context.Context) {
	go c.Registry.RunDispatcher(ctx)
	c.Broadcast.Run(ctx)
}

// Shutdown cancels every SCHEDULED mission and stops every RUNNING vehicle,
// per the scheduler's documented shutdown contract; it returns once Cancel
// has run for every active mission, with ctx bounding each persistence write
// and driver STOP call made along the way. The caller is responsible for
// bounding ctx to the shutdown deadline.
func (c *Core) Shutdown(ctx context.Context) {
	c.Registry.ShutdownCancelAll(ctx)
}

// Reconcile replays persisted missions into the registry at startup: a
// process restart must not silently drop SCHEDULED or RUNNING missions that
// were durably admitted before the crash.
func (c *Core) Reconcile(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	missions, err := c.store.ListMissions(ctx)
	if err != nil {
		return err
	}
	restored := 0
	for _, m := range missions {
		if !m.Active() {
			continue
		}
		c.Registry.Restore(m)
		restored++
	}
	c.log.Info(ctx, "startup reconciliation complete", logging.Int("missions_restored", restored))
	return nil
}
