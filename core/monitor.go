// core/monitor.go
package core

import (
	"context"
	"time"

	"github.com/signalsfoundry/uav-coordinator/model"
)

// DefaultMonitorInterval is the live conflict monitor's tick period.
const DefaultMonitorInterval = time.Second

// DefaultReminderInterval controls how often an ongoing LIVE conflict is
// re-raised to a subscriber that missed the initial alert.
const DefaultReminderInterval = 5 * time.Second

// DefaultClearGap is how long two vehicles must stay outside the safety
// buffer before a previously-raised LIVE conflict is considered cleared.
const DefaultClearGap = 3 * time.Second

// pairKey identifies an unordered vehicle pair.
type pairKey struct{ a, b string }

func makePairKey(a, b string) pairKey {
	if a > b {
		a, b = b, a
	}
	return pairKey{a, b}
}

// alertState tracks one pair's de-duplication bookkeeping across ticks.
type alertState struct {
	firstRaised  time.Time
	lastReminded time.Time
	lastSeenBad  time.Time // last tick the pair was within the safety buffer
	active       bool
}

// LiveMonitor runs a fixed-rate pairwise proximity scan over the
// TrajectoryStore's latest samples, synthesizing LIVE conflicts and
// de-duplicating repeat alerts.
type LiveMonitor struct {
	trio     *TrajectoryStore
	params   DeconflictionParams
	interval time.Duration
	reminder time.Duration
	clearGap time.Duration

	sink    AlertSink
	metrics DeconflictionMetrics

	state    map[pairKey]*alertState
	lastTick time.Time
}

// NewLiveMonitor constructs a monitor over trio using the safety buffer and
// staleness bound from params; sink receives edge-triggered and reminder
// alerts.
func NewLiveMonitor(trio *TrajectoryStore, params DeconflictionParams, sink AlertSink) *LiveMonitor {
	return &LiveMonitor{
		trio:     trio,
		params:   params,
		interval: DefaultMonitorInterval,
		reminder: DefaultReminderInterval,
		clearGap: DefaultClearGap,
		sink:     sink,
		state:    make(map[pairKey]*alertState),
	}
}

// SetMetrics wires a deconfliction-scheduler metrics collector into the
// monitor's tick-skew reporting. m may be nil.
func (m *LiveMonitor) SetMetrics(metrics DeconflictionMetrics) {
	m.metrics = metrics
}

// SetIntervals overrides the monitor's tick/reminder/clear cadence. Zero
// values leave the corresponding field unchanged; call before Run.
func (m *LiveMonitor) SetIntervals(interval, reminder, clearGap time.Duration) {
	if interval > 0 {
		m.interval = interval
	}
	if reminder > 0 {
		m.reminder = reminder
	}
	if clearGap > 0 {
		m.clearGap = clearGap
	}
}

// Run ticks the monitor at its interval until ctx is cancelled. Unused when
// the broadcaster drives Tick directly (see Core.Run's doc comment); kept for
// standalone use and tests that exercise the monitor in isolation.
func (m *LiveMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			m.Tick(t)
		}
	}
}

// Tick runs one pairwise scan at time now and returns the LIVE conflicts it
// raised: pairs newly inside the buffer and pairs whose reminder interval
// has elapsed. A pair still in conflict between reminders is not returned.
// It is exported directly so tests
// can drive the monitor deterministically without a real clock.
func (m *LiveMonitor) Tick(now time.Time) []model.Conflict {
	if m.metrics != nil && !m.lastTick.IsZero() {
		m.metrics.SetTickSkew(now.Sub(m.lastTick.Add(m.interval)))
	}
	m.lastTick = now

	samples := m.trio.LatestAll()
	ids := make([]string, 0, len(samples))
	for id := range samples {
		ids = append(ids, id)
	}

	seenThisTick := make(map[pairKey]bool, len(ids))
	var out []model.Conflict

	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			a, b := samples[ids[i]], samples[ids[j]]
			if now.Sub(a.Time) > m.params.StalenessBound || now.Sub(b.Time) > m.params.StalenessBound {
				continue
			}
			d := Distance3D(a.Position, b.Position)
			key := makePairKey(ids[i], ids[j])

			if d >= m.params.SafetyBufferM {
				continue
			}
			seenThisTick[key] = true

			st, existed := m.state[key]
			if !existed {
				st = &alertState{}
				m.state[key] = st
			}

			severity := model.SeverityWarning
			if d <= m.params.SafetyBufferM/2 {
				severity = model.SeverityCritical
			}
			conf := model.Conflict{
				Kind:        model.ConflictLive,
				VehicleA:    ids[i],
				VehicleB:    ids[j],
				Start:       now,
				End:         now,
				MinDistance: d,
				Severity:    severity,
			}

			raise := false
			if !st.active {
				raise = true
				st.firstRaised = now
				st.lastReminded = now
				st.active = true
			} else if now.Sub(st.lastReminded) >= m.reminder {
				raise = true
				st.lastReminded = now
			}
			st.lastSeenBad = now

			if raise {
				out = append(out, conf)
				if m.sink != nil {
					m.sink.PostAlert(conf)
				}
			}
		}
	}

	// Clear pairs that have been outside the buffer for clearGap.
	for key, st := range m.state {
		if seenThisTick[key] {
			continue
		}
		if st.active && now.Sub(st.lastSeenBad) >= m.clearGap {
			st.active = false
		}
	}

	return out
}
