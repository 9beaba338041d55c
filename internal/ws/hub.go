// internal/ws/hub.go
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/signalsfoundry/uav-coordinator/core"
	"github.com/signalsfoundry/uav-coordinator/internal/coreerr"
	"github.com/signalsfoundry/uav-coordinator/internal/driver"
	"github.com/signalsfoundry/uav-coordinator/internal/logging"
	"github.com/signalsfoundry/uav-coordinator/internal/store"
	"github.com/signalsfoundry/uav-coordinator/model"
)

// ServiceVersion is reported to every client in the connected message.
const ServiceVersion = "1.0"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub bridges the core's broadcaster/registry to WebSocket subscribers,
// pushing fixed-rate drone_update messages and edge-triggered conflict
// alerts, and accepting control and historical-playback requests.
type Hub struct {
	core   *core.Core
	driver driver.Driver
	store  store.Store
	log    logging.Logger

	mu          sync.Mutex
	subscribers map[int]*subscriber
	nextID      int
}

type subscriber struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub constructs a Hub over the given components. store may be nil;
// historical playback requests then return an empty sample set.
func NewHub(c *core.Core, drv driver.Driver, st store.Store, log logging.Logger) *Hub {
	if log == nil {
		log = logging.Noop()
	}
	return &Hub{core: c, driver: drv, store: st, log: log, subscribers: make(map[int]*subscriber)}
}

// ---- outbound message envelopes ----

type connectedMsg struct {
	Type       string    `json:"type"`
	ServerTime time.Time `json:"server_time"`
	Version    string    `json:"version"`
}

type droneUpdateMsg struct {
	Type      string               `json:"type"`
	Timestamp time.Time            `json:"timestamp"`
	Drones    []model.VehicleState `json:"drones"`
	Conflicts []model.Conflict     `json:"conflicts"`
	UpdateID  uint64               `json:"update_id"`
}

type conflictAlertMsg struct {
	Type     string         `json:"type"`
	Conflict model.Conflict `json:"conflict"`
}

type controlResponseMsg struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id"`
	Success   bool   `json:"success"`
	Detail    string `json:"detail,omitempty"`
}

type historicalTrajectoryMsg struct {
	Type    string                    `json:"type"`
	DroneID string                    `json:"drone_id"`
	Samples []model.TrajectorySample `json:"samples"`
}

// ---- inbound request envelopes ----

type inboundEnvelope struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`

	DroneID   string     `json:"drone_id,omitempty"`
	Command   string     `json:"command,omitempty"`
	Lat       float64    `json:"lat,omitempty"`
	Lon       float64    `json:"lon,omitempty"`
	Alt       float64    `json:"alt,omitempty"`
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`
}

// ServeHTTP upgrades the connection and runs the subscriber's read/write
// pumps until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn(r.Context(), "websocket upgrade failed", logging.String("error", err.Error()))
		return
	}

	sub := &subscriber{conn: conn, send: make(chan []byte, 16)}
	id := h.add(sub)
	defer h.remove(id)

	h.sendMsg(sub, connectedMsg{Type: "connected", ServerTime: time.Now(), Version: ServiceVersion})

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	snapshotCh, unsubscribe := h.core.Broadcast.Subscribe()
	defer unsubscribe()

	go h.writePump(ctx, sub)
	go h.snapshotPump(ctx, sub, snapshotCh)

	h.readPump(ctx, sub)
}

func (h *Hub) add(sub *subscriber) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	h.subscribers[id] = sub
	return id
}

func (h *Hub) remove(id int) {
	h.mu.Lock()
	sub, ok := h.subscribers[id]
	delete(h.subscribers, id)
	h.mu.Unlock()
	if ok {
		close(sub.send)
		sub.conn.Close()
	}
}

// Count returns the number of currently connected subscribers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

func (h *Hub) snapshotPump(ctx context.Context, sub *subscriber, snapshots <-chan model.Snapshot) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-snapshots:
			if !ok {
				return
			}
			h.sendMsg(sub, droneUpdateMsg{
				Type:      "drone_update",
				Timestamp: snap.ServerTime,
				Drones:    snap.Vehicles,
				Conflicts: snap.Conflicts,
				UpdateID:  snap.UpdateID,
			})
			for _, c := range snap.Conflicts {
				h.sendMsg(sub, conflictAlertMsg{Type: "conflict_alert", Conflict: c})
			}
		}
	}
}

func (h *Hub) writePump(ctx context.Context, sub *subscriber) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-sub.send:
			if !ok {
				return
			}
			if err := sub.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		}
	}
}

func (h *Hub) readPump(ctx context.Context, sub *subscriber) {
	for {
		_, raw, err := sub.conn.ReadMessage()
		if err != nil {
			return
		}
		var env inboundEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			continue
		}
		h.handleInbound(ctx, sub, env)
	}
}

func (h *Hub) handleInbound(ctx context.Context, sub *subscriber, env inboundEnvelope) {
	switch env.Type {
	case "request_update":
		snap := h.core.Broadcast.Snapshot()
		h.sendMsg(sub, droneUpdateMsg{
			Type:      "drone_update",
			Timestamp: snap.ServerTime,
			Drones:    snap.Vehicles,
			Conflicts: snap.Conflicts,
			UpdateID:  snap.UpdateID,
		})
	case "request_historical_playback":
		h.handleHistoricalPlayback(ctx, sub, env)
	case "control_drone":
		h.handleControlDrone(ctx, sub, env)
	}
}

func (h *Hub) handleHistoricalPlayback(ctx context.Context, sub *subscriber, env inboundEnvelope) {
	var samples []model.TrajectorySample
	if h.store != nil {
		from := time.Now().Add(-1 * time.Hour)
		to := time.Now()
		if env.StartTime != nil {
			from = *env.StartTime
		}
		if env.EndTime != nil {
			to = *env.EndTime
		}
		samples, _ = h.store.RangeTrajectory(ctx, env.DroneID, from, to)
	}
	h.sendMsg(sub, historicalTrajectoryMsg{Type: "historical_trajectory", DroneID: env.DroneID, Samples: samples})
}

func (h *Hub) handleControlDrone(ctx context.Context, sub *subscriber, env inboundEnvelope) {
	if h.driver == nil {
		h.sendMsg(sub, controlResponseMsg{Type: "control_response", RequestID: env.RequestID, Success: false, Detail: "no driver configured"})
		return
	}

	cmd, err := commandFromEnvelope(env)
	if err != nil {
		h.sendMsg(sub, controlResponseMsg{Type: "control_response", RequestID: env.RequestID, Success: false, Detail: err.Error()})
		return
	}

	if err := h.driver.Command(ctx, env.DroneID, cmd); err != nil {
		detail := err.Error()
		if coreerr.ClassifyOf(err) == coreerr.KindVehicleUnavailable {
			detail = "vehicle unavailable: " + env.DroneID
		}
		h.sendMsg(sub, controlResponseMsg{Type: "control_response", RequestID: env.RequestID, Success: false, Detail: detail})
		return
	}
	h.sendMsg(sub, controlResponseMsg{Type: "control_response", RequestID: env.RequestID, Success: true})
}

func commandFromEnvelope(env inboundEnvelope) (model.Command, error) {
	switch model.CommandType(env.Command) {
	case model.CommandArm, model.CommandDisarm, model.CommandLand, model.CommandRTL, model.CommandStop:
		return model.Command{Type: model.CommandType(env.Command)}, nil
	case model.CommandTakeoff:
		return model.Command{Type: model.CommandTakeoff, Altitude: env.Alt}, nil
	case model.CommandGoto:
		return model.Command{Type: model.CommandGoto, Lat: env.Lat, Lon: env.Lon, Alt: env.Alt}, nil
	default:
		return model.Command{}, coreerr.ErrInvalidInput
	}
}

func (h *Hub) sendMsg(sub *subscriber, msg any) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case sub.send <- payload:
	default:
		// Slow subscriber: drop this message rather than block the pump.
	}
}
