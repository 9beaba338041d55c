// internal/api/server.go
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/signalsfoundry/uav-coordinator/core"
	"github.com/signalsfoundry/uav-coordinator/internal/coreerr"
	"github.com/signalsfoundry/uav-coordinator/internal/driver"
	"github.com/signalsfoundry/uav-coordinator/internal/logging"
	"github.com/signalsfoundry/uav-coordinator/internal/observability"
	"github.com/signalsfoundry/uav-coordinator/internal/store"
	"github.com/signalsfoundry/uav-coordinator/model"
)

// Server serves the public JSON HTTP surface: drone/mission listing,
// scheduling, control, emergency stop, and history/projection queries. All
// timestamps in request and response bodies are RFC3339 (ISO-8601 UTC).
type Server struct {
	core           *core.Core
	driver         driver.Driver
	store          store.Store
	metric         *observability.APICollector
	log            logging.Logger
	commandTimeout time.Duration
}

// NewServer constructs a Server over the given components. store and metric
// may be nil; history/statistics endpoints degrade to empty results without
// a store, and metrics are silently skipped without a collector. A zero
// commandTimeout leaves driver calls unbounded by the server itself.
func NewServer(c *core.Core, drv driver.Driver, st store.Store, metric *observability.APICollector, log logging.Logger, commandTimeout time.Duration) *Server {
	if log == nil {
		log = logging.Noop()
	}
	return &Server{core: c, driver: drv, store: st, metric: metric, log: log, commandTimeout: commandTimeout}
}

// Handler builds the route table described in the public HTTP surface
// contract, using Go's method-and-path ServeMux patterns.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/drones", s.instrument("/api/drones", s.handleDrones))
	mux.HandleFunc("GET /api/missions", s.instrument("/api/missions", s.handleMissions))
	mux.HandleFunc("POST /api/schedule", s.instrument("/api/schedule", s.handleSchedule))
	mux.HandleFunc("POST /api/missions/{mission_id}/cancel", s.instrument("/api/missions/cancel", s.handleCancelMission))
	mux.HandleFunc("POST /api/control/{drone_id}", s.instrument("/api/control", s.handleControl))
	mux.HandleFunc("POST /api/emergency", s.instrument("/api/emergency", s.handleEmergency))
	mux.HandleFunc("GET /api/trajectory/{drone_id}", s.instrument("/api/trajectory", s.handleTrajectory))
	mux.HandleFunc("GET /api/history/trajectory/{drone_id}", s.instrument("/api/history/trajectory", s.handleHistoryTrajectory))
	mux.HandleFunc("GET /api/history/statistics", s.instrument("/api/history/statistics", s.handleHistoryStatistics))
	mux.HandleFunc("GET /api/history/conflicts", s.instrument("/api/history/conflicts", s.handleHistoryConflicts))
	mux.HandleFunc("GET /api/future/trajectories", s.instrument("/api/future/trajectories", s.handleFutureTrajectories))
	return mux
}

func (s *Server) instrument(route string, h http.HandlerFunc) http.HandlerFunc {
	traced := tracingMiddleware(route, h)
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		traced(rw, r)
		if s.metric != nil {
			s.metric.ObserveHTTP(route, strconv.Itoa(rw.status), time.Since(start).Seconds())
		}
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// ---- response envelopes ----

type dronesResponse struct {
	Success bool                 `json:"success"`
	Drones  []model.VehicleState `json:"drones"`
}

type missionsResponse struct {
	Success  bool            `json:"success"`
	Missions []model.Mission `json:"missions"`
}

type scheduleRequest struct {
	DroneID   string          `json:"drone_id"`
	Waypoints []waypointInput `json:"waypoints"`
	StartTime *time.Time      `json:"start_time,omitempty"`
	EndTime   *time.Time      `json:"end_time,omitempty"`
}

type waypointInput struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
	Alt float64 `json:"alt"`
}

type scheduleResponse struct {
	Success   bool             `json:"success"`
	MissionID string           `json:"mission_id,omitempty"`
	Conflicts []model.Conflict `json:"conflicts,omitempty"`
	Error     string           `json:"error,omitempty"`
}

type cancelResponse struct {
	Success bool          `json:"success"`
	Mission model.Mission `json:"mission"`
	Error   string        `json:"error,omitempty"`
}

type controlRequest struct {
	Command string  `json:"command"`
	Lat     float64 `json:"lat,omitempty"`
	Lon     float64 `json:"lon,omitempty"`
	Alt     float64 `json:"alt,omitempty"`
}

type controlResponse struct {
	Success bool   `json:"success"`
	Ack     string `json:"ack,omitempty"`
	Error   string `json:"error,omitempty"`
}

type emergencyResponse struct {
	Success bool     `json:"success"`
	Errors  []string `json:"errors,omitempty"`
}

type trajectoryResponse struct {
	Success bool                      `json:"success"`
	Samples []model.TrajectorySample `json:"samples"`
}

type statisticsResponse struct {
	Success           bool    `json:"success"`
	WindowSeconds     float64 `json:"window_seconds"`
	TotalMissions     int     `json:"total_missions"`
	ActiveMissions    int     `json:"active_missions"`
	CompletedMissions int     `json:"completed_missions"`
	FailedMissions    int     `json:"failed_missions"`
	ConflictsInWindow int     `json:"conflicts_in_window"`
}

type conflictsResponse struct {
	Success   bool             `json:"success"`
	Conflicts []model.Conflict `json:"conflicts"`
}

type futureTrajectoriesResponse struct {
	Success      bool                  `json:"success"`
	Trajectories []projectedTrajectory `json:"trajectories"`
}

type projectedTrajectory struct {
	DroneID   string                    `json:"drone_id"`
	MissionID string                    `json:"mission_id"`
	Samples   []model.TrajectorySample `json:"samples"`
}

// ---- handlers ----

func (s *Server) handleDrones(w http.ResponseWriter, r *http.Request) {
	var drones []model.VehicleState
	if s.driver != nil {
		for _, v := range s.driver.StatusAll() {
			drones = append(drones, v)
		}
	}
	writeJSON(w, http.StatusOK, dronesResponse{Success: true, Drones: drones})
}

func (s *Server) handleMissions(w http.ResponseWriter, r *http.Request) {
	missions := s.core.Registry.List()
	writeJSON(w, http.StatusOK, missionsResponse{Success: true, Missions: missions})
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, scheduleResponse{Success: false, Error: "malformed JSON body"})
		return
	}
	if req.DroneID == "" || len(req.Waypoints) == 0 {
		writeJSON(w, http.StatusBadRequest, scheduleResponse{Success: false, Error: "drone_id and waypoints are required"})
		return
	}

	start := time.Now()
	if req.StartTime != nil {
		start = *req.StartTime
	}
	end := start.Add(60 * time.Second)
	if req.EndTime != nil {
		end = *req.EndTime
	}

	plan := model.Plan{Waypoints: make([]model.Waypoint, len(req.Waypoints))}
	for i, wp := range req.Waypoints {
		plan.Waypoints[i] = model.Waypoint{Lat: wp.Lat, Lon: wp.Lon, Alt: wp.Alt}
	}

	candidate := core.Candidate{VehicleID: req.DroneID, Plan: plan, StartTime: start, EndTime: end}
	id, conflicts, err := s.core.Registry.Schedule(r.Context(), candidate)
	if err != nil {
		switch coreerr.ClassifyOf(err) {
		case coreerr.KindConflictDetected:
			writeJSON(w, http.StatusConflict, scheduleResponse{Success: false, Conflicts: conflicts})
		case coreerr.KindInvalidInput:
			writeJSON(w, http.StatusBadRequest, scheduleResponse{Success: false, Error: err.Error()})
		default:
			writeJSON(w, http.StatusInternalServerError, scheduleResponse{Success: false, Error: err.Error()})
		}
		return
	}
	writeJSON(w, http.StatusOK, scheduleResponse{Success: true, MissionID: id})
}

// handleCancelMission transitions a mission to CANCELLED if non-terminal; a
// no-op on a terminal mission, per the registry's Cancel contract.
func (s *Server) handleCancelMission(w http.ResponseWriter, r *http.Request) {
	missionID := r.PathValue("mission_id")
	m, err := s.core.Registry.Cancel(r.Context(), missionID)
	if err != nil {
		switch coreerr.ClassifyOf(err) {
		case coreerr.KindNotFound:
			writeJSON(w, http.StatusNotFound, cancelResponse{Success: false, Error: err.Error()})
		default:
			writeJSON(w, http.StatusInternalServerError, cancelResponse{Success: false, Error: err.Error()})
		}
		return
	}
	writeJSON(w, http.StatusOK, cancelResponse{Success: true, Mission: m})
}

func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	droneID := r.PathValue("drone_id")
	var req controlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, controlResponse{Success: false, Error: "malformed JSON body"})
		return
	}

	cmd, err := parseCommand(req)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, controlResponse{Success: false, Error: err.Error()})
		return
	}

	if s.driver == nil {
		writeJSON(w, http.StatusServiceUnavailable, controlResponse{Success: false, Error: "no driver configured"})
		return
	}
	ctx, cancel := ctxWithTimeout(r.Context(), s.commandTimeout)
	defer cancel()
	if err := s.driver.Command(ctx, droneID, cmd); err != nil {
		status := http.StatusInternalServerError
		if coreerr.ClassifyOf(err) == coreerr.KindVehicleUnavailable {
			status = http.StatusNotFound
		}
		writeJSON(w, status, controlResponse{Success: false, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, controlResponse{Success: true, Ack: string(cmd.Type)})
}

func parseCommand(req controlRequest) (model.Command, error) {
	switch model.CommandType(req.Command) {
	case model.CommandArm, model.CommandDisarm, model.CommandLand, model.CommandRTL, model.CommandStop:
		return model.Command{Type: model.CommandType(req.Command)}, nil
	case model.CommandTakeoff:
		return model.Command{Type: model.CommandTakeoff, Altitude: req.Alt}, nil
	case model.CommandGoto:
		return model.Command{Type: model.CommandGoto, Lat: req.Lat, Lon: req.Lon, Alt: req.Alt}, nil
	default:
		return model.Command{}, errors.New("unknown command: " + req.Command)
	}
}

func (s *Server) handleEmergency(w http.ResponseWriter, r *http.Request) {
	if s.driver == nil {
		writeJSON(w, http.StatusServiceUnavailable, emergencyResponse{Success: false})
		return
	}
	ctx, cancel := ctxWithTimeout(r.Context(), s.commandTimeout)
	defer cancel()
	errs := s.driver.EmergencyStopAll(ctx)
	var msgs []string
	for _, e := range errs {
		if e != nil {
			msgs = append(msgs, e.Error())
		}
	}
	writeJSON(w, http.StatusOK, emergencyResponse{Success: len(msgs) == 0, Errors: msgs})
}

func (s *Server) handleTrajectory(w http.ResponseWriter, r *http.Request) {
	droneID := r.PathValue("drone_id")
	var samples []model.TrajectorySample
	if s.core != nil {
		samples = s.core.Trajectory.Slice(droneID, time.Time{}, time.Now())
	}
	writeJSON(w, http.StatusOK, trajectoryResponse{Success: true, Samples: samples})
}

func (s *Server) handleHistoryTrajectory(w http.ResponseWriter, r *http.Request) {
	droneID := r.PathValue("drone_id")
	from, to, err := parseTimeRange(r, 1*time.Hour)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, trajectoryResponse{Success: false})
		return
	}
	if s.store == nil {
		writeJSON(w, http.StatusOK, trajectoryResponse{Success: true})
		return
	}
	samples, err := s.store.RangeTrajectory(r.Context(), droneID, from, to)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, trajectoryResponse{Success: false})
		return
	}
	writeJSON(w, http.StatusOK, trajectoryResponse{Success: true, Samples: samples})
}

func (s *Server) handleHistoryStatistics(w http.ResponseWriter, r *http.Request) {
	windowS := 3600.0
	if raw := r.URL.Query().Get("window"); raw != "" {
		if parsed, err := strconv.ParseFloat(raw, 64); err == nil && parsed > 0 {
			windowS = parsed
		}
	}
	now := time.Now()
	from := now.Add(-time.Duration(windowS * float64(time.Second)))

	resp := statisticsResponse{Success: true, WindowSeconds: windowS}
	if s.core != nil {
		for _, m := range s.core.Registry.List() {
			resp.TotalMissions++
			switch m.State {
			case model.MissionScheduled, model.MissionRunning:
				resp.ActiveMissions++
			case model.MissionCompleted:
				resp.CompletedMissions++
			case model.MissionFailed:
				resp.FailedMissions++
			}
		}
	}
	if s.store != nil {
		if conflicts, err := s.store.RangeConflicts(r.Context(), from, now); err == nil {
			resp.ConflictsInWindow = len(conflicts)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHistoryConflicts(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseTimeRange(r, 1*time.Hour)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, conflictsResponse{Success: false})
		return
	}
	if s.store == nil {
		writeJSON(w, http.StatusOK, conflictsResponse{Success: true})
		return
	}
	conflicts, err := s.store.RangeConflicts(r.Context(), from, to)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, conflictsResponse{Success: false})
		return
	}
	writeJSON(w, http.StatusOK, conflictsResponse{Success: true, Conflicts: conflicts})
}

func (s *Server) handleFutureTrajectories(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseTimeRange(r, 30*time.Second)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, futureTrajectoriesResponse{Success: false})
		return
	}
	const resolution = 2 * time.Second

	var out []projectedTrajectory
	if s.core != nil {
		for _, m := range s.core.Registry.ListActive() {
			seg := m.Segment()
			missionStart, missionEnd := m.Window()
			windowStart, windowEnd := maxTime(from, missionStart), minTime(to, missionEnd)
			if !windowEnd.After(windowStart) {
				continue
			}
			var samples []model.TrajectorySample
			for t := windowStart; t.Before(windowEnd); t = t.Add(resolution) {
				pos := core.PositionAt(seg, t)
				samples = append(samples, model.TrajectorySample{VehicleID: m.VehicleID, Time: t, Position: pos})
			}
			samples = append(samples, model.TrajectorySample{VehicleID: m.VehicleID, Time: windowEnd, Position: core.PositionAt(seg, windowEnd)})
			out = append(out, projectedTrajectory{DroneID: m.VehicleID, MissionID: m.ID, Samples: samples})
		}
	}
	writeJSON(w, http.StatusOK, futureTrajectoriesResponse{Success: true, Trajectories: out})
}

func parseTimeRange(r *http.Request, defaultSpan time.Duration) (time.Time, time.Time, error) {
	q := r.URL.Query()
	now := time.Now()
	from, to := now.Add(-defaultSpan), now

	if raw := q.Get("start_time"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		from = t
	}
	if raw := q.Get("end_time"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		to = t
	}
	return from, to, nil
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// ctxWithTimeout bounds a driver call by the server's configured command
// timeout. A non-positive d leaves parent unbounded.
func ctxWithTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return parent, func() {}
	}
	return context.WithTimeout(parent, d)
}
