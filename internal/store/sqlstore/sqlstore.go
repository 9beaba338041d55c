// internal/store/sqlstore/sqlstore.go
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/signalsfoundry/uav-coordinator/internal/coreerr"
	"github.com/signalsfoundry/uav-coordinator/model"
)

// Store is a modernc.org/sqlite-backed implementation of store.Store: a
// pure-Go driver, so the coordinator needs no cgo toolchain to persist
// missions, trajectory samples, and conflict events durably across
// restarts.
type Store struct {
	db *sql.DB
}

// Open opens or creates a SQLite database at path and ensures its schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if err := createSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS missions (
		id TEXT PRIMARY KEY,
		vehicle_id TEXT NOT NULL,
		plan_json TEXT NOT NULL,
		start_time TEXT NOT NULL,
		end_time TEXT NOT NULL,
		cruise_speed REAL NOT NULL,
		state TEXT NOT NULL,
		reason TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_missions_state ON missions(state);
	CREATE INDEX IF NOT EXISTS idx_missions_vehicle ON missions(vehicle_id);

	CREATE TABLE IF NOT EXISTS trajectory_samples (
		vehicle_id TEXT NOT NULL,
		ts TEXT NOT NULL,
		lat REAL NOT NULL,
		lon REAL NOT NULL,
		alt REAL NOT NULL,
		vx REAL NOT NULL,
		vy REAL NOT NULL,
		vz REAL NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_trajectory_vehicle_ts ON trajectory_samples(vehicle_id, ts);

	CREATE TABLE IF NOT EXISTS conflict_events (
		kind TEXT NOT NULL,
		vehicle_a TEXT NOT NULL,
		vehicle_b TEXT,
		start_time TEXT NOT NULL,
		end_time TEXT NOT NULL,
		min_distance REAL NOT NULL,
		severity TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_conflict_events_start ON conflict_events(start_time);
	`
	_, err := db.Exec(schema)
	return err
}

// Close closes the underlying database connection.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) PutMission(ctx context.Context, m model.Mission) error {
	planJSON, err := json.Marshal(m.Plan)
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO missions (id, vehicle_id, plan_json, start_time, end_time, cruise_speed, state, reason, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			vehicle_id=excluded.vehicle_id, plan_json=excluded.plan_json,
			start_time=excluded.start_time, end_time=excluded.end_time,
			cruise_speed=excluded.cruise_speed, state=excluded.state,
			reason=excluded.reason, updated_at=excluded.updated_at
	`, m.ID, m.VehicleID, string(planJSON), m.StartTime.UTC().Format(time.RFC3339Nano),
		m.EndTime.UTC().Format(time.RFC3339Nano), m.CruiseSpeed, string(m.State), string(m.Reason),
		m.CreatedAt.UTC().Format(time.RFC3339Nano), m.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("%w: put mission: %v", coreerr.ErrPersistenceError, err)
	}
	return nil
}

func (s *Store) GetMission(ctx context.Context, id string) (model.Mission, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, vehicle_id, plan_json, start_time, end_time, cruise_speed, state, reason, created_at, updated_at
		FROM missions WHERE id = ?`, id)
	m, err := scanMission(row)
	if err == sql.ErrNoRows {
		return model.Mission{}, fmt.Errorf("%w: mission %q", coreerr.ErrNotFound, id)
	}
	if err != nil {
		return model.Mission{}, fmt.Errorf("%w: get mission: %v", coreerr.ErrPersistenceError, err)
	}
	return m, nil
}

func (s *Store) ListMissions(ctx context.Context) ([]model.Mission, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, vehicle_id, plan_json, start_time, end_time, cruise_speed, state, reason, created_at, updated_at
		FROM missions ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("%w: list missions: %v", coreerr.ErrPersistenceError, err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Mission
	for rows.Next() {
		m, err := scanMission(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan mission: %v", coreerr.ErrPersistenceError, err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// rowScanner abstracts over *sql.Row and *sql.Rows, which share Scan but not
// a common interface in the standard library.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanMission(row rowScanner) (model.Mission, error) {
	var m model.Mission
	var planJSON, start, end, created, updated string
	var state, reason string
	if err := row.Scan(&m.ID, &m.VehicleID, &planJSON, &start, &end, &m.CruiseSpeed, &state, &reason, &created, &updated); err != nil {
		return model.Mission{}, err
	}
	if err := json.Unmarshal([]byte(planJSON), &m.Plan); err != nil {
		return model.Mission{}, fmt.Errorf("unmarshal plan: %w", err)
	}
	m.State = model.MissionState(state)
	m.Reason = model.FailureReason(reason)
	m.StartTime, _ = time.Parse(time.RFC3339Nano, start)
	m.EndTime, _ = time.Parse(time.RFC3339Nano, end)
	m.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	m.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return m, nil
}

func (s *Store) AppendTrajectory(ctx context.Context, sample model.TrajectorySample) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trajectory_samples (vehicle_id, ts, lat, lon, alt, vx, vy, vz)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sample.VehicleID, sample.Time.UTC().Format(time.RFC3339Nano),
		sample.Position.Lat, sample.Position.Lon, sample.Position.Alt,
		sample.Velocity.Vx, sample.Velocity.Vy, sample.Velocity.Vz)
	if err != nil {
		return fmt.Errorf("%w: append trajectory: %v", coreerr.ErrPersistenceError, err)
	}
	return nil
}

func (s *Store) RangeTrajectory(ctx context.Context, vehicleID string, from, to time.Time) ([]model.TrajectorySample, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT vehicle_id, ts, lat, lon, alt, vx, vy, vz FROM trajectory_samples
		WHERE vehicle_id = ? AND ts >= ? AND ts <= ? ORDER BY ts ASC`,
		vehicleID, from.UTC().Format(time.RFC3339Nano), to.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("%w: range trajectory: %v", coreerr.ErrPersistenceError, err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.TrajectorySample
	for rows.Next() {
		var s model.TrajectorySample
		var ts string
		if err := rows.Scan(&s.VehicleID, &ts, &s.Position.Lat, &s.Position.Lon, &s.Position.Alt,
			&s.Velocity.Vx, &s.Velocity.Vy, &s.Velocity.Vz); err != nil {
			return nil, fmt.Errorf("%w: scan trajectory sample: %v", coreerr.ErrPersistenceError, err)
		}
		s.Time, _ = time.Parse(time.RFC3339Nano, ts)
		out = append(out, s)
	}
	return out, rows.Err()
}

func (s *Store) AppendConflictEvent(ctx context.Context, c model.Conflict) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conflict_events (kind, vehicle_a, vehicle_b, start_time, end_time, min_distance, severity)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(c.Kind), c.VehicleA, c.VehicleB,
		c.Start.UTC().Format(time.RFC3339Nano), c.End.UTC().Format(time.RFC3339Nano),
		c.MinDistance, string(c.Severity))
	if err != nil {
		return fmt.Errorf("%w: append conflict event: %v", coreerr.ErrPersistenceError, err)
	}
	return nil
}

func (s *Store) RangeConflicts(ctx context.Context, from, to time.Time) ([]model.Conflict, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, vehicle_a, vehicle_b, start_time, end_time, min_distance, severity
		FROM conflict_events WHERE start_time >= ? AND start_time <= ? ORDER BY start_time ASC`,
		from.UTC().Format(time.RFC3339Nano), to.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("%w: range conflicts: %v", coreerr.ErrPersistenceError, err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Conflict
	for rows.Next() {
		var c model.Conflict
		var kind, severity, start, end string
		if err := rows.Scan(&kind, &c.VehicleA, &c.VehicleB, &start, &end, &c.MinDistance, &severity); err != nil {
			return nil, fmt.Errorf("%w: scan conflict event: %v", coreerr.ErrPersistenceError, err)
		}
		c.Kind = model.ConflictKind(kind)
		c.Severity = model.Severity(severity)
		c.Start, _ = time.Parse(time.RFC3339Nano, start)
		c.End, _ = time.Parse(time.RFC3339Nano, end)
		out = append(out, c)
	}
	return out, rows.Err()
}
