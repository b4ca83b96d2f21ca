// README: Result stores: PostgreSQL for the API server, SQLite for local runs, and a fan-out.
package report

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"carpool/internal/modules/world"
	"carpool/internal/types"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS simulation_results (
    simulation_id TEXT NOT NULL,
    actor_id      TEXT NOT NULL,
    role          TEXT NOT NULL,
    status        TEXT NOT NULL,
    origin        INTEGER NOT NULL,
    destination   INTEGER NOT NULL,
    route         TEXT NOT NULL,
    route_length  DOUBLE PRECISION NOT NULL,
    route_cost    DOUBLE PRECISION NOT NULL,
    direct_cost   DOUBLE PRECISION NOT NULL,
    prices        TEXT NOT NULL,
    price         DOUBLE PRECISION NOT NULL,
    income        DOUBLE PRECISION NOT NULL,
    driver_id     TEXT NOT NULL,
    attempts      INTEGER NOT NULL,
    reported_at   TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (simulation_id, actor_id)
)`

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS simulation_results (
    simulation_id TEXT NOT NULL,
    actor_id      TEXT NOT NULL,
    role          TEXT NOT NULL,
    status        TEXT NOT NULL,
    origin        INTEGER NOT NULL,
    destination   INTEGER NOT NULL,
    route         TEXT NOT NULL,
    route_length  REAL NOT NULL,
    route_cost    REAL NOT NULL,
    direct_cost   REAL NOT NULL,
    prices        TEXT NOT NULL,
    price         REAL NOT NULL,
    income        REAL NOT NULL,
    driver_id     TEXT NOT NULL,
    attempts      INTEGER NOT NULL,
    reported_at   TIMESTAMP NOT NULL,
    PRIMARY KEY (simulation_id, actor_id)
)`

// row is the flat form shared by both SQL stores.
type row struct {
	route, prices string
}

func encode(r Result) (row, error) {
	route, err := json.Marshal(r.Route)
	if err != nil {
		return row{}, err
	}
	prices, err := json.Marshal(r.Prices)
	if err != nil {
		return row{}, err
	}
	return row{route: string(route), prices: string(prices)}, nil
}

func decode(r *Result, route, prices string) error {
	var locs []world.Location
	if err := json.Unmarshal([]byte(route), &locs); err != nil {
		return fmt.Errorf("decode route: %w", err)
	}
	var p map[types.ID]float64
	if err := json.Unmarshal([]byte(prices), &p); err != nil {
		return fmt.Errorf("decode prices: %w", err)
	}
	r.Route = locs
	r.Prices = p
	return nil
}

type PGStore struct {
	db *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, pgSchema)
	return err
}

func (s *PGStore) Save(ctx context.Context, r Result) error {
	enc, err := encode(r)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
        INSERT INTO simulation_results (
            simulation_id, actor_id, role, status, origin, destination,
            route, route_length, route_cost, direct_cost,
            prices, price, income, driver_id, attempts, reported_at
        ) VALUES (
            $1, $2, $3, $4, $5, $6,
            $7, $8, $9, $10,
            $11, $12, $13, $14, $15, $16
        ) ON CONFLICT (simulation_id, actor_id) DO NOTHING`,
		r.SimulationID, string(r.ActorID), string(r.Role), string(r.Status),
		int(r.Trip.Origin), int(r.Trip.Destination),
		enc.route, r.RouteLength, r.RouteCost, r.DirectCost,
		enc.prices, r.Price, r.Income, string(r.DriverID), r.Attempts, r.ReportedAt,
	)
	return err
}

func (s *PGStore) List(ctx context.Context, simulationID string) ([]Result, error) {
	rows, err := s.db.Query(ctx, `
        SELECT simulation_id, actor_id, role, status, origin, destination,
               route, route_length, route_cost, direct_cost,
               prices, price, income, driver_id, attempts, reported_at
        FROM simulation_results
        WHERE simulation_id = $1
        ORDER BY reported_at, actor_id`, simulationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Result
	for rows.Next() {
		r, err := scanResult(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SQLiteStore keeps results in a local database file (driver "sqlite").
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteSchema)
	return err
}

func (s *SQLiteStore) Save(ctx context.Context, r Result) error {
	enc, err := encode(r)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
        INSERT INTO simulation_results (
            simulation_id, actor_id, role, status, origin, destination,
            route, route_length, route_cost, direct_cost,
            prices, price, income, driver_id, attempts, reported_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT (simulation_id, actor_id) DO NOTHING`,
		r.SimulationID, string(r.ActorID), string(r.Role), string(r.Status),
		int(r.Trip.Origin), int(r.Trip.Destination),
		enc.route, r.RouteLength, r.RouteCost, r.DirectCost,
		enc.prices, r.Price, r.Income, string(r.DriverID), r.Attempts, r.ReportedAt.UTC(),
	)
	return err
}

func (s *SQLiteStore) List(ctx context.Context, simulationID string) ([]Result, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT simulation_id, actor_id, role, status, origin, destination,
               route, route_length, route_cost, direct_cost,
               prices, price, income, driver_id, attempts, reported_at
        FROM simulation_results
        WHERE simulation_id = ?
        ORDER BY reported_at, actor_id`, simulationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Result
	for rows.Next() {
		r, err := scanResult(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanResult(scan func(dest ...any) error) (Result, error) {
	var r Result
	var actor, role, status, driver, route, prices string
	var origin, destination int
	var reportedAt time.Time
	err := scan(
		&r.SimulationID, &actor, &role, &status, &origin, &destination,
		&route, &r.RouteLength, &r.RouteCost, &r.DirectCost,
		&prices, &r.Price, &r.Income, &driver, &r.Attempts, &reportedAt,
	)
	if err != nil {
		return Result{}, err
	}
	r.ActorID = types.ID(actor)
	r.Role = types.Role(role)
	r.Status = Status(status)
	r.DriverID = types.ID(driver)
	r.Trip = world.Intention{Origin: world.Location(origin), Destination: world.Location(destination)}
	r.ReportedAt = reportedAt
	if err := decode(&r, route, prices); err != nil {
		return Result{}, err
	}
	return r, nil
}

// Multi saves to every store; List reads from the first.
type Multi []Store

func (m Multi) Save(ctx context.Context, r Result) error {
	var errs []error
	for _, s := range m {
		if err := s.Save(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) List(ctx context.Context, simulationID string) ([]Result, error) {
	if len(m) == 0 {
		return nil, nil
	}
	return m[0].List(ctx, simulationID)
}
