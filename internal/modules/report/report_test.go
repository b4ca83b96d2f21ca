package report

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "modernc.org/sqlite"

	"carpool/internal/modules/world"
	"carpool/internal/types"
)

func sampleResults() []Result {
	return []Result{
		{ActorID: "driver-0", Role: types.RoleDriver, Status: StatusDriving, DirectCost: 3, RouteCost: 4, Income: 1,
			Prices: map[types.ID]float64{"rider-0": 2, "driver-1": 3}, Route: []world.Location{0, 1, 2, 3}},
		{ActorID: "driver-1", Role: types.RoleDriver, Status: StatusPassenger, DirectCost: 2, Price: 3, DriverID: "driver-0"},
		{ActorID: "rider-0", Role: types.RoleRider, Status: StatusPassenger, DirectCost: 2, Price: 2, DriverID: "driver-0"},
		{ActorID: "rider-1", Role: types.RoleRider, Status: StatusUnmatched, DirectCost: 5},
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(sampleResults())
	if s.Drivers != 2 || s.Riders != 2 {
		t.Fatalf("drivers=%d riders=%d", s.Drivers, s.Riders)
	}
	if s.Driving != 1 || s.Passengers != 2 || s.Unmatched != 1 {
		t.Fatalf("summary = %+v", s)
	}
	if s.BaselineCost != 12 || s.ResultingCost != 9 || s.Savings != 3 {
		t.Fatalf("baseline=%v resulting=%v savings=%v", s.BaselineCost, s.ResultingCost, s.Savings)
	}
}

func TestCollector_DedupAndSanitize(t *testing.T) {
	c := NewCollector("sim-1", nil, nil)
	ctx := context.Background()
	c.Report(ctx, Result{ActorID: "rider-0", Status: StatusUnmatched, DirectCost: math.Inf(1)})
	c.Report(ctx, Result{ActorID: "rider-0", Status: StatusPassenger})

	got := c.Results()
	if len(got) != 1 {
		t.Fatalf("results = %d, want 1", len(got))
	}
	if got[0].Status != StatusUnmatched || got[0].DirectCost != 0 {
		t.Fatalf("result = %+v", got[0])
	}
	if got[0].SimulationID != "sim-1" || got[0].ReportedAt.IsZero() {
		t.Fatal("collector must stamp simulation id and time")
	}
}

func TestCollector_WaitFor(t *testing.T) {
	c := NewCollector("sim-1", nil, nil)
	go func() {
		for i := 0; i < 3; i++ {
			time.Sleep(5 * time.Millisecond)
			c.Report(context.Background(), Result{ActorID: types.RiderID(i)})
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.WaitFor(ctx, 3); err != nil {
		t.Fatalf("wait: %v", err)
	}

	short, cancel2 := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel2()
	if err := c.WaitFor(short, 4); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
}

func TestCollector_Subscribe(t *testing.T) {
	c := NewCollector("sim-1", nil, nil)
	ch, cancel := c.Subscribe(4)
	c.Report(context.Background(), Result{ActorID: "driver-0"})
	select {
	case r := <-ch:
		if r.ActorID != "driver-0" {
			t.Fatalf("got %s", r.ActorID)
		}
	case <-time.After(time.Second):
		t.Fatal("no result streamed")
	}
	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatal("channel must be closed after cancel")
	}

	ch2, _ := c.Subscribe(1)
	c.Close()
	if _, ok := <-ch2; ok {
		t.Fatal("Close must end subscriptions")
	}
	ch3, _ := c.Subscribe(1)
	if _, ok := <-ch3; ok {
		t.Fatal("subscribing after Close yields a closed channel")
	}
}

type memStore struct {
	mu    sync.Mutex
	saved []Result
	err   error
}

func (m *memStore) Save(_ context.Context, r Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.saved = append(m.saved, r)
	return nil
}

func (m *memStore) List(_ context.Context, _ string) ([]Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Result(nil), m.saved...), nil
}

func TestMulti(t *testing.T) {
	a, b := &memStore{}, &memStore{err: errors.New("disk full")}
	m := Multi{a, b}
	if err := m.Save(context.Background(), Result{ActorID: "x"}); err == nil {
		t.Fatal("expected the failing store's error")
	}
	if len(a.saved) != 1 {
		t.Fatal("healthy store must still receive the result")
	}
	got, _ := m.List(context.Background(), "sim")
	if len(got) != 1 {
		t.Fatalf("list = %d", len(got))
	}
}

func openSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	s := NewSQLiteStore(db)
	if err := s.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("schema: %v", err)
	}
	return s
}

func TestSQLiteStore_SaveList(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, r := range sampleResults() {
		r.SimulationID = "sim-1"
		r.ReportedAt = base.Add(time.Duration(i) * time.Second)
		if err := s.Save(ctx, r); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	// duplicates are ignored
	dup := sampleResults()[0]
	dup.SimulationID = "sim-1"
	dup.ReportedAt = base
	if err := s.Save(ctx, dup); err != nil {
		t.Fatalf("duplicate save: %v", err)
	}

	got, err := s.List(ctx, "sim-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("results = %d, want 4", len(got))
	}
	first := got[0]
	if first.ActorID != "driver-0" || first.Prices["rider-0"] != 2 || len(first.Route) != 4 {
		t.Fatalf("first = %+v", first)
	}
	if Summarize(got).Savings != 3 {
		t.Fatalf("summary from store differs: %+v", Summarize(got))
	}
	other, _ := s.List(ctx, "sim-2")
	if len(other) != 0 {
		t.Fatal("simulations must not leak into each other")
	}
}

func TestPGStore_SaveList(t *testing.T) {
	dsn := os.Getenv("CARPOOL_TEST_DSN")
	if dsn == "" {
		t.Skip("CARPOOL_TEST_DSN not set; skipping DB-backed store test")
	}
	ctx := context.Background()
	db, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	s := NewPGStore(db)
	if err := s.EnsureSchema(ctx); err != nil {
		t.Fatalf("schema: %v", err)
	}
	if _, err := db.Exec(ctx, "DELETE FROM simulation_results WHERE simulation_id = 'pg-test'"); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	for _, r := range sampleResults() {
		r.SimulationID = "pg-test"
		r.ReportedAt = time.Now().UTC()
		if err := s.Save(ctx, r); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	got, err := s.List(ctx, "pg-test")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("results = %d, want 4", len(got))
	}
}
