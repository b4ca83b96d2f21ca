// README: Manager runs simulations in the background and serves their state, results and live stream.
package simulation

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"carpool/internal/modules/directory"
	"carpool/internal/modules/report"
)

// DirectoryFactory returns the registry a simulation's actors share.
type DirectoryFactory func(simulationID string) directory.Directory

type purger interface {
	Purge(ctx context.Context) error
}

type run struct {
	sim       Simulation
	collector *report.Collector
	cancel    context.CancelFunc
	done      chan struct{}
}

type Manager struct {
	store report.Store
	dirs  DirectoryFactory
	log   *slog.Logger

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.RWMutex
	runs map[string]*run
}

// NewManager persists results to store (may be nil) and takes each
// simulation's directory from dirs (nil means in-process).
func NewManager(store report.Store, dirs DirectoryFactory, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	if dirs == nil {
		dirs = func(string) directory.Directory { return directory.NewMemory() }
	}
	base, cancel := context.WithCancel(context.Background())
	return &Manager{
		store:  store,
		dirs:   dirs,
		log:    log,
		base:   base,
		cancel: cancel,
		runs:   make(map[string]*run),
	}
}

// Start builds the scenario and runs it in the background.
func (m *Manager) Start(sc Scenario) (Simulation, error) {
	setup, err := sc.Build()
	if err != nil {
		return Simulation{}, err
	}
	id := uuid.NewString()
	log := m.log.With("simulation", id)
	collector := report.NewCollector(id, m.store, log)
	ctx, cancel := context.WithCancel(m.base)
	rn := &run{
		sim: Simulation{
			ID:        id,
			Name:      sc.Name,
			Status:    StatusRunning,
			Drivers:   len(setup.Drivers),
			Riders:    len(setup.Riders),
			Locations: setup.Graph.Len(),
			StartedAt: time.Now().UTC(),
		},
		collector: collector,
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	m.mu.Lock()
	m.runs[id] = rn
	m.mu.Unlock()

	dir := m.dirs(id)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer close(rn.done)
		defer cancel()
		summary, err := NewRunner(setup, dir, collector, log).Run(ctx)
		if p, ok := dir.(purger); ok {
			if err := p.Purge(context.WithoutCancel(ctx)); err != nil {
				log.Error("directory purge failed", "err", err)
			}
		}

		m.mu.Lock()
		now := time.Now().UTC()
		rn.sim.FinishedAt = &now
		rn.sim.Summary = summary
		rn.sim.Status = StatusFinished
		if err != nil {
			rn.sim.Status = StatusFailed
			rn.sim.Error = err.Error()
			log.Error("simulation failed", "err", err)
		}
		m.mu.Unlock()
		collector.Close()
	}()
	return m.snapshot(rn), nil
}

func (m *Manager) lookup(id string) (*run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rn, ok := m.runs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rn, nil
}

func (m *Manager) snapshot(rn *run) Simulation {
	m.mu.RLock()
	sim := rn.sim
	m.mu.RUnlock()
	sim.Reported = rn.collector.Len()
	if sim.Status == StatusRunning {
		sim.Summary = rn.collector.Summary()
	}
	return sim
}

func (m *Manager) Get(id string) (Simulation, error) {
	rn, err := m.lookup(id)
	if err != nil {
		return Simulation{}, err
	}
	return m.snapshot(rn), nil
}

// List returns every known simulation, newest first.
func (m *Manager) List() []Simulation {
	m.mu.RLock()
	runs := make([]*run, 0, len(m.runs))
	for _, rn := range m.runs {
		runs = append(runs, rn)
	}
	m.mu.RUnlock()
	out := make([]Simulation, 0, len(runs))
	for _, rn := range runs {
		out = append(out, m.snapshot(rn))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out
}

// Results returns what has been reported so far. Simulations from an
// earlier process are served from the store.
func (m *Manager) Results(ctx context.Context, id string) ([]report.Result, error) {
	rn, err := m.lookup(id)
	if err == nil {
		return rn.collector.Results(), nil
	}
	if m.store == nil {
		return nil, err
	}
	results, serr := m.store.List(ctx, id)
	if serr != nil {
		return nil, fmt.Errorf("list results: %w", serr)
	}
	if len(results) == 0 {
		return nil, err
	}
	return results, nil
}

// Subscribe streams results reported from now on. The channel closes when
// the simulation finishes or cancel is called.
func (m *Manager) Subscribe(id string, buffer int) (<-chan report.Result, func(), error) {
	rn, err := m.lookup(id)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := rn.collector.Subscribe(buffer)
	return ch, cancel, nil
}

// Wait blocks until the simulation finishes or ctx is done.
func (m *Manager) Wait(ctx context.Context, id string) (Simulation, error) {
	rn, err := m.lookup(id)
	if err != nil {
		return Simulation{}, err
	}
	select {
	case <-rn.done:
		return m.snapshot(rn), nil
	case <-ctx.Done():
		return m.snapshot(rn), ctx.Err()
	}
}

// Stop cancels one running simulation.
func (m *Manager) Stop(id string) error {
	rn, err := m.lookup(id)
	if err != nil {
		return err
	}
	rn.cancel()
	return nil
}

// Shutdown cancels every simulation and waits for their actors to exit.
func (m *Manager) Shutdown() {
	m.cancel()
	m.wg.Wait()
}
