// README: Runner spawns one goroutine per actor under an errgroup and stops the world once everyone reported.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"carpool/internal/modules/agent"
	"carpool/internal/modules/directory"
	"carpool/internal/modules/itinerary"
	"carpool/internal/modules/pricing"
	"carpool/internal/modules/report"
	"carpool/internal/modules/transport"
)

type Runner struct {
	setup     *Setup
	dir       directory.Directory
	collector *report.Collector
	log       *slog.Logger
}

// NewRunner wires a built scenario to a directory and a result collector.
// A nil directory means an in-process one.
func NewRunner(setup *Setup, dir directory.Directory, collector *report.Collector, log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	if dir == nil {
		dir = directory.NewMemory()
	}
	return &Runner{setup: setup, dir: dir, collector: collector, log: log}
}

// Run blocks until every actor has reported or ctx is cancelled. Drivers
// are started and discoverable before any rider begins negotiating.
func (r *Runner) Run(ctx context.Context) (report.Summary, error) {
	cfg := r.setup.Scenario.Negotiation
	engine, err := itinerary.NewEngine(r.setup.Graph, cfg.Capacity, pricing.NewService(cfg.Premium))
	if err != nil {
		return report.Summary{}, fmt.Errorf("runner: %w", err)
	}
	bus := transport.NewBus(r.log)
	deps := agent.Deps{
		Bus:       bus,
		Directory: directory.NewService(r.dir, cfg.DirectoryRetries, cfg.DirectoryBackoff, r.log),
		Reporter:  r.collector,
		Routes:    r.setup.Graph,
		Engine:    engine,
		Config:    cfg,
		Log:       r.log,
	}

	drivers := make([]*agent.Driver, 0, len(r.setup.Drivers))
	for _, a := range r.setup.Drivers {
		d, err := agent.NewDriver(a.ID, a.Trip, deps, a.Seed)
		if err != nil {
			return report.Summary{}, fmt.Errorf("runner: %w", err)
		}
		drivers = append(drivers, d)
	}
	riders := make([]*agent.Rider, 0, len(r.setup.Riders))
	for _, a := range r.setup.Riders {
		rd, err := agent.NewRider(a.ID, a.Trip, deps, a.Seed)
		if err != nil {
			return report.Summary{}, fmt.Errorf("runner: %w", err)
		}
		riders = append(riders, rd)
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	g, gctx := errgroup.WithContext(runCtx)

	r.log.Info("simulation started", "drivers", len(drivers), "riders", len(riders), "locations", r.setup.Graph.Len())
	for _, d := range drivers {
		g.Go(func() error { return d.Run(gctx) })
	}
	for _, d := range drivers {
		select {
		case <-d.Ready():
		case <-gctx.Done():
		}
	}
	for _, rd := range riders {
		g.Go(func() error { return rd.Run(gctx) })
	}

	waitErr := r.collector.WaitFor(ctx, r.setup.Actors())
	stop()
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return r.collector.Summary(), fmt.Errorf("runner: %w", err)
	}
	if waitErr != nil {
		return r.collector.Summary(), fmt.Errorf("runner: %w", waitErr)
	}
	s := r.collector.Summary()
	r.log.Info("simulation finished", "driving", s.Driving, "passengers", s.Passengers,
		"unmatched", s.Unmatched, "failed", s.Failed, "savings", s.Savings)
	return s, nil
}
