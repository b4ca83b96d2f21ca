// README: Greedy multi-stop route insertion and marginal cost quoting for one driver.
package itinerary

import (
	"errors"
	"fmt"
	"math"

	"carpool/internal/modules/pricing"
	"carpool/internal/modules/world"
	"carpool/internal/types"
)

// RouteService is the read-only slice of the world model the engine needs.
type RouteService interface {
	RouteBetween(a, b world.Location) world.Route
	SingletonRoute(l world.Location) world.Route
}

// incomeTolerance absorbs float noise when comparing incomes.
const incomeTolerance = 1e-9

var (
	ErrCapacity      = errors.New("itinerary: capacity must be at least 1")
	ErrNoEligible    = errors.New("itinerary: no eligible stop")
	ErrAlreadyServed = errors.New("itinerary: counterparty already served")
	ErrNotServed     = errors.New("itinerary: counterparty not served")
)

type Engine struct {
	routes   RouteService
	capacity int
	pricer   *pricing.Service
}

func NewEngine(routes RouteService, capacity int, pricer *pricing.Service) (*Engine, error) {
	if capacity < 1 {
		return nil, ErrCapacity
	}
	if pricer == nil {
		pricer = pricing.NewService(0)
	}
	return &Engine{routes: routes, capacity: capacity, pricer: pricer}, nil
}

func (e *Engine) Capacity() int { return e.capacity }

// Walk is the result of one simulated drive over a stop set.
type Walk struct {
	Vehicle world.Route
	// Legs maps every counterparty that was on board to its sub-route.
	Legs  map[types.ID]world.Route
	Order []Stop
	// MaxOnboard is the highest simultaneous occupancy seen along the walk.
	MaxOnboard int
}

// Walk drives from own.Origin, repeatedly moving to the nearest eligible stop,
// and finishes at own.Destination. A pickup is eligible while occupancy is
// below capacity; a dropoff is eligible once its owner is on board. Among
// equally near stops the one listed first in stops wins.
func (e *Engine) Walk(own world.Intention, stops []Stop) (Walk, error) {
	w := Walk{
		Vehicle: e.routes.SingletonRoute(own.Origin),
		Legs:    make(map[types.ID]world.Route),
		Order:   make([]Stop, 0, len(stops)),
	}
	visited := make([]bool, len(stops))
	var onboard []types.ID
	cur := own.Origin

	for range stops {
		next := -1
		var leg world.Route
		for i, s := range stops {
			if visited[i] || !e.eligible(s, onboard) {
				continue
			}
			r := e.routes.RouteBetween(cur, s.Location)
			// strict less keeps the earliest stop on ties; an unreachable
			// candidate is still taken when nothing better exists
			if next < 0 || r.Length() < leg.Length() {
				next, leg = i, r
			}
		}
		if next < 0 {
			return Walk{}, fmt.Errorf("%w: at %d with %d on board", ErrNoEligible, cur, len(onboard))
		}

		for _, id := range onboard {
			sub := w.Legs[id]
			if err := sub.Join(leg); err != nil {
				return Walk{}, fmt.Errorf("walk: extend leg of %s: %w", id, err)
			}
			w.Legs[id] = sub
		}
		if err := w.Vehicle.Join(leg); err != nil {
			return Walk{}, fmt.Errorf("walk: extend vehicle route: %w", err)
		}

		s := stops[next]
		visited[next] = true
		w.Order = append(w.Order, s)
		switch s.Kind {
		case Pickup:
			w.Legs[s.Owner] = e.routes.SingletonRoute(s.Location)
			onboard = append(onboard, s.Owner)
			if len(onboard) > w.MaxOnboard {
				w.MaxOnboard = len(onboard)
			}
		case Dropoff:
			onboard = remove(onboard, s.Owner)
		}
		cur = s.Location
	}

	last := e.routes.RouteBetween(cur, own.Destination)
	for _, id := range onboard {
		sub := w.Legs[id]
		if err := sub.Join(last); err != nil {
			return Walk{}, fmt.Errorf("walk: extend leg of %s: %w", id, err)
		}
		w.Legs[id] = sub
	}
	if err := w.Vehicle.Join(last); err != nil {
		return Walk{}, fmt.Errorf("walk: final leg: %w", err)
	}
	return w, nil
}

func (e *Engine) eligible(s Stop, onboard []types.ID) bool {
	switch s.Kind {
	case Pickup:
		return len(onboard) < e.capacity && !contains(onboard, s.Owner)
	case Dropoff:
		return contains(onboard, s.Owner)
	}
	return false
}

// Direct is the driver's starting plan: its own trip, no riders.
func (e *Engine) Direct(own world.Intention) Plan {
	return Plan{
		Route:  e.routes.RouteBetween(own.Origin, own.Destination),
		Prices: map[types.ID]float64{},
		Legs:   map[types.ID]world.Route{},
	}
}

// Quote is the engine's answer to "what if rider joined current".
type Quote struct {
	Rider      types.ID
	Candidate  Plan
	Price      float64
	Breakdown  map[string]float64
	DirectCost float64
	// Profitable is true when the candidate income does not fall below the
	// current income.
	Profitable bool
}

// Quote inserts rider's trip into current and prices it. Infeasible routes
// yield an unprofitable quote with an infinite price, never an error.
func (e *Engine) Quote(own world.Intention, current Plan, rider types.ID, trip world.Intention) (Quote, error) {
	if current.Serves(rider) {
		return Quote{}, fmt.Errorf("%w: %s", ErrAlreadyServed, rider)
	}
	pair := StopsFor(rider, trip)
	stops := make([]Stop, 0, len(current.Stops)+2)
	stops = append(stops, current.Stops...)
	stops = append(stops, pair[0], pair[1])

	walk, err := e.Walk(own, stops)
	if err != nil {
		return Quote{}, err
	}
	direct := e.routes.RouteBetween(trip.Origin, trip.Destination)
	q := Quote{Rider: rider, Price: math.Inf(1), DirectCost: direct.Cost()}
	if walk.Vehicle.IsUnreachable() || direct.IsUnreachable() {
		return q, nil
	}

	res, err := e.pricer.Estimate(pricing.Request{
		CurrentCost:   current.Route.Cost(),
		CandidateCost: walk.Vehicle.Cost(),
		DirectCost:    direct.Cost(),
	})
	if err != nil {
		if errors.Is(err, pricing.ErrInfeasible) {
			return q, nil
		}
		return Quote{}, err
	}

	prices := make(map[types.ID]float64, len(current.Prices)+1)
	for id, p := range current.Prices {
		prices[id] = p
	}
	prices[rider] = res.Price

	q.Price = res.Price
	q.Breakdown = res.Breakdown
	q.Candidate = Plan{Route: walk.Vehicle, Stops: stops, Prices: prices, Legs: walk.Legs}
	q.Profitable = q.Candidate.Income() >= current.Income()-incomeTolerance
	return q, nil
}

// Without drops rider from current and re-plans the remaining stops. Prices of
// the remaining riders are kept.
func (e *Engine) Without(own world.Intention, current Plan, rider types.ID) (Plan, error) {
	if !current.Serves(rider) {
		return Plan{}, fmt.Errorf("%w: %s", ErrNotServed, rider)
	}
	stops := make([]Stop, 0, len(current.Stops))
	for _, s := range current.Stops {
		if s.Owner != rider {
			stops = append(stops, s)
		}
	}
	walk, err := e.Walk(own, stops)
	if err != nil {
		return Plan{}, err
	}
	prices := make(map[types.ID]float64, len(current.Prices))
	for id, p := range current.Prices {
		if id != rider {
			prices[id] = p
		}
	}
	return Plan{Route: walk.Vehicle, Stops: stops, Prices: prices, Legs: walk.Legs}, nil
}

func contains(ids []types.ID, id types.ID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func remove(ids []types.ID, id types.ID) []types.ID {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
