// README: Itinerary model: stops, plans and the income arithmetic drivers negotiate on.
package itinerary

import (
	"math"
	"sort"

	"carpool/internal/modules/world"
	"carpool/internal/types"
)

type StopKind string

const (
	Pickup  StopKind = "pickup"
	Dropoff StopKind = "dropoff"
)

// Stop is a pickup or dropoff owned by one counterparty.
type Stop struct {
	Owner    types.ID
	Kind     StopKind
	Location world.Location
}

// StopsFor returns the pickup/dropoff pair a counterparty contributes.
func StopsFor(owner types.ID, trip world.Intention) [2]Stop {
	return [2]Stop{
		{Owner: owner, Kind: Pickup, Location: trip.Origin},
		{Owner: owner, Kind: Dropoff, Location: trip.Destination},
	}
}

// Plan is a driver's committed or candidate state. Plans are treated as
// values: the engine always returns fresh ones and never edits its inputs.
type Plan struct {
	Route world.Route
	// Stops is kept in the order counterparties were added; the engine's
	// tie-break depends on it.
	Stops  []Stop
	Prices map[types.ID]float64
	// Legs holds each counterparty's in-vehicle sub-route.
	Legs map[types.ID]world.Route
}

func (p Plan) TotalPrice() float64 {
	total := 0.0
	for _, v := range p.Prices {
		total += v
	}
	return total
}

// Income is total price minus route cost (-Inf when the route is unreachable).
func (p Plan) Income() float64 {
	if p.Route.IsUnreachable() {
		return math.Inf(-1)
	}
	return p.TotalPrice() - p.Route.Cost()
}

// UnitCost is total price per unit of route length, 0 when unreachable or empty.
func (p Plan) UnitCost() float64 {
	if p.Route.IsUnreachable() || p.Route.Length() == 0 {
		return 0
	}
	return p.TotalPrice() / p.Route.Length()
}

// Riders lists the counterparties served by the plan in ascending order.
func (p Plan) Riders() []types.ID {
	out := make([]types.ID, 0, len(p.Prices))
	for id := range p.Prices {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (p Plan) Serves(id types.ID) bool {
	_, ok := p.Prices[id]
	return ok
}

// SameAs reports whether two plans describe the same route and rider set.
func (p Plan) SameAs(o Plan) bool {
	if p.Route.String() != o.Route.String() || len(p.Prices) != len(o.Prices) {
		return false
	}
	for id, v := range p.Prices {
		if w, ok := o.Prices[id]; !ok || w != v {
			return false
		}
	}
	return true
}

func (p Plan) Clone() Plan {
	cp := Plan{
		Route:  p.Route.Clone(),
		Stops:  append([]Stop(nil), p.Stops...),
		Prices: make(map[types.ID]float64, len(p.Prices)),
		Legs:   make(map[types.ID]world.Route, len(p.Legs)),
	}
	for k, v := range p.Prices {
		cp.Prices[k] = v
	}
	for k, v := range p.Legs {
		cp.Legs[k] = v.Clone()
	}
	return cp
}
