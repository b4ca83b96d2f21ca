// README: Route value type: ordered locations, hop length, cost and in-place join.
package world

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// DefaultPricePerUnit is the cost of travelling one unit of route length.
const DefaultPricePerUnit = 1.0

var (
	ErrJoinMismatch = errors.New("route join: last location does not match first location")
	ErrEmptyRoute   = errors.New("route: empty location sequence")
)

// Route is an ordered walk over the graph. The zero value is not a valid route;
// obtain routes from a Graph or from Unreachable.
type Route struct {
	locations    []Location
	length       float64
	pricePerUnit float64
}

// Unreachable is the sentinel for "no path": infinite length, no locations.
func Unreachable() Route {
	return Route{length: math.Inf(1), pricePerUnit: DefaultPricePerUnit}
}

// NewRoute builds a route from a location sequence, one unit per hop.
// Adjacency is not checked here; Graph.Validate does that.
func NewRoute(locs []Location, pricePerUnit float64) (Route, error) {
	if len(locs) == 0 {
		return Route{}, ErrEmptyRoute
	}
	cp := make([]Location, len(locs))
	copy(cp, locs)
	return Route{locations: cp, length: float64(len(cp) - 1), pricePerUnit: pricePerUnit}, nil
}

func (r Route) IsUnreachable() bool { return math.IsInf(r.length, 1) }

func (r Route) Length() float64 { return r.length }

// Cost is length times the price per unit; +Inf for the unreachable sentinel.
func (r Route) Cost() float64 {
	if r.IsUnreachable() {
		return math.Inf(1)
	}
	return r.length * r.pricePerUnit
}

func (r Route) PricePerUnit() float64 { return r.pricePerUnit }

// Locations returns a copy of the location sequence (nil when unreachable).
func (r Route) Locations() []Location {
	if r.locations == nil {
		return nil
	}
	cp := make([]Location, len(r.locations))
	copy(cp, r.locations)
	return cp
}

func (r Route) First() (Location, bool) {
	if len(r.locations) == 0 {
		return 0, false
	}
	return r.locations[0], true
}

func (r Route) Last() (Location, bool) {
	if len(r.locations) == 0 {
		return 0, false
	}
	return r.locations[len(r.locations)-1], true
}

// Clone returns a route that shares no storage with r.
func (r Route) Clone() Route {
	return Route{locations: r.Locations(), length: r.length, pricePerUnit: r.pricePerUnit}
}

// Join appends next to r in place. The last location of r must equal the first
// location of next; the joint appears once in the result. Joining with the
// unreachable sentinel makes r unreachable.
func (r *Route) Join(next Route) error {
	if r.IsUnreachable() || next.IsUnreachable() {
		r.locations = nil
		r.length = math.Inf(1)
		return nil
	}
	last, ok := r.Last()
	if !ok {
		return ErrEmptyRoute
	}
	first, ok := next.First()
	if !ok {
		return ErrEmptyRoute
	}
	if last != first {
		return fmt.Errorf("%w: %d != %d", ErrJoinMismatch, last, first)
	}
	// clip so copies of r taken before the join never observe the appended tail
	n := len(r.locations)
	r.locations = append(r.locations[:n:n], next.locations[1:]...)
	r.length += next.length
	return nil
}

func (r Route) String() string {
	if r.IsUnreachable() {
		return "INFINITE"
	}
	parts := make([]string, len(r.locations))
	for i, l := range r.locations {
		parts[i] = strconv.Itoa(int(l))
	}
	return strings.Join(parts, " -> ")
}
