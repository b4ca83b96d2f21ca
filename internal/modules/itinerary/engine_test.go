package itinerary

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"carpool/internal/modules/pricing"
	"carpool/internal/modules/world"
	"carpool/internal/types"
)

const eps = 1e-9

func pathWorld(t *testing.T, n int) *world.Graph {
	t.Helper()
	b := world.NewBuilder()
	for i := 0; i < n; i++ {
		b.AddLocation(1, world.DistrictCenter)
	}
	for i := 1; i < n; i++ {
		if err := b.Connect(world.Location(i-1), world.Location(i)); err != nil {
			t.Fatalf("connect: %v", err)
		}
	}
	return b.Build()
}

func newEngine(t *testing.T, g RouteService, capacity int) *Engine {
	t.Helper()
	e, err := NewEngine(g, capacity, pricing.NewService(0))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return e
}

func trip(a, b int) world.Intention {
	return world.Intention{Origin: world.Location(a), Destination: world.Location(b)}
}

func locs(r world.Route) []int {
	out := []int{}
	for _, l := range r.Locations() {
		out = append(out, int(l))
	}
	return out
}

func assertPath(t *testing.T, what string, r world.Route, want ...int) {
	t.Helper()
	got := locs(r)
	if len(got) != len(want) {
		t.Fatalf("%s = %v, want %v", what, got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("%s = %v, want %v", what, got, want)
		}
	}
}

func TestNewEngine_RejectsZeroCapacity(t *testing.T) {
	if _, err := NewEngine(pathWorld(t, 2), 0, nil); !errors.Is(err, ErrCapacity) {
		t.Fatalf("expected ErrCapacity, got %v", err)
	}
}

func TestEngine_SinglePassengerOnPath(t *testing.T) {
	g := pathWorld(t, 4)
	e := newEngine(t, g, 3)
	own := trip(0, 3)

	current := e.Direct(own)
	assertPath(t, "direct route", current.Route, 0, 1, 2, 3)
	if current.Route.Cost() != 3 || current.TotalPrice() != 0 {
		t.Fatalf("direct plan cost=%v price=%v", current.Route.Cost(), current.TotalPrice())
	}

	q, err := e.Quote(own, current, "rider-1", trip(1, 2))
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	assertPath(t, "vehicle route", q.Candidate.Route, 0, 1, 2, 3)
	assertPath(t, "rider leg", q.Candidate.Legs["rider-1"], 1, 2)
	if q.Candidate.Legs["rider-1"].Length() != 1 {
		t.Fatalf("rider leg length = %v, want 1", q.Candidate.Legs["rider-1"].Length())
	}
	if math.Abs(q.Price-1) > eps {
		t.Fatalf("price = %v, want 1", q.Price)
	}
	if q.DirectCost != 1 {
		t.Fatalf("direct cost = %v, want 1", q.DirectCost)
	}
	if d := q.Candidate.Income() - current.Income(); math.Abs(d-1) > eps {
		t.Fatalf("income delta = %v, want 1", d)
	}
	if !q.Profitable {
		t.Fatal("expected a profitable quote")
	}
	// the current plan is not touched by quoting
	if len(current.Stops) != 0 || current.Serves("rider-1") {
		t.Fatal("quote mutated the current plan")
	}
}

func TestEngine_BreakEvenIsAccepted(t *testing.T) {
	g := pathWorld(t, 5)
	e := newEngine(t, g, 3)
	own := trip(0, 1)
	current := e.Direct(own)

	q, err := e.Quote(own, current, "rider-1", trip(3, 4))
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	// 0 -> 3 -> 4 -> 1 is 7 hops; price is the 6 hop detour
	if q.Candidate.Route.Length() != 7 || math.Abs(q.Price-6) > eps {
		t.Fatalf("route=%s price=%v", q.Candidate.Route, q.Price)
	}
	if math.Abs(q.Candidate.Income()-current.Income()) > eps {
		t.Fatalf("income %v vs %v, want equal", q.Candidate.Income(), current.Income())
	}
	if !q.Profitable {
		t.Fatal("break-even pooling must be accepted")
	}
}

func TestEngine_PremiumMakesPriceStrictlyProfitable(t *testing.T) {
	g := pathWorld(t, 4)
	e, err := NewEngine(g, 2, pricing.NewService(0.25))
	if err != nil {
		t.Fatal(err)
	}
	own := trip(0, 3)
	q, err := e.Quote(own, e.Direct(own), "rider-1", trip(1, 2))
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(q.Price-1.25) > eps {
		t.Fatalf("price = %v, want 1.25", q.Price)
	}
	if q.Breakdown[pricing.ComponentPremium] != 0.25 {
		t.Fatalf("breakdown = %v", q.Breakdown)
	}
}

func TestEngine_CapacityForcesDetour(t *testing.T) {
	g := pathWorld(t, 5)
	own := trip(0, 4)

	build := func(capacity int) Quote {
		e := newEngine(t, g, capacity)
		q, err := e.Quote(own, e.Direct(own), "rider-a", trip(1, 3))
		if err != nil {
			t.Fatal(err)
		}
		q, err = e.Quote(own, q.Candidate, "rider-b", trip(2, 4))
		if err != nil {
			t.Fatal(err)
		}
		return q
	}

	shared := build(2)
	assertPath(t, "capacity 2", shared.Candidate.Route, 0, 1, 2, 3, 4)

	single := build(1)
	assertPath(t, "capacity 1", single.Candidate.Route, 0, 1, 2, 3, 2, 3, 4)
	assertPath(t, "rider-a leg", single.Candidate.Legs["rider-a"], 1, 2, 3)
	assertPath(t, "rider-b leg", single.Candidate.Legs["rider-b"], 2, 3, 4)
	// detour of 2 hops is charged, floored at the 2 hop direct trip
	if math.Abs(single.Price-2) > eps {
		t.Fatalf("price = %v, want 2", single.Price)
	}
}

func TestEngine_TieBreakPrefersEarlierStop(t *testing.T) {
	// star: 0 in the middle, leaves 1 and 2
	b := world.NewBuilder()
	for i := 0; i < 3; i++ {
		b.AddLocation(1, world.DistrictCenter)
	}
	_ = b.Connect(0, 1)
	_ = b.Connect(0, 2)
	g := b.Build()
	e := newEngine(t, g, 1)
	own := trip(0, 0)

	a := StopsFor("rider-a", trip(1, 0))
	c := StopsFor("rider-c", trip(2, 0))

	w, err := e.Walk(own, []Stop{a[0], a[1], c[0], c[1]})
	if err != nil {
		t.Fatal(err)
	}
	if w.Order[0].Owner != "rider-a" {
		t.Fatalf("first stop = %+v, want rider-a pickup", w.Order[0])
	}

	w, err = e.Walk(own, []Stop{c[0], c[1], a[0], a[1]})
	if err != nil {
		t.Fatal(err)
	}
	if w.Order[0].Owner != "rider-c" {
		t.Fatalf("first stop = %+v, want rider-c pickup", w.Order[0])
	}
}

func TestEngine_UnreachableRiderIsUnprofitable(t *testing.T) {
	b := world.NewBuilder()
	for i := 0; i < 4; i++ {
		b.AddLocation(1, world.DistrictCenter)
	}
	_ = b.Connect(0, 1)
	_ = b.Connect(2, 3)
	g := b.Build()
	e := newEngine(t, g, 2)
	own := trip(0, 1)

	q, err := e.Quote(own, e.Direct(own), "rider-1", trip(2, 3))
	if err != nil {
		t.Fatalf("unreachable trips must not be errors: %v", err)
	}
	if q.Profitable {
		t.Fatal("unreachable candidate must not be profitable")
	}
	if !math.IsInf(q.Price, 1) {
		t.Fatalf("price = %v, want +Inf", q.Price)
	}
}

func TestEngine_QuoteRejectsServedRider(t *testing.T) {
	g := pathWorld(t, 4)
	e := newEngine(t, g, 2)
	own := trip(0, 3)
	q, err := e.Quote(own, e.Direct(own), "rider-1", trip(1, 2))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Quote(own, q.Candidate, "rider-1", trip(1, 2)); !errors.Is(err, ErrAlreadyServed) {
		t.Fatalf("expected ErrAlreadyServed, got %v", err)
	}
}

func TestEngine_Without(t *testing.T) {
	g := pathWorld(t, 6)
	e := newEngine(t, g, 1)
	own := trip(0, 5)

	qa, err := e.Quote(own, e.Direct(own), "rider-a", trip(1, 3))
	if err != nil {
		t.Fatal(err)
	}
	qb, err := e.Quote(own, qa.Candidate, "rider-b", trip(2, 4))
	if err != nil {
		t.Fatal(err)
	}

	left, err := e.Without(own, qb.Candidate, "rider-a")
	if err != nil {
		t.Fatalf("without: %v", err)
	}
	assertPath(t, "re-planned route", left.Route, 0, 1, 2, 3, 4, 5)
	if left.Serves("rider-a") || !left.Serves("rider-b") {
		t.Fatalf("riders = %v", left.Riders())
	}
	if left.Prices["rider-b"] != qb.Price {
		t.Fatalf("remaining price changed: %v != %v", left.Prices["rider-b"], qb.Price)
	}
	if _, ok := left.Legs["rider-a"]; ok {
		t.Fatal("withdrawn rider still has a leg")
	}
	if _, err := e.Without(own, left, "rider-a"); !errors.Is(err, ErrNotServed) {
		t.Fatalf("expected ErrNotServed, got %v", err)
	}
}

// TestEngine_RandomisedInvariants grows plans rider by rider on a generated
// world and checks the properties every plan must keep regardless of ties.
func TestEngine_RandomisedInvariants(t *testing.T) {
	g, err := world.Generate(world.DefaultGenerateParams())
	if err != nil {
		t.Fatal(err)
	}
	rng := rand.New(rand.NewSource(7))
	pick := func() world.Location { return world.Location(rng.Intn(g.Len())) }

	for capacity := 1; capacity <= 3; capacity++ {
		e := newEngine(t, g, capacity)
		for run := 0; run < 20; run++ {
			own := world.Intention{Origin: pick(), Destination: pick()}
			plan := e.Direct(own)
			for i := 0; i < 6; i++ {
				rider := types.RiderID(i)
				q, err := e.Quote(own, plan, rider, world.Intention{Origin: pick(), Destination: pick()})
				if err != nil {
					t.Fatalf("quote: %v", err)
				}
				if q.Price < q.DirectCost-eps {
					t.Fatalf("price %v below direct cost %v", q.Price, q.DirectCost)
				}
				if q.Profitable && q.Candidate.Income() < plan.Income()-eps {
					t.Fatalf("profitable quote lowers income: %v < %v", q.Candidate.Income(), plan.Income())
				}
				if err := g.Validate(q.Candidate.Route); err != nil {
					t.Fatalf("invalid vehicle route: %v", err)
				}
				checkOccupancy(t, e, own, q.Candidate, capacity)
				if q.Profitable {
					plan = q.Candidate
				}
			}
		}
	}
}

func checkOccupancy(t *testing.T, e *Engine, own world.Intention, p Plan, capacity int) {
	t.Helper()
	w, err := e.Walk(own, p.Stops)
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	if w.MaxOnboard > capacity {
		t.Fatalf("max onboard %d exceeds capacity %d", w.MaxOnboard, capacity)
	}
	onboard := map[types.ID]bool{}
	for _, s := range w.Order {
		switch s.Kind {
		case Pickup:
			onboard[s.Owner] = true
		case Dropoff:
			if !onboard[s.Owner] {
				t.Fatalf("dropoff of %s before pickup", s.Owner)
			}
			delete(onboard, s.Owner)
		}
		if len(onboard) > capacity {
			t.Fatalf("%d on board with capacity %d", len(onboard), capacity)
		}
	}
	for id, leg := range p.Legs {
		first, _ := leg.First()
		last, _ := leg.Last()
		var pickup, dropoff world.Location
		for _, s := range p.Stops {
			if s.Owner != id {
				continue
			}
			if s.Kind == Pickup {
				pickup = s.Location
			} else {
				dropoff = s.Location
			}
		}
		if first != pickup || last != dropoff {
			t.Fatalf("leg of %s runs %d->%d, want %d->%d", id, first, last, pickup, dropoff)
		}
	}
}
