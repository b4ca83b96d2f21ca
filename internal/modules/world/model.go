// README: World model: locations, intentions and the immutable road graph with hop-count routing.
package world

import (
	"errors"
	"fmt"
)

// Location is a graph vertex handle issued by a Builder. Handles are dense
// indices starting at 0 and are only meaningful for the graph that issued them.
type Location int

type DistrictType string

const (
	DistrictCenter DistrictType = "center"
	DistrictSuburb DistrictType = "suburb"
)

type Vertex struct {
	ID       Location
	District int
	Type     DistrictType
}

// Intention is a requested trip.
type Intention struct {
	Origin      Location `json:"origin" yaml:"from"`
	Destination Location `json:"destination" yaml:"to"`
}

var (
	ErrUnknownLocation = errors.New("unknown location")
	ErrSelfLoop        = errors.New("self loop")
	ErrNotAdjacent     = errors.New("locations are not adjacent")
)

// Graph is read-only after Build; every method is safe for concurrent use.
type Graph struct {
	vertices     []Vertex
	adj          [][]Location
	edges        int
	pricePerUnit float64
	// parents[src][dst] is the predecessor of dst on a shortest path from src, -1 if unreachable.
	parents [][]Location
}

func (g *Graph) Len() int { return len(g.vertices) }

func (g *Graph) Edges() int { return g.edges }

func (g *Graph) PricePerUnit() float64 { return g.pricePerUnit }

func (g *Graph) Has(l Location) bool { return l >= 0 && int(l) < len(g.vertices) }

func (g *Graph) Vertex(l Location) (Vertex, error) {
	if !g.Has(l) {
		return Vertex{}, fmt.Errorf("%w: %d", ErrUnknownLocation, l)
	}
	return g.vertices[l], nil
}

// Locations lists every vertex handle in ascending order.
func (g *Graph) Locations() []Location {
	out := make([]Location, len(g.vertices))
	for i := range g.vertices {
		out[i] = Location(i)
	}
	return out
}

func (g *Graph) Neighbors(l Location) []Location {
	if !g.Has(l) {
		return nil
	}
	out := make([]Location, len(g.adj[l]))
	copy(out, g.adj[l])
	return out
}

func (g *Graph) Adjacent(a, b Location) bool {
	if !g.Has(a) || !g.Has(b) {
		return false
	}
	for _, n := range g.adj[a] {
		if n == b {
			return true
		}
	}
	return false
}

// RouteBetween returns a shortest route by hop count, or the unreachable
// sentinel when either end is unknown or no path exists.
func (g *Graph) RouteBetween(a, b Location) Route {
	if !g.Has(a) || !g.Has(b) {
		return Unreachable()
	}
	if a == b {
		return g.SingletonRoute(a)
	}
	tree := g.parents[a]
	if tree[b] < 0 {
		return Unreachable()
	}
	var rev []Location
	for cur := b; cur != a; cur = tree[cur] {
		rev = append(rev, cur)
	}
	rev = append(rev, a)
	locs := make([]Location, len(rev))
	for i := range rev {
		locs[i] = rev[len(rev)-1-i]
	}
	return Route{locations: locs, length: float64(len(locs) - 1), pricePerUnit: g.pricePerUnit}
}

// SingletonRoute is the zero-length route that seeds walk construction.
func (g *Graph) SingletonRoute(l Location) Route {
	return Route{locations: []Location{l}, length: 0, pricePerUnit: g.pricePerUnit}
}

// Validate checks that consecutive locations of r are adjacent.
func (g *Graph) Validate(r Route) error {
	if r.IsUnreachable() {
		return nil
	}
	locs := r.locations
	if len(locs) == 0 {
		return ErrEmptyRoute
	}
	for i := 0; i < len(locs); i++ {
		if !g.Has(locs[i]) {
			return fmt.Errorf("%w: %d", ErrUnknownLocation, locs[i])
		}
		if i > 0 && !g.Adjacent(locs[i-1], locs[i]) {
			return fmt.Errorf("%w: %d -> %d", ErrNotAdjacent, locs[i-1], locs[i])
		}
	}
	return nil
}

// Connected reports whether every vertex is reachable from vertex 0.
func (g *Graph) Connected() bool {
	if len(g.vertices) == 0 {
		return true
	}
	for _, p := range g.parents[0][1:] {
		if p < 0 {
			return false
		}
	}
	return true
}

// Builder assembles a Graph. It is not safe for concurrent use.
type Builder struct {
	vertices     []Vertex
	adj          [][]Location
	edges        int
	pricePerUnit float64
}

func NewBuilder() *Builder {
	return &Builder{pricePerUnit: DefaultPricePerUnit}
}

func (b *Builder) SetPricePerUnit(p float64) *Builder {
	if p > 0 {
		b.pricePerUnit = p
	}
	return b
}

func (b *Builder) Len() int { return len(b.vertices) }

func (b *Builder) AddLocation(district int, t DistrictType) Location {
	id := Location(len(b.vertices))
	b.vertices = append(b.vertices, Vertex{ID: id, District: district, Type: t})
	b.adj = append(b.adj, nil)
	return id
}

// Connect adds an undirected edge. Duplicate edges are ignored.
func (b *Builder) Connect(a, c Location) error {
	if a < 0 || int(a) >= len(b.vertices) {
		return fmt.Errorf("connect: %w: %d", ErrUnknownLocation, a)
	}
	if c < 0 || int(c) >= len(b.vertices) {
		return fmt.Errorf("connect: %w: %d", ErrUnknownLocation, c)
	}
	if a == c {
		return fmt.Errorf("connect: %w: %d", ErrSelfLoop, a)
	}
	if b.adjacent(a, c) {
		return nil
	}
	b.adj[a] = append(b.adj[a], c)
	b.adj[c] = append(b.adj[c], a)
	b.edges++
	return nil
}

func (b *Builder) adjacent(a, c Location) bool {
	for _, n := range b.adj[a] {
		if n == c {
			return true
		}
	}
	return false
}

// Build freezes the graph and precomputes one BFS tree per source so that
// route queries never mutate shared state.
func (b *Builder) Build() *Graph {
	n := len(b.vertices)
	g := &Graph{
		vertices:     append([]Vertex(nil), b.vertices...),
		adj:          make([][]Location, n),
		edges:        b.edges,
		pricePerUnit: b.pricePerUnit,
		parents:      make([][]Location, n),
	}
	for i := range b.adj {
		g.adj[i] = append([]Location(nil), b.adj[i]...)
	}
	for src := 0; src < n; src++ {
		g.parents[src] = bfs(g.adj, Location(src))
	}
	return g
}

func bfs(adj [][]Location, src Location) []Location {
	parent := make([]Location, len(adj))
	for i := range parent {
		parent[i] = -1
	}
	parent[src] = src
	queue := []Location{src}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, n := range adj[cur] {
			if parent[n] >= 0 {
				continue
			}
			parent[n] = cur
			queue = append(queue, n)
		}
	}
	return parent
}
