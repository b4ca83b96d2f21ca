// README: Seeded city generator: complete-graph center plus scale-free suburbs.
package world

import (
	"errors"
	"fmt"
	"math/rand"
)

type GenerateParams struct {
	Nodes        int     `yaml:"nodes" json:"nodes"`
	Center       int     `yaml:"center" json:"center"`
	Districts    int     `yaml:"districts" json:"districts"`
	Seed         int64   `yaml:"seed" json:"seed"`
	PricePerUnit float64 `yaml:"price_per_unit" json:"price_per_unit"`
}

var ErrBadParams = errors.New("invalid world parameters")

// DefaultGenerateParams is a 60-location city with a 10-location center.
func DefaultGenerateParams() GenerateParams {
	return GenerateParams{Nodes: 60, Center: 10, Districts: 6, Seed: 21, PricePerUnit: DefaultPricePerUnit}
}

// Generate builds a connected city. District 1 is the center: a complete graph
// of p.Center vertices. Districts 2..p.Districts are suburbs sharing the
// remaining vertices; each suburb is grown by preferential attachment and
// bridged to a random center vertex.
func Generate(p GenerateParams) (*Graph, error) {
	if p.Center < 1 || p.Districts < 1 || p.Nodes < p.Center {
		return nil, fmt.Errorf("%w: %+v", ErrBadParams, p)
	}
	rnd := rand.New(rand.NewSource(p.Seed))
	b := NewBuilder().SetPricePerUnit(p.PricePerUnit)

	center := make([]Location, p.Center)
	for i := range center {
		center[i] = b.AddLocation(1, DistrictCenter)
	}
	for i := 0; i < len(center); i++ {
		for j := i + 1; j < len(center); j++ {
			if err := b.Connect(center[i], center[j]); err != nil {
				return nil, err
			}
		}
	}

	suburbs := p.Districts - 1
	if suburbs > 0 {
		perSuburb := (p.Nodes - p.Center) / suburbs
		for d := 0; d < suburbs && perSuburb > 0; d++ {
			nodes, err := growScaleFree(b, rnd, d+2, perSuburb)
			if err != nil {
				return nil, err
			}
			from := nodes[rnd.Intn(len(nodes))]
			to := center[rnd.Intn(len(center))]
			if err := b.Connect(from, to); err != nil {
				return nil, err
			}
		}
	}

	if err := joinComponents(b); err != nil {
		return nil, err
	}
	return b.Build(), nil
}

// growScaleFree attaches each new vertex to one existing vertex chosen with
// probability proportional to its degree.
func growScaleFree(b *Builder, rnd *rand.Rand, district, n int) ([]Location, error) {
	nodes := make([]Location, 0, n)
	// every edge contributes both endpoints, so a uniform pick is degree-weighted
	var endpoints []Location
	for i := 0; i < n; i++ {
		l := b.AddLocation(district, DistrictSuburb)
		switch {
		case len(nodes) == 0:
		case len(endpoints) == 0:
			if err := b.Connect(l, nodes[0]); err != nil {
				return nil, err
			}
			endpoints = append(endpoints, l, nodes[0])
		default:
			target := endpoints[rnd.Intn(len(endpoints))]
			if err := b.Connect(l, target); err != nil {
				return nil, err
			}
			endpoints = append(endpoints, l, target)
		}
		nodes = append(nodes, l)
	}
	return nodes, nil
}

func joinComponents(b *Builder) error {
	n := b.Len()
	if n == 0 {
		return nil
	}
	seen := make([]bool, n)
	var roots []Location
	for start := 0; start < n; start++ {
		if seen[start] {
			continue
		}
		roots = append(roots, Location(start))
		seen[start] = true
		queue := []Location{Location(start)}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			for _, nb := range b.adj[cur] {
				if !seen[nb] {
					seen[nb] = true
					queue = append(queue, nb)
				}
			}
		}
	}
	for _, r := range roots[1:] {
		if err := b.Connect(roots[0], r); err != nil {
			return err
		}
	}
	return nil
}
