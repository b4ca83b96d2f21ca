// README: Scenario loading (YAML) and resolution into a world plus actor trips.
package simulation

import (
	"fmt"
	"math/rand"
	"os"

	"gopkg.in/yaml.v3"

	"carpool/internal/config"
	"carpool/internal/modules/world"
	"carpool/internal/types"
)

// DefaultScenario is the default city with ten drivers and ten riders.
func DefaultScenario() Scenario {
	return Scenario{
		Name:        "default",
		Seed:        1,
		World:       world.DefaultGenerateParams(),
		Drivers:     10,
		Riders:      10,
		Negotiation: config.DefaultNegotiation(),
	}
}

// LoadScenario reads a YAML scenario file.
func LoadScenario(path string) (Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, fmt.Errorf("read scenario: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes YAML (or JSON) over DefaultScenario, so a document
// only names what it overrides. Durations are written like "250ms".
func ParseScenario(data []byte) (Scenario, error) {
	return DecodeScenario(data, DefaultScenario())
}

// DecodeScenario is ParseScenario over caller-supplied defaults.
func DecodeScenario(data []byte, base Scenario) (Scenario, error) {
	s := base
	s.DriverTrips = append([]world.Intention(nil), base.DriverTrips...)
	s.RiderTrips = append([]world.Intention(nil), base.RiderTrips...)
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Scenario{}, fmt.Errorf("%w: %v", ErrBadScenario, err)
	}
	if err := s.Validate(); err != nil {
		return Scenario{}, err
	}
	return s, nil
}

// Validate checks counts and limits. World shape errors surface from Build.
func (s Scenario) Validate() error {
	if s.Drivers < 0 || s.Riders < 0 {
		return fmt.Errorf("%w: negative actor count", ErrBadScenario)
	}
	if s.Drivers > MaxActors || s.Riders > MaxActors || s.Drivers+s.Riders > MaxActors {
		return fmt.Errorf("%w: %d actors exceed the limit of %d", ErrBadScenario, s.Drivers+s.Riders, MaxActors)
	}
	if s.World.Nodes > MaxNodes {
		return fmt.Errorf("%w: %d locations exceed the limit of %d", ErrBadScenario, s.World.Nodes, MaxNodes)
	}
	if s.World.Center > MaxCenter {
		return fmt.Errorf("%w: center of %d exceeds the limit of %d", ErrBadScenario, s.World.Center, MaxCenter)
	}
	if len(s.DriverTrips) > s.Drivers || len(s.RiderTrips) > s.Riders {
		return fmt.Errorf("%w: more explicit trips than actors", ErrBadScenario)
	}
	if err := s.Negotiation.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrBadScenario, err)
	}
	return nil
}

// Build generates the world and assigns every actor a trip and a seed.
func (s Scenario) Build() (*Setup, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	g, err := world.Generate(s.World)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadScenario, err)
	}
	for _, t := range append(append([]world.Intention(nil), s.DriverTrips...), s.RiderTrips...) {
		if !g.Has(t.Origin) || !g.Has(t.Destination) {
			return nil, fmt.Errorf("%w: trip %d->%d outside a world of %d locations", ErrBadScenario, t.Origin, t.Destination, g.Len())
		}
	}

	rng := rand.New(rand.NewSource(s.Seed))
	setup := &Setup{Scenario: s, Graph: g}
	for i := 0; i < s.Drivers; i++ {
		setup.Drivers = append(setup.Drivers, Actor{
			ID:   types.DriverID(i),
			Role: types.RoleDriver,
			Trip: pickTrip(s.DriverTrips, i, g.Len(), rng),
			Seed: rng.Int63(),
		})
	}
	for i := 0; i < s.Riders; i++ {
		setup.Riders = append(setup.Riders, Actor{
			ID:   types.RiderID(i),
			Role: types.RoleRider,
			Trip: pickTrip(s.RiderTrips, i, g.Len(), rng),
			Seed: rng.Int63(),
		})
	}
	return setup, nil
}

// pickTrip returns the i-th explicit trip, or a random one with distinct ends.
func pickTrip(explicit []world.Intention, i, n int, rng *rand.Rand) world.Intention {
	if i < len(explicit) {
		return explicit[i]
	}
	if n < 2 {
		return world.Intention{}
	}
	from := rng.Intn(n)
	to := rng.Intn(n - 1)
	if to >= from {
		to++
	}
	return world.Intention{Origin: world.Location(from), Destination: world.Location(to)}
}
