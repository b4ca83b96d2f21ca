// README: Simulation model: YAML scenarios, the built world and run bookkeeping.
package simulation

import (
	"errors"
	"time"

	"carpool/internal/config"
	"carpool/internal/modules/report"
	"carpool/internal/modules/world"
	"carpool/internal/types"
)

var (
	ErrNotFound    = errors.New("simulation not found")
	ErrBadScenario = errors.New("invalid scenario")
)

// Bounds on what one scenario may ask for. The center is a complete graph and
// every location keeps a BFS tree, so memory grows with the square of both.
const (
	MaxNodes  = 5000
	MaxCenter = 200
	MaxActors = 2000
)

// Scenario describes one run. Explicit trips are used first; the remaining
// actors up to Drivers and Riders get seeded random trips.
type Scenario struct {
	Name        string                   `yaml:"name" json:"name"`
	Seed        int64                    `yaml:"seed" json:"seed"`
	World       world.GenerateParams     `yaml:"world" json:"world"`
	Drivers     int                      `yaml:"drivers" json:"drivers"`
	Riders      int                      `yaml:"riders" json:"riders"`
	DriverTrips []world.Intention        `yaml:"driver_trips" json:"driver_trips,omitempty"`
	RiderTrips  []world.Intention        `yaml:"rider_trips" json:"rider_trips,omitempty"`
	Negotiation config.NegotiationConfig `yaml:"negotiation" json:"negotiation"`
}

// Actor is one participant of a built scenario.
type Actor struct {
	ID   types.ID
	Role types.Role
	Trip world.Intention
	Seed int64
}

// Setup is a scenario resolved against a concrete world.
type Setup struct {
	Scenario Scenario
	Graph    *world.Graph
	Drivers  []Actor
	Riders   []Actor
}

func (s *Setup) Actors() int { return len(s.Drivers) + len(s.Riders) }

type Status string

const (
	StatusRunning  Status = "running"
	StatusFinished Status = "finished"
	StatusFailed   Status = "failed"
)

// Simulation is the externally visible state of a run.
type Simulation struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Status     Status         `json:"status"`
	Drivers    int            `json:"drivers"`
	Riders     int            `json:"riders"`
	Locations  int            `json:"locations"`
	Reported   int            `json:"reported"`
	Summary    report.Summary `json:"summary"`
	Error      string         `json:"error,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
}
