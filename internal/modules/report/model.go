// README: Result notifications and the end-of-run summary.
package report

import (
	"context"
	"math"
	"time"

	"carpool/internal/modules/world"
	"carpool/internal/types"
)

type Status string

const (
	StatusDriving   Status = "driving"
	StatusPassenger Status = "passenger"
	StatusUnmatched Status = "unmatched"
	StatusFailed    Status = "failed"
)

// Result is the one notification every actor sends when it settles.
type Result struct {
	SimulationID string               `json:"simulation_id"`
	ActorID      types.ID             `json:"actor_id"`
	Role         types.Role           `json:"role"`
	Status       Status               `json:"status"`
	Trip         world.Intention      `json:"trip"`
	Route        []world.Location     `json:"route,omitempty"`
	RouteLength  float64              `json:"route_length"`
	RouteCost    float64              `json:"route_cost"`
	DirectCost   float64              `json:"direct_cost"`
	Prices       map[types.ID]float64 `json:"prices,omitempty"`
	Price        float64              `json:"price"`
	Income       float64              `json:"income"`
	DriverID     types.ID             `json:"driver_id,omitempty"`
	Attempts     int                  `json:"attempts"`
	ReportedAt   time.Time            `json:"reported_at"`
}

// Store persists results. Implementations must accept concurrent calls.
type Store interface {
	Save(ctx context.Context, r Result) error
	List(ctx context.Context, simulationID string) ([]Result, error)
}

type Summary struct {
	Drivers    int `json:"drivers"`
	Riders     int `json:"riders"`
	Driving    int `json:"driving"`
	Passengers int `json:"passengers"`
	Unmatched  int `json:"unmatched"`
	Failed     int `json:"failed"`
	// BaselineCost is the total cost if every actor travelled alone.
	BaselineCost float64 `json:"baseline_cost"`
	// ResultingCost counts the routes actually driven plus the direct trips
	// of everyone left without a ride.
	ResultingCost float64 `json:"resulting_cost"`
	Savings       float64 `json:"savings"`
	TotalIncome   float64 `json:"total_income"`
}

func Summarize(results []Result) Summary {
	var s Summary
	for _, r := range results {
		switch r.Role {
		case types.RoleDriver:
			s.Drivers++
		case types.RoleRider:
			s.Riders++
		}
		s.BaselineCost += r.DirectCost
		switch r.Status {
		case StatusDriving:
			s.Driving++
			s.ResultingCost += r.RouteCost
			s.TotalIncome += r.Income
		case StatusPassenger:
			s.Passengers++
		case StatusUnmatched:
			s.Unmatched++
			s.ResultingCost += r.DirectCost
		case StatusFailed:
			s.Failed++
			s.ResultingCost += r.DirectCost
		}
	}
	s.Savings = s.BaselineCost - s.ResultingCost
	return s
}

// sanitize replaces non-finite numbers, which JSON and SQL cannot carry, with 0.
func sanitize(r Result) Result {
	r.RouteLength = finite(r.RouteLength)
	r.RouteCost = finite(r.RouteCost)
	r.DirectCost = finite(r.DirectCost)
	r.Price = finite(r.Price)
	r.Income = finite(r.Income)
	if r.Prices != nil {
		cp := make(map[types.ID]float64, len(r.Prices))
		for k, v := range r.Prices {
			cp[k] = finite(v)
		}
		r.Prices = cp
	}
	return r
}

func finite(v float64) float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return 0
	}
	return v
}
