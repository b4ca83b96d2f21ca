// README: Pricing service computes the fair price for adding one rider to a route.
package pricing

import (
	"errors"
	"math"
)

var ErrInfeasible = errors.New("pricing: infeasible route")

type Service struct {
	premium float64
}

// NewService returns a pricer that adds premium to every quote. A positive
// premium biases drivers toward strictly profitable riders.
func NewService(premium float64) *Service {
	if premium < 0 {
		premium = 0
	}
	return &Service{premium: premium}
}

func (s *Service) Premium() float64 { return s.premium }

// Estimate charges the larger of the detour the rider imposes on the driver
// and the rider's own direct trip, plus the premium.
func (s *Service) Estimate(req Request) (Result, error) {
	if math.IsInf(req.CandidateCost, 0) || math.IsInf(req.DirectCost, 0) ||
		math.IsNaN(req.CandidateCost) || math.IsNaN(req.DirectCost) {
		return Result{Price: math.Inf(1)}, ErrInfeasible
	}
	marginal := math.Abs(req.CurrentCost - req.CandidateCost)
	price := math.Max(marginal, req.DirectCost) + s.premium
	return Result{
		Price: price,
		Breakdown: map[string]float64{
			ComponentMarginal: marginal,
			ComponentFloor:    req.DirectCost,
			ComponentPremium:  s.premium,
		},
	}, nil
}
