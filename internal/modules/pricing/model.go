// README: Pricing request/result for marginal cost pricing of a pooled rider.
package pricing

// Request carries the three route costs a quote depends on.
type Request struct {
	// CurrentCost is the cost of the driver's committed route.
	CurrentCost float64
	// CandidateCost is the cost of the route with the new rider inserted.
	CandidateCost float64
	// DirectCost is what the rider would pay driving alone.
	DirectCost float64
}

type Result struct {
	Price     float64
	Breakdown map[string]float64
}

const (
	ComponentMarginal = "marginal"
	ComponentFloor    = "direct_floor"
	ComponentPremium  = "premium"
)
