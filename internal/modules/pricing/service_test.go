package pricing

import (
	"errors"
	"math"
	"testing"
)

func TestService_Estimate(t *testing.T) {
	tests := []struct {
		name      string
		premium   float64
		req       Request
		wantPrice float64
	}{
		{
			name:      "no detour falls back to direct cost",
			req:       Request{CurrentCost: 3, CandidateCost: 3, DirectCost: 1},
			wantPrice: 1,
		},
		{
			name:      "detour larger than direct trip",
			req:       Request{CurrentCost: 3, CandidateCost: 7, DirectCost: 2},
			wantPrice: 4,
		},
		{
			name:      "shorter candidate route still charges the absolute difference",
			req:       Request{CurrentCost: 9, CandidateCost: 4, DirectCost: 2},
			wantPrice: 5,
		},
		{
			name:      "premium is added on top",
			premium:   0.5,
			req:       Request{CurrentCost: 3, CandidateCost: 3, DirectCost: 1},
			wantPrice: 1.5,
		},
		{
			name:      "zero length rider trip",
			req:       Request{CurrentCost: 2, CandidateCost: 2, DirectCost: 0},
			wantPrice: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewService(tt.premium)
			got, err := s.Estimate(tt.req)
			if err != nil {
				t.Fatalf("Estimate() error = %v", err)
			}
			if got.Price != tt.wantPrice {
				t.Errorf("Estimate() = %v, want %v", got.Price, tt.wantPrice)
			}
			if got.Price < tt.req.DirectCost {
				t.Errorf("price %v below direct cost %v", got.Price, tt.req.DirectCost)
			}
		})
	}
}

func TestService_EstimateInfeasible(t *testing.T) {
	s := NewService(0)
	got, err := s.Estimate(Request{CurrentCost: 3, CandidateCost: math.Inf(1), DirectCost: 1})
	if !errors.Is(err, ErrInfeasible) {
		t.Fatalf("expected ErrInfeasible, got %v", err)
	}
	if !math.IsInf(got.Price, 1) {
		t.Fatalf("price = %v, want +Inf", got.Price)
	}
}

func TestNewServiceClampsNegativePremium(t *testing.T) {
	if p := NewService(-2).Premium(); p != 0 {
		t.Fatalf("premium = %v, want 0", p)
	}
}
