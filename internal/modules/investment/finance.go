package investment

import (
	"math"

	"github.com/meridian-energy/meridian/internal/modules/model"
)

// CapitalRecoveryFactor converts a capital sum into an equivalent annual
// payment over the asset lifetime at the given discount rate:
//
//	CRF(L, r) = r(1+r)^L / ((1+r)^L - 1)
//
// with CRF = 1/L when r = 0 and CRF = 0 when L = 0.
func CapitalRecoveryFactor(lifetime int, rate float64) float64 {
	if lifetime == 0 {
		return 0
	}
	if rate == 0 {
		return 1 / float64(lifetime)
	}
	f := math.Pow(1+rate, float64(lifetime))
	return rate * f / (f - 1)
}

// AnnualCapitalCost is the annualised capital cost per unit capacity. The
// recovery factor is applied twice: once to annualise the capital sum and
// once again to express it per unit of the annualised base.
func AnnualCapitalCost(p *model.Process) float64 {
	crf := CapitalRecoveryFactor(p.Lifetime, p.DiscountRate)
	return p.CapitalCost * crf * crf
}

// AnnualFixedCost is the yearly fixed cost per unit capacity of an asset
// under appraisal. Commissioned assets have already sunk their capital, so
// only candidates carry the capital term.
func AnnualFixedCost(a *model.Asset) float64 {
	cost := a.Process.FixedOperatingCost
	if a.State == model.StateCandidate {
		cost += AnnualCapitalCost(a.Process)
	}
	return cost
}
