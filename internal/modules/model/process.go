package model

import (
	"math"

	"github.com/meridian-energy/meridian/internal/modules/timeslice"
)

// Flow links a process to a commodity: the signed coefficient is the amount
// of the commodity consumed (negative) or produced (positive) per unit of
// activity, and Cost is an optional per-unit-flow cost.
type Flow struct {
	Commodity CommodityID
	Coeff     float64
	Cost      float64
}

// Process is a production or conversion technology. An Asset is an instance
// of a Process operating in one region with a concrete capacity.
type Process struct {
	ID      ProcessID
	Regions []RegionID // regions the process may operate in; empty = all
	Flows   []Flow

	// Availability is the fraction of nameplate capacity usable in each
	// time slice. Slices absent from the map default to 1.
	Availability map[timeslice.ID]float64

	CapitalCost           float64 // per unit capacity
	FixedOperatingCost    float64 // per unit capacity per year
	VariableOperatingCost float64 // per unit activity
	Lifetime              int     // years
	DiscountRate          float64
}

// FlowCoeff returns the signed flow coefficient for a commodity.
func (p *Process) FlowCoeff(c CommodityID) (float64, bool) {
	for _, f := range p.Flows {
		if f.Commodity == c {
			return f.Coeff, true
		}
	}
	return 0, false
}

// Produces reports whether the process has a positive output flow on the
// commodity.
func (p *Process) Produces(c CommodityID) bool {
	coeff, ok := p.FlowCoeff(c)
	return ok && coeff > 0
}

// InRegion reports whether the process may operate in the region.
func (p *Process) InRegion(r RegionID) bool {
	if len(p.Regions) == 0 {
		return true
	}
	for _, region := range p.Regions {
		if region == r {
			return true
		}
	}
	return false
}

// AvailabilityIn returns the availability fraction for a slice (1 when not
// declared).
func (p *Process) AvailabilityIn(id timeslice.ID) float64 {
	if p.Availability == nil {
		return 1
	}
	if v, ok := p.Availability[id]; ok {
		return v
	}
	return 1
}

// ActivityLimit is the maximum activity per unit capacity in a slice:
// availability fraction times the slice's share of the year. A zero limit
// means the process cannot run in that slice at all.
func (p *Process) ActivityLimit(h *timeslice.Hierarchy, id timeslice.ID) float64 {
	return p.AvailabilityIn(id) * h.Fraction(id)
}

// OperatingCost is the per-unit-activity operating cost: the variable cost
// plus the per-unit costs of every flow scaled by its magnitude.
func (p *Process) OperatingCost() float64 {
	cost := p.VariableOperatingCost
	for _, f := range p.Flows {
		cost += f.Cost * math.Abs(f.Coeff)
	}
	return cost
}
