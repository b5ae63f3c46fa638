package model

import (
	"fmt"
	"math"
	"strings"

	"github.com/meridian-energy/meridian/internal/modules/timeslice"
)

// responsibilityTolerance is the allowed deviation of agent responsibility
// fractions from 1 per (commodity, region, year).
const responsibilityTolerance = 1e-5

// PricingStrategy selects how commodity prices are derived from dispatch
// duals.
type PricingStrategy string

const (
	// PricingShadow uses the raw balance-constraint duals (plus levies).
	PricingShadow PricingStrategy = "shadow"
	// PricingScarcity additionally irons out price spikes caused by a
	// single asset's binding capacity limit.
	PricingScarcity PricingStrategy = "scarcity"
)

// ParsePricingStrategy parses a strategy name from scenario files.
func ParsePricingStrategy(s string) (PricingStrategy, error) {
	switch PricingStrategy(strings.ToLower(strings.TrimSpace(s))) {
	case PricingShadow, "":
		return PricingShadow, nil
	case PricingScarcity:
		return PricingScarcity, nil
	default:
		return "", fmt.Errorf("unknown pricing strategy %q", s)
	}
}

// Parameters are the model-wide simulation settings.
type Parameters struct {
	MilestoneYears       []int
	ValueOfLostLoad      float64
	CapacityLimitFactor  float64
	PriceTolerance       float64
	MaxIroningIterations int
	PricingStrategy      PricingStrategy
}

// Model is the validated, immutable input shared by every engine component.
// Commodity order is the model-defined precedence order the investment
// planner follows; agent and region order are likewise load-bearing for
// determinism.
type Model struct {
	Regions     []RegionID
	Commodities []*Commodity
	Processes   []*Process
	Agents      []*Agent
	TimeSlices  *timeslice.Hierarchy
	Demand      DemandMap
	Params      Parameters

	commodityByID map[CommodityID]*Commodity
	processByID   map[ProcessID]*Process
}

// Commodity looks up a commodity by ID.
func (m *Model) Commodity(id CommodityID) (*Commodity, bool) {
	c, ok := m.commodityByID[id]
	return c, ok
}

// Process looks up a process by ID.
func (m *Model) Process(id ProcessID) (*Process, bool) {
	p, ok := m.processByID[id]
	return p, ok
}

// Finalize builds lookup indexes and validates the cross-cutting invariants
// the engine assumes:
//
//   - every balanced commodity has demand coverage for every
//     (region, milestone year, selection) combination at its declared level
//     (supply-equals-demand commodities implicitly demand 0, so only
//     service-demand coverage is checked),
//   - agent responsibility fractions sum to 1 per (commodity, region, year)
//     for balanced commodities,
//   - every flow references a known commodity.
//
// The engine itself never re-checks these; a model that skips Finalize is a
// programming error.
func (m *Model) Finalize() error {
	if m.TimeSlices == nil {
		return fmt.Errorf("model has no time slice hierarchy")
	}
	if len(m.Regions) == 0 {
		return fmt.Errorf("model has no regions")
	}
	if len(m.Params.MilestoneYears) == 0 {
		return fmt.Errorf("model has no milestone years")
	}

	m.commodityByID = make(map[CommodityID]*Commodity, len(m.Commodities))
	for _, c := range m.Commodities {
		if _, dup := m.commodityByID[c.ID]; dup {
			return fmt.Errorf("duplicate commodity %q", c.ID)
		}
		m.commodityByID[c.ID] = c
	}

	m.processByID = make(map[ProcessID]*Process, len(m.Processes))
	for _, p := range m.Processes {
		if _, dup := m.processByID[p.ID]; dup {
			return fmt.Errorf("duplicate process %q", p.ID)
		}
		m.processByID[p.ID] = p
		for _, f := range p.Flows {
			if _, ok := m.commodityByID[f.Commodity]; !ok {
				return fmt.Errorf("process %q has a flow on unknown commodity %q", p.ID, f.Commodity)
			}
		}
	}

	for _, a := range m.Agents {
		for _, p := range a.Processes {
			if _, ok := m.processByID[p]; !ok {
				return fmt.Errorf("agent %q references unknown process %q", a.ID, p)
			}
		}
		for _, r := range a.Responsibility {
			if _, ok := m.commodityByID[r.Commodity]; !ok {
				return fmt.Errorf("agent %q is responsible for unknown commodity %q", a.ID, r.Commodity)
			}
		}
	}

	if err := m.validateDemandCoverage(); err != nil {
		return err
	}
	return m.validateResponsibility()
}

func (m *Model) validateDemandCoverage() error {
	for _, c := range m.Commodities {
		if c.Kind != KindServiceDemand {
			continue
		}
		for _, region := range m.Regions {
			for _, year := range m.Params.MilestoneYears {
				for _, sel := range m.TimeSlices.AtLevel(timeslice.Annual(), c.Level) {
					key := DemandKey{Commodity: c.ID, Region: region, Year: year, Slice: sel}
					if _, ok := m.Demand[key]; !ok {
						return fmt.Errorf("commodity %q has no demand for region %q, year %d, slice %q",
							c.ID, region, year, sel)
					}
				}
			}
		}
	}
	return nil
}

func (m *Model) validateResponsibility() error {
	for _, c := range m.Commodities {
		if !c.Balanced() {
			continue
		}
		// Only commodities somebody is responsible for need the sum check;
		// upstream commodities served purely by fold-back demand may have
		// no responsible agent until a process consumes them.
		for _, region := range m.Regions {
			for _, year := range m.Params.MilestoneYears {
				sum := 0.0
				seen := false
				for _, a := range m.Agents {
					if portion := a.Portion(c.ID, region, year); portion > 0 {
						seen = true
						sum += portion
					}
				}
				if seen && math.Abs(sum-1.0) > responsibilityTolerance {
					return fmt.Errorf("agent responsibility for commodity %q, region %q, year %d sums to %v, expected 1",
						c.ID, region, year, sum)
				}
			}
		}
	}
	return nil
}

// ResponsibleAgents returns, in model agent order, the agents with a positive
// demand portion for the commodity in the region and year.
func (m *Model) ResponsibleAgents(c CommodityID, r RegionID, year int) []*Agent {
	var out []*Agent
	for _, a := range m.Agents {
		if a.Portion(c, r, year) > 0 {
			out = append(out, a)
		}
	}
	return out
}
