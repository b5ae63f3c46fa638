// Package model holds the immutable input model for a simulation run -
// regions, commodities, processes, agents - plus the mutable per-run asset
// pool and demand map. The model is read-only once validated; every engine
// component shares it by reference.
package model

import (
	"fmt"
	"strings"

	"github.com/meridian-energy/meridian/internal/modules/timeslice"
)

// RegionID identifies a model region.
type RegionID string

// CommodityID identifies a commodity.
type CommodityID string

// ProcessID identifies a production or conversion process.
type ProcessID string

// AgentID identifies an economic agent.
type AgentID string

// BalanceKind describes how a commodity's supply and demand are constrained.
type BalanceKind int

const (
	// KindSupplyEqualsDemand commodities must balance to zero net flow.
	KindSupplyEqualsDemand BalanceKind = iota
	// KindServiceDemand commodities must meet an exogenous demand level.
	KindServiceDemand
	// KindInputOutput commodities are pure inputs/outputs with no balance row.
	KindInputOutput
)

// String returns the kind name as used in scenario files.
func (k BalanceKind) String() string {
	switch k {
	case KindSupplyEqualsDemand:
		return "sed"
	case KindServiceDemand:
		return "svd"
	case KindInputOutput:
		return "other"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseBalanceKind parses a balance kind from scenario files.
func ParseBalanceKind(s string) (BalanceKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sed", "supply_equals_demand":
		return KindSupplyEqualsDemand, nil
	case "svd", "service_demand":
		return KindServiceDemand, nil
	case "other", "input_output":
		return KindInputOutput, nil
	default:
		return 0, fmt.Errorf("unknown balance kind %q", s)
	}
}

// Levy is an exogenous per-unit charge applied to a commodity's price in a
// region, year and time-slice selection.
type Levy struct {
	Region RegionID
	Year   int
	Slice  timeslice.Selection
	Value  float64
}

// Commodity is identified by ID and carries a balance kind plus the time
// slice level at which its demand and balance constraints must hold.
type Commodity struct {
	ID     CommodityID
	Kind   BalanceKind
	Level  timeslice.Level
	Levies []Levy
}

// Balanced reports whether the commodity gets a balance constraint in the
// dispatch optimisation.
func (c *Commodity) Balanced() bool {
	return c.Kind == KindSupplyEqualsDemand || c.Kind == KindServiceDemand
}

// LevyValue sums the levies applicable to a (region, year, slice) price key.
func (c *Commodity) LevyValue(region RegionID, year int, id timeslice.ID) float64 {
	total := 0.0
	for _, levy := range c.Levies {
		if levy.Region == region && levy.Year == year && levy.Slice.Contains(id) {
			total += levy.Value
		}
	}
	return total
}
