package model

import (
	"fmt"
	"strings"
)

// ObjectiveKind selects the investment appraisal objective an agent uses to
// compare options. The set is closed: every appraisal switches over it
// directly rather than going through an interface.
type ObjectiveKind int

const (
	// ObjectiveLCOX minimises the levelised cost of the produced commodity.
	ObjectiveLCOX ObjectiveKind = iota
	// ObjectiveNPV maximises a net-present-value style profitability index.
	ObjectiveNPV
)

// String returns the objective name as used in scenario files.
func (o ObjectiveKind) String() string {
	switch o {
	case ObjectiveLCOX:
		return "lcox"
	case ObjectiveNPV:
		return "npv"
	default:
		return fmt.Sprintf("objective(%d)", int(o))
	}
}

// ParseObjectiveKind parses an objective name from scenario files.
func ParseObjectiveKind(s string) (ObjectiveKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "lcox", "levelised_cost":
		return ObjectiveLCOX, nil
	case "npv", "net_present_value":
		return ObjectiveNPV, nil
	default:
		return 0, fmt.Errorf("unknown appraisal objective %q", s)
	}
}

// Responsibility assigns an agent a fraction of a commodity's demand in a
// region and year. For every balanced commodity the fractions across all
// responsible agents must sum to 1 - validated when the model is loaded,
// assumed everywhere after.
type Responsibility struct {
	Commodity CommodityID
	Region    RegionID
	Year      int
	Fraction  float64
}

// Agent is an economic actor that owns assets and invests in new capacity
// for the commodities it is responsible for.
type Agent struct {
	ID             AgentID
	Objective      ObjectiveKind
	Processes      []ProcessID // search space restriction; empty = any process
	Responsibility []Responsibility
}

// Portion returns the agent's demand fraction for a commodity in a region
// and year (0 when not responsible).
func (a *Agent) Portion(c CommodityID, r RegionID, year int) float64 {
	for _, resp := range a.Responsibility {
		if resp.Commodity == c && resp.Region == r && resp.Year == year {
			return resp.Fraction
		}
	}
	return 0
}

// MayUse reports whether the process is inside the agent's search space.
func (a *Agent) MayUse(p ProcessID) bool {
	if len(a.Processes) == 0 {
		return true
	}
	for _, id := range a.Processes {
		if id == p {
			return true
		}
	}
	return false
}
