// Package investment implements the agent investment planner: for each
// region and commodity in the model's precedence order it apportions demand
// across responsible agents, appraises candidate and existing assets against
// the unmet remainder, and promotes the cheapest options into the asset pool
// until demand is covered.
package investment

import (
	"fmt"
	"math"

	"github.com/meridian-energy/meridian/internal/modules/dispatch"
	"github.com/meridian-energy/meridian/internal/modules/model"
	"github.com/meridian-energy/meridian/internal/modules/timeslice"
)

// SliceDemand holds one agent's remaining demand for a commodity, keyed by
// time-slice selection at the commodity's declared level. Values may go
// negative transiently while an asset's contribution is subtracted; readers
// floor at zero.
type SliceDemand map[timeslice.Selection]float64

// Clone returns a copy that can be mutated without touching the original.
func (d SliceDemand) Clone() SliceDemand {
	out := make(SliceDemand, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Total sums the demand over all selections, flooring each at zero.
func (d SliceDemand) Total() float64 {
	total := 0.0
	for _, v := range d {
		if v > 0 {
			total += v
		}
	}
	return total
}

// Positive reports whether any selection still has strictly positive demand.
func (d SliceDemand) Positive() bool {
	for _, v := range d {
		if v > 0 {
			return true
		}
	}
	return false
}

// ReducedCosts carry the marginal operating surplus or deficit per unit
// activity of an asset in a time slice. They feed the appraisal objective as
// the activity cost coefficient, standing in for a full dispatch re-solve.
type ReducedCosts map[dispatch.ActivityKey]float64

// Value returns the reduced cost for a key, falling back to the asset's
// operating cost when no dispatch signal exists for it yet.
func (r ReducedCosts) Value(a *model.Asset, s timeslice.ID) float64 {
	if v, ok := r[dispatch.ActivityKey{Asset: a.ID, Slice: s}]; ok {
		return v
	}
	return a.Process.OperatingCost()
}

// Appraisal is the outcome of appraising one asset against a demand profile.
type Appraisal struct {
	Asset    *model.Asset
	Capacity float64
	Activity map[timeslice.ID]float64
	Output   SliceDemand
	Unmet    SliceDemand
	Metric   float64
}

// Appraise solves the per-asset sizing problem: how much of the given demand
// the asset would serve, at what capacity, and at what comparison metric.
// Candidates size a free capacity variable up to budget; Commissioned assets
// appraise at their installed capacity. The metric is ordered so that lower
// is always better regardless of objective.
func Appraise(m *model.Model, asset *model.Asset, commodity *model.Commodity,
	objective model.ObjectiveKind, budget float64, demand SliceDemand, rc ReducedCosts) (*Appraisal, error) {

	h := m.TimeSlices
	coeff, ok := asset.Process.FlowCoeff(commodity.ID)
	if !ok || coeff <= 0 {
		return nil, fmt.Errorf("asset %q does not produce commodity %q", asset.ID, commodity.ID)
	}

	// Both objectives minimise fixed cost plus reduced cost of activity; the
	// NPV mode maximises surplus, which under a minimising solver means the
	// same coefficients with the lost-load penalty dropped. Its objective
	// value is then the negated surplus.
	fixed := AnnualFixedCost(asset)
	capCost, unmetCost := fixed, m.Params.ValueOfLostLoad
	if objective == model.ObjectiveNPV {
		unmetCost = 0
	}

	prog := dispatch.NewProgram()

	// Capacity: a bounded variable for candidates, a constant otherwise.
	capCol := -1
	if asset.State == model.StateCandidate {
		capCol = prog.Column(capCost)
		row := prog.Row(budget)
		prog.Add(row, capCol, 1)
		prog.Add(row, prog.Column(0), 1)
	}

	// One activity variable per slice the asset can run in.
	actCols := make(map[timeslice.ID]int)
	for _, s := range h.Slices() {
		limit := asset.Process.ActivityLimit(h, s.ID)
		if limit <= 0 {
			continue
		}
		col := prog.Column(rc.Value(asset, s.ID))
		actCols[s.ID] = col

		if capCol >= 0 {
			// activity <= limit x capacity, capacity free.
			row := prog.Row(0)
			prog.Add(row, col, 1)
			prog.Add(row, capCol, -limit)
			prog.Add(row, prog.Column(0), 1)
		} else {
			row := prog.Row(limit * asset.Capacity)
			prog.Add(row, col, 1)
			prog.Add(row, prog.Column(0), 1)
		}
	}

	// Demand rows tie output to the profile, one per selection at the
	// commodity's level, with an unmet slack so shortfall is priced rather
	// than infeasible.
	unmetCols := make(map[timeslice.Selection]int)
	for _, sel := range h.AtLevel(timeslice.Annual(), commodity.Level) {
		required := demand[sel]
		if required < 0 {
			required = 0
		}
		row := prog.Row(required)
		for _, s := range h.Iter(sel) {
			if col, ok := actCols[s.ID]; ok {
				prog.Add(row, col, coeff)
			}
		}
		col := prog.Column(unmetCost)
		prog.Add(row, col, 1)
		unmetCols[sel] = col
	}

	sol, err := prog.Solve()
	if err != nil {
		return nil, fmt.Errorf("appraising asset %q for commodity %q: %w", asset.ID, commodity.ID, err)
	}

	out := &Appraisal{
		Asset:    asset,
		Capacity: asset.Capacity,
		Activity: make(map[timeslice.ID]float64, len(actCols)),
		Output:   make(SliceDemand),
		Unmet:    make(SliceDemand, len(unmetCols)),
	}
	if capCol >= 0 {
		out.Capacity = sol.X[capCol]
	}
	for _, sel := range h.AtLevel(timeslice.Annual(), commodity.Level) {
		out.Unmet[sel] = sol.X[unmetCols[sel]]
		produced := 0.0
		for _, s := range h.Iter(sel) {
			col, ok := actCols[s.ID]
			if !ok {
				continue
			}
			act := sol.X[col]
			out.Activity[s.ID] = act
			produced += act * coeff
		}
		out.Output[sel] = produced
	}

	out.Metric = metric(objective, sol.Objective, fixed, out)
	return out, nil
}

// metric maps the LP objective value onto the comparison scale. LCOX is cost
// per unit of useful output including the lost-load penalty; NPV is the
// negated profitability index (annualised surplus over annualised fixed
// cost). Both are minimised.
func metric(objective model.ObjectiveKind, lpObjective, fixed float64, a *Appraisal) float64 {
	totalOutput := 0.0
	for _, v := range a.Output {
		totalOutput += v
	}

	switch objective {
	case model.ObjectiveNPV:
		base := fixed * a.Capacity
		if base <= 0 || totalOutput <= 0 {
			return math.Inf(1)
		}
		// The NPV program minimises the negated surplus, so the surplus
		// itself is -objective; negate the index so lower stays better.
		surplus := -lpObjective
		return -surplus / base
	default:
		if totalOutput <= 0 {
			return math.Inf(1)
		}
		return lpObjective / totalOutput
	}
}
