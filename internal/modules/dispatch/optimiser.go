// Package dispatch formulates and solves the dispatch linear program: given
// a fixed set of assets and a year, choose each asset's activity level in
// each time slice to minimise total operating cost subject to commodity
// balance and capacity/availability constraints. The dual values of the
// balance constraints become commodity prices; the duals of candidate
// capacity constraints become reduced costs for investment appraisal.
package dispatch

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/meridian-energy/meridian/internal/modules/model"
	"github.com/meridian-energy/meridian/internal/modules/timeslice"
)

// BalanceKey addresses one commodity balance constraint.
type BalanceKey struct {
	Commodity model.CommodityID
	Region    model.RegionID
	Slice     timeslice.Selection
}

// ActivityKey addresses one asset's activity in one time slice.
type ActivityKey struct {
	Asset model.AssetID
	Slice timeslice.ID
}

// FlowKey addresses one asset's flow on one commodity in one time slice.
type FlowKey struct {
	Asset     model.AssetID
	Commodity model.CommodityID
	Slice     timeslice.ID
}

// Request describes one dispatch solve.
type Request struct {
	Model  *model.Model
	Assets []*model.Asset // insertion order; may include candidates
	Year   int
	Demand model.DemandMap

	// Commodities restricts which commodities receive balance constraints
	// ("subset" mode). Nil means every balanced commodity. Upstream
	// commodities left out of the subset are priced exogenously by the
	// planner instead.
	Commodities []model.CommodityID

	// AllowUnmet adds unmet-demand slack variables priced at the value of
	// lost load, so shortfalls surface as expensive slack instead of
	// infeasibility.
	AllowUnmet bool
}

// Solution is the result of a dispatch solve.
type Solution struct {
	Objective     float64
	Activity      map[ActivityKey]float64
	Flows         map[FlowKey]float64
	Unmet         map[BalanceKey]float64
	BalanceDuals  map[BalanceKey]float64
	CapacityDuals map[ActivityKey]float64
}

// Optimiser builds and solves dispatch programs.
type Optimiser struct {
	log zerolog.Logger
}

// NewOptimiser creates a dispatch optimiser.
func NewOptimiser(log zerolog.Logger) *Optimiser {
	return &Optimiser{log: log.With().Str("component", "dispatch").Logger()}
}

// Solve formulates the dispatch LP for the request and solves it. The
// program is either optimal or the solve fails with ErrInfeasible - there is
// no silent partial result.
func (o *Optimiser) Solve(req Request) (*Solution, error) {
	m := req.Model
	h := m.TimeSlices

	prog := NewProgram()

	// Activity variable per (asset, slice), objective = operating cost.
	activityCols := make(map[ActivityKey]int)
	capacityRows := make(map[ActivityKey]int)
	for _, asset := range req.Assets {
		for _, s := range h.Slices() {
			key := ActivityKey{Asset: asset.ID, Slice: s.ID}
			col := prog.Column(asset.Process.OperatingCost())
			activityCols[key] = col

			// Capacity/availability bound: activity + slack = cap x
			// availability x slice length.
			row := prog.Row(asset.MaxActivity(h, s.ID))
			prog.Add(row, col, 1)
			prog.Add(row, prog.Column(0), 1)
			capacityRows[key] = row
		}
	}

	// Commodity balance rows, in model precedence order.
	balanceRows := make(map[BalanceKey]int)
	unmetCols := make(map[BalanceKey]int)
	var balanceOrder []BalanceKey
	for _, c := range m.Commodities {
		if !c.Balanced() || !o.inScope(req.Commodities, c.ID) {
			continue
		}
		for _, region := range m.Regions {
			for _, sel := range h.AtLevel(timeslice.Annual(), c.Level) {
				key := BalanceKey{Commodity: c.ID, Region: region, Slice: sel}

				required := 0.0
				if c.Kind == model.KindServiceDemand {
					required = req.Demand.Value(model.DemandKey{
						Commodity: c.ID, Region: region, Year: req.Year, Slice: sel,
					})
				}

				touched := false
				for _, asset := range req.Assets {
					if asset.Region == region {
						if _, ok := asset.Process.FlowCoeff(c.ID); ok {
							touched = true
							break
						}
					}
				}

				// An all-zero row would make the constraint matrix rank
				// deficient; a zero-demand balance nobody touches is
				// trivially satisfied, so leave it out.
				if !touched && !req.AllowUnmet {
					if required != 0 {
						return nil, fmt.Errorf("%w: commodity %q, region %q, year %d, slice %q has demand %v and no producing asset",
							ErrInfeasible, c.ID, region, req.Year, sel, required)
					}
					continue
				}

				row := prog.Row(required)
				for _, asset := range req.Assets {
					if asset.Region != region {
						continue
					}
					coeff, ok := asset.Process.FlowCoeff(c.ID)
					if !ok {
						continue
					}
					for _, s := range h.Iter(sel) {
						prog.Add(row, activityCols[ActivityKey{Asset: asset.ID, Slice: s.ID}], coeff)
					}
				}

				if req.AllowUnmet {
					col := prog.Column(m.Params.ValueOfLostLoad)
					prog.Add(row, col, 1)
					unmetCols[key] = col
				}

				balanceRows[key] = row
				balanceOrder = append(balanceOrder, key)
			}
		}
	}

	sol, err := prog.Solve()
	if err != nil {
		return nil, fmt.Errorf("dispatch for year %d: %w", req.Year, err)
	}

	out := &Solution{
		Objective:     sol.Objective,
		Activity:      make(map[ActivityKey]float64, len(activityCols)),
		Flows:         make(map[FlowKey]float64),
		Unmet:         make(map[BalanceKey]float64),
		BalanceDuals:  make(map[BalanceKey]float64, len(balanceRows)),
		CapacityDuals: make(map[ActivityKey]float64, len(capacityRows)),
	}

	for _, asset := range req.Assets {
		for _, s := range h.Slices() {
			key := ActivityKey{Asset: asset.ID, Slice: s.ID}
			act := sol.X[activityCols[key]]
			out.Activity[key] = act
			out.CapacityDuals[key] = sol.Duals[capacityRows[key]]
			for _, f := range asset.Process.Flows {
				out.Flows[FlowKey{Asset: asset.ID, Commodity: f.Commodity, Slice: s.ID}] = act * f.Coeff
			}
		}
	}

	totalUnmet := 0.0
	for _, key := range balanceOrder {
		out.BalanceDuals[key] = sol.Duals[balanceRows[key]]
		if col, ok := unmetCols[key]; ok {
			v := sol.X[col]
			out.Unmet[key] = v
			totalUnmet += v
		}
	}

	o.log.Debug().
		Int("year", req.Year).
		Int("assets", len(req.Assets)).
		Int("balance_rows", len(balanceOrder)).
		Float64("objective", out.Objective).
		Float64("unmet", totalUnmet).
		Msg("Dispatch solved")

	return out, nil
}

func (o *Optimiser) inScope(subset []model.CommodityID, id model.CommodityID) bool {
	if subset == nil {
		return true
	}
	for _, c := range subset {
		if c == id {
			return true
		}
	}
	return false
}
