package investment

import (
	"fmt"

	"github.com/meridian-energy/meridian/internal/modules/model"
	"github.com/meridian-energy/meridian/internal/modules/timeslice"
)

// capacityEpsilon is the threshold below which a chosen or remaining
// capacity counts as zero.
const capacityEpsilon = 1e-9

// Option is one asset an agent may invest in (or keep using) during a
// tranche round. For candidates Budget tracks the capacity still available
// after earlier rounds consumed part of the sizing bound.
type Option struct {
	Asset  *model.Asset
	Budget float64
}

// AssembleOptions builds the option set for one (agent, commodity, region)
// investment pass: the agent's commissioned assets in the region that already
// produce the commodity, plus one synthesised candidate per process the agent
// may use. Order follows the pool and model process order.
func AssembleOptions(m *model.Model, pool *model.Pool, agent *model.Agent,
	commodity *model.Commodity, region model.RegionID, year int, demand SliceDemand) []*Option {

	var out []*Option
	for _, a := range pool.All() {
		if a.State != model.StateCommissioned || a.Owner != agent.ID || a.Region != region {
			continue
		}
		if !a.Process.Produces(commodity.ID) || !a.ActiveIn(year) {
			continue
		}
		out = append(out, &Option{Asset: a, Budget: a.Capacity})
	}

	for _, proc := range m.Processes {
		if !agent.MayUse(proc.ID) || !proc.InRegion(region) || !proc.Produces(commodity.ID) {
			continue
		}
		bound := CapacityBound(m.TimeSlices, proc, commodity, demand)
		if bound <= capacityEpsilon {
			continue
		}
		if f := m.Params.CapacityLimitFactor; f > 0 {
			bound *= f
		}
		out = append(out, &Option{
			Asset: &model.Asset{
				ID:             candidateID(agent.ID, proc.ID, region, year),
				Process:        proc,
				Region:         region,
				Capacity:       bound,
				CommissionYear: year,
				State:          model.StateCandidate,
			},
			Budget: bound,
		})
	}
	return out
}

// CapacityBound is the worst-case sizing heuristic for a candidate of the
// process: the largest capacity any single slice would require to cover its
// share of the demand on its own. Slices where the process cannot run (zero
// activity limit) are skipped; demand falling only on such slices cannot be
// served by this process and surfaces later as an exhausted-options failure.
func CapacityBound(h *timeslice.Hierarchy, proc *model.Process, commodity *model.Commodity, demand SliceDemand) float64 {
	coeff, ok := proc.FlowCoeff(commodity.ID)
	if !ok || coeff <= 0 {
		return 0
	}

	bound := 0.0
	for _, sel := range h.AtLevel(timeslice.Annual(), commodity.Level) {
		required := demand[sel]
		if required <= 0 {
			continue
		}
		selFraction := h.SelectionFraction(sel)
		for _, s := range h.Iter(sel) {
			limit := proc.ActivityLimit(h, s.ID)
			if limit <= 0 {
				continue
			}
			// The slice's proportional share of the selection demand.
			share := required * s.Fraction / selFraction
			if need := share / (coeff * limit); need > bound {
				bound = need
			}
		}
	}
	return bound
}

func candidateID(agent model.AgentID, proc model.ProcessID, region model.RegionID, year int) model.AssetID {
	return model.AssetID(fmt.Sprintf("%s/%s/%s/%d", agent, proc, region, year))
}
