package investment

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/rs/zerolog"

	"github.com/meridian-energy/meridian/internal/modules/dispatch"
	"github.com/meridian-energy/meridian/internal/modules/model"
	"github.com/meridian-energy/meridian/internal/modules/pricing"
	"github.com/meridian-energy/meridian/internal/modules/timeslice"
)

// jitterScale bounds the placeholder cost signal used for flows whose
// commodity has no price yet. It only breaks ties between otherwise
// identical options, so it stays far below any real cost coefficient.
const jitterScale = 1e-6

// ErrNoOptions is returned when an agent still has unmet demand but no
// remaining investment option can serve it. It marks a modelling gap (no
// available technology), not a numerical failure.
var ErrNoOptions = errors.New("no investment options remain for unmet demand")

// Planner runs the per-year investment pass: apportion demand to agents,
// appraise options, promote selections into the pool and re-dispatch after
// each commodity so downstream commodities see real flows and prices.
type Planner struct {
	log       zerolog.Logger
	optimiser *dispatch.Optimiser
	pricing   *pricing.Engine
	rng       *rand.Rand
}

// NewPlanner creates an investment planner. The random source seeds the
// placeholder cost signal for unpriced flows; pass a fixed seed for
// reproducible runs.
func NewPlanner(log zerolog.Logger, optimiser *dispatch.Optimiser, pricingEngine *pricing.Engine, rng *rand.Rand) *Planner {
	return &Planner{
		log:       log.With().Str("component", "investment").Logger(),
		optimiser: optimiser,
		pricing:   pricingEngine,
		rng:       rng,
	}
}

// Outcome is the result of one planned year.
type Outcome struct {
	Prices   pricing.Prices
	Solution *dispatch.Solution
	Selected []model.AssetID
}

// PlanYear processes every balanced commodity in model precedence order for
// one milestone year, mutating the pool as agents select new assets.
// Carried holds prices from the previous milestone year, used for
// commodities not yet dispatched this year; nil is an empty map.
func (p *Planner) PlanYear(m *model.Model, pool *model.Pool, year int, carried pricing.Prices) (*Outcome, error) {
	demand := m.Demand.Clone()
	prices := carried.Clone()

	out := &Outcome{}
	var solved []model.CommodityID
	var lastSol *dispatch.Solution

	for _, c := range m.Commodities {
		if !c.Balanced() {
			continue
		}
		for _, region := range m.Regions {
			for _, agent := range m.ResponsibleAgents(c.ID, region, year) {
				selected, err := p.planAgent(m, pool, agent, c, region, year, demand, prices, lastSol)
				if err != nil {
					return nil, fmt.Errorf("planning commodity %q, region %q, agent %q, year %d: %w",
						c.ID, region, agent.ID, year, err)
				}
				out.Selected = append(out.Selected, selected...)
			}
		}

		solved = append(solved, c.ID)
		sol, err := p.optimiser.Solve(dispatch.Request{
			Model:       m,
			Assets:      pool.ActiveIn(year),
			Year:        year,
			Demand:      demand,
			Commodities: solved,
			AllowUnmet:  true,
		})
		if err != nil {
			return nil, err
		}
		lastSol = sol

		for k, v := range p.pricing.Derive(m, sol, pool.ActiveIn(year), year) {
			prices[k] = v
		}
		p.foldBackInputs(m, pool, sol, c.ID, year, demand)
	}

	out.Solution = lastSol
	out.Prices = p.pricing.FillMissing(prices, m, year)
	return out, nil
}

// planAgent covers one agent's share of a commodity's demand through the
// tranche loop, promoting chosen candidates into the pool. It returns the
// IDs of the assets selected.
func (p *Planner) planAgent(m *model.Model, pool *model.Pool, agent *model.Agent,
	c *model.Commodity, region model.RegionID, year int,
	demand model.DemandMap, prices pricing.Prices, sol *dispatch.Solution) ([]model.AssetID, error) {

	portion := agent.Portion(c.ID, region, year)
	unmet := make(SliceDemand)
	for _, sel := range m.TimeSlices.AtLevel(timeslice.Annual(), c.Level) {
		unmet[sel] = portion * demand.Value(model.DemandKey{
			Commodity: c.ID, Region: region, Year: year, Slice: sel,
		})
	}
	if !unmet.Positive() {
		return nil, nil
	}

	options := AssembleOptions(m, pool, agent, c, region, year, unmet)
	rc := p.reducedCosts(m, options, region, sol, prices)

	chosen := make(map[model.AssetID]float64)
	chosenAssets := make(map[model.AssetID]*model.Asset)
	var chosenOrder []model.AssetID

	for round := 0; unmet.Positive(); round++ {
		best, err := p.bestOption(m, agent, c, options, unmet, rc)
		if errors.Is(err, ErrNoOptions) {
			return nil, fmt.Errorf("%w: commodity %q, region %q, agent %q after %d rounds (%v demand left)",
				ErrNoOptions, c.ID, region, agent.ID, round, unmet.Total())
		}
		if err != nil {
			return nil, err
		}

		// Repeat selections of the same candidate accumulate capacity on
		// one asset instead of duplicating it.
		if best.Option.Asset.State == model.StateCandidate {
			id := best.Option.Asset.ID
			if _, seen := chosen[id]; !seen {
				chosenOrder = append(chosenOrder, id)
				chosenAssets[id] = best.Option.Asset
			}
			chosen[id] += best.Capacity
			best.Option.Budget -= best.Capacity
		}
		options = p.prune(options, best.Option)

		for sel, produced := range best.Output {
			unmet[sel] -= produced
		}

		p.log.Debug().
			Str("agent", string(agent.ID)).
			Str("commodity", string(c.ID)).
			Str("asset", string(best.Option.Asset.ID)).
			Int("round", round).
			Float64("capacity", best.Capacity).
			Float64("metric", best.Metric).
			Msg("Tranche option selected")
	}

	var selected []model.AssetID
	for _, id := range chosenOrder {
		if err := pool.Add(chosenAssets[id]); err != nil {
			return nil, err
		}
		if err := pool.Promote(id, agent.ID, chosen[id]); err != nil {
			return nil, err
		}
		selected = append(selected, id)
	}
	return selected, nil
}

// appraised pairs an option with its latest appraisal.
type appraised struct {
	Option *Option
	*Appraisal
}

// bestOption appraises every remaining option against the unmet demand and
// returns the one with the lowest metric, dropping options whose optimal
// capacity or output is zero. First-seen order breaks metric ties.
func (p *Planner) bestOption(m *model.Model, agent *model.Agent, c *model.Commodity,
	options []*Option, unmet SliceDemand, rc ReducedCosts) (*appraised, error) {

	var best *appraised
	for _, option := range options {
		if option.Budget <= capacityEpsilon {
			continue
		}
		result, err := Appraise(m, option.Asset, c, agent.Objective, option.Budget, unmet, rc)
		if err != nil {
			return nil, err
		}
		if result.Capacity <= capacityEpsilon || result.Output.Total() <= capacityEpsilon {
			option.Budget = 0
			continue
		}
		if best == nil || result.Metric < best.Metric {
			best = &appraised{Option: option, Appraisal: result}
		}
	}
	if best == nil {
		return nil, ErrNoOptions
	}
	return best, nil
}

// prune drops the used option when exhausted: commissioned assets contribute
// once, candidates stay while budget remains.
func (p *Planner) prune(options []*Option, used *Option) []*Option {
	out := options[:0]
	for _, option := range options {
		if option == used {
			if option.Asset.State == model.StateCandidate && option.Budget > capacityEpsilon {
				out = append(out, option)
			}
			continue
		}
		if option.Budget > capacityEpsilon {
			out = append(out, option)
		}
	}
	return out
}

// reducedCosts derives the activity cost signal for an option set. An
// asset/slice pair that appeared in the last dispatch keeps its capacity
// dual folded into its operating cost; otherwise the cost is estimated from
// the current price map.
func (p *Planner) reducedCosts(m *model.Model, options []*Option, region model.RegionID,
	sol *dispatch.Solution, prices pricing.Prices) ReducedCosts {

	rc := make(ReducedCosts)
	for _, option := range options {
		asset := option.Asset
		for _, s := range m.TimeSlices.Slices() {
			key := dispatch.ActivityKey{Asset: asset.ID, Slice: s.ID}
			if sol != nil {
				if dual, ok := sol.CapacityDuals[key]; ok {
					rc[key] = asset.Process.OperatingCost() + dual
					continue
				}
			}
			rc[key] = p.estimateReducedCost(asset, s.ID, region, prices)
		}
	}
	return rc
}

// estimateReducedCost prices an asset's activity from the commodity price
// map: operating cost minus the value of its flows. Flows on unpriced
// commodities contribute a seeded jitter so identical options remain
// distinguishable deterministically.
func (p *Planner) estimateReducedCost(asset *model.Asset, s timeslice.ID,
	region model.RegionID, prices pricing.Prices) float64 {

	cost := asset.Process.OperatingCost()
	for _, f := range asset.Process.Flows {
		price, ok := prices[pricing.Key{Commodity: f.Commodity, Region: region, Slice: s}]
		if !ok || math.IsNaN(price) {
			cost += jitterScale * p.rng.Float64()
			continue
		}
		cost -= f.Coeff * price
	}
	return cost
}

// foldBackInputs adds the input-side consumption of assets selected for the
// commodity onto the demand of their input commodities, so commodities later
// in the precedence order see the induced demand.
func (p *Planner) foldBackInputs(m *model.Model, pool *model.Pool, sol *dispatch.Solution,
	produced model.CommodityID, year int, demand model.DemandMap) {

	for _, asset := range pool.ActiveIn(year) {
		if asset.State != model.StateSelected || !asset.Process.Produces(produced) {
			continue
		}
		for _, f := range asset.Process.Flows {
			if f.Coeff >= 0 {
				continue
			}
			input, ok := m.Commodity(f.Commodity)
			if !ok || !input.Balanced() {
				continue
			}
			for _, sel := range m.TimeSlices.AtLevel(timeslice.Annual(), input.Level) {
				consumed := 0.0
				for _, s := range m.TimeSlices.Iter(sel) {
					act := sol.Activity[dispatch.ActivityKey{Asset: asset.ID, Slice: s.ID}]
					consumed += act * -f.Coeff
				}
				if consumed > 0 {
					demand.Add(model.DemandKey{
						Commodity: f.Commodity, Region: asset.Region, Year: year, Slice: sel,
					}, consumed)
				}
			}
		}
	}
}
