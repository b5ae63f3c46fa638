// Package pricing converts dispatch dual values into commodity prices.
// The base price of a commodity in a region and time slice is the dual of
// its balance constraint, expanded from the commodity's declared level to
// every contained slice. Exogenous levies floor the price (max, never sum),
// and an optional scarcity pass irons out spikes caused by a single asset's
// binding capacity limit.
package pricing

import (
	"math"

	"github.com/rs/zerolog"

	"github.com/meridian-energy/meridian/internal/modules/dispatch"
	"github.com/meridian-energy/meridian/internal/modules/model"
	"github.com/meridian-energy/meridian/internal/modules/timeslice"
)

// Key addresses one commodity price: money per unit flow in a region and
// time slice.
type Key struct {
	Commodity model.CommodityID
	Region    model.RegionID
	Slice     timeslice.ID
}

// Prices is a commodity price map, produced anew on each dispatch run.
type Prices map[Key]float64

// Clone returns a copy that can be mutated without touching the original.
func (p Prices) Clone() Prices {
	out := make(Prices, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Engine derives price maps from dispatch solutions.
type Engine struct {
	log zerolog.Logger
}

// NewEngine creates a pricing engine.
func NewEngine(log zerolog.Logger) *Engine {
	return &Engine{log: log.With().Str("component", "pricing").Logger()}
}

// FromSolution expands the balance duals of a solution into a per-slice
// price map. A dual at season or annual level repeats its value on every
// contained slice.
func (e *Engine) FromSolution(m *model.Model, sol *dispatch.Solution) Prices {
	prices := make(Prices)
	for _, c := range m.Commodities {
		for _, region := range m.Regions {
			for _, sel := range m.TimeSlices.AtLevel(timeslice.Annual(), c.Level) {
				dual, ok := sol.BalanceDuals[dispatch.BalanceKey{Commodity: c.ID, Region: region, Slice: sel}]
				if !ok {
					continue
				}
				for _, s := range m.TimeSlices.Iter(sel) {
					prices[Key{Commodity: c.ID, Region: region, Slice: s.ID}] = dual
				}
			}
		}
	}
	return prices
}

// WithLevies raises every price to at least the sum of the levies that
// apply to its key. The result is the maximum of the dual-derived price and
// the levy value - the two are never summed.
func (e *Engine) WithLevies(prices Prices, m *model.Model, year int) Prices {
	out := prices.Clone()
	for key, price := range out {
		c, ok := m.Commodity(key.Commodity)
		if !ok {
			continue
		}
		if levy := c.LevyValue(key.Region, year, key.Slice); levy > price {
			out[key] = levy
		}
	}
	return out
}

// RemoveScarcity adds, to every priced key, the highest capacity-constraint
// dual among the assets that output the commodity in that region and slice.
// Capacity duals are non-positive, so a binding limit's rent is taken back
// out of the price, flattening the spike it caused.
func (e *Engine) RemoveScarcity(prices Prices, sol *dispatch.Solution, assets []*model.Asset) Prices {
	out := prices.Clone()
	for key, price := range out {
		best := 0.0
		found := false
		for _, asset := range assets {
			if asset.Region != key.Region || !asset.Process.Produces(key.Commodity) {
				continue
			}
			dual, ok := sol.CapacityDuals[dispatch.ActivityKey{Asset: asset.ID, Slice: key.Slice}]
			if !ok {
				continue
			}
			if !found || dual > best {
				best = dual
				found = true
			}
		}
		if found {
			out[key] = price + best
		}
	}
	return out
}

// Derive runs the full pricing pipeline for a solution according to the
// model's pricing strategy.
func (e *Engine) Derive(m *model.Model, sol *dispatch.Solution, assets []*model.Asset, year int) Prices {
	prices := e.FromSolution(m, sol)
	if m.Params.PricingStrategy == model.PricingScarcity {
		prices = e.RemoveScarcity(prices, sol, assets)
	}
	return e.WithLevies(prices, m, year)
}

// FillMissing sets every still-unpriced (balanced commodity, region, slice)
// key to NaN and warns. A commodity with no producing asset in the final
// solution cannot be priced by the engine; leaving the key absent would turn
// a modelling gap into a silent lookup failure downstream.
func (e *Engine) FillMissing(prices Prices, m *model.Model, year int) Prices {
	out := prices.Clone()
	for _, c := range m.Commodities {
		if !c.Balanced() {
			continue
		}
		for _, region := range m.Regions {
			for _, s := range m.TimeSlices.Slices() {
				key := Key{Commodity: c.ID, Region: region, Slice: s.ID}
				if _, ok := out[key]; ok {
					continue
				}
				out[key] = math.NaN()
				e.log.Warn().
					Str("commodity", string(c.ID)).
					Str("region", string(region)).
					Str("slice", s.ID.String()).
					Int("year", year).
					Msg("Commodity left unpriced at end of year")
			}
		}
	}
	return out
}
