package model

import (
	"github.com/meridian-energy/meridian/internal/modules/timeslice"
)

// DemandKey addresses one demand value: a commodity's required net output in
// a region, milestone year and time-slice selection at the commodity's
// declared level.
type DemandKey struct {
	Commodity CommodityID
	Region    RegionID
	Year      int
	Slice     timeslice.Selection
}

// DemandMap holds demand values. The planner clones the model's map per year
// and folds newly selected assets' consumption back into it, so values here
// are mutable between sequential planner steps - never concurrently.
type DemandMap map[DemandKey]float64

// Value returns the demand for a key (0 when absent).
func (d DemandMap) Value(k DemandKey) float64 {
	return d[k]
}

// Add accumulates demand onto a key.
func (d DemandMap) Add(k DemandKey, v float64) {
	d[k] += v
}

// Clone returns a copy that can be mutated without touching the original.
func (d DemandMap) Clone() DemandMap {
	out := make(DemandMap, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}
