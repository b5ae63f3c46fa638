package model

import (
	"fmt"

	"github.com/meridian-energy/meridian/internal/modules/timeslice"
)

// AssetID is a stable handle into the asset pool.
type AssetID string

// AssetState is the lifecycle tag of an asset. Transitions are
// one-directional: Candidate -> Selected only. Commissioned assets never
// change state within a run.
type AssetState int

const (
	// StateCommissioned assets are already built; capacity is fixed and
	// their flows appear in the base dispatch.
	StateCommissioned AssetState = iota
	// StateCandidate assets are hypothetical; capacity is free up to a
	// bound and they are considered only during appraisal.
	StateCandidate
	// StateSelected assets are candidates chosen by an agent this round;
	// capacity is fixed henceforth and the owner agent is recorded.
	StateSelected
)

// String returns the state name.
func (s AssetState) String() string {
	switch s {
	case StateCommissioned:
		return "commissioned"
	case StateCandidate:
		return "candidate"
	case StateSelected:
		return "selected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Asset is an instance of a Process operating in one region. For Candidate
// assets Capacity holds the upper bound the appraisal may size up to; for
// the other states it is the installed capacity.
type Asset struct {
	ID             AssetID
	Process        *Process
	Region         RegionID
	Owner          AgentID
	Capacity       float64
	CommissionYear int
	State          AssetState
}

// MaxActivity is the activity ceiling for the asset in a slice:
// capacity x availability x slice length.
func (a *Asset) MaxActivity(h *timeslice.Hierarchy, id timeslice.ID) float64 {
	return a.Capacity * a.Process.ActivityLimit(h, id)
}

// ActiveIn reports whether the asset is within its lifetime in the year.
func (a *Asset) ActiveIn(year int) bool {
	return a.CommissionYear <= year && year < a.CommissionYear+a.Process.Lifetime
}

// Pool owns the assets of a run, addressed by stable handle. Iteration is
// always in insertion order; unordered iteration over assets would make
// floating-point accumulations non-deterministic.
type Pool struct {
	order  []AssetID
	assets map[AssetID]*Asset
}

// NewPool creates an empty asset pool.
func NewPool() *Pool {
	return &Pool{assets: make(map[AssetID]*Asset)}
}

// Add inserts an asset into the pool.
func (p *Pool) Add(a *Asset) error {
	if a.ID == "" {
		return fmt.Errorf("asset has no ID")
	}
	if _, exists := p.assets[a.ID]; exists {
		return fmt.Errorf("asset %q already in pool", a.ID)
	}
	p.order = append(p.order, a.ID)
	p.assets[a.ID] = a
	return nil
}

// Get returns the asset for a handle.
func (p *Pool) Get(id AssetID) (*Asset, bool) {
	a, ok := p.assets[id]
	return a, ok
}

// Len returns the number of assets in the pool.
func (p *Pool) Len() int {
	return len(p.order)
}

// All returns every asset in insertion order.
func (p *Pool) All() []*Asset {
	out := make([]*Asset, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, p.assets[id])
	}
	return out
}

// ActiveIn returns the commissioned and selected assets whose lifetime
// covers the year, in insertion order. Candidates are excluded - they exist
// only inside an appraisal.
func (p *Pool) ActiveIn(year int) []*Asset {
	var out []*Asset
	for _, id := range p.order {
		a := p.assets[id]
		if a.State == StateCandidate {
			continue
		}
		if a.ActiveIn(year) {
			out = append(out, a)
		}
	}
	return out
}

// Promote marks a Candidate as Selected with the agent recorded as owner.
// Promotion rewrites the state tag in place; it is the only legal state
// transition.
func (p *Pool) Promote(id AssetID, owner AgentID, capacity float64) error {
	a, ok := p.assets[id]
	if !ok {
		return fmt.Errorf("asset %q not in pool", id)
	}
	if a.State != StateCandidate {
		return fmt.Errorf("asset %q is %s, only candidates can be promoted", id, a.State)
	}
	a.State = StateSelected
	a.Owner = owner
	a.Capacity = capacity
	return nil
}
