// Package scenario loads simulation scenarios from YAML files and turns
// them into a finalized model plus the base-year asset pool.
package scenario

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/meridian-energy/meridian/internal/modules/model"
	"github.com/meridian-energy/meridian/internal/modules/timeslice"
)

// File mirrors the YAML scenario layout.
type File struct {
	Name        string           `yaml:"name"`
	Regions     []string         `yaml:"regions"`
	TimeSlices  []TimeSliceEntry `yaml:"time_slices"`
	Commodities []CommodityEntry `yaml:"commodities"`
	Processes   []ProcessEntry   `yaml:"processes"`
	Agents      []AgentEntry     `yaml:"agents"`
	Assets      []AssetEntry     `yaml:"assets"`
	Demand      []DemandEntry    `yaml:"demand"`
	Parameters  ParametersEntry  `yaml:"parameters"`
}

type TimeSliceEntry struct {
	Season    string  `yaml:"season"`
	TimeOfDay string  `yaml:"time_of_day"`
	Fraction  float64 `yaml:"fraction"`
}

type CommodityEntry struct {
	ID     string      `yaml:"id"`
	Kind   string      `yaml:"kind"`
	Level  string      `yaml:"level"`
	Levies []LevyEntry `yaml:"levies"`
}

type LevyEntry struct {
	Region string  `yaml:"region"`
	Year   int     `yaml:"year"`
	Slice  string  `yaml:"slice"`
	Value  float64 `yaml:"value"`
}

type ProcessEntry struct {
	ID                    string             `yaml:"id"`
	Regions               []string           `yaml:"regions"`
	Flows                 []FlowEntry        `yaml:"flows"`
	Availability          map[string]float64 `yaml:"availability"`
	CapitalCost           float64            `yaml:"capital_cost"`
	FixedOperatingCost    float64            `yaml:"fixed_operating_cost"`
	VariableOperatingCost float64            `yaml:"variable_operating_cost"`
	Lifetime              int                `yaml:"lifetime"`
	DiscountRate          float64            `yaml:"discount_rate"`
}

type FlowEntry struct {
	Commodity string  `yaml:"commodity"`
	Coeff     float64 `yaml:"coeff"`
	Cost      float64 `yaml:"cost"`
}

type AgentEntry struct {
	ID             string                `yaml:"id"`
	Objective      string                `yaml:"objective"`
	Processes      []string              `yaml:"processes"`
	Responsibility []ResponsibilityEntry `yaml:"responsibility"`
}

type ResponsibilityEntry struct {
	Commodity string  `yaml:"commodity"`
	Region    string  `yaml:"region"`
	Year      int     `yaml:"year"`
	Fraction  float64 `yaml:"fraction"`
}

type AssetEntry struct {
	ID             string  `yaml:"id"`
	Process        string  `yaml:"process"`
	Region         string  `yaml:"region"`
	Owner          string  `yaml:"owner"`
	Capacity       float64 `yaml:"capacity"`
	CommissionYear int     `yaml:"commission_year"`
}

type DemandEntry struct {
	Commodity string  `yaml:"commodity"`
	Region    string  `yaml:"region"`
	Year      int     `yaml:"year"`
	Slice     string  `yaml:"slice"`
	Value     float64 `yaml:"value"`
}

type ParametersEntry struct {
	MilestoneYears       []int   `yaml:"milestone_years"`
	ValueOfLostLoad      float64 `yaml:"value_of_lost_load"`
	CapacityLimitFactor  float64 `yaml:"capacity_limit_factor"`
	PriceTolerance       float64 `yaml:"price_tolerance"`
	MaxIroningIterations int     `yaml:"max_ironing_iterations"`
	PricingStrategy      string  `yaml:"pricing_strategy"`
}

// Load reads and builds a scenario from a YAML file.
func Load(path string) (*model.Model, *model.Pool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read scenario file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse builds a finalized model and base asset pool from YAML bytes.
func Parse(data []byte) (*model.Model, *model.Pool, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, nil, fmt.Errorf("failed to parse scenario YAML: %w", err)
	}
	return f.Build()
}

// Build turns the parsed file into a finalized model and pool.
func (f *File) Build() (*model.Model, *model.Pool, error) {
	entries := make([]timeslice.Entry, 0, len(f.TimeSlices))
	for _, e := range f.TimeSlices {
		entries = append(entries, timeslice.Entry{
			Season: e.Season, TimeOfDay: e.TimeOfDay, Fraction: e.Fraction,
		})
	}
	h, err := timeslice.NewHierarchy(entries)
	if err != nil {
		return nil, nil, fmt.Errorf("scenario %q: %w", f.Name, err)
	}

	m := &model.Model{TimeSlices: h, Demand: make(model.DemandMap)}
	for _, r := range f.Regions {
		m.Regions = append(m.Regions, model.RegionID(r))
	}

	for _, ce := range f.Commodities {
		c, err := buildCommodity(h, ce)
		if err != nil {
			return nil, nil, err
		}
		m.Commodities = append(m.Commodities, c)
	}

	for _, pe := range f.Processes {
		p, err := buildProcess(h, pe)
		if err != nil {
			return nil, nil, err
		}
		m.Processes = append(m.Processes, p)
	}

	for _, ae := range f.Agents {
		a, err := buildAgent(ae)
		if err != nil {
			return nil, nil, err
		}
		m.Agents = append(m.Agents, a)
	}

	for _, de := range f.Demand {
		sel, err := h.Resolve(de.Slice)
		if err != nil {
			return nil, nil, fmt.Errorf("demand for commodity %q: %w", de.Commodity, err)
		}
		m.Demand.Add(model.DemandKey{
			Commodity: model.CommodityID(de.Commodity),
			Region:    model.RegionID(de.Region),
			Year:      de.Year,
			Slice:     sel,
		}, de.Value)
	}

	strategy, err := model.ParsePricingStrategy(f.Parameters.PricingStrategy)
	if err != nil {
		return nil, nil, err
	}
	m.Params = model.Parameters{
		MilestoneYears:       f.Parameters.MilestoneYears,
		ValueOfLostLoad:      f.Parameters.ValueOfLostLoad,
		CapacityLimitFactor:  f.Parameters.CapacityLimitFactor,
		PriceTolerance:       f.Parameters.PriceTolerance,
		MaxIroningIterations: f.Parameters.MaxIroningIterations,
		PricingStrategy:      strategy,
	}

	if err := m.Finalize(); err != nil {
		return nil, nil, fmt.Errorf("scenario %q: %w", f.Name, err)
	}

	pool := model.NewPool()
	for _, ae := range f.Assets {
		proc, ok := m.Process(model.ProcessID(ae.Process))
		if !ok {
			return nil, nil, fmt.Errorf("asset %q references unknown process %q", ae.ID, ae.Process)
		}
		if err := pool.Add(&model.Asset{
			ID:             model.AssetID(ae.ID),
			Process:        proc,
			Region:         model.RegionID(ae.Region),
			Owner:          model.AgentID(ae.Owner),
			Capacity:       ae.Capacity,
			CommissionYear: ae.CommissionYear,
			State:          model.StateCommissioned,
		}); err != nil {
			return nil, nil, err
		}
	}

	return m, pool, nil
}

func buildCommodity(h *timeslice.Hierarchy, ce CommodityEntry) (*model.Commodity, error) {
	kind, err := model.ParseBalanceKind(ce.Kind)
	if err != nil {
		return nil, fmt.Errorf("commodity %q: %w", ce.ID, err)
	}
	level, err := timeslice.ParseLevel(ce.Level)
	if err != nil {
		return nil, fmt.Errorf("commodity %q: %w", ce.ID, err)
	}

	c := &model.Commodity{ID: model.CommodityID(ce.ID), Kind: kind, Level: level}
	for _, le := range ce.Levies {
		sel, err := h.Resolve(le.Slice)
		if err != nil {
			return nil, fmt.Errorf("levy on commodity %q: %w", ce.ID, err)
		}
		c.Levies = append(c.Levies, model.Levy{
			Region: model.RegionID(le.Region),
			Year:   le.Year,
			Slice:  sel,
			Value:  le.Value,
		})
	}
	return c, nil
}

func buildProcess(h *timeslice.Hierarchy, pe ProcessEntry) (*model.Process, error) {
	p := &model.Process{
		ID:                    model.ProcessID(pe.ID),
		CapitalCost:           pe.CapitalCost,
		FixedOperatingCost:    pe.FixedOperatingCost,
		VariableOperatingCost: pe.VariableOperatingCost,
		Lifetime:              pe.Lifetime,
		DiscountRate:          pe.DiscountRate,
	}
	for _, r := range pe.Regions {
		p.Regions = append(p.Regions, model.RegionID(r))
	}
	for _, fe := range pe.Flows {
		p.Flows = append(p.Flows, model.Flow{
			Commodity: model.CommodityID(fe.Commodity),
			Coeff:     fe.Coeff,
			Cost:      fe.Cost,
		})
	}

	if len(pe.Availability) > 0 {
		p.Availability = make(map[timeslice.ID]float64, len(pe.Availability))
		for key, v := range pe.Availability {
			id, err := resolveSliceID(h, key)
			if err != nil {
				return nil, fmt.Errorf("availability of process %q: %w", pe.ID, err)
			}
			p.Availability[id] = v
		}
	}
	return p, nil
}

func buildAgent(ae AgentEntry) (*model.Agent, error) {
	objective, err := model.ParseObjectiveKind(ae.Objective)
	if err != nil {
		return nil, fmt.Errorf("agent %q: %w", ae.ID, err)
	}

	a := &model.Agent{ID: model.AgentID(ae.ID), Objective: objective}
	for _, p := range ae.Processes {
		a.Processes = append(a.Processes, model.ProcessID(p))
	}
	for _, re := range ae.Responsibility {
		a.Responsibility = append(a.Responsibility, model.Responsibility{
			Commodity: model.CommodityID(re.Commodity),
			Region:    model.RegionID(re.Region),
			Year:      re.Year,
			Fraction:  re.Fraction,
		})
	}
	return a, nil
}

// resolveSliceID resolves a "season.time_of_day" key to a concrete slice.
func resolveSliceID(h *timeslice.Hierarchy, key string) (timeslice.ID, error) {
	sel, err := h.Resolve(key)
	if err != nil {
		return timeslice.ID{}, err
	}
	if sel.Level() != timeslice.LevelDayNight {
		return timeslice.ID{}, fmt.Errorf("%q selects a whole %s, expected a single time slice", key, sel.Level())
	}
	return h.Iter(sel)[0].ID, nil
}
