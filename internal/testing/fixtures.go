package testing

import (
	"testing"

	"github.com/meridian-energy/meridian/internal/modules/model"
	"github.com/meridian-energy/meridian/internal/modules/timeslice"
)

// SingleSliceHierarchy builds the simplest hierarchy: one season, one time
// of day, covering the whole year.
func SingleSliceHierarchy(t *testing.T) *timeslice.Hierarchy {
	t.Helper()
	h, err := timeslice.NewHierarchy([]timeslice.Entry{
		{Season: "all", TimeOfDay: "day", Fraction: 1},
	})
	if err != nil {
		t.Fatalf("Failed to build hierarchy: %v", err)
	}
	return h
}

// MinimalModel builds a finalized single-region model with one annual
// electricity demand of 10 and one process serving it one-to-one.
func MinimalModel(t *testing.T) *model.Model {
	t.Helper()

	m := &model.Model{
		Regions: []model.RegionID{"north"},
		Commodities: []*model.Commodity{
			{ID: "electricity", Kind: model.KindServiceDemand, Level: timeslice.LevelAnnual},
		},
		Processes: []*model.Process{
			{
				ID:                    "plant",
				Flows:                 []model.Flow{{Commodity: "electricity", Coeff: 1}},
				CapitalCost:           5,
				VariableOperatingCost: 1,
				Lifetime:              20,
			},
		},
		Agents: []*model.Agent{
			{
				ID:        "utility",
				Objective: model.ObjectiveLCOX,
				Responsibility: []model.Responsibility{
					{Commodity: "electricity", Region: "north", Year: 2030, Fraction: 1},
				},
			},
		},
		TimeSlices: SingleSliceHierarchy(t),
		Demand: model.DemandMap{
			{Commodity: "electricity", Region: "north", Year: 2030, Slice: timeslice.Annual()}: 10,
		},
		Params: model.Parameters{MilestoneYears: []int{2030}, ValueOfLostLoad: 1000},
	}
	if err := m.Finalize(); err != nil {
		t.Fatalf("Failed to finalize fixture model: %v", err)
	}
	return m
}

// CommissionedAsset builds a built asset of the fixture model's process.
func CommissionedAsset(t *testing.T, m *model.Model, id model.AssetID, capacity float64) *model.Asset {
	t.Helper()
	proc, ok := m.Process("plant")
	if !ok {
		t.Fatalf("Fixture model has no plant process")
	}
	return &model.Asset{
		ID: id, Process: proc, Region: "north", Owner: "utility",
		Capacity: capacity, CommissionYear: 2020, State: model.StateCommissioned,
	}
}
