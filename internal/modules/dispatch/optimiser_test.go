package dispatch

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-energy/meridian/internal/modules/model"
	"github.com/meridian-energy/meridian/internal/modules/timeslice"
)

const tol = 1e-6

func annualHierarchy(t *testing.T) *timeslice.Hierarchy {
	t.Helper()
	h, err := timeslice.NewHierarchy([]timeslice.Entry{
		{Season: "all", TimeOfDay: "all", Fraction: 1},
	})
	require.NoError(t, err)
	return h
}

func annualSlice() timeslice.ID {
	return timeslice.ID{Season: "all", TimeOfDay: "all"}
}

// singleAssetModel: one region, one annual slice, one service-demand
// commodity with demand 10 and one plant producing it at operating cost 1.
func singleAssetModel(t *testing.T, capacity float64) (*model.Model, []*model.Asset) {
	t.Helper()
	h := annualHierarchy(t)
	m := &model.Model{
		Regions: []model.RegionID{"north"},
		Commodities: []*model.Commodity{
			{ID: "electricity", Kind: model.KindServiceDemand, Level: timeslice.LevelAnnual},
		},
		Processes: []*model.Process{
			{
				ID:                    "plant",
				Flows:                 []model.Flow{{Commodity: "electricity", Coeff: 1}},
				VariableOperatingCost: 1,
				Lifetime:              20,
			},
		},
		TimeSlices: h,
		Demand: model.DemandMap{
			{Commodity: "electricity", Region: "north", Year: 2030, Slice: timeslice.Annual()}: 10,
		},
		Params: model.Parameters{MilestoneYears: []int{2030}, ValueOfLostLoad: 1000},
	}
	require.NoError(t, m.Finalize())

	proc, _ := m.Process("plant")
	assets := []*model.Asset{{
		ID: "plant.north", Process: proc, Region: "north",
		Capacity: capacity, CommissionYear: 2020, State: model.StateCommissioned,
	}}
	return m, assets
}

func TestSolve_MeetsDemandAtMinimumCost(t *testing.T) {
	m, assets := singleAssetModel(t, 20)
	o := NewOptimiser(zerolog.Nop())

	sol, err := o.Solve(Request{Model: m, Assets: assets, Year: 2030, Demand: m.Demand})
	require.NoError(t, err)

	key := ActivityKey{Asset: "plant.north", Slice: annualSlice()}
	assert.InDelta(t, 10, sol.Activity[key], tol)
	assert.InDelta(t, 10, sol.Objective, tol)

	// Flow map is activity times flow coefficient.
	assert.InDelta(t, 10, sol.Flows[FlowKey{Asset: "plant.north", Commodity: "electricity", Slice: annualSlice()}], tol)

	// With slack capacity the balance dual is the marginal operating cost
	// and the capacity constraint carries no rent.
	bal := BalanceKey{Commodity: "electricity", Region: "north", Slice: timeslice.Annual()}
	assert.InDelta(t, 1, sol.BalanceDuals[bal], tol)
	assert.InDelta(t, 0, sol.CapacityDuals[key], tol)
}

func TestSolve_UnmetDemandSlack(t *testing.T) {
	m, assets := singleAssetModel(t, 5)
	o := NewOptimiser(zerolog.Nop())

	sol, err := o.Solve(Request{Model: m, Assets: assets, Year: 2030, Demand: m.Demand, AllowUnmet: true})
	require.NoError(t, err)

	key := ActivityKey{Asset: "plant.north", Slice: annualSlice()}
	bal := BalanceKey{Commodity: "electricity", Region: "north", Slice: timeslice.Annual()}

	assert.InDelta(t, 5, sol.Activity[key], tol)
	assert.InDelta(t, 5, sol.Unmet[bal], tol)
	// 5 units generated at cost 1, 5 units lost at value of lost load.
	assert.InDelta(t, 5+5*1000, sol.Objective, tol)

	// Price rises to the value of lost load; the binding capacity row
	// carries the (negative) scarcity rent.
	assert.InDelta(t, 1000, sol.BalanceDuals[bal], tol)
	assert.InDelta(t, -(1000 - 1), sol.CapacityDuals[key], tol)
}

func TestSolve_InfeasibleWithoutSlack(t *testing.T) {
	m, assets := singleAssetModel(t, 5)
	o := NewOptimiser(zerolog.Nop())

	_, err := o.Solve(Request{Model: m, Assets: assets, Year: 2030, Demand: m.Demand})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInfeasible)
}

func TestSolve_NoProducerForDemand(t *testing.T) {
	m, _ := singleAssetModel(t, 5)
	o := NewOptimiser(zerolog.Nop())

	_, err := o.Solve(Request{Model: m, Assets: nil, Year: 2030, Demand: m.Demand})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInfeasible)
	assert.Contains(t, err.Error(), "electricity")
}

// conversionModel chains a gas well (supply-equals-demand gas) into a gas
// turbine producing electricity.
func conversionModel(t *testing.T) (*model.Model, []*model.Asset) {
	t.Helper()
	h := annualHierarchy(t)
	m := &model.Model{
		Regions: []model.RegionID{"north"},
		Commodities: []*model.Commodity{
			{ID: "electricity", Kind: model.KindServiceDemand, Level: timeslice.LevelAnnual},
			{ID: "gas", Kind: model.KindSupplyEqualsDemand, Level: timeslice.LevelAnnual},
		},
		Processes: []*model.Process{
			{
				ID:                    "turbine",
				Flows:                 []model.Flow{{Commodity: "electricity", Coeff: 1}, {Commodity: "gas", Coeff: -2}},
				VariableOperatingCost: 1,
				Lifetime:              20,
			},
			{
				ID:                    "well",
				Flows:                 []model.Flow{{Commodity: "gas", Coeff: 1}},
				VariableOperatingCost: 0.5,
				Lifetime:              20,
			},
		},
		TimeSlices: h,
		Demand: model.DemandMap{
			{Commodity: "electricity", Region: "north", Year: 2030, Slice: timeslice.Annual()}: 10,
		},
		Params: model.Parameters{MilestoneYears: []int{2030}, ValueOfLostLoad: 1000},
	}
	require.NoError(t, m.Finalize())

	turbine, _ := m.Process("turbine")
	well, _ := m.Process("well")
	assets := []*model.Asset{
		{ID: "turbine.north", Process: turbine, Region: "north", Capacity: 100, CommissionYear: 2020, State: model.StateCommissioned},
		{ID: "well.north", Process: well, Region: "north", Capacity: 100, CommissionYear: 2020, State: model.StateCommissioned},
	}
	return m, assets
}

func TestSolve_SupplyEqualsDemandChain(t *testing.T) {
	m, assets := conversionModel(t)
	o := NewOptimiser(zerolog.Nop())

	sol, err := o.Solve(Request{Model: m, Assets: assets, Year: 2030, Demand: m.Demand})
	require.NoError(t, err)

	turbineAct := sol.Activity[ActivityKey{Asset: "turbine.north", Slice: annualSlice()}]
	wellAct := sol.Activity[ActivityKey{Asset: "well.north", Slice: annualSlice()}]

	assert.InDelta(t, 10, turbineAct, tol)
	assert.InDelta(t, 20, wellAct, tol, "well must produce exactly the turbine's gas intake")

	// Balance invariant: net gas flow is zero.
	gasNet := sol.Flows[FlowKey{Asset: "turbine.north", Commodity: "gas", Slice: annualSlice()}] +
		sol.Flows[FlowKey{Asset: "well.north", Commodity: "gas", Slice: annualSlice()}]
	assert.InDelta(t, 0, gasNet, tol)

	// Price of gas is the well's marginal cost; electricity carries the
	// turbine's own cost plus two units of gas per unit generated.
	assert.InDelta(t, 0.5, sol.BalanceDuals[BalanceKey{Commodity: "gas", Region: "north", Slice: timeslice.Annual()}], tol)
	assert.InDelta(t, 2, sol.BalanceDuals[BalanceKey{Commodity: "electricity", Region: "north", Slice: timeslice.Annual()}], tol)
}

func TestSolve_SubsetMode(t *testing.T) {
	m, assets := conversionModel(t)
	o := NewOptimiser(zerolog.Nop())

	sol, err := o.Solve(Request{
		Model: m, Assets: assets, Year: 2030, Demand: m.Demand,
		Commodities: []model.CommodityID{"electricity"},
	})
	require.NoError(t, err)

	// Gas gets no balance row in subset mode, so the well stays idle and
	// the turbine's gas intake goes unbalanced by design.
	_, priced := sol.BalanceDuals[BalanceKey{Commodity: "gas", Region: "north", Slice: timeslice.Annual()}]
	assert.False(t, priced)
	assert.InDelta(t, 0, sol.Activity[ActivityKey{Asset: "well.north", Slice: annualSlice()}], tol)
	assert.InDelta(t, 10, sol.Activity[ActivityKey{Asset: "turbine.north", Slice: annualSlice()}], tol)
}

func TestSolve_SeasonLevelBalance(t *testing.T) {
	h, err := timeslice.NewHierarchy([]timeslice.Entry{
		{Season: "winter", TimeOfDay: "day", Fraction: 0.25},
		{Season: "winter", TimeOfDay: "night", Fraction: 0.25},
		{Season: "summer", TimeOfDay: "day", Fraction: 0.25},
		{Season: "summer", TimeOfDay: "night", Fraction: 0.25},
	})
	require.NoError(t, err)

	m := &model.Model{
		Regions: []model.RegionID{"north"},
		Commodities: []*model.Commodity{
			{ID: "heat", Kind: model.KindServiceDemand, Level: timeslice.LevelSeason},
		},
		Processes: []*model.Process{
			{
				ID:                    "boiler",
				Flows:                 []model.Flow{{Commodity: "heat", Coeff: 1}},
				VariableOperatingCost: 2,
				Lifetime:              20,
			},
		},
		TimeSlices: h,
		Demand: model.DemandMap{
			{Commodity: "heat", Region: "north", Year: 2030, Slice: timeslice.Season("winter")}: 8,
			{Commodity: "heat", Region: "north", Year: 2030, Slice: timeslice.Season("summer")}: 2,
		},
		Params: model.Parameters{MilestoneYears: []int{2030}, ValueOfLostLoad: 1000},
	}
	require.NoError(t, m.Finalize())

	proc, _ := m.Process("boiler")
	assets := []*model.Asset{{
		ID: "boiler.north", Process: proc, Region: "north",
		Capacity: 100, CommissionYear: 2020, State: model.StateCommissioned,
	}}

	o := NewOptimiser(zerolog.Nop())
	sol, err := o.Solve(Request{Model: m, Assets: assets, Year: 2030, Demand: m.Demand})
	require.NoError(t, err)

	// Seasonal balance sums activity across the slices of each season.
	winter := sol.Activity[ActivityKey{Asset: "boiler.north", Slice: timeslice.ID{Season: "winter", TimeOfDay: "day"}}] +
		sol.Activity[ActivityKey{Asset: "boiler.north", Slice: timeslice.ID{Season: "winter", TimeOfDay: "night"}}]
	summer := sol.Activity[ActivityKey{Asset: "boiler.north", Slice: timeslice.ID{Season: "summer", TimeOfDay: "day"}}] +
		sol.Activity[ActivityKey{Asset: "boiler.north", Slice: timeslice.ID{Season: "summer", TimeOfDay: "night"}}]
	assert.InDelta(t, 8, winter, tol)
	assert.InDelta(t, 2, summer, tol)

	// Both seasonal balance rows get a dual at the boiler's marginal cost.
	assert.InDelta(t, 2, sol.BalanceDuals[BalanceKey{Commodity: "heat", Region: "north", Slice: timeslice.Season("winter")}], tol)
	assert.InDelta(t, 2, sol.BalanceDuals[BalanceKey{Commodity: "heat", Region: "north", Slice: timeslice.Season("summer")}], tol)
}

func TestSolve_EmptyProgram(t *testing.T) {
	m, _ := singleAssetModel(t, 20)
	m.Demand = model.DemandMap{}
	o := NewOptimiser(zerolog.Nop())

	// No assets, unmet allowed, zero demand: a trivially empty program.
	sol, err := o.Solve(Request{Model: m, Assets: nil, Year: 2030, Demand: m.Demand, AllowUnmet: true})
	require.NoError(t, err)
	assert.InDelta(t, 0, sol.Objective, tol)
}
