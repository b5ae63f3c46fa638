package simulation

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-energy/meridian/internal/modules/model"
	"github.com/meridian-energy/meridian/internal/modules/pricing"
	"github.com/meridian-energy/meridian/internal/modules/timeslice"
)

// growthModel has one annual electricity demand growing from 10 to 16
// across two milestone years.
func growthModel(t *testing.T) *model.Model {
	t.Helper()
	h, err := timeslice.NewHierarchy([]timeslice.Entry{
		{Season: "all", TimeOfDay: "day", Fraction: 1},
	})
	require.NoError(t, err)

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
				Lifetime:              30,
			},
		},
		Agents: []*model.Agent{
			{
				ID:        "utility",
				Objective: model.ObjectiveLCOX,
				Responsibility: []model.Responsibility{
					{Commodity: "electricity", Region: "north", Year: 2030, Fraction: 1},
					{Commodity: "electricity", Region: "north", Year: 2040, Fraction: 1},
				},
			},
		},
		TimeSlices: h,
		Demand: model.DemandMap{
			{Commodity: "electricity", Region: "north", Year: 2030, Slice: timeslice.Annual()}: 10,
			{Commodity: "electricity", Region: "north", Year: 2040, Slice: timeslice.Annual()}: 16,
		},
		Params: model.Parameters{MilestoneYears: []int{2030, 2040}, ValueOfLostLoad: 1000},
	}
	require.NoError(t, m.Finalize())
	return m
}

func TestRun_CarriesPoolAcrossYears(t *testing.T) {
	m := growthModel(t)
	pool := model.NewPool()

	var events []Event
	r := NewRunner(zerolog.Nop(), 42, WithObserver(func(e Event) { events = append(events, e) }))

	result, err := r.Run(context.Background(), m, pool)
	require.NoError(t, err)
	require.Len(t, result.Years, 2)

	// Year one builds for demand 10; year two adds more stock.
	first := result.Years[0]
	require.Len(t, first.Selected, 1)
	assert.Equal(t, 2030, first.Year)

	second := result.Years[1]
	assert.Equal(t, 2040, second.Year)
	require.NotEmpty(t, second.Selected)

	// The year-one selection is commissioned stock by year two.
	a, ok := pool.Get(first.Selected[0])
	require.True(t, ok)
	assert.Equal(t, model.StateCommissioned, a.State)
	assert.InDelta(t, 10, a.Capacity, 1e-6)

	for _, yr := range result.Years {
		total := 0.0
		for _, v := range yr.Solution.Unmet {
			total += v
		}
		assert.InDelta(t, 0, total, 1e-6, "year %d leaves demand unmet", yr.Year)

		price := yr.Prices[pricing.Key{
			Commodity: "electricity", Region: "north",
			Slice: timeslice.ID{Season: "all", TimeOfDay: "day"},
		}]
		assert.GreaterOrEqual(t, price, 1-1e-6)
	}

	require.NotEmpty(t, events)
	assert.Equal(t, StageYearStarted, events[0].Stage)
	assert.Equal(t, StageRunFinished, events[len(events)-1].Stage)
}

func TestRun_Deterministic(t *testing.T) {
	run := func() *Result {
		m := growthModel(t)
		pool := model.NewPool()
		result, err := NewRunner(zerolog.Nop(), 7).Run(context.Background(), m, pool)
		require.NoError(t, err)
		return result
	}

	a, b := run(), run()
	require.Len(t, b.Years, len(a.Years))
	for i := range a.Years {
		assert.Equal(t, a.Years[i].Selected, b.Years[i].Selected)
		assert.Equal(t, a.Years[i].Prices, b.Years[i].Prices)
	}
}

func TestRun_CancelledContext(t *testing.T) {
	m := growthModel(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewRunner(zerolog.Nop(), 1).Run(ctx, m, model.NewPool())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
