package scenario

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-energy/meridian/internal/modules/model"
	"github.com/meridian-energy/meridian/internal/modules/simulation"
	"github.com/meridian-energy/meridian/internal/modules/timeslice"
)

const baselineYAML = `
name: baseline
regions: [north]
time_slices:
  - {season: winter, time_of_day: day, fraction: 0.25}
  - {season: winter, time_of_day: night, fraction: 0.25}
  - {season: summer, time_of_day: day, fraction: 0.25}
  - {season: summer, time_of_day: night, fraction: 0.25}
commodities:
  - id: electricity
    kind: svd
    level: season
    levies:
      - {region: north, year: 2030, slice: winter, value: 0.5}
  - id: gas
    kind: sed
    level: annual
processes:
  - id: turbine
    flows:
      - {commodity: electricity, coeff: 1}
      - {commodity: gas, coeff: -2}
    availability: {winter.night: 0.8}
    capital_cost: 5
    variable_operating_cost: 1
    lifetime: 20
  - id: well
    flows:
      - {commodity: gas, coeff: 1}
    capital_cost: 2
    variable_operating_cost: 0.5
    lifetime: 30
  - id: old-tech
    flows:
      - {commodity: electricity, coeff: 1}
      - {commodity: gas, coeff: -3}
    variable_operating_cost: 4
    lifetime: 40
agents:
  - id: utility
    objective: lcox
    processes: [turbine]
    responsibility:
      - {commodity: electricity, region: north, year: 2030, fraction: 1}
  - id: producer
    objective: lcox
    processes: [well]
    responsibility:
      - {commodity: gas, region: north, year: 2030, fraction: 1}
assets:
  - id: old-turbine
    process: old-tech
    region: north
    owner: utility
    capacity: 4
    commission_year: 2020
demand:
  - {commodity: electricity, region: north, year: 2030, slice: winter, value: 8}
  - {commodity: electricity, region: north, year: 2030, slice: summer, value: 4}
parameters:
  milestone_years: [2030]
  value_of_lost_load: 1000
  pricing_strategy: shadow
`

func TestParse_BuildsFinalizedModel(t *testing.T) {
	m, pool, err := Parse([]byte(baselineYAML))
	require.NoError(t, err)

	assert.Equal(t, []model.RegionID{"north"}, m.Regions)
	require.Len(t, m.Commodities, 2)
	assert.Equal(t, model.KindServiceDemand, m.Commodities[0].Kind)
	assert.Equal(t, timeslice.LevelSeason, m.Commodities[0].Level)
	assert.Equal(t, model.KindSupplyEqualsDemand, m.Commodities[1].Kind)
	require.Len(t, m.Commodities[0].Levies, 1)
	assert.Equal(t, timeslice.Season("winter"), m.Commodities[0].Levies[0].Slice)

	turbine, ok := m.Process("turbine")
	require.True(t, ok)
	night := timeslice.ID{Season: "winter", TimeOfDay: "night"}
	assert.InDelta(t, 0.8, turbine.AvailabilityIn(night), 1e-12)
	assert.InDelta(t, 1, turbine.AvailabilityIn(timeslice.ID{Season: "winter", TimeOfDay: "day"}), 1e-12)

	require.Len(t, m.Agents, 2)
	assert.Equal(t, model.ObjectiveLCOX, m.Agents[1].Objective)

	assert.InDelta(t, 8, m.Demand.Value(model.DemandKey{
		Commodity: "electricity", Region: "north", Year: 2030, Slice: timeslice.Season("winter"),
	}), 1e-12)

	require.Equal(t, 1, pool.Len())
	asset, ok := pool.Get("old-turbine")
	require.True(t, ok)
	assert.Equal(t, model.StateCommissioned, asset.State)
	assert.InDelta(t, 4, asset.Capacity, 1e-12)
}

func TestParse_UnknownSliceFails(t *testing.T) {
	_, _, err := Parse([]byte(`
name: broken
regions: [north]
time_slices:
  - {season: all, time_of_day: day, fraction: 1}
commodities:
  - id: electricity
    kind: svd
    level: annual
demand:
  - {commodity: electricity, region: north, year: 2030, slice: spring, value: 1}
parameters:
  milestone_years: [2030]
  value_of_lost_load: 1000
`))
	require.Error(t, err)
	assert.ErrorIs(t, err, timeslice.ErrUnknownSelection)
}

func TestParse_ScenarioRunsEndToEnd(t *testing.T) {
	m, pool, err := Parse([]byte(baselineYAML))
	require.NoError(t, err)

	result, err := simulation.NewRunner(zerolog.Nop(), 3).Run(context.Background(), m, pool)
	require.NoError(t, err)
	require.Len(t, result.Years, 1)

	total := 0.0
	for _, v := range result.Years[0].Solution.Unmet {
		total += v
	}
	assert.InDelta(t, 0, total, 1e-6)
	assert.NotEmpty(t, result.Years[0].Selected)
}
