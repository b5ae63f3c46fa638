package runs

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-energy/meridian/internal/modules/results"
	"github.com/meridian-energy/meridian/internal/modules/simulation"
	tst "github.com/meridian-energy/meridian/internal/testing"
)

const scenarioYAML = `
name: smoke
regions: [north]
time_slices:
  - {season: all, time_of_day: day, fraction: 1}
commodities:
  - id: electricity
    kind: svd
    level: annual
processes:
  - id: plant
    flows:
      - {commodity: electricity, coeff: 1}
    capital_cost: 5
    variable_operating_cost: 1
    lifetime: 20
agents:
  - id: utility
    objective: lcox
    processes: [plant]
    responsibility:
      - {commodity: electricity, region: north, year: 2030, fraction: 1}
demand:
  - {commodity: electricity, region: north, year: 2030, slice: annual, value: 10}
parameters:
  milestone_years: [2030]
  value_of_lost_load: 1000
`

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []simulation.Event
}

func (b *recordingBroadcaster) Broadcast(runID string, ev simulation.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
}

func (b *recordingBroadcaster) stages() []simulation.Stage {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]simulation.Stage, 0, len(b.events))
	for _, ev := range b.events {
		out = append(out, ev.Stage)
	}
	return out
}

func writeScenario(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "smoke.yaml")
	require.NoError(t, os.WriteFile(path, []byte(scenarioYAML), 0o644))
	return path
}

func TestService_StartRunsToCompletion(t *testing.T) {
	db, cleanup := tst.NewTestDB(t, "results")
	defer cleanup()
	repo := results.NewRepository(tst.GetRawConnection(db), zerolog.Nop())

	broadcaster := &recordingBroadcaster{}
	svc := NewService(repo, broadcaster, zerolog.Nop())

	runID, err := svc.Start(writeScenario(t), 11)
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	svc.Wait()

	run, err := repo.GetRun(runID)
	require.NoError(t, err)
	assert.Equal(t, results.StatusFinished, run.Status)

	rows, err := repo.GetPrices(runID)
	require.NoError(t, err)
	assert.NotEmpty(t, rows)

	stages := broadcaster.stages()
	require.NotEmpty(t, stages)
	assert.Equal(t, simulation.StageYearStarted, stages[0])
	assert.Equal(t, simulation.StageRunFinished, stages[len(stages)-1])
	assert.Empty(t, svc.Active())
}

func TestService_StartWithMissingScenarioFails(t *testing.T) {
	db, cleanup := tst.NewTestDB(t, "results")
	defer cleanup()
	repo := results.NewRepository(tst.GetRawConnection(db), zerolog.Nop())
	svc := NewService(repo, nil, zerolog.Nop())

	_, err := svc.Start(filepath.Join(t.TempDir(), "missing.yaml"), 1)
	require.Error(t, err)
}

func TestService_CancelUnknownRun(t *testing.T) {
	db, cleanup := tst.NewTestDB(t, "results")
	defer cleanup()
	repo := results.NewRepository(tst.GetRawConnection(db), zerolog.Nop())
	svc := NewService(repo, nil, zerolog.Nop())

	err := svc.Cancel("nope")
	assert.ErrorIs(t, err, ErrRunNotActive)
}
