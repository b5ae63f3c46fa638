package di

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-energy/meridian/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		DataDir:          t.TempDir(),
		Port:             8080,
		LogLevel:         "info",
		MaintainSchedule: "0 0 3 * * *",
	}
}

func TestWire_BuildsContainer(t *testing.T) {
	c, err := Wire(testConfig(t), zerolog.Nop())
	require.NoError(t, err)
	defer c.Close()

	assert.NotNil(t, c.ResultsDB)
	assert.NotNil(t, c.ResultsRepo)
	assert.NotNil(t, c.Hub)
	assert.NotNil(t, c.RunService)
	assert.NotNil(t, c.Scheduler)
}

func TestWire_RejectsBadRunSchedule(t *testing.T) {
	cfg := testConfig(t)
	cfg.ScenarioPath = "scenario.yaml"
	cfg.RunSchedule = "never"

	_, err := Wire(cfg, zerolog.Nop())
	require.Error(t, err)
}
