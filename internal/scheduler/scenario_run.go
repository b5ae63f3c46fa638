package scheduler

import (
	"github.com/rs/zerolog"

	"github.com/meridian-energy/meridian/internal/modules/runs"
)

// ScenarioRunJob starts a simulation run of the configured scenario.
type ScenarioRunJob struct {
	log          zerolog.Logger
	service      *runs.Service
	scenarioPath string
	seed         int64
}

// NewScenarioRunJob creates a new ScenarioRunJob
func NewScenarioRunJob(service *runs.Service, scenarioPath string, seed int64, log zerolog.Logger) *ScenarioRunJob {
	return &ScenarioRunJob{
		log:          log.With().Str("job", "scenario_run").Logger(),
		service:      service,
		scenarioPath: scenarioPath,
		seed:         seed,
	}
}

// Name returns the job name
func (j *ScenarioRunJob) Name() string {
	return "scenario_run"
}

// Run starts the run in the background; the run service tracks completion.
func (j *ScenarioRunJob) Run() error {
	runID, err := j.service.Start(j.scenarioPath, j.seed)
	if err != nil {
		return err
	}

	j.log.Info().
		Str("run_id", runID).
		Str("scenario", j.scenarioPath).
		Msg("Scheduled run started")
	return nil
}
