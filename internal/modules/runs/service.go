// Package runs orchestrates simulation runs: it loads scenarios, executes
// them in the background and persists their results.
package runs

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/meridian-energy/meridian/internal/modules/model"
	"github.com/meridian-energy/meridian/internal/modules/results"
	"github.com/meridian-energy/meridian/internal/modules/scenario"
	"github.com/meridian-energy/meridian/internal/modules/simulation"
)

// ErrRunNotActive is returned when cancelling a run that is not executing.
var ErrRunNotActive = errors.New("run is not active")

// Broadcaster receives progress events of active runs. Implementations must
// not block.
type Broadcaster interface {
	Broadcast(runID string, event simulation.Event)
}

// Service starts, tracks and cancels simulation runs.
type Service struct {
	log         zerolog.Logger
	repo        *results.Repository
	broadcaster Broadcaster

	mu     sync.Mutex
	active map[string]context.CancelFunc
	wg     sync.WaitGroup
}

// NewService creates a run service. The broadcaster may be nil when no
// progress streaming is needed.
func NewService(repo *results.Repository, broadcaster Broadcaster, log zerolog.Logger) *Service {
	return &Service{
		log:         log.With().Str("component", "runs").Logger(),
		repo:        repo,
		broadcaster: broadcaster,
		active:      make(map[string]context.CancelFunc),
	}
}

// Start loads the scenario, registers a run and executes it in the
// background. It returns the run ID immediately.
func (s *Service) Start(scenarioPath string, seed int64) (string, error) {
	m, pool, err := scenario.Load(scenarioPath)
	if err != nil {
		return "", fmt.Errorf("failed to load scenario: %w", err)
	}

	runID, err := s.repo.CreateRun(scenarioPath, seed)
	if err != nil {
		return "", fmt.Errorf("failed to register run: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.active[runID] = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.active, runID)
			s.mu.Unlock()
			cancel()
		}()
		s.execute(ctx, runID, m, pool, seed)
	}()

	s.log.Info().
		Str("run_id", runID).
		Str("scenario", scenarioPath).
		Int64("seed", seed).
		Msg("Run started")

	return runID, nil
}

func (s *Service) execute(ctx context.Context, runID string, m *model.Model, pool *model.Pool, seed int64) {
	runner := simulation.NewRunner(s.log, seed, simulation.WithObserver(func(ev simulation.Event) {
		if s.broadcaster != nil {
			s.broadcaster.Broadcast(runID, ev)
		}
	}))

	result, err := runner.Run(ctx, m, pool)
	if err != nil {
		s.log.Error().Err(err).Str("run_id", runID).Msg("Run failed")
		if ferr := s.repo.FinishRun(runID, results.StatusFailed); ferr != nil {
			s.log.Error().Err(ferr).Str("run_id", runID).Msg("Failed to mark run as failed")
		}
		return
	}

	if err := s.repo.SaveResult(runID, result); err != nil {
		s.log.Error().Err(err).Str("run_id", runID).Msg("Failed to persist run result")
		if ferr := s.repo.FinishRun(runID, results.StatusFailed); ferr != nil {
			s.log.Error().Err(ferr).Str("run_id", runID).Msg("Failed to mark run as failed")
		}
		return
	}

	if err := s.repo.FinishRun(runID, results.StatusFinished); err != nil {
		s.log.Error().Err(err).Str("run_id", runID).Msg("Failed to mark run as finished")
		return
	}

	s.log.Info().
		Str("run_id", runID).
		Int("years", len(result.Years)).
		Msg("Run finished")
}

// Cancel aborts a running simulation. The run is marked failed by the
// execution goroutine once the context propagates.
func (s *Service) Cancel(runID string) error {
	s.mu.Lock()
	cancel, ok := s.active[runID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("run %s: %w", runID, ErrRunNotActive)
	}
	cancel()
	s.log.Info().Str("run_id", runID).Msg("Run cancelled")
	return nil
}

// Active returns the IDs of currently executing runs.
func (s *Service) Active() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.active))
	for id := range s.active {
		ids = append(ids, id)
	}
	return ids
}

// Wait blocks until all active runs have finished. Used during shutdown.
func (s *Service) Wait() {
	s.wg.Wait()
}
