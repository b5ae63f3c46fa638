// Package di wires the application's dependencies: database, repositories,
// services, progress streaming and scheduled jobs.
package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/meridian-energy/meridian/internal/config"
	"github.com/meridian-energy/meridian/internal/database"
	"github.com/meridian-energy/meridian/internal/modules/results"
	"github.com/meridian-energy/meridian/internal/modules/runs"
	"github.com/meridian-energy/meridian/internal/scheduler"
	"github.com/meridian-energy/meridian/internal/server"
)

// Container holds all wired dependencies.
type Container struct {
	Config *config.Config
	Log    zerolog.Logger

	ResultsDB   *database.DB
	ResultsRepo *results.Repository

	Hub        *server.ProgressHub
	RunService *runs.Service
	Scheduler  *scheduler.Scheduler
}

// Wire builds the full dependency graph. Databases first, then
// repositories, then services, then scheduled jobs.
func Wire(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	resultsDB, err := database.New(database.Config{
		Path:    cfg.DatabasePath(),
		Profile: database.ProfileResults,
		Name:    "results",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open results database: %w", err)
	}

	if err := resultsDB.Migrate(); err != nil {
		_ = resultsDB.Close()
		return nil, fmt.Errorf("failed to migrate results database: %w", err)
	}

	repo := results.NewRepository(resultsDB.Conn(), log)
	hub := server.NewProgressHub(log)
	runService := runs.NewService(repo, hub, log)

	sched := scheduler.New(log)
	if cfg.RunSchedule != "" {
		job := scheduler.NewScenarioRunJob(runService, cfg.ScenarioPath, cfg.Seed, log)
		if err := sched.AddJob(cfg.RunSchedule, job); err != nil {
			_ = resultsDB.Close()
			return nil, fmt.Errorf("failed to register scenario run job: %w", err)
		}
	}
	if cfg.MaintainSchedule != "" {
		job := scheduler.NewMaintenanceJob(resultsDB, log)
		if err := sched.AddJob(cfg.MaintainSchedule, job); err != nil {
			_ = resultsDB.Close()
			return nil, fmt.Errorf("failed to register maintenance job: %w", err)
		}
	}

	return &Container{
		Config:      cfg,
		Log:         log,
		ResultsDB:   resultsDB,
		ResultsRepo: repo,
		Hub:         hub,
		RunService:  runService,
		Scheduler:   sched,
	}, nil
}

// Close releases container resources. Active runs are waited for so their
// results land in the database before the connection closes.
func (c *Container) Close() error {
	c.Scheduler.Stop()
	c.RunService.Wait()
	return c.ResultsDB.Close()
}
