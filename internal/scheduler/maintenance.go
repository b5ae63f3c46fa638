package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/meridian-energy/meridian/internal/database"
)

// MaintenanceJob keeps the results database healthy: it checkpoints the
// WAL and verifies the connection.
type MaintenanceJob struct {
	log zerolog.Logger
	db  *database.DB
}

// NewMaintenanceJob creates a new MaintenanceJob
func NewMaintenanceJob(db *database.DB, log zerolog.Logger) *MaintenanceJob {
	return &MaintenanceJob{
		log: log.With().Str("job", "db_maintenance").Logger(),
		db:  db,
	}
}

// Name returns the job name
func (j *MaintenanceJob) Name() string {
	return "db_maintenance"
}

// Run executes the maintenance pass
func (j *MaintenanceJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := j.db.QuickCheck(ctx); err != nil {
		return err
	}

	if err := j.db.WALCheckpoint("TRUNCATE"); err != nil {
		return err
	}

	stats, err := j.db.GetStats()
	if err != nil {
		return err
	}

	j.log.Info().
		Int64("size_bytes", stats.SizeBytes).
		Int64("wal_size_bytes", stats.WALSizeBytes).
		Int64("freelist_pages", stats.FreelistCount).
		Msg("Database maintenance completed")

	return nil
}
