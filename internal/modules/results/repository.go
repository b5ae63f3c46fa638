// Package results persists finished simulation runs: commodity prices, the
// final asset pool and compact per-year solution snapshots.
package results

import (
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/meridian-energy/meridian/internal/database"
	"github.com/meridian-energy/meridian/internal/modules/model"
	"github.com/meridian-energy/meridian/internal/modules/pricing"
	"github.com/meridian-energy/meridian/internal/modules/simulation"
)

// Run statuses as stored in the runs table.
const (
	StatusRunning  = "running"
	StatusFinished = "finished"
	StatusFailed   = "failed"
)

// Run is one row of the runs table.
type Run struct {
	ID         string     `json:"id"`
	Scenario   string     `json:"scenario"`
	Seed       int64      `json:"seed"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Status     string     `json:"status"`
}

// Repository handles run persistence.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a results repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "results").Logger(),
	}
}

// CreateRun registers a new run and returns its generated ID.
func (r *Repository) CreateRun(scenario string, seed int64) (string, error) {
	id := uuid.NewString()
	_, err := r.db.Exec(
		`INSERT INTO runs (id, scenario, seed, started_at, status) VALUES (?, ?, ?, ?, ?)`,
		id, scenario, seed, time.Now().Unix(), StatusRunning,
	)
	if err != nil {
		return "", fmt.Errorf("failed to create run: %w", err)
	}

	r.log.Info().Str("run_id", id).Str("scenario", scenario).Int64("seed", seed).Msg("Run created")
	return id, nil
}

// FinishRun marks a run finished or failed.
func (r *Repository) FinishRun(id, status string) error {
	_, err := r.db.Exec(
		`UPDATE runs SET finished_at = ?, status = ? WHERE id = ?`,
		time.Now().Unix(), status, id,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", id, err)
	}
	return nil
}

// GetRun retrieves a run row.
func (r *Repository) GetRun(id string) (*Run, error) {
	row := r.db.QueryRow(
		`SELECT id, scenario, seed, started_at, finished_at, status FROM runs WHERE id = ?`, id,
	)

	var run Run
	var startedAt int64
	var finishedAt sql.NullInt64
	if err := row.Scan(&run.ID, &run.Scenario, &run.Seed, &startedAt, &finishedAt, &run.Status); err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", id, err)
	}
	run.StartedAt = time.Unix(startedAt, 0)
	if finishedAt.Valid {
		t := time.Unix(finishedAt.Int64, 0)
		run.FinishedAt = &t
	}
	return &run, nil
}

// ListRuns returns all runs, newest first.
func (r *Repository) ListRuns() ([]Run, error) {
	rows, err := r.db.Query(
		`SELECT id, scenario, seed, started_at, finished_at, status FROM runs ORDER BY started_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var startedAt int64
		var finishedAt sql.NullInt64
		if err := rows.Scan(&run.ID, &run.Scenario, &run.Seed, &startedAt, &finishedAt, &run.Status); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		run.StartedAt = time.Unix(startedAt, 0)
		if finishedAt.Valid {
			t := time.Unix(finishedAt.Int64, 0)
			run.FinishedAt = &t
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// SaveResult stores everything a finished run produced in one transaction:
// prices and snapshot per year, plus the final asset pool.
func (r *Repository) SaveResult(runID string, result *simulation.Result) error {
	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		for _, yr := range result.Years {
			if err := insertPrices(tx, runID, yr.Year, yr.Prices); err != nil {
				return err
			}
			blob, err := encodeSnapshot(yr)
			if err != nil {
				return err
			}
			if _, err := tx.Exec(
				`INSERT INTO snapshots (run_id, year, data) VALUES (?, ?, ?)`,
				runID, yr.Year, blob,
			); err != nil {
				return fmt.Errorf("failed to insert snapshot for year %d: %w", yr.Year, err)
			}
		}
		return insertAssets(tx, runID, result.Pool)
	})
	if err != nil {
		return fmt.Errorf("failed to save result for run %s: %w", runID, err)
	}

	r.log.Info().
		Str("run_id", runID).
		Int("years", len(result.Years)).
		Int("assets", result.Pool.Len()).
		Msg("Run result saved")
	return nil
}

func insertPrices(tx *sql.Tx, runID string, year int, prices pricing.Prices) error {
	stmt, err := tx.Prepare(
		`INSERT INTO prices (run_id, year, commodity, region, season, time_of_day, value)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("failed to prepare price insert: %w", err)
	}
	defer stmt.Close()

	for key, value := range prices {
		// NaN marks a commodity left unpriced; store NULL rather than a
		// value the driver cannot round-trip.
		v := sql.NullFloat64{Float64: value, Valid: !math.IsNaN(value)}
		if _, err := stmt.Exec(
			runID, year, string(key.Commodity), string(key.Region),
			key.Slice.Season, key.Slice.TimeOfDay, v,
		); err != nil {
			return fmt.Errorf("failed to insert price for %s/%s: %w", key.Commodity, key.Slice, err)
		}
	}
	return nil
}

func insertAssets(tx *sql.Tx, runID string, pool *model.Pool) error {
	stmt, err := tx.Prepare(
		`INSERT INTO assets (run_id, id, process, region, owner, capacity, commission_year, state)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("failed to prepare asset insert: %w", err)
	}
	defer stmt.Close()

	for _, a := range pool.All() {
		if _, err := stmt.Exec(
			runID, string(a.ID), string(a.Process.ID), string(a.Region),
			string(a.Owner), a.Capacity, a.CommissionYear, a.State.String(),
		); err != nil {
			return fmt.Errorf("failed to insert asset %s: %w", a.ID, err)
		}
	}
	return nil
}

// PriceRow is one stored price.
type PriceRow struct {
	Year      int
	Commodity string
	Region    string
	Season    string
	TimeOfDay string
	Value     float64 // NaN when the commodity was left unpriced
}

// GetPrices returns every stored price of a run ordered by year, commodity,
// region and slice.
func (r *Repository) GetPrices(runID string) ([]PriceRow, error) {
	rows, err := r.db.Query(
		`SELECT year, commodity, region, season, time_of_day, value
		 FROM prices WHERE run_id = ?
		 ORDER BY year, commodity, region, season, time_of_day`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query prices for run %s: %w", runID, err)
	}
	defer rows.Close()

	var out []PriceRow
	for rows.Next() {
		var p PriceRow
		var v sql.NullFloat64
		if err := rows.Scan(&p.Year, &p.Commodity, &p.Region, &p.Season, &p.TimeOfDay, &v); err != nil {
			return nil, fmt.Errorf("failed to scan price row: %w", err)
		}
		if v.Valid {
			p.Value = v.Float64
		} else {
			p.Value = math.NaN()
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// AssetRow is one stored asset of a run's final pool.
type AssetRow struct {
	ID             string  `json:"id"`
	Process        string  `json:"process"`
	Region         string  `json:"region"`
	Owner          string  `json:"owner"`
	Capacity       float64 `json:"capacity"`
	CommissionYear int     `json:"commission_year"`
	State          string  `json:"state"`
}

// GetAssets returns the final asset pool of a run, commission year first,
// so newly built capacity sits at the bottom.
func (r *Repository) GetAssets(runID string) ([]AssetRow, error) {
	rows, err := r.db.Query(
		`SELECT id, process, region, owner, capacity, commission_year, state
		 FROM assets WHERE run_id = ?
		 ORDER BY commission_year, id`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query assets for run %s: %w", runID, err)
	}
	defer rows.Close()

	var out []AssetRow
	for rows.Next() {
		var a AssetRow
		if err := rows.Scan(&a.ID, &a.Process, &a.Region, &a.Owner, &a.Capacity, &a.CommissionYear, &a.State); err != nil {
			return nil, fmt.Errorf("failed to scan asset row: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// GetSnapshot loads and decodes one year's solution snapshot.
func (r *Repository) GetSnapshot(runID string, year int) (*Snapshot, error) {
	var blob []byte
	err := r.db.QueryRow(
		`SELECT data FROM snapshots WHERE run_id = ? AND year = ?`, runID, year,
	).Scan(&blob)
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot for run %s year %d: %w", runID, year, err)
	}
	return decodeSnapshot(blob)
}
