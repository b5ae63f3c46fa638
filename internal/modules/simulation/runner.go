// Package simulation drives a full run: one investment-planning pass per
// milestone year, carrying the asset pool and commodity prices forward
// between years.
package simulation

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/rs/zerolog"

	"github.com/meridian-energy/meridian/internal/modules/dispatch"
	"github.com/meridian-energy/meridian/internal/modules/investment"
	"github.com/meridian-energy/meridian/internal/modules/model"
	"github.com/meridian-energy/meridian/internal/modules/pricing"
)

// Stage labels a progress event.
type Stage string

const (
	StageYearStarted Stage = "year_started"
	StageYearSolved  Stage = "year_solved"
	StageRunFinished Stage = "run_finished"
)

// Event reports run progress to an observer (log line, websocket feed).
type Event struct {
	Stage    Stage   `json:"stage"`
	Year     int     `json:"year"`
	Years    int     `json:"years"`
	Done     int     `json:"done"`
	Selected int     `json:"selected"`
	Unmet    float64 `json:"unmet"`
}

// YearResult is the output of one solved milestone year.
type YearResult struct {
	Year     int
	Prices   pricing.Prices
	Solution *dispatch.Solution
	Selected []model.AssetID
}

// Result is the output of a complete run.
type Result struct {
	Years []YearResult
	Pool  *model.Pool
}

// Runner executes simulation runs. A run is synchronous; the context is
// consulted only between milestone years.
type Runner struct {
	log     zerolog.Logger
	planner *investment.Planner
	observe func(Event)
}

// Option configures a Runner.
type Option func(*Runner)

// WithObserver registers a progress callback, invoked synchronously.
func WithObserver(fn func(Event)) Option {
	return func(r *Runner) { r.observe = fn }
}

// NewRunner creates a simulation runner. The seed fixes the planner's
// pseudo-random source so repeated runs of the same model are identical.
func NewRunner(log zerolog.Logger, seed int64, opts ...Option) *Runner {
	log = log.With().Str("component", "simulation").Logger()
	r := &Runner{
		log: log,
		planner: investment.NewPlanner(
			log,
			dispatch.NewOptimiser(log),
			pricing.NewEngine(log),
			rand.New(rand.NewSource(seed)),
		),
		observe: func(Event) {},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run solves every milestone year of the model in order. The pool enters
// with the base-year commissioned assets and leaves with every selected
// asset merged in.
func (r *Runner) Run(ctx context.Context, m *model.Model, pool *model.Pool) (*Result, error) {
	result := &Result{Pool: pool}
	var carried pricing.Prices

	years := m.Params.MilestoneYears
	for i, year := range years {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("run cancelled before year %d: %w", year, err)
		}

		// Assets selected in an earlier year are built stock by now.
		commissionSelected(pool, year)

		r.observe(Event{Stage: StageYearStarted, Year: year, Years: len(years), Done: i})
		r.log.Info().Int("year", year).Int("assets", pool.Len()).Msg("Solving milestone year")

		out, err := r.planner.PlanYear(m, pool, year, carried)
		if err != nil {
			return nil, fmt.Errorf("milestone year %d: %w", year, err)
		}

		result.Years = append(result.Years, YearResult{
			Year:     year,
			Prices:   out.Prices,
			Solution: out.Solution,
			Selected: out.Selected,
		})
		carried = out.Prices

		unmet := totalUnmet(out.Solution)
		r.observe(Event{
			Stage: StageYearSolved, Year: year, Years: len(years), Done: i + 1,
			Selected: len(out.Selected), Unmet: unmet,
		})
		r.log.Info().
			Int("year", year).
			Int("selected", len(out.Selected)).
			Float64("unmet", unmet).
			Msg("Milestone year solved")
	}

	r.observe(Event{Stage: StageRunFinished, Years: len(years), Done: len(years)})
	return result, nil
}

// commissionSelected turns assets selected in previous years into built
// stock before the next year is planned, so they are no longer re-promoted
// or re-folded into demand.
func commissionSelected(pool *model.Pool, year int) {
	for _, a := range pool.All() {
		if a.State == model.StateSelected && a.CommissionYear < year {
			a.State = model.StateCommissioned
		}
	}
}

func totalUnmet(sol *dispatch.Solution) float64 {
	if sol == nil {
		return 0
	}
	total := 0.0
	for _, v := range sol.Unmet {
		total += v
	}
	return total
}
