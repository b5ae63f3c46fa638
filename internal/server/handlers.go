package server

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/meridian-energy/meridian/internal/config"
	"github.com/meridian-energy/meridian/internal/modules/results"
	"github.com/meridian-energy/meridian/internal/modules/runs"
)

// RunHandlers serves the run lifecycle endpoints.
type RunHandlers struct {
	repo    *results.Repository
	service *runs.Service
	cfg     *config.Config
	log     zerolog.Logger
}

// NewRunHandlers creates run handlers.
func NewRunHandlers(repo *results.Repository, service *runs.Service, cfg *config.Config, log zerolog.Logger) *RunHandlers {
	return &RunHandlers{
		repo:    repo,
		service: service,
		cfg:     cfg,
		log:     log.With().Str("component", "run_handlers").Logger(),
	}
}

// startRunRequest is the body of POST /api/runs. Both fields are optional
// and default to the configured scenario and seed.
type startRunRequest struct {
	Scenario string `json:"scenario"`
	Seed     *int64 `json:"seed"`
}

// HandleStartRun triggers a new simulation run.
func (h *RunHandlers) HandleStartRun(w http.ResponseWriter, r *http.Request) {
	var req startRunRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}
	}

	scenarioPath := req.Scenario
	if scenarioPath == "" {
		scenarioPath = h.cfg.ScenarioPath
	}
	if scenarioPath == "" {
		respondError(w, http.StatusBadRequest, "no scenario given and no default configured")
		return
	}

	seed := h.cfg.Seed
	if req.Seed != nil {
		seed = *req.Seed
	}

	runID, err := h.service.Start(scenarioPath, seed)
	if err != nil {
		h.log.Error().Err(err).Str("scenario", scenarioPath).Msg("Failed to start run")
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"run_id":   runID,
		"scenario": scenarioPath,
		"seed":     seed,
	})
}

// HandleListRuns returns all known runs, newest first.
func (h *RunHandlers) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	list, err := h.repo.ListRuns()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list runs")
		respondError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"runs":   list,
		"active": h.service.Active(),
	})
}

// HandleGetRun returns a single run's status row.
func (h *RunHandlers) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	run, err := h.repo.GetRun(runID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(w, http.StatusNotFound, "run not found")
			return
		}
		h.log.Error().Err(err).Str("run_id", runID).Msg("Failed to get run")
		respondError(w, http.StatusInternalServerError, "failed to get run")
		return
	}
	respondJSON(w, http.StatusOK, run)
}

// HandleCancelRun aborts an active run.
func (h *RunHandlers) HandleCancelRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if err := h.service.Cancel(runID); err != nil {
		if errors.Is(err, runs.ErrRunNotActive) {
			respondError(w, http.StatusConflict, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to cancel run")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"run_id": runID, "status": "cancelling"})
}

// priceDTO mirrors results.PriceRow with a nullable price, since unpriced
// commodities are stored as NaN which JSON cannot carry.
type priceDTO struct {
	Year      int      `json:"year"`
	Commodity string   `json:"commodity"`
	Region    string   `json:"region"`
	Season    string   `json:"season"`
	TimeOfDay string   `json:"time_of_day"`
	Price     *float64 `json:"price"`
}

// HandleGetPrices returns the commodity price rows of a finished run.
func (h *RunHandlers) HandleGetPrices(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	rows, err := h.repo.GetPrices(runID)
	if err != nil {
		h.log.Error().Err(err).Str("run_id", runID).Msg("Failed to get prices")
		respondError(w, http.StatusInternalServerError, "failed to get prices")
		return
	}

	dtos := make([]priceDTO, 0, len(rows))
	for _, row := range rows {
		dto := priceDTO{
			Year:      row.Year,
			Commodity: row.Commodity,
			Region:    row.Region,
			Season:    row.Season,
			TimeOfDay: row.TimeOfDay,
		}
		if !math.IsNaN(row.Value) {
			v := row.Value
			dto.Price = &v
		}
		dtos = append(dtos, dto)
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"run_id": runID, "prices": dtos})
}

// HandleGetAssets returns the final asset pool of a run, including the
// capacity built during it.
func (h *RunHandlers) HandleGetAssets(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	assets, err := h.repo.GetAssets(runID)
	if err != nil {
		h.log.Error().Err(err).Str("run_id", runID).Msg("Failed to get assets")
		respondError(w, http.StatusInternalServerError, "failed to get assets")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"run_id": runID, "assets": assets})
}

// HandleExportCSV streams the price table as CSV.
func (h *RunHandlers) HandleExportCSV(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", runID+"_prices.csv"))
	if err := h.repo.ExportRunCSV(runID, w); err != nil {
		// Headers are already out at this point, log only.
		h.log.Error().Err(err).Str("run_id", runID).Msg("Failed to export prices CSV")
	}
}

// HandleGetSnapshot returns the dispatch snapshot of a milestone year.
func (h *RunHandlers) HandleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid year")
		return
	}

	snap, err := h.repo.GetSnapshot(runID, year)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(w, http.StatusNotFound, "snapshot not found")
			return
		}
		h.log.Error().Err(err).Str("run_id", runID).Int("year", year).Msg("Failed to get snapshot")
		respondError(w, http.StatusInternalServerError, "failed to get snapshot")
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

// respondJSON writes a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

// respondError writes a JSON error response.
func respondError(w http.ResponseWriter, code int, message string) {
	respondJSON(w, code, map[string]string{"error": message})
}
