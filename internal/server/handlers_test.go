package server

import (
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-energy/meridian/internal/config"
	"github.com/meridian-energy/meridian/internal/modules/dispatch"
	"github.com/meridian-energy/meridian/internal/modules/model"
	"github.com/meridian-energy/meridian/internal/modules/pricing"
	"github.com/meridian-energy/meridian/internal/modules/results"
	"github.com/meridian-energy/meridian/internal/modules/runs"
	"github.com/meridian-energy/meridian/internal/modules/simulation"
	"github.com/meridian-energy/meridian/internal/modules/timeslice"
	tst "github.com/meridian-energy/meridian/internal/testing"
)

func newTestRouter(t *testing.T) (*chi.Mux, *results.Repository, func()) {
	t.Helper()
	db, cleanup := tst.NewTestDB(t, "results")
	repo := results.NewRepository(tst.GetRawConnection(db), zerolog.Nop())
	svc := runs.NewService(repo, nil, zerolog.Nop())
	cfg := &config.Config{DataDir: t.TempDir(), Port: 8080}
	h := NewRunHandlers(repo, svc, cfg, zerolog.Nop())

	r := chi.NewRouter()
	r.Post("/api/runs", h.HandleStartRun)
	r.Get("/api/runs", h.HandleListRuns)
	r.Get("/api/runs/{runID}", h.HandleGetRun)
	r.Get("/api/runs/{runID}/prices", h.HandleGetPrices)
	r.Get("/api/runs/{runID}/assets", h.HandleGetAssets)
	r.Get("/api/runs/{runID}/export.csv", h.HandleExportCSV)

	return r, repo, cleanup
}

func seedRun(t *testing.T, repo *results.Repository) string {
	t.Helper()
	m := tst.MinimalModel(t)
	pool := model.NewPool()
	require.NoError(t, pool.Add(tst.CommissionedAsset(t, m, "plant-1", 10)))

	slice := timeslice.ID{Season: "all", TimeOfDay: "day"}
	result := &simulation.Result{
		Pool: pool,
		Years: []simulation.YearResult{
			{
				Year: 2030,
				Prices: pricing.Prices{
					{Commodity: "electricity", Region: "north", Slice: slice}: 5,
					{Commodity: "gas", Region: "north", Slice: slice}:         math.NaN(),
				},
				Solution: &dispatch.Solution{
					Objective: 10,
					Activity: map[dispatch.ActivityKey]float64{
						{Asset: "plant-1", Slice: slice}: 10,
					},
				},
				Selected: []model.AssetID{"plant-1"},
			},
		},
	}

	runID, err := repo.CreateRun("baseline.yaml", 42)
	require.NoError(t, err)
	require.NoError(t, repo.SaveResult(runID, result))
	require.NoError(t, repo.FinishRun(runID, results.StatusFinished))
	return runID
}

func TestHandleGetRun_NotFound(t *testing.T) {
	r, _, cleanup := newTestRouter(t)
	defer cleanup()

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs/unknown", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleListRuns(t *testing.T) {
	r, repo, cleanup := newTestRouter(t)
	defer cleanup()
	runID := seedRun(t, repo)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), runID)
}

func TestHandleGetPrices_UnpricedAsNull(t *testing.T) {
	r, repo, cleanup := newTestRouter(t)
	defer cleanup()
	runID := seedRun(t, repo)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs/"+runID+"/prices", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `"commodity":"electricity"`)
	assert.Contains(t, body, `"price":5`)
	assert.Contains(t, body, `"price":null`)
}

func TestHandleGetAssets(t *testing.T) {
	r, repo, cleanup := newTestRouter(t)
	defer cleanup()
	runID := seedRun(t, repo)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs/"+runID+"/assets", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `"id":"plant-1"`)
	assert.Contains(t, body, `"capacity":10`)
}

func TestHandleExportCSV(t *testing.T) {
	r, repo, cleanup := newTestRouter(t)
	defer cleanup()
	runID := seedRun(t, repo)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs/"+runID+"/export.csv", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "milestone_year,commodity,region,time_slice,price", lines[0])
}

func TestHandleStartRun_NoScenarioConfigured(t *testing.T) {
	r, _, cleanup := newTestRouter(t)
	defer cleanup()

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/runs", strings.NewReader(`{}`)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
