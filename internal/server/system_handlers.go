package server

import (
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/meridian-energy/meridian/internal/database"
	"github.com/meridian-energy/meridian/internal/modules/runs"
)

// SystemHandlers serves monitoring endpoints.
type SystemHandlers struct {
	log        zerolog.Logger
	dataDir    string
	resultsDB  *database.DB
	runService *runs.Service
}

// NewSystemHandlers creates system handlers.
func NewSystemHandlers(log zerolog.Logger, dataDir string, resultsDB *database.DB, runService *runs.Service) *SystemHandlers {
	return &SystemHandlers{
		log:        log.With().Str("component", "system_handlers").Logger(),
		dataDir:    dataDir,
		resultsDB:  resultsDB,
		runService: runService,
	}
}

// systemStatusResponse is the body of GET /api/system/status.
type systemStatusResponse struct {
	Status     string   `json:"status"`
	CPUPercent float64  `json:"cpu_percent"`
	RAMPercent float64  `json:"ram_percent"`
	ActiveRuns []string `json:"active_runs"`
	Database   bool     `json:"database_ok"`
	Timestamp  string   `json:"timestamp"`
}

// HandleSystemStatus returns overall system status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting system status")

	cpuPct, ramPct := h.getSystemStats()

	dbOK := true
	if err := h.resultsDB.QuickCheck(r.Context()); err != nil {
		h.log.Warn().Err(err).Msg("Results database unreachable")
		dbOK = false
	}

	status := "ok"
	if !dbOK {
		status = "degraded"
	}

	respondJSON(w, http.StatusOK, systemStatusResponse{
		Status:     status,
		CPUPercent: cpuPct,
		RAMPercent: ramPct,
		ActiveRuns: h.runService.Active(),
		Database:   dbOK,
		Timestamp:  time.Now().Format(time.RFC3339),
	})
}

// HandleDatabaseStats returns size and page statistics of the results
// database.
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.resultsDB.GetStats()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to collect database stats")
		respondError(w, http.StatusInternalServerError, "failed to collect database stats")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"name":           h.resultsDB.Name(),
		"size_bytes":     stats.SizeBytes,
		"wal_size_bytes": stats.WALSizeBytes,
		"page_count":     stats.PageCount,
		"page_size":      stats.PageSize,
		"freelist_count": stats.FreelistCount,
	})
}

// HandleDiskUsage returns disk usage statistics of the data directory
func (h *SystemHandlers) HandleDiskUsage(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting disk usage")

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"data_dir":       h.dataDir,
		"data_dir_bytes": h.getDirSize(h.dataDir),
		"database_bytes": h.getFileSize(h.resultsDB.Path()),
		"wal_bytes":      h.getFileSize(h.resultsDB.Path() + "-wal"),
		"collected_at":   time.Now().Format(time.RFC3339),
	})
}

// getSystemStats calculates CPU and RAM usage percentages.
// Uses a short interval (100ms) so the endpoint stays responsive.
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return cpuPercent[0], 0
	}

	return cpuPercent[0], memStat.UsedPercent
}

// getDirSize sums the file sizes under a directory, ignoring errors.
func (h *SystemHandlers) getDirSize(dir string) int64 {
	var total int64
	_ = filepath.Walk(dir, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	return total
}

func (h *SystemHandlers) getFileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
