package results

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"

	"github.com/meridian-energy/meridian/internal/modules/simulation"
)

// PriceRows flattens an in-memory result into sorted price rows, the same
// shape GetPrices returns from the database. Used for direct CSV export
// without persisting first.
func PriceRows(result *simulation.Result) []PriceRow {
	var rows []PriceRow
	for _, yr := range result.Years {
		for key, value := range yr.Prices {
			rows = append(rows, PriceRow{
				Year:      yr.Year,
				Commodity: string(key.Commodity),
				Region:    string(key.Region),
				Season:    key.Slice.Season,
				TimeOfDay: key.Slice.TimeOfDay,
				Value:     value,
			})
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		if a.Commodity != b.Commodity {
			return a.Commodity < b.Commodity
		}
		if a.Region != b.Region {
			return a.Region < b.Region
		}
		if a.Season != b.Season {
			return a.Season < b.Season
		}
		return a.TimeOfDay < b.TimeOfDay
	})
	return rows
}

// ExportPricesCSV writes price rows as CSV with one row per
// (year, commodity, region, time slice). Unpriced entries (stored as NaN)
// leave the price cell empty.
func ExportPricesCSV(w io.Writer, rows []PriceRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"milestone_year", "commodity", "region", "time_slice", "price"}); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, row := range rows {
		price := ""
		if !math.IsNaN(row.Value) {
			price = strconv.FormatFloat(row.Value, 'g', -1, 64)
		}
		record := []string{
			strconv.Itoa(row.Year),
			row.Commodity,
			row.Region,
			row.Season + "." + row.TimeOfDay,
			price,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// ExportRunCSV streams a stored run's prices as CSV.
func (r *Repository) ExportRunCSV(runID string, w io.Writer) error {
	rows, err := r.GetPrices(runID)
	if err != nil {
		return err
	}
	return ExportPricesCSV(w, rows)
}
