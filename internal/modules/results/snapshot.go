package results

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/meridian-energy/meridian/internal/modules/simulation"
)

// Snapshot is the compact stored form of one year's dispatch solution.
// Composite keys are flattened to strings so the encoding stays stable and
// readable from other tools.
type Snapshot struct {
	Year      int                `msgpack:"year" json:"year"`
	Objective float64            `msgpack:"objective" json:"objective"`
	Selected  []string           `msgpack:"selected" json:"selected"`
	Activity  map[string]float64 `msgpack:"activity" json:"activity"` // "asset|season.tod"
	Unmet     map[string]float64 `msgpack:"unmet" json:"unmet"`       // "commodity|region|selection"
}

func encodeSnapshot(yr simulation.YearResult) ([]byte, error) {
	snap := Snapshot{
		Year:     yr.Year,
		Activity: make(map[string]float64),
		Unmet:    make(map[string]float64),
	}
	for _, id := range yr.Selected {
		snap.Selected = append(snap.Selected, string(id))
	}
	if sol := yr.Solution; sol != nil {
		snap.Objective = sol.Objective
		for key, v := range sol.Activity {
			snap.Activity[fmt.Sprintf("%s|%s", key.Asset, key.Slice)] = v
		}
		for key, v := range sol.Unmet {
			snap.Unmet[fmt.Sprintf("%s|%s|%s", key.Commodity, key.Region, key.Slice)] = v
		}
	}

	blob, err := msgpack.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot for year %d: %w", yr.Year, err)
	}
	return blob, nil
}

func decodeSnapshot(blob []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := msgpack.Unmarshal(blob, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &snap, nil
}
