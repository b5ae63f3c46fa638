// Package timeslice models the temporal hierarchy the simulator runs on.
// A year is divided into seasons, and each season into time-of-day categories.
// Every (season, time-of-day) pair is a time slice carrying the fraction of
// the year it represents; fractions over all slices sum to 1.
//
// Quantities in the model (demand, levies, balance constraints) are specified
// at one of three granularities - annual, per season, or per individual slice.
// This package resolves textual selections, iterates the slices a selection
// contains, and distributes scalar values across them by year fraction.
package timeslice

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrUnknownSelection is returned when a textual selection references a
// season or time-of-day that is not registered in the hierarchy.
var ErrUnknownSelection = errors.New("unknown time slice selection")

// fractionTolerance is the allowed deviation of the year-fraction sum from 1.
const fractionTolerance = 1e-6

// ID identifies a single time slice as a (season, time-of-day) pair.
type ID struct {
	Season    string
	TimeOfDay string
}

// String returns the canonical "season.timeofday" form.
func (id ID) String() string {
	return id.Season + "." + id.TimeOfDay
}

// Level is the granularity of a selection. Finer data can always be expanded
// to fit coarser constraints, never the reverse.
type Level int

const (
	LevelAnnual Level = iota
	LevelSeason
	LevelDayNight
)

// String returns the level name as it appears in input files.
func (l Level) String() string {
	switch l {
	case LevelAnnual:
		return "annual"
	case LevelSeason:
		return "season"
	case LevelDayNight:
		return "daynight"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// ParseLevel parses a level name from input files.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "annual":
		return LevelAnnual, nil
	case "season":
		return LevelSeason, nil
	case "daynight", "day_night":
		return LevelDayNight, nil
	default:
		return 0, fmt.Errorf("unknown time slice level %q", s)
	}
}

// Selection is a variant over {whole year, one season, one specific slice}.
// The zero value is the annual selection. Selections are comparable and used
// as map keys throughout the engine.
type Selection struct {
	level  Level
	season string
	slice  ID
}

// Annual selects the whole year.
func Annual() Selection {
	return Selection{level: LevelAnnual}
}

// Season selects one season.
func Season(name string) Selection {
	return Selection{level: LevelSeason, season: name}
}

// Single selects one specific time slice.
func Single(id ID) Selection {
	return Selection{level: LevelDayNight, slice: id}
}

// Level reports the granularity of the selection.
func (s Selection) Level() Level {
	return s.level
}

// String returns the textual form accepted by Hierarchy.Resolve.
func (s Selection) String() string {
	switch s.level {
	case LevelAnnual:
		return "annual"
	case LevelSeason:
		return s.season
	default:
		return s.slice.String()
	}
}

// Contains reports whether the given slice falls inside the selection.
func (s Selection) Contains(id ID) bool {
	switch s.level {
	case LevelAnnual:
		return true
	case LevelSeason:
		return id.Season == s.season
	default:
		return id == s.slice
	}
}

// Slice pairs a time slice with its fraction of the year.
type Slice struct {
	ID       ID
	Fraction float64
}

// Entry declares one time slice when constructing a hierarchy.
type Entry struct {
	Season    string
	TimeOfDay string
	Fraction  float64
}

// Hierarchy is the immutable set of time slices for a model run. Iteration
// order everywhere follows declaration order - sums of floating-point values
// are order dependent, so ordered iteration is a correctness requirement,
// not a nicety.
type Hierarchy struct {
	seasons    []string
	timesOfDay []string
	slices     []Slice
	fractions  map[ID]float64
	seasonSet  map[string]bool
	todSet     map[string]bool
}

// NewHierarchy builds a hierarchy from declared entries. Fractions must be
// positive and sum to 1 within tolerance, and no slice may appear twice.
func NewHierarchy(entries []Entry) (*Hierarchy, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("time slice hierarchy requires at least one slice")
	}

	h := &Hierarchy{
		fractions: make(map[ID]float64, len(entries)),
		seasonSet: make(map[string]bool),
		todSet:    make(map[string]bool),
	}

	sum := 0.0
	for _, e := range entries {
		id := ID{Season: e.Season, TimeOfDay: e.TimeOfDay}
		if e.Season == "" || e.TimeOfDay == "" {
			return nil, fmt.Errorf("time slice %q has an empty season or time-of-day", id)
		}
		if _, dup := h.fractions[id]; dup {
			return nil, fmt.Errorf("duplicate time slice %q", id)
		}
		if e.Fraction <= 0 || math.IsNaN(e.Fraction) || math.IsInf(e.Fraction, 0) {
			return nil, fmt.Errorf("time slice %q has invalid fraction %v", id, e.Fraction)
		}

		if !h.seasonSet[e.Season] {
			h.seasonSet[e.Season] = true
			h.seasons = append(h.seasons, e.Season)
		}
		if !h.todSet[e.TimeOfDay] {
			h.todSet[e.TimeOfDay] = true
			h.timesOfDay = append(h.timesOfDay, e.TimeOfDay)
		}

		h.fractions[id] = e.Fraction
		h.slices = append(h.slices, Slice{ID: id, Fraction: e.Fraction})
		sum += e.Fraction
	}

	if math.Abs(sum-1.0) > fractionTolerance {
		return nil, fmt.Errorf("time slice fractions sum to %v, expected 1", sum)
	}

	return h, nil
}

// Seasons returns the seasons in declaration order.
func (h *Hierarchy) Seasons() []string {
	return h.seasons
}

// Slices returns all time slices in declaration order.
func (h *Hierarchy) Slices() []Slice {
	return h.slices
}

// Fraction returns the year fraction of a single slice, or 0 for an
// unregistered one.
func (h *Hierarchy) Fraction(id ID) float64 {
	return h.fractions[id]
}

// Resolve parses a textual selection: "annual", a season name, or
// "season.timeofday". Unregistered names fail with ErrUnknownSelection.
func (h *Hierarchy) Resolve(text string) (Selection, error) {
	trimmed := strings.TrimSpace(text)
	if strings.EqualFold(trimmed, "annual") {
		return Annual(), nil
	}

	if season, tod, found := strings.Cut(trimmed, "."); found {
		id := ID{Season: season, TimeOfDay: tod}
		if _, ok := h.fractions[id]; !ok {
			return Selection{}, fmt.Errorf("%w: %q", ErrUnknownSelection, trimmed)
		}
		return Single(id), nil
	}

	if !h.seasonSet[trimmed] {
		return Selection{}, fmt.Errorf("%w: %q", ErrUnknownSelection, trimmed)
	}
	return Season(trimmed), nil
}

// Iter returns the slices within a selection, in declaration order, each with
// its year fraction.
func (h *Hierarchy) Iter(sel Selection) []Slice {
	var out []Slice
	for _, s := range h.slices {
		if sel.Contains(s.ID) {
			out = append(out, s)
		}
	}
	return out
}

// SelectionFraction returns the total year fraction covered by a selection.
func (h *Hierarchy) SelectionFraction(sel Selection) float64 {
	total := 0.0
	for _, s := range h.Iter(sel) {
		total += s.Fraction
	}
	return total
}

// AtLevel returns the selections that exist at the requested level within the
// given selection, in declaration order. Expanding annual to LevelSeason
// yields one selection per season; contracting a single slice to LevelSeason
// yields its season. Requesting the selection's own level yields the
// selection itself.
func (h *Hierarchy) AtLevel(sel Selection, level Level) []Selection {
	switch level {
	case LevelAnnual:
		return []Selection{Annual()}
	case LevelSeason:
		switch sel.level {
		case LevelAnnual:
			out := make([]Selection, 0, len(h.seasons))
			for _, season := range h.seasons {
				out = append(out, Season(season))
			}
			return out
		case LevelSeason:
			return []Selection{sel}
		default:
			return []Selection{Season(sel.slice.Season)}
		}
	default:
		slices := h.Iter(sel)
		out := make([]Selection, 0, len(slices))
		for _, s := range slices {
			out = append(out, Single(s.ID))
		}
		return out
	}
}

// Share distributes a scalar value across the selections at the requested
// level within sel, in proportion to each one's year fraction. It returns
// ok=false when asked to distribute to a level coarser than the selection's
// own - that is a static incompatibility the caller must check for, not a
// runtime error.
func (h *Hierarchy) Share(sel Selection, level Level, value float64) (map[Selection]float64, bool) {
	if level < sel.level {
		return nil, false
	}

	total := h.SelectionFraction(sel)
	if total <= 0 {
		return nil, false
	}

	out := make(map[Selection]float64)
	for _, sub := range h.AtLevel(sel, level) {
		out[sub] = value * h.SelectionFraction(sub) / total
	}
	return out, true
}
