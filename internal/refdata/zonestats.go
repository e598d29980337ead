package refdata

import (
	"encoding/json"
	"fmt"
	"os"
)

// ZoneStat is the per-zone depth statistic spec §3 describes: the
// mean/min/max depth of cataloged events within a geographic cell,
// used to derive a Bayesian depth prior when no analyst prior is
// supplied.
type ZoneStat struct {
	MeanDepth float64 `json:"meanDepth"`
	MinDepth  float64 `json:"minDepth"`
	MaxDepth  float64 `json:"maxDepth"`
}

// ZoneStatistics is an immutable, Marsden-square-keyed lookup table.
// Cells are 1°x1° (a simplified Marsden indexing, not the full
// official 10°-square/1°-subsquare numbering, since spec.md does not
// prescribe the exact cell scheme — only that lookup is by lat/lon).
type ZoneStatistics struct {
	cells map[int]ZoneStat
}

// marsdenKey maps a (lat, lon) pair in degrees to a 1° cell index.
func marsdenKey(lat, lon float64) int {
	latBand := int(lat + 90.0) // 0..180
	lonBand := int(lon + 180.0) // 0..360
	if latBand < 0 {
		latBand = 0
	}
	if latBand > 180 {
		latBand = 180
	}
	if lonBand < 0 {
		lonBand = 0
	}
	if lonBand > 360 {
		lonBand = 360
	}
	return latBand*361 + lonBand
}

// NewZoneStatistics builds a table from cell->stat entries keyed by
// 1°-cell (lat, lon) pairs.
func NewZoneStatistics(entries map[Point]ZoneStat) *ZoneStatistics {
	cells := make(map[int]ZoneStat, len(entries))
	for pt, stat := range entries {
		cells[marsdenKey(pt.Lat, pt.Lon)] = stat
	}
	return &ZoneStatistics{cells: cells}
}

// Lookup returns the zone statistic for the 1° cell containing
// (lat, lon), and whether an entry exists for that cell.
func (z *ZoneStatistics) Lookup(lat, lon float64) (ZoneStat, bool) {
	s, ok := z.cells[marsdenKey(lat, lon)]
	return s, ok
}

// jsonEntry is the on-disk representation of one zone-statistics row.
type jsonEntry struct {
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	MeanDepth float64 `json:"meanDepth"`
	MinDepth  float64 `json:"minDepth"`
	MaxDepth  float64 `json:"maxDepth"`
}

// LoadZoneStatistics loads a ZoneStatistics table from a JSON file of
// [{lat, lon, meanDepth, minDepth, maxDepth}, ...] rows. There are no
// defaults: a field a row omits reads as 0.
func LoadZoneStatistics(path string) (*ZoneStatistics, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading zone statistics file: %w", err)
	}
	var rows []jsonEntry
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("parsing zone statistics file: %w", err)
	}
	entries := make(map[Point]ZoneStat, len(rows))
	for _, r := range rows {
		entries[Point{Lat: r.Lat, Lon: r.Lon}] = ZoneStat{
			MeanDepth: r.MeanDepth,
			MinDepth:  r.MinDepth,
			MaxDepth:  r.MaxDepth,
		}
	}
	return NewZoneStatistics(entries), nil
}

// BayesPrior derives the (depth, spread) pair spec §4.6 wants when no
// analyst Bayesian prior is set: the zone's mean depth, with a spread
// representing a 90th-percentile width derived from the zone's
// min/max depth range.
func (z *ZoneStatistics) BayesPrior(lat, lon float64) (depth, spread float64, ok bool) {
	s, found := z.Lookup(lat, lon)
	if !found {
		return 0, 0, false
	}
	spread = (s.MaxDepth - s.MinDepth) / 2.0
	if spread < 5.0 {
		spread = 5.0
	}
	return s.MeanDepth, spread, true
}
