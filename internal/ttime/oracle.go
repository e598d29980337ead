// Package ttime defines the facade this repo consumes the external
// travel-time table generator through (spec §4.1). The core location
// engine never depends on a concrete table generator; it depends only
// on the Oracle interface below.
package ttime

// Arrival is one theoretical phase arrival returned by an Oracle query,
// already time-sorted within the returned slice.
type Arrival struct {
	Phase         string  // Phase code, e.g. "P", "Pg", "pP".
	Time          float64 // Predicted arrival time, s after origin time.
	RayParam      float64 // Ray parameter / slowness, s/°.
	DTDD          float64 // ∂T/∂delta, s/°.
	DTDZ          float64 // ∂T/∂depth, s/km.
	Spread        float64 // Statistical spread (1-sigma equivalent), s.
	Observability float64 // Relative observability weight, (0,1].
	Window        float64 // Clustering half-width, s.
	Group         string  // Primary phase group, e.g. "P", "S".
	AuxGroup      string  // Auxiliary group tag.
	Regional      bool    // True if this is a regional phase branch.
	Usable        bool    // True if this arrival may be assigned to a pick.
	Disabled      bool    // True if downweighted (e.g. a back branch).
}

// Query describes a single travel-time lookup: a source at a given
// depth queried from a station at a given delta/azimuth, with the
// oracle-wide flags spec §4.1 lists.
type Query struct {
	SourceLat  float64
	SourceLon  float64
	Depth      float64 // km
	Elevation  float64 // station elevation, km
	Delta      float64 // degrees
	Azimuth    float64 // degrees
	UsefulOnly bool
	Tectonic   bool
	NoBack     bool
	RSTT       bool
}

// ErrBadDepth is returned by an Oracle when the requested source depth
// falls outside the table's valid range (spec §7, BAD_DEPTH).
var ErrBadDepth = &OracleError{Msg: "source depth out of range"}

// OracleError is a simple sentinel-compatible error type for oracle
// failures; a reimplementation of a real travel-time library would
// likely return a richer error, but the core only distinguishes
// "bad depth" from other failures.
type OracleError struct{ Msg string }

func (e *OracleError) Error() string { return e.Msg }

// Oracle is the external travel-time table generator's interface, as
// consumed by the core. A concrete implementation must return arrivals
// already sorted by Time.
type Oracle interface {
	Arrivals(q Query) ([]Arrival, error)
}
