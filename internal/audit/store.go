package audit

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/banshee-data/hypocenter/internal/locate"
)

// NewRunID mints a run identifier, the same uuid-per-run pattern the
// teacher's tracking code uses for track IDs.
func NewRunID() string {
	return uuid.NewString()
}

// RecordRun persists one run's full HypoAudit trail and final
// Close-out report under runID, creating the parent runs row first.
func (db *DB) RecordRun(runID string, createdAtUnix int64, audits []locate.HypoAudit, co *locate.CloseOutResult, exitCode int) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("beginning audit transaction: %w", err)
	}
	defer tx.Rollback()

	quality := ""
	if co != nil {
		quality = co.Quality
	}
	if _, err := tx.Exec(
		`INSERT INTO runs (run_id, created_at, exit_code, quality) VALUES (?, ?, ?, ?)`,
		runID, createdAtUnix, exitCode, quality,
	); err != nil {
		return fmt.Errorf("inserting run row: %w", err)
	}

	for _, a := range audits {
		if _, err := tx.Exec(
			`INSERT INTO hypo_audit (run_id, stage, iter, origin_time, lat, lon, depth_km, step_len, del_h, del_z, rms, status)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, a.Stage, a.Iter, a.OriginTime, a.Lat, a.Lon, a.DepthKm, a.StepLen, a.DelH, a.DelZ, a.RMS, a.Status.String(),
		); err != nil {
			return fmt.Errorf("inserting hypo_audit row: %w", err)
		}
	}

	if co != nil {
		if _, err := tx.Exec(
			`INSERT INTO close_out (run_id, se_time, se_lat, se_lon, se_depth, se_resid, err_h, err_z, ave_h, bayes_depth, bayes_spread, bayes_import, azim_gap, robust_gap, quality)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, co.SeTime, co.SeLat, co.SeLon, co.SeDepth, co.SeResid, co.ErrH, co.ErrZ, co.AveH,
			co.BayesDepth, co.BayesSpread, co.BayesImport, co.AzimGap, co.RobustGap, co.Quality,
		); err != nil {
			return fmt.Errorf("inserting close_out row: %w", err)
		}
	}

	return tx.Commit()
}

// AuditRow is one stage/iteration snapshot as read back from storage.
type AuditRow struct {
	Stage      int
	Iter       int
	OriginTime float64
	Lat        float64
	Lon        float64
	DepthKm    float64
	StepLen    float64
	DelH       float64
	DelZ       float64
	RMS        float64
	Status     string
}

// RunAudit returns the full HypoAudit trail for a run, ordered by
// stage then iteration.
func (db *DB) RunAudit(runID string) ([]AuditRow, error) {
	rows, err := db.Query(
		`SELECT stage, iter, origin_time, lat, lon, depth_km, step_len, del_h, del_z, rms, status
		 FROM hypo_audit WHERE run_id = ? ORDER BY stage, iter`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying hypo_audit: %w", err)
	}
	defer rows.Close()

	var out []AuditRow
	for rows.Next() {
		var a AuditRow
		if err := rows.Scan(&a.Stage, &a.Iter, &a.OriginTime, &a.Lat, &a.Lon, &a.DepthKm, &a.StepLen, &a.DelH, &a.DelZ, &a.RMS, &a.Status); err != nil {
			return nil, fmt.Errorf("scanning hypo_audit row: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
