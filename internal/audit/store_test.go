package audit

import (
	"path/filepath"
	"testing"

	"github.com/banshee-data/hypocenter/internal/locate"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("opening audit db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.MigrateUp(); err != nil {
		t.Fatalf("applying migrations: %v", err)
	}
	return db
}

func sampleAudits() []locate.HypoAudit {
	hypo := locate.NewHypocenter(0, 10, 20, 33)
	return []locate.HypoAudit{
		hypo.Snapshot(0, 0, locate.StatusSuccess),
		hypo.Snapshot(0, 1, locate.StatusSuccess),
		hypo.Snapshot(1, 0, locate.StatusNearlyConverged),
	}
}

func TestDB_RecordAndReadRunAudit(t *testing.T) {
	db := openTestDB(t)

	runID := NewRunID()
	audits := sampleAudits()
	co := &locate.CloseOutResult{Quality: "A11", SeResid: 1.2, ErrH: 4.5}

	if err := db.RecordRun(runID, 1700000000, audits, co, 0); err != nil {
		t.Fatalf("recording run: %v", err)
	}

	rows, err := db.RunAudit(runID)
	if err != nil {
		t.Fatalf("reading audit trail: %v", err)
	}
	if len(rows) != len(audits) {
		t.Fatalf("expected %d audit rows, got %d", len(audits), len(rows))
	}
	if rows[0].Stage != 0 || rows[0].Iter != 0 {
		t.Errorf("expected first row stage=0 iter=0, got stage=%d iter=%d", rows[0].Stage, rows[0].Iter)
	}
	if rows[2].Status != locate.StatusNearlyConverged.String() {
		t.Errorf("expected third row status %q, got %q", locate.StatusNearlyConverged.String(), rows[2].Status)
	}
}

func TestDB_RecordRunWithoutCloseOut(t *testing.T) {
	db := openTestDB(t)

	runID := NewRunID()
	if err := db.RecordRun(runID, 1700000000, sampleAudits(), nil, 101); err != nil {
		t.Fatalf("recording run with nil close-out: %v", err)
	}

	rows, err := db.RunAudit(runID)
	if err != nil {
		t.Fatalf("reading audit trail: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 audit rows, got %d", len(rows))
	}
}

func TestDB_RunAuditUnknownRunReturnsEmpty(t *testing.T) {
	db := openTestDB(t)
	rows, err := db.RunAudit("does-not-exist")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("expected no rows for an unknown run id, got %d", len(rows))
	}
}

func TestNewRunID_ProducesDistinctIDs(t *testing.T) {
	a := NewRunID()
	b := NewRunID()
	if a == b {
		t.Errorf("expected distinct run IDs, got %q twice", a)
	}
}
