package history

import (
	"path/filepath"
	"testing"
	"time"
)

func TestRecordFlushAndReadBack(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	base := time.Unix(1_700_000_000, 0)
	s.Record("hash1", SeriesCharge, base, 80.0, "discharging")
	if err := s.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	path := filepath.Join(dir, "history-charge-hash1.dat")
	lines, err := readLines(path)
	if err != nil {
		t.Fatalf("readLines: %v", err)
	}
	if len(lines) != 1 {
		t.Fatalf("len(lines) = %d, want 1", len(lines))
	}
}

func TestGetHistoryReturnsNonDecreasingTimestamps(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	base := time.Now().Add(-10 * time.Minute)
	for i := 0; i < 20; i++ {
		s.Record("hash1", SeriesRate, base.Add(time.Duration(i)*30*time.Second), float64(i), "discharging")
	}

	samples, err := s.GetHistory("hash1", SeriesRate, 20*time.Minute, 5)
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if len(samples) == 0 {
		t.Fatal("expected at least one sample")
	}
	for i := 1; i < len(samples); i++ {
		if samples[i].Time < samples[i-1].Time {
			t.Fatalf("timestamps not non-decreasing: %v", samples)
		}
	}
	if len(samples) > 5 {
		t.Errorf("len(samples) = %d, want <= 5 (resolution)", len(samples))
	}
}

func TestSweepPrunesOldRecords(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	old := time.Unix(1_000_000_000, 0)
	s.Record("hash1", SeriesCharge, old, 50.0, "discharging")
	if err := s.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	now := time.Unix(1_700_000_000, 0)
	if err := s.Sweep(now); err != nil {
		t.Fatalf("Sweep: %v", err)
	}

	lines, err := readLines(filepath.Join(dir, "history-charge-hash1.dat"))
	if err != nil {
		t.Fatalf("readLines: %v", err)
	}
	if len(lines) != 0 {
		t.Errorf("expected old record pruned, got %v", lines)
	}
}
