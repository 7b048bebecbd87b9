package localdb

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ichi0g0y/spinwheel/internal/types"
)

func setupTestDB(t *testing.T) {
	t.Helper()
	if DBClient != nil {
		_ = DBClient.Close()
		DBClient = nil
	}

	dbPath := filepath.Join(t.TempDir(), "local.db")
	db, err := SetupDB(dbPath)
	if err != nil {
		t.Fatalf("SetupDB failed: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
		DBClient = nil
	})
}

func TestSpinRecords(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()

	if _, ok, err := GetLastSpin(ctx, "user-1"); err != nil || ok {
		t.Fatalf("unexpected record before first spin: ok=%v err=%v", ok, err)
	}

	before := time.Now().Add(-time.Second)
	stamped, err := TouchLastSpin(ctx, "user-1")
	if err != nil {
		t.Fatalf("TouchLastSpin failed: %v", err)
	}
	if stamped.Before(before) || stamped.After(time.Now().Add(time.Second)) {
		t.Fatalf("unexpected stored timestamp: %v", stamped)
	}

	got, ok, err := GetLastSpin(ctx, "user-1")
	if err != nil || !ok {
		t.Fatalf("GetLastSpin failed: ok=%v err=%v", ok, err)
	}
	if !got.Equal(stamped) {
		t.Fatalf("unexpected last spin: got=%v want=%v", got, stamped)
	}

	if err := DeleteSpinRecord(ctx, "user-1"); err != nil {
		t.Fatalf("DeleteSpinRecord failed: %v", err)
	}
	if _, ok, _ := GetLastSpin(ctx, "user-1"); ok {
		t.Fatalf("record should be gone after delete")
	}
}

func TestLocalKV(t *testing.T) {
	setupTestDB(t)

	if _, ok, err := GetValue("missing"); err != nil || ok {
		t.Fatalf("unexpected value for missing key: ok=%v err=%v", ok, err)
	}

	kv := KV{}
	if err := kv.Set("spinwheel-stats-v1", `{"spinsCount":1}`); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := kv.Set("spinwheel-stats-v1", `{"spinsCount":2}`); err != nil {
		t.Fatalf("Set overwrite failed: %v", err)
	}
	if v, ok := kv.Get("spinwheel-stats-v1"); !ok || v != `{"spinsCount":2}` {
		t.Fatalf("unexpected value: got=%q ok=%v", v, ok)
	}

	if err := DeleteValue("spinwheel-stats-v1"); err != nil {
		t.Fatalf("DeleteValue failed: %v", err)
	}
	if _, ok := kv.Get("spinwheel-stats-v1"); ok {
		t.Fatalf("value should be gone after delete")
	}
}

func TestSpinHistoryCRUD(t *testing.T) {
	setupTestDB(t)

	now := time.Now()
	if err := SaveSpinHistory(SpinHistory{
		OutcomeID:  "out-1",
		UserID:     "user-1",
		WinnerID:   "seg-1",
		WinnerName: "Gift Card",
		SpinsCount: 1,
		SettledAt:  now.Add(-time.Minute),
	}); err != nil {
		t.Fatalf("SaveSpinHistory first failed: %v", err)
	}
	if err := SaveSpinHistory(SpinHistory{
		OutcomeID:     "out-2",
		UserID:        "user-2",
		WinnerID:      "seg-3",
		WinnerName:    "Cashback",
		WinnerIndex:   2,
		Deterministic: true,
		SpinsCount:    2,
		SettledAt:     now,
	}); err != nil {
		t.Fatalf("SaveSpinHistory second failed: %v", err)
	}

	history, err := GetSpinHistory(1)
	if err != nil {
		t.Fatalf("GetSpinHistory(limit=1) failed: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("unexpected history length for limit=1: got=%d want=1", len(history))
	}
	if history[0].WinnerName != "Cashback" || !history[0].Deterministic {
		t.Fatalf("history order mismatch: got=%+v", history[0])
	}

	item, err := GetSpinHistoryByOutcome("out-1")
	if err != nil {
		t.Fatalf("GetSpinHistoryByOutcome failed: %v", err)
	}
	if item.WinnerName != "Gift Card" || item.UserID != "user-1" {
		t.Fatalf("unexpected history item: %+v", item)
	}
	if _, err := GetSpinHistoryByOutcome("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing outcome: got=%v want=%v", err, ErrNotFound)
	}

	full, err := GetSpinHistory(0)
	if err != nil {
		t.Fatalf("GetSpinHistory(limit=0) failed: %v", err)
	}
	if len(full) != 2 {
		t.Fatalf("unexpected full history length: got=%d want=2", len(full))
	}

	if err := DeleteSpinHistory(full[0].ID); err != nil {
		t.Fatalf("DeleteSpinHistory failed: %v", err)
	}
	if err := DeleteSpinHistory(full[0].ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete: got=%v want=%v", err, ErrNotFound)
	}

	afterDelete, err := GetSpinHistory(0)
	if err != nil {
		t.Fatalf("GetSpinHistory after delete failed: %v", err)
	}
	if len(afterDelete) != 1 {
		t.Fatalf("unexpected history length after delete: got=%d want=1", len(afterDelete))
	}
}

func TestWheelSegmentsRoundTrip(t *testing.T) {
	setupTestDB(t)

	empty, err := GetWheelSegments()
	if err != nil {
		t.Fatalf("GetWheelSegments failed: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected no saved segments: got=%d", len(empty))
	}

	segs := []types.Segment{
		{ID: "b", Name: "Bonus", Color: "#ef4444", Weight: 2},
		{ID: "a", Name: "Again", Color: "#f59e0b"},
	}
	if err := SaveWheelSegments(segs); err != nil {
		t.Fatalf("SaveWheelSegments failed: %v", err)
	}
	if err := SaveWheelSegments(segs[:1]); err != nil {
		t.Fatalf("SaveWheelSegments replace failed: %v", err)
	}

	got, err := GetWheelSegments()
	if err != nil {
		t.Fatalf("GetWheelSegments failed: %v", err)
	}
	if len(got) != 1 || got[0] != segs[0] {
		t.Fatalf("unexpected segments: got=%+v want=%+v", got, segs[:1])
	}
}
