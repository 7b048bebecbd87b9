package wheel

import (
	"errors"
	"testing"

	"github.com/ichi0g0y/spinwheel/internal/types"
)

func TestPickTarget_NoSegments(t *testing.T) {
	_, err := PickTarget(nil)
	if !errors.Is(err, ErrNoSegments) {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPickTarget_WeightedSelection(t *testing.T) {
	originalRandom := drawRandomInt
	defer func() {
		drawRandomInt = originalRandom
	}()

	segments := []types.Segment{
		{ID: "1", Name: "Cashback", Weight: 2},
		{ID: "2", Name: "Nothing", Weight: -1}, // excluded
		{ID: "3", Name: "Bonus", Weight: 0},    // counts as 1
		{ID: "4", Name: "Jackpot", Weight: 7},
	}

	drawRandomInt = func(max int) (int, error) {
		if max != 10 {
			t.Fatalf("unexpected total weight: got=%d want=10", max)
		}
		return 2, nil // 3rd ticket => Bonus
	}

	got, err := PickTarget(segments)
	if err != nil {
		t.Fatalf("PickTarget failed: %v", err)
	}
	if got.ID != "3" {
		t.Fatalf("unexpected target: got=%q want=%q", got.ID, "3")
	}

	drawRandomInt = func(max int) (int, error) {
		return 9, nil // last ticket => Jackpot
	}
	got, err = PickTarget(segments)
	if err != nil {
		t.Fatalf("PickTarget failed: %v", err)
	}
	if got.ID != "4" {
		t.Fatalf("unexpected target: got=%q want=%q", got.ID, "4")
	}
}

func TestPickTarget_AllExcluded(t *testing.T) {
	_, err := PickTarget([]types.Segment{{ID: "1", Name: "A", Weight: -1}})
	if !errors.Is(err, ErrNoEligibleSegment) {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPickTarget_RandomSourceError(t *testing.T) {
	originalRandom := drawRandomInt
	defer func() {
		drawRandomInt = originalRandom
	}()
	drawRandomInt = func(max int) (int, error) {
		return 0, errors.New("entropy exhausted")
	}

	if _, err := PickTarget([]types.Segment{{ID: "1", Name: "A"}}); err == nil {
		t.Fatalf("expected error from random source")
	}
}
