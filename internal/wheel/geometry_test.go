package wheel

import (
	"math"
	"testing"
)

func TestSegmentIndexForAngle_RangeAndPeriodicity(t *testing.T) {
	// 区画境界ちょうどの角度は浮動小数の丸めで隣に倒れるため避ける
	angles := []float64{0, 0.1, 1, 2.5, TAU - 1e-9, -0.1, -0.7, -7.5, 123.456, -987.654, 1e6 + 0.3}
	for n := 1; n <= 12; n++ {
		for _, a := range angles {
			idx := SegmentIndexForAngle(a, n)
			if idx < 0 || idx >= n {
				t.Fatalf("index out of range: angle=%v n=%d got=%d", a, n, idx)
			}
			if shifted := SegmentIndexForAngle(a+TAU, n); shifted != idx {
				t.Fatalf("not periodic: angle=%v n=%d got=%d want=%d", a, n, shifted, idx)
			}
		}
	}
}

func TestSegmentIndexForAngle_Mapping(t *testing.T) {
	w := SegmentWidth(4)
	cases := []struct {
		angle float64
		want  int
	}{
		{0, 0},
		{w * 0.5, 0},
		{w, 1},
		{w * 2.5, 2},
		{w*4 - 1e-9, 3},
		{-w * 0.5, 3}, // negative angles wrap
		{-TAU - w*0.5, 3},
	}
	for _, tc := range cases {
		if got := SegmentIndexForAngle(tc.angle, 4); got != tc.want {
			t.Fatalf("unexpected index for angle %v: got=%d want=%d", tc.angle, got, tc.want)
		}
	}
}

func TestSegmentIndexForAngle_EmptyAndNonFinite(t *testing.T) {
	if got := SegmentIndexForAngle(1, 0); got != -1 {
		t.Fatalf("empty list: got=%d want=-1", got)
	}
	if got := SegmentIndexForAngle(math.NaN(), 4); got != 0 {
		t.Fatalf("NaN angle: got=%d want=0", got)
	}
	if got := SegmentIndexForAngle(math.Inf(-1), 4); got != 0 {
		t.Fatalf("-Inf angle: got=%d want=0", got)
	}
}

func TestDeterministicDelta_LandsOnTarget(t *testing.T) {
	starts := []float64{0, 0.3, -2.1, 17.25, -100, TAU * 3}
	for n := 1; n <= 10; n++ {
		for target := 0; target < n; target++ {
			for extra := 0; extra <= 5; extra++ {
				for _, a := range starts {
					delta, ok := DeterministicDelta(DeltaParams{CurrentAngle: a, TargetIndex: target, SegmentCount: n, ExtraRotations: extra})
					if !ok {
						t.Fatalf("unexpected invalid target: n=%d target=%d", n, target)
					}
					if got := SegmentIndexForAngle(a+delta, n); got != target {
						t.Fatalf("missed target: start=%v n=%d extra=%d got=%d want=%d", a, n, extra, got, target)
					}
					if delta < float64(extra)*TAU {
						t.Fatalf("delta too small: got=%v want>=%v", delta, float64(extra)*TAU)
					}
					if delta >= float64(extra+1)*TAU {
						t.Fatalf("delta too large: got=%v want<%v", delta, float64(extra+1)*TAU)
					}
				}
			}
		}
	}
}

func TestDeterministicDelta_WorkedExample(t *testing.T) {
	delta, ok := DeterministicDelta(DeltaParams{CurrentAngle: 0, TargetIndex: 2, SegmentCount: 4, ExtraRotations: 4})
	if !ok {
		t.Fatalf("target should be valid")
	}
	want := 8*math.Pi + 5*math.Pi/4
	if math.Abs(delta-want) > 1e-9 {
		t.Fatalf("unexpected delta: got=%v want=%v", delta, want)
	}
	if final := NormalizeAngle(delta); math.Abs(final-5*math.Pi/4) > 1e-9 {
		t.Fatalf("unexpected final angle: got=%v want=%v", final, 5*math.Pi/4)
	}
	if got := SegmentIndexForAngle(delta, 4); got != 2 {
		t.Fatalf("unexpected landing index: got=%d want=2", got)
	}
}

func TestDeterministicDelta_InvalidTarget(t *testing.T) {
	for _, p := range []DeltaParams{
		{TargetIndex: -1, SegmentCount: 4},
		{TargetIndex: 4, SegmentCount: 4},
		{TargetIndex: 0, SegmentCount: 0},
	} {
		if _, ok := DeterministicDelta(p); ok {
			t.Fatalf("expected invalid target for %+v", p)
		}
	}
}
