package wheel

import "math"

// TAU is one full turn in radians.
const TAU = 2 * math.Pi

// SegmentWidth returns the angular width of one of n segments (0 when n <= 0).
func SegmentWidth(n int) float64 {
	if n <= 0 {
		return 0
	}
	return TAU / float64(n)
}

// NormalizeAngle maps any angle into [0, TAU). Non-finite input maps to 0.
func NormalizeAngle(angle float64) float64 {
	if math.IsNaN(angle) || math.IsInf(angle, 0) {
		return 0
	}
	a := math.Mod(angle, TAU)
	if a < 0 {
		a += TAU
	}
	// -ε + TAU rounds up to TAU
	if a >= TAU {
		a = 0
	}
	return a
}

// SegmentIndexForAngle returns the index of the segment under the pointer, or -1
// when there are no segments.
func SegmentIndexForAngle(angle float64, segmentCount int) int {
	if segmentCount <= 0 {
		return -1
	}
	idx := int(NormalizeAngle(angle) / SegmentWidth(segmentCount))
	if idx >= segmentCount {
		idx = segmentCount - 1
	}
	return idx
}

// SegmentCenter returns the angle of the middle of segment index.
func SegmentCenter(index, segmentCount int) float64 {
	return (float64(index) + 0.5) * SegmentWidth(segmentCount)
}

// DeltaParams are the inputs of DeterministicDelta.
type DeltaParams struct {
	CurrentAngle   float64
	TargetIndex    int
	SegmentCount   int
	ExtraRotations int
}

// DeterministicDelta returns the forward rotation that brings the pointer to the
// centre of the target segment after ExtraRotations full turns. ok is false when
// the target is out of range.
func DeterministicDelta(p DeltaParams) (delta float64, ok bool) {
	if p.SegmentCount <= 0 || p.TargetIndex < 0 || p.TargetIndex >= p.SegmentCount {
		return 0, false
	}
	extra := p.ExtraRotations
	if extra < 0 {
		extra = 0
	}

	target := SegmentCenter(p.TargetIndex, p.SegmentCount)
	base := NormalizeAngle(target - NormalizeAngle(p.CurrentAngle))
	return base + float64(extra)*TAU, true
}
