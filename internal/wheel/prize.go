package wheel

import (
	crand "crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/ichi0g0y/spinwheel/internal/types"
)

var (
	ErrNoEligibleSegment = errors.New("no segment with a positive weight")
	errInvalidWeightSum  = errors.New("invalid total weight")
)

// weightedSegment は累積重み抽選に使用するエントリ。
type weightedSegment struct {
	Index         int
	CumulativeSum int
}

var drawRandomInt = secureRandomInt

// SegmentWeight returns the draw weight of seg: unset (0) counts as 1, negative
// excludes the segment.
func SegmentWeight(seg types.Segment) int {
	switch {
	case seg.Weight < 0:
		return 0
	case seg.Weight == 0:
		return 1
	default:
		return seg.Weight
	}
}

// PickTarget draws a segment with probability proportional to its weight. The
// result is meant to be passed to StartSpin as a deterministic target.
func PickTarget(segments []types.Segment) (*types.Segment, error) {
	if len(segments) == 0 {
		return nil, ErrNoSegments
	}

	weighted := make([]weightedSegment, 0, len(segments))
	total := 0
	for i, seg := range segments {
		w := SegmentWeight(seg)
		if w <= 0 {
			continue
		}
		total += w
		weighted = append(weighted, weightedSegment{Index: i, CumulativeSum: total})
	}
	if len(weighted) == 0 || total <= 0 {
		return nil, ErrNoEligibleSegment
	}

	picked, err := drawRandomInt(total)
	if err != nil {
		return nil, fmt.Errorf("failed to pick random weight: %w", err)
	}

	target := picked + 1 // 1-based index
	idx := sort.Search(len(weighted), func(i int) bool {
		return weighted[i].CumulativeSum >= target
	})
	if idx >= len(weighted) {
		return nil, errInvalidWeightSum
	}

	winner := segments[weighted[idx].Index]
	return &winner, nil
}

func secureRandomInt(max int) (int, error) {
	if max <= 0 {
		return 0, errInvalidWeightSum
	}

	n, err := crand.Int(crand.Reader, big.NewInt(int64(max)))
	if err != nil {
		return 0, err
	}
	return int(n.Int64()), nil
}
