package wheel

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/ichi0g0y/spinwheel/internal/types"
)

const (
	// Friction is applied to the velocity once per tick.
	Friction = 0.99
	// MinVelocity is the settle threshold in rad per nominal frame.
	MinVelocity = 0.0025
	// NominalFrame is the frame interval velocities are expressed in (~60fps).
	NominalFrame = 16670 * time.Microsecond

	defaultExtraRotations = 4
	reducedExtraRotations = 1
	reducedMotionVelocity = 0.35
	baseVelocity          = 0.5
	velocitySpread        = 0.6
	nudgeDivisor          = 8
)

var ErrNoSegments = errors.New("no segments provided")

// DuplicateNameError is reported when two segments share a name.
type DuplicateNameError struct {
	Name    string
	Indices []int
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("segment names must be unique: duplicate name '%s'", e.Name)
}

// DuplicateIDError is reported when two segments share an id.
type DuplicateIDError struct {
	ID      string
	Indices []int
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("segment ids must be unique: duplicate id '%s'", e.ID)
}

// ルーレット用の色パレット（色未指定の区画用）
var colorPalette = []string{
	"#ef4444", "#f59e0b", "#10b981", "#3b82f6", "#8b5cf6",
	"#ec4899", "#14b8a6", "#f97316", "#06b6d4", "#a855f7",
}

// DefaultColor returns the palette colour assigned to index.
func DefaultColor(index int) string {
	if index < 0 {
		index = -index
	}
	return colorPalette[index%len(colorPalette)]
}

// Direction of a manual nudge.
type Direction int

const (
	DirectionLeft  Direction = -1
	DirectionRight Direction = 1
)

// ParseDirection accepts "left"/"right" (case-insensitive).
func ParseDirection(s string) (Direction, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "left":
		return DirectionLeft, true
	case "right":
		return DirectionRight, true
	}
	return 0, false
}

// Options tune the spin profile.
type Options struct {
	ReducedMotion         bool
	ExtraRotations        int
	ReducedExtraRotations int
}

func (o Options) extraRotations() int {
	if o.ReducedMotion {
		if o.ReducedExtraRotations > 0 {
			return o.ReducedExtraRotations
		}
		return reducedExtraRotations
	}
	if o.ExtraRotations > 0 {
		return o.ExtraRotations
	}
	return defaultExtraRotations
}

// SpinStart describes a spin that has just begun.
type SpinStart struct {
	TargetIndex     int // -1 for an undirected spin
	Deterministic   bool
	InitialVelocity float64
	StartAngle      float64
}

// SpinResult describes where a spin settled. Winner is nil when nothing could be resolved.
type SpinResult struct {
	Winner        *types.Segment
	Index         int
	Angle         float64
	Deterministic bool
	Snapped       bool
}

// Observer receives spin lifecycle notifications.
type Observer interface {
	SpinStarted(SpinStart)
	SpinCompleted(SpinResult)
}

var randomFloat = rand.Float64

// Simulator drives the wheel angle. It is not safe for concurrent use; callers
// serialise access (one tick per frame).
type Simulator struct {
	opts     Options
	observer Observer

	segments []types.Segment
	err      error

	angle    float64
	velocity float64
	spinning bool

	lastTick    time.Time
	hasBaseline bool

	targetIndex  int
	plannedAngle float64
	plannedCount int
}

// NewSimulator creates an idle simulator with no segments.
func NewSimulator(opts Options, observer Observer) *Simulator {
	return &Simulator{
		opts:        opts,
		observer:    observer,
		err:         ErrNoSegments,
		targetIndex: -1,
	}
}

// SetOptions replaces the spin profile; it applies from the next spin.
func (s *Simulator) SetOptions(opts Options) {
	s.opts = opts
}

// SetSegments replaces the segment list. An invalid list puts the simulator into
// the error state until a valid one is set.
func (s *Simulator) SetSegments(segments []types.Segment) error {
	normalized, err := NormalizeSegments(segments)
	s.segments = normalized
	s.err = err
	return err
}

// NormalizeSegments copies segments, fills default ids/colours and validates them.
// The returned slice is usable for rendering even when err is non-nil.
func NormalizeSegments(segments []types.Segment) ([]types.Segment, error) {
	if len(segments) == 0 {
		return nil, ErrNoSegments
	}

	out := make([]types.Segment, len(segments))
	names := make(map[string][]int, len(segments))
	ids := make(map[string][]int, len(segments))
	var nameOrder, idOrder []string

	for i, seg := range segments {
		if seg.ID == "" {
			seg.ID = "segment-" + strconv.Itoa(i+1)
		}
		if seg.Color == "" {
			seg.Color = DefaultColor(i)
		}
		out[i] = seg

		if _, ok := names[seg.Name]; !ok {
			nameOrder = append(nameOrder, seg.Name)
		}
		names[seg.Name] = append(names[seg.Name], i)
		if _, ok := ids[seg.ID]; !ok {
			idOrder = append(idOrder, seg.ID)
		}
		ids[seg.ID] = append(ids[seg.ID], i)
	}

	for _, name := range nameOrder {
		if idx := names[name]; len(idx) > 1 {
			return out, &DuplicateNameError{Name: name, Indices: idx}
		}
	}
	for _, id := range idOrder {
		if idx := ids[id]; len(idx) > 1 {
			return out, &DuplicateIDError{ID: id, Indices: idx}
		}
	}
	return out, nil
}

// Segments returns a copy of the current segment list.
func (s *Simulator) Segments() []types.Segment {
	return append([]types.Segment(nil), s.segments...)
}

// Err returns the configuration error, if any.
func (s *Simulator) Err() error {
	return s.err
}

// IsSpinning reports whether the wheel is moving.
func (s *Simulator) IsSpinning() bool {
	return s.spinning
}

// State returns the current rotation state.
func (s *Simulator) State() types.RotationState {
	return types.RotationState{
		Angle:        s.angle,
		Velocity:     s.velocity,
		IsSpinning:   s.spinning,
		CurrentIndex: SegmentIndexForAngle(s.angle, len(s.segments)),
	}
}

// IndexOf returns the index of the segment with id, or -1.
func (s *Simulator) IndexOf(id string) int {
	for i, seg := range s.segments {
		if seg.ID == id {
			return i
		}
	}
	return -1
}

// StartSpin starts a spin. A known targetID lands on that segment; an empty or
// unknown one spins with a random velocity. It returns false (and does nothing)
// when there are no segments, the list is invalid or a spin is in progress.
func (s *Simulator) StartSpin(targetID string) bool {
	if len(s.segments) == 0 || s.err != nil || s.spinning {
		return false
	}

	start := SpinStart{TargetIndex: -1, StartAngle: s.angle}
	velocity := s.randomVelocity()

	if targetID != "" {
		if idx := s.IndexOf(targetID); idx >= 0 {
			delta, ok := DeterministicDelta(DeltaParams{
				CurrentAngle:   s.angle,
				TargetIndex:    idx,
				SegmentCount:   len(s.segments),
				ExtraRotations: s.opts.extraRotations(),
			})
			if ok {
				velocity = solveInitialVelocity(delta)
				start.TargetIndex = idx
				start.Deterministic = true
				s.plannedAngle = s.angle + delta
				s.plannedCount = len(s.segments)
			}
		}
	}

	s.velocity = velocity
	s.spinning = true
	s.hasBaseline = false
	s.targetIndex = start.TargetIndex
	start.InitialVelocity = velocity

	if s.observer != nil {
		s.observer.SpinStarted(start)
	}
	return true
}

func (s *Simulator) randomVelocity() float64 {
	if s.opts.ReducedMotion {
		return reducedMotionVelocity
	}
	return baseVelocity + randomFloat()*velocitySpread
}

// Tick advances one frame. The first tick after StartSpin only records the
// baseline timestamp. It returns true on the tick the wheel settles.
func (s *Simulator) Tick(now time.Time) bool {
	if !s.spinning {
		return false
	}

	var dt time.Duration
	if s.hasBaseline {
		dt = now.Sub(s.lastTick)
		if dt < 0 {
			dt = 0
		}
	}
	s.lastTick = now
	s.hasBaseline = true

	s.velocity *= Friction
	if math.Abs(s.velocity) <= MinVelocity {
		s.settle()
		return true
	}

	s.angle += s.velocity * float64(dt) / float64(NominalFrame)
	return false
}

func (s *Simulator) settle() {
	s.velocity = 0
	s.spinning = false
	s.hasBaseline = false

	n := len(s.segments)
	result := SpinResult{Index: -1, Deterministic: s.targetIndex >= 0}

	// 実フレーム間隔のブレで目標区画を外した場合は計画角度に合わせる
	if result.Deterministic && n == s.plannedCount && SegmentIndexForAngle(s.angle, n) != s.targetIndex {
		s.angle = s.plannedAngle
		result.Snapped = true
	}
	s.targetIndex = -1

	if idx := SegmentIndexForAngle(s.angle, n); idx >= 0 {
		winner := s.segments[idx]
		result.Winner = &winner
		result.Index = idx
	}
	result.Angle = s.angle

	if s.observer != nil {
		s.observer.SpinCompleted(result)
	}
}

// Nudge rotates an idle wheel by an eighth of a segment. No-op while spinning.
func (s *Simulator) Nudge(dir Direction) bool {
	if s.spinning || len(s.segments) == 0 || dir == 0 {
		return false
	}
	step := SegmentWidth(len(s.segments)) / nudgeDivisor
	if dir < 0 {
		step = -step
	}
	s.angle += step
	return true
}

// Cancel stops a running spin without resolving a winner or notifying the observer.
func (s *Simulator) Cancel() {
	if !s.spinning {
		return
	}
	s.spinning = false
	s.velocity = 0
	s.hasBaseline = false
	s.targetIndex = -1
}

// projectedTravel mirrors Tick with nominal frame spacing and returns the total
// rotation a spin started at v0 covers before settling.
func projectedTravel(v0 float64) float64 {
	v := v0
	travel := 0.0
	for frame := 0; ; frame++ {
		v *= Friction
		if math.Abs(v) <= MinVelocity {
			return travel
		}
		// 最初のtickは基準時刻の設定のみ
		if frame > 0 {
			travel += v
		}
	}
}

// solveInitialVelocity finds the smallest initial velocity whose decay series
// covers distance. Travel is monotonic in v0, so bisection converges; the landing
// error is bounded by one settle-threshold step.
func solveInitialVelocity(distance float64) float64 {
	if distance <= 0 || math.IsNaN(distance) || math.IsInf(distance, 0) {
		return 0
	}

	lo, hi := 0.0, MinVelocity
	for projectedTravel(hi) < distance {
		hi *= 2
	}
	for i := 0; i < 64; i++ {
		mid := (lo + hi) / 2
		if projectedTravel(mid) < distance {
			lo = mid
		} else {
			hi = mid
		}
	}
	return hi
}
