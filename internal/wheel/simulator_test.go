package wheel

import (
	"errors"
	"math"
	"strconv"
	"testing"
	"time"

	"github.com/ichi0g0y/spinwheel/internal/types"
)

type recordingObserver struct {
	starts      []SpinStart
	completions []SpinResult
}

func (o *recordingObserver) SpinStarted(s SpinStart)    { o.starts = append(o.starts, s) }
func (o *recordingObserver) SpinCompleted(r SpinResult) { o.completions = append(o.completions, r) }

func makeSegments(n int) []types.Segment {
	segments := make([]types.Segment, n)
	for i := range segments {
		segments[i] = types.Segment{ID: strconv.Itoa(i + 1), Name: string(rune('A' + i))}
	}
	return segments
}

func stubRandom(t *testing.T, v float64) {
	t.Helper()
	original := randomFloat
	randomFloat = func() float64 { return v }
	t.Cleanup(func() { randomFloat = original })
}

// runUntilSettled ticks with the given frame spacing and returns the number of ticks.
func runUntilSettled(t *testing.T, sim *Simulator, frame func(i int) time.Duration) int {
	t.Helper()
	now := time.Unix(1700000000, 0)
	for i := 1; i <= 100000; i++ {
		if sim.Tick(now) {
			return i
		}
		now = now.Add(frame(i))
	}
	t.Fatalf("simulator did not settle")
	return 0
}

func nominalFrames(int) time.Duration { return NominalFrame }

func TestSimulator_EmptyListIsErrorState(t *testing.T) {
	obs := &recordingObserver{}
	sim := NewSimulator(Options{}, obs)

	if !errors.Is(sim.Err(), ErrNoSegments) {
		t.Fatalf("unexpected error: %v", sim.Err())
	}
	if sim.StartSpin("") {
		t.Fatalf("StartSpin should be a no-op without segments")
	}
	if err := sim.SetSegments(nil); !errors.Is(err, ErrNoSegments) {
		t.Fatalf("unexpected SetSegments error: %v", err)
	}
	if len(obs.starts) != 0 {
		t.Fatalf("unexpected start notifications: %d", len(obs.starts))
	}
}

func TestSimulator_DuplicateNamesBlockSpin(t *testing.T) {
	obs := &recordingObserver{}
	sim := NewSimulator(Options{}, obs)

	err := sim.SetSegments([]types.Segment{
		{ID: "1", Name: "Prize"},
		{ID: "2", Name: "Other"},
		{ID: "3", Name: "Prize"},
	})
	var dup *DuplicateNameError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateNameError, got %v", err)
	}
	if dup.Name != "Prize" || len(dup.Indices) != 2 || dup.Indices[0] != 0 || dup.Indices[1] != 2 {
		t.Fatalf("unexpected duplicate detail: %+v", dup)
	}
	if sim.Err() == nil {
		t.Fatalf("simulator should expose the configuration error")
	}
	if sim.StartSpin("") || sim.IsSpinning() {
		t.Fatalf("StartSpin should be a no-op in the error state")
	}
	if len(obs.starts) != 0 {
		t.Fatalf("unexpected start notifications: %d", len(obs.starts))
	}

	if err := sim.SetSegments(makeSegments(3)); err != nil {
		t.Fatalf("SetSegments failed: %v", err)
	}
	if sim.Err() != nil {
		t.Fatalf("error state should clear: %v", sim.Err())
	}
	if !sim.StartSpin("") {
		t.Fatalf("StartSpin should succeed after the list is corrected")
	}
}

func TestSimulator_DuplicateIDs(t *testing.T) {
	sim := NewSimulator(Options{}, nil)
	err := sim.SetSegments([]types.Segment{{ID: "x", Name: "A"}, {ID: "x", Name: "B"}})
	var dup *DuplicateIDError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateIDError, got %v", err)
	}
}

func TestSimulator_FillsDefaults(t *testing.T) {
	sim := NewSimulator(Options{}, nil)
	if err := sim.SetSegments([]types.Segment{{Name: "A"}, {Name: "B", Color: "#000000"}}); err != nil {
		t.Fatalf("SetSegments failed: %v", err)
	}
	segs := sim.Segments()
	if segs[0].ID != "segment-1" || segs[1].ID != "segment-2" {
		t.Fatalf("unexpected default ids: %q %q", segs[0].ID, segs[1].ID)
	}
	if segs[0].Color != DefaultColor(0) {
		t.Fatalf("unexpected default color: got=%q want=%q", segs[0].Color, DefaultColor(0))
	}
	if segs[1].Color != "#000000" {
		t.Fatalf("explicit color was overwritten: %q", segs[1].Color)
	}
}

func TestSimulator_StartSpinWhileSpinningIsNoop(t *testing.T) {
	stubRandom(t, 0.5)
	obs := &recordingObserver{}
	sim := NewSimulator(Options{}, obs)
	_ = sim.SetSegments(makeSegments(4))

	if !sim.StartSpin("") {
		t.Fatalf("first StartSpin should succeed")
	}
	if sim.StartSpin("") {
		t.Fatalf("second StartSpin should be a no-op")
	}
	if sim.StartSpin("2") {
		t.Fatalf("StartSpin with target should be a no-op while spinning")
	}
	if len(obs.starts) != 1 {
		t.Fatalf("unexpected start notifications: got=%d want=1", len(obs.starts))
	}
}

func TestSimulator_UndirectedSettlesOnceWithinBoundedTicks(t *testing.T) {
	stubRandom(t, 1)
	obs := &recordingObserver{}
	sim := NewSimulator(Options{}, obs)
	_ = sim.SetSegments(makeSegments(6))

	if !sim.StartSpin("") {
		t.Fatalf("StartSpin failed")
	}
	if got := obs.starts[0].InitialVelocity; math.Abs(got-1.1) > 1e-12 {
		t.Fatalf("unexpected initial velocity: got=%v want=1.1", got)
	}

	expected := 0
	for v := obs.starts[0].InitialVelocity; ; {
		v *= Friction
		expected++
		if v <= MinVelocity {
			break
		}
	}

	ticks := runUntilSettled(t, sim, nominalFrames)
	if ticks != expected {
		t.Fatalf("unexpected settle tick: got=%d want=%d", ticks, expected)
	}
	if sim.IsSpinning() {
		t.Fatalf("simulator should be idle after settling")
	}
	if sim.Tick(time.Now()) {
		t.Fatalf("idle tick should not settle again")
	}
	if len(obs.completions) != 1 {
		t.Fatalf("unexpected completion count: got=%d want=1", len(obs.completions))
	}
	res := obs.completions[0]
	if res.Winner == nil || res.Index != SegmentIndexForAngle(res.Angle, 6) {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Deterministic {
		t.Fatalf("undirected spin reported as deterministic")
	}
}

func TestSimulator_ReducedMotionVelocity(t *testing.T) {
	stubRandom(t, 1)
	obs := &recordingObserver{}
	sim := NewSimulator(Options{ReducedMotion: true}, obs)
	_ = sim.SetSegments(makeSegments(4))
	sim.StartSpin("")

	if got := obs.starts[0].InitialVelocity; got != reducedMotionVelocity {
		t.Fatalf("unexpected reduced-motion velocity: got=%v want=%v", got, reducedMotionVelocity)
	}
}

func TestSimulator_UnknownTargetFallsBack(t *testing.T) {
	stubRandom(t, 0)
	obs := &recordingObserver{}
	sim := NewSimulator(Options{}, obs)
	_ = sim.SetSegments(makeSegments(4))

	if !sim.StartSpin("missing") {
		t.Fatalf("StartSpin should fall back to an undirected spin")
	}
	start := obs.starts[0]
	if start.Deterministic || start.TargetIndex != -1 {
		t.Fatalf("unexpected deterministic start: %+v", start)
	}
	if start.InitialVelocity != baseVelocity {
		t.Fatalf("unexpected velocity: got=%v want=%v", start.InitialVelocity, baseVelocity)
	}
}

func TestSimulator_DeterministicLandsOnTarget(t *testing.T) {
	for _, reduced := range []bool{false, true} {
		for n := 2; n <= 12; n++ {
			for target := 0; target < n; target++ {
				obs := &recordingObserver{}
				sim := NewSimulator(Options{ReducedMotion: reduced}, obs)
				_ = sim.SetSegments(makeSegments(n))
				// 前回の停止位置から続けて回す
				for i := 0; i < target; i++ {
					sim.Nudge(DirectionRight)
				}

				if !sim.StartSpin(strconv.Itoa(target + 1)) {
					t.Fatalf("StartSpin failed: n=%d target=%d", n, target)
				}
				runUntilSettled(t, sim, nominalFrames)

				if len(obs.completions) != 1 {
					t.Fatalf("unexpected completion count: %d", len(obs.completions))
				}
				res := obs.completions[0]
				if res.Index != target {
					t.Fatalf("missed target: reduced=%v n=%d got=%d want=%d", reduced, n, res.Index, target)
				}
				if res.Snapped {
					t.Fatalf("nominal frames should land without correction: n=%d target=%d", n, target)
				}
				if !res.Deterministic {
					t.Fatalf("result should be marked deterministic")
				}
			}
		}
	}
}

func TestSimulator_WorkedExample(t *testing.T) {
	obs := &recordingObserver{}
	sim := NewSimulator(Options{ExtraRotations: 4}, obs)
	_ = sim.SetSegments(makeSegments(4))

	sim.StartSpin("3")
	runUntilSettled(t, sim, nominalFrames)

	res := obs.completions[0]
	want := 8*math.Pi + 5*math.Pi/4
	if math.Abs(res.Angle-want) > 2*MinVelocity {
		t.Fatalf("unexpected final angle: got=%v want≈%v", res.Angle, want)
	}
	if res.Winner == nil || res.Winner.Name != "C" {
		t.Fatalf("unexpected winner: %+v", res.Winner)
	}
}

func TestSimulator_JitteredFramesStillLandOnTarget(t *testing.T) {
	obs := &recordingObserver{}
	sim := NewSimulator(Options{}, obs)
	_ = sim.SetSegments(makeSegments(8))

	sim.StartSpin("6")
	runUntilSettled(t, sim, func(i int) time.Duration {
		if i%3 == 0 {
			return 33 * time.Millisecond
		}
		return 9 * time.Millisecond
	})

	if got := obs.completions[0].Index; got != 5 {
		t.Fatalf("missed target under jitter: got=%d want=5", got)
	}
}

func TestSimulator_FirstTickHasNoAngularDelta(t *testing.T) {
	stubRandom(t, 0.5)
	sim := NewSimulator(Options{}, nil)
	_ = sim.SetSegments(makeSegments(4))
	sim.StartSpin("")

	before := sim.State().Angle
	sim.Tick(time.Now())
	if after := sim.State().Angle; after != before {
		t.Fatalf("first tick moved the wheel: before=%v after=%v", before, after)
	}
	if v := sim.State().Velocity; math.Abs(v-0.8*Friction) > 1e-12 {
		t.Fatalf("friction not applied on first tick: got=%v", v)
	}
}

func TestSimulator_FrameRateIndependentIncrement(t *testing.T) {
	stubRandom(t, 0.5)
	sim := NewSimulator(Options{}, nil)
	_ = sim.SetSegments(makeSegments(4))
	sim.StartSpin("")

	start := time.Unix(0, 0)
	sim.Tick(start)
	sim.Tick(start.Add(2 * NominalFrame))

	v := 0.8 * Friction * Friction
	if got := sim.State().Angle; math.Abs(got-2*v) > 1e-9 {
		t.Fatalf("unexpected increment for a double-length frame: got=%v want=%v", got, 2*v)
	}
}

func TestSimulator_Nudge(t *testing.T) {
	stubRandom(t, 0.5)
	sim := NewSimulator(Options{}, nil)
	_ = sim.SetSegments(makeSegments(4))

	step := SegmentWidth(4) / 8
	if !sim.Nudge(DirectionRight) {
		t.Fatalf("idle nudge should apply")
	}
	if got := sim.State().Angle; math.Abs(got-step) > 1e-12 {
		t.Fatalf("unexpected angle after right nudge: got=%v want=%v", got, step)
	}
	sim.Nudge(DirectionLeft)
	sim.Nudge(DirectionLeft)
	if got := sim.State().Angle; math.Abs(got+step) > 1e-12 {
		t.Fatalf("unexpected angle after left nudges: got=%v want=%v", got, -step)
	}

	sim.StartSpin("")
	before := sim.State().Angle
	if sim.Nudge(DirectionRight) {
		t.Fatalf("nudge should be a no-op while spinning")
	}
	if sim.State().Angle != before {
		t.Fatalf("nudge moved a spinning wheel")
	}
}

func TestSimulator_CancelDoesNotComplete(t *testing.T) {
	stubRandom(t, 0.5)
	obs := &recordingObserver{}
	sim := NewSimulator(Options{}, obs)
	_ = sim.SetSegments(makeSegments(4))
	sim.StartSpin("")

	now := time.Now()
	for i := 0; i < 10; i++ {
		sim.Tick(now.Add(time.Duration(i) * NominalFrame))
	}
	sim.Cancel()

	if sim.IsSpinning() {
		t.Fatalf("simulator should be idle after cancel")
	}
	if sim.Tick(now.Add(time.Second)) {
		t.Fatalf("tick after cancel should not settle")
	}
	if len(obs.completions) != 0 {
		t.Fatalf("cancel emitted a completion")
	}
}

func TestSimulator_SegmentsClearedMidSpinResolvesNil(t *testing.T) {
	stubRandom(t, 0)
	obs := &recordingObserver{}
	sim := NewSimulator(Options{}, obs)
	_ = sim.SetSegments(makeSegments(4))
	sim.StartSpin("2")

	_ = sim.SetSegments(nil)
	runUntilSettled(t, sim, nominalFrames)

	res := obs.completions[0]
	if res.Winner != nil || res.Index != -1 {
		t.Fatalf("expected nil winner, got %+v", res)
	}
}

func TestParseDirection(t *testing.T) {
	if d, ok := ParseDirection(" Left "); !ok || d != DirectionLeft {
		t.Fatalf("unexpected parse for left: %v %v", d, ok)
	}
	if d, ok := ParseDirection("RIGHT"); !ok || d != DirectionRight {
		t.Fatalf("unexpected parse for right: %v %v", d, ok)
	}
	if _, ok := ParseDirection("up"); ok {
		t.Fatalf("unexpected parse for up")
	}
}
