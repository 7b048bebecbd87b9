package spinengine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ichi0g0y/spinwheel/internal/eligibility"
	"github.com/ichi0g0y/spinwheel/internal/identity"
	"github.com/ichi0g0y/spinwheel/internal/metrics"
	"github.com/ichi0g0y/spinwheel/internal/shared/clock"
	"github.com/ichi0g0y/spinwheel/internal/shared/logger"
	"github.com/ichi0g0y/spinwheel/internal/types"
	"github.com/ichi0g0y/spinwheel/internal/wheel"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

const (
	defaultWorkerPoolSize = 4
	recordWriteTimeout    = 10 * time.Second
	poolReleaseTimeout    = 5 * time.Second
)

// Config tunes the engine.
type Config struct {
	Wheel wheel.Options
	// PrizeDraw picks a weighted target for spins requested without one.
	PrizeDraw bool
	// DefaultTarget is used for spins requested without a target when PrizeDraw is off.
	DefaultTarget  string
	FrameInterval  time.Duration
	WorkerPoolSize int
}

// SessionSource is the identity collaborator.
type SessionSource interface {
	Subscribe(fn func(*identity.User)) (unsubscribe func())
}

// Deps are the engine's collaborators. Only Gate is required.
type Deps struct {
	Gate        *eligibility.Gate
	Session     SessionSource
	Stats       KeyValueStore
	History     HistoryRecorder
	Broadcaster Broadcaster
	Clock       clock.Clock
}

// SpinTicket describes an accepted spin request.
type SpinTicket struct {
	OutcomeID     string    `json:"outcome_id"`
	TargetID      string    `json:"target_id,omitempty"`
	TargetIndex   int       `json:"target_index"`
	Deterministic bool      `json:"deterministic"`
	StartedAt     time.Time `json:"started_at"`
}

// Snapshot is the wheel state handed to renderers.
type Snapshot struct {
	Segments    []types.Segment         `json:"segments"`
	State       types.RotationState     `json:"state"`
	Error       string                  `json:"error,omitempty"`
	Stats       types.SpinStats         `json:"stats"`
	Eligibility types.EligibilityStatus `json:"eligibility"`
	LastOutcome *types.SpinOutcome      `json:"last_outcome,omitempty"`
}

type activeSpin struct {
	id        string
	userID    string
	start     wheel.SpinStart
	startedAt time.Time
	wallStart time.Time
	cancel    context.CancelFunc
}

// Engine orchestrates the simulator, the eligibility gate and the renderers.
type Engine struct {
	cfg         Config
	gate        *eligibility.Gate
	stats       KeyValueStore
	history     HistoryRecorder
	broadcaster Broadcaster
	clock       clock.Clock
	pool        *ants.Pool

	// フレーム用の時刻源（テストで差し替え）
	frameNow func() time.Time

	mu          sync.Mutex
	sim         *wheel.Simulator
	spin        *activeSpin
	started     *wheel.SpinStart
	completed   *wheel.SpinResult
	statsCache  types.SpinStats
	lastOutcome *types.SpinOutcome
	userID      string
	closed      bool

	unsubscribe []func()
	wg          sync.WaitGroup
}

// New wires an engine. It subscribes to the session once; Close unsubscribes.
func New(cfg Config, deps Deps) (*Engine, error) {
	if deps.Gate == nil {
		return nil, errors.New("eligibility gate is required")
	}
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = wheel.NominalFrame
	}
	if cfg.WorkerPoolSize <= 0 {
		cfg.WorkerPoolSize = defaultWorkerPoolSize
	}

	pool, err := ants.NewPool(cfg.WorkerPoolSize)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:         cfg,
		gate:        deps.Gate,
		stats:       deps.Stats,
		history:     deps.History,
		broadcaster: deps.Broadcaster,
		clock:       deps.Clock,
		pool:        pool,
		frameNow:    time.Now,
	}
	if e.broadcaster == nil {
		e.broadcaster = nopBroadcaster{}
	}
	if e.clock == nil {
		e.clock = clock.Real{}
	}
	e.sim = wheel.NewSimulator(cfg.Wheel, e)
	e.statsCache = loadStats(e.stats)

	e.unsubscribe = append(e.unsubscribe, e.gate.Subscribe(func(st types.EligibilityStatus) {
		e.broadcaster.Broadcast(EventEligibility, st)
	}))
	if deps.Session != nil {
		e.unsubscribe = append(e.unsubscribe, deps.Session.Subscribe(e.onUserChanged))
	}

	return e, nil
}

// SpinStarted implements wheel.Observer. Called with e.mu held.
func (e *Engine) SpinStarted(s wheel.SpinStart) {
	e.started = &s
}

// SpinCompleted implements wheel.Observer. Called with e.mu held.
func (e *Engine) SpinCompleted(r wheel.SpinResult) {
	e.completed = &r
}

func (e *Engine) onUserChanged(u *identity.User) {
	userID := ""
	if u != nil {
		userID = u.ID
	}

	// ゲートの切り替えもe.mu内で行い、RequestSpinが旧ユーザーの状態を読まないようにする
	e.mu.Lock()
	if e.closed || (userID == e.userID && e.userID != "") {
		e.mu.Unlock()
		return
	}
	prev := e.userID
	e.userID = userID
	cancelled := e.cancelSpinLocked()
	e.gate.SetUser(userID)
	e.mu.Unlock()

	if cancelled {
		logger.Info("Spin cancelled: user changed", zap.String("previous_user", prev), zap.String("user_id", userID))
		e.broadcaster.Broadcast(EventWheelError, map[string]interface{}{
			"message": "spin cancelled: user changed",
		})
	}
}

// SetSegments validates and installs a segment list. An invalid list is kept
// for rendering and reported through the returned *ConfigError.
func (e *Engine) SetSegments(segments []types.Segment) error {
	e.mu.Lock()
	err := e.sim.SetSegments(segments)
	list := e.sim.Segments()
	e.mu.Unlock()

	payload := map[string]interface{}{"segments": list}
	if err != nil {
		logger.Warn("Invalid wheel segments", zap.Error(err))
		payload["error"] = err.Error()
		e.broadcaster.Broadcast(EventSegments, payload)
		e.broadcaster.Broadcast(EventWheelError, map[string]interface{}{"message": err.Error()})
		return &ConfigError{Err: err}
	}
	e.broadcaster.Broadcast(EventSegments, payload)
	return nil
}

// SetOptions replaces the spin profile and the draw policy.
func (e *Engine) SetOptions(opts wheel.Options, prizeDraw bool, defaultTarget string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg.Wheel = opts
	e.cfg.PrizeDraw = prizeDraw
	e.cfg.DefaultTarget = defaultTarget
	e.sim.SetOptions(opts)
}

// RequestSpin starts a spin for the signed-in user. An empty targetID falls
// back to the prize draw or the configured default target.
func (e *Engine) RequestSpin(targetID string) (SpinTicket, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return SpinTicket{}, ErrClosed
	}
	// 完了処理(MarkSpun)もe.mu内なので、ここで読む状態は確定済み
	st := e.gate.Status()

	switch {
	case st.LoginRequired:
		e.mu.Unlock()
		metrics.Denied("login_required")
		return SpinTicket{}, ErrLoginRequired
	case !st.Eligible:
		e.mu.Unlock()
		metrics.Denied("cooldown")
		return SpinTicket{}, &CooldownError{Remaining: st.Remaining, Reason: st.Error}
	case e.sim.IsSpinning():
		e.mu.Unlock()
		metrics.Denied("already_spinning")
		return SpinTicket{}, ErrAlreadySpinning
	case e.sim.Err() != nil:
		err := e.sim.Err()
		e.mu.Unlock()
		metrics.Denied("config")
		return SpinTicket{}, &ConfigError{Err: err}
	}

	target := e.resolveTargetLocked(targetID)
	e.started = nil
	e.completed = nil
	if !e.sim.StartSpin(target) || e.started == nil {
		e.mu.Unlock()
		return SpinTicket{}, ErrAlreadySpinning
	}

	id, err := gonanoid.New()
	if err != nil {
		e.sim.Cancel()
		e.mu.Unlock()
		return SpinTicket{}, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	spin := &activeSpin{
		id:        id,
		userID:    st.UserID,
		start:     *e.started,
		startedAt: e.clock.Now(),
		wallStart: time.Now(),
		cancel:    cancel,
	}
	e.spin = spin

	ticket := SpinTicket{
		OutcomeID:     id,
		TargetIndex:   spin.start.TargetIndex,
		Deterministic: spin.start.Deterministic,
		StartedAt:     spin.startedAt,
	}
	if spin.start.Deterministic {
		ticket.TargetID = target
	}

	e.wg.Add(1)
	go e.animate(ctx, spin)
	e.mu.Unlock()

	mode := "random"
	if ticket.Deterministic {
		mode = "deterministic"
	}
	metrics.SpinsStarted.WithLabelValues(mode).Inc()
	logger.Info("Spin started",
		zap.String("outcome_id", id),
		zap.String("user_id", spin.userID),
		zap.String("mode", mode),
		zap.Float64("initial_velocity", spin.start.InitialVelocity))

	e.broadcaster.Broadcast(EventSpinStarted, map[string]interface{}{
		"outcome_id":       id,
		"target_index":     ticket.TargetIndex,
		"deterministic":    ticket.Deterministic,
		"initial_velocity": spin.start.InitialVelocity,
		"start_angle":      spin.start.StartAngle,
		"announcement":     announceSpinning,
	})
	return ticket, nil
}

func (e *Engine) resolveTargetLocked(targetID string) string {
	if targetID != "" {
		return targetID
	}
	if e.cfg.PrizeDraw {
		seg, err := wheel.PickTarget(e.sim.Segments())
		if err != nil {
			logger.Warn("Prize draw failed, spinning freely", zap.Error(err))
			return ""
		}
		return seg.ID
	}
	return e.cfg.DefaultTarget
}

// ResetCooldown clears userID's spin record so they may spin again.
func (e *Engine) ResetCooldown(ctx context.Context, userID string) error {
	return e.gate.ResetUser(ctx, userID)
}

// Nudge rotates an idle wheel by an eighth of a segment.
func (e *Engine) Nudge(dir wheel.Direction) bool {
	e.mu.Lock()
	if e.closed || !e.sim.Nudge(dir) {
		e.mu.Unlock()
		return false
	}
	frame := frameFromState(e.sim.State())
	e.mu.Unlock()

	e.broadcaster.Broadcast(EventWheelFrame, frame)
	return true
}

// Cancel stops a running spin without resolving a winner.
func (e *Engine) Cancel() bool {
	e.mu.Lock()
	cancelled := e.cancelSpinLocked()
	e.mu.Unlock()
	return cancelled
}

func (e *Engine) cancelSpinLocked() bool {
	if e.spin == nil {
		return false
	}
	e.spin.cancel()
	e.spin = nil
	e.sim.Cancel()
	return true
}

// State returns the current rotation state.
func (e *Engine) State() types.RotationState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sim.State()
}

// Stats returns the local spin counters.
func (e *Engine) Stats() types.SpinStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.statsCache
}

// Eligibility returns the gate status for the current user.
func (e *Engine) Eligibility() types.EligibilityStatus {
	return e.gate.Status()
}

// Snapshot returns everything a renderer needs to draw the wheel.
func (e *Engine) Snapshot() Snapshot {
	st := e.gate.Status()

	e.mu.Lock()
	defer e.mu.Unlock()
	snap := Snapshot{
		Segments:    e.sim.Segments(),
		State:       e.sim.State(),
		Stats:       e.statsCache,
		Eligibility: st,
	}
	if err := e.sim.Err(); err != nil {
		snap.Error = err.Error()
	}
	if e.lastOutcome != nil {
		o := *e.lastOutcome
		snap.LastOutcome = &o
	}
	return snap
}

// Close cancels any running spin, unsubscribes from identity and gate, and
// waits for pending record writes.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.cancelSpinLocked()
	unsubscribe := e.unsubscribe
	e.unsubscribe = nil
	e.mu.Unlock()

	for _, fn := range unsubscribe {
		fn()
	}
	e.wg.Wait()
	if err := e.pool.ReleaseTimeout(poolReleaseTimeout); err != nil {
		logger.Warn("Worker pool did not drain in time", zap.Error(err))
	}
}

func frameFromState(s types.RotationState) Frame {
	return Frame{
		Angle:        s.Angle,
		Velocity:     s.Velocity,
		CurrentIndex: s.CurrentIndex,
		IsSpinning:   s.IsSpinning,
	}
}
