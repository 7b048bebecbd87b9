package eligibility

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ichi0g0y/spinwheel/internal/metrics"
	"github.com/ichi0g0y/spinwheel/internal/shared/clock"
	"github.com/ichi0g0y/spinwheel/internal/shared/logger"
	"github.com/ichi0g0y/spinwheel/internal/types"
	"go.uber.org/zap"
)

const (
	DefaultCooldown          = 48 * time.Hour
	defaultCountdownInterval = time.Second
	defaultReadTimeout       = 10 * time.Second

	// LastSpinCacheKey はローカルキャッシュのキー接頭辞（値はunix ms）
	LastSpinCacheKey = "spinwheel-lastSpinTime"
)

var (
	ErrNoUser     = errors.New("no signed-in user")
	ErrGateClosed = errors.New("eligibility gate closed")
)

const errUnverifiable = "spin eligibility could not be verified"

// RecordStore persists the last spin per user. TouchLastSpin stamps the record
// with the store's own clock and returns the stored time.
type RecordStore interface {
	GetLastSpin(ctx context.Context, userID string) (time.Time, bool, error)
	TouchLastSpin(ctx context.Context, userID string) (time.Time, error)
	ResetLastSpin(ctx context.Context, userID string) error
}

// LocalCache holds the last-known spin time between sessions.
type LocalCache interface {
	Get(key string) (string, bool)
	Set(key, value string) error
}

// Options configure the gate.
type Options struct {
	Cooldown time.Duration
	// FailOpen treats an unreadable record as "never spun". When false the
	// cached time is used, or the user is held ineligible if there is none.
	FailOpen          bool
	CountdownInterval time.Duration
	ReadTimeout       time.Duration
}

// DefaultOptions returns a 48h fail-open gate ticking once per second.
func DefaultOptions() Options {
	return Options{
		Cooldown:          DefaultCooldown,
		FailOpen:          true,
		CountdownInterval: defaultCountdownInterval,
		ReadTimeout:       defaultReadTimeout,
	}
}

func (o Options) withDefaults() Options {
	if o.Cooldown <= 0 {
		o.Cooldown = DefaultCooldown
	}
	if o.CountdownInterval <= 0 {
		o.CountdownInterval = defaultCountdownInterval
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = defaultReadTimeout
	}
	return o
}

// Evaluate reports whether a spin is allowed at now and how long remains otherwise.
// A nil lastSpin is always eligible.
func Evaluate(lastSpin *time.Time, now time.Time, cooldown time.Duration) (bool, time.Duration) {
	if lastSpin == nil {
		return true, 0
	}
	elapsed := now.Sub(*lastSpin)
	if elapsed >= cooldown {
		return true, 0
	}
	remaining := cooldown - elapsed
	// 記録側の時計が進んでいる場合でもクールダウン以上は待たせない
	if remaining > cooldown {
		remaining = cooldown
	}
	return false, remaining
}

// FormatRemaining renders d as "Xh Ym Zs", flooring each component.
func FormatRemaining(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := int64(d / time.Hour)
	m := int64(d % time.Hour / time.Minute)
	s := int64(d % time.Minute / time.Second)
	return fmt.Sprintf("%dh %dm %ds", h, m, s)
}

// Gate tracks spin eligibility for the signed-in user.
type Gate struct {
	store RecordStore
	cache LocalCache
	clock clock.Clock
	opts  Options

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu              sync.Mutex
	userID          string
	generation      uint64
	lastSpin        *time.Time
	loaded          bool
	errMsg          string
	countdownCancel context.CancelFunc
	subscribers     map[int]func(types.EligibilityStatus)
	nextSub         int
	closed          bool

	// 状態の取得から配信までを直列化する
	notifyMu sync.Mutex
}

// NewGate creates a gate with no user. cache and clk may be nil.
func NewGate(store RecordStore, cache LocalCache, clk clock.Clock, opts Options) *Gate {
	if clk == nil {
		clk = clock.Real{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Gate{
		store:       store,
		cache:       cache,
		clock:       clk,
		opts:        opts.withDefaults(),
		ctx:         ctx,
		cancel:      cancel,
		loaded:      true,
		subscribers: make(map[int]func(types.EligibilityStatus)),
	}
}

// SetOptions replaces the cooldown policy. The current user is re-evaluated.
func (g *Gate) SetOptions(opts Options) {
	g.mu.Lock()
	g.opts = opts.withDefaults()
	g.stopCountdownLocked()
	g.startCountdownLocked()
	g.mu.Unlock()
	g.notify()
}

// SetUser switches the tracked user and starts an asynchronous record read.
// An empty userID means signed out.
func (g *Gate) SetUser(userID string) {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.generation++
	gen := g.generation
	g.userID = userID
	g.errMsg = ""
	g.lastSpin = g.cachedLastSpin(userID)
	g.loaded = userID == ""
	g.stopCountdownLocked()
	g.startCountdownLocked()
	if userID != "" {
		g.wg.Add(1)
		go func() {
			defer g.wg.Done()
			_ = g.load(g.ctx, gen, userID)
		}()
	}
	g.mu.Unlock()

	g.notify()
}

// Refresh re-reads the record for the current user synchronously.
func (g *Gate) Refresh(ctx context.Context) error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return ErrGateClosed
	}
	userID, gen := g.userID, g.generation
	g.mu.Unlock()

	if userID == "" {
		return ErrNoUser
	}
	return g.load(ctx, gen, userID)
}

func (g *Gate) load(ctx context.Context, gen uint64, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, g.opts.ReadTimeout)
	defer cancel()

	last, ok, err := g.store.GetLastSpin(ctx, userID)

	g.mu.Lock()
	if gen != g.generation || g.closed {
		// ユーザーが切り替わった後の古い応答は捨てる
		g.mu.Unlock()
		return nil
	}

	switch {
	case err != nil:
		metrics.StoreError("read")
		logger.Warn("Failed to read spin record", zap.String("user_id", userID), zap.Error(err))
		if g.opts.FailOpen {
			g.lastSpin = nil
		} else if g.lastSpin == nil {
			g.errMsg = errUnverifiable
		}
	case !ok:
		g.lastSpin = nil
		g.errMsg = ""
	default:
		t := last
		g.lastSpin = &t
		g.errMsg = ""
		g.storeCache(userID, t)
	}
	g.loaded = true
	g.stopCountdownLocked()
	g.startCountdownLocked()
	g.mu.Unlock()

	g.notify()
	if err != nil {
		return fmt.Errorf("failed to read spin record: %w", err)
	}
	return nil
}

// Status computes the current eligibility from the clock.
func (g *Gate) Status() types.EligibilityStatus {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.statusLocked()
}

func (g *Gate) statusLocked() types.EligibilityStatus {
	st := types.EligibilityStatus{UserID: g.userID}
	if g.userID == "" {
		st.LoginRequired = true
		st.RemainingText = FormatRemaining(0)
		return st
	}
	if g.lastSpin != nil {
		t := *g.lastSpin
		st.LastSpinAt = &t
	}
	if g.errMsg != "" {
		st.Error = g.errMsg
		st.RemainingText = FormatRemaining(0)
		return st
	}

	eligible, remaining := Evaluate(g.lastSpin, g.clock.Now(), g.opts.Cooldown)
	st.Eligible = eligible
	st.Remaining = remaining
	st.RemainingText = FormatRemaining(remaining)
	return st
}

// Allowed reports whether the current user may spin now.
func (g *Gate) Allowed() bool {
	return g.Status().Eligible
}

// Loaded reports whether the record read for the current user has finished.
func (g *Gate) Loaded() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.loaded
}

// MarkSpun records a completed spin locally. The persistent write is RecordSpin.
func (g *Gate) MarkSpun(at time.Time) {
	g.mu.Lock()
	if g.closed || g.userID == "" {
		g.mu.Unlock()
		return
	}
	t := at
	g.lastSpin = &t
	g.errMsg = ""
	g.storeCache(g.userID, t)
	g.stopCountdownLocked()
	g.startCountdownLocked()
	g.mu.Unlock()

	g.notify()
}

// RecordSpin writes the spin to the record store. On failure the local state is
// left as is and the error is returned.
func (g *Gate) RecordSpin(ctx context.Context) error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return ErrGateClosed
	}
	userID := g.userID
	g.mu.Unlock()

	return g.RecordSpinFor(ctx, userID)
}

// RecordSpinFor writes a spin for userID. Local state is only updated while
// userID is still the tracked user.
func (g *Gate) RecordSpinFor(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrNoUser
	}
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return ErrGateClosed
	}
	gen := g.generation
	if userID != g.userID {
		gen = 0
	}
	g.mu.Unlock()

	stamped, err := g.store.TouchLastSpin(ctx, userID)
	if err != nil {
		metrics.StoreError("write")
		logger.Warn("Failed to write spin record", zap.String("user_id", userID), zap.Error(err))
		return fmt.Errorf("failed to write spin record: %w", err)
	}

	g.mu.Lock()
	if gen == 0 || gen != g.generation || g.closed {
		g.mu.Unlock()
		return nil
	}
	g.lastSpin = &stamped
	g.errMsg = ""
	g.storeCache(userID, stamped)
	g.stopCountdownLocked()
	g.startCountdownLocked()
	g.mu.Unlock()

	g.notify()
	return nil
}

// ResetUser clears userID's spin record in the store and the local cache. When
// userID is the tracked user the cooldown ends immediately.
func (g *Gate) ResetUser(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrNoUser
	}
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return ErrGateClosed
	}
	g.mu.Unlock()

	if err := g.store.ResetLastSpin(ctx, userID); err != nil {
		metrics.StoreError("reset")
		logger.Warn("Failed to reset spin record", zap.String("user_id", userID), zap.Error(err))
		return fmt.Errorf("failed to reset spin record: %w", err)
	}

	g.mu.Lock()
	if g.cache != nil {
		if err := g.cache.Set(cacheKey(userID), ""); err != nil {
			logger.Warn("Failed to clear cached spin time", zap.Error(err))
		}
	}
	current := userID == g.userID && !g.closed
	if current {
		g.lastSpin = nil
		g.errMsg = ""
		g.stopCountdownLocked()
	}
	g.mu.Unlock()

	logger.Info("Spin cooldown reset", zap.String("user_id", userID))
	if current {
		g.notify()
	}
	return nil
}

// Subscribe registers fn for status changes and countdown ticks. Deliveries
// are serialised; fn must not call methods that notify (SetUser, MarkSpun...).
func (g *Gate) Subscribe(fn func(types.EligibilityStatus)) (unsubscribe func()) {
	g.mu.Lock()
	id := g.nextSub
	g.nextSub++
	g.subscribers[id] = fn
	g.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.subscribers, id)
			g.mu.Unlock()
		})
	}
}

// Close stops the countdown and pending reads. Safe to call more than once.
func (g *Gate) Close() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	g.stopCountdownLocked()
	g.mu.Unlock()

	g.cancel()
	g.wg.Wait()
}

func (g *Gate) notify() {
	g.notifyMu.Lock()
	defer g.notifyMu.Unlock()

	g.mu.Lock()
	st := g.statusLocked()
	subs := make([]func(types.EligibilityStatus), 0, len(g.subscribers))
	for _, fn := range g.subscribers {
		subs = append(subs, fn)
	}
	g.mu.Unlock()

	for _, fn := range subs {
		fn(st)
	}
}

// startCountdownLocked starts the ticker while the user is in cooldown.
func (g *Gate) startCountdownLocked() {
	if g.closed || g.countdownCancel != nil || g.userID == "" || g.errMsg != "" {
		return
	}
	if eligible, _ := Evaluate(g.lastSpin, g.clock.Now(), g.opts.Cooldown); eligible {
		return
	}

	ctx, cancel := context.WithCancel(g.ctx)
	g.countdownCancel = cancel
	interval := g.opts.CountdownInterval

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			g.mu.Lock()
			if ctx.Err() != nil {
				g.mu.Unlock()
				return
			}
			st := g.statusLocked()
			if st.Eligible {
				g.countdownCancel = nil
				cancel()
			}
			g.mu.Unlock()

			g.notify()
			if st.Eligible {
				return
			}
		}
	}()
}

func (g *Gate) stopCountdownLocked() {
	if g.countdownCancel != nil {
		g.countdownCancel()
		g.countdownCancel = nil
	}
}

func cacheKey(userID string) string {
	return LastSpinCacheKey + ":" + userID
}

func (g *Gate) cachedLastSpin(userID string) *time.Time {
	if g.cache == nil || userID == "" {
		return nil
	}
	raw, ok := g.cache.Get(cacheKey(userID))
	if !ok || raw == "" {
		return nil
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		logger.Debug("Ignoring malformed cached spin time", zap.String("value", raw))
		return nil
	}
	t := time.UnixMilli(ms)
	return &t
}

func (g *Gate) storeCache(userID string, t time.Time) {
	if g.cache == nil {
		return
	}
	if err := g.cache.Set(cacheKey(userID), strconv.FormatInt(t.UnixMilli(), 10)); err != nil {
		logger.Warn("Failed to cache spin time", zap.Error(err))
	}
}
