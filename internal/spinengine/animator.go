package spinengine

import (
	"context"
	"time"

	"github.com/ichi0g0y/spinwheel/internal/metrics"
	"github.com/ichi0g0y/spinwheel/internal/shared/logger"
	"github.com/ichi0g0y/spinwheel/internal/types"
	"github.com/ichi0g0y/spinwheel/internal/wheel"
	"go.uber.org/zap"
)

// animate drives one spin until it settles or ctx is cancelled.
func (e *Engine) animate(ctx context.Context, spin *activeSpin) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.FrameInterval)
	defer ticker.Stop()

	for {
		e.mu.Lock()
		if ctx.Err() != nil || e.spin != spin {
			e.mu.Unlock()
			return
		}
		settled := e.sim.Tick(e.frameNow())
		frame := frameFromState(e.sim.State())
		var outcome *types.SpinOutcome
		var result wheel.SpinResult
		if settled {
			if e.completed != nil {
				result = *e.completed
				o := e.settleLocked(spin, result)
				outcome = &o
			}
			e.completed = nil
			e.spin = nil
			spin.cancel()
		}
		e.mu.Unlock()

		if settled {
			if outcome != nil {
				e.publishOutcome(spin, result, *outcome)
			}
			return
		}

		// wheel_frameは毎フレーム送るのでログは出さない
		e.broadcaster.Broadcast(EventWheelFrame, frame)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// settleLocked applies a settled spin to the stats and the gate. Called with
// e.mu held so that no new spin can be accepted before the cooldown is set.
func (e *Engine) settleLocked(spin *activeSpin, result wheel.SpinResult) types.SpinOutcome {
	settledAt := e.clock.Now()

	outcome := types.SpinOutcome{
		ID:            spin.id,
		Winner:        result.Winner,
		WinnerIndex:   result.Index,
		UserID:        spin.userID,
		Deterministic: result.Deterministic,
		FinalAngle:    result.Angle,
		StartedAt:     spin.startedAt,
		SettledAt:     settledAt,
	}

	if result.Winner != nil {
		e.statsCache.SpinsCount++
		e.statsCache.LastWinnerName = result.Winner.Name
		e.gate.MarkSpun(settledAt)
	}
	outcome.SpinsCount = e.statsCache.SpinsCount
	outcome.LastWinnerName = e.statsCache.LastWinnerName
	e.lastOutcome = &outcome
	return outcome
}

// publishOutcome persists and broadcasts a settled spin outside the lock.
func (e *Engine) publishOutcome(spin *activeSpin, result wheel.SpinResult, outcome types.SpinOutcome) {
	metrics.SpinDuration.Observe(time.Since(spin.wallStart).Seconds())
	stats := types.SpinStats{SpinsCount: outcome.SpinsCount, LastWinnerName: outcome.LastWinnerName}

	announcement := announceFinished
	switch {
	case result.Winner == nil:
		metrics.SpinsCompleted.WithLabelValues("none").Inc()
		logger.Warn("Spin settled without a winner", zap.String("outcome_id", spin.id))
	default:
		announcement = "Result: " + result.Winner.Name
		label := "winner"
		if result.Snapped {
			label = "snapped"
		}
		metrics.SpinsCompleted.WithLabelValues(label).Inc()
		logger.Info("Spin completed",
			zap.String("outcome_id", spin.id),
			zap.String("user_id", spin.userID),
			zap.String("winner", result.Winner.Name),
			zap.Int("index", result.Index),
			zap.Bool("snapped", result.Snapped))

		if err := saveStats(e.stats, stats); err != nil {
			logger.Error("Failed to save spin stats", zap.Error(err))
		}
		e.submitRecord(outcome)
	}

	e.broadcaster.Broadcast(EventSpinCompleted, map[string]interface{}{
		"outcome":      outcome,
		"announcement": announcement,
		"snapped":      result.Snapped,
	})
}

// submitRecord writes the spin record and history off the frame path.
func (e *Engine) submitRecord(outcome types.SpinOutcome) {
	err := e.pool.Submit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), recordWriteTimeout)
		defer cancel()

		if err := e.gate.RecordSpinFor(ctx, outcome.UserID); err != nil {
			logger.Warn("Spin record write failed", zap.String("outcome_id", outcome.ID), zap.Error(err))
		}
		if e.history != nil {
			if err := e.history.RecordOutcome(outcome); err != nil {
				logger.Warn("Spin history write failed", zap.String("outcome_id", outcome.ID), zap.Error(err))
			}
		}
	})
	if err != nil {
		logger.Error("Failed to submit spin record write", zap.Error(err))
	}
}
