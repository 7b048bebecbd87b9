package spinengine

import (
	"github.com/ichi0g0y/spinwheel/internal/localdb"
	"github.com/ichi0g0y/spinwheel/internal/types"
)

// HistoryRecorder stores settled outcomes.
type HistoryRecorder interface {
	RecordOutcome(types.SpinOutcome) error
}

// LocalHistory writes outcomes to the spin_history table.
type LocalHistory struct{}

func (LocalHistory) RecordOutcome(o types.SpinOutcome) error {
	h := localdb.SpinHistory{
		OutcomeID:     o.ID,
		UserID:        o.UserID,
		WinnerIndex:   o.WinnerIndex,
		Deterministic: o.Deterministic,
		FinalAngle:    o.FinalAngle,
		SpinsCount:    o.SpinsCount,
		StartedAt:     o.StartedAt,
		SettledAt:     o.SettledAt,
	}
	if o.Winner != nil {
		h.WinnerID = o.Winner.ID
		h.WinnerName = o.Winner.Name
	}
	return localdb.SaveSpinHistory(h)
}
