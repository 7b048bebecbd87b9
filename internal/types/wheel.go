package types

import "time"

// Segment はホイールの1区画
type Segment struct {
	ID     string `json:"id" db:"id"`
	Name   string `json:"name" db:"name"`
	Color  string `json:"color,omitempty" db:"color"`   // 未指定ならパレットから割り当て
	Weight int    `json:"weight,omitempty" db:"weight"` // 景品抽選の重み（0以下は1扱い）
}

// RotationState はホイールの回転状態
type RotationState struct {
	Angle        float64 `json:"angle"`    // 累積角度（rad、正規化しない）
	Velocity     float64 `json:"velocity"` // rad / nominal frame
	IsSpinning   bool    `json:"is_spinning"`
	CurrentIndex int     `json:"current_index"` // ポインタ下の区画（区画なしは-1）
}

// EligibilityStatus はスピン可否の判定結果
type EligibilityStatus struct {
	UserID        string        `json:"user_id"`
	LoginRequired bool          `json:"login_required"`
	Eligible      bool          `json:"eligible"`
	Remaining     time.Duration `json:"remaining_ns"`
	RemainingText string        `json:"remaining_text"`
	LastSpinAt    *time.Time    `json:"last_spin_at,omitempty"`
	Error         string        `json:"error,omitempty"`
}

// SpinOutcome は1回のスピン結果
type SpinOutcome struct {
	ID             string    `json:"id"`
	Winner         *Segment  `json:"winner,omitempty"`
	WinnerIndex    int       `json:"winner_index"`
	SpinsCount     int       `json:"spins_count"`
	LastWinnerName string    `json:"last_winner_name"`
	UserID         string    `json:"user_id"`
	Deterministic  bool      `json:"deterministic"`
	FinalAngle     float64   `json:"final_angle"`
	StartedAt      time.Time `json:"started_at"`
	SettledAt      time.Time `json:"settled_at"`
}

// SpinStats はローカルに保存する累計情報（ブラウザ版と同じJSON形）
type SpinStats struct {
	SpinsCount     int    `json:"spinsCount"`
	LastWinnerName string `json:"lastWinnerName"`
}
