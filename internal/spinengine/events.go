package spinengine

// WebSocket / TUI へ流すイベント種別
const (
	EventSpinStarted   = "spin_started"
	EventWheelFrame    = "wheel_frame"
	EventSpinCompleted = "spin_completed"
	EventWheelError    = "wheel_error"
	EventEligibility   = "eligibility"
	EventSegments      = "wheel_segments"
	// EventWheelState carries a full Snapshot to one client (on connect / sync)
	EventWheelState = "wheel_state"
)

const (
	announceSpinning = "Spinning"
	announceFinished = "Spin finished"
)

// Broadcaster delivers engine events to rendering clients.
type Broadcaster interface {
	Broadcast(msgType string, data interface{})
}

// BroadcastFunc adapts a function to Broadcaster.
type BroadcastFunc func(msgType string, data interface{})

func (f BroadcastFunc) Broadcast(msgType string, data interface{}) {
	f(msgType, data)
}

type nopBroadcaster struct{}

func (nopBroadcaster) Broadcast(string, interface{}) {}

// Frame is the per-tick payload of wheel_frame.
type Frame struct {
	Angle        float64 `json:"angle"`
	Velocity     float64 `json:"velocity"`
	CurrentIndex int     `json:"current_index"`
	IsSpinning   bool    `json:"is_spinning"`
}
