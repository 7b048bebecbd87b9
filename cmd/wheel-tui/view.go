package main

import (
	"fmt"
	"math"

	"github.com/gdamore/tcell/v2"
	"github.com/ichi0g0y/spinwheel/internal/spinengine"
	"github.com/ichi0g0y/spinwheel/internal/types"
	"github.com/ichi0g0y/spinwheel/internal/wheel"
)

// 端末セルは縦長なので横方向を2倍に伸ばす
const cellAspect = 2.0

// cellWriter is the part of tcell.Screen the view draws with.
type cellWriter interface {
	SetContent(x, y int, primary rune, combining []rune, style tcell.Style)
}

// wheelView is the client-side copy of the wheel state.
type wheelView struct {
	segments     []types.Segment
	configError  string
	state        types.RotationState
	eligibility  types.EligibilityStatus
	stats        types.SpinStats
	announcement string
	lastError    string
	connected    bool
}

// apply folds one server message into the view. It reports whether a redraw
// is needed.
func (v *wheelView) apply(msg wsMessage) bool {
	switch msg.Type {
	case "connected":
		v.connected = true

	case spinengine.EventWheelState:
		var snap spinengine.Snapshot
		if json.Unmarshal(msg.Data, &snap) != nil {
			return false
		}
		v.segments = snap.Segments
		v.configError = snap.Error
		v.state = snap.State
		v.eligibility = snap.Eligibility
		v.stats = snap.Stats

	case spinengine.EventWheelFrame:
		var f spinengine.Frame
		if json.Unmarshal(msg.Data, &f) != nil {
			return false
		}
		v.state = types.RotationState{
			Angle:        f.Angle,
			Velocity:     f.Velocity,
			IsSpinning:   f.IsSpinning,
			CurrentIndex: f.CurrentIndex,
		}

	case spinengine.EventSegments:
		var p struct {
			Segments []types.Segment `json:"segments"`
			Error    string          `json:"error"`
		}
		if json.Unmarshal(msg.Data, &p) != nil {
			return false
		}
		v.segments = p.Segments
		v.configError = p.Error
		v.state.CurrentIndex = wheel.SegmentIndexForAngle(v.state.Angle, len(v.segments))

	case spinengine.EventSpinStarted:
		var p struct {
			Announcement string  `json:"announcement"`
			StartAngle   float64 `json:"start_angle"`
		}
		if json.Unmarshal(msg.Data, &p) != nil {
			return false
		}
		v.announcement = p.Announcement
		v.lastError = ""
		v.state.IsSpinning = true

	case spinengine.EventSpinCompleted:
		var p struct {
			Outcome      types.SpinOutcome `json:"outcome"`
			Announcement string            `json:"announcement"`
		}
		if json.Unmarshal(msg.Data, &p) != nil {
			return false
		}
		v.announcement = p.Announcement
		v.state.IsSpinning = false
		v.state.Angle = p.Outcome.FinalAngle
		v.state.CurrentIndex = wheel.SegmentIndexForAngle(p.Outcome.FinalAngle, len(v.segments))
		v.stats = types.SpinStats{SpinsCount: p.Outcome.SpinsCount, LastWinnerName: p.Outcome.LastWinnerName}

	case spinengine.EventEligibility:
		var st types.EligibilityStatus
		if json.Unmarshal(msg.Data, &st) != nil {
			return false
		}
		v.eligibility = st

	case spinengine.EventWheelError:
		var p struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(msg.Data, &p) != nil {
			return false
		}
		v.lastError = p.Message

	default:
		return false
	}
	return true
}

// segmentAt returns the segment drawn at screen offset (dx, dy) from the
// centre. The pointer sits straight up and reads the current index.
func (v *wheelView) segmentAt(dx, dy float64) int {
	phi := math.Atan2(dx, -dy) // 上から時計回り
	return wheel.SegmentIndexForAngle(v.state.Angle+phi, len(v.segments))
}

func segmentStyle(seg types.Segment) tcell.Style {
	return tcell.StyleDefault.Background(tcell.GetColor(seg.Color)).Foreground(tcell.ColorBlack)
}

// draw renders the wheel into a w×h area.
func (v *wheelView) draw(s cellWriter, w, h int) {
	blank := tcell.StyleDefault
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			s.SetContent(x, y, ' ', nil, blank)
		}
	}

	status := h - 4
	radius := math.Min(float64(w)/(2*cellAspect), float64(status-2)/2) - 1
	cx, cy := float64(w)/2, float64(status)/2+1

	if radius >= 2 && len(v.segments) > 0 {
		for y := 0; y < status; y++ {
			for x := 0; x < w; x++ {
				dx := (float64(x) + 0.5 - cx) / cellAspect
				dy := float64(y) + 0.5 - cy
				if math.Hypot(dx, dy) > radius {
					continue
				}
				idx := v.segmentAt(dx, dy)
				if idx < 0 {
					continue
				}
				s.SetContent(x, y, ' ', nil, segmentStyle(v.segments[idx]))
			}
		}
		// ポインタ
		s.SetContent(int(cx), int(cy-radius)-1, '▼', nil, tcell.StyleDefault.Foreground(tcell.ColorRed).Bold(true))
	}

	lines := v.statusLines()
	for i, line := range lines {
		drawText(s, 1, status+i, w-2, line.text, line.style)
	}
}

type statusLine struct {
	text  string
	style tcell.Style
}

func (v *wheelView) statusLines() []statusLine {
	plain := tcell.StyleDefault
	warn := tcell.StyleDefault.Foreground(tcell.ColorYellow)
	bad := tcell.StyleDefault.Foreground(tcell.ColorRed)

	pointer := "-"
	if i := v.state.CurrentIndex; i >= 0 && i < len(v.segments) {
		pointer = v.segments[i].Name
	}
	lines := []statusLine{{fmt.Sprintf("Pointer: %s   Spins: %d   Last winner: %s", pointer, v.stats.SpinsCount, v.stats.LastWinnerName), plain}}

	switch {
	case !v.connected:
		lines = append(lines, statusLine{"Connecting...", warn})
	case v.eligibility.LoginRequired:
		lines = append(lines, statusLine{"Login required to spin", warn})
	case v.eligibility.Error != "":
		lines = append(lines, statusLine{"Cannot spin: " + v.eligibility.Error, bad})
	case !v.eligibility.Eligible:
		lines = append(lines, statusLine{"Next spin in " + v.eligibility.RemainingText, warn})
	default:
		lines = append(lines, statusLine{"Ready to spin", plain})
	}

	switch {
	case v.configError != "":
		lines = append(lines, statusLine{v.configError, bad})
	case v.lastError != "":
		lines = append(lines, statusLine{v.lastError, bad})
	case v.announcement != "":
		lines = append(lines, statusLine{v.announcement, plain.Bold(true)})
	}

	lines = append(lines, statusLine{"[space] spin  [←/→] nudge  [r] sync  [q] quit", plain.Dim(true)})
	return lines
}

func drawText(s cellWriter, x, y, maxWidth int, text string, style tcell.Style) {
	col := 0
	for _, r := range text {
		if col >= maxWidth {
			return
		}
		s.SetContent(x+col, y, r, nil, style)
		col++
	}
}
