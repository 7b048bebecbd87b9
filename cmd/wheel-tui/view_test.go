package main

import (
	"strings"
	"testing"

	"github.com/gdamore/tcell/v2"
	"github.com/ichi0g0y/spinwheel/internal/identity"
	"github.com/ichi0g0y/spinwheel/internal/spinengine"
	"github.com/ichi0g0y/spinwheel/internal/types"
	"github.com/ichi0g0y/spinwheel/internal/wheel"
)

type gridScreen struct {
	w, h  int
	cells [][]rune
}

func newGridScreen(w, h int) *gridScreen {
	g := &gridScreen{w: w, h: h, cells: make([][]rune, h)}
	for y := range g.cells {
		g.cells[y] = make([]rune, w)
	}
	return g
}

func (g *gridScreen) SetContent(x, y int, primary rune, _ []rune, _ tcell.Style) {
	if x < 0 || y < 0 || x >= g.w || y >= g.h {
		return
	}
	g.cells[y][x] = primary
}

func (g *gridScreen) text() string {
	var sb strings.Builder
	for _, row := range g.cells {
		sb.WriteString(string(row))
		sb.WriteByte('\n')
	}
	return sb.String()
}

func message(t *testing.T, msgType string, data interface{}) wsMessage {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	return wsMessage{Type: msgType, Data: raw}
}

var testSegments = []types.Segment{
	{ID: "1", Name: "A", Color: "#ff0000"},
	{ID: "2", Name: "B", Color: "#00ff00"},
	{ID: "3", Name: "C", Color: "#0000ff"},
	{ID: "4", Name: "D", Color: "#ffff00"},
}

func TestWheelView_ApplySnapshotAndFrames(t *testing.T) {
	v := &wheelView{}

	if !v.apply(message(t, "connected", map[string]string{"client_id": "x"})) || !v.connected {
		t.Fatalf("connected message should mark the view connected")
	}

	snap := spinengine.Snapshot{
		Segments:    testSegments,
		Eligibility: types.EligibilityStatus{UserID: "u", Eligible: true},
	}
	if !v.apply(message(t, spinengine.EventWheelState, snap)) {
		t.Fatalf("snapshot should trigger a redraw")
	}
	if len(v.segments) != 4 || !v.eligibility.Eligible {
		t.Fatalf("snapshot not applied: %+v", v)
	}

	frame := spinengine.Frame{Angle: 3.5, Velocity: 0.2, CurrentIndex: 2, IsSpinning: true}
	v.apply(message(t, spinengine.EventWheelFrame, frame))
	if v.state.Angle != 3.5 || v.state.CurrentIndex != 2 || !v.state.IsSpinning {
		t.Fatalf("frame not applied: %+v", v.state)
	}

	finalAngle := wheel.SegmentCenter(1, 4) + 4*wheel.TAU
	v.apply(message(t, spinengine.EventSpinCompleted, map[string]interface{}{
		"outcome": types.SpinOutcome{
			ID:             "o-1",
			Winner:         &testSegments[1],
			WinnerIndex:    1,
			SpinsCount:     3,
			LastWinnerName: "B",
			FinalAngle:     finalAngle,
		},
		"announcement": "Result: B",
	}))
	if v.state.IsSpinning || v.state.CurrentIndex != 1 {
		t.Fatalf("completion not applied: %+v", v.state)
	}
	if v.stats.SpinsCount != 3 || v.stats.LastWinnerName != "B" || v.announcement != "Result: B" {
		t.Fatalf("unexpected stats/announcement: %+v %q", v.stats, v.announcement)
	}

	if v.apply(wsMessage{Type: "unknown"}) {
		t.Fatalf("unknown messages should not redraw")
	}
}

func TestWheelView_ErrorsAndEligibility(t *testing.T) {
	v := &wheelView{connected: true, segments: testSegments}

	v.apply(message(t, spinengine.EventEligibility, types.EligibilityStatus{
		UserID:        "u",
		RemainingText: "1h 2m 3s",
	}))
	v.apply(message(t, spinengine.EventWheelError, map[string]string{"message": "cannot spin: wait 1h 2m 3s"}))

	var texts []string
	for _, l := range v.statusLines() {
		texts = append(texts, l.text)
	}
	joined := strings.Join(texts, "\n")
	if !strings.Contains(joined, "Next spin in 1h 2m 3s") {
		t.Fatalf("countdown missing from status: %q", joined)
	}
	if !strings.Contains(joined, "cannot spin: wait 1h 2m 3s") {
		t.Fatalf("error missing from status: %q", joined)
	}

	v.apply(message(t, spinengine.EventSegments, map[string]interface{}{
		"segments": []types.Segment{{ID: "1", Name: "A"}, {ID: "2", Name: "A"}},
		"error":    "duplicate segment name \"A\"",
	}))
	if v.configError == "" || len(v.segments) != 2 {
		t.Fatalf("segment error not applied: %+v", v)
	}
}

func TestWheelView_SegmentUnderPointer(t *testing.T) {
	v := &wheelView{segments: testSegments}

	for i := range testSegments {
		v.state.Angle = wheel.SegmentCenter(i, len(testSegments))
		// ポインタ直下（真上）のセル
		if got := v.segmentAt(0, -1); got != i {
			t.Fatalf("angle %v: got=%d want=%d", v.state.Angle, got, i)
		}
	}
}

func TestWheelView_DrawShowsPointerAndStatus(t *testing.T) {
	v := &wheelView{connected: true, segments: testSegments}
	v.state.CurrentIndex = 2
	v.eligibility = types.EligibilityStatus{LoginRequired: true}

	screen := newGridScreen(60, 24)
	v.draw(screen, 60, 24)

	out := screen.text()
	if !strings.ContainsRune(out, '▼') {
		t.Fatalf("pointer not drawn:\n%s", out)
	}
	if !strings.Contains(out, "Pointer: C") {
		t.Fatalf("pointer segment missing:\n%s", out)
	}
	if !strings.Contains(out, "Login required to spin") {
		t.Fatalf("login hint missing:\n%s", out)
	}
}

func TestParseFlags(t *testing.T) {
	opts, err := parseFlags([]string{"-server", "http://wheel:9000", "-target", "3"})
	if err != nil {
		t.Fatalf("parseFlags failed: %v", err)
	}
	if opts.server != "http://wheel:9000" || opts.target != "3" {
		t.Fatalf("unexpected options: %+v", opts)
	}

	if _, err := parseFlags([]string{"-secret", "s"}); err == nil {
		t.Fatalf("-secret without -user should fail")
	}
}

func TestResolveTokenIssuesWithSecret(t *testing.T) {
	opts := options{secret: "dev-secret", user: "user-9", name: "Nine"}
	token, err := opts.resolveToken()
	if err != nil {
		t.Fatalf("resolveToken failed: %v", err)
	}

	user, err := identity.NewTokenVerifier("dev-secret", "").Verify(token)
	if err != nil {
		t.Fatalf("issued token does not verify: %v", err)
	}
	if user.ID != "user-9" || user.DisplayName != "Nine" {
		t.Fatalf("unexpected user: %+v", user)
	}

	if tok, _ := (options{token: "given"}).resolveToken(); tok != "given" {
		t.Fatalf("explicit token should win: got=%q", tok)
	}
}

func TestWheelClientURLs(t *testing.T) {
	c, err := newWheelClient("https://wheel.example.com/base/")
	if err != nil {
		t.Fatalf("newWheelClient failed: %v", err)
	}
	if got := c.wsURL(); got != "wss://wheel.example.com/base/ws" {
		t.Fatalf("unexpected ws url: got=%q", got)
	}

	if _, err := newWheelClient("ftp://wheel"); err == nil {
		t.Fatalf("non-http scheme should be rejected")
	}
}
