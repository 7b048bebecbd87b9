package logger

import (
	"strings"
	"testing"
	"time"
)

func TestLogBuffer_GetRecentWrapsAround(t *testing.T) {
	b := &LogBuffer{entries: make([]LogEntry, 3)}
	for i := 0; i < 5; i++ {
		b.add(LogEntry{Timestamp: time.Unix(int64(i), 0), Level: "INFO", Message: string(rune('a' + i))})
	}

	got := b.GetRecent(0)
	if len(got) != 3 {
		t.Fatalf("unexpected entry count: got=%d want=3", len(got))
	}
	want := []string{"c", "d", "e"}
	for i, e := range got {
		if e.Message != want[i] {
			t.Fatalf("unexpected message at %d: got=%q want=%q", i, e.Message, want[i])
		}
	}

	last := b.GetRecent(1)
	if len(last) != 1 || last[0].Message != "e" {
		t.Fatalf("unexpected most recent entry: %+v", last)
	}
}

func TestInit_HookFillsBuffer(t *testing.T) {
	Init(false)
	Info("buffer hook check")

	text := GetLogBuffer().ToText()
	if !strings.Contains(text, "buffer hook check") {
		t.Fatalf("log buffer did not capture message: %q", text)
	}
}
