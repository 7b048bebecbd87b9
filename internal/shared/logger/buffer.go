package logger

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
)

const logBufferSize = 1000

// LogEntry はログバッファに保持する1件分のログ
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Caller    string    `json:"caller,omitempty"`
}

// LogBuffer keeps the most recent entries in a fixed-size ring.
type LogBuffer struct {
	mu      sync.RWMutex
	entries []LogEntry
	next    int
	full    bool
}

var logBuffer = &LogBuffer{entries: make([]LogEntry, logBufferSize)}

// GetLogBuffer returns the process-wide log buffer.
func GetLogBuffer() *LogBuffer {
	return logBuffer
}

func (b *LogBuffer) add(entry LogEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries[b.next] = entry
	b.next = (b.next + 1) % len(b.entries)
	if b.next == 0 {
		b.full = true
	}
}

// GetRecent returns up to limit entries, oldest first.
func (b *LogBuffer) GetRecent(limit int) []LogEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	size := b.next
	if b.full {
		size = len(b.entries)
	}
	if limit <= 0 || limit > size {
		limit = size
	}

	result := make([]LogEntry, 0, limit)
	start := (b.next - limit + len(b.entries)) % len(b.entries)
	for i := 0; i < limit; i++ {
		result = append(result, b.entries[(start+i)%len(b.entries)])
	}
	return result
}

// ToJSON renders the whole buffer as a JSON array.
func (b *LogBuffer) ToJSON() ([]byte, error) {
	return json.MarshalIndent(b.GetRecent(0), "", "  ")
}

// ToText renders the whole buffer one entry per line.
func (b *LogBuffer) ToText() string {
	var sb strings.Builder
	for _, e := range b.GetRecent(0) {
		fmt.Fprintf(&sb, "[%s] %s %s\n", e.Timestamp.Format(timeFmt), e.Level, e.Message)
	}
	return sb.String()
}
