package core

import (
	"bytes"
	"io"
	"strings"
	"sync"
	"time"

	"pkt.systems/hostbridge/schema"
)

// DefaultConsoleCapacity is the number of log entries retained by default.
const DefaultConsoleCapacity = 100

// LogBuffer is a bounded FIFO of recent host log entries.
// Appends beyond capacity evict the oldest entry; reads never affect eviction.
type LogBuffer struct {
	mu       sync.Mutex
	entries  []schema.LogEntry
	capacity int
	now      func() time.Time
}

// NewLogBuffer returns a buffer holding at most capacity entries.
// A non-positive capacity selects DefaultConsoleCapacity.
func NewLogBuffer(capacity int) *LogBuffer {
	if capacity <= 0 {
		capacity = DefaultConsoleCapacity
	}
	return &LogBuffer{capacity: capacity, now: time.Now}
}

// Append adds an entry, evicting the oldest when the buffer is full.
// A zero timestamp is replaced with the current time.
func (b *LogBuffer) Append(entry schema.LogEntry) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if entry.Timestamp.IsZero() {
		entry.Timestamp = b.now()
	}
	if entry.Level == "" {
		entry.Level = schema.LogInfo
	}
	b.entries = append(b.entries, entry)
	if len(b.entries) > b.capacity {
		trim := len(b.entries) - b.capacity
		b.entries = b.entries[trim:]
	}
}

// Log appends a text line at the given level.
func (b *LogBuffer) Log(level schema.LogLevel, text string) {
	b.Append(schema.LogEntry{Level: level, Text: text})
}

// Snapshot returns a copy of the entries, oldest first.
func (b *LogBuffer) Snapshot() []schema.LogEntry {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]schema.LogEntry, len(b.entries))
	copy(out, b.entries)
	return out
}

// Len returns the number of buffered entries.
func (b *LogBuffer) Len() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Capacity returns the maximum number of retained entries.
func (b *LogBuffer) Capacity() int {
	if b == nil {
		return 0
	}
	return b.capacity
}

// Writer returns an io.Writer that appends one entry per written line.
// Partial lines are held until their newline arrives.
func (b *LogBuffer) Writer(level schema.LogLevel) io.Writer {
	return &logWriter{buf: b, level: level}
}

type logWriter struct {
	mu      sync.Mutex
	buf     *LogBuffer
	level   schema.LogLevel
	pending []byte
}

func (w *logWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending = append(w.pending, p...)
	for {
		idx := bytes.IndexByte(w.pending, '\n')
		if idx < 0 {
			break
		}
		line := strings.TrimRight(string(w.pending[:idx]), "\r")
		w.pending = w.pending[idx+1:]
		if strings.TrimSpace(line) == "" {
			continue
		}
		w.buf.Log(w.level, line)
	}
	if len(w.pending) == 0 {
		w.pending = nil
	}
	return len(p), nil
}
