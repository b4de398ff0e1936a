package logger

import (
	"io"
	"strings"
	"sync"
	"time"
)

// LogEntry is one captured log line.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Component string    `json:"component,omitempty"`
	WellID    string    `json:"well_id,omitempty"`
	Message   string    `json:"message"`
	Error     string    `json:"error,omitempty"`
	Caller    string    `json:"caller,omitempty"`
}

// LogBuffer is a fixed-size ring of recent log entries.
type LogBuffer struct {
	mu       sync.RWMutex
	entries  []LogEntry
	size     int
	writePos int
	count    int
}

const defaultBufferSize = 5000

var (
	globalBuffer *LogBuffer
	bufferOnce   sync.Once
)

// GetBuffer returns the process-wide buffer.
func GetBuffer() *LogBuffer {
	bufferOnce.Do(func() {
		globalBuffer = NewLogBuffer(defaultBufferSize)
	})
	return globalBuffer
}

func NewLogBuffer(size int) *LogBuffer {
	if size < 1 {
		size = 1
	}
	return &LogBuffer{
		entries: make([]LogEntry, size),
		size:    size,
	}
}

func (b *LogBuffer) Add(entry LogEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries[b.writePos] = entry
	b.writePos = (b.writePos + 1) % b.size
	if b.count < b.size {
		b.count++
	}
}

// LogFilter narrows GetRecent. Zero values match everything.
type LogFilter struct {
	Limit        int
	Level        string // minimum level
	Component    string
	WellID       string
	SinceMinutes int
}

// GetRecent returns matching entries, newest first.
func (b *LogBuffer) GetRecent(f LogFilter) []LogEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	limit := f.Limit
	if limit <= 0 || limit > b.count {
		limit = b.count
	}
	var cutoff time.Time
	if f.SinceMinutes > 0 {
		cutoff = time.Now().Add(-time.Duration(f.SinceMinutes) * time.Minute)
	}
	minLevel := strings.ToUpper(f.Level)

	result := make([]LogEntry, 0, limit)
	for i := 0; i < b.count && len(result) < limit; i++ {
		entry := b.entries[(b.writePos-1-i+b.size)%b.size]

		if !cutoff.IsZero() && entry.Timestamp.Before(cutoff) {
			continue
		}
		if minLevel != "" && !matchesLevel(entry.Level, minLevel) {
			continue
		}
		if f.Component != "" && entry.Component != f.Component {
			continue
		}
		if f.WellID != "" && entry.WellID != f.WellID {
			continue
		}
		result = append(result, entry)
	}
	return result
}

var levelPriority = map[string]int{
	"DEBUG": 0,
	"INFO":  1,
	"WARN":  2,
	"ERROR": 3,
	"FATAL": 4,
	"PANIC": 5,
}

// matchesLevel reports whether entryLevel is at or above filterLevel.
func matchesLevel(entryLevel, filterLevel string) bool {
	entry, ok1 := levelPriority[strings.ToUpper(entryLevel)]
	filter, ok2 := levelPriority[filterLevel]
	if !ok1 || !ok2 {
		return strings.EqualFold(entryLevel, filterLevel)
	}
	return entry >= filter
}

func (b *LogBuffer) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

// LogBufferWriter captures zerolog JSON lines into a LogBuffer, optionally
// passing them through to another writer.
type LogBufferWriter struct {
	buffer   *LogBuffer
	original io.Writer
}

func NewLogBufferWriter(original io.Writer) *LogBufferWriter {
	return &LogBufferWriter{
		buffer:   GetBuffer(),
		original: original,
	}
}

func (w *LogBufferWriter) Write(p []byte) (n int, err error) {
	if w.original != nil {
		n, err = w.original.Write(p)
	} else {
		n = len(p)
	}

	entry := parseLogLine(string(p))
	if entry.Message != "" || entry.Level != "" {
		w.buffer.Add(entry)
	}
	return n, err
}

// parseLogLine pulls the known string fields out of one zerolog JSON line:
//
//	{"level":"info","component":"api","well_id":"...","time":"...","message":"..."}
func parseLogLine(line string) LogEntry {
	entry := LogEntry{
		Timestamp: time.Now(),
		Level:     strings.ToUpper(stringField(line, "level")),
		Component: stringField(line, "component"),
		WellID:    stringField(line, "well_id"),
		Message:   stringField(line, "message"),
		Error:     stringField(line, "error"),
		Caller:    stringField(line, "caller"),
	}
	if entry.Message == "" {
		entry.Message = stringField(line, "msg")
	}
	if ts := stringField(line, "time"); ts != "" {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			entry.Timestamp = t
		}
	}
	return entry
}

// stringField returns the raw value of "key":"value", or "". Escaped quotes
// inside the value end it early; the buffer is for display only.
func stringField(line, key string) string {
	marker := `"` + key + `":"`
	idx := strings.Index(line, marker)
	if idx < 0 {
		return ""
	}
	start := idx + len(marker)
	end := strings.IndexByte(line[start:], '"')
	if end < 0 {
		return ""
	}
	return line[start : start+end]
}
