package diag

import (
	"strings"
	"sync"
	"time"
)

// LogEntry is a single captured log line.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Raw       string    `json:"raw"`
}

// LogBuffer is a thread-safe ring buffer capturing the daemon's own
// log output so the control API can serve recent lines without a
// shoreside log collector.
type LogBuffer struct {
	mu      sync.RWMutex
	entries []LogEntry
	size    int
	head    int
	count   int
}

// NewLogBuffer creates a log buffer with the given capacity.
func NewLogBuffer(size int) *LogBuffer {
	if size <= 0 {
		size = 1
	}
	return &LogBuffer{
		entries: make([]LogEntry, size),
		size:    size,
	}
}

// Write implements io.Writer so the buffer can sit in a zerolog
// multi-writer next to the console writer.
func (lb *LogBuffer) Write(p []byte) (n int, err error) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	raw := strings.TrimRight(string(p), "\n")
	entry := LogEntry{
		Timestamp: time.Now(),
		Level:     parseLevel(raw),
		Message:   parseMessage(raw),
		Raw:       raw,
	}

	lb.entries[lb.head] = entry
	lb.head = (lb.head + 1) % lb.size
	if lb.count < lb.size {
		lb.count++
	}

	return len(p), nil
}

// GetEntries returns all captured entries in chronological order.
func (lb *LogBuffer) GetEntries() []LogEntry {
	lb.mu.RLock()
	defer lb.mu.RUnlock()

	result := make([]LogEntry, lb.count)
	if lb.count == 0 {
		return result
	}

	start := 0
	if lb.count == lb.size {
		start = lb.head
	}
	for i := 0; i < lb.count; i++ {
		result[i] = lb.entries[(start+i)%lb.size]
	}
	return result
}

// GetRecentEntries returns the most recent n entries.
func (lb *LogBuffer) GetRecentEntries(n int) []LogEntry {
	entries := lb.GetEntries()
	if len(entries) <= n {
		return entries
	}
	return entries[len(entries)-n:]
}

// Clear drops all captured entries.
func (lb *LogBuffer) Clear() {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	lb.head = 0
	lb.count = 0
}

// parseLevel extracts the level from a zerolog JSON line.
func parseLevel(raw string) string {
	for _, level := range []string{"debug", "info", "warn", "error", "fatal"} {
		if strings.Contains(raw, `"level":"`+level+`"`) {
			return level
		}
	}
	return "info"
}

// parseMessage extracts the message field from a zerolog JSON line.
func parseMessage(raw string) string {
	const marker = `"message":"`
	start := strings.Index(raw, marker)
	if start == -1 {
		return raw
	}
	start += len(marker)
	end := start
	for end < len(raw) && raw[end] != '"' {
		if raw[end] == '\\' && end+1 < len(raw) {
			end += 2
			continue
		}
		end++
	}
	if end > start {
		return raw[start:end]
	}
	return raw
}
