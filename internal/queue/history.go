package queue

import (
	"sync"
	"time"
)

// JobOutcome is the terminal state of a finished job.
type JobOutcome string

const (
	OutcomeCompleted JobOutcome = "completed"
	OutcomeFailed    JobOutcome = "failed"
)

// JobRecord is one entry in the recent-history buffer.
type JobRecord struct {
	Topic      string
	Outcome    JobOutcome
	Attempts   int
	Error      string
	EnqueuedAt time.Time
	FinishedAt time.Time
}

// History is a bounded ring of finished jobs, kept for observability
// only; nothing is ever redelivered from it.
type History struct {
	mu   sync.Mutex
	buf  []JobRecord
	next int
	full bool
}

// NewHistory creates a ring holding the most recent size records.
func NewHistory(size int) *History {
	if size < 1 {
		size = 1
	}
	return &History{buf: make([]JobRecord, size)}
}

// Record appends a finished job, evicting the oldest when full.
func (h *History) Record(r JobRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.buf[h.next] = r
	h.next = (h.next + 1) % len(h.buf)
	if h.next == 0 {
		h.full = true
	}
}

// Recent returns finished jobs, newest first.
func (h *History) Recent() []JobRecord {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := h.next
	if h.full {
		n = len(h.buf)
	}
	out := make([]JobRecord, 0, n)
	for i := 0; i < n; i++ {
		idx := (h.next - 1 - i + len(h.buf)) % len(h.buf)
		out = append(out, h.buf[idx])
	}
	return out
}
