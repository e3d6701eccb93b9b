package scheduler

import (
	"sync"

	"github.com/pratik-mahalle/complyflow/internal/domain/job"
)

// DefaultHistorySize is the number of job results kept in memory
const DefaultHistorySize = 100

// History is a bounded ring of job results. Appending to a full ring evicts
// the oldest result.
type History struct {
	mu    sync.RWMutex
	items []*job.Result
	next  int
	full  bool
}

// NewHistory creates a ring holding up to size results
func NewHistory(size int) *History {
	if size < 1 {
		size = DefaultHistorySize
	}
	return &History{items: make([]*job.Result, size)}
}

// Add appends a result
func (h *History) Add(res *job.Result) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.items[h.next] = res
	h.next = (h.next + 1) % len(h.items)
	if h.next == 0 {
		h.full = true
	}
}

// Len returns the number of stored results
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.full {
		return len(h.items)
	}
	return h.next
}

// Cap returns the ring size
func (h *History) Cap() int {
	return len(h.items)
}

// List returns up to limit results, newest first. An empty jobID matches
// every job; limit <= 0 returns everything.
func (h *History) List(jobID string, limit int) []*job.Result {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := h.next
	if h.full {
		n = len(h.items)
	}
	out := make([]*job.Result, 0, n)
	for i := 0; i < n; i++ {
		idx := (h.next - 1 - i + len(h.items)) % len(h.items)
		res := h.items[idx]
		if jobID != "" && res.JobID != jobID {
			continue
		}
		out = append(out, res)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// Last returns the newest result of a job, or nil
func (h *History) Last(jobID string) *job.Result {
	if res := h.List(jobID, 1); len(res) == 1 {
		return res[0]
	}
	return nil
}
