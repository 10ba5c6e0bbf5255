package sweeper

import (
	"sync"

	"github.com/vadiminshakov/sweepguard/internal/domain"
)

// History is the ordered in-memory log of completed sweeps.
type History struct {
	mu      sync.RWMutex
	records []domain.SweepRecord
	limit   int
}

// NewHistory creates a history keeping at most limit records; 0 keeps everything.
func NewHistory(limit int) *History {
	if limit < 0 {
		limit = 0
	}
	return &History{limit: limit}
}

// Append adds a record, dropping the oldest one when the limit is reached.
func (h *History) Append(record domain.SweepRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.records = append(h.records, record)
	if h.limit > 0 && len(h.records) > h.limit {
		h.records = append([]domain.SweepRecord(nil), h.records[len(h.records)-h.limit:]...)
	}
}

// All returns a copy of the records, oldest first.
func (h *History) All() []domain.SweepRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]domain.SweepRecord, len(h.records))
	copy(out, h.records)
	return out
}

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.records)
}

// Last returns the most recent record.
func (h *History) Last() (domain.SweepRecord, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.records) == 0 {
		return domain.SweepRecord{}, false
	}
	return h.records[len(h.records)-1], true
}
