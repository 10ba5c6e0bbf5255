package sweeps

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"

	"github.com/vadiminshakov/sweepguard/internal/domain"
)

const (
	defaultSweepDir   = "./wal/sweeps"
	sweepSegmentLimit = 1000
	sweepMaxSegments  = 100
	sweepKeyPrefix    = "sweep_"
)

// Record is a journaled sweep with its WAL index.
type Record struct {
	Index uint64
	Sweep domain.SweepRecord
}

// WALStore journals completed sweeps so the history survives restarts.
type WALStore struct {
	wal *gowal.Wal
	mu  sync.RWMutex
}

// NewWALStore initializes a WAL-backed sweep journal under the provided directory.
func NewWALStore(dir string) (*WALStore, error) {
	if dir == "" {
		dir = defaultSweepDir
	}

	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "sweep_",
		SegmentThreshold: sweepSegmentLimit,
		MaxSegments:      sweepMaxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init sweep WAL")
	}

	return &WALStore{wal: wal}, nil
}

// Save appends the sweep to the journal.
func (s *WALStore) Save(record domain.SweepRecord) error {
	if s == nil || s.wal == nil {
		return errors.New("sweep store is not initialized")
	}
	if record.TxHash == "" {
		return errors.New("sweep tx hash is required")
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return errors.Wrap(err, "marshal sweep record")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	nextIndex := s.wal.CurrentIndex() + 1
	return s.wal.Write(nextIndex, sweepKeyPrefix+record.TxHash, payload)
}

// RecordsAfter returns the sweeps journaled after the provided WAL index, oldest first.
func (s *WALStore) RecordsAfter(index uint64) ([]Record, error) {
	if s == nil || s.wal == nil {
		return nil, errors.New("sweep store is not initialized")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	current := s.wal.CurrentIndex()
	if current <= index {
		return nil, nil
	}

	records := make([]Record, 0, current-index)
	for idx := index + 1; idx <= current; idx++ {
		key, payload, err := s.wal.Get(idx)
		if err != nil || !strings.HasPrefix(key, sweepKeyPrefix) {
			continue
		}
		var sweep domain.SweepRecord
		if err := json.Unmarshal(payload, &sweep); err != nil {
			return nil, errors.Wrap(err, "decode sweep record")
		}
		records = append(records, Record{Index: idx, Sweep: sweep})
	}

	return records, nil
}

// Sweeps returns every journaled sweep, oldest first.
func (s *WALStore) Sweeps() ([]domain.SweepRecord, error) {
	records, err := s.RecordsAfter(0)
	if err != nil {
		return nil, err
	}
	out := make([]domain.SweepRecord, 0, len(records))
	for _, r := range records {
		out = append(out, r.Sweep)
	}
	return out, nil
}

// CurrentIndex returns the latest WAL index stored.
func (s *WALStore) CurrentIndex() uint64 {
	if s == nil || s.wal == nil {
		return 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.wal.CurrentIndex()
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	if s == nil || s.wal == nil {
		return errors.New("sweep store is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}
