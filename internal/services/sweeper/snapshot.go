package sweeper

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/vadiminshakov/sweepguard/internal/domain"
	"github.com/vadiminshakov/sweepguard/internal/rpcpool"
)

// Snapshot is a consistent read-only view of the engine for status queries.
type Snapshot struct {
	Monitored      common.Address
	Safe           common.Address
	Balance        domain.BalanceState
	ChainID        *big.Int
	StartedAt      time.Time
	LastTick       time.Time
	Sweeps         int
	ActiveEndpoint rpcpool.Endpoint
	EndpointIndex  int
	EndpointCount  int
	Processing     bool
	PollInterval   time.Duration
	MinAmount      *big.Int
}

// Snapshot copies the current state. It never blocks on an in-flight sweep.
func (e *Engine) Snapshot() Snapshot {
	e.mu.RLock()
	s := Snapshot{
		Monitored:    e.cfg.MonitoredAddress,
		Safe:         e.cfg.SafeAddress,
		Balance:      e.state.Clone(),
		StartedAt:    e.startedAt,
		LastTick:     e.lastTick,
		PollInterval: e.cfg.PollInterval,
		MinAmount:    e.cfg.MinAmount,
	}
	if e.chainID != nil {
		s.ChainID = new(big.Int).Set(e.chainID)
	}
	e.mu.RUnlock()

	s.Sweeps = e.history.Len()
	s.ActiveEndpoint = e.pool.Current()
	s.EndpointIndex = e.pool.Index()
	s.EndpointCount = e.pool.Size()
	s.Processing = e.processing.Load()
	return s
}

// History returns completed sweeps, oldest first.
func (e *Engine) History() []domain.SweepRecord {
	return e.history.All()
}

// LiveBalance reads the monitored balance through the active endpoint without touching the
// polling state or the endpoint cursor.
func (e *Engine) LiveBalance(ctx context.Context) (*big.Int, error) {
	balance, err := e.chain.Balance(ctx, e.cfg.MonitoredAddress)
	if err != nil {
		return nil, domain.NetworkError(err, "fetch live balance")
	}
	return balance, nil
}

// Healthy reports an error until startup completed.
func (e *Engine) Healthy() error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.startedAt.IsZero() {
		return errors.New("sweeper has not started")
	}
	return nil
}
