// Package sweeper moves every spendable wei from the monitored account to the safe account.
package sweeper

import (
	"context"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/sweepguard/config"
	"github.com/vadiminshakov/sweepguard/internal/domain"
	"github.com/vadiminshakov/sweepguard/internal/metrics"
	"github.com/vadiminshakov/sweepguard/internal/notify"
	"github.com/vadiminshakov/sweepguard/internal/rpcpool"
	"github.com/vadiminshakov/sweepguard/pkg/retrier"
)

// Chain is the subset of the RPC client the engine needs. Calls go through the active endpoint.
type Chain interface {
	Balance(ctx context.Context, account common.Address) (*big.Int, error)
	GasPrice(ctx context.Context) (*big.Int, error)
	Nonce(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	ChainID(ctx context.Context) (*big.Int, error)
}

// Pool selects the active endpoint.
type Pool interface {
	Current() rpcpool.Endpoint
	Advance() rpcpool.Endpoint
	Index() int
	Size() int
}

// Notifier delivers alerts.
type Notifier interface {
	Send(ctx context.Context, text string) error
}

// Journal persists completed sweeps.
type Journal interface {
	Save(record domain.SweepRecord) error
}

// Engine runs the polling loop and performs sweeps. At most one sweep attempt is in flight.
type Engine struct {
	cfg      config.Config
	chain    Chain
	pool     Pool
	notifier Notifier
	history  *History
	journal  Journal
	metrics  *metrics.Metrics
	logger   *zap.Logger
	now      func() time.Time

	processing atomic.Bool

	mu        sync.RWMutex
	state     domain.BalanceState
	chainID   *big.Int
	startedAt time.Time
	lastTick  time.Time
}

// Option configures optional engine collaborators.
type Option func(*Engine)

// WithHistory replaces the default unbounded history, e.g. with one restored from the journal.
func WithHistory(h *History) Option {
	return func(e *Engine) {
		e.history = h
	}
}

func WithJournal(j Journal) Option {
	return func(e *Engine) {
		e.journal = j
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// New creates an engine.
func New(cfg config.Config, chain Chain, pool Pool, notifier Notifier, logger *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		cfg:      cfg,
		chain:    chain,
		pool:     pool,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
		state:    domain.NewBalanceState(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.history == nil {
		e.history = NewHistory(cfg.HistoryLimit)
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	return e
}

type bootstrap struct {
	chainID *big.Int
	balance *big.Int
}

// Start fetches the chain id and the initial balance, trying every endpoint once, announces the
// startup and runs the first sweep cycle synchronously.
func (e *Engine) Start(ctx context.Context) error {
	r := retrier.New(
		retrier.WithMaxRetries(e.pool.Size()-1),
		retrier.WithInitialInterval(0),
		retrier.WithJitter(0),
		retrier.WithOnRetry(func(attempt int, err error) {
			e.logger.Warn("Startup probe failed, trying next endpoint", zap.Int("attempt", attempt), zap.Error(err))
		}),
	)

	boot, err := retrier.DoWithData(r, ctx, func(ctx context.Context) (bootstrap, error) {
		chainID, err := e.chain.ChainID(ctx)
		if err != nil {
			e.failover("chain_id", err)
			return bootstrap{}, domain.NetworkError(err, "fetch chain id")
		}
		balance, err := e.chain.Balance(ctx, e.cfg.MonitoredAddress)
		if err != nil {
			e.failover("balance", err)
			return bootstrap{}, domain.NetworkError(err, "fetch initial balance")
		}
		return bootstrap{chainID: chainID, balance: balance}, nil
	})
	if err != nil {
		e.notify(ctx, notify.ErrorMessage("Startup failed: "+err.Error(), e.now()))
		return errors.Wrap(err, "no RPC endpoint answered at startup")
	}

	now := e.now()
	e.mu.Lock()
	e.chainID = boot.chainID
	e.startedAt = now
	e.state.Balance = new(big.Int).Set(boot.balance)
	e.state.ObservedAt = now
	e.mu.Unlock()

	e.metrics.SetBalance(boot.balance)
	e.metrics.SetActiveEndpoint(e.pool.Index())
	e.logger.Info("Sweeper started",
		zap.String("monitored", e.cfg.MonitoredAddress.Hex()),
		zap.String("safe", e.cfg.SafeAddress.Hex()),
		zap.String("chain_id", boot.chainID.String()),
		zap.String("balance_eth", domain.FormatEther(boot.balance)),
		zap.Duration("interval", e.cfg.PollInterval),
		zap.Int("endpoints", e.pool.Size()),
	)

	e.notify(ctx, notify.StartupMessage(notify.StartupInfo{
		Monitored:    e.cfg.MonitoredAddress,
		Safe:         e.cfg.SafeAddress,
		PollInterval: e.cfg.PollInterval,
		MinAmount:    e.cfg.MinAmount,
		SafetyMargin: e.cfg.SafetyMargin,
		Endpoints:    e.pool.Size(),
		ChainID:      boot.chainID,
		Balance:      boot.balance,
		At:           now,
	}))

	e.logTickError(e.Tick(context.WithoutCancel(ctx)))
	return nil
}

// Run polls on the configured interval until ctx is cancelled. A cycle in flight at cancellation
// runs to completion.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	e.logger.Info("Starting sweep loop", zap.Duration("poll_interval", e.cfg.PollInterval))

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Context done, stopping sweep loop")
			return ctx.Err()
		case <-ticker.C:
			e.logTickError(e.Tick(context.WithoutCancel(ctx)))
		}
	}
}

// Tick runs one check-and-sweep cycle. It returns domain.ErrTickSkipped if another cycle is in flight.
func (e *Engine) Tick(ctx context.Context) (err error) {
	if !e.processing.CompareAndSwap(false, true) {
		e.metrics.TickSkipped()
		return domain.ErrTickSkipped
	}
	defer e.processing.Store(false)
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("sweep cycle panicked: %v", r)
		}
	}()

	e.metrics.TickStarted()
	now := e.now()
	e.mu.Lock()
	e.lastTick = now
	e.mu.Unlock()

	balance, err := e.chain.Balance(ctx, e.cfg.MonitoredAddress)
	if err != nil {
		e.failover("balance", err)
		return domain.NetworkError(err, "fetch balance")
	}

	gasPrice, err := e.chain.GasPrice(ctx)
	if err != nil {
		e.failover("gas_price", err)
		gasPrice = e.cfg.FallbackGasPrice
		e.logger.Warn("Using fallback gas price", zap.String("gwei", domain.FormatGwei(gasPrice)))
	}

	plan, err := domain.PlanSweep(balance, gasPrice, e.cfg.GasLimit, e.cfg.SafetyMargin)
	if err != nil {
		return errors.Wrap(err, "size sweep")
	}

	e.metrics.SetBalance(balance)
	e.mu.Lock()
	changed := e.state.Observe(balance, plan.Sufficient, now)
	e.mu.Unlock()

	e.logger.Debug("Balance checked",
		zap.String("balance_eth", domain.FormatEther(balance)),
		zap.String("min_required_eth", domain.FormatEther(plan.MinRequired)),
		zap.Bool("sufficient", plan.Sufficient),
	)
	if changed {
		e.notify(ctx, notify.BalanceAlertMessage(balance, plan.MinRequired, plan.Sufficient, now))
	}

	if !plan.Sufficient {
		return nil
	}
	if !plan.Transferable() {
		e.metrics.InsufficientForGas()
		return domain.ErrInsufficientFundsForGas
	}

	e.logger.Info("Balance sufficient, sweeping",
		zap.String("balance_eth", domain.FormatEther(balance)),
		zap.String("amount_eth", domain.FormatEther(plan.Amount)),
		zap.String("gas_cost_eth", domain.FormatEther(plan.GasCost)),
	)

	record, err := e.transfer(ctx, plan)
	if err != nil {
		e.failover("transfer", err)
		e.metrics.SweepFailed()
		e.notify(ctx, notify.TransferFailedMessage(plan.Amount, err, e.now()))
		return err
	}

	e.history.Append(record)
	if e.journal != nil {
		if err := e.journal.Save(record); err != nil {
			e.logger.Error("Failed to journal sweep", zap.String("tx", record.TxHash), zap.Error(err))
		}
	}

	e.mu.Lock()
	e.state.Drain(record.Timestamp)
	e.mu.Unlock()

	e.metrics.SweepSucceeded(record)
	e.logger.Info("Sweep broadcast",
		zap.String("id", record.ID),
		zap.String("tx", record.TxHash),
		zap.String("amount_eth", domain.FormatEther(record.Amount)),
		zap.Uint64("nonce", record.Nonce),
	)
	e.notify(ctx, notify.TransferMessage(record, e.cfg.ExplorerTxURL))

	return nil
}

func (e *Engine) transfer(ctx context.Context, plan domain.SweepPlan) (domain.SweepRecord, error) {
	chainID, err := e.chainIDFor(ctx)
	if err != nil {
		return domain.SweepRecord{}, domain.TransferError(err, "fetch chain id")
	}

	nonce, err := e.chain.Nonce(ctx, e.cfg.MonitoredAddress)
	if err != nil {
		return domain.SweepRecord{}, domain.TransferError(err, "fetch nonce")
	}

	safe := e.cfg.SafeAddress
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &safe,
		Value:    plan.Amount,
		Gas:      plan.GasLimit,
		GasPrice: plan.GasPrice,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), e.cfg.SigningKey())
	if err != nil {
		return domain.SweepRecord{}, domain.TransferError(err, "sign transaction")
	}

	if err := e.chain.SendTransaction(ctx, signed); err != nil {
		return domain.SweepRecord{}, domain.TransferError(err, "broadcast transaction")
	}

	return domain.NewSweepRecord(plan, signed.Hash().Hex(), nonce, e.now()), nil
}

// chainIDFor returns the chain id fetched at startup, fetching it if Start was not called.
func (e *Engine) chainIDFor(ctx context.Context) (*big.Int, error) {
	e.mu.RLock()
	id := e.chainID
	e.mu.RUnlock()
	if id != nil {
		return id, nil
	}

	id, err := e.chain.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.chainID = id
	e.mu.Unlock()
	return id, nil
}

func (e *Engine) failover(op string, err error) {
	from := e.pool.Current()
	to := e.pool.Advance()

	e.metrics.NetworkError(op)
	e.metrics.Failover(from.Redacted(), e.pool.Index())
	e.logger.Warn("RPC call failed, switching endpoint",
		zap.String("op", op),
		zap.String("from", from.Redacted()),
		zap.String("to", to.Redacted()),
		zap.Error(err),
	)
}

func (e *Engine) notify(ctx context.Context, text string) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Send(ctx, text); err != nil {
		e.logger.Error("Failed to send notification", zap.Error(err))
	}
}

func (e *Engine) logTickError(err error) {
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrTickSkipped):
		e.logger.Debug("Sweep already in progress, skipping tick")
	case errors.Is(err, domain.ErrInsufficientFundsForGas):
		e.logger.Warn("Balance does not cover gas, nothing to sweep")
	case errors.Is(err, domain.ErrNetwork):
		e.logger.Error("Balance check failed", zap.Error(err))
	case errors.Is(err, domain.ErrTransfer):
		e.logger.Error("Sweep failed", zap.Error(err))
	default:
		e.logger.Error("Sweep cycle failed", zap.Error(err))
	}
}
