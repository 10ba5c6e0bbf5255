package clients

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"

	"github.com/vadiminshakov/sweepguard/internal/rpcpool"
)

const defaultRPCTimeout = 10 * time.Second

// Backend is the subset of *ethclient.Client used by the sweeper.
type Backend interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	Close()
}

// DialFunc opens a backend for one endpoint URL.
type DialFunc func(ctx context.Context, url string) (Backend, error)

func dialEthclient(ctx context.Context, url string) (Backend, error) {
	return ethclient.DialContext(ctx, url)
}

// EthClient routes every call through the active endpoint of the pool.
// Connections are dialed lazily and cached per URL. Failover is decided by the caller.
type EthClient struct {
	pool    *rpcpool.Pool
	dial    DialFunc
	timeout time.Duration

	mu    sync.Mutex
	conns map[string]Backend
}

// NewEthClient creates a client that dials endpoints with go-ethereum's ethclient.
func NewEthClient(pool *rpcpool.Pool, timeout time.Duration) *EthClient {
	return NewEthClientWithDialer(pool, timeout, dialEthclient)
}

// NewEthClientWithDialer creates a client with a custom dialer.
func NewEthClientWithDialer(pool *rpcpool.Pool, timeout time.Duration, dial DialFunc) *EthClient {
	if timeout <= 0 {
		timeout = defaultRPCTimeout
	}
	return &EthClient{
		pool:    pool,
		dial:    dial,
		timeout: timeout,
		conns:   make(map[string]Backend),
	}
}

// Balance returns the latest balance of account in wei.
func (c *EthClient) Balance(ctx context.Context, account common.Address) (*big.Int, error) {
	return call(ctx, c, "get balance", func(ctx context.Context, b Backend) (*big.Int, error) {
		return b.BalanceAt(ctx, account, nil)
	})
}

// GasPrice returns the node's suggested legacy gas price in wei.
func (c *EthClient) GasPrice(ctx context.Context) (*big.Int, error) {
	return call(ctx, c, "get gas price", func(ctx context.Context, b Backend) (*big.Int, error) {
		return b.SuggestGasPrice(ctx)
	})
}

// Nonce returns the transaction count of account at the latest block.
func (c *EthClient) Nonce(ctx context.Context, account common.Address) (uint64, error) {
	return call(ctx, c, "get transaction count", func(ctx context.Context, b Backend) (uint64, error) {
		return b.NonceAt(ctx, account, nil)
	})
}

// SendTransaction broadcasts a signed transaction.
func (c *EthClient) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	_, err := call(ctx, c, "send transaction", func(ctx context.Context, b Backend) (struct{}, error) {
		return struct{}{}, b.SendTransaction(ctx, tx)
	})
	return err
}

// ChainID returns the chain id reported by the active endpoint.
func (c *EthClient) ChainID(ctx context.Context) (*big.Int, error) {
	return call(ctx, c, "get chain id", func(ctx context.Context, b Backend) (*big.Int, error) {
		return b.ChainID(ctx)
	})
}

// BlockNumber returns the head block number of the active endpoint.
func (c *EthClient) BlockNumber(ctx context.Context) (uint64, error) {
	return call(ctx, c, "get block number", func(ctx context.Context, b Backend) (uint64, error) {
		return b.BlockNumber(ctx)
	})
}

// ProbeResult is the outcome of probing one endpoint.
type ProbeResult struct {
	URL         string
	ChainID     *big.Int
	BlockNumber uint64
	Err         error
}

// Probe queries chain id and head block on every endpoint, regardless of the cursor.
func (c *EthClient) Probe(ctx context.Context) []ProbeResult {
	endpoints := c.pool.Endpoints()
	results := make([]ProbeResult, 0, len(endpoints))
	for _, ep := range endpoints {
		res := ProbeResult{URL: ep.URL}
		b, err := c.connect(ctx, ep.URL)
		if err != nil {
			res.Err = err
			results = append(results, res)
			continue
		}

		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		res.ChainID, res.Err = b.ChainID(callCtx)
		if res.Err == nil {
			res.BlockNumber, res.Err = b.BlockNumber(callCtx)
		}
		cancel()

		results = append(results, res)
	}
	return results
}

// Close closes every cached connection.
func (c *EthClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for url, b := range c.conns {
		b.Close()
		delete(c.conns, url)
	}
}

func (c *EthClient) connect(ctx context.Context, url string) (Backend, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if b, ok := c.conns[url]; ok {
		return b, nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	b, err := c.dial(dialCtx, url)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", rpcpool.RedactURL(url))
	}
	c.conns[url] = b
	return b, nil
}

func call[T any](ctx context.Context, c *EthClient, op string, fn func(ctx context.Context, b Backend) (T, error)) (T, error) {
	var zero T

	url := c.pool.Current().URL
	b, err := c.connect(ctx, url)
	if err != nil {
		return zero, errors.Wrap(err, op)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	v, err := fn(callCtx, b)
	if err != nil {
		return zero, errors.Wrapf(err, "%s via %s", op, rpcpool.RedactURL(url))
	}

	c.pool.MarkAlive(url)
	return v, nil
}
