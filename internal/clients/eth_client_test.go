package clients

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/sweepguard/internal/rpcpool"
)

// fakeBackend answers with fixed values and counts calls.
type fakeBackend struct {
	url     string
	balance *big.Int
	err     error
	calls   int
	closed  bool
	sent    []*types.Transaction
}

func (f *fakeBackend) BalanceAt(context.Context, common.Address, *big.Int) (*big.Int, error) {
	f.calls++
	return f.balance, f.err
}

func (f *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	f.calls++
	return big.NewInt(20_000_000_000), f.err
}

func (f *fakeBackend) NonceAt(context.Context, common.Address, *big.Int) (uint64, error) {
	f.calls++
	return 7, f.err
}

func (f *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.calls++
	if f.err == nil {
		f.sent = append(f.sent, tx)
	}
	return f.err
}

func (f *fakeBackend) ChainID(context.Context) (*big.Int, error) {
	f.calls++
	return big.NewInt(11155111), f.err
}

func (f *fakeBackend) BlockNumber(context.Context) (uint64, error) {
	f.calls++
	return 123, f.err
}

func (f *fakeBackend) Close() { f.closed = true }

func newTestClient(t *testing.T, backends map[string]*fakeBackend) (*EthClient, *rpcpool.Pool, *int) {
	urls := make([]string, 0, len(backends))
	for _, u := range []string{"http://a", "http://b", "http://c"} {
		if _, ok := backends[u]; ok {
			urls = append(urls, u)
		}
	}
	pool, err := rpcpool.New(urls)
	require.NoError(t, err)

	dials := 0
	client := NewEthClientWithDialer(pool, time.Second, func(_ context.Context, url string) (Backend, error) {
		dials++
		b, ok := backends[url]
		if !ok {
			return nil, errors.New("unknown endpoint")
		}
		return b, nil
	})
	return client, pool, &dials
}

func TestEthClient_UsesActiveEndpoint(t *testing.T) {
	a := &fakeBackend{url: "http://a", balance: big.NewInt(1)}
	b := &fakeBackend{url: "http://b", balance: big.NewInt(2)}
	client, pool, dials := newTestClient(t, map[string]*fakeBackend{"http://a": a, "http://b": b})

	ctx := context.Background()
	bal, err := client.Balance(ctx, common.Address{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), bal.Int64())

	_, err = client.Balance(ctx, common.Address{})
	require.NoError(t, err)
	assert.Equal(t, 1, *dials, "connection is cached per endpoint")

	pool.Advance()
	bal, err = client.Balance(ctx, common.Address{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), bal.Int64())
	assert.Equal(t, 2, *dials)
}

func TestEthClient_ErrorsAreWrapped(t *testing.T) {
	a := &fakeBackend{url: "http://a", err: errors.New("connection refused")}
	client, pool, _ := newTestClient(t, map[string]*fakeBackend{"http://a": a})

	_, err := client.GasPrice(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get gas price via http://a")
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, 0, pool.Index(), "the client never fails over on its own")
}

func TestEthClient_MarksAliveOnSuccess(t *testing.T) {
	a := &fakeBackend{url: "http://a", balance: big.NewInt(1)}
	b := &fakeBackend{url: "http://b", balance: big.NewInt(2)}
	client, pool, _ := newTestClient(t, map[string]*fakeBackend{"http://a": a, "http://b": b})

	pool.Advance()
	pool.Advance()
	require.False(t, pool.Endpoints()[0].Alive)

	_, err := client.Balance(context.Background(), common.Address{})
	require.NoError(t, err)
	assert.True(t, pool.Endpoints()[0].Alive)
}

func TestEthClient_Probe(t *testing.T) {
	a := &fakeBackend{url: "http://a"}
	b := &fakeBackend{url: "http://b", err: errors.New("timeout")}
	client, _, _ := newTestClient(t, map[string]*fakeBackend{"http://a": a, "http://b": b})

	results := client.Probe(context.Background())
	require.Len(t, results, 2)
	assert.NoError(t, results[0].Err)
	assert.Equal(t, int64(11155111), results[0].ChainID.Int64())
	assert.Equal(t, uint64(123), results[0].BlockNumber)
	assert.Error(t, results[1].Err)
}

func TestEthClient_Close(t *testing.T) {
	a := &fakeBackend{url: "http://a", balance: big.NewInt(1)}
	client, _, _ := newTestClient(t, map[string]*fakeBackend{"http://a": a})

	_, err := client.Nonce(context.Background(), common.Address{})
	require.NoError(t, err)

	client.Close()
	assert.True(t, a.closed)
}
