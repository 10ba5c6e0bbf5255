package rpcpool

import (
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/sweepguard/internal/domain"
)

func TestNew_Empty(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConfiguration))

	_, err = New([]string{" ", ""})
	require.Error(t, err)
}

func TestNew_DropsDuplicates(t *testing.T) {
	p, err := New([]string{"http://a", "http://b", "http://a", " http://c "})
	require.NoError(t, err)

	assert.Equal(t, 3, p.Size())
	assert.Equal(t, "http://c", p.Endpoints()[2].URL)
}

func TestPool_AdvanceWraps(t *testing.T) {
	p, err := New([]string{"http://a", "http://b", "http://c"})
	require.NoError(t, err)

	assert.Equal(t, 0, p.Index())
	assert.Equal(t, "http://a", p.Current().URL)

	assert.Equal(t, "http://b", p.Advance().URL)
	assert.Equal(t, 1, p.Index())
	assert.Equal(t, "http://c", p.Advance().URL)
	assert.Equal(t, 2, p.Index())
	assert.Equal(t, "http://a", p.Advance().URL)
	assert.Equal(t, 0, p.Index())
}

func TestPool_SingleEndpoint(t *testing.T) {
	p, err := New([]string{"http://only"})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		assert.Equal(t, "http://only", p.Advance().URL)
		assert.Equal(t, 0, p.Index())
	}
}

func TestPool_Liveness(t *testing.T) {
	p, err := New([]string{"http://a", "http://b"})
	require.NoError(t, err)

	p.Advance()
	eps := p.Endpoints()
	assert.False(t, eps[0].Alive)
	assert.True(t, eps[1].Alive)

	p.MarkAlive("http://a")
	assert.True(t, p.Endpoints()[0].Alive)
}

func TestPool_ConcurrentAdvance(t *testing.T) {
	p, err := New([]string{"http://a", "http://b", "http://c"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Advance()
			_ = p.Current()
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, p.Index(), "30 advances over 3 endpoints land on the start")
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "https://mainnet.infura.io/...", RedactURL("https://mainnet.infura.io/v3/secretkey"))
	assert.Equal(t, "https://rpc.ankr.com/...", RedactURL("https://rpc.ankr.com/eth?key=1"))
	assert.Equal(t, "http://localhost:8545", RedactURL("http://localhost:8545"))
}
