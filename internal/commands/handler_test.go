package commands

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/sweepguard/internal/domain"
	"github.com/vadiminshakov/sweepguard/internal/rpcpool"
	"github.com/vadiminshakov/sweepguard/internal/services/sweeper"
)

var started = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type mockSource struct {
	snapshot   sweeper.Snapshot
	history    []domain.SweepRecord
	balance    *big.Int
	balanceErr error
}

func (m *mockSource) Snapshot() sweeper.Snapshot    { return m.snapshot }
func (m *mockSource) History() []domain.SweepRecord { return m.history }
func (m *mockSource) LiveBalance(context.Context) (*big.Int, error) {
	return m.balance, m.balanceErr
}

type mockReplier struct {
	mu      sync.Mutex
	replies []string
}

func (m *mockReplier) Send(_ context.Context, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies = append(m.replies, text)
	return nil
}

func (m *mockReplier) all() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.replies...)
}

func newSource() *mockSource {
	return &mockSource{
		snapshot: sweeper.Snapshot{
			Monitored: common.HexToAddress("0x01"),
			Safe:      common.HexToAddress("0x02"),
			Balance: domain.BalanceState{
				Balance:     big.NewInt(300000000000000),
				Sufficiency: domain.SufficiencyInsufficient,
				ObservedAt:  started.Add(time.Minute),
			},
			StartedAt:      started,
			LastTick:       started.Add(time.Minute),
			Sweeps:         1,
			ActiveEndpoint: rpcpool.Endpoint{URL: "https://mainnet.infura.io/v3/secret", Alive: true},
			EndpointIndex:  1,
			EndpointCount:  3,
			PollInterval:   10 * time.Second,
			MinAmount:      big.NewInt(1000000000000000),
			ChainID:        big.NewInt(1),
		},
		history: []domain.SweepRecord{{
			Amount: big.NewInt(580000000000000), TxHash: "0xabc", Timestamp: started,
		}},
		balance: big.NewInt(2000000000000000000),
	}
}

func TestCheckReportLiveBalance(t *testing.T) {
	h := NewHandler(newSource(), &mockReplier{}, "https://etherscan.io/tx/", nil)

	report := h.CheckReport(context.Background())
	assert.Contains(t, report, "Balance: 2 ETH")
	assert.Contains(t, report, "Sweeps</b> (1, total 0.00058 ETH)")
	assert.Contains(t, report, "<code>0xabc</code>")
	assert.Contains(t, report, "https://etherscan.io/tx/0xabc")
}

func TestCheckReportFallsBackToObservedBalance(t *testing.T) {
	src := newSource()
	src.balanceErr = errors.New("timeout")
	src.history = nil
	h := NewHandler(src, &mockReplier{}, "", nil)

	report := h.CheckReport(context.Background())
	assert.Contains(t, report, "Balance: 0.0003 ETH (last observed")
	assert.Contains(t, report, "No sweeps yet")
}

func sweepHistory(n int) []domain.SweepRecord {
	history := make([]domain.SweepRecord, 0, n)
	for i := 0; i < n; i++ {
		history = append(history, domain.SweepRecord{
			Amount:    big.NewInt(580000000000000),
			TxHash:    fmt.Sprintf("0x%064x", i+1),
			Timestamp: started.Add(time.Duration(i) * time.Minute),
		})
	}
	return history
}

func TestCheckReportListsEverySweep(t *testing.T) {
	src := newSource()
	src.history = sweepHistory(15)
	h := NewHandler(src, &mockReplier{}, "", nil)

	report := h.CheckReport(context.Background())
	assert.Contains(t, report, "Sweeps</b> (15, total 0.0087 ETH)")
	for _, r := range src.history {
		assert.Contains(t, report, "<code>"+r.TxHash+"</code>")
	}
	assert.Contains(t, report, "15. 0.00058 ETH")
}

func TestHandleCheckSplitsLongHistory(t *testing.T) {
	src := newSource()
	src.history = sweepHistory(200)
	replier := &mockReplier{}
	h := NewHandler(src, replier, "", nil)

	require.NoError(t, h.Handle(context.Background(), domain.Command{Name: domain.CommandCheck}))

	replies := replier.all()
	require.Greater(t, len(replies), 1)
	joined := strings.Join(replies, "\n")
	for _, r := range src.history {
		assert.Contains(t, joined, "<code>"+r.TxHash+"</code>")
	}
	for _, reply := range replies {
		assert.LessOrEqual(t, utf8.RuneCountInString(reply), maxReplyRunes)
	}
	assert.Contains(t, replies[0], "Wallet check")
}

func TestSplitReply(t *testing.T) {
	assert.Equal(t, []string{"ab\ncd", "ef"}, splitReply("ab\ncd\nef", 5))
	assert.Equal(t, []string{"short"}, splitReply("short", 100))
	assert.Equal(t, []string{"a", "toolongline", "b"}, splitReply("a\ntoolongline\nb", 4))
	assert.Empty(t, splitReply("", 10))
}

func TestStatusReport(t *testing.T) {
	h := NewHandler(newSource(), &mockReplier{}, "", nil)
	h.now = func() time.Time { return started.Add(90 * time.Minute) }

	report := h.StatusReport()
	assert.Contains(t, report, "Uptime: 1h30m0s")
	assert.Contains(t, report, "Sweeps: 1")
	assert.Contains(t, report, "RPC endpoint: 2/3 https://mainnet.infura.io/...")
	assert.NotContains(t, report, "secret")
	assert.Contains(t, report, "Balance state: insufficient")
}

func TestRunAnswersCommands(t *testing.T) {
	replier := &mockReplier{}
	h := NewHandler(newSource(), replier, "", nil)

	commands := make(chan domain.Command, 2)
	commands <- domain.Command{Name: domain.CommandStatus}
	commands <- domain.Command{Name: domain.CommandCheck}
	close(commands)

	require.NoError(t, h.Run(context.Background(), commands))

	replies := replier.all()
	require.Len(t, replies, 2)
	assert.Contains(t, replies[0], "Sweeper status")
	assert.Contains(t, replies[1], "Wallet check")
}

func TestHandleUnknownCommand(t *testing.T) {
	replier := &mockReplier{}
	h := NewHandler(newSource(), replier, "", nil)

	assert.Error(t, h.Handle(context.Background(), domain.Command{Name: "drain"}))
	assert.Empty(t, replier.all())
}
