// Package commands answers operator queries received by the notifier.
package commands

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/vadiminshakov/sweepguard/internal/domain"
	"github.com/vadiminshakov/sweepguard/internal/notify"
	"github.com/vadiminshakov/sweepguard/internal/services/sweeper"
)

const (
	defaultBalanceTimeout = 5 * time.Second
	// Telegram rejects messages above 4096 characters; emoji count double there.
	maxReplyRunes = 3500
)

// Source is the read-only view of the sweeper.
type Source interface {
	Snapshot() sweeper.Snapshot
	History() []domain.SweepRecord
	LiveBalance(ctx context.Context) (*big.Int, error)
}

// Replier sends a report back to the operator.
type Replier interface {
	Send(ctx context.Context, text string) error
}

// Handler turns commands into reports. It never starts a sweep.
type Handler struct {
	source         Source
	replier        Replier
	logger         *zap.Logger
	balanceTimeout time.Duration
	explorerTxURL  string
	now            func() time.Time
}

func NewHandler(source Source, replier Replier, explorerTxURL string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		source:         source,
		replier:        replier,
		logger:         logger,
		balanceTimeout: defaultBalanceTimeout,
		explorerTxURL:  explorerTxURL,
		now:            time.Now,
	}
}

// Run answers commands until ctx is cancelled or the channel is closed.
func (h *Handler) Run(ctx context.Context, commands <-chan domain.Command) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd, ok := <-commands:
			if !ok {
				return nil
			}
			if err := h.Handle(ctx, cmd); err != nil {
				h.logger.Error("Failed to answer command", zap.String("command", string(cmd.Name)), zap.Error(err))
			}
		}
	}
}

func (h *Handler) Handle(ctx context.Context, cmd domain.Command) error {
	h.logger.Info("Command received", zap.String("command", string(cmd.Name)), zap.Int64("chat_id", cmd.ChatID))

	var text string
	switch cmd.Name {
	case domain.CommandCheck:
		text = h.CheckReport(ctx)
	case domain.CommandStatus:
		text = h.StatusReport()
	default:
		return fmt.Errorf("unknown command %q", cmd.Name)
	}
	for _, part := range splitReply(text, maxReplyRunes) {
		if err := h.replier.Send(ctx, part); err != nil {
			return err
		}
	}
	return nil
}

// splitReply cuts text at line boundaries into parts of at most limit runes.
// A single longer line becomes its own part.
func splitReply(text string, limit int) []string {
	var (
		parts []string
		cur   strings.Builder
		size  int
	)
	for _, line := range strings.Split(text, "\n") {
		n := utf8.RuneCountInString(line)
		if size > 0 && size+1+n > limit {
			parts = append(parts, strings.TrimRight(cur.String(), "\n"))
			cur.Reset()
			size = 0
		}
		if size > 0 {
			cur.WriteByte('\n')
			size++
		}
		cur.WriteString(line)
		size += n
	}
	if s := strings.TrimSpace(cur.String()); s != "" {
		parts = append(parts, strings.TrimRight(cur.String(), "\n"))
	}
	return parts
}

// CheckReport shows the live balance, falling back to the last observed one, and every recorded sweep.
func (h *Handler) CheckReport(ctx context.Context) string {
	snap := h.source.Snapshot()

	ctx, cancel := context.WithTimeout(ctx, h.balanceTimeout)
	defer cancel()

	var b strings.Builder
	b.WriteString("📊 <b>Wallet check</b>\n\n")
	fmt.Fprintf(&b, "• Monitored: <code>%s</code>\n", snap.Monitored.Hex())

	balance, err := h.source.LiveBalance(ctx)
	if err != nil {
		h.logger.Warn("Live balance unavailable, reporting last observed", zap.Error(err))
		fmt.Fprintf(&b, "• Balance: %s ETH (last observed %s, RPC unavailable)\n",
			domain.FormatEther(snap.Balance.Balance), observedAt(snap.Balance.ObservedAt))
	} else {
		fmt.Fprintf(&b, "• Balance: %s ETH\n", domain.FormatEther(balance))
	}
	fmt.Fprintf(&b, "• Minimum amount: %s ETH\n", domain.FormatEther(snap.MinAmount))

	history := h.source.History()
	if len(history) == 0 {
		b.WriteString("\n📜 No sweeps yet")
		return b.String()
	}

	total := new(big.Int)
	for _, r := range history {
		total.Add(total, r.Amount)
	}
	fmt.Fprintf(&b, "\n📜 <b>Sweeps</b> (%d, total %s ETH)\n", len(history), domain.FormatEther(total))

	for i, r := range history {
		fmt.Fprintf(&b, "%d. %s ETH, %s\n   <code>%s</code>\n",
			i+1, domain.FormatEther(r.Amount), notify.FormatTime(r.Timestamp), r.TxHash)
	}
	if h.explorerTxURL != "" {
		last := history[len(history)-1]
		fmt.Fprintf(&b, "\n🔗 %s%s", h.explorerTxURL, last.TxHash)
	}
	return strings.TrimRight(b.String(), "\n")
}

// StatusReport shows addresses, uptime and the endpoint in use.
func (h *Handler) StatusReport() string {
	snap := h.source.Snapshot()
	now := h.now()

	var b strings.Builder
	b.WriteString("🏥 <b>Sweeper status</b>\n\n")
	fmt.Fprintf(&b, "• Monitored: <code>%s</code>\n", snap.Monitored.Hex())
	fmt.Fprintf(&b, "• Safe: <code>%s</code>\n", snap.Safe.Hex())
	if snap.StartedAt.IsZero() {
		b.WriteString("• Started: not yet\n")
	} else {
		fmt.Fprintf(&b, "• Started: %s\n", notify.FormatTime(snap.StartedAt))
		fmt.Fprintf(&b, "• Uptime: %s\n", now.Sub(snap.StartedAt).Truncate(time.Second))
	}
	fmt.Fprintf(&b, "• Last check: %s\n", observedAt(snap.LastTick))
	fmt.Fprintf(&b, "• Check interval: %s\n", snap.PollInterval)
	fmt.Fprintf(&b, "• Balance state: %s\n", snap.Balance.Sufficiency)
	fmt.Fprintf(&b, "• Sweeps: %d\n", snap.Sweeps)
	fmt.Fprintf(&b, "• RPC endpoint: %d/%d %s\n", snap.EndpointIndex+1, snap.EndpointCount, notify.Escape(snap.ActiveEndpoint.Redacted()))
	if snap.ChainID != nil {
		fmt.Fprintf(&b, "• Chain id: %s\n", snap.ChainID)
	}
	if snap.Processing {
		b.WriteString("• Sweep in progress\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func observedAt(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return notify.FormatTime(t)
}
