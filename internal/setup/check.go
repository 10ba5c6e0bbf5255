package setup

import (
	"context"
	"fmt"
	"io"
	"math/big"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/vadiminshakov/sweepguard/config"
	"github.com/vadiminshakov/sweepguard/internal/clients"
	"github.com/vadiminshakov/sweepguard/internal/domain"
	"github.com/vadiminshakov/sweepguard/internal/rpcpool"
)

var (
	okStyle    = lipgloss.NewStyle().Foreground(special).Bold(true)
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	dimStyle   = lipgloss.NewStyle().Faint(true)
	labelStyle = lipgloss.NewStyle().Width(18)
	keyStyle   = lipgloss.NewStyle().Width(32)
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(0, 1)
)

const mainnetChainID = 1

// Prober is the part of the chain client used by diagnostics.
type Prober interface {
	Probe(ctx context.Context) []clients.ProbeResult
	Balance(ctx context.Context, account common.Address) (*big.Int, error)
	GasPrice(ctx context.Context) (*big.Int, error)
}

// RunCheck prints a configuration and connectivity report. It fails when no endpoint answers.
func RunCheck(ctx context.Context, w io.Writer, cfg config.Config, chain Prober) error {
	fmt.Fprintln(w, headerStyle.Render("SWEEPGUARD CHECK"))

	fmt.Fprintln(w, stepStyle.Render("ENVIRONMENT"))
	envRows := make([][2]string, 0, len(cfg.Env()))
	for _, v := range cfg.Env() {
		status := dimStyle.Render("unset")
		if v.Set {
			status = okStyle.Render("set") + " " + envDisplay(v)
		}
		envRows = append(envRows, [2]string{v.Key, status})
	}
	fmt.Fprintln(w, boxStyle.Render(envTable(envRows)))

	fmt.Fprintln(w, stepStyle.Render("CONFIGURATION"))
	rows := [][2]string{
		{"Monitored", cfg.MonitoredAddress.Hex()},
		{"Safe", cfg.SafeAddress.Hex()},
		{"Private key", "set, matches monitored address"},
		{"Check interval", cfg.PollInterval.String()},
		{"Gas limit", fmt.Sprintf("%d", cfg.GasLimit)},
		{"Fallback gas", domain.FormatGwei(cfg.FallbackGasPrice) + " gwei"},
		{"Safety margin", domain.FormatEther(cfg.SafetyMargin) + " ETH"},
		{"Minimum amount", domain.FormatEther(cfg.MinAmount) + " ETH"},
		{"Telegram", enabled(cfg.TelegramEnabled())},
		{"Metrics", valueOrOff(cfg.MetricsAddr)},
		{"Sweep journal", valueOrOff(cfg.JournalDir)},
	}
	fmt.Fprintln(w, boxStyle.Render(table(rows)))
	for _, warning := range cfg.Warnings {
		fmt.Fprintln(w, warnStyle.Render("! "+warning))
	}

	fmt.Fprintln(w, stepStyle.Render("RPC ENDPOINTS"))
	reachable := 0
	var chainIDs []*big.Int
	for i, res := range chain.Probe(ctx) {
		name := fmt.Sprintf("#%d %s", i+1, rpcpool.RedactURL(res.URL))
		if res.Err != nil {
			msg := strings.ReplaceAll(res.Err.Error(), res.URL, rpcpool.RedactURL(res.URL))
			fmt.Fprintln(w, errStyle.Render("✗ "+name)+" "+msg)
			continue
		}
		reachable++
		chainIDs = append(chainIDs, res.ChainID)
		fmt.Fprintln(w, okStyle.Render("✓ "+name)+fmt.Sprintf(" chain %s, block %d", res.ChainID, res.BlockNumber))
	}
	if reachable == 0 {
		return errors.New("no RPC endpoint is reachable")
	}
	for _, id := range chainIDs[1:] {
		if id.Cmp(chainIDs[0]) != 0 {
			fmt.Fprintln(w, warnStyle.Render("! endpoints report different chain ids"))
			break
		}
	}
	if chainIDs[0].Cmp(big.NewInt(mainnetChainID)) == 0 {
		fmt.Fprintln(w, warnStyle.Render("! Ethereum mainnet: sweeps move real funds"))
	}

	fmt.Fprintln(w, stepStyle.Render("BALANCE"))
	balance, err := chain.Balance(ctx, cfg.MonitoredAddress)
	if err != nil {
		return errors.Wrap(err, "fetch balance")
	}
	gasPrice, err := chain.GasPrice(ctx)
	if err != nil {
		fmt.Fprintln(w, warnStyle.Render("! gas price unavailable, using fallback"))
		gasPrice = cfg.FallbackGasPrice
	}
	plan, err := domain.PlanSweep(balance, gasPrice, cfg.GasLimit, cfg.SafetyMargin)
	if err != nil {
		return errors.Wrap(err, "size sweep")
	}

	rows = [][2]string{
		{"Balance", domain.FormatEther(balance) + " ETH"},
		{"Gas price", domain.FormatGwei(gasPrice) + " gwei"},
		{"Sweep threshold", domain.FormatEther(plan.MinRequired) + " ETH"},
	}
	if plan.Sufficient && plan.Transferable() {
		rows = append(rows, [2]string{"Would sweep", domain.FormatEther(plan.Amount) + " ETH"})
	} else {
		rows = append(rows, [2]string{"Would sweep", "nothing"})
	}
	fmt.Fprintln(w, boxStyle.Render(table(rows)))
	fmt.Fprintln(w, okStyle.Render("✓ configuration looks good"))
	return nil
}

func table(rows [][2]string) string {
	lines := make([]string, 0, len(rows))
	for _, r := range rows {
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(r[0]), r[1]))
	}
	return strings.Join(lines, "\n")
}

func envTable(rows [][2]string) string {
	lines := make([]string, 0, len(rows))
	for _, r := range rows {
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top, keyStyle.Render(r[0]), r[1]))
	}
	return strings.Join(lines, "\n")
}

// envDisplay hides provider keys in endpoint URLs; secrets arrive masked already.
func envDisplay(v config.EnvVar) string {
	switch v.Key {
	case config.EnvRPCURL, config.EnvRPCURL1, config.EnvRPCURL2, config.EnvRPCURLs:
		parts := strings.Split(v.Value, ",")
		for i, p := range parts {
			parts[i] = rpcpool.RedactURL(strings.TrimSpace(p))
		}
		return strings.Join(parts, ",")
	}
	return v.Value
}

func enabled(b bool) string {
	if b {
		return "enabled"
	}
	return "disabled"
}

func valueOrOff(v string) string {
	if v == "" {
		return "off"
	}
	return v
}
