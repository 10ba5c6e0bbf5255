package notify

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/vadiminshakov/sweepguard/internal/domain"
)

const timeLayout = "2006-01-02 15:04:05 MST"

// Escape makes arbitrary text safe for an HTML-mode message.
func Escape(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeHTML, s)
}

// FormatTime renders a timestamp the way every message shows it.
func FormatTime(t time.Time) string {
	return t.Format(timeLayout)
}

// StartupInfo is the public part of the configuration announced at startup.
type StartupInfo struct {
	Monitored    common.Address
	Safe         common.Address
	PollInterval time.Duration
	MinAmount    *big.Int
	SafetyMargin *big.Int
	Endpoints    int
	ChainID      *big.Int
	Balance      *big.Int
	At           time.Time
}

func StartupMessage(info StartupInfo) string {
	var b strings.Builder
	b.WriteString("🚀 <b>Wallet sweeper started</b>\n\n")
	b.WriteString("📊 <b>Monitoring</b>\n")
	fmt.Fprintf(&b, "• Monitored: <code>%s</code>\n", info.Monitored.Hex())
	fmt.Fprintf(&b, "• Safe: <code>%s</code>\n", info.Safe.Hex())
	fmt.Fprintf(&b, "• Balance: %s ETH\n", domain.FormatEther(info.Balance))
	fmt.Fprintf(&b, "• Check interval: %s\n", info.PollInterval)
	fmt.Fprintf(&b, "• Minimum amount: %s ETH\n", domain.FormatEther(info.MinAmount))
	fmt.Fprintf(&b, "• Safety margin: %s ETH\n\n", domain.FormatEther(info.SafetyMargin))
	b.WriteString("🔧 <b>Network</b>\n")
	if info.ChainID != nil {
		fmt.Fprintf(&b, "• Chain id: %s\n", info.ChainID)
	}
	fmt.Fprintf(&b, "• RPC endpoints: %d\n\n", info.Endpoints)
	fmt.Fprintf(&b, "⏰ %s", FormatTime(info.At))
	return b.String()
}

func ShutdownMessage(reason string, at time.Time) string {
	return fmt.Sprintf("🚨 <b>Wallet sweeper stopped</b>\n\n📋 <b>Reason</b>\n%s\n\n⏰ %s\n\n"+
		"⚠️ The wallet is no longer protected until the sweeper is restarted.",
		Escape(reason), FormatTime(at))
}

// TransferMessage announces a broadcast sweep with a link to the block explorer.
func TransferMessage(record domain.SweepRecord, explorerTxURL string) string {
	var b strings.Builder
	b.WriteString("✅ <b>Funds swept</b>\n\n")
	fmt.Fprintf(&b, "• Amount: %s ETH\n", domain.FormatEther(record.Amount))
	fmt.Fprintf(&b, "• Gas cost: %s ETH (%s gwei)\n", domain.FormatEther(record.GasCost), domain.FormatGwei(record.GasPrice))
	fmt.Fprintf(&b, "• Nonce: %d\n", record.Nonce)
	fmt.Fprintf(&b, "• Tx: <code>%s</code>\n\n", record.TxHash)
	fmt.Fprintf(&b, "⏰ %s", FormatTime(record.Timestamp))
	if explorerTxURL != "" {
		fmt.Fprintf(&b, "\n\n🔗 %s%s", explorerTxURL, record.TxHash)
	}
	return b.String()
}

func TransferFailedMessage(amount *big.Int, cause error, at time.Time) string {
	return fmt.Sprintf("❌ <b>Sweep failed</b>\n\n• Amount: %s ETH\n• Error: <code>%s</code>\n\n⏰ %s\n\n"+
		"🔄 Switched RPC endpoint, the next check retries.",
		domain.FormatEther(amount), Escape(cause.Error()), FormatTime(at))
}

// BalanceAlertMessage reports a change of the sufficiency flag.
func BalanceAlertMessage(balance, minRequired *big.Int, sufficient bool, at time.Time) string {
	status := "⏳ Balance below the sweep threshold, still watching"
	if sufficient {
		status = "✅ Balance covers gas, sweeping"
	}
	return fmt.Sprintf("💡 <b>Balance update</b>\n\n• Balance: %s ETH\n• Sweep threshold: %s ETH\n\n%s\n\n⏰ %s",
		domain.FormatEther(balance), domain.FormatEther(minRequired), status, FormatTime(at))
}

func ErrorMessage(text string, at time.Time) string {
	return fmt.Sprintf("❌ <b>Error</b>\n%s\n\n⏰ %s", Escape(text), FormatTime(at))
}
