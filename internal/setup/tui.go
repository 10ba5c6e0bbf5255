package setup

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/sweepguard/config"
	"github.com/vadiminshakov/sweepguard/internal/domain"
	"github.com/vadiminshakov/sweepguard/internal/notify"
)

const (
	DefaultEnvFile  = ".env"
	DefaultYamlFile = "sweepguard.yaml"
	wizardTitle     = "SWEEPGUARD CONFIG WIZARD"
)

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(1, 2).
			Bold(true).
			MarginBottom(1)

	stepStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true).
			MarginTop(1).
			MarginBottom(0)
)

// Answers holds the wizard input as typed.
type Answers struct {
	RPCURLs         string
	Monitored       string
	Safe            string
	PrivateKey      string
	CheckIntervalMs string
	GasLimit        string
	GasPriceGwei    string
	SafetyMarginEth string
	MinEthAmount    string
	TelegramToken   string
	TelegramChatID  string
	ExplorerTxURL   string
}

func defaultAnswers() Answers {
	return Answers{
		CheckIntervalMs: "10000",
		GasLimit:        "21000",
		GasPriceGwei:    "20",
		SafetyMarginEth: "0.0001",
		MinEthAmount:    "0.001",
		ExplorerTxURL:   "https://etherscan.io/tx/",
	}
}

func (a Answers) urls() []string {
	var out []string
	for _, u := range strings.Split(a.RPCURLs, ",") {
		if u = strings.TrimSpace(u); u != "" {
			out = append(out, u)
		}
	}
	return out
}

// values renders the answers as environment variables.
func (a Answers) values() map[string]string {
	v := map[string]string{
		config.EnvMonitoredAddr:   a.Monitored,
		config.EnvSafeAddr:        a.Safe,
		config.EnvPrivateKey:      a.PrivateKey,
		config.EnvCheckInterval:   a.CheckIntervalMs,
		config.EnvGasLimit:        a.GasLimit,
		config.EnvGasPriceGwei:    a.GasPriceGwei,
		config.EnvSafetyMarginEth: a.SafetyMarginEth,
		config.EnvMinEthAmount:    a.MinEthAmount,
		config.EnvTelegramToken:   a.TelegramToken,
		config.EnvTelegramChatID:  a.TelegramChatID,
		config.EnvExplorerTxURL:   a.ExplorerTxURL,
	}
	if urls := a.urls(); len(urls) > 0 {
		v[config.EnvRPCURL] = urls[0]
		v[config.EnvRPCURLs] = strings.Join(urls[1:], ",")
	}
	return v
}

// Validate checks the answers the same way startup does.
func (a Answers) Validate() (config.Config, error) {
	return config.FromValues(a.values())
}

// Save writes secrets to envPath and everything else to yamlPath.
func (a Answers) Save(envPath, yamlPath string) error {
	if _, err := a.Validate(); err != nil {
		return err
	}

	secrets := map[string]string{config.EnvPrivateKey: strings.TrimSpace(a.PrivateKey)}
	if a.TelegramToken != "" {
		secrets[config.EnvTelegramToken] = strings.TrimSpace(a.TelegramToken)
	}
	if err := godotenv.Write(secrets, envPath); err != nil {
		return errors.Wrap(err, "write env file")
	}
	if err := os.Chmod(envPath, 0o600); err != nil {
		return errors.Wrap(err, "restrict env file permissions")
	}

	intervalMs, _ := strconv.Atoi(a.CheckIntervalMs)
	gasLimit, _ := strconv.ParseUint(a.GasLimit, 10, 64)
	return config.WriteYaml(yamlPath, config.ConfigTmp{
		RPCURLs:          a.urls(),
		MonitoredAddress: strings.TrimSpace(a.Monitored),
		SafeAddress:      strings.TrimSpace(a.Safe),
		CheckInterval:    time.Duration(intervalMs) * time.Millisecond,
		GasLimit:         gasLimit,
		GasPriceGwei:     a.GasPriceGwei,
		SafetyMarginEth:  a.SafetyMarginEth,
		MinEthAmount:     a.MinEthAmount,
		TelegramChatID:   a.TelegramChatID,
		ExplorerTxURL:    a.ExplorerTxURL,
	})
}

// RunTUI launches the terminal configuration wizard and returns the options to start with.
func RunTUI(ctx context.Context, logger *zap.Logger) (config.Options, error) {
	a := defaultAnswers()
	var sendTest, confirm bool

	clearScreen()
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("Protect a compromised wallet by sweeping every deposit to a safe address.\n"))

	// endpoints
	fmt.Println(stepStyle.Render("STEP 1: RPC ENDPOINTS"))
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("RPC URLs").
				Description("Comma separated, first is primary (e.g. https://mainnet.infura.io/v3/KEY)").
				Value(&a.RPCURLs).
				Validate(validateURLs),
		),
	).Run()
	if err != nil {
		return config.Options{}, err
	}

	// wallets
	clearScreen()
	fmt.Println(stepStyle.Render("STEP 2: WALLETS"))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Compromised wallet address").
				Value(&a.Monitored).
				Validate(validateAddress),
			huh.NewInput().
				Title("Safe wallet address").
				Description("Every sweep goes here").
				Value(&a.Safe).
				Validate(validateAddress),
			huh.NewInput().
				Title("Compromised wallet private key").
				Description("Stored only in the .env file").
				Value(&a.PrivateKey).
				EchoMode(huh.EchoModePassword).
				Validate(func(s string) error { return validateKeyFor(s, a.Monitored) }),
		),
	).Run()
	if err != nil {
		return config.Options{}, err
	}

	// timing and gas
	clearScreen()
	fmt.Println(stepStyle.Render("STEP 3: TIMING AND GAS"))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Check interval (ms)").
				Value(&a.CheckIntervalMs).
				Validate(validatePositiveInt),
			huh.NewInput().
				Title("Gas limit").
				Value(&a.GasLimit).
				Validate(validatePositiveInt),
			huh.NewInput().
				Title("Fallback gas price (gwei)").
				Description("Used when the node cannot suggest one").
				Value(&a.GasPriceGwei).
				Validate(validateAmount(domain.ParseGwei)),
			huh.NewInput().
				Title("Safety margin (ETH)").
				Description("Kept on top of the gas cost before sweeping").
				Value(&a.SafetyMarginEth).
				Validate(validateAmount(domain.ParseEther)),
			huh.NewInput().
				Title("Minimum amount (ETH)").
				Value(&a.MinEthAmount).
				Validate(validateAmount(domain.ParseEther)),
		),
	).Run()
	if err != nil {
		return config.Options{}, err
	}

	// telegram
	clearScreen()
	fmt.Println(stepStyle.Render("STEP 4: TELEGRAM (optional)"))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Bot token").
				Description("From @BotFather, leave empty to log notifications only").
				Value(&a.TelegramToken).
				EchoMode(huh.EchoModePassword),
			huh.NewInput().
				Title("Chat id").
				Description("Only this chat may send /check and /status").
				Value(&a.TelegramChatID).
				Validate(validateChatID),
			huh.NewConfirm().
				Title("Send a test message?").
				Value(&sendTest),
		),
	).Run()
	if err != nil {
		return config.Options{}, err
	}

	cfg, err := a.Validate()
	if err != nil {
		return config.Options{}, err
	}

	if sendTest && cfg.TelegramEnabled() {
		if err := sendTestMessage(ctx, cfg, logger); err != nil {
			fmt.Println(errStyle.Render("✗ Telegram test failed: " + err.Error()))
		} else {
			fmt.Println(okStyle.Render("✓ Telegram test message sent"))
		}
	}

	// confirmation
	fmt.Println(stepStyle.Render("FINAL CONFIRMATION"))
	summary := fmt.Sprintf(
		"Endpoints: %d\nMonitored: %s\nSafe: %s\nInterval: %s\nTelegram: %s\n",
		len(cfg.RPCURLs), cfg.MonitoredAddress.Hex(), cfg.SafeAddress.Hex(), cfg.PollInterval, enabled(cfg.TelegramEnabled()),
	)
	fmt.Println(lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(1).Render(summary))

	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save configuration?").
				Affirmative("Yes, save and start").
				Negative("No, exit").
				Value(&confirm),
		),
	).Run()
	if err != nil {
		return config.Options{}, err
	}
	if !confirm {
		return config.Options{}, errors.New("setup cancelled by user")
	}

	if err := a.Save(DefaultEnvFile, DefaultYamlFile); err != nil {
		return config.Options{}, err
	}

	fmt.Println(okStyle.Render(fmt.Sprintf("\n✓ Secrets saved to %s, settings saved to %s\nStarting sweeper...", DefaultEnvFile, DefaultYamlFile)))
	return config.Options{ConfigPath: DefaultYamlFile, EnvFile: DefaultEnvFile}, nil
}

func clearScreen() {
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render(wizardTitle))
}

func sendTestMessage(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	tg, err := notify.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID, logger, nil)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	return tg.SendNow(ctx, "🧪 <b>Test message</b>\nsweepguard can reach this chat.\n\n⏰ "+notify.FormatTime(time.Now()))
}

func validateURLs(s string) error {
	urls := Answers{RPCURLs: s}.urls()
	if len(urls) == 0 {
		return errors.New("at least one RPC URL is required")
	}
	for _, u := range urls {
		if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") &&
			!strings.HasPrefix(u, "ws://") && !strings.HasPrefix(u, "wss://") {
			return errors.Errorf("unsupported URL %q, expected http(s) or ws(s)", u)
		}
	}
	return nil
}

func validateAddress(s string) error {
	if !common.IsHexAddress(strings.TrimSpace(s)) {
		return errors.New("must be a 0x-prefixed 20-byte hex address")
	}
	return nil
}

func validateKeyFor(key, address string) error {
	k, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(key), "0x"))
	if err != nil {
		return errors.New("must be 32 hex-encoded bytes")
	}
	if crypto.PubkeyToAddress(k.PublicKey) != common.HexToAddress(strings.TrimSpace(address)) {
		return errors.New("key does not belong to the compromised wallet address")
	}
	return nil
}

func validatePositiveInt(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return errors.New("must be a positive integer")
	}
	return nil
}

func validateAmount(parse func(string) (*big.Int, error)) func(string) error {
	return func(s string) error {
		_, err := parse(s)
		return err
	}
}

func validateChatID(s string) error {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	if _, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err != nil {
		return errors.New("must be a numeric chat id")
	}
	return nil
}
