package config

import (
	"crypto/ecdsa"
	"flag"
	"math/big"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"

	"github.com/vadiminshakov/sweepguard/internal/domain"
)

// Environment variable names.
const (
	EnvRPCURL          = "RPC_URL"
	EnvRPCURL1         = "RPC_URL_1"
	EnvRPCURL2         = "RPC_URL_2"
	EnvRPCURLs         = "RPC_URLS"
	EnvMonitoredAddr   = "COMPROMISED_WALLET_ADDRESS"
	EnvSafeAddr        = "SAFE_WALLET_ADDRESS"
	EnvPrivateKey      = "COMPROMISED_WALLET_PRIVATE_KEY"
	EnvCheckInterval   = "CHECK_INTERVAL"
	EnvGasLimit        = "GAS_LIMIT"
	EnvGasPriceGwei    = "GAS_PRICE_GWEI"
	EnvSafetyMarginEth = "SAFETY_MARGIN_ETH"
	EnvMinEthAmount    = "MIN_ETH_AMOUNT"
	EnvRPCTimeout      = "RPC_TIMEOUT"
	EnvTelegramToken   = "TELEGRAM_BOT_TOKEN"
	EnvTelegramChatID  = "TELEGRAM_CHAT_ID"
	EnvExplorerTxURL   = "EXPLORER_TX_URL"
	EnvLogLevel        = "LOG_LEVEL"
	EnvLogDir          = "LOG_DIR"
	EnvMetricsAddr     = "METRICS_ADDR"
	EnvJournalDir      = "SWEEP_JOURNAL_DIR"
	EnvHistoryLimit    = "HISTORY_LIMIT"
)

const (
	defaultEnvFile         = ".env"
	defaultCheckIntervalMs = 10000
	defaultGasLimit        = 21000
	defaultGasPriceGwei    = "20"
	defaultSafetyMarginEth = "0.0001"
	defaultMinEthAmount    = "0.001"
	defaultRPCTimeout      = 10 * time.Second
	defaultExplorerTxURL   = "https://etherscan.io/tx/"
	defaultLogLevel        = "info"
)

var requiredVars = []string{EnvRPCURL, EnvMonitoredAddr, EnvSafeAddr, EnvPrivateKey}

// Config is the validated, read-only process configuration.
type Config struct {
	RPCURLs          []string
	MonitoredAddress common.Address
	SafeAddress      common.Address
	PollInterval     time.Duration
	GasLimit         uint64
	// FallbackGasPrice is used when the node cannot suggest a gas price (wei).
	FallbackGasPrice *big.Int
	// SafetyMargin is kept on top of the gas cost before a sweep is attempted (wei).
	SafetyMargin *big.Int
	// MinAmount is the reported minimum-amount threshold (wei). It does not gate sweeps.
	MinAmount     *big.Int
	RPCTimeout    time.Duration
	ExplorerTxURL string

	TelegramToken  string
	TelegramChatID int64

	LogLevel     string
	LogDir       string
	MetricsAddr  string
	JournalDir   string
	HistoryLimit int

	// Warnings are non-fatal findings worth logging at startup.
	Warnings []string

	signingKey *ecdsa.PrivateKey
	env        []EnvVar
}

// EnvVar is one known variable as seen at load time. Secret values are masked.
type EnvVar struct {
	Key    string
	Set    bool
	Value  string
	Secret bool
}

const maskedValue = "********"

// SigningKey returns the credential of the monitored account.
func (c Config) SigningKey() *ecdsa.PrivateKey {
	return c.signingKey
}

// Env lists every known variable with its presence, secrets masked.
func (c Config) Env() []EnvVar {
	return append([]EnvVar(nil), c.env...)
}

// TelegramEnabled reports whether both the bot token and the chat id are configured.
func (c Config) TelegramEnabled() bool {
	return c.TelegramToken != "" && c.TelegramChatID != 0
}

// Options are the command line flags.
type Options struct {
	ConfigPath string
	EnvFile    string
	Check      bool
	Setup      bool
}

// ParseFlags parses command line arguments (without the program name).
func ParseFlags(args []string) (Options, error) {
	var opts Options
	fs := flag.NewFlagSet("sweepguard", flag.ContinueOnError)
	fs.StringVar(&opts.ConfigPath, "config", "", "path to optional yaml config (non-secret settings)")
	fs.StringVar(&opts.EnvFile, "env", defaultEnvFile, "path to .env file")
	fs.BoolVar(&opts.Check, "check", false, "validate configuration, probe RPC endpoints and exit")
	fs.BoolVar(&opts.Setup, "setup", false, "run the interactive configuration wizard")
	if err := fs.Parse(args); err != nil {
		return Options{}, err
	}
	return opts, nil
}

// Get parses os.Args and loads the configuration.
func Get() (Config, Options, error) {
	opts, err := ParseFlags(os.Args[1:])
	if err != nil {
		return Config{}, Options{}, domain.ConfigurationError("%v", err)
	}
	if opts.Setup {
		return Config{}, opts, nil
	}
	cfg, err := Load(opts)
	return cfg, opts, err
}

// Load merges, in increasing priority, the yaml file, the .env file and the process environment,
// then validates the result.
func Load(opts Options) (Config, error) {
	values := make(map[string]string)

	if opts.ConfigPath != "" {
		fileValues, err := readYaml(opts.ConfigPath)
		if err != nil {
			return Config{}, domain.ConfigurationError("read yaml config %s: %v", opts.ConfigPath, err)
		}
		merge(values, fileValues)
	}

	envFile := opts.EnvFile
	if envFile == "" {
		envFile = defaultEnvFile
	}
	dotenv, err := godotenv.Read(envFile)
	switch {
	case err == nil:
		merge(values, dotenv)
	case os.IsNotExist(err) && envFile == defaultEnvFile:
		// environment only
	default:
		return Config{}, domain.ConfigurationError("read env file %s: %v", envFile, err)
	}

	merge(values, environ())

	return FromValues(values)
}

// FromValues builds and validates a Config from environment-style key/value pairs.
func FromValues(values map[string]string) (Config, error) {
	get := func(key string) string {
		return strings.TrimSpace(values[key])
	}

	var missing []string
	for _, key := range requiredVars {
		if get(key) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return Config{}, domain.ConfigurationError("missing required environment variable(s): %s", strings.Join(missing, ", "))
	}

	cfg := Config{
		RPCURLs:       collectRPCURLs(get),
		ExplorerTxURL: valueOr(get(EnvExplorerTxURL), defaultExplorerTxURL),
		LogLevel:      valueOr(get(EnvLogLevel), defaultLogLevel),
		LogDir:        get(EnvLogDir),
		MetricsAddr:   get(EnvMetricsAddr),
		JournalDir:    get(EnvJournalDir),
		TelegramToken: get(EnvTelegramToken),
	}

	var err error
	if cfg.MonitoredAddress, err = parseAddress(EnvMonitoredAddr, get(EnvMonitoredAddr)); err != nil {
		return Config{}, err
	}
	if cfg.SafeAddress, err = parseAddress(EnvSafeAddr, get(EnvSafeAddr)); err != nil {
		return Config{}, err
	}
	if cfg.MonitoredAddress == cfg.SafeAddress {
		return Config{}, domain.ConfigurationError("%s and %s must differ", EnvMonitoredAddr, EnvSafeAddr)
	}

	if cfg.signingKey, err = parsePrivateKey(get(EnvPrivateKey)); err != nil {
		return Config{}, err
	}
	if derived := crypto.PubkeyToAddress(cfg.signingKey.PublicKey); derived != cfg.MonitoredAddress {
		return Config{}, domain.ConfigurationError("%s does not belong to %s", EnvPrivateKey, EnvMonitoredAddr)
	}

	intervalMs, err := parsePositiveInt(EnvCheckInterval, get(EnvCheckInterval), defaultCheckIntervalMs)
	if err != nil {
		return Config{}, err
	}
	cfg.PollInterval = time.Duration(intervalMs) * time.Millisecond

	gasLimit, err := parsePositiveInt(EnvGasLimit, get(EnvGasLimit), defaultGasLimit)
	if err != nil {
		return Config{}, err
	}
	cfg.GasLimit = uint64(gasLimit)

	if cfg.FallbackGasPrice, err = domain.ParseGwei(valueOr(get(EnvGasPriceGwei), defaultGasPriceGwei)); err != nil {
		return Config{}, domain.ConfigurationError("invalid %s: %v", EnvGasPriceGwei, err)
	}
	if cfg.FallbackGasPrice.Sign() == 0 {
		return Config{}, domain.ConfigurationError("%s must be positive", EnvGasPriceGwei)
	}
	if cfg.SafetyMargin, err = domain.ParseEther(valueOr(get(EnvSafetyMarginEth), defaultSafetyMarginEth)); err != nil {
		return Config{}, domain.ConfigurationError("invalid %s: %v", EnvSafetyMarginEth, err)
	}
	if cfg.MinAmount, err = domain.ParseEther(valueOr(get(EnvMinEthAmount), defaultMinEthAmount)); err != nil {
		return Config{}, domain.ConfigurationError("invalid %s: %v", EnvMinEthAmount, err)
	}

	cfg.RPCTimeout = defaultRPCTimeout
	if v := get(EnvRPCTimeout); v != "" {
		if cfg.RPCTimeout, err = time.ParseDuration(v); err != nil || cfg.RPCTimeout <= 0 {
			return Config{}, domain.ConfigurationError("invalid %s %q, expected a positive duration like 10s", EnvRPCTimeout, v)
		}
	}

	if v := get(EnvHistoryLimit); v != "" {
		if cfg.HistoryLimit, err = strconv.Atoi(v); err != nil || cfg.HistoryLimit < 0 {
			return Config{}, domain.ConfigurationError("invalid %s %q, expected a non-negative integer", EnvHistoryLimit, v)
		}
	}

	if v := get(EnvTelegramChatID); v != "" {
		if cfg.TelegramChatID, err = strconv.ParseInt(v, 10, 64); err != nil {
			return Config{}, domain.ConfigurationError("invalid %s %q, expected an integer chat id", EnvTelegramChatID, v)
		}
	}
	if !cfg.TelegramEnabled() {
		cfg.Warnings = append(cfg.Warnings, "telegram is not configured, set TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID to enable notifications")
	}
	if len(cfg.RPCURLs) == 1 {
		cfg.Warnings = append(cfg.Warnings, "only one RPC endpoint configured, failover has nowhere to go")
	}

	for _, key := range EnvKeys() {
		v := EnvVar{Key: key, Set: get(key) != "", Secret: IsSecret(key)}
		if v.Set {
			v.Value = get(key)
			if v.Secret {
				v.Value = maskedValue
			}
		}
		cfg.env = append(cfg.env, v)
	}

	return cfg, nil
}

func collectRPCURLs(get func(string) string) []string {
	urls := []string{get(EnvRPCURL), get(EnvRPCURL1), get(EnvRPCURL2)}
	for _, u := range strings.Split(get(EnvRPCURLs), ",") {
		urls = append(urls, strings.TrimSpace(u))
	}

	out := make([]string, 0, len(urls))
	seen := make(map[string]struct{})
	for _, u := range urls {
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

func parseAddress(name, v string) (common.Address, error) {
	if !common.IsHexAddress(v) {
		return common.Address{}, domain.ConfigurationError("invalid %s %q", name, v)
	}
	addr := common.HexToAddress(v)
	if addr == (common.Address{}) {
		return common.Address{}, domain.ConfigurationError("%s must not be the zero address", name)
	}
	return addr, nil
}

func parsePrivateKey(v string) (*ecdsa.PrivateKey, error) {
	hexKey := strings.TrimPrefix(strings.TrimPrefix(v, "0x"), "0X")
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		// the underlying error may echo key material
		return nil, domain.ConfigurationError("invalid %s, expected 32 hex-encoded bytes", EnvPrivateKey)
	}
	return key, nil
}

func parsePositiveInt(name, v string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, domain.ConfigurationError("invalid %s %q, expected a positive integer", name, v)
	}
	return n, nil
}

func valueOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func merge(dst, src map[string]string) {
	for k, v := range src {
		if strings.TrimSpace(v) == "" {
			continue
		}
		dst[k] = v
	}
}

func environ() map[string]string {
	out := make(map[string]string)
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if ok {
			out[k] = v
		}
	}
	return out
}

// EnvKeys returns the known variable names in a stable order.
func EnvKeys() []string {
	keys := []string{
		EnvRPCURL, EnvRPCURL1, EnvRPCURL2, EnvRPCURLs, EnvMonitoredAddr, EnvSafeAddr, EnvPrivateKey,
		EnvCheckInterval, EnvGasLimit, EnvGasPriceGwei, EnvSafetyMarginEth, EnvMinEthAmount, EnvRPCTimeout,
		EnvTelegramToken, EnvTelegramChatID, EnvExplorerTxURL, EnvLogLevel, EnvLogDir, EnvMetricsAddr,
		EnvJournalDir, EnvHistoryLimit,
	}
	sort.Strings(keys)
	return keys
}

// IsSecret reports whether the variable must never be printed.
func IsSecret(key string) bool {
	return key == EnvPrivateKey || key == EnvTelegramToken
}

var errNoYamlDocument = errors.New("yaml config is empty")
