package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ConfigTmp is the on-disk shape of the optional yaml file. Secrets are not accepted here.
type ConfigTmp struct {
	RPCURLs          []string      `yaml:"rpc_urls"`
	MonitoredAddress string        `yaml:"monitored_address"`
	SafeAddress      string        `yaml:"safe_address"`
	CheckInterval    time.Duration `yaml:"check_interval,omitempty"`
	GasLimit         uint64        `yaml:"gas_limit,omitempty"`
	GasPriceGwei     string        `yaml:"gas_price_gwei,omitempty"`
	SafetyMarginEth  string        `yaml:"safety_margin_eth,omitempty"`
	MinEthAmount     string        `yaml:"min_eth_amount,omitempty"`
	RPCTimeout       time.Duration `yaml:"rpc_timeout,omitempty"`
	TelegramChatID   string        `yaml:"telegram_chat_id,omitempty"`
	ExplorerTxURL    string        `yaml:"explorer_tx_url,omitempty"`
	LogLevel         string        `yaml:"log_level,omitempty"`
	LogDir           string        `yaml:"log_dir,omitempty"`
	MetricsAddr      string        `yaml:"metrics_addr,omitempty"`
	JournalDir       string        `yaml:"journal_dir,omitempty"`
	HistoryLimit     int           `yaml:"history_limit,omitempty"`
}

func readYaml(path string) (map[string]string, error) {
	f, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseYaml(f)
}

func parseYaml(data []byte) (map[string]string, error) {
	var c ConfigTmp
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, errors.Wrap(err, "unmarshal yaml")
	}
	if isEmpty(c) {
		return nil, errNoYamlDocument
	}
	return c.values(), nil
}

func isEmpty(c ConfigTmp) bool {
	return len(c.RPCURLs) == 0 && c.MonitoredAddress == "" && c.SafeAddress == "" &&
		c.CheckInterval == 0 && c.GasLimit == 0 && c.GasPriceGwei == "" && c.SafetyMarginEth == "" &&
		c.MinEthAmount == "" && c.RPCTimeout == 0 && c.TelegramChatID == "" && c.ExplorerTxURL == "" &&
		c.LogLevel == "" && c.LogDir == "" && c.MetricsAddr == "" && c.JournalDir == "" && c.HistoryLimit == 0
}

// values maps yaml settings onto environment variable names so both sources share one validator.
func (c ConfigTmp) values() map[string]string {
	v := map[string]string{
		EnvMonitoredAddr:   c.MonitoredAddress,
		EnvSafeAddr:        c.SafeAddress,
		EnvGasPriceGwei:    c.GasPriceGwei,
		EnvSafetyMarginEth: c.SafetyMarginEth,
		EnvMinEthAmount:    c.MinEthAmount,
		EnvTelegramChatID:  c.TelegramChatID,
		EnvExplorerTxURL:   c.ExplorerTxURL,
		EnvLogLevel:        c.LogLevel,
		EnvLogDir:          c.LogDir,
		EnvMetricsAddr:     c.MetricsAddr,
		EnvJournalDir:      c.JournalDir,
	}
	if len(c.RPCURLs) > 0 {
		v[EnvRPCURL] = c.RPCURLs[0]
		v[EnvRPCURLs] = strings.Join(c.RPCURLs[1:], ",")
	}
	if c.CheckInterval > 0 {
		v[EnvCheckInterval] = strconv.FormatInt(c.CheckInterval.Milliseconds(), 10)
	}
	if c.GasLimit > 0 {
		v[EnvGasLimit] = strconv.FormatUint(c.GasLimit, 10)
	}
	if c.RPCTimeout > 0 {
		v[EnvRPCTimeout] = c.RPCTimeout.String()
	}
	if c.HistoryLimit > 0 {
		v[EnvHistoryLimit] = strconv.Itoa(c.HistoryLimit)
	}
	return v
}

// WriteYaml stores non-secret settings in the yaml format read by -config.
func WriteYaml(path string, c ConfigTmp) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "marshal yaml")
	}
	return os.WriteFile(path, data, 0o600)
}
