package setup

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/sweepguard/config"
	"github.com/vadiminshakov/sweepguard/internal/clients"
)

func testAnswers(t *testing.T) Answers {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	a := defaultAnswers()
	a.RPCURLs = "https://rpc-a.example/key, https://rpc-b.example"
	a.Monitored = crypto.PubkeyToAddress(key.PublicKey).Hex()
	a.Safe = "0x00000000000000000000000000000000000000aa"
	a.PrivateKey = "0x" + hex.EncodeToString(crypto.FromECDSA(key))
	a.TelegramToken = "123:abc"
	a.TelegramChatID = "-42"
	return a
}

func TestAnswersSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	yamlPath := filepath.Join(dir, "sweepguard.yaml")

	a := testAnswers(t)
	require.NoError(t, a.Save(envPath, yamlPath))

	secrets, err := godotenv.Read(envPath)
	require.NoError(t, err)
	assert.Equal(t, a.PrivateKey, secrets[config.EnvPrivateKey])
	assert.Equal(t, "123:abc", secrets[config.EnvTelegramToken])
	assert.Len(t, secrets, 2)

	info, err := os.Stat(envPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	yamlData, err := os.ReadFile(yamlPath)
	require.NoError(t, err)
	assert.NotContains(t, string(yamlData), a.PrivateKey[2:])
	assert.NotContains(t, string(yamlData), "123:abc")

	cfg, err := config.Load(config.Options{ConfigPath: yamlPath, EnvFile: envPath})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://rpc-a.example/key", "https://rpc-b.example"}, cfg.RPCURLs)
	assert.Equal(t, 10*time.Second, cfg.PollInterval)
	assert.Equal(t, int64(-42), cfg.TelegramChatID)
	assert.True(t, cfg.TelegramEnabled())
}

func TestAnswersSaveRejectsInvalid(t *testing.T) {
	a := testAnswers(t)
	a.Safe = a.Monitored

	dir := t.TempDir()
	require.Error(t, a.Save(filepath.Join(dir, ".env"), filepath.Join(dir, "c.yaml")))
	_, err := os.Stat(filepath.Join(dir, ".env"))
	assert.True(t, os.IsNotExist(err))
}

func TestValidators(t *testing.T) {
	a := testAnswers(t)

	assert.NoError(t, validateURLs("https://a, wss://b"))
	assert.Error(t, validateURLs(" , "))
	assert.Error(t, validateURLs("ftp://a"))

	assert.NoError(t, validateAddress(a.Safe))
	assert.Error(t, validateAddress("0x1234"))

	assert.NoError(t, validateKeyFor(a.PrivateKey, a.Monitored))
	assert.Error(t, validateKeyFor(a.PrivateKey, a.Safe))
	assert.Error(t, validateKeyFor("nothex", a.Monitored))

	assert.NoError(t, validatePositiveInt("21000"))
	assert.Error(t, validatePositiveInt("0"))

	assert.NoError(t, validateChatID(""))
	assert.Error(t, validateChatID("@chan"))
}

type fakeProber struct {
	results  []clients.ProbeResult
	balance  *big.Int
	gasPrice *big.Int
	gasErr   error
}

func (f *fakeProber) Probe(context.Context) []clients.ProbeResult { return f.results }

func (f *fakeProber) Balance(context.Context, common.Address) (*big.Int, error) {
	return f.balance, nil
}

func (f *fakeProber) GasPrice(context.Context) (*big.Int, error) {
	return f.gasPrice, f.gasErr
}

func TestRunCheckReport(t *testing.T) {
	cfg, err := testAnswers(t).Validate()
	require.NoError(t, err)

	prober := &fakeProber{
		results: []clients.ProbeResult{
			{URL: "https://rpc-a.example/key", Err: errors.New("dial https://rpc-a.example/key: refused")},
			{URL: "https://rpc-b.example", ChainID: big.NewInt(1), BlockNumber: 19000000},
		},
		balance: big.NewInt(1_000_000_000_000_000),
		gasErr:  errors.New("unavailable"),
	}

	var out bytes.Buffer
	require.NoError(t, RunCheck(context.Background(), &out, cfg, prober))

	report := out.String()
	assert.NotContains(t, report, "/key")
	assert.Contains(t, report, "https://rpc-a.example/...")
	assert.Contains(t, report, "chain 1, block 19000000")
	assert.Contains(t, report, "mainnet")
	assert.Contains(t, report, "gas price unavailable")
	assert.Contains(t, report, "0.00058 ETH")
	assert.NotContains(t, report, hex.EncodeToString(crypto.FromECDSA(cfg.SigningKey())))

	assert.Contains(t, report, "ENVIRONMENT")
	for _, key := range config.EnvKeys() {
		assert.Contains(t, report, key)
	}
	assert.Regexp(t, config.EnvPrivateKey+`\s+set \*{8}`, report)
	assert.Regexp(t, config.EnvHistoryLimit+`\s+unset`, report)
	assert.Regexp(t, config.EnvRPCURLs+`\s+set https://rpc-b\.example`, report)
	assert.Regexp(t, config.EnvRPCURL+`\s+set https://rpc-a\.example/\.\.\.`, report)
}

func TestRunCheckFailsWithoutEndpoints(t *testing.T) {
	cfg, err := testAnswers(t).Validate()
	require.NoError(t, err)

	prober := &fakeProber{results: []clients.ProbeResult{{URL: "https://rpc-a.example", Err: errors.New("refused")}}}
	assert.Error(t, RunCheck(context.Background(), &bytes.Buffer{}, cfg, prober))
}
