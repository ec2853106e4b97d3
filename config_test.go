package relayer

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/universalswapper/relayer/fees"
	"github.com/universalswapper/relayer/permit2"
	"github.com/universalswapper/relayer/router"
)

const minimalConfig = `
rpc_url: http://localhost:8545
router_address: "0x3333333333333333333333333333333333333333"
gas_fee_recipient: "0x4444444444444444444444444444444444444444"
swap_fee_recipient: "0x5555555555555555555555555555555555555555"
`

func TestParseConfigDefaults(t *testing.T) {
	cfg, err := ParseConfig([]byte(minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, DefaultServiceName, cfg.Service)
	assert.Equal(t, permit2.PERMIT2Address, cfg.Permit2Address)
	assert.Equal(t, int64(router.DefaultFeeBips), cfg.FeeBips)
	assert.Equal(t, uint32(router.DefaultPoolFee), cfg.PoolFee)
	assert.Equal(t, int64(fees.DefaultPlaceholderFee), cfg.PlaceholderFee)
	assert.Equal(t, permit2.DefaultMaxNonceAttempts, cfg.NonceAttempts)
	assert.Equal(t, 30*time.Minute, cfg.PermitDeadline.Duration)
	assert.Equal(t, 30*time.Minute, cfg.RouterDeadline.Duration)
	assert.Equal(t, string(fees.QuotingOnchain), cfg.Quoting.Method)
	assert.Equal(t, DefaultListenAddress, cfg.HTTP.Listen)
	assert.Equal(t, DefaultRelayerKeyEnv, cfg.RelayerKeyEnv)
}

func TestParseConfigOverrides(t *testing.T) {
	raw := minimalConfig + `
chain_id: 8453
fee_bips: 50
pool_fee: 3000
permit_deadline: 5m
quoting:
  method: graph
  graph_url: https://prices.example/graph
  timeout: 3s
receipt:
  poll_interval: 250ms
`
	cfg, err := ParseConfig([]byte(raw))
	require.NoError(t, err)

	assert.Equal(t, int64(8453), cfg.ChainID)
	assert.Equal(t, int64(50), cfg.FeeBips)
	assert.Equal(t, uint32(3000), cfg.PoolFee)
	assert.Equal(t, 5*time.Minute, cfg.PermitDeadline.Duration)
	assert.Equal(t, "graph", cfg.Quoting.Method)
	assert.Equal(t, 3*time.Second, cfg.Quoting.Timeout.Duration)
	assert.Equal(t, 250*time.Millisecond, cfg.Receipt.PollInterval.Duration)
}

func TestParseConfigNormalizesAddresses(t *testing.T) {
	raw := `
router_address: "0x3fc91a3afd70395cd496c647d5a6cc9d4b2b7fad"
gas_fee_recipient: "0x4444444444444444444444444444444444444444"
swap_fee_recipient: "0x5555555555555555555555555555555555555555"
`
	cfg, err := ParseConfig([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "0x3fC91A3afd70395Cd496C647d5a6CC9D4B2b7FAD", cfg.RouterAddress)
}

func TestParseConfigErrors(t *testing.T) {
	tests := []struct {
		name  string
		extra string
		want  string
	}{
		{name: "unknown field", extra: "surprise: true", want: "surprise"},
		{name: "bad duration", extra: "permit_deadline: soon", want: "parse duration"},
		{name: "fee bips too high", extra: "fee_bips: 10001", want: "fee_bips"},
		{name: "pool fee too wide", extra: "pool_fee: 16777216", want: "pool_fee"},
		{name: "unsupported quoting", extra: "quoting:\n  method: oracle", want: "quoting.method"},
		{name: "negative chain", extra: "chain_id: -1", want: "chain_id"},
		{name: "negative placeholder", extra: "placeholder_fee: -5", want: "placeholder_fee"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(minimalConfig + tt.extra + "\n"))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	t.Run("missing router", func(t *testing.T) {
		_, err := ParseConfig([]byte("gas_fee_recipient: \"0x4444444444444444444444444444444444444444\"\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "router_address")
	})
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "swapper.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalConfig), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8545", cfg.RPCURL)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestConfigKeysFromEnvironment(t *testing.T) {
	cfg, err := ParseConfig([]byte(minimalConfig + "owner_key_env: TEST_SWAPPER_OWNER_KEY\n"))
	require.NoError(t, err)

	t.Setenv(DefaultRelayerKeyEnv, " 0xabc ")
	key, err := cfg.RelayerKey()
	require.NoError(t, err)
	assert.Equal(t, "0xabc", key)

	t.Setenv("TEST_SWAPPER_OWNER_KEY", "")
	_, err = cfg.OwnerKey()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TEST_SWAPPER_OWNER_KEY")
}
