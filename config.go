package relayer

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/universalswapper/relayer/evm"
	"github.com/universalswapper/relayer/fees"
	"github.com/universalswapper/relayer/permit2"
	"github.com/universalswapper/relayer/router"
)

// Duration wraps time.Duration to support YAML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	raw := strings.TrimSpace(value.Value)
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML writes the duration in its string form.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

const (
	DefaultListenAddress      = ":8402"
	DefaultRelayerKeyEnv      = "RELAYER_PRIVATE_KEY"
	DefaultOwnerKeyEnv        = "OWNER_PRIVATE_KEY"
	DefaultReceiptPoll        = time.Second
	DefaultReceiptTimeout     = 2 * time.Minute
	DefaultSwapCacheTTL       = 10 * time.Minute
	DefaultRouterDeadline     = time.Duration(router.DefaultDeadlineSeconds) * time.Second
	DefaultQuoteTimeout       = 10 * time.Second
	DefaultEnvironment        = "development"
	DefaultServiceName        = "swapper"
	DefaultQuotesPerSecond    = 5
	DefaultMaxSwapRequestSize = 1 << 16
)

// Config is the relayer's immutable runtime configuration. Secrets are never
// part of it; RelayerKeyEnv and OwnerKeyEnv name the variables that hold them.
type Config struct {
	Service     string `yaml:"service"`
	Environment string `yaml:"environment"`

	RPCURL  string `yaml:"rpc_url"`
	ChainID int64  `yaml:"chain_id"`

	Permit2Address   string `yaml:"permit2_address"`
	RouterAddress    string `yaml:"router_address"`
	GasFeeRecipient  string `yaml:"gas_fee_recipient"`
	SwapFeeRecipient string `yaml:"swap_fee_recipient"`

	FeeBips        int64  `yaml:"fee_bips"`
	PoolFee        uint32 `yaml:"pool_fee"`
	PlaceholderFee int64  `yaml:"placeholder_fee"`
	NonceAttempts  int    `yaml:"nonce_attempts"`

	PermitDeadline Duration `yaml:"permit_deadline"`
	RouterDeadline Duration `yaml:"router_deadline"`

	Quoting QuotingConfig `yaml:"quoting"`
	Receipt ReceiptConfig `yaml:"receipt"`
	HTTP    HTTPConfig    `yaml:"http"`

	RelayerKeyEnv string `yaml:"relayer_key_env"`
	OwnerKeyEnv   string `yaml:"owner_key_env"`
}

// QuotingConfig selects the price oracle strategy and endpoints.
type QuotingConfig struct {
	Method            string   `yaml:"method"`
	OnchainURL        string   `yaml:"onchain_url"`
	GraphURL          string   `yaml:"graph_url"`
	Timeout           Duration `yaml:"timeout"`
	RequestsPerSecond float64  `yaml:"requests_per_second"`
}

// ReceiptConfig tunes receipt polling.
type ReceiptConfig struct {
	PollInterval Duration `yaml:"poll_interval"`
	Timeout      Duration `yaml:"timeout"`
}

// HTTPConfig configures the swap service.
type HTTPConfig struct {
	Listen       string   `yaml:"listen"`
	SwapCacheTTL Duration `yaml:"swap_cache_ttl"`
}

// LoadConfig reads configuration from the supplied path.
func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	return ParseConfig(raw)
}

// ParseConfig decodes YAML, fills defaults and validates the result.
func ParseConfig(raw []byte) (Config, error) {
	cfg := Config{}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ApplyDefaults fills zero fields and normalizes addresses.
func (c *Config) ApplyDefaults() {
	if c.Service == "" {
		c.Service = DefaultServiceName
	}
	if c.Environment == "" {
		c.Environment = DefaultEnvironment
	}
	if c.Permit2Address == "" {
		c.Permit2Address = permit2.PERMIT2Address
	}
	if c.FeeBips == 0 {
		c.FeeBips = router.DefaultFeeBips
	}
	if c.PoolFee == 0 {
		c.PoolFee = router.DefaultPoolFee
	}
	if c.PlaceholderFee == 0 {
		c.PlaceholderFee = fees.DefaultPlaceholderFee
	}
	if c.NonceAttempts == 0 {
		c.NonceAttempts = permit2.DefaultMaxNonceAttempts
	}
	if c.PermitDeadline.Duration == 0 {
		c.PermitDeadline.Duration = permit2.DefaultDeadlineOffset
	}
	if c.RouterDeadline.Duration == 0 {
		c.RouterDeadline.Duration = DefaultRouterDeadline
	}
	if c.Quoting.Method == "" {
		c.Quoting.Method = string(fees.QuotingOnchain)
	}
	if c.Quoting.Timeout.Duration == 0 {
		c.Quoting.Timeout.Duration = DefaultQuoteTimeout
	}
	if c.Quoting.RequestsPerSecond == 0 {
		c.Quoting.RequestsPerSecond = DefaultQuotesPerSecond
	}
	if c.Receipt.PollInterval.Duration == 0 {
		c.Receipt.PollInterval.Duration = DefaultReceiptPoll
	}
	if c.Receipt.Timeout.Duration == 0 {
		c.Receipt.Timeout.Duration = DefaultReceiptTimeout
	}
	if c.HTTP.Listen == "" {
		c.HTTP.Listen = DefaultListenAddress
	}
	if c.HTTP.SwapCacheTTL.Duration == 0 {
		c.HTTP.SwapCacheTTL.Duration = DefaultSwapCacheTTL
	}
	if c.RelayerKeyEnv == "" {
		c.RelayerKeyEnv = DefaultRelayerKeyEnv
	}
	if c.OwnerKeyEnv == "" {
		c.OwnerKeyEnv = DefaultOwnerKeyEnv
	}

	for _, addr := range []*string{&c.Permit2Address, &c.RouterAddress, &c.GasFeeRecipient, &c.SwapFeeRecipient} {
		if evm.IsValidAddress(*addr) {
			*addr = evm.NormalizeAddress(*addr)
		}
	}
}

// Validate reports the first configuration problem found.
func (c Config) Validate() error {
	addresses := []struct {
		name  string
		value string
	}{
		{"permit2_address", c.Permit2Address},
		{"router_address", c.RouterAddress},
		{"gas_fee_recipient", c.GasFeeRecipient},
		{"swap_fee_recipient", c.SwapFeeRecipient},
	}
	for _, a := range addresses {
		if !evm.IsValidAddress(a.value) {
			return fmt.Errorf("%s: invalid address %q", a.name, a.value)
		}
	}
	if c.ChainID < 0 {
		return fmt.Errorf("chain_id must not be negative")
	}
	if c.FeeBips < 0 || c.FeeBips > router.MaxBips {
		return fmt.Errorf("fee_bips must be within [0, %d]", router.MaxBips)
	}
	if c.PoolFee > router.MaxPoolFee {
		return fmt.Errorf("pool_fee %d does not fit in uint24", c.PoolFee)
	}
	if c.PlaceholderFee <= 0 {
		return fmt.Errorf("placeholder_fee must be positive")
	}
	if c.NonceAttempts <= 0 {
		return fmt.Errorf("nonce_attempts must be positive")
	}
	if c.PermitDeadline.Duration <= 0 || c.RouterDeadline.Duration <= 0 {
		return fmt.Errorf("deadlines must be positive")
	}
	if _, err := fees.ParseQuotingMethod(c.Quoting.Method); err != nil {
		return fmt.Errorf("quoting.method: %w", err)
	}
	return nil
}

// RelayerKey returns the relayer private key from the environment.
func (c Config) RelayerKey() (string, error) {
	return secretFromEnv(c.RelayerKeyEnv)
}

// OwnerKey returns the owner private key from the environment.
func (c Config) OwnerKey() (string, error) {
	return secretFromEnv(c.OwnerKeyEnv)
}

func secretFromEnv(name string) (string, error) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return "", fmt.Errorf("environment variable %s is not set", name)
	}
	return value, nil
}
