package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is the daemon configuration decoded from colend.toml.
type Config struct {
	RPCAddress     string `toml:"RPCAddress"`
	MetricsAddress string `toml:"MetricsAddress"`
	DataDir        string `toml:"DataDir"`
	NetworkName    string `toml:"NetworkName"`

	// RPCAuthTokenEnv names the environment variable holding the bearer token
	// required on mutating RPC methods. The token itself never lives in the
	// file.
	RPCAuthTokenEnv string `toml:"RPCAuthTokenEnv"`
	// RPCTrustProxyHeaders honours X-Forwarded-For when resolving the rate
	// limit source. Enable only behind a trusted proxy.
	RPCTrustProxyHeaders bool `toml:"RPCTrustProxyHeaders"`

	// CloseFactorBps caps the share of debt one liquidation may repay.
	CloseFactorBps uint64 `toml:"CloseFactorBps"`

	Pauses    Pauses    `toml:"pauses"`
	Quotas    Quotas    `toml:"quotas"`
	Oracle    Oracle    `toml:"oracle"`
	Tokens    []Token   `toml:"token"`
	Mints     []Mint    `toml:"mint"`
	Roles     []Role    `toml:"role"`
	Logging   Logging   `toml:"logging"`
	Telemetry Telemetry `toml:"telemetry"`
	Webhooks  Webhooks  `toml:"webhooks"`
}

// Load reads the configuration at path, creating a commented default when the
// file does not exist yet. The loaded config is normalised but not validated;
// callers run Validate before use.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.Normalise()
	return cfg, nil
}

// Normalise fills defaults for omitted fields.
func (c *Config) Normalise() {
	if strings.TrimSpace(c.RPCAddress) == "" {
		c.RPCAddress = ":8645"
	}
	if strings.TrimSpace(c.MetricsAddress) == "" {
		c.MetricsAddress = ":9464"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./colend-data"
	}
	if strings.TrimSpace(c.NetworkName) == "" {
		c.NetworkName = "colend-local"
	}
	if strings.TrimSpace(c.RPCAuthTokenEnv) == "" {
		c.RPCAuthTokenEnv = "COLEND_RPC_TOKEN"
	}
	if c.CloseFactorBps == 0 {
		c.CloseFactorBps = 5_000
	}
	if c.Oracle.MaxQuoteAgeSeconds == 0 {
		c.Oracle.MaxQuoteAgeSeconds = 300
	}
	if c.Oracle.ProofMaxSkewSeconds == 0 {
		c.Oracle.ProofMaxSkewSeconds = 120
	}
	if strings.TrimSpace(c.Logging.Environment) == "" {
		c.Logging.Environment = "local"
	}
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "info"
	}
	normaliseQuota(&c.Quotas.Lending)
	normaliseQuota(&c.Quotas.Delegation)
	normaliseQuota(&c.Quotas.Rebalance)
	normaliseQuota(&c.Quotas.Bank)
}

func normaliseQuota(q *Quota) {
	if q.MaxRequestsPerMin > 0 && q.EpochSeconds == 0 {
		q.EpochSeconds = 60
	}
}

// createDefault writes a default config with a local development market.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		Tokens: []Token{{
			Symbol:                  "COL",
			Name:                    "Collateral Token",
			Decimals:                18,
			Supported:               true,
			CollateralFactorBps:     7_500,
			LiquidationThresholdBps: 8_000,
			LiquidationPenaltyBps:   1_000,
			InterestRateBps:         500,
		}},
	}
	cfg.Normalise()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}
