package config

import (
	"fmt"
	"math/big"
	"strings"
)

const maxBps = 10_000

// Validate enforces the structural constraints on a normalised config.
func Validate(c *Config) error {
	if c == nil {
		return fmt.Errorf("config: nil")
	}
	if c.CloseFactorBps == 0 || c.CloseFactorBps > maxBps {
		return fmt.Errorf("config: CloseFactorBps must be in (0, %d]", maxBps)
	}
	seen := make(map[string]struct{}, len(c.Tokens))
	for i, token := range c.Tokens {
		symbol := strings.ToUpper(strings.TrimSpace(token.Symbol))
		if symbol == "" {
			return fmt.Errorf("config: token[%d]: symbol required", i)
		}
		if _, dup := seen[symbol]; dup {
			return fmt.Errorf("config: token %s: duplicate symbol", symbol)
		}
		seen[symbol] = struct{}{}
		if token.CollateralFactorBps > maxBps {
			return fmt.Errorf("config: token %s: CollateralFactorBps above %d", symbol, maxBps)
		}
		if token.LiquidationThresholdBps > maxBps {
			return fmt.Errorf("config: token %s: LiquidationThresholdBps above %d", symbol, maxBps)
		}
		if token.LiquidationThresholdBps < token.CollateralFactorBps {
			return fmt.Errorf("config: token %s: liquidation threshold below collateral factor", symbol)
		}
	}
	for i, mint := range c.Mints {
		if strings.TrimSpace(mint.Address) == "" {
			return fmt.Errorf("config: mint[%d]: address required", i)
		}
		symbol := strings.ToUpper(strings.TrimSpace(mint.Symbol))
		if _, ok := seen[symbol]; !ok {
			return fmt.Errorf("config: mint[%d]: unknown symbol %q", i, mint.Symbol)
		}
		amount, ok := new(big.Int).SetString(strings.TrimSpace(mint.Amount), 10)
		if !ok || amount.Sign() <= 0 {
			return fmt.Errorf("config: mint[%d]: amount must be a positive integer", i)
		}
	}
	for i, role := range c.Roles {
		if strings.TrimSpace(role.Role) == "" {
			return fmt.Errorf("config: role[%d]: role name required", i)
		}
		if strings.TrimSpace(role.Address) == "" {
			return fmt.Errorf("config: role[%d]: address required", i)
		}
	}
	if len(c.Webhooks.Endpoints) > 0 && strings.TrimSpace(c.Webhooks.SecretEnv) == "" {
		return fmt.Errorf("config: webhooks: secretEnv required when endpoints are set")
	}
	for i, endpoint := range c.Webhooks.Endpoints {
		if strings.TrimSpace(endpoint.URL) == "" {
			return fmt.Errorf("config: webhooks.endpoint[%d]: url required", i)
		}
	}
	return nil
}
