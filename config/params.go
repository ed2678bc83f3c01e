package config

import (
	"fmt"
	"math/big"
	"strings"

	"colend/crypto"
	"colend/native/lending"
)

// RoleGrant is a parsed genesis role assignment.
type RoleGrant struct {
	Role    string
	Address crypto.Address
}

// MintGrant is a parsed genesis balance.
type MintGrant struct {
	Address crypto.Address
	Symbol  string
	Amount  *big.Int
}

// Parameters is the typed runtime view of a validated config.
type Parameters struct {
	CloseFactorBps  uint64
	Tokens          []lending.TokenConfig
	Roles           []RoleGrant
	Mints           []MintGrant
	OracleAuthority crypto.Address
}

// Parameters converts the config into runtime values. Validate must have
// passed first; the remaining failures here are address decode errors.
func (c *Config) Parameters() (Parameters, error) {
	params := Parameters{CloseFactorBps: c.CloseFactorBps}

	params.Tokens = make([]lending.TokenConfig, 0, len(c.Tokens))
	for _, token := range c.Tokens {
		params.Tokens = append(params.Tokens, lending.TokenConfig{
			Symbol:                  strings.ToUpper(strings.TrimSpace(token.Symbol)),
			Name:                    token.Name,
			Decimals:                token.Decimals,
			Supported:               token.Supported,
			CollateralFactorBps:     token.CollateralFactorBps,
			LiquidationThresholdBps: token.LiquidationThresholdBps,
			LiquidationPenaltyBps:   token.LiquidationPenaltyBps,
			InterestRateBps:         token.InterestRateBps,
		})
	}

	params.Roles = make([]RoleGrant, 0, len(c.Roles))
	for i, role := range c.Roles {
		addr, err := crypto.DecodeAddress(strings.TrimSpace(role.Address))
		if err != nil {
			return Parameters{}, fmt.Errorf("config: role[%d]: %w", i, err)
		}
		params.Roles = append(params.Roles, RoleGrant{
			Role:    strings.TrimSpace(role.Role),
			Address: addr,
		})
	}

	params.Mints = make([]MintGrant, 0, len(c.Mints))
	for i, mint := range c.Mints {
		addr, err := crypto.DecodeAddress(strings.TrimSpace(mint.Address))
		if err != nil {
			return Parameters{}, fmt.Errorf("config: mint[%d]: %w", i, err)
		}
		amount, ok := new(big.Int).SetString(strings.TrimSpace(mint.Amount), 10)
		if !ok {
			return Parameters{}, fmt.Errorf("config: mint[%d]: invalid amount %q", i, mint.Amount)
		}
		params.Mints = append(params.Mints, MintGrant{
			Address: addr,
			Symbol:  strings.ToUpper(strings.TrimSpace(mint.Symbol)),
			Amount:  amount,
		})
	}

	if authority := strings.TrimSpace(c.Oracle.Authority); authority != "" {
		addr, err := crypto.DecodeAddress(authority)
		if err != nil {
			return Parameters{}, fmt.Errorf("config: oracle authority: %w", err)
		}
		params.OracleAuthority = addr
	}
	return params, nil
}
