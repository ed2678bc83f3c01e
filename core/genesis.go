package core

import (
	"fmt"
	"math/big"

	"colend/crypto"
	"colend/native/lending"
)

// GenesisMint seeds an account balance at bootstrap.
type GenesisMint struct {
	Address crypto.Address
	Symbol  string
	Amount  *big.Int
}

// GenesisRole seeds a role grant at bootstrap.
type GenesisRole struct {
	Role    string
	Address crypto.Address
}

// Genesis is the bootstrap state applied to an empty database.
type Genesis struct {
	Tokens []lending.TokenConfig
	Roles  []GenesisRole
	Mints  []GenesisMint
}

// ApplyGenesis seeds token configs, role grants, and initial balances in one
// transaction. It is idempotent: a second call against the same database is a
// no-op, so a restarting daemon can always pass its configured genesis.
func (n *Node) ApplyGenesis(g Genesis) error {
	return n.withMutableState(func(env *opEnv) error {
		applied, err := env.manager.GenesisApplied()
		if err != nil {
			return err
		}
		if applied {
			return nil
		}
		for i := range g.Tokens {
			cfg := g.Tokens[i]
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("genesis token %s: %w", cfg.Symbol, err)
			}
			if err := env.manager.LendingPutTokenConfig(&cfg); err != nil {
				return err
			}
		}
		for _, grant := range g.Roles {
			if grant.Address.IsZero() {
				return fmt.Errorf("genesis role %s: zero address", grant.Role)
			}
			if err := env.manager.SetRole(grant.Role, grant.Address.Bytes()); err != nil {
				return err
			}
		}
		for _, mint := range g.Mints {
			if mint.Amount == nil || mint.Amount.Sign() <= 0 {
				return fmt.Errorf("genesis mint for %s: amount must be positive", mint.Symbol)
			}
			if mint.Address.IsZero() {
				return fmt.Errorf("genesis mint of %s: zero address", mint.Symbol)
			}
			balance, err := env.manager.Balance(mint.Address, mint.Symbol)
			if err != nil {
				return err
			}
			balance = new(big.Int).Add(balance, mint.Amount)
			if err := env.manager.SetBalance(mint.Address, mint.Symbol, balance); err != nil {
				return err
			}
		}
		return env.manager.MarkGenesisApplied()
	})
}
