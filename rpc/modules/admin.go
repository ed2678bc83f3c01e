package modules

import (
	"math/big"

	"colend/core"
	"colend/core/pricing"
	"colend/crypto"
	"colend/native/lending"
)

// AdminModule groups the authority-gated operations: issuance, risk parameter
// updates, role management, reserve withdrawals, and oracle quotes. Role
// enforcement happens in the engines; the transport additionally requires the
// bearer token for every method routed here.
type AdminModule struct {
	node *core.Node
}

func NewAdminModule(node *core.Node) *AdminModule {
	return &AdminModule{node: node}
}

func (m *AdminModule) available() *ModuleError {
	if m == nil || m.node == nil {
		return moduleUnavailable("admin")
	}
	return nil
}

// Mint credits freshly issued funds. The authority must hold the lending
// admin role.
func (m *AdminModule) Mint(authority, to crypto.Address, symbol string, amount *big.Int) (*big.Int, *ModuleError) {
	if err := m.available(); err != nil {
		return nil, err
	}
	balance, err := m.node.Mint(authority, to, symbol, amount)
	if err != nil {
		return nil, wrapError(err)
	}
	return balance, nil
}

func (m *AdminModule) SetTokenConfig(caller crypto.Address, cfg *lending.TokenConfig) *ModuleError {
	if err := m.available(); err != nil {
		return err
	}
	if err := m.node.SetTokenConfig(caller, cfg); err != nil {
		return wrapError(err)
	}
	return nil
}

func (m *AdminModule) WithdrawReserves(caller, recipient crypto.Address, symbol string, amount *big.Int) (*lending.AggregateTotals, *ModuleError) {
	if err := m.available(); err != nil {
		return nil, err
	}
	totals, err := m.node.WithdrawReserves(caller, recipient, symbol, amount)
	if err != nil {
		return nil, wrapError(err)
	}
	return totals, nil
}

func (m *AdminModule) GrantRole(role string, addr crypto.Address) *ModuleError {
	if err := m.available(); err != nil {
		return err
	}
	if err := m.node.GrantRole(role, addr); err != nil {
		return wrapError(err)
	}
	return nil
}

func (m *AdminModule) RevokeRole(role string, addr crypto.Address) *ModuleError {
	if err := m.available(); err != nil {
		return err
	}
	if err := m.node.RevokeRole(role, addr); err != nil {
		return wrapError(err)
	}
	return nil
}

// SetPrice records a bare administrative quote.
func (m *AdminModule) SetPrice(symbol string, price *big.Int, provider string) *ModuleError {
	if err := m.available(); err != nil {
		return err
	}
	if err := m.node.SetPrice(symbol, price, provider); err != nil {
		return wrapError(err)
	}
	return nil
}

// SubmitPriceProof accepts a signed oracle quote.
func (m *AdminModule) SubmitPriceProof(proof *pricing.PriceProof) *ModuleError {
	if err := m.available(); err != nil {
		return err
	}
	if err := m.node.SubmitPriceProof(proof); err != nil {
		return wrapError(err)
	}
	return nil
}
