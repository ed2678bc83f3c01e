package modules

import (
	"math/big"

	"colend/core"
	"colend/crypto"
	"colend/native/lending"
)

// LendingModule exposes the collateral ledger over RPC.
type LendingModule struct {
	node *core.Node
}

func NewLendingModule(node *core.Node) *LendingModule {
	return &LendingModule{node: node}
}

func (m *LendingModule) available() *ModuleError {
	if m == nil || m.node == nil {
		return moduleUnavailable("lending")
	}
	return nil
}

func (m *LendingModule) Deposit(user crypto.Address, symbol string, amount *big.Int) (*lending.Position, *ModuleError) {
	if err := m.available(); err != nil {
		return nil, err
	}
	pos, err := m.node.Deposit(user, symbol, amount)
	if err != nil {
		return nil, wrapError(err)
	}
	return pos, nil
}

func (m *LendingModule) Withdraw(user crypto.Address, symbol string, amount *big.Int) (*lending.Position, *ModuleError) {
	if err := m.available(); err != nil {
		return nil, err
	}
	pos, err := m.node.Withdraw(user, symbol, amount)
	if err != nil {
		return nil, wrapError(err)
	}
	return pos, nil
}

func (m *LendingModule) Borrow(user crypto.Address, symbol string, amount *big.Int) (*lending.Position, *ModuleError) {
	if err := m.available(); err != nil {
		return nil, err
	}
	pos, err := m.node.Borrow(user, symbol, amount)
	if err != nil {
		return nil, wrapError(err)
	}
	return pos, nil
}

// Repay applies at most the outstanding debt and returns the applied amount
// alongside the updated position.
func (m *LendingModule) Repay(user crypto.Address, symbol string, amount *big.Int) (*big.Int, *lending.Position, *ModuleError) {
	if err := m.available(); err != nil {
		return nil, nil, err
	}
	applied, pos, err := m.node.Repay(user, symbol, amount)
	if err != nil {
		return nil, nil, wrapError(err)
	}
	return applied, pos, nil
}

func (m *LendingModule) RepayFull(user crypto.Address, symbol string) (*big.Int, *lending.Position, *ModuleError) {
	if err := m.available(); err != nil {
		return nil, nil, err
	}
	applied, pos, err := m.node.RepayFull(user, symbol)
	if err != nil {
		return nil, nil, wrapError(err)
	}
	return applied, pos, nil
}

func (m *LendingModule) Position(user crypto.Address, symbol string) (*lending.Position, *ModuleError) {
	if err := m.available(); err != nil {
		return nil, err
	}
	pos, err := m.node.Position(user, symbol)
	if err != nil {
		return nil, wrapError(err)
	}
	return pos, nil
}

func (m *LendingModule) Positions(user crypto.Address) ([]*lending.Position, *ModuleError) {
	if err := m.available(); err != nil {
		return nil, err
	}
	positions, err := m.node.Positions(user)
	if err != nil {
		return nil, wrapError(err)
	}
	return positions, nil
}

func (m *LendingModule) Market(symbol string) (*lending.Market, *ModuleError) {
	if err := m.available(); err != nil {
		return nil, err
	}
	market, err := m.node.Market(symbol)
	if err != nil {
		return nil, wrapError(err)
	}
	return market, nil
}

func (m *LendingModule) Markets() ([]*lending.Market, *ModuleError) {
	if err := m.available(); err != nil {
		return nil, err
	}
	markets, err := m.node.Markets()
	if err != nil {
		return nil, wrapError(err)
	}
	return markets, nil
}
