package modules

import (
	"math/big"

	"colend/core"
	"colend/crypto"
)

// BankModule exposes transferable balances and allowances over RPC.
type BankModule struct {
	node *core.Node
}

func NewBankModule(node *core.Node) *BankModule {
	return &BankModule{node: node}
}

func (m *BankModule) available() *ModuleError {
	if m == nil || m.node == nil {
		return moduleUnavailable("bank")
	}
	return nil
}

func (m *BankModule) BalanceOf(addr crypto.Address, symbol string) (*big.Int, *ModuleError) {
	if err := m.available(); err != nil {
		return nil, err
	}
	balance, err := m.node.BalanceOf(addr, symbol)
	if err != nil {
		return nil, wrapError(err)
	}
	return balance, nil
}

func (m *BankModule) Transfer(from, to crypto.Address, symbol string, amount *big.Int) *ModuleError {
	if err := m.available(); err != nil {
		return err
	}
	if err := m.node.Transfer(from, to, symbol, amount); err != nil {
		return wrapError(err)
	}
	return nil
}

func (m *BankModule) Approve(owner, spender crypto.Address, symbol string, amount *big.Int) *ModuleError {
	if err := m.available(); err != nil {
		return err
	}
	if err := m.node.Approve(owner, spender, symbol, amount); err != nil {
		return wrapError(err)
	}
	return nil
}

func (m *BankModule) Allowance(owner, spender crypto.Address, symbol string) (*big.Int, *ModuleError) {
	if err := m.available(); err != nil {
		return nil, err
	}
	allowance, err := m.node.Allowance(owner, spender, symbol)
	if err != nil {
		return nil, wrapError(err)
	}
	return allowance, nil
}
