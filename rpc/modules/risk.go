package modules

import (
	"math/big"

	"colend/core"
	"colend/crypto"
	"colend/native/lending"
)

// RiskModule exposes account health reads and the liquidation path.
type RiskModule struct {
	node *core.Node
}

func NewRiskModule(node *core.Node) *RiskModule {
	return &RiskModule{node: node}
}

func (m *RiskModule) available() *ModuleError {
	if m == nil || m.node == nil {
		return moduleUnavailable("risk")
	}
	return nil
}

// Snapshot prices the user's account at the current oracle quotes.
func (m *RiskModule) Snapshot(user crypto.Address) (*lending.RiskSnapshot, *ModuleError) {
	if err := m.available(); err != nil {
		return nil, err
	}
	snapshot, err := m.node.RiskSnapshot(user)
	if err != nil {
		return nil, wrapError(err)
	}
	return snapshot, nil
}

// Liquidate repays part of an unhealthy borrower's debt in exchange for
// seized collateral and returns the borrower's post-liquidation snapshot.
func (m *RiskModule) Liquidate(liquidator, borrower crypto.Address, debtSymbol, collateralSymbol string, repayAmount *big.Int) (*lending.RiskSnapshot, *ModuleError) {
	if err := m.available(); err != nil {
		return nil, err
	}
	snapshot, err := m.node.Liquidate(liquidator, borrower, debtSymbol, collateralSymbol, repayAmount)
	if err != nil {
		return nil, wrapError(err)
	}
	return snapshot, nil
}
