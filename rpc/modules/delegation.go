package modules

import (
	"math/big"

	"colend/core"
	"colend/crypto"
	"colend/native/delegation"
)

// DelegationModule exposes stake-backed borrowing rights over RPC.
type DelegationModule struct {
	node *core.Node
}

func NewDelegationModule(node *core.Node) *DelegationModule {
	return &DelegationModule{node: node}
}

func (m *DelegationModule) available() *ModuleError {
	if m == nil || m.node == nil {
		return moduleUnavailable("delegation")
	}
	return nil
}

func (m *DelegationModule) Create(delegator, delegate crypto.Address, symbol string, kind delegation.Kind, maxBorrow *big.Int, thresholdBps uint64) (*delegation.Delegation, *ModuleError) {
	if err := m.available(); err != nil {
		return nil, err
	}
	created, err := m.node.CreateDelegation(delegator, delegate, symbol, kind, maxBorrow, thresholdBps)
	if err != nil {
		return nil, wrapError(err)
	}
	return created, nil
}

func (m *DelegationModule) Revoke(delegator crypto.Address, id [32]byte) (*delegation.Delegation, *ModuleError) {
	if err := m.available(); err != nil {
		return nil, err
	}
	revoked, err := m.node.RevokeDelegation(delegator, id)
	if err != nil {
		return nil, wrapError(err)
	}
	return revoked, nil
}

// Borrow draws against the delegator's collateral and pays the delegate.
func (m *DelegationModule) Borrow(delegate, delegator crypto.Address, symbol string, amount *big.Int) (*delegation.Delegation, *ModuleError) {
	if err := m.available(); err != nil {
		return nil, err
	}
	updated, err := m.node.DelegatedBorrow(delegate, delegator, symbol, amount)
	if err != nil {
		return nil, wrapError(err)
	}
	return updated, nil
}

func (m *DelegationModule) Get(id [32]byte) (*delegation.Delegation, *ModuleError) {
	if err := m.available(); err != nil {
		return nil, err
	}
	record, err := m.node.Delegation(id)
	if err != nil {
		return nil, wrapError(err)
	}
	return record, nil
}

func (m *DelegationModule) ListByDelegator(delegator crypto.Address) ([]*delegation.Delegation, *ModuleError) {
	if err := m.available(); err != nil {
		return nil, err
	}
	list, err := m.node.DelegationsByDelegator(delegator)
	if err != nil {
		return nil, wrapError(err)
	}
	return list, nil
}
