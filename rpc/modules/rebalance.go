package modules

import (
	"colend/core"
	"colend/crypto"
	"colend/native/rebalance"
)

// RebalanceModule exposes the auto-rebalance policy surface over RPC.
type RebalanceModule struct {
	node *core.Node
}

func NewRebalanceModule(node *core.Node) *RebalanceModule {
	return &RebalanceModule{node: node}
}

func (m *RebalanceModule) available() *ModuleError {
	if m == nil || m.node == nil {
		return moduleUnavailable("rebalance")
	}
	return nil
}

func (m *RebalanceModule) SetConfig(owner crypto.Address, cfg *rebalance.Config) (*rebalance.Config, *ModuleError) {
	if err := m.available(); err != nil {
		return nil, err
	}
	stored, err := m.node.SetRebalanceConfig(owner, cfg)
	if err != nil {
		return nil, wrapError(err)
	}
	return stored, nil
}

// Config returns the stored policy, or nil when the owner never installed one.
func (m *RebalanceModule) Config(owner crypto.Address) (*rebalance.Config, *ModuleError) {
	if err := m.available(); err != nil {
		return nil, err
	}
	cfg, err := m.node.RebalanceConfig(owner)
	if err != nil {
		return nil, wrapError(err)
	}
	return cfg, nil
}

// Trigger evaluates the user's policy immediately.
func (m *RebalanceModule) Trigger(user crypto.Address) (*rebalance.Outcome, *ModuleError) {
	if err := m.available(); err != nil {
		return nil, err
	}
	outcome, err := m.node.MaybeRebalance(user)
	if err != nil {
		return nil, wrapError(err)
	}
	return outcome, nil
}
