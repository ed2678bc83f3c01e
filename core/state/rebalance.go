package state

import (
	"colend/crypto"
	"colend/native/rebalance"
)

var rebalancePrefix = []byte("rebalance/config:")

func rebalanceKey(addr []byte) []byte {
	return hashKey(rebalancePrefix, addr)
}

type storedRebalanceConfig struct {
	Owner            []byte
	Enabled          bool
	TargetHealthBps  uint64
	TriggerHealthBps uint64
	CooldownSeconds  uint64
	LastRebalance    uint64
}

// RebalanceConfig returns the owner's stored policy, or nil when none exists.
func (m *Manager) RebalanceConfig(addr crypto.Address) (*rebalance.Config, error) {
	var stored storedRebalanceConfig
	ok, err := m.loadRLP(rebalanceKey(addr.Bytes()), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	owner, err := crypto.NewAddress(stored.Owner)
	if err != nil {
		return nil, err
	}
	return &rebalance.Config{
		Owner:            owner,
		Enabled:          stored.Enabled,
		TargetHealthBps:  stored.TargetHealthBps,
		TriggerHealthBps: stored.TriggerHealthBps,
		CooldownSeconds:  stored.CooldownSeconds,
		LastRebalance:    stored.LastRebalance,
	}, nil
}

// RebalancePutConfig stores the owner's policy.
func (m *Manager) RebalancePutConfig(cfg *rebalance.Config) error {
	stored := storedRebalanceConfig{
		Owner:            cfg.Owner.Bytes(),
		Enabled:          cfg.Enabled,
		TargetHealthBps:  cfg.TargetHealthBps,
		TriggerHealthBps: cfg.TriggerHealthBps,
		CooldownSeconds:  cfg.CooldownSeconds,
		LastRebalance:    cfg.LastRebalance,
	}
	return m.storeRLP(rebalanceKey(stored.Owner), &stored)
}
