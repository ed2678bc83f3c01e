package events

import (
	"math/big"
	"strconv"

	"colend/core/types"
	"colend/crypto"
)

const (
	// TypeRebalanceConfigUpdated is emitted when an owner installs or updates
	// their rebalance policy.
	TypeRebalanceConfigUpdated = "rebalance.config.updated"
	// TypeRebalanceAction is emitted for every corrective action applied
	// during a rebalance run.
	TypeRebalanceAction = "rebalance.action"
	// TypeRebalanceExecuted is emitted once per rebalance run that applied at
	// least one corrective action.
	TypeRebalanceExecuted = "rebalance.executed"
)

// RebalanceConfigUpdated captures a rebalance policy change.
type RebalanceConfigUpdated struct {
	Owner            crypto.Address
	Enabled          bool
	TargetHealthBps  uint64
	TriggerHealthBps uint64
	CooldownSeconds  uint64
	Timestamp        uint64
}

// EventType implements the Event interface.
func (RebalanceConfigUpdated) EventType() string { return TypeRebalanceConfigUpdated }

// Event renders the wire representation.
func (e RebalanceConfigUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeRebalanceConfigUpdated,
		Attributes: map[string]string{
			"owner":            addrString(e.Owner),
			"enabled":          strconv.FormatBool(e.Enabled),
			"targetHealthBps":  strconv.FormatUint(e.TargetHealthBps, 10),
			"triggerHealthBps": strconv.FormatUint(e.TriggerHealthBps, 10),
			"cooldownSeconds":  strconv.FormatUint(e.CooldownSeconds, 10),
			"timestamp":        strconv.FormatUint(e.Timestamp, 10),
		},
	}
}

// RebalanceAction captures one corrective step applied during a rebalance run.
type RebalanceAction struct {
	Owner     crypto.Address
	Kind      string
	Symbol    string
	Repaid    *big.Int
	Timestamp uint64
}

// EventType implements the Event interface.
func (RebalanceAction) EventType() string { return TypeRebalanceAction }

// Event renders the wire representation.
func (e RebalanceAction) Event() *types.Event {
	return &types.Event{
		Type: TypeRebalanceAction,
		Attributes: map[string]string{
			"owner":     addrString(e.Owner),
			"kind":      e.Kind,
			"symbol":    normalizeAsset(e.Symbol),
			"repaid":    bigString(e.Repaid),
			"timestamp": strconv.FormatUint(e.Timestamp, 10),
		},
	}
}

// RebalanceExecuted summarises a rebalance run that made progress.
type RebalanceExecuted struct {
	Owner         crypto.Address
	Actions       uint64
	HealthBefore  *big.Int
	HealthAfter   *big.Int
	TargetReached bool
	Timestamp     uint64
}

// EventType implements the Event interface.
func (RebalanceExecuted) EventType() string { return TypeRebalanceExecuted }

// Event renders the wire representation.
func (e RebalanceExecuted) Event() *types.Event {
	return &types.Event{
		Type: TypeRebalanceExecuted,
		Attributes: map[string]string{
			"owner":         addrString(e.Owner),
			"actions":       strconv.FormatUint(e.Actions, 10),
			"healthBefore":  bigString(e.HealthBefore),
			"healthAfter":   bigString(e.HealthAfter),
			"targetReached": strconv.FormatBool(e.TargetReached),
			"timestamp":     strconv.FormatUint(e.Timestamp, 10),
		},
	}
}
