package rebalance

import (
	"errors"
	"math/big"

	"colend/crypto"
)

var (
	errNilState  = errors.New("rebalance: state not configured")
	errNilLedger = errors.New("rebalance: ledger not configured")
	errNilFeed   = errors.New("rebalance: price feed not configured")

	// ErrInvalidConfig rejects malformed rebalance policies.
	ErrInvalidConfig = errors.New("rebalance: invalid config")
	// ErrNoRebalanceAction signals an unhealthy position with no applicable
	// corrective action. The cooldown timestamp stays untouched.
	ErrNoRebalanceAction = errors.New("rebalance: no corrective action possible")
)

// Config is the per-user auto-rebalance policy. Only the owning user may
// install or update it.
type Config struct {
	Owner crypto.Address
	// Enabled gates the policy; disabled configs make MaybeRebalance a no-op.
	Enabled bool
	// TargetHealthBps is the health factor corrective actions aim for.
	TargetHealthBps uint64
	// TriggerHealthBps is the health factor below which a run engages.
	// Always <= TargetHealthBps.
	TriggerHealthBps uint64
	// CooldownSeconds rate-limits consecutive runs that applied actions.
	CooldownSeconds uint64
	// LastRebalance is the unix timestamp of the last run that applied at
	// least one corrective action.
	LastRebalance uint64
}

// Validate enforces the structural constraints on a policy.
func (c *Config) Validate() error {
	if c == nil {
		return ErrInvalidConfig
	}
	if c.TriggerHealthBps == 0 {
		return ErrInvalidConfig
	}
	if c.TargetHealthBps < c.TriggerHealthBps {
		return ErrInvalidConfig
	}
	return nil
}

// Clone returns a deep copy of the config.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// SkipReason explains why a run made no attempt.
type SkipReason string

const (
	// SkipNone marks a run that engaged.
	SkipNone SkipReason = ""
	// SkipDisabled marks a missing or disabled policy.
	SkipDisabled SkipReason = "disabled"
	// SkipCooldown marks a run inside the cooldown window.
	SkipCooldown SkipReason = "cooldown"
	// SkipNoDebt marks a debt-free account.
	SkipNoDebt SkipReason = "no-debt"
	// SkipHealthy marks a health factor at or above the trigger.
	SkipHealthy SkipReason = "healthy"
)

// ActionKind labels a corrective action.
type ActionKind string

const (
	// ActionRepay repays debt from the owner's liquid balance.
	ActionRepay ActionKind = "repay"
	// ActionStakeRepay repays debt from delegation stake held in the stake
	// vault.
	ActionStakeRepay ActionKind = "stake.repay"
)

// Action records one corrective step applied during a run.
type Action struct {
	Kind   ActionKind
	Symbol string
	Amount *big.Int
}

// Outcome summarises a MaybeRebalance run.
type Outcome struct {
	// Applied reports whether at least one corrective action landed.
	Applied bool
	// Skipped carries the no-op reason when the run never engaged.
	Skipped SkipReason
	// Actions lists the applied corrective steps in order.
	Actions []Action
	// HealthBefore and HealthAfter bracket the run. Nil for skipped runs or
	// debt-free accounts.
	HealthBefore *big.Int
	HealthAfter  *big.Int
	// TargetReached reports whether HealthAfter met the target.
	TargetReached bool
}
