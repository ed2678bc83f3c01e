package rebalance

import (
	"math/big"
	"time"

	"colend/core/events"
	"colend/core/pricing"
	"colend/crypto"
	"colend/native/delegation"
	"colend/native/lending"
	nativecommon "colend/native/common"
)

const moduleName = nativecommon.ModuleRebalance

var basisPoints = big.NewInt(10_000)

// engineState is the persistence surface the engine depends on. It is
// satisfied by *state.Manager.
type engineState interface {
	RebalanceConfig(addr crypto.Address) (*Config, error)
	RebalancePutConfig(cfg *Config) error
}

// Ledger is the lending surface corrective actions run against.
type Ledger interface {
	Snapshot(user crypto.Address) (*lending.RiskSnapshot, error)
	UserPositions(user crypto.Address) ([]*lending.Position, error)
	RepayFrom(payer, user crypto.Address, symbol string, amount *big.Int) (*big.Int, *lending.Position, error)
}

// Delegations exposes the stake-draw surface for delegated repayments.
type Delegations interface {
	ListByDelegator(addr crypto.Address) ([]*delegation.Delegation, error)
	DrawStake(id [32]byte, amount *big.Int) (*delegation.Delegation, error)
	StakeVault() crypto.Address
}

// Balances reports liquid balances for the repay-from-wallet action.
type Balances interface {
	BalanceOf(addr crypto.Address, symbol string) (*big.Int, error)
}

// Engine evaluates per-user rebalance policies on demand. There is no
// internal timer; an external trigger calls MaybeRebalance.
type Engine struct {
	state       engineState
	ledger      Ledger
	delegations Delegations
	balances    Balances
	feed        pricing.PriceFeed
	emitter     events.Emitter
	pauses      nativecommon.PauseView
	nowFunc     func() time.Time
}

// NewEngine constructs an unwired engine.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFunc: time.Now,
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetLedger wires the lending engine.
func (e *Engine) SetLedger(ledger Ledger) { e.ledger = ledger }

// SetDelegations wires the delegation engine for stake-funded repayments.
func (e *Engine) SetDelegations(d Delegations) { e.delegations = d }

// SetBalances wires the liquid balance lookup.
func (e *Engine) SetBalances(b Balances) { e.balances = b }

// SetPriceFeed wires the oracle feed used to size corrective actions.
func (e *Engine) SetPriceFeed(feed pricing.PriceFeed) { e.feed = feed }

// SetEmitter configures the event sink. A nil emitter falls back to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetPauses wires the module pause switchboard.
func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

// SetNowFunc overrides the engine clock. Intended for tests and the node's
// shared clock.
func (e *Engine) SetNowFunc(now func() time.Time) {
	if now != nil {
		e.nowFunc = now
	}
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.ledger == nil {
		return errNilLedger
	}
	if e.feed == nil {
		return errNilFeed
	}
	return nil
}

func (e *Engine) now() uint64 {
	return uint64(e.nowFunc().UTC().Unix())
}

// SetConfig installs or updates the owner's rebalance policy. The stored
// LastRebalance timestamp survives updates.
func (e *Engine) SetConfig(owner crypto.Address, cfg *Config) (*Config, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, ErrInvalidConfig
	}
	stored := cfg.Clone()
	stored.Owner = owner
	if err := stored.Validate(); err != nil {
		return nil, err
	}
	existing, err := e.state.RebalanceConfig(owner)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		stored.LastRebalance = existing.LastRebalance
	} else {
		stored.LastRebalance = 0
	}
	if err := e.state.RebalancePutConfig(stored); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.RebalanceConfigUpdated{
		Owner:            owner,
		Enabled:          stored.Enabled,
		TargetHealthBps:  stored.TargetHealthBps,
		TriggerHealthBps: stored.TriggerHealthBps,
		CooldownSeconds:  stored.CooldownSeconds,
		Timestamp:        e.now(),
	})
	return stored.Clone(), nil
}

// Config returns the owner's stored policy, or nil when none exists.
func (e *Engine) Config(owner crypto.Address) (*Config, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	cfg, err := e.state.RebalanceConfig(owner)
	if err != nil {
		return nil, err
	}
	return cfg.Clone(), nil
}

// MaybeRebalance evaluates the user's policy and applies corrective actions
// until the target health factor is met or nothing further is possible.
// Partial progress counts as success; the run only errors when the position
// is unhealthy and no action could be applied at all.
func (e *Engine) MaybeRebalance(user crypto.Address) (*Outcome, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}

	cfg, err := e.state.RebalanceConfig(user)
	if err != nil {
		return nil, err
	}
	if cfg == nil || !cfg.Enabled {
		return &Outcome{Skipped: SkipDisabled}, nil
	}
	now := e.now()
	if cfg.CooldownSeconds > 0 && cfg.LastRebalance > 0 {
		// A clock reading behind the last run counts as inside the
		// cooldown; unsigned elapsed must not underflow.
		if now < cfg.LastRebalance || now-cfg.LastRebalance < cfg.CooldownSeconds {
			return &Outcome{Skipped: SkipCooldown}, nil
		}
	}

	snapshot, err := e.ledger.Snapshot(user)
	if err != nil {
		return nil, err
	}
	if snapshot.Infinite {
		return &Outcome{Skipped: SkipNoDebt}, nil
	}
	trigger := new(big.Int).SetUint64(cfg.TriggerHealthBps)
	if snapshot.HealthFactorBps.Cmp(trigger) >= 0 {
		return &Outcome{Skipped: SkipHealthy, HealthBefore: new(big.Int).Set(snapshot.HealthFactorBps)}, nil
	}

	outcome := &Outcome{HealthBefore: new(big.Int).Set(snapshot.HealthFactorBps)}

	// Debt value must fall to adjustedCollateral * 10000 / target for the
	// health factor to reach the target.
	maxDebtValue := new(big.Int).Mul(snapshot.AdjustedCollateral, basisPoints)
	maxDebtValue.Quo(maxDebtValue, new(big.Int).SetUint64(cfg.TargetHealthBps))
	reduction := new(big.Int).Sub(snapshot.DebtValue, maxDebtValue)

	positions, err := e.ledger.UserPositions(user)
	if err != nil {
		return nil, err
	}

	// (a) repay from the user's liquid balance, in deterministic symbol
	// order.
	for _, pos := range positions {
		if reduction.Sign() <= 0 {
			break
		}
		if pos.BorrowAmount.Sign() == 0 {
			continue
		}
		price, err := e.feed.Price(pos.Symbol)
		if err != nil {
			return nil, err
		}
		balance := big.NewInt(0)
		if e.balances != nil {
			if balance, err = e.balances.BalanceOf(user, pos.Symbol); err != nil {
				return nil, err
			}
		}
		amount := repayTarget(reduction, price, pos.BorrowAmount, balance)
		if amount.Sign() == 0 {
			continue
		}
		applied, _, err := e.ledger.RepayFrom(user, user, pos.Symbol, amount)
		if err != nil {
			return nil, err
		}
		e.recordAction(outcome, user, ActionRepay, pos.Symbol, applied, now)
		reduction.Sub(reduction, new(big.Int).Mul(applied, price))
	}

	// (b) delegated repayment: draw remaining stake from the user's active
	// delegations out of the stake vault.
	if reduction.Sign() > 0 && e.delegations != nil {
		delegationsList, err := e.delegations.ListByDelegator(user)
		if err != nil {
			return nil, err
		}
		for _, pos := range positions {
			if reduction.Sign() <= 0 {
				break
			}
			view, err := e.debtView(user, pos.Symbol)
			if err != nil {
				return nil, err
			}
			if view.Sign() == 0 {
				continue
			}
			price, err := e.feed.Price(pos.Symbol)
			if err != nil {
				return nil, err
			}
			for _, d := range delegationsList {
				if reduction.Sign() <= 0 || view.Sign() == 0 {
					break
				}
				if d.Status != delegation.StatusActive || d.Symbol != pos.Symbol {
					continue
				}
				if d.UsedBorrow == nil || d.UsedBorrow.Sign() == 0 {
					continue
				}
				if d.StakeAmount == nil || d.StakeAmount.Sign() == 0 {
					continue
				}
				amount := repayTarget(reduction, price, view, d.StakeAmount)
				if amount.Sign() == 0 {
					continue
				}
				if _, err := e.delegations.DrawStake(d.ID, amount); err != nil {
					return nil, err
				}
				applied, _, err := e.ledger.RepayFrom(e.delegations.StakeVault(), user, pos.Symbol, amount)
				if err != nil {
					return nil, err
				}
				e.recordAction(outcome, user, ActionStakeRepay, pos.Symbol, applied, now)
				reduction.Sub(reduction, new(big.Int).Mul(applied, price))
				view.Sub(view, applied)
			}
		}
	}

	if len(outcome.Actions) == 0 {
		return nil, ErrNoRebalanceAction
	}

	outcome.Applied = true
	cfg.LastRebalance = now
	if err := e.state.RebalancePutConfig(cfg); err != nil {
		return nil, err
	}

	after, err := e.ledger.Snapshot(user)
	if err != nil {
		return nil, err
	}
	if after.Infinite {
		outcome.TargetReached = true
	} else {
		outcome.HealthAfter = new(big.Int).Set(after.HealthFactorBps)
		outcome.TargetReached = after.HealthFactorBps.Cmp(new(big.Int).SetUint64(cfg.TargetHealthBps)) >= 0
	}

	e.emitter.Emit(events.RebalanceExecuted{
		Owner:         user,
		Actions:       uint64(len(outcome.Actions)),
		HealthBefore:  outcome.HealthBefore,
		HealthAfter:   outcome.HealthAfter,
		TargetReached: outcome.TargetReached,
		Timestamp:     now,
	})
	return outcome, nil
}

func (e *Engine) recordAction(outcome *Outcome, user crypto.Address, kind ActionKind, symbol string, amount *big.Int, now uint64) {
	outcome.Actions = append(outcome.Actions, Action{
		Kind:   kind,
		Symbol: symbol,
		Amount: new(big.Int).Set(amount),
	})
	e.emitter.Emit(events.RebalanceAction{
		Owner:     user,
		Kind:      string(kind),
		Symbol:    symbol,
		Repaid:    new(big.Int).Set(amount),
		Timestamp: now,
	})
}

// debtView returns the user's current outstanding debt in symbol, as the
// ledger sees it right now.
func (e *Engine) debtView(user crypto.Address, symbol string) (*big.Int, error) {
	positions, err := e.ledger.UserPositions(user)
	if err != nil {
		return nil, err
	}
	for _, pos := range positions {
		if pos.Symbol == symbol {
			return new(big.Int).Set(pos.BorrowAmount), nil
		}
	}
	return big.NewInt(0), nil
}

// repayTarget sizes a repayment: enough units to cover the remaining value
// reduction (rounded up), capped by the outstanding debt and the available
// funds.
func repayTarget(reduction, price, debt, available *big.Int) *big.Int {
	if reduction.Sign() <= 0 || price.Sign() <= 0 {
		return big.NewInt(0)
	}
	needed := new(big.Int).Add(reduction, new(big.Int).Sub(price, big.NewInt(1)))
	needed.Quo(needed, price)
	if needed.Cmp(debt) > 0 {
		needed = new(big.Int).Set(debt)
	}
	if available != nil && needed.Cmp(available) > 0 {
		needed = new(big.Int).Set(available)
	}
	if needed.Sign() < 0 {
		return big.NewInt(0)
	}
	return needed
}
