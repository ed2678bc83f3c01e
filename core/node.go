package core

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"time"

	"colend/core/events"
	"colend/core/pricing"
	"colend/core/state"
	"colend/core/types"
	"colend/crypto"
	"colend/native/bank"
	"colend/native/delegation"
	"colend/native/lending"
	"colend/native/rebalance"
	"colend/storage"
	nativecommon "colend/native/common"
)

// EventSink receives committed events. Sinks must not block; slow consumers
// drop rather than stall the ledger.
type EventSink interface {
	Deliver(evt *types.Event)
}

// Pauses is the module switchboard loaded from configuration.
type Pauses struct {
	Lending    bool
	Delegation bool
	Rebalance  bool
}

// IsPaused implements nativecommon.PauseView.
func (p Pauses) IsPaused(module string) bool {
	switch module {
	case nativecommon.ModuleLending:
		return p.Lending
	case nativecommon.ModuleDelegation:
		return p.Delegation
	case nativecommon.ModuleRebalance:
		return p.Rebalance
	default:
		return false
	}
}

// Node owns the ledger database and serialises every mutating operation
// behind a single writer lock. Each operation runs against a copy-on-write
// overlay: commit on success, discard on any failure, so callers never
// observe a partially-applied operation. Events are published only after the
// overlay commits.
type Node struct {
	mu sync.RWMutex

	db       storage.Database
	feed     *pricing.ManualFeed
	verifier *pricing.ProofVerifier
	pauses   Pauses

	closeFactorBps uint64

	nowFunc func() time.Time
	// lastTimestamp enforces a non-decreasing operation clock even if the
	// wall clock steps backwards.
	lastTimestamp uint64

	sinkMu      sync.RWMutex
	sinks       []EventSink
	subscribers map[uint64]chan *types.Event
	nextSubID   uint64
}

// NodeOption customises node construction.
type NodeOption func(*Node)

// WithCloseFactor overrides the liquidation close factor in basis points.
func WithCloseFactor(bps uint64) NodeOption {
	return func(n *Node) {
		if bps > 0 && bps <= 10_000 {
			n.closeFactorBps = bps
		}
	}
}

// WithPauses installs the module pause switchboard.
func WithPauses(p Pauses) NodeOption {
	return func(n *Node) { n.pauses = p }
}

// WithProofVerifier installs the oracle proof verifier. Without one the node
// rejects signed quote submissions.
func WithProofVerifier(v *pricing.ProofVerifier) NodeOption {
	return func(n *Node) { n.verifier = v }
}

// WithClock overrides the node clock. Intended for tests.
func WithClock(now func() time.Time) NodeOption {
	return func(n *Node) {
		if now != nil {
			n.nowFunc = now
		}
	}
}

// NewNode constructs a node over the given database and price feed.
func NewNode(db storage.Database, feed *pricing.ManualFeed, opts ...NodeOption) *Node {
	node := &Node{
		db:             db,
		feed:           feed,
		closeFactorBps: lending.DefaultCloseFactorBps,
		nowFunc:        time.Now,
		subscribers:    make(map[uint64]chan *types.Event),
	}
	for _, opt := range opts {
		opt(node)
	}
	return node
}

// PriceFeed returns the node's oracle feed.
func (n *Node) PriceFeed() *pricing.ManualFeed { return n.feed }

func (n *Node) now() time.Time {
	now := n.nowFunc()
	ts := uint64(now.UTC().Unix())
	if ts < n.lastTimestamp {
		return time.Unix(int64(n.lastTimestamp), 0).UTC()
	}
	return now
}

// opEnv bundles the engines wired to one state view.
type opEnv struct {
	manager     *state.Manager
	bank        *bank.Adapter
	lending     *lending.Engine
	delegations *delegation.Engine
	rebalancer  *rebalance.Engine
}

func (n *Node) buildEnv(kv state.KV, recorder events.Emitter) *opEnv {
	manager := state.NewManager(kv)
	adapter := bank.NewAdapter(manager)

	ledger := lending.NewEngine()
	ledger.SetState(manager)
	ledger.SetAdapter(adapter)
	ledger.SetPriceFeed(n.feed)
	ledger.SetEmitter(recorder)
	ledger.SetPauses(n.pauses)
	ledger.SetNowFunc(n.now)
	ledger.SetCloseFactor(n.closeFactorBps)

	delegations := delegation.NewEngine()
	delegations.SetState(manager)
	delegations.SetAdapter(adapter)
	delegations.SetLedger(ledger)
	delegations.SetEmitter(recorder)
	delegations.SetPauses(n.pauses)
	delegations.SetNowFunc(n.now)

	rebalancer := rebalance.NewEngine()
	rebalancer.SetState(manager)
	rebalancer.SetLedger(ledger)
	rebalancer.SetDelegations(delegations)
	rebalancer.SetBalances(adapter)
	rebalancer.SetPriceFeed(n.feed)
	rebalancer.SetEmitter(recorder)
	rebalancer.SetPauses(n.pauses)
	rebalancer.SetNowFunc(n.now)

	return &opEnv{
		manager:     manager,
		bank:        adapter,
		lending:     ledger,
		delegations: delegations,
		rebalancer:  rebalancer,
	}
}

// withMutableState runs fn inside a write transaction. On success the overlay
// commits atomically and buffered events publish; on any error the overlay is
// discarded and the committed state stays byte-for-byte unchanged.
func (n *Node) withMutableState(fn func(env *opEnv) error) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	overlay := state.NewOverlay(n.db)
	recorder := &events.Recorder{}
	env := n.buildEnv(overlay, recorder)

	if err := fn(env); err != nil {
		overlay.Discard()
		return err
	}
	if err := overlay.Commit(); err != nil {
		return err
	}
	n.lastTimestamp = uint64(n.nowFunc().UTC().Unix())
	n.publish(recorder.Drain())
	return nil
}

// withState runs fn against committed state under a read lock.
func (n *Node) withState(fn func(env *opEnv) error) error {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return fn(n.buildEnv(n.db, events.NoopEmitter{}))
}

// --- Ledger operations ---

// Deposit supplies collateral to the user's position.
func (n *Node) Deposit(user crypto.Address, symbol string, amount *big.Int) (*lending.Position, error) {
	var pos *lending.Position
	err := n.withMutableState(func(env *opEnv) error {
		var err error
		pos, err = env.lending.Deposit(user, symbol, amount)
		return err
	})
	return pos, err
}

// Withdraw releases collateral back to the user's transferable balance.
func (n *Node) Withdraw(user crypto.Address, symbol string, amount *big.Int) (*lending.Position, error) {
	var pos *lending.Position
	err := n.withMutableState(func(env *opEnv) error {
		var err error
		pos, err = env.lending.Withdraw(user, symbol, amount)
		return err
	})
	return pos, err
}

// Borrow draws debt against the user's collateral.
func (n *Node) Borrow(user crypto.Address, symbol string, amount *big.Int) (*lending.Position, error) {
	var pos *lending.Position
	err := n.withMutableState(func(env *opEnv) error {
		var err error
		pos, err = env.lending.Borrow(user, symbol, amount)
		return err
	})
	return pos, err
}

// Repay pays down the user's debt; the applied amount caps at the
// outstanding debt.
func (n *Node) Repay(user crypto.Address, symbol string, amount *big.Int) (*big.Int, *lending.Position, error) {
	var (
		applied *big.Int
		pos     *lending.Position
	)
	err := n.withMutableState(func(env *opEnv) error {
		var err error
		applied, pos, err = env.lending.Repay(user, symbol, amount)
		return err
	})
	return applied, pos, err
}

// RepayFull clears the user's entire debt including freshly accrued interest.
func (n *Node) RepayFull(user crypto.Address, symbol string) (*big.Int, *lending.Position, error) {
	var (
		applied *big.Int
		pos     *lending.Position
	)
	err := n.withMutableState(func(env *opEnv) error {
		var err error
		applied, pos, err = env.lending.RepayFull(user, symbol)
		return err
	})
	return applied, pos, err
}

// Liquidate closes part of an unhealthy borrower's position.
func (n *Node) Liquidate(liquidator, borrower crypto.Address, debtSymbol, collateralSymbol string, repayAmount *big.Int) (*lending.RiskSnapshot, error) {
	var snapshot *lending.RiskSnapshot
	err := n.withMutableState(func(env *opEnv) error {
		var err error
		snapshot, err = env.lending.Liquidate(liquidator, borrower, debtSymbol, collateralSymbol, repayAmount)
		return err
	})
	return snapshot, err
}

// WithdrawReserves pays accrued protocol reserves to a recipient.
func (n *Node) WithdrawReserves(caller, recipient crypto.Address, symbol string, amount *big.Int) (*lending.AggregateTotals, error) {
	var totals *lending.AggregateTotals
	err := n.withMutableState(func(env *opEnv) error {
		var err error
		totals, err = env.lending.WithdrawReserves(caller, recipient, symbol, amount)
		return err
	})
	return totals, err
}

// SetTokenConfig installs or updates an asset's risk parameters.
func (n *Node) SetTokenConfig(caller crypto.Address, cfg *lending.TokenConfig) error {
	return n.withMutableState(func(env *opEnv) error {
		return env.lending.SetTokenConfig(caller, cfg)
	})
}

// RiskSnapshot prices the user's account as of now.
func (n *Node) RiskSnapshot(user crypto.Address) (*lending.RiskSnapshot, error) {
	var snapshot *lending.RiskSnapshot
	err := n.withState(func(env *opEnv) error {
		var err error
		snapshot, err = env.lending.Snapshot(user)
		return err
	})
	return snapshot, err
}

// Position returns the user's position in symbol with interest folded in.
func (n *Node) Position(user crypto.Address, symbol string) (*lending.Position, error) {
	var pos *lending.Position
	err := n.withState(func(env *opEnv) error {
		var err error
		pos, err = env.lending.PositionWithInterest(user, symbol)
		return err
	})
	return pos, err
}

// Positions returns every position the user has touched.
func (n *Node) Positions(user crypto.Address) ([]*lending.Position, error) {
	var positions []*lending.Position
	err := n.withState(func(env *opEnv) error {
		var err error
		positions, err = env.lending.UserPositions(user)
		return err
	})
	return positions, err
}

// Market returns one asset's config and pool aggregates.
func (n *Node) Market(symbol string) (*lending.Market, error) {
	var market *lending.Market
	err := n.withState(func(env *opEnv) error {
		var err error
		market, err = env.lending.Market(symbol)
		return err
	})
	return market, err
}

// Markets returns every configured market.
func (n *Node) Markets() ([]*lending.Market, error) {
	var markets []*lending.Market
	err := n.withState(func(env *opEnv) error {
		var err error
		markets, err = env.lending.Markets()
		return err
	})
	return markets, err
}

// LendingUsers returns every address holding a position. Export tooling
// iterates it.
func (n *Node) LendingUsers() ([]crypto.Address, error) {
	var users []crypto.Address
	err := n.withState(func(env *opEnv) error {
		var err error
		users, err = env.manager.LendingUsers()
		return err
	})
	return users, err
}

// --- Delegations ---

// CreateDelegation opens a stake-backed delegation.
func (n *Node) CreateDelegation(delegator, delegate crypto.Address, symbol string, kind delegation.Kind, maxBorrow *big.Int, thresholdBps uint64) (*delegation.Delegation, error) {
	var d *delegation.Delegation
	err := n.withMutableState(func(env *opEnv) error {
		var err error
		d, err = env.delegations.Create(delegator, delegate, symbol, kind, maxBorrow, thresholdBps)
		return err
	})
	return d, err
}

// RevokeDelegation terminates a delegation and returns the remaining stake.
func (n *Node) RevokeDelegation(delegator crypto.Address, id [32]byte) (*delegation.Delegation, error) {
	var d *delegation.Delegation
	err := n.withMutableState(func(env *opEnv) error {
		var err error
		d, err = env.delegations.Revoke(delegator, id)
		return err
	})
	return d, err
}

// DelegatedBorrow draws a borrow against the delegator's collateral, paid to
// the delegate.
func (n *Node) DelegatedBorrow(delegate, delegator crypto.Address, symbol string, amount *big.Int) (*delegation.Delegation, error) {
	var d *delegation.Delegation
	err := n.withMutableState(func(env *opEnv) error {
		var err error
		d, err = env.delegations.DelegatedBorrow(delegate, delegator, symbol, amount)
		return err
	})
	return d, err
}

// Delegation returns the delegation by ID.
func (n *Node) Delegation(id [32]byte) (*delegation.Delegation, error) {
	var d *delegation.Delegation
	err := n.withState(func(env *opEnv) error {
		var err error
		d, err = env.delegations.Get(id)
		return err
	})
	return d, err
}

// DelegationsByDelegator lists the delegator's delegations.
func (n *Node) DelegationsByDelegator(delegator crypto.Address) ([]*delegation.Delegation, error) {
	var list []*delegation.Delegation
	err := n.withState(func(env *opEnv) error {
		var err error
		list, err = env.delegations.ListByDelegator(delegator)
		return err
	})
	return list, err
}

// --- Auto-rebalance ---

// SetRebalanceConfig installs or updates the owner's rebalance policy.
func (n *Node) SetRebalanceConfig(owner crypto.Address, cfg *rebalance.Config) (*rebalance.Config, error) {
	var stored *rebalance.Config
	err := n.withMutableState(func(env *opEnv) error {
		var err error
		stored, err = env.rebalancer.SetConfig(owner, cfg)
		return err
	})
	return stored, err
}

// RebalanceConfig returns the owner's stored policy, or nil when none exists.
func (n *Node) RebalanceConfig(owner crypto.Address) (*rebalance.Config, error) {
	var cfg *rebalance.Config
	err := n.withState(func(env *opEnv) error {
		var err error
		cfg, err = env.rebalancer.Config(owner)
		return err
	})
	return cfg, err
}

// MaybeRebalance evaluates the user's policy and applies corrective actions.
func (n *Node) MaybeRebalance(user crypto.Address) (*rebalance.Outcome, error) {
	var outcome *rebalance.Outcome
	err := n.withMutableState(func(env *opEnv) error {
		var err error
		outcome, err = env.rebalancer.MaybeRebalance(user)
		return err
	})
	return outcome, err
}

// --- Bank ---

// BalanceOf returns the transferable balance for (addr, symbol).
func (n *Node) BalanceOf(addr crypto.Address, symbol string) (*big.Int, error) {
	var balance *big.Int
	err := n.withState(func(env *opEnv) error {
		var err error
		balance, err = env.bank.BalanceOf(addr, symbol)
		return err
	})
	return balance, err
}

// Transfer moves funds between accounts.
func (n *Node) Transfer(from, to crypto.Address, symbol string, amount *big.Int) error {
	return n.withMutableState(func(env *opEnv) error {
		return env.bank.Transfer(from, to, symbol, amount)
	})
}

// Approve grants a spending allowance.
func (n *Node) Approve(owner, spender crypto.Address, symbol string, amount *big.Int) error {
	return n.withMutableState(func(env *opEnv) error {
		return env.bank.Approve(owner, spender, symbol, amount)
	})
}

// Allowance returns the remaining allowance from owner to spender.
func (n *Node) Allowance(owner, spender crypto.Address, symbol string) (*big.Int, error) {
	var allowance *big.Int
	err := n.withState(func(env *opEnv) error {
		var err error
		allowance, err = env.bank.Allowance(owner, spender, symbol)
		return err
	})
	return allowance, err
}

// Mint credits freshly issued funds to an account. Only the lending admin
// authority may mint.
func (n *Node) Mint(authority, to crypto.Address, symbol string, amount *big.Int) (*big.Int, error) {
	var balance *big.Int
	err := n.withMutableState(func(env *opEnv) error {
		var err error
		balance, err = env.bank.Mint(authority, to, symbol, amount)
		return err
	})
	return balance, err
}

// --- Roles ---

// GrantRole adds addr to role through the administrative path.
func (n *Node) GrantRole(role string, addr crypto.Address) error {
	return n.withMutableState(func(env *opEnv) error {
		return env.manager.SetRole(role, addr.Bytes())
	})
}

// RevokeRole removes addr from role.
func (n *Node) RevokeRole(role string, addr crypto.Address) error {
	return n.withMutableState(func(env *opEnv) error {
		return env.manager.UnsetRole(role, addr.Bytes())
	})
}

// HasRole reports role membership against committed state.
func (n *Node) HasRole(role string, addr crypto.Address) bool {
	var has bool
	_ = n.withState(func(env *opEnv) error {
		has = env.manager.HasRole(role, addr.Bytes())
		return nil
	})
	return has
}

// --- Oracle ---

// SetPrice records a bare administrative quote.
func (n *Node) SetPrice(symbol string, price *big.Int, provider string) error {
	if err := n.feed.SetQuote(symbol, price, provider); err != nil {
		return err
	}
	n.publishOne(events.PriceUpdated{
		Symbol:    symbol,
		Price:     new(big.Int).Set(price),
		Provider:  provider,
		Timestamp: uint64(n.nowFunc().UTC().Unix()),
	})
	return nil
}

// SubmitPriceProof verifies a signed quote against the oracle authority and
// provider allow list before accepting it into the feed.
func (n *Node) SubmitPriceProof(proof *pricing.PriceProof) error {
	if n.verifier == nil {
		return errors.New("core: oracle proof verifier not configured")
	}
	if err := n.verifier.Verify(proof); err != nil {
		return err
	}
	return n.SetPrice(proof.Symbol, proof.Price, proof.Provider)
}

// --- Event fanout ---

// AddSink registers a fire-and-forget event sink.
func (n *Node) AddSink(sink EventSink) {
	if sink == nil {
		return
	}
	n.sinkMu.Lock()
	defer n.sinkMu.Unlock()
	n.sinks = append(n.sinks, sink)
}

// Subscribe returns a channel of committed events. The subscription drops
// events rather than block when the consumer falls behind, and closes when
// ctx is cancelled.
func (n *Node) Subscribe(ctx context.Context) (<-chan *types.Event, func()) {
	ch := make(chan *types.Event, 64)
	n.sinkMu.Lock()
	id := n.nextSubID
	n.nextSubID++
	n.subscribers[id] = ch
	n.sinkMu.Unlock()

	cancel := func() {
		n.sinkMu.Lock()
		if sub, ok := n.subscribers[id]; ok {
			delete(n.subscribers, id)
			close(sub)
		}
		n.sinkMu.Unlock()
	}
	go func() {
		<-ctx.Done()
		cancel()
	}()
	return ch, cancel
}

func (n *Node) publish(batch []events.Event) {
	for _, evt := range batch {
		n.publishOne(evt)
	}
}

// wireEvent is implemented by every typed event payload.
type wireEvent interface {
	Event() *types.Event
}

func (n *Node) publishOne(evt events.Event) {
	wired, ok := evt.(wireEvent)
	if !ok {
		return
	}
	wire := wired.Event()

	n.sinkMu.RLock()
	defer n.sinkMu.RUnlock()
	for _, sink := range n.sinks {
		sink.Deliver(wire)
	}
	for _, sub := range n.subscribers {
		select {
		case sub <- wire:
		default:
			// Slow subscriber: drop instead of blocking the ledger.
		}
	}
}

// Close releases the underlying database.
func (n *Node) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.db.Close()
}
