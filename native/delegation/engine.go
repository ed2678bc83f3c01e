package delegation

import (
	"fmt"
	"math/big"
	"sort"
	"strings"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"colend/core/events"
	"colend/crypto"
	"colend/native/lending"
	nativecommon "colend/native/common"
)

const moduleName = nativecommon.ModuleDelegation

var basisPoints = big.NewInt(10_000)

// engineState is the persistence surface the engine depends on. It is
// satisfied by *state.Manager.
type engineState interface {
	DelegationGet(id [32]byte) (*Delegation, error)
	DelegationPut(d *Delegation) error
	DelegationsByDelegator(addr crypto.Address) ([]*Delegation, error)
	DelegationConsumeNonce(addr crypto.Address) (uint64, error)
	LendingTokenConfig(symbol string) (*lending.TokenConfig, error)
	HasRole(role string, addr []byte) bool
}

// TokenAdapter moves value for stake funding and release. TransferFrom spends
// the owner's allowance granted to the spender.
type TokenAdapter interface {
	Transfer(from, to crypto.Address, symbol string, amount *big.Int) error
	TransferFrom(spender, owner, to crypto.Address, symbol string, amount *big.Int) error
}

// Ledger is the borrowing surface delegated draws forward to.
type Ledger interface {
	BorrowFor(user, recipient crypto.Address, symbol string, amount *big.Int) (*lending.Position, error)
}

// Engine manages stake-backed delegations and routes delegated borrows into
// the ledger on the delegator's behalf.
type Engine struct {
	state   engineState
	adapter TokenAdapter
	ledger  Ledger
	emitter events.Emitter
	pauses  nativecommon.PauseView
	nowFunc func() time.Time
	vault   crypto.Address
}

// NewEngine constructs an engine bound to the module's stake vault.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFunc: time.Now,
		vault:   crypto.ModuleAddress(moduleName),
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetAdapter wires the token accounting adapter.
func (e *Engine) SetAdapter(adapter TokenAdapter) { e.adapter = adapter }

// SetLedger wires the lending engine delegated borrows execute against.
func (e *Engine) SetLedger(ledger Ledger) { e.ledger = ledger }

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

// StakeVault returns the module account holding locked stakes.
func (e *Engine) StakeVault() crypto.Address { return e.vault }

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.adapter == nil {
		return errNilAdapter
	}
	return nil
}

func (e *Engine) now() uint64 {
	return uint64(e.nowFunc().UTC().Unix())
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func delegationID(delegator, delegate crypto.Address, symbol string, nonce uint64) [32]byte {
	payload := make([]byte, 0, crypto.AddressLength*2+len(symbol)+8)
	payload = append(payload, delegator.Bytes()...)
	payload = append(payload, delegate.Bytes()...)
	payload = append(payload, []byte(symbol)...)
	var nonceBytes [8]byte
	for i := 0; i < 8; i++ {
		nonceBytes[7-i] = byte(nonce >> (8 * i))
	}
	payload = append(payload, nonceBytes[:]...)
	var id [32]byte
	copy(id[:], ethcrypto.Keccak256(payload))
	return id
}

// Create opens a delegation from delegator to delegate and locks the stake
// pulled from the delegate's allowance. The delegation transitions
// Proposed->Active inside this operation; only Active state persists.
func (e *Engine) Create(delegator, delegate crypto.Address, symbol string, kind Kind, maxBorrow *big.Int, thresholdBps uint64) (*Delegation, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if kind != KindIndividual && kind != KindPooled {
		return nil, ErrInvalidKind
	}
	if delegator.Compare(delegate) == 0 {
		return nil, ErrSelfDelegation
	}
	if maxBorrow == nil || maxBorrow.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	symbol = normalizeSymbol(symbol)
	if symbol == "" {
		return nil, fmt.Errorf("%w: symbol required", ErrInvalidAmount)
	}
	cfg, err := e.state.LendingTokenConfig(symbol)
	if err != nil {
		return nil, err
	}
	if cfg == nil || !cfg.Supported {
		return nil, fmt.Errorf("%w: %s", lending.ErrUnsupportedToken, symbol)
	}

	existing, err := e.state.DelegationsByDelegator(delegator)
	if err != nil {
		return nil, err
	}
	for _, d := range existing {
		if d.Status == StatusActive && d.Delegate.Compare(delegate) == 0 {
			return nil, ErrDelegationExists
		}
	}

	nonce, err := e.state.DelegationConsumeNonce(delegator)
	if err != nil {
		return nil, err
	}
	now := e.now()
	stake := new(big.Int).Mul(maxBorrow, big.NewInt(StakeBps))
	stake.Quo(stake, basisPoints)

	d := &Delegation{
		ID:           delegationID(delegator, delegate, symbol, nonce),
		Delegator:    delegator,
		Delegate:     delegate,
		Symbol:       symbol,
		Kind:         kind,
		MaxBorrow:    new(big.Int).Set(maxBorrow),
		UsedBorrow:   big.NewInt(0),
		StakeAmount:  stake,
		ThresholdBps: thresholdBps,
		Status:       StatusProposed,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	d.Status = StatusActive
	if err := e.state.DelegationPut(d); err != nil {
		return nil, err
	}

	// Stake funding is the sole interaction; its failure aborts the whole
	// creation, so no Proposed record ever commits.
	if stake.Sign() > 0 {
		if err := e.adapter.TransferFrom(delegator, delegate, e.vault, symbol, stake); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStakeTransferFailed, err)
		}
	}

	e.emitter.Emit(events.DelegationCreated{
		ID:        d.ID,
		Delegator: delegator,
		Delegate:  delegate,
		Symbol:    symbol,
		Kind:      kind.String(),
		MaxBorrow: new(big.Int).Set(maxBorrow),
		Stake:     new(big.Int).Set(stake),
		Timestamp: now,
	})
	return d.Clone(), nil
}

// Revoke terminates the delegation and returns the remaining stake to the
// delegate. Only the delegator may revoke.
func (e *Engine) Revoke(delegator crypto.Address, id [32]byte) (*Delegation, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	d, err := e.state.DelegationGet(id)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, ErrDelegationNotFound
	}
	if d.Delegator.Compare(delegator) != 0 {
		return nil, ErrUnauthorized
	}
	if d.Status != StatusActive {
		return nil, ErrDelegationRevoked
	}
	d.normalize()

	now := e.now()
	returned := new(big.Int).Set(d.StakeAmount)
	d.Status = StatusRevoked
	d.StakeAmount = big.NewInt(0)
	d.UpdatedAt = now
	if err := e.state.DelegationPut(d); err != nil {
		return nil, err
	}

	if returned.Sign() > 0 {
		if err := e.adapter.Transfer(e.vault, d.Delegate, d.Symbol, returned); err != nil {
			return nil, err
		}
	}

	e.emitter.Emit(events.DelegationRevoked{
		ID:            d.ID,
		Delegator:     d.Delegator,
		Delegate:      d.Delegate,
		Symbol:        d.Symbol,
		StakeReturned: returned,
		Timestamp:     now,
	})
	return d.Clone(), nil
}

// DelegatedBorrow draws amount against the delegator's collateral and pays
// the proceeds to the delegate. The delegate must hold the delegate-manager
// role; the capability check runs before any delegation state is read.
func (e *Engine) DelegatedBorrow(delegate, delegator crypto.Address, symbol string, amount *big.Int) (*Delegation, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if e.ledger == nil {
		return nil, errNilLedger
	}
	if !e.state.HasRole(nativecommon.RoleDelegateManager, delegate.Bytes()) {
		return nil, ErrUnauthorized
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	symbol = normalizeSymbol(symbol)

	d, err := e.activeDelegation(delegator, delegate, symbol)
	if err != nil {
		return nil, err
	}
	if d.Kind == KindPooled {
		return nil, ErrPooledUnsupported
	}

	used := new(big.Int).Add(d.UsedBorrow, amount)
	if used.Cmp(d.MaxBorrow) > 0 {
		return nil, ErrExceedsDelegationCap
	}
	now := e.now()
	d.UsedBorrow = used
	d.UpdatedAt = now
	if err := e.state.DelegationPut(d); err != nil {
		return nil, err
	}

	if _, err := e.ledger.BorrowFor(delegator, delegate, symbol, amount); err != nil {
		return nil, err
	}

	e.emitter.Emit(events.DelegationBorrow{
		ID:         d.ID,
		Delegator:  delegator,
		Delegate:   delegate,
		Symbol:     symbol,
		Amount:     new(big.Int).Set(amount),
		UsedBorrow: new(big.Int).Set(d.UsedBorrow),
		Timestamp:  now,
	})
	return d.Clone(), nil
}

// DrawStake reduces the delegation's remaining stake by amount. The
// auto-rebalancer uses it to account for stake spent defending the
// delegator's position; the matching value transfer out of the stake vault is
// the caller's responsibility.
func (e *Engine) DrawStake(id [32]byte, amount *big.Int) (*Delegation, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	d, err := e.state.DelegationGet(id)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, ErrDelegationNotFound
	}
	if d.Status != StatusActive {
		return nil, ErrDelegationRevoked
	}
	d.normalize()
	if d.StakeAmount.Cmp(amount) < 0 {
		return nil, ErrInsufficientStake
	}
	d.StakeAmount = new(big.Int).Sub(d.StakeAmount, amount)
	d.UpdatedAt = e.now()
	if err := e.state.DelegationPut(d); err != nil {
		return nil, err
	}
	return d.Clone(), nil
}

func (e *Engine) activeDelegation(delegator, delegate crypto.Address, symbol string) (*Delegation, error) {
	list, err := e.state.DelegationsByDelegator(delegator)
	if err != nil {
		return nil, err
	}
	for _, d := range list {
		if d.Status != StatusActive {
			continue
		}
		if d.Delegate.Compare(delegate) != 0 || d.Symbol != symbol {
			continue
		}
		d.normalize()
		return d, nil
	}
	return nil, ErrDelegationNotFound
}

// Get returns the delegation by ID.
func (e *Engine) Get(id [32]byte) (*Delegation, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	d, err := e.state.DelegationGet(id)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, ErrDelegationNotFound
	}
	d.normalize()
	return d.Clone(), nil
}

// ListByDelegator returns the delegator's delegations, active first, then by
// creation time.
func (e *Engine) ListByDelegator(delegator crypto.Address) ([]*Delegation, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	list, err := e.state.DelegationsByDelegator(delegator)
	if err != nil {
		return nil, err
	}
	for _, d := range list {
		d.normalize()
	}
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Status != list[j].Status {
			return list[i].Status == StatusActive
		}
		return list[i].CreatedAt < list[j].CreatedAt
	})
	return list, nil
}
