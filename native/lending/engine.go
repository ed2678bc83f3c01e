package lending

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"colend/core/events"
	"colend/core/pricing"
	"colend/crypto"
	nativecommon "colend/native/common"
)

const moduleName = nativecommon.ModuleLending

// engineState is the narrow persistence surface the engine depends on. It is
// satisfied by *state.Manager.
type engineState interface {
	LendingPosition(addr crypto.Address, symbol string) (*Position, error)
	LendingPutPosition(pos *Position) error
	LendingTokenConfig(symbol string) (*TokenConfig, error)
	LendingPutTokenConfig(cfg *TokenConfig) error
	LendingTokenSymbols() ([]string, error)
	LendingTotals(symbol string) (*AggregateTotals, error)
	LendingPutTotals(symbol string, totals *AggregateTotals) error
	LendingUserAssets(addr crypto.Address) ([]string, error)
	HasRole(role string, addr []byte) bool
}

// TokenAdapter is the value-transfer surface backing the ledger. Transfers run
// strictly after internal bookkeeping; a failed transfer aborts the enclosing
// state transition.
type TokenAdapter interface {
	BalanceOf(addr crypto.Address, symbol string) (*big.Int, error)
	Transfer(from, to crypto.Address, symbol string, amount *big.Int) error
}

// Engine orchestrates the ledger's state transitions: deposits, withdrawals,
// borrows, repayments, liquidations, and reserve management.
type Engine struct {
	state          engineState
	adapter        TokenAdapter
	feed           pricing.PriceFeed
	emitter        events.Emitter
	pauses         nativecommon.PauseView
	nowFunc        func() time.Time
	closeFactorBps uint64
	vault          crypto.Address
}

// NewEngine constructs an engine with the default close factor and the
// module's deterministic vault address. Persistence, transfers, and pricing
// are wired afterwards.
func NewEngine() *Engine {
	return &Engine{
		emitter:        events.NoopEmitter{},
		nowFunc:        time.Now,
		closeFactorBps: DefaultCloseFactorBps,
		vault:          crypto.ModuleAddress(moduleName),
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetAdapter wires the token accounting adapter used for value transfers.
func (e *Engine) SetAdapter(adapter TokenAdapter) { e.adapter = adapter }

// SetPriceFeed wires the oracle feed used for valuations.
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

// SetCloseFactor configures the liquidation close factor in basis points.
// Values outside (0, 10000] keep the default.
func (e *Engine) SetCloseFactor(bps uint64) {
	if bps == 0 || bps > basisPointsUint {
		return
	}
	e.closeFactorBps = bps
}

// VaultAddress returns the module account holding pooled deposits.
func (e *Engine) VaultAddress() crypto.Address { return e.vault }

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

func validAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// requireConfig resolves the config for symbol regardless of the supported
// flag. Unsupporting an asset freezes new exposure but keeps positions
// servable.
func (e *Engine) requireConfig(symbol string) (*TokenConfig, error) {
	cfg, err := e.state.LendingTokenConfig(symbol)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedToken, symbol)
	}
	return cfg, nil
}

func (e *Engine) requireSupported(symbol string) (*TokenConfig, error) {
	cfg, err := e.requireConfig(symbol)
	if err != nil {
		return nil, err
	}
	if !cfg.Supported {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedToken, symbol)
	}
	return cfg, nil
}

func (e *Engine) loadPosition(addr crypto.Address, symbol string) (*Position, error) {
	pos, err := e.state.LendingPosition(addr, symbol)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		pos = &Position{Address: addr, Symbol: symbol}
	}
	pos.normalize()
	return pos, nil
}

func (e *Engine) loadTotals(symbol string) (*AggregateTotals, error) {
	totals, err := e.state.LendingTotals(symbol)
	if err != nil {
		return nil, err
	}
	if totals == nil {
		totals = &AggregateTotals{}
	}
	totals.normalize()
	return totals, nil
}

// accrue folds the interest owed since the position's last accrual into its
// debt and the pool aggregates. The accrued claim grows deposits and reserves
// alongside borrows, so pure accrual never breaks asset-level solvency.
func (e *Engine) accrue(pos *Position, cfg *TokenConfig, totals *AggregateTotals, now uint64) error {
	elapsed := uint64(0)
	if now > pos.LastAccrual {
		elapsed = now - pos.LastAccrual
	}
	pos.LastAccrual = now
	if elapsed == 0 || pos.BorrowAmount.Sign() == 0 || cfg.InterestRateBps == 0 {
		return nil
	}
	accrued, err := accruedInterest(pos.BorrowAmount, cfg.InterestRateBps, elapsed)
	if err != nil {
		return err
	}
	if accrued.Sign() == 0 {
		return nil
	}
	if pos.BorrowAmount, err = checkedAdd(pos.BorrowAmount, accrued); err != nil {
		return err
	}
	if totals.TotalBorrows, err = checkedAdd(totals.TotalBorrows, accrued); err != nil {
		return err
	}
	if totals.TotalDeposits, err = checkedAdd(totals.TotalDeposits, accrued); err != nil {
		return err
	}
	if totals.TotalReserves, err = checkedAdd(totals.TotalReserves, accrued); err != nil {
		return err
	}
	e.emitter.Emit(events.LendingAccrual{
		User:      pos.Address,
		Symbol:    pos.Symbol,
		Accrued:   new(big.Int).Set(accrued),
		NewDebt:   new(big.Int).Set(pos.BorrowAmount),
		Elapsed:   elapsed,
		Timestamp: now,
	})
	return nil
}

// accrueView folds interest into a cloned position without persisting.
func accrueView(pos *Position, cfg *TokenConfig, now uint64) (*Position, error) {
	view := pos.Clone()
	view.normalize()
	if cfg == nil || now <= view.LastAccrual || view.BorrowAmount.Sign() == 0 {
		return view, nil
	}
	accrued, err := accruedInterest(view.BorrowAmount, cfg.InterestRateBps, now-view.LastAccrual)
	if err != nil {
		return nil, err
	}
	view.BorrowAmount = new(big.Int).Add(view.BorrowAmount, accrued)
	return view, nil
}

// Deposit moves amount of symbol from the user's transferable balance into
// their collateral position.
func (e *Engine) Deposit(user crypto.Address, symbol string, amount *big.Int) (*Position, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if err := validAmount(amount); err != nil {
		return nil, err
	}
	symbol = normalizeSymbol(symbol)
	cfg, err := e.requireSupported(symbol)
	if err != nil {
		return nil, err
	}

	now := e.now()
	pos, err := e.loadPosition(user, symbol)
	if err != nil {
		return nil, err
	}
	totals, err := e.loadTotals(symbol)
	if err != nil {
		return nil, err
	}
	if err := e.accrue(pos, cfg, totals, now); err != nil {
		return nil, err
	}

	balance, err := e.adapter.BalanceOf(user, symbol)
	if err != nil {
		return nil, err
	}
	if balance.Cmp(amount) < 0 {
		return nil, ErrInsufficientBalance
	}

	if pos.DepositAmount, err = checkedAdd(pos.DepositAmount, amount); err != nil {
		return nil, err
	}
	if totals.TotalDeposits, err = checkedAdd(totals.TotalDeposits, amount); err != nil {
		return nil, err
	}
	if err := e.state.LendingPutPosition(pos); err != nil {
		return nil, err
	}
	if err := e.state.LendingPutTotals(symbol, totals); err != nil {
		return nil, err
	}

	// Interactions run last: bookkeeping above is final before value moves.
	if err := e.adapter.Transfer(user, e.vault, symbol, amount); err != nil {
		return nil, err
	}

	e.emitter.Emit(events.LendingDeposit{
		User:       user,
		Symbol:     symbol,
		Amount:     new(big.Int).Set(amount),
		NewDeposit: new(big.Int).Set(pos.DepositAmount),
		Timestamp:  now,
	})
	return pos.Clone(), nil
}

// Withdraw releases amount of symbol from the user's collateral back to their
// transferable balance. The withdrawal fails when remaining collateral could
// no longer back outstanding debt at the collateral factor.
func (e *Engine) Withdraw(user crypto.Address, symbol string, amount *big.Int) (*Position, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if err := validAmount(amount); err != nil {
		return nil, err
	}
	symbol = normalizeSymbol(symbol)
	cfg, err := e.requireConfig(symbol)
	if err != nil {
		return nil, err
	}

	now := e.now()
	pos, err := e.loadPosition(user, symbol)
	if err != nil {
		return nil, err
	}
	totals, err := e.loadTotals(symbol)
	if err != nil {
		return nil, err
	}
	if err := e.accrue(pos, cfg, totals, now); err != nil {
		return nil, err
	}

	if pos.DepositAmount.Cmp(amount) < 0 {
		return nil, ErrInsufficientDeposit
	}
	remainingDeposit := new(big.Int).Sub(pos.DepositAmount, amount)

	indebted, err := e.hasDebt(user, now)
	if err != nil {
		return nil, err
	}
	if indebted {
		val, err := e.valuation(user, now, symbol, remainingDeposit)
		if err != nil {
			return nil, err
		}
		if val.debtValue.Cmp(val.borrowCapacity) > 0 {
			return nil, ErrUndercollateralized
		}
	}

	newDeposits, err := checkedSub(totals.TotalDeposits, amount)
	if err != nil {
		return nil, err
	}
	if newDeposits.Cmp(totals.TotalBorrows) < 0 {
		return nil, ErrInsufficientLiquidity
	}

	pos.DepositAmount = remainingDeposit
	totals.TotalDeposits = newDeposits
	if err := e.state.LendingPutPosition(pos); err != nil {
		return nil, err
	}
	if err := e.state.LendingPutTotals(symbol, totals); err != nil {
		return nil, err
	}

	if err := e.adapter.Transfer(e.vault, user, symbol, amount); err != nil {
		return nil, err
	}

	e.emitter.Emit(events.LendingWithdraw{
		User:       user,
		Symbol:     symbol,
		Amount:     new(big.Int).Set(amount),
		NewDeposit: new(big.Int).Set(pos.DepositAmount),
		Timestamp:  now,
	})
	return pos.Clone(), nil
}

// Borrow draws amount of symbol against the user's collateral, paying out to
// the user themselves.
func (e *Engine) Borrow(user crypto.Address, symbol string, amount *big.Int) (*Position, error) {
	return e.BorrowFor(user, user, symbol, amount)
}

// BorrowFor draws amount of symbol against user's collateral and pays the
// proceeds to recipient. Delegated borrowing routes through here.
func (e *Engine) BorrowFor(user, recipient crypto.Address, symbol string, amount *big.Int) (*Position, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if err := validAmount(amount); err != nil {
		return nil, err
	}
	if recipient.IsZero() {
		recipient = user
	}
	symbol = normalizeSymbol(symbol)
	cfg, err := e.requireSupported(symbol)
	if err != nil {
		return nil, err
	}

	now := e.now()
	pos, err := e.loadPosition(user, symbol)
	if err != nil {
		return nil, err
	}
	totals, err := e.loadTotals(symbol)
	if err != nil {
		return nil, err
	}
	if err := e.accrue(pos, cfg, totals, now); err != nil {
		return nil, err
	}

	newBorrows, err := checkedAdd(totals.TotalBorrows, amount)
	if err != nil {
		return nil, err
	}
	if newBorrows.Cmp(totals.TotalDeposits) > 0 {
		return nil, ErrInsufficientLiquidity
	}

	val, err := e.valuation(user, now, "", nil)
	if err != nil {
		return nil, err
	}
	price, err := e.feedPrice(symbol)
	if err != nil {
		return nil, err
	}
	addedDebt, err := checkedMul(amount, price)
	if err != nil {
		return nil, err
	}
	newDebtValue, err := checkedAdd(val.debtValue, addedDebt)
	if err != nil {
		return nil, err
	}
	if newDebtValue.Cmp(val.borrowCapacity) > 0 {
		return nil, ErrExceedsCollateralCapacity
	}

	if pos.BorrowAmount, err = checkedAdd(pos.BorrowAmount, amount); err != nil {
		return nil, err
	}
	totals.TotalBorrows = newBorrows
	if err := e.state.LendingPutPosition(pos); err != nil {
		return nil, err
	}
	if err := e.state.LendingPutTotals(symbol, totals); err != nil {
		return nil, err
	}

	if err := e.adapter.Transfer(e.vault, recipient, symbol, amount); err != nil {
		return nil, err
	}

	e.emitter.Emit(events.LendingBorrow{
		User:      user,
		Recipient: recipient,
		Symbol:    symbol,
		Amount:    new(big.Int).Set(amount),
		NewDebt:   new(big.Int).Set(pos.BorrowAmount),
		Timestamp: now,
	})
	return pos.Clone(), nil
}

// Repay pays down the user's debt from their own balance. The applied amount
// caps at the outstanding debt; overpaying is not an error.
func (e *Engine) Repay(user crypto.Address, symbol string, amount *big.Int) (*big.Int, *Position, error) {
	if err := validAmount(amount); err != nil {
		return nil, nil, err
	}
	return e.repayFrom(user, user, symbol, amount, false)
}

// RepayFull clears the user's entire debt including interest accrued up to
// this instant.
func (e *Engine) RepayFull(user crypto.Address, symbol string) (*big.Int, *Position, error) {
	return e.repayFrom(user, user, symbol, nil, true)
}

// RepayFrom pays down user's debt with funds drawn from payer. The rebalancer
// uses this for liquid-balance and stake-funded repayments.
func (e *Engine) RepayFrom(payer, user crypto.Address, symbol string, amount *big.Int) (*big.Int, *Position, error) {
	if err := validAmount(amount); err != nil {
		return nil, nil, err
	}
	return e.repayFrom(payer, user, symbol, amount, false)
}

func (e *Engine) repayFrom(payer, user crypto.Address, symbol string, amount *big.Int, full bool) (*big.Int, *Position, error) {
	if err := e.ready(); err != nil {
		return nil, nil, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, nil, err
	}
	symbol = normalizeSymbol(symbol)
	cfg, err := e.requireConfig(symbol)
	if err != nil {
		return nil, nil, err
	}

	now := e.now()
	pos, err := e.loadPosition(user, symbol)
	if err != nil {
		return nil, nil, err
	}
	totals, err := e.loadTotals(symbol)
	if err != nil {
		return nil, nil, err
	}
	if err := e.accrue(pos, cfg, totals, now); err != nil {
		return nil, nil, err
	}

	if pos.BorrowAmount.Sign() == 0 {
		return nil, nil, ErrNoOutstandingDebt
	}
	applied := new(big.Int).Set(pos.BorrowAmount)
	if !full {
		applied = new(big.Int).Set(minBig(amount, pos.BorrowAmount))
	}

	balance, err := e.adapter.BalanceOf(payer, symbol)
	if err != nil {
		return nil, nil, err
	}
	if balance.Cmp(applied) < 0 {
		return nil, nil, ErrInsufficientBalance
	}

	if pos.BorrowAmount, err = checkedSub(pos.BorrowAmount, applied); err != nil {
		return nil, nil, err
	}
	if totals.TotalBorrows, err = checkedSub(totals.TotalBorrows, applied); err != nil {
		return nil, nil, err
	}
	if err := e.state.LendingPutPosition(pos); err != nil {
		return nil, nil, err
	}
	if err := e.state.LendingPutTotals(symbol, totals); err != nil {
		return nil, nil, err
	}

	if err := e.adapter.Transfer(payer, e.vault, symbol, applied); err != nil {
		return nil, nil, err
	}

	requested := new(big.Int).Set(applied)
	if !full && amount != nil {
		requested = new(big.Int).Set(amount)
	}
	e.emitter.Emit(events.LendingRepay{
		User:      user,
		Payer:     payer,
		Symbol:    symbol,
		Requested: requested,
		Applied:   new(big.Int).Set(applied),
		NewDebt:   new(big.Int).Set(pos.BorrowAmount),
		Timestamp: now,
	})
	return applied, pos.Clone(), nil
}

// SetTokenConfig installs or updates the risk parameters for an asset. Only
// lending admins may call it.
func (e *Engine) SetTokenConfig(caller crypto.Address, cfg *TokenConfig) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if !e.state.HasRole(nativecommon.RoleLendingAdmin, caller.Bytes()) {
		return ErrUnauthorized
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	stored := cfg.Clone()
	stored.Symbol = normalizeSymbol(stored.Symbol)
	return e.state.LendingPutTokenConfig(stored)
}

// WithdrawReserves pays accrued protocol reserves out of the pool. Only
// lending admins may call it, and the pool must stay solvent afterwards.
func (e *Engine) WithdrawReserves(caller, recipient crypto.Address, symbol string, amount *big.Int) (*AggregateTotals, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if !e.state.HasRole(nativecommon.RoleLendingAdmin, caller.Bytes()) {
		return nil, ErrUnauthorized
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if err := validAmount(amount); err != nil {
		return nil, err
	}
	if recipient.IsZero() {
		return nil, ErrInvalidAmount
	}
	symbol = normalizeSymbol(symbol)
	if _, err := e.requireConfig(symbol); err != nil {
		return nil, err
	}

	totals, err := e.loadTotals(symbol)
	if err != nil {
		return nil, err
	}
	if totals.TotalReserves.Cmp(amount) < 0 {
		return nil, ErrInsufficientReserves
	}
	newDeposits, err := checkedSub(totals.TotalDeposits, amount)
	if err != nil {
		return nil, err
	}
	if newDeposits.Cmp(totals.TotalBorrows) < 0 {
		return nil, ErrInsufficientLiquidity
	}

	totals.TotalReserves = new(big.Int).Sub(totals.TotalReserves, amount)
	totals.TotalDeposits = newDeposits
	if err := e.state.LendingPutTotals(symbol, totals); err != nil {
		return nil, err
	}

	if err := e.adapter.Transfer(e.vault, recipient, symbol, amount); err != nil {
		return nil, err
	}

	e.emitter.Emit(events.LendingReservesWithdrawn{
		Caller:    caller,
		Recipient: recipient,
		Symbol:    symbol,
		Amount:    new(big.Int).Set(amount),
		Remaining: new(big.Int).Set(totals.TotalReserves),
		Timestamp: e.now(),
	})
	return totals.Clone(), nil
}

// PositionWithInterest returns the user's position with interest folded in as
// of now, without persisting the accrual.
func (e *Engine) PositionWithInterest(user crypto.Address, symbol string) (*Position, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	symbol = normalizeSymbol(symbol)
	cfg, err := e.state.LendingTokenConfig(symbol)
	if err != nil {
		return nil, err
	}
	pos, err := e.loadPosition(user, symbol)
	if err != nil {
		return nil, err
	}
	return accrueView(pos, cfg, e.now())
}

// UserPositions returns every position the user has touched, with interest
// folded in as of now, sorted by symbol.
func (e *Engine) UserPositions(user crypto.Address) ([]*Position, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	symbols, err := e.state.LendingUserAssets(user)
	if err != nil {
		return nil, err
	}
	now := e.now()
	positions := make([]*Position, 0, len(symbols))
	for _, symbol := range symbols {
		cfg, err := e.state.LendingTokenConfig(symbol)
		if err != nil {
			return nil, err
		}
		pos, err := e.loadPosition(user, symbol)
		if err != nil {
			return nil, err
		}
		view, err := accrueView(pos, cfg, now)
		if err != nil {
			return nil, err
		}
		positions = append(positions, view)
	}
	return positions, nil
}

// Market returns the config and aggregates for one asset.
func (e *Engine) Market(symbol string) (*Market, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	symbol = normalizeSymbol(symbol)
	cfg, err := e.requireConfig(symbol)
	if err != nil {
		return nil, err
	}
	totals, err := e.loadTotals(symbol)
	if err != nil {
		return nil, err
	}
	return &Market{Config: *cfg.Clone(), Totals: *totals.Clone()}, nil
}

// Markets returns every configured market sorted by symbol.
func (e *Engine) Markets() ([]*Market, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	symbols, err := e.state.LendingTokenSymbols()
	if err != nil {
		return nil, err
	}
	markets := make([]*Market, 0, len(symbols))
	for _, symbol := range symbols {
		market, err := e.Market(symbol)
		if err != nil {
			return nil, err
		}
		markets = append(markets, market)
	}
	return markets, nil
}

func (e *Engine) feedPrice(symbol string) (*big.Int, error) {
	if e.feed == nil {
		return nil, errNilFeed
	}
	return e.feed.Price(symbol)
}
