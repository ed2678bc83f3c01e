package events

import (
	"math/big"
	"strconv"

	"colend/core/types"
	"colend/crypto"
)

const (
	// TypeLendingDeposit is emitted when collateral is supplied to a market.
	TypeLendingDeposit = "lending.deposit"
	// TypeLendingWithdraw is emitted when collateral is withdrawn from a market.
	TypeLendingWithdraw = "lending.withdraw"
	// TypeLendingBorrow is emitted when a borrow is drawn against collateral.
	TypeLendingBorrow = "lending.borrow"
	// TypeLendingRepay is emitted when outstanding debt is repaid.
	TypeLendingRepay = "lending.repay"
	// TypeLendingAccrual is emitted when interest is folded into a position's
	// outstanding debt.
	TypeLendingAccrual = "lending.accrual"
	// TypeLendingLiquidation is emitted when an unhealthy position is
	// partially closed by a liquidator.
	TypeLendingLiquidation = "lending.liquidation"
	// TypeLendingReservesWithdrawn is emitted when accumulated protocol
	// reserves leave the pool.
	TypeLendingReservesWithdrawn = "lending.reserves.withdrawn"
)

// LendingDeposit captures a completed collateral deposit.
type LendingDeposit struct {
	User       crypto.Address
	Symbol     string
	Amount     *big.Int
	NewDeposit *big.Int
	Timestamp  uint64
}

// EventType implements the Event interface.
func (LendingDeposit) EventType() string { return TypeLendingDeposit }

// Event renders the wire representation.
func (e LendingDeposit) Event() *types.Event {
	return &types.Event{
		Type: TypeLendingDeposit,
		Attributes: map[string]string{
			"user":       addrString(e.User),
			"symbol":     normalizeAsset(e.Symbol),
			"amount":     bigString(e.Amount),
			"newDeposit": bigString(e.NewDeposit),
			"timestamp":  strconv.FormatUint(e.Timestamp, 10),
		},
	}
}

// LendingWithdraw captures a completed collateral withdrawal.
type LendingWithdraw struct {
	User       crypto.Address
	Symbol     string
	Amount     *big.Int
	NewDeposit *big.Int
	Timestamp  uint64
}

// EventType implements the Event interface.
func (LendingWithdraw) EventType() string { return TypeLendingWithdraw }

// Event renders the wire representation.
func (e LendingWithdraw) Event() *types.Event {
	return &types.Event{
		Type: TypeLendingWithdraw,
		Attributes: map[string]string{
			"user":       addrString(e.User),
			"symbol":     normalizeAsset(e.Symbol),
			"amount":     bigString(e.Amount),
			"newDeposit": bigString(e.NewDeposit),
			"timestamp":  strconv.FormatUint(e.Timestamp, 10),
		},
	}
}

// LendingBorrow captures a completed borrow. Recipient differs from User for
// delegated borrows.
type LendingBorrow struct {
	User      crypto.Address
	Recipient crypto.Address
	Symbol    string
	Amount    *big.Int
	NewDebt   *big.Int
	Timestamp uint64
}

// EventType implements the Event interface.
func (LendingBorrow) EventType() string { return TypeLendingBorrow }

// Event renders the wire representation.
func (e LendingBorrow) Event() *types.Event {
	return &types.Event{
		Type: TypeLendingBorrow,
		Attributes: map[string]string{
			"user":      addrString(e.User),
			"recipient": addrString(e.Recipient),
			"symbol":    normalizeAsset(e.Symbol),
			"amount":    bigString(e.Amount),
			"newDebt":   bigString(e.NewDebt),
			"timestamp": strconv.FormatUint(e.Timestamp, 10),
		},
	}
}

// LendingRepay captures a completed repayment. Applied may be lower than the
// requested amount when the debt was smaller than the request.
type LendingRepay struct {
	User      crypto.Address
	Payer     crypto.Address
	Symbol    string
	Requested *big.Int
	Applied   *big.Int
	NewDebt   *big.Int
	Timestamp uint64
}

// EventType implements the Event interface.
func (LendingRepay) EventType() string { return TypeLendingRepay }

// Event renders the wire representation.
func (e LendingRepay) Event() *types.Event {
	return &types.Event{
		Type: TypeLendingRepay,
		Attributes: map[string]string{
			"user":      addrString(e.User),
			"payer":     addrString(e.Payer),
			"symbol":    normalizeAsset(e.Symbol),
			"requested": bigString(e.Requested),
			"applied":   bigString(e.Applied),
			"newDebt":   bigString(e.NewDebt),
			"timestamp": strconv.FormatUint(e.Timestamp, 10),
		},
	}
}

// LendingAccrual captures interest folded into a position.
type LendingAccrual struct {
	User      crypto.Address
	Symbol    string
	Accrued   *big.Int
	NewDebt   *big.Int
	Elapsed   uint64
	Timestamp uint64
}

// EventType implements the Event interface.
func (LendingAccrual) EventType() string { return TypeLendingAccrual }

// Event renders the wire representation.
func (e LendingAccrual) Event() *types.Event {
	return &types.Event{
		Type: TypeLendingAccrual,
		Attributes: map[string]string{
			"user":      addrString(e.User),
			"symbol":    normalizeAsset(e.Symbol),
			"accrued":   bigString(e.Accrued),
			"newDebt":   bigString(e.NewDebt),
			"elapsed":   strconv.FormatUint(e.Elapsed, 10),
			"timestamp": strconv.FormatUint(e.Timestamp, 10),
		},
	}
}

// LendingLiquidation captures a completed liquidation.
type LendingLiquidation struct {
	Liquidator       crypto.Address
	Borrower         crypto.Address
	DebtSymbol       string
	CollateralSymbol string
	Repaid           *big.Int
	Seized           *big.Int
	RemainingDebt    *big.Int
	Timestamp        uint64
}

// EventType implements the Event interface.
func (LendingLiquidation) EventType() string { return TypeLendingLiquidation }

// Event renders the wire representation.
func (e LendingLiquidation) Event() *types.Event {
	return &types.Event{
		Type: TypeLendingLiquidation,
		Attributes: map[string]string{
			"liquidator":       addrString(e.Liquidator),
			"borrower":         addrString(e.Borrower),
			"debtSymbol":       normalizeAsset(e.DebtSymbol),
			"collateralSymbol": normalizeAsset(e.CollateralSymbol),
			"repaid":           bigString(e.Repaid),
			"seized":           bigString(e.Seized),
			"remainingDebt":    bigString(e.RemainingDebt),
			"timestamp":        strconv.FormatUint(e.Timestamp, 10),
		},
	}
}

// LendingReservesWithdrawn captures a reserve withdrawal by an operator.
type LendingReservesWithdrawn struct {
	Caller    crypto.Address
	Recipient crypto.Address
	Symbol    string
	Amount    *big.Int
	Remaining *big.Int
	Timestamp uint64
}

// EventType implements the Event interface.
func (LendingReservesWithdrawn) EventType() string { return TypeLendingReservesWithdrawn }

// Event renders the wire representation.
func (e LendingReservesWithdrawn) Event() *types.Event {
	return &types.Event{
		Type: TypeLendingReservesWithdrawn,
		Attributes: map[string]string{
			"caller":    addrString(e.Caller),
			"recipient": addrString(e.Recipient),
			"symbol":    normalizeAsset(e.Symbol),
			"amount":    bigString(e.Amount),
			"remaining": bigString(e.Remaining),
			"timestamp": strconv.FormatUint(e.Timestamp, 10),
		},
	}
}
