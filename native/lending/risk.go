package lending

import (
	"math/big"

	"colend/core/events"
	"colend/crypto"
	nativecommon "colend/native/common"
)

// accountValuation aggregates a user's oracle-priced exposure across every
// asset they have touched. All values are USD at the oracle's fixed-point
// scale.
type accountValuation struct {
	collateralValue    *big.Int
	adjustedCollateral *big.Int
	borrowCapacity     *big.Int
	debtValue          *big.Int
}

// valuation walks the user's touched assets in sorted order and prices each
// side of the position as of now. When overrideSymbol is set, that symbol's
// deposit is replaced by overrideDeposit so withdrawals can price the
// hypothetical post-withdraw state before committing it.
func (e *Engine) valuation(user crypto.Address, now uint64, overrideSymbol string, overrideDeposit *big.Int) (*accountValuation, error) {
	symbols, err := e.state.LendingUserAssets(user)
	if err != nil {
		return nil, err
	}
	val := &accountValuation{
		collateralValue:    big.NewInt(0),
		adjustedCollateral: big.NewInt(0),
		borrowCapacity:     big.NewInt(0),
		debtValue:          big.NewInt(0),
	}
	for _, symbol := range symbols {
		cfg, err := e.requireConfig(symbol)
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
		deposit := view.DepositAmount
		if symbol == overrideSymbol && overrideDeposit != nil {
			deposit = overrideDeposit
		}
		if deposit.Sign() == 0 && view.BorrowAmount.Sign() == 0 {
			continue
		}
		price, err := e.feedPrice(symbol)
		if err != nil {
			return nil, err
		}
		if deposit.Sign() > 0 {
			depositValue, err := checkedMul(deposit, price)
			if err != nil {
				return nil, err
			}
			if val.collateralValue, err = checkedAdd(val.collateralValue, depositValue); err != nil {
				return nil, err
			}
			adjusted, err := bpsShare(depositValue, cfg.LiquidationThresholdBps)
			if err != nil {
				return nil, err
			}
			if val.adjustedCollateral, err = checkedAdd(val.adjustedCollateral, adjusted); err != nil {
				return nil, err
			}
			capacity, err := bpsShare(depositValue, cfg.CollateralFactorBps)
			if err != nil {
				return nil, err
			}
			if val.borrowCapacity, err = checkedAdd(val.borrowCapacity, capacity); err != nil {
				return nil, err
			}
		}
		if view.BorrowAmount.Sign() > 0 {
			debtValue, err := checkedMul(view.BorrowAmount, price)
			if err != nil {
				return nil, err
			}
			if val.debtValue, err = checkedAdd(val.debtValue, debtValue); err != nil {
				return nil, err
			}
		}
	}
	return val, nil
}

// hasDebt reports whether the user owes anything in any asset as of now.
func (e *Engine) hasDebt(user crypto.Address, now uint64) (bool, error) {
	symbols, err := e.state.LendingUserAssets(user)
	if err != nil {
		return false, err
	}
	for _, symbol := range symbols {
		pos, err := e.loadPosition(user, symbol)
		if err != nil {
			return false, err
		}
		if pos.BorrowAmount.Sign() > 0 {
			return true, nil
		}
	}
	return false, nil
}

func snapshotFrom(user crypto.Address, val *accountValuation) (*RiskSnapshot, error) {
	snapshot := &RiskSnapshot{
		Address:            user,
		CollateralValue:    new(big.Int).Set(val.collateralValue),
		AdjustedCollateral: new(big.Int).Set(val.adjustedCollateral),
		BorrowCapacity:     new(big.Int).Set(val.borrowCapacity),
		DebtValue:          new(big.Int).Set(val.debtValue),
	}
	if val.debtValue.Sign() == 0 {
		snapshot.Infinite = true
		return snapshot, nil
	}
	factor, err := mulDiv(val.adjustedCollateral, basisPoints, val.debtValue)
	if err != nil {
		return nil, err
	}
	snapshot.HealthFactorBps = factor
	snapshot.Liquidatable = factor.Cmp(basisPoints) < 0
	return snapshot, nil
}

// Snapshot prices the user's account and derives the health factor as of now,
// without persisting the interest fold.
func (e *Engine) Snapshot(user crypto.Address) (*RiskSnapshot, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	val, err := e.valuation(user, e.now(), "", nil)
	if err != nil {
		return nil, err
	}
	return snapshotFrom(user, val)
}

// Liquidate lets a liquidator repay part of an unhealthy borrower's debt in
// exchange for seized collateral plus the configured penalty bonus. The role
// check runs before any position data is read.
func (e *Engine) Liquidate(liquidator, borrower crypto.Address, debtSymbol, collateralSymbol string, repayAmount *big.Int) (*RiskSnapshot, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if !e.state.HasRole(nativecommon.RoleLiquidator, liquidator.Bytes()) {
		return nil, ErrUnauthorized
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if err := validAmount(repayAmount); err != nil {
		return nil, err
	}
	if liquidator.Compare(borrower) == 0 {
		return nil, ErrSelfLiquidation
	}
	debtSymbol = normalizeSymbol(debtSymbol)
	collateralSymbol = normalizeSymbol(collateralSymbol)
	debtCfg, err := e.requireConfig(debtSymbol)
	if err != nil {
		return nil, err
	}
	collCfg, err := e.requireConfig(collateralSymbol)
	if err != nil {
		return nil, err
	}

	now := e.now()
	debtPos, err := e.loadPosition(borrower, debtSymbol)
	if err != nil {
		return nil, err
	}
	debtTotals, err := e.loadTotals(debtSymbol)
	if err != nil {
		return nil, err
	}
	if err := e.accrue(debtPos, debtCfg, debtTotals, now); err != nil {
		return nil, err
	}
	if debtPos.BorrowAmount.Sign() == 0 {
		return nil, ErrNoOutstandingDebt
	}

	collPos := debtPos
	collTotals := debtTotals
	if collateralSymbol != debtSymbol {
		if collPos, err = e.loadPosition(borrower, collateralSymbol); err != nil {
			return nil, err
		}
		if collTotals, err = e.loadTotals(collateralSymbol); err != nil {
			return nil, err
		}
		if err := e.accrue(collPos, collCfg, collTotals, now); err != nil {
			return nil, err
		}
	}

	val, err := e.valuation(borrower, now, "", nil)
	if err != nil {
		return nil, err
	}
	before, err := snapshotFrom(borrower, val)
	if err != nil {
		return nil, err
	}
	if before.Healthy() {
		return nil, ErrPositionHealthy
	}

	maxRepay, err := bpsShare(debtPos.BorrowAmount, e.closeFactorBps)
	if err != nil {
		return nil, err
	}
	if repayAmount.Cmp(maxRepay) > 0 {
		return nil, ErrExceedsCloseFactor
	}

	debtPrice, err := e.feedPrice(debtSymbol)
	if err != nil {
		return nil, err
	}
	collPrice, err := e.feedPrice(collateralSymbol)
	if err != nil {
		return nil, err
	}
	// seizure = repay * debtPrice * (10000 + penalty) / (collPrice * 10000),
	// floored so rounding always favours the protocol.
	repayValue, err := checkedMul(repayAmount, debtPrice)
	if err != nil {
		return nil, err
	}
	bonus := new(big.Int).SetUint64(basisPointsUint + collCfg.LiquidationPenaltyBps)
	numerator, err := checkedMul(repayValue, bonus)
	if err != nil {
		return nil, err
	}
	denominator, err := checkedMul(collPrice, basisPoints)
	if err != nil {
		return nil, err
	}
	seizure := new(big.Int).Quo(numerator, denominator)
	if collPos.DepositAmount.Cmp(seizure) < 0 {
		return nil, ErrInsufficientCollateralToSeize
	}

	balance, err := e.adapter.BalanceOf(liquidator, debtSymbol)
	if err != nil {
		return nil, err
	}
	if balance.Cmp(repayAmount) < 0 {
		return nil, ErrInsufficientBalance
	}

	newCollDeposits, err := checkedSub(collTotals.TotalDeposits, seizure)
	if err != nil {
		return nil, err
	}
	if newCollDeposits.Cmp(collTotals.TotalBorrows) < 0 {
		return nil, ErrInsufficientLiquidity
	}

	if debtPos.BorrowAmount, err = checkedSub(debtPos.BorrowAmount, repayAmount); err != nil {
		return nil, err
	}
	if debtTotals.TotalBorrows, err = checkedSub(debtTotals.TotalBorrows, repayAmount); err != nil {
		return nil, err
	}
	if collPos.DepositAmount, err = checkedSub(collPos.DepositAmount, seizure); err != nil {
		return nil, err
	}
	collTotals.TotalDeposits = newCollDeposits

	if err := e.state.LendingPutPosition(debtPos); err != nil {
		return nil, err
	}
	if err := e.state.LendingPutTotals(debtSymbol, debtTotals); err != nil {
		return nil, err
	}
	if collateralSymbol != debtSymbol {
		if err := e.state.LendingPutPosition(collPos); err != nil {
			return nil, err
		}
		if err := e.state.LendingPutTotals(collateralSymbol, collTotals); err != nil {
			return nil, err
		}
	}

	// Interactions run last: the liquidator funds the repay, then receives
	// the seized collateral out of the vault.
	if err := e.adapter.Transfer(liquidator, e.vault, debtSymbol, repayAmount); err != nil {
		return nil, err
	}
	if seizure.Sign() > 0 {
		if err := e.adapter.Transfer(e.vault, liquidator, collateralSymbol, seizure); err != nil {
			return nil, err
		}
	}

	e.emitter.Emit(events.LendingLiquidation{
		Liquidator:       liquidator,
		Borrower:         borrower,
		DebtSymbol:       debtSymbol,
		CollateralSymbol: collateralSymbol,
		Repaid:           new(big.Int).Set(repayAmount),
		Seized:           new(big.Int).Set(seizure),
		RemainingDebt:    new(big.Int).Set(debtPos.BorrowAmount),
		Timestamp:        now,
	})

	after, err := e.valuation(borrower, now, "", nil)
	if err != nil {
		return nil, err
	}
	return snapshotFrom(borrower, after)
}
