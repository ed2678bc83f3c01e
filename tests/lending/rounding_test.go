package lending_test

import (
	"errors"
	"math/big"
	"testing"

	"colend/native/lending"
)

// Integer truncation must always favour the pool on seizures and the borrower
// on interest, and never create value out of rounding residue.

func TestInterestFloorsToZeroOnShortWindows(t *testing.T) {
	node, clock := newLedgerNode(t, nil)

	if _, err := node.Deposit(user, "COL", amount(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := node.Borrow(user, "USD", amount(100)); err != nil {
		t.Fatalf("borrow: %v", err)
	}

	// Hourly interest on a 100 debt truncates to zero: each checkpointed
	// repayment of 1 must reduce the debt by exactly 1.
	for i := 0; i < 24; i++ {
		clock.advance(3_600)
		if _, _, err := node.Repay(user, "USD", amount(1)); err != nil {
			t.Fatalf("repay %d: %v", i, err)
		}
	}
	pos, err := node.Position(user, "USD")
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	if pos.BorrowAmount.Cmp(amount(76)) != 0 {
		t.Fatalf("debt = %s, want 76 with zero accrued interest", pos.BorrowAmount)
	}
}

func TestSteppedAccrualNeverExceedsLumpSum(t *testing.T) {
	const day = 86_400

	run := func(steps int) *big.Int {
		node, clock := newLedgerNode(t, nil)
		if _, err := node.Deposit(user, "COL", amount(100)); err != nil {
			t.Fatalf("deposit: %v", err)
		}
		if _, err := node.Borrow(user, "USD", amount(150_000)); err != nil {
			t.Fatalf("borrow: %v", err)
		}
		interval := int64(30 * day / steps)
		for i := 0; i < steps; i++ {
			clock.advance(interval)
			// A dust repayment forces an accrual checkpoint.
			if _, _, err := node.Repay(user, "USD", amount(1)); err != nil {
				t.Fatalf("checkpoint repay: %v", err)
			}
		}
		pos, err := node.Position(user, "USD")
		if err != nil {
			t.Fatalf("position: %v", err)
		}
		// Add back the checkpoint repayments so runs compare like for like.
		return new(big.Int).Add(pos.BorrowAmount, big.NewInt(int64(steps)))
	}

	lump := run(1)
	daily := run(30)
	if daily.Cmp(lump) > 0 {
		t.Fatalf("stepped accrual %s exceeds lump sum %s", daily, lump)
	}
	// 30 days at 500 bps on 150000 is 616 before truncation.
	wantLump := new(big.Int).Add(amount(150_000), amount(616))
	if lump.Cmp(wantLump) != 0 {
		t.Fatalf("lump debt = %s, want %s", lump, wantLump)
	}
}

func TestSeizureFloorsInFavourOfPool(t *testing.T) {
	node, clock := newLedgerNode(t, nil)

	if _, err := node.Deposit(user, "COL", amount(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := node.Borrow(user, "USD", amount(150_000)); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	clock.advance(2_592_000)
	if err := node.SetPrice("COL", amount(1_800), "test"); err != nil {
		t.Fatalf("reprice: %v", err)
	}

	before, err := node.Position(user, "COL")
	if err != nil {
		t.Fatalf("collateral position: %v", err)
	}

	// Seizure = 24692 * 1 * 11000 / (1800 * 10000) = 15.08, floored to 15.
	if _, err := node.Liquidate(liquidator, user, "USD", "COL", amount(24_692)); err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	seized, err := node.BalanceOf(liquidator, "COL")
	if err != nil {
		t.Fatalf("liquidator balance: %v", err)
	}
	if seized.Cmp(amount(15)) != 0 {
		t.Fatalf("seized = %s, want floored 15", seized)
	}
	after, err := node.Position(user, "COL")
	if err != nil {
		t.Fatalf("collateral position after: %v", err)
	}
	diff := new(big.Int).Sub(before.DepositAmount, after.DepositAmount)
	if diff.Cmp(seized) != 0 {
		t.Fatalf("collateral delta %s != seized %s", diff, seized)
	}
}

func TestDustRepayCannotSeizeCollateral(t *testing.T) {
	node, clock := newLedgerNode(t, nil)

	if _, err := node.Deposit(user, "COL", amount(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := node.Borrow(user, "USD", amount(150_000)); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	clock.advance(2_592_000)
	if err := node.SetPrice("COL", amount(1_800), "test"); err != nil {
		t.Fatalf("reprice: %v", err)
	}

	// 1 USD of repay converts to 1 * 11000 / 18000000 of COL, floored to 0.
	// The liquidator spends the dust and seizes nothing.
	snapshot, err := node.Liquidate(liquidator, user, "USD", "COL", amount(1))
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	if snapshot == nil {
		t.Fatalf("missing snapshot")
	}
	seized, err := node.BalanceOf(liquidator, "COL")
	if err != nil {
		t.Fatalf("liquidator balance: %v", err)
	}
	if seized.Sign() != 0 {
		t.Fatalf("seized = %s, want 0", seized)
	}
	pos, err := node.Position(user, "USD")
	if err != nil {
		t.Fatalf("debt position: %v", err)
	}
	if pos.BorrowAmount.Cmp(amount(150_615)) != 0 {
		t.Fatalf("debt = %s, want 150615 after 1 repaid", pos.BorrowAmount)
	}
}

func TestWithdrawBoundaryExactBacking(t *testing.T) {
	node, _ := newLedgerNode(t, nil)

	if _, err := node.Deposit(user, "COL", amount(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := node.Borrow(user, "USD", amount(75_000)); err != nil {
		t.Fatalf("borrow: %v", err)
	}

	// 75000 of debt needs 75000 / (2000 * 0.75) = 50 COL of backing.
	if _, err := node.Withdraw(user, "COL", amount(51)); !errors.Is(err, lending.ErrUndercollateralized) {
		t.Fatalf("over-withdraw err = %v, want ErrUndercollateralized", err)
	}
	if _, err := node.Withdraw(user, "COL", amount(50)); err != nil {
		t.Fatalf("withdraw to boundary: %v", err)
	}
	if _, err := node.Withdraw(user, "COL", amount(1)); !errors.Is(err, lending.ErrUndercollateralized) {
		t.Fatalf("boundary breach err = %v, want ErrUndercollateralized", err)
	}
}
