package lending

import (
	"errors"
	"math/big"
	"testing"

	"colend/core/pricing"
	nativecommon "colend/native/common"
)

// twoAssetFixture sets up a COL collateral market priced at 2000 and a USD
// debt market priced at 1, with a whale supplying USD liquidity.
func twoAssetFixture(t *testing.T) (*Engine, *mockEngineState, *mockAdapter, *pricing.ManualFeed, *testClock) {
	t.Helper()
	engine, state, adapter, feed, clock := newTestEngine(t)
	if err := state.LendingPutTokenConfig(&TokenConfig{
		Symbol:                  "USD",
		Supported:               true,
		CollateralFactorBps:     9000,
		LiquidationThresholdBps: 9500,
		LiquidationPenaltyBps:   500,
		InterestRateBps:         0,
	}); err != nil {
		t.Fatalf("put usd config: %v", err)
	}
	if err := feed.SetQuote("USD", big.NewInt(1), "test"); err != nil {
		t.Fatalf("set usd quote: %v", err)
	}
	whale := testAddr(200)
	adapter.fund(whale, "USD", 500_000)
	if _, err := engine.Deposit(whale, "USD", big.NewInt(500_000)); err != nil {
		t.Fatalf("whale deposit: %v", err)
	}
	return engine, state, adapter, feed, clock
}

func TestSnapshotInfiniteWithoutDebt(t *testing.T) {
	engine, _, adapter, _, _ := newTestEngine(t)
	user := testAddr(1)
	adapter.fund(user, "COL", 100)
	if _, err := engine.Deposit(user, "COL", big.NewInt(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	snapshot, err := engine.Snapshot(user)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if !snapshot.Infinite || snapshot.Liquidatable {
		t.Fatalf("debt-free snapshot: infinite=%v liquidatable=%v", snapshot.Infinite, snapshot.Liquidatable)
	}
	if snapshot.CollateralValue.Cmp(big.NewInt(100*testPrice)) != 0 {
		t.Fatalf("collateral value = %s, want %d", snapshot.CollateralValue, 100*testPrice)
	}
}

func TestHealthFactorRespondsToPrice(t *testing.T) {
	engine, _, adapter, feed, _ := twoAssetFixture(t)
	user := testAddr(1)
	adapter.fund(user, "COL", 100)

	if _, err := engine.Deposit(user, "COL", big.NewInt(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := engine.Borrow(user, "USD", big.NewInt(100_000)); err != nil {
		t.Fatalf("borrow: %v", err)
	}

	snapshot, err := engine.Snapshot(user)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	// 100 * 2000 * 0.8 * 10000 / 100000
	if snapshot.HealthFactorBps.Cmp(big.NewInt(16_000)) != 0 {
		t.Fatalf("health factor = %s, want 16000", snapshot.HealthFactorBps)
	}

	previous := new(big.Int).Set(snapshot.HealthFactorBps)
	for _, price := range []int64{1800, 1400, 1200} {
		if err := feed.SetQuote("COL", big.NewInt(price), "test"); err != nil {
			t.Fatalf("set quote: %v", err)
		}
		snapshot, err = engine.Snapshot(user)
		if err != nil {
			t.Fatalf("snapshot at %d: %v", price, err)
		}
		if snapshot.HealthFactorBps.Cmp(previous) >= 0 {
			t.Fatalf("health factor %s did not fall below %s at price %d", snapshot.HealthFactorBps, previous, price)
		}
		previous = new(big.Int).Set(snapshot.HealthFactorBps)
	}
	if !snapshot.Liquidatable {
		t.Fatalf("health factor %s should mark the position liquidatable", snapshot.HealthFactorBps)
	}
}

func TestLiquidationFlow(t *testing.T) {
	engine, state, adapter, feed, _ := twoAssetFixture(t)
	user := testAddr(1)
	liquidator := testAddr(2)
	adapter.fund(user, "COL", 100)
	adapter.fund(liquidator, "USD", 100_000)
	state.grantRole(nativecommon.RoleLiquidator, liquidator)

	if _, err := engine.Deposit(user, "COL", big.NewInt(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := engine.Borrow(user, "USD", big.NewInt(100_000)); err != nil {
		t.Fatalf("borrow: %v", err)
	}

	// Healthy positions cannot be liquidated.
	if _, err := engine.Liquidate(liquidator, user, "USD", "COL", big.NewInt(10_000)); !errors.Is(err, ErrPositionHealthy) {
		t.Fatalf("healthy liquidation: got %v, want ErrPositionHealthy", err)
	}

	if err := feed.SetQuote("COL", big.NewInt(1200), "test"); err != nil {
		t.Fatalf("set quote: %v", err)
	}
	before, err := engine.Snapshot(user)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if !before.Liquidatable {
		t.Fatalf("expected liquidatable, health factor = %s", before.HealthFactorBps)
	}

	// Close factor 5000 bps caps the repay at half the outstanding debt.
	if _, err := engine.Liquidate(liquidator, user, "USD", "COL", big.NewInt(50_001)); !errors.Is(err, ErrExceedsCloseFactor) {
		t.Fatalf("close factor: got %v, want ErrExceedsCloseFactor", err)
	}
	if _, err := engine.Liquidate(user, user, "USD", "COL", big.NewInt(10_000)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("missing role: got %v, want ErrUnauthorized", err)
	}
	state.grantRole(nativecommon.RoleLiquidator, user)
	if _, err := engine.Liquidate(user, user, "USD", "COL", big.NewInt(10_000)); !errors.Is(err, ErrSelfLiquidation) {
		t.Fatalf("self liquidation: got %v, want ErrSelfLiquidation", err)
	}

	after, err := engine.Liquidate(liquidator, user, "USD", "COL", big.NewInt(40_000))
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}

	// seizure = 40000 * 1 * 1.1 / 1200, floored.
	wantSeizure := big.NewInt(36)
	seized, _ := adapter.BalanceOf(liquidator, "COL")
	if seized.Cmp(wantSeizure) != 0 {
		t.Fatalf("seized = %s, want %s", seized, wantSeizure)
	}
	pos, _ := state.LendingPosition(user, "COL")
	if pos.DepositAmount.Cmp(big.NewInt(64)) != 0 {
		t.Fatalf("remaining collateral = %s, want 64", pos.DepositAmount)
	}
	debt, _ := state.LendingPosition(user, "USD")
	if debt.BorrowAmount.Cmp(big.NewInt(60_000)) != 0 {
		t.Fatalf("remaining debt = %s, want 60000", debt.BorrowAmount)
	}

	// Floor-rounded seizure never leaves the borrower worse off.
	if after.HealthFactorBps.Cmp(before.HealthFactorBps) < 0 {
		t.Fatalf("health factor worsened: %s -> %s", before.HealthFactorBps, after.HealthFactorBps)
	}

	// Solvency holds on both pools.
	for _, symbol := range []string{"COL", "USD"} {
		totals, _ := state.LendingTotals(symbol)
		if totals.TotalDeposits.Cmp(totals.TotalBorrows) < 0 {
			t.Fatalf("%s pool insolvent: deposits %s < borrows %s", symbol, totals.TotalDeposits, totals.TotalBorrows)
		}
	}
}

func TestLiquidationSeizureBounds(t *testing.T) {
	engine, state, adapter, feed, _ := twoAssetFixture(t)
	user := testAddr(1)
	liquidator := testAddr(2)
	adapter.fund(user, "COL", 10)
	adapter.fund(liquidator, "USD", 100_000)
	state.grantRole(nativecommon.RoleLiquidator, liquidator)

	if _, err := engine.Deposit(user, "COL", big.NewInt(10)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := engine.Borrow(user, "USD", big.NewInt(15_000)); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	// Crash hard enough that half the debt is worth more than the whole
	// deposit.
	if err := feed.SetQuote("COL", big.NewInt(500), "test"); err != nil {
		t.Fatalf("set quote: %v", err)
	}
	if _, err := engine.Liquidate(liquidator, user, "USD", "COL", big.NewInt(7_000)); !errors.Is(err, ErrInsufficientCollateralToSeize) {
		t.Fatalf("seizure bound: got %v, want ErrInsufficientCollateralToSeize", err)
	}
}

func TestLiquidatorMustFundRepay(t *testing.T) {
	engine, state, adapter, feed, _ := twoAssetFixture(t)
	user := testAddr(1)
	liquidator := testAddr(2)
	adapter.fund(user, "COL", 100)
	state.grantRole(nativecommon.RoleLiquidator, liquidator)

	if _, err := engine.Deposit(user, "COL", big.NewInt(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := engine.Borrow(user, "USD", big.NewInt(100_000)); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	if err := feed.SetQuote("COL", big.NewInt(1200), "test"); err != nil {
		t.Fatalf("set quote: %v", err)
	}
	if _, err := engine.Liquidate(liquidator, user, "USD", "COL", big.NewInt(10_000)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("unfunded liquidator: got %v, want ErrInsufficientBalance", err)
	}
}

func TestStalePriceFailsClosed(t *testing.T) {
	engine, _, adapter, _, clock := newTestEngine(t)
	staleFeed := pricing.NewManualFeed(pricing.WithClock(clock.Now), pricing.WithMaxQuoteAge(60))
	if err := staleFeed.SetQuote("COL", big.NewInt(testPrice), "test"); err != nil {
		t.Fatalf("set quote: %v", err)
	}
	engine.SetPriceFeed(staleFeed)
	user := testAddr(1)
	adapter.fund(user, "COL", 100)
	if _, err := engine.Deposit(user, "COL", big.NewInt(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	clock.advance(120)
	if _, err := engine.Borrow(user, "COL", big.NewInt(10)); !errors.Is(err, pricing.ErrPriceStale) {
		t.Fatalf("stale price borrow: got %v, want ErrPriceStale", err)
	}
}
