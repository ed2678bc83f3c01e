package core

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"colend/core/events"
	"colend/core/pricing"
	"colend/crypto"
	"colend/native/delegation"
	"colend/native/lending"
	nativecommon "colend/native/common"
	"colend/native/rebalance"
	"colend/storage"
)

type nodeClock struct {
	now int64
}

func (c *nodeClock) Now() time.Time { return time.Unix(c.now, 0).UTC() }

func (c *nodeClock) advance(seconds int64) { c.now += seconds }

func nodeAddr(b byte) crypto.Address {
	raw := make([]byte, crypto.AddressLength)
	raw[crypto.AddressLength-1] = b
	return crypto.MustNewAddress(raw)
}

var (
	admin      = nodeAddr(0x01)
	user       = nodeAddr(0x02)
	whale      = nodeAddr(0x03)
	liquidator = nodeAddr(0x04)
	delegate   = nodeAddr(0x05)
)

func amount(v int64) *big.Int { return big.NewInt(v) }

// newTestNode seeds a two-asset market: COL collateral at $2000 and a USD
// stable at $1. The whale funds the USD pool so borrowers have liquidity.
func newTestNode(t *testing.T) (*Node, *storage.MemDB, *nodeClock) {
	t.Helper()
	db := storage.NewMemDB()
	clock := &nodeClock{now: 1_700_000_000}
	feed := pricing.NewManualFeed(pricing.WithClock(clock.Now))
	node := NewNode(db, feed, WithClock(clock.Now))

	genesis := Genesis{
		Tokens: []lending.TokenConfig{
			{
				Symbol:                  "COL",
				Name:                    "Collateral Token",
				Decimals:                18,
				Supported:               true,
				CollateralFactorBps:     7_500,
				LiquidationThresholdBps: 8_000,
				LiquidationPenaltyBps:   1_000,
				InterestRateBps:         500,
			},
			{
				Symbol:                  "USD",
				Name:                    "Stable Token",
				Decimals:                6,
				Supported:               true,
				CollateralFactorBps:     9_000,
				LiquidationThresholdBps: 9_500,
				LiquidationPenaltyBps:   500,
				InterestRateBps:         500,
			},
		},
		Roles: []GenesisRole{
			{Role: nativecommon.RoleLendingAdmin, Address: admin},
			{Role: nativecommon.RoleLiquidator, Address: liquidator},
			{Role: nativecommon.RoleDelegateManager, Address: delegate},
		},
		Mints: []GenesisMint{
			{Address: user, Symbol: "COL", Amount: amount(100)},
			{Address: whale, Symbol: "USD", Amount: amount(200_000)},
			{Address: liquidator, Symbol: "USD", Amount: amount(100_000)},
			{Address: delegate, Symbol: "USD", Amount: amount(10_000)},
		},
	}
	if err := node.ApplyGenesis(genesis); err != nil {
		t.Fatalf("apply genesis: %v", err)
	}
	if err := node.SetPrice("COL", amount(2_000), "test"); err != nil {
		t.Fatalf("set COL price: %v", err)
	}
	if err := node.SetPrice("USD", amount(1), "test"); err != nil {
		t.Fatalf("set USD price: %v", err)
	}
	if _, err := node.Deposit(whale, "USD", amount(200_000)); err != nil {
		t.Fatalf("whale deposit: %v", err)
	}
	return node, db, clock
}

func TestBorrowAtCapacityThenLiquidation(t *testing.T) {
	node, _, clock := newTestNode(t)

	if _, err := node.Deposit(user, "COL", amount(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	// Capacity is 100 * 2000 * 7500 / 10000 = 150000 of USD value.
	if _, err := node.Borrow(user, "USD", amount(150_001)); !errors.Is(err, lending.ErrExceedsCollateralCapacity) {
		t.Fatalf("expected capacity error, got %v", err)
	}
	if _, err := node.Borrow(user, "USD", amount(150_000)); err != nil {
		t.Fatalf("borrow at capacity: %v", err)
	}
	balance, err := node.BalanceOf(user, "USD")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Cmp(amount(150_000)) != 0 {
		t.Fatalf("expected borrowed funds in balance, got %s", balance)
	}

	// 30 days of simple interest: 150000*500*2592000/(31536000*10000) = 616.
	clock.advance(2_592_000)
	snapshot, err := node.RiskSnapshot(user)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snapshot.DebtValue.Cmp(amount(150_616)) != 0 {
		t.Fatalf("expected accrued debt 150616, got %s", snapshot.DebtValue)
	}
	if snapshot.HealthFactorBps.Cmp(amount(10_623)) != 0 {
		t.Fatalf("expected health factor 10623, got %s", snapshot.HealthFactorBps)
	}
	if !snapshot.Healthy() {
		t.Fatalf("position should be healthy before the price drop")
	}

	if err := node.SetPrice("COL", amount(1_800), "test"); err != nil {
		t.Fatalf("reprice: %v", err)
	}
	snapshot, err = node.RiskSnapshot(user)
	if err != nil {
		t.Fatalf("snapshot after reprice: %v", err)
	}
	if !snapshot.Liquidatable {
		t.Fatalf("expected liquidatable after price drop, hf=%s", snapshot.HealthFactorBps)
	}
	hfBefore := new(big.Int).Set(snapshot.HealthFactorBps)

	// Close factor caps a single liquidation at 50% of 150616 = 75308.
	if _, err := node.Liquidate(liquidator, user, "USD", "COL", amount(75_309)); !errors.Is(err, lending.ErrExceedsCloseFactor) {
		t.Fatalf("expected close factor error, got %v", err)
	}
	after, err := node.Liquidate(liquidator, user, "USD", "COL", amount(75_308))
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}

	// Seizure = 75308 * 1 * 11000 / (1800 * 10000) = 46 by integer floor.
	seized, err := node.BalanceOf(liquidator, "COL")
	if err != nil {
		t.Fatalf("liquidator collateral balance: %v", err)
	}
	if seized.Cmp(amount(46)) != 0 {
		t.Fatalf("expected 46 COL seized, got %s", seized)
	}
	spent, err := node.BalanceOf(liquidator, "USD")
	if err != nil {
		t.Fatalf("liquidator stable balance: %v", err)
	}
	if spent.Cmp(amount(24_692)) != 0 {
		t.Fatalf("expected liquidator to spend repay amount, got %s", spent)
	}

	pos, err := node.Position(user, "COL")
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	if pos.DepositAmount.Cmp(amount(54)) != 0 {
		t.Fatalf("expected 54 COL remaining, got %s", pos.DepositAmount)
	}
	if after.DebtValue.Cmp(amount(75_308)) != 0 {
		t.Fatalf("expected remaining debt 75308, got %s", after.DebtValue)
	}
	if after.HealthFactorBps.Cmp(hfBefore) < 0 {
		t.Fatalf("liquidation worsened health: %s -> %s", hfBefore, after.HealthFactorBps)
	}
}

func TestSolvencyAcrossOperations(t *testing.T) {
	node, _, clock := newTestNode(t)

	checkSolvent := func(stage string) {
		t.Helper()
		markets, err := node.Markets()
		if err != nil {
			t.Fatalf("%s: markets: %v", stage, err)
		}
		for _, market := range markets {
			if market.Totals.TotalDeposits.Cmp(market.Totals.TotalBorrows) < 0 {
				t.Fatalf("%s: %s pool insolvent: deposits %s < borrows %s",
					stage, market.Config.Symbol, market.Totals.TotalDeposits, market.Totals.TotalBorrows)
			}
		}
	}

	if _, err := node.Deposit(user, "COL", amount(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	checkSolvent("after deposit")
	if _, err := node.Borrow(user, "USD", amount(100_000)); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	checkSolvent("after borrow")
	clock.advance(2_592_000)
	if _, _, err := node.Repay(user, "USD", amount(50_000)); err != nil {
		t.Fatalf("repay: %v", err)
	}
	checkSolvent("after repay")
	// Accrued interest outgrew the borrowed funds still held, so a full
	// repayment needs a top-up first.
	if _, _, err := node.RepayFull(user, "USD"); !errors.Is(err, lending.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	if _, err := node.Mint(admin, user, "USD", amount(1_000)); err != nil {
		t.Fatalf("mint top-up: %v", err)
	}
	if _, _, err := node.RepayFull(user, "USD"); err != nil {
		t.Fatalf("repay full: %v", err)
	}
	checkSolvent("after repay full")

	if _, err := node.Withdraw(user, "COL", amount(100)); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	checkSolvent("after withdraw")

	balance, err := node.BalanceOf(user, "COL")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Cmp(amount(100)) != 0 {
		t.Fatalf("deposit round trip should restore collateral, got %s", balance)
	}
}

// dumpDB snapshots every committed key/value pair.
func dumpDB(t *testing.T, db *storage.MemDB) map[string][]byte {
	t.Helper()
	out := make(map[string][]byte)
	for _, key := range db.Keys(nil) {
		value, err := db.Get(key)
		if err != nil {
			t.Fatalf("dump %x: %v", key, err)
		}
		out[string(key)] = value
	}
	return out
}

func TestFailedOperationLeavesStateUntouched(t *testing.T) {
	node, db, _ := newTestNode(t)

	if _, err := node.Deposit(user, "COL", amount(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	before := dumpDB(t, db)

	if _, err := node.Borrow(user, "USD", amount(200_000)); !errors.Is(err, lending.ErrExceedsCollateralCapacity) {
		t.Fatalf("expected capacity error, got %v", err)
	}

	after := dumpDB(t, db)
	if len(before) != len(after) {
		t.Fatalf("key count changed: %d -> %d", len(before), len(after))
	}
	for key, value := range before {
		if !bytes.Equal(after[key], value) {
			t.Fatalf("key %x mutated by failed operation", []byte(key))
		}
	}
}

func TestEventsPublishOnlyAfterCommit(t *testing.T) {
	node, _, _ := newTestNode(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream, unsubscribe := node.Subscribe(ctx)
	defer unsubscribe()

	if _, err := node.Deposit(user, "COL", amount(500)); !errors.Is(err, lending.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	select {
	case evt := <-stream:
		t.Fatalf("failed operation published %s", evt.Type)
	case <-time.After(20 * time.Millisecond):
	}

	if _, err := node.Deposit(user, "COL", amount(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	select {
	case evt := <-stream:
		if evt.Type != events.TypeLendingDeposit {
			t.Fatalf("expected %s, got %s", events.TypeLendingDeposit, evt.Type)
		}
		if evt.Attributes["amount"] != "100" {
			t.Fatalf("unexpected amount attribute %q", evt.Attributes["amount"])
		}
	case <-time.After(time.Second):
		t.Fatalf("deposit event never arrived")
	}
}

func TestGenesisIsIdempotent(t *testing.T) {
	node, _, _ := newTestNode(t)

	if err := node.ApplyGenesis(Genesis{
		Mints: []GenesisMint{{Address: user, Symbol: "COL", Amount: amount(100)}},
	}); err != nil {
		t.Fatalf("second genesis: %v", err)
	}
	balance, err := node.BalanceOf(user, "COL")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Cmp(amount(100)) != 0 {
		t.Fatalf("replayed genesis minted again: %s", balance)
	}
}

func TestDelegatedBorrowThroughNode(t *testing.T) {
	node, _, _ := newTestNode(t)

	if _, err := node.Deposit(user, "COL", amount(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	// The delegate funds the stake through an allowance to the delegator.
	if err := node.Approve(delegate, user, "USD", amount(1_000)); err != nil {
		t.Fatalf("approve stake: %v", err)
	}
	created, err := node.CreateDelegation(user, delegate, "USD", delegation.KindIndividual, amount(10_000), 11_000)
	if err != nil {
		t.Fatalf("create delegation: %v", err)
	}
	if created.StakeAmount.Cmp(amount(1_000)) != 0 {
		t.Fatalf("expected stake 1000, got %s", created.StakeAmount)
	}

	if _, err := node.DelegatedBorrow(delegate, user, "USD", amount(4_000)); err != nil {
		t.Fatalf("delegated borrow: %v", err)
	}
	balance, err := node.BalanceOf(delegate, "USD")
	if err != nil {
		t.Fatalf("delegate balance: %v", err)
	}
	// 10000 minted, 1000 staked, 4000 received.
	if balance.Cmp(amount(13_000)) != 0 {
		t.Fatalf("expected delegate balance 13000, got %s", balance)
	}
	pos, err := node.Position(user, "USD")
	if err != nil {
		t.Fatalf("delegator position: %v", err)
	}
	if pos.BorrowAmount.Cmp(amount(4_000)) != 0 {
		t.Fatalf("debt should land on the delegator, got %s", pos.BorrowAmount)
	}

	revoked, err := node.RevokeDelegation(user, created.ID)
	if err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if revoked.Status != delegation.StatusRevoked {
		t.Fatalf("expected revoked status, got %v", revoked.Status)
	}
	balance, err = node.BalanceOf(delegate, "USD")
	if err != nil {
		t.Fatalf("delegate balance after revoke: %v", err)
	}
	if balance.Cmp(amount(14_000)) != 0 {
		t.Fatalf("stake should return on revoke, got %s", balance)
	}
}

func TestRebalanceThroughNode(t *testing.T) {
	node, _, _ := newTestNode(t)

	if _, err := node.Deposit(user, "COL", amount(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := node.Borrow(user, "USD", amount(150_000)); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	if _, err := node.SetRebalanceConfig(user, &rebalance.Config{
		Owner:            user,
		Enabled:          true,
		TargetHealthBps:  11_000,
		TriggerHealthBps: 10_000,
	}); err != nil {
		t.Fatalf("set config: %v", err)
	}

	outcome, err := node.MaybeRebalance(user)
	if err != nil {
		t.Fatalf("healthy rebalance: %v", err)
	}
	if outcome.Applied || outcome.Skipped != rebalance.SkipHealthy {
		t.Fatalf("expected healthy skip, got %+v", outcome)
	}

	if err := node.SetPrice("COL", amount(1_800), "test"); err != nil {
		t.Fatalf("reprice: %v", err)
	}
	outcome, err = node.MaybeRebalance(user)
	if err != nil {
		t.Fatalf("rebalance: %v", err)
	}
	if !outcome.Applied {
		t.Fatalf("expected applied rebalance, got %+v", outcome)
	}
	snapshot, err := node.RiskSnapshot(user)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snapshot.Liquidatable {
		t.Fatalf("rebalance left position liquidatable: hf=%s", snapshot.HealthFactorBps)
	}
}
