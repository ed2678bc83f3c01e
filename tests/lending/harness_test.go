package lending_test

import (
	"math/big"
	"testing"
	"time"

	"colend/core"
	"colend/core/pricing"
	"colend/crypto"
	nativecommon "colend/native/common"
	"colend/native/lending"
	"colend/storage"
)

type testClock struct {
	now int64
}

func (c *testClock) Now() time.Time { return time.Unix(c.now, 0).UTC() }

func (c *testClock) advance(seconds int64) { c.now += seconds }

func testAddr(b byte) crypto.Address {
	raw := make([]byte, crypto.AddressLength)
	raw[crypto.AddressLength-1] = b
	return crypto.MustNewAddress(raw)
}

var (
	admin      = testAddr(0x01)
	user       = testAddr(0x02)
	whale      = testAddr(0x03)
	liquidator = testAddr(0x04)
	delegate   = testAddr(0x05)
)

func amount(v int64) *big.Int { return big.NewInt(v) }

// newLedgerNode seeds the standard two-asset market: COL collateral at $2000
// and a USD stable at $1, with the whale funding the USD pool. Extra feed and
// node options let individual tests tighten the oracle or pause modules.
func newLedgerNode(t *testing.T, feedOpts []pricing.ManualFeedOption, nodeOpts ...core.NodeOption) (*core.Node, *testClock) {
	t.Helper()
	clock := &testClock{now: 1_700_000_000}
	opts := append([]pricing.ManualFeedOption{pricing.WithClock(clock.Now)}, feedOpts...)
	feed := pricing.NewManualFeed(opts...)
	node := core.NewNode(storage.NewMemDB(), feed, append([]core.NodeOption{core.WithClock(clock.Now)}, nodeOpts...)...)

	genesis := core.Genesis{
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
		Roles: []core.GenesisRole{
			{Role: nativecommon.RoleLendingAdmin, Address: admin},
			{Role: nativecommon.RoleLiquidator, Address: liquidator},
			{Role: nativecommon.RoleDelegateManager, Address: delegate},
		},
		Mints: []core.GenesisMint{
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
	return node, clock
}
