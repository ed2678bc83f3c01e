package lending

import (
	"errors"
	"math/big"
	"sort"
	"testing"
	"time"

	"colend/core/pricing"
	"colend/crypto"
	nativecommon "colend/native/common"
)

type mockEngineState struct {
	positions map[string]*Position
	configs   map[string]*TokenConfig
	totals    map[string]*AggregateTotals
	roles     map[string]map[string]bool
}

func newMockEngineState() *mockEngineState {
	return &mockEngineState{
		positions: make(map[string]*Position),
		configs:   make(map[string]*TokenConfig),
		totals:    make(map[string]*AggregateTotals),
		roles:     make(map[string]map[string]bool),
	}
}

func (m *mockEngineState) posKey(addr crypto.Address, symbol string) string {
	return string(addr.Bytes()) + "|" + symbol
}

func (m *mockEngineState) LendingPosition(addr crypto.Address, symbol string) (*Position, error) {
	if pos, ok := m.positions[m.posKey(addr, symbol)]; ok {
		return pos.Clone(), nil
	}
	return nil, nil
}

func (m *mockEngineState) LendingPutPosition(pos *Position) error {
	m.positions[m.posKey(pos.Address, pos.Symbol)] = pos.Clone()
	return nil
}

func (m *mockEngineState) LendingTokenConfig(symbol string) (*TokenConfig, error) {
	if cfg, ok := m.configs[symbol]; ok {
		return cfg.Clone(), nil
	}
	return nil, nil
}

func (m *mockEngineState) LendingPutTokenConfig(cfg *TokenConfig) error {
	m.configs[cfg.Symbol] = cfg.Clone()
	return nil
}

func (m *mockEngineState) LendingTokenSymbols() ([]string, error) {
	symbols := make([]string, 0, len(m.configs))
	for symbol := range m.configs {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols, nil
}

func (m *mockEngineState) LendingTotals(symbol string) (*AggregateTotals, error) {
	if totals, ok := m.totals[symbol]; ok {
		return totals.Clone(), nil
	}
	return nil, nil
}

func (m *mockEngineState) LendingPutTotals(symbol string, totals *AggregateTotals) error {
	m.totals[symbol] = totals.Clone()
	return nil
}

func (m *mockEngineState) LendingUserAssets(addr crypto.Address) ([]string, error) {
	prefix := string(addr.Bytes()) + "|"
	symbols := make([]string, 0)
	for key := range m.positions {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			symbols = append(symbols, key[len(prefix):])
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}

func (m *mockEngineState) HasRole(role string, addr []byte) bool {
	members, ok := m.roles[role]
	if !ok {
		return false
	}
	return members[string(addr)]
}

func (m *mockEngineState) grantRole(role string, addr crypto.Address) {
	if m.roles[role] == nil {
		m.roles[role] = make(map[string]bool)
	}
	m.roles[role][string(addr.Bytes())] = true
}

type mockAdapter struct {
	balances map[string]*big.Int
	// onTransfer, when set, fires before a transfer applies. Reentrancy
	// tests hook it to observe the ledger mid-operation.
	onTransfer func(from, to crypto.Address, symbol string, amount *big.Int)
}

func newMockAdapter() *mockAdapter {
	return &mockAdapter{balances: make(map[string]*big.Int)}
}

func (a *mockAdapter) key(addr crypto.Address, symbol string) string {
	return string(addr.Bytes()) + "|" + symbol
}

func (a *mockAdapter) fund(addr crypto.Address, symbol string, amount int64) {
	a.balances[a.key(addr, symbol)] = big.NewInt(amount)
}

func (a *mockAdapter) BalanceOf(addr crypto.Address, symbol string) (*big.Int, error) {
	if balance, ok := a.balances[a.key(addr, symbol)]; ok {
		return new(big.Int).Set(balance), nil
	}
	return big.NewInt(0), nil
}

func (a *mockAdapter) Transfer(from, to crypto.Address, symbol string, amount *big.Int) error {
	if a.onTransfer != nil {
		a.onTransfer(from, to, symbol, amount)
	}
	fromBal, _ := a.BalanceOf(from, symbol)
	if fromBal.Cmp(amount) < 0 {
		return errors.New("mock adapter: insufficient balance")
	}
	toBal, _ := a.BalanceOf(to, symbol)
	a.balances[a.key(from, symbol)] = fromBal.Sub(fromBal, amount)
	a.balances[a.key(to, symbol)] = toBal.Add(toBal, amount)
	return nil
}

func testAddr(b byte) crypto.Address {
	raw := make([]byte, crypto.AddressLength)
	raw[crypto.AddressLength-1] = b
	return crypto.MustNewAddress(raw)
}

type testClock struct {
	now int64
}

func (c *testClock) Now() time.Time { return time.Unix(c.now, 0).UTC() }

func (c *testClock) advance(seconds int64) { c.now += seconds }

const testPrice = 2000

func newTestEngine(t *testing.T) (*Engine, *mockEngineState, *mockAdapter, *pricing.ManualFeed, *testClock) {
	t.Helper()
	state := newMockEngineState()
	adapter := newMockAdapter()
	clock := &testClock{now: 1_700_000_000}
	feed := pricing.NewManualFeed(pricing.WithClock(clock.Now))
	engine := NewEngine()
	engine.SetState(state)
	engine.SetAdapter(adapter)
	engine.SetPriceFeed(feed)
	engine.SetNowFunc(clock.Now)

	if err := state.LendingPutTokenConfig(&TokenConfig{
		Symbol:                  "COL",
		Supported:               true,
		CollateralFactorBps:     7500,
		LiquidationThresholdBps: 8000,
		LiquidationPenaltyBps:   1000,
		InterestRateBps:         500,
	}); err != nil {
		t.Fatalf("put token config: %v", err)
	}
	if err := feed.SetQuote("COL", big.NewInt(testPrice), "test"); err != nil {
		t.Fatalf("set quote: %v", err)
	}
	return engine, state, adapter, feed, clock
}

func TestDepositWithdrawRoundTrip(t *testing.T) {
	engine, state, adapter, _, _ := newTestEngine(t)
	user := testAddr(1)
	adapter.fund(user, "COL", 100)

	if _, err := engine.Deposit(user, "COL", big.NewInt(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	vaultBal, _ := adapter.BalanceOf(engine.VaultAddress(), "COL")
	if vaultBal.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("vault balance = %s, want 100", vaultBal)
	}
	if _, err := engine.Withdraw(user, "COL", big.NewInt(100)); err != nil {
		t.Fatalf("withdraw: %v", err)
	}

	pos, err := state.LendingPosition(user, "COL")
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	if pos.DepositAmount.Sign() != 0 || pos.BorrowAmount.Sign() != 0 {
		t.Fatalf("position not restored: deposit=%s borrow=%s", pos.DepositAmount, pos.BorrowAmount)
	}
	userBal, _ := adapter.BalanceOf(user, "COL")
	if userBal.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("user balance = %s, want 100", userBal)
	}
	totals, _ := state.LendingTotals("COL")
	if totals.TotalDeposits.Sign() != 0 {
		t.Fatalf("total deposits = %s, want 0", totals.TotalDeposits)
	}
}

func TestDepositValidation(t *testing.T) {
	engine, state, adapter, _, _ := newTestEngine(t)
	user := testAddr(1)

	if _, err := engine.Deposit(user, "COL", big.NewInt(0)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("zero amount: got %v, want ErrInvalidAmount", err)
	}
	if _, err := engine.Deposit(user, "UNKNOWN", big.NewInt(1)); !errors.Is(err, ErrUnsupportedToken) {
		t.Fatalf("unknown token: got %v, want ErrUnsupportedToken", err)
	}
	if _, err := engine.Deposit(user, "COL", big.NewInt(5)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("unfunded deposit: got %v, want ErrInsufficientBalance", err)
	}

	cfg, _ := state.LendingTokenConfig("COL")
	cfg.Supported = false
	if err := state.LendingPutTokenConfig(cfg); err != nil {
		t.Fatalf("put config: %v", err)
	}
	adapter.fund(user, "COL", 5)
	if _, err := engine.Deposit(user, "COL", big.NewInt(5)); !errors.Is(err, ErrUnsupportedToken) {
		t.Fatalf("unsupported deposit: got %v, want ErrUnsupportedToken", err)
	}
}

func TestBorrowAtExactCapacity(t *testing.T) {
	engine, _, adapter, _, _ := newTestEngine(t)
	user := testAddr(1)
	adapter.fund(user, "COL", 100)
	adapter.fund(engine.VaultAddress(), "COL", 0)

	if _, err := engine.Deposit(user, "COL", big.NewInt(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	// 100 deposited at CF 7500 backs exactly 75 of debt.
	if _, err := engine.Borrow(user, "COL", big.NewInt(76)); !errors.Is(err, ErrExceedsCollateralCapacity) {
		t.Fatalf("over-borrow: got %v, want ErrExceedsCollateralCapacity", err)
	}
	pos, err := engine.Borrow(user, "COL", big.NewInt(75))
	if err != nil {
		t.Fatalf("borrow at capacity: %v", err)
	}
	if pos.BorrowAmount.Cmp(big.NewInt(75)) != 0 {
		t.Fatalf("borrow amount = %s, want 75", pos.BorrowAmount)
	}
}

func TestWithdrawKeepsDebtBacked(t *testing.T) {
	engine, _, adapter, _, _ := newTestEngine(t)
	user := testAddr(1)
	adapter.fund(user, "COL", 100)

	if _, err := engine.Deposit(user, "COL", big.NewInt(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := engine.Borrow(user, "COL", big.NewInt(60)); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	// 60 of debt needs 80 of collateral at CF 7500.
	if _, err := engine.Withdraw(user, "COL", big.NewInt(21)); !errors.Is(err, ErrUndercollateralized) {
		t.Fatalf("unsafe withdraw: got %v, want ErrUndercollateralized", err)
	}
	if _, err := engine.Withdraw(user, "COL", big.NewInt(101)); !errors.Is(err, ErrInsufficientDeposit) {
		t.Fatalf("over-withdraw: got %v, want ErrInsufficientDeposit", err)
	}
	if _, err := engine.Withdraw(user, "COL", big.NewInt(20)); err != nil {
		t.Fatalf("safe withdraw: %v", err)
	}
}

func TestAccrualMatchesFormula(t *testing.T) {
	engine, state, adapter, _, clock := newTestEngine(t)
	user := testAddr(1)
	adapter.fund(user, "COL", 100_000_000)

	if _, err := engine.Deposit(user, "COL", big.NewInt(100_000_000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := engine.Borrow(user, "COL", big.NewInt(75_000_000)); err != nil {
		t.Fatalf("borrow: %v", err)
	}

	const thirtyDays = 2_592_000
	clock.advance(thirtyDays)

	view, err := engine.PositionWithInterest(user, "COL")
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	// 75e6 * 500 * 2592000 / (31536000 * 10000)
	want := new(big.Int).Mul(big.NewInt(75_000_000), big.NewInt(500))
	want.Mul(want, big.NewInt(thirtyDays))
	want.Quo(want, new(big.Int).Mul(big.NewInt(SecondsPerYear), big.NewInt(10_000)))
	wantDebt := new(big.Int).Add(big.NewInt(75_000_000), want)
	if view.BorrowAmount.Cmp(wantDebt) != 0 {
		t.Fatalf("debt with interest = %s, want %s", view.BorrowAmount, wantDebt)
	}

	// The view did not persist: stored debt is untouched until the next op.
	stored, _ := state.LendingPosition(user, "COL")
	if stored.BorrowAmount.Cmp(big.NewInt(75_000_000)) != 0 {
		t.Fatalf("stored debt = %s, want 75000000", stored.BorrowAmount)
	}

	// A touching op folds the same amount in and grows both pool sides.
	if _, _, err := engine.Repay(user, "COL", big.NewInt(1)); err != nil {
		t.Fatalf("repay: %v", err)
	}
	totals, _ := state.LendingTotals("COL")
	wantBorrows := new(big.Int).Sub(wantDebt, big.NewInt(1))
	if totals.TotalBorrows.Cmp(wantBorrows) != 0 {
		t.Fatalf("total borrows = %s, want %s", totals.TotalBorrows, wantBorrows)
	}
	if totals.TotalDeposits.Cmp(totals.TotalBorrows) < 0 {
		t.Fatalf("solvency violated: deposits %s < borrows %s", totals.TotalDeposits, totals.TotalBorrows)
	}
	if totals.TotalReserves.Cmp(want) != 0 {
		t.Fatalf("reserves = %s, want %s", totals.TotalReserves, want)
	}
}

func TestAccrualMonotonic(t *testing.T) {
	engine, _, adapter, _, clock := newTestEngine(t)
	user := testAddr(1)
	adapter.fund(user, "COL", 1_000_000)

	if _, err := engine.Deposit(user, "COL", big.NewInt(1_000_000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := engine.Borrow(user, "COL", big.NewInt(500_000)); err != nil {
		t.Fatalf("borrow: %v", err)
	}

	previous := big.NewInt(0)
	for i := 0; i < 5; i++ {
		clock.advance(86_400)
		view, err := engine.PositionWithInterest(user, "COL")
		if err != nil {
			t.Fatalf("view: %v", err)
		}
		if view.BorrowAmount.Cmp(previous) < 0 {
			t.Fatalf("debt decreased from %s to %s with no repay", previous, view.BorrowAmount)
		}
		previous = view.BorrowAmount
	}
}

func TestRepayCapsAtDebt(t *testing.T) {
	engine, state, adapter, _, _ := newTestEngine(t)
	user := testAddr(1)
	adapter.fund(user, "COL", 1_000)

	if _, err := engine.Deposit(user, "COL", big.NewInt(400)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := engine.Borrow(user, "COL", big.NewInt(100)); err != nil {
		t.Fatalf("borrow: %v", err)
	}

	applied, pos, err := engine.Repay(user, "COL", big.NewInt(500))
	if err != nil {
		t.Fatalf("repay: %v", err)
	}
	if applied.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("applied = %s, want 100", applied)
	}
	if pos.BorrowAmount.Sign() != 0 {
		t.Fatalf("debt remaining = %s, want 0", pos.BorrowAmount)
	}
	if _, _, err := engine.Repay(user, "COL", big.NewInt(1)); !errors.Is(err, ErrNoOutstandingDebt) {
		t.Fatalf("repay with no debt: got %v, want ErrNoOutstandingDebt", err)
	}
	totals, _ := state.LendingTotals("COL")
	if totals.TotalBorrows.Sign() != 0 {
		t.Fatalf("total borrows = %s, want 0", totals.TotalBorrows)
	}
}

func TestRepayFullClearsAccruedInterest(t *testing.T) {
	engine, state, adapter, _, clock := newTestEngine(t)
	user := testAddr(1)
	adapter.fund(user, "COL", 200_000_000)

	if _, err := engine.Deposit(user, "COL", big.NewInt(100_000_000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := engine.Borrow(user, "COL", big.NewInt(50_000_000)); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	clock.advance(2_592_000)

	applied, pos, err := engine.RepayFull(user, "COL")
	if err != nil {
		t.Fatalf("repay full: %v", err)
	}
	if applied.Cmp(big.NewInt(50_000_000)) <= 0 {
		t.Fatalf("applied = %s, expected interest above principal", applied)
	}
	if pos.BorrowAmount.Sign() != 0 {
		t.Fatalf("debt remaining = %s, want 0", pos.BorrowAmount)
	}
	totals, _ := state.LendingTotals("COL")
	if totals.TotalBorrows.Sign() != 0 {
		t.Fatalf("total borrows = %s, want 0", totals.TotalBorrows)
	}
}

func TestPausedModuleRejectsMutations(t *testing.T) {
	engine, _, adapter, _, _ := newTestEngine(t)
	user := testAddr(1)
	adapter.fund(user, "COL", 100)
	engine.SetPauses(stubPauses{paused: nativecommon.ModuleLending})

	if _, err := engine.Deposit(user, "COL", big.NewInt(10)); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("paused deposit: got %v, want ErrModulePaused", err)
	}
}

type stubPauses struct {
	paused string
}

func (s stubPauses) IsPaused(module string) bool { return module == s.paused }

func TestFailedTransferSurfacesError(t *testing.T) {
	engine, _, adapter, _, _ := newTestEngine(t)
	user := testAddr(1)
	adapter.fund(user, "COL", 100)

	if _, err := engine.Deposit(user, "COL", big.NewInt(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	// Drain the vault behind the engine's back so the payout transfer fails.
	adapter.fund(engine.VaultAddress(), "COL", 0)
	if _, err := engine.Borrow(user, "COL", big.NewInt(10)); err == nil {
		t.Fatal("borrow succeeded with an empty vault")
	}
}

func TestSetTokenConfigRequiresAdmin(t *testing.T) {
	engine, state, _, _, _ := newTestEngine(t)
	admin := testAddr(9)
	cfg := &TokenConfig{Symbol: "NEW", Supported: true, CollateralFactorBps: 5000, LiquidationThresholdBps: 6000}

	if err := engine.SetTokenConfig(admin, cfg); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("unauthorised config: got %v, want ErrUnauthorized", err)
	}
	state.grantRole(nativecommon.RoleLendingAdmin, admin)
	if err := engine.SetTokenConfig(admin, cfg); err != nil {
		t.Fatalf("admin config: %v", err)
	}
	bad := &TokenConfig{Symbol: "BAD", CollateralFactorBps: 8000, LiquidationThresholdBps: 7000}
	if err := engine.SetTokenConfig(admin, bad); !errors.Is(err, ErrInvalidRiskParameters) {
		t.Fatalf("invalid params: got %v, want ErrInvalidRiskParameters", err)
	}
}

func TestWithdrawReserves(t *testing.T) {
	engine, state, adapter, _, clock := newTestEngine(t)
	admin := testAddr(9)
	user := testAddr(1)
	recipient := testAddr(2)
	state.grantRole(nativecommon.RoleLendingAdmin, admin)
	adapter.fund(user, "COL", 200_000_000)

	if _, err := engine.Deposit(user, "COL", big.NewInt(100_000_000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := engine.Borrow(user, "COL", big.NewInt(50_000_000)); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	clock.advance(SecondsPerYear)
	if _, _, err := engine.Repay(user, "COL", big.NewInt(1)); err != nil {
		t.Fatalf("repay: %v", err)
	}

	totals, _ := state.LendingTotals("COL")
	if totals.TotalReserves.Sign() <= 0 {
		t.Fatalf("reserves = %s, expected accrued interest", totals.TotalReserves)
	}
	over := new(big.Int).Add(totals.TotalReserves, big.NewInt(1))
	if _, err := engine.WithdrawReserves(admin, recipient, "COL", over); !errors.Is(err, ErrInsufficientReserves) {
		t.Fatalf("over-withdraw reserves: got %v, want ErrInsufficientReserves", err)
	}
	if _, err := engine.WithdrawReserves(user, recipient, "COL", big.NewInt(1)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("non-admin reserves: got %v, want ErrUnauthorized", err)
	}
	remaining, err := engine.WithdrawReserves(admin, recipient, "COL", totals.TotalReserves)
	if err != nil {
		t.Fatalf("withdraw reserves: %v", err)
	}
	if remaining.TotalReserves.Sign() != 0 {
		t.Fatalf("reserves after withdraw = %s, want 0", remaining.TotalReserves)
	}
	got, _ := adapter.BalanceOf(recipient, "COL")
	if got.Cmp(totals.TotalReserves) != 0 {
		t.Fatalf("recipient balance = %s, want %s", got, totals.TotalReserves)
	}
}
