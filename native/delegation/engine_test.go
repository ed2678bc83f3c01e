package delegation

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"colend/crypto"
	"colend/native/lending"
	nativecommon "colend/native/common"
)

type mockDelegationState struct {
	delegations map[[32]byte]*Delegation
	nonces      map[string]uint64
	roles       map[string]map[string]bool
	tokens      map[string]*lending.TokenConfig
}

func newMockDelegationState() *mockDelegationState {
	return &mockDelegationState{
		delegations: make(map[[32]byte]*Delegation),
		nonces:      make(map[string]uint64),
		roles:       make(map[string]map[string]bool),
		tokens:      make(map[string]*lending.TokenConfig),
	}
}

func (m *mockDelegationState) LendingTokenConfig(symbol string) (*lending.TokenConfig, error) {
	return m.tokens[symbol], nil
}

func (m *mockDelegationState) configureToken(symbol string, supported bool) {
	m.tokens[symbol] = &lending.TokenConfig{Symbol: symbol, Supported: supported}
}

func (m *mockDelegationState) DelegationGet(id [32]byte) (*Delegation, error) {
	if d, ok := m.delegations[id]; ok {
		return d.Clone(), nil
	}
	return nil, nil
}

func (m *mockDelegationState) DelegationPut(d *Delegation) error {
	m.delegations[d.ID] = d.Clone()
	return nil
}

func (m *mockDelegationState) DelegationsByDelegator(addr crypto.Address) ([]*Delegation, error) {
	out := make([]*Delegation, 0)
	for _, d := range m.delegations {
		if d.Delegator.Compare(addr) == 0 {
			out = append(out, d.Clone())
		}
	}
	return out, nil
}

func (m *mockDelegationState) DelegationConsumeNonce(addr crypto.Address) (uint64, error) {
	key := string(addr.Bytes())
	nonce := m.nonces[key]
	m.nonces[key] = nonce + 1
	return nonce, nil
}

func (m *mockDelegationState) HasRole(role string, addr []byte) bool {
	members, ok := m.roles[role]
	if !ok {
		return false
	}
	return members[string(addr)]
}

func (m *mockDelegationState) grantRole(role string, addr crypto.Address) {
	if m.roles[role] == nil {
		m.roles[role] = make(map[string]bool)
	}
	m.roles[role][string(addr.Bytes())] = true
}

type mockTokenAdapter struct {
	balances   map[string]*big.Int
	failureErr error
}

func newMockTokenAdapter() *mockTokenAdapter {
	return &mockTokenAdapter{balances: make(map[string]*big.Int)}
}

func (a *mockTokenAdapter) key(addr crypto.Address, symbol string) string {
	return string(addr.Bytes()) + "|" + symbol
}

func (a *mockTokenAdapter) fund(addr crypto.Address, symbol string, amount int64) {
	a.balances[a.key(addr, symbol)] = big.NewInt(amount)
}

func (a *mockTokenAdapter) balance(addr crypto.Address, symbol string) *big.Int {
	if bal, ok := a.balances[a.key(addr, symbol)]; ok {
		return new(big.Int).Set(bal)
	}
	return big.NewInt(0)
}

func (a *mockTokenAdapter) Transfer(from, to crypto.Address, symbol string, amount *big.Int) error {
	if a.failureErr != nil {
		return a.failureErr
	}
	fromBal := a.balance(from, symbol)
	if fromBal.Cmp(amount) < 0 {
		return errors.New("mock adapter: insufficient balance")
	}
	toBal := a.balance(to, symbol)
	a.balances[a.key(from, symbol)] = fromBal.Sub(fromBal, amount)
	a.balances[a.key(to, symbol)] = toBal.Add(toBal, amount)
	return nil
}

func (a *mockTokenAdapter) TransferFrom(spender, owner, to crypto.Address, symbol string, amount *big.Int) error {
	return a.Transfer(owner, to, symbol, amount)
}

type mockLedger struct {
	borrows []borrowCall
	err     error
}

type borrowCall struct {
	user, recipient crypto.Address
	symbol          string
	amount          *big.Int
}

func (l *mockLedger) BorrowFor(user, recipient crypto.Address, symbol string, amount *big.Int) (*lending.Position, error) {
	if l.err != nil {
		return nil, l.err
	}
	l.borrows = append(l.borrows, borrowCall{user, recipient, symbol, new(big.Int).Set(amount)})
	return &lending.Position{Address: user, Symbol: symbol, BorrowAmount: new(big.Int).Set(amount)}, nil
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

func newTestEngine(t *testing.T) (*Engine, *mockDelegationState, *mockTokenAdapter, *mockLedger) {
	t.Helper()
	state := newMockDelegationState()
	adapter := newMockTokenAdapter()
	ledger := &mockLedger{}
	state.configureToken("USD", true)
	clock := &testClock{now: 1_700_000_000}
	engine := NewEngine()
	engine.SetState(state)
	engine.SetAdapter(adapter)
	engine.SetLedger(ledger)
	engine.SetNowFunc(clock.Now)
	return engine, state, adapter, ledger
}

func TestCreateLocksStake(t *testing.T) {
	engine, _, adapter, _ := newTestEngine(t)
	delegator := testAddr(0x01)
	delegate := testAddr(0x02)
	adapter.fund(delegate, "USD", 10_000)

	d, err := engine.Create(delegator, delegate, "usd", KindIndividual, big.NewInt(50_000), 0)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if d.Symbol != "USD" {
		t.Fatalf("symbol not normalised: %q", d.Symbol)
	}
	// Stake is StakeBps of MaxBorrow: 10% of 50000.
	if d.StakeAmount.Cmp(big.NewInt(5_000)) != 0 {
		t.Fatalf("stake = %s, want 5000", d.StakeAmount)
	}
	if got := adapter.balance(engine.StakeVault(), "USD"); got.Cmp(big.NewInt(5_000)) != 0 {
		t.Fatalf("vault balance = %s, want 5000", got)
	}
	if got := adapter.balance(delegate, "USD"); got.Cmp(big.NewInt(5_000)) != 0 {
		t.Fatalf("delegate balance = %s, want 5000", got)
	}
	if d.Status != StatusActive {
		t.Fatalf("status = %v, want active", d.Status)
	}
}

func TestCreateRejectsUnconfiguredSymbol(t *testing.T) {
	engine, _, adapter, _ := newTestEngine(t)
	delegator := testAddr(0x01)
	delegate := testAddr(0x02)
	adapter.fund(delegate, "FAKE", 10_000)

	_, err := engine.Create(delegator, delegate, "FAKE", KindIndividual, big.NewInt(10_000), 0)
	if !errors.Is(err, lending.ErrUnsupportedToken) {
		t.Fatalf("err = %v, want ErrUnsupportedToken", err)
	}
	if got := adapter.balance(engine.StakeVault(), "FAKE"); got.Sign() != 0 {
		t.Fatalf("vault holds %s FAKE, want no stake locked", got)
	}
	if got := adapter.balance(delegate, "FAKE"); got.Cmp(big.NewInt(10_000)) != 0 {
		t.Fatalf("delegate balance = %s, want untouched 10000", got)
	}
}

func TestCreateRejectsUnsupportedSymbol(t *testing.T) {
	engine, state, adapter, _ := newTestEngine(t)
	delegator := testAddr(0x01)
	delegate := testAddr(0x02)
	state.configureToken("FRZ", false)
	adapter.fund(delegate, "FRZ", 10_000)

	if _, err := engine.Create(delegator, delegate, "FRZ", KindIndividual, big.NewInt(10_000), 0); !errors.Is(err, lending.ErrUnsupportedToken) {
		t.Fatalf("err = %v, want ErrUnsupportedToken", err)
	}
}

func TestCreateRejectsSelfDelegation(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	addr := testAddr(0x01)
	if _, err := engine.Create(addr, addr, "USD", KindIndividual, big.NewInt(100), 0); !errors.Is(err, ErrSelfDelegation) {
		t.Fatalf("err = %v, want ErrSelfDelegation", err)
	}
}

func TestCreateRejectsDuplicateActive(t *testing.T) {
	engine, _, adapter, _ := newTestEngine(t)
	delegator := testAddr(0x01)
	delegate := testAddr(0x02)
	adapter.fund(delegate, "USD", 10_000)

	if _, err := engine.Create(delegator, delegate, "USD", KindIndividual, big.NewInt(1_000), 0); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := engine.Create(delegator, delegate, "USD", KindIndividual, big.NewInt(1_000), 0); !errors.Is(err, ErrDelegationExists) {
		t.Fatalf("err = %v, want ErrDelegationExists", err)
	}
}

func TestCreateFailsWhenStakeUnfunded(t *testing.T) {
	engine, state, _, _ := newTestEngine(t)
	delegator := testAddr(0x01)
	delegate := testAddr(0x02)

	if _, err := engine.Create(delegator, delegate, "USD", KindIndividual, big.NewInt(50_000), 0); !errors.Is(err, ErrStakeTransferFailed) {
		t.Fatalf("err = %v, want ErrStakeTransferFailed", err)
	}
	_ = state
}

func TestDelegatedBorrowTracksUsage(t *testing.T) {
	engine, state, adapter, ledger := newTestEngine(t)
	delegator := testAddr(0x01)
	delegate := testAddr(0x02)
	adapter.fund(delegate, "USD", 10_000)
	state.grantRole(nativecommon.RoleDelegateManager, delegate)

	if _, err := engine.Create(delegator, delegate, "USD", KindIndividual, big.NewInt(1_000), 0); err != nil {
		t.Fatalf("create: %v", err)
	}

	d, err := engine.DelegatedBorrow(delegate, delegator, "USD", big.NewInt(600))
	if err != nil {
		t.Fatalf("delegated borrow: %v", err)
	}
	if d.UsedBorrow.Cmp(big.NewInt(600)) != 0 {
		t.Fatalf("used = %s, want 600", d.UsedBorrow)
	}
	if len(ledger.borrows) != 1 {
		t.Fatalf("ledger calls = %d, want 1", len(ledger.borrows))
	}
	call := ledger.borrows[0]
	if call.user.Compare(delegator) != 0 || call.recipient.Compare(delegate) != 0 {
		t.Fatalf("borrow routed wrong: user=%s recipient=%s", call.user, call.recipient)
	}

	// A second draw past the cap fails.
	if _, err := engine.DelegatedBorrow(delegate, delegator, "USD", big.NewInt(500)); !errors.Is(err, ErrExceedsDelegationCap) {
		t.Fatalf("err = %v, want ErrExceedsDelegationCap", err)
	}
}

func TestDelegatedBorrowRequiresRole(t *testing.T) {
	engine, _, adapter, _ := newTestEngine(t)
	delegator := testAddr(0x01)
	delegate := testAddr(0x02)
	adapter.fund(delegate, "USD", 10_000)

	if _, err := engine.Create(delegator, delegate, "USD", KindIndividual, big.NewInt(1_000), 0); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := engine.DelegatedBorrow(delegate, delegator, "USD", big.NewInt(100)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
}

func TestDelegatedBorrowRejectsPooled(t *testing.T) {
	engine, state, adapter, _ := newTestEngine(t)
	delegator := testAddr(0x01)
	delegate := testAddr(0x02)
	adapter.fund(delegate, "USD", 10_000)
	state.grantRole(nativecommon.RoleDelegateManager, delegate)

	if _, err := engine.Create(delegator, delegate, "USD", KindPooled, big.NewInt(1_000), 5_000); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := engine.DelegatedBorrow(delegate, delegator, "USD", big.NewInt(100)); !errors.Is(err, ErrPooledUnsupported) {
		t.Fatalf("err = %v, want ErrPooledUnsupported", err)
	}
}

func TestRevokeReturnsStakeToDelegate(t *testing.T) {
	engine, _, adapter, _ := newTestEngine(t)
	delegator := testAddr(0x01)
	delegate := testAddr(0x02)
	adapter.fund(delegate, "USD", 10_000)

	d, err := engine.Create(delegator, delegate, "USD", KindIndividual, big.NewInt(50_000), 0)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	revoked, err := engine.Revoke(delegator, d.ID)
	if err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if revoked.Status != StatusRevoked {
		t.Fatalf("status = %v, want revoked", revoked.Status)
	}
	if revoked.StakeAmount.Sign() != 0 {
		t.Fatalf("stake not cleared: %s", revoked.StakeAmount)
	}
	if got := adapter.balance(delegate, "USD"); got.Cmp(big.NewInt(10_000)) != 0 {
		t.Fatalf("delegate balance = %s, want 10000 after stake return", got)
	}

	// Revoked delegations reject further operations.
	if _, err := engine.Revoke(delegator, d.ID); !errors.Is(err, ErrDelegationRevoked) {
		t.Fatalf("err = %v, want ErrDelegationRevoked", err)
	}
}

func TestRevokeOnlyByDelegator(t *testing.T) {
	engine, _, adapter, _ := newTestEngine(t)
	delegator := testAddr(0x01)
	delegate := testAddr(0x02)
	adapter.fund(delegate, "USD", 10_000)

	d, err := engine.Create(delegator, delegate, "USD", KindIndividual, big.NewInt(1_000), 0)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := engine.Revoke(delegate, d.ID); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
}

func TestDrawStakeReducesRemaining(t *testing.T) {
	engine, _, adapter, _ := newTestEngine(t)
	delegator := testAddr(0x01)
	delegate := testAddr(0x02)
	adapter.fund(delegate, "USD", 10_000)

	d, err := engine.Create(delegator, delegate, "USD", KindIndividual, big.NewInt(50_000), 0)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	updated, err := engine.DrawStake(d.ID, big.NewInt(2_000))
	if err != nil {
		t.Fatalf("draw stake: %v", err)
	}
	if updated.StakeAmount.Cmp(big.NewInt(3_000)) != 0 {
		t.Fatalf("stake = %s, want 3000", updated.StakeAmount)
	}
	if _, err := engine.DrawStake(d.ID, big.NewInt(4_000)); !errors.Is(err, ErrInsufficientStake) {
		t.Fatalf("err = %v, want ErrInsufficientStake", err)
	}
}

func TestPausedModuleRejectsMutations(t *testing.T) {
	engine, _, adapter, _ := newTestEngine(t)
	engine.SetPauses(pausedView{})
	delegator := testAddr(0x01)
	delegate := testAddr(0x02)
	adapter.fund(delegate, "USD", 10_000)

	if _, err := engine.Create(delegator, delegate, "USD", KindIndividual, big.NewInt(1_000), 0); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("err = %v, want ErrModulePaused", err)
	}
}

type pausedView struct{}

func (pausedView) IsPaused(string) bool { return true }

func TestListByDelegatorOrdersActiveFirst(t *testing.T) {
	engine, _, adapter, _ := newTestEngine(t)
	delegator := testAddr(0x01)
	first := testAddr(0x02)
	second := testAddr(0x03)
	adapter.fund(first, "USD", 10_000)
	adapter.fund(second, "USD", 10_000)

	a, err := engine.Create(delegator, first, "USD", KindIndividual, big.NewInt(1_000), 0)
	if err != nil {
		t.Fatalf("create first: %v", err)
	}
	if _, err := engine.Create(delegator, second, "USD", KindIndividual, big.NewInt(1_000), 0); err != nil {
		t.Fatalf("create second: %v", err)
	}
	if _, err := engine.Revoke(delegator, a.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	list, err := engine.ListByDelegator(delegator)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("len = %d, want 2", len(list))
	}
	if list[0].Status != StatusActive || list[1].Status != StatusRevoked {
		t.Fatalf("active delegation should sort first: %v then %v", list[0].Status, list[1].Status)
	}
}
