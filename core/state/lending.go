package state

import (
	"math/big"
	"sort"

	"colend/crypto"
	"colend/native/lending"
)

var (
	lendingPositionPrefix  = []byte("lending/position:")
	lendingTotalsPrefix    = []byte("lending/market:")
	lendingUserPrefix      = []byte("lending/user-assets:")
	lendingUsersKey        = []byte("lending/users")
	lendingTokenPrefix     = []byte("token/config:")
	lendingTokenListSuffix = []byte("token/list")
)

func lendingPositionKey(addr []byte, symbol string) []byte {
	return hashKey(lendingPositionPrefix, []byte(symbol), []byte{':'}, addr)
}

func lendingTotalsKey(symbol string) []byte {
	return hashKey(lendingTotalsPrefix, []byte(symbol))
}

func lendingUserAssetsKey(addr []byte) []byte {
	return hashKey(lendingUserPrefix, addr)
}

func lendingTokenKey(symbol string) []byte {
	return hashKey(lendingTokenPrefix, []byte(symbol))
}

type storedPosition struct {
	Addr          []byte
	Symbol        string
	DepositAmount *big.Int
	BorrowAmount  *big.Int
	LastAccrual   uint64
}

type storedTokenConfig struct {
	Symbol                  string
	Name                    string
	Decimals                uint8
	Supported               bool
	CollateralFactorBps     uint64
	LiquidationThresholdBps uint64
	LiquidationPenaltyBps   uint64
	InterestRateBps         uint64
}

type storedTotals struct {
	TotalDeposits *big.Int
	TotalBorrows  *big.Int
	TotalReserves *big.Int
}

// LendingPosition returns the stored position for (addr, symbol), or nil when
// the pair was never touched.
func (m *Manager) LendingPosition(addr crypto.Address, symbol string) (*lending.Position, error) {
	symbol = normalizeSymbol(symbol)
	var stored storedPosition
	ok, err := m.loadRLP(lendingPositionKey(addr.Bytes(), symbol), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	address, err := crypto.NewAddress(stored.Addr)
	if err != nil {
		return nil, err
	}
	return &lending.Position{
		Address:       address,
		Symbol:        stored.Symbol,
		DepositAmount: nonNil(stored.DepositAmount),
		BorrowAmount:  nonNil(stored.BorrowAmount),
		LastAccrual:   stored.LastAccrual,
	}, nil
}

// LendingPutPosition stores the position and maintains the per-user asset
// index and the global user list.
func (m *Manager) LendingPutPosition(pos *lending.Position) error {
	symbol := normalizeSymbol(pos.Symbol)
	stored := storedPosition{
		Addr:          pos.Address.Bytes(),
		Symbol:        symbol,
		DepositAmount: nonNil(pos.DepositAmount),
		BorrowAmount:  nonNil(pos.BorrowAmount),
		LastAccrual:   pos.LastAccrual,
	}
	if err := m.storeRLP(lendingPositionKey(stored.Addr, symbol), &stored); err != nil {
		return err
	}
	if err := m.appendSortedString(lendingUserAssetsKey(stored.Addr), symbol); err != nil {
		return err
	}
	return m.appendSortedBytes(hashKey(lendingUsersKey), stored.Addr)
}

// LendingUserAssets returns the sorted symbols the user has touched.
func (m *Manager) LendingUserAssets(addr crypto.Address) ([]string, error) {
	var list []string
	if _, err := m.loadRLP(lendingUserAssetsKey(addr.Bytes()), &list); err != nil {
		return nil, err
	}
	return list, nil
}

// LendingUsers returns every address holding a position, sorted.
func (m *Manager) LendingUsers() ([]crypto.Address, error) {
	var raw [][]byte
	if _, err := m.loadRLP(hashKey(lendingUsersKey), &raw); err != nil {
		return nil, err
	}
	users := make([]crypto.Address, 0, len(raw))
	for _, entry := range raw {
		addr, err := crypto.NewAddress(entry)
		if err != nil {
			return nil, err
		}
		users = append(users, addr)
	}
	return users, nil
}

// LendingTokenConfig returns the stored config for symbol, or nil when the
// asset was never configured.
func (m *Manager) LendingTokenConfig(symbol string) (*lending.TokenConfig, error) {
	symbol = normalizeSymbol(symbol)
	var stored storedTokenConfig
	ok, err := m.loadRLP(lendingTokenKey(symbol), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &lending.TokenConfig{
		Symbol:                  stored.Symbol,
		Name:                    stored.Name,
		Decimals:                stored.Decimals,
		Supported:               stored.Supported,
		CollateralFactorBps:     stored.CollateralFactorBps,
		LiquidationThresholdBps: stored.LiquidationThresholdBps,
		LiquidationPenaltyBps:   stored.LiquidationPenaltyBps,
		InterestRateBps:         stored.InterestRateBps,
	}, nil
}

// LendingPutTokenConfig upserts the config and records the symbol in the
// token index. Configs are never deleted.
func (m *Manager) LendingPutTokenConfig(cfg *lending.TokenConfig) error {
	symbol := normalizeSymbol(cfg.Symbol)
	stored := storedTokenConfig{
		Symbol:                  symbol,
		Name:                    cfg.Name,
		Decimals:                cfg.Decimals,
		Supported:               cfg.Supported,
		CollateralFactorBps:     cfg.CollateralFactorBps,
		LiquidationThresholdBps: cfg.LiquidationThresholdBps,
		LiquidationPenaltyBps:   cfg.LiquidationPenaltyBps,
		InterestRateBps:         cfg.InterestRateBps,
	}
	if err := m.storeRLP(lendingTokenKey(symbol), &stored); err != nil {
		return err
	}
	return m.appendSortedString(hashKey(lendingTokenListSuffix), symbol)
}

// LendingTokenSymbols returns every configured symbol, sorted.
func (m *Manager) LendingTokenSymbols() ([]string, error) {
	var list []string
	if _, err := m.loadRLP(hashKey(lendingTokenListSuffix), &list); err != nil {
		return nil, err
	}
	return list, nil
}

// LendingTotals returns the pool aggregates for symbol, or nil when the
// market has no activity yet.
func (m *Manager) LendingTotals(symbol string) (*lending.AggregateTotals, error) {
	symbol = normalizeSymbol(symbol)
	var stored storedTotals
	ok, err := m.loadRLP(lendingTotalsKey(symbol), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &lending.AggregateTotals{
		TotalDeposits: nonNil(stored.TotalDeposits),
		TotalBorrows:  nonNil(stored.TotalBorrows),
		TotalReserves: nonNil(stored.TotalReserves),
	}, nil
}

// LendingPutTotals stores the pool aggregates for symbol.
func (m *Manager) LendingPutTotals(symbol string, totals *lending.AggregateTotals) error {
	symbol = normalizeSymbol(symbol)
	stored := storedTotals{
		TotalDeposits: nonNil(totals.TotalDeposits),
		TotalBorrows:  nonNil(totals.TotalBorrows),
		TotalReserves: nonNil(totals.TotalReserves),
	}
	return m.storeRLP(lendingTotalsKey(symbol), &stored)
}

func (m *Manager) appendSortedString(key []byte, entry string) error {
	var list []string
	if _, err := m.loadRLP(key, &list); err != nil {
		return err
	}
	idx := sort.SearchStrings(list, entry)
	if idx < len(list) && list[idx] == entry {
		return nil
	}
	list = append(list, "")
	copy(list[idx+1:], list[idx:])
	list[idx] = entry
	return m.storeRLP(key, list)
}
