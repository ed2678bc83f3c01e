package lending

import (
	"math/big"
	"strings"

	"colend/crypto"
)

// SecondsPerYear is the accrual denominator: 365 days of simple interest.
const SecondsPerYear = 31_536_000

// DefaultCloseFactorBps caps the share of outstanding debt a single
// liquidation may repay.
const DefaultCloseFactorBps = 5_000

// TokenConfig holds the per-asset risk parameters. Configs are upserted by the
// administrative path and never deleted; flipping Supported off freezes new
// deposits and borrows while leaving existing positions servable.
type TokenConfig struct {
	Symbol string
	Name   string
	// Decimals is display metadata only; ledger amounts are kept in the
	// asset's smallest unit.
	Decimals uint8
	// Supported gates new deposits and borrows for the asset.
	Supported bool
	// CollateralFactorBps bounds borrowing capacity per unit of collateral
	// value, expressed in basis points.
	CollateralFactorBps uint64
	// LiquidationThresholdBps is the LTV where positions become eligible for
	// liquidation, expressed in basis points. Never below the collateral
	// factor.
	LiquidationThresholdBps uint64
	// LiquidationPenaltyBps is the seizure bonus granted to liquidators,
	// expressed in basis points.
	LiquidationPenaltyBps uint64
	// InterestRateBps is the annualised simple-interest borrow rate,
	// expressed in basis points.
	InterestRateBps uint64
}

// Validate enforces the structural constraints on a token config.
func (c *TokenConfig) Validate() error {
	if c == nil {
		return errNilConfig
	}
	if strings.TrimSpace(c.Symbol) == "" {
		return errInvalidSymbol
	}
	if c.CollateralFactorBps > basisPointsUint {
		return ErrInvalidRiskParameters
	}
	if c.LiquidationThresholdBps > basisPointsUint {
		return ErrInvalidRiskParameters
	}
	if c.LiquidationThresholdBps < c.CollateralFactorBps {
		return ErrInvalidRiskParameters
	}
	return nil
}

// Clone returns a deep copy of the config.
func (c *TokenConfig) Clone() *TokenConfig {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// Position tracks one user's deposits and debt in a single asset. Positions
// are created on first touch and never deleted.
type Position struct {
	Address crypto.Address
	Symbol  string
	// DepositAmount is the collateral supplied, in the asset's smallest unit.
	DepositAmount *big.Int
	// BorrowAmount is the outstanding debt including folded-in interest.
	BorrowAmount *big.Int
	// LastAccrual is the unix timestamp of the last interest fold.
	LastAccrual uint64
}

// Clone returns a deep copy of the position.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	clone := &Position{
		Address:     p.Address,
		Symbol:      p.Symbol,
		LastAccrual: p.LastAccrual,
	}
	if p.DepositAmount != nil {
		clone.DepositAmount = new(big.Int).Set(p.DepositAmount)
	}
	if p.BorrowAmount != nil {
		clone.BorrowAmount = new(big.Int).Set(p.BorrowAmount)
	}
	return clone
}

func (p *Position) normalize() {
	if p.DepositAmount == nil {
		p.DepositAmount = big.NewInt(0)
	}
	if p.BorrowAmount == nil {
		p.BorrowAmount = big.NewInt(0)
	}
}

// AggregateTotals tracks the per-asset pool aggregates. TotalDeposits never
// drops below TotalBorrows.
type AggregateTotals struct {
	// TotalDeposits is the sum of user deposits plus accrued interest claims.
	TotalDeposits *big.Int
	// TotalBorrows is the outstanding debt across all positions.
	TotalBorrows *big.Int
	// TotalReserves is the accrued-interest share claimable by the protocol.
	TotalReserves *big.Int
}

// Clone returns a deep copy of the totals.
func (t *AggregateTotals) Clone() *AggregateTotals {
	if t == nil {
		return nil
	}
	clone := &AggregateTotals{}
	if t.TotalDeposits != nil {
		clone.TotalDeposits = new(big.Int).Set(t.TotalDeposits)
	}
	if t.TotalBorrows != nil {
		clone.TotalBorrows = new(big.Int).Set(t.TotalBorrows)
	}
	if t.TotalReserves != nil {
		clone.TotalReserves = new(big.Int).Set(t.TotalReserves)
	}
	return clone
}

func (t *AggregateTotals) normalize() {
	if t.TotalDeposits == nil {
		t.TotalDeposits = big.NewInt(0)
	}
	if t.TotalBorrows == nil {
		t.TotalBorrows = big.NewInt(0)
	}
	if t.TotalReserves == nil {
		t.TotalReserves = big.NewInt(0)
	}
}

// Market is the read model combining an asset's config and pool aggregates.
type Market struct {
	Config TokenConfig
	Totals AggregateTotals
}

// RiskSnapshot is the read model for one user's account-wide health. All
// values are USD at the oracle's fixed-point scale except HealthFactorBps.
type RiskSnapshot struct {
	Address crypto.Address
	// CollateralValue is the unweighted deposit value.
	CollateralValue *big.Int
	// AdjustedCollateral weights each deposit by its liquidation threshold.
	AdjustedCollateral *big.Int
	// BorrowCapacity weights each deposit by its collateral factor.
	BorrowCapacity *big.Int
	// DebtValue includes interest accrued up to the snapshot instant.
	DebtValue *big.Int
	// HealthFactorBps is AdjustedCollateral * 10000 / DebtValue. Nil when
	// Infinite.
	HealthFactorBps *big.Int
	// Infinite marks a debt-free account.
	Infinite bool
	// Liquidatable marks a health factor below 10000.
	Liquidatable bool
}

// Healthy reports whether the account is above the liquidation boundary.
func (s *RiskSnapshot) Healthy() bool {
	if s == nil {
		return false
	}
	return s.Infinite || !s.Liquidatable
}
