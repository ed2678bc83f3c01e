package lending

import "errors"

var (
	errNilState      = errors.New("lending: state not configured")
	errNilAdapter    = errors.New("lending: token adapter not configured")
	errNilFeed       = errors.New("lending: price feed not configured")
	errNilConfig     = errors.New("lending: token config not initialised")
	errInvalidSymbol = errors.New("lending: token symbol must not be empty")

	// ErrInvalidAmount rejects zero, negative, or missing amounts.
	ErrInvalidAmount = errors.New("lending: amount must be positive")
	// ErrUnsupportedToken rejects operations on assets without an enabled
	// config.
	ErrUnsupportedToken = errors.New("lending: token not supported")
	// ErrInvalidRiskParameters rejects malformed token configs.
	ErrInvalidRiskParameters = errors.New("lending: invalid risk parameters")
	// ErrInsufficientBalance signals the payer cannot fund the transfer side
	// of the operation.
	ErrInsufficientBalance = errors.New("lending: insufficient balance")
	// ErrInsufficientDeposit signals a withdrawal larger than the deposit.
	ErrInsufficientDeposit = errors.New("lending: insufficient deposit")
	// ErrUndercollateralized signals a withdrawal that would leave existing
	// debt unbacked.
	ErrUndercollateralized = errors.New("lending: withdrawal would undercollateralize debt")
	// ErrExceedsCollateralCapacity signals a borrow beyond the collateral
	// factor weighted capacity.
	ErrExceedsCollateralCapacity = errors.New("lending: borrow exceeds collateral capacity")
	// ErrInsufficientLiquidity signals the pool cannot fund the operation
	// without breaking asset-level solvency.
	ErrInsufficientLiquidity = errors.New("lending: insufficient pool liquidity")
	// ErrNoOutstandingDebt rejects repayments against a zero balance.
	ErrNoOutstandingDebt = errors.New("lending: no outstanding debt to repay")
	// ErrArithmeticOverflow fails closed when a computation leaves the
	// 256-bit domain.
	ErrArithmeticOverflow = errors.New("lending: arithmetic overflow")

	// ErrPositionHealthy rejects liquidations against healthy accounts.
	ErrPositionHealthy = errors.New("lending: position healthy")
	// ErrExceedsCloseFactor rejects liquidations repaying more than the close
	// factor allows.
	ErrExceedsCloseFactor = errors.New("lending: repay exceeds close factor")
	// ErrInsufficientCollateralToSeize rejects liquidations whose seizure
	// exceeds the borrower's collateral.
	ErrInsufficientCollateralToSeize = errors.New("lending: insufficient collateral to seize")
	// ErrSelfLiquidation rejects borrowers liquidating themselves.
	ErrSelfLiquidation = errors.New("lending: self liquidation not permitted")

	// ErrUnauthorized rejects callers missing the required role.
	ErrUnauthorized = errors.New("lending: caller not authorised")
	// ErrInsufficientReserves rejects reserve withdrawals beyond the accrued
	// total.
	ErrInsufficientReserves = errors.New("lending: insufficient reserves")
)
