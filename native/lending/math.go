package lending

import (
	"math/big"

	"github.com/holiman/uint256"
)

// All ledger amounts, valuations, and intermediate products are bounded to
// 256 bits. Anything larger fails closed with ErrArithmeticOverflow rather
// than saturating or wrapping.

const basisPointsUint = uint64(10_000)

var (
	basisPoints = big.NewInt(10_000)
	// accrualDenominator is SecondsPerYear * 10000 from the simple interest
	// formula.
	accrualDenominator = new(big.Int).Mul(big.NewInt(SecondsPerYear), basisPoints)
)

func checked(value *big.Int) (*big.Int, error) {
	if value == nil || value.Sign() < 0 {
		return nil, ErrArithmeticOverflow
	}
	if _, overflow := uint256.FromBig(value); overflow {
		return nil, ErrArithmeticOverflow
	}
	return value, nil
}

func checkedAdd(a, b *big.Int) (*big.Int, error) {
	if a == nil || b == nil {
		return nil, ErrArithmeticOverflow
	}
	return checked(new(big.Int).Add(a, b))
}

func checkedSub(a, b *big.Int) (*big.Int, error) {
	if a == nil || b == nil || a.Cmp(b) < 0 {
		return nil, ErrArithmeticOverflow
	}
	return new(big.Int).Sub(a, b), nil
}

func checkedMul(a, b *big.Int) (*big.Int, error) {
	if a == nil || b == nil {
		return nil, ErrArithmeticOverflow
	}
	return checked(new(big.Int).Mul(a, b))
}

// mulDiv computes floor(a * b / den) with the product bounds-checked.
func mulDiv(a, b, den *big.Int) (*big.Int, error) {
	if den == nil || den.Sign() == 0 {
		return nil, ErrArithmeticOverflow
	}
	product, err := checkedMul(a, b)
	if err != nil {
		return nil, err
	}
	return product.Quo(product, den), nil
}

// accruedInterest computes the simple interest owed on a debt over elapsed
// seconds, truncating toward zero.
//
//	accrued = borrow * rateBps * elapsed / (SecondsPerYear * 10000)
func accruedInterest(borrow *big.Int, rateBps uint64, elapsed uint64) (*big.Int, error) {
	if borrow == nil || borrow.Sign() <= 0 || rateBps == 0 || elapsed == 0 {
		return big.NewInt(0), nil
	}
	numerator, err := checkedMul(borrow, new(big.Int).SetUint64(rateBps))
	if err != nil {
		return nil, err
	}
	numerator, err = checkedMul(numerator, new(big.Int).SetUint64(elapsed))
	if err != nil {
		return nil, err
	}
	return numerator.Quo(numerator, accrualDenominator), nil
}

// bpsShare computes floor(amount * bps / 10000).
func bpsShare(amount *big.Int, bps uint64) (*big.Int, error) {
	return mulDiv(amount, new(big.Int).SetUint64(bps), basisPoints)
}

func minBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}
