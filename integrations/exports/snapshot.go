package exports

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"lukechampine.com/blake3"

	"colend/native/lending"
)

// checksum digests an export payload. Manifests pair each artifact with this
// value so downstream consumers can verify integrity before ingesting.
func checksum(data []byte) string {
	sum := blake3.Sum256(data)
	return fmt.Sprintf("%x", sum[:])
}

func bigOrZero(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// PositionsCSV builds a CSV export for the supplied positions and returns the
// serialised data alongside a checksum of the payload.
func PositionsCSV(positions []*lending.Position, generatedAt time.Time) ([]byte, string, error) {
	buffer := &bytes.Buffer{}
	writer := csv.NewWriter(buffer)
	header := []string{"address", "symbol", "deposit_amount", "borrow_amount", "last_accrual", "generated_at"}
	if err := writer.Write(header); err != nil {
		return nil, "", err
	}
	stamp := generatedAt.UTC().Format(time.RFC3339Nano)
	for _, pos := range positions {
		if pos == nil {
			continue
		}
		record := []string{
			pos.Address.String(),
			pos.Symbol,
			bigOrZero(pos.DepositAmount),
			bigOrZero(pos.BorrowAmount),
			fmt.Sprintf("%d", pos.LastAccrual),
			stamp,
		}
		if err := writer.Write(record); err != nil {
			return nil, "", err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, "", err
	}
	data := buffer.Bytes()
	return data, checksum(data), nil
}

// PositionsJSONL builds a JSON Lines export for the supplied positions.
func PositionsJSONL(positions []*lending.Position, generatedAt time.Time) ([]byte, string, error) {
	buffer := &bytes.Buffer{}
	encoder := json.NewEncoder(buffer)
	encoder.SetEscapeHTML(false)
	stamp := generatedAt.UTC().Format(time.RFC3339Nano)
	for _, pos := range positions {
		if pos == nil {
			continue
		}
		payload := map[string]interface{}{
			"address":        pos.Address.String(),
			"symbol":         pos.Symbol,
			"deposit_amount": bigOrZero(pos.DepositAmount),
			"borrow_amount":  bigOrZero(pos.BorrowAmount),
			"last_accrual":   pos.LastAccrual,
			"generated_at":   stamp,
		}
		if err := encoder.Encode(payload); err != nil {
			return nil, "", err
		}
	}
	data := buffer.Bytes()
	return data, checksum(data), nil
}

// MarketsCSV builds a CSV export for the supplied markets.
func MarketsCSV(markets []*lending.Market, generatedAt time.Time) ([]byte, string, error) {
	buffer := &bytes.Buffer{}
	writer := csv.NewWriter(buffer)
	header := []string{
		"symbol", "supported", "collateral_factor_bps", "liquidation_threshold_bps",
		"liquidation_penalty_bps", "interest_rate_bps",
		"total_deposits", "total_borrows", "total_reserves", "generated_at",
	}
	if err := writer.Write(header); err != nil {
		return nil, "", err
	}
	stamp := generatedAt.UTC().Format(time.RFC3339Nano)
	for _, market := range markets {
		if market == nil {
			continue
		}
		record := []string{
			market.Config.Symbol,
			fmt.Sprintf("%t", market.Config.Supported),
			fmt.Sprintf("%d", market.Config.CollateralFactorBps),
			fmt.Sprintf("%d", market.Config.LiquidationThresholdBps),
			fmt.Sprintf("%d", market.Config.LiquidationPenaltyBps),
			fmt.Sprintf("%d", market.Config.InterestRateBps),
			bigOrZero(market.Totals.TotalDeposits),
			bigOrZero(market.Totals.TotalBorrows),
			bigOrZero(market.Totals.TotalReserves),
			stamp,
		}
		if err := writer.Write(record); err != nil {
			return nil, "", err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, "", err
	}
	data := buffer.Bytes()
	return data, checksum(data), nil
}

// MarketsJSONL builds a JSON Lines export for the supplied markets.
func MarketsJSONL(markets []*lending.Market, generatedAt time.Time) ([]byte, string, error) {
	buffer := &bytes.Buffer{}
	encoder := json.NewEncoder(buffer)
	encoder.SetEscapeHTML(false)
	stamp := generatedAt.UTC().Format(time.RFC3339Nano)
	for _, market := range markets {
		if market == nil {
			continue
		}
		payload := map[string]interface{}{
			"symbol":                    market.Config.Symbol,
			"supported":                 market.Config.Supported,
			"collateral_factor_bps":     market.Config.CollateralFactorBps,
			"liquidation_threshold_bps": market.Config.LiquidationThresholdBps,
			"liquidation_penalty_bps":   market.Config.LiquidationPenaltyBps,
			"interest_rate_bps":         market.Config.InterestRateBps,
			"total_deposits":            bigOrZero(market.Totals.TotalDeposits),
			"total_borrows":             bigOrZero(market.Totals.TotalBorrows),
			"total_reserves":            bigOrZero(market.Totals.TotalReserves),
			"generated_at":              stamp,
		}
		if err := encoder.Encode(payload); err != nil {
			return nil, "", err
		}
	}
	data := buffer.Bytes()
	return data, checksum(data), nil
}
