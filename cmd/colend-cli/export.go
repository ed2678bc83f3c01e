package main

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"colend/crypto"
	"colend/integrations/exports"
	"colend/native/lending"
)

// Wire shapes of the daemon's list results.
type wirePosition struct {
	Address       string `json:"address"`
	Symbol        string `json:"symbol"`
	DepositAmount string `json:"depositAmount"`
	BorrowAmount  string `json:"borrowAmount"`
	LastAccrual   uint64 `json:"lastAccrual"`
}

type wireMarket struct {
	Symbol                  string `json:"symbol"`
	Name                    string `json:"name"`
	Decimals                uint8  `json:"decimals"`
	Supported               bool   `json:"supported"`
	CollateralFactorBps     uint64 `json:"collateralFactorBps"`
	LiquidationThresholdBps uint64 `json:"liquidationThresholdBps"`
	LiquidationPenaltyBps   uint64 `json:"liquidationPenaltyBps"`
	InterestRateBps         uint64 `json:"interestRateBps"`
	TotalDeposits           string `json:"totalDeposits"`
	TotalBorrows            string `json:"totalBorrows"`
	TotalReserves           string `json:"totalReserves"`
}

func parseWireAmount(field, raw string) (*big.Int, error) {
	if raw == "" {
		return big.NewInt(0), nil
	}
	value, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("invalid %s %q in daemon response", field, raw)
	}
	return value, nil
}

// exportData fetches ledger state over RPC and writes a checksummed bundle of
// CSV, JSONL and raw JSON artifacts.
func exportData(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: export markets <dir> | export positions <address> <dir>")
	}
	generated := time.Now().UTC()
	switch args[0] {
	case "markets":
		if len(args) < 2 {
			return fmt.Errorf("usage: export markets <dir>")
		}
		return exportMarkets(args[1], generated)
	case "positions":
		if len(args) < 3 {
			return fmt.Errorf("usage: export positions <address> <dir>")
		}
		return exportPositions(args[1], args[2], generated)
	default:
		return fmt.Errorf("unknown export target %q", args[0])
	}
}

func exportMarkets(dir string, generated time.Time) error {
	result, err := rpcCall("lend_listMarkets", nil)
	if err != nil {
		return err
	}
	var wire []wireMarket
	if err := json.Unmarshal([]byte(result), &wire); err != nil {
		return fmt.Errorf("decode markets: %w", err)
	}
	markets := make([]*lending.Market, 0, len(wire))
	for _, m := range wire {
		deposits, err := parseWireAmount("totalDeposits", m.TotalDeposits)
		if err != nil {
			return err
		}
		borrows, err := parseWireAmount("totalBorrows", m.TotalBorrows)
		if err != nil {
			return err
		}
		reserves, err := parseWireAmount("totalReserves", m.TotalReserves)
		if err != nil {
			return err
		}
		markets = append(markets, &lending.Market{
			Config: lending.TokenConfig{
				Symbol:                  m.Symbol,
				Name:                    m.Name,
				Decimals:                m.Decimals,
				Supported:               m.Supported,
				CollateralFactorBps:     m.CollateralFactorBps,
				LiquidationThresholdBps: m.LiquidationThresholdBps,
				LiquidationPenaltyBps:   m.LiquidationPenaltyBps,
				InterestRateBps:         m.InterestRateBps,
			},
			Totals: lending.AggregateTotals{
				TotalDeposits: deposits,
				TotalBorrows:  borrows,
				TotalReserves: reserves,
			},
		})
	}
	csvData, _, err := exports.MarketsCSV(markets, generated)
	if err != nil {
		return err
	}
	jsonlData, _, err := exports.MarketsJSONL(markets, generated)
	if err != nil {
		return err
	}
	manifest, err := exports.WriteBundle(dir, generated, map[string][]byte{
		"markets.csv":   csvData,
		"markets.jsonl": jsonlData,
		"markets.json":  append([]byte(result), '\n'),
	})
	if err != nil {
		return err
	}
	fmt.Printf("Wrote %d artifact(s) to %s\n", len(manifest.Artifacts), dir)
	return nil
}

func exportPositions(address, dir string, generated time.Time) error {
	result, err := rpcCall("lend_listPositions", map[string]string{"address": address})
	if err != nil {
		return err
	}
	var wire []wirePosition
	if err := json.Unmarshal([]byte(result), &wire); err != nil {
		return fmt.Errorf("decode positions: %w", err)
	}
	positions := make([]*lending.Position, 0, len(wire))
	for _, p := range wire {
		addr, err := crypto.DecodeAddress(p.Address)
		if err != nil {
			return fmt.Errorf("invalid address %q in daemon response: %w", p.Address, err)
		}
		deposit, err := parseWireAmount("depositAmount", p.DepositAmount)
		if err != nil {
			return err
		}
		borrow, err := parseWireAmount("borrowAmount", p.BorrowAmount)
		if err != nil {
			return err
		}
		positions = append(positions, &lending.Position{
			Address:       addr,
			Symbol:        p.Symbol,
			DepositAmount: deposit,
			BorrowAmount:  borrow,
			LastAccrual:   p.LastAccrual,
		})
	}
	csvData, _, err := exports.PositionsCSV(positions, generated)
	if err != nil {
		return err
	}
	jsonlData, _, err := exports.PositionsJSONL(positions, generated)
	if err != nil {
		return err
	}
	manifest, err := exports.WriteBundle(dir, generated, map[string][]byte{
		"positions.csv":   csvData,
		"positions.jsonl": jsonlData,
		"positions.json":  append([]byte(result), '\n'),
	})
	if err != nil {
		return err
	}
	fmt.Printf("Wrote %d artifact(s) to %s\n", len(manifest.Artifacts), dir)
	return nil
}
