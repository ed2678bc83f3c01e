package rpc

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"colend/crypto"
	"colend/native/delegation"
	"colend/native/lending"
	"colend/native/rebalance"
)

const jsonRPCVersion = "2.0"

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeModuleError    = -32010
	codeRateLimited    = -32020
)

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      int               `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

// --- Parameter decoding ---

func parseAddress(field, raw string) (crypto.Address, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return crypto.Address{}, fmt.Errorf("%s required", field)
	}
	addr, err := crypto.DecodeAddress(trimmed)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("invalid %s: %v", field, err)
	}
	return addr, nil
}

// parseAmount decodes a positive base-10 integer in the asset's smallest
// unit. Amounts travel as strings so precision survives JSON number limits.
func parseAmount(field, raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("%s required", field)
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid %s: %q", field, raw)
	}
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("%s must be positive", field)
	}
	return amount, nil
}

func parseSymbol(raw string) (string, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(raw))
	if trimmed == "" {
		return "", fmt.Errorf("symbol required")
	}
	return trimmed, nil
}

// parseDelegationID decodes a 0x-prefixed 32-byte identifier.
func parseDelegationID(raw string) ([32]byte, error) {
	var id [32]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return id, fmt.Errorf("invalid delegation id: %v", err)
	}
	if len(decoded) != len(id) {
		return id, fmt.Errorf("delegation id must be %d bytes", len(id))
	}
	copy(id[:], decoded)
	return id, nil
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// --- Result shapes ---

type positionResult struct {
	Address       string `json:"address"`
	Symbol        string `json:"symbol"`
	DepositAmount string `json:"depositAmount"`
	BorrowAmount  string `json:"borrowAmount"`
	LastAccrual   uint64 `json:"lastAccrual"`
}

func newPositionResult(pos *lending.Position) *positionResult {
	if pos == nil {
		return nil
	}
	return &positionResult{
		Address:       pos.Address.String(),
		Symbol:        pos.Symbol,
		DepositAmount: bigString(pos.DepositAmount),
		BorrowAmount:  bigString(pos.BorrowAmount),
		LastAccrual:   pos.LastAccrual,
	}
}

type repayResult struct {
	Applied  string          `json:"applied"`
	Position *positionResult `json:"position"`
}

type marketResult struct {
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

func newMarketResult(market *lending.Market) *marketResult {
	if market == nil {
		return nil
	}
	return &marketResult{
		Symbol:                  market.Config.Symbol,
		Name:                    market.Config.Name,
		Decimals:                market.Config.Decimals,
		Supported:               market.Config.Supported,
		CollateralFactorBps:     market.Config.CollateralFactorBps,
		LiquidationThresholdBps: market.Config.LiquidationThresholdBps,
		LiquidationPenaltyBps:   market.Config.LiquidationPenaltyBps,
		InterestRateBps:         market.Config.InterestRateBps,
		TotalDeposits:           bigString(market.Totals.TotalDeposits),
		TotalBorrows:            bigString(market.Totals.TotalBorrows),
		TotalReserves:           bigString(market.Totals.TotalReserves),
	}
}

type snapshotResult struct {
	Address            string `json:"address"`
	CollateralValue    string `json:"collateralValue"`
	AdjustedCollateral string `json:"adjustedCollateral"`
	BorrowCapacity     string `json:"borrowCapacity"`
	DebtValue          string `json:"debtValue"`
	// HealthFactorBps is omitted for debt-free accounts; Infinite marks them.
	HealthFactorBps string `json:"healthFactorBps,omitempty"`
	Infinite        bool   `json:"infinite"`
	Liquidatable    bool   `json:"liquidatable"`
}

func newSnapshotResult(snapshot *lending.RiskSnapshot) *snapshotResult {
	if snapshot == nil {
		return nil
	}
	result := &snapshotResult{
		Address:            snapshot.Address.String(),
		CollateralValue:    bigString(snapshot.CollateralValue),
		AdjustedCollateral: bigString(snapshot.AdjustedCollateral),
		BorrowCapacity:     bigString(snapshot.BorrowCapacity),
		DebtValue:          bigString(snapshot.DebtValue),
		Infinite:           snapshot.Infinite,
		Liquidatable:       snapshot.Liquidatable,
	}
	if snapshot.HealthFactorBps != nil {
		result.HealthFactorBps = snapshot.HealthFactorBps.String()
	}
	return result
}

type delegationResult struct {
	ID           string `json:"id"`
	Delegator    string `json:"delegator"`
	Delegate     string `json:"delegate"`
	Symbol       string `json:"symbol"`
	Kind         string `json:"kind"`
	MaxBorrow    string `json:"maxBorrow"`
	UsedBorrow   string `json:"usedBorrow"`
	StakeAmount  string `json:"stakeAmount"`
	ThresholdBps uint64 `json:"thresholdBps,omitempty"`
	Status       string `json:"status"`
	CreatedAt    uint64 `json:"createdAt"`
	UpdatedAt    uint64 `json:"updatedAt"`
}

func newDelegationResult(d *delegation.Delegation) *delegationResult {
	if d == nil {
		return nil
	}
	return &delegationResult{
		ID:           "0x" + hex.EncodeToString(d.ID[:]),
		Delegator:    d.Delegator.String(),
		Delegate:     d.Delegate.String(),
		Symbol:       d.Symbol,
		Kind:         d.Kind.String(),
		MaxBorrow:    bigString(d.MaxBorrow),
		UsedBorrow:   bigString(d.UsedBorrow),
		StakeAmount:  bigString(d.StakeAmount),
		ThresholdBps: d.ThresholdBps,
		Status:       d.Status.String(),
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

type rebalanceConfigResult struct {
	Owner            string `json:"owner"`
	Enabled          bool   `json:"enabled"`
	TargetHealthBps  uint64 `json:"targetHealthBps"`
	TriggerHealthBps uint64 `json:"triggerHealthBps"`
	CooldownSeconds  uint64 `json:"cooldownSeconds"`
	LastRebalance    uint64 `json:"lastRebalance"`
}

func newRebalanceConfigResult(cfg *rebalance.Config) *rebalanceConfigResult {
	if cfg == nil {
		return nil
	}
	return &rebalanceConfigResult{
		Owner:            cfg.Owner.String(),
		Enabled:          cfg.Enabled,
		TargetHealthBps:  cfg.TargetHealthBps,
		TriggerHealthBps: cfg.TriggerHealthBps,
		CooldownSeconds:  cfg.CooldownSeconds,
		LastRebalance:    cfg.LastRebalance,
	}
}

type rebalanceActionResult struct {
	Kind   string `json:"kind"`
	Symbol string `json:"symbol"`
	Amount string `json:"amount"`
}

type rebalanceOutcomeResult struct {
	Applied       bool                    `json:"applied"`
	Skipped       string                  `json:"skipped,omitempty"`
	Actions       []rebalanceActionResult `json:"actions,omitempty"`
	HealthBefore  string                  `json:"healthBefore,omitempty"`
	HealthAfter   string                  `json:"healthAfter,omitempty"`
	TargetReached bool                    `json:"targetReached"`
}

func newRebalanceOutcomeResult(outcome *rebalance.Outcome) *rebalanceOutcomeResult {
	if outcome == nil {
		return nil
	}
	result := &rebalanceOutcomeResult{
		Applied:       outcome.Applied,
		Skipped:       string(outcome.Skipped),
		TargetReached: outcome.TargetReached,
	}
	for _, action := range outcome.Actions {
		result.Actions = append(result.Actions, rebalanceActionResult{
			Kind:   string(action.Kind),
			Symbol: action.Symbol,
			Amount: bigString(action.Amount),
		})
	}
	if outcome.HealthBefore != nil {
		result.HealthBefore = outcome.HealthBefore.String()
	}
	if outcome.HealthAfter != nil {
		result.HealthAfter = outcome.HealthAfter.String()
	}
	return result
}

type balanceResult struct {
	Address string `json:"address"`
	Symbol  string `json:"symbol"`
	Balance string `json:"balance"`
}

type allowanceResult struct {
	Owner     string `json:"owner"`
	Spender   string `json:"spender"`
	Symbol    string `json:"symbol"`
	Allowance string `json:"allowance"`
}

type reservesResult struct {
	Symbol        string `json:"symbol"`
	TotalDeposits string `json:"totalDeposits"`
	TotalBorrows  string `json:"totalBorrows"`
	TotalReserves string `json:"totalReserves"`
}

type ackResult struct {
	OK bool `json:"ok"`
}
