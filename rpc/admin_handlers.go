package rpc

import (
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"

	"colend/core/pricing"
	nativecommon "colend/native/common"
	"colend/native/lending"
)

func knownRole(role string) bool {
	switch role {
	case nativecommon.RoleLendingAdmin,
		nativecommon.RoleLiquidator,
		nativecommon.RoleDelegateManager,
		nativecommon.RoleOracle:
		return true
	default:
		return false
	}
}

func (s *Server) handleAdminMint(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params struct {
		Authority string `json:"authority"`
		To        string `json:"to"`
		Symbol    string `json:"symbol"`
		Amount    string `json:"amount"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	authority, err := parseAddress("authority", params.Authority)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	to, err := parseAddress("to", params.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	symbol, err := parseSymbol(params.Symbol)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	amount, err := parseAmount("amount", params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	balance, modErr := s.admin.Mint(authority, to, symbol, amount)
	if modErr != nil {
		writeModuleError(w, req.ID, modErr)
		return
	}
	writeResult(w, req.ID, &balanceResult{Address: to.String(), Symbol: symbol, Balance: bigString(balance)})
}

func (s *Server) handleAdminSetTokenConfig(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params struct {
		Caller                  string `json:"caller"`
		Symbol                  string `json:"symbol"`
		Name                    string `json:"name"`
		Decimals                uint8  `json:"decimals"`
		Supported               bool   `json:"supported"`
		CollateralFactorBps     uint64 `json:"collateralFactorBps"`
		LiquidationThresholdBps uint64 `json:"liquidationThresholdBps"`
		LiquidationPenaltyBps   uint64 `json:"liquidationPenaltyBps"`
		InterestRateBps         uint64 `json:"interestRateBps"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	caller, err := parseAddress("caller", params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	symbol, err := parseSymbol(params.Symbol)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	cfg := &lending.TokenConfig{
		Symbol:                  symbol,
		Name:                    params.Name,
		Decimals:                params.Decimals,
		Supported:               params.Supported,
		CollateralFactorBps:     params.CollateralFactorBps,
		LiquidationThresholdBps: params.LiquidationThresholdBps,
		LiquidationPenaltyBps:   params.LiquidationPenaltyBps,
		InterestRateBps:         params.InterestRateBps,
	}
	if modErr := s.admin.SetTokenConfig(caller, cfg); modErr != nil {
		writeModuleError(w, req.ID, modErr)
		return
	}
	writeResult(w, req.ID, &ackResult{OK: true})
}

func (s *Server) handleAdminWithdrawReserves(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params struct {
		Caller    string `json:"caller"`
		Recipient string `json:"recipient"`
		Symbol    string `json:"symbol"`
		Amount    string `json:"amount"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	caller, err := parseAddress("caller", params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	recipient, err := parseAddress("recipient", params.Recipient)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	symbol, err := parseSymbol(params.Symbol)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	amount, err := parseAmount("amount", params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	totals, modErr := s.admin.WithdrawReserves(caller, recipient, symbol, amount)
	if modErr != nil {
		writeModuleError(w, req.ID, modErr)
		return
	}
	writeResult(w, req.ID, &reservesResult{
		Symbol:        symbol,
		TotalDeposits: bigString(totals.TotalDeposits),
		TotalBorrows:  bigString(totals.TotalBorrows),
		TotalReserves: bigString(totals.TotalReserves),
	})
}

func (s *Server) handleAdminGrantRole(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params struct {
		Role    string `json:"role"`
		Address string `json:"address"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	role := strings.TrimSpace(params.Role)
	if !knownRole(role) {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, fmt.Sprintf("unknown role %q", params.Role), nil)
		return
	}
	addr, err := parseAddress("address", params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if modErr := s.admin.GrantRole(role, addr); modErr != nil {
		writeModuleError(w, req.ID, modErr)
		return
	}
	writeResult(w, req.ID, &ackResult{OK: true})
}

func (s *Server) handleAdminRevokeRole(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params struct {
		Role    string `json:"role"`
		Address string `json:"address"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	role := strings.TrimSpace(params.Role)
	if !knownRole(role) {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, fmt.Sprintf("unknown role %q", params.Role), nil)
		return
	}
	addr, err := parseAddress("address", params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if modErr := s.admin.RevokeRole(role, addr); modErr != nil {
		writeModuleError(w, req.ID, modErr)
		return
	}
	writeResult(w, req.ID, &ackResult{OK: true})
}

func (s *Server) handleAdminSetPrice(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params struct {
		Symbol   string `json:"symbol"`
		Price    string `json:"price"`
		Provider string `json:"provider"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	symbol, err := parseSymbol(params.Symbol)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	price, err := parseAmount("price", params.Price)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	provider := strings.TrimSpace(params.Provider)
	if provider == "" {
		provider = "admin"
	}
	if modErr := s.admin.SetPrice(symbol, price, provider); modErr != nil {
		writeModuleError(w, req.ID, modErr)
		return
	}
	writeResult(w, req.ID, &ackResult{OK: true})
}

func (s *Server) handleOracleSubmitProof(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params struct {
		Domain    string `json:"domain"`
		Provider  string `json:"provider"`
		Symbol    string `json:"symbol"`
		Price     string `json:"price"`
		Timestamp int64  `json:"timestamp"`
		Signature string `json:"signature"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	signature, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(params.Signature), "0x"))
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid signature encoding", err.Error())
		return
	}
	proof, err := pricing.NewPriceProof(params.Domain, params.Provider, params.Symbol, params.Price, params.Timestamp, signature)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if modErr := s.admin.SubmitPriceProof(proof); modErr != nil {
		writeModuleError(w, req.ID, modErr)
		return
	}
	writeResult(w, req.ID, &ackResult{OK: true})
}
