package rpc

import (
	"net/http"

	nativecommon "colend/native/common"
)

type lendAmountParams struct {
	Address string `json:"address"`
	Symbol  string `json:"symbol"`
	Amount  string `json:"amount"`
}

func (s *Server) handleLendDeposit(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params lendAmountParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	addr, err := parseAddress("address", params.Address)
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
	if quotaErr := s.reserveQuota(nativecommon.ModuleLending, s.cfg.Quotas.Lending, addr); quotaErr != nil {
		writeError(w, http.StatusTooManyRequests, req.ID, quotaErr.Code, quotaErr.Message, quotaErr.Data)
		return
	}
	pos, modErr := s.lending.Deposit(addr, symbol, amount)
	if modErr != nil {
		writeModuleError(w, req.ID, modErr)
		return
	}
	writeResult(w, req.ID, newPositionResult(pos))
}

func (s *Server) handleLendWithdraw(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params lendAmountParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	addr, err := parseAddress("address", params.Address)
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
	if quotaErr := s.reserveQuota(nativecommon.ModuleLending, s.cfg.Quotas.Lending, addr); quotaErr != nil {
		writeError(w, http.StatusTooManyRequests, req.ID, quotaErr.Code, quotaErr.Message, quotaErr.Data)
		return
	}
	pos, modErr := s.lending.Withdraw(addr, symbol, amount)
	if modErr != nil {
		writeModuleError(w, req.ID, modErr)
		return
	}
	writeResult(w, req.ID, newPositionResult(pos))
}

func (s *Server) handleLendBorrow(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params lendAmountParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	addr, err := parseAddress("address", params.Address)
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
	if quotaErr := s.reserveQuota(nativecommon.ModuleLending, s.cfg.Quotas.Lending, addr); quotaErr != nil {
		writeError(w, http.StatusTooManyRequests, req.ID, quotaErr.Code, quotaErr.Message, quotaErr.Data)
		return
	}
	pos, modErr := s.lending.Borrow(addr, symbol, amount)
	if modErr != nil {
		writeModuleError(w, req.ID, modErr)
		return
	}
	writeResult(w, req.ID, newPositionResult(pos))
}

func (s *Server) handleLendRepay(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params lendAmountParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	addr, err := parseAddress("address", params.Address)
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
	if quotaErr := s.reserveQuota(nativecommon.ModuleLending, s.cfg.Quotas.Lending, addr); quotaErr != nil {
		writeError(w, http.StatusTooManyRequests, req.ID, quotaErr.Code, quotaErr.Message, quotaErr.Data)
		return
	}
	applied, pos, modErr := s.lending.Repay(addr, symbol, amount)
	if modErr != nil {
		writeModuleError(w, req.ID, modErr)
		return
	}
	writeResult(w, req.ID, &repayResult{Applied: bigString(applied), Position: newPositionResult(pos)})
}

func (s *Server) handleLendRepayFull(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params struct {
		Address string `json:"address"`
		Symbol  string `json:"symbol"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	addr, err := parseAddress("address", params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	symbol, err := parseSymbol(params.Symbol)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if quotaErr := s.reserveQuota(nativecommon.ModuleLending, s.cfg.Quotas.Lending, addr); quotaErr != nil {
		writeError(w, http.StatusTooManyRequests, req.ID, quotaErr.Code, quotaErr.Message, quotaErr.Data)
		return
	}
	applied, pos, modErr := s.lending.RepayFull(addr, symbol)
	if modErr != nil {
		writeModuleError(w, req.ID, modErr)
		return
	}
	writeResult(w, req.ID, &repayResult{Applied: bigString(applied), Position: newPositionResult(pos)})
}

func (s *Server) handleLendGetPosition(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params struct {
		Address string `json:"address"`
		Symbol  string `json:"symbol"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	addr, err := parseAddress("address", params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	symbol, err := parseSymbol(params.Symbol)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	pos, modErr := s.lending.Position(addr, symbol)
	if modErr != nil {
		writeModuleError(w, req.ID, modErr)
		return
	}
	writeResult(w, req.ID, newPositionResult(pos))
}

func (s *Server) handleLendListPositions(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params struct {
		Address string `json:"address"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	addr, err := parseAddress("address", params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	positions, modErr := s.lending.Positions(addr)
	if modErr != nil {
		writeModuleError(w, req.ID, modErr)
		return
	}
	results := make([]*positionResult, 0, len(positions))
	for _, pos := range positions {
		results = append(results, newPositionResult(pos))
	}
	writeResult(w, req.ID, results)
}

func (s *Server) handleLendGetMarket(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params struct {
		Symbol string `json:"symbol"`
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
	market, modErr := s.lending.Market(symbol)
	if modErr != nil {
		writeModuleError(w, req.ID, modErr)
		return
	}
	writeResult(w, req.ID, newMarketResult(market))
}

func (s *Server) handleLendListMarkets(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) > 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "lend_listMarkets takes no parameters", nil)
		return
	}
	markets, modErr := s.lending.Markets()
	if modErr != nil {
		writeModuleError(w, req.ID, modErr)
		return
	}
	results := make([]*marketResult, 0, len(markets))
	for _, market := range markets {
		results = append(results, newMarketResult(market))
	}
	writeResult(w, req.ID, results)
}
