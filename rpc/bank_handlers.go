package rpc

import (
	"net/http"
)

func (s *Server) handleBankBalanceOf(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
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
	balance, modErr := s.bank.BalanceOf(addr, symbol)
	if modErr != nil {
		writeModuleError(w, req.ID, modErr)
		return
	}
	writeResult(w, req.ID, &balanceResult{Address: addr.String(), Symbol: symbol, Balance: bigString(balance)})
}

func (s *Server) handleBankAllowance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params struct {
		Owner   string `json:"owner"`
		Spender string `json:"spender"`
		Symbol  string `json:"symbol"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	owner, err := parseAddress("owner", params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	spender, err := parseAddress("spender", params.Spender)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	symbol, err := parseSymbol(params.Symbol)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	allowance, modErr := s.bank.Allowance(owner, spender, symbol)
	if modErr != nil {
		writeModuleError(w, req.ID, modErr)
		return
	}
	writeResult(w, req.ID, &allowanceResult{
		Owner:     owner.String(),
		Spender:   spender.String(),
		Symbol:    symbol,
		Allowance: bigString(allowance),
	})
}

func (s *Server) handleBankTransfer(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params struct {
		From   string `json:"from"`
		To     string `json:"to"`
		Symbol string `json:"symbol"`
		Amount string `json:"amount"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	from, err := parseAddress("from", params.From)
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
	if quotaErr := s.reserveQuota("bank", s.cfg.Quotas.Bank, from); quotaErr != nil {
		writeError(w, http.StatusTooManyRequests, req.ID, quotaErr.Code, quotaErr.Message, quotaErr.Data)
		return
	}
	if modErr := s.bank.Transfer(from, to, symbol, amount); modErr != nil {
		writeModuleError(w, req.ID, modErr)
		return
	}
	writeResult(w, req.ID, &ackResult{OK: true})
}

func (s *Server) handleBankApprove(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params struct {
		Owner   string `json:"owner"`
		Spender string `json:"spender"`
		Symbol  string `json:"symbol"`
		Amount  string `json:"amount"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	owner, err := parseAddress("owner", params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	spender, err := parseAddress("spender", params.Spender)
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
	if quotaErr := s.reserveQuota("bank", s.cfg.Quotas.Bank, owner); quotaErr != nil {
		writeError(w, http.StatusTooManyRequests, req.ID, quotaErr.Code, quotaErr.Message, quotaErr.Data)
		return
	}
	if modErr := s.bank.Approve(owner, spender, symbol, amount); modErr != nil {
		writeModuleError(w, req.ID, modErr)
		return
	}
	writeResult(w, req.ID, &ackResult{OK: true})
}
