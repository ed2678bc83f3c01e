package rpc

import (
	"fmt"
	"net/http"

	nativecommon "colend/native/common"
	"colend/native/delegation"
)

func (s *Server) handleDelegCreate(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params struct {
		Delegator    string `json:"delegator"`
		Delegate     string `json:"delegate"`
		Symbol       string `json:"symbol"`
		Kind         string `json:"kind"`
		MaxBorrow    string `json:"maxBorrow"`
		ThresholdBps uint64 `json:"thresholdBps"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	delegator, err := parseAddress("delegator", params.Delegator)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	delegate, err := parseAddress("delegate", params.Delegate)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	symbol, err := parseSymbol(params.Symbol)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	kind, ok := delegation.ParseKind(params.Kind)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, fmt.Sprintf("unknown delegation kind %q", params.Kind), nil)
		return
	}
	maxBorrow, err := parseAmount("maxBorrow", params.MaxBorrow)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if quotaErr := s.reserveQuota(nativecommon.ModuleDelegation, s.cfg.Quotas.Delegation, delegator); quotaErr != nil {
		writeError(w, http.StatusTooManyRequests, req.ID, quotaErr.Code, quotaErr.Message, quotaErr.Data)
		return
	}
	created, modErr := s.delegations.Create(delegator, delegate, symbol, kind, maxBorrow, params.ThresholdBps)
	if modErr != nil {
		writeModuleError(w, req.ID, modErr)
		return
	}
	writeResult(w, req.ID, newDelegationResult(created))
}

func (s *Server) handleDelegRevoke(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params struct {
		Delegator string `json:"delegator"`
		ID        string `json:"id"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	delegator, err := parseAddress("delegator", params.Delegator)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	id, err := parseDelegationID(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if quotaErr := s.reserveQuota(nativecommon.ModuleDelegation, s.cfg.Quotas.Delegation, delegator); quotaErr != nil {
		writeError(w, http.StatusTooManyRequests, req.ID, quotaErr.Code, quotaErr.Message, quotaErr.Data)
		return
	}
	revoked, modErr := s.delegations.Revoke(delegator, id)
	if modErr != nil {
		writeModuleError(w, req.ID, modErr)
		return
	}
	writeResult(w, req.ID, newDelegationResult(revoked))
}

func (s *Server) handleDelegBorrow(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params struct {
		Delegate  string `json:"delegate"`
		Delegator string `json:"delegator"`
		Symbol    string `json:"symbol"`
		Amount    string `json:"amount"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	delegate, err := parseAddress("delegate", params.Delegate)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	delegator, err := parseAddress("delegator", params.Delegator)
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
	if quotaErr := s.reserveQuota(nativecommon.ModuleDelegation, s.cfg.Quotas.Delegation, delegate); quotaErr != nil {
		writeError(w, http.StatusTooManyRequests, req.ID, quotaErr.Code, quotaErr.Message, quotaErr.Data)
		return
	}
	updated, modErr := s.delegations.Borrow(delegate, delegator, symbol, amount)
	if modErr != nil {
		writeModuleError(w, req.ID, modErr)
		return
	}
	writeResult(w, req.ID, newDelegationResult(updated))
}

func (s *Server) handleDelegGet(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params struct {
		ID string `json:"id"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	id, err := parseDelegationID(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	record, modErr := s.delegations.Get(id)
	if modErr != nil {
		writeModuleError(w, req.ID, modErr)
		return
	}
	writeResult(w, req.ID, newDelegationResult(record))
}

func (s *Server) handleDelegList(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params struct {
		Delegator string `json:"delegator"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	delegator, err := parseAddress("delegator", params.Delegator)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	list, modErr := s.delegations.ListByDelegator(delegator)
	if modErr != nil {
		writeModuleError(w, req.ID, modErr)
		return
	}
	results := make([]*delegationResult, 0, len(list))
	for _, record := range list {
		results = append(results, newDelegationResult(record))
	}
	writeResult(w, req.ID, results)
}
