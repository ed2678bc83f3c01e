package rpc

import (
	"net/http"

	nativecommon "colend/native/common"
)

func (s *Server) handleRiskGetSnapshot(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
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
	snapshot, modErr := s.risk.Snapshot(addr)
	if modErr != nil {
		writeModuleError(w, req.ID, modErr)
		return
	}
	writeResult(w, req.ID, newSnapshotResult(snapshot))
}

func (s *Server) handleRiskLiquidate(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params struct {
		Liquidator       string `json:"liquidator"`
		Borrower         string `json:"borrower"`
		DebtSymbol       string `json:"debtSymbol"`
		CollateralSymbol string `json:"collateralSymbol"`
		RepayAmount      string `json:"repayAmount"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	liquidator, err := parseAddress("liquidator", params.Liquidator)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	borrower, err := parseAddress("borrower", params.Borrower)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	debtSymbol, err := parseSymbol(params.DebtSymbol)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	collateralSymbol, err := parseSymbol(params.CollateralSymbol)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	repayAmount, err := parseAmount("repayAmount", params.RepayAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if quotaErr := s.reserveQuota(nativecommon.ModuleLending, s.cfg.Quotas.Lending, liquidator); quotaErr != nil {
		writeError(w, http.StatusTooManyRequests, req.ID, quotaErr.Code, quotaErr.Message, quotaErr.Data)
		return
	}
	snapshot, modErr := s.risk.Liquidate(liquidator, borrower, debtSymbol, collateralSymbol, repayAmount)
	if modErr != nil {
		writeModuleError(w, req.ID, modErr)
		return
	}
	writeResult(w, req.ID, newSnapshotResult(snapshot))
}
