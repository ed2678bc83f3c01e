package rpc

import (
	"net/http"

	nativecommon "colend/native/common"
	"colend/native/rebalance"
)

func (s *Server) handleRebalSetConfig(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params struct {
		Owner            string `json:"owner"`
		Enabled          bool   `json:"enabled"`
		TargetHealthBps  uint64 `json:"targetHealthBps"`
		TriggerHealthBps uint64 `json:"triggerHealthBps"`
		CooldownSeconds  uint64 `json:"cooldownSeconds"`
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
	if quotaErr := s.reserveQuota(nativecommon.ModuleRebalance, s.cfg.Quotas.Rebalance, owner); quotaErr != nil {
		writeError(w, http.StatusTooManyRequests, req.ID, quotaErr.Code, quotaErr.Message, quotaErr.Data)
		return
	}
	stored, modErr := s.rebalance.SetConfig(owner, &rebalance.Config{
		Owner:            owner,
		Enabled:          params.Enabled,
		TargetHealthBps:  params.TargetHealthBps,
		TriggerHealthBps: params.TriggerHealthBps,
		CooldownSeconds:  params.CooldownSeconds,
	})
	if modErr != nil {
		writeModuleError(w, req.ID, modErr)
		return
	}
	writeResult(w, req.ID, newRebalanceConfigResult(stored))
}

func (s *Server) handleRebalGetConfig(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params struct {
		Owner string `json:"owner"`
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
	cfg, modErr := s.rebalance.Config(owner)
	if modErr != nil {
		writeModuleError(w, req.ID, modErr)
		return
	}
	if cfg == nil {
		writeError(w, http.StatusNotFound, req.ID, codeModuleError, "no rebalance config installed", nil)
		return
	}
	writeResult(w, req.ID, newRebalanceConfigResult(cfg))
}

func (s *Server) handleRebalTrigger(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
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
	if quotaErr := s.reserveQuota(nativecommon.ModuleRebalance, s.cfg.Quotas.Rebalance, addr); quotaErr != nil {
		writeError(w, http.StatusTooManyRequests, req.ID, quotaErr.Code, quotaErr.Message, quotaErr.Data)
		return
	}
	outcome, modErr := s.rebalance.Trigger(addr)
	if modErr != nil {
		writeModuleError(w, req.ID, modErr)
		return
	}
	writeResult(w, req.ID, newRebalanceOutcomeResult(outcome))
}
