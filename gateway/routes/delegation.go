package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (b *bridge) delegCreate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Delegator    string `json:"delegator"`
		Delegate     string `json:"delegate"`
		Symbol       string `json:"symbol"`
		Kind         string `json:"kind"`
		MaxBorrow    string `json:"maxBorrow"`
		ThresholdBps uint64 `json:"thresholdBps"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	b.forward(w, r, "deleg_create", body)
}

func (b *bridge) delegRevoke(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Delegator string `json:"delegator"`
		ID        string `json:"id"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	b.forward(w, r, "deleg_revoke", body)
}

func (b *bridge) delegBorrow(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Delegate  string `json:"delegate"`
		Delegator string `json:"delegator"`
		Symbol    string `json:"symbol"`
		Amount    string `json:"amount"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	b.forward(w, r, "deleg_borrow", body)
}

func (b *bridge) delegGet(w http.ResponseWriter, r *http.Request) {
	b.forward(w, r, "deleg_get", map[string]string{
		"id": chi.URLParam(r, "id"),
	})
}

func (b *bridge) delegList(w http.ResponseWriter, r *http.Request) {
	b.forward(w, r, "deleg_list", map[string]string{
		"delegator": chi.URLParam(r, "address"),
	})
}

func (b *bridge) rebalSetConfig(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Owner            string `json:"owner"`
		Enabled          bool   `json:"enabled"`
		TargetHealthBps  uint64 `json:"targetHealthBps"`
		TriggerHealthBps uint64 `json:"triggerHealthBps"`
		CooldownSeconds  uint64 `json:"cooldownSeconds"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	b.forward(w, r, "rebal_setConfig", body)
}

func (b *bridge) rebalGetConfig(w http.ResponseWriter, r *http.Request) {
	b.forward(w, r, "rebal_getConfig", map[string]string{
		"owner": chi.URLParam(r, "address"),
	})
}

func (b *bridge) rebalTrigger(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Address string `json:"address"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	b.forward(w, r, "rebal_trigger", body)
}
