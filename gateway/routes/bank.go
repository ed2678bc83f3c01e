package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (b *bridge) bankBalanceOf(w http.ResponseWriter, r *http.Request) {
	b.forward(w, r, "bank_balanceOf", map[string]string{
		"address": chi.URLParam(r, "address"),
		"symbol":  chi.URLParam(r, "symbol"),
	})
}

func (b *bridge) bankAllowance(w http.ResponseWriter, r *http.Request) {
	b.forward(w, r, "bank_allowance", map[string]string{
		"owner":   chi.URLParam(r, "owner"),
		"spender": chi.URLParam(r, "spender"),
		"symbol":  chi.URLParam(r, "symbol"),
	})
}

func (b *bridge) bankTransfer(w http.ResponseWriter, r *http.Request) {
	var body struct {
		From   string `json:"from"`
		To     string `json:"to"`
		Symbol string `json:"symbol"`
		Amount string `json:"amount"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	b.forward(w, r, "bank_transfer", body)
}

func (b *bridge) bankApprove(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Owner   string `json:"owner"`
		Spender string `json:"spender"`
		Symbol  string `json:"symbol"`
		Amount  string `json:"amount"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	b.forward(w, r, "bank_approve", body)
}
