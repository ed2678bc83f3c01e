package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type lendAmountRequest struct {
	Address string `json:"address"`
	Symbol  string `json:"symbol"`
	Amount  string `json:"amount"`
}

func (b *bridge) lendDeposit(w http.ResponseWriter, r *http.Request) {
	var body lendAmountRequest
	if !decodeBody(w, r, &body) {
		return
	}
	b.forward(w, r, "lend_deposit", body)
}

func (b *bridge) lendWithdraw(w http.ResponseWriter, r *http.Request) {
	var body lendAmountRequest
	if !decodeBody(w, r, &body) {
		return
	}
	b.forward(w, r, "lend_withdraw", body)
}

func (b *bridge) lendBorrow(w http.ResponseWriter, r *http.Request) {
	var body lendAmountRequest
	if !decodeBody(w, r, &body) {
		return
	}
	b.forward(w, r, "lend_borrow", body)
}

func (b *bridge) lendRepay(w http.ResponseWriter, r *http.Request) {
	var body lendAmountRequest
	if !decodeBody(w, r, &body) {
		return
	}
	b.forward(w, r, "lend_repay", body)
}

func (b *bridge) lendRepayFull(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Address string `json:"address"`
		Symbol  string `json:"symbol"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	b.forward(w, r, "lend_repayFull", body)
}

func (b *bridge) lendListPositions(w http.ResponseWriter, r *http.Request) {
	b.forward(w, r, "lend_listPositions", map[string]string{
		"address": chi.URLParam(r, "address"),
	})
}

func (b *bridge) lendGetPosition(w http.ResponseWriter, r *http.Request) {
	b.forward(w, r, "lend_getPosition", map[string]string{
		"address": chi.URLParam(r, "address"),
		"symbol":  chi.URLParam(r, "symbol"),
	})
}

func (b *bridge) lendListMarkets(w http.ResponseWriter, r *http.Request) {
	b.forward(w, r, "lend_listMarkets", nil)
}

func (b *bridge) lendGetMarket(w http.ResponseWriter, r *http.Request) {
	b.forward(w, r, "lend_getMarket", map[string]string{
		"symbol": chi.URLParam(r, "symbol"),
	})
}

func (b *bridge) riskGetSnapshot(w http.ResponseWriter, r *http.Request) {
	b.forward(w, r, "risk_getSnapshot", map[string]string{
		"address": chi.URLParam(r, "address"),
	})
}

func (b *bridge) riskLiquidate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Liquidator       string `json:"liquidator"`
		Borrower         string `json:"borrower"`
		DebtSymbol       string `json:"debtSymbol"`
		CollateralSymbol string `json:"collateralSymbol"`
		RepayAmount      string `json:"repayAmount"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	b.forward(w, r, "risk_liquidate", body)
}
