package routes

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"colend/gateway/middleware"
)

// Config wires the gateway router: REST bridge routes under /v1, a raw
// JSON-RPC proxy at /rpc, health and metrics endpoints.
type Config struct {
	Client        *Client
	NodeURL       *url.URL
	Authenticator *middleware.Authenticator
	RateLimiter   *middleware.RateLimiter
	Observability *middleware.Observability
	Idempotency   *middleware.IdempotencyStore
	CORS          middleware.CORSConfig
}

func New(cfg Config) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.CORS(cfg.CORS))

	obs := cfg.Observability
	if obs != nil {
		r.Use(obs.Middleware("root"))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Raw JSON-RPC pass-through for clients that speak the daemon protocol
	// directly. The daemon enforces its own auth on mutating methods.
	if cfg.NodeURL != nil {
		r.Handle("/rpc", NewProxy(cfg.NodeURL, "/rpc"))
	}

	b := newBridge(cfg.Client)
	limiter := func(key string) func(http.Handler) http.Handler {
		if cfg.RateLimiter == nil {
			return passThrough
		}
		return cfg.RateLimiter.Middleware(key)
	}
	authed := func(scopes ...string) func(http.Handler) http.Handler {
		if cfg.Authenticator == nil {
			return passThrough
		}
		return cfg.Authenticator.Middleware(scopes...)
	}
	idempotent := passThrough
	if cfg.Idempotency != nil {
		idempotent = cfg.Idempotency.Middleware()
	}

	r.Route("/v1/lending", func(sr chi.Router) {
		sr.Use(limiter("lending"))
		sr.Get("/markets", b.lendListMarkets)
		sr.Get("/markets/{symbol}", b.lendGetMarket)
		sr.Get("/positions/{address}", b.lendListPositions)
		sr.Get("/positions/{address}/{symbol}", b.lendGetPosition)
		sr.Group(func(wr chi.Router) {
			wr.Use(authed("lending:write"))
			wr.Use(idempotent)
			wr.Post("/deposit", b.lendDeposit)
			wr.Post("/withdraw", b.lendWithdraw)
			wr.Post("/borrow", b.lendBorrow)
			wr.Post("/repay", b.lendRepay)
			wr.Post("/repay-full", b.lendRepayFull)
		})
	})

	r.Route("/v1/risk", func(sr chi.Router) {
		sr.Use(limiter("risk"))
		sr.Get("/snapshot/{address}", b.riskGetSnapshot)
		sr.Group(func(wr chi.Router) {
			wr.Use(authed("risk:liquidate"))
			wr.Use(idempotent)
			wr.Post("/liquidate", b.riskLiquidate)
		})
	})

	r.Route("/v1/delegations", func(sr chi.Router) {
		sr.Use(limiter("delegation"))
		sr.Get("/{id}", b.delegGet)
		sr.Get("/by-delegator/{address}", b.delegList)
		sr.Group(func(wr chi.Router) {
			wr.Use(authed("delegation:write"))
			wr.Use(idempotent)
			wr.Post("/", b.delegCreate)
			wr.Post("/revoke", b.delegRevoke)
			wr.Post("/borrow", b.delegBorrow)
		})
	})

	r.Route("/v1/rebalance", func(sr chi.Router) {
		sr.Use(limiter("rebalance"))
		sr.Get("/config/{address}", b.rebalGetConfig)
		sr.Group(func(wr chi.Router) {
			wr.Use(authed("rebalance:write"))
			wr.Use(idempotent)
			wr.Put("/config", b.rebalSetConfig)
			wr.Post("/trigger", b.rebalTrigger)
		})
	})

	r.Route("/v1/bank", func(sr chi.Router) {
		sr.Use(limiter("bank"))
		sr.Get("/balance/{address}/{symbol}", b.bankBalanceOf)
		sr.Get("/allowance/{owner}/{spender}/{symbol}", b.bankAllowance)
		sr.Group(func(wr chi.Router) {
			wr.Use(authed("bank:write"))
			wr.Use(idempotent)
			wr.Post("/transfer", b.bankTransfer)
			wr.Post("/approve", b.bankApprove)
		})
	})

	if obs != nil {
		r.Handle("/metrics", obs.MetricsHandler())
	}

	return r
}

func passThrough(next http.Handler) http.Handler {
	return next
}
