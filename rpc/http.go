package rpc

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"colend/core"
	"colend/crypto"
	nativecommon "colend/native/common"
	"colend/observability"
	"colend/rpc/modules"
)

const (
	maxRequestBytes = 1 << 20 // 1 MiB
	rateLimitWindow = time.Minute
)

// Quotas groups the per-address quotas enforced on each mutating surface.
type Quotas struct {
	Lending    nativecommon.Quota
	Delegation nativecommon.Quota
	Rebalance  nativecommon.Quota
	Bank       nativecommon.Quota
}

// ServerConfig carries the transport policy knobs.
type ServerConfig struct {
	// AuthToken is the bearer token required on mutating methods. Empty
	// rejects every mutating call.
	AuthToken string
	// TrustProxyHeaders honours X-Forwarded-For when resolving the rate
	// limit source. Enable only behind a trusted proxy.
	TrustProxyHeaders bool
	// MutatingRatePerMin bounds mutating requests per source per minute.
	// Zero disables the limiter.
	MutatingRatePerMin int
	Quotas             Quotas
}

// Server terminates the JSON-RPC surface over a single POST endpoint plus a
// websocket event stream at /ws/events.
type Server struct {
	node *core.Node
	cfg  ServerConfig

	lending     *modules.LendingModule
	risk        *modules.RiskModule
	delegations *modules.DelegationModule
	rebalance   *modules.RebalanceModule
	bank        *modules.BankModule
	admin       *modules.AdminModule

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	quotas   map[string]nativecommon.QuotaNow

	nowFunc func() time.Time
}

func NewServer(node *core.Node, cfg ServerConfig) *Server {
	return &Server{
		node:        node,
		cfg:         cfg,
		lending:     modules.NewLendingModule(node),
		risk:        modules.NewRiskModule(node),
		delegations: modules.NewDelegationModule(node),
		rebalance:   modules.NewRebalanceModule(node),
		bank:        modules.NewBankModule(node),
		admin:       modules.NewAdminModule(node),
		limiters:    make(map[string]*rate.Limiter),
		quotas:      make(map[string]nativecommon.QuotaNow),
		nowFunc:     time.Now,
	}
}

// Handler returns the HTTP mux serving the RPC endpoint and event stream.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	mux.HandleFunc("/ws/events", s.handleEventsWS)
	return mux
}

func (s *Server) Start(addr string) error {
	slog.Info("starting JSON-RPC server", "addr", addr)
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return server.ListenAndServe()
}

// statusRecorder captures the status code written by a handler so request
// metrics can segment on it.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// moduleFor maps a method name onto its metrics module label.
func moduleFor(method string) string {
	if idx := strings.IndexByte(method, '_'); idx > 0 {
		return method[:idx]
	}
	return "rpc"
}

// handle is the main request handler that routes to specific handlers.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	start := s.nowFunc()
	s.dispatch(recorder, r, req)
	observability.ModuleMetrics().Observe(moduleFor(req.Method), req.Method, recorder.status, s.nowFunc().Sub(start))
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	switch req.Method {
	// Ledger reads.
	case "lend_getPosition":
		s.handleLendGetPosition(w, r, req)
	case "lend_listPositions":
		s.handleLendListPositions(w, r, req)
	case "lend_getMarket":
		s.handleLendGetMarket(w, r, req)
	case "lend_listMarkets":
		s.handleLendListMarkets(w, r, req)

	// Ledger mutations.
	case "lend_deposit":
		s.mutating(w, r, req, s.handleLendDeposit)
	case "lend_withdraw":
		s.mutating(w, r, req, s.handleLendWithdraw)
	case "lend_borrow":
		s.mutating(w, r, req, s.handleLendBorrow)
	case "lend_repay":
		s.mutating(w, r, req, s.handleLendRepay)
	case "lend_repayFull":
		s.mutating(w, r, req, s.handleLendRepayFull)

	// Risk.
	case "risk_getSnapshot":
		s.handleRiskGetSnapshot(w, r, req)
	case "risk_liquidate":
		s.mutating(w, r, req, s.handleRiskLiquidate)

	// Delegations.
	case "deleg_get":
		s.handleDelegGet(w, r, req)
	case "deleg_list":
		s.handleDelegList(w, r, req)
	case "deleg_create":
		s.mutating(w, r, req, s.handleDelegCreate)
	case "deleg_revoke":
		s.mutating(w, r, req, s.handleDelegRevoke)
	case "deleg_borrow":
		s.mutating(w, r, req, s.handleDelegBorrow)

	// Auto-rebalance.
	case "rebal_getConfig":
		s.handleRebalGetConfig(w, r, req)
	case "rebal_setConfig":
		s.mutating(w, r, req, s.handleRebalSetConfig)
	case "rebal_trigger":
		s.mutating(w, r, req, s.handleRebalTrigger)

	// Bank.
	case "bank_balanceOf":
		s.handleBankBalanceOf(w, r, req)
	case "bank_allowance":
		s.handleBankAllowance(w, r, req)
	case "bank_transfer":
		s.mutating(w, r, req, s.handleBankTransfer)
	case "bank_approve":
		s.mutating(w, r, req, s.handleBankApprove)

	// Administration. Engines enforce roles; the transport additionally
	// requires the bearer token.
	case "admin_mint":
		s.mutating(w, r, req, s.handleAdminMint)
	case "admin_setTokenConfig":
		s.mutating(w, r, req, s.handleAdminSetTokenConfig)
	case "admin_withdrawReserves":
		s.mutating(w, r, req, s.handleAdminWithdrawReserves)
	case "admin_grantRole":
		s.mutating(w, r, req, s.handleAdminGrantRole)
	case "admin_revokeRole":
		s.mutating(w, r, req, s.handleAdminRevokeRole)
	case "admin_setPrice":
		s.mutating(w, r, req, s.handleAdminSetPrice)
	case "oracle_submitProof":
		s.mutating(w, r, req, s.handleOracleSubmitProof)

	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("unknown method %s", req.Method), nil)
	}
}

type handlerFunc func(http.ResponseWriter, *http.Request, *RPCRequest)

// mutating wraps a state-changing handler with bearer auth and the
// per-source rate limiter.
func (s *Server) mutating(w http.ResponseWriter, r *http.Request, req *RPCRequest, next handlerFunc) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	source, err := s.clientSource(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unable to resolve request source", err.Error())
		return
	}
	if !s.allowSource(source) {
		observability.ModuleMetrics().RecordThrottle(moduleFor(req.Method), "rate_limit")
		writeError(w, http.StatusTooManyRequests, req.ID, codeRateLimited, "rate limit exceeded", nil)
		return
	}
	next(w, r, req)
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.cfg.AuthToken == "" {
		return &RPCError{Code: codeUnauthorized, Message: "RPC authentication token not configured"}
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing Authorization header"}
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return &RPCError{Code: codeUnauthorized, Message: "Authorization header must use Bearer scheme"}
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AuthToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials"}
	}
	return nil
}

// clientSource resolves the rate-limit bucket for a request. Forwarded
// headers only count when the deployment declared the proxy trusted.
func (s *Server) clientSource(r *http.Request) (string, error) {
	if s.cfg.TrustProxyHeaders {
		if forwarded := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); forwarded != "" {
			parts := strings.Split(forwarded, ",")
			first := strings.TrimSpace(parts[0])
			if first != "" {
				return first, nil
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		if r.RemoteAddr == "" {
			return "", fmt.Errorf("remote address unavailable")
		}
		return r.RemoteAddr, nil
	}
	return host, nil
}

func (s *Server) allowSource(source string) bool {
	if s.cfg.MutatingRatePerMin <= 0 {
		return true
	}
	if source == "" {
		source = "unknown"
	}
	s.mu.Lock()
	limiter, ok := s.limiters[source]
	if !ok {
		limiter = rate.NewLimiter(
			rate.Every(rateLimitWindow/time.Duration(s.cfg.MutatingRatePerMin)),
			s.cfg.MutatingRatePerMin,
		)
		s.limiters[source] = limiter
	}
	s.mu.Unlock()
	return limiter.Allow()
}

// reserveQuota counts one mutating request against the principal's quota for
// the module. Counters reset on epoch boundaries.
func (s *Server) reserveQuota(module string, quota nativecommon.Quota, principal crypto.Address) *RPCError {
	if !quota.Enabled() {
		return nil
	}
	key := module + "|" + principal.String()
	nowEpoch := quota.Epoch(uint64(s.nowFunc().UTC().Unix()))

	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := nativecommon.CheckQuota(quota, nowEpoch, s.quotas[key], 1)
	if err != nil {
		observability.ModuleMetrics().RecordThrottle(module, "quota_exceeded")
		return &RPCError{Code: codeRateLimited, Message: fmt.Sprintf("%s quota exceeded for %s", module, principal)}
	}
	s.quotas[key] = next
	return nil
}

// decodeParams unmarshals the single object parameter every method expects.
func decodeParams(req *RPCRequest, dst interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("expected exactly one parameter object")
	}
	return json.Unmarshal(req.Params[0], dst)
}

func writeModuleError(w http.ResponseWriter, id interface{}, err *modules.ModuleError) {
	if err == nil {
		writeError(w, http.StatusInternalServerError, id, codeServerError, "unknown module error", nil)
		return
	}
	writeError(w, err.HTTPStatus, id, err.Code, err.Message, err.Data)
}
