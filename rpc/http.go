package rpc

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"launchpad/core/state"
	"launchpad/native/curve"
	"launchpad/native/launch"
	"launchpad/observability/metrics"
)

const maxRequestBytes = 1 << 20 // 1 MiB

// Server exposes the sale engine over JSON-RPC 2.0. Mutating methods run
// inside a state unit of work so a failed operation leaves no trace.
type Server struct {
	manager *state.Manager
	engine  *launch.Engine
	logger  *slog.Logger
	metrics *metrics.LaunchpadMetrics

	authToken string

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

// Options tunes the server.
type Options struct {
	// RateLimitRPS bounds mutating calls per client address; zero
	// disables the limiter.
	RateLimitRPS   float64
	RateLimitBurst int
}

// NewServer constructs a Server. The bearer token for privileged methods is
// read from LAUNCHPAD_RPC_TOKEN; an empty token disables the check.
func NewServer(manager *state.Manager, engine *launch.Engine, logger *slog.Logger, opts Options) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	burst := opts.RateLimitBurst
	if burst <= 0 {
		burst = 1
	}
	return &Server{
		manager:   manager,
		engine:    engine,
		logger:    logger,
		metrics:   metrics.Launchpad(),
		authToken: strings.TrimSpace(os.Getenv("LAUNCHPAD_RPC_TOKEN")),
		limiters:  make(map[string]*rate.Limiter),
		rps:       rate.Limit(opts.RateLimitRPS),
		burst:     burst,
	}
}

// Router assembles the HTTP surface: the JSON-RPC endpoint, a health probe
// and the Prometheus scrape endpoint.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestID)
	r.Post("/", s.handle)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	return r
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "unable to read request body", nil)
		return
	}
	if len(body) > maxRequestBytes {
		writeError(w, http.StatusRequestEntityTooLarge, nil, codeInvalidRequest, "request body too large", nil)
		return
	}
	var req RPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "malformed JSON-RPC request", nil)
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported JSON-RPC version", nil)
		return
	}
	method := strings.TrimSpace(req.Method)
	if method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	if mutatingMethods[method] {
		if !s.authorized(r) {
			s.logger.Warn("rpc request unauthorized", "method", method, "client", clientKey(r))
			s.observe(method, "unauthorized", 0)
			writeError(w, http.StatusUnauthorized, req.ID, codeUnauthorized, "missing or invalid bearer token", nil)
			return
		}
		if !s.allow(clientKey(r)) {
			s.logger.Warn("rpc request rate limited", "method", method, "client", clientKey(r))
			s.observe(method, "rate_limited", 0)
			writeError(w, http.StatusTooManyRequests, req.ID, codeRateLimited, "rate limit exceeded", nil)
			return
		}
	}

	started := time.Now()
	result, rpcErr := s.dispatch(method, req.Params)
	elapsed := time.Since(started).Seconds()
	if rpcErr != nil {
		if rpcErr.Code == codeServerError {
			s.logger.Error("rpc request failed", "method", method, "error", rpcErr.Message)
		}
		s.observe(method, "error", elapsed)
		writeError(w, http.StatusOK, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	s.observe(method, "ok", elapsed)
	writeResult(w, req.ID, result)
}

func (s *Server) observe(method, outcome string, seconds float64) {
	s.metrics.ObserveRPC(method, outcome, seconds)
}

var mutatingMethods = map[string]bool{
	"launchpad_initialize": true,
	"launchpad_updateFees": true,
	"launchpad_createSale": true,
	"launchpad_buy":        true,
	"launchpad_sell":       true,
	"launchpad_migrate":    true,
}

func (s *Server) authorized(r *http.Request) bool {
	if s.authToken == "" {
		return true
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), []byte(s.authToken)) == 1
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) allow(key string) bool {
	if s.rps <= 0 {
		return true
	}
	s.mu.Lock()
	limiter, ok := s.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(s.rps, s.burst)
		s.limiters[key] = limiter
	}
	s.mu.Unlock()
	return limiter.Allow()
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status > 0 && status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj})
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result})
}

// errToRPC maps engine errors onto JSON-RPC error objects.
func errToRPC(err error) *RPCError {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, launch.ErrPlatformNotFound), errors.Is(err, launch.ErrSaleNotFound):
		return &RPCError{Code: codeNotFound, Message: err.Error()}
	case errors.Is(err, launch.ErrInvalidAmount), errors.Is(err, curve.ErrUnderflow):
		return &RPCError{Code: codeInvalidParams, Message: err.Error()}
	case errors.Is(err, launch.ErrPlatformExists),
		errors.Is(err, launch.ErrSaleExists),
		errors.Is(err, launch.ErrSlippageExceeded),
		errors.Is(err, launch.ErrInsufficientUnitsSold),
		errors.Is(err, launch.ErrExceedsSupply),
		errors.Is(err, launch.ErrInsufficientBalance),
		errors.Is(err, launch.ErrInsufficientVaultBalance),
		errors.Is(err, launch.ErrAlreadyGraduated),
		errors.Is(err, launch.ErrAlreadyMigrated),
		errors.Is(err, launch.ErrTargetNotReached):
		return &RPCError{Code: codeRejected, Message: err.Error()}
	case errors.Is(err, launch.ErrUnauthorizedAdmin):
		return &RPCError{Code: codeUnauthorized, Message: err.Error()}
	default:
		if _, ok := curve.IsOverflow(err); ok {
			return &RPCError{Code: codeRejected, Message: err.Error()}
		}
		return &RPCError{Code: codeServerError, Message: err.Error()}
	}
}
