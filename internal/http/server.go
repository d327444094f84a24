// Package http exposes the ledger and the chat assistant as a JSON API.
package http

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/llm"
	"fintrack/internal/log"
	"fintrack/internal/middleware/ratelimit"
	"fintrack/internal/middleware/security"
	"fintrack/internal/middleware/trace"
	"fintrack/internal/services"
	"fintrack/internal/storage"
)

// Ledger is the mutation and query surface the handlers need.
// *services.ActionExecutor implements it.
type Ledger interface {
	Categories(ctx context.Context, owner string) ([]core.Category, error)
	CreateCategory(ctx context.Context, owner, name string, kind core.Kind, segment string) (core.Category, error)

	CreateTransaction(ctx context.Context, owner string, in services.TransactionInput) (core.Transaction, error)
	DeleteTransaction(ctx context.Context, owner string, id int64) (core.Transaction, error)
	ListTransactions(ctx context.Context, owner string, f storage.TransactionFilter) ([]core.Transaction, error)

	CreateGoal(ctx context.Context, owner string, in services.GoalInput) (core.SavingsGoal, error)
	UpdateGoal(ctx context.Context, owner string, id int64, p services.GoalPatch) (core.SavingsGoal, error)
	DeleteGoal(ctx context.Context, owner string, id int64) error
	GetGoal(ctx context.Context, owner string, id int64) (core.SavingsGoal, error)
	ListGoals(ctx context.Context, owner string, statuses ...core.GoalStatus) ([]core.SavingsGoal, error)
	ListContributions(ctx context.Context, owner string, goalID int64) ([]core.SavingsContribution, error)
	ContributeToGoal(ctx context.Context, owner string, ref services.Ref, in services.ContributionInput) (services.ContributionResult, error)
	ReviseContribution(ctx context.Context, owner string, id int64, in services.ContributionInput) (services.ContributionResult, error)
	RemoveContribution(ctx context.Context, owner string, id int64) (core.SavingsGoal, error)
	ForceCompleteGoal(ctx context.Context, owner string, id int64) (core.SavingsGoal, error)
	PauseGoal(ctx context.Context, owner string, id int64) (core.SavingsGoal, error)
	ResumeGoal(ctx context.Context, owner string, id int64) (core.SavingsGoal, error)
	CancelGoal(ctx context.Context, owner string, id int64) (core.SavingsGoal, error)
	ReopenGoal(ctx context.Context, owner string, id int64) (core.SavingsGoal, error)

	CreateDebt(ctx context.Context, owner string, in services.DebtInput) (core.Debt, error)
	UpdateDebt(ctx context.Context, owner string, id int64, p services.DebtPatch) (core.Debt, error)
	DeleteDebt(ctx context.Context, owner string, id int64) error
	GetDebt(ctx context.Context, owner string, id int64) (core.Debt, error)
	ListDebts(ctx context.Context, owner string, statuses ...core.DebtStatus) ([]core.Debt, error)
	ListPayments(ctx context.Context, owner string, debtID int64) ([]core.DebtPayment, error)
	PayDebt(ctx context.Context, owner string, ref services.Ref, in services.PaymentInput) (services.PaymentResult, error)
	RevisePayment(ctx context.Context, owner string, id int64, in services.PaymentInput) (services.PaymentResult, error)
	RemovePayment(ctx context.Context, owner string, id int64) (core.Debt, error)
	ForcePayDebt(ctx context.Context, owner string, id int64) (core.Debt, error)
	PauseDebt(ctx context.Context, owner string, id int64) (core.Debt, error)
	ResumeDebt(ctx context.Context, owner string, id int64) (core.Debt, error)
	ReopenDebt(ctx context.Context, owner string, id int64) (core.Debt, error)

	RecomputeAll(ctx context.Context, owner string) (services.RecomputeReport, error)
}

// Authenticator maps a bearer token to an owner id.
type Authenticator interface {
	Resolve(ctx context.Context, token string) (string, error)
}

// Responder answers one chat turn.
type Responder interface {
	Respond(ctx context.Context, owner string, history []llm.Message) (string, error)
}

type Snapshots interface {
	Build(ctx context.Context, owner string) (core.Snapshot, error)
	Month(ctx context.Context, owner string, day core.Date) (core.MonthTotals, []core.CategoryAmount, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// CacheStats is reported on /metrics.
type CacheStats interface {
	Size() int
	Stats() (hits, misses int64)
}

// Deps are the collaborators of the server. Chat may be nil, in which case
// /chat answers 503.
type Deps struct {
	Ledger    Ledger
	Snapshots Snapshots
	Auth      Authenticator
	Chat      Responder
	Health    Pinger
	Cache     CacheStats
	Logger    *log.Logger
	Now       func() time.Time
}

type Options struct {
	RateLimitPerMinute int
	TrustedProxies     []string
	MaxBodyBytes       int64
	ChatTimeout        time.Duration
}

func DefaultOptions() Options {
	return Options{
		RateLimitPerMinute: 60,
		MaxBodyBytes:       defaultMaxBodyBytes,
		ChatTimeout:        60 * time.Second,
	}
}

type appMetrics struct {
	mu         sync.Mutex
	mutations  int64
	chatTurns  int64
	chatErrors int64
	uptime     time.Time
}

func (m *appMetrics) add(field *int64) {
	m.mu.Lock()
	*field++
	m.mu.Unlock()
}

type Server struct {
	http.Server
	deps    Deps
	opts    Options
	logger  *log.Logger
	metrics *appMetrics

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware

	shutdownOnce sync.Once
}

// NewServer wires routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps Deps, opts Options) (*Server, error) {
	if deps.Ledger == nil || deps.Snapshots == nil || deps.Auth == nil {
		return nil, fmt.Errorf("http server requires a ledger, snapshots and an authenticator")
	}
	if deps.Logger == nil {
		deps.Logger = log.New(log.DefaultConfig())
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}
	if opts.RateLimitPerMinute <= 0 {
		opts.RateLimitPerMinute = DefaultOptions().RateLimitPerMinute
	}
	if opts.ChatTimeout <= 0 {
		opts.ChatTimeout = DefaultOptions().ChatTimeout
	}

	logger := deps.Logger.WithComponent(log.ComponentHTTP)
	detector := security.NewDetector(deps.Logger)
	for _, cidr := range opts.TrustedProxies {
		if err := detector.AddTrustedProxy(cidr); err != nil {
			return nil, err
		}
	}

	limiterCfg := ratelimit.DefaultConfig()
	limiterCfg.RequestsPerMinute = opts.RateLimitPerMinute

	s := &Server{
		deps:             deps,
		opts:             opts,
		logger:           logger,
		metrics:          &appMetrics{uptime: deps.Now()},
		rateLimiter:      ratelimit.NewLimiter(limiterCfg),
		securityDetector: detector,
		traceMiddleware:  trace.NewMiddleware(deps.Logger, detector.ExtractClientIP),
	}

	mux := http.NewServeMux()
	s.routes(mux)

	limited := s.rateLimiter.Middleware(detector.ExtractClientIP, isMutation, func(w http.ResponseWriter, r *http.Request) {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
			log.FieldClientIP, detector.ExtractClientIP(r),
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path)
		_ = ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded, please try again later").Write(w)
	})

	var handler http.Handler = mux
	handler = limited(handler)
	handler = detector.Middleware(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = s.traceMiddleware.Middleware(handler)
	handler = log.Middleware(deps.Logger)(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      opts.ChatTimeout + 15*time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 16,
	}
	return s, nil
}

func isMutation(r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("POST /chat", s.authed(s.handleChat))

	mux.HandleFunc("GET /api/categories", s.authed(s.handleListCategories))
	mux.HandleFunc("POST /api/categories", s.authed(s.handleCreateCategory))
	mux.HandleFunc("GET /api/transactions", s.authed(s.handleListTransactions))
	mux.HandleFunc("POST /api/transactions", s.authed(s.handleCreateTransaction))
	mux.HandleFunc("DELETE /api/transactions/{id}", s.authed(s.handleDeleteTransaction))
	mux.HandleFunc("GET /api/snapshot", s.authed(s.handleSnapshot))
	mux.HandleFunc("GET /api/summary", s.authed(s.handleSummary))
	mux.HandleFunc("POST /api/recompute", s.authed(s.handleRecompute))

	mux.HandleFunc("GET /api/goals", s.authed(s.handleListGoals))
	mux.HandleFunc("POST /api/goals", s.authed(s.handleCreateGoal))
	mux.HandleFunc("GET /api/goals/{id}", s.authed(s.handleGetGoal))
	mux.HandleFunc("PATCH /api/goals/{id}", s.authed(s.handleUpdateGoal))
	mux.HandleFunc("DELETE /api/goals/{id}", s.authed(s.handleDeleteGoal))
	mux.HandleFunc("GET /api/goals/{id}/contributions", s.authed(s.handleListContributions))
	mux.HandleFunc("POST /api/goals/{id}/contributions", s.authed(s.handleContribute))
	mux.HandleFunc("POST /api/goals/{id}/{action}", s.authed(s.handleGoalAction))
	mux.HandleFunc("PUT /api/contributions/{id}", s.authed(s.handleReviseContribution))
	mux.HandleFunc("DELETE /api/contributions/{id}", s.authed(s.handleRemoveContribution))

	mux.HandleFunc("GET /api/debts", s.authed(s.handleListDebts))
	mux.HandleFunc("POST /api/debts", s.authed(s.handleCreateDebt))
	mux.HandleFunc("GET /api/debts/{id}", s.authed(s.handleGetDebt))
	mux.HandleFunc("PATCH /api/debts/{id}", s.authed(s.handleUpdateDebt))
	mux.HandleFunc("DELETE /api/debts/{id}", s.authed(s.handleDeleteDebt))
	mux.HandleFunc("GET /api/debts/{id}/payments", s.authed(s.handleListPayments))
	mux.HandleFunc("POST /api/debts/{id}/payments", s.authed(s.handlePay))
	mux.HandleFunc("POST /api/debts/{id}/{action}", s.authed(s.handleDebtAction))
	mux.HandleFunc("PUT /api/payments/{id}", s.authed(s.handleRevisePayment))
	mux.HandleFunc("DELETE /api/payments/{id}", s.authed(s.handleRemovePayment))
}

// Shutdown gracefully shuts down the server and its background routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": s.deps.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	status, code := "ready", http.StatusOK
	checks := map[string]any{
		"rate_limiter": map[string]any{"active_clients": s.rateLimiter.ActiveClients()},
		"chat":         map[string]any{"enabled": s.deps.Chat != nil},
	}
	if s.deps.Health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Health.Ping(ctx); err != nil {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", log.FieldError, err)
			status, code = "unavailable", http.StatusServiceUnavailable
			checks["database"] = map[string]any{"status": "error"}
		} else {
			checks["database"] = map[string]any{"status": "ok"}
		}
	}
	writeJSON(w, code, map[string]any{
		"status":    status,
		"timestamp": s.deps.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleMetrics reports counters in Prometheus text format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	securityMetrics := s.securityDetector.GetMetrics()
	rateLimitMetrics := s.rateLimiter.GetMetrics()
	traceMetrics := s.traceMiddleware.GetMetrics()

	s.metrics.mu.Lock()
	mutations, chatTurns, chatErrors := s.metrics.mutations, s.metrics.chatTurns, s.metrics.chatErrors
	s.metrics.mu.Unlock()

	w.WriteHeader(http.StatusOK)

	metric := func(name, help, typ string, value any) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n%s %v\n\n", name, help, name, typ, name, value)
	}
	metric("http_requests_total", "Total number of HTTP requests", "counter", traceMetrics.TotalRequests)
	metric("ledger_mutations_total", "Successful mutations through the API", "counter", mutations)
	metric("chat_turns_total", "Chat turns answered", "counter", chatTurns)
	metric("chat_errors_total", "Chat turns that failed", "counter", chatErrors)
	if s.deps.Cache != nil {
		hits, misses := s.deps.Cache.Stats()
		metric("category_cache_hits_total", "Category cache hits", "counter", hits)
		metric("category_cache_misses_total", "Category cache misses", "counter", misses)
		metric("category_cache_entries", "Current category cache entries", "gauge", s.deps.Cache.Size())
	}
	metric("rate_limit_hits_total", "Total rate limited requests counted", "counter", rateLimitMetrics.TotalHits)
	metric("active_rate_limit_clients", "Currently tracked rate limit clients", "gauge", rateLimitMetrics.ClientCount)
	metric("suspicious_requests_total", "Total suspicious requests detected", "counter", securityMetrics.SuspiciousRequests)
	metric("uptime_seconds", "Application uptime in seconds", "gauge", int64(s.deps.Now().Sub(s.metrics.uptime).Seconds()))
}
