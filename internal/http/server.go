package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"djassa/internal/assistant"
	"djassa/internal/core"
	applog "djassa/internal/log"
	"djassa/internal/middleware/ratelimit"
	"djassa/internal/middleware/security"
	"djassa/internal/middleware/trace"
	"djassa/internal/services"
)

type contextKey string

const shopContextKey contextKey = "shop"

// Services are the application services the API exposes.
type Services struct {
	Auth      *services.AuthService
	Ledger    *services.LedgerService
	Reports   *services.ReportService
	Assistant *assistant.Assistant
	// Ready reports whether backing stores are reachable. Nil means always ready.
	Ready func(ctx context.Context) error
}

// Config holds the HTTP layer settings.
type Config struct {
	Addr          string
	StaticDir     string
	AuthRateLimit int
	APIRateLimit  int
	Logger        *applog.Logger
}

type Server struct {
	http.Server
	auth      *services.AuthService
	ledger    *services.LedgerService
	reports   *services.ReportService
	assistant *assistant.Assistant
	ready     func(ctx context.Context) error

	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware
	authLimiter      *ratelimit.Limiter
	apiLimiter       *ratelimit.Limiter

	startedAt    time.Time
	now          func() time.Time
	shutdownOnce sync.Once
}

// NewServer wires routes and middleware, returning a ready-to-run server.
func NewServer(cfg Config, svc Services) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}

	s := &Server{
		auth:             svc.Auth,
		ledger:           svc.Ledger,
		reports:          svc.Reports,
		assistant:        svc.Assistant,
		ready:            svc.Ready,
		securityDetector: security.NewDetector(),
		authLimiter:      ratelimit.NewLimiter(ratelimit.Config{Limit: cfg.AuthRateLimit, Window: time.Minute}),
		apiLimiter:       ratelimit.NewLimiter(ratelimit.Config{Limit: cfg.APIRateLimit, Window: time.Minute}),
		startedAt:        time.Now(),
		now:              time.Now,
	}
	s.traceMiddleware = trace.NewMiddleware(s.clientIP)

	mux := http.NewServeMux()
	s.routes(mux, cfg.StaticDir)

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	var handler http.Handler = mux
	handler = s.securityDetector.Middleware(handler)
	handler = trace.Recover(handler)
	handler = applog.Middleware(logger, trace.GetRequestID)(handler)
	handler = headers.Middleware(handler)
	handler = s.traceMiddleware.Middleware(handler)

	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) routes(mux *http.ServeMux, staticDir string) {
	authLimit := s.authLimiter.Middleware(s.clientIP, writeRateLimited)
	apiLimit := s.apiLimiter.Middleware(s.clientIP, writeRateLimited)

	public := func(h http.HandlerFunc) http.Handler { return authLimit(h) }
	private := func(h shopHandler) http.Handler { return apiLimit(s.requireShop(h)) }

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.Handle("POST /api/auth/signup", public(s.handleSignup))
	mux.Handle("POST /api/auth/login", public(s.handleLogin))
	mux.Handle("POST /api/auth/verify-pin", authLimit(s.requireShop(s.handleVerifyPIN)))
	mux.Handle("POST /api/auth/logout", private(s.handleLogout))

	mux.Handle("GET /api/dashboard", private(s.handleDashboard))

	mux.Handle("GET /api/products", private(s.handleListProducts))
	mux.Handle("POST /api/products", private(s.handleCreateProduct))
	mux.Handle("PATCH /api/products/{id}/stock", private(s.handleAdjustStock))
	mux.Handle("DELETE /api/products/{id}", private(s.handleDeleteProduct))

	mux.Handle("GET /api/sales", private(s.handleListSales))
	mux.Handle("POST /api/sales", private(s.handleCreateSale))
	mux.Handle("DELETE /api/sales/{id}", private(s.handleDeleteSale))

	mux.Handle("GET /api/expenses", private(s.handleListExpenses))
	mux.Handle("POST /api/expenses", private(s.handleCreateExpense))
	mux.Handle("DELETE /api/expenses/{id}", private(s.handleDeleteExpense))
	mux.Handle("GET /api/expenses/frequent", private(s.handleFrequentExpenses))
	mux.Handle("GET /api/expenses/categories", private(s.handleListCategories))
	mux.Handle("POST /api/expenses/categories", private(s.handleCreateCategory))

	mux.Handle("GET /api/debts", private(s.handleListDebts))
	mux.Handle("POST /api/debts", private(s.handleCreateDebt))
	mux.Handle("DELETE /api/debts/{id}", private(s.handleDeleteDebt))
	mux.Handle("POST /api/debts/{id}/payments", private(s.handlePayDebt))

	mux.Handle("GET /api/goals", private(s.handleListGoals))
	mux.Handle("POST /api/goals", private(s.handleCreateGoal))

	mux.Handle("POST /api/assistant/voice", private(s.handleVoice))
	mux.Handle("POST /api/assistant/chat", private(s.handleChat))
	mux.Handle("GET /api/assistant/history", private(s.handleHistory))
	mux.Handle("DELETE /api/assistant/history", private(s.handleClearHistory))
	mux.Handle("POST /api/assistant/message", private(s.handleMessage))

	mux.Handle("GET /api/reports/net-profit", private(s.handleNetProfit))
	mux.Handle("GET /api/reports/{type}", private(s.handleReport))

	mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		NotFoundError("Route introuvable").Write(w)
	})
	mux.Handle("/", newSPAHandler(staticDir))
}

// shopHandler is a handler running on behalf of an authenticated shop.
type shopHandler func(w http.ResponseWriter, r *http.Request, shop core.Shop)

// requireShop resolves the bearer token into a shop or answers 401.
func (s *Server) requireShop(next shopHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			UnauthorizedError("Authentification requise").Write(w)
			return
		}
		shop, err := s.auth.Authenticate(r.Context(), token)
		if err != nil {
			writeError(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), shopContextKey, shop)
		applog.FromContext(ctx).DebugContext(ctx, "Request authenticated", applog.FieldShopID, shop.ID)
		next(w, r.WithContext(ctx), shop)
	})
}

func writeRateLimited(w http.ResponseWriter, r *http.Request) {
	slog.WarnContext(r.Context(), "Rate limit exceeded", "path", r.URL.Path)
	ErrorResponse(http.StatusTooManyRequests, "Trop de requêtes. Réessayez plus tard.").Write(w)
}

// Shutdown stops the limiters and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.authLimiter.Stop()
		s.apiLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			slog.WarnContext(r.Context(), "Readiness check failed", "error", err)
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
		"requests":       s.traceMiddleware.GetMetrics(),
		"security":       s.securityDetector.GetMetrics(),
		"rate_limit": map[string]any{
			"auth": s.authLimiter.GetMetrics(),
			"api":  s.apiLimiter.GetMetrics(),
		},
		"assistant_enabled": s.assistant != nil && s.assistant.Enabled(),
	})
}
