// Package http exposes the ledger as a JSON API. Identity resolution is
// external: every request carries the authenticated user id in the
// X-User-ID header and the server trusts it.
package http

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"buste/internal/cache"
	"buste/internal/log"
	"buste/internal/services"
)

type Server struct {
	http.Server
	accounts *services.AccountService
	ledger   *services.LedgerService
	balances *services.BalanceService

	rateLimiter  *rateLimiter
	summaryCache *cache.LRUCache[services.Summary]
	cacheManager *cache.Manager
	shutdownOnce sync.Once
}

// NewServer wires the routes and starts the cache cleanup goroutine.
func NewServer(addr string, accounts *services.AccountService, ledger *services.LedgerService, balances *services.BalanceService, cacheMaxSize int, cacheTTL time.Duration) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: mux,
		},
		accounts:     accounts,
		ledger:       ledger,
		balances:     balances,
		rateLimiter:  newRateLimiter(),
		summaryCache: cache.NewLRUCache[services.Summary](cacheMaxSize, cacheTTL),
		cacheManager: cache.NewManager(),
	}
	s.cacheManager.Register(s.summaryCache)
	s.cacheManager.StartCleanup(10 * time.Minute)

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", handleReady)

	mux.HandleFunc("GET /api/wallets", s.withMiddleware(s.handleListWallets))
	mux.HandleFunc("POST /api/wallets", s.withMiddleware(s.handleCreateWallet))
	mux.HandleFunc("GET /api/wallets/{id}", s.withMiddleware(s.handleGetWallet))
	mux.HandleFunc("PUT /api/wallets/{id}", s.withMiddleware(s.handleUpdateWallet))
	mux.HandleFunc("DELETE /api/wallets/{id}", s.withMiddleware(s.handleDeleteWallet))

	mux.HandleFunc("GET /api/funds", s.withMiddleware(s.handleListFunds))
	mux.HandleFunc("POST /api/funds", s.withMiddleware(s.handleCreateFund))
	mux.HandleFunc("GET /api/funds/{id}", s.withMiddleware(s.handleGetFund))
	mux.HandleFunc("PUT /api/funds/{id}", s.withMiddleware(s.handleUpdateFund))
	mux.HandleFunc("DELETE /api/funds/{id}", s.withMiddleware(s.handleDeleteFund))

	mux.HandleFunc("GET /api/events", s.withMiddleware(s.handleListEvents))
	mux.HandleFunc("POST /api/events", s.withMiddleware(s.handleCreateEvent))
	mux.HandleFunc("GET /api/events/{id}", s.withMiddleware(s.handleGetEvent))
	mux.HandleFunc("PATCH /api/events/{id}", s.withMiddleware(s.handleEditEvent))
	mux.HandleFunc("DELETE /api/events/{id}", s.withMiddleware(s.handleDeleteEvent))

	mux.HandleFunc("POST /api/pending/clear", s.withMiddleware(s.handleClearPending))
	mux.HandleFunc("GET /api/summary", s.withMiddleware(s.handleSummary))

	return s
}

// withMiddleware adds security headers, rate limiting on mutations, and
// request logging.
func (s *Server) withMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		clientIP := extractClientIP(r)
		requestID := generateRequestID()

		ctx := log.IntoContext(r.Context(), log.FromContext(r.Context()).With(log.FieldRequestID, requestID))
		r = r.WithContext(ctx)

		logger := log.FromContext(ctx)
		logger.InfoContext(ctx, "Request started",
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path,
			log.FieldClientIP, clientIP,
			log.FieldUserAgent, r.Header.Get("User-Agent"))

		if r.Method != http.MethodGet && !s.rateLimiter.allow(clientIP) {
			logger.WarnContext(ctx, "Rate limit exceeded",
				log.FieldClientIP, clientIP,
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path)
			w.Header().Set("Retry-After", "60")
			http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cache-Control", "no-store")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		logger.InfoContext(ctx, "Request completed",
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path,
			log.FieldStatusCode, rw.statusCode,
			log.FieldDuration, time.Since(start).Milliseconds(),
			log.FieldClientIP, clientIP)
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// identify reads the authenticated user id from the X-User-ID header and
// bootstraps the user on first contact. A false return means the response
// has already been written.
func (s *Server) identify(w http.ResponseWriter, r *http.Request) (int64, bool) {
	header := r.Header.Get("X-User-ID")
	userID, err := strconv.ParseInt(header, 10, 64)
	if err != nil || userID <= 0 {
		respondJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing or invalid X-User-ID header"})
		return 0, false
	}
	if err := s.accounts.Bootstrap(r.Context(), userID); err != nil {
		respondError(r, w, err)
		return 0, false
	}
	return userID, true
}

// invalidate drops every cached listing of the user after a mutation.
func (s *Server) invalidate(userID int64) {
	s.summaryCache.DeletePrefix(userCacheKey(userID, ""))
}

func userCacheKey(userID int64, suffix string) string {
	return fmt.Sprintf("u%d:%s", userID, suffix)
}

// Shutdown stops the HTTP server and the background cleanup goroutines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.stop()
		s.cacheManager.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
