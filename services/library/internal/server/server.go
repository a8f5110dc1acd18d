package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"onelibrary/internal/ratelimit"
	"onelibrary/internal/util"
	"onelibrary/services/library/internal/app"
)

const maxBodyBytes = 1 << 20

// Config wires required dependencies for the HTTP server.
type Config struct {
	App *app.App
	// RedisAddr enables per-client rate limiting of write endpoints.
	RedisAddr               string
	RedisPassword           string
	WriteRateLimitPerMinute int
	TrustedProxies          *util.TrustedProxies
	CORSAllowedOrigins      []string
}

// Server exposes HTTP endpoints for books and loans.
type Server struct {
	app            *app.App
	mux            *http.ServeMux
	writeLimiter   *ratelimit.FixedWindowLimiter
	trustedProxies *util.TrustedProxies
	corsOrigins    []string
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, fmt.Errorf("app is required")
	}
	s := &Server{
		app:            cfg.App,
		mux:            http.NewServeMux(),
		trustedProxies: cfg.TrustedProxies,
		corsOrigins:    cfg.CORSAllowedOrigins,
	}
	if strings.TrimSpace(cfg.RedisAddr) != "" {
		limit := cfg.WriteRateLimitPerMinute
		if limit <= 0 {
			limit = 60
		}
		limiter, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, "library:ratelimit:write", limit, time.Minute)
		if err != nil {
			return nil, fmt.Errorf("init write limiter: %w", err)
		}
		s.writeLimiter = limiter
	} else {
		slog.Info("write rate limiting disabled", "reason", "redisAddr not configured")
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("library", util.WithSecurityHeaders(util.WithCORS(s.corsOrigins, s.mux))))
}

// Close releases the rate limiter connection.
func (s *Server) Close() error {
	if s.writeLimiter == nil {
		return nil
	}
	return s.writeLimiter.Close()
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// books
	s.mux.HandleFunc("/books", s.handleBooks)
	s.mux.HandleFunc("/books/", s.handleBookByID)

	// loans
	s.mux.HandleFunc("/loans", s.handleLoans)
	s.mux.HandleFunc("/loans/", s.handleLoanByID)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.app.Store().Ping(ctx); err != nil {
		util.LoggerFromContext(r.Context()).Error("health check failed", "err", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// allowWrite applies the write quota; it writes the 429 itself when denied.
func (s *Server) allowWrite(w http.ResponseWriter, r *http.Request, route string) bool {
	if s.writeLimiter == nil {
		return true
	}
	ip := util.ClientIP(r, s.trustedProxies)
	if s.writeLimiter.Allow(r.Context(), route+"|"+ip) {
		return true
	}
	util.LoggerFromContext(r.Context()).Warn("write rate limited", "route", route, "ip", ip)
	w.Header().Set("Retry-After", strconv.Itoa(int(s.writeLimiter.RetryAfter().Seconds())))
	writeError(w, http.StatusTooManyRequests, msgRateLimited)
	return false
}

// idFromPath splits "/prefix/{id}/rest" into id and the remaining segment.
func idFromPath(path, prefix string) (int64, string, bool) {
	rest := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	parts := strings.SplitN(rest, "/", 2)
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, "", false
	}
	if len(parts) == 2 {
		return id, parts[1], true
	}
	return id, "", true
}

// pageFromQuery reads zero-based "page" and "size"; absent values mean defaults.
func (s *Server) pageFromQuery(r *http.Request) (page, size int, ok bool) {
	q := r.URL.Query()
	parse := func(key string) (int, bool) {
		raw := strings.TrimSpace(q.Get(key))
		if raw == "" {
			return 0, true
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return 0, false
		}
		return n, true
	}
	page, okPage := parse("page")
	size, okSize := parse("size")
	return page, size, okPage && okSize
}
