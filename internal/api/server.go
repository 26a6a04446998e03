package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/klauspost/compress/gzhttp"

	"github.com/kuitang/hostdesk/internal/errs"
	"github.com/kuitang/hostdesk/internal/metrics"
	"github.com/kuitang/hostdesk/internal/obs"
	"github.com/kuitang/hostdesk/internal/ratelimit"
)

var errAdminRequired = errs.New(errs.Unauthenticated, "admin token required")

// RouterConfig holds the cross-cutting pieces of the HTTP stack.
type RouterConfig struct {
	// Limiter throttles /auth/* and /account/* per client IP. Nil disables it.
	Limiter *ratelimit.RateLimiter
	// AdminToken guards plan writes. Empty leaves them open.
	AdminToken string
	// Ping reports storage health for /healthz.
	Ping func(ctx context.Context) error
}

// RegisterRoutes registers all API routes on the given mux
func (h *Handler) RegisterRoutes(mux *http.ServeMux, cfg RouterConfig) {
	limited := func(fn http.HandlerFunc) http.Handler {
		if cfg.Limiter == nil {
			return fn
		}
		return ratelimit.Middleware(cfg.Limiter, obs.ClientIP, onRateLimited)(fn)
	}
	admin := func(fn http.HandlerFunc) http.Handler {
		return requireAdmin(cfg.AdminToken, fn)
	}

	mux.Handle("POST /auth/register", limited(h.Register))
	mux.Handle("POST /auth/login", limited(h.Login))
	mux.Handle("POST /auth/password/reset", limited(h.RequestPasswordReset))
	mux.Handle("POST /auth/password/reset/confirm", limited(h.ConfirmPasswordReset))
	mux.Handle("POST /account/email", limited(h.RequestEmailChange))
	mux.Handle("GET /account/email/confirm", limited(h.ConfirmEmailChange))

	mux.HandleFunc("GET /plans", h.ListPlans)
	mux.HandleFunc("GET /plans/{id}", h.GetPlan)
	mux.Handle("POST /plans", admin(h.CreatePlan))
	mux.Handle("PUT /plans/{id}/constraints", admin(h.UpdateConstraints))
	mux.Handle("PUT /plans/{id}/capabilities", admin(h.UpdateCapabilities))

	mux.HandleFunc("GET /healthz", healthHandler(cfg.Ping))
	mux.Handle("GET /metrics", metrics.Handler())
}

// NewRouter builds the complete HTTP handler: routes wrapped with metrics,
// access logging, request correlation, and gzip.
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()
	h.RegisterRoutes(mux, cfg)

	var handler http.Handler = mux
	handler = metrics.InstrumentHandler(handler)
	handler = obs.AccessLogMiddleware("api", handler)
	handler = obs.RequestContextMiddleware(handler)
	return gzhttp.GzipHandler(handler)
}

var errRateLimited = errs.New(errs.ResourceExhausted, "too many requests")

func onRateLimited(w http.ResponseWriter, r *http.Request) {
	metrics.RecordRateLimited()
	obs.From(r.Context()).With("pkg", "api").Warn("rate_limited", "path", r.URL.Path)
	writeError(w, r, errRateLimited)
}

func requireAdmin(token string, next http.Handler) http.Handler {
	if token == "" {
		return next
	}
	want := []byte("Bearer " + token)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := []byte(strings.TrimSpace(r.Header.Get("Authorization")))
		if subtle.ConstantTimeCompare(got, want) != 1 {
			w.Header().Set("WWW-Authenticate", `Bearer realm="hostdesk"`)
			writeError(w, r, errAdminRequired)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func healthHandler(ping func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ping != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := ping(ctx); err != nil {
				writeError(w, r, errs.Wrap(errs.Unavailable, "database unavailable", err))
				return
			}
		}
		writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
	}
}
