package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/yourorg/staybook/internal/domain"
	"github.com/yourorg/staybook/internal/security/audit"
	"github.com/yourorg/staybook/internal/security/ratelimit"
)

// RateLimitMiddleware throttles requests per client address. Health,
// readiness and metrics endpoints are exempt.
func RateLimitMiddleware(limiter *ratelimit.Limiter, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/healthz" || r.URL.Path == "/readyz" || r.URL.Path == "/metrics" {
				next.ServeHTTP(w, r)
				return
			}

			client := clientAddr(r)
			allowed := limiter.Allow(client)
			if allowed && (r.Method == http.MethodDelete || r.Method == http.MethodPost) {
				// Destructive operations get a much tighter budget.
				allowed = limiter.AllowStrict(client, 10, time.Minute)
			}
			if !allowed {
				log.Warn("rate limit exceeded",
					slog.String("client", client),
					slog.String("path", r.URL.Path),
				)
				http.Error(w, `{"error":"rate limit exceeded"}`, http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// AuditMiddleware records every mutating lifecycle request before it
// reaches the engine, successful or not. The root ref is parsed from
// the raw path: the middleware runs outside the mux, so the request
// carries no matched path values yet.
func AuditMiddleware(auditLog *audit.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client := clientAddr(r)

			switch {
			case r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, "/api/entities/"):
				if ref, ok := cascadeRef(r.URL.Path); ok {
					auditLog.OperationRequested(r.Context(), "soft_delete", ref, client)
				}
			case r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/api/users/") && strings.HasSuffix(r.URL.Path, "/erase"):
				if id, ok := erasureUserID(r.URL.Path); ok {
					ref := domain.EntityRef{Type: domain.EntityUser, ID: id}
					auditLog.OperationRequested(r.Context(), "depersonalize", ref, client)
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// cascadeRef extracts the root ref from /api/entities/{type}/{id}.
func cascadeRef(path string) (domain.EntityRef, bool) {
	rest := strings.TrimPrefix(path, "/api/entities/")
	entityType, id, ok := strings.Cut(rest, "/")
	if !ok || entityType == "" || id == "" || strings.Contains(id, "/") {
		return domain.EntityRef{}, false
	}
	return domain.EntityRef{Type: domain.EntityType(entityType), ID: id}, true
}

// erasureUserID extracts the user ID from /api/users/{id}/erase.
func erasureUserID(path string) (string, bool) {
	id := strings.TrimSuffix(strings.TrimPrefix(path, "/api/users/"), "/erase")
	if id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

// CORSMiddleware answers preflight requests and stamps the allowed
// origin on every response. Unknown origins fall back to the first
// configured one.
func CORSMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if originAllowed(allowedOrigins, origin) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
			} else if len(allowedOrigins) > 0 {
				w.Header().Set("Access-Control-Allow-Origin", allowedOrigins[0])
			}
			w.Header().Set("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func originAllowed(allowed []string, origin string) bool {
	if origin == "" {
		return false
	}
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
	}
	return false
}

func clientAddr(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
