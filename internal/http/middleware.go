package httpx

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"runtime/debug"
	"slices"
	"strconv"
	"strings"
	"time"

	domainauth "github.com/upstars/corporate-discounts/internal/domain/auth"
	apperrors "github.com/upstars/corporate-discounts/internal/errors"
	"golang.org/x/time/rate"
)

// Middleware wraps an http.Handler.
type Middleware func(http.Handler) http.Handler

// Chain applies mws so that the first one is the outermost.
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// Logging returns a middleware that logs HTTP requests and responses.
func Logging(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &respWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.InfoContext(r.Context(), "http",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.status),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

type respWriter struct {
	http.ResponseWriter
	status int
}

func (w *respWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *respWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// Recover returns a middleware that recovers from panics and logs them.
func Recover(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}
					logger.ErrorContext(r.Context(), "panic",
						slog.Any("error", err),
						slog.String("path", r.URL.Path),
						slog.String("method", r.Method),
						slog.String("stack", string(debug.Stack())))
					WriteError(w, ErrorParams{
						Code:    http.StatusInternalServerError,
						ErrCode: string(apperrors.ErrCodeInternal),
						Err:     errors.New(msgInternal),
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// DefaultContentSecurityPolicy restricts the browser app to its own origin
// plus the identity provider it signs in with.
const DefaultContentSecurityPolicy = "default-src 'self'; " +
	"script-src 'self' 'unsafe-inline' https://accounts.google.com https://apis.google.com; " +
	"style-src 'self' 'unsafe-inline' https://fonts.googleapis.com; " +
	"font-src 'self' https://fonts.gstatic.com; " +
	"img-src 'self' data: https: blob:; " +
	"connect-src 'self' https://accounts.google.com https://oauth2.googleapis.com; " +
	"frame-src https://accounts.google.com; object-src 'none'; base-uri 'self'"

// SecurityHeaders sets the hardening headers on every response.
// An empty csp uses DefaultContentSecurityPolicy.
func SecurityHeaders(csp string) Middleware {
	if csp == "" {
		csp = DefaultContentSecurityPolicy
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-XSS-Protection", "1; mode=block")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			h.Set("Content-Security-Policy", csp)
			next.ServeHTTP(w, r)
		})
	}
}

const (
	corsAllowMethods = "GET, POST, PUT, DELETE, OPTIONS"
	corsAllowHeaders = "Content-Type, Authorization, Cache-Control, Pragma"
	corsMaxAge       = "86400"
)

// CORS answers preflight requests and decorates responses with
// Access-Control headers. A request Origin outside allowed is answered with
// the first allowed origin, which the browser will then refuse.
func CORS(allowed []string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if origin := allowedOrigin(allowed, r.Header.Get("Origin")); origin != "" {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Methods", corsAllowMethods)
				h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
				h.Set("Access-Control-Max-Age", corsMaxAge)
				h.Add("Vary", "Origin")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func allowedOrigin(allowed []string, origin string) string {
	if len(allowed) == 0 {
		return ""
	}
	if origin != "" && slices.Contains(allowed, origin) {
		return origin
	}
	return allowed[0]
}

// RateLimiter admits or rejects attempts per key.
type RateLimiter interface {
	Allow(key string) bool
	RetryAfter(key string) time.Duration
}

// RateLimitOptions configures the RateLimit middleware.
type RateLimitOptions struct {
	Limiter  RateLimiter  // Required: attempt counter for this route class
	IPHeader string       // Optional: trusted client IP header
	Message  string       // Optional: 429 message, defaults to a generic one
	Logger   *slog.Logger // Optional: structured logger
}

// RateLimit rejects callers over their attempt budget with 429 before the
// wrapped handler runs.
func RateLimit(opts RateLimitOptions) Middleware {
	msg := opts.Message
	if msg == "" {
		msg = msgTooManyReqs
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	// A flood of rejected attempts would otherwise flood the log.
	sometimes := &rate.Sometimes{First: 10, Interval: time.Minute}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ClientIP(r, opts.IPHeader)
			if !opts.Limiter.Allow(ip) {
				sometimes.Do(func() {
					logger.WarnContext(r.Context(), "rate limited",
						slog.String("ip", ip),
						slog.String("path", r.URL.Path))
				})
				if d := opts.Limiter.RetryAfter(ip); d > 0 {
					w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(d.Seconds()))))
				}
				WriteError(w, ErrorParams{
					Code:    http.StatusTooManyRequests,
					ErrCode: string(apperrors.ErrCodeRateLimited),
					Err:     errors.New(msg),
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// TokenAuthorizer verifies a session token and checks its role.
type TokenAuthorizer interface {
	Authorize(ctx context.Context, token string, min domainauth.Role) (*domainauth.SessionClaims, error)
}

// RequireToken returns a middleware that admits only requests carrying a
// bearer session token whose role is at least min. The verified claims are
// stored in the request context.
func RequireToken(authz TokenAuthorizer, min domainauth.Role, logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				WriteAppError(w, r, logger, apperrors.New(apperrors.ErrCodeAuthenticationRequired, "no bearer token"))
				return
			}
			claims, err := authz.Authorize(r.Context(), token, min)
			if err != nil {
				WriteAppError(w, r, logger, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(SetClaimsInContext(r.Context(), claims)))
		})
	}
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(r *http.Request) (string, bool) {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) < len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(h[len(prefix):])
	return token, token != ""
}
