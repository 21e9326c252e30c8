// Package middleware provides the HTTP chain wrapped around every
// ingestion API route: request id, structured access logging, security
// headers, and rate limiting. Middleware here follows the
// func(next http.Handler) http.Handler closure style used elsewhere in
// the pack for request interception.
package middleware

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/standardbeagle/docparse/internal/ratelimit"
)

type contextKey string

const requestIDKey contextKey = "request_id"

// RequestID returns the request id stashed in ctx by the RequestID
// middleware, or "" if none is present.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithRequestID stamps every request with an id (reusing an inbound
// X-Request-Id header when present), exposes it via RequestID(ctx), and
// echoes it back in the response header.
func WithRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set("X-Request-Id", id)
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// statusRecorder captures the status code written by the wrapped
// handler, defaulting to 200 if WriteHeader is never called.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// WithAccessLog logs method, path, status, duration, and request id for
// every request.
func WithAccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Printf("request_id=%s method=%s path=%s status=%d duration=%s",
			RequestID(r.Context()), r.Method, r.URL.Path, rec.status, time.Since(start))
	})
}

// WithSecurityHeaders sets conservative defaults appropriate for an API
// that only ever serves JSON and accepts file uploads.
func WithSecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Content-Security-Policy", "default-src 'none'")
		h.Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

// WithRateLimit rejects requests once principal (derived by the caller,
// e.g. an API key or remote address) exhausts its token bucket.
func WithRateLimit(limiter *ratelimit.Limiter, principalOf func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := principalOf(r)
			ok, retryAfter := limiter.Allow(principal)
			if !ok {
				w.Header().Set("Retry-After", formatSeconds(retryAfter))
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func formatSeconds(d time.Duration) string {
	secs := int(d.Seconds())
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

// Chain composes middleware in the order given, so Chain(a, b)(h) wraps
// h with b first, then a, matching the order they read left to right.
func Chain(mws ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		for i := len(mws) - 1; i >= 0; i-- {
			h = mws[i](h)
		}
		return h
	}
}
