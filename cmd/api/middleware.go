package main

import (
	"context"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"escrowflow/access"
	"escrowflow/pkg/logger"

	"github.com/go-chi/chi/v5/middleware"
)

const requestIDHeader = "X-Request-ID"

// requestID runs chi's RequestID and hands the id to the logger and the client.
func requestID(next http.Handler) http.Handler {
	return middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := middleware.GetReqID(r.Context())
		w.Header().Set(requestIDHeader, id)
		ctx := context.WithValue(r.Context(), logger.RequestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	}))
}

func recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			logger.Error(r.Context(), "panic recovered",
				"error", rec,
				"path", r.URL.Path,
				"method", r.Method,
				"stack", string(debug.Stack()),
			)
			writeJSON(w, http.StatusInternalServerError, map[string]any{
				"error":      "Internal server error",
				"request_id": r.Context().Value(logger.RequestIDKey),
			})
		}()
		next.ServeHTTP(w, r)
	})
}

// accessLog logs each request at a level chosen by its status class.
func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"bytes", ww.BytesWritten(),
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", clientIP(r),
		}
		switch {
		case status >= 500:
			logger.Error(r.Context(), "request completed", attrs...)
		case status >= 400:
			logger.Warn(r.Context(), "request completed", attrs...)
		default:
			logger.Info(r.Context(), "request completed", attrs...)
		}
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow(clientIP(r), time.Now()) {
			writeError(w, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireAuth resolves the bearer access token to a caller.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			writeError(w, http.StatusUnauthorized, "Authentication credentials were not provided.")
			return
		}
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			writeError(w, http.StatusUnauthorized, "Invalid authorization header format")
			return
		}

		user, err := s.authService.Authenticate(r.Context(), strings.TrimSpace(token))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		ctx := access.WithCaller(r.Context(), access.Caller{UserID: user.ID, Superuser: user.IsSuperuser})
		ctx = context.WithValue(ctx, logger.UserIDKey, user.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type windowState struct {
	start time.Time
	count int
}

// fixedWindowLimiter admits up to limit requests per key in each window.
type fixedWindowLimiter struct {
	limit  int
	window time.Duration

	mu    sync.Mutex
	byKey map[string]windowState
}

func newFixedWindowLimiter(limit int, window time.Duration) *fixedWindowLimiter {
	if limit <= 0 || window <= 0 {
		return nil
	}
	return &fixedWindowLimiter{limit: limit, window: window, byKey: map[string]windowState{}}
}

func (l *fixedWindowLimiter) Allow(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.byKey[key]
	if !ok || now.Sub(st.start) >= l.window {
		l.byKey[key] = windowState{start: now, count: 1}
		if len(l.byKey) > 10000 {
			l.evict(now)
		}
		return true
	}
	if st.count >= l.limit {
		return false
	}
	st.count++
	l.byKey[key] = st
	return true
}

// evict drops windows that have already expired.
func (l *fixedWindowLimiter) evict(now time.Time) {
	for k, st := range l.byKey {
		if now.Sub(st.start) >= l.window {
			delete(l.byKey, k)
		}
	}
}
