package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/rl1809/review-platform/internal/observability"
)

type ctxKey int

const (
	correlationIDKey ctxKey = iota
	loggerKey
)

const correlationHeader = "X-Correlation-ID"

func CorrelationIDMiddleware(logger *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			corrID := r.Header.Get(correlationHeader)
			if corrID == "" {
				corrID = uuid.New().String()
			}
			w.Header().Set(correlationHeader, corrID)

			ctx := context.WithValue(r.Context(), correlationIDKey, corrID)
			ctx = context.WithValue(ctx, loggerKey, logger.With(zap.String("correlation_id", corrID)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(recorder, r)

		route := routeTemplate(r)
		observability.HTTPRequestsTotal.WithLabelValues(r.Method, route, statusClass(recorder.statusCode)).Inc()
		observability.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// RateLimitMiddleware answers 429 once the bucket is empty. A nil limiter disables it.
func RateLimitMiddleware(limiter *rate.Limiter) mux.MiddlewareFunc {
	if limiter == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				loggerFrom(r, zap.NewNop()).Debug("rate limit denied")
				writeFail(w, http.StatusTooManyRequests, "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RecoverMiddleware turns a handler panic into a 500.
func RecoverMiddleware(logger *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					loggerFrom(r, logger).Error("handler panicked", zap.Any("panic", rec), zap.Stack("stack"))
					writeFail(w, http.StatusInternalServerError, "internal error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func loggerFrom(r *http.Request, fallback *zap.Logger) *zap.Logger {
	if logger, ok := r.Context().Value(loggerKey).(*zap.Logger); ok && logger != nil {
		return logger
	}
	return fallback
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func statusClass(code int) string {
	return fmt.Sprintf("%dxx", code/100)
}
