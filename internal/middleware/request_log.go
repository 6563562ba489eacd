package middleware

import (
	"net/http"
	"time"

	"github.com/planner/internal/logger"
)

// RequestLog логирует method, path, статус и время выполнения (асинхронно, не блокирует).
// Медленные и ошибочные запросы — отдельной строкой с user_id.
func RequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrap, ok := w.(*responseWriter)
		if !ok {
			wrap = &responseWriter{ResponseWriter: w, status: http.StatusOK}
		}
		defer logger.DeferLogDuration("http "+r.Method+" "+r.URL.Path, start)()
		next.ServeHTTP(wrap, r)
		if wrap.status >= http.StatusInternalServerError {
			logger.Errorf("http %s %s -> %d user=%q", r.Method, r.URL.Path, wrap.status, GetUserID(r.Context()))
		} else if d := time.Since(start); d > 2*time.Second {
			logger.Warnf("http %s %s slow %v user=%q", r.Method, r.URL.Path, d, GetUserID(r.Context()))
		}
	})
}
