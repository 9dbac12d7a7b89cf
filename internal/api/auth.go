package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"TxRelay-Chain/internal/observability/metrics"
	"TxRelay-Chain/pkg/logger"
)

// instrument 包装处理函数：校验静态 Bearer Token、记录审计日志并上报指标。
func (s *Server) instrument(name string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.authToken != "" {
			token := bearerToken(r.Header.Get("Authorization"))
			if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
				status := http.StatusUnauthorized
				http.Error(w, http.StatusText(status), status)
				logger.Audit().Warn("access_denied",
					"path", r.URL.Path,
					"method", r.Method,
					"status", status,
				)
				metrics.ObserveHTTPRequest(name, r.Method, status, 0)
				return
			}
		}

		start := time.Now()
		aw := &auditWriter{ResponseWriter: w, status: http.StatusOK}
		next(aw, r)
		duration := time.Since(start)

		metrics.ObserveHTTPRequest(name, r.Method, aw.status, duration)
		logger.Audit().Info("api_request",
			"event", name,
			"method", r.Method,
			"path", r.URL.Path,
			"status", aw.status,
			"duration_ms", duration.Milliseconds(),
		)
	}
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// auditWriter 捕获响应状态码用于审计与指标。
type auditWriter struct {
	http.ResponseWriter
	status int
}

// WriteHeader 捕获响应状态码并调用底层的 WriteHeader 方法。
func (w *auditWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
