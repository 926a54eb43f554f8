package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"SuiCoPilot/internal/observability/metrics"
)

// cors 处理跨域请求头，显式列出的来源才允许携带凭证。
func cors(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" {
				for _, o := range allowedOrigins {
					if o != "*" && o != origin {
						continue
					}
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
					w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Wallet-Address, X-Sui-Network, apikey, x-client-info")
					w.Header().Add("Vary", "Origin")
					if o != "*" {
						w.Header().Set("Access-Control-Allow-Credentials", "true")
					}
					break
				}
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requestFormatter 将访问日志写入 slog，并顺带记录 HTTP 指标。
type requestFormatter struct {
	logger *slog.Logger
}

func (f *requestFormatter) NewLogEntry(r *http.Request) middleware.LogEntry {
	return &requestEntry{logger: f.logger, r: r}
}

type requestEntry struct {
	logger *slog.Logger
	r      *http.Request
}

func (e *requestEntry) Write(status, bytes int, _ http.Header, elapsed time.Duration, _ interface{}) {
	route := e.r.URL.Path
	if rctx := chi.RouteContext(e.r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			route = pattern
		}
	}
	metrics.ObserveHTTPRequest(route, e.r.Method, status, elapsed)
	if strings.HasPrefix(route, "/metrics") {
		return
	}
	level := slog.LevelInfo
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	e.logger.Log(e.r.Context(), level, "http_request",
		slog.String("request_id", middleware.GetReqID(e.r.Context())),
		slog.String("method", e.r.Method),
		slog.String("route", route),
		slog.Int("status", status),
		slog.Int("bytes", bytes),
		slog.Duration("elapsed", elapsed),
		slog.String("remote", e.r.RemoteAddr),
	)
}

func (e *requestEntry) Panic(v interface{}, stack []byte) {
	e.logger.Error("http_panic",
		slog.String("request_id", middleware.GetReqID(e.r.Context())),
		slog.Any("panic", v),
		slog.String("stack", string(stack)),
	)
}
