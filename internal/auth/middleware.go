package auth

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"SuiCoPilot/internal/notify"
)

// MiddlewareConfig 配置身份认证中间件的行为。
type MiddlewareConfig struct {
	// AuditEvent 是审计日志中的事件名，为空时使用请求路径。
	AuditEvent string
}

// Middleware 校验 Authorization 头，通过后把 Session 放入请求上下文。
// 失败时以 toast 形式返回 401，并写入审计日志。
func (s *Service) Middleware(cfg MiddlewareConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, err := s.AuthenticateRequest(r.Context(), r.Header.Get("Authorization"))
			if err != nil {
				status := notify.Status(err)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(status)
				_ = json.NewEncoder(w).Encode(notify.FromError(err))
				s.audit.LogAttrs(r.Context(), slog.LevelWarn, "access_denied",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.Int("status", status),
					slog.String("auth_mode", string(s.mode)),
					slog.String("error", err.Error()),
				)
				return
			}

			event := cfg.AuditEvent
			if event == "" {
				event = r.URL.Path
			}
			started := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(WithSession(r.Context(), session)))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			s.audit.LogAttrs(r.Context(), slog.LevelInfo, "api_request",
				slog.String("event", event),
				slog.String("method", r.Method),
				slog.Int("status", status),
				slog.Int64("duration_ms", time.Since(started).Milliseconds()),
				slog.String("user_id", session.UserID()),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
