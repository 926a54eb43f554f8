package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	xerrors "SuiCoPilot/internal/errors"
	"SuiCoPilot/pkg/logger"
)

// DevelopmentUser is the identity attached to every request when
// authentication is disabled.
var DevelopmentUser = User{ID: "00000000-0000-0000-0000-000000000000", Email: "dev@localhost"}

// Service 负责 HTTP 端点的身份验证。
type Service struct {
	mode     Mode
	provider Provider
	audit    *slog.Logger
}

// NewService 构造身份认证服务实例。store 仅在 jwt 模式下使用。
func NewService(ctx context.Context, cfg Config, store UserStore) (*Service, error) {
	mode := Mode(strings.ToLower(strings.TrimSpace(string(cfg.Mode))))
	if mode == "" {
		mode = ModeDisabled
	}
	svc := &Service{mode: mode, audit: logger.Audit()}

	switch mode {
	case ModeDisabled:
		return svc, nil
	case ModeJWT:
		local, err := NewLocalProvider(store, cfg.JWTSecret, cfg.Issuer, cfg.AccessTTL)
		if err != nil {
			return nil, err
		}
		svc.provider = local
		if ctx == nil {
			ctx = context.Background()
		}
		for _, seed := range cfg.Seeds {
			if _, err := local.SignUp(ctx, seed); err != nil && !xerrors.HasCode(err, xerrors.CodeConflict) {
				return nil, fmt.Errorf("apply seed %s: %w", seed.Email, err)
			}
		}
	case ModeSupabase:
		remote, err := NewSupabaseProvider(cfg.SupabaseURL, cfg.SupabaseAnonKey, cfg.JWTSecret, cfg.Timeout)
		if err != nil {
			return nil, err
		}
		svc.provider = remote
	default:
		return nil, fmt.Errorf("unsupported auth mode: %s", cfg.Mode)
	}
	return svc, nil
}

// NewServiceWithProvider 使用自定义 Provider 构造服务。
func NewServiceWithProvider(mode Mode, provider Provider) *Service {
	return &Service{mode: mode, provider: provider, audit: logger.Audit()}
}

// Mode 返回当前身份认证服务的工作模式。
func (s *Service) Mode() Mode {
	if s == nil {
		return ModeDisabled
	}
	return s.mode
}

// SignIn 登录。
func (s *Service) SignIn(ctx context.Context, creds Credentials) (*Session, error) {
	if s.provider == nil {
		return nil, ErrDisabled
	}
	session, err := s.provider.SignIn(ctx, creds)
	s.record("sign_in", creds.normalise().Email, err)
	return session, err
}

// SignUp 注册。
func (s *Service) SignUp(ctx context.Context, creds Credentials) (*Session, error) {
	if s.provider == nil {
		return nil, ErrDisabled
	}
	session, err := s.provider.SignUp(ctx, creds)
	s.record("sign_up", creds.normalise().Email, err)
	return session, err
}

// SignOut 注销。
func (s *Service) SignOut(ctx context.Context, session *Session) error {
	if s.provider == nil || session == nil {
		return nil
	}
	err := s.provider.SignOut(ctx, session.AccessToken)
	s.record("sign_out", session.User.Email, err)
	return err
}

// AuthenticateRequest 验证 Authorization 头并返回会话。
func (s *Service) AuthenticateRequest(ctx context.Context, authorization string) (*Session, error) {
	if s == nil || s.mode == ModeDisabled || s.provider == nil {
		return &Session{User: DevelopmentUser}, nil
	}
	parts := strings.SplitN(strings.TrimSpace(authorization), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return nil, ErrMissingToken
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return nil, ErrMissingToken
	}
	return s.provider.Verify(ctx, token)
}

func (s *Service) record(event, email string, err error) {
	if err != nil {
		s.audit.Warn(event, slog.String("email", email), slog.String("code", string(xerrors.CodeOf(err))))
		return
	}
	s.audit.Info(event, slog.String("email", email))
}
