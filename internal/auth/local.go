package auth

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	xerrors "SuiCoPilot/internal/errors"
)

// LocalProvider 使用本地账户库与 HS256 令牌完成认证。
type LocalProvider struct {
	store UserStore
	jwt   *jwtManager
}

// NewLocalProvider 创建本地认证提供者。
func NewLocalProvider(store UserStore, secret, issuer string, ttl time.Duration) (*LocalProvider, error) {
	if store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "jwt mode requires a user store")
	}
	if strings.TrimSpace(secret) == "" {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "jwt secret must be configured")
	}
	return &LocalProvider{store: store, jwt: newJWTManager(secret, issuer, ttl)}, nil
}

// SignIn 校验密码并签发令牌。
func (p *LocalProvider) SignIn(ctx context.Context, creds Credentials) (*Session, error) {
	creds = creds.normalise()
	if creds.Email == "" || creds.Password == "" {
		return nil, xerrors.Validation("email and password are required")
	}
	account, err := p.store.FindByEmail(ctx, creds.Email)
	if err != nil {
		if xerrors.HasCode(err, xerrors.CodeNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(creds.Password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return p.jwt.Issue(User{ID: account.ID, Email: account.Email})
}

// SignUp 创建账户并直接签发令牌。
func (p *LocalProvider) SignUp(ctx context.Context, creds Credentials) (*Session, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	creds = creds.normalise()
	hash, err := HashPassword(creds.Password)
	if err != nil {
		return nil, err
	}
	account := Account{
		ID:           uuid.NewString(),
		Email:        creds.Email,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := p.store.Create(ctx, account); err != nil {
		return nil, err
	}
	return p.jwt.Issue(User{ID: account.ID, Email: account.Email})
}

// SignOut 吊销令牌。
func (p *LocalProvider) SignOut(_ context.Context, accessToken string) error {
	return p.jwt.Revoke(accessToken)
}

// Verify 校验令牌。
func (p *LocalProvider) Verify(_ context.Context, accessToken string) (*Session, error) {
	session, _, err := p.jwt.Verify(accessToken)
	return session, err
}

// HashPassword 使用 bcrypt 计算密码哈希。
func HashPassword(password string) (string, error) {
	if strings.TrimSpace(password) == "" {
		return "", xerrors.Validation("password cannot be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeUnknown, err, "hash password")
	}
	return string(hash), nil
}
