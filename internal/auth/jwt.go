package auth

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

// claims 兼容 GoTrue 签发的访问令牌：sub 为用户 ID，email 为邮箱。
type claims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// jwtManager 负责 HS256 令牌的签名、校验与吊销。
type jwtManager struct {
	secret    []byte
	issuer    string
	accessTTL time.Duration

	mu      sync.Mutex
	revoked map[string]time.Time
	now     func() time.Time
}

func newJWTManager(secret, issuer string, ttl time.Duration) *jwtManager {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &jwtManager{
		secret:    []byte(secret),
		issuer:    issuer,
		accessTTL: ttl,
		revoked:   make(map[string]time.Time),
		now:       time.Now,
	}
}

// Issue 为用户签发访问令牌。
func (m *jwtManager) Issue(user User) (*Session, error) {
	now := m.now()
	expires := now.Add(m.accessTTL)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Email: user.Email,
		Role:  "authenticated",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   user.ID,
			Audience:  jwt.ClaimStrings{"authenticated"},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			ID:        uuid.NewString(),
		},
	})
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	return &Session{
		User:        user,
		AccessToken: signed,
		TokenType:   "bearer",
		ExpiresAt:   expires.UTC(),
	}, nil
}

// Verify 校验令牌签名、有效期、签发者与吊销状态。
func (m *jwtManager) Verify(raw string) (*Session, *claims, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	var c claims
	token, err := parser.ParseWithClaims(raw, &c, func(*jwt.Token) (any, error) {
		return m.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, nil, ErrInvalidToken
	}
	if c.ExpiresAt == nil || c.ExpiresAt.Time.Before(m.now()) {
		return nil, nil, ErrInvalidToken
	}
	if m.issuer != "" && c.Issuer != "" && !strings.EqualFold(m.issuer, c.Issuer) {
		return nil, nil, ErrInvalidToken
	}
	if strings.TrimSpace(c.Subject) == "" {
		return nil, nil, ErrInvalidToken
	}
	if m.isRevoked(c.ID) {
		return nil, nil, ErrInvalidToken
	}
	return &Session{
		User:        User{ID: c.Subject, Email: c.Email},
		AccessToken: raw,
		TokenType:   "bearer",
		ExpiresAt:   c.ExpiresAt.Time.UTC(),
	}, &c, nil
}

// Revoke 将令牌加入吊销集合，直至其自然过期。
func (m *jwtManager) Revoke(raw string) error {
	_, c, err := m.Verify(raw)
	if err != nil {
		return err
	}
	if c.ID == "" {
		return errors.New("token has no id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for id, exp := range m.revoked {
		if exp.Before(now) {
			delete(m.revoked, id)
		}
	}
	m.revoked[c.ID] = c.ExpiresAt.Time
	return nil
}

func (m *jwtManager) isRevoked(id string) bool {
	if id == "" {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.revoked[id]
	return ok
}
