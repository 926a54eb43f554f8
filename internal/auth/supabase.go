package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	xerrors "SuiCoPilot/internal/errors"
)

// SupabaseProvider 通过 GoTrue REST 接口完成认证。配置了 JWT secret 时，
// 令牌在本地校验，否则调用 /auth/v1/user。
type SupabaseProvider struct {
	baseURL string
	anonKey string
	client  *http.Client
	jwt     *jwtManager
}

// gotrueSession 定义 GoTrue 令牌响应的结构。
type gotrueSession struct {
	AccessToken string     `json:"access_token"`
	TokenType   string     `json:"token_type"`
	ExpiresIn   int64      `json:"expires_in"`
	ExpiresAt   int64      `json:"expires_at"`
	User        gotrueUser `json:"user"`
}

type gotrueUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// gotrueError 兼容 GoTrue 不同版本的错误格式。
type gotrueError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
}

func (e gotrueError) text() string {
	for _, s := range []string{e.ErrorDescription, e.Msg, e.Message, e.Error} {
		if strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

// NewSupabaseProvider 创建 GoTrue 客户端。
func NewSupabaseProvider(baseURL, anonKey, jwtSecret string, timeout time.Duration) (*SupabaseProvider, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "supabase url must be configured")
	}
	if strings.TrimSpace(anonKey) == "" {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "supabase anon key must be configured")
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	p := &SupabaseProvider{
		baseURL: baseURL,
		anonKey: anonKey,
		client:  &http.Client{Timeout: timeout},
	}
	if strings.TrimSpace(jwtSecret) != "" {
		p.jwt = newJWTManager(jwtSecret, "", 0)
	}
	return p, nil
}

// SignIn 使用 password grant 获取会话。
func (p *SupabaseProvider) SignIn(ctx context.Context, creds Credentials) (*Session, error) {
	creds = creds.normalise()
	if creds.Email == "" || creds.Password == "" {
		return nil, xerrors.Validation("email and password are required")
	}
	var out gotrueSession
	status, msg, err := p.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=password", "", creds, &out)
	if err != nil {
		return nil, err
	}
	if status >= 400 && status < 500 {
		return nil, xerrors.New(xerrors.CodeUnauthenticated, orDefault(msg, ErrInvalidCredentials.Message()))
	}
	if status >= 300 {
		return nil, xerrors.Network(fmt.Errorf("status %d: %s", status, msg), "认证服务返回错误")
	}
	return out.session(), nil
}

// SignUp 注册账户。开启邮件确认时返回的会话不包含令牌。
func (p *SupabaseProvider) SignUp(ctx context.Context, creds Credentials) (*Session, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	creds = creds.normalise()
	var raw json.RawMessage
	status, msg, err := p.do(ctx, http.MethodPost, "/auth/v1/signup", "", creds, &raw)
	if err != nil {
		return nil, err
	}
	if status >= 400 && status < 500 {
		if strings.Contains(strings.ToLower(msg), "already") {
			return nil, xerrors.New(xerrors.CodeConflict, msg)
		}
		return nil, xerrors.Validation(orDefault(msg, "sign up rejected"))
	}
	if status >= 300 {
		return nil, xerrors.Network(fmt.Errorf("status %d: %s", status, msg), "认证服务返回错误")
	}

	var withSession gotrueSession
	if err := json.Unmarshal(raw, &withSession); err == nil && withSession.AccessToken != "" {
		return withSession.session(), nil
	}
	var user gotrueUser
	if err := json.Unmarshal(raw, &user); err != nil || user.ID == "" {
		return nil, xerrors.Network(errors.New("unexpected signup response"), "解析认证服务响应失败")
	}
	return &Session{User: User{ID: user.ID, Email: user.Email}}, nil
}

// SignOut 使令牌失效。
func (p *SupabaseProvider) SignOut(ctx context.Context, accessToken string) error {
	status, msg, err := p.do(ctx, http.MethodPost, "/auth/v1/logout", accessToken, nil, nil)
	if err != nil {
		return err
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return ErrInvalidToken
	}
	if status >= 300 {
		return xerrors.Network(fmt.Errorf("status %d: %s", status, msg), "注销失败")
	}
	if p.jwt != nil {
		_ = p.jwt.Revoke(accessToken)
	}
	return nil
}

// Verify 校验令牌并返回会话。
func (p *SupabaseProvider) Verify(ctx context.Context, accessToken string) (*Session, error) {
	if p.jwt != nil {
		session, _, err := p.jwt.Verify(accessToken)
		return session, err
	}
	var user gotrueUser
	status, msg, err := p.do(ctx, http.MethodGet, "/auth/v1/user", accessToken, nil, &user)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return nil, ErrInvalidToken
	}
	if status >= 300 || user.ID == "" {
		return nil, xerrors.Network(fmt.Errorf("status %d: %s", status, msg), "校验会话失败")
	}
	return &Session{User: User{ID: user.ID, Email: user.Email}, AccessToken: accessToken, TokenType: "bearer"}, nil
}

// do 发送请求，2xx 时解码到 out，否则返回状态码与错误描述。
func (p *SupabaseProvider) do(ctx context.Context, method, path, bearer string, body, out any) (int, string, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, "", fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reader)
	if err != nil {
		return 0, "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("apikey", p.anonKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	token := p.anonKey
	if bearer != "" {
		token = bearer
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, "", xerrors.Network(err, "调用认证服务失败")
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, "", xerrors.Network(err, "读取认证服务响应失败")
	}
	if resp.StatusCode >= 300 {
		var e gotrueError
		_ = json.Unmarshal(data, &e)
		return resp.StatusCode, orDefault(e.text(), strings.TrimSpace(string(data))), nil
	}
	if out != nil && len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return 0, "", xerrors.Network(err, "解析认证服务响应失败")
		}
	}
	return resp.StatusCode, "", nil
}

func (s gotrueSession) session() *Session {
	out := &Session{
		User:        User{ID: s.User.ID, Email: s.User.Email},
		AccessToken: s.AccessToken,
		TokenType:   s.TokenType,
	}
	switch {
	case s.ExpiresAt > 0:
		out.ExpiresAt = time.Unix(s.ExpiresAt, 0).UTC()
	case s.ExpiresIn > 0:
		out.ExpiresAt = time.Now().Add(time.Duration(s.ExpiresIn) * time.Second).UTC()
	}
	return out
}

func orDefault(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
