package auth

import (
	"context"
	"strings"
	"time"

	xerrors "SuiCoPilot/internal/errors"
)

// Common errors returned by the authentication subsystem.
var (
	ErrDisabled           = xerrors.New(xerrors.CodeValidation, "authentication disabled")
	ErrInvalidCredentials = xerrors.New(xerrors.CodeUnauthenticated, "Invalid login credentials")
	ErrInvalidToken       = xerrors.New(xerrors.CodeUnauthenticated, "invalid or expired session")
	ErrMissingToken       = xerrors.New(xerrors.CodeUnauthenticated, "missing bearer token")
)

// User is the authenticated identity.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Wallet is the wallet the user connected, if any.
type Wallet struct {
	Address string `json:"address,omitempty"`
	Network string `json:"network,omitempty"`
}

// Session is passed explicitly to every service acting on behalf of a user.
type Session struct {
	User        User      `json:"user"`
	AccessToken string    `json:"access_token,omitempty"`
	TokenType   string    `json:"token_type,omitempty"`
	ExpiresAt   time.Time `json:"expires_at,omitempty"`
	Wallet      Wallet    `json:"wallet"`
}

// UserID returns the user id or an empty string for a nil session.
func (s *Session) UserID() string {
	if s == nil {
		return ""
	}
	return s.User.ID
}

// WithWallet returns a copy of the session bound to a wallet.
func (s *Session) WithWallet(address, network string) *Session {
	if s == nil {
		return nil
	}
	clone := *s
	clone.Wallet = Wallet{Address: strings.TrimSpace(address), Network: strings.TrimSpace(network)}
	return &clone
}

// Credentials is the email/password pair used by sign-in and sign-up.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (c Credentials) normalise() Credentials {
	return Credentials{Email: strings.ToLower(strings.TrimSpace(c.Email)), Password: c.Password}
}

// Validate rejects malformed credentials before any request is made.
func (c Credentials) Validate() error {
	c = c.normalise()
	if c.Email == "" || !strings.Contains(c.Email, "@") {
		return xerrors.Validation("a valid email is required")
	}
	if len(c.Password) < 6 {
		return xerrors.Validation("password must be at least 6 characters")
	}
	return nil
}

// Provider authenticates users against a backend.
type Provider interface {
	SignIn(ctx context.Context, creds Credentials) (*Session, error)
	SignUp(ctx context.Context, creds Credentials) (*Session, error)
	SignOut(ctx context.Context, accessToken string) error
	Verify(ctx context.Context, accessToken string) (*Session, error)
}

// Account is a locally stored user with its password hash.
type Account struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// UserStore persists local accounts. Implementations must be safe for
// concurrent use. FindByEmail returns a NOT_FOUND error for unknown emails
// and Create returns a CONFLICT error for duplicates.
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (*Account, error)
	Create(ctx context.Context, account Account) error
}

// Mode enumerates the supported authentication providers.
type Mode string

const (
	ModeDisabled Mode = "disabled"
	ModeJWT      Mode = "jwt"
	ModeSupabase Mode = "supabase"
)

// Config configures the authentication service.
type Config struct {
	Mode            Mode
	JWTSecret       string
	Issuer          string
	AccessTTL       time.Duration
	SupabaseURL     string
	SupabaseAnonKey string
	Timeout         time.Duration
	Seeds           []Credentials
}
