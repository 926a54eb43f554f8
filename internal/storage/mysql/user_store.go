package mysql

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"

	"SuiCoPilot/internal/auth"
	xerrors "SuiCoPilot/internal/errors"
)

const errDuplicateEntry = 1062

// UserStore 将本地账号保存在 auth_users 表中。
type UserStore struct {
	db *sql.DB
}

// NewUserStore 基于已迁移的连接创建账号存储。
func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

// FindByEmail 实现 auth.UserStore。
func (s *UserStore) FindByEmail(ctx context.Context, email string) (*auth.Account, error) {
	const query = `SELECT id, email, password_hash, created_at FROM auth_users WHERE email = ?`
	var (
		account   auth.Account
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx, query, normaliseEmail(email)).Scan(&account.ID, &account.Email, &account.PasswordHash, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, xerrors.New(xerrors.CodeNotFound, "user not found")
	}
	if err != nil {
		return nil, xerrors.Persistence(err, "查询用户失败")
	}
	account.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &account, nil
}

// Create 实现 auth.UserStore，邮箱重复时返回 CONFLICT。
func (s *UserStore) Create(ctx context.Context, account auth.Account) error {
	const stmt = `INSERT INTO auth_users (id, email, password_hash, created_at) VALUES (?, ?, ?, ?)`
	createdAt := account.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, stmt, account.ID, normaliseEmail(account.Email), account.PasswordHash, createdAt.UnixMilli())
	if err != nil {
		var mysqlErr *mysqldriver.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == errDuplicateEntry {
			return xerrors.New(xerrors.CodeConflict, "User already registered")
		}
		return xerrors.Persistence(err, "写入用户失败")
	}
	return nil
}

func normaliseEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

var _ auth.UserStore = (*UserStore)(nil)
