package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"modernc.org/sqlite"

	"SuiCoPilot/internal/auth"
	xerrors "SuiCoPilot/internal/errors"
	"SuiCoPilot/internal/history"
)

// SQLITE_CONSTRAINT_UNIQUE 扩展错误码。
const sqliteConstraintUnique = 2067

// Store 使用 SQLite 同时实现 history.Store 与 auth.UserStore。
type Store struct {
	db *sql.DB
}

// Open 打开或创建数据库文件，启用 WAL 并初始化表结构。path 为 ":memory:" 时使用内存库。
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("SQLite 路径不能为空")
	}
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("创建数据库目录失败: %w", err)
		}
		dsn = "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("打开 SQLite 失败: %w", err)
	}
	// SQLite 同一时刻只允许一个写者。
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("无法连接到 SQLite: %w", err)
	}
	s := &Store{db: db}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS chat_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		prompt TEXT NOT NULL,
		response TEXT NOT NULL,
		type TEXT NOT NULL,
		tokens_used INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chat_history_user ON chat_history(user_id, type, created_at);

	CREATE TABLE IF NOT EXISTS transaction_logs (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		status TEXT NOT NULL,
		tx_hash TEXT NOT NULL DEFAULT '',
		gas_used INTEGER NOT NULL DEFAULT 0,
		details TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_transaction_logs_user ON transaction_logs(user_id, created_at);

	CREATE TABLE IF NOT EXISTS user_profiles (
		id TEXT PRIMARY KEY,
		wallet_address TEXT NOT NULL DEFAULT '',
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS auth_users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("初始化 SQLite 表结构失败: %w", err)
	}
	return nil
}

// AppendRecord 实现 history.Store。
func (s *Store) AppendRecord(ctx context.Context, record *history.Record) error {
	if record == nil {
		return xerrors.Validation("history record is nil")
	}
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_history (user_id, prompt, response, type, tokens_used, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		record.UserID, record.Prompt, record.Response, string(record.Type), record.TokensUsed, record.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return xerrors.Persistence(err, "写入 chat_history 失败")
	}
	id, err := result.LastInsertId()
	if err != nil {
		return xerrors.Persistence(err, "获取历史记录 ID 失败")
	}
	record.ID = id
	return nil
}

// ListRecent 实现 history.Store。
func (s *Store) ListRecent(ctx context.Context, userID string, kind history.Kind, limit int) ([]history.Record, error) {
	if limit <= 0 {
		limit = history.DefaultLimit
	}
	// 子查询取最近 limit 条，外层恢复为升序。
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, prompt, response, type, tokens_used, created_at FROM (
			SELECT * FROM chat_history
			WHERE user_id = ? AND (? = '' OR type = ?)
			ORDER BY created_at DESC, id DESC LIMIT ?
		) ORDER BY created_at ASC, id ASC`,
		userID, string(kind), string(kind), limit,
	)
	if err != nil {
		return nil, xerrors.Persistence(err, "查询历史记录失败")
	}
	defer rows.Close()

	var records []history.Record
	for rows.Next() {
		var (
			record    history.Record
			kindValue string
			createdAt int64
		)
		if err := rows.Scan(&record.ID, &record.UserID, &record.Prompt, &record.Response, &kindValue, &record.TokensUsed, &createdAt); err != nil {
			return nil, xerrors.Persistence(err, "解析历史记录失败")
		}
		record.Type = history.Kind(kindValue)
		record.CreatedAt = time.UnixMilli(createdAt).UTC()
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Persistence(err, "遍历历史记录失败")
	}
	return records, nil
}

// AppendTransactionLog 实现 history.Store。
func (s *Store) AppendTransactionLog(ctx context.Context, entry *history.TransactionLog) error {
	if entry == nil {
		return xerrors.Validation("transaction log is nil")
	}
	details, err := json.Marshal(entry.Details)
	if err != nil {
		return xerrors.Persistence(err, "序列化交易详情失败")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO transaction_logs (id, user_id, status, tx_hash, gas_used, details, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.UserID, string(entry.Status), entry.TxHash, entry.GasUsed, string(details), entry.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return xerrors.Persistence(err, "写入 transaction_logs 失败")
	}
	return nil
}

// ListTransactionLogs 实现 history.Store。
func (s *Store) ListTransactionLogs(ctx context.Context, userID string, limit int) ([]history.TransactionLog, error) {
	if limit <= 0 {
		limit = history.DefaultLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, status, tx_hash, gas_used, details, created_at
		FROM transaction_logs WHERE user_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, xerrors.Persistence(err, "查询交易日志失败")
	}
	defer rows.Close()

	var logs []history.TransactionLog
	for rows.Next() {
		var (
			entry     history.TransactionLog
			status    string
			details   string
			createdAt int64
		)
		if err := rows.Scan(&entry.ID, &entry.UserID, &status, &entry.TxHash, &entry.GasUsed, &details, &createdAt); err != nil {
			return nil, xerrors.Persistence(err, "解析交易日志失败")
		}
		if details != "" {
			if err := json.Unmarshal([]byte(details), &entry.Details); err != nil {
				return nil, xerrors.Persistence(err, fmt.Sprintf("交易日志 %s 的 details 无法解析", entry.ID))
			}
		}
		entry.Status = history.TxStatus(status)
		entry.CreatedAt = time.UnixMilli(createdAt).UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Persistence(err, "遍历交易日志失败")
	}
	return logs, nil
}

// UpsertProfile 实现 history.Store。
func (s *Store) UpsertProfile(ctx context.Context, profile history.Profile) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_profiles (id, wallet_address, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			wallet_address = excluded.wallet_address,
			updated_at = excluded.updated_at`,
		profile.ID, profile.WalletAddress, profile.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return xerrors.Persistence(err, "写入 user_profiles 失败")
	}
	return nil
}

// Profile 实现 history.Store。
func (s *Store) Profile(ctx context.Context, userID string) (*history.Profile, error) {
	var (
		profile   history.Profile
		updatedAt int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT id, wallet_address, updated_at FROM user_profiles WHERE id = ?`, userID).
		Scan(&profile.ID, &profile.WalletAddress, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, xerrors.New(xerrors.CodeNotFound, "profile not found")
	}
	if err != nil {
		return nil, xerrors.Persistence(err, "查询用户资料失败")
	}
	profile.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &profile, nil
}

// FindByEmail 实现 auth.UserStore。
func (s *Store) FindByEmail(ctx context.Context, email string) (*auth.Account, error) {
	var (
		account   auth.Account
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT id, email, password_hash, created_at FROM auth_users WHERE email = ?`, normaliseEmail(email)).
		Scan(&account.ID, &account.Email, &account.PasswordHash, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, xerrors.New(xerrors.CodeNotFound, "user not found")
	}
	if err != nil {
		return nil, xerrors.Persistence(err, "查询用户失败")
	}
	account.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &account, nil
}

// Create 实现 auth.UserStore。
func (s *Store) Create(ctx context.Context, account auth.Account) error {
	createdAt := account.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO auth_users (id, email, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		account.ID, normaliseEmail(account.Email), account.PasswordHash, createdAt.UnixMilli(),
	)
	if err != nil {
		var sqliteErr *sqlite.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code() == sqliteConstraintUnique {
			return xerrors.New(xerrors.CodeConflict, "User already registered")
		}
		return xerrors.Persistence(err, "写入用户失败")
	}
	return nil
}

// Close 关闭数据库。
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func normaliseEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

var (
	_ history.Store  = (*Store)(nil)
	_ auth.UserStore = (*Store)(nil)
)
