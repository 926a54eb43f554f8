package mysql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"log/slog"
	"strings"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"

	xerrors "SuiCoPilot/internal/errors"
	"SuiCoPilot/pkg/logger"
)

// Config 描述 MySQL 连接池参数。
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	// PingAttempts 是启动时等待数据库就绪的最大尝试次数，默认 5 次。
	PingAttempts int
}

// Open 建立连接池并执行迁移，返回的连接可在历史仓库与账号存储之间共享。
func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	connector, err := newConnector(cfg.DSN)
	if err != nil {
		return nil, err
	}
	db := sql.OpenDB(connector)
	configurePool(db, cfg)

	if err := waitReady(ctx, db, cfg.PingAttempts); err != nil {
		db.Close()
		return nil, err
	}
	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// newConnector 解析 DSN 并补齐历史表依赖的驱动参数。
func newConnector(dsn string) (driver.Connector, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "MySQL DSN 不能为空")
	}
	parsed, err := mysqldriver.ParseDSN(dsn)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "解析 MySQL DSN 失败")
	}
	// 提示词与回复可能包含 emoji 等四字节字符。
	if !strings.HasPrefix(parsed.Collation, "utf8mb4") {
		parsed.Collation = "utf8mb4_unicode_ci"
	}
	if parsed.Timeout == 0 {
		parsed.Timeout = 5 * time.Second
	}
	if parsed.ReadTimeout == 0 {
		parsed.ReadTimeout = 30 * time.Second
	}
	if parsed.WriteTimeout == 0 {
		parsed.WriteTimeout = 30 * time.Second
	}
	parsed.MultiStatements = false

	connector, err := mysqldriver.NewConnector(parsed)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "创建 MySQL 连接器失败")
	}
	return connector, nil
}

func configurePool(db *sql.DB, cfg Config) {
	db.SetMaxOpenConns(orDefault(cfg.MaxOpenConns, 20))
	db.SetMaxIdleConns(orDefault(cfg.MaxIdleConns, 10))
	lifetime := cfg.ConnMaxLifetime
	if lifetime <= 0 {
		lifetime = 30 * time.Minute
	}
	db.SetConnMaxLifetime(lifetime)
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
}

// waitReady 以指数退避重试 Ping，容器编排下数据库常晚于服务就绪。
func waitReady(ctx context.Context, db *sql.DB, attempts int) error {
	attempts = orDefault(attempts, 5)
	backoff := 500 * time.Millisecond
	var err error
	for i := 1; i <= attempts; i++ {
		if err = db.PingContext(ctx); err == nil {
			return nil
		}
		if i == attempts {
			break
		}
		logger.L().Warn("MySQL 尚未就绪，稍后重试",
			slog.Int("attempt", i),
			slog.Duration("backoff", backoff),
			slog.Any("error", err),
		)
		select {
		case <-ctx.Done():
			return xerrors.Wrap(xerrors.CodeInitializationFailure, ctx.Err(), "等待 MySQL 就绪被取消")
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return xerrors.Wrap(xerrors.CodeInitializationFailure, err, "无法连接到 MySQL")
}

func orDefault(value, fallback int) int {
	if value > 0 {
		return value
	}
	return fallback
}
