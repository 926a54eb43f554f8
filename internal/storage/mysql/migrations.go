package mysql

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"
	"time"

	"SuiCoPilot/deploy/migrations"
	xerrors "SuiCoPilot/internal/errors"
	"SuiCoPilot/pkg/logger"
)

const (
	migrationLock        = "suicopilot_schema_migrations"
	migrationLockTimeout = 30
)

type migrationFile struct {
	version    string
	name       string
	checksum   string
	statements []string
}

// runMigrations 在 MySQL 命名锁的保护下按版本顺序执行嵌入式迁移，
// 多个实例同时启动时只有一个会真正执行。已执行文件的内容被修改时返回错误。
// MySQL 的 DDL 会隐式提交，因此单个文件失败后需要人工修复。
func runMigrations(ctx context.Context, db *sql.DB) error {
	files, err := loadMigrationFiles(migrations.Files)
	if err != nil {
		return err
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		return xerrors.Persistence(err, "获取迁移连接失败")
	}
	defer conn.Close()

	var locked sql.NullInt64
	if err := conn.QueryRowContext(ctx, `SELECT GET_LOCK(?, ?)`, migrationLock, migrationLockTimeout).Scan(&locked); err != nil {
		return xerrors.Persistence(err, "获取迁移锁失败")
	}
	if !locked.Valid || locked.Int64 != 1 {
		return xerrors.New(xerrors.CodeTimeout, "等待迁移锁超时")
	}
	defer func() {
		if _, err := conn.ExecContext(context.WithoutCancel(ctx), `DO RELEASE_LOCK(?)`, migrationLock); err != nil {
			logger.L().Warn("释放迁移锁失败", slog.Any("error", err))
		}
	}()

	if _, err := conn.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
        version VARCHAR(32) NOT NULL PRIMARY KEY,
        checksum CHAR(64) NOT NULL,
        applied_at BIGINT NOT NULL
)`); err != nil {
		return xerrors.Persistence(err, "创建 schema_migrations 表失败")
	}

	applied, err := loadAppliedChecksums(ctx, conn)
	if err != nil {
		return err
	}

	for _, file := range files {
		if checksum, ok := applied[file.version]; ok {
			if checksum != file.checksum {
				return xerrors.New(xerrors.CodeConflict, fmt.Sprintf("迁移 %s 在执行后被修改", file.name))
			}
			continue
		}
		if err := applyMigration(ctx, conn, file); err != nil {
			return err
		}
		logger.L().Info("已执行数据库迁移", slog.String("file", file.name))
	}
	return nil
}

func loadAppliedChecksums(ctx context.Context, conn *sql.Conn) (map[string]string, error) {
	rows, err := conn.QueryContext(ctx, `SELECT version, checksum FROM schema_migrations`)
	if err != nil {
		return nil, xerrors.Persistence(err, "查询 schema_migrations 失败")
	}
	defer rows.Close()

	applied := make(map[string]string)
	for rows.Next() {
		var version, checksum string
		if err := rows.Scan(&version, &checksum); err != nil {
			return nil, xerrors.Persistence(err, "解析 schema_migrations 失败")
		}
		applied[version] = checksum
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Persistence(err, "遍历 schema_migrations 失败")
	}
	return applied, nil
}

func applyMigration(ctx context.Context, conn *sql.Conn, file migrationFile) error {
	for i, stmt := range file.statements {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return xerrors.Persistence(err, fmt.Sprintf("执行迁移 %s 第 %d 条语句失败", file.name, i+1))
		}
	}
	if _, err := conn.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, checksum, applied_at) VALUES (?, ?, ?)`,
		file.version, file.checksum, time.Now().Unix(),
	); err != nil {
		return xerrors.Persistence(err, "记录迁移版本失败")
	}
	return nil
}

// loadMigrationFiles 读取 fsys 根目录下的 NNNN_name.sql 文件并按版本排序。
func loadMigrationFiles(fsys fs.FS) ([]migrationFile, error) {
	names, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return nil, fmt.Errorf("读取迁移目录失败: %w", err)
	}

	files := make([]migrationFile, 0, len(names))
	seen := make(map[string]string, len(names))
	for _, name := range names {
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("读取迁移文件 %s 失败: %w", name, err)
		}
		statements := splitSQLStatements(string(content))
		if len(statements) == 0 {
			continue
		}
		version, _, ok := strings.Cut(strings.TrimSuffix(name, ".sql"), "_")
		if !ok || version == "" {
			return nil, fmt.Errorf("迁移文件 %s 缺少版本前缀", name)
		}
		if other, dup := seen[version]; dup {
			return nil, fmt.Errorf("迁移文件 %s 与 %s 版本重复", name, other)
		}
		seen[version] = name
		sum := sha256.Sum256(content)
		files = append(files, migrationFile{
			version:    version,
			name:       name,
			checksum:   hex.EncodeToString(sum[:]),
			statements: statements,
		})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].version < files[j].version })
	return files, nil
}

// splitSQLStatements 以分号切分语句并去掉整行的 -- 注释。
func splitSQLStatements(content string) []string {
	var b strings.Builder
	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	var statements []string
	for _, stmt := range strings.Split(b.String(), ";") {
		if trimmed := strings.TrimSpace(stmt); trimmed != "" {
			statements = append(statements, trimmed)
		}
	}
	return statements
}
