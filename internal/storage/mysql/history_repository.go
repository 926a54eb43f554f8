package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	xerrors "SuiCoPilot/internal/errors"
	"SuiCoPilot/internal/history"
)

const (
	insertRecordSQL = `INSERT INTO chat_history (user_id, prompt, response, type, tokens_used, created_at)
    VALUES (?, ?, ?, ?, ?, ?)`
	selectRecordsSQL = `SELECT id, user_id, prompt, response, type, tokens_used, created_at
    FROM chat_history WHERE user_id = ?`
	insertTxLogSQL = `INSERT INTO transaction_logs (id, user_id, status, tx_hash, gas_used, details, created_at)
    VALUES (?, ?, ?, ?, ?, ?, ?)`
	selectTxLogsSQL = `SELECT id, user_id, status, tx_hash, gas_used, details, created_at
    FROM transaction_logs WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`
	upsertProfileSQL = `INSERT INTO user_profiles (id, wallet_address, updated_at) VALUES (?, ?, ?)
    ON DUPLICATE KEY UPDATE wallet_address = VALUES(wallet_address), updated_at = VALUES(updated_at)`
	selectProfileSQL = `SELECT id, wallet_address, updated_at FROM user_profiles WHERE id = ?`
)

// HistoryRepository 使用 MySQL 实现 history.Store。时间以毫秒时间戳存储。
type HistoryRepository struct {
	db *sql.DB
}

// NewHistoryRepository 基于已迁移的连接创建仓库。
func NewHistoryRepository(db *sql.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// AppendRecord 写入一条历史记录并回填自增 ID。
func (r *HistoryRepository) AppendRecord(ctx context.Context, record *history.Record) error {
	if record == nil {
		return xerrors.Validation("history record is nil")
	}
	result, err := r.db.ExecContext(ctx, insertRecordSQL,
		record.UserID,
		record.Prompt,
		record.Response,
		string(record.Type),
		record.TokensUsed,
		record.CreatedAt.UnixMilli(),
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

// ListRecent 查询最近的记录并按时间升序返回。
func (r *HistoryRepository) ListRecent(ctx context.Context, userID string, kind history.Kind, limit int) ([]history.Record, error) {
	if limit <= 0 {
		limit = history.DefaultLimit
	}
	query := selectRecordsSQL
	args := []any{userID}
	if kind != "" {
		query += " AND type = ?"
		args = append(args, string(kind))
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
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
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}

// AppendTransactionLog 写入交易日志，details 以 JSON 存储。
func (r *HistoryRepository) AppendTransactionLog(ctx context.Context, entry *history.TransactionLog) error {
	if entry == nil {
		return xerrors.Validation("transaction log is nil")
	}
	details, err := json.Marshal(entry.Details)
	if err != nil {
		return xerrors.Persistence(err, "序列化交易详情失败")
	}
	if _, err := r.db.ExecContext(ctx, insertTxLogSQL,
		entry.ID,
		entry.UserID,
		string(entry.Status),
		entry.TxHash,
		entry.GasUsed,
		string(details),
		entry.CreatedAt.UnixMilli(),
	); err != nil {
		return xerrors.Persistence(err, "写入 transaction_logs 失败")
	}
	return nil
}

// ListTransactionLogs 按时间倒序返回交易日志。
func (r *HistoryRepository) ListTransactionLogs(ctx context.Context, userID string, limit int) ([]history.TransactionLog, error) {
	if limit <= 0 {
		limit = history.DefaultLimit
	}
	rows, err := r.db.QueryContext(ctx, selectTxLogsSQL, userID, limit)
	if err != nil {
		return nil, xerrors.Persistence(err, "查询交易日志失败")
	}
	defer rows.Close()

	var logs []history.TransactionLog
	for rows.Next() {
		var (
			entry     history.TransactionLog
			status    string
			details   []byte
			createdAt int64
		)
		if err := rows.Scan(&entry.ID, &entry.UserID, &status, &entry.TxHash, &entry.GasUsed, &details, &createdAt); err != nil {
			return nil, xerrors.Persistence(err, "解析交易日志失败")
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &entry.Details); err != nil {
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

// UpsertProfile 写入或更新用户资料。
func (r *HistoryRepository) UpsertProfile(ctx context.Context, profile history.Profile) error {
	if _, err := r.db.ExecContext(ctx, upsertProfileSQL, profile.ID, profile.WalletAddress, profile.UpdatedAt.UnixMilli()); err != nil {
		return xerrors.Persistence(err, "写入 user_profiles 失败")
	}
	return nil
}

// Profile 读取用户资料。
func (r *HistoryRepository) Profile(ctx context.Context, userID string) (*history.Profile, error) {
	var (
		profile   history.Profile
		updatedAt int64
	)
	err := r.db.QueryRowContext(ctx, selectProfileSQL, userID).Scan(&profile.ID, &profile.WalletAddress, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, xerrors.New(xerrors.CodeNotFound, "profile not found")
	}
	if err != nil {
		return nil, xerrors.Persistence(err, "查询用户资料失败")
	}
	profile.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &profile, nil
}

// Close 关闭底层数据库连接。
func (r *HistoryRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

var _ history.Store = (*HistoryRepository)(nil)
