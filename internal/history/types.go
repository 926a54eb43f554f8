package history

import (
	"context"
	"encoding/json"
	"time"
)

// Kind 区分历史记录来源的功能面板。
type Kind string

const (
	KindChat Kind = "ai_chat"
	KindCode Kind = "code_generation"
	KindTest Kind = "ai_test"
)

// Valid 判断 Kind 是否为已知类型，空值表示不过滤。
func (k Kind) Valid() bool {
	switch k {
	case "", KindChat, KindCode, KindTest:
		return true
	}
	return false
}

// DefaultLimit 是 LoadRecent 未指定数量时返回的记录条数。
const DefaultLimit = 50

// Record 是一次提问与回答的持久化结构。
type Record struct {
	ID         int64     `json:"id"`
	UserID     string    `json:"user_id"`
	Prompt     string    `json:"prompt"`
	Response   string    `json:"response"`
	Type       Kind      `json:"type"`
	TokensUsed int       `json:"tokens_used"`
	CreatedAt  time.Time `json:"created_at"`
}

// TxStatus 是交易日志的状态。
type TxStatus string

const (
	TxSimulated TxStatus = "simulated"
	TxFailed    TxStatus = "failed"
	TxExecuted  TxStatus = "executed"
)

// TransactionDetails 记录交易意图与链上返回。
type TransactionDetails struct {
	Type      string          `json:"type"`
	Network   string          `json:"network"`
	Recipient string          `json:"recipient"`
	Amount    string          `json:"amount"`
	Result    json.RawMessage `json:"result,omitempty"`
}

// TransactionLog 记录一次预执行或真实执行。
type TransactionLog struct {
	ID        string             `json:"id"`
	UserID    string             `json:"user_id"`
	Status    TxStatus           `json:"status"`
	TxHash    string             `json:"tx_hash"`
	GasUsed   int64              `json:"gas_used"`
	Details   TransactionDetails `json:"details"`
	CreatedAt time.Time          `json:"created_at"`
}

// Profile 保存用户最近连接的钱包地址。
type Profile struct {
	ID            string    `json:"id"`
	WalletAddress string    `json:"wallet_address"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Store 抽象会话历史、交易日志和用户资料的持久化后端。
//
// ListRecent 返回最近 limit 条记录并按时间升序排列，kind 为空时不过滤类型。
// ListTransactionLogs 按时间倒序返回。Profile 在记录不存在时返回 NOT_FOUND。
type Store interface {
	AppendRecord(ctx context.Context, record *Record) error
	ListRecent(ctx context.Context, userID string, kind Kind, limit int) ([]Record, error)
	AppendTransactionLog(ctx context.Context, entry *TransactionLog) error
	ListTransactionLogs(ctx context.Context, userID string, limit int) ([]TransactionLog, error)
	UpsertProfile(ctx context.Context, profile Profile) error
	Profile(ctx context.Context, userID string) (*Profile, error)
	Close() error
}
