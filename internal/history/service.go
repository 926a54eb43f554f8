package history

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"SuiCoPilot/internal/conversation"
	xerrors "SuiCoPilot/internal/errors"
	"SuiCoPilot/internal/observability/alerting"
	"SuiCoPilot/internal/task"
	"SuiCoPilot/pkg/logger"
)

// 后台写入任务类型。
const (
	JobAppendRecord   task.Kind = "history.append_record"
	JobAppendTxLog    task.Kind = "history.append_transaction_log"
	defaultTxLogLimit           = 20
)

// Queue 是 Service 依赖的任务处理器能力，*task.Processor 满足该接口。
type Queue interface {
	Register(kind task.Kind, handler task.JobHandler)
	Submit(ctx context.Context, kind task.Kind, payload any) (string, error)
}

// Service 对外提供会话存储能力。写入操作与调用方请求解耦，失败只记录日志并告警。
type Service struct {
	store   Store
	queue   Queue
	alerter alerting.Dispatcher
	logger  *slog.Logger
	now     func() time.Time
}

// Option 定义 Service 的可选配置。
type Option func(*Service)

// WithQueue 通过任务处理器异步写入；未配置时使用独立协程直接写入存储。
func WithQueue(queue Queue) Option {
	return func(s *Service) {
		s.queue = queue
	}
}

// WithAlertDispatcher 设置写入失败时的告警派发器。
func WithAlertDispatcher(dispatcher alerting.Dispatcher) Option {
	return func(s *Service) {
		s.alerter = dispatcher
	}
}

// WithLogger 指定日志输出。
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService 创建 Service，并在配置了队列时注册对应的任务处理函数。
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: logger.Named("history"),
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.queue != nil {
		s.queue.Register(JobAppendRecord, s.handleAppendRecord)
		s.queue.Register(JobAppendTxLog, s.handleAppendTxLog)
	}
	return s
}

// Append 记录一次提问与回答。立即返回，写入在后台完成。
func (s *Service) Append(ctx context.Context, userID, prompt, response string, kind Kind, tokensUsed int) {
	if strings.TrimSpace(userID) == "" {
		return
	}
	record := Record{
		UserID:     userID,
		Prompt:     prompt,
		Response:   response,
		Type:       kind,
		TokensUsed: tokensUsed,
		CreatedAt:  s.now().UTC(),
	}
	s.detach(ctx, JobAppendRecord, userID, record, func(ctx context.Context) error {
		return s.store.AppendRecord(ctx, &record)
	})
}

// LogTransaction 记录一次交易预执行或执行结果。立即返回，写入在后台完成。
func (s *Service) LogTransaction(ctx context.Context, entry TransactionLog) {
	if strings.TrimSpace(entry.UserID) == "" {
		return
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now().UTC()
	}
	s.detach(ctx, JobAppendTxLog, entry.UserID, entry, func(ctx context.Context) error {
		return s.store.AppendTransactionLog(ctx, &entry)
	})
}

// LoadRecent 返回最近的 limit 条记录展开后的消息，按时间升序排列。
func (s *Service) LoadRecent(ctx context.Context, userID string, kind Kind, limit int) ([]conversation.Message, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, xerrors.Validation("user id is required")
	}
	if !kind.Valid() {
		return nil, xerrors.Validation(fmt.Sprintf("unknown history type %q", kind))
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	records, err := s.store.ListRecent(ctx, userID, kind, limit)
	if err != nil {
		return nil, asPersistence(err, "读取历史记录失败")
	}
	return Replay(records), nil
}

// TransactionLogs 返回用户最近的交易日志。
func (s *Service) TransactionLogs(ctx context.Context, userID string, limit int) ([]TransactionLog, error) {
	if limit <= 0 {
		limit = defaultTxLogLimit
	}
	logs, err := s.store.ListTransactionLogs(ctx, userID, limit)
	if err != nil {
		return nil, asPersistence(err, "读取交易日志失败")
	}
	if logs == nil {
		logs = []TransactionLog{}
	}
	return logs, nil
}

// SaveProfile 同步写入用户绑定的钱包地址。
func (s *Service) SaveProfile(ctx context.Context, userID, walletAddress string) (*Profile, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, xerrors.Validation("user id is required")
	}
	profile := Profile{ID: userID, WalletAddress: strings.TrimSpace(walletAddress), UpdatedAt: s.now().UTC()}
	if err := s.store.UpsertProfile(ctx, profile); err != nil {
		return nil, asPersistence(err, "保存用户资料失败")
	}
	return &profile, nil
}

// Profile 读取用户资料，不存在时返回 NOT_FOUND。
func (s *Service) Profile(ctx context.Context, userID string) (*Profile, error) {
	profile, err := s.store.Profile(ctx, userID)
	if err != nil {
		if xerrors.HasCode(err, xerrors.CodeNotFound) {
			return nil, err
		}
		return nil, asPersistence(err, "读取用户资料失败")
	}
	return profile, nil
}

// Close 释放底层存储。
func (s *Service) Close() error {
	if s == nil || s.store == nil {
		return nil
	}
	return s.store.Close()
}

func (s *Service) detach(ctx context.Context, kind task.Kind, userID string, payload any, direct func(context.Context) error) {
	background := context.WithoutCancel(ctx)
	if s.queue != nil {
		if _, err := s.queue.Submit(background, kind, payload); err != nil {
			s.reportFailure(background, kind, userID, err)
		}
		return
	}
	go func() {
		if err := direct(background); err != nil {
			s.reportFailure(background, kind, userID, err)
		}
	}()
}

func (s *Service) reportFailure(ctx context.Context, kind task.Kind, userID string, cause error) {
	err := asPersistence(cause, "后台写入失败")
	s.logger.Warn("历史写入失败",
		slog.String("kind", string(kind)),
		slog.String("user_id", userID),
		slog.String("error_code", string(xerrors.CodeOf(err))),
		slog.Any("error", err),
	)
	if s.alerter == nil {
		return
	}
	event := alerting.FromError(err, map[string]string{"kind": string(kind)})
	event.UserID = userID
	if notifyErr := s.alerter.Notify(ctx, event); notifyErr != nil {
		s.logger.Error("告警通知失败", slog.Any("error", notifyErr))
	}
}

func (s *Service) handleAppendRecord(ctx context.Context, job task.Job) error {
	var record Record
	if err := job.Decode(&record); err != nil {
		return err
	}
	if err := s.store.AppendRecord(ctx, &record); err != nil {
		return asPersistence(err, "写入历史记录失败")
	}
	return nil
}

func (s *Service) handleAppendTxLog(ctx context.Context, job task.Job) error {
	var entry TransactionLog
	if err := job.Decode(&entry); err != nil {
		return err
	}
	if err := s.store.AppendTransactionLog(ctx, &entry); err != nil {
		return asPersistence(err, "写入交易日志失败")
	}
	return nil
}

// asPersistence 保留已有的错误码，其余错误归为 PERSISTENCE。
func asPersistence(err error, message string) error {
	if _, ok := xerrors.From(err); ok {
		return err
	}
	return xerrors.Persistence(err, message)
}
