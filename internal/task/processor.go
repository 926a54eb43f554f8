package task

import (
	"context"
	"log/slog"
	"sync"
	"time"

	xerrors "SuiCoPilot/internal/errors"
	"SuiCoPilot/internal/observability/alerting"
	"SuiCoPilot/internal/observability/metrics"
	"SuiCoPilot/pkg/logger"
)

// JobHandler 处理一种类型的任务。返回可重试错误时任务会被重新投递。
type JobHandler func(ctx context.Context, job Job) error

const (
	defaultMaxAttempts  = 3
	defaultRetryBackoff = 100 * time.Millisecond
	maxRetryBackoff     = 5 * time.Second
)

// Processor 从队列消费后台写入任务，按 Kind 分发，并负责重试与告警。
type Processor struct {
	consumer Consumer
	producer Producer
	workers  int
	attempts int
	backoff  time.Duration
	log      *slog.Logger
	alerts   alerting.Dispatcher

	mu       sync.RWMutex
	handlers map[Kind]JobHandler
}

// ProcessorOption 定义可选配置。
type ProcessorOption func(*Processor)

// WithProcessorLogger 指定日志输出。
func WithProcessorLogger(l *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		if l != nil {
			p.log = l
		}
	}
}

// WithWorkerCount 设置消费协程数量。
func WithWorkerCount(n int) ProcessorOption {
	return func(p *Processor) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithMaxAttempts 设置单个任务的最大尝试次数。
func WithMaxAttempts(n int) ProcessorOption {
	return func(p *Processor) {
		if n > 0 {
			p.attempts = n
		}
	}
}

// WithRetryBackoff 设置首次重投前的等待时间，之后逐次翻倍。
func WithRetryBackoff(d time.Duration) ProcessorOption {
	return func(p *Processor) {
		if d >= 0 {
			p.backoff = d
		}
	}
}

// WithAlertDispatcher 配置告警派发器。
func WithAlertDispatcher(d alerting.Dispatcher) ProcessorOption {
	return func(p *Processor) {
		p.alerts = d
	}
}

// NewProcessor 构造 Processor。consumer 与 producer 通常是同一个队列。
func NewProcessor(consumer Consumer, producer Producer, opts ...ProcessorOption) *Processor {
	p := &Processor{
		consumer: consumer,
		producer: producer,
		workers:  1,
		attempts: defaultMaxAttempts,
		backoff:  defaultRetryBackoff,
		log:      logger.Named("task"),
		handlers: make(map[Kind]JobHandler),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Register 为 kind 注册处理函数，重复注册会覆盖。
func (p *Processor) Register(kind Kind, handler JobHandler) {
	p.mu.Lock()
	p.handlers[kind] = handler
	p.mu.Unlock()
}

func (p *Processor) handler(kind Kind) (JobHandler, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	h, ok := p.handlers[kind]
	return h, ok
}

// Submit 构造任务并投递到队列，不等待执行结果。
func (p *Processor) Submit(ctx context.Context, kind Kind, payload any) (string, error) {
	if p.producer == nil {
		return "", xerrors.New(xerrors.CodeInitializationFailure, "未配置任务生产者")
	}
	job, err := NewJob(kind, payload)
	if err != nil {
		return "", err
	}
	if err := p.enqueue(ctx, job); err != nil {
		return "", err
	}
	return job.ID, nil
}

// Start 启动任务处理循环，直到 ctx 取消。
func (p *Processor) Start(ctx context.Context) error {
	if p.consumer == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "未配置任务消费者")
	}
	return p.consumer.Consume(ctx, p.workers, p.process)
}

func (p *Processor) enqueue(ctx context.Context, job *Job) error {
	data, err := job.Encode()
	if err != nil {
		return xerrors.Wrap(CodeJobDecode, err, "编码任务失败")
	}
	if err := p.producer.Publish(ctx, data); err != nil {
		return xerrors.Wrap(CodeJobPublish, err, "任务投递失败", xerrors.WithMetadata("job_id", job.ID))
	}
	return nil
}

// process 是交给队列的 Handler。解析失败和未知类型的任务直接丢弃，
// 返回 nil 让队列确认消息。
func (p *Processor) process(ctx context.Context, message []byte) error {
	job, err := DecodeJob(message)
	if err != nil {
		p.log.Error("丢弃无法解析的任务", slog.Any("error", err))
		p.alert(ctx, &Job{}, CodeJobDecode, err, "decode")
		return nil
	}

	run, ok := p.handler(job.Kind)
	if !ok {
		err := xerrors.New(CodeJobUnknown, "未注册的任务类型", xerrors.WithMetadata("kind", string(job.Kind)))
		p.log.Error("丢弃未知类型的任务", slog.String("job_id", job.ID), slog.String("kind", string(job.Kind)))
		p.alert(ctx, job, CodeJobUnknown, err, "dispatch")
		return nil
	}

	job.Attempts++
	err = run(ctx, *job)
	metrics.ObserveJob(string(job.Kind), err)
	if err == nil {
		p.log.Debug("任务执行成功", slog.String("job_id", job.ID), slog.String("kind", string(job.Kind)))
		return nil
	}
	return p.retry(ctx, job, err)
}

// outcome 描述一次失败后的去向。
type outcome struct {
	stage    string
	code     xerrors.Code
	terminal bool
}

func (p *Processor) classify(job *Job, err error) outcome {
	switch {
	case !xerrors.RetryableError(err):
		return outcome{stage: "non_retryable", code: xerrors.CodeOf(err), terminal: true}
	case job.Attempts >= p.attempts:
		return outcome{stage: "terminal", code: CodeJobExhausted, terminal: true}
	default:
		return outcome{stage: "retry", code: xerrors.CodeOf(err)}
	}
}

func (p *Processor) retry(ctx context.Context, job *Job, cause error) error {
	out := p.classify(job, cause)
	logger.Audit().LogAttrs(ctx, slog.LevelWarn, "任务执行失败",
		slog.String("job_id", job.ID),
		slog.String("kind", string(job.Kind)),
		slog.String("stage", out.stage),
		slog.String("error_code", string(xerrors.CodeOf(cause))),
		slog.String("error", cause.Error()),
		slog.Int("attempts", job.Attempts),
		slog.Int("max_attempts", p.attempts),
	)
	if out.terminal || xerrors.ShouldAlert(cause) {
		p.alert(ctx, job, out.code, cause, out.stage)
	}
	if out.terminal || p.producer == nil {
		return nil
	}

	if wait := p.delay(job.Attempts); wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	if err := p.enqueue(ctx, job); err != nil {
		p.log.Error("任务重投失败", slog.Any("error", err), slog.String("job_id", job.ID))
		p.alert(ctx, job, CodeJobPublish, err, "republish")
		return err
	}
	p.log.Debug("任务已重新排队", slog.String("job_id", job.ID), slog.Int("attempts", job.Attempts))
	return nil
}

// delay 返回第 attempt 次失败后的等待时间。
func (p *Processor) delay(attempt int) time.Duration {
	if p.backoff <= 0 || attempt < 1 {
		return 0
	}
	d := p.backoff
	for i := 1; i < attempt && d < maxRetryBackoff; i++ {
		d *= 2
	}
	return min(d, maxRetryBackoff)
}

func (p *Processor) alert(ctx context.Context, job *Job, code xerrors.Code, cause error, stage string) {
	if p.alerts == nil {
		return
	}
	attrs := xerrors.AttributesOf(code)
	event := alerting.Event{
		Code:        code,
		Message:     attrs.Message,
		Severity:    attrs.Severity,
		JobID:       job.ID,
		Attempts:    job.Attempts,
		MaxAttempts: p.attempts,
		Metadata:    map[string]string{"stage": stage, "kind": string(job.Kind)},
		OccurredAt:  time.Now(),
	}
	if cause != nil {
		event.Message = cause.Error()
	}
	if err := p.alerts.Notify(ctx, event); err != nil {
		p.log.Error("告警通知失败", slog.Any("error", err), slog.String("job_id", job.ID), slog.String("stage", stage))
	}
}
