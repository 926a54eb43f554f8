package task

import (
	"context"

	xerrors "SuiCoPilot/internal/errors"
	"SuiCoPilot/internal/observability/metrics"
)

// Handler 处理来自消息队列的原始消息。返回错误表示消息应当重新投递。
type Handler func(ctx context.Context, message []byte) error

// Producer 负责向队列投递消息。
type Producer interface {
	Publish(ctx context.Context, message []byte) error
	Close() error
}

// Consumer 负责从队列中消费消息，阻塞到 ctx 取消或出现不可恢复的错误。
type Consumer interface {
	Consume(ctx context.Context, workerCount int, handler Handler) error
	Close() error
}

// Queue 同时具备生产者与消费者能力。
type Queue interface {
	Producer
	Consumer
}

// 队列后端名称，用作指标标签。
const (
	backendMemory   = "memory"
	backendRedis    = "redis"
	backendRabbitMQ = "rabbitmq"
)

// published 记录投递结果，并把后端错误统一归为 QUEUE_FAILURE。
func published(backend string, err error, message string) error {
	metrics.ObservePublish(backend, err)
	if err == nil {
		return nil
	}
	if _, ok := xerrors.From(err); ok {
		return err
	}
	return xerrors.Wrap(xerrors.CodeQueueFailure, err, message, xerrors.WithMetadata("backend", backend))
}

func workers(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}
