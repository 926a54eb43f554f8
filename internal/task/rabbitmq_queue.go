package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	xerrors "SuiCoPilot/internal/errors"
	"SuiCoPilot/internal/observability/metrics"
	"SuiCoPilot/pkg/logger"
)

// RabbitMQConfig 描述 RabbitMQ 队列的连接参数。
type RabbitMQConfig struct {
	URL        string
	Queue      string
	Prefetch   int
	Durable    bool
	AutoDelete bool
}

// RabbitMQQueue 使用 RabbitMQ 实现任务队列。发布端开启 publisher confirm，
// broker 确认落盘后 Publish 才返回；消费端手动 ack，同一条消息最多重新投递一次。
type RabbitMQQueue struct {
	conn   *amqp.Connection
	queue  string
	logger *slog.Logger

	pubMu sync.Mutex
	pub   *amqp.Channel
	sub   *amqp.Channel
}

// NewRabbitMQQueue 创建 RabbitMQ 队列实例。
func NewRabbitMQQueue(cfg RabbitMQConfig) (*RabbitMQQueue, error) {
	if cfg.URL == "" {
		return nil, errors.New("RabbitMQ URL 不能为空")
	}
	queue := cfg.Queue
	if queue == "" {
		queue = "suicopilot.history.jobs"
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("连接 RabbitMQ 失败: %w", err)
	}
	q := &RabbitMQQueue{conn: conn, queue: queue, logger: logger.Named("task.rabbitmq")}
	if err := q.setup(cfg); err != nil {
		_ = q.Close()
		return nil, err
	}
	return q, nil
}

func (q *RabbitMQQueue) setup(cfg RabbitMQConfig) error {
	pub, err := q.conn.Channel()
	if err != nil {
		return fmt.Errorf("创建 RabbitMQ 发布 channel 失败: %w", err)
	}
	q.pub = pub
	if err := pub.Confirm(false); err != nil {
		return fmt.Errorf("开启 RabbitMQ publisher confirm 失败: %w", err)
	}
	if _, err := pub.QueueDeclare(q.queue, cfg.Durable, cfg.AutoDelete, false, false, nil); err != nil {
		return fmt.Errorf("声明 RabbitMQ 队列失败: %w", err)
	}

	sub, err := q.conn.Channel()
	if err != nil {
		return fmt.Errorf("创建 RabbitMQ 消费 channel 失败: %w", err)
	}
	q.sub = sub
	if cfg.Prefetch > 0 {
		if err := sub.Qos(cfg.Prefetch, 0, false); err != nil {
			return fmt.Errorf("设置 RabbitMQ QOS 失败: %w", err)
		}
	}
	return nil
}

// Publish 投递消息并等待 broker 确认。
func (q *RabbitMQQueue) Publish(ctx context.Context, message []byte) error {
	if q == nil || q.pub == nil {
		return published(backendRabbitMQ, xerrors.New(xerrors.CodeQueueFailure, "RabbitMQ 队列未初始化"), "")
	}
	q.pubMu.Lock()
	confirm, err := q.pub.PublishWithDeferredConfirmWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         message,
	})
	q.pubMu.Unlock()
	if err != nil {
		return published(backendRabbitMQ, err, "RabbitMQ 发布任务失败")
	}
	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return published(backendRabbitMQ, err, "等待 RabbitMQ 确认失败")
	}
	if !acked {
		return published(backendRabbitMQ, xerrors.New(xerrors.CodeQueueFailure, "RabbitMQ 拒绝了任务"), "")
	}
	return published(backendRabbitMQ, nil, "")
}

// Consume 使用手动确认模式消费队列。处理失败的消息首次重新入队，
// 再次失败则丢弃，重试次数由 Processor 控制。
func (q *RabbitMQQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	if q == nil || q.sub == nil {
		return xerrors.New(xerrors.CodeQueueFailure, "RabbitMQ 队列未初始化")
	}
	msgs, err := q.sub.ConsumeWithContext(ctx, q.queue, "", false, false, false, false, nil)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeQueueFailure, err, "订阅 RabbitMQ 队列失败")
	}

	var wg sync.WaitGroup
	for i := 0; i < workers(workerCount); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case msg, ok := <-msgs:
					if !ok {
						return
					}
					q.deliver(ctx, msg, handler)
				}
			}
		}()
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return err
	}
	return xerrors.New(xerrors.CodeQueueFailure, "RabbitMQ 消费通道已关闭")
}

func (q *RabbitMQQueue) deliver(ctx context.Context, msg amqp.Delivery, handler Handler) {
	if err := handler(ctx, msg.Body); err != nil {
		requeue := !msg.Redelivered
		if requeue {
			metrics.ObserveRedelivery(backendRabbitMQ, 1)
		} else {
			q.logger.Warn("丢弃重复失败的任务", slog.Any("error", err))
		}
		_ = msg.Nack(false, requeue)
		return
	}
	if err := msg.Ack(false); err != nil {
		q.logger.Warn("确认 RabbitMQ 任务失败", slog.Any("error", err))
	}
}

// Close 关闭 channel 与连接。
func (q *RabbitMQQueue) Close() error {
	if q == nil {
		return nil
	}
	if q.sub != nil {
		_ = q.sub.Close()
	}
	if q.pub != nil {
		_ = q.pub.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}
