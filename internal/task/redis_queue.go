package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"SuiCoPilot/internal/observability/metrics"
	"SuiCoPilot/pkg/logger"
)

// RedisQueueConfig 描述 Redis 队列的连接参数。
type RedisQueueConfig struct {
	Address   string
	Password  string
	DB        int
	Queue     string
	BlockWait time.Duration
}

// RedisQueue 使用 Redis list 实现可靠队列：LPUSH 入队，BLMOVE 把消息原子地
// 转移到 processing 列表，处理完成后再从 processing 删除。进程崩溃时留在
// processing 中的消息会在下一次 Consume 时放回待处理列表。
type RedisQueue struct {
	client     *redis.Client
	queue      string
	processing string
	wait       time.Duration
	logger     *slog.Logger
}

// NewRedisQueue 创建 Redis 队列实例。
func NewRedisQueue(ctx context.Context, cfg RedisQueueConfig) (*RedisQueue, error) {
	if cfg.Address == "" {
		return nil, errors.New("Redis address 不能为空")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	return newRedisQueue(client, cfg.Queue, cfg.BlockWait), nil
}

func newRedisQueue(client *redis.Client, queue string, wait time.Duration) *RedisQueue {
	if queue == "" {
		queue = "suicopilot:history:jobs"
	}
	if wait <= 0 {
		wait = 5 * time.Second
	}
	return &RedisQueue{
		client:     client,
		queue:      queue,
		processing: queue + ":processing",
		wait:       wait,
		logger:     logger.Named("task.redis"),
	}
}

// Publish 将消息投递到 Redis。
func (q *RedisQueue) Publish(ctx context.Context, message []byte) error {
	return published(backendRedis, q.client.LPush(ctx, q.queue, message).Err(), "Redis 发布任务失败")
}

// Consume 并发消费消息，处理失败的消息放回待处理列表。
func (q *RedisQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	if err := q.recover(ctx); err != nil {
		return err
	}

	n := workers(workerCount)
	errCh := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() { errCh <- q.work(ctx, handler) }()
	}

	var first error
	for i := 0; i < n; i++ {
		if err := <-errCh; err != nil && first == nil {
			first = err
		}
	}
	if first != nil && !errors.Is(first, context.Canceled) {
		return first
	}
	return ctx.Err()
}

func (q *RedisQueue) work(ctx context.Context, handler Handler) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		message, err := q.client.BLMove(ctx, q.queue, q.processing, "RIGHT", "LEFT", q.wait).Result()
		switch {
		case errors.Is(err, redis.Nil):
			continue
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, redis.ErrClosed) {
				return err
			}
			return fmt.Errorf("Redis 取任务失败: %w", err)
		}

		// 使用独立上下文确认，避免关闭过程中消息残留在 processing 列表。
		ackCtx := context.WithoutCancel(ctx)
		if handlerErr := handler(ctx, []byte(message)); handlerErr != nil {
			q.requeue(ackCtx, message)
			continue
		}
		if err := q.client.LRem(ackCtx, q.processing, 1, message).Err(); err != nil {
			q.logger.Warn("确认 Redis 任务失败", slog.Any("error", err))
		}
	}
}

func (q *RedisQueue) requeue(ctx context.Context, message string) {
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, q.processing, 1, message)
		pipe.RPush(ctx, q.queue, message)
		return nil
	})
	if err != nil {
		q.logger.Warn("Redis 任务重新入队失败", slog.Any("error", err))
		return
	}
	metrics.ObserveRedelivery(backendRedis, 1)
}

// recover 把上一次未确认的消息移回待处理列表。
func (q *RedisQueue) recover(ctx context.Context) error {
	moved := 0
	for {
		_, err := q.client.LMove(ctx, q.processing, q.queue, "RIGHT", "RIGHT").Result()
		if errors.Is(err, redis.Nil) {
			break
		}
		if err != nil {
			return fmt.Errorf("恢复未确认的 Redis 任务失败: %w", err)
		}
		moved++
	}
	if moved > 0 {
		metrics.ObserveRedelivery(backendRedis, moved)
		q.logger.Info("已恢复未确认的任务", slog.Int("count", moved), slog.String("queue", q.queue))
	}
	return nil
}

// Close 关闭 Redis 连接。
func (q *RedisQueue) Close() error {
	if q == nil || q.client == nil {
		return nil
	}
	return q.client.Close()
}
