package task

import (
	"context"
	"sync"
	"time"

	xerrors "SuiCoPilot/internal/errors"
)

const defaultPublishWait = 2 * time.Second

// MemoryQueue 是进程内的有界队列，适用于单实例部署与测试。
// 缓冲区写满时 Publish 最多等待 publishWait，之后返回 QUEUE_FAILURE，
// 历史写入不会因此无限期占用请求。
type MemoryQueue struct {
	ch          chan []byte
	done        chan struct{}
	once        sync.Once
	publishWait time.Duration
}

// MemoryQueueOption 定制内存队列。
type MemoryQueueOption func(*MemoryQueue)

// WithPublishWait 设置缓冲区写满时的最长等待时间。
func WithPublishWait(wait time.Duration) MemoryQueueOption {
	return func(q *MemoryQueue) {
		if wait > 0 {
			q.publishWait = wait
		}
	}
}

// NewMemoryQueue 创建容量为 size 的内存队列。
func NewMemoryQueue(size int, opts ...MemoryQueueOption) *MemoryQueue {
	if size <= 0 {
		size = 64
	}
	q := &MemoryQueue{
		ch:          make(chan []byte, size),
		done:        make(chan struct{}),
		publishWait: defaultPublishWait,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Len 返回尚未被消费的消息数。
func (q *MemoryQueue) Len() int { return len(q.ch) }

// Publish 将消息放入缓冲区。
func (q *MemoryQueue) Publish(ctx context.Context, message []byte) error {
	select {
	case <-q.done:
		return published(backendMemory, xerrors.New(xerrors.CodeQueueFailure, "队列已关闭"), "")
	default:
	}

	timer := time.NewTimer(q.publishWait)
	defer timer.Stop()
	select {
	case q.ch <- message:
		return published(backendMemory, nil, "")
	case <-ctx.Done():
		return published(backendMemory, ctx.Err(), "投递任务被取消")
	case <-q.done:
		return published(backendMemory, xerrors.New(xerrors.CodeQueueFailure, "队列已关闭"), "")
	case <-timer.C:
		return published(backendMemory, xerrors.New(xerrors.CodeQueueFailure, "队列已满"), "")
	}
}

// Consume 启动 workerCount 个协程消费消息，直到 ctx 取消或队列关闭。
// 进程内队列没有确认机制，处理失败的消息由 Processor 决定是否重投。
func (q *MemoryQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	var wg sync.WaitGroup
	for i := 0; i < workers(workerCount); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case <-q.done:
					return
				case message := <-q.ch:
					_ = handler(ctx, message)
				}
			}
		}()
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}

// Close 停止投递与消费，缓冲区中剩余的消息被丢弃。
func (q *MemoryQueue) Close() error {
	q.once.Do(func() { close(q.done) })
	return nil
}
