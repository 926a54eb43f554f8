package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	xerrors "SuiCoPilot/internal/errors"
	"SuiCoPilot/internal/observability/alerting"
)

type payload struct {
	N int `json:"n"`
}

func startProcessor(t *testing.T, p *Processor) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	go func() {
		if err := p.Start(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("processor exited: %v", err)
		}
	}()
	return cancel
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatal("condition not met in time")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestProcessorHandlesConcurrentJobs(t *testing.T) {
	queue := NewMemoryQueue(1024)
	processor := NewProcessor(queue, queue, WithWorkerCount(8))

	var processed atomic.Int32
	var sum atomic.Int64
	processor.Register("count", func(ctx context.Context, job Job) error {
		var p payload
		if err := job.Decode(&p); err != nil {
			return err
		}
		sum.Add(int64(p.N))
		processed.Add(1)
		return nil
	})
	cancel := startProcessor(t, processor)
	defer cancel()

	total := 200
	for i := 1; i <= total; i++ {
		if _, err := processor.Submit(context.Background(), "count", payload{N: i}); err != nil {
			t.Fatalf("提交任务失败: %v", err)
		}
	}
	waitFor(t, func() bool { return int(processed.Load()) >= total })
	if sum.Load() != int64(total*(total+1)/2) {
		t.Fatalf("unexpected sum %d", sum.Load())
	}
}

type recordingDispatcher struct {
	mu     sync.Mutex
	events []alerting.Event
}

func (r *recordingDispatcher) Notify(_ context.Context, e alerting.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingDispatcher) snapshot() []alerting.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]alerting.Event(nil), r.events...)
}

func TestProcessorRetriesRetryableErrors(t *testing.T) {
	queue := NewMemoryQueue(16)
	alerts := &recordingDispatcher{}
	processor := NewProcessor(queue, queue, WithMaxAttempts(3), WithAlertDispatcher(alerts))

	var attempts atomic.Int32
	processor.Register("flaky", func(ctx context.Context, job Job) error {
		n := attempts.Add(1)
		if int(n) != job.Attempts {
			return fmt.Errorf("attempt counter mismatch: %d vs %d", n, job.Attempts)
		}
		return xerrors.Persistence(errors.New("db down"), "写入失败")
	})
	cancel := startProcessor(t, processor)
	defer cancel()

	if _, err := processor.Submit(context.Background(), "flaky", payload{}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitFor(t, func() bool {
		for _, e := range alerts.snapshot() {
			if e.Code == CodeJobExhausted {
				return true
			}
		}
		return false
	})
	if attempts.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts.Load())
	}
}

func TestProcessorDoesNotRetryPermanentErrors(t *testing.T) {
	queue := NewMemoryQueue(16)
	alerts := &recordingDispatcher{}
	processor := NewProcessor(queue, queue, WithMaxAttempts(5), WithAlertDispatcher(alerts))

	var attempts atomic.Int32
	processor.Register("bad", func(ctx context.Context, job Job) error {
		attempts.Add(1)
		return xerrors.Validation("bad payload")
	})
	cancel := startProcessor(t, processor)
	defer cancel()

	if _, err := processor.Submit(context.Background(), "bad", payload{}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := processor.Submit(context.Background(), "unknown", payload{}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitFor(t, func() bool { return len(alerts.snapshot()) >= 2 })
	time.Sleep(50 * time.Millisecond)
	if attempts.Load() != 1 {
		t.Fatalf("expected a single attempt, got %d", attempts.Load())
	}
}

func TestDecodeJobRejectsGarbage(t *testing.T) {
	if _, err := DecodeJob([]byte("nope")); !xerrors.HasCode(err, CodeJobDecode) {
		t.Fatalf("expected decode error, got %v", err)
	}
	if _, err := DecodeJob([]byte(`{"id":"","kind":""}`)); err == nil {
		t.Fatal("expected missing id to fail")
	}
}

func TestProcessorRetryDelayDoublesAndCaps(t *testing.T) {
	p := NewProcessor(nil, nil, WithRetryBackoff(time.Second))
	cases := map[int]time.Duration{0: 0, 1: time.Second, 2: 2 * time.Second, 3: 4 * time.Second, 4: maxRetryBackoff, 40: maxRetryBackoff}
	for attempt, want := range cases {
		if got := p.delay(attempt); got != want {
			t.Fatalf("attempt %d: expected %s, got %s", attempt, want, got)
		}
	}
	if got := NewProcessor(nil, nil, WithRetryBackoff(0)).delay(3); got != 0 {
		t.Fatalf("zero backoff should not wait, got %s", got)
	}
}
