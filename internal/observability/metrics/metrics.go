package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "suicopilot"

var (
	registry = prometheus.NewRegistry()

	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests processed.",
	}, []string{"handler", "method", "code"})

	httpErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_request_errors_total",
		Help:      "Total number of HTTP requests that resulted in a server error.",
	}, []string{"handler", "method"})

	httpLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"handler", "method"})

	llmCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "llm_requests_total",
		Help:      "Completion requests by provider and outcome.",
	}, []string{"provider", "model", "outcome"})

	llmTokens = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "llm_tokens_total",
		Help:      "Tokens consumed by completion requests.",
	}, []string{"provider", "kind"})

	llmLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "llm_request_duration_seconds",
		Help:      "Completion request duration in seconds.",
		Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"provider"})

	rpcCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sui_rpc_requests_total",
		Help:      "Sui JSON-RPC calls by network, method and outcome.",
	}, []string{"network", "method", "outcome"})

	rpcLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "sui_rpc_duration_seconds",
		Help:      "Sui JSON-RPC call duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"network", "method"})

	jobs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_processed_total",
		Help:      "Background persistence jobs by kind and outcome.",
	}, []string{"kind", "outcome"})

	queuePublishes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "queue_publish_total",
		Help:      "Messages handed to the job queue by backend and outcome.",
	}, []string{"backend", "outcome"})

	queueRedeliveries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "queue_redeliveries_total",
		Help:      "Messages returned to the job queue after a failed or interrupted delivery.",
	}, []string{"backend"})
)

func init() {
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		httpRequests, httpErrors, httpLatency,
		llmCalls, llmTokens, llmLatency,
		rpcCalls, rpcLatency,
		jobs, queuePublishes, queueRedeliveries,
	)
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveHTTPRequest records metrics about an HTTP request lifecycle.
func ObserveHTTPRequest(handler, method string, status int, duration time.Duration) {
	httpRequests.WithLabelValues(handler, method, strconv.Itoa(status)).Inc()
	if status >= 500 {
		httpErrors.WithLabelValues(handler, method).Inc()
	}
	httpLatency.WithLabelValues(handler, method).Observe(duration.Seconds())
}

// ObserveLLM records one completion call and its token usage.
func ObserveLLM(provider, model string, duration time.Duration, promptTokens, completionTokens int, err error) {
	llmCalls.WithLabelValues(provider, model, outcome(err)).Inc()
	llmLatency.WithLabelValues(provider).Observe(duration.Seconds())
	if err == nil {
		llmTokens.WithLabelValues(provider, "prompt").Add(float64(promptTokens))
		llmTokens.WithLabelValues(provider, "completion").Add(float64(completionTokens))
	}
}

// ObserveRPC records one chain RPC call or batch.
func ObserveRPC(network, method string, duration time.Duration, err error) {
	rpcCalls.WithLabelValues(network, method, outcome(err)).Inc()
	rpcLatency.WithLabelValues(network, method).Observe(duration.Seconds())
}

// ObserveJob records the result of one background job attempt.
func ObserveJob(kind string, err error) {
	jobs.WithLabelValues(kind, outcome(err)).Inc()
}

// ObservePublish records one message handed to a queue backend.
func ObservePublish(backend string, err error) {
	queuePublishes.WithLabelValues(backend, outcome(err)).Inc()
}

// ObserveRedelivery counts messages put back on a queue backend.
func ObserveRedelivery(backend string, n int) {
	if n > 0 {
		queueRedeliveries.WithLabelValues(backend).Add(float64(n))
	}
}

// Handler exposes the metrics in Prometheus text exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// StartServer launches a standalone HTTP server exposing the /metrics endpoint.
func StartServer(ctx context.Context, addr string) error {
	if addr == "" {
		return errors.New("metrics address is empty")
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return err
	}
}
