// Package metrics 维护进程私有的 Prometheus 注册表，记录 API 请求与流式分片。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "llmhub"

// Recorder 汇总所有指标；零值不可用，请使用 NewRecorder。
type Recorder struct {
	registry *prometheus.Registry

	requests     *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	streamChunks *prometheus.CounterVec
}

// NewRecorder 创建独立注册表，避免与全局 DefaultRegisterer 冲突（测试中可重复创建）。
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total API requests by route, provider and status code.",
		}, []string{"route", "provider", "status"}),
		// 生成请求可能持续数分钟
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "API request latency in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"route"}),
		streamChunks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_chunks_total",
			Help:      "Streamed chunks written to clients by provider and chunk type.",
		}, []string{"provider", "type"}),
	}
}

// ObserveRequest 记录一次请求的结果与耗时。nil Recorder 为空操作。
func (r *Recorder) ObserveRequest(route, providerID string, status int, elapsed time.Duration) {
	if r == nil {
		return
	}
	if providerID == "" {
		providerID = "none"
	}
	r.requests.WithLabelValues(route, providerID, strconv.Itoa(status)).Inc()
	r.latency.WithLabelValues(route).Observe(elapsed.Seconds())
}

// ObserveChunk 记录一个已写出的流式分片。
func (r *Recorder) ObserveChunk(providerID, chunkType string) {
	if r == nil {
		return
	}
	r.streamChunks.WithLabelValues(providerID, chunkType).Inc()
}

// Handler 以 Prometheus 文本格式导出私有注册表。
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
