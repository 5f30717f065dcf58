// Package metrics 导出聊天服务的 Prometheus 指标
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 流结束状态
const (
	StatusDone     = "done"
	StatusFailed   = "failed"
	StatusCanceled = "canceled"
)

// Metrics 指标集合
// 所有方法对 nil 接收者安全，便于测试时省略
type Metrics struct {
	registry *prometheus.Registry

	messages       *prometheus.CounterVec
	chunks         prometheus.Counter
	cacheLookups   *prometheus.CounterVec
	streamDuration *prometheus.HistogramVec
	activeStreams  prometheus.Gauge
}

// New 创建指标集合，使用独立的 Registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "next_chat",
			Name:      "messages_total",
			Help:      "Send-message operations by terminal status",
		}, []string{"status"}),
		chunks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "next_chat",
			Name:      "chunks_total",
			Help:      "Chunks relayed to clients",
		}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "next_chat",
			Name:      "cache_lookups_total",
			Help:      "Conversation handle cache lookups",
		}, []string{"result"}),
		streamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "next_chat",
			Name:      "stream_duration_seconds",
			Help:      "Wall-clock duration of streamed replies",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"status"}),
		activeStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "next_chat",
			Name:      "active_streams",
			Help:      "Streams currently being relayed",
		}),
	}

	m.registry.MustRegister(
		m.messages,
		m.chunks,
		m.cacheLookups,
		m.streamDuration,
		m.activeStreams,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry 返回底层 Registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler 返回 /metrics 处理器
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// WatchCachedHandles 注册缓存条目数量的采集函数
func (m *Metrics) WatchCachedHandles(size func() int) {
	if m == nil {
		return
	}
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "next_chat",
		Name:      "cached_handles",
		Help:      "Conversation handles held in memory",
	}, func() float64 { return float64(size()) }))
}

// CacheLookup 记录一次缓存查找
func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// ChunkRelayed 记录一个已转发的分片
func (m *Metrics) ChunkRelayed() {
	if m == nil {
		return
	}
	m.chunks.Inc()
}

// StreamStarted 标记一个流开始
func (m *Metrics) StreamStarted() {
	if m == nil {
		return
	}
	m.activeStreams.Inc()
}

// StreamFinished 标记一个流结束
func (m *Metrics) StreamFinished(status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.activeStreams.Dec()
	m.messages.WithLabelValues(status).Inc()
	m.streamDuration.WithLabelValues(status).Observe(elapsed.Seconds())
}
