package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace 指标名前缀
const Namespace = "kad"

// 调用结果标签
const (
	OutcomeOK      = "ok"
	OutcomeTimeout = "timeout"
)

// Metrics 节点指标集合
//
// 所有记录方法对 nil 接收者安全，未启用指标时组件可直接持有 nil。
type Metrics struct {
	registry *prometheus.Registry

	messages     *prometheus.CounterVec
	traffic      *prometheus.CounterVec
	decodeErrors prometheus.Counter
	calls        *prometheus.HistogramVec
	replications *prometheus.CounterVec
}

// New 创建指标集合并注册到独立的 Registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "messages_total",
			Help:      "Protocol messages by direction and kind.",
		}, []string{"direction", "kind"}),
		traffic: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "datagram_bytes_total",
			Help:      "Datagram bytes by direction.",
		}, []string{"direction"}),
		decodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "decode_errors_total",
			Help:      "Datagrams discarded because they could not be decoded.",
		}),
		calls: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "call_duration_seconds",
			Help:      "Synchronous call latency by request kind and outcome.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"kind", "outcome"}),
		replications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "replications_total",
			Help:      "Replicated values by outcome.",
		}, []string{"outcome"}),
	}

	m.registry.MustRegister(
		m.messages,
		m.traffic,
		m.decodeErrors,
		m.calls,
		m.replications,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry 返回底层 Registry
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler 返回 /metrics 的 HTTP 处理器
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ============================================================================
//                              记录
// ============================================================================

// MessageSent 记录一条发出的消息
func (m *Metrics) MessageSent(kind string, size int) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues("out", kind).Inc()
	m.traffic.WithLabelValues("out").Add(float64(size))
}

// MessageReceived 记录一条收到的消息
func (m *Metrics) MessageReceived(kind string, size int) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues("in", kind).Inc()
	m.traffic.WithLabelValues("in").Add(float64(size))
}

// DecodeFailed 记录一个无法解析的数据报
func (m *Metrics) DecodeFailed() {
	if m == nil {
		return
	}
	m.decodeErrors.Inc()
}

// CallFinished 记录一次同步调用
func (m *Metrics) CallFinished(kind string, ok bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := OutcomeOK
	if !ok {
		outcome = OutcomeTimeout
	}
	m.calls.WithLabelValues(kind, outcome).Observe(elapsed.Seconds())
}

// Replicated 记录一个值的复制结果
func (m *Metrics) Replicated(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.replications.WithLabelValues("ok").Inc()
	} else {
		m.replications.WithLabelValues("failed").Inc()
	}
}

// ============================================================================
//                              拉取式指标
// ============================================================================

// GaugeFunc 注册一个在采集时求值的 gauge
func (m *Metrics) GaugeFunc(name, help string, fn func() float64) error {
	if m == nil {
		return nil
	}
	return m.registry.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      name,
		Help:      help,
	}, fn))
}

// CounterFunc 注册一个在采集时求值的 counter
func (m *Metrics) CounterFunc(name, help string, fn func() float64) error {
	if m == nil {
		return nil
	}
	return m.registry.Register(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      name,
		Help:      help,
	}, fn))
}
