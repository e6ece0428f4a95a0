// monitor/monitor.go
package monitor

import (
	"expvar"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	OnlinePlayers    prometheus.Gauge
	ActiveRooms      prometheus.Gauge
	MessagesReceived *prometheus.CounterVec
	MessageLatency   prometheus.Histogram
	BetsPlaced       prometheus.Counter
	ChipsWagered     prometheus.Counter
	RoundsResolved   prometheus.Counter
}

func NewMetrics(namespace string, registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		OnlinePlayers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online_players",
			Help:      "Number of online players",
		}),
		ActiveRooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_rooms",
			Help:      "Number of active rooms",
		}),
		MessagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Total number of messages received",
		}, []string{"msg_id"}),
		MessageLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "message_latency_seconds",
			Help:      "Message processing latency",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 10),
		}),
		BetsPlaced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bets_placed_total",
			Help:      "Total number of accepted bets",
		}),
		ChipsWagered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chips_wagered_total",
			Help:      "Total chips escrowed by accepted bets",
		}),
		RoundsResolved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rounds_resolved_total",
			Help:      "Total number of resolved spins",
		}),
	}

	registerer.MustRegister(
		m.OnlinePlayers,
		m.ActiveRooms,
		m.MessagesReceived,
		m.MessageLatency,
		m.BetsPlaced,
		m.ChipsWagered,
		m.RoundsResolved,
	)

	return m
}

type Monitor struct {
	metrics      *Metrics
	gatherer     prometheus.Gatherer
	startTime    time.Time
	requestCount int64
	mutex        sync.Mutex
	server       *http.Server
}

// NewMonitor registers the metrics on registry. Passing a fresh
// prometheus.NewRegistry() keeps several monitors apart, as in tests.
func NewMonitor(namespace string, registry *prometheus.Registry) *Monitor {
	return &Monitor{
		metrics:   NewMetrics(namespace, registry),
		gatherer:  registry,
		startTime: time.Now(),
	}
}

func (m *Monitor) Metrics() *Metrics {
	return m.metrics
}

// Handler serves /metrics and /debug/vars.
func (m *Monitor) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{}))
	mux.Handle("/debug/vars", expvar.Handler())
	return mux
}

var publishOnce sync.Once

func (m *Monitor) StartServer(addr string) {
	// 添加expvar指标，expvar 是进程级的，只能发布一次
	publishOnce.Do(func() {
		expvar.Publish("uptime", expvar.Func(func() interface{} {
			return time.Since(m.startTime).Seconds()
		}))

		expvar.Publish("requests", expvar.Func(func() interface{} {
			m.mutex.Lock()
			defer m.mutex.Unlock()
			return m.requestCount
		}))
	})

	m.server = &http.Server{Addr: addr, Handler: m.Handler()}
	go m.server.ListenAndServe()
}

func (m *Monitor) Close() error {
	if m.server == nil {
		return nil
	}
	return m.server.Close()
}

func (m *Monitor) IncOnlinePlayers() {
	m.metrics.OnlinePlayers.Inc()
}

func (m *Monitor) DecOnlinePlayers() {
	m.metrics.OnlinePlayers.Dec()
}

func (m *Monitor) SetActiveRooms(count int) {
	m.metrics.ActiveRooms.Set(float64(count))
}

func (m *Monitor) IncMessagesReceived(msgID uint16) {
	m.metrics.MessagesReceived.WithLabelValues(msgLabel(msgID)).Inc()
	m.mutex.Lock()
	m.requestCount++
	m.mutex.Unlock()
}

func (m *Monitor) ObserveMessageLatency(duration time.Duration) {
	m.metrics.MessageLatency.Observe(duration.Seconds())
}

// BetPlaced 记录一笔被接受的下注
func (m *Monitor) BetPlaced(amount int64) {
	m.metrics.BetsPlaced.Inc()
	m.metrics.ChipsWagered.Add(float64(amount))
}

func (m *Monitor) RoundResolved() {
	m.metrics.RoundsResolved.Inc()
}

func msgLabel(msgID uint16) string {
	return strconv.FormatUint(uint64(msgID), 10)
}
