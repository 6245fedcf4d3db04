package sink

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks write statistics per topic.
type Metrics struct {
	mu sync.RWMutex

	topicCounts map[string]*TopicMetrics

	batchesTotal    *prometheus.CounterVec
	statementsTotal *prometheus.CounterVec
	eventsTotal     *prometheus.CounterVec
	errorsTotal     *prometheus.CounterVec
	writeDuration   *prometheus.HistogramVec

	registerer prometheus.Registerer
	registered bool
}

// TopicMetrics holds the write counts of one topic.
type TopicMetrics struct {
	Batches       uint64    `json:"batches"`
	Statements    uint64    `json:"statements"`
	Events        uint64    `json:"events"`
	Failures      uint64    `json:"failures"`
	LastError     string    `json:"last_error,omitempty"`
	LastWriteAt   time.Time `json:"last_write_at,omitempty"`
	LastUpdatedAt time.Time `json:"last_updated_at"`
}

// MetricsSnapshot is a point-in-time view of every topic.
type MetricsSnapshot struct {
	TotalBatches    uint64                   `json:"total_batches"`
	TotalStatements uint64                   `json:"total_statements"`
	TotalEvents     uint64                   `json:"total_events"`
	TotalFailures   uint64                   `json:"total_failures"`
	TopicMetrics    map[string]*TopicMetrics `json:"topic_metrics"`
	CollectedAt     time.Time                `json:"collected_at"`
}

func newSinkCounterVec(name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "graphsink",
			Subsystem: "sink",
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

func newSinkHistogramVec(name, help string, buckets []float64, labels []string) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "graphsink",
			Subsystem: "sink",
			Name:      name,
			Help:      help,
			Buckets:   buckets,
		},
		labels,
	)
}

// NewMetrics creates a collector. A nil registerer means the default one.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &Metrics{
		topicCounts:     make(map[string]*TopicMetrics),
		registerer:      registerer,
		batchesTotal:    newSinkCounterVec("batches_total", "Total number of batches handed to the sink", []string{"topic", "strategy"}),
		statementsTotal: newSinkCounterVec("statements_total", "Total number of statements written to the graph store", []string{"topic", "phase"}),
		eventsTotal:     newSinkCounterVec("events_total", "Total number of events bound to written statements", []string{"topic", "phase"}),
		errorsTotal:     newSinkCounterVec("write_errors_total", "Total number of failed graph store writes", []string{"topic", "phase"}),
		writeDuration:   newSinkHistogramVec("write_duration_seconds", "Duration of a single graph store write", prometheus.DefBuckets, []string{"topic", "phase"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.batchesTotal, m.statementsTotal, m.eventsTotal, m.errorsTotal, m.writeDuration}
}

// Register adds the collectors to the registerer. Collectors registered by
// an earlier Metrics value are tolerated, so repeated calls are no-ops.
func (m *Metrics) Register() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.registered {
		return nil
	}
	for _, c := range m.collectors() {
		var already prometheus.AlreadyRegisteredError
		if err := m.registerer.Register(c); err != nil && !errors.As(err, &already) {
			return err
		}
	}
	m.registered = true
	return nil
}

// RecordBatch records a batch arriving for topic.
func (m *Metrics) RecordBatch(topic, strategyName string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	metrics := m.getOrCreateTopicMetrics(topic)
	metrics.Batches++
	metrics.LastUpdatedAt = time.Now()

	m.batchesTotal.WithLabelValues(topic, strategyName).Inc()
}

// RecordWrite records a successful statement write.
func (m *Metrics) RecordWrite(topic, phase string, events int, took time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	metrics := m.getOrCreateTopicMetrics(topic)
	metrics.Statements++
	metrics.Events += uint64(events)
	metrics.LastWriteAt = now
	metrics.LastUpdatedAt = now

	m.statementsTotal.WithLabelValues(topic, phase).Inc()
	m.eventsTotal.WithLabelValues(topic, phase).Add(float64(events))
	m.writeDuration.WithLabelValues(topic, phase).Observe(took.Seconds())
}

// RecordFailure records a failed statement write.
func (m *Metrics) RecordFailure(topic, phase string, err error, took time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	metrics := m.getOrCreateTopicMetrics(topic)
	metrics.Failures++
	if err != nil {
		metrics.LastError = err.Error()
	}
	metrics.LastUpdatedAt = time.Now()

	m.errorsTotal.WithLabelValues(topic, phase).Inc()
	m.writeDuration.WithLabelValues(topic, phase).Observe(took.Seconds())
}

// GetSnapshot returns a point-in-time snapshot of all topics.
func (m *Metrics) GetSnapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot := MetricsSnapshot{
		TopicMetrics: make(map[string]*TopicMetrics),
		CollectedAt:  time.Now(),
	}

	for topic, metrics := range m.topicCounts {
		metricsCopy := *metrics
		snapshot.TopicMetrics[topic] = &metricsCopy
		snapshot.TotalBatches += metrics.Batches
		snapshot.TotalStatements += metrics.Statements
		snapshot.TotalEvents += metrics.Events
		snapshot.TotalFailures += metrics.Failures
	}

	return snapshot
}

// GetTopicMetrics returns a copy of the metrics of topic, or nil.
func (m *Metrics) GetTopicMetrics(topic string) *TopicMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if metrics, ok := m.topicCounts[topic]; ok {
		metricsCopy := *metrics
		return &metricsCopy
	}
	return nil
}

func (m *Metrics) getOrCreateTopicMetrics(topic string) *TopicMetrics {
	if metrics, ok := m.topicCounts[topic]; ok {
		return metrics
	}
	metrics := &TopicMetrics{}
	m.topicCounts[topic] = metrics
	return metrics
}

// Reset clears the per-topic counts and every Prometheus series.
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.topicCounts = make(map[string]*TopicMetrics)
	m.batchesTotal.Reset()
	m.statementsTotal.Reset()
	m.eventsTotal.Reset()
	m.errorsTotal.Reset()
	m.writeDuration.Reset()
}
