package prometheus

import (
	"strconv"
	"time"

	"github.com/aescanero/hrrelay/pkg/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector implements MetricsCollector using Prometheus
type Collector struct {
	readings        *prometheus.CounterVec
	currentBPM      prometheus.Gauge
	storeErrors     *prometheus.CounterVec
	eventsPublished *prometheus.CounterVec
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	streamClients   prometheus.Gauge
}

// NewCollector creates a new Prometheus metrics collector registered on reg
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		readings: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hrrelay_readings_total",
				Help: "Total number of POSTed readings by result",
			},
			[]string{"result"},
		),
		currentBPM: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "hrrelay_current_bpm",
				Help: "Most recently accepted or observed heart rate",
			},
		),
		storeErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hrrelay_store_errors_total",
				Help: "Total number of store read/write failures",
			},
			[]string{"op"},
		),
		eventsPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hrrelay_events_published_total",
				Help: "Total number of reading events published",
			},
			[]string{"type"},
		),
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hrrelay_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "status"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hrrelay_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"method"},
		),
		streamClients: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "hrrelay_stream_clients",
				Help: "Number of connected WebSocket stream clients",
			},
		),
	}
}

// RecordReading counts a POSTed reading as accepted or ignored
func (c *Collector) RecordReading(result string) {
	c.readings.WithLabelValues(result).Inc()
}

// SetCurrentBPM sets the current heart rate gauge
func (c *Collector) SetCurrentBPM(bpm int) {
	c.currentBPM.Set(float64(bpm))
}

// RecordStoreError counts a failed store operation
func (c *Collector) RecordStoreError(op string) {
	c.storeErrors.WithLabelValues(op).Inc()
}

// RecordEventPublished counts a published reading event
func (c *Collector) RecordEventPublished(eventType ports.EventType) {
	c.eventsPublished.WithLabelValues(string(eventType)).Inc()
}

// RecordRequest records a served HTTP request
func (c *Collector) RecordRequest(method string, status int, duration time.Duration) {
	c.requests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	c.requestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// AddStreamClients adjusts the connected stream client gauge
func (c *Collector) AddStreamClients(delta int) {
	c.streamClients.Add(float64(delta))
}
