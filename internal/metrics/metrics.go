// Package metrics is the Prometheus instrumentation shared by avllq,
// fdring, and fdchannel. Every producer/consumer accepts a Recorder (nil
// being a valid, no-op choice) so the ring algebra itself never needs to
// import this package directly.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Recorder is the instrumentation surface ring implementations call into.
// All methods are safe for concurrent use, inheriting that guarantee from
// the underlying prometheus collectors.
type Recorder interface {
	SetSize(queue string, size int)
	SetCapacity(queue string, capacity int)
	SetConsumers(queue string, count int)
	ItemProduced(queue string)
	ItemDropped(queue string)
	ReleaseCallback(queue, reason string)
	DoubleUnref(queue string)
	ObserveFdChannelRequest(queue string, seconds float64)
	FdChannelTimeout(queue string)
}

// PrometheusRecorder implements Recorder against a set of registered
// collectors. Construct one per process with New and share it across every
// queue instance, distinguishing them by the queue label.
type PrometheusRecorder struct {
	size      *prometheus.GaugeVec
	capacity  *prometheus.GaugeVec
	consumers *prometheus.GaugeVec

	produced *prometheus.CounterVec
	dropped  *prometheus.CounterVec
	released *prometheus.CounterVec
	doubleUn *prometheus.CounterVec

	fdReqDuration *prometheus.HistogramVec
	fdTimeout     *prometheus.CounterVec
}

// New registers the llq_* collector family on reg and returns a Recorder
// backed by them.
func New(reg prometheus.Registerer) *PrometheusRecorder {
	r := &PrometheusRecorder{
		size: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "llq_ring_size",
			Help: "Current number of unread items in the ring.",
		}, []string{"queue"}),
		capacity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "llq_ring_capacity",
			Help: "Configured slot count of the ring.",
		}, []string{"queue"}),
		consumers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "llq_consumers_registered",
			Help: "Number of consumers currently registered.",
		}, []string{"queue"}),
		produced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "llq_items_produced_total",
			Help: "Total items successfully produced.",
		}, []string{"queue"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "llq_items_dropped_total",
			Help: "Total items overwritten before every consumer read them.",
		}, []string{"queue"}),
		released: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "llq_release_callback_total",
			Help: "Total release callback invocations, by refcount transition reason.",
		}, []string{"queue", "reason"}),
		doubleUn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "llq_double_unref_total",
			Help: "Total Unref calls observed on an already-idle slot.",
		}, []string{"queue"}),
		fdReqDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "llq_fdchannel_request_duration_seconds",
			Help:    "Latency of a consumer's fd translation round trip over fdchannel.",
			Buckets: prometheus.DefBuckets,
		}, []string{"queue"}),
		fdTimeout: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "llq_fdchannel_timeout_total",
			Help: "Total fdchannel requests that hit their deadline without a response.",
		}, []string{"queue"}),
	}

	reg.MustRegister(r.size, r.capacity, r.consumers, r.produced, r.dropped, r.released, r.doubleUn, r.fdReqDuration, r.fdTimeout)
	return r
}

func (r *PrometheusRecorder) SetSize(queue string, size int)         { r.size.WithLabelValues(queue).Set(float64(size)) }
func (r *PrometheusRecorder) SetCapacity(queue string, capacity int) { r.capacity.WithLabelValues(queue).Set(float64(capacity)) }
func (r *PrometheusRecorder) SetConsumers(queue string, count int)   { r.consumers.WithLabelValues(queue).Set(float64(count)) }
func (r *PrometheusRecorder) ItemProduced(queue string)              { r.produced.WithLabelValues(queue).Inc() }
func (r *PrometheusRecorder) ItemDropped(queue string)               { r.dropped.WithLabelValues(queue).Inc() }
func (r *PrometheusRecorder) ReleaseCallback(queue, reason string) {
	r.released.WithLabelValues(queue, reason).Inc()
}
func (r *PrometheusRecorder) DoubleUnref(queue string) { r.doubleUn.WithLabelValues(queue).Inc() }
func (r *PrometheusRecorder) ObserveFdChannelRequest(queue string, seconds float64) {
	r.fdReqDuration.WithLabelValues(queue).Observe(seconds)
}
func (r *PrometheusRecorder) FdChannelTimeout(queue string) { r.fdTimeout.WithLabelValues(queue).Inc() }
