// Package metrics provides Prometheus metrics for the acquisition engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds all Prometheus metrics for the engine.
type Registry struct {
	// Poll cycle metrics
	PollCycles        prometheus.Counter
	PollCycleDuration prometheus.Histogram
	DevicePolls       *prometheus.CounterVec
	RegisterReads     *prometheus.CounterVec
	ReadingsStored    prometheus.Counter

	// Device metrics
	DeviceOnline *prometheus.GaugeVec

	// Write executor metrics
	WritesTotal    *prometheus.CounterVec
	WritesRejected prometheus.Counter

	// Alarm metrics
	AlarmsRaised  *prometheus.CounterVec
	AlarmsCleared *prometheus.CounterVec

	// Live event metrics
	EventsPublished *prometheus.CounterVec
}

// NewRegistry creates a new metrics registry with all metrics registered.
func NewRegistry() *Registry {
	return &Registry{
		PollCycles: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "engine",
			Subsystem: "poll",
			Name:      "cycles_total",
			Help:      "Total number of completed poll cycles",
		}),
		PollCycleDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "engine",
			Subsystem: "poll",
			Name:      "cycle_duration_seconds",
			Help:      "Full poll cycle duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		DevicePolls: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "engine",
			Subsystem: "poll",
			Name:      "device_polls_total",
			Help:      "Per-device poll attempts by outcome",
		}, []string{"device", "status"}),
		RegisterReads: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "engine",
			Subsystem: "poll",
			Name:      "register_reads_total",
			Help:      "Register read attempts by outcome",
		}, []string{"status"}),
		ReadingsStored: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "engine",
			Subsystem: "poll",
			Name:      "readings_stored_total",
			Help:      "Total readings archived to the database",
		}),

		DeviceOnline: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "engine",
			Subsystem: "devices",
			Name:      "online",
			Help:      "Per-device connectivity (1 online, 0 offline)",
		}, []string{"device"}),

		WritesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "engine",
			Subsystem: "writes",
			Name:      "total",
			Help:      "Coil write executions by outcome",
		}, []string{"status"}),
		WritesRejected: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "engine",
			Subsystem: "writes",
			Name:      "rejected_total",
			Help:      "Write requests rejected because the queue was full",
		}),

		AlarmsRaised: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "engine",
			Subsystem: "alarms",
			Name:      "raised_total",
			Help:      "Alarm episodes opened, by severity",
		}, []string{"severity"}),
		AlarmsCleared: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "engine",
			Subsystem: "alarms",
			Name:      "cleared_total",
			Help:      "Alarm episodes closed, by severity",
		}, []string{"severity"}),

		EventsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "engine",
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Live events pushed to the broker by outcome",
		}, []string{"status"}),
	}
}

// RecordPollCycle records a completed poll cycle.
func (r *Registry) RecordPollCycle(duration float64) {
	r.PollCycles.Inc()
	r.PollCycleDuration.Observe(duration)
}

// RecordDevicePoll records a per-device poll outcome.
func (r *Registry) RecordDevicePoll(device string, success bool) {
	r.DevicePolls.WithLabelValues(device, outcome(success)).Inc()
}

// RecordRegisterRead records a register read outcome.
func (r *Registry) RecordRegisterRead(success bool) {
	r.RegisterReads.WithLabelValues(outcome(success)).Inc()
}

// RecordReadingStored records one archived reading.
func (r *Registry) RecordReadingStored() {
	r.ReadingsStored.Inc()
}

// SetDeviceOnline updates a device's connectivity gauge.
func (r *Registry) SetDeviceOnline(device string, online bool) {
	v := 0.0
	if online {
		v = 1.0
	}
	r.DeviceOnline.WithLabelValues(device).Set(v)
}

// RecordWrite records a coil write execution.
func (r *Registry) RecordWrite(success bool) {
	r.WritesTotal.WithLabelValues(outcome(success)).Inc()
}

// RecordWriteRejected records a queue-full rejection.
func (r *Registry) RecordWriteRejected() {
	r.WritesRejected.Inc()
}

// RecordAlarmRaised records an opened alarm episode.
func (r *Registry) RecordAlarmRaised(severity string) {
	r.AlarmsRaised.WithLabelValues(severity).Inc()
}

// RecordAlarmCleared records a closed alarm episode.
func (r *Registry) RecordAlarmCleared(severity string) {
	r.AlarmsCleared.WithLabelValues(severity).Inc()
}

// RecordEventPublish records a live event publish outcome.
func (r *Registry) RecordEventPublish(success bool) {
	r.EventsPublished.WithLabelValues(outcome(success)).Inc()
}

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
