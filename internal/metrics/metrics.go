// Package metrics exposes Prometheus counters for telemetry decoding and
// command cycles.
package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/banshee-data/tfluna/internal/luna"
)

// NewRegistry creates a registry with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves the registry in the Prometheus text format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// LunaMetrics holds the sensor metrics.
type LunaMetrics struct {
	FramesTotal       *prometheus.CounterVec // labels: status=ok|err
	DecodeErrorsTotal *prometheus.CounterVec // labels: kind=header|timeout|other
	CommandsTotal     *prometheus.CounterVec // labels: command, result
	LastDistance      prometheus.Gauge
	LastTemperature   prometheus.Gauge
}

// NewLunaMetrics registers the sensor metrics with reg.
func NewLunaMetrics(reg prometheus.Registerer) *LunaMetrics {
	m := &LunaMetrics{
		FramesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tfluna_frames_total",
			Help: "Telemetry frames decoded, by checksum status.",
		}, []string{"status"}),
		DecodeErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tfluna_decode_errors_total",
			Help: "Telemetry read cycles that produced no frame.",
		}, []string{"kind"}),
		CommandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tfluna_commands_total",
			Help: "Command/response cycles by command and result.",
		}, []string{"command", "result"}),
		LastDistance: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tfluna_distance_cm",
			Help: "Distance reported by the last valid frame.",
		}),
		LastTemperature: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tfluna_temperature_celsius",
			Help: "Chip temperature reported by the last valid frame.",
		}),
	}
	reg.MustRegister(m.FramesTotal, m.DecodeErrorsTotal, m.CommandsTotal, m.LastDistance, m.LastTemperature)
	return m
}

// ObserveReading counts a decoded frame. Gauges only follow frames whose
// checksum matched.
func (m *LunaMetrics) ObserveReading(r luna.Reading) {
	if !r.OK() {
		m.FramesTotal.WithLabelValues("err").Inc()
		return
	}
	m.FramesTotal.WithLabelValues("ok").Inc()
	m.LastDistance.Set(float64(r.Frame.Distance))
	m.LastTemperature.Set(r.Frame.TemperatureCelsius())
}

// ObserveDecodeError counts a telemetry cycle that ended without a frame.
func (m *LunaMetrics) ObserveDecodeError(err error) {
	m.DecodeErrorsTotal.WithLabelValues(errorKind(err)).Inc()
}

// ObserveCommand counts a finished command cycle.
func (m *LunaMetrics) ObserveCommand(id luna.CommandID, err error) {
	result := "ok"
	if err != nil {
		result = errorKind(err)
	}
	m.CommandsTotal.WithLabelValues(id.String(), result).Inc()
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, luna.ErrInvalidHeader):
		return "header"
	case errors.Is(err, luna.ErrInvalidChecksum):
		return "checksum"
	case errors.Is(err, luna.ErrUnknownCommand):
		return "unknown_command"
	case errors.Is(err, luna.ErrSerialTimeout):
		return "timeout"
	case errors.Is(err, luna.ErrTransport):
		return "transport"
	default:
		return "other"
	}
}
