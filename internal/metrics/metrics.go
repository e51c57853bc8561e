package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// AvailablePrivateRooms is the gauge tracking the size of the available room queue.
const AvailablePrivateRooms = "available_private_rooms"

// Sink receives gauge updates.
type Sink interface {
	SetGauge(name string, value float64)
}

// Nop discards all updates.
type Nop struct{}

// SetGauge implements Sink.
func (Nop) SetGauge(string, float64) {}

var help = map[string]string{
	AvailablePrivateRooms: "Number of private rooms waiting in the available queue",
}

// Prometheus registers gauges lazily on first use.
type Prometheus struct {
	namespace string
	registry  *prometheus.Registry

	mu     sync.Mutex
	gauges map[string]prometheus.Gauge
}

// NewPrometheus creates a sink backed by its own registry.
func NewPrometheus(namespace string) *Prometheus {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &Prometheus{
		namespace: namespace,
		registry:  reg,
		gauges:    make(map[string]prometheus.Gauge),
	}
}

// SetGauge implements Sink.
func (p *Prometheus) SetGauge(name string, value float64) {
	p.gauge(name).Set(value)
}

func (p *Prometheus) gauge(name string) prometheus.Gauge {
	p.mu.Lock()
	defer p.mu.Unlock()

	if g, ok := p.gauges[name]; ok {
		return g
	}
	g := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: p.namespace,
		Name:      name,
		Help:      helpFor(name),
	})
	p.registry.MustRegister(g)
	p.gauges[name] = g
	return g
}

func helpFor(name string) string {
	if h, ok := help[name]; ok {
		return h
	}
	return name
}

// Gatherer exposes the underlying registry.
func (p *Prometheus) Gatherer() prometheus.Gatherer {
	return p.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
