// Package metrics exposes waypoint's Prometheus instrumentation.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Result labels shared by the auth counters.
const (
	ResultOK       = "ok"
	ResultConflict = "conflict"
	ResultInvalid  = "invalid"
	ResultDenied   = "denied"
	ResultError    = "error"
	ResultLimited  = "rate_limited"
)

// Recorder is the instrumentation surface used by services and middleware.
type Recorder interface {
	RecordLogin(result string)
	RecordRegister(result string)
	RecordGate(result string)
	RecordRehash(result string)
	RecordHTTPRequest(method string, status int, d time.Duration)
}

// Collector records metrics on a Prometheus registry.
type Collector struct {
	login    *prometheus.CounterVec
	register *prometheus.CounterVec
	gate     *prometheus.CounterVec
	rehash   *prometheus.CounterVec
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

var _ Recorder = (*Collector)(nil)

// NewCollector builds a Collector and registers its metrics on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		login: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "waypoint_auth_login_total",
			Help: "Login attempts by result.",
		}, []string{"result"}),
		register: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "waypoint_auth_register_total",
			Help: "Registration attempts by result.",
		}, []string{"result"}),
		gate: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "waypoint_auth_gate_total",
			Help: "Protected request checks by result or rejection reason.",
		}, []string{"result"}),
		rehash: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "waypoint_auth_rehash_total",
			Help: "Password hash upgrades performed on login by result.",
		}, []string{"result"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "waypoint_http_requests_total",
			Help: "HTTP requests by method and status code.",
		}, []string{"method", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "waypoint_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
	}

	reg.MustRegister(c.login, c.register, c.gate, c.rehash, c.requests, c.duration)
	return c
}

func (c *Collector) RecordLogin(result string)    { c.login.WithLabelValues(result).Inc() }
func (c *Collector) RecordRegister(result string) { c.register.WithLabelValues(result).Inc() }
func (c *Collector) RecordGate(result string)     { c.gate.WithLabelValues(result).Inc() }
func (c *Collector) RecordRehash(result string)   { c.rehash.WithLabelValues(result).Inc() }

func (c *Collector) RecordHTTPRequest(method string, status int, d time.Duration) {
	c.requests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	c.duration.WithLabelValues(method).Observe(d.Seconds())
}

// Noop discards everything. It is the default for components built without metrics.
type Noop struct{}

var _ Recorder = Noop{}

func (Noop) RecordLogin(string)                           {}
func (Noop) RecordRegister(string)                        {}
func (Noop) RecordGate(string)                            {}
func (Noop) RecordRehash(string)                          {}
func (Noop) RecordHTTPRequest(string, int, time.Duration) {}

// Handler returns the scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
