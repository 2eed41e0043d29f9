// Package metrics collects and exposes Prometheus metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is the metrics surface used by services and HTTP middleware.
type Recorder interface {
	RecordLogin(result string)
	RecordOTPVerification(ok bool)
	RecordNoteAccessDenied(op string)
	RecordHTTPRequest(method string, status int, d time.Duration)
}

// Login results.
const (
	LoginOK          = "ok"
	LoginFailed      = "failed"
	LoginNotVerified = "not_verified"
	LoginLimited     = "rate_limited"
)

// Collector is the Prometheus-backed Recorder.
type Collector struct {
	logins      *prometheus.CounterVec
	otp         *prometheus.CounterVec
	denied      *prometheus.CounterVec
	httpReqs    *prometheus.CounterVec
	httpLatency prometheus.Histogram
}

var _ Recorder = (*Collector)(nil)

// NewCollector creates a Collector and registers its metrics on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "securenotes_logins_total",
			Help: "Login attempts by result.",
		}, []string{"result"}),
		otp: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "securenotes_otp_verifications_total",
			Help: "OTP verification attempts by result.",
		}, []string{"result"}),
		denied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "securenotes_note_access_denied_total",
			Help: "Note operations refused by the access gate.",
		}, []string{"op"}),
		httpReqs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "securenotes_http_requests_total",
			Help: "HTTP requests by method and status code.",
		}, []string{"method", "status"}),
		httpLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "securenotes_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(c.logins, c.otp, c.denied, c.httpReqs, c.httpLatency)
	return c
}

func (c *Collector) RecordLogin(result string) {
	c.logins.WithLabelValues(result).Inc()
}

func (c *Collector) RecordOTPVerification(ok bool) {
	result := "invalid"
	if ok {
		result = "ok"
	}
	c.otp.WithLabelValues(result).Inc()
}

func (c *Collector) RecordNoteAccessDenied(op string) {
	c.denied.WithLabelValues(op).Inc()
}

func (c *Collector) RecordHTTPRequest(method string, status int, d time.Duration) {
	c.httpReqs.WithLabelValues(method, strconv.Itoa(status)).Inc()
	c.httpLatency.Observe(d.Seconds())
}

// Nop discards everything.
type Nop struct{}

var _ Recorder = Nop{}

func (Nop) RecordLogin(string)                           {}
func (Nop) RecordOTPVerification(bool)                   {}
func (Nop) RecordNoteAccessDenied(string)                {}
func (Nop) RecordHTTPRequest(string, int, time.Duration) {}

// Handler returns the scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
