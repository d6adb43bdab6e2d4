// Package metrics exposes Prometheus collectors for the request client and session manager.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	obserrors "github.com/target/bizdesk/internal/observability/errors"
)

// Result constants for metric labels.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

const namespace = "bizdesk"

// Recorder owns the collectors. A nil *Recorder is valid and records nothing.
type Recorder struct {
	gatherer       prometheus.Gatherer
	requests       *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	retries        *prometheus.CounterVec
	forgeryRefresh *prometheus.CounterVec
	transitions    *prometheus.CounterVec
}

// NewRecorder registers the collectors on reg. A nil reg uses a fresh private registry.
func NewRecorder(reg *prometheus.Registry) (*Recorder, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	r := &Recorder{
		gatherer: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Backend requests by method, status and outcome.",
		}, []string{"method", "status", "result", "error_class"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "Backend request latency including the forgery retry.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "result"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "retries_total",
			Help:      "Requests replayed after a recoverable failure.",
		}, []string{"reason"}),
		forgeryRefresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "forgery_token_refreshes_total",
			Help:      "Forgery token fetches by result.",
		}, []string{"result"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "transitions_total",
			Help:      "Applied session state transitions.",
		}, []string{"from", "to", "cause"}),
	}
	for _, c := range []prometheus.Collector{r.requests, r.duration, r.retries, r.forgeryRefresh, r.transitions} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}

// RequestMetric captures one logical backend call.
type RequestMetric struct {
	Method   string
	Status   int
	Duration time.Duration
	Err      error
}

// EmitRequest records the outcome and latency of a backend call.
func (r *Recorder) EmitRequest(in RequestMetric) {
	if r == nil {
		return
	}
	result, class := ResultSuccess, ""
	if in.Err != nil {
		result = ResultError
		class = obserrors.Classify(in.Err)
	}
	status := "none"
	if in.Status > 0 {
		status = strconv.Itoa(in.Status)
	}
	r.requests.WithLabelValues(in.Method, status, result, class).Inc()
	if in.Duration > 0 {
		r.duration.WithLabelValues(in.Method, result).Observe(in.Duration.Seconds())
	}
}

// EmitRetry counts a replayed request.
func (r *Recorder) EmitRetry(reason string) {
	if r == nil {
		return
	}
	r.retries.WithLabelValues(reason).Inc()
}

// EmitForgeryRefresh counts a forgery token fetch.
func (r *Recorder) EmitForgeryRefresh(err error) {
	if r == nil {
		return
	}
	result := ResultSuccess
	if err != nil {
		result = ResultError
	}
	r.forgeryRefresh.WithLabelValues(result).Inc()
}

// EmitTransition counts an applied session transition.
func (r *Recorder) EmitTransition(from, to, cause string) {
	if r == nil {
		return
	}
	r.transitions.WithLabelValues(from, to, cause).Inc()
}
