// Copyright 2025 The Rush Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package rush

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/trace"
)

// MetricsRecorder is an ObservabilityRecorder built on OpenTelemetry metrics
// with a Prometheus exporter. It records request count and duration labeled
// by method, route pattern, status class, and status code, and in-flight
// requests labeled by service name only, and builds request-scoped loggers
// carrying trace correlation ids.
//
// Route patterns (not raw paths) label the metrics, so parameterized routes
// do not explode cardinality.
//
// Example:
//
//	rec, err := rush.NewMetricsRecorder(rush.WithMetricsServiceName("api"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	r := rush.MustNew()
//	r.SetObservabilityRecorder(rec)
//	r.GET("/metrics", func(c *rush.Context) {
//	    rec.Handler().ServeHTTP(c.Response, c.Request)
//	})
type MetricsRecorder struct {
	serviceName string
	baseLogger  *slog.Logger

	registry      *promclient.Registry
	meterProvider *sdkmetric.MeterProvider
	handler       http.Handler

	requestsTotal   metric.Int64Counter
	requestDuration metric.Float64Histogram
	activeRequests  metric.Int64UpDownCounter
}

// MetricsOption configures a MetricsRecorder.
type MetricsOption func(*MetricsRecorder)

// WithMetricsServiceName sets the service.name label.
func WithMetricsServiceName(name string) MetricsOption {
	return func(m *MetricsRecorder) {
		if name != "" {
			m.serviceName = name
		}
	}
}

// WithMetricsLogger sets the base logger used for request-scoped loggers.
func WithMetricsLogger(l *slog.Logger) MetricsOption {
	return func(m *MetricsRecorder) {
		if l != nil {
			m.baseLogger = l
		}
	}
}

// NewMetricsRecorder creates a recorder backed by a private Prometheus
// registry (no global-registry collisions) read through the OpenTelemetry
// metrics SDK.
func NewMetricsRecorder(opts ...MetricsOption) (*MetricsRecorder, error) {
	m := &MetricsRecorder{
		serviceName: "rush",
		baseLogger:  noopLogger,
	}
	for _, opt := range opts {
		opt(m)
	}

	m.registry = promclient.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(m.registry))
	if err != nil {
		return nil, fmt.Errorf("creating prometheus exporter: %w", err)
	}
	m.meterProvider = sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	m.handler = promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})

	meter := m.meterProvider.Meter("github.com/rush-http/rush")

	if m.requestsTotal, err = meter.Int64Counter("http_requests_total",
		metric.WithDescription("Total HTTP requests")); err != nil {
		return nil, fmt.Errorf("creating requests counter: %w", err)
	}
	if m.requestDuration, err = meter.Float64Histogram("http_request_duration_seconds",
		metric.WithDescription("HTTP request latency"),
		metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("creating duration histogram: %w", err)
	}
	if m.activeRequests, err = meter.Int64UpDownCounter("http_requests_active",
		metric.WithDescription("In-flight HTTP requests")); err != nil {
		return nil, fmt.Errorf("creating active gauge: %w", err)
	}

	return m, nil
}

// Handler returns the Prometheus scrape handler for this recorder's
// registry.
func (m *MetricsRecorder) Handler() http.Handler {
	return m.handler
}

// Shutdown flushes and stops the underlying meter provider.
func (m *MetricsRecorder) Shutdown(ctx context.Context) error {
	return m.meterProvider.Shutdown(ctx)
}

// requestState carries per-request data between start and end callbacks.
type requestState struct {
	start  time.Time
	method string
}

// OnRequestStart implements ObservabilityRecorder.
func (m *MetricsRecorder) OnRequestStart(ctx context.Context, req *http.Request) (context.Context, any) {
	m.activeRequests.Add(ctx, 1,
		metric.WithAttributes(attribute.String("service.name", m.serviceName)))
	return ctx, &requestState{start: time.Now(), method: req.Method}
}

// OnRequestEnd implements ObservabilityRecorder.
func (m *MetricsRecorder) OnRequestEnd(ctx context.Context, state any, info ResponseInfo, routePattern string) {
	s, ok := state.(*requestState)
	if !ok {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("service.name", m.serviceName),
		attribute.String("http.method", s.method),
		attribute.String("http.route", routePattern),
		attribute.String("http.status_class", statusClass(info.StatusCode())),
		attribute.Int("http.status_code", info.StatusCode()),
	)

	m.requestsTotal.Add(ctx, 1, attrs)
	m.requestDuration.Record(ctx, time.Since(s.start).Seconds(), attrs)
	m.activeRequests.Add(ctx, -1,
		metric.WithAttributes(attribute.String("service.name", m.serviceName)))
}

// BuildRequestLogger implements ObservabilityRecorder. The logger carries
// method, route, and — when a span is active in ctx — trace and span ids for
// log/trace correlation.
func (m *MetricsRecorder) BuildRequestLogger(ctx context.Context, req *http.Request, routePattern string) *slog.Logger {
	logger := m.baseLogger.With(
		"method", req.Method,
		"route", routePattern,
	)
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		logger = logger.With(
			"trace_id", sc.TraceID().String(),
			"span_id", sc.SpanID().String(),
		)
	}
	return logger
}

// statusClass buckets a status code ("2xx", "4xx", ...). Bucketing keeps
// label cardinality flat while still separating success from failure.
func statusClass(code int) string {
	if code < 100 || code > 599 {
		return "unknown"
	}
	return strconv.Itoa(code/100) + "xx"
}

// Compile-time check that MetricsRecorder implements ObservabilityRecorder.
var _ ObservabilityRecorder = (*MetricsRecorder)(nil)
