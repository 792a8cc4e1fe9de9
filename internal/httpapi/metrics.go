package httpapi

import (
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// HTTPMetrics tracks HTTP request metrics via OpenTelemetry.
type HTTPMetrics struct {
	meter          metric.Meter
	requestsTotal  metric.Int64Counter
	requestDur     metric.Float64Histogram
	responseSize   metric.Int64Histogram
	activeRequests metric.Int64UpDownCounter
}

// NewHTTPMetrics creates HTTP metrics instruments. Instrument creation
// failures are logged and the affected instrument left nil; recording
// skips nil instruments.
func NewHTTPMetrics(logger *zap.Logger) *HTTPMetrics {
	m := &HTTPMetrics{
		meter: otel.Meter("counterpartyd.http"),
	}
	m.init(logger)
	return m
}

func (m *HTTPMetrics) init(logger *zap.Logger) {
	var err error

	m.requestsTotal, err = m.meter.Int64Counter(
		"counterpartyd.http.requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		logger.Warn("failed to create requests_total counter", zap.Error(err))
	}

	m.requestDur, err = m.meter.Float64Histogram(
		"counterpartyd.http.request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		logger.Warn("failed to create request_duration histogram", zap.Error(err))
	}

	m.responseSize, err = m.meter.Int64Histogram(
		"counterpartyd.http.response_size_bytes",
		metric.WithDescription("HTTP response size in bytes"),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(100, 500, 1000, 5000, 10000, 50000, 100000, 500000),
	)
	if err != nil {
		logger.Warn("failed to create response_size histogram", zap.Error(err))
	}

	m.activeRequests, err = m.meter.Int64UpDownCounter(
		"counterpartyd.http.active_requests",
		metric.WithDescription("Number of in-flight HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		logger.Warn("failed to create active_requests counter", zap.Error(err))
	}
}

// MetricsMiddleware records request count, duration, response size, and
// in-flight requests per route.
func (m *HTTPMetrics) MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()

			if m.activeRequests != nil {
				m.activeRequests.Add(ctx, 1)
				defer m.activeRequests.Add(ctx, -1)
			}

			start := time.Now()
			err := next(c)
			duration := time.Since(start).Seconds()

			// c.Path() is the registered route template, so the
			// endpoint attribute stays low-cardinality.
			attrs := metric.WithAttributes(
				attribute.String("method", c.Request().Method),
				attribute.String("endpoint", c.Path()),
				attribute.Int("status", c.Response().Status),
			)

			if m.requestsTotal != nil {
				m.requestsTotal.Add(ctx, 1, attrs)
			}
			if m.requestDur != nil {
				m.requestDur.Record(ctx, duration, attrs)
			}
			if m.responseSize != nil {
				m.responseSize.Record(ctx, c.Response().Size, attrs)
			}

			return err
		}
	}
}
