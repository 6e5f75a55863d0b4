package metrics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type httpMetrics struct {
	requestCounter metric.Int64Counter
	durationHisto  metric.Float64Histogram
	skipPaths      map[string]struct{}
}

// HTTPMetricsMiddleware returns a Gin middleware that counts requests and records their
// duration labelled by method, route and status code. Routes listed in skipPaths, such
// as liveness probes, are not recorded.
func HTTPMetricsMiddleware(meterProvider metric.MeterProvider, namespace string, skipPaths ...string) gin.HandlerFunc {
	meter := meterProvider.Meter(namespace)

	requestCounter, err := meter.Int64Counter(
		fmt.Sprintf("%s_http_requests_total", namespace),
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return passthrough
	}

	durationHisto, err := meter.Float64Histogram(
		fmt.Sprintf("%s_http_request_duration_seconds", namespace),
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return passthrough
	}

	m := &httpMetrics{
		requestCounter: requestCounter,
		durationHisto:  durationHisto,
		skipPaths:      make(map[string]struct{}, len(skipPaths)),
	}
	for _, path := range skipPaths {
		m.skipPaths[path] = struct{}{}
	}

	return m.handle
}

func passthrough(c *gin.Context) {
	c.Next()
}

func (m *httpMetrics) handle(c *gin.Context) {
	start := time.Now()
	c.Next()

	path := sanitizePath(c.FullPath())
	if _, skip := m.skipPaths[path]; skip {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("method", c.Request.Method),
		attribute.String("path", path),
		attribute.String("status_code", strconv.Itoa(c.Writer.Status())),
	)
	m.requestCounter.Add(c.Request.Context(), 1, attrs)
	m.durationHisto.Record(c.Request.Context(), time.Since(start).Seconds(), attrs)
}

// sanitizePath keeps metric cardinality bounded by labelling with the route pattern.
// Unmatched routes are reported as "unknown".
func sanitizePath(fullPath string) string {
	if fullPath == "" {
		return "unknown"
	}
	return fullPath
}
