package obs

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	metricsOnce      sync.Once
	requestCounter   metric.Int64Counter
	latencyHistogram metric.Float64Histogram
	amountHistogram  metric.Int64Histogram

	bgOnce sync.Once
	bgCtx  context.Context
)

func installMetrics(m meter) {
	metricsOnce.Do(func() {
		if m == nil {
			return
		}
		requestCounter, _ = m.Int64Counter("payflow.requests", metric.WithDescription("Total gateway requests"))
		latencyHistogram, _ = m.Float64Histogram("payflow.request.latency_ms", metric.WithDescription("Gateway latency (ms)"))
		amountHistogram, _ = m.Int64Histogram("payflow.amount_cents", metric.WithDescription("Settled amount (cents)"))
	})
}

type meter interface {
	Int64Counter(string, ...metric.Int64CounterOption) (metric.Int64Counter, error)
	Float64Histogram(string, ...metric.Float64HistogramOption) (metric.Float64Histogram, error)
	Int64Histogram(string, ...metric.Int64HistogramOption) (metric.Int64Histogram, error)
}

func recordRequest(attrs ...attribute.KeyValue) {
	if requestCounter != nil {
		if len(attrs) > 0 {
			requestCounter.Add(backgroundContext(), 1, metric.WithAttributes(attrs...))
		} else {
			requestCounter.Add(backgroundContext(), 1)
		}
	}
}

func recordLatency(ms float64, attrs ...attribute.KeyValue) {
	if latencyHistogram != nil {
		if len(attrs) > 0 {
			latencyHistogram.Record(backgroundContext(), ms, metric.WithAttributes(attrs...))
		} else {
			latencyHistogram.Record(backgroundContext(), ms)
		}
	}
}

func recordAmount(amountCents int64, attrs ...attribute.KeyValue) {
	if amountHistogram == nil || amountCents <= 0 {
		return
	}
	if len(attrs) > 0 {
		amountHistogram.Record(backgroundContext(), amountCents, metric.WithAttributes(attrs...))
	} else {
		amountHistogram.Record(backgroundContext(), amountCents)
	}
}

func backgroundContext() context.Context {
	bgOnce.Do(func() {
		bgCtx = context.Background()
	})
	return bgCtx
}
