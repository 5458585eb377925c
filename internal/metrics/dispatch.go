package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// DispatchMetrics records what the dispatcher does with each claimed message.
type DispatchMetrics interface {
	// RecordAttempt counts one processed message by its outcome
	// (sent, retry_scheduled, failed, expired, rate_limited, suppressed).
	RecordAttempt(ctx context.Context, channel, gateway, priority, outcome string)
	// RecordSendLatency records the duration of one gateway call.
	RecordSendLatency(ctx context.Context, gateway string, batch bool, latency time.Duration)
	// RecordClaimed records the size of one claimed batch for a priority tier.
	RecordClaimed(ctx context.Context, priority string, n int)
}

type dispatchMetrics struct {
	attempts metric.Int64Counter
	latency  metric.Float64Histogram
	claimed  metric.Int64Histogram
}

// NewDispatchMetrics creates DispatchMetrics on the provided meter provider.
func NewDispatchMetrics(meterProvider metric.MeterProvider, namespace string) (DispatchMetrics, error) {
	meter := meterProvider.Meter(namespace)

	attempts, err := meter.Int64Counter(
		fmt.Sprintf("%s_dispatch_attempts_total", namespace),
		metric.WithDescription("Messages processed by the dispatcher by outcome"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatch attempt counter: %w", err)
	}

	latency, err := meter.Float64Histogram(
		fmt.Sprintf("%s_gateway_send_duration_seconds", namespace),
		metric.WithDescription("Duration of gateway send calls in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create send latency histogram: %w", err)
	}

	claimed, err := meter.Int64Histogram(
		fmt.Sprintf("%s_dispatch_claimed_batch_size", namespace),
		metric.WithDescription("Rows claimed per dispatcher claim"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create claimed batch histogram: %w", err)
	}

	return &dispatchMetrics{attempts: attempts, latency: latency, claimed: claimed}, nil
}

func (d *dispatchMetrics) RecordAttempt(ctx context.Context, channel, gateway, priority, outcome string) {
	d.attempts.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("channel", channel),
			attribute.String("gateway", gateway),
			attribute.String("priority", priority),
			attribute.String("outcome", outcome),
		),
	)
}

func (d *dispatchMetrics) RecordSendLatency(ctx context.Context, gateway string, batch bool, latency time.Duration) {
	d.latency.Record(ctx, latency.Seconds(),
		metric.WithAttributes(
			attribute.String("gateway", gateway),
			attribute.Bool("batch", batch),
		),
	)
}

func (d *dispatchMetrics) RecordClaimed(ctx context.Context, priority string, n int) {
	d.claimed.Record(ctx, int64(n), metric.WithAttributes(attribute.String("priority", priority)))
}

// NoOpDispatchMetrics discards dispatch metrics.
type NoOpDispatchMetrics struct{}

func (NoOpDispatchMetrics) RecordAttempt(context.Context, string, string, string, string) {}

func (NoOpDispatchMetrics) RecordSendLatency(context.Context, string, bool, time.Duration) {}

func (NoOpDispatchMetrics) RecordClaimed(context.Context, string, int) {}
