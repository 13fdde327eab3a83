package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xkilldash9x/shopkeep/internal/bus"
	"github.com/xkilldash9x/shopkeep/internal/cashier"
)

// Automation records the coordinator roll-ups and the event stream.
type Automation struct {
	efficiency metric.Float64Gauge
	roi        metric.Float64Gauge
	active     metric.Int64Gauge
	events     metric.Int64Counter
	checkout   metric.Float64Histogram
}

// NewAutomation creates the automation instruments, prefixing names with namespace.
func NewAutomation(meterProvider metric.MeterProvider, namespace string) (*Automation, error) {
	meter := meterProvider.Meter(namespace)

	efficiency, err := meter.Float64Gauge(
		fmt.Sprintf("%s_automation_efficiency", namespace),
		metric.WithDescription("Mean quality weight of the enabled automation modules"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create efficiency gauge: %w", err)
	}
	roi, err := meter.Float64Gauge(
		fmt.Sprintf("%s_automation_roi", namespace),
		metric.WithDescription("Savings over cost across the enabled automation modules"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create roi gauge: %w", err)
	}
	active, err := meter.Int64Gauge(
		fmt.Sprintf("%s_automation_active_modules", namespace),
		metric.WithDescription("Number of enabled automation modules"),
		metric.WithUnit("{module}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create active modules gauge: %w", err)
	}
	events, err := meter.Int64Counter(
		fmt.Sprintf("%s_events_total", namespace),
		metric.WithDescription("Events published by the automation modules"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create event counter: %w", err)
	}
	checkout, err := meter.Float64Histogram(
		fmt.Sprintf("%s_checkout_duration_seconds", namespace),
		metric.WithDescription("Simulated duration of automated checkouts"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout histogram: %w", err)
	}
	return &Automation{efficiency: efficiency, roi: roi, active: active, events: events, checkout: checkout}, nil
}

// RecordAutomation stores the latest coordinator roll-up.
func (a *Automation) RecordAutomation(ctx context.Context, efficiency, roi float64, active int) {
	a.efficiency.Record(ctx, efficiency)
	a.roi.Record(ctx, roi)
	a.active.Record(ctx, int64(active))
}

// HandleEvent counts msg by topic and records checkout durations. It is meant to be
// subscribed to bus.OutboundTopics.
func (a *Automation) HandleEvent(ctx context.Context, msg bus.Message) error {
	a.events.Add(ctx, 1, metric.WithAttributes(attribute.String("topic", string(msg.Topic))))
	if msg.Topic != bus.CashierTransactionCompleted {
		return nil
	}
	tx, ok := msg.Payload.(cashier.Transaction)
	if !ok {
		return nil
	}
	a.checkout.Record(ctx, tx.Duration().Seconds(),
		metric.WithAttributes(attribute.String("status", string(tx.Status))),
	)
	return nil
}

// NoOp discards everything. Used when metrics are disabled.
type NoOp struct{}

func (NoOp) RecordAutomation(context.Context, float64, float64, int) {}
