package telemetry

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Counter creates an Int64Counter on the global meter provider, falling back
// to a no-op counter so instrumentation can never break a caller.
func Counter(scope, name, description string) metric.Int64Counter {
	counter, err := otel.Meter(scope).Int64Counter(name, metric.WithDescription(description))
	if err != nil {
		return noop.Int64Counter{}
	}
	return counter
}
