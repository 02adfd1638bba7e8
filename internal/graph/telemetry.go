package graph

import (
	"context"

	"go.opentelemetry.io/otel/metric"

	"github.com/waoai/confidis/internal/telemetry"
)

// registerMetrics wires observable gauges describing the engine's current
// size and health into the global meter provider, the same
// callback-on-read shape internal/service/trace/wal.go uses for its own
// segment-count and pending-bytes gauges.
func (e *Engine) registerMetrics() {
	meter := telemetry.Meter("confidis/graph")

	_, _ = meter.Int64ObservableGauge("confidis.graph.source_count",
		metric.WithDescription("Number of distinct sources known to the belief engine"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(len(e.sources)))
			return nil
		}),
	)

	_, _ = meter.Int64ObservableGauge("confidis.graph.question_count",
		metric.WithDescription("Number of distinct questions known to the belief engine"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(len(e.questions)))
			return nil
		}),
	)

	_, _ = meter.Float64ObservableGauge("confidis.graph.mean_source_quality",
		metric.WithDescription("Mean quality estimate across all known sources"),
		metric.WithFloat64Callback(func(_ context.Context, o metric.Float64Observer) error {
			if len(e.sources) == 0 {
				o.Observe(0)
				return nil
			}
			var sum float64
			for _, s := range e.sources {
				sum += s.Quality
			}
			o.Observe(sum / float64(len(e.sources)))
			return nil
		}),
	)
}
