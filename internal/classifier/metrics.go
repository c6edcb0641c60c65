package classifier

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	piiotel "github.com/dativo-io/piiredact/internal/otel"
)

var meter = piiotel.Meter("github.com/dativo-io/piiredact/internal/classifier")

var (
	detectionsTotal metric.Int64Counter
	redactionsTotal metric.Int64Counter
)

func init() {
	var err error
	detectionsTotal, err = meter.Int64Counter("piiredact.detections.total",
		metric.WithDescription("PII matches found, before overlap resolution"))
	if err != nil {
		detectionsTotal, _ = meter.Int64Counter("piiredact.detections.total.fallback")
	}

	redactionsTotal, err = meter.Int64Counter("piiredact.redactions.total",
		metric.WithDescription("Detections redacted, including those merged into an overlapping span"))
	if err != nil {
		redactionsTotal, _ = meter.Int64Counter("piiredact.redactions.total.fallback")
	}
}

func recordDetections(ctx context.Context, detections []Detection) {
	for _, d := range detections {
		detectionsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("category", string(d.Category)),
			attribute.String("tier", string(d.Sensitivity)),
		))
	}
}

func recordRedactions(ctx context.Context, stats Stats) {
	for _, t := range Tiers {
		if n := stats.BySensitivity[t]; n > 0 {
			redactionsTotal.Add(ctx, int64(n), metric.WithAttributes(attribute.String("tier", string(t))))
		}
	}
}
