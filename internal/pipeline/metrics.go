package pipeline

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/medrag/internal/logging"
)

type runMetrics struct {
	runs     metric.Int64Counter
	duration metric.Float64Histogram
}

func newRunMetrics(meter metric.Meter, logger *logging.Logger) *runMetrics {
	if meter == nil {
		meter = otel.Meter(instrumentationName)
	}
	m := &runMetrics{}

	var err error
	m.runs, err = meter.Int64Counter("medrag.pipeline.runs",
		metric.WithDescription("Pipeline runs by outcome"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		logger.Warn(context.Background(), "failed to create runs counter", zap.Error(err))
	}
	m.duration, err = meter.Float64Histogram("medrag.pipeline.duration",
		metric.WithDescription("Pipeline run duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		logger.Warn(context.Background(), "failed to create duration histogram", zap.Error(err))
	}
	return m
}

func (m *runMetrics) record(ctx context.Context, pipeline, outcome string, d time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("pipeline", pipeline),
		attribute.String("outcome", outcome),
	)
	if m.runs != nil {
		m.runs.Add(ctx, 1, attrs)
	}
	if m.duration != nil {
		m.duration.Record(ctx, d.Seconds(), attrs)
	}
}
