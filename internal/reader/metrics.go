package reader

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/loqalabs/loqa-reader/internal/reader"

type metrics struct {
	chunksSent      metric.Int64Counter
	recoveries      metric.Int64Counter
	highlightMisses metric.Int64Counter
	sessions        metric.Int64Counter
}

func newMetrics(meter metric.Meter) (*metrics, error) {
	chunksSent, err := meter.Int64Counter("loqa.reader.chunks_sent",
		metric.WithDescription("Synthesis requests sent, including resent chunk tails"))
	if err != nil {
		return nil, err
	}
	recoveries, err := meter.Int64Counter("loqa.reader.recoveries",
		metric.WithDescription("Recovery attempts after stream interruptions"))
	if err != nil {
		return nil, err
	}
	misses, err := meter.Int64Counter("loqa.reader.highlight_misses",
		metric.WithDescription("Poll ticks whose active word could not be mapped to the document"))
	if err != nil {
		return nil, err
	}
	sessions, err := meter.Int64Counter("loqa.reader.sessions",
		metric.WithDescription("Finished sessions by outcome"))
	if err != nil {
		return nil, err
	}
	return &metrics{
		chunksSent:      chunksSent,
		recoveries:      recoveries,
		highlightMisses: misses,
		sessions:        sessions,
	}, nil
}

func (m *metrics) sessionEnded(ctx context.Context, outcome string) {
	m.sessions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *metrics) recovery(ctx context.Context, result string) {
	m.recoveries.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}
