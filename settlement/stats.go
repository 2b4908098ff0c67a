package settlement

import (
	"context"
	"log/slog"

	"github.com/billbatista/acasinha-trips/metrics"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// CoercionsMetric counts the inputs the engine had to coerce or ignore,
// labelled with one of the Reason values.
const CoercionsMetric = "settlement.coercions"

const (
	ReasonNonNumericAmount   = "non_numeric_amount"
	ReasonUnknownPayer       = "unknown_payer"
	ReasonUnknownBeneficiary = "unknown_beneficiary"
	ReasonUnknownSplitEntry  = "unknown_split_entry"
	ReasonCustomMismatch     = "custom_split_mismatch"
	ReasonUnknownSplitType   = "unknown_split_type"
)

func newCoercionCounter(meter metric.Meter, logger *slog.Logger) metric.Int64Counter {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("settlement")
	}
	counter, err := meter.Int64Counter(CoercionsMetric,
		metric.WithDescription("Inputs the settlement engine coerced or ignored."),
		metric.WithUnit("1"),
	)
	if err != nil {
		logger.Error("failed to create counter metric", "metric_name", CoercionsMetric, "error", err)
		return noop.Int64Counter{}
	}
	return counter
}

func (e *Engine) coerced(reason string) {
	e.coercions.Add(context.Background(), 1, metric.WithAttributes(metrics.ReasonKey.String(reason)))
}
