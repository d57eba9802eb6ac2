package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/openkcm/common-sdk/pkg/otlp"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/age-gate/internal/config"
	"github.com/openkcm/age-gate/internal/gate"
	"github.com/openkcm/age-gate/internal/middleware/responsewriter"
)

var (
	counter  metric.Int64Counter
	hist     metric.Int64Histogram
	outcomes metric.Int64Counter
)

func initMeters(ctx context.Context, cfg *config.Config) error {
	meter := otel.Meter(
		"agegate/"+cfg.Application.Name,
		metric.WithInstrumentationVersion(otel.Version()),
		metric.WithInstrumentationAttributes(otlp.CreateAttributesFrom(cfg.Application)...),
	)

	var err error

	counter, err = meter.Int64Counter(
		"http.request_count",
		metric.WithDescription("Incoming request count"),
		metric.WithUnit("request"),
	)
	if err != nil {
		return oops.In("HTTP Server").
			WithContext(ctx).
			Wrapf(err, "creating request_count meter")
	}

	hist, err = meter.Int64Histogram(
		"http.duration",
		metric.WithDescription("Incoming end to end duration"),
		metric.WithUnit("milliseconds"),
	)
	if err != nil {
		return oops.In("HTTP Server").
			WithContext(ctx).
			Wrapf(err, "creating duration meter")
	}

	outcomes, err = meter.Int64Counter(
		"agegate.outcome_count",
		metric.WithDescription("Gate decisions by outcome"),
		metric.WithUnit("decision"),
	)
	if err != nil {
		return oops.In("HTTP Server").
			WithContext(ctx).
			Wrapf(err, "creating outcome_count meter")
	}

	return nil
}

// instrument covers h with tracing, request metrics and a request scoped logger.
func instrument(cfg *config.Config, operation string, h http.HandlerFunc) http.HandlerFunc {
	traceAttrs := otlp.CreateAttributesFrom(cfg.Application, attribute.String(commoncfg.AttrOperation, operation))
	tracer := otel.Tracer(operation, trace.WithInstrumentationAttributes(traceAttrs...))

	return func(w http.ResponseWriter, r *http.Request) {
		rec := responsewriter.Wrap(w)

		ctx := slogctx.With(r.Context(),
			commoncfg.AttrRequestID, uuid.NewString(),
			commoncfg.AttrOperation, operation,
		)

		parentCtx := otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(r.Header))

		ctx, span := tracer.Start(parentCtx, operation+"-span", trace.WithAttributes(traceAttrs...))
		defer span.End()

		requestStartTime := time.Now()

		defer func() {
			elapsedTime := time.Since(requestStartTime)

			attrs := metric.WithAttributes(
				otlp.CreateAttributesFrom(cfg.Application,
					attribute.String("userAgent", r.UserAgent()),
					attribute.String(commoncfg.AttrOperation, operation),
					attribute.Int("http.status_code", rec.Status()),
				)...,
			)

			if counter != nil {
				counter.Add(ctx, 1, attrs)
				hist.Record(ctx, elapsedTime.Milliseconds(), attrs)
			}
		}()

		slogctx.Debug(ctx, fmt.Sprintf("Processing %s request", operation))
		h(rec, r.WithContext(ctx))
		slogctx.Debug(ctx, fmt.Sprintf("Finished %s request", operation), "status", rec.Status())
	}
}

func recordOutcome(ctx context.Context, cfg *config.Config, outcome gate.Outcome) {
	if outcomes == nil {
		return
	}

	outcomes.Add(ctx, 1, metric.WithAttributes(
		otlp.CreateAttributesFrom(cfg.Application,
			attribute.String("outcome", outcome.String()),
			attribute.String("mode", string(cfg.AgeGate.Mode)),
		)...,
	))
}
