package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
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

	"github.com/openkcm/session-keeper/internal/config"
	"github.com/openkcm/session-keeper/internal/middleware/responsewriter"
)

// meters holds the instruments recorded for every routed request.
type meters struct {
	requests metric.Int64Counter
	duration metric.Int64Histogram
}

func initMeters(ctx context.Context, cfg *config.Config) (*meters, error) {
	meter := otel.Meter(
		"session-keeper/http",
		metric.WithInstrumentationVersion(otel.Version()),
		metric.WithInstrumentationAttributes(otlp.CreateAttributesFrom(cfg.Application)...),
	)

	requests, err := meter.Int64Counter(
		"http.server.request_count",
		metric.WithDescription("Routed request count"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, oops.In("HTTP Server").
			WithContext(ctx).
			Wrapf(err, "creating request count meter")
	}

	duration, err := meter.Int64Histogram(
		"http.server.duration",
		metric.WithDescription("Handler duration of routed requests"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, oops.In("HTTP Server").
			WithContext(ctx).
			Wrapf(err, "creating duration meter")
	}

	return &meters{requests: requests, duration: duration}, nil
}

func (m *meters) record(ctx context.Context, elapsed time.Duration, attrs metric.MeasurementOption) {
	if m == nil {
		return
	}

	m.requests.Add(ctx, 1, attrs)
	m.duration.Record(ctx, elapsed.Milliseconds(), attrs)
}

// newTraceMiddleware returns a wrapper that covers a handler with a span,
// request scoped log attributes and the request metrics. A nil m records no metrics.
func newTraceMiddleware(cfg *config.Config, m *meters) func(operationID string, next http.Handler) http.Handler {
	return func(operationID string, next http.Handler) http.Handler {
		traceAttrs := otlp.CreateAttributesFrom(cfg.Application, attribute.String(commoncfg.AttrOperation, operationID))
		tracer := otel.Tracer(operationID, trace.WithInstrumentationAttributes(traceAttrs...))

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := slogctx.With(r.Context(),
				commoncfg.AttrRequestID, uuid.NewString(),
				commoncfg.AttrOperation, operationID,
			)

			parentCtx := otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(r.Header))

			ctx, span := tracer.Start(parentCtx, operationID+"-span", trace.WithAttributes(traceAttrs...))
			defer span.End()

			rec := responsewriter.Wrap(w)
			start := time.Now()

			defer func() {
				attrs := metric.WithAttributes(
					otlp.CreateAttributesFrom(cfg.Application,
						attribute.String("userAgent", r.UserAgent()),
						attribute.String(commoncfg.AttrOperation, operationID),
						attribute.String("status", strconv.Itoa(rec.Status())),
					)...,
				)
				m.record(ctx, time.Since(start), attrs)
			}()

			slogctx.Debug(ctx, fmt.Sprintf("Processing %s request", operationID))
			next.ServeHTTP(rec, r.WithContext(ctx))
			slogctx.Debug(ctx, fmt.Sprintf("Finished %s request", operationID), "status", rec.Status())
		})
	}
}
