package tracing

import (
	"context"
	"net/http"
	"net/url"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys shared by sweep, level and upload spans.
const (
	KeyConcurrency      = attribute.Key("sweepfire.concurrency")
	KeyRequests         = attribute.Key("sweepfire.requests")
	KeyLevels           = attribute.Key("sweepfire.levels")
	KeyOutcome          = attribute.Key("sweepfire.outcome")
	keyHTTPMethod       = attribute.Key("http.request.method")
	keyHTTPStatus       = attribute.Key("http.response.status_code")
	keyURLFull          = attribute.Key("url.full")
	keySuccesses        = attribute.Key("sweepfire.successes")
	keyFailures         = attribute.Key("sweepfire.failures")
	keyRequestsPerLevel = attribute.Key("sweepfire.requests_per_level")
)

// StartSweepSpan starts the root span of a sweep.
func StartSweepSpan(ctx context.Context, tracer trace.Tracer, levels []int, requestsPerLevel int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "sweep", trace.WithAttributes(
		KeyLevels.IntSlice(levels),
		keyRequestsPerLevel.Int(requestsPerLevel),
	))
}

// StartLevelSpan starts the span covering one concurrency level.
func StartLevelSpan(ctx context.Context, tracer trace.Tracer, concurrency, requests int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "sweep level", trace.WithAttributes(
		KeyConcurrency.Int(concurrency),
		KeyRequests.Int(requests),
	))
}

// StartUploadSpan starts a client span for one upload to target.
// The span is named after the method and target path.
func StartUploadSpan(ctx context.Context, tracer trace.Tracer, target string) (context.Context, trace.Span) {
	name := http.MethodPost
	attrs := []attribute.KeyValue{keyHTTPMethod.String(http.MethodPost)}
	if target != "" {
		attrs = append(attrs, keyURLFull.String(target))
		if u, err := url.Parse(target); err == nil && u.Path != "" {
			name += " " + u.Path
		}
	}
	return tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(attrs...))
}

// LevelResult annotates a level span with its counts.
func LevelResult(successes, failures int64) []attribute.KeyValue {
	return []attribute.KeyValue{keySuccesses.Int64(successes), keyFailures.Int64(failures)}
}

// UploadResult annotates an upload span. Status 0 means no response arrived.
func UploadResult(status int, outcome string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{KeyOutcome.String(outcome)}
	if status != 0 {
		attrs = append(attrs, keyHTTPStatus.Int(status))
	}
	return attrs
}

// End records err on span, if any, and ends it.
func End(span trace.Span, err error, attrs ...attribute.KeyValue) {
	span.SetAttributes(attrs...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// InjectHTTPHeaders writes the W3C trace context of ctx into headers.
func InjectHTTPHeaders(ctx context.Context, headers http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(headers))
}
