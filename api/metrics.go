package api

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	snapshotEventName   = "board.snapshot.request"
	snapshotEventDomain = "retro-api"
	tracerName          = "retro-api/api"
)

// snapshotRequestMetrics collects per-request timings for the snapshot
// read path and emits them as one structured observability event tied to
// an otel span.
type snapshotRequestMetrics struct {
	logger         *log.Logger
	span           trace.Span
	start          time.Time
	fetchDuration  time.Duration
	encodeDuration time.Duration
	notesReturned  int
	actionsCount   int
	errorStage     string
}

func newSnapshotRequestMetrics(ctx context.Context, logger *log.Logger) (*snapshotRequestMetrics, context.Context) {
	spanCtx, span := otel.Tracer(tracerName).Start(ctx, snapshotEventName)
	return &snapshotRequestMetrics{
		logger: logger,
		span:   span,
		start:  time.Now(),
	}, spanCtx
}

func (m *snapshotRequestMetrics) ObserveFetch(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.fetchDuration = duration
}

func (m *snapshotRequestMetrics) ObserveEncode(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.encodeDuration = duration
}

func (m *snapshotRequestMetrics) SetNotesReturned(count int) {
	if count < 0 {
		count = 0
	}
	m.notesReturned = count
}

func (m *snapshotRequestMetrics) SetActionsReturned(count int) {
	if count < 0 {
		count = 0
	}
	m.actionsCount = count
}

func (m *snapshotRequestMetrics) SetErrorStage(stage string) {
	if stage == "" {
		return
	}
	m.errorStage = stage
}

// Log ends the span and writes the observability event. It must be called
// exactly once per request.
func (m *snapshotRequestMetrics) Log(status int, err error) {
	if m == nil || m.logger == nil {
		return
	}

	totalMs := durationToMillis(time.Since(m.start))
	attrs := map[string]any{
		"http.route":              "/api/boards/:boardId",
		"http.status_code":        status,
		"retro.snapshot.total_ms": totalMs,
		"retro.snapshot.notes":    m.notesReturned,
		"retro.snapshot.actions":  m.actionsCount,
	}
	if m.fetchDuration > 0 {
		attrs["retro.snapshot.fetch_ms"] = durationToMillis(m.fetchDuration)
	}
	if m.encodeDuration > 0 {
		attrs["retro.snapshot.encode_ms"] = durationToMillis(m.encodeDuration)
	}
	if m.errorStage != "" {
		attrs["retro.snapshot.error_stage"] = m.errorStage
	}

	if m.span != nil {
		m.span.SetAttributes(
			attribute.Int("http.status_code", status),
			attribute.Float64("retro.snapshot.total_ms", totalMs),
			attribute.Int("retro.snapshot.notes", m.notesReturned),
			attribute.Int("retro.snapshot.actions", m.actionsCount),
		)
		if err != nil {
			m.span.RecordError(err)
			m.span.SetStatus(codes.Error, err.Error())
		} else {
			m.span.SetStatus(codes.Ok, "")
		}
		m.span.End()
	}

	severityText, severityNumber := "INFO", 9
	if err != nil || status >= 500 {
		severityText, severityNumber = "ERROR", 17
	}
	fields := log.Fields{
		"event.name":      snapshotEventName,
		"event.domain":    snapshotEventDomain,
		"attributes":      attrs,
		"severity_text":   severityText,
		"severity_number": severityNumber,
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	if m.span != nil {
		if sc := m.span.SpanContext(); sc.HasTraceID() {
			fields["trace_id"] = sc.TraceID().String()
			fields["span_id"] = sc.SpanID().String()
		}
	}
	m.logger.WithFields(fields).Info("observability.event")
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
