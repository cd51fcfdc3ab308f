package firez

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Field keys written by SpanProcessor.
const (
	OtelTraceIDKey = "otel.trace_id"
	OtelSpanIDKey  = "otel.span_id"
	OtelStatusKey  = "otel.status"
)

// Source-location attribute keys honored by SpanProcessor.
const (
	codeFilepathKey = attribute.Key("code.filepath")
	codeLinenoKey   = attribute.Key("code.lineno")
)

type otelEntry struct {
	ref    NodeRef
	parent trace.SpanID
	ended  bool
}

// SpanProcessor records OpenTelemetry SDK spans into a Recorder.
// Register it with sdktrace.WithSpanProcessor. Spans started from a context
// carrying a firez span nest under it, and firez spans and events started
// from a context carrying an OpenTelemetry span nest under that span.
// Safe for concurrent use by multiple goroutines.
type SpanProcessor struct {
	rec   *Recorder
	spans map[trace.SpanID]*otelEntry
	mu    sync.RWMutex
}

// NewSpanProcessor creates a SpanProcessor and registers it as an
// attachment resolver on rec.
func NewSpanProcessor(rec *Recorder) *SpanProcessor {
	p := &SpanProcessor{
		rec:   rec,
		spans: make(map[trace.SpanID]*otelEntry),
	}
	rec.AddResolver(p.resolve)
	return p
}

var _ sdktrace.SpanProcessor = (*SpanProcessor)(nil)

// OnStart implements sdktrace.SpanProcessor.
func (p *SpanProcessor) OnStart(parent context.Context, s sdktrace.ReadWriteSpan) {
	sc := s.SpanContext()
	info := EventInfo{
		Kind:   KindSpan,
		Name:   s.Name(),
		Level:  LevelInfo,
		Target: s.InstrumentationScope().Name,
		Fields: []Field{
			F(OtelTraceIDKey, sc.TraceID().String()),
			F(OtelSpanIDKey, sc.SpanID().String()),
		},
	}
	info.Location, info.Fields = attributeFields(info.Fields, s.Attributes())

	ref, ok := p.rec.EmitUnder(p.rec.Attach(parent), info)
	if !ok {
		return
	}
	p.rec.metrics.spanStarted()

	p.mu.Lock()
	p.spans[sc.SpanID()] = &otelEntry{ref: ref, parent: s.Parent().SpanID()}
	p.mu.Unlock()
}

// OnEnd implements sdktrace.SpanProcessor. Attributes and status set after
// the span started are merged into its payload, and span events are
// recorded as leaves after the span's other children.
func (p *SpanProcessor) OnEnd(s sdktrace.ReadOnlySpan) {
	id := s.SpanContext().SpanID()

	p.mu.Lock()
	entry, ok := p.spans[id]
	if ok {
		entry.ended = true
	}
	p.mu.Unlock()
	if !ok {
		return
	}
	p.rec.metrics.spanEnded()

	status := s.Status()
	attrs := s.Attributes()
	//nolint:errcheck // the capture may already be burned
	_ = p.rec.Update(entry.ref, func(pl *Payload) {
		var fields []Field
		var loc *Location
		loc, fields = attributeFields(fields, attrs)
		for _, f := range fields {
			pl.Fields.Set(f.Key, f.Value)
		}
		if pl.Location == nil {
			pl.Location = loc
		}
		if status.Code == codes.Error {
			pl.Level = LevelError
			desc := status.Description
			if desc == "" {
				desc = status.Code.String()
			}
			pl.Fields.Set(OtelStatusKey, desc)
		}
	})

	for _, ev := range s.Events() {
		level := LevelInfo
		if ev.Name == "exception" {
			level = LevelError
		}
		info := EventInfo{
			Kind:    KindEvent,
			Name:    ev.Name,
			Message: ev.Name,
			Level:   level,
		}
		info.Location, info.Fields = attributeFields(nil, ev.Attributes)
		p.rec.EmitUnder(entry.ref, info)
	}
}

// Shutdown implements sdktrace.SpanProcessor. It forgets all tracked spans.
func (p *SpanProcessor) Shutdown(context.Context) error {
	p.mu.Lock()
	p.spans = make(map[trace.SpanID]*otelEntry)
	p.mu.Unlock()
	return nil
}

// ForceFlush implements sdktrace.SpanProcessor. Spans are recorded
// synchronously, so there is nothing to flush.
func (p *SpanProcessor) ForceFlush(context.Context) error {
	return nil
}

// resolve maps the OpenTelemetry span in ctx to its node. Ended spans
// resolve to their nearest live ancestor.
func (p *SpanProcessor) resolve(ctx context.Context) (NodeRef, bool) {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return Root, false
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	entry, ok := p.spans[sc.SpanID()]
	for ok && entry.ended {
		entry, ok = p.spans[entry.parent]
	}
	if !ok {
		return Root, false
	}
	return entry.ref, true
}

// attributeFields appends attrs to fields, pulling out the code location
// attributes.
func attributeFields(fields []Field, attrs []attribute.KeyValue) (*Location, []Field) {
	var loc Location
	for _, kv := range attrs {
		switch kv.Key {
		case codeFilepathKey:
			loc.File = kv.Value.AsString()
			continue
		case codeLinenoKey:
			loc.Line = int(kv.Value.AsInt64())
			continue
		}
		fields = append(fields, F(string(kv.Key), kv.Value.AsInterface()))
	}
	if loc.File == "" {
		return nil, fields
	}
	return &loc, fields
}
