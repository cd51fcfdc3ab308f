package firez

import (
	"context"
	"log/slog"
	"runtime"
	"strings"
)

// HandlerOptions configures a Handler.
type HandlerOptions struct {
	// Level is the minimum level recorded. nil records everything.
	Level slog.Leveler
}

// Handler is a log/slog handler that records every log record as an event
// under the current attachment point of the context passed to the log call.
// The group path of the logger is passed to the Provider as the target.
// Use the *Context logging methods (InfoContext and friends) so the handler
// can see the active span.
type Handler struct {
	rec    *Recorder
	opts   HandlerOptions
	attrs  []Field
	groups []string
}

// NewHandler returns a Handler recording into rec. opts may be nil.
func NewHandler(rec *Recorder, opts *HandlerOptions) *Handler {
	h := &Handler{rec: rec}
	if opts != nil {
		h.opts = *opts
	}
	return h
}

// Enabled implements slog.Handler.
func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	minLevel := slog.LevelDebug - 4
	if h.opts.Level != nil {
		minLevel = h.opts.Level.Level()
	}
	return level >= minLevel
}

// Handle implements slog.Handler. It never returns an error: a record that
// cannot be captured is dropped by the Recorder.
func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	info := EventInfo{
		Message: r.Message,
		Level:   levelFromSlog(r.Level),
		Fields:  make([]Field, 0, len(h.attrs)+r.NumAttrs()),
	}
	if r.PC != 0 {
		frames := runtime.CallersFrames([]uintptr{r.PC})
		fr, _ := frames.Next()
		if fr.File != "" {
			info.Location = &Location{File: fr.File, Line: fr.Line}
		}
	}
	if len(h.groups) > 0 {
		info.Target = strings.Join(h.groups, ".")
	}

	info.Fields = append(info.Fields, h.attrs...)
	prefix := h.prefix()
	r.Attrs(func(a slog.Attr) bool {
		info.Fields = appendAttr(info.Fields, prefix, a)
		return true
	})

	h.rec.Emit(ctx, info)
	return nil
}

// WithAttrs implements slog.Handler.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	h2 := h.clone()
	prefix := h.prefix()
	for _, a := range attrs {
		h2.attrs = appendAttr(h2.attrs, prefix, a)
	}
	return h2
}

// WithGroup implements slog.Handler. Attributes added afterwards are stored
// under dotted keys.
func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := h.clone()
	h2.groups = append(h2.groups, name)
	return h2
}

func (h *Handler) clone() *Handler {
	return &Handler{
		rec:    h.rec,
		opts:   h.opts,
		attrs:  append([]Field(nil), h.attrs...),
		groups: append([]string(nil), h.groups...),
	}
}

func (h *Handler) prefix() string {
	if len(h.groups) == 0 {
		return ""
	}
	return strings.Join(h.groups, ".") + "."
}

// appendAttr flattens a into fields, expanding groups into dotted keys.
func appendAttr(fields []Field, prefix string, a slog.Attr) []Field {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return fields
	}
	if a.Value.Kind() == slog.KindGroup {
		group := a.Value.Group()
		if len(group) == 0 {
			return fields
		}
		// Inline groups (empty key) splice their attrs into the parent.
		p := prefix
		if a.Key != "" {
			p = prefix + a.Key + "."
		}
		for _, ga := range group {
			fields = appendAttr(fields, p, ga)
		}
		return fields
	}
	return append(fields, Field{Key: prefix + a.Key, Value: slogValue(a.Value)})
}

func slogValue(v slog.Value) any {
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindInt64:
		return v.Int64()
	case slog.KindUint64:
		return v.Uint64()
	case slog.KindFloat64:
		return v.Float64()
	case slog.KindBool:
		return v.Bool()
	case slog.KindDuration:
		return v.Duration()
	case slog.KindTime:
		return v.Time()
	default:
		return v.Any()
	}
}

// levelFromSlog maps slog levels onto the bridge severity labels.
func levelFromSlog(l slog.Level) Level {
	switch {
	case l < slog.LevelDebug:
		return LevelTrace
	case l < slog.LevelInfo:
		return LevelDebug
	case l < slog.LevelWarn:
		return LevelInfo
	case l < slog.LevelError:
		return LevelWarn
	default:
		return LevelError
	}
}
