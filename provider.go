package firez

import (
	"encoding"
	"encoding/json"
	"fmt"
	"time"
)

// EventInfo is what a bridge knows about a span or event at the moment it
// starts. Providers turn it into a Payload.
//
//nolint:govet // Field order mirrors Payload
type EventInfo struct {
	Name     string
	Message  string
	Target   string
	Level    Level
	Location *Location
	Fields   []Field
	Kind     Kind
}

// Provider extracts a Payload from an EventInfo.
// Implementations must be safe for concurrent use: bridges call Payload
// outside the arena lock. Errors and panics are caught by the Recorder and
// never reach the instrumented program.
type Provider interface {
	Payload(info EventInfo) (Payload, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(info EventInfo) (Payload, error)

// Payload calls f(info).
func (f ProviderFunc) Payload(info EventInfo) (Payload, error) {
	return f(info)
}

// LogProvider is the default Provider. It keeps the name, level and source
// location, and copies fields into ctx. Event messages are stored under
// MessageKey ahead of the other fields. Events without a name are named
// "event <file>:<line>" when their location is known.
type LogProvider struct {
	// TargetKey, when non-empty, records EventInfo.Target in ctx under this key.
	TargetKey string
}

// Payload implements Provider.
func (lp LogProvider) Payload(info EventInfo) (Payload, error) {
	if info.Kind != KindSpan && info.Kind != KindEvent {
		return Payload{}, fmt.Errorf("unknown kind %d", info.Kind)
	}

	p := Payload{
		Kind:     info.Kind,
		Name:     info.Name,
		Level:    info.Level,
		Location: info.Location,
	}
	if p.Name == "" && p.Kind == KindEvent && p.Location != nil {
		p.Name = "event " + p.Location.String()
	}

	if info.Kind == KindEvent && info.Message != "" {
		p.Fields.Set(MessageKey, info.Message)
	}
	for _, f := range info.Fields {
		p.Fields.Set(f.Key, normalize(f.Value))
	}
	if lp.TargetKey != "" && info.Target != "" {
		p.Fields.Set(lp.TargetKey, info.Target)
	}
	return p, nil
}

// normalize converts common Go values into JSON-friendly shapes.
// Anything else is kept as is and checked at export time.
func normalize(v any) any {
	switch val := v.(type) {
	case json.Number, Fields:
		return v
	case error:
		return val.Error()
	case time.Time:
		return val.Format(time.RFC3339Nano)
	case time.Duration:
		return val.String()
	case []byte:
		return string(val)
	case encoding.TextMarshaler:
		text, err := val.MarshalText()
		if err != nil {
			return fmt.Sprintf("!ERROR:%v", err)
		}
		return string(text)
	case fmt.Stringer:
		return val.String()
	default:
		return v
	}
}

// safeNormalize is normalize with panics from user methods recovered.
func safeNormalize(v any) (out any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return normalize(v), nil
}
