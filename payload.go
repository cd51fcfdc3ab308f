package firez

import (
	"fmt"
	"strings"
)

// Kind distinguishes spans from events.
type Kind uint8

const (
	// KindSpan marks a node that can be entered and may have children.
	KindSpan Kind = iota + 1
	// KindEvent marks an instantaneous leaf node.
	KindEvent
)

// String returns the string representation of Kind.
func (k Kind) String() string {
	switch k {
	case KindSpan:
		return "span"
	case KindEvent:
		return "event"
	default:
		return "unknown"
	}
}

// Level is a severity label. Any value is accepted; the constants below are
// what the bundled bridges produce.
type Level string

// Severity labels produced by the slog and OpenTelemetry bridges.
const (
	LevelTrace Level = "TRACE"
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Location is a source position.
type Location struct {
	File string `json:"file"`
	Line int    `json:"line"`
}

// String formats the location as file:line.
func (l Location) String() string {
	return fmt.Sprintf("%s:%d", l.File, l.Line)
}

// MessageKey is the ctx key under which event messages are stored.
// Viewers display it as the event's label.
const MessageKey = "message"

// Payload is the data carried by a tree node.
//
//nolint:govet // Field order follows the wire format
type Payload struct {
	Name     string
	Level    Level
	Location *Location
	Fields   Fields
	Kind     Kind
}

// IsSpan reports whether the payload describes a span.
func (p *Payload) IsSpan() bool {
	return p.Kind == KindSpan
}

// Message returns the event message stored under MessageKey, if any.
func (p *Payload) Message() (string, bool) {
	v, ok := p.Fields.Get(MessageKey)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Label returns the text a viewer would show for the node: the message for
// events that carry one, otherwise the name.
func (p *Payload) Label() string {
	if !p.IsSpan() {
		if msg, ok := p.Message(); ok {
			return msg
		}
	}
	return p.Name
}

// Clone returns a copy of the payload that shares no mutable storage with p.
func (p *Payload) Clone() Payload {
	c := *p
	if p.Location != nil {
		loc := *p.Location
		c.Location = &loc
	}
	c.Fields = p.Fields.Clone()
	return c
}

// String renders a compact single-line summary.
func (p *Payload) String() string {
	var b strings.Builder
	b.WriteString(p.Kind.String())
	if label := p.Label(); label != "" {
		fmt.Fprintf(&b, " %q", label)
	}
	if p.Level != "" {
		fmt.Fprintf(&b, " [%s]", p.Level)
	}
	p.Fields.Range(func(k string, v any) bool {
		if k == MessageKey && !p.IsSpan() {
			return true
		}
		fmt.Fprintf(&b, " %s=%v", k, v)
		return true
	})
	return b.String()
}
