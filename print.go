package firez

import (
	"bytes"
	"fmt"
	"io"
	"strings"
)

// PrintFunc renders a single node. payload is nil for Root; depth is 0 for Root.
type PrintFunc func(w io.Writer, payload *Payload, depth int) error

// PrintPlain is the default PrintFunc: two dashes per level, "$" for Root.
func PrintPlain(w io.Writer, payload *Payload, depth int) error {
	indent := strings.Repeat("-", depth*2)
	if payload == nil {
		_, err := fmt.Fprintf(w, "%s$:\n", indent)
		return err
	}
	_, err := fmt.Fprintf(w, "%s%s:\n", indent, payload)
	return err
}

// Fprint writes a human-readable rendering of the tree to w.
// A nil fn uses PrintPlain.
func (a *Ashes) Fprint(w io.Writer, fn PrintFunc) error {
	if fn == nil {
		fn = PrintPlain
	}
	return a.Walk(func(b Branch, depth int) error {
		return fn(w, b.Payload(), depth)
	})
}

// String renders the tree with PrintPlain.
func (a *Ashes) String() string {
	var buf bytes.Buffer
	_ = a.Fprint(&buf, nil) //nolint:errcheck // bytes.Buffer writes cannot fail
	return buf.String()
}
