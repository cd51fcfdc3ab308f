package integration

import (
	"fmt"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/zoobzio/firez"
)

// NewTestRecorder creates a recorder whose diagnostics go to the test log.
func NewTestRecorder(t *testing.T, opts ...firez.Option) *firez.Recorder {
	t.Helper()
	return firez.NewRecorder(append([]firez.Option{firez.WithLogger(zaptest.NewLogger(t))}, opts...)...)
}

// BurnOrFail burns rec and fails the test on error.
func BurnOrFail(t *testing.T, rec *firez.Recorder) *firez.Ashes {
	t.Helper()
	tree, err := rec.Burn()
	if err != nil {
		t.Fatalf("burn failed: %v", err)
	}
	return tree
}

// FindAll returns every branch whose label equals label, in pre-order.
func FindAll(tree *firez.Ashes, label string) []firez.Branch {
	var found []firez.Branch
	_ = tree.Walk(func(b firez.Branch, _ int) error { //nolint:errcheck // callback never fails
		if p := b.Payload(); p != nil && p.Label() == label {
			found = append(found, b)
		}
		return nil
	})
	return found
}

// FindOne returns the only branch labeled label and fails otherwise.
func FindOne(t *testing.T, tree *firez.Ashes, label string) firez.Branch {
	t.Helper()
	found := FindAll(tree, label)
	if len(found) != 1 {
		t.Fatalf("expected exactly one %q, found %d\n%s", label, len(found), tree)
	}
	return found[0]
}

// ChildLabels lists the labels of b's children in order.
func ChildLabels(b firez.Branch) []string {
	labels := make([]string, 0, b.NumChildren())
	for i := 0; i < b.NumChildren(); i++ {
		labels = append(labels, b.Child(i).Payload().Label())
	}
	return labels
}

// Shape renders the tree as nested labels, e.g. "a(b,c(d))".
// Useful for comparing structure without payload detail.
func Shape(b firez.Branch) string {
	var sb strings.Builder
	writeShape(&sb, b)
	return sb.String()
}

func writeShape(sb *strings.Builder, b firez.Branch) {
	if p := b.Payload(); p != nil {
		sb.WriteString(p.Label())
	}
	if b.NumChildren() == 0 {
		return
	}
	sb.WriteByte('(')
	for i := 0; i < b.NumChildren(); i++ {
		if i > 0 {
			sb.WriteByte(',')
		}
		writeShape(sb, b.Child(i))
	}
	sb.WriteByte(')')
}

// AssertParentChild verifies that child hangs directly under parent.
func AssertParentChild(t *testing.T, tree *firez.Ashes, parent, child string) {
	t.Helper()
	c := FindOne(t, tree, child)
	pref, ok := c.Parent()
	if !ok {
		t.Fatalf("%q is the root", child)
	}
	pb, err := tree.Branch(pref)
	if err != nil {
		t.Fatalf("parent of %q: %v", child, err)
	}
	if got := label(pb); got != parent {
		t.Errorf("parent of %q is %q, expected %q", child, got, parent)
	}
}

func label(b firez.Branch) string {
	if b.IsRoot() {
		return "$"
	}
	return b.Payload().Label()
}

// WorkerName formats the span name used by concurrent workers.
func WorkerName(worker int) string {
	return fmt.Sprintf("worker-%d", worker)
}
