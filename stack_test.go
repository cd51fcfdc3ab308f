package firez

import (
	"context"
	"testing"
)

func TestCurrentEmptyContext(t *testing.T) {
	f := NewFire()
	ref, ok := Current(context.Background(), f)
	if ok || !ref.IsRoot() {
		t.Errorf("Expected root for empty context, got %s", ref)
	}
	//nolint:staticcheck // nil context is tolerated
	if ref, ok := Current(nil, f); ok || !ref.IsRoot() {
		t.Errorf("Expected root for nil context, got %s", ref)
	}
}

func TestPushPop(t *testing.T) {
	f := NewFire()
	a, _ := f.Append(Root, span("a"))
	b, _ := f.Append(a, span("b"))

	ctxA := Push(context.Background(), a)
	ctxB := Push(ctxA, b)

	if ref, _ := Current(ctxB, f); ref != b {
		t.Errorf("Expected %s, got %s", b, ref)
	}
	if ref, _ := Current(ctxA, f); ref != a {
		t.Errorf("Expected %s in the outer context, got %s", a, ref)
	}

	popped := Pop(ctxB)
	if ref, _ := Current(popped, f); ref != a {
		t.Errorf("Expected %s after pop, got %s", a, ref)
	}
	// Popping does not touch the original context.
	if ref, _ := Current(ctxB, f); ref != b {
		t.Errorf("Pop changed derived context: got %s", ref)
	}
	if ref, _ := Current(Pop(popped), f); !ref.IsRoot() {
		t.Errorf("Expected root after popping everything, got %s", ref)
	}

	stack := Stack(ctxB, f)
	if len(stack) != 2 || stack[0] != a || stack[1] != b {
		t.Errorf("Unexpected stack %v", stack)
	}
}

func TestCurrentSkipsForeignArena(t *testing.T) {
	f1, f2 := NewFire(), NewFire()
	a, _ := f1.Append(Root, span("a"))
	x, _ := f2.Append(Root, span("x"))

	ctx := Push(Push(context.Background(), a), x)

	if ref, _ := Current(ctx, f1); ref != a {
		t.Errorf("Expected %s for f1, got %s", a, ref)
	}
	if ref, _ := Current(ctx, f2); ref != x {
		t.Errorf("Expected %s for f2, got %s", x, ref)
	}
}

func TestCurrentSkipsExitedFrames(t *testing.T) {
	rec := NewRecorder()
	ctxA, a := rec.StartSpan(context.Background(), "a")
	ctxB, b := rec.StartSpan(ctxA, "b")

	b.End()
	refA, _ := a.Ref()
	if ref := rec.Attach(ctxB); ref != refA {
		t.Errorf("Expected ended span to fall through to %s, got %s", refA, ref)
	}

	a.End()
	if ref := rec.Attach(ctxB); !ref.IsRoot() {
		t.Errorf("Expected root once every span ended, got %s", ref)
	}
}

func TestContextsAreIndependentAcrossGoroutines(t *testing.T) {
	rec := NewRecorder()
	ctx, parent := rec.StartSpan(context.Background(), "parent")
	defer parent.End()

	done := make(chan NodeRef, 2)
	for i := 0; i < 2; i++ {
		go func() {
			c, s := rec.StartSpan(ctx, "child")
			defer s.End()
			done <- rec.Attach(c)
		}()
	}
	first, second := <-done, <-done
	if first == second {
		t.Error("Each goroutine should see its own span as current")
	}
	if ref := rec.Attach(ctx); ref != mustRef(t, parent) {
		t.Errorf("Parent context changed by children: %s", ref)
	}
}

func mustRef(t *testing.T, s *ActiveSpan) NodeRef {
	t.Helper()
	ref, ok := s.Ref()
	if !ok {
		t.Fatal("span was not recorded")
	}
	return ref
}
