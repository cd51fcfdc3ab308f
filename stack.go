package firez

import (
	"context"
	"sync/atomic"
)

// frameKeyType is a private type for context keys to avoid collisions.
type frameKeyType struct{}

var frameKey frameKeyType

// frame is one entry of an attachment stack. Stacks are immutable linked
// lists carried by context.Context, so each goroutine or call chain sees the
// stack of the context it was handed and no cross-goroutine locking is needed.
type frame struct {
	parent *frame
	exited *atomic.Bool
	ref    NodeRef
}

func topFrame(ctx context.Context) *frame {
	if ctx == nil {
		return nil
	}
	f, _ := ctx.Value(frameKey).(*frame)
	return f
}

// Push returns a context whose attachment point is ref.
func Push(ctx context.Context, ref NodeRef) context.Context {
	return push(ctx, ref, nil)
}

// push adds a frame for ref whose liveness is tracked by exited.
// A nil exited creates a frame that never exits.
func push(ctx context.Context, ref NodeRef, exited *atomic.Bool) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if exited == nil {
		exited = new(atomic.Bool)
	}
	f := &frame{ref: ref, parent: topFrame(ctx), exited: exited}
	return context.WithValue(ctx, frameKey, f)
}

// Pop returns a context with the innermost frame removed.
// Contexts already derived from ctx are not affected.
func Pop(ctx context.Context) context.Context {
	top := topFrame(ctx)
	if top == nil {
		return ctx
	}
	return context.WithValue(ctx, frameKey, top.parent)
}

// Current returns the innermost attachment point in ctx that belongs to the
// given arena and whose span has not been exited. ok is false when the
// stack holds no such frame, meaning new nodes attach to Root.
func Current(ctx context.Context, f *Fire) (NodeRef, bool) {
	for fr := topFrame(ctx); fr != nil; fr = fr.parent {
		if fr.exited.Load() || !f.Owns(fr.ref) || fr.ref.IsRoot() {
			continue
		}
		return fr.ref, true
	}
	return Root, false
}

// Stack returns the live attachment points in ctx for the given arena,
// outermost first.
func Stack(ctx context.Context, f *Fire) []NodeRef {
	var refs []NodeRef
	for fr := topFrame(ctx); fr != nil; fr = fr.parent {
		if fr.exited.Load() || !f.Owns(fr.ref) || fr.ref.IsRoot() {
			continue
		}
		refs = append(refs, fr.ref)
	}
	for i, j := 0, len(refs)-1; i < j; i, j = i+1, j-1 {
		refs[i], refs[j] = refs[j], refs[i]
	}
	return refs
}
