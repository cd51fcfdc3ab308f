// Package firez records spans and events into a tree that is cheap to grow
// and only organized once, at the end.
//
// firez splits a capture into two phases. A Fire is a write-only arena:
// appending a node costs about as much as appending to a slice, and no
// per-parent child lists are kept. Burning the Fire groups every node under
// its parent in a single O(n) pass and produces Ashes, a frozen tree with
// parent lookup, ordered children and depth-first traversal.
//
// Core Components:
//   - Fire: Append-only node arena.
//   - Ashes: Frozen tree produced by Burn or Snapshot.
//   - Recorder: Concurrent capture into one Fire, driven by spans and events.
//   - Handler: log/slog bridge; every record becomes an event.
//   - SpanProcessor: OpenTelemetry SDK bridge; every span becomes a span node.
//   - Session: Config-driven capture that writes an artifact on Close.
//
// Basic Usage:
//
//	rec := firez.NewRecorder()
//
//	ctx, span := rec.StartSpan(ctx, "request")
//	rec.Event(ctx, firez.LevelInfo, "hello", firez.F("user", 42))
//	span.End()
//
//	tree, err := rec.Burn()
//	if err != nil {
//		return err
//	}
//	err = firez.ExportFile("trace.json", tree, firez.ExportOptions{})
//
// Thread Safety:
//
// Recorder, Handler, SpanProcessor and ActiveSpan are safe for concurrent use
// by multiple goroutines. The Recorder's lock is held only for one append at
// a time. Fire and Ashes perform no synchronization of their own.
//
// Context Propagation:
//
// The current attachment point travels in context.Context. A span started
// from a context nests under the innermost live span of that context. Ending
// a span makes later spans and events from the same context attach to its
// parent instead.
//
// Artifact Format:
//
// Trees export as nested JSON objects. "v" holds a node's payload and the
// keys "0", "1", ... hold its children in order; the keys are always dense.
// The synthetic root has no payload. MessagePack artifacts use the same shape.
package firez
