package firez

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ActiveSpan is a span that has been started and not yet ended.
// Safe for concurrent use by multiple goroutines.
//
// A span that could not be recorded (nil Recorder, finalized arena, failing
// Provider) is still returned; all of its methods are no-ops.
type ActiveSpan struct {
	rec    *Recorder
	exited *atomic.Bool // shared by every frame that carries this span
	ref    NodeRef
	mu     sync.Mutex
	ended  bool
}

// Ref returns the span's node reference. ok is false when the span was not
// recorded.
func (s *ActiveSpan) Ref() (NodeRef, bool) {
	return s.ref, s.exited != nil
}

// Recorded reports whether the span made it into the arena.
func (s *ActiveSpan) Recorded() bool {
	return s.exited != nil
}

// SetField adds or replaces a ctx field on the span's payload.
// No-op if the span is already ended. A value whose conversion panics
// is dropped and counted like a failed extraction.
func (s *ActiveSpan) SetField(key string, value any) {
	if s.exited == nil || s.Ended() {
		return
	}
	v, err := safeNormalize(value)
	if err != nil {
		s.rec.drop(DropExtraction, &ExtractionError{Kind: KindSpan, Name: key, Err: err}, EventInfo{Kind: KindSpan, Name: key})
		return
	}
	s.update(func(p *Payload) {
		p.Fields.Set(key, v)
	})
}

// SetLevel overrides the span's level.
// No-op if the span is already ended.
func (s *ActiveSpan) SetLevel(level Level) {
	s.update(func(p *Payload) {
		p.Level = level
	})
}

func (s *ActiveSpan) update(fn func(*Payload)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended || s.exited == nil {
		return
	}
	if err := s.rec.Update(s.ref, fn); err != nil && !errors.Is(err, ErrArenaFinalized) {
		s.rec.drop(DropExtraction, err, EventInfo{Kind: KindSpan})
	}
}

// End exits the span. New spans and events created from any context that
// still carries this span attach to its nearest live ancestor instead.
// Safe to call multiple times - subsequent calls are no-ops.
func (s *ActiveSpan) End() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		return
	}
	s.ended = true
	if s.exited == nil {
		return
	}
	s.exited.Store(true)
	s.rec.metrics.spanEnded()
}

// Ended reports whether End has been called.
func (s *ActiveSpan) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

// Context returns parent with this span pushed as the attachment point.
// Useful for handing the span to a goroutine whose context was derived
// elsewhere. Ending the span affects the returned context too.
func (s *ActiveSpan) Context(parent context.Context) context.Context {
	if parent == nil {
		parent = context.Background()
	}
	if s.exited == nil {
		return parent
	}
	return push(parent, s.ref, s.exited)
}
