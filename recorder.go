package firez

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/zoobzio/clockz"
	"go.uber.org/zap"
)

// recorderKeyType is a private type for context keys to avoid collisions.
type recorderKeyType struct{}

var recorderKey recorderKeyType

// Resolver maps a context to an attachment point known to some bridge.
// ok is false when the bridge knows nothing about ctx.
type Resolver func(ctx context.Context) (ref NodeRef, ok bool)

// Recorder captures spans and events from any number of goroutines into a
// single Fire. It is the bridge between a logging framework and the arena.
// Safe for concurrent use by multiple goroutines.
//
// The arena lock is held only for a single append or payload update, never
// while user code runs inside a span, and never while a Provider runs.
//
//nolint:govet // Field order optimized for readability
type Recorder struct {
	fire          *Fire
	provider      Provider
	logger        *zap.Logger
	clock         clockz.Clock
	metrics       *Metrics
	resolvers     []Resolver
	mu            sync.Mutex
	resolversLock sync.RWMutex
	dropped       atomic.Uint64
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithProvider sets the payload Provider. The default is LogProvider{}.
func WithProvider(p Provider) Option {
	return func(r *Recorder) {
		if p != nil {
			r.provider = p
		}
	}
}

// WithLogger sets the logger used for the Recorder's own diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(r *Recorder) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithClock sets the clock used for burn timing.
// Enables clock injection for deterministic testing.
func WithClock(c clockz.Clock) Option {
	return func(r *Recorder) {
		if c != nil {
			r.clock = c
		}
	}
}

// WithMetrics reports capture activity to m.
func WithMetrics(m *Metrics) Option {
	return func(r *Recorder) {
		r.metrics = m
	}
}

// NewRecorder creates a Recorder over a fresh arena.
func NewRecorder(opts ...Option) *Recorder {
	r := &Recorder{
		fire:     NewFire(),
		provider: LogProvider{},
		logger:   zap.NewNop(),
		clock:    clockz.RealClock,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// WithRecorder returns a context carrying r.
func WithRecorder(ctx context.Context, r *Recorder) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, recorderKey, r)
}

// FromContext returns the Recorder carried by ctx, or nil.
// All Recorder capture methods are no-ops on a nil Recorder.
func FromContext(ctx context.Context) *Recorder {
	if ctx == nil {
		return nil
	}
	r, _ := ctx.Value(recorderKey).(*Recorder)
	return r
}

// AddResolver registers an additional source of attachment points, such as
// a tracing SDK whose spans carry their own context propagation.
func (r *Recorder) AddResolver(res Resolver) {
	if res == nil {
		return
	}
	r.resolversLock.Lock()
	defer r.resolversLock.Unlock()
	r.resolvers = append(r.resolvers, res)
}

// Attach returns the node new spans and events created with ctx attach to.
// Candidates come from the firez stack in ctx and from every registered
// Resolver. All candidates lie on the caller's ancestor chain, and a node is
// always appended after its ancestors, so the innermost one is the candidate
// with the highest index.
func (r *Recorder) Attach(ctx context.Context) NodeRef {
	best, _ := Current(ctx, r.fire)

	r.resolversLock.RLock()
	resolvers := r.resolvers
	r.resolversLock.RUnlock()

	for _, res := range resolvers {
		ref, ok := res(ctx)
		if !ok || !r.fire.Owns(ref) {
			continue
		}
		if ref.Index() > best.Index() {
			best = ref
		}
	}
	return best
}

// StartSpan records a new span under the current attachment point and
// returns a context in which it is the attachment point.
// The returned span must be ended with End.
func (r *Recorder) StartSpan(ctx context.Context, name string, fields ...Field) (context.Context, *ActiveSpan) {
	return r.Start(ctx, EventInfo{
		Name:     name,
		Location: callerLocation(2),
		Fields:   fields,
	})
}

// Start is StartSpan with full control over the EventInfo. Kind is forced
// to KindSpan.
func (r *Recorder) Start(ctx context.Context, info EventInfo) (context.Context, *ActiveSpan) {
	if ctx == nil {
		ctx = context.Background()
	}
	span := &ActiveSpan{rec: r}
	if r == nil {
		return ctx, span
	}

	info.Kind = KindSpan
	ref, ok := r.record(r.Attach(ctx), info)
	if !ok {
		return ctx, span
	}

	span.ref = ref
	span.exited = new(atomic.Bool)
	ctx = push(ctx, ref, span.exited)
	r.metrics.spanStarted()
	return ctx, span
}

// Event records a leaf event under the current attachment point.
func (r *Recorder) Event(ctx context.Context, level Level, msg string, fields ...Field) {
	if r == nil {
		return
	}
	r.Emit(ctx, EventInfo{
		Message:  msg,
		Level:    level,
		Location: callerLocation(2),
		Fields:   fields,
	})
}

// Emit records a leaf event described by info. Kind is forced to KindEvent.
// Events never become attachment points.
func (r *Recorder) Emit(ctx context.Context, info EventInfo) (NodeRef, bool) {
	if r == nil {
		return Root, false
	}
	info.Kind = KindEvent
	return r.record(r.Attach(ctx), info)
}

// EmitUnder records info as a child of parent, bypassing context resolution.
func (r *Recorder) EmitUnder(parent NodeRef, info EventInfo) (NodeRef, bool) {
	if r == nil {
		return Root, false
	}
	return r.record(parent, info)
}

// Update mutates the payload of a recorded node under the arena lock.
// A panic in fn is recovered and returned as an ExtractionError.
func (r *Recorder) Update(ref NodeRef, fn func(*Payload)) (err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	defer func() {
		if rec := recover(); rec != nil {
			err = &ExtractionError{Kind: KindSpan, Name: "update", Err: fmt.Errorf("panic: %v", rec)}
		}
	}()
	return r.fire.Update(ref, fn)
}

// record extracts a payload and appends it. Failures are logged, counted
// and swallowed: tracing must never break the program being traced.
func (r *Recorder) record(parent NodeRef, info EventInfo) (NodeRef, bool) {
	payload, err := r.extract(info)
	if err != nil {
		r.drop(DropExtraction, err, info)
		return Root, false
	}

	r.mu.Lock()
	ref, err := r.fire.Append(parent, payload)
	r.mu.Unlock()

	if err != nil {
		reason := DropReference
		if errors.Is(err, ErrArenaFinalized) {
			reason = DropFinalized
		}
		r.drop(reason, err, info)
		return Root, false
	}
	r.metrics.nodeAppended(info.Kind)
	return ref, true
}

// extract runs the Provider, converting errors and panics into ExtractionError.
func (r *Recorder) extract(info EventInfo) (p Payload, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &ExtractionError{Kind: info.Kind, Name: info.Name, Err: fmt.Errorf("panic: %v", rec)}
		}
	}()

	p, err = r.provider.Payload(info)
	if err != nil {
		return Payload{}, &ExtractionError{Kind: info.Kind, Name: info.Name, Err: err}
	}
	p.Kind = info.Kind
	return p, nil
}

func (r *Recorder) drop(reason string, err error, info EventInfo) {
	r.dropped.Add(1)
	r.metrics.nodeDropped(reason)

	fields := []zap.Field{
		zap.String("reason", reason),
		zap.Stringer("kind", info.Kind),
		zap.String("name", info.Name),
		zap.Error(err),
	}
	if reason == DropFinalized {
		// Expected for stragglers after a burn; keep it quiet.
		r.logger.Debug("capture dropped", fields...)
		return
	}
	r.logger.Warn("capture dropped", fields...)
}

// Dropped returns how many spans and events could not be recorded.
func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}

// Len returns the number of recorded nodes.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fire.Len()
}

// Burn finalizes the capture and returns the frozen tree.
// The arena lock is held for the whole pass, so concurrent captures wait
// and then get dropped as finalized.
func (r *Recorder) Burn() (*Ashes, error) {
	start := r.clock.Now()

	r.mu.Lock()
	ashes, err := r.fire.Burn()
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}

	elapsed := r.clock.Since(start)
	r.metrics.burned(elapsed)
	r.logger.Debug("capture burned",
		zap.Int("nodes", ashes.Len()),
		zap.Uint64("dropped", r.Dropped()),
		zap.Duration("elapsed", elapsed),
	)
	return ashes, nil
}

// Snapshot returns a frozen copy of the capture so far and keeps recording.
func (r *Recorder) Snapshot() (*Ashes, error) {
	start := r.clock.Now()

	r.mu.Lock()
	ashes, err := r.fire.Snapshot()
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}

	r.metrics.burned(r.clock.Since(start))
	return ashes, nil
}

// Finalized reports whether the capture has been burned.
func (r *Recorder) Finalized() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fire.Finalized()
}

// callerLocation reports the source position skip frames above its caller.
func callerLocation(skip int) *Location {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return nil
	}
	return &Location{File: file, Line: line}
}
