package firez

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// artifactTimeLayout is the timestamp layout used in artifact file names.
const artifactTimeLayout = "20060102T150405.000Z"

// Session is one capture from start to artifact. It owns a Recorder
// configured from a Config and writes the burned tree to the output
// directory on Close.
type Session struct {
	cfg       *Config
	rec       *Recorder
	logger    *zap.Logger
	processor *SpanProcessor
	reg       prometheus.Registerer
	recOpts   []Option
	id        uuid.UUID
	procOnce  sync.Once

	closeMu sync.Mutex
	tree    *Ashes // burned, kept until an artifact is written
	closed  bool
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithRecorderOptions passes options through to the session's Recorder.
// They are applied after the options derived from the Config.
func WithRecorderOptions(opts ...Option) SessionOption {
	return func(s *Session) {
		s.recOpts = append(s.recOpts, opts...)
	}
}

// WithRegisterer sets where metrics are registered when metrics are
// enabled. The default is prometheus.DefaultRegisterer.
func WithRegisterer(reg prometheus.Registerer) SessionOption {
	return func(s *Session) {
		s.reg = reg
	}
}

// NewSession validates cfg and starts a capture. A nil cfg uses DefaultConfig.
func NewSession(cfg *Config, opts ...SessionOption) (*Session, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	} else {
		c := *cfg
		cfg = &c
		ApplyDefaults(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Session{
		cfg: cfg,
		id:  uuid.New(),
		reg: prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(s)
	}

	logger, err := NewLogger(cfg.Log)
	if err != nil {
		return nil, err
	}
	logger = logger.With(zap.String("session", s.id.String()))

	recOpts := []Option{
		WithLogger(logger),
		WithProvider(LogProvider{TargetKey: cfg.Capture.TargetKey}),
	}
	if cfg.Metrics.Enabled {
		m, err := NewMetrics(s.reg, cfg.Metrics.Namespace)
		if err != nil {
			return nil, err
		}
		recOpts = append(recOpts, WithMetrics(m))
	}
	s.rec = NewRecorder(append(recOpts, s.recOpts...)...)
	s.logger = s.rec.logger

	s.logger.Debug("capture session started",
		zap.String("dir", cfg.Output.Dir),
		zap.String("format", string(cfg.Output.Format)),
	)
	return s, nil
}

// ID returns the session's unique id.
func (s *Session) ID() uuid.UUID {
	return s.id
}

// Config returns the effective configuration.
func (s *Session) Config() Config {
	return *s.cfg
}

// Recorder returns the session's Recorder.
func (s *Session) Recorder() *Recorder {
	return s.rec
}

// Handler returns an slog.Handler recording into the session, filtered by
// capture.min_level.
func (s *Session) Handler() slog.Handler {
	level, err := ParseSlogLevel(s.cfg.Capture.MinLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	return NewHandler(s.rec, &HandlerOptions{Level: level})
}

// Processor returns the session's OpenTelemetry span processor. The same
// processor is returned on every call.
func (s *Session) Processor() *SpanProcessor {
	s.procOnce.Do(func() {
		s.processor = NewSpanProcessor(s.rec)
	})
	return s.processor
}

// Checkpoint writes a snapshot of the capture so far without ending it.
func (s *Session) Checkpoint(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	tree, err := s.rec.Snapshot()
	if err != nil {
		return "", err
	}
	return s.write(tree, "checkpoint")
}

// Close burns the capture and writes the artifact. It returns the artifact
// path. If writing fails the burned tree is kept, available from Tree, and
// the next Close writes it again. Once an artifact has been written, Close
// returns ErrArenaFinalized.
func (s *Session) Close(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.closeMu.Lock()
	defer s.closeMu.Unlock()

	if s.closed {
		return "", ErrArenaFinalized
	}
	if s.tree == nil {
		tree, err := s.rec.Burn()
		if err != nil {
			return "", err
		}
		s.tree = tree
	}
	path, err := s.write(s.tree, "")
	if err != nil {
		return "", err
	}
	s.closed = true
	return path, nil
}

// Tree returns the burned capture, or nil before Close. Payloads may be
// edited through it before retrying a failed Close.
func (s *Session) Tree() *Ashes {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	return s.tree
}

func (s *Session) write(tree *Ashes, tag string) (string, error) {
	out := s.cfg.Output
	if err := os.MkdirAll(out.Dir, 0o755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}

	name := out.Prefix + "-" + s.rec.clock.Now().UTC().Format(artifactTimeLayout) + "-" + s.id.String()
	if tag != "" {
		name += "-" + tag
	}
	path := filepath.Join(out.Dir, name+"."+out.Format.Ext())

	if err := ExportFile(path, tree, ExportOptions{Format: out.Format, Indent: out.Indent}); err != nil {
		s.logger.Error("writing artifact failed", zap.String("path", path), zap.Error(err))
		return "", err
	}
	s.logger.Info("artifact written",
		zap.String("path", path),
		zap.Int("nodes", tree.Len()),
		zap.Uint64("dropped", s.rec.Dropped()),
	)
	return path, nil
}
