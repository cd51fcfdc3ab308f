package firez

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, DefaultOutputDir, cfg.Output.Dir)
	assert.Equal(t, DefaultOutputPrefix, cfg.Output.Prefix)
	assert.Equal(t, FormatJSON, cfg.Output.Format)
	assert.Equal(t, DefaultCaptureMinLevel, cfg.Capture.MinLevel)
	assert.Equal(t, DefaultLogLevel, cfg.Log.Level)
	assert.False(t, cfg.Metrics.Enabled)
	assert.NoError(t, cfg.Validate())
}

func TestParseConfig(t *testing.T) {
	data := []byte(`
output:
  dir: /tmp/captures
  prefix: svc
  format: MsgPack
capture:
  min_level: debug
  target_key: logger
log:
  level: warn
  development: true
metrics:
  enabled: true
`)
	cfg, err := ParseConfig(data)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/captures", cfg.Output.Dir)
	assert.Equal(t, "svc", cfg.Output.Prefix)
	assert.Equal(t, FormatMsgpack, cfg.Output.Format, "format is normalized by Validate")
	assert.Equal(t, "debug", cfg.Capture.MinLevel)
	assert.Equal(t, "logger", cfg.Capture.TargetKey)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.True(t, cfg.Log.Development)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, DefaultMetricsNamespace, cfg.Metrics.Namespace)
}

func TestParseConfigInvalidYAML(t *testing.T) {
	_, err := ParseConfig([]byte("output: [unterminated"))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("FIREZ_OUTPUT_DIR", "/env/dir")
	t.Setenv("FIREZ_OUTPUT_FORMAT", "msgpack")
	t.Setenv("FIREZ_OUTPUT_INDENT", "  ")
	t.Setenv("FIREZ_CAPTURE_MIN_LEVEL", "error")
	t.Setenv("FIREZ_LOG_DEVELOPMENT", "true")
	t.Setenv("FIREZ_METRICS_ENABLED", "not-a-bool")

	cfg, err := ParseConfig([]byte("output:\n  dir: /file/dir\n"))
	require.NoError(t, err)

	assert.Equal(t, "/env/dir", cfg.Output.Dir)
	assert.Equal(t, FormatMsgpack, cfg.Output.Format)
	assert.Equal(t, "  ", cfg.Output.Indent)
	assert.Equal(t, "error", cfg.Capture.MinLevel)
	assert.True(t, cfg.Log.Development)
	assert.False(t, cfg.Metrics.Enabled, "unparseable values are ignored")
}

func TestValidateCollectsEveryError(t *testing.T) {
	cfg := &Config{
		Output:  OutputConfig{Dir: "", Prefix: "a/b", Format: "xml"},
		Capture: CaptureConfig{MinLevel: "loud"},
		Log:     LogConfig{Level: "chatty"},
		Metrics: MetricsConfig{Enabled: true},
	}
	err := cfg.Validate()
	require.Error(t, err)

	var ve ValidationError
	require.ErrorAs(t, err, &ve)
	fields := make([]string, 0, len(ve.Errors))
	for _, fe := range ve.Errors {
		fields = append(fields, fe.Field)
	}
	assert.Equal(t, []string{
		"output.dir",
		"output.prefix",
		"output.format",
		"capture.min_level",
		"log.level",
		"metrics.namespace",
	}, fields)
	assert.Contains(t, err.Error(), "6 errors")
}

func TestValidateSingleError(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Output.Prefix = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.Equal(t, "configuration validation failed: output.prefix: must not be empty", err.Error())
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "firez.yaml")
	require.NoError(t, os.WriteFile(path, []byte("output:\n  prefix: loaded\n"), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "loaded", cfg.Output.Prefix)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParseSlogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"trace":   slog.LevelDebug - 4,
		"DEBUG":   slog.LevelDebug,
		" info ":  slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseSlogLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseSlogLevel("fatal")
	assert.Error(t, err)
}
