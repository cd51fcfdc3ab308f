package firez

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Default values for configuration fields.
const (
	DefaultOutputDir        = "."
	DefaultOutputPrefix     = "firez"
	DefaultOutputFormat     = FormatJSON
	DefaultCaptureMinLevel  = "trace"
	DefaultLogLevel         = "info"
	DefaultMetricsNamespace = "firez"
)

// Config configures a Session.
type Config struct {
	Output  OutputConfig  `yaml:"output"`
	Capture CaptureConfig `yaml:"capture"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// OutputConfig controls where and how the artifact is written on Close.
type OutputConfig struct {
	// Dir is the directory artifacts are written to.
	Dir string `yaml:"dir"`
	// Prefix starts every artifact file name.
	Prefix string `yaml:"prefix"`
	// Format is "json" or "msgpack".
	Format Format `yaml:"format"`
	// Indent pretty-prints JSON artifacts when non-empty.
	Indent string `yaml:"indent"`
}

// CaptureConfig controls what the bridges record.
type CaptureConfig struct {
	// MinLevel is the lowest slog level recorded: trace, debug, info, warn or error.
	MinLevel string `yaml:"min_level"`
	// TargetKey, when set, records the logger group path under this ctx key.
	TargetKey string `yaml:"target_key"`
}

// LogConfig controls the library's own diagnostics logger.
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// MetricsConfig controls Prometheus metrics.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// LoadConfig loads configuration from a YAML file, applies defaults and
// FIREZ_* environment overrides, and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return nil, fmt.Errorf("configuration file %q: %w", path, err)
	}
	return cfg, nil
}

// ParseConfig parses YAML configuration, applies defaults and environment
// overrides, and validates the result.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	ApplyDefaults(&cfg)
	ApplyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills zero-valued fields with their defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Output.Dir == "" {
		cfg.Output.Dir = DefaultOutputDir
	}
	if cfg.Output.Prefix == "" {
		cfg.Output.Prefix = DefaultOutputPrefix
	}
	if cfg.Output.Format == "" {
		cfg.Output.Format = DefaultOutputFormat
	}
	if cfg.Capture.MinLevel == "" {
		cfg.Capture.MinLevel = DefaultCaptureMinLevel
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}
}

// ApplyEnvOverrides applies environment variable overrides. Variables use
// the form FIREZ_SECTION_FIELD, e.g. FIREZ_OUTPUT_DIR. Unparseable values
// are ignored.
func ApplyEnvOverrides(cfg *Config) {
	if val := os.Getenv("FIREZ_OUTPUT_DIR"); val != "" {
		cfg.Output.Dir = val
	}
	if val := os.Getenv("FIREZ_OUTPUT_PREFIX"); val != "" {
		cfg.Output.Prefix = val
	}
	if val := os.Getenv("FIREZ_OUTPUT_FORMAT"); val != "" {
		cfg.Output.Format = Format(val)
	}
	if val, ok := os.LookupEnv("FIREZ_OUTPUT_INDENT"); ok {
		cfg.Output.Indent = val
	}
	if val := os.Getenv("FIREZ_CAPTURE_MIN_LEVEL"); val != "" {
		cfg.Capture.MinLevel = val
	}
	if val := os.Getenv("FIREZ_CAPTURE_TARGET_KEY"); val != "" {
		cfg.Capture.TargetKey = val
	}
	if val := os.Getenv("FIREZ_LOG_LEVEL"); val != "" {
		cfg.Log.Level = val
	}
	if val := os.Getenv("FIREZ_LOG_DEVELOPMENT"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Log.Development = b
		}
	}
	if val := os.Getenv("FIREZ_METRICS_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Metrics.Enabled = b
		}
	}
	if val := os.Getenv("FIREZ_METRICS_NAMESPACE"); val != "" {
		cfg.Metrics.Namespace = val
	}
}

// FieldError is a validation error for a single configuration field.
type FieldError struct {
	// Field is the dotted path to the field, e.g. "output.format".
	Field   string
	Message string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError collects every FieldError found by Validate.
type ValidationError struct {
	Errors []FieldError
}

func (e ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "configuration validation failed with %d errors:", len(e.Errors))
	for _, err := range e.Errors {
		sb.WriteString("\n  - ")
		sb.WriteString(err.Error())
	}
	return sb.String()
}

// Validate checks the configuration and returns a ValidationError listing
// every problem, or nil.
func (c *Config) Validate() error {
	var errs []FieldError

	if c.Output.Dir == "" {
		errs = append(errs, FieldError{Field: "output.dir", Message: "must not be empty"})
	}
	if c.Output.Prefix == "" {
		errs = append(errs, FieldError{Field: "output.prefix", Message: "must not be empty"})
	} else if strings.ContainsAny(c.Output.Prefix, `/\`) {
		errs = append(errs, FieldError{Field: "output.prefix", Message: "must not contain path separators"})
	}
	if f, err := ParseFormat(string(c.Output.Format)); err != nil {
		errs = append(errs, FieldError{Field: "output.format", Message: err.Error()})
	} else {
		c.Output.Format = f
	}
	if _, err := ParseSlogLevel(c.Capture.MinLevel); err != nil {
		errs = append(errs, FieldError{Field: "capture.min_level", Message: err.Error()})
	}
	if _, err := parseLogLevel(c.Log.Level); err != nil {
		errs = append(errs, FieldError{Field: "log.level", Message: err.Error()})
	}
	if c.Metrics.Enabled && c.Metrics.Namespace == "" {
		errs = append(errs, FieldError{Field: "metrics.namespace", Message: "required when metrics are enabled"})
	}

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

// ParseSlogLevel parses a capture level name into the slog level it stands for.
func ParseSlogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return slog.LevelDebug - 4, nil
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown level %q", s)
	}
}
