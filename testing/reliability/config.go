package reliability

import (
	"os"
	"strconv"
	"time"
)

// ReliabilityConfig holds configuration for reliability testing.
type ReliabilityConfig struct {
	Level         string        // "basic" or "stress"
	Duration      time.Duration // How long stress loops keep appending
	MaxGoroutines int           // Goroutines driving a recorder concurrently
	MaxNodes      int           // Upper bound on nodes appended per test
}

// getReliabilityConfig reads configuration from environment variables.
func getReliabilityConfig() ReliabilityConfig {
	return ReliabilityConfig{
		Level:         os.Getenv("FIREZ_RELIABILITY_LEVEL"),
		Duration:      parseDuration(getEnv("FIREZ_RELIABILITY_DURATION", "5s")),
		MaxGoroutines: parseInt(getEnv("FIREZ_RELIABILITY_MAX_GOROUTINES", "64"), 64),
		MaxNodes:      parseInt(getEnv("FIREZ_RELIABILITY_MAX_NODES", "1000000"), 1_000_000),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseInt(s string, fallback int) int {
	if value, err := strconv.Atoi(s); err == nil && value > 0 {
		return value
	}
	return fallback
}

func parseDuration(s string) time.Duration {
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return 5 * time.Second
}
