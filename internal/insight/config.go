package insight

import "time"

const (
	// DefaultMaxConcurrent bounds simultaneous model calls.
	DefaultMaxConcurrent = 3

	// DefaultMaxTokens caps the length of a generated insight.
	DefaultMaxTokens = 400

	// DefaultTimeout bounds a single model call.
	DefaultTimeout = 60 * time.Second
)

// Config holds the insight service settings.
type Config struct {
	// MaxConcurrent is the number of model calls allowed in flight.
	MaxConcurrent int

	// MaxTokens caps each completion.
	MaxTokens int64

	// Timeout bounds each model call.
	Timeout time.Duration
}

// DefaultConfig returns the default insight settings.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent: DefaultMaxConcurrent,
		MaxTokens:     DefaultMaxTokens,
		Timeout:       DefaultTimeout,
	}
}
