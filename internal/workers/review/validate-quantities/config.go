// internal/workers/review/validate-quantities/config.go
package validatequantities

import "time"

type Config struct {
	Model       string
	Timeout     time.Duration
	MaxTokens   int
	Temperature float64
}

func LoadConfig() *Config {
	return &Config{
		Model:       "gpt-4o-mini",
		Timeout:     120 * time.Second,
		MaxTokens:   4096,
		Temperature: 0.1,
	}
}
