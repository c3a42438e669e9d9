// internal/workers/review/rescan-plan-pages/config.go
package rescanplanpages

import "time"

type Config struct {
	Model       string
	Timeout     time.Duration
	MaxTokens   int
	Temperature float64
	MaxPages    int
}

func LoadConfig() *Config {
	return &Config{
		Model:       "gpt-4o",
		Timeout:     120 * time.Second,
		MaxTokens:   4096,
		Temperature: 0.2,
		MaxPages:    20,
	}
}
