// internal/workers/review/run-takeoff-review/config.go
package runtakeoffreview

import "time"

type Config struct {
	// PassTimeout bounds each individual reviewer pass; the job-level
	// timeout is roughly two passes (discovery, then validation).
	PassTimeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		PassTimeout: 120 * time.Second,
	}
}

func (c *Config) JobTimeout() time.Duration {
	return 2*c.PassTimeout + 10*time.Second
}
