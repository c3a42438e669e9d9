// internal/workers/takeoff/fetch-takeoff-items/config.go
package fetchtakeoffitems

import "time"

type Config struct {
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 10 * time.Second,
	}
}
