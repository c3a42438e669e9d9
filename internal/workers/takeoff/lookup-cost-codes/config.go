// internal/workers/takeoff/lookup-cost-codes/config.go
package lookupcostcodes

import "time"

type Config struct {
	Index      string
	Timeout    time.Duration
	MaxResults int
}

func LoadConfig() *Config {
	return &Config{
		Index:      "cost-codes",
		Timeout:    10 * time.Second,
		MaxResults: 50,
	}
}
