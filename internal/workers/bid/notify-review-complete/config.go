// internal/workers/bid/notify-review-complete/config.go
package notifyreviewcomplete

import "time"

type Config struct {
	FromAddress string
	TopicARN    string
	Timeout     time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 15 * time.Second,
	}
}
