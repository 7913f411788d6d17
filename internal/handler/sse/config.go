package sse

import "time"

// Config holds configuration for event-stream connections
type Config struct {
	// KeepAliveInterval is how often a comment is sent so idle proxies keep the connection open
	KeepAliveInterval time.Duration
}

// DefaultConfig returns a 10 second keep-alive, short enough for most proxies
func DefaultConfig() *Config {
	return &Config{
		KeepAliveInterval: 10 * time.Second,
	}
}
