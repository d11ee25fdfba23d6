// Package optimization holds the tuning profiles for push-channel and cache load.
package optimization

import (
	"fmt"
	"runtime"
)

// Config holds tuned parameters for high-load scenarios.
type Config struct {
	// Push channel
	ClientSendBuffer int

	// Connection pools
	RedisPoolSize int

	// Rate limiting
	MaxMessagesPerSecond float64
	MessageBurst         int
	MaxClientsPerSession int
}

// DefaultConfig returns sensible defaults for production.
func DefaultConfig() *Config {
	numCPU := runtime.NumCPU()

	return &Config{
		ClientSendBuffer: 64, // a few seconds of pushes at 5 Hz

		RedisPoolSize: numCPU * 2,

		MaxMessagesPerSecond: 10,
		MessageBurst:         20,
		MaxClientsPerSession: 4,
	}
}

// StressTestConfig returns aggressive settings for stress testing.
func StressTestConfig() *Config {
	numCPU := runtime.NumCPU()

	return &Config{
		ClientSendBuffer: 256,

		RedisPoolSize: numCPU * 4,

		MaxMessagesPerSecond: 100,
		MessageBurst:         200,
		MaxClientsPerSession: 16,
	}
}

// LowResourceConfig returns minimal settings for development.
func LowResourceConfig() *Config {
	return &Config{
		ClientSendBuffer: 8,

		RedisPoolSize: 2,

		MaxMessagesPerSecond: 2,
		MessageBurst:         4,
		MaxClientsPerSession: 1,
	}
}

// ForProfile resolves a profile name: "default", "stress" or "low".
func ForProfile(name string) (*Config, error) {
	switch name {
	case "", "default":
		return DefaultConfig(), nil
	case "stress":
		return StressTestConfig(), nil
	case "low":
		return LowResourceConfig(), nil
	default:
		return nil, fmt.Errorf("unknown tuning profile %q", name)
	}
}
