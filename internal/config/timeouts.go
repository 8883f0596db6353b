package config

import "time"

// TimeoutConfig holds timeout settings for the external calls this tool
// makes. These can be configured via CLI flags to tune for slow machines.
type TimeoutConfig struct {
	// ServiceControl bounds a single service start/stop command plus the
	// readiness wait after a start. Default: 30s
	ServiceControl time.Duration

	// AdminSQL bounds one administrative SQL statement or catalog query.
	// Default: 10s
	AdminSQL time.Duration

	// Dump bounds a full pg_dump run. Default: 10m
	Dump time.Duration
}

// DefaultTimeoutConfig returns the default timeout configuration
func DefaultTimeoutConfig() *TimeoutConfig {
	return &TimeoutConfig{
		ServiceControl: 30 * time.Second,
		AdminSQL:       10 * time.Second,
		Dump:           10 * time.Minute,
	}
}

// global instance that can be set at startup
var globalTimeouts = DefaultTimeoutConfig()

// SetGlobalTimeouts sets the global timeout configuration
func SetGlobalTimeouts(cfg *TimeoutConfig) {
	globalTimeouts = cfg
}

// GetTimeouts returns the global timeout configuration
func GetTimeouts() *TimeoutConfig {
	return globalTimeouts
}
