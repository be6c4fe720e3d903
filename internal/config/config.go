package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`
	LogLevel     string `mapstructure:"log_level" yaml:"log_level"`

	// StorageTimeout bounds every durable read/write; operations that exceed
	// it fail instead of hanging the caller.
	StorageTimeout time.Duration `mapstructure:"storage_timeout" yaml:"storage_timeout"`
	// RetryBackoff is the pause before the single retry of a failed
	// find-or-create or append.
	RetryBackoff time.Duration `mapstructure:"retry_backoff" yaml:"retry_backoff"`

	// SubscriberBuffer is the per-subscriber live queue size. Oldest events
	// are dropped on overflow; the message store remains authoritative.
	SubscriberBuffer int `mapstructure:"subscriber_buffer" yaml:"subscriber_buffer"`

	JWTSecret   string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	JWTTTL      time.Duration `mapstructure:"jwt_ttl" yaml:"jwt_ttl"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		DatabasePath:      "convocore.db",
		LogLevel:          "info",
		StorageTimeout:    3 * time.Second,
		RetryBackoff:      150 * time.Millisecond,
		SubscriberBuffer:  32,
		JWTSecret:         "",
		JWTIssuer:         "convocore",
		JWTAudience:       "convocore",
		JWTTTL:            24 * time.Hour,
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.StorageTimeout != 0 {
		c.StorageTimeout = other.StorageTimeout
	}
	if other.RetryBackoff != 0 {
		c.RetryBackoff = other.RetryBackoff
	}
	if other.SubscriberBuffer != 0 {
		c.SubscriberBuffer = other.SubscriberBuffer
	}
	if other.JWTSecret != "" {
		c.JWTSecret = other.JWTSecret
	}
	if other.JWTIssuer != "" {
		c.JWTIssuer = other.JWTIssuer
	}
	if other.JWTAudience != "" {
		c.JWTAudience = other.JWTAudience
	}
	if other.JWTTTL != 0 {
		c.JWTTTL = other.JWTTTL
	}
}
