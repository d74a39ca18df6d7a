package config

import "time"

// FeedConfig is the root configuration for a feed instance.
type FeedConfig struct {
	Instance InstanceConfig `yaml:"instance"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Session  SessionConfig  `yaml:"session"`
	Database DatabaseConfig `yaml:"database"`
	Writers  WritersConfig  `yaml:"writers"`
}

// InstanceConfig identifies this feed instance.
type InstanceConfig struct {
	ID string `yaml:"id"`
	AZ string `yaml:"az"`
}

// GatewayConfig holds live gateway connection settings.
type GatewayConfig struct {
	URL               string        `yaml:"url"`
	APIKey            string        `yaml:"api_key"`
	HandshakeTimeout  time.Duration `yaml:"handshake_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	PingTimeout       time.Duration `yaml:"ping_timeout"`
	CommandTimeout    time.Duration `yaml:"command_timeout"`
}

// SessionConfig holds the subscriptions and stream behavior for a live
// session.
type SessionConfig struct {
	Dataset        string        `yaml:"dataset"`
	Schemas        []string      `yaml:"schemas"`
	Symbols        []string      `yaml:"symbols"`
	Snapshot       bool          `yaml:"snapshot"`
	TsOut          bool          `yaml:"ts_out"`
	BufferSize     int           `yaml:"buffer_size"`
	Strict         bool          `yaml:"strict"`
	QuiesceTimeout time.Duration `yaml:"quiesce_timeout"`
}

// DatabaseConfig holds the TimescaleDB connection for time-series data.
type DatabaseConfig struct {
	Timescale DBConfig `yaml:"timescale"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// WritersConfig holds batch writer settings.
type WritersConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}
