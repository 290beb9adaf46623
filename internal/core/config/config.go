package config

import (
	"time"

	"github.com/vietddude/meshsync/internal/infra/meshgrpc"
	redisclient "github.com/vietddude/meshsync/internal/infra/redis"
	"github.com/vietddude/meshsync/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig          `yaml:"server"`
	Node     NodeConfig            `yaml:"node"`
	Recovery RecoveryConfig        `yaml:"recovery"`
	Peers    []meshgrpc.PeerConfig `yaml:"peers"`
	Redis    redisclient.Config    `yaml:"redis"`
	Logging  LoggingConfig         `yaml:"logging"`
	Database postgres.Config       `yaml:"database"`
}

// ServerConfig holds HTTP status server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// NodeConfig identifies this node within the sync mesh.
type NodeConfig struct {
	ID string `yaml:"id"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// RecoveryConfig holds orchestrator tunables. Zero values fall back to
// the recovery package defaults.
type RecoveryConfig struct {
	MaxConcurrent    int           `yaml:"max_concurrent"`
	Timeout          time.Duration `yaml:"timeout"`
	SweepInterval    time.Duration `yaml:"sweep_interval"`
	WaitPollInterval time.Duration `yaml:"wait_poll_interval"`
	WaitWindow       time.Duration `yaml:"wait_window"`
	SettleDelay      time.Duration `yaml:"settle_delay"`

	// Retention bounds how long finished sessions are kept.
	// Zero disables pruning.
	Retention time.Duration `yaml:"retention"`
}
