package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config is the full service configuration, loaded from the environment.
type Config struct {
	Service    ServiceConfig
	Server     ServerConfig
	Database   DatabaseConfig
	NATS       NATSConfig
	Governance GovernanceConfig
}

// ServiceConfig identifies the running service.
type ServiceConfig struct {
	Name        string `envconfig:"SERVICE_NAME" default:"be-governance"`
	Version     string `envconfig:"SERVICE_VERSION" default:"dev"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `envconfig:"PORT" default:"8086"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"15s"`
	IdleTimeout     time.Duration `envconfig:"SERVER_IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"10s"`
}

// DatabaseConfig holds Postgres connection pool settings.
type DatabaseConfig struct {
	Host            string        `envconfig:"DB_HOST" default:"localhost"`
	Port            int           `envconfig:"DB_PORT" default:"5432"`
	User            string        `envconfig:"DB_USER" default:"postgres"`
	Password        string        `envconfig:"DB_PASSWORD" default:""`
	Database        string        `envconfig:"DB_NAME" default:"governance"`
	SSLMode         string        `envconfig:"DB_SSLMODE" default:"disable"`
	MaxConns        int32         `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns        int32         `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	MaxConnIdleTime time.Duration `envconfig:"DB_MAX_CONN_IDLE_TIME" default:"5m"`
	HealthCheck     time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// NATSConfig holds notification publishing settings.
type NATSConfig struct {
	URL     string `envconfig:"NATS_URL" default:"nats://localhost:4222"`
	Enabled bool   `envconfig:"NATS_ENABLED" default:"false"`
}

// GovernanceConfig holds the voting and escrow policy knobs.
type GovernanceConfig struct {
	// MinProposalBond is the unlocked stake a proposer must bond to open a proposal.
	MinProposalBond int64 `envconfig:"GOV_MIN_PROPOSAL_BOND" default:"1000"`
	// VotingPeriod is the window during which votes are accepted on a proposal.
	VotingPeriod time.Duration `envconfig:"GOV_VOTING_PERIOD" default:"168h"`
	// QuorumPercent of total staked supply that must participate for a valid outcome.
	QuorumPercent int64 `envconfig:"GOV_QUORUM_PERCENT" default:"10"`
	// MilestoneVotingPeriod is the window for milestone approval votes after completion.
	MilestoneVotingPeriod time.Duration `envconfig:"GOV_MILESTONE_VOTING_PERIOD" default:"72h"`
}

// Load reads configuration from the environment, applying defaults.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment config: %w", err)
	}

	if cfg.Governance.QuorumPercent < 0 || cfg.Governance.QuorumPercent > 100 {
		return nil, fmt.Errorf("GOV_QUORUM_PERCENT must be between 0 and 100, got %d", cfg.Governance.QuorumPercent)
	}
	if cfg.Governance.MinProposalBond <= 0 {
		return nil, fmt.Errorf("GOV_MIN_PROPOSAL_BOND must be positive, got %d", cfg.Governance.MinProposalBond)
	}

	return &cfg, nil
}
