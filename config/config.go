package config

import (
	"time"

	"github.com/replyforge/replyforge/internal/database"
	"github.com/replyforge/replyforge/internal/logger"
	"github.com/replyforge/replyforge/internal/tracing"
)

type AppConfig struct {
	APIPort     string `env:"PORT" envDefault:"12333"`
	RabbitMQURL string `env:"RABBITMQ_URL"`
	LogDir      string `env:"LOG_DIR" envDefault:"logs"`
	// Kubernetes identity for cron leader election; empty disables it.
	PodName      string `env:"POD_NAME"`
	PodNamespace string `env:"POD_NAMESPACE" envDefault:"default"`
}

// FleetConfig holds the reconciliation and polling cadences.
type FleetConfig struct {
	TenantSyncInterval time.Duration `env:"FLEET_TENANT_SYNC_INTERVAL" envDefault:"15s"`
	PollInterval       time.Duration `env:"FLEET_POLL_INTERVAL" envDefault:"30s"`
	StopTimeout        time.Duration `env:"FLEET_STOP_TIMEOUT" envDefault:"30s"`
}

type GenerationConfig struct {
	BaseURL   string        `env:"GENERATION_BASE_URL" envDefault:"https://generativelanguage.googleapis.com"`
	Model     string        `env:"GENERATION_MODEL" envDefault:"gemini-2.0-pro"`
	Timeout   time.Duration `env:"GENERATION_TIMEOUT" envDefault:"60s"`
	MaxTokens int           `env:"GENERATION_MAX_TOKENS" envDefault:"400"`
}

type Config struct {
	AppConfig        *AppConfig
	FleetConfig      *FleetConfig
	GenerationConfig *GenerationConfig
	Logger           *logger.Config
	Tracing          *tracing.JaegerConfig
	DatabaseConfig   *database.DatabaseConfig
}
