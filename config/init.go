package config

import (
	"log"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"

	"github.com/replyforge/replyforge/internal/database"
	"github.com/replyforge/replyforge/internal/logger"
	"github.com/replyforge/replyforge/internal/tracing"
)

func InitConfig() (*Config, error) {
	config := &Config{
		AppConfig:        &AppConfig{},
		FleetConfig:      &FleetConfig{},
		GenerationConfig: &GenerationConfig{},
		Logger:           &logger.Config{},
		Tracing:          &tracing.JaegerConfig{},
		DatabaseConfig:   &database.DatabaseConfig{},
	}

	err := godotenv.Load()
	if err != nil {
		log.Print("Unable to load .env file")
	}

	err = env.Parse(config)
	if err != nil {
		log.Fatalf("Error loading replyforge config: %v", err)
	}

	return config, nil
}
