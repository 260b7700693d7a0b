// Package config provides configuration loading for diagramd.
//
// Configuration is loaded from a YAML file and overridden by environment
// variables, with hardcoded defaults for anything left unset.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the complete diagramd configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Session       SessionConfig       `koanf:"session"`
	LLM           LLMConfig           `koanf:"llm"`
	Quality       QualityConfig       `koanf:"quality"`
	Observability ObservabilityConfig `koanf:"observability"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            int           `koanf:"http_port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// SessionConfig holds session lifecycle configuration.
type SessionConfig struct {
	MaxConcurrent int           `koanf:"max_concurrent"`
	Timeout       time.Duration `koanf:"timeout"`
	SweepInterval time.Duration `koanf:"sweep_interval"`
	MaxHistory    int           `koanf:"max_history"`
}

// LLMConfig holds configuration for the chat-completion backend.
type LLMConfig struct {
	BaseURL           string        `koanf:"base_url"`
	APIKey            string        `koanf:"api_key"`
	Model             string        `koanf:"model"`
	ReasonerModel     string        `koanf:"reasoner_model"`
	Timeout           time.Duration `koanf:"timeout"`
	MaxRetries        int           `koanf:"max_retries"`
	RequestsPerSecond float64       `koanf:"requests_per_second"`
}

// QualityConfig holds quality gate configuration.
type QualityConfig struct {
	RepairThreshold float64 `koanf:"repair_threshold"`
}

// ObservabilityConfig holds OpenTelemetry configuration.
type ObservabilityConfig struct {
	EnableTelemetry bool   `koanf:"enable_telemetry"`
	ServiceName     string `koanf:"service_name"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}

	if c.Session.MaxConcurrent < 1 {
		return fmt.Errorf("session max_concurrent must be >= 1, got %d", c.Session.MaxConcurrent)
	}
	if c.Session.Timeout <= 0 {
		return errors.New("session timeout must be positive")
	}
	if c.Session.SweepInterval <= 0 {
		return errors.New("session sweep interval must be positive")
	}
	if c.Session.MaxHistory < 1 {
		return fmt.Errorf("session max_history must be >= 1, got %d", c.Session.MaxHistory)
	}

	if c.LLM.BaseURL == "" {
		return errors.New("llm base_url cannot be empty")
	}
	if c.LLM.Model == "" {
		return errors.New("llm model cannot be empty")
	}
	if c.LLM.MaxRetries < 0 {
		return fmt.Errorf("llm max_retries must be >= 0, got %d", c.LLM.MaxRetries)
	}
	if c.LLM.RequestsPerSecond <= 0 {
		return errors.New("llm requests_per_second must be positive")
	}

	if c.Quality.RepairThreshold < 0 || c.Quality.RepairThreshold > 100 {
		return fmt.Errorf("quality repair_threshold must be in [0,100], got %v", c.Quality.RepairThreshold)
	}

	if c.Observability.EnableTelemetry && c.Observability.ServiceName == "" {
		return errors.New("service name required when telemetry is enabled")
	}

	return nil
}
