package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v2"
)

// DatabaseConfig holds the database connection information.
type DatabaseConfig struct {
	Type string `yaml:"type"`
	DSN  string `yaml:"dsn"`
}

// RedisConfig holds the connection settings for the notification queue.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// AdminConfig holds configuration for the admin API.
type AdminConfig struct {
	Password string `yaml:"password"`
}

// GatewayConfig holds configuration specific to the completion gateway.
type GatewayConfig struct {
	// ResponseHeaderTimeoutSeconds bounds how long the gateway waits for an
	// upstream to start responding. Streaming bodies are not bounded.
	ResponseHeaderTimeoutSeconds int `yaml:"response_header_timeout_seconds"`
}

// SchedulerConfig holds configuration for the background jobs.
type SchedulerConfig struct {
	EngineSyncInterval string `yaml:"engine_sync_interval"`
}

// Config holds the configuration for the platform.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Admin     AdminConfig     `yaml:"admin"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Port      int             `yaml:"port"`
	Debug     bool            `yaml:"debug"`
}

// LoadConfig reads and parses the configuration file. It returns the config and a potential warning message.
var LoadConfig = func(path string) (*Config, string, error) {
	var config Config
	var warning string

	data, err := os.ReadFile(path)
	if err == nil {
		// File exists, so unmarshal it
		err = yaml.Unmarshal(data, &config)
		if err != nil {
			return nil, "", fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		// An error other than "not found" occurred
		return nil, "", fmt.Errorf("failed to read config file: %w", err)
	}
	// If file does not exist, we continue with an empty config and rely on environment variables.

	// Set default values
	if config.Port == 0 {
		config.Port = 8080
	}
	if config.Gateway.ResponseHeaderTimeoutSeconds == 0 {
		config.Gateway.ResponseHeaderTimeoutSeconds = 60
		warning = "gateway.response_header_timeout_seconds not set, using default value of 60"
	}
	if config.Scheduler.EngineSyncInterval == "" {
		config.Scheduler.EngineSyncInterval = "@every 15m"
	}

	// Override with environment variables if they exist
	if dsn := os.Getenv("MODELGATE_DATABASE_DSN"); dsn != "" {
		config.Database.DSN = dsn
	}
	if dbType := os.Getenv("MODELGATE_DATABASE_TYPE"); dbType != "" {
		config.Database.Type = dbType
	}
	if addr := os.Getenv("MODELGATE_REDIS_ADDR"); addr != "" {
		config.Redis.Addr = addr
	}
	if password := os.Getenv("MODELGATE_REDIS_PASSWORD"); password != "" {
		config.Redis.Password = password
	}
	if port := os.Getenv("MODELGATE_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Port = p
		}
	}
	if password := os.Getenv("MODELGATE_ADMIN_PASSWORD"); password != "" {
		config.Admin.Password = password
	}
	if debug := os.Getenv("MODELGATE_DEBUG"); debug != "" {
		config.Debug = (debug == "true")
	}

	// Final validation after overrides
	if config.Database.Type == "" || config.Database.DSN == "" {
		return nil, "", fmt.Errorf("database type and dsn must be configured in config.yaml or via environment variables")
	}
	if config.Redis.Addr == "" {
		return nil, "", fmt.Errorf("redis addr must be configured in config.yaml or via environment variables")
	}

	return &config, warning, nil
}
