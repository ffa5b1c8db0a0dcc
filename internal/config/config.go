package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the session manager configuration
type Config struct {
	// Switch credentials (shared across the inventory)
	SwitchUsername string `json:"switch_username"`
	SwitchPassword string `json:"switch_password"`
	SwitchSecret   string `json:"switch_secret"`

	// ISE ERS API credentials
	ISEUsername string `json:"ise_username"`
	ISEPassword string `json:"ise_password"`
	ISEBaseURL  string `json:"ise_base_url"`

	// HTTP server configuration
	HTTPAddr string `json:"http_addr"`

	// Collection configuration
	SSHPort        int           `json:"ssh_port"`
	SSHTimeout     time.Duration `json:"ssh_timeout"`
	CommandTimeout time.Duration `json:"command_timeout"`
	SnapshotPath   string        `json:"snapshot_path"`
	VendorAPIURL   string        `json:"vendor_api_url"`
	DevicesFile    string        `json:"devices_file"`

	// Optional result publishing
	NATSURL     string `json:"nats_url"`
	NATSSubject string `json:"nats_subject"`

	// Web UI authentication (disabled when UIPassword is empty)
	UIPassword string `json:"ui_password"`
	JWTSecret  string `json:"jwt_secret"`

	LogLevel string `json:"log_level"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		SwitchUsername: getEnv("SWITCH_USERNAME", ""),
		SwitchPassword: getEnv("SWITCH_PASSWORD", ""),
		SwitchSecret:   getEnv("SWITCH_SECRET", ""),

		ISEUsername: getEnv("ISE_USERNAME", ""),
		ISEPassword: getEnv("ISE_PASSWORD", ""),
		ISEBaseURL:  getEnv("ISE_BASE_URL", ""),

		HTTPAddr: getEnv("SESSION_MANAGER_HTTP_ADDR", ":8080"),

		SSHPort:        getIntEnv("SESSION_MANAGER_SSH_PORT", 22),
		SSHTimeout:     getDurationEnv("SESSION_MANAGER_SSH_TIMEOUT_SEC", 15*time.Second),
		CommandTimeout: getDurationEnv("SESSION_MANAGER_COMMAND_TIMEOUT_SEC", 30*time.Second),
		SnapshotPath:   getEnv("SESSION_MANAGER_SNAPSHOT_PATH", "static/result.json"),
		VendorAPIURL:   getEnv("SESSION_MANAGER_VENDOR_API_URL", "https://api.macvendors.com"),
		DevicesFile:    getEnv("SESSION_MANAGER_DEVICES_FILE", "devices.yaml"),

		NATSURL:     getEnv("SESSION_MANAGER_NATS_URL", ""),
		NATSSubject: getEnv("SESSION_MANAGER_NATS_SUBJECT", "session-manager.results"),

		UIPassword: getEnv("SESSION_MANAGER_UI_PASSWORD", ""),
		JWTSecret:  getEnv("SESSION_MANAGER_JWT_SECRET", ""),

		LogLevel: getEnv("SESSION_MANAGER_LOG_LEVEL", "info"),
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.SwitchUsername == "" {
		return fmt.Errorf("SWITCH_USERNAME cannot be empty")
	}
	if c.SwitchPassword == "" {
		return fmt.Errorf("SWITCH_PASSWORD cannot be empty")
	}
	if c.SwitchSecret == "" {
		return fmt.Errorf("SWITCH_SECRET cannot be empty")
	}
	if c.ISEUsername == "" {
		return fmt.Errorf("ISE_USERNAME cannot be empty")
	}
	if c.ISEPassword == "" {
		return fmt.Errorf("ISE_PASSWORD cannot be empty")
	}
	if c.ISEBaseURL == "" {
		return fmt.Errorf("ISE_BASE_URL cannot be empty")
	}
	if c.SSHPort <= 0 || c.SSHPort > 65535 {
		return fmt.Errorf("ssh_port must be between 1 and 65535")
	}
	if c.SSHTimeout <= 0 {
		return fmt.Errorf("ssh_timeout must be positive")
	}
	if c.CommandTimeout <= 0 {
		return fmt.Errorf("command_timeout must be positive")
	}
	if c.SnapshotPath == "" {
		return fmt.Errorf("snapshot_path cannot be empty")
	}
	if c.VendorAPIURL == "" {
		return fmt.Errorf("vendor_api_url cannot be empty")
	}
	return nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getIntEnv gets an integer environment variable with a default value
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getDurationEnv gets a duration environment variable with a default value
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}
