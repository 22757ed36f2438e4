package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	Server      ServerConfig
	Store       StoreConfig
	Admin       AdminConfig
	Session     SessionConfig
	Redis       RedisConfig
	RateLimit   RateLimitConfig
	Permissions map[string]string
}

type ServerConfig struct {
	Port        int
	Host        string
	Environment string
}

type StoreConfig struct {
	DataDir    string
	BackupDir  string
	SchemasDir string
}

// AdminConfig describes the single admin account. PasswordHash is a bcrypt
// hash; plain-text passwords are never configured or stored.
type AdminConfig struct {
	Username     string
	PasswordHash string
}

type SessionConfig struct {
	TTL time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
}

type RateLimitConfig struct {
	Enabled       bool
	RPS           float64
	Burst         int
	UseRedis      bool
	WindowSeconds int
}

// LoadConfig loads configuration from environment variables and .env file
func LoadConfig() (*Config, error) {
	_ = godotenv.Load(".env")

	viper.AutomaticEnv()

	viper.SetDefault("SERVER_PORT", 8080)
	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_ENVIRONMENT", "development")
	viper.SetDefault("DATA_DIR", "data")
	viper.SetDefault("SCHEMAS_DIR", "schemas")
	viper.SetDefault("SESSION_TTL_HOURS", 24)
	viper.SetDefault("RATE_LIMIT_RPS", 10.0)
	viper.SetDefault("RATE_LIMIT_BURST", 20)
	viper.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 60)

	cfg := &Config{
		Server: ServerConfig{
			Port:        viper.GetInt("SERVER_PORT"),
			Host:        viper.GetString("SERVER_HOST"),
			Environment: viper.GetString("SERVER_ENVIRONMENT"),
		},
		Store: StoreConfig{
			DataDir:    viper.GetString("DATA_DIR"),
			BackupDir:  viper.GetString("BACKUP_DIR"),
			SchemasDir: viper.GetString("SCHEMAS_DIR"),
		},
		Admin: AdminConfig{
			Username:     viper.GetString("ADMIN_USERNAME"),
			PasswordHash: os.Getenv("ADMIN_PASSWORD_HASH"),
		},
		Session: SessionConfig{
			TTL: time.Duration(viper.GetInt("SESSION_TTL_HOURS")) * time.Hour,
		},
		Redis: RedisConfig{
			Host:     viper.GetString("REDIS_HOST"),
			Port:     viper.GetString("REDIS_PORT"),
			Password: os.Getenv("REDIS_PASSWORD"),
		},
		RateLimit: RateLimitConfig{
			Enabled:       viper.GetBool("RATE_LIMIT_ENABLED"),
			RPS:           viper.GetFloat64("RATE_LIMIT_RPS"),
			Burst:         viper.GetInt("RATE_LIMIT_BURST"),
			UseRedis:      viper.GetBool("RATE_LIMIT_USE_REDIS"),
			WindowSeconds: viper.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
	}

	// Backup dir defaults to a sibling of the data dir.
	if cfg.Store.BackupDir == "" {
		cfg.Store.BackupDir = cfg.Store.DataDir + "_backups"
	}

	perms, err := loadPermissions()
	if err != nil {
		return nil, err
	}
	cfg.Permissions = perms

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the invariants the server cannot run without. A failure
// here is fatal at startup.
func (c *Config) Validate() error {
	if c.Admin.Username == "" {
		return fmt.Errorf("ADMIN_USERNAME is required")
	}
	if c.Admin.PasswordHash == "" {
		return fmt.Errorf("ADMIN_PASSWORD_HASH is required")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT %d out of range [1,65535]", c.Server.Port)
	}
	if c.Store.DataDir == "" {
		return fmt.Errorf("DATA_DIR is required")
	}
	if c.Store.SchemasDir == "" {
		return fmt.Errorf("SCHEMAS_DIR is required")
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("SESSION_TTL_HOURS must be positive")
	}
	return nil
}

// loadPermissions reads the per-file permission map. PERMISSIONS_FILE points
// at a JSON file ({"name":"public"|"admin"}); PERMISSIONS carries the same
// object inline. File wins when both are set.
func loadPermissions() (map[string]string, error) {
	perms := map[string]string{}

	raw := os.Getenv("PERMISSIONS")
	if path := os.Getenv("PERMISSIONS_FILE"); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read permissions file %s: %w", path, err)
		}
		raw = string(b)
	}
	if raw == "" {
		return perms, nil
	}
	if err := json.Unmarshal([]byte(raw), &perms); err != nil {
		return nil, fmt.Errorf("parse permissions: %w", err)
	}
	for name, level := range perms {
		if level != "public" && level != "admin" {
			return nil, fmt.Errorf("permission for %q must be public or admin, got %q", name, level)
		}
	}
	return perms, nil
}
