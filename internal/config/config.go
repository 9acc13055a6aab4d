package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"

	AuditMemory   = "memory"
	AuditFile     = "file"
	AuditPostgres = "postgres"
)

// Config holds application configuration.
type Config struct {
	ServerPort string

	StorageDriver string
	DBHost        string
	DBPort        string
	DBUser        string
	DBPassword    string
	DBName        string
	DBSSLMode     string

	AuditDriver string
	AuditFile   string

	KafkaBrokers []string
	KafkaTopic   string

	MaxRetries    int
	RetryInterval time.Duration
}

// Load reads configuration from the environment, after applying a .env
// file when one is present.
func Load() *Config {
	_ = godotenv.Load()

	v := viper.New()
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("STORAGE_DRIVER", StorageMemory)
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "password")
	v.SetDefault("DB_NAME", "ledger")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("AUDIT_DRIVER", AuditMemory)
	v.SetDefault("AUDIT_FILE", "transaction_fingerprints.json")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("KAFKA_TOPIC", "transaction_committed")
	v.SetDefault("LEDGER_MAX_RETRIES", 5)
	v.SetDefault("LEDGER_RETRY_INTERVAL", "10ms")
	v.AutomaticEnv()

	cfg := &Config{
		ServerPort:    v.GetString("SERVER_PORT"),
		StorageDriver: strings.ToLower(v.GetString("STORAGE_DRIVER")),
		DBHost:        v.GetString("DB_HOST"),
		DBPort:        v.GetString("DB_PORT"),
		DBUser:        v.GetString("DB_USER"),
		DBPassword:    v.GetString("DB_PASSWORD"),
		DBName:        v.GetString("DB_NAME"),
		DBSSLMode:     v.GetString("DB_SSLMODE"),
		AuditDriver:   strings.ToLower(v.GetString("AUDIT_DRIVER")),
		AuditFile:     v.GetString("AUDIT_FILE"),
		KafkaBrokers:  splitList(v.GetString("KAFKA_BROKERS")),
		KafkaTopic:    v.GetString("KAFKA_TOPIC"),
		MaxRetries:    v.GetInt("LEDGER_MAX_RETRIES"),
		RetryInterval: v.GetDuration("LEDGER_RETRY_INTERVAL"),
	}

	if cfg.MaxRetries < 0 {
		slog.Warn("Invalid LEDGER_MAX_RETRIES, using 0", "value", cfg.MaxRetries)
		cfg.MaxRetries = 0
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 10 * time.Millisecond
	}

	return cfg
}

// GetDBConnectionString renders the lib/pq connection string.
func (c *Config) GetDBConnectionString() string {
	sslMode := c.DBSSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, sslMode)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
