package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config location; ROOM_CONFIG_PATH overrides it.
const ConfigPath = "config.yaml"

// Store drivers accepted in storeDriver.
const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port               string   `yaml:"port"`
	LogLevel           string   `yaml:"logLevel"`
	StoreDriver        string   `yaml:"storeDriver"`
	DatabaseURL        string   `yaml:"databaseURL"`
	SQLitePath         string   `yaml:"sqlitePath"`
	RedisAddr          string   `yaml:"redisAddr"`
	RedisPassword      string   `yaml:"redisPassword"`
	RedisKeyPrefix     string   `yaml:"redisKeyPrefix"`
	MaxCommitRetries   int      `yaml:"maxCommitRetries"`
	RateLimitPerMinute int      `yaml:"rateLimitPerMinute"`
	TrustedProxyCIDRs  []string `yaml:"trustedProxyCidrs"`
	MinioEndpoint      string   `yaml:"minioEndpoint"`
	MinioAccessKey     string   `yaml:"minioAccessKey"`
	MinioSecretKey     string   `yaml:"minioSecretKey"`
	MinioBucket        string   `yaml:"minioBucket"`
	MinioUseSSL        bool     `yaml:"minioUseSSL"`
	ArchiveQueueStream string   `yaml:"archiveQueueStream"`
	ArchiveWorkers     int      `yaml:"archiveWorkers"`
}

// ArchiveEnabled reports whether room snapshots go to object storage.
func (c FileConfig) ArchiveEnabled() bool {
	return strings.TrimSpace(c.MinioEndpoint) != ""
}

// Load reads config from path (defaults to ROOM_CONFIG_PATH, then ConfigPath)
// and applies environment overrides.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = os.Getenv("ROOM_CONFIG_PATH")
	}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}

	if v := os.Getenv("ROOM_PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("ROOM_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("ROOM_STORE_DRIVER"); v != "" {
		cfg.StoreDriver = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.SQLitePath = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("ROOM_MAX_COMMIT_RETRIES"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.MaxCommitRetries = n
		}
	}
	if v := os.Getenv("ROOM_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.RateLimitPerMinute = n
		}
	}
	if v := os.Getenv("ROOM_TRUSTED_PROXY_CIDRS"); v != "" {
		cfg.TrustedProxyCIDRs = splitCSV(v)
	}
	if v := os.Getenv("MINIO_ENDPOINT"); v != "" {
		cfg.MinioEndpoint = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		cfg.MinioAccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		cfg.MinioSecretKey = v
	}
	if v := os.Getenv("MINIO_BUCKET"); v != "" {
		cfg.MinioBucket = v
	}
	if v := os.Getenv("MINIO_USE_SSL"); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			cfg.MinioUseSSL = b
		}
	}
	if v := os.Getenv("ROOM_ARCHIVE_QUEUE_STREAM"); v != "" {
		cfg.ArchiveQueueStream = v
	}
	if v := os.Getenv("ROOM_ARCHIVE_WORKERS"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.ArchiveWorkers = n
		}
	}

	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))
	if cfg.StoreDriver == "" {
		cfg.StoreDriver = DriverMemory
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	switch cfg.StoreDriver {
	case DriverMemory:
	case DriverRedis:
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return errors.New("config: redisAddr is required for the redis store (set in config.yaml or REDIS_ADDR)")
		}
	case DriverPostgres:
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return errors.New("config: databaseURL is required for the postgres store (set in config.yaml or DATABASE_URL)")
		}
	case DriverSQLite:
		if strings.TrimSpace(cfg.SQLitePath) == "" {
			return errors.New("config: sqlitePath is required for the sqlite store (set in config.yaml or SQLITE_PATH)")
		}
	default:
		return fmt.Errorf("config: unknown storeDriver %q (memory, redis, postgres, sqlite)", cfg.StoreDriver)
	}
	if cfg.MaxCommitRetries < 0 {
		return errors.New("config: maxCommitRetries must not be negative")
	}
	if cfg.RateLimitPerMinute < 0 {
		return errors.New("config: rateLimitPerMinute must not be negative")
	}
	if cfg.RateLimitPerMinute > 0 && strings.TrimSpace(cfg.RedisAddr) == "" {
		return errors.New("config: redisAddr is required when rateLimitPerMinute is set")
	}
	if cfg.ArchiveEnabled() {
		if cfg.MinioAccessKey == "" || cfg.MinioSecretKey == "" {
			return errors.New("config: minioAccessKey and minioSecretKey are required when minioEndpoint is set")
		}
		if cfg.MinioBucket == "" {
			return errors.New("config: minioBucket is required when minioEndpoint is set")
		}
	}
	if strings.TrimSpace(cfg.ArchiveQueueStream) != "" {
		if !cfg.ArchiveEnabled() {
			return errors.New("config: archiveQueueStream requires minioEndpoint")
		}
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return errors.New("config: redisAddr is required when archiveQueueStream is set")
		}
	}
	if cfg.ArchiveWorkers < 0 {
		return errors.New("config: archiveWorkers must not be negative")
	}
	return nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
