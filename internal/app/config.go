package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/tutorgraph-backend/internal/modules/vaultpatch"
	"github.com/yungbote/tutorgraph-backend/internal/observability"
	"github.com/yungbote/tutorgraph-backend/internal/platform/envutil"
	"github.com/yungbote/tutorgraph-backend/internal/platform/logger"
)

type Neo4jConfig struct {
	URI      string        `yaml:"uri"`
	User     string        `yaml:"user"`
	Password string        `yaml:"password"`
	Database string        `yaml:"database"`
	Timeout  time.Duration `yaml:"timeout"`
}

type OTelConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	Headers     string  `yaml:"headers"`
	SampleRatio float64 `yaml:"sample_ratio"`
	Environment string  `yaml:"environment"`
}

type Config struct {
	LogMode string `yaml:"log_mode"`

	DBDriver    string `yaml:"db_driver"`
	DatabaseDSN string `yaml:"database_dsn"`

	VaultRoot         string        `yaml:"vault_root"`
	LensMaxRadius     int           `yaml:"lens_max_radius"`
	PatchSearchWindow int           `yaml:"patch_search_window"`
	ApplyLockTTL      time.Duration `yaml:"apply_lock_ttl"`

	Neo4j       Neo4jConfig `yaml:"neo4j"`
	RedisAddr   string      `yaml:"redis_addr"`
	RedisPrefix string      `yaml:"redis_prefix"`
	OTel        OTelConfig  `yaml:"otel"`
}

func defaultConfig() Config {
	return Config{
		LogMode:           "development",
		DBDriver:          "postgres",
		VaultRoot:         "./vault",
		LensMaxRadius:     3,
		PatchSearchWindow: vaultpatch.DefaultSearchWindow,
		ApplyLockTTL:      2 * time.Minute,
		Neo4j:             Neo4jConfig{Timeout: 10 * time.Second},
		RedisPrefix:       "tutorgraph:lock:",
		OTel:              OTelConfig{SampleRatio: 1},
	}
}

// LoadConfig layers defaults, then the YAML file named by
// TUTORGRAPH_CONFIG_FILE, then environment variables.
func LoadConfig(log *logger.Logger) (Config, error) {
	cfg := defaultConfig()

	if path := strings.TrimSpace(os.Getenv("TUTORGRAPH_CONFIG_FILE")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
		if log != nil {
			log.Info("config file loaded", "path", path)
		}
	}

	cfg.LogMode = envutil.String("LOG_MODE", cfg.LogMode)
	cfg.DBDriver = envutil.String("TUTORGRAPH_DB_DRIVER", cfg.DBDriver)
	cfg.DatabaseDSN = envutil.String("TUTORGRAPH_DATABASE_DSN", cfg.DatabaseDSN)
	cfg.VaultRoot = envutil.String("TUTORGRAPH_VAULT_ROOT", cfg.VaultRoot)
	cfg.LensMaxRadius = envutil.Int("TUTORGRAPH_LENS_MAX_RADIUS", cfg.LensMaxRadius)
	cfg.PatchSearchWindow = envutil.Int("TUTORGRAPH_PATCH_SEARCH_WINDOW", cfg.PatchSearchWindow)
	cfg.ApplyLockTTL = envutil.Duration("TUTORGRAPH_APPLY_LOCK_TTL", cfg.ApplyLockTTL)

	cfg.Neo4j.URI = envutil.String("NEO4J_URI", cfg.Neo4j.URI)
	cfg.Neo4j.User = envutil.String("NEO4J_USER", cfg.Neo4j.User)
	cfg.Neo4j.Password = envutil.String("NEO4J_PASSWORD", cfg.Neo4j.Password)
	cfg.Neo4j.Database = envutil.String("NEO4J_DATABASE", cfg.Neo4j.Database)
	cfg.Neo4j.Timeout = envutil.Duration("NEO4J_TIMEOUT", cfg.Neo4j.Timeout)

	cfg.RedisAddr = envutil.String("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPrefix = envutil.String("TUTORGRAPH_REDIS_PREFIX", cfg.RedisPrefix)

	cfg.OTel.Enabled = envutil.Bool("OTEL_ENABLED", cfg.OTel.Enabled)
	cfg.OTel.Endpoint = envutil.String("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OTel.Endpoint)
	cfg.OTel.Insecure = envutil.Bool("OTEL_EXPORTER_OTLP_INSECURE", cfg.OTel.Insecure)
	cfg.OTel.Headers = envutil.String("OTEL_EXPORTER_OTLP_HEADERS", cfg.OTel.Headers)
	cfg.OTel.Environment = envutil.String("OTEL_ENVIRONMENT", cfg.OTel.Environment)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if strings.TrimSpace(c.DatabaseDSN) == "" {
		return fmt.Errorf("TUTORGRAPH_DATABASE_DSN is required")
	}
	if c.LensMaxRadius <= 0 {
		return fmt.Errorf("lens max radius must be positive, got %d", c.LensMaxRadius)
	}
	if c.PatchSearchWindow < 0 {
		return fmt.Errorf("patch search window must not be negative, got %d", c.PatchSearchWindow)
	}
	return nil
}

func (c Config) otel() observability.OtelConfig {
	return observability.OtelConfig{
		Enabled:     c.OTel.Enabled,
		ServiceName: "tutorgraph",
		Environment: c.OTel.Environment,
		Endpoint:    c.OTel.Endpoint,
		Insecure:    c.OTel.Insecure,
		Headers:     observability.ParseHeaders(c.OTel.Headers),
		SampleRatio: c.OTel.SampleRatio,
	}
}
