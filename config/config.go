package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SOPROMOCOES_"

// Catalog backends.
const (
	BackendREST     = "rest"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendMemory   = "memory"
)

// Session stores.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Config holds storefront configuration.
type Config struct {
	Backend      string        `yaml:"backend"`
	CatalogURL   string        `yaml:"catalog_url"`
	CatalogKey   string        `yaml:"catalog_key"`
	DatabaseURL  string        `yaml:"database_url"`
	FixturesFile string        `yaml:"fixtures_file"`
	QueryTimeout time.Duration `yaml:"query_timeout"`
	// FailurePolicy is "lenient" or "strict".
	FailurePolicy     string `yaml:"failure_policy"`
	CategoryCacheSize int    `yaml:"category_cache_size"`
	UserAgent         string `yaml:"user_agent"`

	ListenAddr     string        `yaml:"listen_addr"`
	MetricsAddr    string        `yaml:"metrics_addr"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	SessionStore   string        `yaml:"session_store"`
	RedisAddr      string        `yaml:"redis_addr"`
	RedisPassword  string        `yaml:"redis_password"`
	RedisDB        int           `yaml:"redis_db"`
	MaxSessions    int           `yaml:"max_sessions"`
	SessionTTL     time.Duration `yaml:"session_ttl"`

	ExportFile         string `yaml:"export_file"`
	ExportFormat       string `yaml:"export_format"` // csv, json, or dual
	ExportWorkers      int    `yaml:"export_workers"`
	PipelineBufferSize int    `yaml:"pipeline_buffer_size"`
	BatchSize          int    `yaml:"batch_size"`
	DedupeMaxSize      int    `yaml:"dedupe_max_size"`

	Verbose bool `yaml:"verbose"`
}

// DefaultConfig returns defaults that run against the in-memory catalog.
func DefaultConfig() *Config {
	return &Config{
		Backend:            BackendMemory,
		QueryTimeout:       8 * time.Second,
		FailurePolicy:      "lenient",
		CategoryCacheSize:  256,
		UserAgent:          "sopromocoes/1.0",
		ListenAddr:         ":8080",
		MetricsAddr:        "",
		AllowedOrigins:     []string{"*"},
		SessionStore:       StoreMemory,
		RedisAddr:          "localhost:6379",
		MaxSessions:        10000,
		SessionTTL:         30 * time.Minute,
		ExportFile:         "output/deals.csv",
		ExportFormat:       "csv",
		ExportWorkers:      2,
		PipelineBufferSize: 512,
		BatchSize:          64,
		DedupeMaxSize:      100000,
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendREST:
		if c.CatalogURL == "" {
			return fmt.Errorf("catalog URL cannot be empty for the rest backend")
		}
		parsedURL, err := url.Parse(c.CatalogURL)
		if err != nil {
			return fmt.Errorf("invalid catalog URL: %w", err)
		}
		if parsedURL.Host == "" {
			return fmt.Errorf("catalog URL must include a host")
		}
	case BackendPostgres, BackendSQLite:
		if c.DatabaseURL == "" {
			return fmt.Errorf("database URL cannot be empty for the %s backend", c.Backend)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("backend must be rest, postgres, sqlite, or memory")
	}

	if c.QueryTimeout <= 0 {
		return fmt.Errorf("query timeout must be positive")
	}
	switch strings.ToLower(c.FailurePolicy) {
	case "", "lenient", "strict":
	default:
		return fmt.Errorf("failure policy must be lenient or strict")
	}
	if c.CategoryCacheSize <= 0 {
		return fmt.Errorf("category cache size must be positive")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	if c.ListenAddr == "" {
		return fmt.Errorf("listen address cannot be empty")
	}
	switch c.SessionStore {
	case StoreMemory:
	case StoreRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("redis address cannot be empty for the redis session store")
		}
	default:
		return fmt.Errorf("session store must be memory or redis")
	}
	if c.MaxSessions <= 0 {
		return fmt.Errorf("max sessions must be positive")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("session TTL must be positive")
	}

	if c.ExportFile == "" {
		return fmt.Errorf("export file cannot be empty")
	}
	if c.ExportFormat != "csv" && c.ExportFormat != "json" && c.ExportFormat != "dual" {
		return fmt.Errorf("export format must be csv, json, or dual")
	}
	if c.ExportWorkers <= 0 {
		return fmt.Errorf("export workers must be positive")
	}
	if c.PipelineBufferSize <= 0 {
		return fmt.Errorf("pipeline buffer size must be positive")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.DedupeMaxSize <= 0 {
		return fmt.Errorf("dedupe max size must be positive")
	}

	return nil
}

// LoadFile overlays the YAML document at path onto c. Unknown keys are
// rejected.
func (c *Config) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("decode config file %s: %w", path, err)
	}
	return nil
}

// LoadDotEnv loads .env style files into the process environment. Missing
// files are ignored and variables already set win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, name := range files {
		if err := godotenv.Load(name); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", name, err)
		}
	}
	return nil
}

// ApplyEnv overrides fields from SOPROMOCOES_* variables.
func (c *Config) ApplyEnv() error {
	for name, dst := range map[string]*string{
		"BACKEND":        &c.Backend,
		"CATALOG_URL":    &c.CatalogURL,
		"CATALOG_KEY":    &c.CatalogKey,
		"DATABASE_URL":   &c.DatabaseURL,
		"FIXTURES_FILE":  &c.FixturesFile,
		"FAILURE_POLICY": &c.FailurePolicy,
		"USER_AGENT":     &c.UserAgent,
		"LISTEN_ADDR":    &c.ListenAddr,
		"METRICS_ADDR":   &c.MetricsAddr,
		"SESSION_STORE":  &c.SessionStore,
		"REDIS_ADDR":     &c.RedisAddr,
		"REDIS_PASSWORD": &c.RedisPassword,
		"EXPORT_FILE":    &c.ExportFile,
		"EXPORT_FORMAT":  &c.ExportFormat,
	} {
		if value, ok := EnvString(EnvPrefix + name); ok {
			*dst = value
		}
	}
	if value, ok := EnvString(EnvPrefix + "ALLOWED_ORIGINS"); ok {
		c.AllowedOrigins = splitList(value)
	}

	for name, dst := range map[string]*int{
		"CATEGORY_CACHE_SIZE":  &c.CategoryCacheSize,
		"REDIS_DB":             &c.RedisDB,
		"MAX_SESSIONS":         &c.MaxSessions,
		"EXPORT_WORKERS":       &c.ExportWorkers,
		"PIPELINE_BUFFER_SIZE": &c.PipelineBufferSize,
		"BATCH_SIZE":           &c.BatchSize,
		"DEDUPE_MAX_SIZE":      &c.DedupeMaxSize,
	} {
		value, ok, err := EnvInt(EnvPrefix + name)
		if err != nil {
			return err
		}
		if ok {
			*dst = value
		}
	}

	for name, dst := range map[string]*time.Duration{
		"QUERY_TIMEOUT": &c.QueryTimeout,
		"SESSION_TTL":   &c.SessionTTL,
	} {
		value, ok, err := EnvDuration(EnvPrefix + name)
		if err != nil {
			return err
		}
		if ok {
			*dst = value
		}
	}

	value, ok, err := EnvBool(EnvPrefix + "VERBOSE")
	if err != nil {
		return err
	}
	if ok {
		c.Verbose = value
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
