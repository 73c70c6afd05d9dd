package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	MCP      MCPConfig
	Resolver ResolverConfig
	Catalog  CatalogConfig
	Valkey   ValkeyConfig
	MinIO    MinIOConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type MCPConfig struct {
	Addr string
}

type ResolverConfig struct {
	Timeout         time.Duration // per load / RPC call
	MaxSynonymDepth int
	MaxParallel     int
	// DefaultSchemas overrides the per-vendor default schema, keyed by vendor.
	DefaultSchemas map[string]string
	// Parser pins scope building to one parser: auto, tsql, treesitter or regex.
	Parser string
}

// Parser selections besides the registered parser names.
const (
	ParserAuto  = "auto"
	ParserRegex = "regex"
)

// ParserNames lists the accepted parser selections.
var ParserNames = []string{ParserAuto, "tsql", "treesitter", ParserRegex}

func ValidParser(name string) bool {
	return slices.Contains(ParserNames, name)
}

// Catalog sources.
const (
	CatalogFile  = "file"
	CatalogSQL   = "sql"
	CatalogMinIO = "minio"
)

type CatalogConfig struct {
	Source   string // file | sql | minio
	Path     string // snapshot file path or MinIO object key
	Driver   string // database/sql driver name: pgx | sqlite
	DSN      string
	Vendor   string
	Server   string
	Database string
}

type ValkeyConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

func Load() (*Config, error) {
	_ = godotenv.Load() // ignore error if .env missing

	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:  time.Duration(getEnvInt("SERVER_READ_TIMEOUT_SECS", 30)) * time.Second,
			WriteTimeout: time.Duration(getEnvInt("SERVER_WRITE_TIMEOUT_SECS", 60)) * time.Second,
		},
		MCP: MCPConfig{
			Addr: getEnv("MCP_ADDR", ":8090"),
		},
		Resolver: ResolverConfig{
			Timeout:         getEnvDuration("RESOLVER_TIMEOUT", 5*time.Second),
			MaxSynonymDepth: getEnvInt("RESOLVER_MAX_SYNONYM_DEPTH", 10),
			MaxParallel:     getEnvInt("RESOLVER_MAX_PARALLEL", 8),
			DefaultSchemas:  defaultSchemaOverrides(os.Environ()),
			Parser:          strings.ToLower(getEnv("RESOLVER_PARSER", ParserAuto)),
		},
		Catalog: CatalogConfig{
			Source:   getEnv("CATALOG_SOURCE", CatalogFile),
			Path:     getEnv("CATALOG_PATH", "catalog.yaml"),
			Driver:   getEnv("CATALOG_DRIVER", "pgx"),
			DSN:      getEnv("CATALOG_DSN", ""),
			Vendor:   getEnv("CATALOG_VENDOR", ""),
			Server:   getEnv("CATALOG_SERVER", "default"),
			Database: getEnv("CATALOG_DATABASE", ""),
		},
		Valkey: ValkeyConfig{
			Addr:     getEnv("VALKEY_ADDR", "localhost:6379"),
			Password: getEnv("VALKEY_PASSWORD", ""),
			DB:       getEnvInt("VALKEY_DB", 0),
			TTL:      getEnvDuration("VALKEY_COLUMN_TTL", 10*time.Minute),
		},
		MinIO: MinIOConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: getEnv("MINIO_ACCESS_KEY", "sqlscope"),
			SecretKey: getEnv("MINIO_SECRET_KEY", "sqlscope123"),
			Bucket:    getEnv("MINIO_BUCKET", "sqlscope"),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
	}

	switch cfg.Catalog.Source {
	case CatalogFile, CatalogSQL, CatalogMinIO:
	default:
		return nil, fmt.Errorf("CATALOG_SOURCE %q: want file, sql or minio", cfg.Catalog.Source)
	}
	if cfg.Catalog.Source == CatalogSQL && cfg.Catalog.DSN == "" {
		return nil, fmt.Errorf("CATALOG_DSN is required when CATALOG_SOURCE=sql")
	}
	if !ValidParser(cfg.Resolver.Parser) {
		return nil, fmt.Errorf("RESOLVER_PARSER %q: want %s", cfg.Resolver.Parser, strings.Join(ParserNames, ", "))
	}
	if cfg.Resolver.MaxSynonymDepth < 1 {
		cfg.Resolver.MaxSynonymDepth = 10
	}
	return cfg, nil
}

const schemaOverridePrefix = "RESOLVER_DEFAULT_SCHEMA_"

// defaultSchemaOverrides collects RESOLVER_DEFAULT_SCHEMA_<VENDOR> entries.
// An empty value is kept: it disables the vendor's default schema.
func defaultSchemaOverrides(environ []string) map[string]string {
	out := make(map[string]string)
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, schemaOverridePrefix) {
			continue
		}
		vendor := strings.ToLower(strings.TrimPrefix(key, schemaOverridePrefix))
		if vendor != "" {
			out[vendor] = value
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration accepts Go duration strings ("750ms") or a plain number of
// milliseconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return fallback
}
