package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the service.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Search    SearchConfig    `mapstructure:"search"`
}

// ServerConfig contains HTTP server and auth settings.
type ServerConfig struct {
	Address   string   `mapstructure:"address"`
	JWTSecret string   `mapstructure:"jwt_secret"`
	CORS      []string `mapstructure:"cors_origins"`
}

// StorageConfig groups the backing stores.
type StorageConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig describes the relational store connection.
type PostgresConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN builds a postgres connection string from the configured parts,
// preferring an explicit URL.
func (p PostgresConfig) DSN() (string, error) {
	if p.URL != "" {
		return p.URL, nil
	}
	if p.Host == "" || p.DBName == "" {
		return "", fmt.Errorf("postgres not configured (storage.postgres.host/dbname or url)")
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl), nil
}

// RedisConfig describes the redis connection used for locks and caching.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns host:port for the redis client.
func (r RedisConfig) Addr() string { return r.Host + ":" + r.Port }

// ProvidersConfig holds external AI provider settings.
type ProvidersConfig struct {
	OpenAI OpenAIConfig `mapstructure:"openai"`
}

// OpenAIConfig configures the embedding/completion provider.
type OpenAIConfig struct {
	APIKey          string        `mapstructure:"api_key"`
	BaseURL         string        `mapstructure:"base_url"`
	EmbeddingModel  string        `mapstructure:"embedding_model"`
	CompletionModel string        `mapstructure:"completion_model"`
	Temperature     float64       `mapstructure:"temperature"`
	MaxTokens       int           `mapstructure:"max_tokens"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

// RetrievalConfig names the tunables of the retrieval pipeline.
type RetrievalConfig struct {
	EmbeddingDimensions int           `mapstructure:"embedding_dimensions"`
	MinSimilarity       float64       `mapstructure:"min_similarity"`
	SearchTopK          int           `mapstructure:"search_top_k"`
	MaxUploadBytes      int64         `mapstructure:"max_upload_bytes"`
	ChunkMaxRunes       int           `mapstructure:"chunk_max_runes"`
	ChunkOverlapRunes   int           `mapstructure:"chunk_overlap_runes"`
	CacheTTL            time.Duration `mapstructure:"cache_ttl"`
}

// SearchConfig controls the keyword index.
type SearchConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ReindexCron string `mapstructure:"reindex_cron"`
}

// LoadConfig reads configuration from file and environment. Environment
// variables use the CLEARSCOPE_ prefix with underscores, e.g.
// CLEARSCOPE_STORAGE_POSTGRES_URL.
func LoadConfig(path string) *Config {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix("CLEARSCOPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.address", ":8090")
	v.SetDefault("server.jwt_secret", "dev-secret-change-me")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("storage.postgres.port", "5432")
	v.SetDefault("storage.postgres.sslmode", "disable")
	v.SetDefault("storage.redis.port", "6379")
	v.SetDefault("providers.openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("providers.openai.embedding_model", "text-embedding-3-small")
	v.SetDefault("providers.openai.completion_model", "gpt-4o-mini")
	v.SetDefault("providers.openai.temperature", 0.2)
	v.SetDefault("providers.openai.max_tokens", 1024)
	v.SetDefault("providers.openai.timeout", "30s")
	v.SetDefault("retrieval.embedding_dimensions", 1536)
	v.SetDefault("retrieval.min_similarity", 0.4)
	v.SetDefault("retrieval.search_top_k", 5)
	v.SetDefault("retrieval.max_upload_bytes", 20<<20)
	v.SetDefault("retrieval.chunk_max_runes", 0)
	v.SetDefault("retrieval.chunk_overlap_runes", 0)
	v.SetDefault("retrieval.cache_ttl", "5m")
	v.SetDefault("search.enabled", true)
	v.SetDefault("search.reindex_cron", "@hourly")

	_ = v.ReadInConfig()

	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}
