// Package config handles configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	// Server configuration
	Host string `envconfig:"SUPPORT_HOST" yaml:"host"`
	Port int    `envconfig:"SUPPORT_PORT" yaml:"port"`

	Storage   StorageConfig   `yaml:"storage"`
	Cache     CacheConfig     `yaml:"cache"`
	Bus       BusConfig       `yaml:"bus"`
	Context   ContextConfig   `yaml:"context"`
	Search    SearchConfig    `yaml:"search"`
	Assistant AssistantConfig `yaml:"assistant"`
	Log       LogConfig       `yaml:"log"`
	Security  SecurityConfig  `yaml:"security"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Corpus    CorpusConfig    `yaml:"corpus"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Type string `envconfig:"SUPPORT_STORAGE_TYPE" yaml:"type"` // memory | sqlite
	Path string `envconfig:"SUPPORT_STORAGE_PATH" yaml:"path"` // sqlite database file
}

// CacheConfig holds search response cache settings.
type CacheConfig struct {
	Type       string `envconfig:"SUPPORT_CACHE_TYPE" yaml:"type"` // memory | redis
	TTLSeconds int    `envconfig:"SUPPORT_CACHE_TTL" yaml:"ttl_seconds"`
	RedisURL   string `envconfig:"SUPPORT_REDIS_URL" yaml:"redis_url"`
}

// BusConfig holds event bus settings.
type BusConfig struct {
	Type         string `envconfig:"SUPPORT_BUS_TYPE" yaml:"type"` // memory | kafka
	KafkaBrokers string `envconfig:"SUPPORT_KAFKA_BROKERS" yaml:"kafka_brokers"`
	KafkaGroup   string `envconfig:"SUPPORT_KAFKA_GROUP" yaml:"kafka_group"`
}

// ContextConfig holds chat context engine defaults.
type ContextConfig struct {
	MaxSources           int     `envconfig:"SUPPORT_CONTEXT_MAX_SOURCES" yaml:"max_sources"`
	MinRelevanceScore    float64 `envconfig:"SUPPORT_CONTEXT_MIN_RELEVANCE" yaml:"min_relevance_score"`
	IncludeKnowledgeBase bool    `envconfig:"SUPPORT_CONTEXT_INCLUDE_KB" yaml:"include_knowledge_base"`
	IncludeFAQLearning   bool    `envconfig:"SUPPORT_CONTEXT_INCLUDE_FAQ" yaml:"include_faq_learning"`
	IncludeDocuments     bool    `envconfig:"SUPPORT_CONTEXT_INCLUDE_DOCUMENTS" yaml:"include_documents"`
	KnowledgeBaseShare   float64 `envconfig:"SUPPORT_CONTEXT_KB_SHARE" yaml:"kb_share"`
	FAQShare             float64 `envconfig:"SUPPORT_CONTEXT_FAQ_SHARE" yaml:"faq_share"`
	DocumentShare        float64 `envconfig:"SUPPORT_CONTEXT_DOCUMENT_SHARE" yaml:"document_share"`
	FAQMinConfidence     float64 `envconfig:"SUPPORT_CONTEXT_FAQ_MIN_CONFIDENCE" yaml:"faq_min_confidence"`
	PersistTimeoutMs     int     `envconfig:"SUPPORT_CONTEXT_PERSIST_TIMEOUT_MS" yaml:"persist_timeout_ms"`
}

// SearchConfig holds generic search defaults.
type SearchConfig struct {
	DefaultLimit    int `envconfig:"SUPPORT_SEARCH_LIMIT" yaml:"default_limit"`
	SnippetLength   int `envconfig:"SUPPORT_SEARCH_SNIPPET_LENGTH" yaml:"snippet_length"`
	SuggestionCount int `envconfig:"SUPPORT_SEARCH_SUGGESTIONS" yaml:"suggestion_count"`
	RelatedCount    int `envconfig:"SUPPORT_SEARCH_RELATED" yaml:"related_count"`
}

// AssistantConfig configures the completion providers used to answer questions.
type AssistantConfig struct {
	Providers         []ProviderConfig `yaml:"providers"`
	TimeoutSeconds    int              `envconfig:"SUPPORT_ASSISTANT_TIMEOUT" yaml:"timeout_seconds"`
	FailureThreshold  int              `envconfig:"SUPPORT_ASSISTANT_FAILURE_THRESHOLD" yaml:"failure_threshold"`
	FailureTTLSeconds int              `envconfig:"SUPPORT_ASSISTANT_FAILURE_TTL" yaml:"failure_ttl_seconds"`
	SessionTTLSeconds int              `envconfig:"SUPPORT_ASSISTANT_SESSION_TTL" yaml:"session_ttl_seconds"`
}

// ProviderConfig describes one OpenAI-compatible completion endpoint.
type ProviderConfig struct {
	Name    string   `yaml:"name"`
	BaseURL string   `yaml:"base_url"`
	APIKey  string   `yaml:"api_key"`
	Models  []string `yaml:"models"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `envconfig:"SUPPORT_LOG_LEVEL" yaml:"level"`
	Format string `envconfig:"SUPPORT_LOG_FORMAT" yaml:"format"`
}

// SecurityConfig holds security settings.
type SecurityConfig struct {
	RateLimit float64 `envconfig:"SUPPORT_RATE_LIMIT" yaml:"rate_limit"` // requests/sec per client, 0 = disabled
	Burst     int     `envconfig:"SUPPORT_RATE_BURST" yaml:"burst"`
}

// MetricsConfig selects where chart history is kept.
type MetricsConfig struct {
	Persistence string `envconfig:"SUPPORT_METRICS_PERSISTENCE" yaml:"persistence"` // memory | redis
	RedisURL    string `envconfig:"SUPPORT_METRICS_REDIS_URL" yaml:"redis_url"`
}

// CorpusConfig points the server at a corpus directory to import on start.
type CorpusConfig struct {
	Path       string `envconfig:"SUPPORT_CORPUS_PATH" yaml:"path"`
	Watch      bool   `envconfig:"SUPPORT_CORPUS_WATCH" yaml:"watch"`
	DebounceMs int    `envconfig:"SUPPORT_CORPUS_DEBOUNCE_MS" yaml:"debounce_ms"`
}

// Load loads configuration from environment variables and optional config file.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	setDefaults(cfg)

	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	// Environment wins over file and defaults.
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("processing env config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables only.
func LoadFromEnv() (*Config, error) {
	return Load("")
}

// Default returns a validated configuration made only of defaults.
func Default() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

func setDefaults(cfg *Config) {
	cfg.Host = "0.0.0.0"
	cfg.Port = 8080

	cfg.Storage = StorageConfig{
		Type: "memory",
		Path: "./data/support.db",
	}

	cfg.Cache = CacheConfig{
		Type:       "memory",
		TTLSeconds: 300,
		RedisURL:   "redis://localhost:6379",
	}

	cfg.Bus = BusConfig{
		Type:       "memory",
		KafkaGroup: "support-context",
	}

	cfg.Context = ContextConfig{
		MaxSources:           10,
		MinRelevanceScore:    0.3,
		IncludeKnowledgeBase: true,
		IncludeFAQLearning:   true,
		IncludeDocuments:     true,
		KnowledgeBaseShare:   0.4,
		FAQShare:             0.4,
		DocumentShare:        0.2,
		FAQMinConfidence:     50,
		PersistTimeoutMs:     5000,
	}

	cfg.Search = SearchConfig{
		DefaultLimit:    10,
		SnippetLength:   200,
		SuggestionCount: 3,
		RelatedCount:    3,
	}

	cfg.Assistant = AssistantConfig{
		TimeoutSeconds:    60,
		FailureThreshold:  3,
		FailureTTLSeconds: 300,
		SessionTTLSeconds: 3600,
	}

	cfg.Log = LogConfig{
		Level:  "info",
		Format: "text",
	}

	cfg.Security = SecurityConfig{
		RateLimit: 0,
		Burst:     20,
	}

	cfg.Metrics = MetricsConfig{
		Persistence: "memory",
		RedisURL:    "redis://localhost:6379",
	}

	cfg.Corpus = CorpusConfig{
		DebounceMs: 500,
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []string

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, "port must be between 1 and 65535")
	}

	validStorage := map[string]bool{"memory": true, "sqlite": true}
	if !validStorage[c.Storage.Type] {
		errs = append(errs, fmt.Sprintf("invalid storage type: %s (must be memory or sqlite)", c.Storage.Type))
	}
	if c.Storage.Type == "sqlite" && c.Storage.Path == "" {
		errs = append(errs, "storage path is required for sqlite")
	}

	validCacheTypes := map[string]bool{"memory": true, "redis": true}
	if !validCacheTypes[c.Cache.Type] {
		errs = append(errs, fmt.Sprintf("invalid cache type: %s (must be memory or redis)", c.Cache.Type))
	}
	if c.Cache.TTLSeconds < 0 {
		errs = append(errs, "cache ttl_seconds cannot be negative")
	}

	validBusTypes := map[string]bool{"memory": true, "kafka": true}
	if !validBusTypes[c.Bus.Type] {
		errs = append(errs, fmt.Sprintf("invalid bus type: %s (must be memory or kafka)", c.Bus.Type))
	}

	if c.Context.MaxSources < 1 {
		errs = append(errs, "context max_sources must be positive")
	}
	if c.Context.MinRelevanceScore < 0 || c.Context.MinRelevanceScore > 1 {
		errs = append(errs, "context min_relevance_score must be between 0 and 1")
	}
	for name, share := range map[string]float64{
		"kb_share":       c.Context.KnowledgeBaseShare,
		"faq_share":      c.Context.FAQShare,
		"document_share": c.Context.DocumentShare,
	} {
		if share < 0 || share > 1 {
			errs = append(errs, fmt.Sprintf("context %s must be between 0 and 1", name))
		}
	}
	if c.Context.FAQMinConfidence < 0 || c.Context.FAQMinConfidence > 100 {
		errs = append(errs, "context faq_min_confidence must be between 0 and 100")
	}

	if c.Search.DefaultLimit < 1 {
		errs = append(errs, "search default_limit must be positive")
	}
	if c.Search.SnippetLength < 1 {
		errs = append(errs, "search snippet_length must be positive")
	}

	for i, p := range c.Assistant.Providers {
		if p.Name == "" || p.BaseURL == "" {
			errs = append(errs, fmt.Sprintf("assistant provider %d requires name and base_url", i))
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("invalid log level: %s (must be debug, info, warn, or error)", c.Log.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("invalid log format: %s (must be text or json)", c.Log.Format))
	}

	if c.Security.RateLimit < 0 {
		errs = append(errs, "rate_limit cannot be negative")
	}

	validPersistence := map[string]bool{"memory": true, "redis": true}
	if !validPersistence[c.Metrics.Persistence] {
		errs = append(errs, fmt.Sprintf("invalid metrics persistence: %s (must be memory or redis)", c.Metrics.Persistence))
	}

	if c.Corpus.Watch && c.Corpus.Path == "" {
		errs = append(errs, "corpus path is required when watch is enabled")
	}
	if c.Corpus.DebounceMs < 0 {
		errs = append(errs, "corpus debounce_ms cannot be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// Address returns the server address.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Debounce returns the corpus watch debounce interval.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.Corpus.DebounceMs) * time.Millisecond
}

// CacheTTL returns the search cache TTL as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}
