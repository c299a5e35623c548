package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SUPPORT_PORT", "9090")
	t.Setenv("SUPPORT_LOG_LEVEL", "debug")
	t.Setenv("SUPPORT_CONTEXT_MAX_SOURCES", "6")
	t.Setenv("SUPPORT_CACHE_TYPE", "redis")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}

	if cfg.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Port)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %s, want debug", cfg.Log.Level)
	}
	if cfg.Context.MaxSources != 6 {
		t.Errorf("Context.MaxSources = %d, want 6", cfg.Context.MaxSources)
	}
	if cfg.Cache.Type != "redis" {
		t.Errorf("Cache.Type = %s, want redis", cfg.Cache.Type)
	}
	// Untouched defaults survive.
	if cfg.Context.MinRelevanceScore != 0.3 {
		t.Errorf("Context.MinRelevanceScore = %v, want 0.3", cfg.Context.MinRelevanceScore)
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
host: "127.0.0.1"
port: 8888
log:
  level: warn
  format: json
storage:
  type: sqlite
  path: /tmp/support.db
context:
  max_sources: 5
  min_relevance_score: 0.5
assistant:
  providers:
    - name: local
      base_url: http://localhost:11434/v1
      models: [llama3]
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Host != "127.0.0.1" {
		t.Errorf("Host = %s, want 127.0.0.1", cfg.Host)
	}
	if cfg.Port != 8888 {
		t.Errorf("Port = %d, want 8888", cfg.Port)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %s, want warn", cfg.Log.Level)
	}
	if cfg.Storage.Type != "sqlite" || cfg.Storage.Path != "/tmp/support.db" {
		t.Errorf("Storage = %+v", cfg.Storage)
	}
	if cfg.Context.MaxSources != 5 || cfg.Context.MinRelevanceScore != 0.5 {
		t.Errorf("Context = %+v", cfg.Context)
	}
	// Fields absent from the file keep their defaults.
	if cfg.Context.FAQShare != 0.4 {
		t.Errorf("Context.FAQShare = %v, want 0.4", cfg.Context.FAQShare)
	}
	if len(cfg.Assistant.Providers) != 1 || cfg.Assistant.Providers[0].Models[0] != "llama3" {
		t.Errorf("Assistant.Providers = %+v", cfg.Assistant.Providers)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid defaults",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name: "invalid port",
			modify: func(c *Config) {
				c.Port = 0
			},
			wantErr: true,
		},
		{
			name: "invalid storage type",
			modify: func(c *Config) {
				c.Storage.Type = "postgres"
			},
			wantErr: true,
		},
		{
			name: "sqlite without path",
			modify: func(c *Config) {
				c.Storage.Type = "sqlite"
				c.Storage.Path = ""
			},
			wantErr: true,
		},
		{
			name: "invalid log level",
			modify: func(c *Config) {
				c.Log.Level = "invalid"
			},
			wantErr: true,
		},
		{
			name: "invalid cache type",
			modify: func(c *Config) {
				c.Cache.Type = "invalid"
			},
			wantErr: true,
		},
		{
			name: "invalid bus type",
			modify: func(c *Config) {
				c.Bus.Type = "invalid"
			},
			wantErr: true,
		},
		{
			name: "relevance floor out of range",
			modify: func(c *Config) {
				c.Context.MinRelevanceScore = 1.5
			},
			wantErr: true,
		},
		{
			name: "zero max sources",
			modify: func(c *Config) {
				c.Context.MaxSources = 0
			},
			wantErr: true,
		},
		{
			name: "share out of range",
			modify: func(c *Config) {
				c.Context.DocumentShare = -0.1
			},
			wantErr: true,
		},
		{
			name: "provider without url",
			modify: func(c *Config) {
				c.Assistant.Providers = []ProviderConfig{{Name: "x"}}
			},
			wantErr: true,
		},
		{
			name: "invalid metrics persistence",
			modify: func(c *Config) {
				c.Metrics.Persistence = "disk"
			},
			wantErr: true,
		},
		{
			name: "watch without corpus path",
			modify: func(c *Config) {
				c.Corpus.Watch = true
			},
			wantErr: true,
		},
		{
			name: "watch with corpus path",
			modify: func(c *Config) {
				c.Corpus.Watch = true
				c.Corpus.Path = "./corpus"
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			setDefaults(cfg)
			tt.modify(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidation_CollectsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.Port = -1
	cfg.Log.Format = "xml"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "port") || !strings.Contains(err.Error(), "log format") {
		t.Errorf("error should list both problems: %v", err)
	}
}

func TestAddress(t *testing.T) {
	cfg := &Config{
		Host: "localhost",
		Port: 8080,
	}

	if addr := cfg.Address(); addr != "localhost:8080" {
		t.Errorf("Address() = %s, want localhost:8080", addr)
	}
}

func TestCacheTTL(t *testing.T) {
	if ttl := Default().CacheTTL(); ttl != 5*time.Minute {
		t.Errorf("CacheTTL() = %v, want 5m", ttl)
	}
}
