package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/xxxsen/common/logger"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port        int               `json:"port"`
	NotesDir    string            `json:"notes_dir"`
	DBPath      string            `json:"db_path"`
	CORSOrigins []string          `json:"cors_origins"`
	RateLimit   int               `json:"rate_limit_window_seconds"`
	LogConfig   logger.LogConfig  `json:"log_config"`
	AI          AIConfig          `json:"ai"`
	VectorStore VectorStoreConfig `json:"vector_store"`
	Chunker     ChunkerConfig     `json:"chunker"`
	QA          QAConfig          `json:"qa"`
	Summary     SummaryConfig     `json:"summary"`
	Ingest      IngestConfig      `json:"ingest"`
	EmbedCache  EmbedCacheConfig  `json:"embed_cache"`
	FileStore   FileStoreConfig   `json:"file_store"`
}

type AIProviderConfig struct {
	Name string      `json:"name"`
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// AIModelRef picks a model on a named provider. Generation lists form a
// fallback chain tried in order; embedding takes exactly one ref.
type AIModelRef struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

type AIConfig struct {
	Providers     []AIProviderConfig `json:"providers"`
	Generation    []AIModelRef       `json:"generation"`
	Summary       []AIModelRef       `json:"summary"`
	Embedding     []AIModelRef       `json:"embedding"`
	Timeout       int                `json:"timeout"`
	MaxInputChars int                `json:"max_input_chars"`
	EmbedRPS      float64            `json:"embed_rps"`
	EmbedBurst    int                `json:"embed_burst"`
}

type VectorStoreConfig struct {
	Type       string      `json:"type"`
	Collection string      `json:"collection"`
	Dimension  int         `json:"dimension"`
	Timeout    int         `json:"timeout"`
	BatchSize  int         `json:"batch_size"`
	Data       interface{} `json:"data"`
}

type ChunkerConfig struct {
	Size    int `json:"size"`
	Overlap int `json:"overlap"`
	// Separators overrides the split order; "" splits between characters.
	Separators []string `json:"separators"`
}

type QAConfig struct {
	Limit int `json:"limit"`
}

type SummaryConfig struct {
	Enabled         *bool  `json:"enabled"`
	Schedule        string `json:"schedule"`
	WindowDays      int    `json:"window_days"`
	K               int    `json:"k"`
	ChunksPerSource int    `json:"chunks_per_source"`
}

func (s SummaryConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

type IngestConfig struct {
	OnStartup  bool   `json:"on_startup"`
	Schedule   string `json:"schedule"`
	Watch      bool   `json:"watch"`
	DebounceMS int    `json:"debounce_ms"`
	MaxFileMB  int    `json:"max_file_mb"`
}

type EmbedCacheConfig struct {
	LRUSize         int    `json:"lru_size"`
	LRUTTLSeconds   int    `json:"lru_ttl_seconds"`
	MaxAgeDays      int    `json:"max_age_days"`
	CleanupSchedule string `json:"cleanup_schedule"`
}

type FileStoreConfig struct {
	Type string   `json:"type"`
	Dir  string   `json:"dir"`
	S3   S3Config `json:"s3"`
}

type S3Config struct {
	Endpoint  string `json:"endpoint"`
	SecretID  string `json:"secret_id"`
	SecretKey string `json:"secret_key"`
	Bucket    string `json:"bucket"`
	Region    string `json:"region"`
	Prefix    string `json:"prefix"`
	UseSSL    bool   `json:"use_ssl"`
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads a JSON, YAML or TOML config. A .env file next to the config or
// in the working directory is loaded first and ${VAR} references are
// expanded from the environment.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	loadDotEnv(filepath.Join(filepath.Dir(path), ".env"), ".env")
	text := envRef.ReplaceAllStringFunc(string(raw), func(ref string) string {
		return os.Getenv(envRef.FindStringSubmatch(ref)[1])
	})
	cfg, err := decode(filepath.Ext(path), []byte(text))
	if err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	_ = cfg.applyDefaults()
	return cfg
}

func loadDotEnv(paths ...string) {
	seen := map[string]bool{}
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil || seen[abs] {
			continue
		}
		seen[abs] = true
		if _, err := os.Stat(abs); err != nil {
			continue
		}
		// existing environment variables win over .env entries
		_ = godotenv.Load(abs)
	}
}

func decode(ext string, data []byte) (*Config, error) {
	var generic map[string]interface{}
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &generic); err != nil {
			return nil, err
		}
	case ".toml":
		if err := toml.Unmarshal(data, &generic); err != nil {
			return nil, err
		}
	default:
		var cfg Config
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
		return &cfg, nil
	}
	// re-encode through the json tags so every format shares one schema
	buf, err := json.Marshal(generic)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(buf, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() error {
	if cfg.Port == 0 {
		cfg.Port = 8000
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return fmt.Errorf("port %d is out of range", cfg.Port)
	}
	if cfg.NotesDir == "" {
		cfg.NotesDir = "data/notes"
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "data/pka.db"
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 2
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if err := cfg.AI.applyDefaults(); err != nil {
		return err
	}
	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "qdrant"
	}
	if cfg.VectorStore.Collection == "" {
		cfg.VectorStore.Collection = "personal_knowledge"
	}
	if cfg.VectorStore.Dimension == 0 {
		cfg.VectorStore.Dimension = 384
	}
	if cfg.VectorStore.Dimension < 0 {
		return fmt.Errorf("vector_store.dimension must be positive")
	}
	if cfg.VectorStore.Timeout == 0 {
		cfg.VectorStore.Timeout = 15
	}
	if cfg.Chunker.Size == 0 {
		cfg.Chunker.Size = 1000
	}
	if cfg.Chunker.Overlap == 0 {
		cfg.Chunker.Overlap = 200
	}
	if cfg.Chunker.Overlap < 0 || cfg.Chunker.Overlap >= cfg.Chunker.Size {
		return fmt.Errorf("chunker.overlap must be in [0, chunker.size)")
	}
	if cfg.QA.Limit <= 0 {
		cfg.QA.Limit = 5
	}
	if cfg.Summary.Schedule == "" {
		cfg.Summary.Schedule = "0 20 * * *"
	}
	if cfg.Summary.WindowDays <= 0 {
		cfg.Summary.WindowDays = 1
	}
	if cfg.Summary.K <= 0 {
		cfg.Summary.K = 50
	}
	if cfg.Summary.ChunksPerSource <= 0 {
		cfg.Summary.ChunksPerSource = 1
	}
	if cfg.Ingest.DebounceMS <= 0 {
		cfg.Ingest.DebounceMS = 500
	}
	if cfg.Ingest.MaxFileMB <= 0 {
		cfg.Ingest.MaxFileMB = 32
	}
	if cfg.EmbedCache.LRUSize == 0 {
		cfg.EmbedCache.LRUSize = 1024
	}
	if cfg.EmbedCache.LRUTTLSeconds == 0 {
		cfg.EmbedCache.LRUTTLSeconds = 3600
	}
	if cfg.EmbedCache.MaxAgeDays == 0 {
		cfg.EmbedCache.MaxAgeDays = 30
	}
	if cfg.EmbedCache.CleanupSchedule == "" {
		cfg.EmbedCache.CleanupSchedule = "30 3 * * *"
	}
	if cfg.FileStore.Type == "" {
		cfg.FileStore.Type = "local"
	}
	switch cfg.FileStore.Type {
	case "local":
		if cfg.FileStore.Dir == "" {
			cfg.FileStore.Dir = "data/summaries"
		}
	case "s3":
		if cfg.FileStore.S3.Bucket == "" {
			return fmt.Errorf("file_store.s3.bucket is required for s3 store")
		}
		if cfg.FileStore.S3.Region == "" {
			cfg.FileStore.S3.Region = "us-east-1"
		}
	default:
		return fmt.Errorf("file_store.type must be local or s3")
	}
	return nil
}

func (a *AIConfig) applyDefaults() error {
	if len(a.Providers) == 0 {
		a.Providers = []AIProviderConfig{{Name: "ollama", Type: "ollama"}}
	}
	names := make(map[string]bool, len(a.Providers))
	for i := range a.Providers {
		p := &a.Providers[i]
		if p.Type == "" {
			return fmt.Errorf("ai.providers[%d].type is required", i)
		}
		if p.Name == "" {
			p.Name = p.Type
		}
		if names[p.Name] {
			return fmt.Errorf("ai provider %s is defined twice", p.Name)
		}
		names[p.Name] = true
	}
	first := a.Providers[0].Name
	if len(a.Generation) == 0 {
		a.Generation = []AIModelRef{{Provider: first, Model: "llama3.2"}}
	}
	if len(a.Embedding) == 0 {
		a.Embedding = []AIModelRef{{Provider: first, Model: "all-minilm"}}
	}
	if len(a.Embedding) > 1 {
		return fmt.Errorf("ai.embedding takes one model, got %d: vectors from different models cannot share a collection", len(a.Embedding))
	}
	for _, refs := range [][]AIModelRef{a.Generation, a.Summary, a.Embedding} {
		for _, ref := range refs {
			if !names[ref.Provider] {
				return fmt.Errorf("ai model %s refers to unknown provider %q", ref.Model, ref.Provider)
			}
			if ref.Model == "" {
				return fmt.Errorf("ai model name is required for provider %s", ref.Provider)
			}
		}
	}
	if a.Timeout <= 0 {
		a.Timeout = 60
	}
	if a.MaxInputChars < 0 {
		a.MaxInputChars = 0
	}
	return nil
}

// Provider returns the provider config registered under name.
func (a *AIConfig) Provider(name string) (AIProviderConfig, bool) {
	for _, p := range a.Providers {
		if p.Name == name {
			return p, true
		}
	}
	return AIProviderConfig{}, false
}
