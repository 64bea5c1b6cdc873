package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	merrors "github.com/Aman-CERP/markrag/internal/errors"
)

// Config is the complete markrag configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Bookmarks  BookmarksConfig  `yaml:"bookmarks" json:"bookmarks"`
	Store      StoreConfig      `yaml:"store" json:"store"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Indexing   IndexingConfig   `yaml:"indexing" json:"indexing"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	LLM        LLMConfig        `yaml:"llm" json:"llm"`
	Daemon     DaemonConfig     `yaml:"daemon" json:"daemon"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
	Telemetry  TelemetryConfig  `yaml:"telemetry" json:"telemetry"`
}

// BookmarksConfig locates the bookmark file and controls change watching.
type BookmarksConfig struct {
	// Path to a Chromium "Bookmarks" JSON file. Empty auto-detects.
	Path     string        `yaml:"path" json:"path"`
	Watch    bool          `yaml:"watch" json:"watch"`
	Debounce time.Duration `yaml:"debounce" json:"debounce"`
}

// StoreConfig configures the SQLite document store.
type StoreConfig struct {
	Path string `yaml:"path" json:"path"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider is "ollama" or "static". Empty tries Ollama and falls back to static.
	Provider   string        `yaml:"provider" json:"provider"`
	OllamaHost string        `yaml:"ollama_host" json:"ollama_host"`
	Model      string        `yaml:"model" json:"model"`
	Dimensions int           `yaml:"dimensions" json:"dimensions"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`

	// QueryCacheSize bounds the LRU of query embeddings.
	QueryCacheSize int `yaml:"query_cache_size" json:"query_cache_size"`
}

// IndexingConfig holds batch sizing and pacing for both passes.
type IndexingConfig struct {
	IdleBatchSize        int           `yaml:"idle_batch_size" json:"idle_batch_size"`
	InteractiveBatchSize int           `yaml:"interactive_batch_size" json:"interactive_batch_size"`
	IdlePause            time.Duration `yaml:"idle_pause" json:"idle_pause"`
	InteractivePause     time.Duration `yaml:"interactive_pause" json:"interactive_pause"`

	ContentIdleBatchSize        int           `yaml:"content_idle_batch_size" json:"content_idle_batch_size"`
	ContentInteractiveBatchSize int           `yaml:"content_interactive_batch_size" json:"content_interactive_batch_size"`
	ContentIdlePause            time.Duration `yaml:"content_idle_pause" json:"content_idle_pause"`
	ContentInteractivePause     time.Duration `yaml:"content_interactive_pause" json:"content_interactive_pause"`

	ContentEnabled  bool          `yaml:"content_enabled" json:"content_enabled"`
	FetchTimeout    time.Duration `yaml:"fetch_timeout" json:"fetch_timeout"`
	MaxContentChars int           `yaml:"max_content_chars" json:"max_content_chars"`
	MaxFetchBytes   int64         `yaml:"max_fetch_bytes" json:"max_fetch_bytes"`
	UserAgent       string        `yaml:"user_agent" json:"user_agent"`

	// PeriodicInterval triggers a background reindex. Zero disables it.
	PeriodicInterval time.Duration `yaml:"periodic_interval" json:"periodic_interval"`
}

// SearchConfig configures ranking and paging.
type SearchConfig struct {
	TopK         int     `yaml:"top_k" json:"top_k"`
	VectorWeight float64 `yaml:"vector_weight" json:"vector_weight"`
	PageSize     int     `yaml:"page_size" json:"page_size"`
	MaxPageSize  int     `yaml:"max_page_size" json:"max_page_size"`
}

// LLMConfig configures the OpenAI-compatible answer endpoint.
type LLMConfig struct {
	Endpoint    string        `yaml:"endpoint" json:"endpoint"`
	Model       string        `yaml:"model" json:"model"`
	APIKey      string        `yaml:"api_key" json:"-"`
	Temperature float64       `yaml:"temperature" json:"temperature"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
}

// DaemonConfig configures the background daemon.
type DaemonConfig struct {
	SocketPath string `yaml:"socket_path" json:"socket_path"`
	PIDPath    string `yaml:"pid_path" json:"pid_path"`
	LockPath   string `yaml:"lock_path" json:"lock_path"`
}

// LoggingConfig configures file logging.
type LoggingConfig struct {
	Level     string `yaml:"level" json:"level"`
	MaxSizeMB int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" json:"max_files"`
}

// TelemetryConfig controls local query statistics. Nothing leaves the
// machine; aggregates are kept in the index database.
type TelemetryConfig struct {
	Enabled       bool          `yaml:"enabled" json:"enabled"`
	FlushInterval time.Duration `yaml:"flush_interval" json:"flush_interval"`
}

// NewConfig creates a new Config with defaults.
func NewConfig() *Config {
	dataDir := DataDir()
	return &Config{
		Version: 1,
		Bookmarks: BookmarksConfig{
			Watch:    true,
			Debounce: 750 * time.Millisecond,
		},
		Store: StoreConfig{
			Path: filepath.Join(dataDir, "index.db"),
		},
		Embeddings: EmbeddingsConfig{
			Provider:       "",
			OllamaHost:     "http://localhost:11434",
			Model:          "nomic-embed-text",
			Dimensions:     256,
			Timeout:        60 * time.Second,
			QueryCacheSize: 256,
		},
		Indexing: IndexingConfig{
			IdleBatchSize:        8,
			InteractiveBatchSize: 2,
			IdlePause:            12 * time.Millisecond,
			InteractivePause:     180 * time.Millisecond,

			ContentIdleBatchSize:        2,
			ContentInteractiveBatchSize: 1,
			ContentIdlePause:            40 * time.Millisecond,
			ContentInteractivePause:     220 * time.Millisecond,

			ContentEnabled:  true,
			FetchTimeout:    8000 * time.Millisecond,
			MaxContentChars: 2200,
			MaxFetchBytes:   2 << 20,
			UserAgent:       "markrag/1.0 (+bookmark indexer)",

			PeriodicInterval: 6 * time.Hour,
		},
		Search: SearchConfig{
			TopK:         12,
			VectorWeight: 0.75,
			PageSize:     12,
			MaxPageSize:  100,
		},
		LLM: LLMConfig{
			Endpoint:    "https://api.openai.com/v1/chat/completions",
			Model:       "gpt-4o-mini",
			APIKey:      "",
			Temperature: 0.2,
			Timeout:     45 * time.Second,
		},
		Daemon: DaemonConfig{
			SocketPath: filepath.Join(dataDir, "daemon.sock"),
			PIDPath:    filepath.Join(dataDir, "daemon.pid"),
			LockPath:   filepath.Join(dataDir, "daemon.lock"),
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
		Telemetry: TelemetryConfig{
			Enabled:       true,
			FlushInterval: time.Minute,
		},
	}
}

// DataDir returns ~/.markrag, or a temp directory fallback.
func DataDir() string {
	if v := os.Getenv("MARKRAG_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".markrag")
	}
	return filepath.Join(home, ".markrag")
}

// GetUserConfigPath returns the user configuration file path, following XDG:
//   - $XDG_CONFIG_HOME/markrag/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/markrag/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "markrag", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "markrag", "config.yaml")
	}
	return filepath.Join(home, ".config", "markrag", "config.yaml")
}

// Load builds the effective configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User config (~/.config/markrag/config.yaml)
//  3. Explicit config file (--config), when non-empty
//  4. .env in the working directory (never overrides the real environment)
//  5. Environment variables (MARKRAG_*, OPENAI_API_KEY)
func Load(explicitPath string) (*Config, error) {
	cfg := NewConfig()

	if err := cfg.loadYAML(GetUserConfigPath(), true); err != nil {
		return nil, err
	}
	if explicitPath != "" {
		if err := cfg.loadYAML(explicitPath, false); err != nil {
			return nil, err
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, merrors.ConfigError("failed to read .env", err)
	}
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadYAML decodes path over the current values, so keys absent from the
// file keep their previous value.
func (c *Config) loadYAML(path string, optional bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if optional && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return merrors.New(merrors.ErrCodeConfigNotFound,
			fmt.Sprintf("failed to read config file %s", path), err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return merrors.ConfigError(fmt.Sprintf("failed to parse config file %s", path), err)
	}
	return nil
}

// applyEnvOverrides applies MARKRAG_* environment variable overrides.
// Malformed numeric values are ignored.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("MARKRAG_BOOKMARKS"); v != "" {
		c.Bookmarks.Path = v
	}
	if v := os.Getenv("MARKRAG_WATCH"); v != "" {
		c.Bookmarks.Watch = parseBool(v)
	}
	if v := os.Getenv("MARKRAG_STORE_PATH"); v != "" {
		c.Store.Path = v
	}

	if v := os.Getenv("MARKRAG_EMBEDDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("MARKRAG_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("MARKRAG_OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
	}

	if v := os.Getenv("MARKRAG_VECTOR_WEIGHT"); v != "" {
		if w, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			c.Search.VectorWeight = w
		}
	}
	if v := os.Getenv("MARKRAG_TOP_K"); v != "" {
		if k, err := strconv.Atoi(v); err == nil {
			c.Search.TopK = k
		}
	}
	if v := os.Getenv("MARKRAG_CONTENT_INDEXING"); v != "" {
		c.Indexing.ContentEnabled = parseBool(v)
	}

	if v := os.Getenv("MARKRAG_LLM_ENDPOINT"); v != "" {
		c.LLM.Endpoint = v
	}
	if v := os.Getenv("MARKRAG_LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("MARKRAG_LLM_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if c.LLM.APIKey == "" {
		c.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	if v := os.Getenv("MARKRAG_SOCKET"); v != "" {
		c.Daemon.SocketPath = v
	}
	if v := os.Getenv("MARKRAG_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("MARKRAG_TELEMETRY"); v != "" {
		c.Telemetry.Enabled = parseBool(v)
	}
}

func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

// Validate returns an ERR_102_CONFIG_INVALID error describing the first
// invalid setting.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) *merrors.MarkError {
		return merrors.ConfigError(fmt.Sprintf(format, args...), nil)
	}

	if c.Search.VectorWeight < 0 || c.Search.VectorWeight > 1 {
		return invalid("search.vector_weight must be between 0 and 1, got %g", c.Search.VectorWeight).
			WithSuggestion("set search.vector_weight to a value such as 0.75")
	}
	if c.Search.TopK < 1 {
		return invalid("search.top_k must be at least 1, got %d", c.Search.TopK)
	}
	if c.Search.MaxPageSize < 1 || c.Search.PageSize < 1 || c.Search.PageSize > c.Search.MaxPageSize {
		return invalid("search.page_size must be between 1 and max_page_size (%d), got %d",
			c.Search.MaxPageSize, c.Search.PageSize)
	}

	sizes := map[string]int{
		"indexing.idle_batch_size":                c.Indexing.IdleBatchSize,
		"indexing.interactive_batch_size":         c.Indexing.InteractiveBatchSize,
		"indexing.content_idle_batch_size":        c.Indexing.ContentIdleBatchSize,
		"indexing.content_interactive_batch_size": c.Indexing.ContentInteractiveBatchSize,
		"indexing.max_content_chars":              c.Indexing.MaxContentChars,
	}
	for name, v := range sizes {
		if v < 1 {
			return invalid("%s must be positive, got %d", name, v)
		}
	}
	if c.Indexing.FetchTimeout <= 0 {
		return invalid("indexing.fetch_timeout must be positive")
	}
	if c.Indexing.IdlePause < 0 || c.Indexing.InteractivePause < 0 ||
		c.Indexing.ContentIdlePause < 0 || c.Indexing.ContentInteractivePause < 0 {
		return invalid("indexing pauses must not be negative")
	}

	switch strings.ToLower(c.Embeddings.Provider) {
	case "", "ollama", "static":
	default:
		return invalid("embeddings.provider must be 'ollama', 'static', or empty (auto-detect), got %s",
			c.Embeddings.Provider)
	}
	if c.Embeddings.Dimensions < 1 {
		return invalid("embeddings.dimensions must be positive, got %d", c.Embeddings.Dimensions)
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return invalid("llm.temperature must be between 0 and 2, got %g", c.LLM.Temperature)
	}

	if c.Telemetry.FlushInterval < 0 {
		return invalid("telemetry.flush_interval must not be negative")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return invalid("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
