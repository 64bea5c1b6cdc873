package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/markrag/configs"
	merrors "github.com/Aman-CERP/markrag/internal/errors"
)

// isolate points the user config and data dirs at a temp directory.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	t.Setenv("MARKRAG_HOME", filepath.Join(dir, "data"))
	for _, k := range []string{
		"MARKRAG_BOOKMARKS", "MARKRAG_WATCH", "MARKRAG_STORE_PATH", "MARKRAG_EMBEDDER",
		"MARKRAG_EMBEDDINGS_MODEL", "MARKRAG_OLLAMA_HOST", "MARKRAG_VECTOR_WEIGHT",
		"MARKRAG_TOP_K", "MARKRAG_CONTENT_INDEXING", "MARKRAG_LLM_ENDPOINT",
		"MARKRAG_LLM_MODEL", "MARKRAG_LLM_API_KEY", "OPENAI_API_KEY",
		"MARKRAG_SOCKET", "MARKRAG_LOG_LEVEL", "MARKRAG_TELEMETRY",
	} {
		t.Setenv(k, "")
	}
	return dir
}

func TestNewConfig_ReturnsDefaults(t *testing.T) {
	// Given: no configuration file exists
	isolate(t)
	cfg := NewConfig()

	// Then: indexing pacing defaults match idle/interactive modes
	assert.Equal(t, 8, cfg.Indexing.IdleBatchSize)
	assert.Equal(t, 2, cfg.Indexing.InteractiveBatchSize)
	assert.Equal(t, 12*time.Millisecond, cfg.Indexing.IdlePause)
	assert.Equal(t, 180*time.Millisecond, cfg.Indexing.InteractivePause)
	assert.Equal(t, 2, cfg.Indexing.ContentIdleBatchSize)
	assert.Equal(t, 1, cfg.Indexing.ContentInteractiveBatchSize)
	assert.Equal(t, 40*time.Millisecond, cfg.Indexing.ContentIdlePause)
	assert.Equal(t, 220*time.Millisecond, cfg.Indexing.ContentInteractivePause)
	assert.Equal(t, 8*time.Second, cfg.Indexing.FetchTimeout)
	assert.Equal(t, 2200, cfg.Indexing.MaxContentChars)

	// And: search and LLM settings defaults
	assert.Equal(t, 12, cfg.Search.TopK)
	assert.Equal(t, 0.75, cfg.Search.VectorWeight)
	assert.Equal(t, 12, cfg.Search.PageSize)
	assert.Equal(t, 100, cfg.Search.MaxPageSize)
	assert.Equal(t, "https://api.openai.com/v1/chat/completions", cfg.LLM.Endpoint)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Empty(t, cfg.LLM.APIKey)
	assert.Equal(t, 0.2, cfg.LLM.Temperature)

	// And: paths live under the data dir
	assert.Equal(t, filepath.Join(DataDir(), "index.db"), cfg.Store.Path)
	assert.Equal(t, filepath.Join(DataDir(), "daemon.sock"), cfg.Daemon.SocketPath)
	require.NoError(t, cfg.Validate())
}

func TestLoad_NoFiles_UsesDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("")

	require.NoError(t, err)
	assert.Equal(t, NewConfig().Search, cfg.Search)
}

func TestLoad_UserConfigThenExplicitFile(t *testing.T) {
	// Given: a user config and an explicit config file
	dir := isolate(t)
	userPath := GetUserConfigPath()
	require.NoError(t, os.MkdirAll(filepath.Dir(userPath), 0o755))
	require.NoError(t, os.WriteFile(userPath, []byte(`
search:
  top_k: 20
  vector_weight: 0.5
bookmarks:
  watch: false
`), 0o644))

	explicit := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(explicit, []byte(`
search:
  vector_weight: 0.9
indexing:
  idle_pause: 50ms
`), 0o644))

	// When: loading
	cfg, err := Load(explicit)

	// Then: later layers win, absent keys keep earlier values
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.Search.TopK)
	assert.Equal(t, 0.9, cfg.Search.VectorWeight)
	assert.False(t, cfg.Bookmarks.Watch)
	assert.Equal(t, 50*time.Millisecond, cfg.Indexing.IdlePause)
	assert.Equal(t, 8, cfg.Indexing.IdleBatchSize)
}

func TestLoad_ExplicitFileMissing(t *testing.T) {
	dir := isolate(t)

	_, err := Load(filepath.Join(dir, "nope.yaml"))

	require.Error(t, err)
	assert.Equal(t, merrors.ErrCodeConfigNotFound, merrors.GetCode(err))
}

func TestLoad_MalformedYAML(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("search: [unterminated"), 0o644))

	_, err := Load(path)

	require.Error(t, err)
	assert.Equal(t, merrors.ErrCodeConfigInvalid, merrors.GetCode(err))
}

func TestLoad_EnvOverrides(t *testing.T) {
	// Given: environment overrides
	isolate(t)
	t.Setenv("MARKRAG_VECTOR_WEIGHT", "0.3")
	t.Setenv("MARKRAG_TOP_K", "5")
	t.Setenv("MARKRAG_EMBEDDER", "static")
	t.Setenv("MARKRAG_WATCH", "no")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("MARKRAG_BOOKMARKS", "/tmp/Bookmarks")

	// When: loading
	cfg, err := Load("")

	// Then: env values win
	require.NoError(t, err)
	assert.Equal(t, 0.3, cfg.Search.VectorWeight)
	assert.Equal(t, 5, cfg.Search.TopK)
	assert.Equal(t, "static", cfg.Embeddings.Provider)
	assert.False(t, cfg.Bookmarks.Watch)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, "/tmp/Bookmarks", cfg.Bookmarks.Path)
}

func TestLoad_ExplicitAPIKeyBeatsOpenAIEnv(t *testing.T) {
	isolate(t)
	t.Setenv("MARKRAG_LLM_API_KEY", "sk-markrag")
	t.Setenv("OPENAI_API_KEY", "sk-openai")

	cfg, err := Load("")

	require.NoError(t, err)
	assert.Equal(t, "sk-markrag", cfg.LLM.APIKey)
}

func TestValidate_RejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"vector weight above 1", func(c *Config) { c.Search.VectorWeight = 1.5 }},
		{"vector weight negative", func(c *Config) { c.Search.VectorWeight = -0.1 }},
		{"top k zero", func(c *Config) { c.Search.TopK = 0 }},
		{"page size above max", func(c *Config) { c.Search.PageSize = 500 }},
		{"zero batch size", func(c *Config) { c.Indexing.InteractiveBatchSize = 0 }},
		{"zero fetch timeout", func(c *Config) { c.Indexing.FetchTimeout = 0 }},
		{"negative pause", func(c *Config) { c.Indexing.ContentIdlePause = -time.Millisecond }},
		{"unknown provider", func(c *Config) { c.Embeddings.Provider = "mlx" }},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }},
		{"temperature too high", func(c *Config) { c.LLM.Temperature = 3 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)

			err := cfg.Validate()

			require.Error(t, err)
			assert.Equal(t, merrors.ErrCodeConfigInvalid, merrors.GetCode(err))
		})
	}
}

func TestWriteYAML_RoundTripsThroughLoad(t *testing.T) {
	// Given: a modified config written to disk
	dir := isolate(t)
	cfg := NewConfig()
	cfg.Search.TopK = 7
	cfg.Indexing.PeriodicInterval = 0
	path := filepath.Join(dir, "out", "config.yaml")
	require.NoError(t, cfg.WriteYAML(path))

	// When: loading it back as the explicit file
	loaded, err := Load(path)

	// Then: values survive
	require.NoError(t, err)
	assert.Equal(t, 7, loaded.Search.TopK)
	assert.Equal(t, time.Duration(0), loaded.Indexing.PeriodicInterval)
	assert.Equal(t, cfg.Indexing.FetchTimeout, loaded.Indexing.FetchTimeout)
}

func TestUserConfigTemplate_ParsesAndValidates(t *testing.T) {
	// Given: the embedded template written as the user config
	isolate(t)
	path := GetUserConfigPath()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(configs.UserConfigTemplate), 0o644))

	// When: loading
	cfg, err := Load("")

	// Then: it yields the defaults
	require.NoError(t, err)
	assert.Equal(t, NewConfig().Indexing, cfg.Indexing)
	assert.Equal(t, NewConfig().Search, cfg.Search)
}
