package preflight

import (
	"context"
	"fmt"
	"strings"

	"github.com/Aman-CERP/markrag/internal/bookmarks"
	"github.com/Aman-CERP/markrag/internal/config"
	"github.com/Aman-CERP/markrag/internal/embed"
)

// CheckBookmarks resolves the bookmarks file and parses it.
func (c *Checker) CheckBookmarks(ctx context.Context, configured string) CheckResult {
	result := CheckResult{
		Name:     "bookmarks_file",
		Required: true,
	}

	path, err := bookmarks.ResolvePath(configured)
	if err != nil {
		result.Status = StatusFail
		result.Message = err.Error()
		result.Details = "Candidates: " + strings.Join(bookmarks.CandidatePaths(), ", ")
		return result
	}
	result.Details = path

	nodes, err := bookmarks.NewChromeSource(path).Tree(ctx)
	if err != nil {
		result.Status = StatusFail
		result.Message = err.Error()
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%d bookmarks in %s", bookmarks.CountBookmarks(nodes), path)
	return result
}

// CheckEmbedder builds the configured embedder and probes it. A failure
// only warns: auto mode falls back to static vectors and lexical ranking
// still works.
func (c *Checker) CheckEmbedder(ctx context.Context, cfg config.EmbeddingsConfig) CheckResult {
	result := CheckResult{
		Name:     "embedder",
		Required: false,
	}

	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	e, err := c.newEmbedder(ctx, cfg)
	if err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("unavailable: %v", err)
		result.Details = "Start Ollama or set embeddings.provider: static"
		return result
	}
	defer func() { _ = e.Close() }()

	if !e.Available(ctx) {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("%s is not available", e.ModelName())
		result.Details = fmt.Sprintf("Run 'ollama pull %s'", e.ModelName())
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%s (%d dimensions)", e.ModelName(), e.Dimensions())
	if embed.ProviderType(cfg.Provider) == embed.ProviderAuto && e.ModelName() == "static" {
		result.Status = StatusWarn
		result.Message = "Ollama unreachable, using static embeddings"
	}
	return result
}

// CheckLLM reports whether answers can be written by a language model.
func (c *Checker) CheckLLM(cfg config.LLMConfig) CheckResult {
	result := CheckResult{
		Name:     "language_model",
		Required: false,
		Details:  cfg.Endpoint,
	}

	if cfg.APIKey == "" {
		result.Status = StatusWarn
		result.Message = "no API key, ask will summarise matches locally"
		return result
	}
	result.Status = StatusPass
	result.Message = cfg.Model
	return result
}
