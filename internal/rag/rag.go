// Package rag turns ranked bookmark matches into an answer, either from an
// OpenAI-compatible chat endpoint or from a deterministic local summary.
package rag

import (
	"fmt"
	"strings"
	"time"

	"github.com/Aman-CERP/markrag/internal/config"
	"github.com/Aman-CERP/markrag/internal/search"
)

// Mode reports how an answer was produced.
type Mode string

const (
	ModeLLM           Mode = "llm"
	ModeLocalFallback Mode = "local-fallback"
)

// LocalSummarySize is the number of matches listed by LocalAnswer.
const LocalSummarySize = 5

// Settings controls retrieval and generation for one ask.
type Settings struct {
	TopK         int
	VectorWeight float64
	Endpoint     string
	Model        string
	APIKey       string
	Temperature  float64
	Timeout      time.Duration
}

// SettingsFromConfig builds Settings from the search and llm config sections.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		TopK:         cfg.Search.TopK,
		VectorWeight: cfg.Search.VectorWeight,
		Endpoint:     cfg.LLM.Endpoint,
		Model:        cfg.LLM.Model,
		APIKey:       cfg.LLM.APIKey,
		Temperature:  cfg.LLM.Temperature,
		Timeout:      cfg.LLM.Timeout,
	}
}

// DefaultSettings returns the settings of a default configuration.
func DefaultSettings() Settings {
	return SettingsFromConfig(config.NewConfig())
}

// Answer is the outcome of Generator.Answer.
type Answer struct {
	Mode    Mode   `json:"mode"`
	Answer  string `json:"answer"`
	Context string `json:"context"`
	// Error holds the LLM failure that caused a local fallback, if any.
	Error string `json:"error,omitempty"`
}

// BuildContext formats matches as numbered context blocks:
//
//	[1] Title
//	URL: https://...
//	Folder: /Bar
//	Similarity: 0.812
func BuildContext(docs []search.Result) string {
	blocks := make([]string, len(docs))
	for i, r := range docs {
		title := r.Document.Title
		if title == "" {
			title = "(untitled)"
		}
		folder := r.Document.FolderPath
		if folder == "" {
			folder = "/"
		}
		blocks[i] = fmt.Sprintf("[%d] %s\nURL: %s\nFolder: %s\nSimilarity: %.3f",
			i+1, title, r.Document.URL, folder, r.Score)
	}
	return strings.Join(blocks, "\n\n")
}

// LocalAnswer lists the top matches without calling a model.
func LocalAnswer(query string, docs []search.Result) string {
	if len(docs) == 0 {
		return fmt.Sprintf("No bookmark matches were found for \"%s\".", query)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Top bookmark matches for \"%s\":", query)
	for i, r := range docs[:min(LocalSummarySize, len(docs))] {
		label := r.Document.Title
		if label == "" {
			label = r.Document.URL
		}
		fmt.Fprintf(&b, "\n%d. %s - %s", i+1, label, r.Document.URL)
	}
	return b.String()
}
