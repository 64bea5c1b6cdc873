package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	merrors "github.com/Aman-CERP/markrag/internal/errors"
	"github.com/Aman-CERP/markrag/internal/search"
)

const systemPrompt = "You are a bookmark assistant. Use only the provided bookmark context. " +
	"Include citation numbers like [1], [2]. If context is insufficient, say so."

// DefaultTimeout bounds one chat completion request when Settings.Timeout is zero.
const DefaultTimeout = 45 * time.Second

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Generator answers questions over ranked bookmarks.
type Generator struct {
	client  *http.Client
	breaker *merrors.CircuitBreaker
	logger  *slog.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithHTTPClient sets the HTTP client used for chat requests.
func WithHTTPClient(c *http.Client) Option {
	return func(g *Generator) { g.client = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Generator) { g.logger = l }
}

// WithCircuitBreaker replaces the default breaker guarding the endpoint.
func WithCircuitBreaker(cb *merrors.CircuitBreaker) Option {
	return func(g *Generator) { g.breaker = cb }
}

// NewGenerator creates a Generator. After repeated endpoint failures the
// breaker opens and answers fall back to the local summary without a request.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		client: &http.Client{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.breaker == nil {
		g.breaker = merrors.NewCircuitBreaker("llm",
			merrors.WithMaxFailures(3),
			merrors.WithResetTimeout(time.Minute),
			merrors.WithStateChange(g.logBreaker))
	}
	return g
}

func (g *Generator) logBreaker(name string, from, to merrors.State) {
	g.logger.Warn("circuit_state_changed",
		slog.String("circuit", name),
		slog.String("from", from.String()),
		slog.String("to", to.String()))
}

// Answer produces an answer for query from docs. It never fails: without an
// API key, or when the endpoint fails or returns empty content, the answer
// is the local summary and Mode is ModeLocalFallback.
func (g *Generator) Answer(ctx context.Context, query string, docs []search.Result, settings Settings) Answer {
	contextText := BuildContext(docs)
	fallback := Answer{
		Mode:    ModeLocalFallback,
		Answer:  LocalAnswer(query, docs),
		Context: contextText,
	}
	if strings.TrimSpace(settings.APIKey) == "" {
		return fallback
	}

	var text string
	err := g.breaker.Execute(func() error {
		var callErr error
		text, callErr = g.complete(ctx, query, contextText, settings)
		return callErr
	})
	if err != nil {
		attrs := append([]any{slog.String("model", settings.Model)}, attrsOf(err)...)
		g.logger.Warn("llm_answer_failed", attrs...)
		fallback.Error = err.Error()
		return fallback
	}
	if text == "" {
		g.logger.Info("llm_answer_empty", slog.String("model", settings.Model))
		return fallback
	}

	return Answer{Mode: ModeLLM, Answer: text, Context: contextText}
}

func attrsOf(err error) []any {
	var out []any
	for _, a := range merrors.LogAttrs(err) {
		out = append(out, a)
	}
	return out
}

// complete performs one chat completion request and returns the trimmed
// content of the first choice.
func (g *Generator) complete(ctx context.Context, query, contextText string, settings Settings) (string, error) {
	timeout := settings.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(chatRequest{
		Model: settings.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: fmt.Sprintf("Question: %s\n\nBookmark context:\n%s", query, contextText)},
		},
		Temperature: settings.Temperature,
	})
	if err != nil {
		return "", merrors.InternalError("failed to marshal chat request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, settings.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", merrors.New(merrors.ErrCodeLLMFailed, "invalid LLM endpoint", err).
			WithDetail("endpoint", settings.Endpoint)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+settings.APIKey)

	resp, err := g.client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", merrors.NetworkError("LLM request timed out", err)
		}
		return "", merrors.New(merrors.ErrCodeNetworkUnavailable, "LLM request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", merrors.New(merrors.ErrCodeLLMFailed,
			fmt.Sprintf("LLM request failed (%d): %s", resp.StatusCode, strings.TrimSpace(string(respBody))), nil)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", merrors.New(merrors.ErrCodeLLMFailed, "failed to decode LLM response", err)
	}
	if len(out.Choices) == 0 {
		return "", nil
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}
