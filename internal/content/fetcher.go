package content

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/Aman-CERP/markrag/internal/config"
	merrors "github.com/Aman-CERP/markrag/internal/errors"
)

// Defaults for HTTPFetcher.
const (
	DefaultTimeout   = 8000 * time.Millisecond
	DefaultMaxBytes  = 2 << 20
	DefaultUserAgent = "markrag/1.0 (+bookmark indexer)"
)

// Fetcher retrieves the text snippet for a URL.
//
// Fetch never fails: any problem yields "".
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) string
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, rawURL string) string

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, rawURL string) string {
	return f(ctx, rawURL)
}

// HTTPFetcher fetches pages over HTTP with a per-request timeout.
type HTTPFetcher struct {
	client    *http.Client
	timeout   time.Duration
	maxBytes  int64
	maxChars  int
	userAgent string
	logger    *slog.Logger
}

var _ Fetcher = (*HTTPFetcher)(nil)

// FetcherOption configures an HTTPFetcher.
type FetcherOption func(*HTTPFetcher)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) FetcherOption {
	return func(f *HTTPFetcher) { f.client = c }
}

// WithLogger sets the logger used for fetch failures.
func WithLogger(l *slog.Logger) FetcherOption {
	return func(f *HTTPFetcher) { f.logger = l }
}

// NewHTTPFetcher creates a fetcher from the indexing configuration.
func NewHTTPFetcher(cfg config.IndexingConfig, opts ...FetcherOption) *HTTPFetcher {
	f := &HTTPFetcher{
		client:    &http.Client{},
		timeout:   cfg.FetchTimeout,
		maxBytes:  cfg.MaxFetchBytes,
		maxChars:  cfg.MaxContentChars,
		userAgent: cfg.UserAgent,
		logger:    slog.Default(),
	}
	if f.timeout <= 0 {
		f.timeout = DefaultTimeout
	}
	if f.maxBytes <= 0 {
		f.maxBytes = DefaultMaxBytes
	}
	if f.maxChars <= 0 {
		f.maxChars = DefaultMaxChars
	}
	if f.userAgent == "" {
		f.userAgent = DefaultUserAgent
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch returns the snippet for rawURL, or "" on any failure.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) string {
	if !IsFetchableURL(rawURL) {
		return ""
	}
	text, err := f.fetch(ctx, rawURL)
	if err != nil {
		f.logger.Debug("content_fetch_failed",
			slog.String("url", rawURL),
			slog.String("code", merrors.GetCode(err)),
			slog.String("error", err.Error()))
		return ""
	}
	return text
}

func (f *HTTPFetcher) fetch(ctx context.Context, rawURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", merrors.FetchError("invalid request", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,text/plain;q=0.9")
	req.Header.Set("Cache-Control", "no-store")

	resp, err := f.client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", merrors.NetworkError(fmt.Sprintf("fetch timed out after %s", f.timeout), err)
		}
		return "", merrors.FetchError("request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", merrors.FetchError(fmt.Sprintf("status %d", resp.StatusCode), nil)
	}

	contentType := resp.Header.Get("Content-Type")
	if !IsSupported(contentType) {
		return "", merrors.New(merrors.ErrCodeUnsupportedContent,
			fmt.Sprintf("unsupported content type %q", contentType), nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return "", merrors.FetchError("failed to read body", err)
	}

	return ExtractText(string(body), contentType, f.maxChars), nil
}
