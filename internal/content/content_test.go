package content

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Aman-CERP/markrag/internal/config"
	"github.com/Aman-CERP/markrag/internal/logging"
)

func TestStripHTML(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "removes script style and noscript with content",
			in: `<html><head><style>body{color:red}</style><script type="x">var a = "<b>";</script></head>` +
				`<body><noscript>enable js</noscript><h1>Hello</h1><p>World</p></body></html>`,
			want: "Hello World",
		},
		{
			name: "decodes basic entities",
			in:   "<p>Tom&nbsp;&amp;&nbsp;Jerry &lt;3 &gt; &#39;x&#39; &QUOT;y&quot;</p>",
			want: `Tom & Jerry <3 > 'x' "y"`,
		},
		{
			name: "entity decoding is sequential",
			in:   "a &amp;lt; b",
			want: "a < b",
		},
		{
			name: "collapses whitespace",
			in:   "<div>\n  one\t\t two  </div>\n\n<span>three</span>",
			want: "one two three",
		},
		{
			name: "case-insensitive tags",
			in:   "<SCRIPT>bad()</SCRIPT>ok",
			want: "ok",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripHTML(tt.in))
		})
	}
}

func TestExtractText(t *testing.T) {
	assert.Equal(t, "Hi", ExtractText("<b>Hi</b>", "text/html; charset=utf-8", 100))
	assert.Equal(t, "<b>Hi</b>", ExtractText("  <b>Hi</b> \n", "TEXT/PLAIN", 100))
	assert.Empty(t, ExtractText("{}", "application/json", 100))
	assert.Equal(t, "abc", ExtractText("abcdef", "text/plain", 3))
	// leading blank lines do not use up the limit
	assert.Equal(t, "abc", ExtractText("\n\n  abcdef", "text/plain", 3))
}

func TestTruncate_CountsCharacters(t *testing.T) {
	assert.Equal(t, "héé", Truncate("héééé", 3))
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Len(t, []rune(Truncate(strings.Repeat("x", 5000), 0)), DefaultMaxChars)
}

func TestIsFetchableURL(t *testing.T) {
	assert.True(t, IsFetchableURL("https://go.dev/blog"))
	assert.True(t, IsFetchableURL("HTTP://example.com"))
	assert.False(t, IsFetchableURL("chrome://settings"))
	assert.False(t, IsFetchableURL("javascript:alert(1)"))
	assert.False(t, IsFetchableURL("file:///etc/passwd"))
	assert.False(t, IsFetchableURL("not a url"))
	assert.False(t, IsFetchableURL("https://"))
}

func newTestFetcher(t *testing.T, timeout time.Duration) *HTTPFetcher {
	cfg := config.NewConfig().Indexing
	cfg.FetchTimeout = timeout
	cfg.MaxContentChars = 50
	return NewHTTPFetcher(cfg, WithLogger(logging.Discard()))
}

func TestHTTPFetcher_Fetch(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, DefaultUserAgent, r.UserAgent())
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html><body><h1>Title</h1><p>" + strings.Repeat("word ", 40) + "</p></body></html>"))
	})
	mux.HandleFunc("/text", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("plain body"))
	})
	mux.HandleFunc("/json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"a":1}`))
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("<p>not found</p>"))
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	mux.HandleFunc("/redirect", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/text", http.StatusFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	f := newTestFetcher(t, 200*time.Millisecond)
	ctx := context.Background()

	tests := []struct {
		path string
		want string
	}{
		{"/page", ("Title " + strings.Repeat("word ", 40))[:50]},
		{"/text", "plain body"},
		{"/redirect", "plain body"},
		{"/json", ""},
		{"/missing", ""},
		{"/slow", ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, f.Fetch(ctx, srv.URL+tt.path))
		})
	}
}

func TestHTTPFetcher_SkipsNonHTTP(t *testing.T) {
	f := newTestFetcher(t, time.Second)
	assert.Empty(t, f.Fetch(context.Background(), "ftp://example.com/file.txt"))
}

func TestFetcherFunc(t *testing.T) {
	var f Fetcher = FetcherFunc(func(ctx context.Context, u string) string { return "x:" + u })
	assert.Equal(t, "x:u", f.Fetch(context.Background(), "u"))
}
