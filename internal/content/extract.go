// Package content fetches bookmarked pages and extracts a short plain-text
// snippet from them for content embedding.
package content

import (
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

// DefaultMaxChars is the snippet length cap.
const DefaultMaxChars = 2200

var (
	scriptBlock   = regexp.MustCompile(`(?is)<script\b.*?</script>`)
	styleBlock    = regexp.MustCompile(`(?is)<style\b.*?</style>`)
	noscriptBlock = regexp.MustCompile(`(?is)<noscript\b.*?</noscript>`)
	anyTag        = regexp.MustCompile(`<[^>]+>`)
	whitespace    = regexp.MustCompile(`\s+`)
)

// entities are decoded one after another, in this order.
// "&amp;lt;" therefore decodes all the way to "<".
var entities = []struct {
	pattern *regexp.Regexp
	repl    string
}{
	{regexp.MustCompile(`(?i)&nbsp;`), " "},
	{regexp.MustCompile(`(?i)&amp;`), "&"},
	{regexp.MustCompile(`(?i)&lt;`), "<"},
	{regexp.MustCompile(`(?i)&gt;`), ">"},
	{regexp.MustCompile(`(?i)&#39;`), "'"},
	{regexp.MustCompile(`(?i)&quot;`), `"`},
}

// StripHTML reduces an HTML document to its visible text.
//
// Script, style, and noscript blocks are removed with their content, then
// every remaining tag. The five basic entities are decoded, whitespace runs
// collapse to one space, and the result is trimmed.
func StripHTML(html string) string {
	s := scriptBlock.ReplaceAllString(html, " ")
	s = styleBlock.ReplaceAllString(s, " ")
	s = noscriptBlock.ReplaceAllString(s, " ")
	s = anyTag.ReplaceAllString(s, " ")
	for _, e := range entities {
		s = e.pattern.ReplaceAllLiteralString(s, e.repl)
	}
	s = whitespace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// IsHTML reports whether a Content-Type header value names HTML.
func IsHTML(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "text/html")
}

// IsPlainText reports whether a Content-Type header value names plain text.
func IsPlainText(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "text/plain")
}

// IsSupported reports whether a response of this Content-Type can yield a snippet.
func IsSupported(contentType string) bool {
	return IsHTML(contentType) || IsPlainText(contentType)
}

// ExtractText turns a response body into a snippet of at most maxChars
// characters. Unsupported content types yield "".
// Plain text is only trimmed. A type naming both is treated as plain text.
func ExtractText(body, contentType string, maxChars int) string {
	var text string
	switch {
	case IsPlainText(contentType):
		text = strings.TrimSpace(body)
	case IsHTML(contentType):
		text = StripHTML(body)
	default:
		return ""
	}
	return Truncate(text, maxChars)
}

// Truncate returns the first maxChars characters of s.
// maxChars <= 0 uses DefaultMaxChars.
func Truncate(s string, maxChars int) string {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	if utf8.RuneCountInString(s) <= maxChars {
		return s
	}
	n := 0
	for i := range s {
		if n == maxChars {
			return s[:i]
		}
		n++
	}
	return s
}

// IsFetchableURL reports whether raw is a well-formed http or https URL.
func IsFetchableURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
