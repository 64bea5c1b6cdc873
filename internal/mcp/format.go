package mcp

import (
	"fmt"
	"strings"
	"time"

	"github.com/Aman-CERP/markrag/internal/service"
)

// FormatSearchResults formats a search page as markdown.
func FormatSearchResults(query string, resp *service.SearchResponse) string {
	if resp == nil || len(resp.Results) == 0 {
		msg := fmt.Sprintf("No bookmarks found for \"%s\"", query)
		if resp != nil && resp.Indexing {
			msg += " (indexing is in progress, try again shortly)"
		}
		return msg
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Bookmarks matching \"%s\"\n\n", query)
	first := resp.Offset + 1
	last := resp.Offset + len(resp.Results)
	fmt.Fprintf(&sb, "Showing %d-%d of %d result", first, last, resp.TotalCount)
	if resp.TotalCount != 1 {
		sb.WriteString("s")
	}
	sb.WriteString("\n")
	if resp.Indexing {
		sb.WriteString("\n_Indexing is in progress; ranking uses keywords only._\n")
	}
	sb.WriteString("\n")

	for i, r := range resp.Results {
		formatBookmark(&sb, resp.Offset+i+1, r.Title, r.URL, r.FolderPath, r.Score)
	}
	return sb.String()
}

// FormatAnswer formats an ask response with its sources.
func FormatAnswer(resp *service.AskResponse) string {
	var sb strings.Builder
	sb.WriteString(resp.Answer)
	sb.WriteString("\n")

	if len(resp.Sources) > 0 {
		sb.WriteString("\n### Sources\n\n")
		for _, src := range resp.Sources {
			formatBookmark(&sb, src.Rank, src.Title, src.URL, src.FolderPath, src.Score)
		}
	}
	if resp.LLMError != "" {
		fmt.Fprintf(&sb, "\n_Language model unavailable (%s); showing local matches._\n", resp.LLMError)
	}
	return sb.String()
}

// FormatStatus formats index status as markdown.
func FormatStatus(out *IndexStatusOutput) string {
	var sb strings.Builder
	sb.WriteString("## Bookmark index\n\n")
	fmt.Fprintf(&sb, "- Bookmarks: %d (stored: %d, with page text: %d)\n", out.TotalDocs, out.StoredDocs, out.ContentDocs)
	if out.EmbeddingModel != "" {
		fmt.Fprintf(&sb, "- Embedding model: `%s`\n", out.EmbeddingModel)
	}
	formatPass(&sb, "Metadata", out.Metadata)
	formatPass(&sb, "Content", out.Content)
	return sb.String()
}

func formatPass(sb *strings.Builder, name string, p PassStatus) {
	switch {
	case p.Running:
		fmt.Fprintf(sb, "- %s pass: running (%.0f%%)\n", name, p.ProgressPct)
	case p.LastIndexedAt != "":
		fmt.Fprintf(sb, "- %s pass: last indexed %s", name, p.LastIndexedAt)
		if p.LastReason != "" {
			fmt.Fprintf(sb, " (%s)", p.LastReason)
		}
		sb.WriteString("\n")
	default:
		fmt.Fprintf(sb, "- %s pass: never run\n", name)
	}
	if p.LastError != "" {
		fmt.Fprintf(sb, "  - last error: %s\n", p.LastError)
	}
}

func formatBookmark(sb *strings.Builder, num int, title, url, folder string, score float64) {
	if title == "" {
		title = "(untitled)"
	}
	fmt.Fprintf(sb, "%d. [%s](%s) (score: %.2f)\n", num, title, url, score)
	if folder != "" && folder != "/" {
		fmt.Fprintf(sb, "   Folder: %s\n", folder)
	}
}

func toBookmarks(results []service.SearchResult, offset int) []BookmarkOutput {
	out := make([]BookmarkOutput, len(results))
	for i, r := range results {
		out[i] = BookmarkOutput{
			Rank:       offset + i + 1,
			Title:      r.Title,
			URL:        r.URL,
			FolderPath: r.FolderPath,
			Score:      r.Score,
		}
	}
	return out
}

func toStatusOutput(st *service.StatusResponse) *IndexStatusOutput {
	return &IndexStatusOutput{
		Metadata: PassStatus{
			Running:       st.Running,
			ProgressPct:   st.ProgressPct,
			LastIndexedAt: formatTime(st.LastIndexedAt),
			LastReason:    st.LastIndexReason,
			LastError:     st.LastError,
		},
		Content: PassStatus{
			Running:       st.ContentRunning,
			ProgressPct:   st.ContentProgressPct,
			LastIndexedAt: formatTime(st.ContentLastIndexedAt),
			LastReason:    st.LastContentIndexReason,
			LastError:     st.ContentLastError,
		},
		TotalDocs:      st.TotalDocs,
		StoredDocs:     st.StoredDocs,
		ContentDocs:    st.ContentIndexedDocCount,
		EmbeddingModel: st.EmbeddingModel,
		Sessions:       st.InteractiveSessions,
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
