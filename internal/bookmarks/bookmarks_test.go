package bookmarks

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	merrors "github.com/Aman-CERP/markrag/internal/errors"
)

func sampleTree() []Node {
	return []Node{
		{ID: "1", Title: "Bookmarks bar", Children: []Node{
			{ID: "10", Title: "Go Blog", URL: "https://go.dev/blog"},
			{ID: "11", Title: "Dev", Children: []Node{
				{ID: "12", Title: "Rust Book", URL: "https://doc.rust-lang.org/book/"},
				{ID: "13", Title: "Empty", Children: nil},
			}},
		}},
		{ID: "2", Title: "", Children: []Node{
			{ID: "20", Title: "Untitled parent", URL: "https://example.com"},
		}},
		{ID: "30", Title: "Top level", URL: "https://top.example"},
	}
}

func TestFlatten_FolderPaths(t *testing.T) {
	// Given: a tree with nested, untitled, and root-level bookmarks
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	// When: the tree is flattened
	docs := Flatten(sampleTree(), now)

	// Then: depth-first order with slash-joined ancestor titles
	require.Len(t, docs, 4)
	assert.Equal(t, []string{"10", "12", "20", "30"}, []string{docs[0].ID, docs[1].ID, docs[2].ID, docs[3].ID})
	assert.Equal(t, "/Bookmarks bar", docs[0].FolderPath)
	assert.Equal(t, "/Bookmarks bar/Dev", docs[1].FolderPath)
	assert.Equal(t, "/", docs[2].FolderPath, "untitled folder adds no segment")
	assert.Equal(t, "/", docs[3].FolderPath)
	assert.Equal(t, now, docs[0].UpdatedAt)
}

func TestToDocument_TextAndSearchText(t *testing.T) {
	node := Node{ID: "5", Title: "Go Blog", URL: "https://GO.dev/Blog"}

	doc := ToDocument(node, "/Dev", time.Now())

	assert.Equal(t, "Go Blog\n/Dev\nhttps://GO.dev/Blog", doc.Text)
	assert.Equal(t, "go blog /dev https://go.dev/blog", doc.SearchText)
	assert.Nil(t, doc.Embedding)
	assert.Empty(t, doc.ContentText)
}

func TestToDocument_TrimsEmptyTitle(t *testing.T) {
	doc := ToDocument(Node{ID: "5", URL: "https://x.test"}, "/", time.Now())

	assert.Equal(t, "/\nhttps://x.test", doc.Text)
}

func TestCountBookmarks(t *testing.T) {
	assert.Equal(t, 4, CountBookmarks(sampleTree()))
}

func TestDiff(t *testing.T) {
	// Given: a tree and an edited copy
	before := sampleTree()
	after := []Node{
		{ID: "1", Title: "Bookmarks bar", Children: []Node{
			{ID: "10", Title: "The Go Blog", URL: "https://go.dev/blog"},
			{ID: "11", Title: "Dev", Children: []Node{
				{ID: "13", Title: "Empty"},
				{ID: "40", Title: "New", URL: "https://new.example"},
			}},
			{ID: "12", Title: "Rust Book", URL: "https://doc.rust-lang.org/book/"},
		}},
		{ID: "30", Title: "Top level", URL: "https://top.example"},
	}

	// When: the snapshots are compared
	events := Diff(before, after)

	// Then: rename, move, creation, and removals are reported
	assert.Equal(t, []Event{
		{Kind: EventChanged, ID: "10", URL: "https://go.dev/blog"},
		{Kind: EventCreated, ID: "40", URL: "https://new.example"},
		{Kind: EventMoved, ID: "12", URL: "https://doc.rust-lang.org/book/"},
		{Kind: EventRemoved, ID: "2"},
		{Kind: EventRemoved, ID: "20", URL: "https://example.com"},
	}, events)
}

func TestDiff_IdenticalTreesHaveNoEvents(t *testing.T) {
	assert.Empty(t, Diff(sampleTree(), sampleTree()))
}

func TestEvent_Reason(t *testing.T) {
	assert.Equal(t, "bookmark-removed", Event{Kind: EventRemoved}.Reason())
	assert.Equal(t, "bookmark-moved", Event{Kind: EventMoved}.Reason())
}

const chromeJSON = `{
  "checksum": "abc",
  "roots": {
    "bookmark_bar": {
      "id": "1", "name": "Bookmarks bar", "type": "folder", "date_added": "13300000000000000",
      "children": [
        {"id": "5", "name": "Go", "type": "url", "url": "https://go.dev/", "date_added": "13300000000000000"},
        {"id": "6", "name": "Tools", "type": "folder", "children": [
          {"id": "7", "name": "jq", "type": "url", "url": "https://jqlang.org/", "date_added": "0"}
        ]}
      ]
    },
    "other": {"id": "2", "name": "Other bookmarks", "type": "folder", "children": []},
    "synced": {"id": "3", "name": "Mobile bookmarks", "type": "folder", "children": [
      {"id": "8", "name": "Phone", "type": "url", "url": "https://m.example/"}
    ]}
  },
  "version": 1
}`

func TestChromeSource_Tree(t *testing.T) {
	// Given: a Chromium bookmarks file on disk
	path := filepath.Join(t.TempDir(), "Bookmarks")
	require.NoError(t, os.WriteFile(path, []byte(chromeJSON), 0o600))

	// When: the tree is read and flattened
	nodes, err := NewChromeSource(path).Tree(context.Background())
	require.NoError(t, err)
	docs := Flatten(nodes, time.Now())

	// Then: roots are in browser order and dates are converted
	require.Len(t, nodes, 3)
	assert.Equal(t, "Bookmarks bar", nodes[0].Title)
	assert.Equal(t, "Mobile bookmarks", nodes[2].Title)

	require.Len(t, docs, 3)
	assert.Equal(t, "/Bookmarks bar", docs[0].FolderPath)
	assert.Equal(t, "/Bookmarks bar/Tools", docs[1].FolderPath)
	assert.Equal(t, "/Mobile bookmarks", docs[2].FolderPath)

	require.NotNil(t, docs[0].DateAdded)
	assert.Equal(t, time.Date(2022, 6, 18, 4, 26, 40, 0, time.UTC), *docs[0].DateAdded)
	assert.Nil(t, docs[1].DateAdded, "zero date_added is treated as missing")
}

func TestChromeSource_MissingFile(t *testing.T) {
	_, err := NewChromeSource(filepath.Join(t.TempDir(), "nope")).Tree(context.Background())

	require.Error(t, err)
	assert.Equal(t, merrors.ErrCodeBookmarksUnreadable, merrors.GetCode(err))
}

func TestParseChrome_Invalid(t *testing.T) {
	_, err := ParseChrome([]byte("{not json"))
	assert.Equal(t, merrors.ErrCodeBookmarksUnreadable, merrors.GetCode(err))

	_, err = ParseChrome([]byte(`{"version": 1}`))
	assert.Error(t, err)
}

func TestResolvePath(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", "")

	p, err := ResolvePath("/explicit/Bookmarks")
	require.NoError(t, err)
	assert.Equal(t, "/explicit/Bookmarks", p)

	_, err = ResolvePath("")
	assert.Error(t, err)
}

func TestStaticSource(t *testing.T) {
	src := &StaticSource{Nodes: sampleTree()}
	nodes, err := src.Tree(context.Background())
	require.NoError(t, err)
	assert.Len(t, nodes, 3)
}
