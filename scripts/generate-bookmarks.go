//go:build ignore

// Package main writes a synthetic Chromium bookmark file for load testing.
// Usage: go run scripts/generate-bookmarks.go -count 5000 -output testdata/Bookmarks
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

var (
	count   = flag.Int("count", 1000, "Number of bookmarks to generate")
	folders = flag.Int("folders", 40, "Number of folders to spread them over")
	depth   = flag.Int("depth", 3, "Maximum folder nesting depth")
	output  = flag.String("output", "testdata/Bookmarks", "Output file")
	seed    = flag.Int64("seed", 42, "Random seed for reproducibility")
)

var (
	topics = []string{
		"rust", "go", "python", "kubernetes", "postgres", "sqlite", "react", "typescript",
		"machine learning", "embeddings", "networking", "linux", "security", "design", "cooking",
		"photography", "travel", "finance", "music", "history",
	}
	kinds = []string{
		"Guide", "Tutorial", "Reference", "Cheatsheet", "Deep Dive", "Notes", "Talk", "Book",
		"Handbook", "FAQ", "Release Notes", "Blog",
	}
	hosts = []string{
		"example.com", "docs.example.org", "blog.example.net", "wiki.example.io", "news.example.dev",
	}
)

// node mirrors the Chromium bookmark JSON node.
type node struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Type      string  `json:"type"`
	URL       string  `json:"url,omitempty"`
	DateAdded string  `json:"date_added"`
	Children  []*node `json:"children,omitempty"`
}

type generator struct {
	rnd    *rand.Rand
	nextID int
	epoch  time.Time
}

func (g *generator) id() string {
	g.nextID++
	return strconv.Itoa(g.nextID)
}

// dateAdded uses the Chromium epoch: microseconds since 1601-01-01.
func (g *generator) dateAdded() string {
	added := g.epoch.Add(-time.Duration(g.rnd.Int63n(int64(5 * 365 * 24 * time.Hour))))
	const chromeEpochOffset = 11644473600 * 1_000_000
	return strconv.FormatInt(added.UnixMicro()+chromeEpochOffset, 10)
}

func (g *generator) folder(name string) *node {
	return &node{ID: g.id(), Name: name, Type: "folder", DateAdded: g.dateAdded()}
}

func (g *generator) bookmark() *node {
	topic := topics[g.rnd.Intn(len(topics))]
	kind := kinds[g.rnd.Intn(len(kinds))]
	host := hosts[g.rnd.Intn(len(hosts))]
	slug := strings.ReplaceAll(topic, " ", "-")
	return &node{
		ID:        g.id(),
		Name:      fmt.Sprintf("%s %s #%d", capitalize(topic), kind, g.nextID),
		Type:      "url",
		URL:       fmt.Sprintf("https://%s/%s/%s-%d", host, slug, strings.ToLower(strings.ReplaceAll(kind, " ", "-")), g.nextID),
		DateAdded: g.dateAdded(),
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func main() {
	flag.Parse()
	if *count < 0 || *folders < 1 || *depth < 1 {
		fmt.Fprintln(os.Stderr, "count must be >= 0, folders and depth >= 1")
		os.Exit(2)
	}

	g := &generator{rnd: rand.New(rand.NewSource(*seed)), epoch: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	g.nextID = 2 // 1 and 2 are reserved for the roots

	bar := &node{ID: "1", Name: "Bookmarks bar", Type: "folder", DateAdded: g.dateAdded()}
	other := &node{ID: "2", Name: "Other bookmarks", Type: "folder", DateAdded: g.dateAdded()}

	// Build the folder tree, nesting each new folder under a random
	// existing one that is still shallow enough.
	type placed struct {
		n     *node
		level int
	}
	all := []placed{{bar, 0}, {other, 0}}
	for i := 0; i < *folders; i++ {
		var parent placed
		for {
			parent = all[g.rnd.Intn(len(all))]
			if parent.level < *depth {
				break
			}
		}
		f := g.folder(fmt.Sprintf("%s %d", capitalize(topics[i%len(topics)]), i))
		parent.n.Children = append(parent.n.Children, f)
		all = append(all, placed{f, parent.level + 1})
	}

	for i := 0; i < *count; i++ {
		parent := all[g.rnd.Intn(len(all))].n
		parent.Children = append(parent.Children, g.bookmark())
	}

	doc := map[string]any{
		"version": 1,
		"roots": map[string]any{
			"bookmark_bar": bar,
			"other":        other,
		},
	}
	data, err := json.MarshalIndent(doc, "", "   ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding bookmarks: %v\n", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(filepath.Dir(*output), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating output directory: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*output, data, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", *output, err)
		os.Exit(1)
	}

	fmt.Printf("Wrote %d bookmarks in %d folders to %s\n", *count, *folders, *output)
}
