// Package bookmarks reads the user's bookmark tree and turns it into
// indexable documents.
//
// A Source yields the tree; Flatten walks it depth-first into
// store.Documents; Diff compares two snapshots and reports the
// created, changed, removed, and moved bookmarks between them.
package bookmarks

import (
	"context"
	"time"
)

// Node is one entry of a bookmark tree.
// A node with a URL is a bookmark; a node without one is a folder.
type Node struct {
	ID        string
	Title     string
	URL       string
	DateAdded *time.Time
	Children  []Node
}

// IsFolder reports whether the node is a folder.
func (n Node) IsFolder() bool {
	return n.URL == ""
}

// Source provides the current bookmark tree.
type Source interface {
	// Tree returns the top-level nodes of the tree.
	Tree(ctx context.Context) ([]Node, error)
}

// StaticSource is a Source backed by an in-memory tree.
type StaticSource struct {
	Nodes []Node
}

// Tree returns the static nodes.
func (s *StaticSource) Tree(_ context.Context) ([]Node, error) {
	return s.Nodes, nil
}

// EventKind names a bookmark change.
type EventKind string

const (
	EventCreated EventKind = "created"
	EventChanged EventKind = "changed"
	EventRemoved EventKind = "removed"
	EventMoved   EventKind = "moved"
)

// Event is a single change between two snapshots of the tree.
type Event struct {
	Kind EventKind
	ID   string
	URL  string
}

// Reason returns the reindex reason string for the event, e.g. "bookmark-removed".
func (e Event) Reason() string {
	return "bookmark-" + string(e.Kind)
}
