package bookmarks

import (
	"strings"
	"time"

	"github.com/Aman-CERP/markrag/internal/store"
)

// RootFolderPath is the folder path of a bookmark that has no titled ancestor.
const RootFolderPath = "/"

// Flatten walks nodes depth-first and returns one Document per bookmark,
// in tree order.
//
// Each titled folder adds "/<title>" to the path of its descendants.
// Folders without a title add nothing. Embedding and content fields are
// left empty; now becomes UpdatedAt.
func Flatten(nodes []Node, now time.Time) []store.Document {
	return flatten(nodes, "", now, nil)
}

func flatten(nodes []Node, currentPath string, now time.Time, out []store.Document) []store.Document {
	for _, node := range nodes {
		if node.URL != "" {
			folderPath := currentPath
			if folderPath == "" {
				folderPath = RootFolderPath
			}
			out = append(out, ToDocument(node, folderPath, now))
			continue
		}

		nextPath := currentPath
		if node.Title != "" {
			nextPath = currentPath + "/" + node.Title
		}
		if len(node.Children) > 0 {
			out = flatten(node.Children, nextPath, now, out)
		}
	}
	return out
}

// ToDocument builds the Document for a bookmark node in folderPath.
func ToDocument(node Node, folderPath string, now time.Time) store.Document {
	return store.Document{
		ID:         node.ID,
		Title:      node.Title,
		URL:        node.URL,
		FolderPath: folderPath,
		DateAdded:  node.DateAdded,
		Text:       strings.TrimSpace(node.Title + "\n" + folderPath + "\n" + node.URL),
		SearchText: strings.ToLower(node.Title + " " + folderPath + " " + node.URL),
		UpdatedAt:  now,
	}
}

// CountBookmarks returns the number of bookmark (non-folder) nodes.
func CountBookmarks(nodes []Node) int {
	n := 0
	for _, node := range nodes {
		if node.URL != "" {
			n++
			continue
		}
		n += CountBookmarks(node.Children)
	}
	return n
}
