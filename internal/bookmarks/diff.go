package bookmarks

import "sort"

type nodeInfo struct {
	title    string
	url      string
	parentID string
	order    int
}

func index(nodes []Node) map[string]nodeInfo {
	out := make(map[string]nodeInfo)
	var walk func(nodes []Node, parentID string)
	order := 0
	walk = func(nodes []Node, parentID string) {
		for _, n := range nodes {
			out[n.ID] = nodeInfo{title: n.Title, url: n.URL, parentID: parentID, order: order}
			order++
			walk(n.Children, n.ID)
		}
	}
	walk(nodes, "")
	return out
}

// Diff compares two snapshots of a tree and returns the changes between
// them, in the new tree's order followed by removals in the old tree's order.
//
// A node whose parent changed is reported as moved. A node whose title or
// URL changed is reported as changed. A node that both moved and changed
// produces both events. Reordering within the same folder is not reported.
func Diff(oldNodes, newNodes []Node) []Event {
	before := index(oldNodes)
	after := index(newNodes)

	var events []Event
	ids := sortedByOrder(after)
	for _, id := range ids {
		cur := after[id]
		prev, existed := before[id]
		if !existed {
			events = append(events, Event{Kind: EventCreated, ID: id, URL: cur.url})
			continue
		}
		if prev.parentID != cur.parentID {
			events = append(events, Event{Kind: EventMoved, ID: id, URL: cur.url})
		}
		if prev.title != cur.title || prev.url != cur.url {
			events = append(events, Event{Kind: EventChanged, ID: id, URL: cur.url})
		}
	}

	for _, id := range sortedByOrder(before) {
		if _, ok := after[id]; !ok {
			events = append(events, Event{Kind: EventRemoved, ID: id, URL: before[id].url})
		}
	}
	return events
}

func sortedByOrder(m map[string]nodeInfo) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return m[ids[i]].order < m[ids[j]].order })
	return ids
}
