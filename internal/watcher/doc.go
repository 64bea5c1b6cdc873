// Package watcher follows the bookmark file and reports bookmark changes.
//
// Browsers rewrite the bookmark file by writing a temporary file and
// renaming it over the original, so the watcher observes the parent
// directory and filters events down to the file's base name. When fsnotify
// cannot be initialized it falls back to polling the file's size and
// modification time.
//
// Raw file events are debounced, the tree is reloaded, and the difference
// against the previous snapshot is delivered as bookmarks.Events:
//
//	w, err := watcher.NewBookmarkWatcher(path, source, sched.HandleBookmarkEvent, watcher.DefaultOptions(), logger)
//	if err != nil {
//	    return err
//	}
//	go w.Run(ctx)
package watcher
