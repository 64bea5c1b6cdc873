// Package integration holds end-to-end tests that wire the store,
// embedder, pipeline, scheduler, watcher and service together the way the
// daemon does.
package integration
