// Package preflight checks that markrag can run before the daemon starts.
//
// The checks cover:
//   - the bookmarks file (readable and parseable)
//   - the data directory (writable, enough free space)
//   - the file descriptor limit
//   - the embedding provider
//   - the language model key
//
// Required checks block startup when they fail. The embedder and language
// model checks only warn because search and ask degrade without them.
//
//	checker := preflight.New(preflight.WithOutput(os.Stdout))
//	results := checker.RunAll(ctx, cfg)
//	if checker.HasCriticalFailures(results) {
//	    // refuse to start
//	}
package preflight
