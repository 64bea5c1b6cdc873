// Package logging provides file-based structured logging with rotation.
//
// The daemon and the MCP server log JSON lines to ~/.markrag/logs/markrag.log.
// In MCP mode nothing may be written to stdout or stderr, so the stderr tee
// is always disabled there.
package logging
