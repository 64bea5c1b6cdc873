package cmd

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/markrag/internal/mcp"
)

func newMCPCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve bookmark search to an MCP client over stdio",
		Long: `Run a Model Context Protocol server on stdin/stdout exposing the
search_bookmarks, ask_bookmarks, reindex_bookmarks and index_status tools.

When the daemon is running, requests are forwarded to it and the MCP
client counts as an attached session. Otherwise the index is opened
in-process. Nothing but protocol messages is written to stdout.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMCP(cmd.Context(), opts)
		},
	}
}

func runMCP(ctx context.Context, opts *globalOptions) error {
	cfg, logger, cleanup, err := opts.setup(true)
	if err != nil {
		return err
	}
	defer cleanup()

	b, err := openBackend(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = b.Close() }()

	serverOpts := []mcp.Option{mcp.WithLogger(logger.With(slog.String("component", "mcp")))}
	switch b := b.(type) {
	case *localBackend:
		b.rt.Start(ctx)
		serverOpts = append(serverOpts, mcp.WithSessions(b.rt.Scheduler().Sessions()))
	case *daemonBackend:
		attachment, err := b.client.Attach(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = attachment.Close() }()
	}

	server, err := mcp.NewServer(b, serverOpts...)
	if err != nil {
		return err
	}
	return server.Serve(ctx, "stdio")
}
