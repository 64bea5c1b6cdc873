package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/markrag/internal/config"
	"github.com/Aman-CERP/markrag/internal/daemon"
	"github.com/Aman-CERP/markrag/internal/ui"
)

func newStatusCmd(opts *globalOptions) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index status",
		Long: `Show whether the daemon is running, how many bookmarks are indexed and
the state of the metadata and content passes.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, cleanup, err := opts.setup(false)
			if err != nil {
				return err
			}
			defer cleanup()

			b, err := openBackend(cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = b.Close() }()

			return runStatus(cmd.Context(), cmd, cfg, b, jsonOutput, opts.noColor)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func runStatus(ctx context.Context, cmd *cobra.Command, cfg *config.Config, b backend, jsonOutput, noColor bool) error {
	detail, err := b.Detail(ctx)
	if err != nil {
		return err
	}

	r := ui.NewStatusRenderer(cmd.OutOrStdout(), noColor || !ui.IsTTY(cmd.OutOrStdout()))
	if jsonOutput {
		return r.RenderJSON(statusJSON{StatusResult: detail, Mode: b.Mode()})
	}
	return r.Render(statusInfo(cfg, detail, b.Mode()))
}

// statusJSON adds the backend mode to the status payload.
type statusJSON struct {
	*daemon.StatusResult
	Mode string `json:"mode"`
}

func statusInfo(cfg *config.Config, detail *daemon.StatusResult, mode string) ui.StatusInfo {
	info := ui.StatusInfo{
		Snapshot:      ui.SnapshotFrom(&detail.StatusResponse),
		Mode:          mode,
		PID:           detail.PID,
		Uptime:        detail.Uptime,
		BookmarksPath: detail.BookmarksPath,
		Watching:      detail.Watching,
		StorePath:     cfg.Store.Path,
	}
	if fi, err := os.Stat(cfg.Store.Path); err == nil {
		info.StoreSize = fi.Size()
	}
	return info
}
