package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/markrag/internal/daemon"
	"github.com/Aman-CERP/markrag/internal/ui"
)

// attachPollInterval is how often attach refreshes status.
const attachPollInterval = 500 * time.Millisecond

func newAttachCmd(opts *globalOptions) *cobra.Command {
	var plain bool

	cmd := &cobra.Command{
		Use:   "attach",
		Short: "Watch indexing live while holding an interactive session",
		Long: `Attach to the running daemon and show live progress for both indexing
passes. While attached the daemon treats the session as interactive and
indexes in smaller batches with longer pauses, keeping the machine
responsive. Press q to detach.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, cleanup, err := opts.setup(false)
			if err != nil {
				return err
			}
			defer cleanup()

			client := daemon.NewClient(daemon.ConfigFrom(cfg.Daemon))
			r := ui.NewRenderer(ui.NewConfig(cmd.OutOrStdout(),
				ui.WithForcePlain(plain),
				ui.WithNoColor(opts.noColor),
				ui.WithTitle(cfg.Bookmarks.Path),
			))
			return runAttach(cmd.Context(), client, r)
		},
	}

	cmd.Flags().BoolVar(&plain, "plain", false, "Print progress lines instead of the dashboard")
	return cmd
}

// runAttach streams status into r until ctx ends, the daemon goes away or
// the user quits the dashboard.
func runAttach(ctx context.Context, client *daemon.Client, r ui.Renderer) error {
	attachment, err := client.Attach(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = attachment.Close() }()

	if err := r.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = r.Stop() }()

	var quit <-chan struct{}
	if tui, ok := r.(*ui.TUIRenderer); ok {
		quit = tui.Done()
	}

	ticker := time.NewTicker(attachPollInterval)
	defer ticker.Stop()
	for {
		if st, err := client.Status(ctx); err == nil {
			r.Update(ui.SnapshotFrom(&st.StatusResponse))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-attachment.Done():
			return nil
		case <-quit:
			return nil
		case <-ticker.C:
		}
	}
}
