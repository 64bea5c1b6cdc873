package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/markrag/internal/output"
	"github.com/Aman-CERP/markrag/internal/service"
)

// progressInterval is how often index --wait polls status.
const progressInterval = 250 * time.Millisecond

func newIndexCmd(opts *globalOptions) *cobra.Command {
	var wait, contentOnly bool

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Re-read the bookmark file and refresh the index",
		Long: `Trigger a metadata pass over the bookmark file. Page content is fetched by
a second pass that starts when the metadata pass finishes.

Without --wait the command returns once the pass has started. With --wait
it shows progress and returns when both passes have finished, failing if
either failed.

With --content only the page text of the bookmarks already indexed is
fetched again; the bookmark file is not re-read.`,
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

			return runIndex(cmd.Context(), cmd, b, service.ReindexRequest{Wait: wait, ContentOnly: contentOnly})
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", false, "Wait for indexing to finish")
	cmd.Flags().BoolVar(&contentOnly, "content", false, "Only refetch page text for indexed bookmarks")
	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, b backend, req service.ReindexRequest) error {
	out := output.New(cmd.OutOrStdout())

	if !req.Wait {
		if _, err := b.Reindex(ctx, req); err != nil {
			return err
		}
		out.Success("Indexing started in the background")
		out.Status("", "Follow progress with 'markrag status' or 'markrag attach'")
		return nil
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := b.Reindex(ctx, req)
		errCh <- err
	}()

	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()
	shown := false
	for {
		select {
		case err := <-errCh:
			if shown {
				out.ProgressDone()
			}
			if err != nil {
				return err
			}
			st, err := b.Status(ctx)
			if err != nil {
				return err
			}
			out.Successf("Indexed %d bookmarks (%d with page text)", st.TotalDocs, st.ContentIndexedDocCount)
			return nil
		case <-ticker.C:
			st, err := b.Status(ctx)
			if err != nil {
				continue
			}
			switch {
			case st.Running && st.ProgressTotal > 0:
				out.Progress(min(st.ProgressDone, st.ProgressTotal-1), st.ProgressTotal, "bookmarks")
				shown = true
			case st.ContentRunning && st.ContentProgressTotal > 0:
				out.Progress(min(st.ContentProgressDone, st.ContentProgressTotal-1), st.ContentProgressTotal, "pages")
				shown = true
			}
		}
	}
}
