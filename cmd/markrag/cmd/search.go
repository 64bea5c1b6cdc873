package cmd

import (
	"encoding/json"
	"strings"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	merrors "github.com/Aman-CERP/markrag/internal/errors"
	"github.com/Aman-CERP/markrag/internal/output"
	"github.com/Aman-CERP/markrag/internal/service"
	"github.com/Aman-CERP/markrag/internal/ui"
)

// writeClipboard is replaced in tests.
var writeClipboard = clipboard.WriteAll

func newSearchCmd(opts *globalOptions) *cobra.Command {
	var (
		offset     int
		limit      int
		jsonOutput bool
		copyURL    bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search bookmarks",
		Long: heredoc.Doc(`
			Search bookmarks by title, folder, URL and fetched page text.

			Results are ranked by a blend of keyword matches and semantic similarity.
			Use --offset and --limit to page through results.
		`),
		Example: heredoc.Doc(`
			markrag search rust ownership
			markrag search --offset 10 -n 10 kubernetes
			markrag search --copy postgres indexes
		`),
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.TrimSpace(strings.Join(args, " "))
			if query == "" {
				return merrors.New(merrors.ErrCodeQueryEmpty, "search query is empty", nil)
			}
			if offset < 0 {
				return merrors.ValidationError("--offset must not be negative", nil)
			}

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

			resp, err := b.Search(cmd.Context(), service.SearchRequest{Query: query, Offset: offset, Limit: limit})
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, resp)
			}
			out := output.New(cmd.OutOrStdout())
			out.SearchResults(query, resp)
			if copyURL && len(resp.Results) > 0 {
				top := resp.Results[0].URL
				if err := writeClipboard(top); err != nil {
					out.Warningf("Could not copy to clipboard: %v", err)
				} else {
					out.Successf("Copied %s", top)
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&offset, "offset", 0, "Number of results to skip")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Results per page (default from config)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&copyURL, "copy", false, "Copy the top result's URL to the clipboard")
	return cmd
}

func newAskCmd(opts *globalOptions) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question from your bookmarks",
		Long: heredoc.Doc(`
			Retrieve the best matching bookmarks and answer the question with an
			OpenAI-compatible model. Without an API key, or when the model call fails,
			a ranked summary of the matches is printed instead.

			On a terminal, model answers are rendered as markdown unless --no-color
			is set or NO_COLOR is present in the environment.
		`),
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.TrimSpace(strings.Join(args, " "))
			if query == "" {
				return merrors.New(merrors.ErrCodeQueryEmpty, "question is empty", nil)
			}

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

			resp, err := b.Ask(cmd.Context(), service.AskRequest{Query: query})
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, resp)
			}
			out := output.New(cmd.OutOrStdout())
			if w := cmd.OutOrStdout(); ui.IsTTY(w) && !opts.noColor && !ui.DetectNoColor() {
				out.WithMarkdown(ui.TerminalWidth(w))
			}
			out.Answer(resp)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
