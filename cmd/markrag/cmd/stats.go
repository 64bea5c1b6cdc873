package cmd

import (
	"time"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/araddon/dateparse"
	"github.com/spf13/cobra"

	merrors "github.com/Aman-CERP/markrag/internal/errors"
	"github.com/Aman-CERP/markrag/internal/output"
	"github.com/Aman-CERP/markrag/internal/store"
	"github.com/Aman-CERP/markrag/internal/telemetry"
)

func newStatsCmd(opts *globalOptions) *cobra.Command {
	var (
		jsonOutput bool
		days       int
		limit      int
		since      string
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show query statistics",
		Long: heredoc.Doc(`
			Summarise the searches and questions answered over the last days: how
			many ran, whether semantic ranking contributed, latency, the most frequent
			terms and recent queries that matched nothing.

			--since accepts most date formats ("2026-10-01", "Oct 1, 2026", "10/01/2026")
			and overrides --days.

			A running daemon writes its counters periodically (telemetry.flush_interval),
			so the latest queries may not be included yet.
		`),
		Example: heredoc.Doc(`
			markrag stats
			markrag stats --days 30 --limit 20
			markrag stats --since "Oct 1, 2026" --json
		`),
		RunE: func(cmd *cobra.Command, _ []string) error {
			now := time.Now()
			from, err := statsFrom(now, days, since)
			if err != nil {
				return err
			}
			cfg, _, cleanup, err := opts.setup(false)
			if err != nil {
				return err
			}
			defer cleanup()

			st, err := store.NewSQLiteStore(cfg.Store.Path)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			ts, err := telemetry.NewSQLiteStore(st.DB())
			if err != nil {
				return err
			}

			report, err := ts.Report(cmd.Context(), from, now.Format(time.DateOnly), limit)
			if err != nil {
				return err
			}

			if jsonOutput {
				return writeJSON(cmd, report)
			}
			printReport(output.New(cmd.OutOrStdout()), report)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().IntVar(&days, "days", 7, "Number of days to include, ending today")
	cmd.Flags().IntVar(&limit, "limit", 10, "Number of top terms and zero-result queries to list")
	cmd.Flags().StringVar(&since, "since", "", "First day to include (overrides --days)")
	return cmd
}

// statsFrom returns the first report day as YYYY-MM-DD.
func statsFrom(now time.Time, days int, since string) (string, error) {
	if since != "" {
		t, err := dateparse.ParseLocal(since)
		if err != nil {
			return "", merrors.New(merrors.ErrCodeInvalidInput, "cannot parse --since date", err).
				WithSuggestion(`Use a date such as "2026-10-01"`)
		}
		if t.After(now) {
			return "", merrors.New(merrors.ErrCodeInvalidInput, "--since is in the future", nil)
		}
		return t.Format(time.DateOnly), nil
	}
	if days < 1 {
		return "", merrors.New(merrors.ErrCodeInvalidInput, "--days must be at least 1", nil)
	}
	return now.AddDate(0, 0, -(days - 1)).Format(time.DateOnly), nil
}

func printReport(out *output.Writer, r *telemetry.Report) {
	out.Statusf("📊", "Queries %s to %s: %d", r.From, r.To, r.TotalQueries)
	if r.TotalQueries == 0 {
		out.Status("", "No queries recorded yet.")
		return
	}

	out.Statusf("", "search: %d   ask: %d", r.Kinds[telemetry.KindSearch], r.Kinds[telemetry.KindAsk])
	out.Statusf("", "hybrid: %d   keyword only: %d", r.Rankings[telemetry.RankingHybrid], r.Rankings[telemetry.RankingKeyword])

	out.Newline()
	out.Status("⏱ ", "Latency")
	for i, b := range telemetry.Buckets {
		out.Statusf("", "%-8s %d", latencyLabels[i], r.Latency[b])
	}

	if len(r.TopTerms) > 0 {
		out.Newline()
		out.Status("🔤", "Top terms")
		for _, tc := range r.TopTerms {
			out.Statusf("", "%-20s %d", tc.Term, tc.Count)
		}
	}

	if len(r.ZeroResultQueries) > 0 {
		out.Newline()
		out.Warning("Queries with no matches")
		for _, z := range r.ZeroResultQueries {
			out.Statusf("", "%s  %s", z.Timestamp.Local().Format(time.DateTime), z.Query)
		}
	}
}

// latencyLabels follows the order of telemetry.Buckets.
var latencyLabels = []string{"<10ms", "<50ms", "<100ms", "<500ms", ">=500ms"}
