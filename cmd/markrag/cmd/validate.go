package cmd

import (
	"fmt"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/markrag/internal/output"
	"github.com/Aman-CERP/markrag/internal/validation"
)

func newValidateCmd(opts *globalOptions) *cobra.Command {
	var (
		jsonOutput bool
		topN       int
	)

	cmd := &cobra.Command{
		Use:   "validate <queries.yaml>",
		Short: "Check search quality against a query set",
		Long: heredoc.Doc(`
			Run every query in a YAML query set and check that the expected
			bookmarks appear in the top results. An expectation matches a bookmark ID,
			or a substring of its URL or title.

			  core:
			    - query: rust book
			      expected: ["doc.rust-lang.org"]
			  extended:
			    - query: borrow checker
			      expected: ["rust"]
			  negative:
			    - query: "???"

			The command fails when a core query misses.
		`),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			qs, err := validation.LoadQueries(args[0])
			if err != nil {
				return err
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

			res := validation.NewValidator(b, topN).Run(cmd.Context(), qs)
			if jsonOutput {
				if err := writeJSON(cmd, res); err != nil {
					return err
				}
			} else {
				printValidation(output.New(cmd.OutOrStdout()), res)
			}

			if !res.Passed() {
				core := res.Tiers[validation.TierCore]
				return fmt.Errorf("%d of %d core queries failed", core.Total-core.Passed, core.Total)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().IntVarP(&topN, "top", "n", validation.DefaultTopN, "How many results an expectation may match within")
	return cmd
}

func printValidation(out *output.Writer, res *validation.Result) {
	for _, r := range res.Results {
		label := r.Spec.Query
		if r.Spec.ID != "" {
			label = r.Spec.ID + ": " + label
		}
		switch {
		case r.Error != "":
			out.Errorf("[%s] %s (%s)", r.Spec.Tier, label, r.Error)
		case !r.Passed:
			out.Warningf("[%s] %s not in top %d", r.Spec.Tier, label, res.TopN)
		case r.MatchedAt > 0:
			out.Successf("[%s] %s at #%d (%.1fms)", r.Spec.Tier, label, r.MatchedAt, r.DurationMS)
		default:
			out.Successf("[%s] %s (%.1fms)", r.Spec.Tier, label, r.DurationMS)
		}
	}

	out.Newline()
	for _, tier := range []validation.Tier{validation.TierCore, validation.TierExtended, validation.TierNegative} {
		if s := res.Tiers[tier]; s != nil {
			out.Statusf("", "%-9s %d/%d", tier, s.Passed, s.Total)
		}
	}
	out.Statusf("", "MRR       %.3f", res.MRR)
}
