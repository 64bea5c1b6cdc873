package cmd

import (
	"path/filepath"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/markrag/internal/config"
	"github.com/Aman-CERP/markrag/internal/embed"
	merrors "github.com/Aman-CERP/markrag/internal/errors"
	"github.com/Aman-CERP/markrag/internal/lifecycle"
	"github.com/Aman-CERP/markrag/internal/output"
	"github.com/Aman-CERP/markrag/internal/preflight"
)

func newDoctorCmd(opts *globalOptions) *cobra.Command {
	var (
		offline    bool
		verbose    bool
		fix        bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that markrag can run",
		Long: heredoc.Doc(`
			Check the bookmarks file, the data directory, file limits, the embedding
			provider and the language model key. Exits non-zero when a required check
			fails.

			With --fix, a local Ollama server is started and the embedding model is
			pulled when the embedder check does not pass.
		`),
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}

			checker := preflight.New(
				preflight.WithOutput(cmd.OutOrStdout()),
				preflight.WithOffline(offline),
				preflight.WithVerbose(verbose),
			)
			results := checker.RunAll(cmd.Context(), cfg)

			if fix && needsEmbedderFix(cfg, results) {
				if err := fixEmbedder(cmd, cfg); err != nil {
					return err
				}
				results = checker.RunAll(cmd.Context(), cfg)
			}

			if jsonOutput {
				if err := writeJSON(cmd, results); err != nil {
					return err
				}
			} else {
				checker.PrintResults(results)
			}

			dataDir := filepath.Dir(cfg.Store.Path)
			if checker.HasCriticalFailures(results) {
				_ = preflight.ClearMarker(dataDir)
				return merrors.New(merrors.ErrCodeConfigInvalid, "system check failed", nil).
					WithSuggestion("Fix the failed checks above and run 'markrag doctor' again")
			}
			_ = preflight.MarkPassed(dataDir, preflight.Fingerprint(cfg))
			return nil
		},
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "Skip the embedding provider probe")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show check details")
	cmd.Flags().BoolVar(&fix, "fix", false, "Start Ollama and pull the embedding model if needed")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output results as JSON")
	return cmd
}

func needsEmbedderFix(cfg *config.Config, results []preflight.CheckResult) bool {
	if embed.ProviderType(cfg.Embeddings.Provider) == embed.ProviderStatic {
		return false
	}
	for _, r := range results {
		if r.Name == "embedder" && r.Status != preflight.StatusPass {
			return true
		}
	}
	return false
}

func fixEmbedder(cmd *cobra.Command, cfg *config.Config) error {
	out := output.New(cmd.ErrOrStderr())
	model := cfg.Embeddings.Model
	if model == "" {
		model = embed.DefaultOllamaModel
	}

	m := lifecycle.NewManager(cfg.Embeddings.OllamaHost)
	err := m.EnsureReady(cmd.Context(), model, lifecycle.EnsureOpts{
		AutoStart: true,
		AutoPull:  true,
		Log:       func(msg string) { out.Status("", msg) },
		Progress: func(p lifecycle.PullProgress) {
			if p.Total > 0 {
				out.Progress(int(p.Completed>>20), int(p.Total>>20), p.Status+" (MB)")
			}
		},
	})
	if err != nil {
		return err
	}
	out.Successf("Embedder ready: %s", model)
	return nil
}

// preflightOnce runs the required checks before the first daemon start for
// a configuration. Later starts skip them until the marker is cleared or
// the configuration changes.
func preflightOnce(cmd *cobra.Command, cfg *config.Config) error {
	dataDir := filepath.Dir(cfg.Store.Path)
	fp := preflight.Fingerprint(cfg)
	if !preflight.NeedsCheck(dataDir, fp) {
		return nil
	}

	checker := preflight.New(preflight.WithOutput(cmd.ErrOrStderr()), preflight.WithOffline(true))
	results := checker.RunAll(cmd.Context(), cfg)
	if checker.HasCriticalFailures(results) {
		checker.PrintResults(results)
		return merrors.New(merrors.ErrCodeConfigInvalid, "system check failed", nil).
			WithSuggestion("Run 'markrag doctor -v' for details")
	}
	return preflight.MarkPassed(dataDir, fp)
}
