// Package cmd provides the CLI commands for markrag.
package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/markrag/internal/config"
	"github.com/Aman-CERP/markrag/internal/logging"
	"github.com/Aman-CERP/markrag/internal/profiling"
	"github.com/Aman-CERP/markrag/pkg/version"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	debug      bool
	noColor    bool

	profile  profiling.Options
	profiler *profiling.Session
}

// NewRootCmd creates the root command for the markrag CLI.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "markrag",
		Short: "Hybrid search and answers over your browser bookmarks",
		Long: `markrag indexes a Chromium bookmark file into a local SQLite store and
serves hybrid keyword + semantic search and RAG answers over it.

Run 'markrag serve' to start the background daemon that watches the
bookmark file, or use any command directly and it will run in-process.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetVersionTemplate("markrag version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to a config file")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Log at debug level and tee logs to stderr")
	cmd.PersistentFlags().BoolVar(&opts.noColor, "no-color", false, "Disable colored output")
	cmd.PersistentFlags().StringVar(&opts.profile.CPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&opts.profile.Heap, "profile-mem", "", "Write heap profile to file on exit")
	cmd.PersistentFlags().StringVar(&opts.profile.Trace, "profile-trace", "", "Write execution trace to file")
	cmd.PersistentPreRunE = opts.startProfiling
	cmd.PersistentPostRunE = opts.stopProfiling

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newStopCmd(opts))
	cmd.AddCommand(newMCPCmd(opts))
	cmd.AddCommand(newIndexCmd(opts))
	cmd.AddCommand(newSearchCmd(opts))
	cmd.AddCommand(newAskCmd(opts))
	cmd.AddCommand(newStatusCmd(opts))
	cmd.AddCommand(newAttachCmd(opts))
	cmd.AddCommand(newConfigCmd(opts))
	cmd.AddCommand(newDoctorCmd(opts))
	cmd.AddCommand(newStatsCmd(opts))
	cmd.AddCommand(newValidateCmd(opts))
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command until it finishes or the process is
// interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCmd().ExecuteContext(ctx)
}

func (o *globalOptions) startProfiling(*cobra.Command, []string) error {
	if !o.profile.Enabled() {
		return nil
	}
	s, err := profiling.Start(o.profile)
	if err != nil {
		return err
	}
	o.profiler = s
	return nil
}

func (o *globalOptions) stopProfiling(*cobra.Command, []string) error {
	if o.profiler == nil {
		return nil
	}
	err := o.profiler.Stop()
	o.profiler = nil
	return err
}

// logPath is the log file inside the data directory.
func logPath() string {
	return filepath.Join(config.DataDir(), "logs", "markrag.log")
}

// setup loads the configuration and opens the log file. stdioSafe keeps
// stderr quiet even with --debug, for commands whose stdio carries a
// protocol.
func (o *globalOptions) setup(stdioSafe bool) (*config.Config, *slog.Logger, func(), error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, nil, err
	}

	logCfg := logging.DefaultConfig()
	logCfg.FilePath = logPath()
	logCfg.Level = cfg.Logging.Level
	logCfg.MaxSizeMB = cfg.Logging.MaxSizeMB
	logCfg.MaxFiles = cfg.Logging.MaxFiles
	if o.debug {
		logCfg.Level = "debug"
		logCfg.WriteToStderr = !stdioSafe
	}

	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		// Logging is best effort; the command still runs.
		return cfg, logging.Discard(), func() {}, nil
	}
	slog.SetDefault(logger)
	return cfg, logger, cleanup, nil
}
