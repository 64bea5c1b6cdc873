package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/markrag/configs"
	"github.com/Aman-CERP/markrag/internal/config"
	"github.com/Aman-CERP/markrag/internal/output"
)

func newConfigCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or create the configuration file",
	}
	cmd.AddCommand(newConfigShowCmd(opts))
	cmd.AddCommand(newConfigInitCmd())
	return cmd
}

func newConfigShowCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		Long: `Print the configuration after applying defaults, the user config file,
--config, .env and MARKRAG_* environment variables. The API key is masked.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			if cfg.LLM.APIKey != "" {
				cfg.LLM.APIKey = "********"
			}

			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func newConfigInitCmd() *cobra.Command {
	var (
		force    bool
		defaults bool
		path     string
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration to the user config file",
		Long: `Write a commented configuration template to the user config file.
With --defaults, write every resolved default value instead.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := output.New(cmd.OutOrStdout())
			if path == "" {
				path = config.GetUserConfigPath()
			}

			if _, err := os.Stat(path); err == nil && !force {
				out.Warningf("Config already exists at %s", path)
				out.Status("", "Use --force to overwrite")
				return nil
			}

			if defaults {
				if err := config.NewConfig().WriteYAML(path); err != nil {
					return err
				}
			} else if err := writeTemplate(path); err != nil {
				return err
			}
			out.Successf("Wrote %s", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	cmd.Flags().BoolVar(&defaults, "defaults", false, "Write all resolved defaults instead of the commented template")
	cmd.Flags().StringVar(&path, "path", "", "Write to this path instead of the user config file")
	return cmd
}

func writeTemplate(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(configs.UserConfigTemplate), 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
