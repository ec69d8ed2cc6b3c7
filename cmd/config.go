package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/Mohsinsiddi/swapdeploy/internal/config"
	"github.com/Mohsinsiddi/swapdeploy/internal/ui"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configInitForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the resolved configuration (private keys masked)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		data, err := yaml.Marshal(cfg.Redacted())
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s\n\n", ui.StyleTitle.Render("Current Configuration"))
		fmt.Fprintln(out, string(data))
		fmt.Fprintln(out, ui.Meta("Project directory: "+cfg.Root()))

		if err := cfg.Validate(network); err != nil {
			fmt.Fprintln(out, ui.Warn("Not ready to deploy:"))
			fmt.Fprintln(out, err.Error())
		}
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter swapdeploy.yaml",
	Long: `Write a swapdeploy.yaml with the built-in defaults to the project directory.
Network urls, accounts and the treasury stay as ${VAR} references so secrets
remain in the environment or .env.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		path := cfgFile
		if path == "" {
			path = filepath.Join(cfg.Root(), "swapdeploy.yaml")
		}
		_, err := os.Stat(path)
		switch {
		case err == nil && !configInitForce:
			if !ui.Confirm(cmd.InOrStdin(), out, path+" already exists. Overwrite?") {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
		case err != nil && !errors.Is(err, fs.ErrNotExist):
			return err
		}
		if err := config.Template().Save(path); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
		fmt.Fprintln(out, ui.Success("Wrote "+path))
		fmt.Fprintln(out, ui.Hint(fmt.Sprintf("Set %s, %s and %s in .env, then run: swapdeploy deploy",
			config.EnvAPIURL, config.EnvPrivateKey, config.EnvTreasury)))
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "overwrite an existing file")
	configCmd.AddCommand(configShowCmd, configInitCmd)
}
