package cmd

import (
	"fmt"

	"github.com/Mohsinsiddi/swapdeploy/internal/scripts"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a one-off deploy script",
	Long: `Run a deploy script. Scripts deploy fresh contract instances every time
and keep no deployment records.`,
}

var runDeployTokensCmd = &cobra.Command{
	Use:   "deploy-tokens",
	Short: "Deploy TokenA, TokenB and a SwapContract owned by the first account",
	Long: `Deploy Token("TokenA", "TKA"), Token("TokenB", "TKB") and
SwapContract(<first account>) in that order, then print the SwapContract
address and the account address. The first failure stops the script.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, closeEnv, err := openEnvironment(cmd.Context())
		if err != nil {
			return err
		}
		defer closeEnv()

		// Execute reports the error once on stderr.
		if err := scripts.DeployTokens(cmd.Context(), env, cmd.OutOrStdout()); err != nil {
			return fmt.Errorf("deploy-tokens failed: %w", err)
		}
		return nil
	},
}

func init() {
	runCmd.AddCommand(runDeployTokensCmd)
}
