package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Mohsinsiddi/swapdeploy/internal/deploy"
	"github.com/Mohsinsiddi/swapdeploy/internal/tasks"
	"github.com/Mohsinsiddi/swapdeploy/internal/ui"
	"github.com/spf13/cobra"
)

var (
	deployTags        []string
	deployReset       bool
	deployInteractive bool
)

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Run the deploy tasks against a network",
	Long: `Run the registered deploy tasks in order. A task that already completed on
the network is skipped unless --reset is given; unchanged contracts are reused
either way.

Every task's required settings are checked before the first transaction.`,
	Example: `  swapdeploy deploy
  swapdeploy deploy --tags swap --network bscTestnet
  swapdeploy deploy --interactive`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		registry := tasks.Registry()

		tags := deployTags
		if deployInteractive {
			picked, err := ui.PickMany("Select tags to deploy", tagItems(registry))
			if err != nil {
				return err
			}
			if picked == nil {
				fmt.Fprintln(out, ui.Meta("Cancelled."))
				return nil
			}
			tags = picked
		}

		env, closeEnv, err := openEnvironment(cmd.Context())
		if err != nil {
			return err
		}
		defer closeEnv()

		fmt.Fprintln(out, ui.Banner(Version))
		fmt.Fprintf(out, "%s %s %s\n\n", ui.Meta("network"), ui.NetworkName(env.Network.Name), ui.Meta(fmt.Sprintf("(chain %s, run %s)", env.ChainID(), env.RunID)))

		runner := &deploy.Runner{Registry: registry}
		results, err := runner.Run(cmd.Context(), env, deploy.RunOptions{Tags: tags, Reset: deployReset})
		if len(results) > 0 {
			printResults(out, results)
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(out, ui.Success("Deploy complete"))
		fmt.Fprintln(out, ui.Hint("List deployments with: swapdeploy deployments list"))
		return nil
	},
}

// tagItems lists the registry's tags with the tasks carrying each.
func tagItems(r *deploy.Registry) []ui.PickerItem {
	var items []ui.PickerItem
	for _, tag := range r.Tags() {
		var ids []string
		for _, t := range r.Select([]string{tag}) {
			ids = append(ids, t.ID)
		}
		items = append(items, ui.PickerItem{Label: tag, SubLabel: strings.Join(ids, ", "), Value: tag})
	}
	return items
}

func printResults(w io.Writer, results []deploy.Result) {
	t := ui.NewTable([]ui.Column{
		{Title: "Task", Width: 20},
		{Title: "Status", Width: 10},
		{Title: "Took", Width: 10},
	})
	for _, r := range results {
		took := ""
		if r.Status != deploy.StatusSkipped {
			took = r.Duration.Round(time.Millisecond).String()
		}
		t.AddRow(ui.Row{r.TaskID, r.Status.String(), took})
	}
	fmt.Fprintln(w, t.Render())

	counts := make(map[deploy.Status]int)
	for _, r := range results {
		counts[r.Status]++
	}
	var parts []string
	for _, s := range []deploy.Status{deploy.StatusExecuted, deploy.StatusSkipped, deploy.StatusFailed} {
		if counts[s] > 0 {
			parts = append(parts, ui.Val(fmt.Sprint(counts[s]))+" "+ui.Status(s.String()))
		}
	}
	fmt.Fprintln(w, strings.Join(parts, ", "))
}

func init() {
	deployCmd.Flags().StringSliceVarP(&deployTags, "tags", "t", nil, "only run tasks with these tags (comma separated)")
	deployCmd.Flags().BoolVar(&deployReset, "reset", false, "run tasks even if they already completed on this network")
	deployCmd.Flags().BoolVarP(&deployInteractive, "interactive", "i", false, "pick tags interactively")
	deployCmd.MarkFlagsMutuallyExclusive("tags", "interactive")
}
