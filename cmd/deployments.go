package cmd

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Mohsinsiddi/swapdeploy/internal/deploy"
	"github.com/Mohsinsiddi/swapdeploy/internal/ui"
	"github.com/spf13/cobra"
)

var deploymentsShowJSON bool

var deploymentsCmd = &cobra.Command{
	Use:     "deployments",
	Aliases: []string{"deps"},
	Short:   "Inspect recorded deployments",
}

var deploymentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the deployments recorded for the network",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		records, name, err := openRecords()
		if err != nil {
			return err
		}
		names, err := records.List()
		if err != nil {
			return err
		}
		if len(names) == 0 {
			fmt.Fprintln(out, ui.Info(fmt.Sprintf("No deployments recorded for %s yet.", name)))
			fmt.Fprintln(out, ui.Hint("Deploy with: swapdeploy deploy --network "+name))
			return nil
		}

		t := ui.NewTable([]ui.Column{
			{Title: "Name", Width: 24},
			{Title: "Address", Width: 42},
			{Title: "Contract", Width: 16},
			{Title: "Implementation", Width: 14},
		})
		for _, n := range names {
			d, _, err := records.Get(n)
			if err != nil {
				return err
			}
			impl := ""
			if d.Implementation != nil {
				impl = ui.TruncateAddr(d.Implementation.Hex())
			}
			t.AddRow(ui.Row{n, d.Address.Hex(), d.Contract, impl})
		}
		fmt.Fprintln(out, t.Render())
		fmt.Fprintln(out, ui.Meta(fmt.Sprintf("%d deployment(s) on %s", len(names), name)))
		return nil
	},
}

var deploymentsShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show one deployment record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		records, network, err := openRecords()
		if err != nil {
			return err
		}
		d, ok, err := records.Get(args[0])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("no deployment named %q on %s (see: swapdeploy deployments list)", args[0], network)
		}

		if deploymentsShowJSON {
			data, err := json.MarshalIndent(d, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(data))
			return nil
		}
		fmt.Fprintln(out, ui.KeyValueBlock(args[0], deploymentPairs(d)))
		return nil
	},
}

// deploymentPairs lists the record fields worth showing, skipping empty ones.
func deploymentPairs(d *deploy.Deployment) [][2]string {
	pairs := [][2]string{
		{"Address", d.Address.Hex()},
		{"Contract", d.Contract},
	}
	add := func(k, v string) {
		if v != "" {
			pairs = append(pairs, [2]string{k, v})
		}
	}
	add("Source", d.SourceName)
	if d.Implementation != nil {
		add("Implementation", d.Implementation.Hex())
	}
	if d.Admin != nil {
		add("Proxy admin", d.Admin.Hex())
	}
	add("Deployer", d.Deployer.Hex())
	add("Transaction", d.TransactionHash.Hex())
	if d.BlockNumber > 0 {
		add("Block", fmt.Sprint(d.BlockNumber))
	}
	if d.GasUsed > 0 {
		add("Gas used", fmt.Sprint(d.GasUsed))
	}
	if len(d.Args) > 0 {
		add("Args", strings.Join(d.Args, ", "))
	}
	if d.DeployedAt > 0 {
		add("Deployed", time.Unix(d.DeployedAt, 0).UTC().Format(time.RFC3339))
	}
	return pairs
}

// openRecords opens the deployment records of the selected network. It needs
// no RPC connection.
func openRecords() (*deploy.Records, string, error) {
	n, err := cfg.Network(network)
	if err != nil {
		return nil, "", err
	}
	return deploy.OpenRecords(cfg.DeploymentsDir(), n.Name), n.Name, nil
}

func init() {
	deploymentsShowCmd.Flags().BoolVar(&deploymentsShowJSON, "json", false, "print the raw record")
	deploymentsCmd.AddCommand(deploymentsListCmd, deploymentsShowCmd)
}
