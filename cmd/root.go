package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/99designs/keyring"
	"github.com/Mohsinsiddi/swapdeploy/internal/chain"
	"github.com/Mohsinsiddi/swapdeploy/internal/config"
	"github.com/Mohsinsiddi/swapdeploy/internal/deploy"
	"github.com/Mohsinsiddi/swapdeploy/internal/rpc"
	"github.com/Mohsinsiddi/swapdeploy/internal/ui"
	"github.com/Mohsinsiddi/swapdeploy/internal/wallet"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// Version is the current release. Overridable via build ldflags:
//
//	go build -ldflags "-X github.com/Mohsinsiddi/swapdeploy/cmd.Version=1.2.3" .
var Version = "0.1.0"

var (
	projectDir string
	cfgFile    string
	envFile    string
	network    string
	verbose    bool

	cfg *config.Config
	log zerolog.Logger
)

// rootCmd is the top-level command.
var rootCmd = &cobra.Command{
	Use:   "swapdeploy",
	Short: "Deploy the Swap and Token contracts to EVM networks",
	Long: `swapdeploy deploys compiled Hardhat or Foundry artifacts to an EVM network.

  deploy               run the tagged deploy tasks (Swap behind a transparent proxy)
  run deploy-tokens    deploy TokenA, TokenB and a SwapContract directly

Configuration comes from swapdeploy.yaml in the project directory when present,
otherwise from the environment (or .env): API_URL, PRIVATE_KEY, TREASURY_ADDRESS.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}
		log = newLogger(cmd.ErrOrStderr(), verbose)

		var err error
		cfg, err = config.Load(config.LoadOptions{Dir: projectDir, File: cfgFile, EnvFile: envFile})
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		return nil
	},
}

// Execute runs the root command. Interrupts cancel the running deployment
// between RPC calls.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, ui.Err(err.Error()))
		os.Exit(1)
	}
}

func init() {
	// SWAPDEPLOY_DIR env var sets the default for --dir.
	if envDir := os.Getenv("SWAPDEPLOY_DIR"); envDir != "" {
		projectDir = envDir
	}

	rootCmd.PersistentFlags().StringVar(&projectDir, "dir", projectDir, "project directory (default: current directory)")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: <dir>/swapdeploy.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file (default: <dir>/.env)")
	rootCmd.PersistentFlags().StringVarP(&network, "network", "n", "", "network to use (default: the config's default_network)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(
		deployCmd,
		runCmd,
		deploymentsCmd,
		configCmd,
		keyCmd,
	)
}

// newLogger returns the console logger used for deploy progress.
func newLogger(w io.Writer, verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	out := zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// openKeystore returns the key storage used for "keyring:<name>" accounts.
func openKeystore() (wallet.KeyStore, error) {
	if dir := os.Getenv(config.EnvKeystoreDir); dir != "" {
		ks, err := wallet.NewFileKeystore(dir, keyring.FixedStringPrompt(os.Getenv(config.EnvKeystorePassword)))
		if err != nil {
			return nil, err
		}
		return ks, nil
	}
	return wallet.DefaultKeystore(), nil
}

// openEnvironment validates the selected network, resolves its signers and
// connects the deploy runtime to it. The returned func closes the connection.
func openEnvironment(ctx context.Context) (*deploy.Environment, func(), error) {
	if err := cfg.Validate(network); err != nil {
		return nil, nil, err
	}
	n, err := cfg.Network(network)
	if err != nil {
		return nil, nil, err
	}

	var ks wallet.KeyStore
	for _, a := range n.Accounts {
		if strings.HasPrefix(a, config.KeyringPrefix) {
			if ks, err = openKeystore(); err != nil {
				return nil, nil, err
			}
			break
		}
	}
	signers, err := wallet.ResolveKeys(n.Accounts, ks)
	if err != nil {
		return nil, nil, err
	}

	url, err := pickURL(ctx, n)
	if err != nil {
		return nil, nil, err
	}
	client, err := chain.Dial(url)
	if err != nil {
		return nil, nil, err
	}
	env, err := deploy.NewEnvironment(ctx, deploy.Options{
		Config:  cfg,
		Network: n.Name,
		Backend: client,
		Signers: signers,
		Logger:  log,
	})
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	return env, func() { client.Close() }, nil
}

// pickURL chooses among the network's primary and fallback urls.
func pickURL(ctx context.Context, n config.Network) (string, error) {
	var want uint64
	if n.ChainID > 0 {
		want = uint64(n.ChainID)
	}
	url, probed, err := rpc.Select(ctx, n.URLs(), n.RPCSelection, want)
	for _, ep := range probed {
		ev := log.Debug().Str("url", ep.URL).Dur("latency", ep.Latency).Uint64("block", ep.BlockNumber)
		if ep.Err != nil {
			ev = ev.Err(ep.Err)
		}
		ev.Msg("probed rpc endpoint")
	}
	if err != nil {
		return "", fmt.Errorf("network %s: %w", n.Name, err)
	}
	if len(probed) > 0 {
		log.Info().Str("url", url).Str("network", n.Name).Msg("using rpc endpoint")
	}
	return url, nil
}
