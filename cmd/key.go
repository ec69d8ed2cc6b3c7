package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/Mohsinsiddi/swapdeploy/internal/config"
	"github.com/Mohsinsiddi/swapdeploy/internal/ui"
	"github.com/Mohsinsiddi/swapdeploy/internal/wallet"
	"github.com/spf13/cobra"
)

var (
	keyImportKey string
	keyRemoveYes bool
)

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage deployer keys in the OS keychain",
	Long: `Store private keys in the OS keychain instead of .env. A network account
entry "keyring:<name>" then refers to the stored key.

Set SWAPDEPLOY_KEYSTORE_DIR (and SWAPDEPLOY_KEYSTORE_PASSWORD) to use an
encrypted file keystore instead, e.g. on CI.`,
}

var keyImportCmd = &cobra.Command{
	Use:   "import <name>",
	Short: "Store a private key (read from --key or stdin)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		name := args[0]

		hexKey := keyImportKey
		if hexKey == "" {
			fmt.Fprint(cmd.ErrOrStderr(), "Private key: ")
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("reading private key: %w", err)
			}
			hexKey = strings.TrimSpace(line)
		}
		s, err := wallet.NewSigner(hexKey)
		if err != nil {
			return err
		}

		ks, err := openKeystore()
		if err != nil {
			return err
		}
		if _, err := ks.Store(name, hexKey); err != nil {
			return err
		}
		fmt.Fprintln(out, ui.Success(fmt.Sprintf("Key %q stored for %s", name, ui.Addr(s.Address().Hex()))))
		fmt.Fprintln(out, ui.Hint(fmt.Sprintf("Use it with %s=%s%s or in swapdeploy.yaml accounts", config.EnvPrivateKey, config.KeyringPrefix, name)))
		return nil
	},
}

var keyRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a stored private key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		name := args[0]
		if !keyRemoveYes && !ui.ConfirmDanger(cmd.InOrStdin(), out, fmt.Sprintf("Remove key %q?", name)) {
			fmt.Fprintln(out, ui.Meta("Cancelled."))
			return nil
		}
		ks, err := openKeystore()
		if err != nil {
			return err
		}
		if err := ks.Delete(wallet.Ref(name)); err != nil {
			if errors.Is(err, wallet.ErrKeyNotFound) {
				return fmt.Errorf("no key named %q", name)
			}
			return err
		}
		fmt.Fprintln(out, ui.Success(fmt.Sprintf("Key %q removed.", name)))
		return nil
	},
}

func init() {
	keyImportCmd.Flags().StringVar(&keyImportKey, "key", "", "hex private key (default: read from stdin)")
	keyRemoveCmd.Flags().BoolVarP(&keyRemoveYes, "yes", "y", false, "do not ask for confirmation")
	keyCmd.AddCommand(keyImportCmd, keyRemoveCmd)
}
