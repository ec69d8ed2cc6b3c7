// Package scripts holds one-off deploy scripts. Unlike tasks they keep no
// deployment records and deploy fresh instances on every run.
package scripts

import (
	"context"
	"fmt"
	"io"

	"github.com/Mohsinsiddi/swapdeploy/internal/deploy"
	"github.com/Mohsinsiddi/swapdeploy/internal/wallet"
)

// Runtime is what a script needs from the deploy environment.
type Runtime interface {
	Signers(ctx context.Context) ([]*wallet.Signer, error)
	ContractFactory(name string) (*deploy.Factory, error)
}

// Artifact names deployed by DeployTokens.
const (
	TokenContract = "Token"
	SwapContract  = "SwapContract"
)

// tokens are deployed in order before the swap contract.
var tokens = []struct{ name, symbol string }{
	{"TokenA", "TKA"},
	{"TokenB", "TKB"},
}

// DeployTokens deploys two Token instances and a SwapContract owned by the
// first signer, then writes the swap and signer addresses to out. The first
// failure aborts the sequence.
func DeployTokens(ctx context.Context, rt Runtime, out io.Writer) error {
	signers, err := rt.Signers(ctx)
	if err != nil {
		return err
	}
	signer := signers[0]

	tokenFactory, err := rt.ContractFactory(TokenContract)
	if err != nil {
		return err
	}
	swapFactory, err := rt.ContractFactory(SwapContract)
	if err != nil {
		return err
	}
	tokenFactory = tokenFactory.Connect(signer)
	swapFactory = swapFactory.Connect(signer)

	for _, tk := range tokens {
		if _, err := tokenFactory.Deploy(ctx, tk.name, tk.symbol); err != nil {
			return fmt.Errorf("%s: %w", tk.name, err)
		}
	}
	swap, err := swapFactory.Deploy(ctx, signer.Address())
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(out, "%s \n%s\n", swap.Address().Hex(), signer.Address().Hex())
	return err
}
