// Package tasks holds the project's deploy tasks.
package tasks

import (
	"context"
	"fmt"

	"github.com/Mohsinsiddi/swapdeploy/internal/config"
	"github.com/Mohsinsiddi/swapdeploy/internal/deploy"
	"github.com/ethereum/go-ethereum/common"
)

// Identifiers of the Swap proxy task.
const (
	SwapTaskID   = "deploy_swap"
	SwapTag      = "swap"
	SwapContract = "Swap"
	SwapInit     = "initialize"
)

// SwapTask deploys Swap behind an OpenZeppelin transparent proxy and calls
// initialize(treasury) through it on first deploy.
func SwapTask() *deploy.Task {
	return &deploy.Task{
		ID:       SwapTaskID,
		Tags:     []string{SwapTag},
		Requires: []string{config.EnvTreasury},
		Run:      deploySwap,
	}
}

// All returns every task in execution order.
func All() []*deploy.Task {
	return []*deploy.Task{SwapTask()}
}

// Registry returns a registry holding All.
func Registry() *deploy.Registry {
	return deploy.NewRegistry(All()...)
}

func deploySwap(ctx context.Context, env *deploy.Environment) error {
	accounts, err := env.NamedAccounts(ctx)
	if err != nil {
		return err
	}
	deployer, ok := accounts["deployer"]
	if !ok {
		return fmt.Errorf("%w: %q", deploy.ErrUnknownAccount, "deployer")
	}

	d, err := env.Deploy(ctx, SwapContract, deploy.DeployOptions{
		From: deployer.Hex(),
		Log:  true,
		Proxy: &deploy.ProxyOptions{
			ProxyContract: deploy.ProxyOpenZeppelinTransparent,
			Execute: &deploy.ProxyExecute{
				Init: &deploy.MethodCall{
					MethodName: SwapInit,
					Args:       []any{treasury(env.Config)},
				},
			},
		},
	})
	if err != nil {
		return err
	}
	env.Log.Info().Msgf("Swap contract deployed: %s", d.Address.Hex())
	return nil
}

// treasury returns the configured treasury, or the zero address when unset.
func treasury(cfg *config.Config) common.Address {
	if cfg.TreasuryAddress == "" {
		return common.Address{}
	}
	return common.HexToAddress(cfg.TreasuryAddress)
}
