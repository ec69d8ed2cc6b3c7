package deploy

import (
	"context"
	"fmt"

	"github.com/Mohsinsiddi/swapdeploy/internal/artifact"
	"github.com/Mohsinsiddi/swapdeploy/internal/config"
	"github.com/Mohsinsiddi/swapdeploy/internal/wallet"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Factory deploys fresh instances of one contract. Unlike Environment.Deploy
// it keeps no records and never reuses an existing deployment.
type Factory struct {
	env    *Environment
	art    *artifact.Artifact
	signer *wallet.Signer
}

// Contract is a contract instance created by a Factory.
type Contract struct {
	address common.Address
	txHash  common.Hash
	Name    string
	GasUsed uint64
}

// Address returns the deployed contract's address.
func (c *Contract) Address() common.Address { return c.address }

// TxHash returns the creation transaction's hash.
func (c *Contract) TxHash() common.Hash { return c.txHash }

// ContractFactory returns a factory for the named artifact, bound to the
// first signer until Connect is called.
func (e *Environment) ContractFactory(name string) (*Factory, error) {
	art, err := e.artifact(name)
	if err != nil {
		return nil, err
	}
	f := &Factory{env: e, art: art}
	if len(e.signers) > 0 {
		f.signer = e.signers[0]
	}
	return f, nil
}

// Connect returns a copy of the factory that deploys from signer.
func (f *Factory) Connect(signer *wallet.Signer) *Factory {
	out := *f
	out.signer = signer
	return &out
}

// Deploy sends the creation transaction with the given constructor args and
// waits for it to be mined.
func (f *Factory) Deploy(ctx context.Context, args ...any) (*Contract, error) {
	if f.signer == nil {
		return nil, fmt.Errorf("deploying %s: %w (set %s)", f.art.ContractName, wallet.ErrNoAccounts, config.EnvPrivateKey)
	}
	data, err := f.art.DeployData(args...)
	if err != nil {
		return nil, fmt.Errorf("deploying %s: %w", f.art.ContractName, err)
	}
	from := f.signer.Address()
	receipt, nonce, err := f.env.transact(ctx, f.art.ContractName, from, nil, data, 0, config.GasLimitContractDeploy, false)
	if err != nil {
		return nil, fmt.Errorf("deploying %s: %w", f.art.ContractName, err)
	}
	if want := crypto.CreateAddress(from, nonce); receipt.ContractAddress != want {
		return nil, fmt.Errorf("deploying %s: %w: receipt has %s, expected %s",
			f.art.ContractName, ErrAddressMismatch, receipt.ContractAddress.Hex(), want.Hex())
	}
	f.env.Log.Debug().Str("contract", f.art.ContractName).Str("address", receipt.ContractAddress.Hex()).
		Uint64("gas", receipt.GasUsed).Msg("contract created")
	return &Contract{
		address: receipt.ContractAddress,
		txHash:  receipt.TxHash,
		Name:    f.art.ContractName,
		GasUsed: receipt.GasUsed,
	}, nil
}
