package deploy

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/Mohsinsiddi/swapdeploy/internal/config"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// DeployOptions describes one named deployment.
type DeployOptions struct {
	From     string // named account or hex address; default "deployer"
	Contract string // artifact name; default is the deployment name
	Args     []any  // constructor arguments (ignored for proxied deployments' proxy)
	Log      bool
	Proxy    *ProxyOptions

	// SkipIfAlreadyDeployed reuses an existing record even when the bytecode
	// or the constructor arguments changed.
	SkipIfAlreadyDeployed bool
	// GasLimit overrides gas estimation.
	GasLimit uint64
}

// MethodCall is a method invocation encoded against the implementation ABI.
type MethodCall struct {
	MethodName string
	Args       []any
}

// Deploy deploys the contract named by opts (default: name) and records it
// as name. An unchanged contract whose code is still on chain is reused.
func (e *Environment) Deploy(ctx context.Context, name string, opts DeployOptions) (*Deployment, error) {
	if opts.Proxy != nil {
		return e.deployProxy(ctx, name, opts)
	}
	from, err := e.resolveAccount(ctx, opts.From)
	if err != nil {
		return nil, fmt.Errorf("deploying %s: %w", name, err)
	}
	contract := opts.Contract
	if contract == "" {
		contract = name
	}
	return e.deployContract(ctx, name, creation{
		contract: contract,
		from:     from,
		args:     opts.Args,
		gasLimit: opts.GasLimit,
		fallback: config.GasLimitContractDeploy,
		log:      opts.Log,
		skip:     opts.SkipIfAlreadyDeployed,
		reuse:    true,
	})
}

// Get returns the recorded deployment for name.
func (e *Environment) Get(name string) (*Deployment, bool, error) {
	return e.Records.Get(name)
}

type creation struct {
	contract string
	from     common.Address
	args     []any
	gasLimit uint64
	fallback uint64
	log      bool
	skip     bool // reuse any live record, changed or not
	reuse    bool // reuse a live record when nothing changed
}

func (e *Environment) deployContract(ctx context.Context, name string, c creation) (*Deployment, error) {
	art, err := e.artifact(c.contract)
	if err != nil {
		return nil, fmt.Errorf("deploying %s: %w", name, err)
	}
	packed, err := art.PackConstructor(c.args...)
	if err != nil {
		return nil, fmt.Errorf("deploying %s: %w", name, err)
	}
	argsData := hexutil.Encode(packed)

	if c.reuse || c.skip {
		prev, ok, err := e.Records.Get(name)
		if err != nil {
			return nil, err
		}
		if ok {
			live, err := e.isLive(ctx, prev.Address)
			if err != nil {
				return nil, err
			}
			unchanged := prev.BytecodeHash == art.BytecodeHash() && prev.ArgsData == argsData
			if live && (c.skip || unchanged) {
				if c.log {
					e.Log.Info().Str("contract", name).Str("address", prev.Address.Hex()).
						Msgf("reusing %q at %s", name, prev.Address.Hex())
				}
				prev.Newly = false
				return prev, nil
			}
		}
	}

	data := make([]byte, 0, len(art.Bytecode)+len(packed))
	data = append(append(data, art.Bytecode...), packed...)

	receipt, nonce, err := e.transact(ctx, name, c.from, nil, data, c.gasLimit, c.fallback, c.log)
	if err != nil {
		return nil, fmt.Errorf("deploying %s: %w", name, err)
	}
	if want := crypto.CreateAddress(c.from, nonce); receipt.ContractAddress != want {
		return nil, fmt.Errorf("deploying %s: %w: receipt has %s, expected %s",
			name, ErrAddressMismatch, receipt.ContractAddress.Hex(), want.Hex())
	}

	d := &Deployment{
		Address:         receipt.ContractAddress,
		ABI:             art.RawABI,
		TransactionHash: receipt.TxHash,
		Contract:        art.ContractName,
		SourceName:      art.SourceName,
		Deployer:        c.from,
		Args:            formatArgs(c.args),
		ArgsData:        argsData,
		BytecodeHash:    art.BytecodeHash(),
		GasUsed:         receipt.GasUsed,
		DeployedAt:      time.Now().Unix(),
		Newly:           true,
	}
	if receipt.BlockNumber != nil {
		d.BlockNumber = receipt.BlockNumber.Uint64()
	}
	if err := e.Records.Save(name, d); err != nil {
		return nil, fmt.Errorf("recording %s: %w", name, err)
	}
	if c.log {
		e.Log.Info().Str("contract", name).Str("address", d.Address.Hex()).Uint64("gas", d.GasUsed).
			Msgf("deployed at %s with %d gas", d.Address.Hex(), d.GasUsed)
	}
	return d, nil
}

// transact signs and sends one EIP-1559 transaction from `from` and waits for
// it to be mined. A nil `to` creates a contract. It returns the receipt and the
// nonce the transaction used.
func (e *Environment) transact(ctx context.Context, label string, from common.Address, to *common.Address, data []byte, gasLimit, fallback uint64, log bool) (*types.Receipt, uint64, error) {
	signer, err := e.signerFor(from)
	if err != nil {
		return nil, 0, err
	}
	p, err := e.Backend.TxParams(ctx, from)
	if err != nil {
		return nil, 0, err
	}

	gas := gasLimit
	if gas == 0 {
		gas, err = e.Backend.EstimateGas(ctx, from, to, data)
		if err != nil {
			e.Log.Warn().Err(err).Str("contract", label).Uint64("gas", fallback).Msg("gas estimation failed, using fallback limit")
			gas = fallback
		}
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   p.ChainID,
		Nonce:     p.Nonce,
		GasTipCap: p.GasPrice,
		GasFeeCap: new(big.Int).Mul(p.GasPrice, big.NewInt(2)),
		Gas:       gas,
		To:        to,
		Value:     big.NewInt(0),
		Data:      data,
	})
	signed, err := signer.SignTx(tx, p.ChainID)
	if err != nil {
		return nil, 0, err
	}
	hash, err := e.Backend.SendTx(ctx, signed)
	if err != nil {
		return nil, 0, fmt.Errorf("broadcasting transaction: %w", err)
	}
	if log {
		verb := "executing"
		if to == nil {
			verb = "deploying"
		}
		e.Log.Info().Str("contract", label).Str("tx", hash.Hex()).Msgf("%s %q (tx: %s)...", verb, label, hash.Hex())
	} else {
		e.Log.Debug().Str("contract", label).Str("tx", hash.Hex()).Uint64("nonce", p.Nonce).Msg("transaction sent")
	}

	wctx, cancel := context.WithTimeout(ctx, e.deployTimeout())
	defer cancel()
	receipt, err := e.Backend.WaitForReceipt(wctx, hash)
	return receipt, p.Nonce, err
}

// isLive reports whether code exists at addr.
func (e *Environment) isLive(ctx context.Context, addr common.Address) (bool, error) {
	code, err := e.Backend.Code(ctx, addr)
	if err != nil {
		return false, fmt.Errorf("checking code at %s: %w", addr.Hex(), err)
	}
	return len(code) > 0, nil
}

func formatArgs(args []any) []string {
	out := make([]string, len(args))
	for i, a := range args {
		switch v := a.(type) {
		case common.Address:
			out[i] = v.Hex()
		case *common.Address:
			out[i] = v.Hex()
		case []byte:
			out[i] = hexutil.Encode(v)
		case *big.Int:
			out[i] = v.String()
		default:
			out[i] = fmt.Sprint(v)
		}
	}
	return out
}
