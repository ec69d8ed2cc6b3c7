// Package deploy is the deployment runtime: it resolves named accounts,
// deploys contracts (optionally behind an OpenZeppelin transparent proxy),
// keeps per-network deployment records and runs tagged deploy tasks.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/Mohsinsiddi/swapdeploy/internal/artifact"
	"github.com/Mohsinsiddi/swapdeploy/internal/chain"
	"github.com/Mohsinsiddi/swapdeploy/internal/config"
	"github.com/Mohsinsiddi/swapdeploy/internal/wallet"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/lmittmann/w3"
	"github.com/rs/zerolog"
)

// Errors.
var (
	ErrChainMismatch    = errors.New("chain id mismatch")
	ErrNoSigner         = errors.New("no signer for account")
	ErrUnknownAccount   = errors.New("unknown named account")
	ErrAddressMismatch  = errors.New("created address does not match sender nonce")
	ErrUnsupportedProxy = errors.New("unsupported proxy contract")
	ErrNotAdminOwner    = errors.New("signer does not own the proxy admin")
	ErrNoAdminProxy     = errors.New("shared proxy admin needs proxy.admin_proxy_artifact")
	ErrAdminMismatch    = errors.New("proxy admin slot does not hold the shared admin")
)

// Backend is the chain access the runtime needs. *chain.Client implements it.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	TxParams(ctx context.Context, from common.Address) (*chain.TxParams, error)
	EstimateGas(ctx context.Context, from common.Address, to *common.Address, data []byte) (uint64, error)
	SendTx(ctx context.Context, tx *types.Transaction) (common.Hash, error)
	WaitForReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	Code(ctx context.Context, addr common.Address) ([]byte, error)
	StorageAt(ctx context.Context, addr common.Address, slot common.Hash) (common.Hash, error)
	CallFunc(ctx context.Context, to common.Address, fn *w3.Func, args []any, returns ...any) error
}

// Options configures NewEnvironment.
type Options struct {
	Config  *config.Config
	Network string // empty selects the default network
	Backend Backend
	Signers []*wallet.Signer
	Store   *artifact.Store // default: artifact store at Config.ArtifactsDir()
	Logger  zerolog.Logger
	RunID   string // default: a fresh uuid
}

// Environment is what deploy tasks and scripts run against. It is built once
// per run from an explicit Config; nothing in it reads the process environment.
type Environment struct {
	Config  *config.Config
	Network config.Network
	Backend Backend
	Store   *artifact.Store
	Records *Records
	Log     zerolog.Logger
	RunID   string

	chainID *big.Int
	signers []*wallet.Signer

	mu       sync.Mutex
	checked  map[string]bool // artifacts whose compiler version was checked
	accounts map[string]common.Address
}

// NewEnvironment connects the runtime to the selected network. It fails when
// the node's chain id differs from the configured one or from the chain the
// existing deployment records were written for.
func NewEnvironment(ctx context.Context, opts Options) (*Environment, error) {
	if opts.Config == nil {
		return nil, errors.New("deploy: nil config")
	}
	if opts.Backend == nil {
		return nil, errors.New("deploy: nil backend")
	}
	network, err := opts.Config.Network(opts.Network)
	if err != nil {
		return nil, err
	}

	chainID, err := opts.Backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", network.Name, err)
	}
	if network.ChainID != 0 && network.ChainID != chainID.Int64() {
		return nil, fmt.Errorf("%w: network %s is configured for chain %d but the node reports %s",
			ErrChainMismatch, network.Name, network.ChainID, chainID)
	}

	records := OpenRecords(opts.Config.DeploymentsDir(), network.Name)
	switch recorded, ok, err := records.ChainID(); {
	case err != nil:
		return nil, err
	case !ok:
		if err := records.SetChainID(chainID.Int64()); err != nil {
			return nil, fmt.Errorf("writing chain id: %w", err)
		}
	case recorded != chainID.Int64():
		return nil, fmt.Errorf("%w: records in %s are for chain %d but the node reports %s",
			ErrChainMismatch, records.Dir(), recorded, chainID)
	}

	store := opts.Store
	if store == nil {
		store = artifact.NewStore(opts.Config.ArtifactsDir())
	}
	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	return &Environment{
		Config:  opts.Config,
		Network: network,
		Backend: opts.Backend,
		Store:   store,
		Records: records,
		Log:     opts.Logger.With().Str("run", runID).Str("network", network.Name).Logger(),
		RunID:   runID,
		chainID: chainID,
		signers: opts.Signers,
		checked: make(map[string]bool),
	}, nil
}

// ChainID returns the connected chain's id.
func (e *Environment) ChainID() *big.Int {
	return new(big.Int).Set(e.chainID)
}

// Signers returns the network's signing accounts in configuration order.
func (e *Environment) Signers(ctx context.Context) ([]*wallet.Signer, error) {
	if len(e.signers) == 0 {
		return nil, fmt.Errorf("%w (set %s)", wallet.ErrNoAccounts, config.EnvPrivateKey)
	}
	return append([]*wallet.Signer(nil), e.signers...), nil
}

// NamedAccounts resolves the configured named accounts (e.g. "deployer")
// to addresses.
func (e *Environment) NamedAccounts(ctx context.Context) (map[string]common.Address, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.accounts == nil {
		accounts, err := wallet.NamedAccounts(e.Config.NamedAccounts, e.signers)
		if err != nil {
			return nil, err
		}
		e.accounts = accounts
	}
	out := make(map[string]common.Address, len(e.accounts))
	for k, v := range e.accounts {
		out[k] = v
	}
	return out, nil
}

// resolveAccount turns a named account or a hex address into an address.
// An empty value selects the "deployer" named account.
func (e *Environment) resolveAccount(ctx context.Context, v string) (common.Address, error) {
	if v == "" {
		v = "deployer"
	}
	if common.IsHexAddress(v) {
		return common.HexToAddress(v), nil
	}
	accounts, err := e.NamedAccounts(ctx)
	if err != nil {
		return common.Address{}, err
	}
	addr, ok := accounts[v]
	if !ok {
		return common.Address{}, fmt.Errorf("%w: %q", ErrUnknownAccount, v)
	}
	return addr, nil
}

func (e *Environment) signerFor(addr common.Address) (*wallet.Signer, error) {
	for _, s := range e.signers {
		if s.Address() == addr {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w %s", ErrNoSigner, addr.Hex())
}

// artifact loads a contract artifact and warns once when it was built with a
// compiler other than the configured one.
func (e *Environment) artifact(name string) (*artifact.Artifact, error) {
	a, err := e.Store.Get(name)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	seen := e.checked[name]
	e.checked[name] = true
	e.mu.Unlock()
	if !seen && e.Config.Solidity != "" {
		v, err := a.CompilerVersion()
		switch {
		case err != nil:
			e.Log.Debug().Err(err).Str("contract", name).Msg("cannot read compiler version")
		case v != "" && v != e.Config.Solidity:
			e.Log.Warn().Str("contract", name).Str("compiled", v).Str("configured", e.Config.Solidity).
				Msg("artifact was built with a different solc version")
		}
	}
	return a, nil
}

func (e *Environment) deployTimeout() time.Duration {
	if e.Network.TimeoutSeconds > 0 {
		return time.Duration(e.Network.TimeoutSeconds) * time.Second
	}
	return config.TxDeployTimeout
}
