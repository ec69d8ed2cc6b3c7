package deploy_test

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Mohsinsiddi/swapdeploy/internal/artifact"
	"github.com/Mohsinsiddi/swapdeploy/internal/artifact/artifacttest"
	"github.com/Mohsinsiddi/swapdeploy/internal/chain"
	"github.com/Mohsinsiddi/swapdeploy/internal/chain/chaintest"
	"github.com/Mohsinsiddi/swapdeploy/internal/config"
	"github.com/Mohsinsiddi/swapdeploy/internal/deploy"
	"github.com/Mohsinsiddi/swapdeploy/internal/wallet"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// Well-known Hardhat/Anvil test accounts #0 and #1. Never fund on mainnet.
const (
	deployerKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	otherKey    = "0x59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
	treasury    = "0x1111111111111111111111111111111111111111"
)

var (
	proxyCode      = hexutil.MustDecode("0x60806040526004")
	adminCode      = hexutil.MustDecode("0x60806040526005")
	adminProxyCode = hexutil.MustDecode("0x60806040526006")

	proxyABI = mustABI(artifacttest.ProxyABI)
	adminABI = mustABI(artifacttest.ProxyAdminABI)
)

func mustABI(s string) abi.ABI {
	a, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(err)
	}
	return a
}

type fixture struct {
	t        *testing.T
	srv      *chaintest.Server
	client   *chain.Client
	cfg      *config.Config
	dir      string
	signers  []*wallet.Signer
	deployer common.Address
	logs     *bytes.Buffer

	mu          sync.Mutex
	adminOwners map[common.Address]common.Address
}

// newFixture starts a fake chain, writes the contract artifacts and loads the
// default configuration pointed at the chain.
func newFixture(t *testing.T, keys ...string) *fixture {
	t.Helper()
	if len(keys) == 0 {
		keys = []string{deployerKey}
	}
	srv := chaintest.NewServer(t)
	dir := t.TempDir()
	artifacttest.Project(t, filepath.Join(dir, "artifacts"))

	t.Setenv(config.EnvAPIURL, srv.URL)
	t.Setenv(config.EnvPrivateKey, keys[0])
	t.Setenv(config.EnvTreasury, treasury)
	t.Setenv(config.EnvNetwork, "")
	cfg, err := config.Load(config.LoadOptions{Dir: dir})
	require.NoError(t, err)
	n := cfg.Networks["bscTestnet"]
	n.Accounts = keys
	cfg.Networks["bscTestnet"] = n

	signers, err := wallet.ResolveKeys(keys, nil)
	require.NoError(t, err)

	client, err := chain.Dial(srv.URL)
	require.NoError(t, err)
	client.PollInterval = 5 * time.Millisecond
	t.Cleanup(func() { client.Close() }) //nolint:errcheck

	f := &fixture{
		t:           t,
		srv:         srv,
		client:      client,
		cfg:         cfg,
		dir:         dir,
		signers:     signers,
		deployer:    signers[0].Address(),
		logs:        new(bytes.Buffer),
		adminOwners: make(map[common.Address]common.Address),
	}
	srv.OnMined = f.onMined
	srv.Call = f.call
	return f
}

// env builds a fresh environment with its own artifact store.
func (f *fixture) env() *deploy.Environment {
	f.t.Helper()
	env, err := deploy.NewEnvironment(context.Background(), deploy.Options{
		Config:  f.cfg,
		Backend: f.client,
		Signers: f.signers,
		Store:   artifact.NewStore(f.cfg.ArtifactsDir()),
		Logger:  zerolog.New(f.logs),
		RunID:   "test-run",
	})
	require.NoError(f.t, err)
	return env
}

func (f *fixture) setAdminOwner(admin, owner common.Address) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.adminOwners[admin] = owner
}

// onMined models what the proxy contracts do on chain. The OpenZeppelin v5
// proxy always creates a ProxyAdmin owned by its second argument; the
// AdminProxy artifact stores that argument as the admin. upgradeAndCall moves
// the implementation slot.
func (f *fixture) onMined(s *chaintest.Server, tx chaintest.Sent) {
	switch {
	case tx.To == nil && bytes.HasPrefix(tx.Data, adminCode):
		vals, err := adminABI.Constructor.Inputs.Unpack(tx.Data[len(adminCode):])
		if err == nil {
			f.setAdminOwner(tx.Created, vals[0].(common.Address))
		}

	case tx.To == nil && bytes.HasPrefix(tx.Data, proxyCode):
		vals, err := proxyABI.Constructor.Inputs.Unpack(tx.Data[len(proxyCode):])
		if err != nil {
			return
		}
		logic, owner := vals[0].(common.Address), vals[1].(common.Address)
		admin := crypto.CreateAddress(tx.Created, 1)
		s.SetCode(admin, adminCode)
		f.setAdminOwner(admin, owner)
		s.SetStorage(tx.Created, deploy.ImplementationSlot, common.BytesToHash(logic.Bytes()))
		s.SetStorage(tx.Created, deploy.AdminSlot, common.BytesToHash(admin.Bytes()))

	case tx.To == nil && bytes.HasPrefix(tx.Data, adminProxyCode):
		vals, err := proxyABI.Constructor.Inputs.Unpack(tx.Data[len(adminProxyCode):])
		if err != nil {
			return
		}
		logic, admin := vals[0].(common.Address), vals[1].(common.Address)
		s.SetStorage(tx.Created, deploy.ImplementationSlot, common.BytesToHash(logic.Bytes()))
		s.SetStorage(tx.Created, deploy.AdminSlot, common.BytesToHash(admin.Bytes()))

	case tx.To != nil && len(tx.Data) >= 4 && bytes.Equal(tx.Data[:4], adminABI.Methods["upgradeAndCall"].ID):
		vals, err := adminABI.Methods["upgradeAndCall"].Inputs.Unpack(tx.Data[4:])
		if err != nil {
			return
		}
		proxy, impl := vals[0].(common.Address), vals[1].(common.Address)
		s.SetStorage(proxy, deploy.ImplementationSlot, common.BytesToHash(impl.Bytes()))
	}
}

// call answers owner() on ProxyAdmin contracts.
func (f *fixture) call(to common.Address, data []byte) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(data) >= 4 && bytes.Equal(data[:4], adminABI.Methods["owner"].ID) {
		if owner, ok := f.adminOwners[to]; ok {
			return common.LeftPadBytes(owner.Bytes(), 32), nil
		}
	}
	return nil, errExecutionReverted
}

var errExecutionReverted = errors.New("execution reverted")
