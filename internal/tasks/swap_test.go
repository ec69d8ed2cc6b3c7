package tasks_test

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Mohsinsiddi/swapdeploy/internal/artifact/artifacttest"
	"github.com/Mohsinsiddi/swapdeploy/internal/chain"
	"github.com/Mohsinsiddi/swapdeploy/internal/chain/chaintest"
	"github.com/Mohsinsiddi/swapdeploy/internal/config"
	"github.com/Mohsinsiddi/swapdeploy/internal/deploy"
	"github.com/Mohsinsiddi/swapdeploy/internal/tasks"
	"github.com/Mohsinsiddi/swapdeploy/internal/wallet"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Hardhat account #0.
const deployerKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

const treasury = "0x2222222222222222222222222222222222222222"

var proxyCode = hexutil.MustDecode("0x60806040526004")

func setup(t *testing.T, treasuryAddr string) (*deploy.Environment, *chaintest.Server, *bytes.Buffer) {
	t.Helper()
	srv := chaintest.NewServer(t)
	dir := t.TempDir()
	artifacttest.Project(t, filepath.Join(dir, "artifacts"))

	t.Setenv(config.EnvAPIURL, srv.URL)
	t.Setenv(config.EnvPrivateKey, deployerKey)
	t.Setenv(config.EnvTreasury, treasuryAddr)
	t.Setenv(config.EnvNetwork, "")
	cfg, err := config.Load(config.LoadOptions{Dir: dir})
	require.NoError(t, err)

	signers, err := wallet.ResolveKeys([]string{deployerKey}, nil)
	require.NoError(t, err)
	client, err := chain.Dial(srv.URL)
	require.NoError(t, err)
	client.PollInterval = 5 * time.Millisecond
	t.Cleanup(func() { client.Close() }) //nolint:errcheck

	logs := new(bytes.Buffer)
	env, err := deploy.NewEnvironment(context.Background(), deploy.Options{
		Config:  cfg,
		Backend: client,
		Signers: signers,
		Logger:  zerolog.New(logs),
	})
	require.NoError(t, err)
	return env, srv, logs
}

func proxyArgs(t *testing.T, tx chaintest.Sent) []any {
	t.Helper()
	require.True(t, bytes.HasPrefix(tx.Data, proxyCode), "not a proxy creation")
	pa, err := abi.JSON(strings.NewReader(artifacttest.ProxyABI))
	require.NoError(t, err)
	vals, err := pa.Constructor.Inputs.Unpack(tx.Data[len(proxyCode):])
	require.NoError(t, err)
	return vals
}

func initData(t *testing.T, treasury common.Address) []byte {
	t.Helper()
	sa, err := abi.JSON(strings.NewReader(artifacttest.SwapABI))
	require.NoError(t, err)
	data, err := sa.Pack("initialize", treasury)
	require.NoError(t, err)
	return data
}

func TestSwapTaskIdentity(t *testing.T) {
	task := tasks.SwapTask()
	assert.Equal(t, "deploy_swap", task.ID)
	assert.Equal(t, []string{"swap"}, task.Tags)
	assert.Equal(t, []string{config.EnvTreasury}, task.Requires)

	r := tasks.Registry()
	assert.Equal(t, []string{"swap"}, r.Tags())
	require.Len(t, r.Select([]string{"swap"}), 1)
}

func TestSwapTaskDeploysBehindProxy(t *testing.T) {
	env, srv, logs := setup(t, treasury)
	runner := &deploy.Runner{Registry: tasks.Registry()}

	res, err := runner.Run(context.Background(), env, deploy.RunOptions{Tags: []string{tasks.SwapTag}})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, deploy.StatusExecuted, res[0].Status)

	sent := srv.Sent()
	require.Len(t, sent, 2, "implementation then proxy")
	impl := sent[0].Created
	vals := proxyArgs(t, sent[1])
	assert.Equal(t, impl, vals[0])
	assert.Equal(t, sent[1].From, vals[1], "deployer owns the proxy admin")
	assert.Equal(t, initData(t, common.HexToAddress(treasury)), vals[2])

	d, ok, err := env.Get(tasks.SwapContract)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, sent[1].Created, d.Address)
	assert.Equal(t, impl, *d.Implementation)
	assert.Contains(t, logs.String(), "Swap contract deployed: "+d.Address.Hex())

	res, err = runner.Run(context.Background(), env, deploy.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, deploy.StatusSkipped, res[0].Status)
	assert.Len(t, srv.Sent(), 2)
}

func TestSwapTaskPreflightRejectsMissingTreasury(t *testing.T) {
	env, srv, _ := setup(t, "")
	runner := &deploy.Runner{Registry: tasks.Registry()}

	_, err := runner.Run(context.Background(), env, deploy.RunOptions{})
	assert.ErrorIs(t, err, config.ErrMissingValue)
	assert.Empty(t, srv.Sent())
}

func TestSwapTaskPassesZeroAddressWithoutTreasury(t *testing.T) {
	env, srv, _ := setup(t, "")

	require.NoError(t, tasks.SwapTask().Run(context.Background(), env))

	sent := srv.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, initData(t, common.Address{}), proxyArgs(t, sent[1])[2])
}
