package rpc_test

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/Mohsinsiddi/swapdeploy/internal/chain/chaintest"
	"github.com/Mohsinsiddi/swapdeploy/internal/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func deadURL(t *testing.T) string {
	t.Helper()
	srv := chaintest.NewServer(t)
	srv.Close()
	return srv.URL
}

func TestProbe(t *testing.T) {
	srv := chaintest.NewServer(t)
	srv.BlockOffset = 42

	ep := rpc.Probe(context.Background(), srv.URL, chaintest.DefaultChainID)
	require.NoError(t, ep.Err)
	assert.True(t, ep.Healthy())
	assert.Equal(t, uint64(chaintest.DefaultChainID), ep.ChainID)
	assert.Equal(t, uint64(42), ep.BlockNumber)
	assert.Positive(t, ep.Latency)
}

func TestProbeWrongChain(t *testing.T) {
	srv := chaintest.NewServer(t)
	srv.ChainID = big.NewInt(56)

	ep := rpc.Probe(context.Background(), srv.URL, chaintest.DefaultChainID)
	assert.ErrorIs(t, ep.Err, rpc.ErrWrongChain)

	ep = rpc.Probe(context.Background(), srv.URL, 0)
	assert.NoError(t, ep.Err, "zero skips the chain id check")
}

func TestProbeUnreachable(t *testing.T) {
	ep := rpc.Probe(context.Background(), deadURL(t), 0)
	assert.False(t, ep.Healthy())
}

func TestBenchmarkKeepsOrder(t *testing.T) {
	a, b := chaintest.NewServer(t), chaintest.NewServer(t)
	dead := deadURL(t)

	got := rpc.Benchmark(context.Background(), []string{a.URL, dead, b.URL}, 0)
	require.Len(t, got, 3)
	assert.Equal(t, a.URL, got[0].URL)
	assert.Equal(t, dead, got[1].URL)
	assert.Equal(t, b.URL, got[2].URL)
	assert.True(t, got[0].Healthy())
	assert.False(t, got[1].Healthy())
	assert.True(t, got[2].Healthy())
}

func TestSelectSingleURLSkipsProbe(t *testing.T) {
	srv := chaintest.NewServer(t)
	url, probed, err := rpc.Select(context.Background(), []string{srv.URL}, "", 1)
	require.NoError(t, err)
	assert.Equal(t, srv.URL, url)
	assert.Nil(t, probed)
	assert.Empty(t, srv.Methods(), "no request is made")
}

func TestSelectFailover(t *testing.T) {
	backup := chaintest.NewServer(t)
	url, probed, err := rpc.Select(context.Background(), []string{deadURL(t), backup.URL}, "failover", chaintest.DefaultChainID)
	require.NoError(t, err)
	assert.Equal(t, backup.URL, url)
	assert.Len(t, probed, 2)
}

func TestSelectFastest(t *testing.T) {
	slow, fast := chaintest.NewServer(t), chaintest.NewServer(t)
	slow.Latency = 100 * time.Millisecond

	url, _, err := rpc.Select(context.Background(), []string{slow.URL, fast.URL}, "fastest", chaintest.DefaultChainID)
	require.NoError(t, err)
	assert.Equal(t, fast.URL, url)
}

func TestSelectErrors(t *testing.T) {
	_, _, err := rpc.Select(context.Background(), nil, "", 0)
	assert.ErrorIs(t, err, rpc.ErrNoHealthyRPC)

	_, _, err = rpc.Select(context.Background(), []string{"http://a", "http://b"}, "random", 0)
	assert.Error(t, err)

	wrong := chaintest.NewServer(t)
	wrong.ChainID = big.NewInt(1)
	_, probed, err := rpc.Select(context.Background(), []string{deadURL(t), wrong.URL}, "", chaintest.DefaultChainID)
	assert.ErrorIs(t, err, rpc.ErrNoHealthyRPC)
	assert.Len(t, probed, 2)
}
