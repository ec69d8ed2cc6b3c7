package rpc_test

import (
	"errors"
	"testing"
	"time"

	"github.com/Mohsinsiddi/swapdeploy/internal/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func healthy(url string, latency time.Duration, block uint64) rpc.Endpoint {
	return rpc.Endpoint{URL: url, Latency: latency, BlockNumber: block, ChainID: 97}
}

func failed(url string) rpc.Endpoint {
	return rpc.Endpoint{URL: url, Err: errors.New("connection refused")}
}

func TestParseAlgorithm(t *testing.T) {
	a, err := rpc.ParseAlgorithm("")
	require.NoError(t, err)
	assert.Equal(t, rpc.AlgorithmFailover, a)

	a, err = rpc.ParseAlgorithm("fastest")
	require.NoError(t, err)
	assert.Equal(t, rpc.AlgorithmFastest, a)

	_, err = rpc.ParseAlgorithm("round-robin")
	assert.Error(t, err)
}

func TestPickFastest(t *testing.T) {
	endpoints := []rpc.Endpoint{
		healthy("http://slow.rpc", 200*time.Millisecond, 100),
		healthy("http://fast.rpc", 30*time.Millisecond, 100),
		healthy("http://medium.rpc", 80*time.Millisecond, 100),
	}
	winner, err := rpc.Pick(endpoints, rpc.AlgorithmFastest)
	require.NoError(t, err)
	assert.Equal(t, "http://fast.rpc", winner.URL)
}

func TestPickDiscardsStaleNodes(t *testing.T) {
	endpoints := []rpc.Endpoint{
		healthy("http://fresh.rpc", 50*time.Millisecond, 1000),
		healthy("http://stale.rpc", 10*time.Millisecond, 990), // 10 blocks behind
	}
	winner, err := rpc.Pick(endpoints, rpc.AlgorithmFastest)
	require.NoError(t, err)
	assert.Equal(t, "http://fresh.rpc", winner.URL, "stale node is discarded even if faster")

	endpoints = []rpc.Endpoint{
		healthy("http://stale.rpc", 10*time.Millisecond, 990),
		healthy("http://fresh.rpc", 50*time.Millisecond, 1000),
	}
	winner, err = rpc.Pick(endpoints, rpc.AlgorithmFailover)
	require.NoError(t, err)
	assert.Equal(t, "http://fresh.rpc", winner.URL, "failover also skips stale nodes")
}

func TestPickFailoverKeepsOrder(t *testing.T) {
	endpoints := []rpc.Endpoint{
		failed("http://primary.rpc"),
		healthy("http://slow-backup.rpc", 300*time.Millisecond, 100),
		healthy("http://fast-backup.rpc", 5*time.Millisecond, 100),
	}
	winner, err := rpc.Pick(endpoints, rpc.AlgorithmFailover)
	require.NoError(t, err)
	assert.Equal(t, "http://slow-backup.rpc", winner.URL)
}

func TestPickIgnoresFailedBlockNumbers(t *testing.T) {
	endpoints := []rpc.Endpoint{
		healthy("http://a.rpc", 10*time.Millisecond, 100),
		{URL: "http://b.rpc", BlockNumber: 5000, Err: rpc.ErrWrongChain},
	}
	winner, err := rpc.Pick(endpoints, rpc.AlgorithmFastest)
	require.NoError(t, err)
	assert.Equal(t, "http://a.rpc", winner.URL, "a failed node's head does not make others stale")
}

func TestPickNoHealthy(t *testing.T) {
	_, err := rpc.Pick(nil, rpc.AlgorithmFastest)
	assert.ErrorIs(t, err, rpc.ErrNoHealthyRPC)

	_, err = rpc.Pick([]rpc.Endpoint{failed("http://a.rpc"), failed("http://b.rpc")}, rpc.AlgorithmFailover)
	require.Error(t, err)
	assert.ErrorIs(t, err, rpc.ErrNoHealthyRPC)
	assert.Contains(t, err.Error(), "http://b.rpc: connection refused")
}

func TestPickSubMillisecondLatency(t *testing.T) {
	endpoints := []rpc.Endpoint{
		healthy("http://a.rpc", 0, 100),
		healthy("http://b.rpc", 500*time.Microsecond, 101),
	}
	winner, err := rpc.Pick(endpoints, rpc.AlgorithmFastest)
	require.NoError(t, err)
	assert.Equal(t, "http://b.rpc", winner.URL, "latency floors at 1ms so recency breaks the tie")
}
