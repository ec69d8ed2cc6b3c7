// Package rpc chooses which of a network's RPC endpoints a run talks to.
package rpc

import (
	"errors"
	"fmt"
	"time"
)

// Errors returned while selecting an endpoint.
var (
	ErrNoHealthyRPC = errors.New("no healthy RPC endpoint available")
	ErrWrongChain   = errors.New("endpoint serves a different chain")
)

// Algorithm defines how an RPC endpoint is selected.
type Algorithm string

const (
	AlgorithmFastest  Algorithm = "fastest"
	AlgorithmFailover Algorithm = "failover"

	// Discard nodes more than this many blocks behind the best.
	staleBlockThreshold = 3
)

// ParseAlgorithm maps a config value to an Algorithm. Empty means failover.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch Algorithm(s) {
	case "", AlgorithmFailover:
		return AlgorithmFailover, nil
	case AlgorithmFastest:
		return AlgorithmFastest, nil
	}
	return "", fmt.Errorf("unknown rpc selection %q", s)
}

// Endpoint is one probed RPC url.
type Endpoint struct {
	URL         string
	Latency     time.Duration
	BlockNumber uint64
	ChainID     uint64
	Err         error // set when the probe failed or the chain id did not match
}

// Healthy reports whether the probe succeeded.
func (e Endpoint) Healthy() bool { return e.Err == nil }

// Pick selects an endpoint from the probed list. Failed endpoints and nodes
// lagging the best block by more than staleBlockThreshold are never picked.
// Failover takes the first remaining endpoint in configuration order; fastest
// takes the best score.
func Pick(endpoints []Endpoint, algo Algorithm) (*Endpoint, error) {
	var bestBlock uint64
	for _, e := range endpoints {
		if e.Healthy() && e.BlockNumber > bestBlock {
			bestBlock = e.BlockNumber
		}
	}

	var winner *Endpoint
	var bestScore float64
	for i := range endpoints {
		e := &endpoints[i]
		if !e.Healthy() || bestBlock-e.BlockNumber > staleBlockThreshold {
			continue
		}
		if algo == AlgorithmFailover {
			return e, nil
		}
		s := score(e, bestBlock)
		if winner == nil || s > bestScore {
			winner, bestScore = e, s
		}
	}
	if winner == nil {
		return nil, noneHealthy(endpoints)
	}
	return winner, nil
}

// score favours low latency, then recency: 1000/ms plus up to 10 for being at
// the best block.
func score(e *Endpoint, bestBlock uint64) float64 {
	ms := float64(e.Latency) / float64(time.Millisecond)
	if ms < 1 {
		ms = 1
	}
	return 1000/ms + 10 - float64(bestBlock-e.BlockNumber)
}

func noneHealthy(endpoints []Endpoint) error {
	errs := []error{ErrNoHealthyRPC}
	for _, e := range endpoints {
		if e.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", e.URL, e.Err))
		}
	}
	return errors.Join(errs...)
}
