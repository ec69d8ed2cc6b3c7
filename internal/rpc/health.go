package rpc

import (
	"context"
	"fmt"
	"time"

	"github.com/Mohsinsiddi/swapdeploy/internal/chain"
)

// ProbeTimeout bounds a single endpoint probe.
const ProbeTimeout = 5 * time.Second

// Probe asks url for its chain id and head block and times the round trip.
// A non-zero wantChainID that differs from the node's marks it unhealthy.
func Probe(ctx context.Context, url string, wantChainID uint64) Endpoint {
	ep := Endpoint{URL: url}
	c, err := chain.Dial(url)
	if err != nil {
		ep.Err = err
		return ep
	}
	defer c.Close() //nolint:errcheck
	c.Timeout = ProbeTimeout

	start := time.Now()
	ep.ChainID, ep.BlockNumber, ep.Err = c.Head(ctx)
	ep.Latency = time.Since(start)

	if ep.Err == nil && wantChainID != 0 && ep.ChainID != wantChainID {
		ep.Err = fmt.Errorf("%w: got %d, want %d", ErrWrongChain, ep.ChainID, wantChainID)
	}
	return ep
}
