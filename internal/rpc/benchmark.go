package rpc

import (
	"context"
	"sync"
)

// Benchmark probes all urls in parallel. Results keep the order of urls.
func Benchmark(ctx context.Context, urls []string, wantChainID uint64) []Endpoint {
	results := make([]Endpoint, len(urls))
	var wg sync.WaitGroup

	for i, url := range urls {
		wg.Add(1)
		go func(idx int, u string) {
			defer wg.Done()
			results[idx] = Probe(ctx, u, wantChainID)
		}(i, url)
	}

	wg.Wait()
	return results
}
