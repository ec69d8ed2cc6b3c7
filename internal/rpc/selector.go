package rpc

import "context"

// Select returns the url to use out of urls. A single url is returned as is
// without probing, so a one-endpoint network behaves exactly as configured.
// Otherwise every url is benchmarked and the winner picked by algorithm.
func Select(ctx context.Context, urls []string, algorithm string, wantChainID uint64) (string, []Endpoint, error) {
	if len(urls) == 0 {
		return "", nil, ErrNoHealthyRPC
	}
	algo, err := ParseAlgorithm(algorithm)
	if err != nil {
		return "", nil, err
	}
	if len(urls) == 1 {
		return urls[0], nil, nil
	}

	endpoints := Benchmark(ctx, urls, wantChainID)
	winner, err := Pick(endpoints, algo)
	if err != nil {
		return "", endpoints, err
	}
	return winner.URL, endpoints, nil
}
