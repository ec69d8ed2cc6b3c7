package wallet

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Mohsinsiddi/swapdeploy/internal/config"
	"github.com/ethereum/go-ethereum/common"
)

// ErrNoAccounts is returned when a network has no signing accounts.
var ErrNoAccounts = errors.New("no accounts configured")

// ResolveKeys turns a network's account entries into signers. An entry is a
// raw hex private key or "keyring:<name>" for a key held in ks.
func ResolveKeys(entries []string, ks KeyStore) ([]*Signer, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w (set %s)", ErrNoAccounts, config.EnvPrivateKey)
	}
	signers := make([]*Signer, 0, len(entries))
	for i, entry := range entries {
		hexKey := entry
		if name, ok := strings.CutPrefix(entry, config.KeyringPrefix); ok {
			if ks == nil {
				return nil, fmt.Errorf("account #%d: keystore not available for %q", i, entry)
			}
			k, err := ks.Retrieve(Ref(name))
			if err != nil {
				return nil, fmt.Errorf("account #%d: %w", i, err)
			}
			hexKey = k
		}
		s, err := NewSigner(hexKey)
		if err != nil {
			return nil, fmt.Errorf("account #%d: %w", i, err)
		}
		signers = append(signers, s)
	}
	return signers, nil
}

// NamedAccounts maps each configured account name to an address: an index
// selects one of the signers, a literal address is used as is.
func NamedAccounts(named map[string]config.NamedAccount, signers []*Signer) (map[string]common.Address, error) {
	names := make([]string, 0, len(named))
	for n := range named {
		names = append(names, n)
	}
	sort.Strings(names)

	out := make(map[string]common.Address, len(named))
	for _, n := range names {
		entry := named[n]
		if addr, ok := entry.Address(); ok {
			out[n] = addr
			continue
		}
		idx, ok := entry.Index()
		if !ok {
			return nil, fmt.Errorf("named account %q: %q is neither an index nor an address", n, string(entry))
		}
		if idx >= len(signers) {
			return nil, fmt.Errorf("named account %q: index %d out of range (%d accounts configured)", n, idx, len(signers))
		}
		out[n] = signers[idx].Address()
	}
	return out, nil
}
