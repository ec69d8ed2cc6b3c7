package config

import (
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// Config holds the deployment configuration for one process invocation.
// It is built once by Load and passed explicitly to every deploy operation.
type Config struct {
	Solidity        string                  `yaml:"solidity"`
	DefaultNetwork  string                  `yaml:"default_network"`
	NamedAccounts   map[string]NamedAccount `yaml:"named_accounts"`
	Networks        map[string]Network      `yaml:"networks"`
	TreasuryAddress string                  `yaml:"treasury_address,omitempty"`
	Paths           Paths                   `yaml:"paths"`
	Proxy           ProxyDefaults           `yaml:"proxy"`

	// internal: project root that relative paths are resolved against
	root string
}

// Network is one RPC endpoint plus the accounts that sign on it.
type Network struct {
	Name           string   `yaml:"-"`
	URL            string   `yaml:"url"`
	Accounts       []string `yaml:"accounts"` // hex private keys or "keyring:<name>"
	ChainID        int64    `yaml:"chain_id,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds,omitempty"`

	// FallbackURLs are probed alongside URL when set. RPCSelection picks
	// among them: "failover" (default) or "fastest".
	FallbackURLs []string `yaml:"fallback_urls,omitempty"`
	RPCSelection string   `yaml:"rpc_selection,omitempty"`
}

// RPC selection strategies accepted in Network.RPCSelection.
const (
	SelectFailover = "failover"
	SelectFastest  = "fastest"
)

// URLs returns the primary url followed by the fallbacks.
func (n Network) URLs() []string {
	out := make([]string, 0, 1+len(n.FallbackURLs))
	if n.URL != "" {
		out = append(out, n.URL)
	}
	return append(out, n.FallbackURLs...)
}

// Paths locates compiled artifacts and deployment records.
type Paths struct {
	Artifacts   string `yaml:"artifacts"`
	Deployments string `yaml:"deployments"`
}

// ProxyDefaults names the artifacts used by the transparent proxy pattern.
//
// ProxyArtifact is an OpenZeppelin v5 proxy: its constructor creates a
// ProxyAdmin owned by the address it is given. AdminProxyArtifact is a proxy
// that stores its admin argument as is (OpenZeppelin v4, hardhat-deploy's
// OptimizedTransparentUpgradeableProxy); it is required for a shared
// ProxyAdmin and has no default.
type ProxyDefaults struct {
	ProxyArtifact      string `yaml:"proxy_artifact"`
	AdminArtifact      string `yaml:"admin_artifact"`
	AdminProxyArtifact string `yaml:"admin_proxy_artifact,omitempty"`
}

// NamedAccount is either an index into the network's account list ("0")
// or a literal address.
type NamedAccount string

// UnmarshalYAML accepts both `deployer: 0` and `deployer: "0xabc..."`.
func (a *NamedAccount) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("named account must be an index or an address, got %s", n.Tag)
	}
	*a = NamedAccount(n.Value)
	return nil
}

// MarshalYAML writes indices as plain integers.
func (a NamedAccount) MarshalYAML() (interface{}, error) {
	if i, ok := a.Index(); ok {
		return i, nil
	}
	return string(a), nil
}

// Index returns the account index when the entry is numeric.
func (a NamedAccount) Index() (int, bool) {
	i, err := strconv.Atoi(string(a))
	if err != nil || i < 0 {
		return 0, false
	}
	return i, true
}

// Address returns the literal address when the entry is one.
func (a NamedAccount) Address() (common.Address, bool) {
	if !common.IsHexAddress(string(a)) {
		return common.Address{}, false
	}
	return common.HexToAddress(string(a)), true
}
