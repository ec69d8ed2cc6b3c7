package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	defaultSolidity      = "0.8.24"
	defaultNetwork       = "bscTestnet"
	defaultArtifacts     = "artifacts"
	defaultDeployments   = "deployments"
	defaultProxyArtifact = "TransparentUpgradeableProxy"
	defaultAdminArtifact = "ProxyAdmin"

	configName = "swapdeploy"
	envFile    = ".env"

	keyTreasury = "treasury_address"
	keyNetwork  = "default_network"
)

// Errors.
var (
	ErrUnknownNetwork = errors.New("unknown network")
	ErrMissingValue   = errors.New("missing required value")
	ErrInvalidValue   = errors.New("invalid value")
)

// LoadOptions controls where Load looks for its inputs.
type LoadOptions struct {
	Dir     string // project root (default ".")
	File    string // explicit config file; must exist when set
	EnvFile string // dotenv file (default <Dir>/.env); a missing file is not an error
}

// Load builds the configuration from the dotenv file, the process environment and
// an optional swapdeploy.yaml. Without a config file the built-in default is used:
// solc 0.8.24, deployer = account 0, and a single bscTestnet network whose url and
// account come from API_URL and PRIVATE_KEY.
func Load(opts LoadOptions) (*Config, error) {
	dir := opts.Dir
	if dir == "" {
		dir = "."
	}

	dotenv := opts.EnvFile
	if dotenv == "" {
		dotenv = filepath.Join(dir, envFile)
	}
	// godotenv never overrides variables already present in the environment.
	if err := godotenv.Load(dotenv); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading %s: %w", dotenv, err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	if opts.File != "" {
		v.SetConfigFile(opts.File)
	} else {
		v.AddConfigPath(dir)
		v.SetConfigName(configName)
	}
	_ = v.BindEnv(keyTreasury, EnvTreasury)
	_ = v.BindEnv(keyNetwork, EnvNetwork)

	found := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.File != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		found = false
	}

	cfg := defaults(dir)
	if found {
		// viper only locates the file and binds the two env keys above. It
		// lowercases map keys while network names are case-sensitive on disk
		// (deployments/<network>), so the tree itself is decoded with yaml.
		data, err := os.ReadFile(v.ConfigFileUsed())
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		var fc Config
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", v.ConfigFileUsed(), err)
		}
		cfg.merge(&fc)
	}

	if v.IsSet(keyNetwork) && v.GetString(keyNetwork) != "" {
		cfg.DefaultNetwork = v.GetString(keyNetwork)
	}
	cfg.TreasuryAddress = strings.TrimSpace(os.ExpandEnv(v.GetString(keyTreasury)))
	cfg.expand()
	return cfg, nil
}

// Template returns the default configuration with ${VAR} placeholders intact,
// suitable for writing a starter swapdeploy.yaml.
func Template() *Config {
	c := defaults(".")
	c.TreasuryAddress = "${" + EnvTreasury + "}"
	return c
}

// Save writes the config as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// Root returns the project directory.
func (c *Config) Root() string {
	return c.root
}

// ArtifactsDir returns the absolute-or-root-relative artifacts directory.
func (c *Config) ArtifactsDir() string {
	return c.resolve(c.Paths.Artifacts)
}

// DeploymentsDir returns the directory that holds per-network deployment records.
func (c *Config) DeploymentsDir() string {
	return c.resolve(c.Paths.Deployments)
}

// Network looks a network up by name. Matching is case-insensitive so that
// "bsctestnet" and "bscTestnet" refer to the same entry. An empty name selects
// the default network.
func (c *Config) Network(name string) (Network, error) {
	if name == "" {
		name = c.DefaultNetwork
	}
	if n, ok := c.Networks[name]; ok {
		n.Name = name
		return n, nil
	}
	for k, n := range c.Networks {
		if strings.EqualFold(k, name) {
			n.Name = k
			return n, nil
		}
	}
	return Network{}, fmt.Errorf("%w: %q (configured: %s)", ErrUnknownNetwork, name, strings.Join(c.NetworkNames(), ", "))
}

// NetworkNames returns the configured network names, sorted.
func (c *Config) NetworkNames() []string {
	names := make([]string, 0, len(c.Networks))
	for k := range c.Networks {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Validate checks that the selected network can be used to sign and send
// transactions. Every problem is reported, each naming the variable to set.
func (c *Config) Validate(network string) error {
	n, err := c.Network(network)
	if err != nil {
		return err
	}

	var errs []error
	if c.Solidity == "" {
		errs = append(errs, fmt.Errorf("%w: solidity compiler version", ErrMissingValue))
	}
	if n.URL == "" {
		errs = append(errs, fmt.Errorf("%w: network %s has no url (set %s)", ErrMissingValue, n.Name, EnvAPIURL))
	} else if !validURL(n.URL) {
		errs = append(errs, fmt.Errorf("%w: network %s url %q (check %s)", ErrInvalidValue, n.Name, n.URL, EnvAPIURL))
	}
	for _, fb := range n.FallbackURLs {
		if !validURL(fb) {
			errs = append(errs, fmt.Errorf("%w: network %s fallback url %q", ErrInvalidValue, n.Name, fb))
		}
	}
	switch n.RPCSelection {
	case "", SelectFailover, SelectFastest:
	default:
		errs = append(errs, fmt.Errorf("%w: network %s rpc_selection %q (want %s or %s)",
			ErrInvalidValue, n.Name, n.RPCSelection, SelectFailover, SelectFastest))
	}
	if len(n.Accounts) == 0 {
		errs = append(errs, fmt.Errorf("%w: network %s has no accounts (set %s)", ErrMissingValue, n.Name, EnvPrivateKey))
	}
	for i, a := range n.Accounts {
		if strings.HasPrefix(a, KeyringPrefix) {
			if strings.TrimPrefix(a, KeyringPrefix) == "" {
				errs = append(errs, fmt.Errorf("%w: account #%d has an empty keyring name", ErrInvalidValue, i))
			}
			continue
		}
		if !IsPrivateKeyHex(a) {
			errs = append(errs, fmt.Errorf("%w: account #%d is not a 32-byte hex private key (check %s)", ErrInvalidValue, i, EnvPrivateKey))
		}
	}
	return errors.Join(errs...)
}

// Require checks that each of the named environment-backed values is set and
// well-formed for network (empty: the default). It is used as a preflight
// before any transaction is sent.
func (c *Config) Require(network string, names ...string) error {
	var errs []error
	for _, name := range names {
		val := c.Lookup(network, name)
		if val == "" {
			errs = append(errs, fmt.Errorf("%w: %s", ErrMissingValue, name))
			continue
		}
		if name == EnvTreasury && !common.IsHexAddress(val) {
			errs = append(errs, fmt.Errorf("%w: %s=%q is not an address", ErrInvalidValue, name, val))
		}
	}
	return errors.Join(errs...)
}

// Lookup returns the resolved value behind one of the consumed environment
// variables: the treasury address, or the url / first account of network
// (empty: the default network).
func (c *Config) Lookup(network, name string) string {
	switch name {
	case EnvTreasury:
		return c.TreasuryAddress
	case EnvAPIURL:
		if n, err := c.Network(network); err == nil {
			return n.URL
		}
	case EnvPrivateKey:
		if n, err := c.Network(network); err == nil && len(n.Accounts) > 0 {
			return n.Accounts[0]
		}
	}
	return ""
}

// Redacted returns a copy with private keys masked, for display.
func (c *Config) Redacted() *Config {
	out := *c
	out.Networks = make(map[string]Network, len(c.Networks))
	for k, n := range c.Networks {
		masked := make([]string, len(n.Accounts))
		for i, a := range n.Accounts {
			masked[i] = maskKey(a)
		}
		n.Accounts = masked
		out.Networks[k] = n
	}
	return &out
}

// IsPrivateKeyHex reports whether s is a 32-byte hex string, with or without 0x.
func IsPrivateKeyHex(s string) bool {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s) != 64 {
		return false
	}
	for _, r := range s {
		if !strings.ContainsRune("0123456789abcdefABCDEF", r) {
			return false
		}
	}
	return true
}

// --- helpers ---

func defaults(dir string) *Config {
	return &Config{
		Solidity:       defaultSolidity,
		DefaultNetwork: defaultNetwork,
		NamedAccounts:  map[string]NamedAccount{"deployer": "0"},
		Networks: map[string]Network{
			defaultNetwork: {
				URL:      "${" + EnvAPIURL + "}",
				Accounts: []string{"${" + EnvPrivateKey + "}"},
			},
		},
		Paths: Paths{
			Artifacts:   defaultArtifacts,
			Deployments: defaultDeployments,
		},
		Proxy: ProxyDefaults{
			ProxyArtifact: defaultProxyArtifact,
			AdminArtifact: defaultAdminArtifact,
		},
		root: dir,
	}
}

// merge overlays the values a config file sets onto the defaults.
func (c *Config) merge(fc *Config) {
	if fc.Solidity != "" {
		c.Solidity = fc.Solidity
	}
	if fc.DefaultNetwork != "" {
		c.DefaultNetwork = fc.DefaultNetwork
	}
	if len(fc.NamedAccounts) > 0 {
		c.NamedAccounts = fc.NamedAccounts
	}
	if len(fc.Networks) > 0 {
		c.Networks = fc.Networks
	}
	if fc.TreasuryAddress != "" {
		c.TreasuryAddress = fc.TreasuryAddress
	}
	if fc.Paths.Artifacts != "" {
		c.Paths.Artifacts = fc.Paths.Artifacts
	}
	if fc.Paths.Deployments != "" {
		c.Paths.Deployments = fc.Paths.Deployments
	}
	if fc.Proxy.ProxyArtifact != "" {
		c.Proxy.ProxyArtifact = fc.Proxy.ProxyArtifact
	}
	if fc.Proxy.AdminArtifact != "" {
		c.Proxy.AdminArtifact = fc.Proxy.AdminArtifact
	}
	if fc.Proxy.AdminProxyArtifact != "" {
		c.Proxy.AdminProxyArtifact = fc.Proxy.AdminProxyArtifact
	}
}

// expand substitutes ${VAR} references in network urls and accounts.
// Fallback urls that expand to nothing are dropped.
// Accounts that expand to nothing are dropped so Validate can report them.
func (c *Config) expand() {
	for k, n := range c.Networks {
		n.URL = strings.TrimSpace(os.ExpandEnv(n.URL))
		accounts := make([]string, 0, len(n.Accounts))
		for _, a := range n.Accounts {
			if a = strings.TrimSpace(os.ExpandEnv(a)); a != "" {
				accounts = append(accounts, a)
			}
		}
		n.Accounts = accounts
		fallbacks := make([]string, 0, len(n.FallbackURLs))
		for _, u := range n.FallbackURLs {
			if u = strings.TrimSpace(os.ExpandEnv(u)); u != "" {
				fallbacks = append(fallbacks, u)
			}
		}
		n.FallbackURLs = fallbacks
		c.Networks[k] = n
	}
}

func validURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && u.Scheme != "" && u.Host != ""
}

func (c *Config) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.root, p)
}

func maskKey(a string) string {
	if strings.HasPrefix(a, KeyringPrefix) {
		return a
	}
	if len(a) <= 10 {
		return "****"
	}
	return a[:6] + "…" + a[len(a)-4:]
}
