package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Mohsinsiddi/swapdeploy/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testKey      = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	testTreasury = "0x1111111111111111111111111111111111111111"
)

func setEnv(t *testing.T, url, key, treasury string) {
	t.Helper()
	t.Setenv(config.EnvAPIURL, url)
	t.Setenv(config.EnvPrivateKey, key)
	t.Setenv(config.EnvTreasury, treasury)
	t.Setenv(config.EnvNetwork, "")
}

func TestLoadDefaultConfig(t *testing.T) {
	setEnv(t, "https://data-seed-prebsc-1-s1.bnbchain.org:8545", testKey, testTreasury)
	cfg, err := config.Load(config.LoadOptions{Dir: t.TempDir()})
	require.NoError(t, err)

	assert.Equal(t, "0.8.24", cfg.Solidity)
	assert.Equal(t, "bscTestnet", cfg.DefaultNetwork)
	assert.Equal(t, config.NamedAccount("0"), cfg.NamedAccounts["deployer"])
	assert.Equal(t, testTreasury, cfg.TreasuryAddress)

	n, err := cfg.Network("")
	require.NoError(t, err)
	assert.Equal(t, "bscTestnet", n.Name)
	assert.Equal(t, "https://data-seed-prebsc-1-s1.bnbchain.org:8545", n.URL)
	assert.Equal(t, []string{testKey}, n.Accounts)
	assert.NoError(t, cfg.Validate(""))
}

func TestLoadReadsDotenv(t *testing.T) {
	dir := t.TempDir()
	// Unset so the dotenv file is allowed to provide them.
	for _, k := range []string{config.EnvAPIURL, config.EnvPrivateKey, config.EnvTreasury} {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
	env := "API_URL=http://127.0.0.1:8545\nPRIVATE_KEY=" + testKey + "\nTREASURY_ADDRESS=" + testTreasury + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(env), 0o600))

	cfg, err := config.Load(config.LoadOptions{Dir: dir})
	require.NoError(t, err)
	assert.Equal(t, testTreasury, cfg.TreasuryAddress)
	assert.Equal(t, "http://127.0.0.1:8545", cfg.Lookup("", config.EnvAPIURL))
	assert.Equal(t, testKey, cfg.Lookup("", config.EnvPrivateKey))
}

func TestLoadMissingEnvIsNotValidated(t *testing.T) {
	setEnv(t, "", "", "")
	cfg, err := config.Load(config.LoadOptions{Dir: t.TempDir()})
	require.NoError(t, err, "Load itself never validates")

	n, err := cfg.Network("")
	require.NoError(t, err)
	assert.Empty(t, n.URL)
	assert.Empty(t, n.Accounts)
	assert.Empty(t, cfg.TreasuryAddress)
}

func TestValidateReportsEveryMissingValue(t *testing.T) {
	setEnv(t, "", "", "")
	cfg, err := config.Load(config.LoadOptions{Dir: t.TempDir()})
	require.NoError(t, err)

	err = cfg.Validate("")
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrMissingValue)
	assert.Contains(t, err.Error(), "API_URL")
	assert.Contains(t, err.Error(), "PRIVATE_KEY")
}

func TestValidateRejectsMalformedKeyAndURL(t *testing.T) {
	setEnv(t, "not a url", "0x1234", "")
	cfg, err := config.Load(config.LoadOptions{Dir: t.TempDir()})
	require.NoError(t, err)

	err = cfg.Validate("")
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrInvalidValue)
	assert.Contains(t, err.Error(), "32-byte hex private key")
	assert.Contains(t, err.Error(), "url")
}

func TestRequireTreasury(t *testing.T) {
	setEnv(t, "http://localhost:8545", testKey, "")
	cfg, err := config.Load(config.LoadOptions{Dir: t.TempDir()})
	require.NoError(t, err)

	err = cfg.Require("", config.EnvTreasury)
	assert.ErrorIs(t, err, config.ErrMissingValue)

	cfg.TreasuryAddress = "treasury"
	err = cfg.Require("", config.EnvTreasury)
	assert.ErrorIs(t, err, config.ErrInvalidValue)

	cfg.TreasuryAddress = testTreasury
	assert.NoError(t, cfg.Require("", config.EnvTreasury))
}

func TestLoadConfigFileOverridesDefaults(t *testing.T) {
	setEnv(t, "http://localhost:8545", testKey, testTreasury)
	dir := t.TempDir()
	yml := `solidity: "0.8.20"
default_network: localDev
named_accounts:
  deployer: 1
  treasury: "0x2222222222222222222222222222222222222222"
networks:
  localDev:
    url: ${API_URL}
    accounts:
      - ${PRIVATE_KEY}
      - keyring:second
    chain_id: 31337
paths:
  artifacts: out
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "swapdeploy.yaml"), []byte(yml), 0o600))

	cfg, err := config.Load(config.LoadOptions{Dir: dir})
	require.NoError(t, err)

	assert.Equal(t, "0.8.20", cfg.Solidity)
	assert.Equal(t, "localDev", cfg.DefaultNetwork)

	idx, ok := cfg.NamedAccounts["deployer"].Index()
	assert.True(t, ok)
	assert.Equal(t, 1, idx)
	_, ok = cfg.NamedAccounts["treasury"].Address()
	assert.True(t, ok)

	n, err := cfg.Network("localdev")
	require.NoError(t, err, "network lookup is case-insensitive")
	assert.Equal(t, "localDev", n.Name, "on-disk key case is preserved")
	assert.Equal(t, "http://localhost:8545", n.URL)
	assert.Equal(t, []string{testKey, "keyring:second"}, n.Accounts)
	assert.Equal(t, int64(31337), n.ChainID)

	assert.Equal(t, filepath.Join(dir, "out"), cfg.ArtifactsDir())
	assert.Equal(t, filepath.Join(dir, "deployments"), cfg.DeploymentsDir())
	assert.NoError(t, cfg.Validate(""))
}

func TestFallbackURLs(t *testing.T) {
	setEnv(t, "http://localhost:8545", testKey, testTreasury)
	t.Setenv("BACKUP_RPC", "http://localhost:8546")
	dir := t.TempDir()
	yml := `networks:
  bscTestnet:
    url: ${API_URL}
    accounts:
      - ${PRIVATE_KEY}
    fallback_urls:
      - ${BACKUP_RPC}
      - ${UNSET_RPC_FOR_TEST}
    rpc_selection: fastest
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "swapdeploy.yaml"), []byte(yml), 0o600))
	cfg, err := config.Load(config.LoadOptions{Dir: dir})
	require.NoError(t, err)

	n, err := cfg.Network("")
	require.NoError(t, err)
	assert.Equal(t, []string{"http://localhost:8545", "http://localhost:8546"}, n.URLs(), "empty fallbacks are dropped")
	assert.NoError(t, cfg.Validate(""))

	n.RPCSelection = "round-robin"
	n.FallbackURLs = append(n.FallbackURLs, "nope")
	cfg.Networks["bscTestnet"] = n
	err = cfg.Validate("")
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrInvalidValue)
	assert.Contains(t, err.Error(), "rpc_selection")
	assert.Contains(t, err.Error(), `fallback url "nope"`)
}

func TestLookupUsesSelectedNetwork(t *testing.T) {
	setEnv(t, "http://localhost:8545", testKey, testTreasury)
	cfg, err := config.Load(config.LoadOptions{Dir: t.TempDir()})
	require.NoError(t, err)
	cfg.Networks["localDev"] = config.Network{Accounts: []string{"keyring:dev"}}

	assert.Equal(t, "http://localhost:8545", cfg.Lookup("", config.EnvAPIURL))
	assert.Empty(t, cfg.Lookup("localDev", config.EnvAPIURL))
	assert.Equal(t, "keyring:dev", cfg.Lookup("localdev", config.EnvPrivateKey))
	assert.Equal(t, testTreasury, cfg.Lookup("localDev", config.EnvTreasury))

	assert.NoError(t, cfg.Require("", config.EnvAPIURL))
	err = cfg.Require("localDev", config.EnvAPIURL)
	assert.ErrorIs(t, err, config.ErrMissingValue)
	assert.Empty(t, cfg.Lookup("nope", config.EnvAPIURL), "unknown network")
}

func TestLoadExplicitFileMustExist(t *testing.T) {
	_, err := config.Load(config.LoadOptions{Dir: t.TempDir(), File: "/does/not/exist.yaml"})
	assert.Error(t, err)
}

func TestNetworkEnvOverridesDefault(t *testing.T) {
	setEnv(t, "http://localhost:8545", testKey, testTreasury)
	t.Setenv(config.EnvNetwork, "other")
	cfg, err := config.Load(config.LoadOptions{Dir: t.TempDir()})
	require.NoError(t, err)

	assert.Equal(t, "other", cfg.DefaultNetwork)
	_, err = cfg.Network("")
	assert.ErrorIs(t, err, config.ErrUnknownNetwork)
}

func TestRedactedMasksKeys(t *testing.T) {
	setEnv(t, "http://localhost:8545", testKey, testTreasury)
	cfg, err := config.Load(config.LoadOptions{Dir: t.TempDir()})
	require.NoError(t, err)

	red := cfg.Redacted()
	n, err := red.Network("")
	require.NoError(t, err)
	assert.NotContains(t, n.Accounts[0], testKey[10:60])

	orig, _ := cfg.Network("")
	assert.Equal(t, testKey, orig.Accounts[0], "original config must be untouched")
}

func TestTemplateRoundTrip(t *testing.T) {
	setEnv(t, "http://localhost:8545", testKey, testTreasury)
	dir := t.TempDir()
	require.NoError(t, config.Template().Save(filepath.Join(dir, "swapdeploy.yaml")))

	cfg, err := config.Load(config.LoadOptions{Dir: dir})
	require.NoError(t, err)
	n, err := cfg.Network("bscTestnet")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8545", n.URL)
	assert.Equal(t, testTreasury, cfg.TreasuryAddress)
}

func TestIsPrivateKeyHex(t *testing.T) {
	assert.True(t, config.IsPrivateKeyHex(testKey))
	assert.True(t, config.IsPrivateKeyHex(testKey[2:]))
	assert.False(t, config.IsPrivateKeyHex("0x12"))
	assert.False(t, config.IsPrivateKeyHex("zz"+testKey[4:]))
}
