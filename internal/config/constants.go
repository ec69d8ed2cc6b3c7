package config

import "time"

// Gas limits used as EstimateGas fallbacks when the node cannot simulate the tx.
// These are conservative upper bounds; actual gas used will be lower.
const (
	GasLimitContractDeploy = uint64(5_000_000) // implementation or plain contract creation
	GasLimitProxyDeploy    = uint64(1_200_000) // TransparentUpgradeableProxy incl. initializer
	GasLimitContractCall   = uint64(200_000)   // upgradeAndCall and other admin calls
)

// Timeout constants used across cmd and the deploy runtime.
const (
	RPCTimeout          = 15 * time.Second // single JSON-RPC round trip
	TxDeployTimeout     = 5 * time.Minute  // contract deployment confirmation wait
	ReceiptPollInterval = 2 * time.Second
)

// Environment variables read at startup.
const (
	EnvAPIURL     = "API_URL"
	EnvPrivateKey = "PRIVATE_KEY"
	EnvTreasury   = "TREASURY_ADDRESS"
	EnvNetwork    = "SWAPDEPLOY_NETWORK"

	// EnvKeystoreDir switches key storage from the OS keychain to an
	// encrypted file keystore in that directory, unlocked with
	// EnvKeystorePassword. Meant for CI where no keychain is available.
	EnvKeystoreDir      = "SWAPDEPLOY_KEYSTORE_DIR"
	EnvKeystorePassword = "SWAPDEPLOY_KEYSTORE_PASSWORD"
)

// KeyringPrefix marks an account entry that names a key in the OS keychain
// instead of holding the raw private key, e.g. "keyring:deployer".
const KeyringPrefix = "keyring:"
