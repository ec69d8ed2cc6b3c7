package wallet

import (
	"math/big"
	"testing"

	"github.com/99designs/keyring"
	"github.com/Mohsinsiddi/swapdeploy/internal/config"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Well-known Hardhat/Anvil test accounts #0 and #1. Never fund on mainnet.
const (
	testPrivKeyHex  = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testSignerAddr  = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	testPrivKeyHex1 = "59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
	testSignerAddr1 = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
)

// testKeystore returns a file-backed Keystore isolated to a temp directory.
// Using the FileBackend avoids OS keychain prompts in CI.
func testKeystore(t *testing.T) *Keystore {
	t.Helper()
	ks, err := NewFileKeystore(t.TempDir(), keyring.FixedStringPrompt("testpass"))
	require.NoError(t, err)
	return ks
}

// ---------------------------------------------------------------------------
// Signer
// ---------------------------------------------------------------------------

func TestNewSignerAddress(t *testing.T) {
	for _, k := range []string{testPrivKeyHex, "0x" + testPrivKeyHex, " 0x" + testPrivKeyHex + "\n"} {
		s, err := NewSigner(k)
		require.NoError(t, err)
		assert.Equal(t, common.HexToAddress(testSignerAddr), s.Address())
		assert.Equal(t, testSignerAddr, s.String())
	}
}

func TestNewSignerInvalidKey(t *testing.T) {
	_, err := NewSigner("0x1234")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing private key")
	assert.NotContains(t, err.Error(), "1234")
}

func TestSignTxRecoversSender(t *testing.T) {
	s, err := NewSigner(testPrivKeyHex)
	require.NoError(t, err)

	chainID := big.NewInt(97)
	tx := types.NewTx(&types.DynamicFeeTx{ChainID: chainID, Nonce: 3, GasTipCap: big.NewInt(1), GasFeeCap: big.NewInt(2), Gas: 21000})
	signed, err := s.SignTx(tx, chainID)
	require.NoError(t, err)

	from, err := types.Sender(types.LatestSignerForChainID(chainID), signed)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), from)
}

func TestSignTxDifferentChainIDs(t *testing.T) {
	s, err := NewSigner(testPrivKeyHex)
	require.NoError(t, err)

	tx := types.NewTransaction(0, [20]byte{1}, big.NewInt(0), 21000, big.NewInt(1e9), nil)
	a, err := s.SignTx(tx, big.NewInt(97))
	require.NoError(t, err)
	b, err := s.SignTx(tx, big.NewInt(56))
	require.NoError(t, err)
	assert.NotEqual(t, a.Hash(), b.Hash(), "same tx signed on different chains must differ")
}

// ---------------------------------------------------------------------------
// ResolveKeys / NamedAccounts
// ---------------------------------------------------------------------------

func TestResolveKeysRawAndKeyring(t *testing.T) {
	ks := NewInMemoryKeystore()
	_, err := ks.Store("second", testPrivKeyHex1)
	require.NoError(t, err)

	signers, err := ResolveKeys([]string{"0x" + testPrivKeyHex, config.KeyringPrefix + "second"}, ks)
	require.NoError(t, err)
	require.Len(t, signers, 2)
	assert.Equal(t, common.HexToAddress(testSignerAddr), signers[0].Address())
	assert.Equal(t, common.HexToAddress(testSignerAddr1), signers[1].Address())
}

func TestResolveKeysErrors(t *testing.T) {
	_, err := ResolveKeys(nil, nil)
	assert.ErrorIs(t, err, ErrNoAccounts)
	assert.Contains(t, err.Error(), config.EnvPrivateKey)

	_, err = ResolveKeys([]string{config.KeyringPrefix + "missing"}, NewInMemoryKeystore())
	assert.ErrorIs(t, err, ErrKeyNotFound)

	_, err = ResolveKeys([]string{config.KeyringPrefix + "missing"}, nil)
	assert.Error(t, err)

	_, err = ResolveKeys([]string{testPrivKeyHex, "zz"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "account #1")
}

func TestNamedAccounts(t *testing.T) {
	signers, err := ResolveKeys([]string{testPrivKeyHex, testPrivKeyHex1}, nil)
	require.NoError(t, err)

	got, err := NamedAccounts(map[string]config.NamedAccount{
		"deployer": "0",
		"operator": "1",
		"treasury": "0x2222222222222222222222222222222222222222",
	}, signers)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(testSignerAddr), got["deployer"])
	assert.Equal(t, common.HexToAddress(testSignerAddr1), got["operator"])
	assert.Equal(t, common.HexToAddress("0x2222222222222222222222222222222222222222"), got["treasury"])
}

func TestNamedAccountsOutOfRange(t *testing.T) {
	signers, err := ResolveKeys([]string{testPrivKeyHex}, nil)
	require.NoError(t, err)

	_, err = NamedAccounts(map[string]config.NamedAccount{"deployer": "2"}, signers)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")

	_, err = NamedAccounts(map[string]config.NamedAccount{"deployer": "me"}, signers)
	assert.Error(t, err)
}
