// Package artifacttest writes Hardhat-style artifacts into a temporary
// directory for tests.
package artifacttest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

// ABIs of the contracts the deploy flows use.
const (
	TokenABI = `[
		{"type":"constructor","inputs":[{"name":"name","type":"string"},{"name":"symbol","type":"string"}],"stateMutability":"nonpayable"},
		{"type":"function","name":"symbol","inputs":[],"outputs":[{"name":"","type":"string"}],"stateMutability":"view"}
	]`
	SwapContractABI = `[
		{"type":"constructor","inputs":[{"name":"initialOwner","type":"address"}],"stateMutability":"nonpayable"},
		{"type":"function","name":"owner","inputs":[],"outputs":[{"name":"","type":"address"}],"stateMutability":"view"}
	]`
	SwapABI = `[
		{"type":"function","name":"initialize","inputs":[{"name":"treasury","type":"address"}],"outputs":[],"stateMutability":"nonpayable"},
		{"type":"function","name":"treasury","inputs":[],"outputs":[{"name":"","type":"address"}],"stateMutability":"view"}
	]`
	ProxyABI = `[
		{"type":"constructor","inputs":[{"name":"_logic","type":"address"},{"name":"initialOwner","type":"address"},{"name":"_data","type":"bytes"}],"stateMutability":"payable"}
	]`
	// AdminProxyABI is a proxy that stores its admin argument directly.
	AdminProxyABI = `[
		{"type":"constructor","inputs":[{"name":"_logic","type":"address"},{"name":"_admin","type":"address"},{"name":"_data","type":"bytes"}],"stateMutability":"payable"}
	]`
	ProxyAdminABI = `[
		{"type":"constructor","inputs":[{"name":"initialOwner","type":"address"}],"stateMutability":"nonpayable"},
		{"type":"function","name":"owner","inputs":[],"outputs":[{"name":"","type":"address"}],"stateMutability":"view"},
		{"type":"function","name":"upgradeAndCall","inputs":[{"name":"proxy","type":"address"},{"name":"implementation","type":"address"},{"name":"data","type":"bytes"}],"outputs":[],"stateMutability":"payable"}
	]`
)

// Write stores an artifact at <dir>/<source>/<name>.json and returns its path.
func Write(t *testing.T, dir, source, name, abiJSON, bytecode string) string {
	t.Helper()
	doc := map[string]any{
		"_format":          "hh-sol-artifact-1",
		"contractName":     name,
		"sourceName":       source,
		"abi":              json.RawMessage(abiJSON),
		"bytecode":         bytecode,
		"deployedBytecode": bytecode,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		t.Fatalf("marshal artifact: %v", err)
	}
	path := filepath.Join(dir, filepath.FromSlash(source), name+".json")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	return path
}

// WriteBuildInfo attaches a Hardhat .dbg.json and build-info file recording
// solcVersion to the artifact at path.
func WriteBuildInfo(t *testing.T, dir, artifactPath, solcVersion string) {
	t.Helper()
	biDir := filepath.Join(dir, "build-info")
	if err := os.MkdirAll(biDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	biPath := filepath.Join(biDir, "0123abcd.json")
	bi, _ := json.Marshal(map[string]string{"solcVersion": solcVersion})
	if err := os.WriteFile(biPath, bi, 0o644); err != nil {
		t.Fatalf("write build info: %v", err)
	}
	rel, err := filepath.Rel(filepath.Dir(artifactPath), biPath)
	if err != nil {
		t.Fatalf("rel: %v", err)
	}
	dbg, _ := json.Marshal(map[string]string{"_format": "hh-sol-dbg-1", "buildInfo": filepath.ToSlash(rel)})
	dbgPath := artifactPath[:len(artifactPath)-len(".json")] + ".dbg.json"
	if err := os.WriteFile(dbgPath, dbg, 0o644); err != nil {
		t.Fatalf("write dbg: %v", err)
	}
}

// AdminProxy is the contract name of the proxy written from AdminProxyABI.
const AdminProxy = "OptimizedTransparentUpgradeableProxy"

// Project writes the full contract set (Token, SwapContract, Swap, the
// OpenZeppelin proxy pair and AdminProxy) under dir and returns dir.
func Project(t *testing.T, dir string) string {
	t.Helper()
	Write(t, dir, "contracts/Token.sol", "Token", TokenABI, "0x60806040526001")
	Write(t, dir, "contracts/SwapContract.sol", "SwapContract", SwapContractABI, "0x60806040526002")
	swap := Write(t, dir, "contracts/Swap.sol", "Swap", SwapABI, "0x60806040526003")
	WriteBuildInfo(t, dir, swap, "0.8.24+commit.e11b9ed9")
	Write(t, dir, "@openzeppelin/contracts/proxy/transparent/TransparentUpgradeableProxy.sol", "TransparentUpgradeableProxy", ProxyABI, "0x60806040526004")
	Write(t, dir, "@openzeppelin/contracts/proxy/transparent/ProxyAdmin.sol", "ProxyAdmin", ProxyAdminABI, "0x60806040526005")
	Write(t, dir, "hardhat-deploy/solc_0.8/proxy/OptimizedTransparentUpgradeableProxy.sol", AdminProxy, AdminProxyABI, "0x60806040526006")
	return dir
}
