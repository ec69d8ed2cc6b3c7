// Package artifact reads compiled contract artifacts produced by Hardhat or
// Foundry. Artifacts are consumed, never produced.
package artifact

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"golang.org/x/crypto/sha3"
)

// Errors.
var (
	ErrArtifactNotFound  = errors.New("artifact not found")
	ErrAmbiguousArtifact = errors.New("ambiguous artifact name")
	ErrNoBytecode        = errors.New("artifact has no bytecode")
	ErrUnlinked          = errors.New("artifact bytecode has unlinked library references")
	ErrMethodNotFound    = errors.New("method not found in ABI")
)

// Artifact is one compiled contract.
type Artifact struct {
	ContractName     string
	SourceName       string
	ABI              abi.ABI
	RawABI           json.RawMessage
	Bytecode         []byte
	DeployedBytecode []byte
	Path             string

	compiler string // from Foundry metadata, when present
}

// FullyQualifiedName returns "<source>:<name>", or just the name when the
// artifact does not record its source file.
func (a *Artifact) FullyQualifiedName() string {
	if a.SourceName == "" {
		return a.ContractName
	}
	return a.SourceName + ":" + a.ContractName
}

// BytecodeHash returns the keccak256 of the creation code as 0x-prefixed hex.
func (a *Artifact) BytecodeHash() string {
	h := sha3.NewLegacyKeccak256()
	h.Write(a.Bytecode)
	return "0x" + hex.EncodeToString(h.Sum(nil))
}

// CompilerVersion returns the solc version the artifact was built with, without
// the commit suffix. Hardhat records it in the build-info file that the sibling
// <Name>.dbg.json points to; Foundry embeds it in the artifact metadata. An empty
// string means the version is not recorded.
func (a *Artifact) CompilerVersion() (string, error) {
	if a.compiler != "" {
		return trimCommit(a.compiler), nil
	}
	if a.Path == "" {
		return "", nil
	}
	dbgPath := strings.TrimSuffix(a.Path, ".json") + ".dbg.json"
	data, err := os.ReadFile(dbgPath)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", dbgPath, err)
	}
	var dbg struct {
		BuildInfo string `json:"buildInfo"`
	}
	if err := json.Unmarshal(data, &dbg); err != nil {
		return "", fmt.Errorf("invalid debug file %s: %w", dbgPath, err)
	}
	if dbg.BuildInfo == "" {
		return "", nil
	}
	biPath := dbg.BuildInfo
	if !filepath.IsAbs(biPath) {
		biPath = filepath.Join(filepath.Dir(dbgPath), biPath)
	}
	data, err = os.ReadFile(biPath)
	if err != nil {
		return "", fmt.Errorf("reading build info: %w", err)
	}
	var bi struct {
		SolcVersion string `json:"solcVersion"`
	}
	if err := json.Unmarshal(data, &bi); err != nil {
		return "", fmt.Errorf("invalid build info %s: %w", biPath, err)
	}
	return trimCommit(bi.SolcVersion), nil
}

// Load reads a Hardhat or Foundry artifact file. Interfaces, abstract
// contracts and contracts with unlinked libraries cannot be deployed and are
// rejected.
func Load(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read artifact file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("artifact file is empty: %s", path)
	}

	var raw struct {
		ContractName     string          `json:"contractName"`
		SourceName       string          `json:"sourceName"`
		ABI              json.RawMessage `json:"abi"`
		Bytecode         json.RawMessage `json:"bytecode"`
		DeployedBytecode json.RawMessage `json:"deployedBytecode"`
		Metadata         json.RawMessage `json:"metadata"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid artifact JSON: %w", err)
	}
	if len(raw.ABI) < 2 || raw.ABI[0] != '[' {
		return nil, fmt.Errorf("artifact has no valid \"abi\" array: %s", path)
	}
	parsed, err := abi.JSON(bytes.NewReader(raw.ABI))
	if err != nil {
		return nil, fmt.Errorf("parsing artifact ABI: %w", err)
	}

	a := &Artifact{
		ContractName: raw.ContractName,
		SourceName:   raw.SourceName,
		ABI:          parsed,
		RawABI:       raw.ABI,
		Path:         path,
	}
	if a.ContractName == "" {
		a.ContractName = strings.TrimSuffix(filepath.Base(path), ".json")
		if i := strings.IndexByte(a.ContractName, '.'); i > 0 {
			a.ContractName = a.ContractName[:i]
		}
	}
	if a.SourceName == "" {
		// Foundry lays artifacts out as out/<File.sol>/<Name>.json.
		if dir := filepath.Base(filepath.Dir(path)); strings.HasSuffix(dir, ".sol") {
			a.SourceName = dir
		}
	}

	if len(raw.Bytecode) == 0 {
		return nil, fmt.Errorf("%w: cannot deploy an interface or abstract contract: %s", ErrNoBytecode, path)
	}
	a.Bytecode, err = decodeBytecode(raw.Bytecode)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if len(a.Bytecode) == 0 {
		return nil, fmt.Errorf("%w: cannot deploy an interface or abstract contract: %s", ErrNoBytecode, path)
	}
	if len(raw.DeployedBytecode) > 0 {
		// Runtime code is informational; an unlinked or missing value is not fatal.
		a.DeployedBytecode, _ = decodeBytecode(raw.DeployedBytecode)
	}
	a.compiler = metadataCompiler(raw.Metadata)
	return a, nil
}

// decodeBytecode handles the two common artifact formats:
//   - Hardhat:  "bytecode": "0x608060..."
//   - Foundry:  "bytecode": {"object": "0x608060..."}
func decodeBytecode(raw json.RawMessage) ([]byte, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		var obj struct {
			Object string `json:"object"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, fmt.Errorf("bytecode field is neither a hex string nor a {\"object\":\"0x...\"} object")
		}
		s = obj.Object
	}
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if strings.Contains(s, "__") {
		return nil, ErrUnlinked
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid bytecode hex in artifact: %w", err)
	}
	return b, nil
}

// metadataCompiler reads compiler.version from Foundry's embedded metadata,
// which is an object in newer releases and a JSON string in older ones.
func metadataCompiler(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		raw = json.RawMessage(s)
	}
	var md struct {
		Compiler struct {
			Version string `json:"version"`
		} `json:"compiler"`
	}
	if json.Unmarshal(raw, &md) != nil {
		return ""
	}
	return md.Compiler.Version
}

func trimCommit(v string) string {
	v = strings.TrimPrefix(v, "v")
	if i := strings.IndexByte(v, '+'); i >= 0 {
		v = v[:i]
	}
	return v
}
