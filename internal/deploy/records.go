package deploy

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const (
	chainIDFile    = ".chainId"
	migrationsFile = ".migrations.json"
)

// Deployment is the persisted record of one deployed contract.
type Deployment struct {
	Address         common.Address  `json:"address"`
	ABI             json.RawMessage `json:"abi"`
	TransactionHash common.Hash     `json:"transactionHash"`
	Contract        string          `json:"contractName"`
	SourceName      string          `json:"sourceName,omitempty"`
	Deployer        common.Address  `json:"deployer"`
	Args            []string        `json:"args"`
	ArgsData        string          `json:"argsData"`
	BytecodeHash    string          `json:"bytecodeHash"`
	BlockNumber     uint64          `json:"blockNumber"`
	GasUsed         uint64          `json:"gasUsed"`
	DeployedAt      int64           `json:"deployedAt"`
	Implementation  *common.Address `json:"implementation,omitempty"`
	Admin           *common.Address `json:"admin,omitempty"`

	// Newly is true when this run sent the transaction(s) behind the record.
	Newly bool `json:"-"`
}

// Records stores deployments for one network under deployments/<network>/,
// one <name>.json file per deployment.
type Records struct {
	dir string
	mu  sync.Mutex
}

// OpenRecords returns the record store for network under root. Nothing is
// created until the first write.
func OpenRecords(root, network string) *Records {
	return &Records{dir: filepath.Join(root, network)}
}

// Dir returns the network's record directory.
func (r *Records) Dir() string { return r.dir }

// Get loads the record for name. A missing record is (nil, false, nil).
func (r *Records) Get(name string) (*Deployment, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := os.ReadFile(r.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading deployment %s: %w", name, err)
	}
	var d Deployment
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, false, fmt.Errorf("parsing deployment %s: %w", name, err)
	}
	return &d, true, nil
}

// Save writes the record for name.
func (r *Records) Save(name string, d *Deployment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return err
	}
	return r.writeFile(name+".json", data)
}

// Delete removes the record for name. Removing a missing record is not an error.
func (r *Records) Delete(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := os.Remove(r.path(name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// List returns the names of all recorded deployments, sorted.
func (r *Records) List() ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := os.ReadDir(r.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		n := e.Name()
		if e.IsDir() || strings.HasPrefix(n, ".") || !strings.HasSuffix(n, ".json") {
			continue
		}
		names = append(names, strings.TrimSuffix(n, ".json"))
	}
	sort.Strings(names)
	return names, nil
}

// ChainID returns the chain id the records were written for.
func (r *Records) ChainID() (int64, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(r.dir, chainIDFile))
	if errors.Is(err, fs.ErrNotExist) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	id, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("invalid %s: %w", chainIDFile, err)
	}
	return id, true, nil
}

// SetChainID records the chain id.
func (r *Records) SetChainID(id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writeFile(chainIDFile, []byte(strconv.FormatInt(id, 10)))
}

// Migrations returns task ids that completed, with their unix completion time.
func (r *Records) Migrations() (map[string]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.migrations()
}

// MarkMigrated records that task id completed at t.
func (r *Records) MarkMigrated(id string, t time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, err := r.migrations()
	if err != nil {
		return err
	}
	m[id] = t.Unix()
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return r.writeFile(migrationsFile, data)
}

func (r *Records) migrations() (map[string]int64, error) {
	m := make(map[string]int64)
	data, err := os.ReadFile(filepath.Join(r.dir, migrationsFile))
	if errors.Is(err, fs.ErrNotExist) {
		return m, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", migrationsFile, err)
	}
	return m, nil
}

func (r *Records) path(name string) string {
	return filepath.Join(r.dir, name+".json")
}

// writeFile replaces file atomically so an interrupted run never leaves a
// truncated record behind.
func (r *Records) writeFile(file string, data []byte) error {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(r.dir, "."+file+".*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(r.dir, file))
}
