package artifact

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Store resolves artifacts by contract name under an artifacts directory.
// Both Hardhat (artifacts/contracts/**/Name.sol/Name.json) and Foundry
// (out/Name.sol/Name.json) layouts are recognised.
type Store struct {
	dir string

	mu    sync.Mutex
	index map[string][]string // contract name -> artifact paths
	cache map[string]*Artifact
}

// NewStore returns a store rooted at dir. The directory is scanned lazily.
func NewStore(dir string) *Store {
	return &Store{dir: dir, cache: make(map[string]*Artifact)}
}

// Dir returns the artifacts directory.
func (s *Store) Dir() string { return s.dir }

// Get returns the artifact for name, either a bare contract name ("Swap") or a
// fully qualified one ("contracts/Swap.sol:Swap").
func (s *Store) Get(name string) (*Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a, ok := s.cache[name]; ok {
		return a, nil
	}
	if err := s.scan(); err != nil {
		return nil, err
	}

	source, contract := splitQualified(name)
	paths := s.index[contract]
	if source != "" {
		suffix := filepath.Join(filepath.FromSlash(source), contract+".json")
		var matched []string
		for _, p := range paths {
			if strings.HasSuffix(p, string(filepath.Separator)+suffix) {
				matched = append(matched, p)
			}
		}
		paths = matched
	}

	switch len(paths) {
	case 0:
		return nil, fmt.Errorf("%w: %q in %s (did you compile the contracts?)", ErrArtifactNotFound, name, s.dir)
	case 1:
	default:
		return nil, fmt.Errorf("%w: %q matches %s; use a fully qualified name", ErrAmbiguousArtifact, name, strings.Join(s.qualified(paths), ", "))
	}

	a, err := Load(paths[0])
	if err != nil {
		return nil, err
	}
	s.cache[name] = a
	return a, nil
}

// Names returns every contract name found, sorted.
func (s *Store) Names() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.scan(); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(s.index))
	for n := range s.index {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

// scan indexes every artifact file once. Only JSON files that sit directly
// in a "<File>.sol" directory are artifacts; debug files and build-info are
// skipped.
func (s *Store) scan() error {
	if s.index != nil {
		return nil
	}
	if _, err := os.Stat(s.dir); err != nil {
		return fmt.Errorf("%w: artifacts directory %s: %v", ErrArtifactNotFound, s.dir, err)
	}
	index := make(map[string][]string)
	err := filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == "build-info" {
				return filepath.SkipDir
			}
			return nil
		}
		base := d.Name()
		if !strings.HasSuffix(base, ".json") || strings.HasSuffix(base, ".dbg.json") {
			return nil
		}
		if !strings.HasSuffix(filepath.Base(filepath.Dir(path)), ".sol") {
			return nil
		}
		name := strings.TrimSuffix(base, ".json")
		if strings.Contains(name, ".") {
			// Foundry writes Name.0.8.24.json when several solc versions are used.
			name = name[:strings.IndexByte(name, '.')]
		}
		index[name] = append(index[name], path)
		return nil
	})
	if err != nil {
		return fmt.Errorf("scanning artifacts: %w", err)
	}
	s.index = index
	return nil
}

func (s *Store) qualified(paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		rel, err := filepath.Rel(s.dir, p)
		if err != nil {
			rel = p
		}
		rel = filepath.ToSlash(rel)
		out[i] = strings.TrimSuffix(rel, "/"+filepath.Base(p)) + ":" + strings.TrimSuffix(filepath.Base(p), ".json")
	}
	sort.Strings(out)
	return out
}

func splitQualified(name string) (source, contract string) {
	if i := strings.LastIndexByte(name, ':'); i >= 0 {
		return name[:i], name[i+1:]
	}
	return "", name
}
