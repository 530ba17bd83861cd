package model

import (
	"encoding/json"
	"errors"
	"fmt"
	log "github.com/sirupsen/logrus"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

const configFileName = "config.json"

// JSONConfigStore keeps the configuration document in memory and mirrors it
// to a JSON file. The in-memory copy only changes after a successful write.
type JSONConfigStore struct {
	path   string
	mu     sync.RWMutex
	config Config
}

// NewJSONConfigStore loads dir/config.json. A missing file falls back to a
// legacy config.json in one of legacyDirs, then to DefaultConfig.
func NewJSONConfigStore(dir string, legacyDirs ...string) (*JSONConfigStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed creating config directory: %w", err)
	}
	store := &JSONConfigStore{path: filepath.Join(dir, configFileName)}

	cfg, err := readConfig(store.path)
	switch {
	case err == nil:
		store.config = cfg
		return store, nil
	case !errors.Is(err, fs.ErrNotExist):
		log.WithFields(log.Fields{"path": store.path, "error": err}).Warn("Unreadable config, using defaults")
		store.config = DefaultConfig()
		return store, nil
	}

	for _, legacyDir := range legacyDirs {
		legacyPath := filepath.Join(legacyDir, configFileName)
		legacy, err := readConfig(legacyPath)
		if err != nil {
			continue
		}
		if err := writeJSONAtomically(store.path, legacy); err != nil {
			log.WithFields(log.Fields{"from": legacyPath, "error": err}).Warn("Failed migrating legacy config")
		} else {
			log.WithFields(log.Fields{"from": legacyPath, "to": store.path}).Info("Migrated legacy config")
		}
		store.config = legacy
		return store, nil
	}

	store.config = DefaultConfig()
	return store, nil
}

func (s *JSONConfigStore) Path() string {
	return s.path
}

func (s *JSONConfigStore) Get() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config
}

func (s *JSONConfigStore) Save(patch ConfigPatch) (Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := patch.Apply(s.config)
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return s.config, fmt.Errorf("failed creating config directory: %w", err)
	}
	if err := writeJSONAtomically(s.path, next); err != nil {
		return s.config, fmt.Errorf("failed writing config: %w", err)
	}
	s.config = next
	return next, nil
}

func readConfig(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	// Keys missing from older files keep their defaults.
	cfg := DefaultConfig()
	if err := json.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed parsing %s: %w", path, err)
	}
	return cfg, nil
}

func writeJSONAtomically(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
