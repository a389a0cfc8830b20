package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// ConfigBackend is a persistent key/value store for non-secret settings.
// Values come back as text and are typed by the key table.
type ConfigBackend interface {
	Lookup(key string) (raw string, ok bool)
	Set(key string, val any) error
	Unset(key string) error
}

func defaultDataDir() string {
	return xdgDir("XDG_DATA_HOME", ".local/share", "kopi-data")
}

// FilePath is where config set writes and Load reads.
func FilePath() string {
	return filepath.Join(xdgDir("XDG_CONFIG_HOME", ".config", "."), "config.json")
}

// xdgDir resolves $env/kopi, falling back to ~/home/kopi, or to fallback
// when there is no home directory.
func xdgDir(env, home, fallback string) string {
	if dir := os.Getenv(env); dir != "" {
		return filepath.Join(dir, "kopi")
	}
	h, err := os.UserHomeDir()
	if err != nil {
		return fallback
	}
	return filepath.Join(h, filepath.FromSlash(home), "kopi")
}

// fileBackend stores settings as a flat JSON object keyed by dotted names,
// for example {"server.port": 8787, "session.ttl": "24h"}.
type fileBackend struct {
	path string
	data map[string]any
}

func newPlatformBackend() ConfigBackend {
	return openFileBackend(FilePath())
}

// openFileBackend reads path if it exists. An unreadable or malformed file
// is reported and treated as empty.
func openFileBackend(path string) *fileBackend {
	b := &fileBackend{path: path, data: make(map[string]any)}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		fmt.Fprintf(os.Stderr, "[WARN] could not read config file %s: %v. Using default values.\n", path, err)
	default:
		if err := json.Unmarshal(data, &b.data); err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse config file %s: %v. Using default values.\n", path, err)
			b.data = make(map[string]any)
		}
	}
	return b
}

func (b *fileBackend) Lookup(key string) (string, bool) {
	switch v := b.data[key].(type) {
	case nil:
		return "", false
	case string:
		return v, true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	default:
		return fmt.Sprint(v), true
	}
}

func (b *fileBackend) Set(key string, val any) error {
	b.data[key] = val
	return b.save()
}

func (b *fileBackend) Unset(key string) error {
	if _, ok := b.data[key]; !ok {
		return nil
	}
	delete(b.data, key)
	return b.save()
}

func (b *fileBackend) save() error {
	if err := os.MkdirAll(filepath.Dir(b.path), 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	data, err := json.MarshalIndent(b.data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(b.path, append(data, '\n'), 0o600)
}
