// SPDX-License-Identifier: MIT

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	toml "github.com/pelletier/go-toml/v2"
)

// atomicCreateTemp matches os.CreateTemp's signature; injectable so tests can
// force the write-temp-then-rename path to fail partway through.
type atomicCreateTemp func(dir, pattern string) (*os.File, error)

// Save marshals cfg as TOML and writes it to path atomically: the new
// content lands in a temp file in the same directory, is fsynced, then
// renamed over the destination. A reader never observes a partially written
// file.
func (c *Config) Save(path string) error {
	return c.saveWith(path, os.CreateTemp)
}

func (c *Config) saveWith(path string, createTemp atomicCreateTemp) (err error) {
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("config: create directory: %w", err)
	}

	tmpFile, err := createTemp(dir, ".config.*.toml")
	if err != nil {
		return fmt.Errorf("config: create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("config: write temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("config: sync temp file: %w", err)
	}
	if err := tmpFile.Chmod(0640); err != nil {
		tmpFile.Close()
		return fmt.Errorf("config: chmod temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("config: close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("config: rename temp file into place: %w", err)
	}

	success = true
	return nil
}

// Load reads and parses the TOML file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Store holds exactly one current Config, readable by many goroutines
// concurrently and replaced only under a brief exclusive hold — the Config
// Store described by the recorder supervisor's architecture. A reload that
// fails to parse or read leaves the current snapshot untouched.
type Store struct {
	mu   sync.RWMutex
	cfg  *Config
	path string
}

// NewStore loads path and returns a Store wrapping it.
func NewStore(path string) (*Store, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	return &Store{cfg: cfg, path: path}, nil
}

// Path returns the backing file path this store reloads from.
func (s *Store) Path() string {
	return s.path
}

// Get returns the current configuration snapshot. The returned pointer must
// be treated as read-only: callers that need to mutate it should work on a
// copy. This matches the Config Store's contract that once published a
// snapshot never changes underneath a reader.
func (s *Store) Get() *Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Reload re-reads the backing file and atomically replaces the snapshot. On
// any parse or I/O failure the existing snapshot is left intact and the
// error is returned.
func (s *Store) Reload() error {
	cfg, err := Load(s.path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	return nil
}

// GetSourceTOML returns the raw bytes currently on disk at the store's path.
// There is no guarantee the bytes match the in-memory snapshot exactly — the
// file may have changed since the last Reload.
func (s *Store) GetSourceTOML() (string, error) {
	s.mu.RLock()
	path := s.path
	s.mu.RUnlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("config: read source: %w", err)
	}
	return string(data), nil
}

// SetSourceTOML validates text by parsing it, and only if that succeeds
// writes it verbatim to the store's path and reloads. A syntactically
// invalid document is rejected before anything touches disk.
func (s *Store) SetSourceTOML(text string) error {
	var probe Config
	if err := toml.Unmarshal([]byte(text), &probe); err != nil {
		return fmt.Errorf("config: validate TOML: %w", err)
	}
	if err := probe.Validate(); err != nil {
		return fmt.Errorf("config: validate: %w", err)
	}

	s.mu.Lock()
	path := s.path
	s.mu.Unlock()

	if err := os.WriteFile(path, []byte(text), 0640); err != nil {
		return fmt.Errorf("config: write source: %w", err)
	}
	return s.Reload()
}

// SetChannelAvatar fills in a channel's picture URL in the live snapshot
// without touching the file on disk, so a later Reload still reflects
// whatever the file itself declares (or doesn't). It is a no-op once the
// channel already has a picture URL, whether from the file or a previous
// call.
func (s *Store) SetChannelAvatar(channelID, url string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.cfg.Channel {
		if s.cfg.Channel[i].ID != channelID || s.cfg.Channel[i].PictureURL != "" {
			continue
		}
		clone := *s.cfg
		clone.Channel = append([]ChannelSpec(nil), s.cfg.Channel...)
		clone.Channel[i].PictureURL = url
		s.cfg = &clone
		return
	}
}
