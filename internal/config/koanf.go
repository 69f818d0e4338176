// SPDX-License-Identifier: MIT

package config

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	koanftoml "github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// KoanfConfig is a layered configuration reader: a TOML file overridden by
// environment variables, offered alongside Store for callers that want
// individual key lookups or env-var overrides rather than a typed Config
// snapshot. hoshinovad and hoshinovactl load configuration through Store and
// Load, not through KoanfConfig.
type KoanfConfig struct {
	k         *koanf.Koanf
	mu        sync.RWMutex
	filePath  string
	envPrefix string
}

// Option configures a KoanfConfig.
type Option func(*KoanfConfig) error

// WithTOMLFile sets the TOML configuration file path.
func WithTOMLFile(path string) Option {
	return func(kc *KoanfConfig) error {
		kc.filePath = path
		return nil
	}
}

// WithEnvPrefix sets the environment variable prefix (default: "HOSHINOVA").
func WithEnvPrefix(prefix string) Option {
	return func(kc *KoanfConfig) error {
		kc.envPrefix = prefix
		return nil
	}
}

// NewKoanfConfig loads configuration from, in increasing precedence: the
// TOML file, then HOSHINOVA_* environment variables.
func NewKoanfConfig(opts ...Option) (*KoanfConfig, error) {
	kc := &KoanfConfig{
		k:         koanf.New("."),
		envPrefix: "HOSHINOVA",
	}

	for _, opt := range opts {
		if err := opt(kc); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if err := kc.reload(); err != nil {
		return nil, err
	}

	return kc, nil
}

// Load unmarshals the layered configuration into a Config struct.
func (kc *KoanfConfig) Load() (*Config, error) {
	var cfg Config

	kc.mu.RLock()
	k := kc.k
	kc.mu.RUnlock()

	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Reload reloads configuration from all sources.
func (kc *KoanfConfig) Reload() error {
	return kc.reload()
}

var envTopLevelKeys = []string{"ytarchive_", "ytdlp_", "scraper_", "notifier_", "webserver_"}

func (kc *KoanfConfig) reload() error {
	// A fresh instance is built and only swapped in on success, so a
	// malformed file or env var never corrupts a previously-good snapshot.
	newK := koanf.New(".")

	if kc.filePath != "" {
		if err := newK.Load(file.Provider(kc.filePath), koanftoml.Parser()); err != nil {
			return fmt.Errorf("failed to load TOML file: %w", err)
		}
	}

	envProvider := env.Provider(".", env.Opt{
		Prefix: kc.envPrefix + "_",
		TransformFunc: func(k, v string) (string, any) {
			k = strings.TrimPrefix(k, kc.envPrefix+"_")
			k = strings.ToLower(k)

			for _, prefix := range envTopLevelKeys {
				if strings.HasPrefix(k, prefix) {
					rest := strings.TrimPrefix(k, prefix)
					topLevel := strings.TrimSuffix(prefix, "_")
					return topLevel + "." + rest, v
				}
			}

			return strings.ReplaceAll(k, "_", "."), v
		},
	})

	if err := newK.Load(envProvider, nil); err != nil {
		return fmt.Errorf("failed to load environment variables: %w", err)
	}

	kc.mu.Lock()
	kc.k = newK
	kc.mu.Unlock()

	return nil
}

// WatchFile watches the configuration file for changes using fsnotify
// directly, rather than koanf's own file.Provider.Watch, whose internal
// fsnotify goroutine has no Stop() method in koanf v2 and so leaks on ctx
// cancellation. callback is invoked with the reload outcome after every
// write event; WatchFile itself returns once ctx is cancelled or the watcher
// cannot be created, with the fsnotify watcher always closed on return.
func (kc *KoanfConfig) WatchFile(ctx context.Context, callback func(err error)) error {
	if kc.filePath == "" {
		return fmt.Errorf("cannot watch: no file path specified")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(kc.filePath); err != nil {
		return fmt.Errorf("failed to watch %s: %w", kc.filePath, err)
	}

	debounce := time.NewTimer(0)
	if !debounce.Stop() {
		<-debounce.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				debounce.Reset(50 * time.Millisecond)
			}
		case <-debounce.C:
			callback(kc.reload())
		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			callback(fmt.Errorf("file watch error: %w", watchErr))
		}
	}
}

// GetString retrieves a string value from configuration.
func (kc *KoanfConfig) GetString(key string) string {
	kc.mu.RLock()
	defer kc.mu.RUnlock()
	return kc.k.String(key)
}

// GetInt retrieves an integer value from configuration.
func (kc *KoanfConfig) GetInt(key string) int {
	kc.mu.RLock()
	defer kc.mu.RUnlock()
	return kc.k.Int(key)
}

// GetBool retrieves a boolean value from configuration.
func (kc *KoanfConfig) GetBool(key string) bool {
	kc.mu.RLock()
	defer kc.mu.RUnlock()
	return kc.k.Bool(key)
}

// GetDuration retrieves a duration value from configuration.
func (kc *KoanfConfig) GetDuration(key string) time.Duration {
	kc.mu.RLock()
	defer kc.mu.RUnlock()
	return kc.k.Duration(key)
}

// Exists checks if a configuration key exists.
func (kc *KoanfConfig) Exists(key string) bool {
	kc.mu.RLock()
	defer kc.mu.RUnlock()
	return kc.k.Exists(key)
}

// All returns the entire configuration as a map.
func (kc *KoanfConfig) All() map[string]interface{} {
	kc.mu.RLock()
	defer kc.mu.RUnlock()
	return kc.k.All()
}
