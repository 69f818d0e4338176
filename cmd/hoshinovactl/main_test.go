// SPDX-License-Identifier: MIT

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HoloArchivists/hoshinova-go/internal/config"
)

func TestRunValidate(t *testing.T) {
	cfg := &config.Config{
		Ytarchive: config.YtarchiveConfig{ExecutablePath: "/usr/bin/ytarchive"},
		Channel: []config.ChannelSpec{
			{ID: "UCabc", Name: "Channel", Filters: []string{"live"}, OutPath: "/out", Recorder: "ytarchive"},
		},
	}
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, cfg.Save(path))

	*configPath = path
	assert.NoError(t, runValidate())
}

func TestRunValidateRejectsMissingChannels(t *testing.T) {
	cfg := &config.Config{Ytarchive: config.YtarchiveConfig{ExecutablePath: "/usr/bin/ytarchive"}}
	path := filepath.Join(t.TempDir(), "config.toml")
	// Bypass Validate so the file round-trips even though it is incomplete.
	require.NoError(t, cfg.Save(path))

	*configPath = path
	assert.Error(t, runValidate())
}

func TestRunReloadMissingPidFile(t *testing.T) {
	*pidFile = filepath.Join(t.TempDir(), "does-not-exist.pid")
	assert.Error(t, runReload())
}

func TestRunReloadRejectsUnparseablePidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hoshinovad.pid")
	require.NoError(t, os.WriteFile(path, []byte("not-a-pid"), 0644))
	*pidFile = path
	assert.Error(t, runReload())
}
