// SPDX-License-Identifier: MIT

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const backupSampleTOML = `
[ytarchive]
executable_path = "ytarchive"
quality = "best"
delay_start = "5s"
`

func TestBackupConfig(t *testing.T) {
	tmpDir := t.TempDir()

	configPath := filepath.Join(tmpDir, "config.toml")
	require.NoError(t, os.WriteFile(configPath, []byte(backupSampleTOML), 0644))

	backupDir := filepath.Join(tmpDir, "backups")

	backupPath, err := BackupConfig(configPath, backupDir)
	require.NoError(t, err)

	backupContent, err := os.ReadFile(backupPath)
	require.NoError(t, err)
	assert.Equal(t, backupSampleTOML, string(backupContent))
}

func TestBackupConfigFileNotFound(t *testing.T) {
	tmpDir := t.TempDir()
	backupDir := filepath.Join(tmpDir, "backups")

	_, err := BackupConfig("/nonexistent/config.toml", backupDir)
	assert.Error(t, err)
}

func TestBackupConfigDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	backupDir := filepath.Join(tmpDir, "backups")

	_, err := BackupConfig(tmpDir, backupDir)
	assert.Error(t, err)
}

func TestListBackups(t *testing.T) {
	tmpDir := t.TempDir()
	backupDir := filepath.Join(tmpDir, "backups")
	require.NoError(t, os.MkdirAll(backupDir, 0755))

	testFiles := []string{
		"config.toml.2025-12-14T10-00-00.bak",
		"config.toml.2025-12-14T11-00-00.bak",
		"config.toml.2025-12-14T12-00-00.bak",
		"other.toml.2025-12-14T10-00-00.bak",
		"not-a-backup.txt",
	}
	for _, f := range testFiles {
		require.NoError(t, os.WriteFile(filepath.Join(backupDir, f), []byte("test"), 0644))
	}

	backups, err := ListBackups(backupDir, "")
	require.NoError(t, err)
	assert.Len(t, backups, 4)

	backups, err = ListBackups(backupDir, "config.toml")
	require.NoError(t, err)
	require.Len(t, backups, 3)
	assert.False(t, backups[0].Timestamp.Before(backups[1].Timestamp), "backups not sorted newest first")
}

func TestListBackupsNonexistentDir(t *testing.T) {
	backups, err := ListBackups("/nonexistent/backups", "")
	assert.NoError(t, err)
	assert.Nil(t, backups)
}

func TestRestoreBackup(t *testing.T) {
	tmpDir := t.TempDir()
	backupDir := filepath.Join(tmpDir, "backups")
	configPath := filepath.Join(tmpDir, "config.toml")
	require.NoError(t, os.MkdirAll(backupDir, 0755))

	backupPath := filepath.Join(backupDir, "config.toml.2025-12-14T10-00-00.bak")
	require.NoError(t, os.WriteFile(backupPath, []byte(backupSampleTOML), 0644))

	prevBackup, err := RestoreBackup(backupPath, configPath, backupDir)
	require.NoError(t, err)
	assert.Empty(t, prevBackup)

	restored, err := os.ReadFile(configPath)
	require.NoError(t, err)
	assert.Equal(t, backupSampleTOML, string(restored))
}

func TestRestoreBackupWithExistingConfig(t *testing.T) {
	tmpDir := t.TempDir()
	backupDir := filepath.Join(tmpDir, "backups")
	configPath := filepath.Join(tmpDir, "config.toml")
	require.NoError(t, os.MkdirAll(backupDir, 0755))
	require.NoError(t, os.WriteFile(configPath, []byte(backupSampleTOML), 0644))

	backupPath := filepath.Join(backupDir, "config.toml.2025-12-14T10-00-00.bak")
	require.NoError(t, os.WriteFile(backupPath, []byte(`
[ytarchive]
executable_path = "ytarchive"
quality = "1080p60"
delay_start = "5s"
`), 0644))

	prevBackup, err := RestoreBackup(backupPath, configPath, backupDir)
	require.NoError(t, err)
	assert.NotEmpty(t, prevBackup)
	assert.FileExists(t, prevBackup)
}

func TestRestoreBackupInvalidTOML(t *testing.T) {
	tmpDir := t.TempDir()
	backupDir := filepath.Join(tmpDir, "backups")
	configPath := filepath.Join(tmpDir, "config.toml")
	require.NoError(t, os.MkdirAll(backupDir, 0755))

	backupPath := filepath.Join(backupDir, "config.toml.2025-12-14T10-00-00.bak")
	require.NoError(t, os.WriteFile(backupPath, []byte("not valid toml {{{"), 0644))

	_, err := RestoreBackup(backupPath, configPath, backupDir)
	assert.Error(t, err)
}

func TestCleanOldBackups(t *testing.T) {
	tmpDir := t.TempDir()
	backupDir := filepath.Join(tmpDir, "backups")
	require.NoError(t, os.MkdirAll(backupDir, 0755))

	for i := 0; i < 5; i++ {
		name := time.Now().Add(time.Duration(-i) * time.Hour).Format(BackupTimestampFormat)
		path := filepath.Join(backupDir, "config.toml."+name+BackupSuffix)
		require.NoError(t, os.WriteFile(path, []byte("test"), 0644))
		time.Sleep(10 * time.Millisecond)
	}

	deleted, err := CleanOldBackups(backupDir, "config.toml", 2)
	require.NoError(t, err)
	assert.Equal(t, 3, deleted)

	remaining, _ := ListBackups(backupDir, "config.toml")
	assert.Len(t, remaining, 2)
}

func TestCleanOldBackupsNegativeKeep(t *testing.T) {
	tmpDir := t.TempDir()
	_, err := CleanOldBackups(tmpDir, "config.toml", -1)
	assert.Error(t, err)
}

func TestParseBackupTimestamp(t *testing.T) {
	tests := []struct {
		filename string
		wantErr  bool
	}{
		{"config.toml.2025-12-14T10-30-00.bak", false},
		{"config.toml.2025-12-14T10-30-00.000.bak", false},
		{"config.toml.invalid.bak", true},
		{"config.toml.bak", true},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			_, err := parseBackupTimestamp(tt.filename)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestGetBackupDir(t *testing.T) {
	tests := []struct {
		configPath string
		want       string
	}{
		{"/etc/hoshinova/config.toml", DefaultBackupDir},
		{"/home/user/config.toml", "/home/user/backups"},
		{"/opt/hoshinova/config.toml", "/opt/hoshinova/backups"},
	}

	for _, tt := range tests {
		t.Run(tt.configPath, func(t *testing.T) {
			assert.Equal(t, tt.want, GetBackupDir(tt.configPath))
		})
	}
}

func TestBackupBeforeSave(t *testing.T) {
	tmpDir := t.TempDir()
	backupDir := filepath.Join(tmpDir, "backups")
	configPath := filepath.Join(tmpDir, "config.toml")
	require.NoError(t, os.WriteFile(configPath, []byte(backupSampleTOML), 0644))

	cfg := Default()
	cfg.Channel = []ChannelSpec{{ID: "UCabc", Name: "Example", Filters: []string{"."}, OutPath: "/data/x"}}
	cfg.Ytarchive.Quality = "1080p60"

	backupPath, err := BackupBeforeSave(cfg, configPath, backupDir)
	require.NoError(t, err)
	assert.NotEmpty(t, backupPath)

	newCfg, err := Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, "1080p60", newCfg.Ytarchive.Quality)
}
