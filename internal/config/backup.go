package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	// MaxBackups bounds how many config backups are kept per file.
	MaxBackups = 3

	// BackupSuffix marks backup files next to the config they snapshot.
	BackupSuffix = ".bak"
)

// BackupConfigFile snapshots the config at path into a timestamped
// sibling file and prunes old snapshots beyond MaxBackups. Returns the
// backup path, or empty string when there is nothing to back up.
func BackupConfigFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("reading config for backup: %w", err)
	}

	stamp := time.Now().Format("20060102-150405")
	backupPath := fmt.Sprintf("%s%s.%s", path, BackupSuffix, stamp)
	if err := os.WriteFile(backupPath, data, 0o644); err != nil {
		return "", fmt.Errorf("writing config backup: %w", err)
	}

	// Pruning is best effort. The snapshot above already succeeded.
	if backups, err := ListConfigBackups(path); err == nil && len(backups) > MaxBackups {
		for _, old := range backups[MaxBackups:] {
			_ = os.Remove(old)
		}
	}

	return backupPath, nil
}

// ListConfigBackups returns the backups of the config at path, newest
// first.
func ListConfigBackups(path string) ([]string, error) {
	dir := filepath.Dir(path)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing config directory: %w", err)
	}

	prefix := filepath.Base(path) + BackupSuffix + "."
	var backups []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		backups = append(backups, filepath.Join(dir, entry.Name()))
	}

	// The timestamp format sorts lexically, so name order is age order.
	sort.Sort(sort.Reverse(sort.StringSlice(backups)))
	return backups, nil
}

// RestoreConfigFile replaces the config at path with the contents of
// backupPath. The current config is backed up first so a restore is
// itself reversible.
func RestoreConfigFile(path, backupPath string) error {
	data, err := os.ReadFile(backupPath)
	if err != nil {
		return fmt.Errorf("reading backup: %w", err)
	}

	if _, err := BackupConfigFile(path); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("restoring config: %w", err)
	}
	return nil
}
