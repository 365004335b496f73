package preflight

import (
	"fmt"
	"syscall"
)

// MinDiskSpaceBytes is the free space floor for index artifacts (100MB).
const MinDiskSpaceBytes = 100 * 1024 * 1024

// CheckDiskSpace verifies free space at the cache directory.
func (c *Checker) CheckDiskSpace() CheckResult {
	result := CheckResult{Name: "disk_space", Required: true}

	var stat syscall.Statfs_t
	if err := syscall.Statfs(c.cfg.Library.CacheDir, &stat); err != nil {
		// The cache dir may not exist yet on first run.
		if err := syscall.Statfs(".", &stat); err != nil {
			result.Status = StatusWarn
			result.Required = false
			result.Message = fmt.Sprintf("cannot check disk space: %v", err)
			return result
		}
	}

	available := stat.Bavail * uint64(stat.Bsize)
	if available < MinDiskSpaceBytes {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("%s free (minimum: 100 MB)", formatBytes(available))
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%s free", formatBytes(available))
	return result
}

func formatBytes(n uint64) string {
	const (
		kb = 1024
		mb = 1024 * kb
		gb = 1024 * mb
	)
	switch {
	case n >= gb:
		return fmt.Sprintf("%.1f GB", float64(n)/gb)
	case n >= mb:
		return fmt.Sprintf("%.1f MB", float64(n)/mb)
	case n >= kb:
		return fmt.Sprintf("%.1f KB", float64(n)/kb)
	default:
		return fmt.Sprintf("%d bytes", n)
	}
}
