//go:build !windows

package monitor

import (
	"os"
	"syscall"
)

// getActualFileSize returns allocated disk usage rather than logical size,
// so sparse files do not overstate consumption against the limit.
func getActualFileSize(path string, info os.FileInfo) (int64, error) {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return info.Size(), nil
	}
	// st_blocks is in 512-byte units regardless of the filesystem block size.
	return stat.Blocks * 512, nil
}
