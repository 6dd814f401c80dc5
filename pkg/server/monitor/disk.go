package monitor

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/flightwatch/flightboard/pkg/config"
)

// DiskUsage breaks data-directory consumption down by role: the live history
// file (and any badger files next to it) versus rotated gzip archives. The
// split matters operationally because archives are the part that grows
// without bound until someone ages them out.
type DiskUsage struct {
	LiveBytes    int64 `json:"live_bytes"`
	ArchiveBytes int64 `json:"archive_bytes"`
	ArchiveCount int   `json:"archive_count"`
	TotalBytes   int64 `json:"total_bytes"`
}

// DiskMonitor measures data-directory usage against the configured limit.
// Scans use allocated blocks rather than logical sizes, and results are
// cached briefly since the stats endpoint can be polled far more often than
// the directory changes.
type DiskMonitor struct {
	dataDir  string
	maxBytes int64

	mu       sync.Mutex
	cached   DiskUsage
	cachedAt time.Time
}

const diskCacheWindow = 10 * time.Second

// NewDiskMonitor creates a monitor over the given data directory.
func NewDiskMonitor(dataDir string, maxBytes int64) *DiskMonitor {
	return &DiskMonitor{dataDir: dataDir, maxBytes: maxBytes}
}

// Usage returns the current usage breakdown, rescanning at most every few
// seconds. A data directory that does not exist yet reads as empty.
func (dm *DiskMonitor) Usage() (DiskUsage, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if time.Since(dm.cachedAt) < diskCacheWindow {
		return dm.cached, nil
	}

	usage, err := dm.scan()
	if err != nil {
		return DiskUsage{}, err
	}

	dm.cached = usage
	dm.cachedAt = time.Now()
	return usage, nil
}

// Limit returns the configured storage ceiling in bytes.
func (dm *DiskMonitor) Limit() int64 {
	return dm.maxBytes
}

// scan walks the data directory once, attributing each file to the live or
// archive bucket by whether it sits under the archive subdirectory.
func (dm *DiskMonitor) scan() (DiskUsage, error) {
	archiveDir := filepath.Join(dm.dataDir, config.ArchiveDirName) + string(filepath.Separator)

	var usage DiskUsage
	err := filepath.Walk(dm.dataDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			return nil
		}

		size, err := getActualFileSize(path, info)
		if err != nil {
			// Logical size is close enough when the platform call fails.
			size = info.Size()
		}

		if strings.HasPrefix(path, archiveDir) {
			usage.ArchiveBytes += size
			usage.ArchiveCount++
		} else {
			usage.LiveBytes += size
		}
		return nil
	})
	if err != nil && os.IsNotExist(err) {
		return DiskUsage{}, nil
	}
	if err != nil {
		return DiskUsage{}, err
	}

	usage.TotalBytes = usage.LiveBytes + usage.ArchiveBytes
	return usage, nil
}
