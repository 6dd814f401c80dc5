package monitor

import (
	"os"
	"path/filepath"
	"testing"
)

func seedDataDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "history.json"), []byte(`{"sequences":{}}`), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	archive := filepath.Join(dir, "archive")
	if err := os.MkdirAll(archive, 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	for _, name := range []string{"history-20260801-000000.json.gz", "history-20260815-000000.json.gz"} {
		if err := os.WriteFile(filepath.Join(archive, name), []byte("gz"), 0644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}
	return dir
}

func TestDiskMonitor_SplitsLiveAndArchive(t *testing.T) {
	dm := NewDiskMonitor(seedDataDir(t), 1<<20)

	usage, err := dm.Usage()
	if err != nil {
		t.Fatalf("Usage: %v", err)
	}
	if usage.LiveBytes <= 0 {
		t.Errorf("LiveBytes = %d, want > 0", usage.LiveBytes)
	}
	if usage.ArchiveBytes <= 0 {
		t.Errorf("ArchiveBytes = %d, want > 0", usage.ArchiveBytes)
	}
	if usage.ArchiveCount != 2 {
		t.Errorf("ArchiveCount = %d, want 2", usage.ArchiveCount)
	}
	if usage.TotalBytes != usage.LiveBytes+usage.ArchiveBytes {
		t.Errorf("TotalBytes = %d, want LiveBytes+ArchiveBytes = %d",
			usage.TotalBytes, usage.LiveBytes+usage.ArchiveBytes)
	}
}

func TestDiskMonitor_UsageIsCached(t *testing.T) {
	dir := seedDataDir(t)
	dm := NewDiskMonitor(dir, 1<<20)

	first, err := dm.Usage()
	if err != nil {
		t.Fatalf("Usage: %v", err)
	}

	// A new archive within the cache window must not change the reading.
	if err := os.WriteFile(filepath.Join(dir, "archive", "history-20260830-000000.json.gz"), []byte("gz"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	second, err := dm.Usage()
	if err != nil {
		t.Fatalf("Usage: %v", err)
	}
	if second != first {
		t.Errorf("cached usage = %+v, want %+v", second, first)
	}
}

func TestDiskMonitor_MissingDirReadsEmpty(t *testing.T) {
	dm := NewDiskMonitor(filepath.Join(t.TempDir(), "does-not-exist"), 1<<20)

	usage, err := dm.Usage()
	if err != nil {
		t.Fatalf("Usage on missing dir: %v", err)
	}
	if usage.TotalBytes != 0 || usage.ArchiveCount != 0 {
		t.Errorf("usage = %+v, want empty for missing directory", usage)
	}
}

func TestDiskMonitor_Limit(t *testing.T) {
	dm := NewDiskMonitor(t.TempDir(), 12345)
	if got := dm.Limit(); got != 12345 {
		t.Errorf("Limit() = %d, want 12345", got)
	}
}
