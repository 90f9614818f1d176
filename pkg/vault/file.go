package vault

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// DiskSpaceInfo contains disk usage information
type DiskSpaceInfo struct {
	Total     uint64 `json:"total"`     // Total disk space in bytes
	Free      uint64 `json:"free"`      // Free disk space in bytes
	Available uint64 `json:"available"` // Available to non-root users
	UsedPct   int    `json:"used_pct"`  // Percentage of disk used
}

// errDiskCheckUnsupported is returned by CheckDiskSpace on platforms without
// a free-space query.
var errDiskCheckUnsupported = errors.New("vault: disk space check not supported on this platform")

// CheckDiskSpace returns disk space information for the vault directory
func (v *Vault) CheckDiskSpace() (*DiskSpaceInfo, error) {
	return diskSpace(v.dir)
}

// checkDiskSpaceForWrite verifies sufficient disk space in dir before a
// write of dataSize bytes. A failing free-space query is logged and ignored.
func (v *Vault) checkDiskSpaceForWrite(dir string, dataSize int) error {
	info, err := diskSpace(dir)
	if err != nil {
		if !errors.Is(err, errDiskCheckUnsupported) {
			v.log.Warn("failed to check disk space", zap.Error(err))
		}
		return nil
	}

	// Need at least MinDiskSpaceBytes or 2x the data size, whichever is larger
	required := uint64(MinDiskSpaceBytes)
	if uint64(dataSize)*2 > required {
		required = uint64(dataSize) * 2
	}

	if info.Available < required {
		return fmt.Errorf("%w: only %d KB available, need at least %d KB",
			ErrInsufficientDisk, info.Available/1024, required/1024)
	}

	if info.UsedPct >= DiskWarningPercent {
		v.log.Warn("disk is nearly full", zap.Int("used_pct", info.UsedPct))
	}
	return nil
}

// flushDir flushes a directory after a rename. Tests replace it.
var flushDir = syncDir

// tempPattern is the os.CreateTemp pattern for in-progress writes of path.
func tempPattern(path string) string {
	return "." + filepath.Base(path) + ".tmp-*"
}

// writeFileAtomic writes data to a temporary file next to path, flushes it
// to stable storage and renames it over path. On any failure before the
// rename the temporary file is removed and path keeps its previous contents.
// Once the rename succeeds the write is committed: a failed directory flush
// is logged, not returned.
func writeFileAtomic(path string, data []byte, perm os.FileMode, log *zap.Logger) (err error) {
	dir := filepath.Dir(path)

	f, err := os.CreateTemp(dir, tempPattern(path))
	if err != nil {
		return fmt.Errorf("vault: failed to create temporary file: %w", err)
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
		}
	}()

	if err = f.Chmod(perm); err != nil {
		return fmt.Errorf("vault: failed to set file permissions: %w", err)
	}
	if _, err = f.Write(data); err != nil {
		return fmt.Errorf("vault: failed to write %s: %w", path, err)
	}
	if err = f.Sync(); err != nil {
		return fmt.Errorf("vault: failed to sync %s: %w", path, err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("vault: failed to close %s: %w", path, err)
	}
	if err = os.Rename(tmp, path); err != nil {
		return fmt.Errorf("vault: failed to replace %s: %w", path, err)
	}

	// The rename is durable only once the directory entry is flushed.
	if syncErr := flushDir(dir); syncErr != nil {
		log.Warn("failed to sync directory after replacing file",
			zap.String("dir", dir), zap.Error(syncErr))
	}
	return nil
}

// removeStaleTemps deletes temporary files left behind by interrupted writes
// of path.
func removeStaleTemps(path string) error {
	matches, err := filepath.Glob(filepath.Join(filepath.Dir(path), tempPattern(path)))
	if err != nil {
		return fmt.Errorf("vault: failed to list temporary files: %w", err)
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("vault: failed to remove temporary file: %w", err)
		}
	}
	return nil
}
