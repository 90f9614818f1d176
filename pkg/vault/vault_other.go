//go:build !linux && !darwin && !freebsd && !windows

package vault

import "os"

func diskSpace(_ string) (*DiskSpaceInfo, error) {
	return nil, errDiskCheckUnsupported
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	// Not every filesystem supports flushing a directory handle.
	_ = d.Sync()
	return nil
}
